package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	_ "github.com/lib/pq"

	"github.com/ghalamif/QShield/internal/domain"
	"github.com/ghalamif/QShield/internal/ports"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

const decisionColumns = 12

// PostgresSink persists outcomes to a threat_decisions style table. Inserts
// are idempotent on job_id so a replayed batch does not duplicate rows.
type PostgresSink struct {
	db        *sql.DB
	tableName string
}

// OpenPostgres opens a lib/pq connection pool and verifies it answers.
func OpenPostgres(ctx context.Context, connString string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return db, nil
}

func NewPostgresSink(db *sql.DB, table string) (*PostgresSink, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("postgres sink: invalid table name %q", table)
	}
	return &PostgresSink{db: db, tableName: table}, nil
}

func (p *PostgresSink) Name() string { return "postgres" }

// EnsureSchema creates the decisions table when it does not exist yet.
func (p *PostgresSink) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+p.tableName+` (
	job_id        TEXT PRIMARY KEY,
	decided_at    TIMESTAMPTZ NOT NULL,
	prediction    SMALLINT NOT NULL,
	probability   DOUBLE PRECISION NOT NULL,
	confidence    DOUBLE PRECISION NOT NULL,
	threshold     DOUBLE PRECISION NOT NULL,
	is_malicious  BOOLEAN NOT NULL,
	backend_name  TEXT NOT NULL,
	num_threats   INTEGER NOT NULL,
	features_used JSONB,
	raw_histogram JSONB NOT NULL,
	error         TEXT
)`)
	return err
}

func (p *PostgresSink) WriteBatch(outcomes []*domain.Outcome) error {
	if len(outcomes) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(p.tableName)
	b.WriteString(" (job_id, decided_at, prediction, probability, confidence, threshold, is_malicious, backend_name, num_threats, features_used, raw_histogram, error) VALUES ")

	args := make([]any, 0, len(outcomes)*decisionColumns)
	for i, o := range outcomes {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("(")
		for c := 1; c <= decisionColumns; c++ {
			if c > 1 {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, "$%d", len(args)+c)
		}
		b.WriteString(")")

		features, err := json.Marshal(o.FeaturesUsed)
		if err != nil {
			return fmt.Errorf("marshal features: %w", err)
		}
		hist, err := json.Marshal(o.Decision.RawHistogram)
		if err != nil {
			return fmt.Errorf("marshal histogram: %w", err)
		}

		d := o.Decision
		args = append(args,
			o.JobID,
			o.CompletedAt,
			d.Prediction,
			d.Probability,
			d.Confidence,
			d.Threshold,
			d.IsMalicious,
			d.BackendName,
			o.NumThreats,
			features,
			hist,
			sql.NullString{String: d.Error, Valid: d.Error != ""},
		)
	}

	b.WriteString(" ON CONFLICT (job_id) DO NOTHING")

	_, err := p.db.Exec(b.String(), args...)
	return err
}

var _ ports.DecisionSink = (*PostgresSink)(nil)
