package collector

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ghalamif/QShield/internal/domain"
	"github.com/ghalamif/QShield/internal/ports"
)

// maxLineBytes bounds a single record set in a JSONL stream.
const maxLineBytes = 8 << 20

type Config struct {
	Path   string `yaml:"path"`
	Source string `yaml:"source"`
}

// JSONLCollector emits one job per non-blank line of a JSON Lines stream.
// Lines are not validated here; a malformed line still becomes a job and
// comes out of the classifier as an error-shaped decision.
type JSONLCollector struct {
	cfg     Config
	open    func() (io.ReadCloser, error)
	now     func() time.Time
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	done    chan struct{}
	count   atomic.Int64
	err     error
	mu      sync.Mutex
	started bool
}

var _ ports.Collector = (*JSONLCollector)(nil)

func NewJSONLCollector(cfg Config) (*JSONLCollector, error) {
	if cfg.Path == "" {
		return nil, errors.New("jsonl collector: path is required")
	}
	if cfg.Source == "" {
		cfg.Source = "jsonl:" + cfg.Path
	}
	path := cfg.Path
	return &JSONLCollector{
		cfg:  cfg,
		open: func() (io.ReadCloser, error) { return os.Open(path) },
		now:  time.Now,
		done: make(chan struct{}),
	}, nil
}

// NewReaderCollector reads jobs from r instead of a file.
func NewReaderCollector(r io.Reader, source string) *JSONLCollector {
	if source == "" {
		source = "reader"
	}
	return &JSONLCollector{
		cfg:  Config{Source: source},
		open: func() (io.ReadCloser, error) { return io.NopCloser(r), nil },
		now:  time.Now,
		done: make(chan struct{}),
	}
}

func (c *JSONLCollector) Start(out chan<- *domain.Job) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return fmt.Errorf("jsonl collector already started")
	}

	rc, err := c.open()
	if err != nil {
		return fmt.Errorf("jsonl collector open: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.started = true

	c.wg.Add(1)
	go c.consume(ctx, rc, out)
	return nil
}

func (c *JSONLCollector) Stop() error {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
	return nil
}

// Done is closed once the stream has been fully read or the collector stopped.
func (c *JSONLCollector) Done() <-chan struct{} { return c.done }

// Count reports how many jobs have been emitted so far.
func (c *JSONLCollector) Count() int64 { return c.count.Load() }

// Err returns the read error that ended the stream, if any.
func (c *JSONLCollector) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *JSONLCollector) consume(ctx context.Context, rc io.ReadCloser, out chan<- *domain.Job) {
	defer c.wg.Done()
	defer close(c.done)
	defer rc.Close()

	sc := bufio.NewScanner(rc)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		job := &domain.Job{
			ID:          uuid.NewString(),
			Payload:     append([]byte(nil), line...),
			SubmittedAt: c.now().UTC(),
			Source:      c.cfg.Source,
		}
		select {
		case <-ctx.Done():
			return
		case out <- job:
			c.count.Add(1)
		}
	}
	if err := sc.Err(); err != nil {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
	}
}
