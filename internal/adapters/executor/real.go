package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ghalamif/QShield/internal/circuit"
	"github.com/ghalamif/QShield/internal/domain"
	"github.com/ghalamif/QShield/internal/ports"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const RealBackendName = "remote"

type RealConfig struct {
	Endpoint string
	Token    string
	Timeout  time.Duration
	Retries  int
	Backoff  time.Duration
	Client   *http.Client
}

func (c *RealConfig) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.Backoff <= 0 {
		c.Backoff = 200 * time.Millisecond
	}
	if c.Client == nil {
		c.Client = &http.Client{}
	}
	c.Endpoint = strings.TrimRight(c.Endpoint, "/")
}

// Target is one execution target advertised by the remote service.
type Target struct {
	Name        string `json:"name"`
	NumQubits   int    `json:"num_qubits"`
	PendingJobs int    `json:"pending_jobs"`
	Operational bool   `json:"operational"`
}

type targetList struct {
	Backends []Target `json:"backends"`
}

type submitRequest struct {
	ID      string `json:"id"`
	Backend string `json:"backend"`
	QASM    string `json:"qasm"`
	Shots   int    `json:"shots"`
}

type submitResponse struct {
	ID      string                  `json:"id"`
	Backend string                  `json:"backend"`
	Status  string                  `json:"status"`
	Counts  domain.OutcomeHistogram `json:"counts"`
	Error   string                  `json:"error,omitempty"`
}

// Real submits transforms as OpenQASM to a remote execution service:
//
//	GET  {endpoint}/v1/backends  -> {"backends":[{name, num_qubits, pending_jobs, operational}]}
//	POST {endpoint}/v1/jobs      <- {id, backend, qasm, shots}
//	                             -> {id, backend, status, counts}
//
// Every call is bounded by Timeout. Transport failures, timeouts, 5xx/429
// responses that survive the retries and an empty target list are reported
// as ErrBackendUnavailable.
type Real struct {
	cfg RealConfig
	log zerolog.Logger
}

var _ ports.Executor = (*Real)(nil)

func NewReal(cfg RealConfig, log zerolog.Logger) (*Real, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("real backend: endpoint is required")
	}
	cfg.applyDefaults()
	return &Real{cfg: cfg, log: log}, nil
}

func (r *Real) Name() string { return RealBackendName }

func (r *Real) Run(ctx context.Context, spec domain.TransformSpec, shots int) (ports.Execution, error) {
	if shots <= 0 {
		return ports.Execution{}, fmt.Errorf("%w: got %d", domain.ErrInvalidShots, shots)
	}
	program, err := circuit.QASM(spec)
	if err != nil {
		return ports.Execution{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	targets, err := r.Targets(ctx)
	if err != nil {
		return ports.Execution{}, err
	}
	target, ok := SelectLeastBusy(targets, spec.Width)
	if !ok {
		return ports.Execution{}, fmt.Errorf("%w: no operational target with %d qubits", domain.ErrBackendUnavailable, spec.Width)
	}
	r.log.Info().
		Str("target", target.Name).
		Int("pending_jobs", target.PendingJobs).
		Msg("selected least busy target")

	req := submitRequest{ID: uuid.NewString(), Backend: target.Name, QASM: program, Shots: shots}
	var resp submitResponse
	if err := r.call(ctx, http.MethodPost, "/v1/jobs", req, &resp); err != nil {
		return ports.Execution{}, err
	}
	if resp.Error != "" {
		return ports.Execution{}, fmt.Errorf("real backend: job %s failed: %s", req.ID, resp.Error)
	}
	if err := checkCounts(resp.Counts, spec.Width, shots); err != nil {
		return ports.Execution{}, fmt.Errorf("real backend: job %s: %w", req.ID, err)
	}

	name := resp.Backend
	if name == "" {
		name = target.Name
	}
	return ports.Execution{Counts: resp.Counts, Backend: name}, nil
}

// Targets lists the execution targets of the remote service.
func (r *Real) Targets(ctx context.Context) ([]Target, error) {
	var list targetList
	if err := r.call(ctx, http.MethodGet, "/v1/backends", nil, &list); err != nil {
		return nil, err
	}
	return list.Backends, nil
}

// SelectLeastBusy picks the operational target with the fewest pending jobs
// that can hold width qubits. A target advertising 0 qubits is assumed large
// enough. Ties keep the earlier target.
func SelectLeastBusy(targets []Target, width int) (Target, bool) {
	var (
		best  Target
		found bool
	)
	for _, t := range targets {
		if !t.Operational || (t.NumQubits > 0 && t.NumQubits < width) {
			continue
		}
		if !found || t.PendingJobs < best.PendingJobs {
			best, found = t, true
		}
	}
	return best, found
}

// call performs one JSON request with retries on transient failures.
func (r *Real) call(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return err
		}
	}

	backoff := r.cfg.Backoff
	var lastErr error
	for attempt := 1; attempt <= r.cfg.Retries+1; attempt++ {
		retryable, err := r.do(ctx, method, path, body, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable || attempt > r.cfg.Retries {
			break
		}

		r.log.Warn().Err(err).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Str("path", path).
			Msg("remote call failed, retrying")

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	if ctx.Err() != nil && !errors.Is(lastErr, domain.ErrBackendUnavailable) {
		return fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, lastErr)
	}
	return lastErr
}

func (r *Real) do(ctx context.Context, method, path string, body []byte, out any) (bool, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.Endpoint+path, rd)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.Token)
	}

	resp, err := r.cfg.Client.Do(req)
	if err != nil {
		return true, fmt.Errorf("%w: %s %s: %v", domain.ErrBackendUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return true, fmt.Errorf("%w: %s %s: status %d", domain.ErrBackendUnavailable, method, path, resp.StatusCode)
	case resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("real backend: %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return false, fmt.Errorf("%w: %s %s: reading response: %v", domain.ErrBackendUnavailable, method, path, err)
		}
		return false, fmt.Errorf("real backend: decode %s response: %w", path, err)
	}
	return false, nil
}

// checkCounts verifies a remote histogram: labels of the right width made of
// '0'/'1', non-negative counts summing to shots.
func checkCounts(counts domain.OutcomeHistogram, width, shots int) error {
	for label, c := range counts {
		if len(label) != width || strings.Trim(label, "01") != "" {
			return fmt.Errorf("malformed label %q for width %d", label, width)
		}
		if c < 0 {
			return fmt.Errorf("negative count for %q", label)
		}
	}
	if total := counts.Total(); total != shots {
		return fmt.Errorf("counts sum to %d, want %d", total, shots)
	}
	return nil
}
