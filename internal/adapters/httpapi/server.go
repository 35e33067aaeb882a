package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ghalamif/QShield/internal/app/classifier"
	"github.com/ghalamif/QShield/internal/domain"
)

// MaxBodyBytes caps a single request body.
const MaxBodyBytes = 8 << 20

// Evaluator is the synchronous classification path. Malformed payloads come
// back as error-shaped evaluations.
type Evaluator interface {
	EvaluatePayload(ctx context.Context, raw []byte) classifier.Evaluation
	BackendName() string
}

// SubmitFunc journals and enqueues a job for asynchronous classification.
// Any error is reported to the client as 503.
type SubmitFunc func(ctx context.Context, job *domain.Job) error

type Config struct {
	Evaluator Evaluator
	Submit    SubmitFunc
	Gatherer  prometheus.Gatherer
	Stats     func() map[string]any
	Log       zerolog.Logger
	Now       func() time.Time
}

type Server struct {
	router *chi.Mux
	eval   Evaluator
	submit SubmitFunc
	stats  func() map[string]any
	log    zerolog.Logger
	now    func() time.Time
}

// classifyResponse is the DecisionRecord itself plus the input summary.
type classifyResponse struct {
	domain.DecisionRecord
	NumThreats   int       `json:"num_threats"`
	FeaturesUsed []float64 `json:"features_used"`
}

type submitResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		eval:   cfg.Evaluator,
		submit: cfg.Submit,
		stats:  cfg.Stats,
		log:    cfg.Log.With().Str("component", "httpapi").Logger(),
		now:    cfg.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}

	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(s.loggingMiddleware)

	s.router.Get("/healthz", s.handleHealth)
	if cfg.Gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	if s.eval != nil {
		s.router.Post("/v1/classify", s.handleClassify)
	}
	if s.submit != nil {
		s.router.Post("/v1/jobs", s.handleSubmit)
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleClassify classifies a record set synchronously. Every response that
// reaches the evaluator is DecisionRecord-shaped, including rejected input.
// POST /v1/classify
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	raw, ok := s.readBody(w, r)
	if !ok {
		return
	}

	ev := s.eval.EvaluatePayload(r.Context(), raw)
	status := http.StatusOK
	switch {
	case errors.Is(ev.Err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	case ev.Decision.Failed():
		status = http.StatusBadGateway
	}
	s.writeJSON(w, status, classifyResponse{
		DecisionRecord: ev.Decision,
		NumThreats:     ev.NumThreats,
		FeaturesUsed:   ev.Features,
	})
}

// handleSubmit validates a record set and queues it.
// POST /v1/jobs
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	raw, ok := s.readBody(w, r)
	if !ok {
		return
	}
	if _, err := domain.ParseRecordSet(raw); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	job := &domain.Job{
		ID:          uuid.NewString(),
		Payload:     raw,
		SubmittedAt: s.now().UTC(),
		Source:      "http",
	}
	if err := s.submit(r.Context(), job); err != nil {
		s.log.Warn().Err(err).Str("job_id", job.ID).Msg("job not accepted")
		s.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusAccepted, submitResponse{JobID: job.ID, Status: "queued"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"status": "ok"}
	if s.eval != nil {
		body["backend"] = s.eval.BackendName()
	}
	if s.stats != nil {
		for k, v := range s.stats() {
			body[k] = v
		}
	}
	s.writeJSON(w, http.StatusOK, body)
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
			return nil, false
		}
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "failed to read request body"})
		return nil, false
	}
	return raw, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}
