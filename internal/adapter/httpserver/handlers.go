package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/duskport/eventcollector/internal/adapter/observability"
	"github.com/duskport/eventcollector/internal/config"
	"github.com/duskport/eventcollector/internal/domain"
)

// defaultEventsLimit bounds GET /events when the caller omits ?limit.
const defaultEventsLimit = 100

// maxEventsLimit caps GET /events regardless of the caller's request.
const maxEventsLimit = 1000

// HealthCheck is a single named liveness probe run by the /health handler.
type HealthCheck struct {
	Name string
	Run  func(ctx context.Context) error
}

// Server aggregates the Intake and Read API handlers' dependencies.
type Server struct {
	Cfg       config.Config
	Queue     domain.Queue
	Events    domain.EventRepository
	Stats     domain.StatsRepository
	Checks    []HealthCheck
	StartedAt time.Time
}

// NewServer constructs an HTTP server with all handlers wired. StartedAt is
// recorded here, at process boot, for the /stats uptime_seconds field.
func NewServer(cfg config.Config, queue domain.Queue, events domain.EventRepository, stats domain.StatsRepository, checks []HealthCheck) *Server {
	return &Server{Cfg: cfg, Queue: queue, Events: events, Stats: stats, Checks: checks, StartedAt: time.Now()}
}

// PublishHandler validates the whole batch, pipelines every event onto the
// queue, and returns 202 without waiting for the Writer.
func (s *Server) PublishHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req publishRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: malformed JSON body", domain.ErrValidation), nil)
			return
		}

		events, err := validateAndConvert(req)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}

		reqID := observability.RequestIDFromContext(r.Context())
		encoded := make([]string, 0, len(events))
		for _, ev := range events {
			ev.RequestID = reqID
			b, err := json.Marshal(ev)
			if err != nil {
				writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInternal, err), nil)
				return
			}
			encoded = append(encoded, string(b))
		}

		if err := s.Queue.Push(r.Context(), encoded); err != nil {
			LoggerFrom(r).Error("queue push failed", "error", err)
			writeError(w, r, fmt.Errorf("%w: queue push failed: %v", domain.ErrInternal, err), nil)
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]any{
			"status":  "accepted",
			"queued":  len(encoded),
			"message": "batch admitted to the queue",
		})
	}
}

// EventsHandler returns up to limit most-recently-processed events,
// optionally filtered by topic.
func (s *Server) EventsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		topic := r.URL.Query().Get("topic")
		limit := defaultEventsLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				writeError(w, r, fmt.Errorf("%w: limit must be a positive integer", domain.ErrValidation), nil)
				return
			}
			limit = n
		}
		if limit > maxEventsLimit {
			limit = maxEventsLimit
		}

		events, err := s.Events.List(r.Context(), topic, limit)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInternal, err), nil)
			return
		}
		if events == nil {
			events = []domain.ProcessedEvent{}
		}
		writeJSON(w, http.StatusOK, events)
	}
}

// StatsHandler implements the Read API's aggregate counters.
func (s *Server) StatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, topics, err := s.Stats.Get(r.Context())
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInternal, err), nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"received":          stats.ReceivedCount,
			"unique_processed":  stats.UniqueProcessed,
			"duplicate_dropped": stats.DuplicateDropped,
			"topics":            topics,
			"uptime_seconds":    time.Since(s.StartedAt).Seconds(),
			"status":            "ok",
		})
	}
}

// HealthHandler runs every registered HealthCheck and reports 200 only if
// all of them succeed.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		results := make(map[string]string, len(s.Checks))
		ok := true
		for _, c := range s.Checks {
			if err := c.Run(ctx); err != nil {
				results[c.Name] = err.Error()
				ok = false
				continue
			}
			results[c.Name] = "ok"
		}
		status := http.StatusOK
		overall := "ok"
		if !ok {
			status = http.StatusServiceUnavailable
			overall = "unavailable"
		}
		writeJSON(w, status, map[string]any{"status": overall, "checks": results})
	}
}

// RootHandler reports basic service info at GET /.
func (s *Server) RootHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"service": s.Cfg.OTELServiceName,
			"version": "1.0.0",
			"status":  "running",
		})
	}
}
