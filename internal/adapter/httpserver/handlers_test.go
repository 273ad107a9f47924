package httpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/duskport/eventcollector/internal/adapter/httpserver"
	"github.com/duskport/eventcollector/internal/config"
	"github.com/duskport/eventcollector/internal/domain"
)

type fakeQueue struct {
	pushed  [][]string
	pushErr error
}

func (q *fakeQueue) Push(ctx context.Context, encoded []string) error {
	if q.pushErr != nil {
		return q.pushErr
	}
	q.pushed = append(q.pushed, encoded)
	return nil
}
func (q *fakeQueue) Pop(ctx context.Context) (string, bool, error) { return "", false, nil }
func (q *fakeQueue) Ping(ctx context.Context) error                { return nil }
func (q *fakeQueue) Depth(ctx context.Context) (int64, error)      { return 0, nil }

type fakeEvents struct {
	events []domain.ProcessedEvent
}

func (e *fakeEvents) List(ctx context.Context, topic string, limit int) ([]domain.ProcessedEvent, error) {
	return e.events, nil
}

type fakeStats struct {
	stats  domain.Stats
	topics int64
}

func (s *fakeStats) Get(ctx context.Context) (domain.Stats, int64, error) {
	return s.stats, s.topics, nil
}

func TestPublishHandler_ValidBatch(t *testing.T) {
	t.Parallel()
	q := &fakeQueue{}
	srv := httpserver.NewServer(config.Config{}, q, &fakeEvents{}, &fakeStats{}, nil)

	body := `{"events":[{"topic":"orders.created","event_id":"e1","timestamp":"2024-01-01T00:00:00Z","source":"svc","payload":{}}]}`
	req := httptest.NewRequest(http.MethodPost, "/publish", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	srv.PublishHandler()(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, q.pushed, 1)
	require.Len(t, q.pushed[0], 1)
}

func TestPublishHandler_EmptyBatchRejected(t *testing.T) {
	t.Parallel()
	q := &fakeQueue{}
	srv := httpserver.NewServer(config.Config{}, q, &fakeEvents{}, &fakeStats{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/publish", bytes.NewBufferString(`{"events":[]}`))
	rec := httptest.NewRecorder()
	srv.PublishHandler()(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Empty(t, q.pushed)
}

func TestPublishHandler_InvalidEventRejectsWholeBatch(t *testing.T) {
	t.Parallel()
	q := &fakeQueue{}
	srv := httpserver.NewServer(config.Config{}, q, &fakeEvents{}, &fakeStats{}, nil)

	body := `{"events":[
		{"topic":"orders.created","event_id":"e1","timestamp":"2024-01-01T00:00:00Z","source":"svc","payload":{}},
		{"topic":"","event_id":"e2","timestamp":"2024-01-01T00:00:00Z","source":"svc","payload":{}}
	]}`
	req := httptest.NewRequest(http.MethodPost, "/publish", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	srv.PublishHandler()(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Empty(t, q.pushed, "no partial enqueue on validation failure")
}

func TestPublishHandler_QueuePushFailureMapsTo500(t *testing.T) {
	t.Parallel()
	q := &fakeQueue{pushErr: context.DeadlineExceeded}
	srv := httpserver.NewServer(config.Config{}, q, &fakeEvents{}, &fakeStats{}, nil)

	body := `{"events":[{"topic":"orders.created","event_id":"e1","timestamp":"2024-01-01T00:00:00Z","source":"svc","payload":{}}]}`
	req := httptest.NewRequest(http.MethodPost, "/publish", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	srv.PublishHandler()(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code, "queue failure must map to 500, not 503")
}

func TestEventsHandler_ListsEvents(t *testing.T) {
	t.Parallel()
	ev := domain.ProcessedEvent{Event: domain.Event{Topic: "t", EventID: "e1"}}
	srv := httpserver.NewServer(config.Config{}, &fakeQueue{}, &fakeEvents{events: []domain.ProcessedEvent{ev}}, &fakeStats{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	rec := httptest.NewRecorder()
	srv.EventsHandler()(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body []domain.ProcessedEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	require.Equal(t, "t", body[0].Topic)
}

func TestEventsHandler_InvalidLimit(t *testing.T) {
	t.Parallel()
	srv := httpserver.NewServer(config.Config{}, &fakeQueue{}, &fakeEvents{}, &fakeStats{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/events?limit=-1", nil)
	rec := httptest.NewRecorder()
	srv.EventsHandler()(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestStatsHandler_ReturnsCounters(t *testing.T) {
	t.Parallel()
	srv := httpserver.NewServer(config.Config{}, &fakeQueue{}, &fakeEvents{}, &fakeStats{
		stats:  domain.Stats{ReceivedCount: 10, UniqueProcessed: 8, DuplicateDropped: 2},
		topics: 3,
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	srv.StatsHandler()(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, float64(10), body["received"])
	require.Equal(t, float64(3), body["topics"])
	require.Equal(t, "ok", body["status"])
	require.GreaterOrEqual(t, body["uptime_seconds"], float64(0))
}

func TestHealthHandler_AllOK(t *testing.T) {
	t.Parallel()
	checks := []httpserver.HealthCheck{
		{Name: "queue", Run: func(ctx context.Context) error { return nil }},
		{Name: "store", Run: func(ctx context.Context) error { return nil }},
	}
	srv := httpserver.NewServer(config.Config{}, &fakeQueue{}, &fakeEvents{}, &fakeStats{}, checks)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.HealthHandler()(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthHandler_OneFails(t *testing.T) {
	t.Parallel()
	checks := []httpserver.HealthCheck{
		{Name: "queue", Run: func(ctx context.Context) error { return nil }},
		{Name: "store", Run: func(ctx context.Context) error { return context.DeadlineExceeded }},
	}
	srv := httpserver.NewServer(config.Config{}, &fakeQueue{}, &fakeEvents{}, &fakeStats{}, checks)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.HealthHandler()(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRootHandler(t *testing.T) {
	t.Parallel()
	srv := httpserver.NewServer(config.Config{OTELServiceName: "eventcollector"}, &fakeQueue{}, &fakeEvents{}, &fakeStats{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	srv.RootHandler()(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "eventcollector", body["service"])
}
