package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/duskport/eventcollector/internal/domain"
)

// EventRepo is the read side of the persisted event log.
type EventRepo struct{ Pool PgxPool }

// NewEventRepo constructs an EventRepo with the given pool.
func NewEventRepo(p PgxPool) *EventRepo { return &EventRepo{Pool: p} }

// List returns up to limit most-recently-processed events, optionally
// filtered to a single topic, ordered by processed_at descending.
func (r *EventRepo) List(ctx context.Context, topic string, limit int) ([]domain.ProcessedEvent, error) {
	tracer := otel.Tracer("repo.events")
	ctx, span := tracer.Start(ctx, "events.List")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "processed_events"),
	)

	const baseQuery = `SELECT topic, event_id, timestamp, source, payload, processed_at FROM processed_events`
	var query string
	var args []any
	if topic != "" {
		query = baseQuery + ` WHERE topic = $1 ORDER BY processed_at DESC LIMIT $2`
		args = []any{topic, limit}
	} else {
		query = baseQuery + ` ORDER BY processed_at DESC LIMIT $1`
		args = []any{limit}
	}

	rows, err := r.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("op=events.list: %w", err)
	}
	defer rows.Close()

	var out []domain.ProcessedEvent
	for rows.Next() {
		var ev domain.ProcessedEvent
		var payload []byte
		if err := rows.Scan(&ev.Topic, &ev.EventID, &ev.Timestamp, &ev.Source, &payload, &ev.ProcessedAt); err != nil {
			return nil, fmt.Errorf("op=events.list_scan: %w", err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &ev.Payload); err != nil {
				return nil, fmt.Errorf("op=events.list_unmarshal: %w", err)
			}
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=events.list_rows: %w", err)
	}
	return out, nil
}
