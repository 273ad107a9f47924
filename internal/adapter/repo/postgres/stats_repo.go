package postgres

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/duskport/eventcollector/internal/domain"
)

// StatsRepo is the read side of the Stats singleton.
type StatsRepo struct{ Pool PgxPool }

// NewStatsRepo constructs a StatsRepo with the given pool.
func NewStatsRepo(p PgxPool) *StatsRepo { return &StatsRepo{Pool: p} }

// Get returns the current Stats snapshot plus the distinct topic count.
func (r *StatsRepo) Get(ctx context.Context) (domain.Stats, int64, error) {
	tracer := otel.Tracer("repo.stats")
	ctx, span := tracer.Start(ctx, "stats.Get")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "event_stats"),
	)

	const q = `SELECT received_count, unique_processed, duplicate_dropped, started_at, updated_at FROM event_stats WHERE id = $1`
	row := r.Pool.QueryRow(ctx, q, statsSingletonID)
	var s domain.Stats
	if err := row.Scan(&s.ReceivedCount, &s.UniqueProcessed, &s.DuplicateDropped, &s.StartedAt, &s.UpdatedAt); err != nil {
		return domain.Stats{}, 0, fmt.Errorf("op=stats.get: %w", err)
	}

	const topicsQ = `SELECT COUNT(DISTINCT topic) FROM processed_events`
	var topics int64
	if err := r.Pool.QueryRow(ctx, topicsQ).Scan(&topics); err != nil {
		return domain.Stats{}, 0, fmt.Errorf("op=stats.get_topics: %w", err)
	}
	return s, topics, nil
}
