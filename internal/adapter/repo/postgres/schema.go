package postgres

import (
	"context"
	"fmt"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS processed_events (
	id BIGSERIAL PRIMARY KEY,
	topic TEXT NOT NULL,
	event_id TEXT NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL,
	source TEXT NOT NULL,
	payload JSONB NOT NULL DEFAULT '{}'::jsonb,
	processed_at TIMESTAMPTZ NOT NULL,
	UNIQUE (topic, event_id)
);
CREATE INDEX IF NOT EXISTS idx_processed_events_topic ON processed_events (topic);
CREATE INDEX IF NOT EXISTS idx_processed_events_timestamp ON processed_events (timestamp);
CREATE INDEX IF NOT EXISTS idx_processed_events_processed_at ON processed_events (processed_at DESC);

CREATE TABLE IF NOT EXISTS event_stats (
	id SMALLINT PRIMARY KEY DEFAULT 1,
	received_count BIGINT NOT NULL DEFAULT 0,
	unique_processed BIGINT NOT NULL DEFAULT 0,
	duplicate_dropped BIGINT NOT NULL DEFAULT 0,
	started_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	CONSTRAINT event_stats_singleton CHECK (id = 1)
);
`

// statsSingletonID is the fixed sentinel identity of the Stats row.
const statsSingletonID = 1

// EnsureSchema creates the tables, indexes, and the Stats singleton row if
// absent. Startup is not considered successful until this returns nil.
func EnsureSchema(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("op=schema.ensure: %w", err)
	}
	const insertStats = `
		INSERT INTO event_stats (id, received_count, unique_processed, duplicate_dropped, started_at, updated_at)
		VALUES ($1, 0, 0, 0, now(), now())
		ON CONFLICT (id) DO NOTHING`
	if _, err := db.Exec(ctx, insertStats, statsSingletonID); err != nil {
		return fmt.Errorf("op=schema.ensure_stats: %w", err)
	}
	return nil
}
