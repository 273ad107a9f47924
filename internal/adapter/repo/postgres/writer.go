package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/duskport/eventcollector/internal/adapter/observability"
	"github.com/duskport/eventcollector/internal/domain"
)

// uniqueViolationCode is the Postgres SQLSTATE for a unique-constraint conflict.
const uniqueViolationCode = "23505"

// Writer is the deduplicating transactional writer described in the data
// model: one event write either inserts a new row and bumps unique_processed,
// or finds (topic, event_id) already present and bumps duplicate_dropped,
// all inside a single transaction against the Stats singleton. The one
// exception is a raw unique-violation error, which recordDuplicate counts in
// a second transaction.
type Writer struct{ Pool PgxPool }

// NewWriter constructs a Writer with the given pool.
func NewWriter(p PgxPool) *Writer { return &Writer{Pool: p} }

// Write persists ev if its (topic, event_id) pair has not been seen before,
// and increments received_count in the same transaction. On the raw
// unique-violation path that transaction is rolled back and only
// duplicate_dropped is incremented. It never fails an event for being a
// duplicate: OutcomeDuplicate is a normal, non-error result.
func (w *Writer) Write(ctx context.Context, ev domain.Event) (domain.WriteOutcome, error) {
	tracer := otel.Tracer("repo.writer")
	ctx, span := tracer.Start(ctx, "writer.Write")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "processed_events"),
		attribute.String("event.topic", ev.Topic),
	)

	start := time.Now()
	outcome, err := w.writeTx(ctx, ev)
	if err != nil {
		return outcome, fmt.Errorf("op=writer.write: %w", err)
	}
	observability.RecordWrite(ev.Topic, outcome == domain.OutcomeProcessed, time.Since(start))
	return outcome, nil
}

func (w *Writer) writeTx(ctx context.Context, ev domain.Event) (domain.WriteOutcome, error) {
	tx, err := w.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return domain.WriteOutcome(0), fmt.Errorf("begin_tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rerr := tx.Rollback(ctx); rerr != nil && !errors.Is(rerr, pgx.ErrTxClosed) {
				observability.LoggerFromContext(ctx).Error("writer: rollback failed", slog.Any("error", rerr))
			}
		}
	}()

	if _, err := tx.Exec(ctx, `UPDATE event_stats SET received_count = received_count + 1, updated_at = now() WHERE id = $1`, statsSingletonID); err != nil {
		return domain.WriteOutcome(0), fmt.Errorf("bump_received: %w", err)
	}

	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return domain.WriteOutcome(0), fmt.Errorf("marshal_payload: %w", err)
	}

	const insert = `
		INSERT INTO processed_events (topic, event_id, timestamp, source, payload, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (topic, event_id) DO NOTHING`
	tag, err := tx.Exec(ctx, insert, ev.Topic, ev.EventID, ev.Timestamp, ev.Source, payload, time.Now().UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			// The conflict surfaced as an error instead of being absorbed by
			// ON CONFLICT DO NOTHING; this transaction is aborted, so the
			// duplicate is counted in a fresh one.
			return w.recordDuplicate(ctx, tx, committed)
		}
		return domain.WriteOutcome(0), fmt.Errorf("insert_event: %w", err)
	}

	outcome := domain.OutcomeDuplicate
	if tag.RowsAffected() == 1 {
		outcome = domain.OutcomeProcessed
	} else {
		if _, err := tx.Exec(ctx, `UPDATE event_stats SET duplicate_dropped = duplicate_dropped + 1, updated_at = now() WHERE id = $1`, statsSingletonID); err != nil {
			return domain.WriteOutcome(0), fmt.Errorf("bump_duplicate: %w", err)
		}
	}
	if outcome == domain.OutcomeProcessed {
		if _, err := tx.Exec(ctx, `UPDATE event_stats SET unique_processed = unique_processed + 1, updated_at = now() WHERE id = $1`, statsSingletonID); err != nil {
			return domain.WriteOutcome(0), fmt.Errorf("bump_unique: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.WriteOutcome(0), fmt.Errorf("commit: %w", err)
	}
	committed = true
	return outcome, nil
}

// recordDuplicate rolls back the failed insert attempt and records the
// duplicate in a fresh transaction. Reached only on a raw unique-violation
// error rather than the ON CONFLICT DO NOTHING fast path. The received_count
// bump of the rolled-back transaction is not repeated; only duplicate_dropped
// is incremented.
func (w *Writer) recordDuplicate(ctx context.Context, tx pgx.Tx, _ bool) (domain.WriteOutcome, error) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return domain.WriteOutcome(0), fmt.Errorf("rollback_after_conflict: %w", err)
	}
	tx2, err := w.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return domain.WriteOutcome(0), fmt.Errorf("begin_tx_retry: %w", err)
	}
	defer func() { _ = tx2.Rollback(ctx) }()
	if _, err := tx2.Exec(ctx, `UPDATE event_stats SET duplicate_dropped = duplicate_dropped + 1, updated_at = now() WHERE id = $1`, statsSingletonID); err != nil {
		return domain.WriteOutcome(0), fmt.Errorf("bump_duplicate_retry: %w", err)
	}
	if err := tx2.Commit(ctx); err != nil {
		return domain.WriteOutcome(0), fmt.Errorf("commit_retry: %w", err)
	}
	return domain.OutcomeDuplicate, nil
}
