// Package worker runs the concurrent pool that drains the queue and hands
// each event to the Writer.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/duskport/eventcollector/internal/adapter/observability"
	"github.com/duskport/eventcollector/internal/domain"
)

// Pool runs N independent workers, each looping blocking-pop -> decode ->
// write against the same Queue and Writer. Workers share no state and never
// coordinate with one another; the Writer's idempotence is what makes that
// safe.
type Pool struct {
	Queue   domain.Queue
	Writer  domain.Writer
	Count   int
	Backoff time.Duration

	wg sync.WaitGroup
}

// New constructs a Pool. count is clamped to at least 1.
func New(q domain.Queue, w domain.Writer, count int, backoff time.Duration) *Pool {
	if count < 1 {
		count = 1
	}
	return &Pool{Queue: q, Writer: w, Count: count, Backoff: backoff}
}

// Run starts Count workers and blocks until ctx is cancelled and every
// worker has returned.
func (p *Pool) Run(ctx context.Context) {
	slog.Info("starting worker pool", slog.Int("workers", p.Count))
	for i := 0; i < p.Count; i++ {
		p.wg.Add(1)
		go p.runOne(ctx, i)
	}
	p.wg.Wait()
	slog.Info("worker pool stopped")
}

func (p *Pool) runOne(ctx context.Context, id int) {
	defer p.wg.Done()
	log := slog.With(slog.Int("worker_id", id))
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		raw, ok, err := p.Queue.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("queue pop failed", slog.Any("error", err))
			p.sleep(ctx, p.Backoff)
			continue
		}
		if !ok {
			// Pop timed out with nothing available; loop back and check ctx.
			continue
		}

		var ev domain.Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			log.Warn("dropping undecodable event", slog.Any("error", err))
			observability.RecordDecodeFailure()
			continue
		}

		// Carry the Intake request_id (if any) into the worker's context so
		// that the Writer's logs and this event's logs correlate with the
		// request that admitted it, even though it now runs off the queue.
		evCtx := ctx
		evLog := log
		if ev.RequestID != "" {
			evCtx = observability.ContextWithRequestID(ctx, ev.RequestID)
			evLog = observability.LoggerFromContext(evCtx).With(
				slog.Int("worker_id", id), slog.String("request_id", ev.RequestID))
			evCtx = observability.ContextWithLogger(evCtx, evLog)
		}

		outcome, err := p.Writer.Write(evCtx, ev)
		if err != nil {
			evLog.Error("writer failed",
				slog.String("topic", ev.Topic),
				slog.String("event_id", ev.EventID),
				slog.Any("error", err))
			p.sleep(ctx, p.Backoff)
			continue
		}
		evLog.Debug("event written",
			slog.String("topic", ev.Topic),
			slog.String("event_id", ev.EventID),
			slog.String("outcome", outcome.String()))
	}
}

func (p *Pool) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
