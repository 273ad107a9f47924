// Command loadgen generates a synthetic stream of events against a running
// collector, including deliberate late duplicates, for manual load and
// idempotency testing. It is a standalone harness outside the collector's
// import graph.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/caarlos0/env/v10"
)

// genConfig holds the knobs that mirror the original publisher's environment
// variables, renamed to this repository's vocabulary.
type genConfig struct {
	TargetURL           string        `env:"COLLECTOR_URL" envDefault:"http://localhost:8080"`
	BatchSize           int           `env:"BATCH_SIZE" envDefault:"100"`
	DuplicateRate       float64       `env:"DUPLICATE_RATE" envDefault:"0.3"`
	TotalEvents         int           `env:"TOTAL_EVENTS" envDefault:"20000"`
	DelayBetweenBatches time.Duration `env:"DELAY_BETWEEN_BATCHES" envDefault:"500ms"`
	ReadyTimeout        time.Duration `env:"READY_TIMEOUT" envDefault:"60s"`
}

var topics = []string{
	"user.registration", "user.login", "user.logout",
	"order.created", "order.completed", "order.cancelled",
	"payment.initiated", "payment.completed", "payment.failed",
	"inventory.updated",
}

var sources = []string{
	"web-app-1", "web-app-2", "mobile-app-1", "mobile-app-2",
	"api-gateway-1", "api-gateway-2",
}

type event struct {
	Topic     string         `json:"topic"`
	EventID   string         `json:"event_id"`
	Timestamp string         `json:"timestamp"`
	Source    string         `json:"source"`
	Payload   map[string]any `json:"payload"`
}

// generator produces realistic events and keeps a bounded cache of
// previously-sent events so it can re-emit one as a "late duplicate".
type generator struct {
	cache   []event
	counter int
}

func (g *generator) eventID() string {
	g.counter++
	return fmt.Sprintf("%d-%08x-%d", time.Now().UnixMilli(), rand.Uint32(), g.counter)
}

func payloadFor(topic string) map[string]any {
	switch {
	case hasPrefix(topic, "user."):
		return map[string]any{
			"user_id": fmt.Sprintf("user_%d", 1000+rand.Intn(9000)),
			"email":   fmt.Sprintf("user%d@example.com", 1000+rand.Intn(9000)),
		}
	case hasPrefix(topic, "order."):
		return map[string]any{
			"order_id":    fmt.Sprintf("ORD-%d", 10000+rand.Intn(90000)),
			"customer_id": fmt.Sprintf("user_%d", 1000+rand.Intn(9000)),
			"amount":      round2(10 + rand.Float64()*990),
			"currency":    "USD",
		}
	case hasPrefix(topic, "payment."):
		return map[string]any{
			"payment_id": fmt.Sprintf("PAY-%d", 10000+rand.Intn(90000)),
			"order_id":   fmt.Sprintf("ORD-%d", 10000+rand.Intn(90000)),
			"amount":     round2(10 + rand.Float64()*990),
			"method":     pick([]string{"credit_card", "debit_card", "paypal", "bank_transfer"}),
		}
	case hasPrefix(topic, "inventory."):
		return map[string]any{
			"product_id": fmt.Sprintf("PROD-%d", 1000+rand.Intn(9000)),
			"quantity":   rand.Intn(1000),
			"action":     pick([]string{"restock", "sold", "reserved", "returned"}),
		}
	default:
		return map[string]any{"data": "generic_event"}
	}
}

func hasPrefix(s, p string) bool { return len(s) >= len(p) && s[:len(p)] == p }
func pick(opts []string) string { return opts[rand.Intn(len(opts))] }
func round2(f float64) float64  { return float64(int(f*100+0.5)) / 100 }

func (g *generator) newEvent() event {
	ev := event{
		Topic:     pick(topics),
		EventID:   g.eventID(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Source:    pick(sources),
	}
	ev.Payload = payloadFor(ev.Topic)
	return ev
}

// batch returns size events, duplicateRate of which are refreshed-timestamp
// copies of previously cached events rather than new ones.
func (g *generator) batch(size int, duplicateRate float64) []event {
	numDup := int(float64(size) * duplicateRate)
	numNew := size - numDup

	events := make([]event, 0, size)
	for i := 0; i < numNew; i++ {
		ev := g.newEvent()
		events = append(events, ev)
		if len(g.cache) < 1000 {
			g.cache = append(g.cache, ev)
		}
	}
	if numDup > 0 && len(g.cache) > 0 {
		for i := 0; i < numDup; i++ {
			dup := g.cache[rand.Intn(len(g.cache))]
			dup.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
			events = append(events, dup)
		}
	}
	rand.Shuffle(len(events), func(i, j int) { events[i], events[j] = events[j], events[i] })
	return events
}

func main() {
	var cfg genConfig
	if err := env.Parse(&cfg); err != nil {
		slog.Error("config parse failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	client := &http.Client{Timeout: 30 * time.Second}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ReadyTimeout)
	defer cancel()
	if err := waitForCollector(ctx, client, cfg.TargetURL); err != nil {
		slog.Error("collector did not become ready", slog.Any("error", err))
		os.Exit(1)
	}

	gen := &generator{}
	sent, batches, errs := runSimulation(client, cfg, gen)

	slog.Info("load generation complete",
		slog.Int("sent", sent), slog.Int("batches", batches), slog.Int("errors", errs))

	fetchStats(client, cfg.TargetURL)
}

// waitForCollector polls /health until it returns 200 or the context expires.
func waitForCollector(ctx context.Context, client *http.Client, baseURL string) error {
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
		if err == nil {
			if resp, err := client.Do(req); err == nil {
				resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					slog.Info("collector is ready")
					return nil
				}
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func runSimulation(client *http.Client, cfg genConfig, gen *generator) (sent, batches, errs int) {
	remaining := cfg.TotalEvents
	for remaining > 0 {
		size := cfg.BatchSize
		if size > remaining {
			size = remaining
		}
		events := gen.batch(size, cfg.DuplicateRate)

		if err := publishBatch(client, cfg.TargetURL, events); err != nil {
			errs++
			slog.Warn("batch publish failed, continuing", slog.Any("error", err))
		} else {
			sent += len(events)
			batches++
		}

		remaining -= size
		if remaining > 0 {
			time.Sleep(cfg.DelayBetweenBatches)
		}
	}
	return sent, batches, errs
}

// publishBatch sends one batch to /publish, retrying transient failures with
// bounded exponential backoff before giving up on the batch.
func publishBatch(client *http.Client, baseURL string, events []event) error {
	body, err := json.Marshal(map[string]any{"events": events})
	if err != nil {
		return fmt.Errorf("op=loadgen.marshal: %w", err)
	}

	op := func() error {
		req, err := http.NewRequest(http.MethodPost, baseURL+"/publish", bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("op=loadgen.publish: status=%d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("op=loadgen.publish: status=%d", resp.StatusCode))
		}
		return nil
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5)
	return backoff.Retry(op, bo)
}

func fetchStats(client *http.Client, baseURL string) {
	resp, err := client.Get(baseURL + "/stats")
	if err != nil {
		slog.Error("failed to fetch collector stats", slog.Any("error", err))
		return
	}
	defer resp.Body.Close()

	var stats map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		slog.Error("failed to decode collector stats", slog.Any("error", err))
		return
	}
	slog.Info("collector stats", slog.Any("stats", stats))
}
