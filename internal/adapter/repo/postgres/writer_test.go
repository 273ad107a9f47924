package postgres_test

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duskport/eventcollector/internal/adapter/repo/postgres"
	"github.com/duskport/eventcollector/internal/domain"
)

func sampleEvent() domain.Event {
	return domain.Event{
		Topic:     "orders.created",
		EventID:   "evt-1",
		Timestamp: time.Now().UTC(),
		Source:    "checkout-service",
		Payload:   map[string]any{"amount": 42},
	}
}

func TestWriter_Write_NewEvent(t *testing.T) {
	t.Parallel()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()
	w := postgres.NewWriter(m)

	m.ExpectBegin()
	m.ExpectExec("UPDATE event_stats SET received_count").
		WithArgs(1).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	m.ExpectExec("INSERT INTO processed_events").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	m.ExpectExec("UPDATE event_stats SET unique_processed").
		WithArgs(1).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	m.ExpectCommit()

	outcome, err := w.Write(context.Background(), sampleEvent())
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeProcessed, outcome)
	require.NoError(t, m.ExpectationsWereMet())
}

func TestWriter_Write_DuplicateEvent(t *testing.T) {
	t.Parallel()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()
	w := postgres.NewWriter(m)

	m.ExpectBegin()
	m.ExpectExec("UPDATE event_stats SET received_count").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	m.ExpectExec("INSERT INTO processed_events").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	m.ExpectExec("UPDATE event_stats SET duplicate_dropped").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	m.ExpectCommit()

	outcome, err := w.Write(context.Background(), sampleEvent())
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDuplicate, outcome)
	require.NoError(t, m.ExpectationsWereMet())
}

func TestWriter_Write_BeginError(t *testing.T) {
	t.Parallel()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()
	w := postgres.NewWriter(m)

	m.ExpectBegin().WillReturnError(assert.AnError)

	_, err = w.Write(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=writer.write")
}
