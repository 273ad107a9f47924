package postgres_test

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/duskport/eventcollector/internal/adapter/repo/postgres"
)

func TestStatsRepo_Get(t *testing.T) {
	t.Parallel()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()
	repo := postgres.NewStatsRepo(m)

	now := time.Now().UTC()
	statsRows := pgxmock.NewRows([]string{"received_count", "unique_processed", "duplicate_dropped", "started_at", "updated_at"}).
		AddRow(int64(100), int64(80), int64(20), now, now)
	m.ExpectQuery(`SELECT received_count, unique_processed, duplicate_dropped, started_at, updated_at FROM event_stats WHERE id = \$1`).
		WithArgs(1).
		WillReturnRows(statsRows)

	topicRows := pgxmock.NewRows([]string{"count"}).AddRow(int64(3))
	m.ExpectQuery(`SELECT COUNT\(DISTINCT topic\) FROM processed_events`).
		WillReturnRows(topicRows)

	stats, topics, err := repo.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(100), stats.ReceivedCount)
	require.Equal(t, int64(80), stats.UniqueProcessed)
	require.Equal(t, int64(20), stats.DuplicateDropped)
	require.Equal(t, int64(3), topics)
}
