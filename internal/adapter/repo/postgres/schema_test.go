package postgres_test

import (
	"context"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duskport/eventcollector/internal/adapter/repo/postgres"
)

func TestEnsureSchema_CreatesTablesAndSingleton(t *testing.T) {
	t.Parallel()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()

	m.ExpectExec("CREATE TABLE IF NOT EXISTS processed_events").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	m.ExpectExec("INSERT INTO event_stats").
		WithArgs(1).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, postgres.EnsureSchema(context.Background(), m))
	require.NoError(t, m.ExpectationsWereMet())
}

func TestEnsureSchema_DDLError(t *testing.T) {
	t.Parallel()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()

	m.ExpectExec("CREATE TABLE IF NOT EXISTS processed_events").
		WillReturnError(assert.AnError)

	err = postgres.EnsureSchema(context.Background(), m)
	require.Error(t, err)
}
