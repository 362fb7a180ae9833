package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"imagegen/internal/models"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgres(t *testing.T) (*PostgresStorage, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return newPostgresStorage(mock), mock
}

func generationRows() *pgxmock.Rows {
	return pgxmock.NewRows(generationColumns)
}

func TestPostgresStorage_Migrate(t *testing.T) {
	ps, mock := newMockPostgres(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS generations`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, ps.migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_SaveGeneration(t *testing.T) {
	ps, mock := newMockPostgres(t)
	g := newTestGeneration("gen-1", 0, models.GenerationSucceeded)

	mock.ExpectExec(`INSERT INTO generations .* ON CONFLICT \(id\) DO UPDATE SET`).
		WithArgs(
			g.ID,
			g.Prompt,
			g.NegativePrompt,
			g.Model,
			g.Width,
			g.Height,
			g.Steps,
			pgxmock.AnyArg(),
			g.Status,
			g.Error,
			g.ArtifactName,
			g.SizeBytes,
			g.DurationMS,
			g.CreatedAt.UTC(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, ps.SaveGeneration(context.Background(), g))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_SaveGenerationError(t *testing.T) {
	ps, mock := newMockPostgres(t)

	args := make([]interface{}, 14)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	mock.ExpectExec(`INSERT INTO generations`).
		WithArgs(args...).
		WillReturnError(errors.New("connection reset"))

	err := ps.SaveGeneration(context.Background(), newTestGeneration("gen-1", 0, models.GenerationSucceeded))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert generation")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_GetGeneration(t *testing.T) {
	ps, mock := newMockPostgres(t)
	seed := int64(42)

	rows := generationRows().AddRow(
		"gen-1", "a lighthouse at dusk", "", models.DefaultModel, 576, 1024, 4, &seed,
		models.GenerationSucceeded, "", "img.png", int64(2048), int64(1500), baseTime,
	)
	mock.ExpectQuery(`SELECT .* FROM generations WHERE id = \$1`).
		WithArgs("gen-1").
		WillReturnRows(rows)

	g, err := ps.GetGeneration(context.Background(), "gen-1")
	require.NoError(t, err)
	assert.Equal(t, "gen-1", g.ID)
	assert.Equal(t, 576, g.Width)
	require.NotNil(t, g.Seed)
	assert.Equal(t, int64(42), *g.Seed)
	assert.Equal(t, "img.png", g.ArtifactName)
	assert.True(t, baseTime.Equal(g.CreatedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_GetGenerationNotFound(t *testing.T) {
	ps, mock := newMockPostgres(t)

	mock.ExpectQuery(`SELECT .* FROM generations WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := ps.GetGeneration(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_RecentGenerations(t *testing.T) {
	ps, mock := newMockPostgres(t)

	rows := generationRows().
		AddRow("b", "second", "", models.DefaultModel, 576, 1024, 4, nil,
			models.GenerationSucceeded, "", "b.png", int64(10), int64(5), baseTime.Add(time.Minute)).
		AddRow("a", "first", "", models.DefaultModel, 576, 1024, 4, nil,
			models.GenerationSucceeded, "", "a.png", int64(10), int64(5), baseTime)

	mock.ExpectQuery(`SELECT .* FROM generations WHERE status = \$1 ORDER BY created_at DESC, id DESC LIMIT 2`).
		WithArgs(models.GenerationSucceeded).
		WillReturnRows(rows)

	gens, err := ps.RecentGenerations(context.Background(), 2, models.GenerationSucceeded)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ids(gens))
	assert.Nil(t, gens[0].Seed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_RecentGenerationsUnfiltered(t *testing.T) {
	ps, mock := newMockPostgres(t)

	mock.ExpectQuery(`SELECT .* FROM generations ORDER BY created_at DESC, id DESC$`).
		WillReturnRows(generationRows())

	gens, err := ps.RecentGenerations(context.Background(), 0, "")
	require.NoError(t, err)
	assert.NotNil(t, gens)
	assert.Empty(t, gens)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_DeleteGenerationsBefore(t *testing.T) {
	ps, mock := newMockPostgres(t)
	cutoff := baseTime.Add(-time.Hour)

	mock.ExpectExec(`DELETE FROM generations WHERE created_at < \$1`).
		WithArgs(cutoff.UTC()).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := ps.DeleteGenerationsBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_Ping(t *testing.T) {
	ps, mock := newMockPostgres(t)

	mock.ExpectPing()
	require.NoError(t, ps.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("down"))
	assert.Error(t, ps.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewPostgresStorage_RequiresConnectionString(t *testing.T) {
	_, err := NewPostgresStorage(Config{Type: models.StorageTypePostgres})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection string is required")
}
