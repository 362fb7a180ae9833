package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"imagegen/internal/models"

	"github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS generations (
	id              TEXT PRIMARY KEY,
	prompt          TEXT NOT NULL,
	negative_prompt TEXT NOT NULL DEFAULT '',
	model           TEXT NOT NULL,
	width           INTEGER NOT NULL,
	height          INTEGER NOT NULL,
	steps           INTEGER NOT NULL,
	seed            INTEGER,
	status          TEXT NOT NULL,
	error           TEXT NOT NULL DEFAULT '',
	artifact_name   TEXT NOT NULL DEFAULT '',
	size_bytes      INTEGER NOT NULL DEFAULT 0,
	duration_ms     INTEGER NOT NULL DEFAULT 0,
	created_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_generations_created_at ON generations (created_at);
`

// SQLiteStorage persists generation history in a SQLite database using the
// pure-Go modernc driver. Timestamps are stored as UTC unix nanoseconds.
type SQLiteStorage struct {
	db      *sql.DB
	builder squirrel.StatementBuilderType
}

// NewSQLiteStorage opens the database and creates the schema if needed.
func NewSQLiteStorage(config Config) (*SQLiteStorage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for SQLite storage")
	}

	db, err := sql.Open("sqlite", config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serialises writers; one connection avoids SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStorage{
		db:      db,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}, nil
}

func (ss *SQLiteStorage) SaveGeneration(ctx context.Context, g *models.Generation) error {
	query, args, err := ss.builder.Insert("generations").
		Columns(generationColumns...).
		Values(
			g.ID,
			g.Prompt,
			g.NegativePrompt,
			g.Model,
			g.Width,
			g.Height,
			g.Steps,
			seedValue(g.Seed),
			g.Status,
			g.Error,
			g.ArtifactName,
			g.SizeBytes,
			g.DurationMS,
			unixNanos(g.CreatedAt),
		).
		Suffix(upsertSuffix).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert generation sql: %w", err)
	}

	if _, err := ss.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert generation: %w", err)
	}
	return nil
}

func (ss *SQLiteStorage) GetGeneration(ctx context.Context, id string) (*models.Generation, error) {
	query, args, err := ss.builder.Select(generationColumns...).
		From("generations").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select generation sql: %w", err)
	}

	g, err := scanSQLiteGeneration(ss.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get generation: %w", err)
	}
	return g, nil
}

func (ss *SQLiteStorage) RecentGenerations(ctx context.Context, limit int, status string) ([]*models.Generation, error) {
	q := ss.builder.Select(generationColumns...).
		From("generations").
		OrderBy("created_at DESC", "id DESC")
	if status != "" {
		q = q.Where(squirrel.Eq{"status": status})
	}
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list generations sql: %w", err)
	}

	rows, err := ss.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	defer rows.Close()

	gens := make([]*models.Generation, 0)
	for rows.Next() {
		g, err := scanSQLiteGeneration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan generation: %w", err)
		}
		gens = append(gens, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate generations: %w", err)
	}
	return gens, nil
}

func (ss *SQLiteStorage) DeleteGenerationsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	query, args, err := ss.builder.Delete("generations").
		Where(squirrel.Lt{"created_at": unixNanos(cutoff)}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete generations sql: %w", err)
	}

	res, err := ss.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete generations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete generations: %w", err)
	}
	return int(n), nil
}

func (ss *SQLiteStorage) Ping(ctx context.Context) error {
	return ss.db.PingContext(ctx)
}

// Close closes the storage connection
func (ss *SQLiteStorage) Close() error {
	return ss.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteGeneration(row rowScanner) (*models.Generation, error) {
	var (
		g         models.Generation
		seed      sql.NullInt64
		createdAt int64
	)
	if err := row.Scan(
		&g.ID,
		&g.Prompt,
		&g.NegativePrompt,
		&g.Model,
		&g.Width,
		&g.Height,
		&g.Steps,
		&seed,
		&g.Status,
		&g.Error,
		&g.ArtifactName,
		&g.SizeBytes,
		&g.DurationMS,
		&createdAt,
	); err != nil {
		return nil, err
	}
	g.Seed = nullSeed(seed)
	g.CreatedAt = fromUnixNanos(createdAt)
	return &g, nil
}
