package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"imagegen/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS generations (
	id              TEXT PRIMARY KEY,
	prompt          TEXT NOT NULL,
	negative_prompt TEXT NOT NULL DEFAULT '',
	model           TEXT NOT NULL,
	width           INTEGER NOT NULL,
	height          INTEGER NOT NULL,
	steps           INTEGER NOT NULL,
	seed            BIGINT,
	status          TEXT NOT NULL,
	error           TEXT NOT NULL DEFAULT '',
	artifact_name   TEXT NOT NULL DEFAULT '',
	size_bytes      BIGINT NOT NULL DEFAULT 0,
	duration_ms     BIGINT NOT NULL DEFAULT 0,
	created_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_generations_created_at ON generations (created_at DESC)`

// pgPool is the subset of *pgxpool.Pool the store needs.
type pgPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStorage persists generation history in PostgreSQL.
type PostgresStorage struct {
	pool    pgPool
	builder squirrel.StatementBuilderType
}

// NewPostgresStorage connects, verifies the connection, and creates the schema.
func NewPostgresStorage(config Config) (*PostgresStorage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for PostgreSQL storage")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if config.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = config.ConnMaxLifetime
	}

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	ps := newPostgresStorage(pool)
	if err := ps.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return ps, nil
}

func newPostgresStorage(pool pgPool) *PostgresStorage {
	return &PostgresStorage{
		pool:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (ps *PostgresStorage) migrate(ctx context.Context) error {
	if _, err := ps.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (ps *PostgresStorage) SaveGeneration(ctx context.Context, g *models.Generation) error {
	query, args, err := ps.builder.Insert("generations").
		Columns(generationColumns...).
		Values(
			g.ID,
			g.Prompt,
			g.NegativePrompt,
			g.Model,
			g.Width,
			g.Height,
			g.Steps,
			g.Seed,
			g.Status,
			g.Error,
			g.ArtifactName,
			g.SizeBytes,
			g.DurationMS,
			g.CreatedAt.UTC(),
		).
		Suffix(upsertSuffix).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert generation sql: %w", err)
	}

	if _, err := ps.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert generation: %w", err)
	}
	return nil
}

func (ps *PostgresStorage) GetGeneration(ctx context.Context, id string) (*models.Generation, error) {
	query, args, err := ps.builder.Select(generationColumns...).
		From("generations").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select generation sql: %w", err)
	}

	g, err := scanPostgresGeneration(ps.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get generation: %w", err)
	}
	return g, nil
}

func (ps *PostgresStorage) RecentGenerations(ctx context.Context, limit int, status string) ([]*models.Generation, error) {
	q := ps.builder.Select(generationColumns...).
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

	rows, err := ps.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	defer rows.Close()

	gens := make([]*models.Generation, 0)
	for rows.Next() {
		g, err := scanPostgresGeneration(rows)
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

func (ps *PostgresStorage) DeleteGenerationsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	query, args, err := ps.builder.Delete("generations").
		Where(squirrel.Lt{"created_at": cutoff.UTC()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete generations sql: %w", err)
	}

	tag, err := ps.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete generations: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Ping verifies the storage backend is reachable and operational.
func (ps *PostgresStorage) Ping(ctx context.Context) error {
	return ps.pool.Ping(ctx)
}

// Close closes the connection pool.
func (ps *PostgresStorage) Close() error {
	ps.pool.Close()
	return nil
}

func scanPostgresGeneration(row rowScanner) (*models.Generation, error) {
	var g models.Generation
	if err := row.Scan(
		&g.ID,
		&g.Prompt,
		&g.NegativePrompt,
		&g.Model,
		&g.Width,
		&g.Height,
		&g.Steps,
		&g.Seed,
		&g.Status,
		&g.Error,
		&g.ArtifactName,
		&g.SizeBytes,
		&g.DurationMS,
		&g.CreatedAt,
	); err != nil {
		return nil, err
	}
	g.CreatedAt = g.CreatedAt.UTC()
	return &g, nil
}
