package storage

import (
	"database/sql"
	"sort"
	"time"

	"imagegen/internal/models"
)

// generationColumns is the column order shared by inserts and selects.
var generationColumns = []string{
	"id",
	"prompt",
	"negative_prompt",
	"model",
	"width",
	"height",
	"steps",
	"seed",
	"status",
	"error",
	"artifact_name",
	"size_bytes",
	"duration_ms",
	"created_at",
}

// upsertSuffix replaces the outcome fields of an existing row. Both SQLite and
// PostgreSQL accept this form.
const upsertSuffix = `ON CONFLICT (id) DO UPDATE SET
	status = excluded.status,
	error = excluded.error,
	artifact_name = excluded.artifact_name,
	size_bytes = excluded.size_bytes,
	duration_ms = excluded.duration_ms`

// seedValue converts a nullable seed for a query argument.
func seedValue(seed *int64) sql.NullInt64 {
	if seed == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *seed, Valid: true}
}

// nullSeed converts a nullable seed column.
func nullSeed(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	seed := v.Int64
	return &seed
}

// unixNanos stores timestamps as integers in SQLite so range deletes compare
// numerically.
func unixNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromUnixNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// copyGeneration returns a deep copy so callers cannot mutate stored state.
func copyGeneration(g *models.Generation) *models.Generation {
	c := *g
	if g.Seed != nil {
		seed := *g.Seed
		c.Seed = &seed
	}
	return &c
}

// newestFirst orders by creation time descending, then ID for stability.
func newestFirst(gens []*models.Generation) {
	sort.SliceStable(gens, func(i, j int) bool {
		if !gens[i].CreatedAt.Equal(gens[j].CreatedAt) {
			return gens[i].CreatedAt.After(gens[j].CreatedAt)
		}
		return gens[i].ID > gens[j].ID
	})
}

// filterRecent applies the status filter and limit to a newest-first slice.
func filterRecent(gens []*models.Generation, limit int, status string) []*models.Generation {
	out := make([]*models.Generation, 0, len(gens))
	for _, g := range gens {
		if status != "" && g.Status != status {
			continue
		}
		out = append(out, copyGeneration(g))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
