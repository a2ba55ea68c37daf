package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/claude/haeingest/internal/ingest"
)

// pointColumns is the number of bind parameters per row in the points upsert.
const pointColumns = 5

// maxRowsPerStatement keeps one INSERT well under PostgreSQL's 65535
// bind-parameter limit.
const maxRowsPerStatement = 1000

// Timescale wraps a pgxpool.Pool writing to the points hypertable.
type Timescale struct {
	Pool *pgxpool.Pool
}

// NewTimescale creates a new Timescale writer with a connection pool.
func NewTimescale(ctx context.Context, dsn string) (*Timescale, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &Timescale{Pool: pool}, nil
}

// Close closes the connection pool.
func (db *Timescale) Close() error {
	db.Pool.Close()
	return nil
}

// Ping checks database connectivity.
func (db *Timescale) Ping(ctx context.Context) error {
	if err := db.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}
	return nil
}

// WritePoints upserts points keyed by (measurement, tag_key, time). A point
// landing on an existing row merges its fields into the stored ones.
func (db *Timescale) WritePoints(ctx context.Context, points []ingest.Point) error {
	points = MergeByIdentity(points)
	if len(points) == 0 {
		return nil
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for start := 0; start < len(points); start += maxRowsPerStatement {
		end := min(start+maxRowsPerStatement, len(points))
		query, args, err := buildPointsUpsert(points[start:end])
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("inserting points: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing points: %w", err)
	}
	return nil
}

func buildPointsUpsert(points []ingest.Point) (string, []any, error) {
	query := `INSERT INTO points (time, measurement, tag_key, tags, fields)
VALUES `
	args := make([]any, 0, len(points)*pointColumns)
	valueStrings := make([]string, 0, len(points))

	for i, p := range points {
		tags, err := encodeJSON(tagsOrEmpty(p.Tags))
		if err != nil {
			return "", nil, err
		}
		fields, err := encodeJSON(p.Fields)
		if err != nil {
			return "", nil, err
		}
		base := i * pointColumns
		valueStrings = append(valueStrings, fmt.Sprintf(
			"($%d,$%d,$%d,$%d::jsonb,$%d::jsonb)",
			base+1, base+2, base+3, base+4, base+5,
		))
		args = append(args, p.Time.UTC(), p.Measurement, p.TagKey(), tags, fields)
	}

	query += strings.Join(valueStrings, ",") +
		` ON CONFLICT (measurement, tag_key, time) DO UPDATE
		  SET fields = points.fields || EXCLUDED.fields, tags = EXCLUDED.tags`
	return query, args, nil
}

func tagsOrEmpty(tags map[string]string) map[string]string {
	if tags == nil {
		return map[string]string{}
	}
	return tags
}

// RunMigrations applies all pending migrations from the given directory.
func RunMigrations(dsn, migrationsPath string) error {
	m, err := migrate.New("file://"+migrationsPath, dsn)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}
