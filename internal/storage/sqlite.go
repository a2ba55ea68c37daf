package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/claude/haeingest/internal/ingest"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS points (
	measurement TEXT    NOT NULL,
	tag_key     TEXT    NOT NULL DEFAULT '',
	time        INTEGER NOT NULL,
	tags        TEXT    NOT NULL DEFAULT '{}',
	fields      TEXT    NOT NULL,
	PRIMARY KEY (measurement, tag_key, time)
);
CREATE TABLE IF NOT EXISTS import_logs (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at        TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	request_id        TEXT    NOT NULL,
	source            TEXT    NOT NULL,
	status            TEXT    NOT NULL,
	metrics_imported  INTEGER NOT NULL DEFAULT 0,
	workouts_imported INTEGER NOT NULL DEFAULT 0,
	points_written    INTEGER NOT NULL DEFAULT 0,
	entries_skipped   INTEGER NOT NULL DEFAULT 0,
	samples_skipped   INTEGER NOT NULL DEFAULT 0,
	duration_ms       INTEGER,
	error_message     TEXT,
	metadata          TEXT
);`

// SQLite stores points in a local SQLite file. Intended for development
// and single-user setups.
type SQLite struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (or creates) the SQLite database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating sqlite dir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// One writer at a time; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating sqlite schema: %w", err)
	}
	return &SQLite{db: db, path: path}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Ping checks the database is usable.
func (s *SQLite) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging sqlite: %w", err)
	}
	return nil
}

// WritePoints upserts points in one transaction, merging fields into any
// existing row with the same identity.
func (s *SQLite) WritePoints(ctx context.Context, points []ingest.Point) error {
	points = MergeByIdentity(points)
	if len(points) == 0 {
		return nil
	}
	return retryOnBusy(ctx, func() error {
		return s.writePoints(ctx, points)
	})
}

func (s *SQLite) writePoints(ctx context.Context, points []ingest.Point) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO points (measurement, tag_key, time, tags, fields)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (measurement, tag_key, time) DO UPDATE
		 SET fields = json_patch(points.fields, excluded.fields), tags = excluded.tags`)
	if err != nil {
		return fmt.Errorf("preparing points upsert: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		tags, err := encodeJSON(tagsOrEmpty(p.Tags))
		if err != nil {
			return err
		}
		fields, err := encodeJSON(p.Fields)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, p.Measurement, p.TagKey(), p.Time.UnixNano(), tags, fields); err != nil {
			return fmt.Errorf("upserting point %s: %w", p.Measurement, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing points: %w", err)
	}
	return nil
}

// QueryPoints returns stored points for a measurement ordered by time.
// Times are returned in UTC.
func (s *SQLite) QueryPoints(ctx context.Context, measurement string) ([]ingest.Point, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT measurement, time, tags, fields FROM points
		 WHERE measurement = ?
		 ORDER BY time ASC, tag_key ASC`,
		measurement)
	if err != nil {
		return nil, fmt.Errorf("querying points: %w", err)
	}
	defer rows.Close()

	var out []ingest.Point
	for rows.Next() {
		var (
			p            ingest.Point
			nanos        int64
			tags, fields string
		)
		if err := rows.Scan(&p.Measurement, &nanos, &tags, &fields); err != nil {
			return nil, fmt.Errorf("scanning point: %w", err)
		}
		p.Time = time.Unix(0, nanos).UTC()
		if err := json.Unmarshal([]byte(tags), &p.Tags); err != nil {
			return nil, fmt.Errorf("decoding tags: %w", err)
		}
		if len(p.Tags) == 0 {
			p.Tags = nil
		}
		if err := json.Unmarshal([]byte(fields), &p.Fields); err != nil {
			return nil, fmt.Errorf("decoding fields: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// InsertImportLog creates a new import log entry and returns its ID.
func (s *SQLite) InsertImportLog(ctx context.Context, log ImportLog) (int64, error) {
	var metadata *string
	if log.Metadata != nil {
		m := string(*log.Metadata)
		metadata = &m
	}
	var id int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO import_logs (request_id, source, status, metrics_imported, workouts_imported,
			 points_written, entries_skipped, samples_skipped, duration_ms, error_message, metadata)
			 VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
			log.RequestID, log.Source, log.Status, log.MetricsImported, log.WorkoutsImported,
			log.PointsWritten, log.EntriesSkipped, log.SamplesSkipped,
			log.DurationMs, log.ErrorMessage, metadata,
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("inserting import log: %w", err)
	}
	return id, nil
}

// QueryImportLogs returns the most recent import logs.
func (s *SQLite) QueryImportLogs(ctx context.Context, limit int) ([]ImportLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, request_id, source, status, metrics_imported, workouts_imported,
		 points_written, entries_skipped, samples_skipped, duration_ms, error_message, metadata
		 FROM import_logs
		 ORDER BY id DESC
		 LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("querying import logs: %w", err)
	}
	defer rows.Close()

	var result []ImportLog
	for rows.Next() {
		var (
			l          ImportLog
			durationMs sql.NullInt64
			errMsg     sql.NullString
			metadata   sql.NullString
		)
		if err := rows.Scan(&l.ID, &l.CreatedAt, &l.RequestID, &l.Source, &l.Status,
			&l.MetricsImported, &l.WorkoutsImported, &l.PointsWritten, &l.EntriesSkipped,
			&l.SamplesSkipped, &durationMs, &errMsg, &metadata); err != nil {
			return nil, fmt.Errorf("scanning import log: %w", err)
		}
		if durationMs.Valid {
			ms := int(durationMs.Int64)
			l.DurationMs = &ms
		}
		if errMsg.Valid {
			l.ErrorMessage = &errMsg.String
		}
		if metadata.Valid {
			raw := json.RawMessage(metadata.String)
			l.Metadata = &raw
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
