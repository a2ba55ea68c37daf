package storage

import (
	"context"
	"fmt"
)

// InsertImportLog creates a new import log entry and returns its ID.
func (db *Timescale) InsertImportLog(ctx context.Context, log ImportLog) (int64, error) {
	var id int64
	err := db.Pool.QueryRow(ctx,
		`INSERT INTO import_logs (request_id, source, status, metrics_imported, workouts_imported,
		 points_written, entries_skipped, samples_skipped, duration_ms, error_message, metadata)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		 RETURNING id`,
		log.RequestID, log.Source, log.Status, log.MetricsImported, log.WorkoutsImported,
		log.PointsWritten, log.EntriesSkipped, log.SamplesSkipped,
		log.DurationMs, log.ErrorMessage, log.Metadata,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting import log: %w", err)
	}
	return id, nil
}

// QueryImportLogs returns the most recent import logs.
func (db *Timescale) QueryImportLogs(ctx context.Context, limit int) ([]ImportLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Pool.Query(ctx,
		`SELECT id, created_at, request_id, source, status, metrics_imported, workouts_imported,
		 points_written, entries_skipped, samples_skipped, duration_ms, error_message, metadata
		 FROM import_logs
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("querying import logs: %w", err)
	}
	defer rows.Close()

	var result []ImportLog
	for rows.Next() {
		var l ImportLog
		if err := rows.Scan(&l.ID, &l.CreatedAt, &l.RequestID, &l.Source, &l.Status,
			&l.MetricsImported, &l.WorkoutsImported, &l.PointsWritten, &l.EntriesSkipped,
			&l.SamplesSkipped, &l.DurationMs, &l.ErrorMessage, &l.Metadata); err != nil {
			return nil, fmt.Errorf("scanning import log: %w", err)
		}
		result = append(result, l)
	}
	return result, rows.Err()
}
