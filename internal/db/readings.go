package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// TimeLayout is how reading timestamps are stored (always UTC).
const TimeLayout = "2006-01-02 15:04:05.000000"

// Reading is one measurement attributed to a sensor.
type Reading struct {
	SensorID  int64     `json:"sensor_id"`
	Value     float64   `json:"reading"`
	Timestamp time.Time `json:"date_time"`
	Voltage   float64   `json:"voltage"`
}

// ReadingInserter adds readings inside an open transaction.
type ReadingInserter interface {
	InsertReading(ctx context.Context, r Reading) error
}

type readingTx struct {
	stmt *sql.Stmt
}

func (t *readingTx) InsertReading(ctx context.Context, r Reading) error {
	if _, err := t.stmt.ExecContext(ctx,
		r.SensorID, r.Value, r.Timestamp.UTC().Format(TimeLayout), r.Voltage,
	); err != nil {
		return fmt.Errorf("failed to insert reading for sensor %d: %w", r.SensorID, err)
	}
	return nil
}

// WithReadingTx runs fn with an inserter bound to a single transaction. Every
// reading inserted through it commits together or not at all.
func (db *DB) WithReadingTx(ctx context.Context, fn func(ReadingInserter) error) error {
	return db.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO readings (reading_sensor_id, reading, date_time, voltage) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare reading insert: %w", err)
		}
		defer stmt.Close()
		return fn(&readingTx{stmt: stmt})
	})
}

// ReadingsSince returns readings with a timestamp at or after since, oldest
// first.
func (db *DB) ReadingsSince(ctx context.Context, since time.Time) ([]Reading, error) {
	return db.queryReadings(ctx, `
		SELECT reading_sensor_id, reading, date_time, voltage
		FROM readings
		WHERE date_time >= ?
		ORDER BY date_time, reading_id`,
		since.UTC().Format(TimeLayout),
	)
}

// RecentReadings returns the newest limit readings, oldest first.
func (db *DB) RecentReadings(ctx context.Context, limit int) ([]Reading, error) {
	return db.queryReadings(ctx, `
		SELECT reading_sensor_id, reading, date_time, voltage FROM (
			SELECT reading_id, reading_sensor_id, reading, date_time, voltage
			FROM readings
			ORDER BY reading_id DESC
			LIMIT ?
		) ORDER BY reading_id`,
		limit,
	)
}

// CountReadings returns the number of stored readings.
func (db *DB) CountReadings(ctx context.Context) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM readings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count readings: %w", err)
	}
	return n, nil
}

func (db *DB) queryReadings(ctx context.Context, query string, args ...any) ([]Reading, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	var readings []Reading
	for rows.Next() {
		var (
			r       Reading
			ts      string
			voltage sql.NullFloat64
		)
		if err := rows.Scan(&r.SensorID, &r.Value, &ts, &voltage); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		if r.Timestamp, err = time.ParseInLocation(TimeLayout, ts, time.UTC); err != nil {
			return nil, fmt.Errorf("failed to parse reading time %q: %w", ts, err)
		}
		r.Voltage = voltage.Float64
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read readings: %w", err)
	}
	return readings, nil
}
