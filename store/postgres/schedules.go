package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/momentumcms/recurring"
	"github.com/momentumcms/recurring/id"
	"github.com/momentumcms/recurring/schedule"
)

const scheduleColumns = `
	id, name, job_type, cron, payload, queue,
	priority, max_retries, timeout_ms, enabled,
	last_run_at, next_run_at, created_at, updated_at`

// Create persists a new record and assigns its ID. The unique constraint
// on name turns concurrent creates for one name into a single winner.
func (s *Store) Create(ctx context.Context, rec *schedule.Record) error {
	rec.ID = id.NewScheduleID()
	t := time.Now().UTC()
	rec.CreatedAt = t
	rec.UpdatedAt = t

	_, err := s.pool.Exec(ctx, `
		INSERT INTO recurring_schedules (
			id, name, job_type, cron, payload, queue,
			priority, max_retries, timeout_ms, enabled,
			last_run_at, next_run_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		rec.ID.String(), rec.Name, rec.JobType, rec.Cron, rec.Payload, rec.Queue,
		int(rec.Priority), rec.MaxRetries, rec.Timeout.Milliseconds(), rec.Enabled,
		rec.LastRunAt, rec.NextRunAt, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		rec.ID = id.Nil
		if isDuplicateKey(err) {
			return recurring.ErrDuplicateSchedule
		}
		return fmt.Errorf("recurring/postgres: create schedule: %w", err)
	}
	return nil
}

// Get retrieves a record by ID.
func (s *Store) Get(ctx context.Context, scheduleID id.ScheduleID) (*schedule.Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT`+scheduleColumns+` FROM recurring_schedules WHERE id = $1`,
		scheduleID.String(),
	)

	rec, err := scanSchedule(row)
	if err != nil {
		if isNoRows(err) {
			return nil, recurring.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("recurring/postgres: get schedule: %w", err)
	}
	return rec, nil
}

// FindByName retrieves the record with the given name.
func (s *Store) FindByName(ctx context.Context, name string) (*schedule.Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT`+scheduleColumns+` FROM recurring_schedules WHERE name = $1`,
		name,
	)

	rec, err := scanSchedule(row)
	if err != nil {
		if isNoRows(err) {
			return nil, recurring.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("recurring/postgres: find schedule by name: %w", err)
	}
	return rec, nil
}

// FindDue returns up to limit enabled records with next_run_at at or
// before now, ordered ascending. Served by the partial due index.
func (s *Store) FindDue(ctx context.Context, dueAt time.Time, limit int) ([]*schedule.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT`+scheduleColumns+`
		FROM recurring_schedules
		WHERE enabled AND next_run_at <= $1
		ORDER BY next_run_at ASC
		LIMIT $2`,
		dueAt, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recurring/postgres: find due schedules: %w", err)
	}
	defer rows.Close()

	return collectSchedules(rows)
}

// List returns up to limit records, ordered by creation time.
func (s *Store) List(ctx context.Context, limit int) ([]*schedule.Record, error) {
	q := `SELECT` + scheduleColumns + ` FROM recurring_schedules ORDER BY created_at ASC`
	var (
		rows pgx.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.pool.Query(ctx, q+` LIMIT $1`, limit)
	} else {
		rows, err = s.pool.Query(ctx, q)
	}
	if err != nil {
		return nil, fmt.Errorf("recurring/postgres: list schedules: %w", err)
	}
	defer rows.Close()

	return collectSchedules(rows)
}

// Update replaces every mutable field of the stored record.
func (s *Store) Update(ctx context.Context, rec *schedule.Record) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE recurring_schedules
		SET name = $2, job_type = $3, cron = $4, payload = $5, queue = $6,
		    priority = $7, max_retries = $8, timeout_ms = $9, enabled = $10,
		    last_run_at = $11, next_run_at = $12, updated_at = NOW()
		WHERE id = $1`,
		rec.ID.String(), rec.Name, rec.JobType, rec.Cron, rec.Payload, rec.Queue,
		int(rec.Priority), rec.MaxRetries, rec.Timeout.Milliseconds(), rec.Enabled,
		rec.LastRunAt, rec.NextRunAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return recurring.ErrDuplicateSchedule
		}
		return fmt.Errorf("recurring/postgres: update schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return recurring.ErrScheduleNotFound
	}
	return nil
}

// Advance records a claimed tick in a single statement.
func (s *Store) Advance(ctx context.Context, scheduleID id.ScheduleID, lastRunAt, nextRunAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE recurring_schedules
		SET last_run_at = $2, next_run_at = $3, updated_at = NOW()
		WHERE id = $1`,
		scheduleID.String(), lastRunAt, nextRunAt,
	)
	if err != nil {
		return fmt.Errorf("recurring/postgres: advance schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return recurring.ErrScheduleNotFound
	}
	return nil
}

// Delete removes a record by ID.
func (s *Store) Delete(ctx context.Context, scheduleID id.ScheduleID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM recurring_schedules WHERE id = $1`,
		scheduleID.String(),
	)
	if err != nil {
		return fmt.Errorf("recurring/postgres: delete schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return recurring.ErrScheduleNotFound
	}
	return nil
}

// scanSchedule scans one row into a record.
func scanSchedule(row pgx.Row) (*schedule.Record, error) {
	var (
		rec       schedule.Record
		rawID     string
		priority  int
		timeoutMS int64
	)
	err := row.Scan(
		&rawID, &rec.Name, &rec.JobType, &rec.Cron, &rec.Payload, &rec.Queue,
		&priority, &rec.MaxRetries, &timeoutMS, &rec.Enabled,
		&rec.LastRunAt, &rec.NextRunAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.ID, err = id.ParseScheduleID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse schedule id: %w", err)
	}
	rec.Priority = schedule.Priority(priority)
	rec.Timeout = time.Duration(timeoutMS) * time.Millisecond
	return &rec, nil
}

func collectSchedules(rows pgx.Rows) ([]*schedule.Record, error) {
	var recs []*schedule.Record
	for rows.Next() {
		rec, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("recurring/postgres: scan schedule row: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recurring/postgres: iterate schedule rows: %w", err)
	}
	return recs, nil
}
