package redis

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/momentumcms/recurring"
	"github.com/momentumcms/recurring/id"
	"github.com/momentumcms/recurring/schedule"
)

// scheduleEntity is the JSON shape of a record in Redis.
type scheduleEntity struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	JobType    string     `json:"job_type"`
	Cron       string     `json:"cron"`
	Payload    []byte     `json:"payload,omitempty"`
	Queue      string     `json:"queue"`
	Priority   int        `json:"priority"`
	MaxRetries int        `json:"max_retries"`
	TimeoutMS  int64      `json:"timeout_ms"`
	Enabled    bool       `json:"enabled"`
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
	NextRunAt  time.Time  `json:"next_run_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func toScheduleEntity(rec *schedule.Record) *scheduleEntity {
	return &scheduleEntity{
		ID:         rec.ID.String(),
		Name:       rec.Name,
		JobType:    rec.JobType,
		Cron:       rec.Cron,
		Payload:    rec.Payload,
		Queue:      rec.Queue,
		Priority:   int(rec.Priority),
		MaxRetries: rec.MaxRetries,
		TimeoutMS:  rec.Timeout.Milliseconds(),
		Enabled:    rec.Enabled,
		LastRunAt:  rec.LastRunAt,
		NextRunAt:  rec.NextRunAt,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	}
}

func fromScheduleEntity(e *scheduleEntity) (*schedule.Record, error) {
	recID, err := id.ParseScheduleID(e.ID)
	if err != nil {
		return nil, fmt.Errorf("recurring/redis: parse schedule id: %w", err)
	}

	return &schedule.Record{
		ID:         recID,
		Name:       e.Name,
		JobType:    e.JobType,
		Cron:       e.Cron,
		Payload:    e.Payload,
		Queue:      e.Queue,
		Priority:   schedule.Priority(e.Priority),
		MaxRetries: e.MaxRetries,
		Timeout:    time.Duration(e.TimeoutMS) * time.Millisecond,
		Enabled:    e.Enabled,
		LastRunAt:  e.LastRunAt,
		NextRunAt:  e.NextRunAt,
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
	}, nil
}

// Create persists a new record and assigns its ID. The name is claimed
// with HSetNX, so concurrent creates for one name get a single winner.
func (s *Store) Create(ctx context.Context, rec *schedule.Record) error {
	rec.ID = id.NewScheduleID()
	t := time.Now().UTC()
	rec.CreatedAt = t
	rec.UpdatedAt = t
	recID := rec.ID.String()

	claimed, err := s.client.HSetNX(ctx, scheduleNamesKey, rec.Name, recID).Result()
	if err != nil {
		rec.ID = id.Nil
		return fmt.Errorf("recurring/redis: create schedule claim name: %w", err)
	}
	if !claimed {
		rec.ID = id.Nil
		return recurring.ErrDuplicateSchedule
	}

	if err := s.setRecord(ctx, scheduleKey(recID), toScheduleEntity(rec)); err != nil {
		return fmt.Errorf("recurring/redis: create schedule set: %w", err)
	}
	if err := s.client.SAdd(ctx, scheduleIDsKey, recID).Err(); err != nil {
		return fmt.Errorf("recurring/redis: create schedule index: %w", err)
	}
	return nil
}

// Get retrieves a record by ID.
func (s *Store) Get(ctx context.Context, scheduleID id.ScheduleID) (*schedule.Record, error) {
	e, err := s.getRecord(ctx, scheduleKey(scheduleID.String()))
	if err != nil {
		if isRedisNil(err) {
			return nil, recurring.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("recurring/redis: get schedule: %w", err)
	}
	return fromScheduleEntity(e)
}

// FindByName retrieves the record with the given name via the name index.
func (s *Store) FindByName(ctx context.Context, name string) (*schedule.Record, error) {
	recID, err := s.client.HGet(ctx, scheduleNamesKey, name).Result()
	if err != nil {
		if isRedisNil(err) {
			return nil, recurring.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("recurring/redis: find schedule by name: %w", err)
	}

	rec, err := s.Get(ctx, id.MustParse(recID))
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// FindDue returns up to limit enabled records with NextRunAt at or before
// now, ordered by NextRunAt ascending. The record set is enumerated and
// filtered client-side; schedule counts are small (hundreds, not
// millions), matching the bounded page the scanner requests.
func (s *Store) FindDue(ctx context.Context, dueAt time.Time, limit int) ([]*schedule.Record, error) {
	recs, err := s.all(ctx)
	if err != nil {
		return nil, err
	}

	due := recs[:0]
	for _, rec := range recs {
		if rec.Enabled && !rec.NextRunAt.After(dueAt) {
			due = append(due, rec)
		}
	}

	sort.Slice(due, func(i, k int) bool {
		return due[i].NextRunAt.Before(due[k].NextRunAt)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// List returns up to limit records, ordered by creation time.
func (s *Store) List(ctx context.Context, limit int) ([]*schedule.Record, error) {
	recs, err := s.all(ctx)
	if err != nil {
		return nil, err
	}

	sort.Slice(recs, func(i, k int) bool {
		return recs[i].CreatedAt.Before(recs[k].CreatedAt)
	})

	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// Update replaces the stored record, keeping ID and CreatedAt and
// re-pointing the name index if the name changed.
func (s *Store) Update(ctx context.Context, rec *schedule.Record) error {
	key := scheduleKey(rec.ID.String())

	existing, err := s.getRecord(ctx, key)
	if err != nil {
		if isRedisNil(err) {
			return recurring.ErrScheduleNotFound
		}
		return fmt.Errorf("recurring/redis: update schedule get: %w", err)
	}

	if existing.Name != rec.Name {
		claimed, claimErr := s.client.HSetNX(ctx, scheduleNamesKey, rec.Name, rec.ID.String()).Result()
		if claimErr != nil {
			return fmt.Errorf("recurring/redis: update schedule claim name: %w", claimErr)
		}
		if !claimed {
			return recurring.ErrDuplicateSchedule
		}
		if delErr := s.client.HDel(ctx, scheduleNamesKey, existing.Name).Err(); delErr != nil {
			return fmt.Errorf("recurring/redis: update schedule name index: %w", delErr)
		}
	}

	e := toScheduleEntity(rec)
	e.CreatedAt = existing.CreatedAt
	e.UpdatedAt = time.Now().UTC()
	return s.setRecord(ctx, key, e)
}

// Advance records a claimed tick.
func (s *Store) Advance(ctx context.Context, scheduleID id.ScheduleID, lastRunAt, nextRunAt time.Time) error {
	key := scheduleKey(scheduleID.String())

	e, err := s.getRecord(ctx, key)
	if err != nil {
		if isRedisNil(err) {
			return recurring.ErrScheduleNotFound
		}
		return fmt.Errorf("recurring/redis: advance schedule get: %w", err)
	}

	last := lastRunAt
	e.LastRunAt = &last
	e.NextRunAt = nextRunAt
	e.UpdatedAt = time.Now().UTC()
	return s.setRecord(ctx, key, e)
}

// Delete removes a record and its index entries.
func (s *Store) Delete(ctx context.Context, scheduleID id.ScheduleID) error {
	recID := scheduleID.String()
	key := scheduleKey(recID)

	e, err := s.getRecord(ctx, key)
	if err != nil {
		if isRedisNil(err) {
			return recurring.ErrScheduleNotFound
		}
		return fmt.Errorf("recurring/redis: delete schedule get: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, scheduleIDsKey, recID)
	pipe.HDel(ctx, scheduleNamesKey, e.Name)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("recurring/redis: delete schedule: %w", err)
	}
	return nil
}

// all loads every record. Records that vanish between the ID scan and the
// load (concurrent delete) are skipped.
func (s *Store) all(ctx context.Context) ([]*schedule.Record, error) {
	ids, err := s.client.SMembers(ctx, scheduleIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("recurring/redis: list schedule ids: %w", err)
	}

	recs := make([]*schedule.Record, 0, len(ids))
	for _, recID := range ids {
		e, getErr := s.getRecord(ctx, scheduleKey(recID))
		if getErr != nil {
			if isRedisNil(getErr) {
				continue
			}
			return nil, fmt.Errorf("recurring/redis: load schedule %s: %w", recID, getErr)
		}
		rec, convErr := fromScheduleEntity(e)
		if convErr != nil {
			s.logger.Warn("skipping undecodable schedule record",
				slog.String("schedule_id", recID),
				slog.String("error", convErr.Error()),
			)
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
