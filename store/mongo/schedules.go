package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/momentumcms/recurring"
	"github.com/momentumcms/recurring/id"
	"github.com/momentumcms/recurring/schedule"
)

// Create persists a new record and assigns its ID. The unique name index
// turns concurrent creates for one name into a single winner.
func (s *Store) Create(ctx context.Context, rec *schedule.Record) error {
	rec.ID = id.NewScheduleID()
	t := now()
	rec.CreatedAt = t
	rec.UpdatedAt = t

	_, err := s.col().InsertOne(ctx, toScheduleModel(rec))
	if err != nil {
		rec.ID = id.Nil
		if isDuplicateKey(err) {
			return recurring.ErrDuplicateSchedule
		}
		return fmt.Errorf("recurring/mongo: create schedule: %w", err)
	}
	return nil
}

// Get retrieves a record by ID.
func (s *Store) Get(ctx context.Context, scheduleID id.ScheduleID) (*schedule.Record, error) {
	var m scheduleModel
	err := s.col().FindOne(ctx, bson.M{"_id": scheduleID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, recurring.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("recurring/mongo: get schedule: %w", err)
	}
	return fromScheduleModel(&m)
}

// FindByName retrieves the record with the given name.
func (s *Store) FindByName(ctx context.Context, name string) (*schedule.Record, error) {
	var m scheduleModel
	err := s.col().FindOne(ctx, bson.M{"name": name}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, recurring.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("recurring/mongo: find schedule by name: %w", err)
	}
	return fromScheduleModel(&m)
}

// FindDue returns up to limit enabled records with NextRunAt at or before
// now, ordered by NextRunAt ascending. Served by the enabled/next_run_at
// index.
func (s *Store) FindDue(ctx context.Context, dueAt time.Time, limit int) ([]*schedule.Record, error) {
	filter := bson.M{
		"enabled":     true,
		"next_run_at": bson.M{"$lte": dueAt},
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "next_run_at", Value: 1}})
	if limit > 0 {
		findOpts = findOpts.SetLimit(int64(limit))
	}

	cursor, err := s.col().Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("recurring/mongo: find due schedules: %w", err)
	}
	defer cursor.Close(ctx)

	return decodeAll(ctx, cursor)
}

// List returns up to limit records, ordered by creation time.
func (s *Store) List(ctx context.Context, limit int) ([]*schedule.Record, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if limit > 0 {
		findOpts = findOpts.SetLimit(int64(limit))
	}

	cursor, err := s.col().Find(ctx, bson.M{}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("recurring/mongo: list schedules: %w", err)
	}
	defer cursor.Close(ctx)

	return decodeAll(ctx, cursor)
}

// Update replaces every mutable field of the stored record. ID and
// CreatedAt are excluded from the update document, so they cannot drift.
func (s *Store) Update(ctx context.Context, rec *schedule.Record) error {
	update := bson.M{"$set": bson.M{
		"name":        rec.Name,
		"job_type":    rec.JobType,
		"cron":        rec.Cron,
		"payload":     rec.Payload,
		"queue":       rec.Queue,
		"priority":    int(rec.Priority),
		"max_retries": rec.MaxRetries,
		"timeout_ms":  rec.Timeout.Milliseconds(),
		"enabled":     rec.Enabled,
		"last_run_at": rec.LastRunAt,
		"next_run_at": rec.NextRunAt,
		"updated_at":  now(),
	}}

	res, err := s.col().UpdateOne(ctx, bson.M{"_id": rec.ID.String()}, update)
	if err != nil {
		if isDuplicateKey(err) {
			return recurring.ErrDuplicateSchedule
		}
		return fmt.Errorf("recurring/mongo: update schedule: %w", err)
	}
	if res.MatchedCount == 0 {
		return recurring.ErrScheduleNotFound
	}
	return nil
}

// Advance records a claimed tick in a single write.
func (s *Store) Advance(ctx context.Context, scheduleID id.ScheduleID, lastRunAt, nextRunAt time.Time) error {
	res, err := s.col().UpdateOne(ctx,
		bson.M{"_id": scheduleID.String()},
		bson.M{"$set": bson.M{
			"last_run_at": lastRunAt,
			"next_run_at": nextRunAt,
			"updated_at":  now(),
		}},
	)
	if err != nil {
		return fmt.Errorf("recurring/mongo: advance schedule: %w", err)
	}
	if res.MatchedCount == 0 {
		return recurring.ErrScheduleNotFound
	}
	return nil
}

// Delete removes a record by ID.
func (s *Store) Delete(ctx context.Context, scheduleID id.ScheduleID) error {
	res, err := s.col().DeleteOne(ctx, bson.M{"_id": scheduleID.String()})
	if err != nil {
		return fmt.Errorf("recurring/mongo: delete schedule: %w", err)
	}
	if res.DeletedCount == 0 {
		return recurring.ErrScheduleNotFound
	}
	return nil
}

// decodeAll drains a cursor into records.
func decodeAll(ctx context.Context, cursor *mongod.Cursor) ([]*schedule.Record, error) {
	var models []scheduleModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("recurring/mongo: decode schedules: %w", err)
	}

	recs := make([]*schedule.Record, 0, len(models))
	for i := range models {
		rec, err := fromScheduleModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("recurring/mongo: convert schedule: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
