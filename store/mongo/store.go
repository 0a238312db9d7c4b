// Package mongo implements the schedule store on MongoDB using the
// official driver (v2). The caller owns the client lifecycle; the Store
// never closes it.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/momentumcms/recurring/schedule"
)

// colSchedules is the collection holding schedule records.
const colSchedules = "recurring_schedules"

// Ensure Store implements the schedule contract at compile time.
var _ schedule.Store = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Store is a MongoDB implementation of the schedule store.
type Store struct {
	db     *mongod.Database
	logger *slog.Logger
}

// New creates a new MongoDB store on the given database. The caller owns
// the underlying client lifecycle — the Store will not close it.
func New(db *mongod.Database, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates the schedule collection indexes: a unique name index
// for upsert-by-name, and a compound enabled/next_run_at index backing
// the due scan.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := []mongod.IndexModel{
		{
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{
			{Key: "enabled", Value: 1},
			{Key: "next_run_at", Value: 1},
		}},
	}

	_, err := s.col().Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("recurring/mongo: migrate indexes: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

// Close is a no-op because the caller owns the client lifecycle.
func (s *Store) Close() error {
	return nil
}

func (s *Store) col() *mongod.Collection {
	return s.db.Collection(colSchedules)
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments returns true when err indicates no documents found.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

// isDuplicateKey checks if a MongoDB error is a duplicate key violation.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "duplicate key") ||
		strings.Contains(err.Error(), "E11000")
}
