package mongo

import (
	"fmt"
	"time"

	"github.com/momentumcms/recurring/id"
	"github.com/momentumcms/recurring/schedule"
)

// scheduleModel is the BSON shape of a schedule record. Timeout is stored
// in milliseconds to keep the documents free of driver-specific duration
// encodings.
type scheduleModel struct {
	ID         string     `bson:"_id"`
	Name       string     `bson:"name"`
	JobType    string     `bson:"job_type"`
	Cron       string     `bson:"cron"`
	Payload    []byte     `bson:"payload,omitempty"`
	Queue      string     `bson:"queue"`
	Priority   int        `bson:"priority"`
	MaxRetries int        `bson:"max_retries"`
	TimeoutMS  int64      `bson:"timeout_ms"`
	Enabled    bool       `bson:"enabled"`
	LastRunAt  *time.Time `bson:"last_run_at,omitempty"`
	NextRunAt  time.Time  `bson:"next_run_at"`
	CreatedAt  time.Time  `bson:"created_at"`
	UpdatedAt  time.Time  `bson:"updated_at"`
}

func toScheduleModel(rec *schedule.Record) *scheduleModel {
	return &scheduleModel{
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

func fromScheduleModel(m *scheduleModel) (*schedule.Record, error) {
	recID, err := id.ParseScheduleID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("recurring/mongo: parse schedule id: %w", err)
	}

	return &schedule.Record{
		ID:         recID,
		Name:       m.Name,
		JobType:    m.JobType,
		Cron:       m.Cron,
		Payload:    m.Payload,
		Queue:      m.Queue,
		Priority:   schedule.Priority(m.Priority),
		MaxRetries: m.MaxRetries,
		Timeout:    time.Duration(m.TimeoutMS) * time.Millisecond,
		Enabled:    m.Enabled,
		LastRunAt:  m.LastRunAt,
		NextRunAt:  m.NextRunAt,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}, nil
}
