package activity

import (
	"context"
	"log/slog"
	"time"
)

// Model is the kind of entity an activity record refers to.
type Model string

const (
	ModelApp      Model = "App"
	ModelDatabase Model = "Database"
)

// Record is an immutable, user-attributed audit entry.
type Record struct {
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	ReferenceID   string    `json:"reference_id"`
	RefersToModel Model     `json:"refers_to_model"`
	Modifier      string    `json:"modifier"`
	CreatedAt     time.Time `json:"created_at"`
}

// Sink persists records. Implementations live in the storage packages.
type Sink interface {
	Record(ctx context.Context, record Record) error
}

// Reader lists the records about one entity, newest first.
type Reader interface {
	ListActivity(ctx context.Context, referenceID string, limit int) ([]Record, error)
}

type NoOpSink struct{}

func NewNoOpSink() *NoOpSink {
	return &NoOpSink{}
}

func (s *NoOpSink) Record(ctx context.Context, record Record) error {
	return nil
}

// Log is the fire-and-forget front of a Sink: write errors are logged, never returned.
type Log struct {
	sink   Sink
	logger *slog.Logger
	now    func() time.Time
}

func NewLog(sink Sink, logger *slog.Logger) *Log {
	return &Log{sink: sink, logger: logger, now: time.Now}
}

func (l *Log) Append(ctx context.Context, record Record) {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = l.now().UTC()
	}
	if err := l.sink.Record(ctx, record); err != nil {
		l.logger.Error("Failed to write activity record",
			"name", record.Name,
			"reference_id", record.ReferenceID,
			"error", err)
	}
}
