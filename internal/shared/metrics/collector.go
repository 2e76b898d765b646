package metrics

import (
	"context"
	"time"
)

// Job outcomes reported to RecordJob.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeRetried   = "retried"
)

type Collector interface {
	RecordJob(ctx context.Context, jobType string, outcome string, duration time.Duration)
	RecordHookFailure(ctx context.Context, jobType string, hook string)
	RecordJobStalled(ctx context.Context, count int)
	RecordDokkuCommand(ctx context.Context, command string, duration time.Duration, success bool)
	RecordEventDropped(topic string)
	Close() error
}

type NoOpCollector struct{}

func NewNoOpCollector() *NoOpCollector {
	return &NoOpCollector{}
}

func (c *NoOpCollector) RecordJob(ctx context.Context, jobType string, outcome string, duration time.Duration) {
}

func (c *NoOpCollector) RecordHookFailure(ctx context.Context, jobType string, hook string) {
}

func (c *NoOpCollector) RecordJobStalled(ctx context.Context, count int) {
}

func (c *NoOpCollector) RecordDokkuCommand(ctx context.Context, command string, duration time.Duration, success bool) {
}

func (c *NoOpCollector) RecordEventDropped(topic string) {
}

func (c *NoOpCollector) Close() error {
	return nil
}
