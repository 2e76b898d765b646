package domain

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alex-galey/dokku-deployer/internal/events"
	"github.com/alex-galey/dokku-deployer/internal/jobs"
	app "github.com/alex-galey/dokku-deployer/internal/server-plugins/app/domain"
	"github.com/alex-galey/dokku-deployer/internal/shared/activity"
)

const (
	rebuildSucceededMessage = "App rebuilt successfully!"
	rebuildFailedMessage    = "Failed to rebuild app!"
)

// RebuildJob rebuilds an existing application from its last source (rebuild_app).
// It only streams to the live topic; status and log buffer are untouched.
type RebuildJob struct {
	manager   app.Manager
	activity  *activity.Log
	publisher events.Publisher
	logger    *slog.Logger
}

var _ jobs.Handler = (*RebuildJob)(nil)

func NewRebuildJob(manager app.Manager, activityLog *activity.Log, publisher events.Publisher, logger *slog.Logger) *RebuildJob {
	return &RebuildJob{
		manager:   manager,
		activity:  activityLog,
		publisher: publisher,
		logger:    logger,
	}
}

func referenceOf(p jobs.Payload) string {
	if p.AppID != "" {
		return p.AppID
	}
	return p.AppName
}

func (j *RebuildJob) sink(ctx context.Context, job *jobs.Job) *StreamSink {
	return NewStreamSink(ctx, StreamConfig{
		Topic:       events.TopicAppRebuilt,
		ReferenceID: referenceOf(job.Payload),
		JobID:       job.ID,
		Publisher:   j.publisher,
		Logger:      j.logger,
	})
}

func (j *RebuildJob) Execute(ctx context.Context, job *jobs.Job) (any, error) {
	if job.Payload.AppName == "" {
		return nil, fmt.Errorf("%w: app_name is required", ErrInvalidPayload)
	}

	if err := j.manager.Rebuild(ctx, job.Payload.AppName, j.sink(ctx, job)); err != nil {
		return nil, err
	}

	j.activity.Append(ctx, activity.Record{
		Name:          fmt.Sprintf("Rebuild of %q", job.Payload.AppName),
		ReferenceID:   referenceOf(job.Payload),
		RefersToModel: activity.ModelApp,
		Modifier:      job.Payload.UserName,
	})

	j.logger.Info("Application rebuilt", "app_name", job.Payload.AppName)
	return job.Payload.AppName, nil
}

func (j *RebuildJob) OnSuccess(ctx context.Context, job *jobs.Job, result any) error {
	j.sink(ctx, job).Succeed(rebuildSucceededMessage)
	return nil
}

func (j *RebuildJob) OnFailed(ctx context.Context, job *jobs.Job, cause error) error {
	j.sink(ctx, job).Fail(rebuildFailedMessage)
	return nil
}
