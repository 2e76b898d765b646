package domain

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alex-galey/dokku-deployer/internal/events"
	"github.com/alex-galey/dokku-deployer/internal/jobs"
	app "github.com/alex-galey/dokku-deployer/internal/server-plugins/app/domain"
	database "github.com/alex-galey/dokku-deployer/internal/server-plugins/database/domain"
	"github.com/alex-galey/dokku-deployer/internal/shared/activity"
)

const (
	linkSucceededMessage = "Database linked successfully!"
	linkFailedMessage    = "Failed to link database!"
)

// LinkResult is returned by LinkDatabaseJob.Execute.
type LinkResult struct {
	DatabaseName  string
	AppName       string
	AlreadyLinked bool
}

// LinkDatabaseJob links a Dokku service to an application (link_database).
type LinkDatabaseJob struct {
	apps      app.Repository
	databases database.Repository
	manager   database.Manager
	activity  *activity.Log
	publisher events.Publisher
	logger    *slog.Logger
}

var _ jobs.Handler = (*LinkDatabaseJob)(nil)

func NewLinkDatabaseJob(
	apps app.Repository,
	databases database.Repository,
	manager database.Manager,
	activityLog *activity.Log,
	publisher events.Publisher,
	logger *slog.Logger,
) *LinkDatabaseJob {
	return &LinkDatabaseJob{
		apps:      apps,
		databases: databases,
		manager:   manager,
		activity:  activityLog,
		publisher: publisher,
		logger:    logger,
	}
}

func (j *LinkDatabaseJob) sink(ctx context.Context, job *jobs.Job) *StreamSink {
	return NewStreamSink(ctx, StreamConfig{
		Topic:       events.TopicDatabaseLinked,
		ReferenceID: job.Payload.DatabaseID,
		JobID:       job.ID,
		Publisher:   j.publisher,
		Logger:      j.logger,
	})
}

func (j *LinkDatabaseJob) Execute(ctx context.Context, job *jobs.Job) (any, error) {
	if job.Payload.DatabaseID == "" || job.Payload.AppID == "" {
		return nil, fmt.Errorf("%w: database_id and app_id are required", ErrInvalidPayload)
	}

	membership, err := j.databases.FetchWithMembership(ctx, job.Payload.DatabaseID, job.Payload.AppID)
	if err != nil {
		return nil, fmt.Errorf("failed to load database %s: %w", job.Payload.DatabaseID, err)
	}
	application, err := j.apps.Get(ctx, job.Payload.AppID)
	if err != nil {
		return nil, fmt.Errorf("failed to load application %s: %w", job.Payload.AppID, err)
	}

	result := &LinkResult{DatabaseName: membership.Database.Name, AppName: application.Name}
	// A redelivered job may find the link already in place.
	if membership.Linked {
		result.AlreadyLinked = true
		return result, nil
	}

	if err := j.manager.Link(ctx, membership.Database, application.Name, j.sink(ctx, job)); err != nil {
		return nil, err
	}
	if _, err := j.databases.AddMember(ctx, membership.Database.ID, application.ID); err != nil {
		return nil, fmt.Errorf("failed to record link of %s with %s: %w", membership.Database.Name, application.Name, err)
	}
	return result, nil
}

func (j *LinkDatabaseJob) OnSuccess(ctx context.Context, job *jobs.Job, result any) error {
	j.sink(ctx, job).Succeed(linkSucceededMessage)

	linked, ok := result.(*LinkResult)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnexpectedResult, result)
	}
	if linked.AlreadyLinked {
		j.logger.Info("Database was already linked",
			"database", linked.DatabaseName,
			"app_name", linked.AppName)
		return nil
	}

	j.activity.Append(ctx, activity.Record{
		Name:          fmt.Sprintf("Database %q linked with %q", linked.DatabaseName, linked.AppName),
		ReferenceID:   job.Payload.DatabaseID,
		RefersToModel: activity.ModelDatabase,
		Modifier:      job.Payload.UserName,
	})
	return nil
}

func (j *LinkDatabaseJob) OnFailed(ctx context.Context, job *jobs.Job, cause error) error {
	j.sink(ctx, job).Fail(linkFailedMessage)
	return nil
}
