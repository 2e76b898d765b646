package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alex-galey/dokku-deployer/internal/events"
	"github.com/alex-galey/dokku-deployer/internal/jobs"
	app "github.com/alex-galey/dokku-deployer/internal/server-plugins/app/domain"
	proxy "github.com/alex-galey/dokku-deployer/internal/server-plugins/proxy/domain"
	"github.com/alex-galey/dokku-deployer/internal/shared/activity"
)

const (
	deploySucceededMessage = "App created successfully!"
	deployFailedMessage    = "Failed to create app!"
)

// DeployResult is returned by the deploy variants' Execute.
type DeployResult struct {
	Application *app.Application
	Proxy       proxy.ReconcileResult
}

// deployer holds what both deploy variants share: preparing the application
// record, proxy setup and the success/failure hooks.
type deployer struct {
	apps       app.Repository
	manager    app.Manager
	reconciler *proxy.Reconciler
	linker     *Linker
	activity   *activity.Log
	publisher  events.Publisher
	logger     *slog.Logger
}

func (d *deployer) sink(ctx context.Context, job *jobs.Job) *StreamSink {
	return NewStreamSink(ctx, StreamConfig{
		Topic:       events.TopicAppCreated,
		ReferenceID: job.Payload.AppID,
		JobID:       job.ID,
		Publisher:   d.publisher,
		Logger:      d.logger,
		Apps:        d.apps,
		AppID:       job.Payload.AppID,
	})
}

// prepare loads the application, marks it building and starts a fresh log buffer.
func (d *deployer) prepare(ctx context.Context, job *jobs.Job) (*app.Application, error) {
	if job.Payload.AppID == "" {
		return nil, fmt.Errorf("%w: app_id is required", ErrInvalidPayload)
	}
	application, err := d.apps.Get(ctx, job.Payload.AppID)
	if err != nil {
		return nil, fmt.Errorf("failed to load application %s: %w", job.Payload.AppID, err)
	}
	if err := d.apps.UpdateStatus(ctx, application.ID, app.StatusBuilding); err != nil {
		return nil, fmt.Errorf("failed to mark %s as building: %w", application.Name, err)
	}
	if err := d.apps.ClearLogs(ctx, application.ID); err != nil {
		return nil, fmt.Errorf("failed to clear logs of %s: %w", application.Name, err)
	}
	return application, nil
}

// succeed runs the shared OnSuccess steps. describe renders the activity
// description from the reloaded application.
func (d *deployer) succeed(ctx context.Context, job *jobs.Job, describe func(*app.Application) string) error {
	d.sink(ctx, job).Succeed(deploySucceededMessage)

	application, err := d.apps.Get(ctx, job.Payload.AppID)
	if err != nil {
		return fmt.Errorf("failed to reload application %s: %w", job.Payload.AppID, err)
	}

	var errs []error
	if err := d.apps.UpdateStatus(ctx, application.ID, app.StatusRunning); err != nil {
		errs = append(errs, fmt.Errorf("failed to mark %s as running: %w", application.Name, err))
	}

	d.activity.Append(ctx, activity.Record{
		Name:          fmt.Sprintf("Project %q launched", application.Name),
		Description:   describe(application),
		ReferenceID:   application.ID,
		RefersToModel: activity.ModelApp,
		Modifier:      job.Payload.UserName,
	})

	if err := d.requestLink(ctx, job, application.Name); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// fail publishes the failure and compensates: the application is destroyed when
// DeleteOnFailed holds, otherwise it goes back to idle.
func (d *deployer) fail(ctx context.Context, job *jobs.Job, cause error) error {
	d.sink(ctx, job).Fail(deployFailedMessage)

	log := d.logger.With("job_id", job.ID, "app_id", job.Payload.AppID)

	application, err := d.apps.Get(ctx, job.Payload.AppID)
	if err != nil {
		if errors.Is(err, app.ErrApplicationNotFound) {
			log.Warn("Application vanished before compensation, nothing to roll back")
			return fmt.Errorf("%w: %s", ErrApplicationAbsent, job.Payload.AppID)
		}
		return fmt.Errorf("failed to reload application %s: %w", job.Payload.AppID, err)
	}

	var errs []error
	if job.Payload.ShouldDeleteOnFailed() {
		if err := d.apps.Delete(ctx, application.ID); err != nil {
			errs = append(errs, fmt.Errorf("failed to delete application record %s: %w", application.ID, err))
		}
		if err := d.manager.Destroy(ctx, application.Name); err != nil {
			errs = append(errs, err)
		}
		if job.Payload.DatabaseID != "" {
			log.Info("Skipping database link by policy: delete_on_failed removes the application",
				"database_id", job.Payload.DatabaseID)
		}
		log.Info("Failed deployment rolled back", "app_name", application.Name)
		return errors.Join(errs...)
	}

	if err := d.apps.UpdateStatus(ctx, application.ID, app.StatusIdle); err != nil {
		errs = append(errs, fmt.Errorf("failed to mark %s as idle: %w", application.Name, err))
	}
	d.activity.Append(ctx, activity.Record{
		Name:          fmt.Sprintf("Launch of %q failed", application.Name),
		Description:   cause.Error(),
		ReferenceID:   application.ID,
		RefersToModel: activity.ModelApp,
		Modifier:      job.Payload.UserName,
	})
	if err := d.requestLink(ctx, job, application.Name); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (d *deployer) requestLink(ctx context.Context, job *jobs.Job, appName string) error {
	if job.Payload.DatabaseID == "" {
		return nil
	}
	_, err := d.linker.Request(ctx, job.Payload.DatabaseID, job.Payload.AppID, appName, job.Payload.UserName)
	return err
}
