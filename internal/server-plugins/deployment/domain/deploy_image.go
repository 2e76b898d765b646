package domain

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alex-galey/dokku-deployer/internal/events"
	"github.com/alex-galey/dokku-deployer/internal/jobs"
	app "github.com/alex-galey/dokku-deployer/internal/server-plugins/app/domain"
	proxy "github.com/alex-galey/dokku-deployer/internal/server-plugins/proxy/domain"
	"github.com/alex-galey/dokku-deployer/internal/shared"
	"github.com/alex-galey/dokku-deployer/internal/shared/activity"
)

// ImageDeployJob deploys a prebuilt container image (deploy_image).
type ImageDeployJob struct {
	deployer
}

var _ jobs.Handler = (*ImageDeployJob)(nil)

func NewImageDeployJob(
	apps app.Repository,
	manager app.Manager,
	reconciler *proxy.Reconciler,
	linker *Linker,
	activityLog *activity.Log,
	publisher events.Publisher,
	logger *slog.Logger,
) *ImageDeployJob {
	return &ImageDeployJob{
		deployer: deployer{
			apps:       apps,
			manager:    manager,
			reconciler: reconciler,
			linker:     linker,
			activity:   activityLog,
			publisher:  publisher,
			logger:     logger,
		},
	}
}

func (j *ImageDeployJob) Execute(ctx context.Context, job *jobs.Job) (any, error) {
	application, err := j.prepare(ctx, job)
	if err != nil {
		return nil, err
	}
	sink := j.sink(ctx, job)

	image, err := shared.NewDockerImage(job.Payload.Image)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if err := j.manager.EnsureExists(ctx, application.Name, sink); err != nil {
		return nil, err
	}
	if err := j.manager.CreateFromImage(ctx, application.Name, image.Value(), sink); err != nil {
		return nil, err
	}

	reconciled := j.reconciler.Reconcile(ctx, application.Name, sink)

	j.logger.Info("Finished creating application",
		"app_name", application.Name,
		"image", image.Value())

	return &DeployResult{Application: application, Proxy: reconciled}, nil
}

func (j *ImageDeployJob) OnSuccess(ctx context.Context, job *jobs.Job, result any) error {
	return j.succeed(ctx, job, func(*app.Application) string {
		return "From image " + job.Payload.Image
	})
}

func (j *ImageDeployJob) OnFailed(ctx context.Context, job *jobs.Job, cause error) error {
	return j.fail(ctx, job, cause)
}
