package domain

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alex-galey/dokku-deployer/internal/events"
	"github.com/alex-galey/dokku-deployer/internal/jobs"
	app "github.com/alex-galey/dokku-deployer/internal/server-plugins/app/domain"
	git "github.com/alex-galey/dokku-deployer/internal/server-plugins/git/domain"
	proxy "github.com/alex-galey/dokku-deployer/internal/server-plugins/proxy/domain"
	"github.com/alex-galey/dokku-deployer/internal/shared/activity"
)

// GitDeployJob builds an application from its GitHub repository (deploy_app).
type GitDeployJob struct {
	deployer
	sources git.SourceManager
}

var _ jobs.Handler = (*GitDeployJob)(nil)

func NewGitDeployJob(
	apps app.Repository,
	manager app.Manager,
	sources git.SourceManager,
	reconciler *proxy.Reconciler,
	linker *Linker,
	activityLog *activity.Log,
	publisher events.Publisher,
	logger *slog.Logger,
) *GitDeployJob {
	return &GitDeployJob{
		deployer: deployer{
			apps:       apps,
			manager:    manager,
			reconciler: reconciler,
			linker:     linker,
			activity:   activityLog,
			publisher:  publisher,
			logger:     logger,
		},
		sources: sources,
	}
}

func (j *GitDeployJob) Execute(ctx context.Context, job *jobs.Job) (any, error) {
	application, err := j.prepare(ctx, job)
	if err != nil {
		return nil, err
	}
	if !application.HasSource() {
		return nil, fmt.Errorf("%w: %s", app.ErrMissingSource, application.Name)
	}
	source := *application.Source
	sink := j.sink(ctx, job)

	if err := j.manager.EnsureExists(ctx, application.Name, sink); err != nil {
		return nil, err
	}
	if err := j.sources.Auth(ctx, job.Payload.UserName, job.Payload.Token); err != nil {
		return nil, err
	}
	if err := j.sources.Unlock(ctx, application.Name); err != nil {
		return nil, err
	}
	if err := j.sources.Sync(ctx, application.Name, source.CloneURL(), source.EffectiveBranch(), sink); err != nil {
		return nil, err
	}

	reconciled := j.reconciler.Reconcile(ctx, application.Name, sink)

	j.logger.Info("Finished creating application",
		"app_name", application.Name,
		"repository", source.CloneURL(),
		"branch", source.EffectiveBranch())

	return &DeployResult{Application: application, Proxy: reconciled}, nil
}

func (j *GitDeployJob) OnSuccess(ctx context.Context, job *jobs.Job, result any) error {
	return j.succeed(ctx, job, func(a *app.Application) string {
		if !a.HasSource() {
			return ""
		}
		return "From " + a.Source.TreeURL()
	})
}

func (j *GitDeployJob) OnFailed(ctx context.Context, job *jobs.Job, cause error) error {
	return j.fail(ctx, job, cause)
}
