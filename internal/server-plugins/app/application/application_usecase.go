package usecases

import (
	"context"
	"fmt"
	"log/slog"

	app "github.com/alex-galey/dokku-deployer/internal/server-plugins/app/domain"
	"github.com/alex-galey/dokku-deployer/internal/shared/activity"
	"github.com/google/uuid"
)

const (
	DefaultLogLimit      = 200
	DefaultActivityLimit = 50
)

// ApplicationUseCase manages application records. Deployments themselves are
// queued through the deployment plugin.
type ApplicationUseCase struct {
	apps     app.Repository
	activity activity.Reader
	logger   *slog.Logger
	newID    func() string
}

func NewApplicationUseCase(apps app.Repository, reader activity.Reader, logger *slog.Logger) *ApplicationUseCase {
	return &ApplicationUseCase{
		apps:     apps,
		activity: reader,
		logger:   logger,
		newID:    uuid.NewString,
	}
}

type CreateApplicationCommand struct {
	Name      string
	RepoOwner string
	RepoName  string
	Branch    string
}

func (c CreateApplicationCommand) source() *app.GitSource {
	if c.RepoOwner == "" && c.RepoName == "" {
		return nil
	}
	return &app.GitSource{RepoOwner: c.RepoOwner, RepoName: c.RepoName, Branch: c.Branch}
}

// CreateApplication records a new idle application. Without a name, the name
// is derived from the repository. The Dokku app is created by its first
// deployment.
func (uc *ApplicationUseCase) CreateApplication(ctx context.Context, cmd CreateApplicationCommand) (*app.Application, error) {
	name := cmd.Name
	if name == "" && cmd.RepoName != "" {
		derived, err := app.ApplicationNameFromRepository(cmd.RepoName)
		if err != nil {
			return nil, err
		}
		name = derived.Value()
	}

	application, err := app.NewApplication(uc.newID(), name, cmd.source())
	if err != nil {
		return nil, err
	}
	if err := uc.apps.Save(ctx, application); err != nil {
		return nil, fmt.Errorf("failed to save application %s: %w", application.Name, err)
	}

	uc.logger.Info("Application created",
		"app_id", application.ID,
		"app_name", application.Name,
		"has_source", application.HasSource())
	return application, nil
}

func (uc *ApplicationUseCase) GetApplication(ctx context.Context, id string) (*app.Application, error) {
	return uc.apps.Get(ctx, id)
}

// GetLogs returns the newest deployment log entries of an application.
func (uc *ApplicationUseCase) GetLogs(ctx context.Context, id string, limit int) ([]app.LogEntry, error) {
	if _, err := uc.apps.Get(ctx, id); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	return uc.apps.ListLogs(ctx, id, limit)
}

// GetActivity lists the audit records about an application or database,
// newest first.
func (uc *ApplicationUseCase) GetActivity(ctx context.Context, referenceID string, limit int) ([]activity.Record, error) {
	if limit <= 0 {
		limit = DefaultActivityLimit
	}
	return uc.activity.ListActivity(ctx, referenceID, limit)
}
