package infrastructure

import (
	"context"
	"fmt"
	"log/slog"

	dokkuApi "github.com/alex-galey/dokku-deployer/internal/dokku-api"
	app "github.com/alex-galey/dokku-deployer/internal/server-plugins/app/domain"
)

// DokkuApplicationManager issues the app-level Dokku commands used by deployment jobs.
type DokkuApplicationManager struct {
	session dokkuApi.Session
	logger  *slog.Logger
}

var _ app.Manager = (*DokkuApplicationManager)(nil)

func NewDokkuApplicationManager(session dokkuApi.Session, logger *slog.Logger) *DokkuApplicationManager {
	return &DokkuApplicationManager{
		session: session,
		logger:  logger,
	}
}

func (m *DokkuApplicationManager) EnsureExists(ctx context.Context, appName string, out app.OutputSink) error {
	_, err := m.session.Output(ctx, app.CommandAppsExists.String(), []string{appName})
	if err == nil {
		return nil
	}
	if !dokkuApi.IsNotFoundError(err) {
		return fmt.Errorf("failed to check application %s: %w", appName, err)
	}

	if _, err := m.session.Run(ctx, app.CommandAppsCreate.String(), []string{appName}, out); err != nil {
		return fmt.Errorf("failed to create application %s: %w", appName, err)
	}
	m.logger.Info("Application created on Dokku", "app_name", appName)
	return nil
}

// CreateFromImage deploys a prebuilt image, streaming the build output.
func (m *DokkuApplicationManager) CreateFromImage(ctx context.Context, appName, image string, out app.OutputSink) error {
	if _, err := m.session.Run(ctx, app.CommandGitFromImage.String(), []string{appName, image}, out); err != nil {
		return fmt.Errorf("failed to deploy image %s to %s: %w", image, appName, err)
	}
	return nil
}

// Destroy removes the app from the host. A missing app counts as destroyed.
func (m *DokkuApplicationManager) Destroy(ctx context.Context, appName string) error {
	_, err := m.session.Output(ctx, app.CommandAppsDestroy.String(), []string{appName, "--force"})
	if err != nil {
		if dokkuApi.IsNotFoundError(err) {
			m.logger.Debug("Application already absent from Dokku", "app_name", appName)
			return nil
		}
		return fmt.Errorf("failed to destroy application %s: %w", appName, err)
	}
	m.logger.Info("Application destroyed", "app_name", appName)
	return nil
}

func (m *DokkuApplicationManager) EnableSSL(ctx context.Context, appName string, out app.OutputSink) error {
	if _, err := m.session.Run(ctx, app.CommandLetsencryptEnable.String(), []string{appName}, out); err != nil {
		return fmt.Errorf("failed to enable TLS for %s: %w", appName, err)
	}
	return nil
}

func (m *DokkuApplicationManager) Rebuild(ctx context.Context, appName string, out app.OutputSink) error {
	if _, err := m.session.Run(ctx, app.CommandPsRebuild.String(), []string{appName}, out); err != nil {
		return fmt.Errorf("failed to rebuild %s: %w", appName, err)
	}
	return nil
}
