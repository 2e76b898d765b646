package infrastructure

import (
	"context"
	"fmt"
	"log/slog"

	dokkuApi "github.com/alex-galey/dokku-deployer/internal/dokku-api"
	app "github.com/alex-galey/dokku-deployer/internal/server-plugins/app/domain"
	git "github.com/alex-galey/dokku-deployer/internal/server-plugins/git/domain"
)

type DokkuSourceManager struct {
	session dokkuApi.Session
	logger  *slog.Logger
}

var _ git.SourceManager = (*DokkuSourceManager)(nil)

func NewDokkuSourceManager(session dokkuApi.Session, logger *slog.Logger) *DokkuSourceManager {
	return &DokkuSourceManager{session: session, logger: logger}
}

func (m *DokkuSourceManager) Auth(ctx context.Context, user, token string) error {
	if user == "" || token == "" {
		return git.ErrMissingCredential
	}
	if _, err := m.session.Output(ctx, git.CommandGitAuth.String(), []string{git.GitHubHost, user, token}); err != nil {
		return fmt.Errorf("failed to configure git credentials: %w", err)
	}
	return nil
}

func (m *DokkuSourceManager) Unlock(ctx context.Context, appName string) error {
	if _, err := m.session.Output(ctx, git.CommandGitUnlock.String(), []string{appName, "--force"}); err != nil {
		return fmt.Errorf("failed to unlock %s: %w", appName, err)
	}
	return nil
}

func (m *DokkuSourceManager) Sync(ctx context.Context, appName, repoURL, branch string, out app.OutputSink) error {
	m.logger.Info("Syncing application from git",
		"app_name", appName,
		"repository", repoURL,
		"branch", branch)

	args := []string{"--build", appName, repoURL, branch}
	if _, err := m.session.Run(ctx, git.CommandGitSync.String(), args, out); err != nil {
		return fmt.Errorf("failed to sync %s from %s: %w", appName, repoURL, err)
	}
	return nil
}
