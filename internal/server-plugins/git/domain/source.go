package git

import (
	"context"
	"errors"

	app "github.com/alex-galey/dokku-deployer/internal/server-plugins/app/domain"
)

const GitHubHost = "github.com"

var ErrMissingCredential = errors.New("git credential is required")

type GitCommand string

const (
	CommandGitAuth   GitCommand = "git:auth"
	CommandGitUnlock GitCommand = "git:unlock"
	CommandGitSync   GitCommand = "git:sync"
)

func (c GitCommand) String() string {
	return string(c)
}

// SourceManager prepares and syncs an app from a git remote on the Dokku host.
type SourceManager interface {
	// Auth stores a short-lived credential for the GitHub host.
	Auth(ctx context.Context, user, token string) error
	// Unlock clears a stale deploy lock left by an interrupted build.
	Unlock(ctx context.Context, appName string) error
	// Sync fetches the branch and builds it, streaming output.
	Sync(ctx context.Context, appName, repoURL, branch string, out app.OutputSink) error
}
