package app

import (
	"fmt"
	"time"

	"github.com/alex-galey/dokku-deployer/internal/shared"
)

const DefaultBranch = "main"

// GitSource locates the GitHub repository an application is built from.
type GitSource struct {
	RepoOwner string `json:"repo_owner"`
	RepoName  string `json:"repo_name"`
	Branch    string `json:"branch,omitempty"`
}

// EffectiveBranch returns the configured branch, or main when none is set.
func (s GitSource) EffectiveBranch() string {
	if s.Branch == "" {
		return DefaultBranch
	}
	return s.Branch
}

// Validate checks the owner, repository and optional branch.
func (s GitSource) Validate() error {
	if err := shared.ValidateGitHubName("owner", s.RepoOwner); err != nil {
		return err
	}
	if err := shared.ValidateGitHubName("repository", s.RepoName); err != nil {
		return err
	}
	if s.Branch != "" {
		if _, err := shared.NewGitBranch(s.Branch); err != nil {
			return err
		}
	}
	return nil
}

func (s GitSource) CloneURL() string {
	return fmt.Sprintf("https://github.com/%s/%s.git", s.RepoOwner, s.RepoName)
}

func (s GitSource) TreeURL() string {
	return fmt.Sprintf("https://github.com/%s/%s/tree/%s", s.RepoOwner, s.RepoName, s.EffectiveBranch())
}

// Application is the persisted view of a Dokku app managed by the deployer.
// Its status only changes through deployment job hooks.
type Application struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Status      Status     `json:"status"`
	Source      *GitSource `json:"source,omitempty"`
	DatabaseIDs []string   `json:"database_ids,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NewApplication validates the name and returns an idle application.
func NewApplication(id, name string, source *GitSource) (*Application, error) {
	appName, err := NewApplicationName(name)
	if err != nil {
		return nil, fmt.Errorf("unable to create application: %w", err)
	}
	if source != nil {
		if err := source.Validate(); err != nil {
			return nil, fmt.Errorf("unable to create application: %w", err)
		}
	}

	now := time.Now().UTC()
	return &Application{
		ID:        id,
		Name:      appName.Value(),
		Status:    StatusIdle,
		Source:    source,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// HasSource reports whether git coordinates are attached.
func (a *Application) HasSource() bool {
	return a.Source != nil && a.Source.RepoOwner != "" && a.Source.RepoName != ""
}
