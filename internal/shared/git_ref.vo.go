package shared

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var ErrInvalidGitRef = errors.New("invalid git reference")

// githubNamePattern matches GitHub user, organization and repository names.
var githubNamePattern = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9._-]{0,99})$`)

// GitBranch is a branch name accepted by `git check-ref-format --branch`.
type GitBranch struct {
	value string
}

func NewGitBranch(name string) (GitBranch, error) {
	name = strings.TrimSpace(name)
	if err := validateBranch(name); err != nil {
		return GitBranch{}, fmt.Errorf("%w: %s", ErrInvalidGitRef, err)
	}
	return GitBranch{value: name}, nil
}

func (b GitBranch) Value() string  { return b.value }
func (b GitBranch) String() string { return b.value }

func validateBranch(ref string) error {
	if ref == "" {
		return errors.New("branch name cannot be empty")
	}
	if len(ref) > 250 {
		return errors.New("branch name is longer than 250 characters")
	}
	if strings.ContainsAny(ref, " \t\n\r~^:?*[\\") {
		return fmt.Errorf("branch name %q contains a forbidden character", ref)
	}
	if strings.HasPrefix(ref, "-") {
		return fmt.Errorf("branch name %q cannot start with a dash", ref)
	}
	if strings.HasPrefix(ref, ".") || strings.HasSuffix(ref, ".") ||
		strings.HasPrefix(ref, "/") || strings.HasSuffix(ref, "/") {
		return fmt.Errorf("branch name %q cannot start or end with '.' or '/'", ref)
	}
	if strings.Contains(ref, "//") || strings.Contains(ref, "..") || strings.Contains(ref, "@{") {
		return fmt.Errorf("branch name %q contains an invalid sequence", ref)
	}
	if strings.HasSuffix(ref, ".lock") {
		return fmt.Errorf("branch name %q cannot end with .lock", ref)
	}
	return nil
}

// ValidateGitHubName checks a repository owner or repository name.
func ValidateGitHubName(kind, name string) error {
	if !githubNamePattern.MatchString(name) {
		return fmt.Errorf("%w: invalid GitHub %s %q", ErrInvalidGitRef, kind, name)
	}
	return nil
}
