package app

import (
	"fmt"
	"regexp"
	"strings"
)

const maxApplicationNameLength = 63

// ApplicationName is a Dokku app name. It doubles as the subdomain the app is
// served on, so it follows DNS label rules.
type ApplicationName struct {
	value string
}

var (
	applicationNamePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)
	nameSeparators         = regexp.MustCompile(`[^a-z0-9]+`)
)

// Dokku subcommand namespaces; an app with one of these names shadows the CLI.
var reservedNames = map[string]bool{
	"apps": true, "builder": true, "certs": true, "config": true, "dokku": true,
	"domains": true, "git": true, "letsencrypt": true, "logs": true, "network": true,
	"plugin": true, "ports": true, "proxy": true, "ps": true, "registry": true,
	"run": true, "scheduler": true, "shell": true, "storage": true, "tls": true,
}

func NewApplicationName(name string) (*ApplicationName, error) {
	name = strings.ToLower(strings.TrimSpace(name))

	switch {
	case name == "":
		return nil, fmt.Errorf("%w: name cannot be empty", ErrInvalidApplicationName)
	case len(name) > maxApplicationNameLength:
		return nil, fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidApplicationName, name, maxApplicationNameLength)
	case !applicationNamePattern.MatchString(name):
		return nil, fmt.Errorf("%w: %q may only hold lowercase letters, digits and inner hyphens", ErrInvalidApplicationName, name)
	case reservedNames[name]:
		return nil, fmt.Errorf("%w: %q is a Dokku command namespace", ErrInvalidApplicationName, name)
	}

	return &ApplicationName{value: name}, nil
}

// ApplicationNameFromRepository derives an app name from a GitHub repository
// name: "My_Blog.v2" becomes "my-blog-v2".
func ApplicationNameFromRepository(repoName string) (*ApplicationName, error) {
	slug := nameSeparators.ReplaceAllString(strings.ToLower(repoName), "-")
	if len(slug) > maxApplicationNameLength {
		slug = slug[:maxApplicationNameLength]
	}
	return NewApplicationName(strings.Trim(slug, "-"))
}

func (an *ApplicationName) Value() string {
	return an.value
}

func (an *ApplicationName) String() string {
	return an.value
}
