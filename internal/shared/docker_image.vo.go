package shared

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var ErrInvalidDockerImage = errors.New("invalid docker image")

// dockerImagePattern follows the distribution reference grammar: an optional
// registry host with port, lowercase path components, then a tag and/or digest.
var dockerImagePattern = regexp.MustCompile(
	`^(?:(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]*[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]*[a-zA-Z0-9])?)*(?::[0-9]+)?)/)?` +
		`[a-z0-9]+(?:(?:[._]|__|-+)[a-z0-9]+)*(?:/[a-z0-9]+(?:(?:[._]|__|-+)[a-z0-9]+)*)*` +
		`(?::[A-Za-z0-9_][A-Za-z0-9_.-]{0,127})?` +
		`(?:@sha256:[a-f0-9]{64})?$`,
)

// DockerImage is a validated image reference passed to `dokku git:from-image`.
type DockerImage struct {
	value string
}

func NewDockerImage(value string) (*DockerImage, error) {
	value = strings.TrimSpace(value)
	if value == "" || len(value) > 255 || !dockerImagePattern.MatchString(value) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDockerImage, value)
	}
	return &DockerImage{value: value}, nil
}

func (d *DockerImage) Value() string {
	return d.value
}

// HasDigest reports whether the reference pins a content digest.
func (d *DockerImage) HasDigest() bool {
	return strings.Contains(d.value, "@sha256:")
}

func (d *DockerImage) Equal(other *DockerImage) bool {
	return other != nil && d.value == other.value
}
