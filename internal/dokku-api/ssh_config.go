package dokkuApi

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidSSHConfig = errors.New("invalid SSH configuration")

const (
	maxSSHTimeout = 10 * time.Minute
	// controlPersist keeps a multiplexed master alive between the short
	// commands a job issues back to back.
	controlPersist = "60s"
)

var (
	hostnamePattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9.-]{0,251}[a-zA-Z0-9])?$`)
	usernamePattern = regexp.MustCompile(`^[a-z_][a-z0-9._-]{0,31}$`)
)

// SSHConfig is the validated ssh destination of the Dokku host.
type SSHConfig struct {
	host       string
	port       int
	user       string
	keyPath    string
	timeout    time.Duration
	controlDir string
}

// NewSSHConfig validates the destination. Every problem found is reported,
// joined under ErrInvalidSSHConfig.
func NewSSHConfig(host string, port int, user string, keyPath string, timeout time.Duration) (*SSHConfig, error) {
	cfg := &SSHConfig{
		host:    strings.TrimSpace(host),
		port:    port,
		user:    strings.TrimSpace(user),
		keyPath: strings.TrimSpace(keyPath),
		timeout: timeout,
	}
	if problems := cfg.problems(); len(problems) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSSHConfig, errors.Join(problems...))
	}
	return cfg, nil
}

// WithMultiplexing returns a copy sharing one ssh connection per host through
// control sockets in dir. An empty dir disables multiplexing.
func (s *SSHConfig) WithMultiplexing(dir string) *SSHConfig {
	c := *s
	c.controlDir = strings.TrimSpace(dir)
	return &c
}

func (s *SSHConfig) Host() string           { return s.host }
func (s *SSHConfig) Port() int              { return s.port }
func (s *SSHConfig) User() string           { return s.user }
func (s *SSHConfig) KeyPath() string        { return s.keyPath }
func (s *SSHConfig) Timeout() time.Duration { return s.timeout }
func (s *SSHConfig) Multiplexed() bool      { return s.controlDir != "" }

// ConnectionString is the user@host destination handed to ssh.
func (s *SSHConfig) ConnectionString() string {
	return s.user + "@" + s.host
}

// BaseSSHArgs returns the options every command shares. Keepalives stop long
// builds from being cut by idle connection reapers.
func (s *SSHConfig) BaseSSHArgs() []string {
	args := []string{
		"-o", "LogLevel=QUIET",
		"-o", "BatchMode=yes",
		"-o", "StrictHostKeyChecking=accept-new",
		"-o", "ServerAliveInterval=15",
		"-o", "ServerAliveCountMax=4",
	}
	if s.timeout > 0 {
		args = append(args, "-o", "ConnectTimeout="+strconv.Itoa(int(s.timeout.Seconds())))
	}
	if s.controlDir != "" {
		args = append(args,
			"-o", "ControlMaster=auto",
			"-o", "ControlPath="+filepath.Join(s.controlDir, "%C"),
			"-o", "ControlPersist="+controlPersist,
		)
	}
	return append(args, "-p", strconv.Itoa(s.port))
}

func (s *SSHConfig) String() string {
	target := "ssh://" + s.user + "@" + net.JoinHostPort(s.host, strconv.Itoa(s.port))
	if s.keyPath != "" {
		target += " (key: " + filepath.Base(s.keyPath) + ")"
	}
	return target
}

func (s *SSHConfig) problems() []error {
	var problems []error

	switch {
	case s.host == "":
		problems = append(problems, errors.New("host cannot be empty"))
	case net.ParseIP(s.host) != nil:
	case !hostnamePattern.MatchString(s.host):
		problems = append(problems, fmt.Errorf("malformed host %q", s.host))
	}

	if s.port < 1 || s.port > 65535 {
		problems = append(problems, fmt.Errorf("port %d out of range", s.port))
	}

	if !usernamePattern.MatchString(s.user) {
		problems = append(problems, fmt.Errorf("malformed user %q", s.user))
	}

	if strings.Contains(s.keyPath, "..") {
		problems = append(problems, errors.New("key path cannot contain '..'"))
	}

	if s.timeout < 0 || s.timeout > maxSSHTimeout {
		problems = append(problems, fmt.Errorf("timeout %s outside 0..%s", s.timeout, maxSSHTimeout))
	}

	return problems
}
