package dokkuApi

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

type SSHAuthMethod struct {
	KeyPath     string
	UseAgent    bool
	Description string
}

type SSHAuthConfig struct {
	// HomeDir overrides the home directory for tests
	HomeDir string
	// CheckAgent overrides the ssh-agent check for tests
	CheckAgent func() bool
}

// SSHAuthService picks how ssh authenticates against the Dokku host and
// remembers the decision for an hour.
type SSHAuthService struct {
	logger *slog.Logger
	config *SSHAuthConfig

	mu       sync.RWMutex
	cached   *SSHAuthMethod
	expiry   time.Time
	cacheTTL time.Duration
}

func NewSSHAuthService(logger *slog.Logger) *SSHAuthService {
	return NewSSHAuthServiceWithConfig(logger, &SSHAuthConfig{})
}

func NewSSHAuthServiceWithConfig(logger *slog.Logger, config *SSHAuthConfig) *SSHAuthService {
	return &SSHAuthService{
		logger:   logger,
		config:   config,
		cacheTTL: time.Hour,
	}
}

// Default keys tried in order when neither a configured key nor an agent is usable.
var defaultKeyNames = []string{"id_ed25519", "id_rsa"}

// DetermineAuthMethod prefers the configured key, then ssh-agent, then a default key.
func (s *SSHAuthService) DetermineAuthMethod(configKeyPath string) *SSHAuthMethod {
	s.mu.RLock()
	if s.cached != nil && time.Now().Before(s.expiry) {
		method := s.cached
		s.mu.RUnlock()
		return method
	}
	s.mu.RUnlock()

	method := s.resolve(configKeyPath)

	s.mu.Lock()
	s.cached = method
	s.expiry = time.Now().Add(s.cacheTTL)
	s.mu.Unlock()

	return method
}

func (s *SSHAuthService) resolve(configKeyPath string) *SSHAuthMethod {
	if configKeyPath != "" {
		if isKeyFileAccessible(configKeyPath) {
			s.logger.Debug("Using the configured SSH key", "key_path", configKeyPath)
			return &SSHAuthMethod{
				KeyPath:     configKeyPath,
				Description: fmt.Sprintf("configured key %s", configKeyPath),
			}
		}
		s.logger.Warn("The configured SSH key is not accessible", "key_path", configKeyPath)
	}

	if s.agentAvailable() {
		s.logger.Debug("Using ssh-agent for authentication")
		return &SSHAuthMethod{UseAgent: true, Description: "ssh-agent"}
	}

	if home := s.homeDir(); home != "" {
		for _, name := range defaultKeyNames {
			keyPath := filepath.Join(home, ".ssh", name)
			if isKeyFileAccessible(keyPath) {
				s.logger.Debug("Using default SSH key", "key_path", keyPath)
				return &SSHAuthMethod{
					KeyPath:     keyPath,
					Description: "default key ~/.ssh/" + name,
				}
			}
		}
	}

	s.logger.Warn("No reliable SSH authentication method found, using ssh-agent as fallback")
	return &SSHAuthMethod{UseAgent: true, Description: "ssh-agent (fallback)"}
}

// InvalidateCache forces a re-check of the authentication method on next call.
func (s *SSHAuthService) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = nil
	s.expiry = time.Time{}
}

func (s *SSHAuthService) homeDir() string {
	if s.config.HomeDir != "" {
		return s.config.HomeDir
	}
	home, _ := os.UserHomeDir()
	return home
}

func (s *SSHAuthService) agentAvailable() bool {
	if s.config.CheckAgent != nil {
		return s.config.CheckAgent()
	}

	authSock := os.Getenv("SSH_AUTH_SOCK")
	if authSock == "" {
		return false
	}
	if _, err := os.Stat(authSock); err != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ssh-add", "-l")
	cmd.Env = []string{"SSH_AUTH_SOCK=" + authSock, "PATH=/usr/bin:/bin"}
	output, err := cmd.Output()
	if err != nil {
		s.logger.Debug("ssh-add -l failed", "error", err)
		return false
	}

	// The agent answers but has no keys loaded.
	return !strings.Contains(string(output), "no identities")
}

func isKeyFileAccessible(keyPath string) bool {
	if keyPath == "" {
		return false
	}
	info, err := os.Stat(filepath.Clean(keyPath))
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	file, err := os.Open(filepath.Clean(keyPath))
	if err != nil {
		return false
	}
	return file.Close() == nil
}

// PrepareSSHArgs inserts the identity file right after the ssh binary.
func (s *SSHAuthService) PrepareSSHArgs(method *SSHAuthMethod, baseArgs []string) []string {
	if method.UseAgent || method.KeyPath == "" {
		return baseArgs
	}
	if len(baseArgs) == 0 {
		return []string{"-i", method.KeyPath}
	}
	result := make([]string, 0, len(baseArgs)+2)
	result = append(result, baseArgs[0], "-i", method.KeyPath)
	return append(result, baseArgs[1:]...)
}

func (s *SSHAuthService) PrepareEnvironment(method *SSHAuthMethod, baseEnv []string) []string {
	env := make([]string, len(baseEnv), len(baseEnv)+1)
	copy(env, baseEnv)
	if method.UseAgent {
		if authSock := os.Getenv("SSH_AUTH_SOCK"); authSock != "" {
			env = append(env, "SSH_AUTH_SOCK="+authSock)
		}
	}
	return env
}
