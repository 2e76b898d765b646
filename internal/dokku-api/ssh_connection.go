package dokkuApi

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// SSHConnectionManager combines the SSH target with the authentication method.
type SSHConnectionManager struct {
	config      *SSHConfig
	authService *SSHAuthService
	logger      *slog.Logger
}

func NewSSHConnectionManager(config *SSHConfig, authService *SSHAuthService, logger *slog.Logger) *SSHConnectionManager {
	if authService == nil {
		authService = NewSSHAuthService(logger)
	}
	return &SSHConnectionManager{
		config:      config,
		authService: authService,
		logger:      logger,
	}
}

func (m *SSHConnectionManager) Config() *SSHConfig {
	return m.config
}

// PrepareSSHCommand returns the argv and environment for running command on the host.
func (m *SSHConnectionManager) PrepareSSHCommand(command string) ([]string, []string) {
	authMethod := m.authService.DetermineAuthMethod(m.config.KeyPath())

	sshArgs := []string{"ssh"}
	sshArgs = append(sshArgs, m.config.BaseSSHArgs()...)
	sshArgs = m.authService.PrepareSSHArgs(authMethod, sshArgs)
	sshArgs = append(sshArgs, m.config.ConnectionString())

	// Dokku's ssh entrypoint routes the command to its CLI.
	if command != "" {
		sshArgs = append(sshArgs, "--", command)
	}

	baseEnv := []string{
		"PATH=/usr/bin:/bin",
		fmt.Sprintf("DOKKU_HOST=%s", m.config.Host()),
		fmt.Sprintf("DOKKU_PORT=%d", m.config.Port()),
	}
	env := m.authService.PrepareEnvironment(authMethod, baseEnv)

	return sshArgs, env
}

// CommandFactory builds ssh processes for the session.
func (m *SSHConnectionManager) CommandFactory() CommandFactory {
	return func(ctx context.Context, dokkuCommand string) (*exec.Cmd, error) {
		sshArgs, env := m.PrepareSSHCommand(dokkuCommand)
		// #nosec G204 -- arguments are validated by the session before reaching here
		cmd := exec.CommandContext(ctx, sshArgs[0], sshArgs[1:]...)
		cmd.Env = env
		return cmd, nil
	}
}

// LocalCommandFactory runs the given dokku binary on this machine.
func LocalCommandFactory(binary string) CommandFactory {
	return func(ctx context.Context, dokkuCommand string) (*exec.Cmd, error) {
		path, err := exec.LookPath(binary)
		if err != nil {
			return nil, fmt.Errorf("dokku binary not available: %w", err)
		}
		// #nosec G204 -- arguments are validated by the session before reaching here
		return exec.CommandContext(ctx, path, strings.Fields(dokkuCommand)...), nil
	}
}
