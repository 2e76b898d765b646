package dokkuApi

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alex-galey/dokku-deployer/internal/shared/metrics"
	"github.com/alex-galey/dokku-deployer/pkg/config"
	"go.uber.org/fx"
)

// sshTransportFailure is the exit status ssh reports when it cannot reach the host.
const sshTransportFailure = 255

// NewSessionFromConfig creates the remote session from the server configuration.
func NewSessionFromConfig(cfg *config.ServerConfig, logger *slog.Logger, collector metrics.Collector) (Session, error) {
	sessionConfig := SessionConfig{
		CommandTimeout: cfg.Timeout,
		StreamTimeout:  cfg.BuildTimeout,
		Blacklist:      cfg.Security.Blacklist,
	}

	if cfg.SSH.Local {
		sessionConfig.Factory = LocalCommandFactory("dokku")
		logger.Info("Running Dokku commands locally")
	} else {
		sshConfig, err := NewSSHConfig(cfg.SSH.Host, cfg.SSH.Port, cfg.SSH.User, cfg.SSH.KeyPath, cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("failed to create SSH configuration: %w", err)
		}
		if cfg.SSH.ControlDir != "" {
			sshConfig = sshConfig.WithMultiplexing(cfg.SSH.ControlDir)
		}
		manager := NewSSHConnectionManager(sshConfig, nil, logger)
		sessionConfig.Factory = manager.CommandFactory()
		sessionConfig.TransientExitCode = sshTransportFailure
		logger.Info("Running Dokku commands over SSH", "target", sshConfig.String(), "multiplexed", sshConfig.Multiplexed())
	}

	return NewSession(sessionConfig, logger, collector), nil
}

// checkConnection runs a harmless command so misconfiguration shows up at boot.
func checkConnection(lc fx.Lifecycle, session Session, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if _, err := session.Output(context.Background(), "version", nil); err != nil {
					logger.Warn("Dokku host is not reachable yet", "error", err)
					return
				}
				logger.Info("Dokku host reachable")
			}()
			return nil
		},
	})
}

var Module = fx.Module("dokku-api",
	fx.Provide(NewSessionFromConfig),
	fx.Invoke(checkConnection),
)
