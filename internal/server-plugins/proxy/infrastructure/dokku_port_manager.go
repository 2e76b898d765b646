package infrastructure

import (
	"context"
	"fmt"
	"log/slog"

	dokkuApi "github.com/alex-galey/dokku-deployer/internal/dokku-api"
	proxy "github.com/alex-galey/dokku-deployer/internal/server-plugins/proxy/domain"
)

type DokkuPortManager struct {
	session dokkuApi.Session
	logger  *slog.Logger
}

var _ proxy.PortManager = (*DokkuPortManager)(nil)

func NewDokkuPortManager(session dokkuApi.Session, logger *slog.Logger) *DokkuPortManager {
	return &DokkuPortManager{session: session, logger: logger}
}

func (m *DokkuPortManager) Ports(ctx context.Context, appName string) ([]proxy.ProxyPort, error) {
	output, err := m.session.Output(ctx, proxy.CommandPortsReport.String(), []string{appName, "--ports-map"})
	if err != nil {
		return nil, fmt.Errorf("failed to read ports of %s: %w", appName, err)
	}
	ports, err := proxy.ParsePortMap(string(output))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ports of %s: %w", appName, err)
	}
	return ports, nil
}

func (m *DokkuPortManager) Add(ctx context.Context, appName string, port proxy.ProxyPort) error {
	current, err := m.Ports(ctx, appName)
	if err != nil {
		return err
	}
	for _, p := range current {
		if p == port {
			m.logger.Debug("Port mapping already present", "app_name", appName, "port", port.String())
			return nil
		}
	}

	if _, err := m.session.Output(ctx, proxy.CommandPortsAdd.String(), []string{appName, port.String()}); err != nil {
		return fmt.Errorf("failed to add port %s to %s: %w", port, appName, err)
	}
	return nil
}
