package infrastructure

import (
	"context"
	"log/slog"
	"strings"
	"time"

	dokkuApi "github.com/alex-galey/dokku-deployer/internal/dokku-api"
	"github.com/alex-galey/dokku-deployer/internal/server-plugin/domain"
)

const discoveryTimeout = 15 * time.Second

// PluginDiscoveryService reads the enabled plugins from `dokku plugin:list`.
type PluginDiscoveryService struct {
	session dokkuApi.Session
	logger  *slog.Logger
}

var _ domain.ServerPluginDiscoveryService = (*PluginDiscoveryService)(nil)

func NewPluginDiscoveryService(session dokkuApi.Session, logger *slog.Logger) *PluginDiscoveryService {
	return &PluginDiscoveryService{session: session, logger: logger}
}

func (s *PluginDiscoveryService) GetEnabledDokkuPlugins(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, discoveryTimeout)
	defer cancel()

	output, err := s.session.Output(ctx, domain.CommandPluginList, nil)
	if err != nil {
		s.logger.Error("Failed to list Dokku plugins", "error", err)
		return nil, err
	}

	enabled := ParseEnabledPlugins(string(output))
	s.logger.Debug("Enabled Dokku plugins", "plugins", enabled, "count", len(enabled))
	return enabled, nil
}

// ParseEnabledPlugins extracts plugin names from plugin:list output, whose rows
// read "name version enabled|disabled description".
func ParseEnabledPlugins(output string) []string {
	var enabled []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "====") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 3 && fields[2] == "enabled" {
			enabled = append(enabled, fields[0])
		}
	}
	return enabled
}
