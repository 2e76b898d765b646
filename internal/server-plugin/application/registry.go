package plugins

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/alex-galey/dokku-deployer/internal/server-plugin/domain"
	"github.com/alex-galey/dokku-deployer/pkg/config"
	"go.uber.org/fx"
)

// Registry tracks every server plugin and which of them are currently exposed.
// A plugin is active when it needs only Dokku core or when the Dokku plugin it
// depends on is enabled on the host.
type Registry struct {
	plugins   []domain.ServerPlugin
	discovery domain.ServerPluginDiscoveryService
	discCfg   config.PluginDiscoveryConfig
	logger    *slog.Logger

	mu     sync.RWMutex
	active map[string]bool
}

type RegistryParams struct {
	fx.In
	Discovery domain.ServerPluginDiscoveryService
	Config    config.PluginDiscoveryConfig
	Logger    *slog.Logger
	Plugins   []domain.ServerPlugin `group:"server_plugins"`
}

func NewRegistry(params RegistryParams) *Registry {
	plugins := slices.Clone(params.Plugins)
	slices.SortFunc(plugins, func(a, b domain.ServerPlugin) int {
		if a.ID() < b.ID() {
			return -1
		}
		if a.ID() > b.ID() {
			return 1
		}
		return 0
	})
	return &Registry{
		plugins:   plugins,
		discovery: params.Discovery,
		discCfg:   params.Config,
		logger:    params.Logger,
		active:    make(map[string]bool),
	}
}

// RegisterHooks starts the periodic resync when discovery is enabled. The
// first sync is run by the server before tools are registered.
func (r *Registry) RegisterHooks(lc fx.Lifecycle) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if !r.discCfg.Enabled || r.discCfg.SyncInterval <= 0 {
				r.logger.Info("Plugin discovery sync loop disabled")
				close(done)
				return nil
			}
			r.logger.Info("Starting plugin discovery sync loop", "interval", r.discCfg.SyncInterval)
			go func() {
				defer close(done)
				r.runSyncLoop(ctx, r.discCfg.SyncInterval)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}

func (r *Registry) runSyncLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sync(ctx)
		}
	}
}

// Sync recomputes the active set. When the host cannot be queried only the
// core plugins stay active.
func (r *Registry) Sync(ctx context.Context) {
	enabled, err := r.discovery.GetEnabledDokkuPlugins(ctx)
	if err != nil {
		r.logger.Error("Failed to get enabled Dokku plugins, keeping core plugins only", "error", err)
		enabled = nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	activated, deactivated := 0, 0
	for _, plugin := range r.plugins {
		dokkuPlugin := plugin.DokkuPluginName()
		want := dokkuPlugin == "" || slices.Contains(enabled, dokkuPlugin)
		was := r.active[plugin.ID()]

		switch {
		case want && !was:
			activated++
			r.logger.Info("Server plugin activated", "plugin", plugin.ID(), "dokku_plugin", dokkuPlugin)
		case !want && was:
			deactivated++
			r.logger.Info("Server plugin deactivated", "plugin", plugin.ID(), "dokku_plugin", dokkuPlugin)
		}
		r.active[plugin.ID()] = want
	}

	r.logger.Debug("Server plugin sync completed",
		"activated", activated,
		"deactivated", deactivated)
}

// ActivePlugins returns the active plugins ordered by ID.
func (r *Registry) ActivePlugins() []domain.ServerPlugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var active []domain.ServerPlugin
	for _, plugin := range r.plugins {
		if r.active[plugin.ID()] {
			active = append(active, plugin)
		}
	}
	return active
}

func (r *Registry) IsActive(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active[id]
}
