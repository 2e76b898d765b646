package config

import "go.uber.org/fx"

// Module expects the ServerConfig to be supplied by the caller (see fxapp) and
// hands out the smaller sections to consumers that only need one of them.
var Module = fx.Module("config",
	fx.Provide(func(cfg *ServerConfig) TransportConfig { return cfg.Transport }),
	fx.Provide(func(cfg *ServerConfig) SSHConfig { return cfg.SSH }),
	fx.Provide(func(cfg *ServerConfig) StorageConfig { return cfg.Storage }),
	fx.Provide(func(cfg *ServerConfig) QueueConfig { return cfg.Queue }),
	fx.Provide(func(cfg *ServerConfig) WorkerConfig { return cfg.Worker }),
	fx.Provide(func(cfg *ServerConfig) EventsConfig { return cfg.Events }),
	fx.Provide(func(cfg *ServerConfig) HTTPConfig { return cfg.HTTP }),
	fx.Provide(func(cfg *ServerConfig) SecurityConfig { return cfg.Security }),
	fx.Provide(func(cfg *ServerConfig) PluginDiscoveryConfig { return cfg.PluginDiscovery }),
)
