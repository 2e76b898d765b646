package events

import (
	"context"

	"go.uber.org/fx"
)

func registerLifecycle(lc fx.Lifecycle, bus *Bus) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			bus.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return bus.Stop(ctx)
		},
	})
}

var Module = fx.Module("events",
	fx.Provide(NewBus),
	fx.Provide(func(bus *Bus) Publisher { return bus }),
	fx.Provide(NewWebsocketHandler),
	fx.Invoke(registerLifecycle),
)
