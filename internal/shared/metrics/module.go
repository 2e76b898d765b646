package metrics

import "go.uber.org/fx"

var Module = fx.Module("metrics",
	fx.Provide(NewPrometheusCollector),
	fx.Provide(func(c *PrometheusCollector) Collector { return c }),
)
