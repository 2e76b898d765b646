package proxy

import (
	"context"
	"log/slog"

	app "github.com/alex-galey/dokku-deployer/internal/server-plugins/app/domain"
)

type ProxyCommand string

const (
	CommandPortsReport ProxyCommand = "ports:report"
	CommandPortsAdd    ProxyCommand = "ports:add"
)

func (c ProxyCommand) String() string {
	return string(c)
}

// PortManager reads and changes an app's proxy port mappings.
type PortManager interface {
	Ports(ctx context.Context, appName string) ([]ProxyPort, error)
	// Add is a no-op when the identical mapping already exists.
	Add(ctx context.Context, appName string, port ProxyPort) error
}

type SSLEnabler interface {
	EnableSSL(ctx context.Context, appName string, out app.OutputSink) error
}

// ReconcileResult reports what Reconcile changed.
type ReconcileResult struct {
	Ports        []ProxyPort
	AddedWebPort *ProxyPort
	SSLEnabled   bool
}

// Reconciler makes sure a freshly built app answers on port 80 and has TLS.
// Every step is best effort: a deployment never fails here.
type Reconciler struct {
	ports  PortManager
	ssl    SSLEnabler
	logger *slog.Logger
}

func NewReconciler(ports PortManager, ssl SSLEnabler, logger *slog.Logger) *Reconciler {
	return &Reconciler{ports: ports, ssl: ssl, logger: logger}
}

func (r *Reconciler) Reconcile(ctx context.Context, appName string, out app.OutputSink) ReconcileResult {
	log := r.logger.With("app_name", appName)

	current, err := r.ports.Ports(ctx, appName)
	if err != nil {
		log.Warn("Failed to read proxy ports, skipping proxy setup", "error", err)
		current = nil
	}
	result := ReconcileResult{Ports: current}
	if len(current) == 0 {
		log.Info("No proxy ports exposed, skipping proxy setup")
		return result
	}

	// TLS needs a host 80 mapping.
	if _, ok := FindHost(current, WebHostPort); !ok {
		web := ProxyPort{Scheme: "http", Host: WebHostPort, Container: current[0].Container}
		if err := r.ports.Add(ctx, appName, web); err != nil {
			log.Warn("Failed to add web port mapping", "port", web.String(), "error", err)
			return result
		}
		log.Info("Added web port mapping", "port", web.String())
		result.AddedWebPort = &web
		result.Ports = append(result.Ports, web)
	}

	if err := r.ssl.EnableSSL(ctx, appName, out); err != nil {
		log.Warn("Failed to enable TLS", "error", err)
		return result
	}
	result.SSLEnabled = true
	return result
}
