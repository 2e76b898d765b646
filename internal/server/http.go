package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/alex-galey/dokku-deployer/internal/events"
	"github.com/alex-galey/dokku-deployer/internal/server/auth"
	"github.com/alex-galey/dokku-deployer/internal/shared"
	"github.com/alex-galey/dokku-deployer/internal/shared/metrics"
	"github.com/alex-galey/dokku-deployer/pkg/config"
	"github.com/gorilla/mux"
	"go.uber.org/fx"
)

type RouterParams struct {
	fx.In
	Config        config.HTTPConfig
	Websocket     *events.WebsocketHandler
	Metrics       *metrics.PrometheusCollector
	Authenticator auth.Authenticator
	Logger        *slog.Logger
}

// NewRouter serves the deployment event streams, Prometheus metrics and a
// liveness probe. Event streams require the API token when one is configured.
func NewRouter(p RouterParams) *mux.Router {
	r := mux.NewRouter()
	r.Use(CORSMiddleware(p.Config.CORS))

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.Handle("/metrics", p.Metrics.Handler()).Methods(http.MethodGet)

	ws := r.PathPrefix("/ws").Subrouter()
	ws.Use(authenticate(p.Authenticator, p.Logger))
	ws.Handle("/{topic}", p.Websocket).Methods(http.MethodGet, http.MethodOptions)

	return r
}

// authenticate resolves the caller's tenant from the bearer token. Browsers
// cannot set headers on websocket upgrades, so ?token= is accepted too.
func authenticate(authenticator auth.Authenticator, logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			token := BearerToken(r)
			if token == "" {
				token = r.URL.Query().Get("token")
			}
			tenant, err := authenticator.Authenticate(r.Context(), token)
			if err != nil {
				logger.Warn("Rejected unauthenticated request", "path", r.URL.Path, "remote", r.RemoteAddr)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.WithTenantContext(r.Context(), tenant)))
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// RegisterHTTPServer runs the router on the configured address for the
// lifetime of the application.
func RegisterHTTPServer(lc fx.Lifecycle, cfg config.HTTPConfig, router *mux.Router, logger *slog.Logger) {
	if !cfg.Enabled {
		logger.Info("HTTP endpoints disabled")
		return
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", cfg.Addr)
			if err != nil {
				return err
			}
			logger.Info("HTTP server listening", "address", ln.Addr().String())
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("HTTP server failed", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Shutting down HTTP server")
			return srv.Shutdown(ctx)
		},
	})
}
