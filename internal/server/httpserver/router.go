// Package httpserver provides the admin HTTP server of vos-server.
package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/yndnr/vos-go/internal/server/httpserver/handler"
	"github.com/yndnr/vos-go/internal/telemetry/metric"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// Handler serves the routes.
	Handler handler.Config

	// Metrics records request metrics and serves /metrics. Nil disables both.
	Metrics *metric.Registry

	Logger *slog.Logger

	// AdminToken protects /admin/ paths when set.
	AdminToken string

	// AdminAllowList is the IP/CIDR allowlist for admin API (empty = no restriction).
	AdminAllowList []string

	// RateLimit is the per-client request rate; zero disables it.
	RateLimit float64
	RateBurst int

	// EnableAudit enables audit logging for all requests.
	EnableAudit bool
}

// NewRouter creates and configures the HTTP router with all routes and middleware.
//
// Order: Recover -> RequestID -> Audit -> RateLimit -> NetworkACL ->
// AdminAuth -> Metrics -> Handler.
func NewRouter(cfg *RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	hc := cfg.Handler
	if hc.Logger == nil {
		hc.Logger = cfg.Logger
	}
	if cfg.Metrics != nil && hc.Metrics == nil {
		hc.Metrics = cfg.Metrics.Handler()
	}
	h := handler.New(hc)

	middlewares := []Middleware{
		Recover(cfg.Logger),
		RequestID(),
	}
	if cfg.EnableAudit {
		middlewares = append(middlewares, Audit(cfg.Logger))
	}
	middlewares = append(middlewares,
		RateLimit(cfg.RateLimit, cfg.RateBurst, cfg.Metrics),
		NetworkACL(&NetworkACLConfig{AllowList: cfg.AdminAllowList, Logger: cfg.Logger}),
		AdminAuth(cfg.AdminToken),
		Metrics(cfg.Metrics),
	)
	return Chain(h, middlewares...)
}

// DefaultRouterConfig returns default router configuration.
func DefaultRouterConfig() *RouterConfig {
	return &RouterConfig{
		RateLimit:   200,
		RateBurst:   50,
		EnableAudit: true,
	}
}
