// Package shield provides the HTTP protection middleware for the comptoir
// BO: security headers, body limits, request tracing, origin allow-listing,
// maintenance mode, and rate limiting. The store-backed middlewares read
// their rules from the operational and security stores and cache them in
// memory with periodic reload.
//
// Usage:
//
//	stack := shield.BOStack(operationalDB, securityDB)
//	stack.StartReloaders(done)
//	for _, mw := range stack.Middleware() {
//	    r.Use(mw)
//	}
package shield

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// Stack bundles the comptoir BO middleware in order, plus handles to the
// store-backed components so callers can start their reloaders and toggle
// state at runtime.
type Stack struct {
	Maintenance *MaintenanceMode
	RateLimiter *RateLimiter
	Origins     *Origins
}

// BOStack wires the standard BO protection stack: maintenance flag and rate
// limits come from the operational store, the origin allow-list from the
// security store. Health checks (/health) bypass maintenance.
func BOStack(operational, security *sql.DB) *Stack {
	return &Stack{
		Maintenance: NewMaintenanceMode(operational, "/health"),
		RateLimiter: NewRateLimiter(operational),
		Origins:     NewOrigins(security),
	}
}

// Middleware returns the stack in application order:
// Maintenance → SecurityHeaders → MaxFormBody → TraceID → Origins → RateLimiter.
func (s *Stack) Middleware() []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		s.Maintenance.Middleware,
		SecurityHeaders(DefaultHeaders()),
		MaxFormBody(64 * 1024),
		TraceID,
		s.Origins.Middleware,
		s.RateLimiter.Middleware,
	}
}

// StartReloaders starts the periodic reload goroutines of every
// store-backed component. They stop when done is closed.
func (s *Stack) StartReloaders(done <-chan struct{}) {
	s.Maintenance.StartReloader(done)
	s.RateLimiter.StartReloader(done)
	s.Origins.StartReloader(done)
}

// GetLogger retrieves the per-request logger from the context.
// Returns slog.Default() if no logger was set.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
