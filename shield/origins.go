package shield

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Origins enforces the browser origin allow-list stored in the security
// store's permitted_origins table. Requests without an Origin header
// (same-origin navigation, curl, server-to-server) pass through; requests
// carrying a non-permitted Origin are rejected with 403. Permitted origins
// are echoed back in the CORS response headers so the BO frontend can call
// the API with credentials.
type Origins struct {
	db      *sql.DB
	mu      sync.RWMutex
	allowed map[string]struct{}
}

// NewOrigins creates the allow-list middleware over the security store.
// Call StartReloader to pick up rows added after startup.
func NewOrigins(db *sql.DB) *Origins {
	o := &Origins{
		db:      db,
		allowed: make(map[string]struct{}),
	}
	o.reload()
	return o
}

// Allowed reports whether origin is currently permitted.
func (o *Origins) Allowed(origin string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.allowed[origin]
	return ok
}

// Reload refreshes the allow-list from the store immediately.
func (o *Origins) Reload() { o.reload() }

// StartReloader starts a background goroutine that reloads the allow-list
// every 60 seconds. Stops when done is closed.
func (o *Origins) StartReloader(done <-chan struct{}) {
	tick := time.NewTicker(60 * time.Second)
	go func() {
		defer tick.Stop()
		for {
			select {
			case <-done:
				return
			case <-tick.C:
				o.reload()
			}
		}
	}()
}

func (o *Origins) reload() {
	rows, err := o.db.Query(`SELECT origin FROM permitted_origins`)
	if err != nil {
		slog.Warn("origins: failed to reload allow-list", "error", err)
		return
	}
	defer rows.Close()

	allowed := make(map[string]struct{})
	for rows.Next() {
		var origin string
		if err := rows.Scan(&origin); err != nil {
			continue
		}
		allowed[origin] = struct{}{}
	}

	o.mu.Lock()
	o.allowed = allowed
	o.mu.Unlock()

	slog.Debug("origins: allow-list reloaded", "count", len(allowed))
}

// Middleware enforces the allow-list and answers CORS preflights for
// permitted origins.
func (o *Origins) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}

		if !o.Allowed(origin) {
			slog.Warn("origins: request blocked", "origin", origin, "path", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]string{
				"error": "origin not permitted",
			})
			return
		}

		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
