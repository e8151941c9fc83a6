package shield_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/comptoir/shield"
	"github.com/hazyhaar/comptoir/storedb"
)

// TestBOStack_OverBootstrappedStores runs the full stack against stores
// bootstrapped by the registry, so the middleware reads the real seed rows
// (maintenance flag, rate limits, permitted origins).
func TestBOStack_OverBootstrappedStores(t *testing.T) {
	ctx := context.Background()
	reg := storedb.NewRegistry(storedb.Config{DataDir: t.TempDir()})
	defer reg.CloseAll()

	opDB, err := reg.Operational(ctx)
	if err != nil {
		t.Fatalf("operational store: %v", err)
	}
	secDB, err := reg.Security(ctx)
	if err != nil {
		t.Fatalf("security store: %v", err)
	}

	stack := shield.BOStack(opDB, secDB)
	r := chi.NewRouter()
	for _, mw := range stack.Middleware() {
		r.Use(mw)
	}
	r.Get("/api/auth/me", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Plain request: security headers and trace ID present.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/auth/me", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("plain request: got %d, want 200", w.Code)
	}
	checks := map[string]string{
		"X-Frame-Options":        "DENY",
		"X-Content-Type-Options": "nosniff",
	}
	for header, want := range checks {
		if got := w.Header().Get(header); got != want {
			t.Errorf("%s: got %q, want %q", header, got, want)
		}
	}
	traceID := w.Header().Get("X-Trace-ID")
	if !strings.HasPrefix(traceID, "trc_") {
		t.Errorf("X-Trace-ID: got %q, want trc_ prefix", traceID)
	}

	// Seeded dev origin is permitted; an unknown one is not.
	req := httptest.NewRequest("GET", "/api/auth/me", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("seeded origin: got %d, want 200", w.Code)
	}

	req = httptest.NewRequest("GET", "/api/auth/me", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("unknown origin: got %d, want 403", w.Code)
	}

	// Maintenance toggle blocks the API but not the health check.
	if err := stack.Maintenance.Set(true, "inventaire"); err != nil {
		t.Fatalf("maintenance set: %v", err)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/auth/me", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("during maintenance: got %d, want 503", w.Code)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("health during maintenance: got %d, want 200", w.Code)
	}
}
