package shield

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	_ "modernc.org/sqlite"
)

func setupRateLimitDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	_, err = db.Exec(`
		CREATE TABLE rate_limits (
			endpoint       TEXT PRIMARY KEY,
			max_requests   INTEGER NOT NULL DEFAULT 60,
			window_seconds INTEGER NOT NULL DEFAULT 60,
			enabled        INTEGER NOT NULL DEFAULT 1
		);
		INSERT INTO rate_limits (endpoint, max_requests, window_seconds, enabled)
		VALUES ('/api/auth/login', 3, 60, 1);
	`)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRateLimiter_BlocksAfterLimit(t *testing.T) {
	rl := NewRateLimiter(setupRateLimitDB(t))
	handler := rl.Middleware(okHandler())

	doPost := func() int {
		req := httptest.NewRequest("POST", "/api/auth/login", nil)
		req.RemoteAddr = "10.0.0.7:4242"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	for i := 0; i < 3; i++ {
		if code := doPost(); code != http.StatusOK {
			t.Fatalf("request %d: got %d, want 200", i+1, code)
		}
	}
	if code := doPost(); code != http.StatusTooManyRequests {
		t.Fatalf("request over limit: got %d, want 429", code)
	}
}

func TestRateLimiter_PerIP(t *testing.T) {
	rl := NewRateLimiter(setupRateLimitDB(t))
	handler := rl.Middleware(okHandler())

	do := func(ip string) int {
		req := httptest.NewRequest("POST", "/api/auth/login", nil)
		req.RemoteAddr = ip + ":4242"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	for i := 0; i < 4; i++ {
		do("10.0.0.1")
	}
	// A different IP has its own bucket.
	if code := do("10.0.0.2"); code != http.StatusOK {
		t.Fatalf("fresh IP blocked: got %d, want 200", code)
	}
}

func TestRateLimiter_ConcurrentSameBucket(t *testing.T) {
	db := setupRateLimitDB(t)
	if _, err := db.Exec(`UPDATE rate_limits SET max_requests = 50 WHERE endpoint = '/api/auth/login'`); err != nil {
		t.Fatal(err)
	}
	rl := NewRateLimiter(db)

	// Hammer one ip+endpoint bucket from many goroutines; the count must be
	// exact, not racy, so exactly max_requests calls pass.
	const workers, perWorker = 10, 10
	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				if rl.allow("10.0.0.7", "POST", "/api/auth/login") {
					allowed.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != 50 {
		t.Fatalf("allowed = %d, want exactly 50 of %d", got, workers*perWorker)
	}
}

func TestRateLimiter_UnruledEndpointPasses(t *testing.T) {
	rl := NewRateLimiter(setupRateLimitDB(t))
	handler := rl.Middleware(okHandler())

	for i := 0; i < 10; i++ {
		req := httptest.NewRequest("GET", "/health", nil)
		req.RemoteAddr = "10.0.0.9:4242"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("unruled endpoint: got %d, want 200", w.Code)
		}
	}
}

func TestExtractIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		want       string
	}{
		{"remote addr", "192.168.1.5:1234", "", "192.168.1.5"},
		{"forwarded single", "10.0.0.1:1234", "203.0.113.7", "203.0.113.7"},
		{"forwarded chain", "10.0.0.1:1234", "203.0.113.7, 10.0.0.2", "203.0.113.7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := ExtractIP(req); got != tt.want {
				t.Errorf("ExtractIP: got %q, want %q", got, tt.want)
			}
		})
	}
}
