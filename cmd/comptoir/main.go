// Command comptoir is the retail back-office server: it owns the three
// segregated stores (operational, security, audit), the staff auth API,
// and the admin surface over the audit trail and the shield tables.
package main

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/comptoir/audit"
	"github.com/hazyhaar/comptoir/auth"
	"github.com/hazyhaar/comptoir/shield"
	"github.com/hazyhaar/comptoir/storedb"
)

func main() {
	configPath := flag.String("config", "comptoir.yaml", "path to YAML config file")
	flag.Parse()

	cfg := &Config{}
	if loaded, err := LoadConfigFile(*configPath); err == nil {
		cfg = loaded
	} else if !os.IsNotExist(err) {
		slog.Error("config", "path", *configPath, "error", err)
		os.Exit(1)
	}
	cfg.defaults()
	cfg.Addr = env("COMPTOIR_ADDR", cfg.Addr)
	cfg.DataDir = env("DATA_DIR", cfg.DataDir)
	cfg.LogLevel = env("LOG_LEVEL", cfg.LogLevel)

	secretInput := os.Getenv(cfg.SessionSecretEnv)
	if secretInput == "" {
		slog.Error("session secret is required", "env", cfg.SessionSecretEnv)
		os.Exit(1)
	}
	// Derive a 32-byte JWT secret via SHA-256 (satisfies auth.MinSecretLen).
	secretHash := sha256.Sum256([]byte(secretInput))
	jwtSecret := secretHash[:]

	// Logging.
	var lvl slog.Level
	switch cfg.LogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Store registry: the three stores open lazily, bootstrap on first
	// access, and seed the default admin through the bcrypt hasher.
	hasher := &auth.BcryptHasher{Cost: cfg.BcryptCost}
	registry := storedb.NewRegistry(storedb.Config{
		DataDir:       cfg.DataDir,
		Env:           cfg.Env,
		BusyTimeoutMs: cfg.BusyTimeoutMs,
		CacheKB:       cfg.CacheKB,
	}, storedb.WithLogger(logger), storedb.WithHasher(hasher))
	defer registry.CloseAll()

	operationalDB, err := registry.Operational(ctx)
	if err != nil {
		slog.Error("operational store", "error", err)
		os.Exit(1)
	}
	securityDB, err := registry.Security(ctx)
	if err != nil {
		slog.Error("security store", "error", err)
		os.Exit(1)
	}
	auditDB, err := registry.Audit(ctx)
	if err != nil {
		slog.Error("audit store", "error", err)
		os.Exit(1)
	}

	// Audit trail logger over the audit store.
	auditLog := audit.NewLogger(auditDB, cfg.Audit.BufferSize)
	defer auditLog.Close()
	if n, err := auditLog.Cleanup(ctx, cfg.Audit.RetentionDays); err != nil {
		slog.Warn("audit cleanup", "error", err)
	} else if n > 0 {
		slog.Info("audit cleanup", "deleted", n)
	}

	// Shield stack over the operational and security stores.
	stack := shield.BOStack(operationalDB, securityDB)
	stack.StartReloaders(ctx.Done())

	accounts := &accountService{db: securityDB, hasher: hasher}

	// Router.
	r := chi.NewRouter()
	for _, mw := range stack.Middleware() {
		r.Use(mw)
	}
	r.Use(auth.Middleware(jwtSecret)) // soft parse; RequireSession enforces

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	// Public auth endpoints.
	r.Post("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, 400, err)
			return
		}
		start := time.Now()
		claims, err := accounts.authenticate(r.Context(), req.Username, req.Password)
		if err != nil {
			auditLog.LogAsync(&audit.Entry{
				Component: "auth", Operation: "login", Status: "error",
				ErrorMessage: "identifiants invalides",
				Parameters:   jsonString(map[string]string{"username": req.Username}),
				RequestID:    shield.GetTraceID(r.Context()),
			})
			writeJSON(w, 401, map[string]string{"error": "identifiants invalides"})
			return
		}
		token, err := auth.GenerateToken(jwtSecret, claims, 24*time.Hour)
		if err != nil {
			writeError(w, 500, err)
			return
		}
		secure := r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
		auth.SetTokenCookie(w, token, secure)
		auditLog.LogAsync(auditLog.NewEntry("auth", "login",
			map[string]string{"username": req.Username}, nil, nil, time.Since(start)))
		writeJSON(w, 200, map[string]string{
			"id": claims.AccountID, "username": claims.Username, "group": claims.Group,
		})
	})

	r.Post("/api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		auth.ClearTokenCookie(w)
		if c := auth.GetClaims(r.Context()); c != nil {
			auditLog.LogAsync(&audit.Entry{
				Component: "auth", Operation: "logout", Actor: c.AccountID,
			})
		}
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	// Session-bound endpoints.
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireSession)

		r.Get("/api/auth/me", func(w http.ResponseWriter, r *http.Request) {
			c := auth.GetClaims(r.Context())
			writeJSON(w, 200, map[string]string{
				"id": c.AccountID, "username": c.Username, "group": c.Group,
			})
		})

		// Admin surface.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireGroup("administrateurs"))

			r.Get("/api/admin/stores", func(w http.ResponseWriter, r *http.Request) {
				states := map[string]string{}
				for _, name := range registry.Names() {
					states[name] = registry.State(name).String()
				}
				writeJSON(w, 200, states)
			})

			r.Get("/api/admin/audit", func(w http.ResponseWriter, r *http.Request) {
				f := &audit.Filter{
					Limit:    queryInt(r, "limit", 100),
					Offset:   queryInt(r, "offset", 0),
					OrderBy:  r.URL.Query().Get("order_by"),
					OrderDir: r.URL.Query().Get("order_dir"),
				}
				if v := r.URL.Query().Get("component"); v != "" {
					f.Component = &v
				}
				if v := r.URL.Query().Get("operation"); v != "" {
					f.Operation = &v
				}
				if v := r.URL.Query().Get("status"); v != "" {
					f.Status = &v
				}
				entries, err := auditLog.Query(r.Context(), f)
				if err != nil {
					writeError(w, 400, err)
					return
				}
				if entries == nil {
					entries = []*audit.Entry{}
				}
				writeJSON(w, 200, entries)
			})

			r.Post("/api/admin/maintenance", func(w http.ResponseWriter, r *http.Request) {
				var req struct {
					Active  bool   `json:"active"`
					Message string `json:"message"`
				}
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					writeError(w, 400, err)
					return
				}
				if err := stack.Maintenance.Set(req.Active, req.Message); err != nil {
					writeError(w, 500, err)
					return
				}
				c := auth.GetClaims(r.Context())
				auditLog.LogAsync(&audit.Entry{
					Component: "admin", Operation: "maintenance_toggle",
					Actor:      c.AccountID,
					Parameters: jsonString(req),
				})
				writeJSON(w, 200, map[string]bool{"active": stack.Maintenance.Active()})
			})

			r.Get("/api/admin/origins", func(w http.ResponseWriter, r *http.Request) {
				rows, err := securityDB.QueryContext(r.Context(),
					`SELECT origin, note, added_at FROM permitted_origins ORDER BY added_at`)
				if err != nil {
					writeError(w, 500, err)
					return
				}
				defer rows.Close()
				origins := []map[string]any{}
				for rows.Next() {
					var origin, note string
					var addedAt int64
					if err := rows.Scan(&origin, &note, &addedAt); err != nil {
						writeError(w, 500, err)
						return
					}
					origins = append(origins, map[string]any{
						"origin": origin, "note": note, "added_at": addedAt,
					})
				}
				writeJSON(w, 200, origins)
			})

			r.Post("/api/admin/origins", func(w http.ResponseWriter, r *http.Request) {
				var req struct {
					Origin string `json:"origin"`
					Note   string `json:"note"`
				}
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					writeError(w, 400, err)
					return
				}
				if req.Origin == "" {
					writeJSON(w, 400, map[string]string{"error": "origin requis"})
					return
				}
				_, err := securityDB.ExecContext(r.Context(),
					`INSERT OR IGNORE INTO permitted_origins (origin, note, added_at) VALUES (?, ?, ?)`,
					req.Origin, req.Note, time.Now().Unix())
				if err != nil {
					writeError(w, 500, err)
					return
				}
				stack.Origins.Reload()
				c := auth.GetClaims(r.Context())
				auditLog.LogAsync(&audit.Entry{
					Component: "admin", Operation: "origin_add",
					Actor: c.AccountID, Parameters: jsonString(req),
				})
				writeJSON(w, 201, map[string]string{"origin": req.Origin})
			})

			r.Get("/api/admin/accounts", func(w http.ResponseWriter, r *http.Request) {
				list, err := accounts.list(r.Context())
				if err != nil {
					writeError(w, 500, err)
					return
				}
				writeJSON(w, 200, list)
			})

			r.Post("/api/admin/accounts", func(w http.ResponseWriter, r *http.Request) {
				var req struct {
					Username    string `json:"username"`
					DisplayName string `json:"display_name"`
					Password    string `json:"password"`
					Group       string `json:"group"`
				}
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					writeError(w, 400, err)
					return
				}
				account, err := accounts.create(r.Context(), req.Username, req.DisplayName, req.Password, req.Group)
				if err != nil {
					writeError(w, 400, err)
					return
				}
				c := auth.GetClaims(r.Context())
				auditLog.LogAsync(&audit.Entry{
					Component: "admin", Operation: "account_create",
					Actor:      c.AccountID,
					Parameters: jsonString(map[string]string{"username": req.Username, "group": req.Group}),
				})
				writeJSON(w, 201, account)
			})

			r.Post("/api/admin/accounts/{accountID}/disable", func(w http.ResponseWriter, r *http.Request) {
				accountID := chi.URLParam(r, "accountID")
				if err := accounts.disable(r.Context(), accountID); err != nil {
					writeError(w, 500, err)
					return
				}
				c := auth.GetClaims(r.Context())
				auditLog.LogAsync(&audit.Entry{
					Component: "admin", Operation: "account_disable",
					Actor: c.AccountID, Parameters: jsonString(map[string]string{"id": accountID}),
				})
				writeJSON(w, 200, map[string]string{"status": "disabled"})
			})
		})
	})

	// HTTP server.
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	auditLog.LogAsync(&audit.Entry{Component: "storedb", Operation: "close_all"})
	slog.Info("server stopped")
}

// --- Helpers ---

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func jsonString(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
