// Package storedb owns the three comptoir data stores: connection
// lifecycle, durability configuration, and idempotent schema bootstrap.
//
// Stores are segregated by concern, one SQLite file each:
//
//	operational — registers, products, orders, cash sessions, coupons
//	security    — access groups, staff accounts, permitted origins
//	audit       — append-only audit trail
//
// A Registry holds at most one live connection per store. The first Get
// opens the file, applies the durability profile, and runs the store's
// bootstrap; later calls return the cached handle without redoing either:
//
//	reg := storedb.NewRegistry(storedb.Config{DataDir: "data"},
//		storedb.WithHasher(&auth.BcryptHasher{}))
//	db, err := reg.Operational(ctx)
//	...
//	defer reg.CloseAll()
package storedb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/hazyhaar/comptoir/dbopen"
)

// Store names understood by the Registry.
const (
	StoreOperational = "operational"
	StoreSecurity    = "security"
	StoreAudit       = "audit"
)

// State of one store's connection lifecycle.
type State int

const (
	Unopened State = iota
	Opening
	Bootstrapping
	Ready
	Closed
)

func (s State) String() string {
	switch s {
	case Unopened:
		return "unopened"
	case Opening:
		return "opening"
	case Bootstrapping:
		return "bootstrapping"
	case Ready:
		return "ready"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Hasher produces a one-way hash of a plaintext password. It is consumed at
// most once, while seeding the default admin account during security-store
// bootstrap. Absence or failure degrades to a logged warning, never a
// bootstrap failure.
type Hasher interface {
	Hash(plain string) (string, error)
}

// Config supplies store file locations and durability tuning.
type Config struct {
	// DataDir is the directory holding the three store files.
	// Created on first access if absent. Default "data".
	DataDir string

	// Env is the environment mode ("dev" or "prod"); recorded in lifecycle
	// logs so operators can tell store sets apart.
	Env string

	// BusyTimeoutMs is the engine lock wait in milliseconds. Default 10000.
	BusyTimeoutMs int

	// CacheKB is the per-store page cache budget in KiB. Default 8000.
	CacheKB int
}

func (c *Config) defaults() {
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.Env == "" {
		c.Env = "dev"
	}
	if c.BusyTimeoutMs <= 0 {
		c.BusyTimeoutMs = 10_000
	}
	if c.CacheKB <= 0 {
		c.CacheKB = 8_000
	}
}

// Registry holds at most one live connection per logical store, reachable
// by name, safe under concurrent first access. All lifecycle state lives
// here; there are no package-level store singletons.
type Registry struct {
	cfg    Config
	logger *slog.Logger
	hasher Hasher

	stores map[string]*entry
}

// entry is one store's slot. mu serializes the open/bootstrap/close
// sequence (at most one bootstrap per store even when first callers race);
// stmu guards the state field alone so State can report mid-transition.
type entry struct {
	name   string
	path   string
	schema *Schema

	mu    sync.Mutex
	stmu  sync.RWMutex
	state State
	db    *sql.DB
}

func (e *entry) getState() State {
	e.stmu.RLock()
	defer e.stmu.RUnlock()
	return e.state
}

func (e *entry) setState(s State) {
	e.stmu.Lock()
	e.state = s
	e.stmu.Unlock()
}

// Option configures a Registry during creation.
type Option func(*Registry)

// WithLogger sets the lifecycle event logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithHasher sets the password hasher used to seed the default admin
// account. Without one, the security store bootstraps with a warning and
// no admin row.
func WithHasher(h Hasher) Option {
	return func(r *Registry) { r.hasher = h }
}

// NewRegistry creates a Registry for the three comptoir stores. No file is
// touched until the first Get.
func NewRegistry(cfg Config, opts ...Option) *Registry {
	cfg.defaults()
	r := &Registry{cfg: cfg, stores: make(map[string]*entry, 3)}
	for _, o := range opts {
		o(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	for _, s := range []struct {
		name   string
		file   string
		schema *Schema
	}{
		{StoreOperational, "operational.db", OperationalSchema},
		{StoreSecurity, "security.db", SecuritySchema},
		{StoreAudit, "audit.db", AuditSchema},
	} {
		r.stores[s.name] = &entry{
			name:   s.name,
			path:   filepath.Join(cfg.DataDir, s.file),
			schema: s.schema,
		}
	}
	return r
}

// Get returns the singleton handle for the named store, opening and
// bootstrapping it on first access. Concurrent first callers serialize on
// the store's guard: one runs the open+bootstrap sequence, the rest block
// and then receive the same handle. A failed open or bootstrap caches
// nothing; the store drops back to UNOPENED and the next Get retries.
//
// ctx bounds the bootstrap statements. The open itself is bounded by the
// engine's busy timeout; callers wanting a hard deadline wrap Get.
func (r *Registry) Get(ctx context.Context, name string) (*sql.DB, error) {
	e, ok := r.stores[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStore, name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.getState() == Ready {
		return e.db, nil
	}

	// Unopened, or Closed being reopened by name.
	e.setState(Unopened)
	return r.open(ctx, e)
}

// Operational returns the operational store handle.
func (r *Registry) Operational(ctx context.Context) (*sql.DB, error) {
	return r.Get(ctx, StoreOperational)
}

// Security returns the security store handle.
func (r *Registry) Security(ctx context.Context) (*sql.DB, error) {
	return r.Get(ctx, StoreSecurity)
}

// Audit returns the audit store handle.
func (r *Registry) Audit(ctx context.Context) (*sql.DB, error) {
	return r.Get(ctx, StoreAudit)
}

// State reports the lifecycle state of the named store without blocking on
// an in-flight open. Unknown names report Unopened.
func (r *Registry) State(name string) State {
	e, ok := r.stores[name]
	if !ok {
		return Unopened
	}
	return e.getState()
}

// Names returns the registered store names in a stable order.
func (r *Registry) Names() []string {
	return []string{StoreOperational, StoreSecurity, StoreAudit}
}

// CloseAll closes every open handle and forgets it. Safe with nothing open
// and safe to call repeatedly. A later Get reopens the store by name and
// reruns its idempotent bootstrap.
func (r *Registry) CloseAll() error {
	var firstErr error
	for _, name := range r.Names() {
		e := r.stores[name]
		e.mu.Lock()
		if e.db != nil {
			if err := e.db.Close(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("storedb: close %s store: %w", e.name, err)
			}
			e.db = nil
			e.setState(Closed)
			r.logger.Info("store closed", "store", e.name)
		}
		e.mu.Unlock()
	}
	return firstErr
}

// open runs the OPENING → BOOTSTRAPPING → READY sequence for e. Caller
// holds e.mu. Any failure discards the handle and resets to UNOPENED.
func (r *Registry) open(ctx context.Context, e *entry) (*sql.DB, error) {
	e.setState(Opening)
	r.logger.Info("store opening", "store", e.name, "path", e.path, "env", r.cfg.Env)

	db, err := dbopen.Open(e.path, r.profile()...)
	if err != nil {
		e.setState(Unopened)
		return nil, &ConnectionError{Store: e.name, Err: err}
	}
	// One live connection per store; concurrent queries serialize through
	// the engine's WAL locking.
	db.SetMaxOpenConns(1)

	e.setState(Bootstrapping)
	if err := bootstrap(ctx, db, e.schema, r.hasher, r.logger); err != nil {
		db.Close()
		e.setState(Unopened)
		return nil, err
	}

	e.db = db
	e.setState(Ready)
	r.logger.Info("store ready",
		"store", e.name, "objects", len(e.schema.Objects), "seeds", len(e.schema.Seeds))
	return db, nil
}

// profile is the comptoir durability profile, applied identically to every
// store before any schema or data operation: WAL journaling, foreign keys
// enforced, synchronous NORMAL, cache budget, temp tables in memory.
// Reapplying it on a reopen is harmless. A store that cannot take the full
// profile must not serve traffic, so any failure surfaces as a
// ConnectionError from open.
func (r *Registry) profile() []dbopen.Option {
	return []dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithBusyTimeout(r.cfg.BusyTimeoutMs),
		dbopen.WithCacheSize(-r.cfg.CacheKB),
		dbopen.WithTempStore("MEMORY"),
	}
}
