package storedb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// Object is one structural element of a store schema: a table or an index,
// its create-if-absent statement, and the tables that must exist before it.
// Bootstrap executes objects in slice order; Validate proves the order
// respects the declared dependencies instead of leaving it implied by text
// position.
type Object struct {
	Name      string
	Kind      string // "table" or "index"
	DependsOn []string
	SQL       string
}

// Seed is one insert-if-absent default row. Seeds never overwrite: every
// statement is INSERT OR IGNORE keyed on the row's primary key.
type Seed struct {
	Name string
	SQL  string
}

// CredentialSeed describes the one seed row whose value passes through the
// password hasher: the default admin account. Only the security store
// carries one. SQL takes two arguments, username and hash.
type CredentialSeed struct {
	Name     string
	Username string
	Password string
	SQL      string
}

// Schema is the full bootstrap payload for one store: ordered structural
// objects, plain seed rows, and the optional hashed credential seed.
type Schema struct {
	Store      string
	Objects    []Object
	Seeds      []Seed
	Credential *CredentialSeed
}

// Validate mechanically checks the dependency order: object names must be
// unique, and every DependsOn entry must name a table created earlier in
// the list. Earlier-only references make the order acyclic by construction.
func (s *Schema) Validate() error {
	seen := make(map[string]string, len(s.Objects))
	for i, o := range s.Objects {
		if o.Name == "" || o.SQL == "" {
			return fmt.Errorf("storedb: schema %s: object %d missing name or SQL", s.Store, i)
		}
		if o.Kind != "table" && o.Kind != "index" {
			return fmt.Errorf("storedb: schema %s: %s: unknown kind %q", s.Store, o.Name, o.Kind)
		}
		if _, dup := seen[o.Name]; dup {
			return fmt.Errorf("storedb: schema %s: duplicate object %s", s.Store, o.Name)
		}
		if o.Kind == "index" && len(o.DependsOn) == 0 {
			return fmt.Errorf("storedb: schema %s: index %s does not declare its table", s.Store, o.Name)
		}
		for _, dep := range o.DependsOn {
			kind, ok := seen[dep]
			if !ok {
				return fmt.Errorf("storedb: schema %s: %s depends on %s, which is not created before it", s.Store, o.Name, dep)
			}
			if kind != "table" {
				return fmt.Errorf("storedb: schema %s: %s depends on %s, which is not a table", s.Store, o.Name, dep)
			}
		}
		seen[o.Name] = o.Kind
	}
	return nil
}

// bootstrap applies a store schema to an open, profile-configured handle.
// Safe to rerun on every cold start and under a cross-process race: all
// statements are create-if-absent / insert-if-absent. The credential seed
// is the only best-effort step; everything else is structural and aborts
// bootstrap as a SchemaError.
func bootstrap(ctx context.Context, db *sql.DB, s *Schema, h Hasher, logger *slog.Logger) error {
	if err := s.Validate(); err != nil {
		return &SchemaError{Store: s.Store, Err: err}
	}
	for _, o := range s.Objects {
		if _, err := db.ExecContext(ctx, o.SQL); err != nil {
			return &SchemaError{Store: s.Store, Object: o.Name, Err: err}
		}
	}
	for _, seed := range s.Seeds {
		if _, err := db.ExecContext(ctx, seed.SQL); err != nil {
			return &SchemaError{Store: s.Store, Object: seed.Name, Err: err}
		}
	}
	if s.Credential != nil {
		seedCredential(ctx, db, s.Credential, h, logger)
	}
	return nil
}

// seedCredential inserts the default admin account. A missing or failing
// hasher skips the row with a warning so the store still reaches READY;
// the row is inserted only if absent and never overwritten.
func seedCredential(ctx context.Context, db *sql.DB, c *CredentialSeed, h Hasher, logger *slog.Logger) {
	if h == nil {
		logger.Warn("default admin not seeded: no password hasher configured",
			"account", c.Username)
		return
	}
	hash, err := h.Hash(c.Password)
	if err != nil {
		logger.Warn("default admin not seeded: password hash failed",
			"account", c.Username, "error", err)
		return
	}
	res, err := db.ExecContext(ctx, c.SQL, c.Username, hash)
	if err != nil {
		logger.Warn("default admin not seeded: insert failed",
			"account", c.Username, "error", err)
		return
	}
	if n, _ := res.RowsAffected(); n > 0 {
		logger.Info("default admin seeded", "account", c.Username)
	}
}
