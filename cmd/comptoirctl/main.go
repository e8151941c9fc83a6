// Command comptoirctl is the operator CLI for the comptoir stores:
// bootstrap, schema checking, admin password reset, audit tailing, and
// maintenance toggling, all without going through the HTTP surface.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/comptoir/audit"
	"github.com/hazyhaar/comptoir/auth"
	"github.com/hazyhaar/comptoir/shield"
	"github.com/hazyhaar/comptoir/storedb"
)

func main() {
	var (
		dataDir     = flag.String("data-dir", "data", "directory holding the store files")
		envMode     = flag.String("env", "dev", "environment mode recorded in lifecycle logs")
		bootstrap   = flag.Bool("bootstrap", false, "open the three stores, run bootstrap, report states")
		check       = flag.Bool("check", false, "validate schema dependency order without touching files")
		resetAdmin  = flag.String("reset-admin", "", "set a new password for the admin account")
		auditTail   = flag.Int("audit-tail", 0, "print the N most recent audit entries")
		maintenance = flag.String("maintenance", "", "set maintenance mode: on or off")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch {
	case *check:
		runCheck()
	case *bootstrap:
		runBootstrap(ctx, *dataDir, *envMode, logger)
	case *resetAdmin != "":
		runResetAdmin(ctx, *dataDir, *envMode, logger, *resetAdmin)
	case *auditTail > 0:
		runAuditTail(ctx, *dataDir, *envMode, logger, *auditTail)
	case *maintenance != "":
		runMaintenance(ctx, *dataDir, *envMode, logger, *maintenance)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

// runCheck validates the three shipped schemas offline: every declared
// dependency must be created earlier in its list.
func runCheck() {
	schemas := []*storedb.Schema{
		storedb.OperationalSchema,
		storedb.SecuritySchema,
		storedb.AuditSchema,
	}
	failed := false
	for _, s := range schemas {
		if err := s.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", s.Store, err)
			failed = true
			continue
		}
		fmt.Printf("%s: ok (%d objects, %d seeds)\n", s.Store, len(s.Objects), len(s.Seeds))
	}
	if failed {
		os.Exit(1)
	}
}

func newRegistry(dataDir, envMode string, logger *slog.Logger) *storedb.Registry {
	return storedb.NewRegistry(storedb.Config{DataDir: dataDir, Env: envMode},
		storedb.WithLogger(logger),
		storedb.WithHasher(&auth.BcryptHasher{}))
}

func runBootstrap(ctx context.Context, dataDir, envMode string, logger *slog.Logger) {
	reg := newRegistry(dataDir, envMode, logger)
	defer reg.CloseAll()

	for _, name := range reg.Names() {
		if _, err := reg.Get(ctx, name); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
			os.Exit(1)
		}
	}
	for _, name := range reg.Names() {
		fmt.Printf("%s: %s\n", name, reg.State(name))
	}
}

func runResetAdmin(ctx context.Context, dataDir, envMode string, logger *slog.Logger, password string) {
	reg := newRegistry(dataDir, envMode, logger)
	defer reg.CloseAll()

	db, err := reg.Security(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "security store: %v\n", err)
		os.Exit(1)
	}
	svc := &accountTool{db: db, hasher: &auth.BcryptHasher{}}
	if err := svc.resetPassword(ctx, "admin", password); err != nil {
		fmt.Fprintf(os.Stderr, "reset admin: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("admin password updated")
}

func runAuditTail(ctx context.Context, dataDir, envMode string, logger *slog.Logger, n int) {
	reg := newRegistry(dataDir, envMode, logger)
	defer reg.CloseAll()

	db, err := reg.Audit(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "audit store: %v\n", err)
		os.Exit(1)
	}
	auditLog := audit.NewLogger(db, 1)
	defer auditLog.Close()

	entries, err := auditLog.Query(ctx, &audit.Filter{Limit: n})
	if err != nil {
		fmt.Fprintf(os.Stderr, "audit query: %v\n", err)
		os.Exit(1)
	}
	for _, e := range entries {
		line := fmt.Sprintf("%s  %-10s %-20s %s",
			e.Timestamp.Format(time.RFC3339), e.Component, e.Operation, e.Status)
		if e.ErrorMessage != "" {
			line += "  " + e.ErrorMessage
		}
		fmt.Println(line)
	}
}

func runMaintenance(ctx context.Context, dataDir, envMode string, logger *slog.Logger, mode string) {
	if mode != "on" && mode != "off" {
		fmt.Fprintf(os.Stderr, "maintenance: want on or off, got %q\n", mode)
		os.Exit(2)
	}
	reg := newRegistry(dataDir, envMode, logger)
	defer reg.CloseAll()

	db, err := reg.Operational(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "operational store: %v\n", err)
		os.Exit(1)
	}
	mm := shield.NewMaintenanceMode(db)
	if err := mm.Set(mode == "on", ""); err != nil {
		fmt.Fprintf(os.Stderr, "maintenance: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("maintenance: %s\n", mode)
}

// accountTool is the CLI-side slice of account management: password reset
// only, straight against the security store.
type accountTool struct {
	db     *sql.DB
	hasher *auth.BcryptHasher
}

func (t *accountTool) resetPassword(ctx context.Context, username, password string) error {
	hash, err := t.hasher.Hash(password)
	if err != nil {
		return err
	}
	res, err := t.db.ExecContext(ctx,
		`UPDATE accounts SET password_hash = ? WHERE username = ?`, hash, username)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("compte inconnu: %s", username)
	}
	return nil
}
