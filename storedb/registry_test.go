package storedb_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/comptoir/storedb"
)

// fakeHasher hashes deterministically so tests can recognize seeded values.
type fakeHasher struct{ prefix string }

func (f fakeHasher) Hash(plain string) (string, error) {
	p := f.prefix
	if p == "" {
		p = "hashed:"
	}
	return p + plain, nil
}

type failingHasher struct{}

func (failingHasher) Hash(string) (string, error) {
	return "", errors.New("hash backend unavailable")
}

func newTestRegistry(t *testing.T, opts ...storedb.Option) *storedb.Registry {
	t.Helper()
	opts = append([]storedb.Option{storedb.WithHasher(fakeHasher{})}, opts...)
	reg := storedb.NewRegistry(storedb.Config{DataDir: t.TempDir()}, opts...)
	t.Cleanup(func() { reg.CloseAll() })
	return reg
}

func TestGet_SameHandle(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	db1, err := reg.Operational(ctx)
	if err != nil {
		t.Fatalf("first Get: %v", err)
	}
	db2, err := reg.Operational(ctx)
	if err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if db1 != db2 {
		t.Fatal("Get returned different handles for the same store")
	}
}

func TestGet_UnknownStore(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := reg.Get(context.Background(), "inventory")
	if !errors.Is(err, storedb.ErrUnknownStore) {
		t.Fatalf("error = %v, want ErrUnknownStore", err)
	}
}

func TestGet_ConcurrentFirstAccess(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	const callers = 16
	handles := make([]any, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			db, err := reg.Security(ctx)
			handles[i] = db
			errs[i] = err
		}()
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if handles[i] != handles[0] {
			t.Fatalf("caller %d got a different handle", i)
		}
	}

	// Exactly one bootstrap ran: seeds are not duplicated.
	db, _ := reg.Security(ctx)
	var accounts int
	if err := db.QueryRow(`SELECT COUNT(*) FROM accounts`).Scan(&accounts); err != nil {
		t.Fatal(err)
	}
	if accounts != 1 {
		t.Fatalf("accounts = %d, want 1 after racing first access", accounts)
	}
}

func TestGet_FailedOpenNotCached(t *testing.T) {
	dir := t.TempDir()
	blocked := filepath.Join(dir, "stores")
	// A regular file where the data dir should be makes MkdirAll fail.
	if err := os.WriteFile(blocked, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	reg := storedb.NewRegistry(storedb.Config{DataDir: filepath.Join(blocked, "db")},
		storedb.WithHasher(fakeHasher{}))
	ctx := context.Background()

	_, err := reg.Operational(ctx)
	var connErr *storedb.ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("error = %v, want *ConnectionError", err)
	}
	if connErr.Store != storedb.StoreOperational {
		t.Fatalf("ConnectionError.Store = %q, want operational", connErr.Store)
	}
	if got := reg.State(storedb.StoreOperational); got != storedb.Unopened {
		t.Fatalf("state after failed open = %v, want unopened", got)
	}

	// Clearing the obstruction lets the next Get succeed: nothing was cached.
	if err := os.Remove(blocked); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Operational(ctx); err != nil {
		t.Fatalf("Get after clearing path: %v", err)
	}
	if got := reg.State(storedb.StoreOperational); got != storedb.Ready {
		t.Fatalf("state = %v, want ready", got)
	}
	reg.CloseAll()
}

func TestState_Lifecycle(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	if got := reg.State(storedb.StoreAudit); got != storedb.Unopened {
		t.Fatalf("initial state = %v, want unopened", got)
	}
	if _, err := reg.Audit(ctx); err != nil {
		t.Fatal(err)
	}
	if got := reg.State(storedb.StoreAudit); got != storedb.Ready {
		t.Fatalf("state after Get = %v, want ready", got)
	}
	reg.CloseAll()
	if got := reg.State(storedb.StoreAudit); got != storedb.Closed {
		t.Fatalf("state after CloseAll = %v, want closed", got)
	}
	if _, err := reg.Audit(ctx); err != nil {
		t.Fatalf("reopen after CloseAll: %v", err)
	}
	if got := reg.State(storedb.StoreAudit); got != storedb.Ready {
		t.Fatalf("state after reopen = %v, want ready", got)
	}
}

func TestCloseAll_NothingOpen(t *testing.T) {
	reg := storedb.NewRegistry(storedb.Config{DataDir: t.TempDir()})
	if err := reg.CloseAll(); err != nil {
		t.Fatalf("CloseAll with nothing open: %v", err)
	}
}

func TestCloseAll_Repeated(t *testing.T) {
	reg := newTestRegistry(t)
	if _, err := reg.Operational(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := reg.CloseAll(); err != nil {
		t.Fatalf("first CloseAll: %v", err)
	}
	if err := reg.CloseAll(); err != nil {
		t.Fatalf("second CloseAll: %v", err)
	}
}

func TestCloseAll_ReopenNoDuplicateSeeds(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	db, err := reg.Security(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var before int
	if err := db.QueryRow(`SELECT COUNT(*) FROM accounts`).Scan(&before); err != nil {
		t.Fatal(err)
	}

	reg.CloseAll()

	db, err = reg.Security(ctx)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	var after, groups int
	if err := db.QueryRow(`SELECT COUNT(*) FROM accounts`).Scan(&after); err != nil {
		t.Fatal(err)
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM access_groups`).Scan(&groups); err != nil {
		t.Fatal(err)
	}
	if after != before {
		t.Fatalf("accounts = %d after reopen, want %d", after, before)
	}
	if groups != 1 {
		t.Fatalf("access_groups = %d after reopen, want 1", groups)
	}
}

func TestDurabilityProfile(t *testing.T) {
	reg := newTestRegistry(t)
	db, err := reg.Operational(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatal(err)
	}
	if journalMode != "wal" {
		t.Fatalf("journal_mode = %q, want wal", journalMode)
	}

	checks := []struct {
		pragma string
		want   int
	}{
		{"foreign_keys", 1},
		{"synchronous", 1}, // NORMAL
		{"temp_store", 2},  // MEMORY
		{"busy_timeout", 10_000},
		{"cache_size", -8_000},
	}
	for _, c := range checks {
		var got int
		if err := db.QueryRow("PRAGMA " + c.pragma).Scan(&got); err != nil {
			t.Fatalf("PRAGMA %s: %v", c.pragma, err)
		}
		if got != c.want {
			t.Fatalf("%s = %d, want %d", c.pragma, got, c.want)
		}
	}
}

func TestNames_Stable(t *testing.T) {
	reg := newTestRegistry(t)
	names := reg.Names()
	want := []string{storedb.StoreOperational, storedb.StoreSecurity, storedb.StoreAudit}
	if len(names) != len(want) {
		t.Fatalf("Names() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("Names()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}
