package storedb

import (
	"context"
	"database/sql"
)

// RunInTransaction executes work atomically against a store handle: either
// every mutation work performs is durably committed, or none is. Any
// failure — begin, the work's own error, or commit — rolls back and
// returns a *TransactionError wrapping the cause; the cause stays
// reachable through errors.Is and errors.As. The store remains usable for
// subsequent calls after a failure.
//
// The executor makes exactly one attempt; busy-retry policy belongs to the
// caller (see dbopen.RunTx). work receives the transaction handle, not the
// store, so a nested RunInTransaction cannot be expressed on it — and
// calling RunInTransaction again with the captured *sql.DB from inside
// work would deadlock on the store's single-connection pool. Savepoint
// semantics are not provided.
func RunInTransaction(ctx context.Context, db *sql.DB, work func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return &TransactionError{Err: err}
	}
	// No-op after Commit; releases the store's single connection when work
	// panics so the store stays usable once the panic is recovered.
	defer tx.Rollback()
	if err := work(tx); err != nil {
		return &TransactionError{Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &TransactionError{Err: err}
	}
	return nil
}
