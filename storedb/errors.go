package storedb

import (
	"errors"
	"fmt"
)

// ErrUnknownStore is returned by Get for a name outside the registered set.
var ErrUnknownStore = errors.New("storedb: unknown store")

// ConnectionError reports a store that could not be opened or could not take
// its durability profile. The store stays UNOPENED and the next Get retries
// from scratch.
type ConnectionError struct {
	Store string
	Err   error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("storedb: open %s store: %v", e.Store, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// SchemaError reports a structural object or seed row that could not be
// created during bootstrap. Fatal for that store: the handle is discarded
// and the store stays UNOPENED.
type SchemaError struct {
	Store  string
	Object string
	Err    error
}

func (e *SchemaError) Error() string {
	if e.Object == "" {
		return fmt.Sprintf("storedb: bootstrap %s store: %v", e.Store, e.Err)
	}
	return fmt.Sprintf("storedb: bootstrap %s store: %s: %v", e.Store, e.Object, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// TransactionError wraps any failure inside RunInTransaction: a begin
// failure, the work's own error, or a commit failure. The original cause
// stays reachable through errors.Is and errors.As.
type TransactionError struct {
	Err error
}

func (e *TransactionError) Error() string {
	return "storedb: transaction: " + e.Err.Error()
}

func (e *TransactionError) Unwrap() error { return e.Err }
