package repository

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by RemoveSymbol when the symbol is not watched.
	ErrNotFound = errors.New("symbol not watched")
	// ErrUnavailable wraps every backend failure, timeouts included.
	ErrUnavailable = errors.New("symbol store unavailable")
)

// AddOutcome reports what AddSymbols did with one symbol of the batch.
type AddOutcome struct {
	Symbol string
	Added  bool // false means it was already present
}

// SymbolStore is the durable record of the shared watchlist.
// Implementations must keep symbols unique under concurrent callers.
type SymbolStore interface {
	// AddSymbols inserts every absent symbol as one atomic batch.
	AddSymbols(ctx context.Context, symbols []string) ([]AddOutcome, error)
	// RemoveSymbol deletes the symbol or returns ErrNotFound.
	RemoveSymbol(ctx context.Context, symbol string) error
	// ListSymbols returns a consistent read of current membership.
	ListSymbols(ctx context.Context) ([]string, error)
	Close() error
}

// SnapshotSink receives every payload the hub fans out.
type SnapshotSink interface {
	Publish(ctx context.Context, payload []byte) error
}

func unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// StoreError carries the failed operation; it always matches ErrUnavailable.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return e.Op + ": " + ErrUnavailable.Error() + ": " + e.Err.Error() }

func (e *StoreError) Unwrap() []error { return []error{ErrUnavailable, e.Err} }
