package repository

import (
	"context"
	"errors"
	"time"
)

var _ SymbolStore = (*TimeoutStore)(nil)

// TimeoutStore bounds every call on the wrapped store so API callers never hang.
// The deadline travels in ctx; both backends abort on it, and whatever the
// backend returns is the outcome, so a committed write is never reported as failed.
type TimeoutStore struct {
	next    SymbolStore
	timeout time.Duration
}

func WithTimeout(next SymbolStore, timeout time.Duration) *TimeoutStore {
	return &TimeoutStore{next: next, timeout: timeout}
}

func (t *TimeoutStore) AddSymbols(ctx context.Context, symbols []string) ([]AddOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	out, err := t.next.AddSymbols(ctx, symbols)
	if err != nil {
		return nil, classify("add", err)
	}
	return out, nil
}

func (t *TimeoutStore) RemoveSymbol(ctx context.Context, symbol string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	return classify("remove", t.next.RemoveSymbol(ctx, symbol))
}

func (t *TimeoutStore) ListSymbols(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	out, err := t.next.ListSymbols(ctx)
	if err != nil {
		return nil, classify("list", err)
	}
	return out, nil
}

func (t *TimeoutStore) Close() error { return t.next.Close() }

// classify keeps ErrNotFound and already-wrapped errors, everything else becomes ErrUnavailable.
func classify(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnavailable) {
		return err
	}
	return unavailable(op, err)
}
