package models

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// WatchlistEntry is one row of the shared watchlist. The ID never leaves the store.
type WatchlistEntry struct {
	ID     string
	Symbol string
}

// PriceQuote represents the simulated price of one watched symbol
type PriceQuote struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"` // 2 fraction digits, encoded as a string
	UpdatedAt time.Time       `json:"updatedAt"`
}

// MarshalJSON renders the price with exactly two fraction digits.
func (q PriceQuote) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Symbol    string    `json:"symbol"`
		Price     string    `json:"price"`
		UpdatedAt time.Time `json:"updatedAt"`
	}{q.Symbol, q.Price.StringFixed(2), q.UpdatedAt})
}

// Snapshot is the full set of quotes pushed to every viewer, ordered by symbol.
type Snapshot []PriceQuote

// Sort orders the snapshot ascending by symbol.
func (s Snapshot) Sort() {
	sort.Slice(s, func(i, j int) bool { return s[i].Symbol < s[j].Symbol })
}

// Symbols lists the snapshot's symbols in snapshot order.
func (s Snapshot) Symbols() []string {
	out := make([]string, len(s))
	for i, q := range s {
		out[i] = q.Symbol
	}
	return out
}

// Lookup indexes the snapshot by symbol.
func (s Snapshot) Lookup() map[string]PriceQuote {
	m := make(map[string]PriceQuote, len(s))
	for _, q := range s {
		m[q.Symbol] = q
	}
	return m
}
