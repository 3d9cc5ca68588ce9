package repository

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/shubham-shewale/stock-watchlist/pkg/models"
)

const (
	entriesKey      = "watchlist:entries" // hash: symbol -> entry id
	snapshotKey     = "watchlist:snapshot"
	snapshotChannel = "watchlist.snapshots"
)

// Compile-time checks to ensure the Redis types implement their interfaces
var (
	_ SymbolStore  = (*RedisStore)(nil)
	_ SnapshotSink = (*RedisSnapshotMirror)(nil)
)

// RedisStore keeps the watchlist in a single hash so HSETNX enforces uniqueness.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// AddSymbols runs every HSETNX inside one MULTI/EXEC so the batch is all-or-nothing.
func (r *RedisStore) AddSymbols(ctx context.Context, symbols []string) ([]AddOutcome, error) {
	cmds := make([]*redis.BoolCmd, len(symbols))
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, sym := range symbols {
			cmds[i] = pipe.HSetNX(ctx, entriesKey, sym, uuid.NewString())
		}
		return nil
	})
	if err != nil {
		return nil, unavailable("add", err)
	}

	// A symbol repeated inside the batch reports Added only on its first occurrence.
	out := make([]AddOutcome, len(symbols))
	for i, sym := range symbols {
		out[i] = AddOutcome{Symbol: sym, Added: cmds[i].Val()}
	}
	return out, nil
}

func (r *RedisStore) RemoveSymbol(ctx context.Context, symbol string) error {
	n, err := r.client.HDel(ctx, entriesKey, symbol).Result()
	if err != nil {
		return unavailable("remove", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RedisStore) ListSymbols(ctx context.Context) ([]string, error) {
	entries, err := r.Entries(ctx)
	if err != nil {
		return nil, err
	}
	symbols := make([]string, len(entries))
	for i, e := range entries {
		symbols[i] = e.Symbol
	}
	return symbols, nil
}

// Entries returns every watchlist row ordered by symbol.
func (r *RedisStore) Entries(ctx context.Context) ([]models.WatchlistEntry, error) {
	m, err := r.client.HGetAll(ctx, entriesKey).Result()
	if err != nil {
		return nil, unavailable("list", err)
	}
	entries := make([]models.WatchlistEntry, 0, len(m))
	for sym, id := range m {
		entries = append(entries, models.WatchlistEntry{ID: id, Symbol: sym})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Symbol < entries[j].Symbol })
	return entries, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

// RedisSnapshotMirror stores the latest payload and publishes it for out-of-process readers.
type RedisSnapshotMirror struct {
	client *redis.Client
}

func NewRedisSnapshotMirror(client *redis.Client) *RedisSnapshotMirror {
	return &RedisSnapshotMirror{client: client}
}

// Publish performs SET + PUBLISH in a single pipeline.
func (m *RedisSnapshotMirror) Publish(ctx context.Context, payload []byte) error {
	pipe := m.client.Pipeline()
	pipe.Set(ctx, snapshotKey, payload, 0)
	pipe.Publish(ctx, snapshotChannel, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable("mirror", err)
	}
	return nil
}
