package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-watchlist/pkg/models"
)

// Tables created by older deployments lack the UNIQUE constraint, so the index
// is added separately. Its name matches the one Postgres gives the constraint,
// which makes the second statement a no-op on fresh tables.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS stock_watchlist (
	id     SERIAL PRIMARY KEY,
	symbol VARCHAR(10) NOT NULL UNIQUE
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS stock_watchlist_symbol_key ON stock_watchlist (symbol)`,
}

const duplicateDatabase = "42P04"

// EnsureDatabase creates the named database through a connection to the
// maintenance database when it does not exist yet.
func EnsureDatabase(ctx context.Context, admin *sql.DB, name string, logger *zap.Logger) error {
	var exists bool
	err := admin.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, name).Scan(&exists)
	if err != nil {
		return unavailable("bootstrap", err)
	}
	if exists {
		return nil
	}

	// CREATE DATABASE takes no bind parameters.
	if _, err := admin.ExecContext(ctx, "CREATE DATABASE "+pgx.Identifier{name}.Sanitize()); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == duplicateDatabase {
			return nil // another instance created it first
		}
		return unavailable("bootstrap", err)
	}
	logger.Info("Database created", zap.String("database", name))
	return nil
}

var _ SymbolStore = (*PostgresStore)(nil)

// PostgresStore persists the watchlist in the stock_watchlist table.
// The UNIQUE constraint on symbol is what keeps racing adds from duplicating rows.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the watchlist table and its symbol index if missing.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return unavailable("schema", err)
		}
	}
	return nil
}

func (p *PostgresStore) AddSymbols(ctx context.Context, symbols []string) (_ []AddOutcome, err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("add", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	out := make([]AddOutcome, len(symbols))
	for i, sym := range symbols {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO stock_watchlist (symbol) VALUES ($1) ON CONFLICT (symbol) DO NOTHING`, sym)
		if err != nil {
			return nil, unavailable("add", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, unavailable("add", err)
		}
		out[i] = AddOutcome{Symbol: sym, Added: n == 1}
	}

	if err = tx.Commit(); err != nil {
		return nil, unavailable("add", err)
	}
	return out, nil
}

func (p *PostgresStore) RemoveSymbol(ctx context.Context, symbol string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM stock_watchlist WHERE symbol = $1`, symbol)
	if err != nil {
		return unavailable("remove", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("remove", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) ListSymbols(ctx context.Context) ([]string, error) {
	entries, err := p.Entries(ctx)
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
func (p *PostgresStore) Entries(ctx context.Context) ([]models.WatchlistEntry, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, symbol FROM stock_watchlist ORDER BY symbol`)
	if err != nil {
		return nil, unavailable("list", err)
	}
	defer rows.Close()

	var entries []models.WatchlistEntry
	for rows.Next() {
		var e models.WatchlistEntry
		if err := rows.Scan(&e.ID, &e.Symbol); err != nil {
			return nil, unavailable("list", err)
		}
		entries = append(entries, e)
	}
	return entries, unavailable("list", rows.Err())
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}
