package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-watchlist/cmd/gateway/internal/repository"
)

const insertSQL = `INSERT INTO stock_watchlist (symbol) VALUES ($1) ON CONFLICT (symbol) DO NOTHING`

func newMockStore(t *testing.T) (*repository.PostgresStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return repository.NewPostgresStore(db), mock
}

func TestPostgresStore_EnsureSchemaAddsUniqueIndex(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS stock_watchlist")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE UNIQUE INDEX IF NOT EXISTS stock_watchlist_symbol_key ON stock_watchlist (symbol)")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_EnsureSchemaFailure(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE")).WillReturnError(errors.New("permission denied"))

	err := store.EnsureSchema(context.Background())
	assert.ErrorIs(t, err, repository.ErrUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AddReportsConflicts(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(insertSQL)).WithArgs("AAPL").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(insertSQL)).WithArgs("MSFT").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	out, err := store.AddSymbols(context.Background(), []string{"AAPL", "MSFT"})
	require.NoError(t, err)
	assert.Equal(t, []repository.AddOutcome{
		{Symbol: "AAPL", Added: true},
		{Symbol: "MSFT", Added: false},
	}, out)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AddRollsBackOnFailure(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(insertSQL)).WithArgs("AAPL").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(insertSQL)).WithArgs("MSFT").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	out, err := store.AddSymbols(context.Background(), []string{"AAPL", "MSFT"})
	assert.Nil(t, out)
	assert.ErrorIs(t, err, repository.ErrUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet(), "a failed batch must not commit")
}

func TestPostgresStore_Remove(t *testing.T) {
	store, mock := newMockStore(t)
	del := regexp.QuoteMeta(`DELETE FROM stock_watchlist WHERE symbol = $1`)
	mock.ExpectExec(del).WithArgs("AAPL").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(del).WithArgs("AAPL").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(del).WithArgs("MSFT").WillReturnError(errors.New("timeout"))

	ctx := context.Background()
	assert.NoError(t, store.RemoveSymbol(ctx, "AAPL"))
	assert.ErrorIs(t, store.RemoveSymbol(ctx, "AAPL"), repository.ErrNotFound)
	assert.ErrorIs(t, store.RemoveSymbol(ctx, "MSFT"), repository.ErrUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_List(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id::text, symbol FROM stock_watchlist ORDER BY symbol`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "symbol"}).AddRow("2", "AAPL").AddRow("1", "MSFT"))

	symbols, err := store.ListSymbols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, symbols)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureDatabase(t *testing.T) {
	exists := regexp.QuoteMeta(`SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`)
	create := regexp.QuoteMeta(`CREATE DATABASE "stock_demo_database"`)

	tests := []struct {
		name    string
		expect  func(mock sqlmock.Sqlmock)
		wantErr error
	}{
		{
			name: "already there",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(exists).WithArgs("stock_demo_database").
					WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
			},
		},
		{
			name: "missing",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(exists).WithArgs("stock_demo_database").
					WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
				mock.ExpectExec(create).WillReturnResult(sqlmock.NewResult(0, 0))
			},
		},
		{
			name: "created concurrently",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(exists).WithArgs("stock_demo_database").
					WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
				mock.ExpectExec(create).WillReturnError(&pgconn.PgError{Code: "42P04"})
			},
		},
		{
			name: "server down",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(exists).WillReturnError(errors.New("connection refused"))
			},
			wantErr: repository.ErrUnavailable,
		},
		{
			name: "no privilege",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(exists).WithArgs("stock_demo_database").
					WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
				mock.ExpectExec(create).WillReturnError(&pgconn.PgError{Code: "42501"})
			},
			wantErr: repository.ErrUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()
			tt.expect(mock)

			err = repository.EnsureDatabase(context.Background(), db, "stock_demo_database", zap.NewNop())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

// The tests below need a disposable database, e.g.
// WATCHLIST_TEST_POSTGRES_DSN=postgres://postgres@localhost:5432/watchlist_test?sslmode=disable
func openTestDB(t *testing.T) *sql.DB {
	dsn := os.Getenv("WATCHLIST_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("WATCHLIST_TEST_POSTGRES_DSN not set")
	}
	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newPostgresStore(t *testing.T) *repository.PostgresStore {
	db := openTestDB(t)
	ctx := context.Background()
	_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS stock_watchlist`)
	require.NoError(t, err)

	store := repository.NewPostgresStore(db)
	require.NoError(t, store.EnsureSchema(ctx))
	return store
}

func TestPostgresStore_Lifecycle(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()

	out, err := store.AddSymbols(ctx, []string{"MSFT", "AAPL"})
	require.NoError(t, err)
	assert.True(t, out[0].Added)
	assert.True(t, out[1].Added)

	out, err = store.AddSymbols(ctx, []string{"AAPL"})
	require.NoError(t, err)
	assert.False(t, out[0].Added)

	symbols, err := store.ListSymbols(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, symbols)

	require.NoError(t, store.RemoveSymbol(ctx, "AAPL"))
	assert.ErrorIs(t, store.RemoveSymbol(ctx, "AAPL"), repository.ErrNotFound)
}

func TestPostgresStore_ConcurrentAddsStayUnique(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	added := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := store.AddSymbols(ctx, []string{"NVDA"})
			if err != nil {
				t.Errorf("add failed: %v", err)
				return
			}
			if out[0].Added {
				mu.Lock()
				added++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, added, "exactly one add should insert")
	symbols, err := store.ListSymbols(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"NVDA"}, symbols)
}

func TestPostgresStore_UpgradesTableWithoutConstraint(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS stock_watchlist`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `CREATE TABLE stock_watchlist (id SERIAL PRIMARY KEY, symbol VARCHAR(10))`)
	require.NoError(t, err)

	store := repository.NewPostgresStore(db)
	require.NoError(t, store.EnsureSchema(ctx))

	for i := 0; i < 2; i++ {
		out, err := store.AddSymbols(ctx, []string{"TSLA"})
		require.NoError(t, err, fmt.Sprintf("add #%d", i+1))
		assert.Equal(t, i == 0, out[0].Added)
	}
}
