package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/glebarez/go-sqlite"

	"github.com/makwana23-Harshil/binance-bot/internal/domain"
	"github.com/makwana23-Harshil/binance-bot/pkg/quant"
)

// Store persists orders and strategies in SQLite. Every durable record
// is written before the corresponding network call goes out, so a crash
// between write and acknowledgement leaves a row we can reconcile
// against the exchange on restart.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the SQLite database at dbPath with WAL
// mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=-2000;", // 2MB cache
		"PRAGMA foreign_keys=ON;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS orders (
			client_id TEXT PRIMARY KEY,
			strategy_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			status TEXT NOT NULL,
			filled_qty INTEGER NOT NULL DEFAULT 0,
			payload BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_orders_strategy ON orders(strategy_id);`,
		`CREATE TABLE IF NOT EXISTS strategies (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			symbol TEXT NOT NULL,
			status TEXT NOT NULL,
			fail_cause TEXT NOT NULL DEFAULT '',
			params BLOB NOT NULL,
			state BLOB NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &Store{db: db}, nil
}

// SaveOrder inserts or replaces the full order row keyed by client id.
func (s *Store) SaveOrder(ctx context.Context, o domain.Order) error {
	payload, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to marshal order %s: %w", o.ClientID, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO orders (client_id, strategy_id, symbol, status, filled_qty, payload, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(client_id) DO UPDATE SET
			status=excluded.status,
			filled_qty=excluded.filled_qty,
			payload=excluded.payload,
			updated_at=excluded.updated_at`,
		o.ClientID, o.StrategyID, o.Symbol, string(o.Status), int64(o.FilledQtySats), payload, int64(quant.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to save order %s: %w", o.ClientID, err)
	}
	return nil
}

// GetOrder loads a single order by client id. Returns domain.ErrNotFound
// when no row exists.
func (s *Store) GetOrder(ctx context.Context, clientID string) (domain.Order, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM orders WHERE client_id = ?", clientID,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return domain.Order{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("failed to load order %s: %w", clientID, err)
	}

	var o domain.Order
	if err := json.Unmarshal(payload, &o); err != nil {
		return domain.Order{}, fmt.Errorf("failed to unmarshal order %s: %w", clientID, err)
	}
	return o, nil
}

// LoadOpenOrders returns every order still in a non-terminal status.
// Used on startup to reconcile against the exchange.
func (s *Store) LoadOpenOrders(ctx context.Context) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT payload FROM orders WHERE status IN (?, ?, ?) ORDER BY updated_at",
		string(domain.StatusPending), string(domain.StatusOpen), string(domain.StatusPartiallyFilled),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query open orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan order row: %w", err)
		}
		var o domain.Order
		if err := json.Unmarshal(payload, &o); err != nil {
			return nil, fmt.Errorf("failed to unmarshal order row: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// LoadStrategyOrders returns all orders belonging to one strategy.
func (s *Store) LoadStrategyOrders(ctx context.Context, strategyID string) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT payload FROM orders WHERE strategy_id = ? ORDER BY updated_at", strategyID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query strategy orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan order row: %w", err)
		}
		var o domain.Order
		if err := json.Unmarshal(payload, &o); err != nil {
			return nil, fmt.Errorf("failed to unmarshal order row: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// SaveStrategy inserts or replaces a strategy record.
func (s *Store) SaveStrategy(ctx context.Context, rec domain.StrategyRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO strategies (id, kind, symbol, status, fail_cause, params, state, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			status=excluded.status,
			fail_cause=excluded.fail_cause,
			state=excluded.state,
			updated_at=excluded.updated_at`,
		rec.ID, string(rec.Kind), rec.Symbol, string(rec.Status), rec.FailCause,
		[]byte(rec.Params), []byte(rec.State), rec.CreatedUnixM, rec.UpdatedUnixM,
	)
	if err != nil {
		return fmt.Errorf("failed to save strategy %s: %w", rec.ID, err)
	}
	return nil
}

// GetStrategy loads a strategy record by id. Returns domain.ErrNotFound
// when no row exists.
func (s *Store) GetStrategy(ctx context.Context, id string) (domain.StrategyRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, kind, symbol, status, fail_cause, params, state, created_at, updated_at FROM strategies WHERE id = ?",
		id,
	)
	rec, err := scanStrategy(row)
	if err == sql.ErrNoRows {
		return domain.StrategyRecord{}, domain.ErrNotFound
	}
	return rec, err
}

// LoadActiveStrategies returns every strategy not yet in a terminal
// status, ordered by creation time.
func (s *Store) LoadActiveStrategies(ctx context.Context) ([]domain.StrategyRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, kind, symbol, status, fail_cause, params, state, created_at, updated_at FROM strategies WHERE status IN (?, ?) ORDER BY created_at",
		string(domain.StrategyActive), string(domain.StrategyCompleting),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query active strategies: %w", err)
	}
	defer rows.Close()

	var recs []domain.StrategyRecord
	for rows.Next() {
		rec, err := scanStrategy(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStrategy(row rowScanner) (domain.StrategyRecord, error) {
	var rec domain.StrategyRecord
	var kind, status string
	var params, state []byte
	err := row.Scan(&rec.ID, &kind, &rec.Symbol, &status, &rec.FailCause,
		&params, &state, &rec.CreatedUnixM, &rec.UpdatedUnixM)
	if err != nil {
		return domain.StrategyRecord{}, err
	}
	rec.Kind = domain.StrategyKind(kind)
	rec.Status = domain.StrategyStatus(status)
	rec.Params = json.RawMessage(params)
	rec.State = json.RawMessage(state)
	return rec, nil
}

// UpsertMetadata saves a key-value pair to the metadata table.
func (s *Store) UpsertMetadata(ctx context.Context, key, value string, ts int64) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO metadata (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at",
		key, value, ts,
	)
	return err
}

// GetMetadata retrieves a value from the metadata table. Returns the
// empty string when the key is absent.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
