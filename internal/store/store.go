// Package store is the local SQLite store: entity tables with idempotent
// replace-by-primary-key upserts, per-collection sync checkpoints, the
// failed-operation queue, and sync-session history.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// Store wraps the local database. Writes are serialized with an internal
// mutex: the bulk walk, the out-of-band single-record path, and the retry
// sweep all share one connection pool, and SQLite tolerates exactly one
// writer at a time.
type Store struct {
	db      *sql.DB
	writeMu sync.Mutex
}

// Open opens (or creates) the local store under dataDir.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "fieldsync.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS units (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		abbrev TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS categories (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		parent_id INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS car_brands (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS car_models (
		id INTEGER PRIMARY KEY,
		brand_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS regions (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS warehouses (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS suppliers (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		barcode TEXT NOT NULL DEFAULT '',
		category_id INTEGER NOT NULL DEFAULT 0,
		unit_id INTEGER NOT NULL DEFAULT 0,
		supplier_id INTEGER NOT NULL DEFAULT 0,
		price REAL NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 1,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS price_lists (
		id INTEGER PRIMARY KEY,
		product_id INTEGER NOT NULL,
		customer_group TEXT NOT NULL DEFAULT '',
		price REAL NOT NULL DEFAULT 0,
		valid_from TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS stock_levels (
		id INTEGER PRIMARY KEY,
		product_id INTEGER NOT NULL,
		warehouse_id INTEGER NOT NULL,
		quantity REAL NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS customers (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		region_id INTEGER NOT NULL DEFAULT 0,
		customer_group TEXT NOT NULL DEFAULT '',
		debt REAL NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS customer_cars (
		id INTEGER PRIMARY KEY,
		customer_id INTEGER NOT NULL,
		model_id INTEGER NOT NULL,
		plate TEXT NOT NULL DEFAULT '',
		year INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS salesmen (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		role_id INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS routes (
		id INTEGER PRIMARY KEY,
		salesman_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		weekday INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS route_stops (
		id INTEGER PRIMARY KEY,
		route_id INTEGER NOT NULL,
		customer_id INTEGER NOT NULL,
		position INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS visits (
		id INTEGER PRIMARY KEY,
		route_id INTEGER NOT NULL,
		customer_id INTEGER NOT NULL,
		salesman_id INTEGER NOT NULL,
		visited_at TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS orders (
		id INTEGER PRIMARY KEY,
		customer_id INTEGER NOT NULL,
		salesman_id INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT '',
		total REAL NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS order_lines (
		id INTEGER PRIMARY KEY,
		order_id INTEGER NOT NULL,
		product_id INTEGER NOT NULL,
		quantity REAL NOT NULL DEFAULT 0,
		price REAL NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS line_suggestions (
		id INTEGER PRIMARY KEY,
		line_id INTEGER NOT NULL,
		product_id INTEGER NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS payments (
		id INTEGER PRIMARY KEY,
		order_id INTEGER NOT NULL,
		customer_id INTEGER NOT NULL,
		amount REAL NOT NULL DEFAULT 0,
		method TEXT NOT NULL DEFAULT '',
		paid_at TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS deliveries (
		id INTEGER PRIMARY KEY,
		order_id INTEGER NOT NULL,
		warehouse_id INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT '',
		scheduled_at TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sync_checkpoints (
		collection TEXT PRIMARY KEY,
		synced_as_of TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS failed_operations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		table_id INTEGER NOT NULL,
		record_id INTEGER NOT NULL,
		enqueued_at TEXT NOT NULL,
		UNIQUE(table_id, record_id)
	);

	CREATE TABLE IF NOT EXISTS sync_sessions (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		completed_at TEXT,
		status TEXT NOT NULL DEFAULT 'running',
		error_message TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_order_lines_order ON order_lines(order_id);
	CREATE INDEX IF NOT EXISTS idx_line_suggestions_line ON line_suggestions(line_id);
	CREATE INDEX IF NOT EXISTS idx_route_stops_route ON route_stops(route_id);
	CREATE INDEX IF NOT EXISTS idx_stock_levels_product ON stock_levels(product_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// entityTables lists every synced table, used by ClearAll and Count.
var entityTables = []string{
	"units", "categories", "car_brands", "car_models", "regions",
	"warehouses", "suppliers", "products", "price_lists", "stock_levels",
	"customers", "customer_cars", "salesmen", "routes", "route_stops",
	"visits", "orders", "order_lines", "line_suggestions", "payments",
	"deliveries",
}

// ClearAll wipes every synced record, all checkpoints, the failed-op
// queue, and the session history. Used on logout/account switch.
func (s *Store) ClearAll(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("clearing local data: %w", err)
	}
	defer tx.Rollback()

	tables := append([]string{}, entityTables...)
	tables = append(tables, "sync_checkpoints", "failed_operations", "sync_sessions")
	for _, table := range tables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("clearing local data: %w", err)
	}
	return nil
}

// CountRecords returns the number of rows in an entity table. Used by the
// status command.
func (s *Store) CountRecords(ctx context.Context, table string) (int64, error) {
	valid := false
	for _, t := range entityTables {
		if t == table {
			valid = true
			break
		}
	}
	if !valid {
		return 0, fmt.Errorf("unknown table: %q", table)
	}

	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count)
	return count, err
}

// withWriteTx runs fn inside a transaction while holding the write lock.
// Every page commit and single-record persist goes through here, so
// concurrent writers cannot interleave partial pages.
func (s *Store) withWriteTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
