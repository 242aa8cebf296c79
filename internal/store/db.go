// Package store persists exchange credentials, strategy definitions, risk
// profiles, and trading statistics in SQLite.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

var ErrNotFound = errors.New("store: record not found")

// Database wraps the SQL handle for easier swapping/testing.
type Database struct {
	DB *sql.DB
}

// Open opens (and creates if needed) the SQLite database at path and
// applies the schema. Use ":memory:" for tests.
func Open(path string) (*Database, error) {
	if path == "" {
		return nil, errors.New("store: database path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite prefers single writer.
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{DB: db}
	if err := d.applySchema(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

// Close releases the underlying DB handle.
func (d *Database) Close() error {
	if d == nil || d.DB == nil {
		return nil
	}
	return d.DB.Close()
}

const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS exchange_credentials (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    exchange_type TEXT NOT NULL,
    name TEXT NOT NULL,
    api_key TEXT NOT NULL,
    api_secret TEXT NOT NULL,
    testnet BOOLEAN DEFAULT 0,
    is_active BOOLEAN DEFAULT 1,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS strategy_definitions (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    strategy_type TEXT NOT NULL,
    symbol TEXT NOT NULL,
    gateway_key TEXT,
    parameters TEXT,
    auto_start BOOLEAN DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS risk_profiles (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    name TEXT NOT NULL,
    is_active BOOLEAN DEFAULT 1,
    max_position_size REAL,
    max_positions INTEGER,
    max_leverage REAL,
    daily_loss_limit REAL,
    weekly_loss_limit REAL,
    monthly_loss_limit REAL,
    total_loss_limit REAL,
    stop_loss_percent REAL,
    take_profit_percent REAL,
    max_volatility_threshold REAL,
    trading_hours_start TEXT,
    trading_hours_end TEXT,
    weekend_trading BOOLEAN DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS trade_log (
    id TEXT PRIMARY KEY,
    strategy_id TEXT,
    symbol TEXT NOT NULL,
    side TEXT NOT NULL,
    qty REAL NOT NULL,
    price REAL NOT NULL,
    pnl REAL DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_trade_log_created ON trade_log(created_at);
CREATE INDEX IF NOT EXISTS idx_credentials_user ON exchange_credentials(user_id);
CREATE INDEX IF NOT EXISTS idx_risk_profiles_user ON risk_profiles(user_id, is_active);
`

func (d *Database) applySchema() error {
	if _, err := d.DB.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
