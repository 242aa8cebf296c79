package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"autotrader/pkg/exchanges/common"
)

// Credential is a stored exchange API credential set.
type Credential struct {
	ID           string              `json:"id"`
	UserID       string              `json:"user_id"`
	ExchangeType common.ExchangeType `json:"exchange_type"`
	Name         string              `json:"name"`
	APIKey       string              `json:"api_key"`
	APISecret    string              `json:"-"`
	Testnet      bool                `json:"testnet"`
	Active       bool                `json:"active"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// SaveCredential inserts a credential, assigning an id when absent.
func (d *Database) SaveCredential(ctx context.Context, c *Credential) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO exchange_credentials (id, user_id, exchange_type, name, api_key, api_secret, testnet, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1)
	`, c.ID, c.UserID, string(c.ExchangeType), c.Name, c.APIKey, c.APISecret, c.Testnet)
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

// GetCredential returns one credential by id.
func (d *Database) GetCredential(ctx context.Context, id string) (*Credential, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, user_id, exchange_type, name, api_key, api_secret, testnet, is_active, created_at, updated_at
		FROM exchange_credentials WHERE id = ?
	`, id)
	return scanCredential(row)
}

// ListCredentials returns the user's active credentials.
func (d *Database) ListCredentials(ctx context.Context, userID string) ([]Credential, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, user_id, exchange_type, name, api_key, api_secret, testnet, is_active, created_at, updated_at
		FROM exchange_credentials WHERE user_id = ? AND is_active = 1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var out []Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// UpdateCredential replaces the key material for an existing credential.
func (d *Database) UpdateCredential(ctx context.Context, id, apiKey, apiSecret string) error {
	res, err := d.DB.ExecContext(ctx, `
		UPDATE exchange_credentials
		SET api_key = ?, api_secret = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, apiKey, apiSecret, id)
	if err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: credential %s", ErrNotFound, id)
	}
	return nil
}

// DeactivateCredential soft-deletes a credential.
func (d *Database) DeactivateCredential(ctx context.Context, id string) error {
	res, err := d.DB.ExecContext(ctx, `
		UPDATE exchange_credentials SET is_active = 0, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("deactivate credential: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: credential %s", ErrNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*Credential, error) {
	var c Credential
	var exchange string
	err := row.Scan(&c.ID, &c.UserID, &exchange, &c.Name, &c.APIKey, &c.APISecret,
		&c.Testnet, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan credential: %w", err)
	}
	c.ExchangeType = common.ExchangeType(exchange)
	return &c, nil
}
