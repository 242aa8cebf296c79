package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"autotrader/internal/strategy"
)

// SyncDefinitions upserts strategy definitions loaded from the YAML
// config file so restarts keep them addressable by id.
func (d *Database) SyncDefinitions(ctx context.Context, defs []strategy.Definition) error {
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO strategy_definitions (id, name, strategy_type, symbol, gateway_key, parameters, auto_start, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			strategy_type = excluded.strategy_type,
			symbol = excluded.symbol,
			gateway_key = excluded.gateway_key,
			parameters = excluded.parameters,
			auto_start = excluded.auto_start,
			updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range defs {
		def := &defs[i]
		if def.ID == "" {
			def.ID = uuid.NewString()
		}
		params, err := json.Marshal(def.Parameters)
		if err != nil {
			return fmt.Errorf("marshal parameters for %s: %w", def.Name, err)
		}
		if _, err := stmt.ExecContext(ctx, def.ID, def.Name, string(def.Type), def.Symbol,
			def.GatewayKey, string(params), def.AutoStart); err != nil {
			return fmt.Errorf("upsert strategy %s: %w", def.Name, err)
		}
	}
	return tx.Commit()
}

// ListDefinitions returns every stored strategy definition.
func (d *Database) ListDefinitions(ctx context.Context) ([]strategy.Definition, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, name, strategy_type, symbol, COALESCE(gateway_key, ''), COALESCE(parameters, '{}'), auto_start
		FROM strategy_definitions ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	defer rows.Close()

	var out []strategy.Definition
	for rows.Next() {
		var def strategy.Definition
		var typ, params string
		if err := rows.Scan(&def.ID, &def.Name, &typ, &def.Symbol, &def.GatewayKey, &params, &def.AutoStart); err != nil {
			return nil, fmt.Errorf("scan definition: %w", err)
		}
		def.Type = strategy.Type(typ)
		if err := json.Unmarshal([]byte(params), &def.Parameters); err != nil {
			return nil, fmt.Errorf("parse parameters for %s: %w", def.ID, err)
		}
		out = append(out, def)
	}
	return out, rows.Err()
}
