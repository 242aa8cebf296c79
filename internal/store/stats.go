package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"autotrader/internal/risk"
)

// TradeRecord is one executed trade logged for statistics.
type TradeRecord struct {
	ID         string    `json:"id"`
	StrategyID string    `json:"strategy_id"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price"`
	PnL        float64   `json:"pnl"`
	CreatedAt  time.Time `json:"created_at"`
}

// LogTrade appends one trade to the statistics log.
func (d *Database) LogTrade(ctx context.Context, rec *TradeRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO trade_log (id, strategy_id, symbol, side, qty, price, pnl)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.StrategyID, rec.Symbol, rec.Side, rec.Quantity, rec.Price, rec.PnL)
	if err != nil {
		return fmt.Errorf("log trade: %w", err)
	}
	return nil
}

// sqliteTime matches the text layout CURRENT_TIMESTAMP stores, so range
// comparisons against default-populated columns stay correct.
func sqliteTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}

// PnLSince sums realized P&L for trades at or after since.
func (d *Database) PnLSince(ctx context.Context, since time.Time) (float64, error) {
	var pnl float64
	err := d.DB.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(pnl), 0) FROM trade_log WHERE created_at >= ?
	`, sqliteTime(since)).Scan(&pnl)
	if err != nil {
		return 0, fmt.Errorf("pnl since: %w", err)
	}
	return pnl, nil
}

// TradeCountSince counts trades at or after since.
func (d *Database) TradeCountSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := d.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM trade_log WHERE created_at >= ?
	`, sqliteTime(since)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("trade count since: %w", err)
	}
	return n, nil
}

// StatsSource aggregates the trade log into the account snapshot the risk
// gate consumes. Position figures come from the live position tracker;
// here they default to zero when no tracker is attached.
type StatsSource struct {
	DB *Database

	// optional live figures merged into the snapshot
	Positions func() (count int, value float64)
}

func (s StatsSource) AccountSnapshot(ctx context.Context) (risk.AccountSnapshot, error) {
	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	weekStart := dayStart.AddDate(0, 0, -int(now.Weekday()))
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	var snap risk.AccountSnapshot
	var err error
	if snap.DailyPnL, err = s.DB.PnLSince(ctx, dayStart); err != nil {
		return snap, err
	}
	if snap.WeeklyPnL, err = s.DB.PnLSince(ctx, weekStart); err != nil {
		return snap, err
	}
	if snap.MonthlyPnL, err = s.DB.PnLSince(ctx, monthStart); err != nil {
		return snap, err
	}
	if snap.TotalPnL, err = s.DB.PnLSince(ctx, time.Time{}); err != nil {
		return snap, err
	}
	if s.Positions != nil {
		snap.OpenPositions, snap.PositionValue = s.Positions()
	}
	return snap, nil
}
