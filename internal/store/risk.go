package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"autotrader/internal/risk"
)

// SaveRiskProfile validates and inserts a profile, deactivating any
// previously active profile for the same user.
func (d *Database) SaveRiskProfile(ctx context.Context, p *risk.Profile) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("save risk profile: %w", err)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE risk_profiles SET is_active = 0, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND is_active = 1
	`, p.UserID); err != nil {
		return fmt.Errorf("deactivate prior profile: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO risk_profiles (
			id, user_id, name, is_active,
			max_position_size, max_positions, max_leverage,
			daily_loss_limit, weekly_loss_limit, monthly_loss_limit, total_loss_limit,
			stop_loss_percent, take_profit_percent, max_volatility_threshold,
			trading_hours_start, trading_hours_end, weekend_trading
		) VALUES (?, ?, ?, 1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.UserID, p.Name,
		p.MaxPositionSize, p.MaxPositions, p.MaxLeverage,
		p.DailyLossLimit, p.WeeklyLossLimit, p.MonthlyLossLimit, p.TotalLossLimit,
		p.StopLossPercent, p.TakeProfitPercent, p.MaxVolatilityThreshold,
		p.TradingHoursStart, p.TradingHoursEnd, p.WeekendTrading); err != nil {
		return fmt.Errorf("insert risk profile: %w", err)
	}
	return tx.Commit()
}

// GetActiveRiskProfile returns the user's active profile.
func (d *Database) GetActiveRiskProfile(ctx context.Context, userID string) (*risk.Profile, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, user_id, name, is_active,
			max_position_size, max_positions, max_leverage,
			daily_loss_limit, weekly_loss_limit, monthly_loss_limit, total_loss_limit,
			stop_loss_percent, take_profit_percent, max_volatility_threshold,
			trading_hours_start, trading_hours_end, weekend_trading,
			created_at, updated_at
		FROM risk_profiles WHERE user_id = ? AND is_active = 1
	`, userID)

	var p risk.Profile
	err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.Active,
		&p.MaxPositionSize, &p.MaxPositions, &p.MaxLeverage,
		&p.DailyLossLimit, &p.WeeklyLossLimit, &p.MonthlyLossLimit, &p.TotalLossLimit,
		&p.StopLossPercent, &p.TakeProfitPercent, &p.MaxVolatilityThreshold,
		&p.TradingHoursStart, &p.TradingHoursEnd, &p.WeekendTrading,
		&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan risk profile: %w", err)
	}
	return &p, nil
}

// DeactivateRiskProfile soft-deletes the user's active profile.
func (d *Database) DeactivateRiskProfile(ctx context.Context, userID string) error {
	res, err := d.DB.ExecContext(ctx, `
		UPDATE risk_profiles SET is_active = 0, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND is_active = 1
	`, userID)
	if err != nil {
		return fmt.Errorf("deactivate risk profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: active profile for %s", ErrNotFound, userID)
	}
	return nil
}

// ProfileSource adapts the database to the engine's profile lookup for a
// fixed user, falling back to the default profile when none is stored.
type ProfileSource struct {
	DB     *Database
	UserID string
}

func (s ProfileSource) ActiveProfile(ctx context.Context) (risk.Profile, error) {
	p, err := s.DB.GetActiveRiskProfile(ctx, s.UserID)
	if errors.Is(err, ErrNotFound) {
		return risk.DefaultProfile(s.UserID), nil
	}
	if err != nil {
		return risk.Profile{}, err
	}
	return *p, nil
}
