// Package risk implements pre-trade risk checks, scoring, and risk
// profile management.
package risk

import (
	"fmt"
	"time"
)

// Profile holds the per-user risk limits the gate enforces.
type Profile struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`

	MaxPositionSize float64 `json:"max_position_size"`
	MaxPositions    int     `json:"max_positions"`
	MaxLeverage     float64 `json:"max_leverage"`

	DailyLossLimit   float64 `json:"daily_loss_limit"`
	WeeklyLossLimit  float64 `json:"weekly_loss_limit"`
	MonthlyLossLimit float64 `json:"monthly_loss_limit"`
	TotalLossLimit   float64 `json:"total_loss_limit"`

	StopLossPercent   float64 `json:"stop_loss_percent"`
	TakeProfitPercent float64 `json:"take_profit_percent"`

	MaxVolatilityThreshold float64 `json:"max_volatility_threshold"`

	TradingHoursStart string `json:"trading_hours_start"` // "HH:MM"
	TradingHoursEnd   string `json:"trading_hours_end"`
	WeekendTrading    bool   `json:"weekend_trading"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultProfile returns the baseline limits applied to new users.
func DefaultProfile(userID string) Profile {
	now := time.Now().UTC()
	return Profile{
		UserID:                 userID,
		Name:                   "default",
		Active:                 true,
		MaxPositionSize:        10000,
		MaxPositions:           10,
		MaxLeverage:            1,
		DailyLossLimit:         1000,
		WeeklyLossLimit:        5000,
		MonthlyLossLimit:       20000,
		TotalLossLimit:         50000,
		StopLossPercent:        5,
		TakeProfitPercent:      10,
		MaxVolatilityThreshold: 50,
		TradingHoursStart:      "09:00",
		TradingHoursEnd:        "17:00",
		WeekendTrading:         false,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
}

// Validate checks internal consistency of the limit fields. The loss
// limits must widen with the period so a tighter long-period limit cannot
// silently shadow a looser short one.
func (p Profile) Validate() error {
	if p.MaxPositionSize <= 0 {
		return fmt.Errorf("max_position_size must be positive")
	}
	if p.MaxPositions <= 0 {
		return fmt.Errorf("max_positions must be positive")
	}
	if p.DailyLossLimit <= 0 || p.WeeklyLossLimit <= 0 || p.MonthlyLossLimit <= 0 || p.TotalLossLimit <= 0 {
		return fmt.Errorf("loss limits must be positive")
	}
	if p.WeeklyLossLimit < 5*p.DailyLossLimit {
		return fmt.Errorf("weekly loss limit should be at least 5x daily loss limit")
	}
	if p.MonthlyLossLimit < 3*p.WeeklyLossLimit {
		return fmt.Errorf("monthly loss limit should be at least 3x weekly loss limit")
	}
	if p.TotalLossLimit < 2*p.MonthlyLossLimit {
		return fmt.Errorf("total loss limit should be at least 2x monthly loss limit")
	}
	if _, err := parseClock(p.TradingHoursStart); err != nil {
		return fmt.Errorf("trading_hours_start: %w", err)
	}
	if _, err := parseClock(p.TradingHoursEnd); err != nil {
		return fmt.Errorf("trading_hours_end: %w", err)
	}
	if p.TradingHoursEnd <= p.TradingHoursStart {
		return fmt.Errorf("trading end time must be after start time")
	}
	return nil
}

func parseClock(s string) (time.Time, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid HH:MM time %q", s)
	}
	return t, nil
}
