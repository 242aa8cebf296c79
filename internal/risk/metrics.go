package risk

// Level grades the current account risk.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Metrics is the account-level risk snapshot exposed to callers.
type Metrics struct {
	PortfolioValue    float64 `json:"portfolio_value"`
	DailyPnL          float64 `json:"daily_pnl"`
	DailyPnLPercent   float64 `json:"daily_pnl_percent"`
	WeeklyPnL         float64 `json:"weekly_pnl"`
	WeeklyPnLPercent  float64 `json:"weekly_pnl_percent"`
	MonthlyPnL        float64 `json:"monthly_pnl"`
	MonthlyPnLPercent float64 `json:"monthly_pnl_percent"`
	TotalPnL          float64 `json:"total_pnl"`

	RiskLevel  Level   `json:"risk_level"`
	Volatility float64 `json:"volatility"`

	OpenPositions int     `json:"open_positions"`
	PositionValue float64 `json:"position_value"`

	DailyLossLimitRemaining   float64 `json:"daily_loss_limit_remaining"`
	WeeklyLossLimitRemaining  float64 `json:"weekly_loss_limit_remaining"`
	MonthlyLossLimitRemaining float64 `json:"monthly_loss_limit_remaining"`
	TotalLossLimitRemaining   float64 `json:"total_loss_limit_remaining"`
}

// BuildMetrics combines a profile with the live account snapshot.
// portfolioValue of zero leaves the percent fields at zero.
func BuildMetrics(profile Profile, snap AccountSnapshot, portfolioValue float64) Metrics {
	m := Metrics{
		PortfolioValue: portfolioValue,
		DailyPnL:       snap.DailyPnL,
		WeeklyPnL:      snap.WeeklyPnL,
		MonthlyPnL:     snap.MonthlyPnL,
		TotalPnL:       snap.TotalPnL,
		Volatility:     snap.CurrentVolatility,
		OpenPositions:  snap.OpenPositions,
		PositionValue:  snap.PositionValue,

		DailyLossLimitRemaining:   profile.DailyLossLimit + snap.DailyPnL,
		WeeklyLossLimitRemaining:  profile.WeeklyLossLimit + snap.WeeklyPnL,
		MonthlyLossLimitRemaining: profile.MonthlyLossLimit + snap.MonthlyPnL,
		TotalLossLimitRemaining:   profile.TotalLossLimit + snap.TotalPnL,
	}
	if portfolioValue > 0 {
		m.DailyPnLPercent = snap.DailyPnL / portfolioValue * 100
		m.WeeklyPnLPercent = snap.WeeklyPnL / portfolioValue * 100
		m.MonthlyPnLPercent = snap.MonthlyPnL / portfolioValue * 100
	}
	m.RiskLevel = classify(m.DailyPnLPercent, m.WeeklyPnLPercent, m.MonthlyPnLPercent)
	return m
}

func classify(daily, weekly, monthly float64) Level {
	switch {
	case daily < -5 || weekly < -15 || monthly < -25:
		return LevelCritical
	case daily < -3 || weekly < -10 || monthly < -20:
		return LevelHigh
	case daily < -1 || weekly < -5 || monthly < -10:
		return LevelMedium
	default:
		return LevelLow
	}
}
