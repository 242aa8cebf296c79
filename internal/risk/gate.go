package risk

import (
	"fmt"
	"time"

	"autotrader/pkg/exchanges/common"
)

// TradeRequest is the proposed trade handed to the gate.
type TradeRequest struct {
	Symbol    string           `json:"symbol"`
	Side      common.Side      `json:"side"`
	OrderType common.OrderType `json:"order_type"`
	Quantity  float64          `json:"quantity"`
	Price     float64          `json:"price"` // 0 for market orders
}

// AccountSnapshot carries the live position and P&L figures the gate
// evaluates limits against. Supplied by the caller, typically from the
// trading statistics store.
type AccountSnapshot struct {
	OpenPositions     int     `json:"open_positions"`
	PositionValue     float64 `json:"position_value"`
	DailyPnL          float64 `json:"daily_pnl"`
	WeeklyPnL         float64 `json:"weekly_pnl"`
	MonthlyPnL        float64 `json:"monthly_pnl"`
	TotalPnL          float64 `json:"total_pnl"`
	CurrentVolatility float64 `json:"current_volatility"`
}

// CheckResult is the structured verdict of one risk check.
type CheckResult struct {
	Allowed           bool              `json:"allowed"`
	RiskScore         float64           `json:"risk_score"`
	Warnings          []string          `json:"warnings,omitempty"`
	Errors            []string          `json:"errors,omitempty"`
	SuggestedQuantity *float64          `json:"suggested_quantity,omitempty"`
	SuggestedPrice    *float64          `json:"suggested_price,omitempty"`
	RiskFactors       map[string]string `json:"risk_factors,omitempty"`
}

// Gate evaluates trades against a risk profile. It is stateless; the
// clock is injectable for testing trading-hours behavior.
type Gate struct {
	now func() time.Time
}

// NewGate builds a gate using the wall clock.
func NewGate() *Gate {
	return &Gate{now: func() time.Time { return time.Now().UTC() }}
}

// NewGateAt builds a gate with a fixed clock source.
func NewGateAt(now func() time.Time) *Gate {
	return &Gate{now: now}
}

// CheckTrade runs the check sequence: trading hours, position limits,
// loss limits, then volatility. The first three block on violation;
// volatility only warns. Blocked trades get safer quantity and price
// suggestions.
func (g *Gate) CheckTrade(profile Profile, req TradeRequest, snap AccountSnapshot) CheckResult {
	res := CheckResult{RiskFactors: map[string]string{}}

	g.checkTradingHours(profile, &res)
	g.checkPositionLimits(profile, req, snap, &res)
	g.checkLossLimits(profile, snap, &res)
	g.checkVolatility(profile, snap, &res)

	res.RiskScore = g.score(profile, req, res.RiskFactors)
	res.Allowed = len(res.Errors) == 0

	if !res.Allowed {
		if q := suggestQuantity(profile, req); q != nil {
			res.SuggestedQuantity = q
		}
		if p := suggestPrice(req); p != nil {
			res.SuggestedPrice = p
		}
	}
	return res
}

func (g *Gate) checkTradingHours(profile Profile, res *CheckResult) {
	now := g.now()
	if wd := now.Weekday(); (wd == time.Saturday || wd == time.Sunday) && !profile.WeekendTrading {
		res.Errors = append(res.Errors, "Trading outside allowed hours")
		res.RiskFactors["trading_hours"] = "weekend trading disabled"
		return
	}
	clock := now.Format("15:04")
	if clock < profile.TradingHoursStart || clock > profile.TradingHoursEnd {
		res.Errors = append(res.Errors, "Trading outside allowed hours")
		res.RiskFactors["trading_hours"] = fmt.Sprintf("outside %s-%s", profile.TradingHoursStart, profile.TradingHoursEnd)
	}
}

func (g *Gate) checkPositionLimits(profile Profile, req TradeRequest, snap AccountSnapshot, res *CheckResult) {
	violated := false
	if snap.OpenPositions >= profile.MaxPositions {
		res.Errors = append(res.Errors,
			fmt.Sprintf("Maximum positions limit reached (%d/%d)", snap.OpenPositions, profile.MaxPositions))
		violated = true
	}
	if req.Price > 0 && req.Quantity*req.Price > profile.MaxPositionSize {
		res.Errors = append(res.Errors, "Position size exceeds limit")
		violated = true
	}
	if violated {
		res.RiskFactors["position_limits"] = fmt.Sprintf("positions %d/%d, value %.2f",
			snap.OpenPositions, profile.MaxPositions, req.Quantity*req.Price)
	}
}

func (g *Gate) checkLossLimits(profile Profile, snap AccountSnapshot, res *CheckResult) {
	violated := false
	if snap.DailyPnL < -profile.DailyLossLimit {
		res.Errors = append(res.Errors, "Daily loss limit exceeded")
		violated = true
	}
	if snap.WeeklyPnL < -profile.WeeklyLossLimit {
		res.Errors = append(res.Errors, "Weekly loss limit exceeded")
		violated = true
	}
	if snap.MonthlyPnL < -profile.MonthlyLossLimit {
		res.Errors = append(res.Errors, "Monthly loss limit exceeded")
		violated = true
	}
	if snap.TotalPnL < -profile.TotalLossLimit {
		res.Errors = append(res.Errors, "Total loss limit exceeded")
		violated = true
	}
	if violated {
		res.RiskFactors["loss_limits"] = fmt.Sprintf("daily %.2f weekly %.2f monthly %.2f total %.2f",
			snap.DailyPnL, snap.WeeklyPnL, snap.MonthlyPnL, snap.TotalPnL)
	}
}

// Volatility never blocks a trade on its own.
func (g *Gate) checkVolatility(profile Profile, snap AccountSnapshot, res *CheckResult) {
	if snap.CurrentVolatility > profile.MaxVolatilityThreshold {
		res.Warnings = append(res.Warnings, "High volatility detected")
		res.RiskFactors["volatility"] = fmt.Sprintf("%.1f%%", snap.CurrentVolatility)
	}
}

// score sums fixed penalties per violated factor on top of a 50-point
// base, plus a penalty when the trade pushes past 80% of the position
// size limit, clamped to [0,100].
func (g *Gate) score(profile Profile, req TradeRequest, factors map[string]string) float64 {
	score := 50.0
	if _, ok := factors["trading_hours"]; ok {
		score += 20
	}
	if _, ok := factors["position_limits"]; ok {
		score += 15
	}
	if _, ok := factors["loss_limits"]; ok {
		score += 25
	}
	if _, ok := factors["volatility"]; ok {
		score += 10
	}
	if req.Price > 0 && req.Quantity*req.Price > profile.MaxPositionSize*0.8 {
		score += 10
	}
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}

// suggestQuantity scales to 80% of the position-size limit, never above
// the requested quantity.
func suggestQuantity(profile Profile, req TradeRequest) *float64 {
	if req.Price <= 0 {
		return nil
	}
	q := profile.MaxPositionSize * 0.8 / req.Price
	if q > req.Quantity {
		q = req.Quantity
	}
	return &q
}

// suggestPrice adds a 2% buffer in the trade's disadvantageous direction
// for non-market orders.
func suggestPrice(req TradeRequest) *float64 {
	if req.OrderType == common.OrderTypeMarket || req.Price <= 0 {
		return nil
	}
	var p float64
	if req.Side == common.SideBuy {
		p = req.Price * 0.98
	} else {
		p = req.Price * 1.02
	}
	return &p
}
