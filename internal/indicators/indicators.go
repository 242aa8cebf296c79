// Package indicators provides the technical indicator math used by the
// strategy implementations. All functions are pure and operate on price
// slices ordered oldest to newest.
package indicators

// SMA returns the simple moving average of the last period values.
// Returns 0 when fewer than period values are available.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	var sum float64
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period)
}

// EMA returns the exponential moving average with alpha = 2/(period+1),
// seeded from the first value.
func EMA(values []float64, period int) float64 {
	if period <= 0 || len(values) == 0 {
		return 0
	}
	alpha := 2.0 / float64(period+1)
	ema := values[0]
	for _, v := range values[1:] {
		ema = alpha*v + (1-alpha)*ema
	}
	return ema
}

// RSI computes the relative strength index over period using simple
// averages of gains and losses. Returns 50 with insufficient data and 100
// when there are no losses in the window.
func RSI(values []float64, period int) float64 {
	if period <= 0 || len(values) < period+1 {
		return 50
	}
	window := values[len(values)-period-1:]
	var gains, losses float64
	for i := 1; i < len(window); i++ {
		delta := window[i] - window[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACD returns the MACD line, fast EMA minus slow EMA.
func MACD(values []float64, fast, slow int) float64 {
	if len(values) < slow {
		return 0
	}
	return EMA(values, fast) - EMA(values, slow)
}

// SignalLine smooths a MACD history with an EMA of signalPeriod. Returns
// (0, false) until enough MACD samples have accumulated.
func SignalLine(macdHistory []float64, signalPeriod int) (float64, bool) {
	if len(macdHistory) < signalPeriod {
		return 0, false
	}
	return EMA(macdHistory, signalPeriod), true
}

// Slope fits a least-squares line through the values and returns its
// gradient per sample.
func Slope(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, v := range values {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}
	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (fn*sumXY - sumX*sumY) / denom
}
