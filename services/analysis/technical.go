package analysis

import (
	"math"

	"github.com/shopspring/decimal"
)

// Indicator defaults used when the series is too short.
const (
	NeutralRSI        = 50.0
	NeutralVolatility = 0.25

	rsiEpsilon      = 1e-6
	tradingDays     = 250
	volMinCloses    = 30
	volMaxReturns   = 60
	bandMaxCloses   = 40
	bandStdMultiple = 2.0
)

// SMA returns the mean of the last period closes.
// ok is false when there are fewer than period closes.
func SMA(closes []float64, period int) (float64, bool) {
	n := len(closes)
	if period <= 0 || n < period {
		return 0, false
	}
	sum := 0.0
	for _, p := range closes[n-period:] {
		sum += p
	}
	return sum / float64(period), true
}

// EMA seeds with closes[n-period] and smooths forward with alpha 2/(period+1)
func EMA(closes []float64, period int) (float64, bool) {
	n := len(closes)
	if period <= 0 || n < period {
		return 0, false
	}
	alpha := 2.0 / float64(period+1)
	ema := closes[n-period]
	for i := n - period + 1; i < n; i++ {
		ema = closes[i]*alpha + ema*(1-alpha)
	}
	return ema, true
}

// RSI sums gains and losses over the last period differences.
// A series with no losses yields a value close to 100.
func RSI(closes []float64, period int) (float64, bool) {
	n := len(closes)
	if period <= 0 || n < period+1 {
		return 0, false
	}
	gains, losses := 0.0, 0.0
	for i := n - period; i < n; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gains += d
		} else {
			losses -= d
		}
	}
	if losses == 0 {
		losses = rsiEpsilon
	}
	rs := gains / losses
	return 100 - 100/(1+rs), true
}

// AnnualizedVolatility is the population standard deviation of the trailing
// simple returns (at most 60) scaled by sqrt(250). Needs 30 closes.
func AnnualizedVolatility(closes []float64) (float64, bool) {
	n := len(closes)
	if n < volMinCloses {
		return 0, false
	}
	count := n - 1
	if count > volMaxReturns {
		count = volMaxReturns
	}
	returns := make([]float64, 0, count)
	for i := n - count; i < n; i++ {
		returns = append(returns, (closes[i]-closes[i-1])/closes[i-1])
	}
	_, sd := meanStd(returns)
	return sd * math.Sqrt(tradingDays), true
}

// Band is mean ± 2 population standard deviations over the last 40 closes.
// An empty series gives a zero band.
func Band(closes []float64) (low, high float64) {
	n := len(closes)
	if n == 0 {
		return 0, 0
	}
	if n > bandMaxCloses {
		closes = closes[n-bandMaxCloses:]
	}
	mean, sd := meanStd(closes)
	return mean - bandStdMultiple*sd, mean + bandStdMultiple*sd
}

// SMAOr returns SMA or fallback when undefined
func SMAOr(closes []float64, period int, fallback float64) float64 {
	if v, ok := SMA(closes, period); ok {
		return v
	}
	return fallback
}

// EMAOr returns EMA or fallback when undefined
func EMAOr(closes []float64, period int, fallback float64) float64 {
	if v, ok := EMA(closes, period); ok {
		return v
	}
	return fallback
}

// RSIOr falls back to NeutralRSI
func RSIOr(closes []float64, period int) float64 {
	if v, ok := RSI(closes, period); ok {
		return v
	}
	return NeutralRSI
}

// VolatilityOr falls back to NeutralVolatility
func VolatilityOr(closes []float64) float64 {
	if v, ok := AnnualizedVolatility(closes); ok {
		return v
	}
	return NeutralVolatility
}

// Round rounds half away from zero to places decimals.
func Round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

func meanStd(values []float64) (mean, sd float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}
