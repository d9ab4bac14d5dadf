package metrics

import (
	"math"

	"github.com/stratforge/api/internal/model"
)

const (
	// assumedDailyVolatility is the fixed daily volatility used to
	// annualize the Sharpe denominator when no realized series exists.
	assumedDailyVolatility = 0.01

	// defaultPeriodsPerYear is the annualization fallback when the
	// period duration is unknown.
	defaultPeriodsPerYear = 252.0

	// fallbackMaxDrawdown is a conservative 1% floor used when neither
	// an explicit drawdown nor enough returns to derive one exist.
	fallbackMaxDrawdown = 0.01
)

// periodDays returns the run duration in days, preferring explicit
// start/end timestamps over a precomputed figure. Zero means unknown.
func periodDays(res *model.EvaluatorResult) float64 {
	if res.StartTime > 0 && res.EndTime > res.StartTime {
		return float64(res.EndTime-res.StartTime) / 86400.0
	}
	return res.NDays
}

// CalculateRatios derives Sharpe, Sortino and Calmar from an evaluator
// result bundle. NaN never escapes; +Inf is kept for Sortino and Calmar
// as the "no observed downside/drawdown" sentinel.
func CalculateRatios(res *model.EvaluatorResult) model.PerformanceRatios {
	nDays := periodDays(res)
	r := PrepareSeries(res.Trades, res.NetPnlPct)

	periodsPerYear := defaultPeriodsPerYear
	if nDays > 0 && len(r) > 1 {
		periodsPerYear = float64(len(r)) / nDays * 365.0
	}

	return model.PerformanceRatios{
		SharpeRatio:  model.RatioValue(sanitize(sharpeRatio(res.NetPnlPct, nDays), false)),
		SortinoRatio: model.RatioValue(sanitize(sortinoRatio(r, periodsPerYear), true)),
		CalmarRatio:  model.RatioValue(sanitize(calmarRatio(res, r, nDays, periodsPerYear), true)),
	}
}

// sharpeRatio annualizes the aggregate return and divides by an assumed
// annualized volatility. Without a known period duration it is 0.
func sharpeRatio(netPnlPct, nDays float64) float64 {
	if nDays <= 0 {
		return 0
	}
	annualReturn := netPnlPct / 100.0 * (365.0 / nDays)
	annualVolatility := assumedDailyVolatility * math.Sqrt(365.0)
	return annualReturn / annualVolatility
}

// sortinoRatio is the excess mean over the downside deviation (RMS of
// the negative part, target 0), annualized. It needs at least two
// returns; zero downside with a positive mean yields +Inf.
func sortinoRatio(r []float64, periodsPerYear float64) float64 {
	if len(r) < 2 {
		return 0
	}
	var sum, downSq float64
	for _, v := range r {
		sum += v
		if v < 0 {
			downSq += v * v
		}
	}
	mean := sum / float64(len(r))
	downside := math.Sqrt(downSq / float64(len(r)))
	if downside > 0 {
		return mean / downside * math.Sqrt(periodsPerYear)
	}
	if mean > 0 {
		return math.Inf(1)
	}
	return 0
}

// calmarRatio is the CAGR over the maximum drawdown magnitude. Zero
// drawdown with positive growth yields +Inf.
func calmarRatio(res *model.EvaluatorResult, r []float64, nDays, periodsPerYear float64) float64 {
	var cagr float64
	switch {
	case nDays > 0:
		cagr = math.Pow(1.0+res.NetPnlPct/100.0, 365.0/nDays) - 1.0
	case len(r) > 0:
		total := 1.0
		for _, v := range r {
			total *= 1.0 + v
		}
		total -= 1.0
		cagr = math.Pow(1.0+total, periodsPerYear/float64(len(r))) - 1.0
	}

	maxDD := maxDrawdown(res, r)
	if maxDD > 0 {
		return cagr / maxDD
	}
	if cagr > 0 {
		return math.Inf(1)
	}
	return 0
}

// maxDrawdown prefers the evaluator's explicit figure, then the
// equity-curve drawdown over the return series, then the 1% floor.
// The result is a positive magnitude.
func maxDrawdown(res *model.EvaluatorResult, r []float64) float64 {
	if res.MaxDrawdownPct != nil {
		return math.Abs(*res.MaxDrawdownPct) / 100.0
	}
	if len(r) >= 2 {
		equity, peak, worst := 1.0, 1.0, 0.0
		for _, v := range r {
			equity *= 1.0 + v
			if equity > peak {
				peak = equity
			}
			if dd := equity/peak - 1.0; dd < worst {
				worst = dd
			}
		}
		return -worst
	}
	return fallbackMaxDrawdown
}

// sanitize maps NaN to 0 always, and infinities to 0 unless the caller
// keeps them as sentinels.
func sanitize(v float64, keepInf bool) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if math.IsInf(v, 0) && !keepInf {
		return 0
	}
	return v
}
