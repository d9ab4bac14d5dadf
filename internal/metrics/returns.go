// Package metrics derives risk-adjusted performance ratios from
// backtest results. All functions are pure; degenerate inputs (empty
// series, zero variance, missing drawdown) resolve to sentinel values
// rather than errors.
package metrics

import "github.com/stratforge/api/internal/model"

// resolvePnlPct resolves a trade's percentage return via a fixed
// fallback order: the explicit percentage first, then the absolute PnL
// over the traded amount.
func resolvePnlPct(t model.Trade) (float64, bool) {
	if t.PnlPct != nil {
		return *t.PnlPct, true
	}
	if t.NetPnl != nil && t.Amount != nil && *t.Amount != 0 {
		return *t.NetPnl / *t.Amount * 100.0, true
	}
	return 0, false
}

// ExtractReturns converts trade-level records into fractional returns.
// Zero and unresolvable entries are skipped.
func ExtractReturns(trades []model.Trade) []float64 {
	returns := make([]float64, 0, len(trades))
	for _, t := range trades {
		pct, ok := resolvePnlPct(t)
		if !ok || pct == 0 {
			continue
		}
		returns = append(returns, pct/100.0)
	}
	return returns
}

// PrepareSeries builds the return series for ratio derivation. When no
// trade-level data exists, the aggregate return stands in as a
// one-element series, but only when it is non-zero.
func PrepareSeries(trades []model.Trade, netPnlPct float64) []float64 {
	if len(trades) > 0 {
		return ExtractReturns(trades)
	}
	if netPnlPct != 0 {
		return []float64{netPnlPct / 100.0}
	}
	return nil
}
