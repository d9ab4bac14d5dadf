package model

import (
	"encoding/json"
	"math"
	"time"
)

// BacktestParams are the period and cost parameters shared by every
// configuration in a batch.
type BacktestParams struct {
	StartTime  int64   `json:"start_time"`
	EndTime    int64   `json:"end_time"`
	Resolution string  `json:"backtesting_resolution"`
	TradeCost  float64 `json:"trade_cost"`
}

// Trade is one trade-level entry from the evaluator. Entries arrive in
// heterogeneous shapes: the percentage may be explicit, or derivable
// from the absolute PnL and the traded amount.
type Trade struct {
	PnlPct *float64 `json:"net_pnl_pct,omitempty"`
	NetPnl *float64 `json:"net_pnl,omitempty"`
	Amount *float64 `json:"amount,omitempty"`
}

// EvaluatorResult is the aggregate bundle returned by the backtest
// evaluator for a single configuration.
type EvaluatorResult struct {
	Trades         []Trade  `json:"trades,omitempty"`
	NetPnl         float64  `json:"net_pnl"`
	NetPnlPct      float64  `json:"net_pnl_pct"`
	TotalPositions int      `json:"total_positions"`
	Accuracy       float64  `json:"accuracy"`
	MaxDrawdownPct *float64 `json:"max_drawdown_pct,omitempty"`
	StartTime      int64    `json:"start_time,omitempty"`
	EndTime        int64    `json:"end_time,omitempty"`
	NDays          float64  `json:"n_days,omitempty"`
}

// RatioValue is a ratio that may legitimately be +Inf ("no observed
// downside/drawdown"). It marshals infinities as strings so the JSON
// encoder never rejects a response, and NaN as 0.
type RatioValue float64

func (r RatioValue) MarshalJSON() ([]byte, error) {
	v := float64(r)
	switch {
	case math.IsNaN(v):
		return []byte("0"), nil
	case math.IsInf(v, 1):
		return []byte(`"Infinity"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Infinity"`), nil
	}
	return json.Marshal(v)
}

func (r *RatioValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch s {
		case "Infinity":
			*r = RatioValue(math.Inf(1))
		case "-Infinity":
			*r = RatioValue(math.Inf(-1))
		default:
			*r = 0
		}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = RatioValue(v)
	return nil
}

// PerformanceRatios holds the risk-adjusted metrics derived from one
// backtest run.
type PerformanceRatios struct {
	SharpeRatio  RatioValue `json:"sharpe_ratio"`
	SortinoRatio RatioValue `json:"sortino_ratio"`
	CalmarRatio  RatioValue `json:"calmar_ratio"`
}

// BacktestRequest starts a single backtest run.
type BacktestRequest struct {
	StartTime  int64                  `json:"start_time" validate:"required"`
	EndTime    int64                  `json:"end_time" validate:"required,gtfield=StartTime"`
	Resolution string                 `json:"backtesting_resolution"`
	TradeCost  float64                `json:"trade_cost"`
	Config     map[string]interface{} `json:"config" validate:"required"`
}

// BacktestRunResponse is the outcome of a single backtest run.
type BacktestRunResponse struct {
	Results *EvaluatorResult  `json:"results"`
	Ratios  PerformanceRatios `json:"ratios"`
}

// BatchBacktestRequest submits many configurations under one shared
// time window and concurrency cap.
type BatchBacktestRequest struct {
	StartTime     int64                    `json:"start_time" validate:"required"`
	EndTime       int64                    `json:"end_time" validate:"required,gtfield=StartTime"`
	Resolution    string                   `json:"backtesting_resolution"`
	TradeCost     float64                  `json:"trade_cost"`
	Configs       []map[string]interface{} `json:"configs" validate:"required,min=1,max=1000"`
	MaxConcurrent int                      `json:"max_concurrent" validate:"omitempty,min=1"`
}

// Params returns the shared parameters of the batch.
func (r *BatchBacktestRequest) Params() BacktestParams {
	return BacktestParams{
		StartTime:  r.StartTime,
		EndTime:    r.EndTime,
		Resolution: r.Resolution,
		TradeCost:  r.TradeCost,
	}
}

// BatchStartResponse acknowledges a batch submission.
type BatchStartResponse struct {
	JobID         string `json:"jobId"`
	Status        string `json:"status"`
	TotalConfigs  int    `json:"totalConfigs"`
	MaxConcurrent int    `json:"maxConcurrent"`
}

// BatchStatusResponse is the per-job summary, also used by the list
// endpoint.
type BatchStatusResponse struct {
	JobID              string     `json:"jobId"`
	Status             JobStatus  `json:"status"`
	TotalConfigs       int        `json:"totalConfigs"`
	CompletedConfigs   int        `json:"completedConfigs"`
	FailedConfigs      int        `json:"failedConfigs"`
	ProgressPercentage float64    `json:"progressPercentage"`
	ResultsCount       int        `json:"resultsCount"`
	ErrorsCount        int        `json:"errorsCount"`
	CreatedAt          time.Time  `json:"createdAt"`
	CompletedAt        *time.Time `json:"completedAt,omitempty"`
}

// ResultSummary is the reduced per-item projection returned by the
// results endpoint. Raw per-trade payloads are deliberately excluded to
// bound response size.
type ResultSummary struct {
	ConfigIndex    int        `json:"configIndex"`
	NetPnl         float64    `json:"net_pnl"`
	NetPnlPct      float64    `json:"net_pnl_pct"`
	TotalPositions int        `json:"total_positions"`
	Accuracy       float64    `json:"accuracy"`
	SharpeRatio    RatioValue `json:"sharpe_ratio"`
	SortinoRatio   RatioValue `json:"sortino_ratio"`
	CalmarRatio    RatioValue `json:"calmar_ratio"`
	MaxDrawdownPct float64    `json:"max_drawdown_pct"`
	Timestamp      time.Time  `json:"timestamp"`
}

// ErrorSummary is the per-item projection of a failed configuration.
type ErrorSummary struct {
	ConfigIndex int       `json:"configIndex"`
	Error       string    `json:"error"`
	Timestamp   time.Time `json:"timestamp"`
}

// BatchResultsResponse carries the reduced projections for a batch.
type BatchResultsResponse struct {
	JobID   string          `json:"jobId"`
	Status  JobStatus       `json:"status"`
	Results []ResultSummary `json:"results"`
	Errors  []ErrorSummary  `json:"errors"`
}
