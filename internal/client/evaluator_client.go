package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stratforge/api/internal/config"
	"github.com/stratforge/api/internal/model"
)

// EvaluatorClient talks to the external backtest engine service. Each
// call runs one configuration over a time window and resolution and
// returns the trade-level and aggregate results.
type EvaluatorClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// evaluateRequest is the engine's run endpoint payload.
type evaluateRequest struct {
	Config     map[string]interface{} `json:"config"`
	StartTime  int64                  `json:"start_time"`
	EndTime    int64                  `json:"end_time"`
	Resolution string                 `json:"backtesting_resolution"`
	TradeCost  float64                `json:"trade_cost"`
}

// evaluateResponse wraps the engine's result bundle; a non-empty error
// field means the run failed inside the engine.
type evaluateResponse struct {
	Results *model.EvaluatorResult `json:"results"`
	Error   string                 `json:"error,omitempty"`
}

// NewEvaluatorClient creates a new backtest engine client.
func NewEvaluatorClient(cfg *config.EvaluatorConfig) *EvaluatorClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &EvaluatorClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
	}
}

// IsConfigured returns true if a base URL is set
func (c *EvaluatorClient) IsConfigured() bool {
	return c.baseURL != ""
}

// Evaluate runs one configuration through the engine. Any non-success
// outcome, including an empty bundle, is returned as an error so the
// caller records a per-item failure.
func (c *EvaluatorClient) Evaluate(ctx context.Context, cfg map[string]interface{}, params model.BacktestParams) (*model.EvaluatorResult, error) {
	if !c.IsConfigured() {
		return nil, fmt.Errorf("backtest engine not configured")
	}

	req := evaluateRequest{
		Config:     cfg,
		StartTime:  params.StartTime,
		EndTime:    params.EndTime,
		Resolution: params.Resolution,
		TradeCost:  params.TradeCost,
	}

	var resp evaluateResponse
	if err := c.post(ctx, "/run-backtesting", req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("backtest engine error: %s", resp.Error)
	}
	if resp.Results == nil {
		return nil, fmt.Errorf("backtest engine returned an empty result bundle")
	}
	return resp.Results, nil
}

// post sends a POST request with JSON body and parses the response
func (c *EvaluatorClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	logrus.Debugf("[Engine API] → POST %s", req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	logrus.Debugf("[Engine API] ← %d POST %s", resp.StatusCode, req.URL.String())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("backtest engine error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
