package e2e

import (
	"net/http"
	"testing"
)

func TestRunSingleBacktest(t *testing.T) {
	ta := setupApp(t, nil)

	body := `{
		"start_time": 1700000000,
		"end_time": 1700864000,
		"backtesting_resolution": "1h",
		"trade_cost": 0.0006,
		"config": {"name": "cfg-0", "connector": "binance"}
	}`

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/backtesting/run", body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	parsed := parseJSON(t, resp)
	results, ok := parsed["results"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected results object, got %v", parsed)
	}
	if results["net_pnl_pct"] != float64(2.5) {
		t.Errorf("expected net_pnl_pct 2.5, got %v", results["net_pnl_pct"])
	}

	ratios, ok := parsed["ratios"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected ratios object, got %v", parsed)
	}
	for _, key := range []string{"sharpe_ratio", "sortino_ratio", "calmar_ratio"} {
		if _, ok := ratios[key]; !ok {
			t.Errorf("expected %s in ratios, got %v", key, ratios)
		}
	}
}

func TestRunSingleValidation(t *testing.T) {
	ta := setupApp(t, nil)

	cases := []struct {
		name string
		body string
	}{
		{"missing config", `{"start_time": 1700000000, "end_time": 1700864000}`},
		{"inverted window", `{"start_time": 1700864000, "end_time": 1700000000, "config": {"name": "cfg-0"}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/backtesting/run", tc.body)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			assertStatus(t, resp, http.StatusBadRequest)
		})
	}
}

func TestRunSingleEvaluatorFailure(t *testing.T) {
	ta := setupApp(t, &stubEvaluator{failOn: map[string]bool{"cfg-0": true}})

	body := `{
		"start_time": 1700000000,
		"end_time": 1700864000,
		"config": {"name": "cfg-0"}
	}`

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/backtesting/run", body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusInternalServerError)

	parsed := parseJSON(t, resp)
	errObj, ok := parsed["error"].(map[string]interface{})
	if !ok || errObj["code"] != "SERVICE_ERROR" {
		t.Errorf("expected SERVICE_ERROR envelope, got %v", parsed)
	}
}
