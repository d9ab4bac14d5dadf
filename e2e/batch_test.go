package e2e

import (
	"fmt"
	"net/http"
	"testing"
)

const batchBody = `{
	"start_time": 1700000000,
	"end_time": 1700864000,
	"backtesting_resolution": "1h",
	"trade_cost": 0.0006,
	"max_concurrent": 2,
	"configs": [
		{"name": "cfg-0", "connector": "binance"},
		{"name": "cfg-1", "connector": "binance"},
		{"name": "cfg-2", "connector": "binance"}
	]
}`

func TestBatchLifecycle(t *testing.T) {
	ta := setupApp(t, &stubEvaluator{failOn: map[string]bool{"cfg-1": true}})

	// Submit
	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/backtesting/batch", batchBody)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)

	body := parseJSON(t, resp)
	jobID, _ := body["jobId"].(string)
	if jobID == "" {
		t.Fatalf("expected jobId in response, got %v", body)
	}
	if body["status"] != "started" {
		t.Errorf("expected status 'started', got %v", body["status"])
	}
	if body["totalConfigs"] != float64(3) {
		t.Errorf("expected totalConfigs 3, got %v", body["totalConfigs"])
	}

	// Poll status until terminal
	status := waitUntilTerminal(t, ta, jobID)
	if status["status"] != "completed" {
		t.Fatalf("expected 'completed' for a partial failure, got %v", status["status"])
	}
	if status["completedConfigs"] != float64(2) || status["failedConfigs"] != float64(1) {
		t.Fatalf("expected 2 completed / 1 failed, got %v / %v",
			status["completedConfigs"], status["failedConfigs"])
	}
	if status["progressPercentage"] != float64(100) {
		t.Errorf("expected progress 100, got %v", status["progressPercentage"])
	}

	// Results
	resp, err = doAuthRequest(t, ta.app, http.MethodGet, "/api/backtesting/batch/"+jobID+"/results", "")
	if err != nil {
		t.Fatalf("results failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	results := parseJSON(t, resp)
	if items, ok := results["results"].([]interface{}); !ok || len(items) != 2 {
		t.Fatalf("expected 2 result entries, got %v", results["results"])
	}
	if errs, ok := results["errors"].([]interface{}); !ok || len(errs) != 1 {
		t.Fatalf("expected 1 error entry, got %v", results["errors"])
	} else {
		rec := errs[0].(map[string]interface{})
		if rec["configIndex"] != float64(1) {
			t.Errorf("expected failing configIndex 1, got %v", rec["configIndex"])
		}
	}

	// List includes the job
	resp, err = doAuthRequest(t, ta.app, http.MethodGet, "/api/backtesting/batch", "")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	// Delete
	resp, err = doAuthRequest(t, ta.app, http.MethodDelete, "/api/backtesting/batch/"+jobID, "")
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	assertStatus(t, resp, http.StatusNoContent)

	// Gone afterwards
	resp, err = doAuthRequest(t, ta.app, http.MethodGet, "/api/backtesting/batch/"+jobID+"/status", "")
	if err != nil {
		t.Fatalf("status after delete failed: %v", err)
	}
	assertStatus(t, resp, http.StatusNotFound)

	resp, err = doAuthRequest(t, ta.app, http.MethodDelete, "/api/backtesting/batch/"+jobID, "")
	if err != nil {
		t.Fatalf("second delete failed: %v", err)
	}
	assertStatus(t, resp, http.StatusNotFound)
}

func TestBatchValidation(t *testing.T) {
	ta := setupApp(t, nil)

	cases := []struct {
		name string
		body string
	}{
		{"missing configs", `{"start_time": 1700000000, "end_time": 1700864000}`},
		{"empty configs", `{"start_time": 1700000000, "end_time": 1700864000, "configs": []}`},
		{"inverted window", `{"start_time": 1700864000, "end_time": 1700000000, "configs": [{"name": "cfg-0"}]}`},
		{"negative max_concurrent", `{"start_time": 1700000000, "end_time": 1700864000, "configs": [{"name": "cfg-0"}], "max_concurrent": -1}`},
		{"not json", `not json at all`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/backtesting/batch", tc.body)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			assertStatus(t, resp, http.StatusBadRequest)

			body := parseJSON(t, resp)
			errObj, ok := body["error"].(map[string]interface{})
			if !ok {
				t.Fatalf("expected error envelope, got %v", body)
			}
			if errObj["code"] != "VALIDATION_ERROR" {
				t.Errorf("expected VALIDATION_ERROR, got %v", errObj["code"])
			}
		})
	}
}

func TestBatchUnknownJob(t *testing.T) {
	ta := setupApp(t, nil)

	for _, path := range []string{
		"/api/backtesting/batch/no-such-job/status",
		"/api/backtesting/batch/no-such-job/results",
	} {
		resp, err := doAuthRequest(t, ta.app, http.MethodGet, path, "")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		assertStatus(t, resp, http.StatusNotFound)

		body := parseJSON(t, resp)
		errObj, ok := body["error"].(map[string]interface{})
		if !ok || errObj["code"] != "NOT_FOUND" {
			t.Errorf("%s: expected NOT_FOUND envelope, got %v", path, body)
		}
	}
}

func TestBatchLargeSubmission(t *testing.T) {
	ta := setupApp(t, nil)

	configs := ""
	for i := 0; i < 25; i++ {
		if i > 0 {
			configs += ","
		}
		configs += fmt.Sprintf(`{"name": "cfg-%d"}`, i)
	}
	body := fmt.Sprintf(`{"start_time": 1700000000, "end_time": 1700864000, "max_concurrent": 4, "configs": [%s]}`, configs)

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/backtesting/batch", body)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)

	submitted := parseJSON(t, resp)
	jobID, _ := submitted["jobId"].(string)

	status := waitUntilTerminal(t, ta, jobID)
	if status["completedConfigs"] != float64(25) {
		t.Fatalf("expected 25 completed, got %v", status["completedConfigs"])
	}
	if status["status"] != "completed" {
		t.Fatalf("expected completed, got %v", status["status"])
	}
}
