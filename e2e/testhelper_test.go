package e2e

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"github.com/stratforge/api/internal/auth"
	"github.com/stratforge/api/internal/executor"
	"github.com/stratforge/api/internal/handler"
	"github.com/stratforge/api/internal/middleware"
	"github.com/stratforge/api/internal/model"
	"github.com/stratforge/api/internal/registry"
	"github.com/stratforge/api/internal/service"
	ws "github.com/stratforge/api/internal/websocket"
)

const testJWTSecret = "test-secret-for-e2e"

// stubEvaluator stands in for the backtest engine. Configs named in
// failOn are rejected; everything else gets a fixed result bundle.
type stubEvaluator struct {
	failOn map[string]bool
}

func (s *stubEvaluator) Evaluate(_ context.Context, config map[string]interface{}, _ model.BacktestParams) (*model.EvaluatorResult, error) {
	name, _ := config["name"].(string)
	if s.failOn[name] {
		return nil, errors.New("evaluator rejected config")
	}
	return &model.EvaluatorResult{
		NetPnl:         55.0,
		NetPnlPct:      2.5,
		TotalPositions: 9,
		Accuracy:       0.55,
		NDays:          5,
	}, nil
}

// testApp holds all components needed for testing
type testApp struct {
	app *fiber.App
}

// setupApp builds a Fiber app identical to main.go but with an in-process
// dispatcher and a stubbed evaluator, so no Redis or engine is needed.
func setupApp(t *testing.T, eval *stubEvaluator) *testApp {
	t.Helper()

	if eval == nil {
		eval = &stubEvaluator{}
	}

	// Redis client for the rate limiter only; the limiter allows
	// requests through when Redis is unreachable.
	redisClient := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // use DB 15 for tests to avoid collision
	})

	validate := validator.New()

	hub := ws.NewHub()
	go hub.Run()

	jobRegistry := registry.New()
	exec := executor.New(jobRegistry, eval, hub, nil)
	dispatcher := service.NewGoDispatcher(exec)

	backtestService := service.NewBacktestService(jobRegistry, eval, dispatcher, 0, 0)
	backtestHandler := handler.NewBacktestHandler(backtestService, validate)

	authMiddleware := middleware.NewAuthMiddleware(testJWTSecret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	app := fiber.New(fiber.Config{
		BodyLimit: 50 * 1024 * 1024,
	})

	// Base routes
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"timestamp": 1234567890})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"evaluator": true,
				"telegram":  false,
				"redis":     false,
				"auth":      true,
			},
		})
	})

	// API routes (authenticated). Very high rate limits so tests
	// don't get blocked.
	api := app.Group("/api", authMiddleware.Authenticate())

	backtesting := api.Group("/backtesting")
	backtesting.Post("/run", rateLimiter.RunLimit(10000), backtestHandler.Run)
	backtesting.Post("/batch", rateLimiter.BatchLimit(10000), backtestHandler.SubmitBatch)
	backtesting.Get("/batch", backtestHandler.List)
	backtesting.Get("/batch/:jobId/status", backtestHandler.Status)
	backtesting.Get("/batch/:jobId/results", backtestHandler.Results)
	backtesting.Delete("/batch/:jobId", backtestHandler.Delete)

	return &testApp{app: app}
}

// generateToken creates an HMAC JWT token for test requests.
func generateToken(t *testing.T) string {
	t.Helper()
	claims := auth.LegacyClaims{
		UserID: "test-user-123",
		Email:  "test@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer: "stratforge-api",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs an authenticated request.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	token := generateToken(t)
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// waitUntilTerminal polls the status endpoint until the job finishes.
func waitUntilTerminal(t *testing.T, ta *testApp, jobID string) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := doAuthRequest(t, ta.app, http.MethodGet, "/api/backtesting/batch/"+jobID+"/status", "")
		if err != nil {
			t.Fatalf("status request failed: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status request returned %d", resp.StatusCode)
		}
		body := parseJSON(t, resp)
		if body["status"] == "completed" || body["status"] == "failed" {
			return body
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach a terminal state", jobID)
	return nil
}
