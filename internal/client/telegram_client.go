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

// TelegramClient pushes batch lifecycle notifications to a chat. It is
// nil-safe by configuration: when no bot token is set, every call is a
// no-op.
type TelegramClient struct {
	httpClient *http.Client
	botToken   string
	chatID     string
}

// NewTelegramClient creates a new Telegram bot client.
func NewTelegramClient(cfg *config.TelegramConfig) *TelegramClient {
	return &TelegramClient{
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
	}
}

// IsConfigured returns true if a bot token and chat id are set
func (c *TelegramClient) IsConfigured() bool {
	return c.botToken != "" && c.chatID != ""
}

// NotifyBatchFinished sends a completion summary for a batch job.
// Delivery failures are logged, never propagated: notifications must
// not affect job state.
func (c *TelegramClient) NotifyBatchFinished(ctx context.Context, summary model.BatchStatusResponse) {
	if !c.IsConfigured() {
		return
	}

	icon := "✅"
	if summary.Status == model.JobStatusFailed {
		icon = "❌"
	}
	text := fmt.Sprintf(
		"%s <b>Batch Backtesting Finished</b>\n\n"+
			"🆔 Job: <code>%s</code>\n"+
			"📊 Status: %s\n"+
			"✔️ Completed: %d\n"+
			"✖️ Failed: %d\n"+
			"📦 Total: %d",
		icon, summary.JobID, summary.Status,
		summary.CompletedConfigs, summary.FailedConfigs, summary.TotalConfigs,
	)

	if err := c.sendMessage(ctx, text); err != nil {
		logrus.WithError(err).Warn("Failed to send Telegram notification")
	}
}

// sendMessage posts an HTML-formatted message to the configured chat.
func (c *TelegramClient) sendMessage(ctx context.Context, text string) error {
	payload := map[string]interface{}{
		"chat_id":    c.chatID,
		"text":       text,
		"parse_mode": "HTML",
	}

	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", c.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram API error (status %d): %s", resp.StatusCode, string(respBody))
	}
	return nil
}
