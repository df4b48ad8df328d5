// Package notify dispatches run reports by email (Resend) and Telegram.
// Notification failures are logged by the caller, never treated as
// acquisition or aggregation errors.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// TelegramNotifier sends HTML summaries via the Telegram Bot API.
type TelegramNotifier struct {
	BotToken string
	ChatID   string
	BaseURL  string // defaults to the Telegram API host
	Client   *http.Client

	log *slog.Logger
}

// NewTelegramNotifier creates a notifier for the given bot and chat.
func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		BotToken: botToken,
		ChatID:   chatID,
		BaseURL:  "https://api.telegram.org",
		Client:   &http.Client{Timeout: 30 * time.Second},
		log:      slog.Default().With("notifier", "telegram"),
	}
}

// Configured reports whether credentials are present.
func (t *TelegramNotifier) Configured() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// Send posts one HTML message to the configured chat.
func (t *TelegramNotifier) Send(ctx context.Context, text string) error {
	apiURL := fmt.Sprintf("%s/bot%s/sendMessage", t.BaseURL, t.BotToken)
	payload := map[string]string{
		"chat_id":    t.ChatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.Client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("telegram API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// SendWithRetry sends a message with exponential backoff between attempts.
func (t *TelegramNotifier) SendWithRetry(ctx context.Context, text string, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if err := t.Send(ctx, text); err != nil {
			lastErr = err
			backoff := time.Duration(1<<uint(i)) * time.Second
			t.log.Warn("telegram send failed",
				"attempt", fmt.Sprintf("%d/%d", i+1, maxRetries+1),
				"retryIn", backoff,
				"err", err,
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				continue
			}
		}
		return nil
	}
	return fmt.Errorf("all %d retries exhausted: %w", maxRetries+1, lastErr)
}
