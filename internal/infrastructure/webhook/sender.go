// Package webhook posts chat notifications to incoming-webhook URLs.
package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/andreyxaxa/Notify-Router/pkg/types/errs"
	json "github.com/goccy/go-json"
)

const _defaultTimeout = 10 * time.Second

type payload struct {
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
}

type Sender struct {
	client *http.Client
}

func New(timeout time.Duration) *Sender {
	if timeout <= 0 {
		timeout = _defaultTimeout
	}

	return &Sender{client: &http.Client{Timeout: timeout}}
}

// SendChat treats 4xx other than 408/429 as non-retryable.
func (s *Sender) SendChat(ctx context.Context, destination, subject, body string) (string, error) {
	raw, err := json.Marshal(payload{Title: subject, Text: body})
	if err != nil {
		return "", fmt.Errorf("Sender - SendChat - json.Marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, destination, bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("%w: webhook - %v", errs.ErrNonRetryable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("Sender - SendChat - s.client.Do: %w", err)
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return resp.Header.Get("X-Request-Id"), nil
	case resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("Sender - SendChat - webhook status %d", resp.StatusCode)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return "", fmt.Errorf("%w: webhook status %d", errs.ErrNonRetryable, resp.StatusCode)
	default:
		return "", fmt.Errorf("Sender - SendChat - webhook status %d", resp.StatusCode)
	}
}
