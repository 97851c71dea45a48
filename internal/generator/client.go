// Package generator submits text generation jobs to an external queue over
// HTTP and waits for the result to come back through the webhook callback.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// ErrTimeout is returned when no callback arrives within the configured wait.
var ErrTimeout = errors.New("generation request timed out")

// jobPayload is the body POSTed to the external generation queue.
type jobPayload struct {
	CorrelationID string `json:"correlation_id"`
	ChatID        int64  `json:"chat_id"`
	Prompt        string `json:"prompt"`
}

// Client submits generation jobs and matches asynchronous callbacks to the
// goroutine that is waiting for them.
type Client struct {
	submitURL string
	timeout   time.Duration
	http      *http.Client
	pending   *pendingRegistry
	logger    *slog.Logger
}

// NewClient creates a generation client for the given queue URL.
// timeout bounds how long Generate waits for the webhook callback.
func NewClient(submitURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		submitURL: submitURL,
		timeout:   timeout,
		http:      &http.Client{Timeout: 30 * time.Second},
		pending:   newPendingRegistry(),
		logger:    logger.With("component", "generator"),
	}
}

// Generate submits a job and blocks until the callback resolves it, the
// timeout elapses, or the context is cancelled.
func (c *Client) Generate(ctx context.Context, chatID int64, prompt string) (string, error) {
	id := uuid.NewString()

	wait := c.pending.register(id)
	defer c.pending.release(id)

	if err := c.submit(ctx, id, chatID, prompt); err != nil {
		return "", err
	}

	c.logger.InfoContext(ctx, "Generation job submitted, waiting for callback",
		"correlation_id", id, "chat_id", chatID, "timeout", c.timeout)

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case text := <-wait:
		c.logger.InfoContext(ctx, "Generation result received", "correlation_id", id, "length", len(text))
		return text, nil
	case <-timer.C:
		c.logger.WarnContext(ctx, "Generation request timed out", "correlation_id", id, "chat_id", chatID)
		return "", ErrTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Resolve delivers a callback result to the waiting request. Returns false
// for an unknown or already resolved correlation ID.
func (c *Client) Resolve(correlationID, text string) bool {
	ok := c.pending.resolve(correlationID, text)
	if !ok {
		c.logger.Warn("Callback for unknown correlation ID", "correlation_id", correlationID)
	}
	return ok
}

// PendingCount returns the number of requests still waiting for a callback.
func (c *Client) PendingCount() int {
	return c.pending.size()
}

func (c *Client) submit(ctx context.Context, id string, chatID int64, prompt string) error {
	body, err := json.Marshal(jobPayload{CorrelationID: id, ChatID: chatID, Prompt: prompt})
	if err != nil {
		return fmt.Errorf("failed to encode generation job: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.submitURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build generation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to submit generation job", "correlation_id", id, "error", err)
		return fmt.Errorf("failed to submit generation job: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.ErrorContext(ctx, "Generation queue rejected job",
			"correlation_id", id, "status", resp.StatusCode)
		return fmt.Errorf("generation queue returned status %d", resp.StatusCode)
	}

	return nil
}
