package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/RubachokBoss/thesis-service/internal/config"
	"github.com/rs/zerolog"
)

// retryingClient posts JSON to an external collaborator, retrying transport
// errors, truncated bodies and 5xx answers with a linear backoff.
type retryingClient struct {
	url        string
	retryCount int
	retryDelay time.Duration
	client     *http.Client
	logger     zerolog.Logger
}

func newRetryingClient(cfg config.ServiceConfig, logger zerolog.Logger) *retryingClient {
	return &retryingClient{
		url:        cfg.URL + cfg.Endpoint,
		retryCount: cfg.RetryCount,
		retryDelay: cfg.RetryDelay,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// statusError is a non-retryable answer from the remote service.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("remote service returned status %d: %s", e.Code, e.Body)
}

// IsRejected reports whether the remote service refused the request with a
// 4xx answer. Retrying such a request cannot succeed.
func IsRejected(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.Code >= 400 && se.Code < 500
}

func (c *retryingClient) postJSON(ctx context.Context, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	var lastErr error
	for i := 0; i <= c.retryCount; i++ {
		if i > 0 {
			c.logger.Warn().Int("attempt", i).Str("url", c.url).Msg("Retrying request")
			select {
			case <-time.After(c.retryDelay * time.Duration(i)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("failed to send request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		switch {
		case resp.StatusCode >= 500:
			lastErr = &statusError{Code: resp.StatusCode, Body: string(respBody)}
			continue
		case resp.StatusCode >= 300:
			return &statusError{Code: resp.StatusCode, Body: string(respBody)}
		}

		if out != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
		}
		return nil
	}

	return fmt.Errorf("request failed after %d attempts: %w", c.retryCount+1, lastErr)
}
