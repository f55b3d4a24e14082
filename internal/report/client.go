// Package report submits finalized test cases to an external results
// endpoint. Submission is best effort: it runs after teardown and a dead
// endpoint never blocks or fails a stop.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/replaykit/recorderd/internal/infrastructure/config"
	"github.com/replaykit/recorderd/internal/infrastructure/logging"
	"github.com/replaykit/recorderd/internal/infrastructure/resilience"
	"github.com/replaykit/recorderd/internal/shared/types"
	"go.uber.org/zap"
)

// Payload is the wire format posted to the report endpoint.
type Payload struct {
	Test    types.TestCase       `json:"test_case"`
	Actions []types.ActionRecord `json:"actions"`
}

// Client posts finalized recordings to the configured endpoint.
type Client struct {
	http    *resty.Client
	breaker *resilience.Breaker
	url     string
	log     *logging.Logger
}

// New creates a report client, or nil when no endpoint is configured.
func New(cfg config.ReportConfig, log *logging.Logger) *Client {
	if cfg.URL == "" {
		return nil
	}

	httpClient := resty.New().
		SetTimeout(cfg.Timeout()).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("User-Agent", "recorderd/1.0").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})

	breaker := resilience.New("report", 5, 30*time.Second)
	breaker.Notify(func(name string, from, to resilience.State) {
		log.Warn("report circuit state changed",
			zap.String("from", from.String()), zap.String("to", to.String()))
	})

	return &Client{
		http:    httpClient,
		breaker: breaker,
		url:     cfg.URL,
		log:     log,
	}
}

// Submit posts one finalized test case with its action log.
func (c *Client) Submit(ctx context.Context, tc types.TestCase, records []types.ActionRecord) error {
	body, err := sonic.Marshal(Payload{Test: tc, Actions: records})
	if err != nil {
		return fmt.Errorf("failed to encode report payload: %w", err)
	}

	return c.breaker.Do(func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(body).
			Post(c.url)
		if err != nil {
			return fmt.Errorf("report submission failed: %w", err)
		}
		if resp.IsError() {
			return fmt.Errorf("report endpoint returned %s", resp.Status())
		}
		c.log.Info("report submitted",
			zap.String("test", tc.Name), zap.Int("actions", len(records)))
		return nil
	})
}
