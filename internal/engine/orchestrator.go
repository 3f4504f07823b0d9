package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

const (
	orchestratorTimeout    = 30 * time.Second
	orchestratorMaxElapsed = 20 * time.Second
)

// OrchestratorClient notifies the external agent orchestrator that a workflow
// started. Delivery is at-most-once advisory: transient failures are retried
// within a bounded window, then dropped with a log line. The orchestrator
// reconciles missed triggers by polling.
type OrchestratorClient struct {
	url    string
	client *http.Client
	log    zerolog.Logger
}

// NewOrchestratorClient creates a client for the given trigger endpoint.
func NewOrchestratorClient(url string, log zerolog.Logger) *OrchestratorClient {
	return &OrchestratorClient{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log.With().Str("component", "orchestrator").Logger(),
	}
}

func newTriggerBackoff() backoff.BackOff {
	// BackOff implementations are stateful; always return a fresh instance.
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = orchestratorMaxElapsed
	return bo
}

// TriggerAsync fires the trigger in the background, bounded by its own
// timeout so a dead orchestrator cannot hold workflow actions hostage.
func (c *OrchestratorClient) TriggerAsync(workflowID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), orchestratorTimeout)
		defer cancel()
		if err := c.Trigger(ctx, workflowID); err != nil {
			c.log.Warn().Err(err).Str("workflow", workflowID).Msg("orchestrator trigger failed")
		}
	}()
}

// Trigger POSTs the workflow reference to the orchestrator, retrying
// transient failures with exponential backoff.
func (c *OrchestratorClient) Trigger(ctx context.Context, workflowID string) error {
	body, err := json.Marshal(map[string]string{"workflow_id": workflowID})
	if err != nil {
		return fmt.Errorf("failed to marshal trigger: %w", err)
	}

	bo := newTriggerBackoff()
	return backoff.Retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return err // network errors are retryable
		}
		defer func() {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}()

		switch {
		case resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("orchestrator returned %d", resp.StatusCode)
		default:
			// 4xx other than 429 will not improve on retry.
			return backoff.Permanent(fmt.Errorf("orchestrator rejected trigger: %d", resp.StatusCode))
		}
	}, backoff.WithContext(bo, ctx))
}
