package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/resilience"
)

// webhookEntry is the per-record payload object. The external research
// pipeline requires these exact key names.
type webhookEntry struct {
	FirstName string `json:"First Name"`
	LastName  string `json:"Last Name"`
	LinkedIn  string `json:"LinkedIn"`
	Title     string `json:"Title"`
	Company   string `json:"Company"`
	Email     string `json:"EMail"`
}

// Dispatcher sends one HTTP POST per dispatch batch to the research
// webhook, enforcing the configured timeout and retry policy. The
// rate limiter is shared across all pipelines in the process so
// concurrent uploads cannot stampede the external service.
type Dispatcher struct {
	url        string
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
	client     *http.Client
	limiter    *rate.Limiter
}

// NewDispatcher builds a Dispatcher from immutable settings. The
// zero-valued http.Client is deliberate: per-attempt timeouts come
// from the request context, not the client.
func NewDispatcher(url string, timeout time.Duration, maxRetries int, retryDelay time.Duration, dispatchRate float64) *Dispatcher {
	return &Dispatcher{
		url:        url,
		timeout:    timeout,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		client:     &http.Client{},
		limiter:    rate.NewLimiter(rate.Limit(dispatchRate), 1),
	}
}

// Dispatch posts the batch and returns the raw response body on
// HTTP 2xx. Timeouts and 5xx responses are retried up to maxRetries
// additional attempts with a fixed delay; 4xx fails immediately.
func (d *Dispatcher) Dispatch(ctx context.Context, batch model.DispatchBatch) ([]byte, error) {
	payload := make([]webhookEntry, len(batch.Entries))
	for i, e := range batch.Entries {
		payload[i] = webhookEntry{
			FirstName: e.Identity.FirstName,
			LastName:  e.Identity.LastName,
			LinkedIn:  e.Identity.LinkedInURL,
			Title:     e.Identity.Title,
			Company:   e.Identity.Company,
			Email:     e.Identity.Email,
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, eris.Wrap(err, "dispatch: marshal payload")
	}

	attempt := 0
	cfg := resilience.RetryConfig{
		MaxAttempts: d.maxRetries + 1,
		Delay:       d.retryDelay,
		OnRetry:     resilience.RetryLogger("webhook dispatch"),
	}

	return resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]byte, error) {
		if err := d.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "dispatch: rate limit wait")
		}
		attempt++
		return d.post(ctx, batch, body, attempt)
	})
}

func (d *Dispatcher) post(ctx context.Context, batch model.DispatchBatch, body []byte, attempt int) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "dispatch: build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Batch-Number", fmt.Sprintf("%d", batch.Number))
	req.Header.Set("X-Retry-Attempt", fmt.Sprintf("%d", attempt))
	req.Header.Set("X-Correlation-Token", batch.Token)

	zap.L().Info("dispatching batch",
		zap.Int("batch", batch.Number),
		zap.Int("records", len(batch.Entries)),
		zap.Int("attempt", attempt),
	)

	resp, err := d.client.Do(req)
	if err != nil {
		if reqCtx.Err() == context.DeadlineExceeded {
			return nil, resilience.NewTransientError(
				eris.Errorf("dispatch: webhook timed out after %s", d.timeout), 0)
		}
		return nil, eris.Wrap(err, "dispatch: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "dispatch: read response")
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return respBody, nil
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return nil, resilience.NewTransientError(
			eris.Errorf("dispatch: webhook returned %d", resp.StatusCode), resp.StatusCode)
	default:
		return nil, eris.Errorf("dispatch: webhook returned %d", resp.StatusCode)
	}
}
