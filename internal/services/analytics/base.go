package analytics

import (
	"context"
	"fmt"
	"time"

	"StockCast/pkg/config"
	xhttp "StockCast/pkg/http"
)

// HTTPServiceBase centralizes client construction and JSON POST handling for
// model-serving HTTP clients.
type HTTPServiceBase struct {
	client *xhttp.Client
}

// NewHTTPServiceBase builds a retrying HTTP client on the predictor URL.
// Client errors (4xx other than 429) and context cancellation are not
// retried.
func NewHTTPServiceBase(cfg *config.Config) *HTTPServiceBase {
	timeout := cfg.Predictor.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if cfg.Predictor.URL == "" {
		return &HTTPServiceBase{}
	}
	return &HTTPServiceBase{
		client: xhttp.NewClient(
			xhttp.WithBaseURL(cfg.Predictor.URL),
			xhttp.WithTimeout(timeout),
			xhttp.WithRetry(cfg.Predictor.Retries, cfg.Predictor.RetryBackoff),
			xhttp.WithHeader("Accept", "application/json"),
		),
	}
}

// PostJSON posts payload to path under the base URL and decodes JSON into dest.
func (b *HTTPServiceBase) PostJSON(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	if b.client == nil {
		return fmt.Errorf("predictor http client not initialized")
	}
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    path,
		Body:   payload,
	}, dest)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	return nil
}
