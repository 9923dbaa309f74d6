package analytics

import (
	"context"
	"fmt"
	"strings"
	"time"

	svcmetrics "MicroTrader/internal/service/metrics"
	"MicroTrader/pkg/config"
	xhttp "MicroTrader/pkg/http"
)

const providerName = "analytics"

// HTTPServiceBase is the shared JSON client for the python analytics service.
type HTTPServiceBase struct {
	baseURL string
	client  *xhttp.Client
	retries int
}

func NewHTTPServiceBase(cfg config.AnalyticsConfig) *HTTPServiceBase {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPServiceBase{
		baseURL: strings.TrimRight(cfg.ServiceURL, "/"),
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
		retries: cfg.Retries,
	}
}

// Enabled reports whether a service URL is configured.
func (b *HTTPServiceBase) Enabled() bool { return b != nil && b.baseURL != "" }

// PostJSON posts payload to path under baseURL and decodes JSON into dest.
func (b *HTTPServiceBase) PostJSON(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	if !b.Enabled() {
		return fmt.Errorf("analytics http client not initialized")
	}
	start := time.Now()
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    b.baseURL + path,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: payload,
	}, dest)
	svcmetrics.ProviderLatency.WithLabelValues(providerName, path).Observe(time.Since(start).Seconds())
	if err != nil {
		svcmetrics.ProviderErrors.WithLabelValues(providerName, path).Inc()
		return fmt.Errorf("post %s: %w", path, err)
	}
	return nil
}

// PostJSONWithRetry retries PostJSON with a linear backoff, up to the
// configured number of extra attempts.
func (b *HTTPServiceBase) PostJSONWithRetry(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	attempts := b.retries + 1
	var err error
	for i := 1; i <= attempts; i++ {
		err = b.PostJSON(ctx, path, payload, dest)
		if err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		select {
		case <-time.After(time.Duration(i) * 50 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
