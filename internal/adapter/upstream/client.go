package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/simaogato/tldpricing-backend/internal/domain"
)

const (
	userAgent = "tldpricing-sync/1.0"

	// maxBodyBytes bounds the snapshot we are willing to read
	maxBodyBytes = 32 << 20
)

// Client fetches the wholesale price snapshot over HTTP
type Client struct {
	URL         string
	HTTPClient  *http.Client
	Retries     uint64
	BaseBackoff time.Duration
	Logger      zerolog.Logger
}

// NewClient creates a new Client. timeout bounds each attempt, retries counts attempts after the first.
func NewClient(url string, timeout time.Duration, retries uint64, logger zerolog.Logger) *Client {
	return &Client{
		URL:         url,
		HTTPClient:  &http.Client{Timeout: timeout},
		Retries:     retries,
		BaseBackoff: 200 * time.Millisecond,
		Logger:      logger,
	}
}

// FetchSnapshot downloads and decodes the snapshot.
// Network errors and 5xx responses are retried with exponential backoff;
// anything else fails at once with a *domain.FetchError.
func (c *Client) FetchSnapshot(ctx context.Context) ([]domain.CatalogEntry, error) {
	backoff := retry.WithMaxRetries(c.Retries, retry.NewExponential(c.BaseBackoff))

	var (
		entries []domain.CatalogEntry
		attempt int
	)
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		got, err := c.fetchOnce(ctx)
		if err != nil {
			var fetchErr *domain.FetchError
			if errors.As(err, &fetchErr) && fetchErr.Retryable() && ctx.Err() == nil {
				c.Logger.Warn().Err(err).Int("attempt", attempt).Msg("upstream fetch failed, retrying")
				return retry.RetryableError(err)
			}
			return err
		}
		entries = got
		return nil
	})
	if err != nil {
		var fetchErr *domain.FetchError
		if !errors.As(err, &fetchErr) {
			err = &domain.FetchError{URL: c.URL, Err: err}
		}
		return nil, err
	}

	c.Logger.Info().Int("entries", len(entries)).Int("attempts", attempt).Msg("fetched upstream snapshot")
	return entries, nil
}

func (c *Client) fetchOnce(ctx context.Context) ([]domain.CatalogEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &domain.FetchError{URL: c.URL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &domain.FetchError{URL: c.URL, Err: fmt.Errorf("failed to read body: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &domain.FetchError{URL: c.URL, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status: %s", truncate(body, 200))}
	}

	var entries []domain.CatalogEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, &domain.FetchError{URL: c.URL, StatusCode: resp.StatusCode, Err: fmt.Errorf("invalid JSON response: %w", err)}
	}
	if len(entries) == 0 {
		return nil, &domain.FetchError{URL: c.URL, StatusCode: resp.StatusCode, Err: errors.New("empty snapshot")}
	}

	return entries, nil
}

func truncate(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n]) + "..."
}
