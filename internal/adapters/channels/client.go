package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultHackerNewsBase = "https://hn.algolia.com/api/v1"
	defaultRedditBase     = "https://www.reddit.com"
	defaultUserAgent      = "attention-markets/1.0"

	// Algolia HN: 10000 req/h por IP → ~2.7/s, nos quedamos en 2/s.
	hackerNewsRatePerSec = 2
	// Reddit sin OAuth: 10 req/min → 1 cada 6s.
	redditRatePerSec = 1.0 / 6

	// Each collector does one request per event per tick and its limiter is
	// shared by all events. Reddit caps live capacity at about 10 events per
	// 60s tick; beyond that a reading whose wait would pass the channel
	// timeout fails at once and the channel contributes zero for that tick.

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
	maxBodyBytes  = 4 << 20
)

// Client es el HTTP client compartido por los collectors, con rate limiting
// por host y retries.
type Client struct {
	http      *http.Client
	userAgent string
}

// NewClient creates a Client. An empty userAgent uses a generic one; Reddit
// rejects requests without it.
func NewClient(userAgent string) *Client {
	if strings.TrimSpace(userAgent) == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		http:      &http.Client{Timeout: 10 * time.Second},
		userAgent: userAgent,
	}
}

// getJSON hace un GET con rate limiting y retries y decodifica el JSON en out.
func (c *Client) getJSON(ctx context.Context, limiter *rate.Limiter, url string, out any) error {
	return c.doWithRetry(ctx, limiter, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.userAgent)
		return c.http.Do(req)
	}, out)
}

// doWithRetry ejecuta la función con backoff exponencial, respetando el contexto.
func (c *Client) doWithRetry(ctx context.Context, limiter *rate.Limiter, fn func() (*http.Response, error), out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			if ctx.Err() != nil || attempt == maxRetries {
				return fmt.Errorf("request failed after %d attempts: %w", attempt+1, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			slog.Warn("rate limited by channel", "url", resp.Request.URL.Host, "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("server error %d after %d attempts", resp.StatusCode, attempt+1)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}

		err = json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep espera con backoff exponencial, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}

// matchTitle reports whether title mentions a keyword and no exclusion.
func matchTitle(title string, keywords, exclusions []string) bool {
	t := strings.ToLower(title)
	for _, ex := range exclusions {
		if ex = strings.ToLower(strings.TrimSpace(ex)); ex != "" && strings.Contains(t, ex) {
			return false
		}
	}
	for _, kw := range keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" && strings.Contains(t, kw) {
			return true
		}
	}
	return false
}
