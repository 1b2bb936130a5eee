// Package feed fetches option-chain snapshots from the backend REST source and
// maps them to typed instrument rows.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/rewired-gh/strikewatch/internal/logger"
	"github.com/rewired-gh/strikewatch/internal/models"
)

var (
	// ErrUnauthorized is returned when the feed rejects the bearer token.
	ErrUnauthorized = errors.New("feed rejected credentials")
)

// ClientConfig tunes retries and the HTTP transport.
type ClientConfig struct {
	MaxRetries          int
	RetryDelayBase      time.Duration
	RatePerSec          float64
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
}

// Client provides access to the snapshot feed.
type Client struct {
	url            string
	token          string
	httpClient     *http.Client
	limiter        *rate.Limiter
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a feed client for baseURL+path. An empty token sends no Authorization header.
func NewClient(baseURL, path, token string, timeout time.Duration, cfg ClientConfig) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelayBase <= 0 {
		cfg.RetryDelayBase = time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
	}

	return &Client{
		url:   strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/"),
		token: token,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		limiter:        rate.NewLimiter(limit, 1),
		maxRetries:     cfg.MaxRetries,
		retryDelayBase: cfg.RetryDelayBase,
	}
}

// Fetch retrieves the full current snapshot.
func (c *Client) Fetch(ctx context.Context) ([]models.InstrumentRow, error) {
	body, err := c.doRequest(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch snapshot: %w", err)
	}
	rows, err := DecodeSnapshot(body)
	if err != nil {
		return nil, err
	}
	logger.Debug("Decoded %d instrument rows from %d bytes", len(rows), len(body))
	return rows, nil
}

// doRequest performs the GET with linear-backoff retry on transport errors and 5xx.
func (c *Client) doRequest(ctx context.Context) ([]byte, error) {
	var lastErr error

	for i := 0; i < c.maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelayBase * time.Duration(i)):
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			logger.Debug("Feed request attempt %d failed: %v", i+1, err)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, ErrUnauthorized
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			logger.Debug("Feed request attempt %d failed: %v", i+1, lastErr)
			continue
		case resp.StatusCode >= 400:
			return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
		}
		if readErr != nil {
			lastErr = readErr
			continue
		}
		return body, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
