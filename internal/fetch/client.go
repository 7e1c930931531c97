// Package fetch retrieves manifests and media segments over HTTP and
// classifies failures so callers can tell transport faults, bad statuses and
// body-read failures apart.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"dashplayd/internal/logger"
)

// The three per-attempt failure kinds. None of them is fatal to a session;
// the scheduling loop absorbs them and relies on external retry triggers.
var (
	// ErrTransport reports a request that never produced a response.
	ErrTransport = errors.New("transport failure")
	// ErrStatus reports a non-200 response.
	ErrStatus = errors.New("unexpected response status")
	// ErrBody reports a response whose body could not be read.
	ErrBody = errors.New("response body read failed")
)

// Client fetches byte payloads for the player.
type Client struct {
	httpClient *http.Client
	logger     logger.Logger
	userAgent  string
	cache      *Cache

	// RequestTimeout bounds each individual request.
	RequestTimeout time.Duration
}

// NewClient creates a fetch client.
func NewClient(log logger.Logger, userAgent string) *Client {
	transport := &http.Transport{
		ResponseHeaderTimeout: 3 * time.Second,
	}

	return &Client{
		httpClient:     &http.Client{Transport: transport},
		logger:         log,
		userAgent:      userAgent,
		RequestTimeout: 5 * time.Second,
	}
}

// WithCache attaches a segment cache consulted before hitting the network.
func (c *Client) WithCache(cache *Cache) *Client {
	c.cache = cache
	return c
}

// Fetch retrieves the payload at url. Failures carry one of the package's
// classification sentinels.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	if c.cache != nil {
		if data, found := c.cache.Get(url); found {
			c.logger.Debugf("Cache hit for %s", url)
			return data, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request for %s: %v", ErrTransport, url, err)
	}

	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	c.logger.Debugf("Fetching %s", url)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch of %s: %v", ErrTransport, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: received %d from %s", ErrStatus, resp.StatusCode, url)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrBody, url, err)
	}

	if c.cache != nil {
		c.cache.Set(url, data)
	}

	return data, nil
}
