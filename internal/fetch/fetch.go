// Package fetch provides the two HTTP paths the harvester needs outside the
// browser session: small HTML detail pages (colly) and large artifact byte
// streams (net/http, unbuffered).
package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// Config controls retry behavior and identification for both clients.
type Config struct {
	UserAgent string
	// PageTimeout bounds interactive page fetches.
	PageTimeout time.Duration
	// ArtifactTimeout bounds artifact downloads; zero means unbounded,
	// which is deliberate for very large documents.
	ArtifactTimeout time.Duration
	// Attempts is the total number of tries per request.
	Attempts int
	// RetryDelay is the fixed pause between tries.
	RetryDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.PageTimeout <= 0 {
		c.PageTimeout = 30 * time.Second
	}
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2 * time.Second
	}
	return c
}

// Client fetches detail pages and opens artifact streams with a fixed
// small retry budget and fixed delay between attempts.
type Client struct {
	cfg       Config
	collector *colly.Collector
	http      *http.Client
	logger    *zap.Logger
}

// New builds a Client.
func New(cfg Config, logger *zap.Logger) *Client {
	cfg = cfg.withDefaults()

	base := colly.NewCollector(colly.Async(false))
	base.AllowURLRevisit = true
	if cfg.UserAgent != "" {
		base.UserAgent = cfg.UserAgent
	}
	base.SetRequestTimeout(cfg.PageTimeout)
	base.WithTransport(newTransport())

	return &Client{
		cfg:       cfg,
		collector: base,
		http: &http.Client{
			Timeout:   cfg.ArtifactTimeout,
			Transport: newTransport(),
		},
		logger: logger,
	}
}

// Page fetches one HTML page and returns its body. Failed attempts are
// retried up to the configured budget; the last error is returned after
// exhaustion.
func (c *Client) Page(ctx context.Context, url string) (string, error) {
	var (
		body    []byte
		lastErr error
	)
	for attempt := 1; attempt <= c.cfg.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		collector := c.collector.Clone()
		fetched := false
		collector.OnResponse(func(r *colly.Response) {
			body = r.Body
			fetched = true
		})
		collector.OnError(func(_ *colly.Response, err error) {
			lastErr = err
		})

		if err := collector.Visit(url); err != nil {
			lastErr = err
		}
		if fetched {
			return string(body), nil
		}
		if attempt < c.cfg.Attempts {
			c.logger.Warn("page fetch failed, retrying",
				zap.String("url", url),
				zap.Int("attempt", attempt),
				zap.Error(lastErr))
			if err := sleep(ctx, c.cfg.RetryDelay); err != nil {
				return "", err
			}
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no response")
	}
	return "", fmt.Errorf("fetch %s after %d attempts: %w", url, c.cfg.Attempts, lastErr)
}

// Open starts an artifact download and hands back the raw body stream so the
// caller can pipe it into the destination without buffering. The caller owns
// closing the stream. Only the initial request is retried; a stream that
// breaks mid-copy surfaces through the reader.
func (c *Client) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		body, err := c.openOnce(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if attempt < c.cfg.Attempts {
			c.logger.Warn("artifact fetch failed, retrying",
				zap.String("url", url),
				zap.Int("attempt", attempt),
				zap.Error(err))
			if sleepErr := sleep(ctx, c.cfg.RetryDelay); sleepErr != nil {
				return nil, sleepErr
			}
		}
	}
	return nil, fmt.Errorf("open %s after %d attempts: %w", url, c.cfg.Attempts, lastErr)
}

func (c *Client) openOnce(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
	}
}
