// Package collyfetcher implements the HTTP probe fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/civicgraph/harvester/internal/crawler"
	"github.com/civicgraph/harvester/internal/fetcher"
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
}

// Fetcher implements crawler.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	clock         crawler.Clock
	baseCollector *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config, clock crawler.Clock) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())
	return &Fetcher{cfg: cfg, clock: clock, baseCollector: c}
}

// Fetch executes a single HTTP GET and parses the body into a snapshot.
func (f *Fetcher) Fetch(ctx context.Context, url string) (crawler.PageSnapshot, error) {
	var (
		body     []byte
		finalURL string
		status   int
		fetchErr error
	)

	collector := f.buildCollector()
	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
		finalURL = r.Request.URL.String()
		status = r.StatusCode
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
	})

	if err := runCollector(ctx, collector, url); err != nil {
		return crawler.PageSnapshot{}, classify(url, err, status)
	}
	if fetchErr != nil {
		return crawler.PageSnapshot{}, classify(url, fetchErr, status)
	}
	if finalURL == "" {
		finalURL = url
	}

	snap, err := fetcher.BuildSnapshot(finalURL, string(body), f.clock.Now())
	if err != nil {
		return crawler.PageSnapshot{}, &crawler.FetchError{Kind: crawler.FetchNetwork, URL: url, Err: err}
	}
	return snap, nil
}

func (f *Fetcher) buildCollector() *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	return collector
}

func runCollector(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("visit failed: %w", err)
		}
		return nil
	}
}

// classify maps transport and status failures onto the controller's fetch
// error classes so retry and logging treat them uniformly.
func classify(url string, err error, status int) *crawler.FetchError {
	kind := crawler.FetchNetwork
	switch {
	case errors.Is(err, context.DeadlineExceeded) || isTimeout(err):
		kind = crawler.FetchTimeout
	case status == http.StatusUnauthorized,
		status == http.StatusForbidden,
		status == http.StatusTooManyRequests:
		kind = crawler.FetchBlocked
	}
	return &crawler.FetchError{Kind: kind, URL: url, Err: err}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
