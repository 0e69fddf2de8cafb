// Package collyfetcher retrieves server-rendered listing pages with gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/creator-rank-crawler/internal/fetcher"
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	Headers       http.Header
}

// Retriever implements fetcher.Retriever using the Colly collector. Each
// Retrieve call is exactly one attempt; retries belong to fetcher.Retrier.
type Retriever struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Retriever.
func New(cfg Config) *Retriever {
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(newHTTPTransport())
	return &Retriever{cfg: cfg, baseCollector: c}
}

// Retrieve executes a single HTTP GET.
func (r *Retriever) Retrieve(ctx context.Context, url string) (fetcher.Page, error) {
	var (
		page     fetcher.Page
		fetchErr error
	)
	collector := r.buildCollector(time.Now(), &page, &fetchErr)
	if err := runCollector(ctx, collector, url, &fetchErr); err != nil {
		return fetcher.Page{}, err
	}
	return page, nil
}

func (r *Retriever) buildCollector(start time.Time, page *fetcher.Page, fetchErr *error) *colly.Collector {
	collector := r.baseCollector.Clone()
	if r.cfg.UserAgent != "" {
		collector.UserAgent = r.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !r.cfg.RespectRobots
	timeout := r.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	r.configureCollectorHooks(collector, start, page, fetchErr)
	return collector
}

func (r *Retriever) configureCollectorHooks(
	hooks collectorHooks,
	start time.Time,
	page *fetcher.Page,
	fetchErr *error,
) {
	hooks.OnRequest(func(req *colly.Request) {
		for key, values := range r.cfg.Headers {
			for _, v := range values {
				req.Headers.Add(key, v)
			}
		}
	})

	hooks.OnResponse(func(resp *colly.Response) {
		var headers http.Header
		if resp.Headers != nil {
			headers = resp.Headers.Clone()
		}
		*page = fetcher.Page{
			URL:        resp.Request.URL.String(),
			StatusCode: resp.StatusCode,
			Headers:    headers,
			Body:       append([]byte(nil), resp.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
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
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
}
