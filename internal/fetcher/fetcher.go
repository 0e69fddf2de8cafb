package fetcher

import (
	"context"
	"net/http"
	"time"

	"github.com/JakeFAU/creator-rank-crawler/internal/channel"
)

// Page is raw content retrieved for a URL.
type Page struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Retriever performs a single retrieval attempt.
type Retriever interface {
	Retrieve(ctx context.Context, url string) (Page, error)
}

// Fetcher wraps a Retriever with the bounded retry budget.
type Fetcher struct {
	retriever Retriever
	retrier   *Retrier
}

// New constructs a Fetcher.
func New(retriever Retriever, retrier *Retrier) *Fetcher {
	return &Fetcher{retriever: retriever, retrier: retrier}
}

// Fetch retrieves url, retrying failed attempts. Exhaustion yields a
// *channel.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, url string) (Page, error) {
	var page Page
	err := f.retrier.Do(ctx, url, func(ctx context.Context) error {
		p, err := f.retriever.Retrieve(ctx, url)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return Page{}, err
	}
	return page, nil
}

// LoadListing navigates the browser to url and waits for selector, retrying
// the pair as one attempt. This is the initial page load of a scrape batch.
func LoadListing(ctx context.Context, b channel.Browser, r *Retrier, url, selector string) error {
	return r.Do(ctx, url, func(ctx context.Context) error {
		if err := b.Navigate(ctx, url); err != nil {
			return err
		}
		return b.WaitFor(ctx, selector)
	})
}
