// Package headless drives a single Chrome tab through chromedp and exposes it
// as a channel.Browser.
package headless

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/creator-rank-crawler/internal/channel"
)

// Config controls the behavior of the browser session.
type Config struct {
	UserAgent         string
	Headless          bool
	NavigationTimeout time.Duration
	WaitTimeout       time.Duration
	ActionTimeout     time.Duration
	PollInterval      time.Duration
}

// Session is one long-lived browser tab. It is not safe for concurrent use;
// the pipeline drives it step by step from a single goroutine.
type Session struct {
	cfg             Config
	allocatorCancel context.CancelFunc
	tabCtx          context.Context
	tabCancel       context.CancelFunc
}

var _ channel.Browser = (*Session)(nil)

// NewSession starts Chrome and opens the working tab.
func NewSession(cfg Config) (*Session, error) {
	cfg = withDefaults(cfg)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocatorCtx)

	warmup := chromedp.ActionFunc(func(ctx context.Context) error {
		if cfg.UserAgent == "" {
			return nil
		}
		if err := emulation.SetUserAgentOverride(cfg.UserAgent).Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		return nil
	})
	if err := chromedp.Run(tabCtx, warmup); err != nil {
		tabCancel()
		allocatorCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &Session{
		cfg:             cfg,
		allocatorCancel: allocatorCancel,
		tabCtx:          tabCtx,
		tabCancel:       tabCancel,
	}, nil
}

func withDefaults(cfg Config) Config {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 60 * time.Second
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 30 * time.Second
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 15 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	return cfg
}

// Close tears down the tab and the browser process.
func (s *Session) Close() {
	s.tabCancel()
	s.allocatorCancel()
}

// Navigate loads url in the tab.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, s.cfg.NavigationTimeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// WaitFor blocks until selector matches at least one element.
func (s *Session) WaitFor(ctx context.Context, selector string) error {
	if err := s.run(ctx, s.cfg.WaitTimeout, chromedp.WaitReady(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait for %q: %w", selector, err)
	}
	return nil
}

// Count returns the number of elements matching selector.
func (s *Session) Count(ctx context.Context, selector string) (int, error) {
	var n int
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.Evaluate(countScript(selector), &n)); err != nil {
		return 0, fmt.Errorf("count %q: %w", selector, err)
	}
	return n, nil
}

// Links returns the visible text and raw href of every anchor matching selector.
func (s *Session) Links(ctx context.Context, selector string) ([]channel.Link, error) {
	var links []channel.Link
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.Evaluate(linksScript(selector), &links)); err != nil {
		return nil, fmt.Errorf("links %q: %w", selector, err)
	}
	return links, nil
}

// CellTexts returns the trimmed inner text of cellSelector children for every
// element matching rowSelector, in document order.
func (s *Session) CellTexts(ctx context.Context, rowSelector, cellSelector string) ([][]string, error) {
	var rows [][]string
	script := cellTextsScript(rowSelector, cellSelector)
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.Evaluate(script, &rows)); err != nil {
		return nil, fmt.Errorf("cell texts %q: %w", rowSelector, err)
	}
	return rows, nil
}

// ScrollToBottom scrolls the nearest scrollable ancestor of the first element
// matching anchorSelector, or the document when there is none.
func (s *Session) ScrollToBottom(ctx context.Context, anchorSelector string) error {
	var ok bool
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.Evaluate(scrollScript(anchorSelector), &ok)); err != nil {
		return fmt.Errorf("scroll: %w", err)
	}
	return nil
}

// ClickAndCapture clicks the index-th element matching selector and returns
// the URL the tab navigates to.
func (s *Session) ClickAndCapture(ctx context.Context, selector string, index int) (string, error) {
	var before string
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.Location(&before)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	var clicked bool
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.Evaluate(clickScript(selector, index), &clicked)); err != nil {
		return "", fmt.Errorf("click %q[%d]: %w", selector, index, err)
	}
	if !clicked {
		return "", fmt.Errorf("click %q[%d]: %w: element not found", selector, index, channel.ErrNavigationFailure)
	}

	var after string
	poll := chromedp.ActionFunc(func(ctx context.Context) error {
		ticker := time.NewTicker(s.cfg.PollInterval)
		defer ticker.Stop()
		for {
			if err := chromedp.Location(&after).Do(ctx); err != nil {
				return err
			}
			if after != "" && after != before {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	})
	if err := s.run(ctx, s.cfg.NavigationTimeout, poll); err != nil {
		return "", fmt.Errorf("await navigation from %s: %w: %w", before, channel.ErrNavigationFailure, err)
	}
	return after, nil
}

// Back returns to the previous history entry.
func (s *Session) Back(ctx context.Context) error {
	if err := s.run(ctx, s.cfg.NavigationTimeout, chromedp.NavigateBack()); err != nil {
		return fmt.Errorf("navigate back: %w", err)
	}
	return nil
}

// Text returns the visible text of the first element matching selector.
func (s *Session) Text(ctx context.Context, selector string) (string, error) {
	var text string
	err := s.run(ctx, s.cfg.ActionTimeout, chromedp.Text(selector, &text, chromedp.ByQuery))
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return "", fmt.Errorf("text %q: %w", selector, channel.ErrExtractionTimeout)
	}
	if err != nil {
		return "", fmt.Errorf("text %q: %w", selector, err)
	}
	return text, nil
}

// run executes actions on the tab under timeout, honoring cancellation of the
// caller's ctx as well.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	taskCtx, cancelTask := context.WithTimeout(s.tabCtx, timeout)
	defer cancelTask()

	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	if err := chromedp.Run(taskCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

func countScript(selector string) string {
	return fmt.Sprintf(`document.querySelectorAll(%s).length`, strconv.Quote(selector))
}

func linksScript(selector string) string {
	return fmt.Sprintf(`Array.from(document.querySelectorAll(%s)).map(a => ({
  text: (a.innerText || a.textContent || "").trim(),
  href: a.getAttribute("href") || ""
}))`, strconv.Quote(selector))
}

func cellTextsScript(rowSelector, cellSelector string) string {
	return fmt.Sprintf(`Array.from(document.querySelectorAll(%s)).map(row =>
  Array.from(row.querySelectorAll(%s)).map(cell => (cell.innerText || cell.textContent || "").trim())
)`, strconv.Quote(rowSelector), strconv.Quote(cellSelector))
}

func scrollScript(anchorSelector string) string {
	return fmt.Sprintf(`(() => {
  const anchor = document.querySelector(%s);
  let el = anchor ? anchor.parentElement : null;
  while (el) {
    const style = window.getComputedStyle(el);
    if ((style.overflowY === "auto" || style.overflowY === "scroll") && el.scrollHeight > el.clientHeight) {
      el.scrollTo(0, el.scrollHeight);
      return true;
    }
    el = el.parentElement;
  }
  const root = document.scrollingElement || document.documentElement;
  root.scrollTo(0, root.scrollHeight);
  return false;
})()`, strconv.Quote(anchorSelector))
}

func clickScript(selector string, index int) string {
	return fmt.Sprintf(`(() => {
  const el = document.querySelectorAll(%s)[%d];
  if (!el) return false;
  el.click();
  return true;
})()`, strconv.Quote(selector), index)
}
