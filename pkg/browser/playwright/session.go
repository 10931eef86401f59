package playwright

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/browsersteps/pkg/browser"
	"github.com/entrhq/browsersteps/pkg/logging"
)

// Session is a live Playwright browser session. It implements browser.Session.
type Session struct {
	// Name is the unique identifier for this session
	Name string

	// Browser is nil when the session runs in a persistent context
	Browser playwright.Browser

	// Context is the browser context (isolated session)
	Context playwright.BrowserContext

	// Page is the current active page
	Page playwright.Page

	// Headless indicates if the browser is running in headless mode
	Headless bool

	// CreatedAt is the timestamp when the session was created
	CreatedAt time.Time

	mu           sync.Mutex
	watched      sync.Map
	armed        atomic.Int32
	downloadsDir string
	timeout      time.Duration
	onOrphan     func(suggestedFilename, url string)
	logger       *logging.Logger
}

var _ browser.Session = (*Session)(nil)

// DownloadsDir returns the configured target directory.
func (s *Session) DownloadsDir() string {
	return s.downloadsDir
}

// CurrentPage returns the active page. When the tracked page has been
// closed, the most recently opened live page takes its place.
func (s *Session) CurrentPage(ctx context.Context) (browser.Page, error) {
	p, err := s.activePage(ctx)
	if err != nil {
		return nil, err
	}
	return &page{session: s, page: p}, nil
}

func (s *Session) activePage(ctx context.Context) (playwright.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Page != nil && !s.Page.IsClosed() {
		return s.Page, nil
	}
	if s.Context == nil {
		return nil, browser.ErrNoPage
	}
	pages := s.Context.Pages()
	for i := len(pages) - 1; i >= 0; i-- {
		if !pages[i].IsClosed() {
			s.Page = pages[i]
			return s.Page, nil
		}
	}
	return nil, browser.ErrNoPage
}

// CaptureSnapshot stamps and indexes the interactive elements of the current page.
func (s *Session) CaptureSnapshot(ctx context.Context, opts browser.SnapshotOptions) (*browser.Snapshot, error) {
	p, err := s.activePage(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := p.Evaluate(browser.SnapshotScript, browser.SnapshotScriptArg(opts))
	if err != nil {
		return nil, fmt.Errorf("snapshot evaluation failed: %w", translate(err))
	}
	refs, err := browser.DecodeSnapshotElements(raw)
	if err != nil {
		return nil, err
	}
	return browser.NewSnapshot(p.URL(), refs), nil
}

// ResolveHandle locates the element a snapshot reference was stamped on.
func (s *Session) ResolveHandle(ctx context.Context, ref browser.ElementReference) (browser.Handle, error) {
	p, err := s.activePage(ctx)
	if err != nil {
		return nil, err
	}
	loc := p.Locator(ref.Selector())
	n, err := loc.Count()
	if err != nil {
		return nil, fmt.Errorf("locate element %d: %w", ref.Index, translate(err))
	}
	if n == 0 {
		return nil, browser.ErrDetached
	}
	return &handle{locator: loc.First()}, nil
}

func (s *Session) firstPage() (playwright.Page, error) {
	if pages := s.Context.Pages(); len(pages) > 0 {
		for _, p := range pages {
			s.watchPage(p)
		}
		return pages[0], nil
	}
	p, err := s.Context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	s.watchPage(p)
	return p, nil
}

// watchPage reports downloads that start while no action is waiting for one.
func (s *Session) watchPage(p playwright.Page) {
	if _, loaded := s.watched.LoadOrStore(p, struct{}{}); loaded {
		return
	}
	p.OnDownload(func(d playwright.Download) {
		if s.armed.Load() > 0 {
			return
		}
		s.logger.Warnf("orphaned download left in browser staging: %s (%s)", d.SuggestedFilename(), d.URL())
		if s.onOrphan != nil {
			s.onOrphan(d.SuggestedFilename(), d.URL())
		}
	})
	p.OnClose(func(playwright.Page) {
		s.watched.Delete(p)
	})
}

func (s *Session) close() {
	if s.Context != nil {
		_ = s.Context.Close() // Ignore errors, continue cleanup
	}
	if s.Browser != nil {
		_ = s.Browser.Close()
	}
}

// translate maps Playwright timeouts onto browser.ErrTimeout.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%w: %v", browser.ErrTimeout, err)
	}
	return err
}

// await runs a blocking driver call, returning early if ctx ends.
func await[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		val, err := fn()
		done <- result{val, err}
	}()
	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// run is await for calls without a result.
func run(ctx context.Context, fn func() error) error {
	_, err := await(ctx, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
