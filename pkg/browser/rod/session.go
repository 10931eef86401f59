// Package rod implements browser.Session on top of go-rod, driving Chrome
// over the DevTools protocol directly.
package rod

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/entrhq/browsersteps/pkg/browser"
	"github.com/entrhq/browsersteps/pkg/logging"
)

// Options configures a rod session.
type Options struct {
	// ControlURL connects to a running Chrome instead of launching one.
	ControlURL string

	Headless bool

	// UserDataDir keeps the Chrome profile across runs when set.
	UserDataDir string

	// Stealth applies go-rod/stealth evasions to new pages.
	Stealth bool

	StartURL       string
	AllowedDomains []string
	DownloadsDir   string

	// OnOrphanDownload is called for downloads nobody was waiting for.
	OnOrphanDownload func(suggestedFilename, url string)

	Logger *logging.Logger
}

// Session is a rod-driven browser session. It implements browser.Session.
type Session struct {
	opts    Options
	logger  *logging.Logger
	browser *rod.Browser
	lnch    *launcher.Launcher
	router  *rod.HijackRouter
	cancel  context.CancelFunc

	staging   string
	downloads *tracker

	mu   sync.Mutex
	page *rod.Page
}

var _ browser.Session = (*Session)(nil)

// Launch starts (or connects to) Chrome and opens the first page.
func Launch(ctx context.Context, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	domains, err := browser.NewDomainMatcher(opts.AllowedDomains)
	if err != nil {
		return nil, err
	}

	s := &Session{opts: opts, logger: logger}

	wsURL := opts.ControlURL
	if wsURL == "" {
		l := launcher.New().Context(ctx).Headless(opts.Headless)
		if opts.UserDataDir != "" {
			l = l.UserDataDir(opts.UserDataDir)
		}
		l = l.Set("disable-blink-features", "AutomationControlled")
		if wsURL, err = l.Launch(); err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		s.lnch = l
		logger.Infof("launched local chrome at %s", wsURL)
	} else {
		logger.Infof("connecting to remote chrome at %s", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		s.Close()
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	s.browser = b

	if err := s.setupDownloads(); err != nil {
		s.Close()
		return nil, err
	}

	if !domains.Unrestricted() {
		s.router = s.browser.HijackRequests()
		if err := s.router.Add("*", "", func(h *rod.Hijack) {
			target := h.Request.URL().String()
			if domains.AllowsURL(target) {
				h.ContinueRequest(&proto.FetchContinueRequest{})
				return
			}
			logger.Warnf("blocked request to disallowed domain: %s", target)
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
		}); err != nil {
			s.Close()
			return nil, fmt.Errorf("browser: install domain filter: %w", err)
		}
		go s.router.Run()
	}

	page, err := s.newPage()
	if err != nil {
		s.Close()
		return nil, err
	}
	s.page = page

	if opts.StartURL != "" {
		if err := page.Context(ctx).Navigate(opts.StartURL); err != nil {
			s.Close()
			return nil, fmt.Errorf("browser: open start url %s: %w", opts.StartURL, err)
		}
		_ = page.Context(ctx).WaitLoad()
	}
	return s, nil
}

// setupDownloads routes every download into a private staging directory
// and starts the event loop feeding the tracker.
func (s *Session) setupDownloads() error {
	staging, err := os.MkdirTemp("", "browsersteps-rod-*")
	if err != nil {
		return fmt.Errorf("browser: create download staging: %w", err)
	}
	s.staging = staging
	s.downloads = newTracker(staging, func(name, url string) {
		s.logger.Warnf("orphaned download left in browser staging: %s (%s)", name, url)
		if s.opts.OnOrphanDownload != nil {
			s.opts.OnOrphanDownload(name, url)
		}
	})

	err = proto.BrowserSetDownloadBehavior{
		Behavior:      proto.BrowserSetDownloadBehaviorBehaviorAllowAndName,
		DownloadPath:  staging,
		EventsEnabled: true,
	}.Call(s.browser)
	if err != nil {
		return fmt.Errorf("browser: set download behavior: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	wait := s.browser.Context(ctx).EachEvent(
		func(e *proto.BrowserDownloadWillBegin) { s.downloads.begin(e) },
		func(e *proto.BrowserDownloadProgress) { s.downloads.progress(e) },
	)
	go wait()
	return nil
}

func (s *Session) newPage() (*rod.Page, error) {
	if s.opts.Stealth {
		p, err := stealth.Page(s.browser)
		if err != nil {
			return nil, fmt.Errorf("browser: stealth page: %w", err)
		}
		return p, nil
	}
	p, err := s.browser.Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		return nil, fmt.Errorf("browser: new page: %w", err)
	}
	return p, nil
}

// DownloadsDir returns the configured target directory.
func (s *Session) DownloadsDir() string {
	return s.opts.DownloadsDir
}

// CurrentPage returns the tracked page while it is still open, otherwise
// the most recently listed page of the browser.
func (s *Session) CurrentPage(ctx context.Context) (browser.Page, error) {
	p, err := s.activePage(ctx)
	if err != nil {
		return nil, err
	}
	return &page{session: s, page: p}, nil
}

func (s *Session) activePage(ctx context.Context) (*rod.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pages, err := s.browser.Context(ctx).Pages()
	if err != nil {
		return nil, fmt.Errorf("browser: list pages: %w", err)
	}
	if s.page != nil {
		for _, p := range pages {
			if p.TargetID == s.page.TargetID {
				return s.page, nil
			}
		}
	}
	if pages.Empty() {
		return nil, browser.ErrNoPage
	}
	s.page = pages.Last()
	return s.page, nil
}

// CaptureSnapshot stamps and indexes the interactive elements of the current page.
func (s *Session) CaptureSnapshot(ctx context.Context, opts browser.SnapshotOptions) (*browser.Snapshot, error) {
	p, err := s.activePage(ctx)
	if err != nil {
		return nil, err
	}
	res, err := p.Context(ctx).Eval(browser.SnapshotScript, browser.SnapshotScriptArg(opts))
	if err != nil {
		return nil, fmt.Errorf("snapshot evaluation failed: %w", err)
	}
	refs, err := browser.DecodeSnapshotElements(res.Value.Val())
	if err != nil {
		return nil, err
	}
	info, err := p.Context(ctx).Info()
	if err != nil {
		return nil, fmt.Errorf("browser: page info: %w", err)
	}
	return browser.NewSnapshot(info.URL, refs), nil
}

// ResolveHandle finds the element a snapshot reference was stamped on.
func (s *Session) ResolveHandle(ctx context.Context, ref browser.ElementReference) (browser.Handle, error) {
	p, err := s.activePage(ctx)
	if err != nil {
		return nil, err
	}
	found, el, err := p.Context(ctx).Has(ref.Selector())
	if err != nil {
		return nil, fmt.Errorf("locate element %d: %w", ref.Index, err)
	}
	if !found {
		return nil, browser.ErrDetached
	}
	return &handle{element: el}, nil
}

// Close shuts the browser down and removes the download staging directory.
func (s *Session) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.router != nil {
		_ = s.router.Stop()
	}
	var err error
	if s.browser != nil {
		err = s.browser.Close()
	}
	if s.lnch != nil {
		s.lnch.Kill()
		// Cleanup deletes the profile directory, so keep user-provided ones.
		if s.opts.UserDataDir == "" {
			s.lnch.Cleanup()
		}
	}
	if s.staging != "" {
		_ = os.RemoveAll(s.staging)
	}
	return err
}

type page struct {
	session *Session
	page    *rod.Page
}

func (p *page) URL() string {
	info, err := p.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (p *page) ExpectDownload(ctx context.Context, timeout time.Duration, trigger func() error) (browser.Download, error) {
	ch := p.session.downloads.arm()
	defer p.session.downloads.disarm(ch)

	if err := trigger(); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case d := <-ch:
		return d, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: no download started within %s", browser.ErrTimeout, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *page) ForceClick(ctx context.Context, selector string) error {
	res, err := p.page.Context(ctx).Eval(browser.ForceClickScript, selector)
	if err != nil {
		return fmt.Errorf("force click %q: %w", selector, err)
	}
	if !res.Value.Bool() {
		return browser.ErrNotFound
	}
	return nil
}

type handle struct {
	element *rod.Element
}

func (h *handle) Click(ctx context.Context, timeout time.Duration) error {
	el := h.element.Context(ctx).Timeout(timeout)
	defer el.CancelTimeout()
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (h *handle) TextContent(ctx context.Context, timeout time.Duration) (string, error) {
	el := h.element.Context(ctx).Timeout(timeout)
	defer el.CancelTimeout()
	return el.Text()
}

func (h *handle) SetInputFiles(ctx context.Context, path string) error {
	return h.element.Context(ctx).SetFiles([]string{path})
}
