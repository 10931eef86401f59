// Package playwright implements browser.Session on top of playwright-go.
package playwright

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/browsersteps/pkg/browser"
	"github.com/entrhq/browsersteps/pkg/logging"
)

// Manager owns the Playwright driver and the sessions launched from it.
type Manager struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	playwright  *playwright.Playwright
	maxSessions int
	initialized bool
	logger      *logging.Logger
}

// NewManager creates a new session manager.
func NewManager(logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Manager{
		sessions:    make(map[string]*Session),
		maxSessions: DefaultMaxSessions,
		logger:      logger,
	}
}

// Initialize installs (if needed) and starts the Playwright driver.
// This must be called before creating any sessions.
func (m *Manager) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return nil
	}

	// Driver output would interleave with the MCP stdio stream.
	opts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}

	if err := playwright.Install(opts); err != nil {
		return fmt.Errorf("failed to install playwright: %w", err)
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	m.playwright = pw
	m.initialized = true
	return nil
}

// StartSession launches a browser session with the given name and options.
func (m *Manager) StartSession(name string, opts SessionOptions) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[name]; exists {
		return nil, fmt.Errorf("session %q already exists", name)
	}
	if len(m.sessions) >= m.maxSessions {
		return nil, fmt.Errorf("maximum number of sessions (%d) reached", m.maxSessions)
	}
	if !m.initialized {
		return nil, fmt.Errorf("session manager not initialized")
	}

	if opts.Viewport == nil {
		opts.Viewport = &Viewport{
			Width:  DefaultViewportWidth,
			Height: DefaultViewportHeight,
		}
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}

	domains, err := browser.NewDomainMatcher(opts.AllowedDomains)
	if err != nil {
		return nil, err
	}

	logger := m.logger.With("session", name)
	session := &Session{
		Name:         name,
		Headless:     opts.Headless,
		CreatedAt:    time.Now(),
		downloadsDir: opts.DownloadsDir,
		timeout:      opts.Timeout,
		onOrphan:     opts.OnOrphanDownload,
		logger:       logger,
	}

	viewport := &playwright.Size{Width: opts.Viewport.Width, Height: opts.Viewport.Height}

	if opts.UserDataDir != "" {
		session.Context, err = m.playwright.Chromium.LaunchPersistentContext(opts.UserDataDir,
			playwright.BrowserTypeLaunchPersistentContextOptions{
				Headless:        playwright.Bool(opts.Headless),
				Viewport:        viewport,
				AcceptDownloads: playwright.Bool(true),
			})
		if err != nil {
			return nil, fmt.Errorf("failed to launch persistent context: %w", err)
		}
	} else {
		session.Browser, err = m.playwright.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
			Headless: playwright.Bool(opts.Headless),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
		session.Context, err = session.Browser.NewContext(playwright.BrowserNewContextOptions{
			Viewport:        viewport,
			AcceptDownloads: playwright.Bool(true),
		})
		if err != nil {
			_ = session.Browser.Close()
			return nil, fmt.Errorf("failed to create context: %w", err)
		}
	}

	if !domains.Unrestricted() {
		if err := session.Context.Route("**/*", func(route playwright.Route) {
			target := route.Request().URL()
			if domains.AllowsURL(target) {
				_ = route.Continue()
				return
			}
			logger.Warnf("blocked request to disallowed domain: %s", target)
			_ = route.Abort("blockedbyclient")
		}); err != nil {
			session.close()
			return nil, fmt.Errorf("failed to install domain filter: %w", err)
		}
	}

	session.Context.SetDefaultTimeout(float64(opts.Timeout / time.Millisecond))
	session.Context.OnPage(session.watchPage)

	page, err := session.firstPage()
	if err != nil {
		session.close()
		return nil, err
	}
	session.Page = page

	if opts.StartURL != "" {
		if _, err := page.Goto(opts.StartURL); err != nil {
			session.close()
			return nil, fmt.Errorf("failed to open start url %s: %w", opts.StartURL, err)
		}
	}

	m.sessions[name] = session
	logger.Infof("browser session started (headless=%v, persistent=%v)", opts.Headless, opts.UserDataDir != "")
	return session, nil
}

// CloseSession closes and removes a browser session.
func (m *Manager) CloseSession(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.sessions[name]
	if !exists {
		return fmt.Errorf("session %q not found", name)
	}

	session.close()
	delete(m.sessions, name)
	return nil
}

// Shutdown closes all sessions and stops the Playwright driver.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, session := range m.sessions {
		session.close()
		delete(m.sessions, name)
	}

	if m.initialized && m.playwright != nil {
		if err := m.playwright.Stop(); err != nil {
			return fmt.Errorf("failed to stop playwright: %w", err)
		}
		m.initialized = false
	}
	return nil
}
