package playwright

import (
	"context"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/browsersteps/pkg/browser"
)

type page struct {
	session *Session
	page    playwright.Page
}

func (p *page) URL() string {
	return p.page.URL()
}

// ExpectDownload keeps the session's orphan watcher quiet while armed, so
// a download started by trigger is only ever reported once.
func (p *page) ExpectDownload(ctx context.Context, timeout time.Duration, trigger func() error) (browser.Download, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	p.session.armed.Add(1)
	defer p.session.armed.Add(-1)

	var triggerErr error
	d, err := p.page.ExpectDownload(func() error {
		triggerErr = trigger()
		return triggerErr
	}, playwright.PageExpectDownloadOptions{Timeout: millis(timeout)})
	if triggerErr != nil {
		return nil, triggerErr
	}
	if err != nil {
		return nil, translate(err)
	}
	return &download{download: d}, nil
}

func (p *page) ForceClick(ctx context.Context, selector string) error {
	res, err := await(ctx, func() (interface{}, error) {
		return p.page.Evaluate(browser.ForceClickScript, selector)
	})
	if err != nil {
		return fmt.Errorf("force click %q: %w", selector, translate(err))
	}
	if clicked, _ := res.(bool); !clicked {
		return browser.ErrNotFound
	}
	return nil
}

type handle struct {
	locator playwright.Locator
}

func (h *handle) Click(ctx context.Context, timeout time.Duration) error {
	return run(ctx, func() error {
		return translate(h.locator.Click(playwright.LocatorClickOptions{Timeout: millis(timeout)}))
	})
}

func (h *handle) TextContent(ctx context.Context, timeout time.Duration) (string, error) {
	return await(ctx, func() (string, error) {
		text, err := h.locator.TextContent(playwright.LocatorTextContentOptions{Timeout: millis(timeout)})
		return text, translate(err)
	})
}

func (h *handle) SetInputFiles(ctx context.Context, path string) error {
	return run(ctx, func() error {
		return translate(h.locator.SetInputFiles(path))
	})
}

type download struct {
	download playwright.Download
}

func (d *download) SuggestedFilename() string {
	return d.download.SuggestedFilename()
}

func (d *download) SaveAs(ctx context.Context, path string) error {
	return run(ctx, func() error {
		return d.download.SaveAs(path)
	})
}

func (d *download) Path(ctx context.Context) (string, error) {
	return await(ctx, d.download.Path)
}
