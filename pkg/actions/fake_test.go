package actions

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/entrhq/browsersteps/pkg/browser"
)

// fakeSession is an in-memory browser.Session that counts every call.
type fakeSession struct {
	mu    sync.Mutex
	calls map[string]int

	dir         string
	snapshot    *browser.Snapshot
	snapshotErr error
	page        *fakePage
	pageErr     error
	handles     map[int]*fakeHandle
	resolveErr  error
}

func newFakeSession(dir string, refs ...browser.ElementReference) *fakeSession {
	s := &fakeSession{
		calls:    make(map[string]int),
		dir:      dir,
		snapshot: browser.NewSnapshot("https://example.test/", refs),
		handles:  make(map[int]*fakeHandle),
	}
	s.page = &fakePage{session: s}
	for _, ref := range refs {
		s.handles[ref.Index] = &fakeHandle{session: s}
	}
	return s
}

func (s *fakeSession) record(name string) {
	s.mu.Lock()
	s.calls[name]++
	s.mu.Unlock()
}

func (s *fakeSession) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func (s *fakeSession) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func (s *fakeSession) CurrentPage(ctx context.Context) (browser.Page, error) {
	s.record("CurrentPage")
	if s.pageErr != nil {
		return nil, s.pageErr
	}
	return s.page, nil
}

func (s *fakeSession) CaptureSnapshot(ctx context.Context, opts browser.SnapshotOptions) (*browser.Snapshot, error) {
	s.record("CaptureSnapshot")
	if s.snapshotErr != nil {
		return nil, s.snapshotErr
	}
	return s.snapshot, nil
}

func (s *fakeSession) ResolveHandle(ctx context.Context, ref browser.ElementReference) (browser.Handle, error) {
	s.record("ResolveHandle")
	if s.resolveErr != nil {
		return nil, s.resolveErr
	}
	h, ok := s.handles[ref.Index]
	if !ok {
		return nil, browser.ErrDetached
	}
	return h, nil
}

func (s *fakeSession) DownloadsDir() string {
	s.record("DownloadsDir")
	return s.dir
}

// fakePage simulates the coupled click and download wait.
type fakePage struct {
	session *fakeSession

	// download is announced after the trigger succeeds; nil means the wait times out.
	download *fakeDownload
	waitErr  error

	forceClickErr error
	forceClicked  []string

	armedDuringTrigger bool
	armed              bool
}

func (p *fakePage) URL() string { return "https://example.test/" }

func (p *fakePage) ExpectDownload(ctx context.Context, timeout time.Duration, trigger func() error) (browser.Download, error) {
	p.session.record("ExpectDownload")
	p.armed = true
	defer func() { p.armed = false }()

	if err := trigger(); err != nil {
		return nil, err
	}
	if p.waitErr != nil {
		return nil, p.waitErr
	}
	if p.download == nil {
		return nil, browser.ErrTimeout
	}
	return p.download, nil
}

func (p *fakePage) ForceClick(ctx context.Context, selector string) error {
	p.session.record("ForceClick")
	if p.forceClickErr != nil {
		return p.forceClickErr
	}
	p.forceClicked = append(p.forceClicked, selector)
	return nil
}

type fakeHandle struct {
	session *fakeSession

	clickErr  error
	text      string
	textErr   error
	attachErr error

	clicked  int
	attached []string
}

func (h *fakeHandle) Click(ctx context.Context, timeout time.Duration) error {
	h.session.record("Click")
	if h.session.page.armed {
		h.session.page.armedDuringTrigger = true
	}
	if h.clickErr != nil {
		return h.clickErr
	}
	h.clicked++
	return nil
}

func (h *fakeHandle) TextContent(ctx context.Context, timeout time.Duration) (string, error) {
	h.session.record("TextContent")
	return h.text, h.textErr
}

func (h *fakeHandle) SetInputFiles(ctx context.Context, path string) error {
	h.session.record("SetInputFiles")
	if h.attachErr != nil {
		return h.attachErr
	}
	h.attached = append(h.attached, path)
	return nil
}

// fakeDownload writes content on SaveAs. When writeTo is set the bytes go
// there instead of the requested path, imitating the browser's own writer.
type fakeDownload struct {
	suggested string
	content   []byte
	writeTo   string
	saveErr   error
	tempPath  string
	pathErr   error
}

func (d *fakeDownload) SuggestedFilename() string { return d.suggested }

func (d *fakeDownload) SaveAs(ctx context.Context, path string) error {
	if d.saveErr != nil {
		return d.saveErr
	}
	if d.writeTo != "" {
		path = d.writeTo
	}
	return os.WriteFile(path, d.content, 0o644)
}

func (d *fakeDownload) Path(ctx context.Context) (string, error) {
	return d.tempPath, d.pathErr
}
