package rod

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-rod/rod/lib/proto"
)

// tracker pairs CDP download events with armed waiters. Chrome saves every
// download as <staging>/<guid>; a download is moved out of staging only by
// SaveAs, so unclaimed downloads never reach the target directory.
type tracker struct {
	staging  string
	onOrphan func(suggestedFilename, url string)

	mu      sync.Mutex
	waiters []chan *download
	byGUID  map[string]*download
}

func newTracker(staging string, onOrphan func(string, string)) *tracker {
	return &tracker{
		staging:  staging,
		onOrphan: onOrphan,
		byGUID:   make(map[string]*download),
	}
}

// arm registers a waiter for the next download to begin.
func (t *tracker) arm() chan *download {
	ch := make(chan *download, 1)
	t.mu.Lock()
	t.waiters = append(t.waiters, ch)
	t.mu.Unlock()
	return ch
}

// disarm withdraws a waiter. A download delivered after the waiter gave up
// is treated as an orphan.
func (t *tracker) disarm(ch chan *download) {
	t.mu.Lock()
	for i, w := range t.waiters {
		if w == ch {
			t.waiters = append(t.waiters[:i], t.waiters[i+1:]...)
			break
		}
	}
	t.mu.Unlock()

	select {
	case d := <-ch:
		t.orphan(d)
	default:
	}
}

func (t *tracker) begin(e *proto.BrowserDownloadWillBegin) {
	d := &download{
		guid:      e.GUID,
		suggested: e.SuggestedFilename,
		url:       e.URL,
		staged:    filepath.Join(t.staging, e.GUID),
		done:      make(chan struct{}),
	}

	t.mu.Lock()
	t.byGUID[e.GUID] = d
	if len(t.waiters) == 0 {
		t.mu.Unlock()
		t.orphan(d)
		return
	}
	// Send before unlocking so a concurrent disarm always finds either the
	// waiter or the buffered download. The channel has room for one.
	t.waiters[0] <- d
	t.waiters = t.waiters[1:]
	t.mu.Unlock()
}

func (t *tracker) progress(e *proto.BrowserDownloadProgress) {
	if e.State != proto.BrowserDownloadProgressStateCompleted &&
		e.State != proto.BrowserDownloadProgressStateCanceled {
		return
	}

	t.mu.Lock()
	d, ok := t.byGUID[e.GUID]
	if ok {
		delete(t.byGUID, e.GUID)
	}
	t.mu.Unlock()

	if ok {
		d.finish(e.State)
	}
}

func (t *tracker) orphan(d *download) {
	if t.onOrphan != nil {
		t.onOrphan(d.suggested, d.url)
	}
}

type download struct {
	guid      string
	suggested string
	url       string
	staged    string

	once  sync.Once
	done  chan struct{}
	state proto.BrowserDownloadProgressState
}

func (d *download) finish(state proto.BrowserDownloadProgressState) {
	d.once.Do(func() {
		d.state = state
		close(d.done)
	})
}

func (d *download) SuggestedFilename() string {
	return d.suggested
}

// SaveAs waits for the download to complete, then moves it out of staging.
func (d *download) SaveAs(ctx context.Context, path string) error {
	select {
	case <-d.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if d.state != proto.BrowserDownloadProgressStateCompleted {
		return fmt.Errorf("download %s was %s", d.suggested, d.state)
	}
	return moveFile(d.staged, path)
}

// Path returns the staging location. It stops existing after SaveAs.
func (d *download) Path(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return d.staged, nil
}

// moveFile renames src to dst, copying when they sit on different devices.
func moveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
