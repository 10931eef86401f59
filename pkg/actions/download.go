package actions

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/entrhq/browsersteps/pkg/browser"
	"github.com/entrhq/browsersteps/pkg/logging"
	"github.com/entrhq/browsersteps/pkg/observability"
)

// clickError marks a failure of the click itself inside the download trigger.
type clickError struct {
	err error
}

func (c *clickError) Error() string { return c.err.Error() }
func (c *clickError) Unwrap() error { return c.err }

// clickAndDownload clicks an element while a download listener is armed,
// saves the announced download into the target directory and verifies it
// on disk. Nothing is written into the target directory unless a download
// event was observed.
func (e *Executor) clickAndDownload(ctx context.Context, session browser.Session, a ClickAndDownload, log *logging.Logger) Result {
	dir := session.DownloadsDir()
	if dir == "" {
		return Failure(errorf(KindConfiguration, nil, "browser download directory not configured in session"))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Failure(errorf(KindConfiguration, err,
			"target download directory %q does not exist and could not be created: %v", dir, err))
	}

	page, err := session.CurrentPage(ctx)
	if err != nil {
		return Failure(&ResolveError{Reason: SnapshotUnavailable, Index: a.Index, Err: err})
	}

	transition(ctx, log, stateResolvingElement, observability.AttrIndex.Int(a.Index))
	target, err := e.resolve(ctx, session, a.Index, anyElement)
	if err != nil {
		return Failure(err)
	}

	// Files already present before the click are never taken as this
	// download by the verify step.
	before := stampDir(dir)

	transition(ctx, log, stateAwaitingDownload)
	download, err := page.ExpectDownload(ctx, e.timeouts.Download, func() error {
		text, err := target.handle.TextContent(ctx, e.timeouts.TextContent)
		if err != nil {
			text = "N/A"
		}
		log.Debugf("clicking element %d (%s) text=%q", a.Index, target.ref.Describe(), strings.TrimSpace(text))
		if err := target.handle.Click(ctx, e.timeouts.Click); err != nil {
			return &clickError{err: err}
		}
		return nil
	})
	if err != nil {
		return Failure(classifyDownloadWait(err, a.Index, e.timeouts))
	}

	name := safeFilename(download.SuggestedFilename())
	savePath := filepath.Join(dir, name)

	transition(ctx, log, stateSaving, observability.AttrPath.String(savePath))
	if err := download.SaveAs(ctx, savePath); err != nil {
		return Failure(errorf(KindIO, err, "failed to save download %q to %q: %v", name, savePath, err))
	}

	transition(ctx, log, stateVerifying)
	info, ok := nonEmptyFile(savePath)
	if !ok {
		// The browser's own writer may have put the file elsewhere in the
		// directory, usually under a de-duplicated name.
		transition(ctx, log, stateFallbackScan)
		matches := matchesDownloadName(name)
		found, foundInfo, _ := e.newestFile(dir, func(info os.FileInfo) bool {
			return info.Size() > 0 && matches(info.Name()) && before.changed(info)
		})
		observability.RecordFallbackScan(found != "")
		if found == "" {
			removeEmptyArtifact(savePath, before, log)
			temp := "unknown browser temp location"
			if p, err := download.Path(ctx); err == nil && p != "" {
				temp = p
			}
			return Failure(errorf(KindIO, nil,
				"file %q not properly saved to %q; it might be in the browser's temp cache: %q, or the download failed",
				name, savePath, temp))
		}
		log.Infof("download verified under alternative name %s", filepath.Base(found))
		savePath, info = found, foundInfo
	}

	finalPath, err := filepath.Abs(savePath)
	if err != nil {
		finalPath = savePath
	}
	observability.SetAttributes(ctx, observability.AttrSizeBytes.Int64(info.Size()))

	transition(ctx, log, stateDone)
	return Success(
		fmt.Sprintf("Successfully downloaded and saved %q to %q.", info.Name(), filepath.Dir(finalPath)),
		newRecord(finalPath, info, StatusSaved),
	)
}

func classifyDownloadWait(err error, index int, t Timeouts) error {
	var ce *clickError
	if errors.As(err, &ce) {
		if browser.IsTimeout(ce.err) {
			return errorf(KindTimeout, ce.err, "click on element index %d did not complete within %s: %v", index, t.Click, ce.err)
		}
		return errorf(KindIO, ce.err, "click on element index %d failed: %v", index, ce.err)
	}
	if browser.IsTimeout(err) {
		return errorf(KindTimeout, err, "no download started within %s after clicking element index %d", t.Download, index)
	}
	return errorf(KindUnknown, err, "error during click and download for element index %d: %v", index, err)
}

// nonEmptyFile stats path and reports whether it is a regular file with content.
func nonEmptyFile(path string) (os.FileInfo, bool) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() || info.Size() == 0 {
		return nil, false
	}
	return info, true
}

type fileStamp struct {
	size    int64
	modTime time.Time
}

// dirStamps maps entry names to their size and mtime at one point in time.
type dirStamps map[string]fileStamp

func stampDir(dir string) dirStamps {
	stamps := dirStamps{}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return stamps
	}
	for _, entry := range entries {
		info, err := os.Stat(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		stamps[entry.Name()] = fileStamp{size: info.Size(), modTime: info.ModTime()}
	}
	return stamps
}

// changed reports whether info describes a file that is new or was
// rewritten since the stamps were taken.
func (s dirStamps) changed(info os.FileInfo) bool {
	prev, ok := s[info.Name()]
	return !ok || prev.size != info.Size() || !prev.modTime.Equal(info.ModTime())
}

// removeEmptyArtifact deletes the empty file a failed save left at path so
// the latest-download query cannot report it later.
func removeEmptyArtifact(path string, before dirStamps, log *logging.Logger) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() || info.Size() != 0 || !before.changed(info) {
		return
	}
	if err := os.Remove(path); err != nil {
		log.Warnf("could not remove empty download artifact %s: %v", path, err)
	}
}

// safeFilename reduces a server-suggested name to a plain base name so a
// download can never be written outside the target directory.
func safeFilename(suggested string) string {
	name := filepath.Base(strings.ReplaceAll(suggested, "\\", "/"))
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		return "download"
	}
	return name
}

// matchesDownloadName accepts name itself and the browser's de-duplicated
// variants of it, e.g. "report (1).pdf" for "report.pdf".
func matchesDownloadName(name string) func(string) bool {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	return func(candidate string) bool {
		if candidate == name {
			return true
		}
		if !strings.HasPrefix(candidate, stem+" (") || !strings.HasSuffix(candidate, ")"+ext) {
			return false
		}
		n := strings.TrimSuffix(strings.TrimPrefix(candidate, stem+" ("), ")"+ext)
		if n == "" {
			return false
		}
		for _, r := range n {
			if !unicode.IsDigit(r) {
				return false
			}
		}
		return true
	}
}
