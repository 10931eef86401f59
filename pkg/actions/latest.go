package actions

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/entrhq/browsersteps/pkg/browser"
	"github.com/entrhq/browsersteps/pkg/logging"
)

const noFilesMessage = "No files found in the target download directory."

// latest reports the newest regular file directly under the target
// directory. Ties keep the first file in name order.
func (e *Executor) latest(ctx context.Context, session browser.Session, log *logging.Logger) Result {
	dir := session.DownloadsDir()
	if dir == "" {
		return Failure(errorf(KindConfiguration, nil, "browser download directory not configured in session"))
	}

	transition(ctx, log, stateScanning)
	path, info, err := e.newestFile(dir, nil)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Failure(errorf(KindConfiguration, err, "target download directory %q does not exist", dir))
		}
		return Failure(errorf(KindIO, err, "failed to list target download directory %q: %v", dir, err))
	}
	if path == "" {
		transition(ctx, log, stateDone)
		return Success(noFilesMessage, nil)
	}

	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		resolved = path
	}
	if abs, err := filepath.Abs(resolved); err == nil {
		resolved = abs
	}

	transition(ctx, log, stateDone)
	return Success(
		fmt.Sprintf("Confirmed latest file in target download directory: %s", info.Name()),
		newRecord(resolved, info, StatusConfirmed),
	)
}

// newestFile scans dir (non-recursively) for regular files accepted by
// match, skipping ignored names and returning the one with the greatest
// modification time. Symlinks count when they point at regular files.
// An empty path with a nil error means no candidate.
func (e *Executor) newestFile(dir string, match func(os.FileInfo) bool) (string, os.FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", nil, err
	}

	var (
		bestPath string
		bestInfo os.FileInfo
	)
	for _, entry := range entries {
		name := entry.Name()
		if e.ignored(name) {
			continue
		}
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if match != nil && !match(info) {
			continue
		}
		if bestInfo == nil || info.ModTime().After(bestInfo.ModTime()) {
			bestPath, bestInfo = path, info
		}
	}
	return bestPath, bestInfo, nil
}

func (e *Executor) ignored(name string) bool {
	for _, g := range e.ignore {
		if g.Match(name) {
			return true
		}
	}
	return false
}
