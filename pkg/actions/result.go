package actions

import (
	"encoding/json"
	"errors"
	"os"
	"time"
)

// Result is the envelope every action returns. Exactly one of Error or a
// non-error outcome is meaningful; Payload is set only on download success
// paths.
type Result struct {
	ExtractedContent string          `json:"extractedContent,omitempty"`
	Error            string          `json:"error,omitempty"`
	Payload          *DownloadRecord `json:"payload,omitempty"`
	IncludeInMemory  bool            `json:"includeInMemory,omitempty"`

	// Kind is the failure classification; empty on success.
	Kind Kind `json:"-"`
}

// Success builds a successful result the caller should keep in memory.
func Success(content string, payload *DownloadRecord) Result {
	return Result{
		ExtractedContent: content,
		Payload:          payload,
		IncludeInMemory:  true,
	}
}

// Failure converts err into a failed result. Unclassified errors become
// UnknownError with the original message preserved.
func Failure(err error) Result {
	if err == nil {
		err = errors.New("unspecified failure")
	}
	var k kinded
	if !errors.As(err, &k) {
		k = &Error{Kind: KindUnknown, Message: err.Error(), Err: err}
	}
	return Result{
		Error: k.Error(),
		Kind:  k.ErrorKind(),
	}
}

// Failed reports whether the action failed.
func (r Result) Failed() bool {
	return r.Error != ""
}

// JSON renders the envelope in its boundary form.
func (r Result) JSON() string {
	data, err := json.Marshal(r)
	if err != nil {
		// Only string, bool and record fields: cannot fail.
		return `{"error":"UnknownError: failed to encode result"}`
	}
	return string(data)
}

// DownloadStatus tells how a download record was established.
type DownloadStatus string

const (
	// StatusConfirmed marks a file found by scanning the target directory.
	StatusConfirmed DownloadStatus = "confirmed_in_target_dir"

	// StatusSaved marks a file this layer saved and verified. Its size is never zero.
	StatusSaved DownloadStatus = "download_successful_and_saved"
)

// DownloadRecord describes one file in the target directory.
type DownloadRecord struct {
	Filename        string         `json:"actual_downloaded_filename"`
	Path            string         `json:"download_path"`
	SizeBytes       int64          `json:"size_bytes"`
	ModifiedTimeUTC string         `json:"modified_time_utc"`
	Status          DownloadStatus `json:"status"`
}

// isoLayout matches the offset style of ISO-8601 timestamps ("+00:00").
const isoLayout = "2006-01-02T15:04:05.999999-07:00"

// newRecord builds a record from the final path and its stat result.
func newRecord(path string, info os.FileInfo, status DownloadStatus) *DownloadRecord {
	return &DownloadRecord{
		Filename:        info.Name(),
		Path:            path,
		SizeBytes:       info.Size(),
		ModifiedTimeUTC: info.ModTime().UTC().Format(isoLayout),
		Status:          status,
	}
}

// ModifiedTime parses ModifiedTimeUTC.
func (r *DownloadRecord) ModifiedTime() (time.Time, error) {
	return time.Parse(isoLayout, r.ModifiedTimeUTC)
}
