// Package browser defines the contracts the action layer needs from a live
// browser session.
//
// The action layer never talks to a browser library directly. It works
// against four small interfaces:
//
//   - Session: the per-task browser session, owner of the current page and its snapshot
//   - Page: the current top-level page, able to arm a download wait and force-click by selector
//   - Handle: a live, locatable reference to one element of the current snapshot
//   - Download: an artifact the browser announced after a click
//
// Two implementations live in subpackages: playwright (the default, built on
// playwright-go) and rod (built on go-rod).
//
// # Snapshots
//
// A Snapshot maps non-negative integer indices to ElementReferences. It is
// produced fresh for every action and becomes stale as soon as the DOM
// changes; references carry diagnostic attributes only and give no identity
// guarantee across navigations.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNoPage is returned when the session has no active page.
	ErrNoPage = errors.New("no active page in browser session")

	// ErrTimeout is returned when a bounded browser operation exceeds its deadline.
	ErrTimeout = errors.New("browser operation timed out")

	// ErrNotFound is returned when a selector matches nothing.
	ErrNotFound = errors.New("no element matches selector")

	// ErrDetached is returned when a snapshot reference no longer maps to a live element.
	ErrDetached = errors.New("element detached from document")
)

// IsTimeout reports whether err is a browser or context deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// Session is the per-task browser session the actions operate on.
type Session interface {
	// CurrentPage returns the active page or ErrNoPage.
	CurrentPage(ctx context.Context) (Page, error)

	// CaptureSnapshot indexes the interactive elements of the current page.
	CaptureSnapshot(ctx context.Context, opts SnapshotOptions) (*Snapshot, error)

	// ResolveHandle turns a snapshot reference into a live handle.
	ResolveHandle(ctx context.Context, ref ElementReference) (Handle, error)

	// DownloadsDir returns the configured target directory, or "" when none is configured.
	DownloadsDir() string
}

// Page is the current top-level page of a session.
type Page interface {
	// URL returns the page URL at call time.
	URL() string

	// ExpectDownload arms a download listener, runs trigger while the
	// listener is armed, and waits up to timeout for the download event.
	// An error returned by trigger is returned unchanged.
	ExpectDownload(ctx context.Context, timeout time.Duration, trigger func() error) (Download, error)

	// ForceClick dispatches a synthetic click to the first element matching
	// selector, bypassing visibility and hit-testing. Returns ErrNotFound
	// when nothing matches.
	ForceClick(ctx context.Context, selector string) error
}

// Handle is a live reference to one snapshot element.
type Handle interface {
	Click(ctx context.Context, timeout time.Duration) error
	TextContent(ctx context.Context, timeout time.Duration) (string, error)
	SetInputFiles(ctx context.Context, path string) error
}

// Download is a browser-announced download.
type Download interface {
	// SuggestedFilename is the name the server proposed for the artifact.
	SuggestedFilename() string

	// SaveAs persists the artifact at path, waiting for it to complete.
	SaveAs(ctx context.Context, path string) error

	// Path returns the browser's staging location for the artifact, if any.
	Path(ctx context.Context) (string, error)
}

// SnapshotOptions narrows which elements a snapshot indexes.
type SnapshotOptions struct {
	// Limit caps the number of indexed elements; 0 means DefaultSnapshotLimit.
	Limit int

	// IncludeHidden also indexes elements with an empty bounding box.
	// File inputs are always indexed since pages commonly hide them.
	IncludeHidden bool
}

// DefaultSnapshotLimit bounds snapshot size when SnapshotOptions.Limit is 0.
const DefaultSnapshotLimit = 500

// IndexAttribute is the DOM attribute a snapshot stamps on every indexed element.
const IndexAttribute = "data-browsersteps-index"

// ElementReference describes one indexed element at snapshot time.
type ElementReference struct {
	Index     int    `json:"index"`
	TagName   string `json:"tag"`
	Role      string `json:"role,omitempty"`
	Label     string `json:"label,omitempty"`
	InputType string `json:"input_type,omitempty"`

	// AcceptsFiles is true for file inputs and for labels bound to one.
	AcceptsFiles bool `json:"accepts_files,omitempty"`
}

// Selector returns the CSS selector addressing this reference's element.
func (r ElementReference) Selector() string {
	return fmt.Sprintf(`[%s="%d"]`, IndexAttribute, r.Index)
}

// Describe renders the diagnostic attributes for error messages.
func (r ElementReference) Describe() string {
	tag := orNA(r.TagName)
	role := orNA(r.Role)
	label := orNA(r.Label)
	return fmt.Sprintf("tag: %s, role: %s, label: %s", tag, role, label)
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

// Snapshot is an immutable index -> element mapping for one page state.
type Snapshot struct {
	URL        string
	CapturedAt time.Time
	elements   map[int]ElementReference
}

// NewSnapshot builds a snapshot from references. Later duplicates of an
// index replace earlier ones.
func NewSnapshot(url string, refs []ElementReference) *Snapshot {
	elements := make(map[int]ElementReference, len(refs))
	for _, ref := range refs {
		if ref.Index < 0 {
			continue
		}
		elements[ref.Index] = ref
	}
	return &Snapshot{
		URL:        url,
		CapturedAt: time.Now(),
		elements:   elements,
	}
}

// Lookup returns the reference stored at index.
func (s *Snapshot) Lookup(index int) (ElementReference, bool) {
	if s == nil {
		return ElementReference{}, false
	}
	ref, ok := s.elements[index]
	return ref, ok
}

// Len returns the number of indexed elements.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.elements)
}

// Indices returns the sorted indices accepted by filter (all when nil).
func (s *Snapshot) Indices(filter func(ElementReference) bool) []int {
	if s == nil {
		return nil
	}
	out := make([]int, 0, len(s.elements))
	for idx, ref := range s.elements {
		if filter != nil && !filter(ref) {
			continue
		}
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// FormatIndices renders indices compactly for error messages.
func FormatIndices(indices []int) string {
	if len(indices) == 0 {
		return "[]"
	}
	parts := make([]string, len(indices))
	for i, idx := range indices {
		parts[i] = strconv.Itoa(idx)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
