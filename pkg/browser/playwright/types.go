package playwright

import "time"

// SessionOptions configures a new browser session.
type SessionOptions struct {
	// Headless controls whether the browser runs without a visible window
	Headless bool

	// Viewport sets the initial viewport size
	Viewport *Viewport

	// Timeout sets the default timeout for page operations
	Timeout time.Duration

	// DownloadsDir is the target directory downloads are saved into
	DownloadsDir string

	// UserDataDir launches a persistent context rooted here when set
	UserDataDir string

	// StartURL is loaded into the first page, if set
	StartURL string

	// AllowedDomains restricts which hosts pages may load (glob patterns)
	AllowedDomains []string

	// OnOrphanDownload is called for downloads nobody was waiting for
	OnOrphanDownload func(suggestedFilename, url string)
}

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int
	Height int
}

// Default values for sessions.
const (
	DefaultTimeout        = 30 * time.Second
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
	DefaultMaxSessions    = 5
)

func millis(d time.Duration) *float64 {
	ms := float64(d) / float64(time.Millisecond)
	return &ms
}
