package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Level is a log severity. Messages below a logger's level are dropped.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (lv Level) String() string {
	switch lv {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(lv))
	}
}

// ParseVerbosity maps a configured verbosity (quiet, normal, verbose, debug)
// to the minimum level written.
func ParseVerbosity(verbosity string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(verbosity)) {
	case "quiet":
		return LevelWarn, nil
	case "", "normal":
		return LevelInfo, nil
	case "verbose", "debug":
		return LevelDebug, nil
	default:
		return LevelInfo, fmt.Errorf("invalid verbosity %q (must be quiet, normal, verbose, or debug)", verbosity)
	}
}

// Logger provides leveled logging for browsersteps components.
// File loggers write to a session-specific file in ~/.browsersteps/logs/.
//
// Child loggers created with With share the parent's output and level.
type Logger struct {
	sessionID string
	component string
	out       *output
	fields    string
}

// output is the shared sink behind a logger and all of its children.
type output struct {
	mu        sync.Mutex
	logger    *log.Logger
	file      *os.File
	logPath   string
	level     Level
	closeOnce sync.Once
}

var (
	// Global session ID for the current execution
	sessionID     string
	sessionIDOnce sync.Once

	// logDir is the directory where log files are stored
	logDir string

	// initOnce ensures directory initialization happens once
	initOnce sync.Once

	// initErr stores any error from directory initialization
	initErr error
)

// getSessionID returns or creates the session ID for this execution
func getSessionID() string {
	sessionIDOnce.Do(func() {
		sessionID = uuid.New().String()
	})
	return sessionID
}

// initLogDirectory ensures the log directory exists
func initLogDirectory() error {
	initOnce.Do(func() {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			initErr = fmt.Errorf("failed to get home directory: %w", err)
			return
		}

		logDir = filepath.Join(homeDir, ".browsersteps", "logs")
		if err := os.MkdirAll(logDir, 0750); err != nil {
			initErr = fmt.Errorf("failed to create log directory: %w", err)
			return
		}
	})
	return initErr
}

// NewLogger creates a new logger for a specific component.
// The logger writes to ~/.browsersteps/logs/<session-id>-browsersteps.log
//
// If the log directory cannot be created or the log file cannot be opened,
// it returns a fallback logger that writes to stderr along with the error.
// Callers can check the error to detect fallback mode and log warnings.
func NewLogger(component string) (*Logger, error) {
	if err := initLogDirectory(); err != nil {
		return newFallbackLogger(component, err), err
	}

	sessID := getSessionID()
	logPath := filepath.Join(logDir, fmt.Sprintf("%s-browsersteps.log", sessID))

	// Append mode: several components may write to the same file
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		err = fmt.Errorf("failed to open log file: %w", err)
		return newFallbackLogger(component, err), err
	}

	return &Logger{
		sessionID: sessID,
		component: component,
		out: &output{
			logger:  log.New(file, "", 0),
			file:    file,
			logPath: logPath,
			level:   LevelInfo,
		},
	}, nil
}

// NewWriterLogger creates a logger writing to w. It never owns w.
func NewWriterLogger(component string, w io.Writer) *Logger {
	return &Logger{
		sessionID: getSessionID(),
		component: component,
		out: &output{
			logger: log.New(w, "", 0),
			level:  LevelInfo,
		},
	}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return NewWriterLogger("nop", io.Discard)
}

// newFallbackLogger creates a logger that writes to stderr when file logging fails
func newFallbackLogger(component string, err error) *Logger {
	l := NewWriterLogger(component, os.Stderr)
	l.Warnf("failed to initialize file logging: %v", err)
	l.Warnf("falling back to stderr logging")
	return l
}

// With returns a child logger that appends key=value pairs to every entry.
// A trailing key without a value is rendered as key=<missing>.
func (l *Logger) With(kv ...interface{}) *Logger {
	var b strings.Builder
	b.WriteString(l.fields)
	for i := 0; i < len(kv); i += 2 {
		var v interface{} = "<missing>"
		if i+1 < len(kv) {
			v = kv[i+1]
		}
		fmt.Fprintf(&b, " %v=%s", kv[i], formatValue(v))
	}
	return &Logger{
		sessionID: l.sessionID,
		component: l.component,
		out:       l.out,
		fields:    b.String(),
	}
}

func formatValue(v interface{}) string {
	s := fmt.Sprint(v)
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return fmt.Sprintf("%q", s)
	}
	return s
}

// SetLevel sets the minimum level for this logger and every logger sharing its output.
func (l *Logger) SetLevel(level Level) {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	l.out.level = level
}

// Enabled reports whether messages at level are written.
func (l *Logger) Enabled(level Level) bool {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	return level >= l.out.level
}

func (l *Logger) logf(level Level, format string, v ...interface{}) {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()

	if level < l.out.level {
		return
	}
	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	message := fmt.Sprintf(format, v...)
	l.out.logger.Printf("[%s] [%s] [%s] %s%s", timestamp, l.component, level, message, l.fields)
}

// Debugf logs a debug-level message
func (l *Logger) Debugf(format string, v ...interface{}) {
	l.logf(LevelDebug, format, v...)
}

// Infof logs an info-level message
func (l *Logger) Infof(format string, v ...interface{}) {
	l.logf(LevelInfo, format, v...)
}

// Warnf logs a warning-level message
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.logf(LevelWarn, format, v...)
}

// Errorf logs an error-level message
func (l *Logger) Errorf(format string, v ...interface{}) {
	l.logf(LevelError, format, v...)
}

// SessionID returns the current session ID
func (l *Logger) SessionID() string {
	return l.sessionID
}

// LogPath returns the path to the log file, or "" for writer loggers.
func (l *Logger) LogPath() string {
	return l.out.logPath
}

// Close closes the log file. Safe to call multiple times, from any child.
func (l *Logger) Close() error {
	var err error
	l.out.closeOnce.Do(func() {
		if l.out.file != nil {
			err = l.out.file.Close()
		}
	})
	return err
}

// GetLogDirectory returns the directory where logs are stored
func GetLogDirectory() (string, error) {
	if err := initLogDirectory(); err != nil {
		return "", err
	}
	return logDir, nil
}
