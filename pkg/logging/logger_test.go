package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// setupTestDir points the log directory at a temp dir and resets global state
func setupTestDir(t *testing.T) {
	t.Helper()

	tempDir := t.TempDir()

	origLogDir := logDir
	origInitErr := initErr
	origSessionID := sessionID

	logDir = tempDir
	initErr = nil
	initOnce = sync.Once{}
	initOnce.Do(func() {}) // keep the temp dir
	sessionID = ""
	sessionIDOnce = sync.Once{}

	t.Cleanup(func() {
		logDir = origLogDir
		initErr = origInitErr
		initOnce = sync.Once{}
		sessionID = origSessionID
		sessionIDOnce = sync.Once{}
		if origSessionID != "" {
			sessionIDOnce.Do(func() {})
		}
	})
}

func TestNewLogger(t *testing.T) {
	setupTestDir(t)

	logger, err := NewLogger("test-component")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	if logger.component != "test-component" {
		t.Errorf("Expected component 'test-component', got %q", logger.component)
	}
	if logger.SessionID() == "" {
		t.Error("Expected non-empty session ID")
	}
	if _, err := os.Stat(logger.LogPath()); os.IsNotExist(err) {
		t.Errorf("Log file does not exist at %s", logger.LogPath())
	}
}

func TestLoggerFormatting(t *testing.T) {
	setupTestDir(t)

	logger, err := NewLogger("test")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()
	logger.SetLevel(LevelDebug)

	logger.Debugf("Debug message")
	logger.Infof("Info message %d", 123)
	logger.Warnf("Warning message")
	logger.Errorf("Error message")

	content, err := os.ReadFile(logger.LogPath())
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	logContent := string(content)

	expectedPatterns := []string{
		"[test] [DEBUG] Debug message",
		"[test] [INFO] Info message 123",
		"[test] [WARN] Warning message",
		"[test] [ERROR] Error message",
	}
	for _, pattern := range expectedPatterns {
		if !strings.Contains(logContent, pattern) {
			t.Errorf("Log content missing expected pattern: %q\nContent:\n%s", pattern, logContent)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger("filter", &buf)
	logger.SetLevel(LevelWarn)

	logger.Debugf("hidden debug")
	logger.Infof("hidden info")
	logger.Warnf("shown warn")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("Expected debug and info to be filtered, got:\n%s", out)
	}
	if !strings.Contains(out, "[WARN] shown warn") {
		t.Errorf("Expected warn entry, got:\n%s", out)
	}
	if logger.Enabled(LevelInfo) {
		t.Error("Expected info to be disabled at warn level")
	}
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger("actions", &buf)
	child := logger.With("action", "upload_file", "index", 3).With("path", "/tmp/my file.txt", "dangling")

	child.Infof("uploaded")
	logger.Infof("parent")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d:\n%s", len(lines), buf.String())
	}
	if !strings.HasSuffix(lines[0], `uploaded action=upload_file index=3 path="/tmp/my file.txt" dangling=<missing>`) {
		t.Errorf("Unexpected child entry: %s", lines[0])
	}
	if !strings.HasSuffix(lines[1], "[actions] [INFO] parent") {
		t.Errorf("Parent entry should carry no fields: %s", lines[1])
	}

	// Children share the level with their parent.
	logger.SetLevel(LevelError)
	if child.Enabled(LevelWarn) {
		t.Error("Expected child to follow the parent's level")
	}
}

func TestParseVerbosity(t *testing.T) {
	cases := map[string]Level{
		"quiet":   LevelWarn,
		"":        LevelInfo,
		"normal":  LevelInfo,
		"verbose": LevelDebug,
		"DEBUG":   LevelDebug,
	}
	for in, want := range cases {
		got, err := ParseVerbosity(in)
		if err != nil {
			t.Errorf("ParseVerbosity(%q) returned error: %v", in, err)
		}
		if got != want {
			t.Errorf("ParseVerbosity(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseVerbosity("loud"); err == nil {
		t.Error("Expected error for unknown verbosity")
	}
}

func TestMultipleComponents(t *testing.T) {
	setupTestDir(t)

	logger1, err := NewLogger("component1")
	if err != nil {
		t.Fatalf("Failed to create logger1: %v", err)
	}
	defer logger1.Close()

	logger2, err := NewLogger("component2")
	if err != nil {
		t.Fatalf("Failed to create logger2: %v", err)
	}
	defer logger2.Close()

	// They should share the same session ID and log file
	if logger1.SessionID() != logger2.SessionID() {
		t.Errorf("Expected same session ID, got %q and %q", logger1.SessionID(), logger2.SessionID())
	}
	if logger1.LogPath() != logger2.LogPath() {
		t.Errorf("Expected same log path, got %q and %q", logger1.LogPath(), logger2.LogPath())
	}

	logger1.Infof("Message from component1")
	logger2.Infof("Message from component2")

	content, err := os.ReadFile(logger1.LogPath())
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	logContent := string(content)
	if !strings.Contains(logContent, "[component1]") {
		t.Error("Log missing component1 entries")
	}
	if !strings.Contains(logContent, "[component2]") {
		t.Error("Log missing component2 entries")
	}
}

func TestSessionIDIsStable(t *testing.T) {
	setupTestDir(t)

	id1 := getSessionID()
	id2 := getSessionID()
	if id1 != id2 {
		t.Errorf("Expected consistent session ID, got %q and %q", id1, id2)
	}
	if id1 == "" {
		t.Error("Expected non-empty session ID")
	}
}

func TestGetLogDirectory(t *testing.T) {
	setupTestDir(t)

	dir, err := GetLogDirectory()
	if err != nil {
		t.Fatalf("Failed to get log directory: %v", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("Log directory does not exist or is not a directory: %s", dir)
	}
}

func TestLoggerClose(t *testing.T) {
	setupTestDir(t)

	logger, err := NewLogger("test")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("First close failed: %v", err)
	}
	if err := logger.With("k", "v").Close(); err != nil {
		t.Errorf("Second close failed: %v", err)
	}
}

func TestLogPathFormat(t *testing.T) {
	setupTestDir(t)

	logger, err := NewLogger("test")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	// <session-id>-browsersteps.log
	fileName := filepath.Base(logger.LogPath())
	if !strings.HasSuffix(fileName, "-browsersteps.log") {
		t.Errorf("Expected log file to end with '-browsersteps.log', got %q", fileName)
	}
	sessionPart := strings.TrimSuffix(fileName, "-browsersteps.log")
	if !strings.Contains(sessionPart, "-") {
		t.Errorf("Expected session ID part to contain dashes (UUID format), got %q", sessionPart)
	}
}
