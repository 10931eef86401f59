// Package main serves the browser actions on stdio.
//
// A browser session is launched once at startup (playwright or rod) and
// every tool call runs one action against it. The default transport is
// MCP. With -transport xml, stdin carries raw model output containing
// <tool> calls and stdout receives one result envelope per call. Stdout is
// the protocol stream either way, so diagnostics go to the log file under
// ~/.browsersteps/logs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/entrhq/browsersteps/pkg/actions"
	"github.com/entrhq/browsersteps/pkg/browser"
	"github.com/entrhq/browsersteps/pkg/browser/playwright"
	"github.com/entrhq/browsersteps/pkg/browser/rod"
	"github.com/entrhq/browsersteps/pkg/config"
	"github.com/entrhq/browsersteps/pkg/logging"
	"github.com/entrhq/browsersteps/pkg/mcpserver"
	"github.com/entrhq/browsersteps/pkg/observability"
	browsertools "github.com/entrhq/browsersteps/pkg/tools/browser"
)

const version = "0.1.0"

// Transports the actions can be served on.
const (
	transportMCP = "mcp"
	transportXML = "xml"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigFile     string
	DownloadsDir   string
	UploadFiles    []string
	AllowedDomains string
	Backend        string
	Headless       bool
	StartURL       string
	Verbosity      string
	MetricsAddr    string
	Transport      string
	ShowVersion    bool
	PrintConfig    bool

	// set tracks which flags were given explicitly
	set map[string]bool
}

func main() {
	cli := parseFlags()

	if cli.ShowVersion {
		fmt.Printf("browsersteps v%s\n", version)
		return
	}
	if cli.PrintConfig {
		fmt.Print(config.Example())
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "Shutting down...")
		cancel()
	}()

	if err := run(ctx, cli); err != nil {
		cancel()
		fmt.Fprintf(os.Stderr, "browsersteps: %v\n", err)
		os.Exit(1)
	}
	cancel()
}

// parseFlags parses command line flags
func parseFlags() *CLIConfig {
	cli := &CLIConfig{set: make(map[string]bool)}

	flag.StringVar(&cli.ConfigFile, "config", "", "Path to configuration file (YAML)")
	flag.StringVar(&cli.DownloadsDir, "downloads-dir", "", "Target download directory")
	flag.Func("upload-file", "File the upload action may attach (repeatable)", func(s string) error {
		cli.UploadFiles = append(cli.UploadFiles, s)
		return nil
	})
	flag.StringVar(&cli.AllowedDomains, "allowed-domains", "", "Comma-separated host patterns the browser may load")
	flag.StringVar(&cli.Backend, "backend", "", "Browser backend: playwright or rod")
	flag.BoolVar(&cli.Headless, "headless", true, "Run the browser without a window")
	flag.StringVar(&cli.StartURL, "start-url", "", "URL to open in the first page")
	flag.StringVar(&cli.Verbosity, "verbosity", "", "Log verbosity: quiet, normal, verbose or debug")
	flag.StringVar(&cli.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9464)")
	flag.StringVar(&cli.Transport, "transport", transportMCP, "Tool call transport on stdio: mcp or xml")
	flag.BoolVar(&cli.ShowVersion, "version", false, "Show version and exit")
	flag.BoolVar(&cli.PrintConfig, "print-config", false, "Print the default configuration and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "browsersteps - browser actions for agent loops, served over MCP\n\n")
		fmt.Fprintf(os.Stderr, "Usage: browsersteps [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  browsersteps -downloads-dir ./out -upload-file /data/report.csv\n")
		fmt.Fprintf(os.Stderr, "  browsersteps -config browsersteps.yaml -backend rod\n")
		fmt.Fprintf(os.Stderr, "  model-runner | browsersteps -transport xml -downloads-dir ./out\n\n")
	}

	flag.Parse()
	flag.Visit(func(f *flag.Flag) { cli.set[f.Name] = true })
	return cli
}

// loadConfig loads the configuration file and applies flag overrides
func loadConfig(cli *CLIConfig) (*config.Config, error) {
	cfg, err := config.Load(cli.ConfigFile)
	if err != nil {
		return nil, err
	}

	if cli.set["downloads-dir"] {
		cfg.DownloadsDir = cli.DownloadsDir
	}
	if len(cli.UploadFiles) > 0 {
		cfg.UploadFilePaths = cli.UploadFiles
	}
	if cli.set["allowed-domains"] {
		cfg.Browser.AllowedDomains = splitList(cli.AllowedDomains)
	}
	if cli.set["backend"] {
		cfg.Browser.Backend = config.Backend(cli.Backend)
	}
	if cli.set["headless"] {
		cfg.Browser.Headless = cli.Headless
	}
	if cli.set["start-url"] {
		cfg.Browser.StartURL = cli.StartURL
	}
	if cli.set["verbosity"] {
		cfg.Logging.Verbosity = cli.Verbosity
	}
	if cli.set["metrics-addr"] {
		cfg.Metrics.Addr = cli.MetricsAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

//nolint:gocyclo
func run(ctx context.Context, cli *CLIConfig) error {
	if cli.Transport != transportMCP && cli.Transport != transportXML {
		return fmt.Errorf("unknown transport %q (want %s or %s)", cli.Transport, transportMCP, transportXML)
	}
	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}

	// On failure the logger falls back to stderr, which keeps stdout clean.
	logger, err := logging.NewLogger("browsersteps")
	if err != nil {
		logger.Warnf("file logging unavailable: %v", err)
	} else {
		fmt.Fprintf(os.Stderr, "browsersteps: logging to %s\n", logger.LogPath())
	}
	defer logger.Close()

	level, _ := logging.ParseVerbosity(cfg.Logging.Verbosity)
	logger.SetLevel(level)
	logger.Infof("browsersteps v%s starting (backend=%s)", version, cfg.Browser.Backend)

	traceOut := openTraceFile(logger)
	defer traceOut.Close()
	tp, err := observability.NewTracerProvider("browsersteps", version, traceOut)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}()

	downloadsDir, err := cfg.ResolvedDownloadsDir()
	if err != nil {
		return fmt.Errorf("invalid downloads_dir: %w", err)
	}
	allow, err := cfg.AllowList()
	if err != nil {
		return err
	}
	logger.Infof("downloads dir: %q, %d upload file(s) allowed", downloadsDir, allow.Len())

	session, closeSession, err := startSession(ctx, cfg, downloadsDir, logger)
	if err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer closeSession()

	executor, err := actions.New(actions.Options{
		AllowList: allow,
		Timeouts: actions.Timeouts{
			Click:       cfg.Timeouts.Click,
			Download:    cfg.Timeouts.Download,
			TextContent: cfg.Timeouts.TextContent,
		},
		IgnorePatterns: cfg.IgnorePatterns,
		Logger:         logger.With("component", "actions"),
	})
	if err != nil {
		return err
	}

	if cfg.Metrics.Addr != "" {
		stop := serveMetrics(cfg.Metrics.Addr, logger)
		defer stop()
	}

	if cli.Transport == transportXML {
		err = serveXML(ctx, browsertools.NewToolRegistry(executor, session), os.Stdin, os.Stdout, logger)
	} else {
		srv := mcpserver.NewServer(version, executor, session)
		logger.Infof("serving MCP on stdio")
		if err = srv.Run(ctx, &mcp.StdioTransport{}); err != nil {
			err = fmt.Errorf("mcp server: %w", err)
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Infof("shutting down")
	return nil
}

// serveXML runs tool calls read from in until in closes or ctx is done.
// Reading stdin cannot be interrupted, so a cancel returns without waiting
// for the reader.
func serveXML(ctx context.Context, registry *browsertools.ToolRegistry, in io.Reader, out io.Writer, logger *logging.Logger) error {
	logger.Infof("serving XML tool calls on stdio")
	done := make(chan error, 1)
	go func() {
		done <- registry.Serve(ctx, in, out)
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("xml transport: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

const sessionName = "main"

// startSession launches the configured backend and returns the session
// with its cleanup function.
func startSession(ctx context.Context, cfg *config.Config, downloadsDir string, logger *logging.Logger) (browser.Session, func(), error) {
	onOrphan := func(name, url string) {
		observability.RecordOrphanedDownload()
	}

	switch cfg.Browser.Backend {
	case config.BackendRod:
		s, err := rod.Launch(ctx, rod.Options{
			ControlURL:       cfg.Browser.ControlURL,
			Headless:         cfg.Browser.Headless,
			UserDataDir:      cfg.Browser.UserDataDir,
			Stealth:          cfg.Browser.Stealth,
			StartURL:         cfg.Browser.StartURL,
			AllowedDomains:   cfg.Browser.AllowedDomains,
			DownloadsDir:     downloadsDir,
			OnOrphanDownload: onOrphan,
			Logger:           logger.With("component", "rod"),
		})
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				logger.Warnf("closing rod session: %v", err)
			}
		}, nil

	default:
		manager := playwright.NewManager(logger.With("component", "playwright"))
		if err := manager.Initialize(); err != nil {
			return nil, nil, err
		}
		opts := playwright.SessionOptions{
			Headless:         cfg.Browser.Headless,
			DownloadsDir:     downloadsDir,
			UserDataDir:      cfg.Browser.UserDataDir,
			StartURL:         cfg.Browser.StartURL,
			AllowedDomains:   cfg.Browser.AllowedDomains,
			OnOrphanDownload: onOrphan,
		}
		if cfg.Browser.Viewport.Width > 0 && cfg.Browser.Viewport.Height > 0 {
			opts.Viewport = &playwright.Viewport{Width: cfg.Browser.Viewport.Width, Height: cfg.Browser.Viewport.Height}
		}
		s, err := manager.StartSession(sessionName, opts)
		if err != nil {
			_ = manager.Shutdown()
			return nil, nil, err
		}
		return s, func() {
			if err := manager.CloseSession(sessionName); err != nil {
				logger.Warnf("closing playwright session: %v", err)
			}
			if err := manager.Shutdown(); err != nil {
				logger.Warnf("shutting down playwright: %v", err)
			}
		}, nil
	}
}

// openTraceFile opens the span export file next to the log file.
func openTraceFile(logger *logging.Logger) io.WriteCloser {
	dir, err := logging.GetLogDirectory()
	if err != nil {
		logger.Warnf("tracing disabled: %v", err)
		return nopCloser{io.Discard}
	}
	path := filepath.Join(dir, logger.SessionID()+"-traces.json")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger.Warnf("tracing disabled: %v", err)
		return nopCloser{io.Discard}
	}
	logger.Infof("writing traces to %s", path)
	return f
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// serveMetrics starts the Prometheus endpoint and returns its shutdown function.
func serveMetrics(addr string, logger *logging.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Infof("serving metrics on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("metrics server: %v", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
