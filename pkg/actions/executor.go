// Package actions executes the fixed set of browser actions an agent loop
// may request, and reports every outcome as a Result.
//
// Execute never panics and never returns an error: resolver failures,
// browser faults, filesystem faults and panics are all classified into one
// of the Kind values and folded into the Result envelope.
package actions

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/gobwas/glob"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/entrhq/browsersteps/pkg/browser"
	"github.com/entrhq/browsersteps/pkg/logging"
	"github.com/entrhq/browsersteps/pkg/observability"
	"github.com/entrhq/browsersteps/pkg/security/allowlist"
)

// Timeouts bound the individual browser operations of an action.
type Timeouts struct {
	// Click bounds dispatching a click.
	Click time.Duration

	// Download bounds the wait for a download to start after a click.
	Download time.Duration

	// TextContent bounds the best-effort read of the clicked element's text.
	TextContent time.Duration
}

// DefaultTimeouts returns the standard deadlines.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Click:       10 * time.Second,
		Download:    30 * time.Second,
		TextContent: time.Second,
	}
}

// Options configures an Executor.
type Options struct {
	// AllowList holds the files UploadFile may attach. Nil allows none.
	AllowList *allowlist.List

	// Timeouts; zero fields take their defaults.
	Timeouts Timeouts

	// IgnorePatterns are glob patterns over file names that LatestDownload
	// skips, typically partial-download suffixes such as "*.crdownload".
	IgnorePatterns []string

	// Snapshot narrows the snapshot captured for index resolution.
	Snapshot browser.SnapshotOptions

	Logger *logging.Logger
}

// Executor runs actions against a browser session.
type Executor struct {
	allow    *allowlist.List
	timeouts Timeouts
	ignore   []glob.Glob
	snapshot browser.SnapshotOptions
	logger   *logging.Logger
}

// New creates an Executor.
func New(opts Options) (*Executor, error) {
	defaults := DefaultTimeouts()
	if opts.Timeouts.Click <= 0 {
		opts.Timeouts.Click = defaults.Click
	}
	if opts.Timeouts.Download <= 0 {
		opts.Timeouts.Download = defaults.Download
	}
	if opts.Timeouts.TextContent <= 0 {
		opts.Timeouts.TextContent = defaults.TextContent
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}

	e := &Executor{
		allow:    opts.AllowList,
		timeouts: opts.Timeouts,
		snapshot: opts.Snapshot,
		logger:   opts.Logger,
	}
	for _, p := range opts.IgnorePatterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid ignore pattern %q: %w", p, err)
		}
		e.ignore = append(e.ignore, g)
	}
	return e, nil
}

// Timeouts returns the effective deadlines.
func (e *Executor) Timeouts() Timeouts {
	return e.timeouts
}

// Execute runs one action to completion.
func (e *Executor) Execute(ctx context.Context, session browser.Session, action Action) (res Result) {
	if action == nil {
		return Failure(errorf(KindValidation, nil, "no action given"))
	}

	name := action.Name()
	id := uuid.NewString()
	ctx, span := observability.StartSpan(ctx, "browsersteps."+name, trace.WithAttributes(
		observability.AttrActionID.String(id),
		observability.AttrActionName.String(name),
	))
	log := e.logger.With("action", name, "action_id", id)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("panic: %v\n%s", r, debug.Stack())
			res = Failure(errorf(KindUnknown, nil, "panic during %s: %v", name, r))
		}

		outcome := "ok"
		if res.Failed() {
			outcome = string(res.Kind)
			observability.RecordError(ctx, errors.New(res.Error))
			span.SetStatus(codes.Error, res.Error)
			log.Warnf("failed in %s: %s", time.Since(start).Round(time.Millisecond), res.Error)
		} else {
			log.Infof("succeeded in %s: %s", time.Since(start).Round(time.Millisecond), res.ExtractedContent)
		}
		span.SetAttributes(observability.AttrOutcome.String(outcome))
		span.End()
		observability.RecordAction(name, outcome, time.Since(start))
	}()

	if session == nil {
		return Failure(errorf(KindConfiguration, nil, "no browser session available"))
	}

	switch a := action.(type) {
	case UploadFile:
		return e.upload(ctx, session, a, log)
	case ClickAndDownload:
		return e.clickAndDownload(ctx, session, a, log)
	case LatestDownload:
		return e.latest(ctx, session, log)
	case ForceClick:
		return e.forceClick(ctx, session, a, log)
	default:
		return Failure(errorf(KindValidation, nil, "unsupported action %T", action))
	}
}

// Action states, emitted as span events and debug log lines.
const (
	stateValidating       = "validating"
	stateResolvingElement = "resolving_element"
	stateAttaching        = "attaching"
	stateAwaitingDownload = "awaiting_download"
	stateSaving           = "saving"
	stateVerifying        = "verifying"
	stateFallbackScan     = "fallback_scan"
	stateScanning         = "scanning"
	stateDispatching      = "dispatching"
	stateDone             = "done"
)

func transition(ctx context.Context, log *logging.Logger, state string, attrs ...attribute.KeyValue) {
	observability.AddEvent(ctx, "transition", append([]attribute.KeyValue{observability.AttrState.String(state)}, attrs...)...)
	log.Debugf("-> %s", state)
}
