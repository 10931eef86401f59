package actions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/entrhq/browsersteps/pkg/browser"
	"github.com/entrhq/browsersteps/pkg/logging"
	"github.com/entrhq/browsersteps/pkg/observability"
)

// forceClick addresses the element by selector, never by snapshot index,
// so it still works when index resolution is what failed.
func (e *Executor) forceClick(ctx context.Context, session browser.Session, a ForceClick, log *logging.Logger) Result {
	selector := strings.TrimSpace(a.Selector)
	if selector == "" {
		return Failure(errorf(KindValidation, nil, "selector cannot be empty"))
	}

	page, err := session.CurrentPage(ctx)
	if err != nil {
		return Failure(errorf(KindNotFound, err, "no active page found in browser session: %v", err))
	}

	transition(ctx, log, stateDispatching, observability.AttrSelector.String(selector))
	clickCtx, cancel := context.WithTimeout(ctx, e.timeouts.Click)
	defer cancel()

	if err := page.ForceClick(clickCtx, selector); err != nil {
		if errors.Is(err, browser.ErrNotFound) {
			return Failure(errorf(KindNotFound, err, "no element matches selector %q", selector))
		}
		return Failure(errorf(KindIO, err, "failed to dispatch click to %q: %v", selector, err))
	}

	transition(ctx, log, stateDone)
	return Success(fmt.Sprintf("Force-clicked element matching selector %q.", selector), nil)
}
