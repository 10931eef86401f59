package actions

import (
	"context"
	"fmt"

	"github.com/entrhq/browsersteps/pkg/browser"
	"github.com/entrhq/browsersteps/pkg/logging"
	"github.com/entrhq/browsersteps/pkg/observability"
)

// upload checks the path against the allow-list before touching the
// session, so the browser never sees an unauthorized path.
func (e *Executor) upload(ctx context.Context, session browser.Session, a UploadFile, log *logging.Logger) Result {
	transition(ctx, log, stateValidating, observability.AttrPath.String(a.Path))
	canonical, err := e.allow.Check(a.Path)
	if err != nil {
		return Failure(errorf(KindValidation, err, "%v", err))
	}

	transition(ctx, log, stateResolvingElement, observability.AttrIndex.Int(a.Index))
	target, err := e.resolve(ctx, session, a.Index, uploadElements)
	if err != nil {
		return Failure(err)
	}

	transition(ctx, log, stateAttaching)
	if err := target.handle.SetInputFiles(ctx, canonical); err != nil {
		return Failure(errorf(KindIO, err, "failed to upload file %q at index %d: %v", a.Path, a.Index, err))
	}

	transition(ctx, log, stateDone)
	return Success(fmt.Sprintf("Successfully uploaded file %q to element at index %d.", a.Path, a.Index), nil)
}
