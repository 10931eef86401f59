package actions

import (
	"context"
	"errors"

	"github.com/entrhq/browsersteps/pkg/browser"
)

// resolved is an element that is both in the current snapshot and live.
type resolved struct {
	ref    browser.ElementReference
	handle browser.Handle
}

// scope restricts which snapshot elements an index may resolve to.
type scope struct {
	name   string
	accept func(browser.ElementReference) bool
}

var (
	anyElement     = scope{}
	uploadElements = scope{
		name:   "file-upload",
		accept: func(ref browser.ElementReference) bool { return ref.AcceptsFiles },
	}
)

// resolve captures a fresh snapshot and turns index into a live handle.
// Elements outside the scope are reported as missing, and the valid
// indices listed are only those inside it.
func (e *Executor) resolve(ctx context.Context, session browser.Session, index int, sc scope) (*resolved, error) {
	snap, err := session.CaptureSnapshot(ctx, e.snapshot)
	if err != nil {
		return nil, &ResolveError{Reason: SnapshotUnavailable, Index: index, Scope: sc.name, Err: err}
	}
	if snap == nil {
		return nil, &ResolveError{Reason: SnapshotUnavailable, Index: index, Scope: sc.name, Err: errors.New("no snapshot captured")}
	}

	ref, ok := snap.Lookup(index)
	if !ok || (sc.accept != nil && !sc.accept(ref)) {
		return nil, &ResolveError{
			Reason: IndexNotFound,
			Index:  index,
			Scope:  sc.name,
			Valid:  snap.Indices(sc.accept),
		}
	}

	handle, err := session.ResolveHandle(ctx, ref)
	if err == nil && handle == nil {
		err = browser.ErrDetached
	}
	if err != nil {
		return nil, &ResolveError{Reason: HandleUnobtainable, Index: index, Scope: sc.name, Ref: ref, Err: err}
	}
	return &resolved{ref: ref, handle: handle}, nil
}
