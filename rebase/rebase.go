// Package rebase recomputes the projected client view by projecting the
// snapshot and folding the pending mutation queue's handlers over it in
// order — the engine's core read path.
package rebase

import (
	"fmt"

	"github.com/driftstate/syncengine/mutation"
	"github.com/driftstate/syncengine/snapshot"
)

// HandlerFailed wraps a handler error (returned or recovered from panic)
// encountered mid-fold. The rebase that produced it made no change to the
// caller's previously persisted state.
type HandlerFailed struct {
	MutationName string
	Err          error
}

func (e *HandlerFailed) Error() string {
	return fmt.Sprintf("rebase: handler %q failed: %v", e.MutationName, e.Err)
}

func (e *HandlerFailed) Unwrap() error { return e.Err }

// Rebase projects store, then folds queue's pending entries over the
// projection in insertion order via copy-on-write drafts. On success it
// returns the new client view. On a handler failure (returned error or a
// recovered panic) it aborts immediately and returns the error alongside
// the last good view (the projection with only the entries before the
// failing one folded in) — never a partially-applied, inconsistent view.
func Rebase(store *snapshot.Store, queue *mutation.Queue) (snapshot.ClientView, error) {
	base := snapshot.Project(store)
	return fold(base, queue.Pending(), queue)
}

func fold(base snapshot.ClientView, entries []mutation.Entry, queue *mutation.Queue) (result snapshot.ClientView, err error) {
	state := base
	for _, entry := range entries {
		handler, ok := queue.Handler(entry.Name)
		if !ok {
			// The entry's handler vanished from the schema between enqueue
			// and rebase (can't happen through this package's own API, but
			// an admin operation could splice the queue) — treat it the
			// same as any other handler failure: abort without mutating.
			return state, &HandlerFailed{MutationName: entry.Name, Err: fmt.Errorf("handler no longer registered")}
		}
		next, ferr := applyOne(handler, state, entry.Input)
		if ferr != nil {
			return state, &HandlerFailed{MutationName: entry.Name, Err: ferr}
		}
		state = next
	}
	return state, nil
}

// ApplyDirect runs handler once against view as a one-shot effect and
// returns the resulting view. It is the engine's `mutate(name, input,
// {direct:true})` path: the result is neither enqueued nor folded back
// into the snapshot, so a caller that gets an error back should simply
// discard it and keep the previous view.
func ApplyDirect(view snapshot.ClientView, handler func(draft map[string]any, input any) (map[string]any, error), input any) (snapshot.ClientView, error) {
	return applyOne(handler, view, input)
}

// applyOne runs handler against a deep copy of state (so the handler's
// mutations can't leak into the caller's previously-returned immutable
// view) and recovers a panic as an error. The returned draft becomes the
// new accumulated state outright — handlers see and return the whole
// view, which is what lets a handler express deletion by simply omitting
// a key.
func applyOne(handler func(draft map[string]any, input any) (map[string]any, error), state snapshot.ClientView, input any) (out snapshot.ClientView, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	draft := deepCopyView(state)
	updated, herr := handler(draft, input)
	if herr != nil {
		return nil, herr
	}
	// Defensive copy: the handler must not retain a usable reference to
	// what it returns past this call.
	return snapshot.ClientView(deepCopyView(updated)), nil
}

// deepCopyView recursively clones a ClientView so a handler's in-place
// writes to its draft can never be observed by a previously returned,
// supposedly-immutable view.
func deepCopyView(v map[string]any) map[string]any {
	out := make(map[string]any, len(v))
	for k, val := range v {
		out[k] = deepCopyValue(val)
	}
	return out
}

func deepCopyValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return deepCopyView(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return x
	}
}
