// Package syncengine wires the schema, snapshot, mutation queue, rebase
// coordinator, and persistence codec into a single public Engine type.
// Everything it does is a thin orchestration layer over the sub-packages;
// apart from the plain overwrite of a direct rebase (direct.go), it owns no
// merge or fold logic of its own.
package syncengine

import (
	"log/slog"
	"os"

	"github.com/driftstate/syncengine/clock"
	"github.com/driftstate/syncengine/codec"
	"github.com/driftstate/syncengine/idgen"
	"github.com/driftstate/syncengine/mutation"
	"github.com/driftstate/syncengine/rebase"
	"github.com/driftstate/syncengine/schema"
	"github.com/driftstate/syncengine/snapshot"
)

// Engine is a single running instance of the sync engine: one schema, one
// snapshot store, one pending-mutation queue, and the cached client view
// rebase last produced. It owns all of its mutable state; there are no
// process-wide singletons.
type Engine struct {
	schema *schema.Schema
	store  *snapshot.Store
	queue  *mutation.Queue

	clk    clock.Clock
	ids    idgen.Generator
	logger *slog.Logger

	view snapshot.ClientView
}

// Option configures construction of an Engine. Without options, an Engine
// uses a real clock, a UUID generator, and a slog.Logger writing to
// os.Stderr — callers override only what they need (teacher's
// gorm.Session{...} functional-options idiom, generalized).
type Option func(*engineConfig)

type engineConfig struct {
	clock  clock.Clock
	ids    idgen.Generator
	logger *slog.Logger
}

// WithClock overrides the engine's notion of "now" — tests use this to
// inject a clockwork.FakeClock via clock.NewFake.
func WithClock(clk clock.Clock) Option {
	return func(c *engineConfig) { c.clock = clk }
}

// WithIDGenerator overrides the generator minting mutation ids (and item
// ids, for callers that use it directly).
func WithIDGenerator(ids idgen.Generator) Option {
	return func(c *engineConfig) { c.ids = ids }
}

// WithLogger overrides the engine's structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *engineConfig) { c.logger = logger }
}

func resolveConfig(opts []Option) *engineConfig {
	c := &engineConfig{
		clock:  clock.Real(),
		ids:    idgen.UUID{},
		logger: slog.New(slog.NewTextHandler(os.Stderr, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// New builds a fresh engine: the snapshot starts empty except for the
// supplied initial singleton values, and the queue starts empty. objects
// must supply every declared singleton's required fields; a schema with
// no singletons accepts a nil map.
func New(s *schema.Schema, objects map[string]map[string]any, opts ...Option) *Engine {
	cfg := resolveConfig(opts)
	store := snapshot.New(s)
	for typeName, values := range objects {
		store.Seed(typeName, values)
	}
	e := &Engine{
		schema: s,
		store:  store,
		queue:  mutation.New(s, cfg.clock, cfg.ids),
		clk:    cfg.clock,
		ids:    cfg.ids,
		logger: cfg.logger,
	}
	e.recompute()
	return e
}

// Restore rebuilds an engine from a blob previously produced by Persist:
// the snapshot is set verbatim, the queue is repopulated, and one rebase
// is performed before returning.
func Restore(s *schema.Schema, blob string, opts ...Option) (*Engine, error) {
	cfg := resolveConfig(opts)
	restored, err := codec.Restore(blob, s)
	if err != nil {
		cfg.logger.Error("restore failed", "error", err)
		return nil, err
	}
	q := mutation.New(s, cfg.clock, cfg.ids)
	q.LoadEntries(restored.Entries)
	e := &Engine{
		schema: s,
		store:  restored.Store,
		queue:  q,
		clk:    cfg.clock,
		ids:    cfg.ids,
		logger: cfg.logger,
	}
	e.recompute()
	return e, nil
}

// State returns the current projected client view: the snapshot with
// every pending mutation's handler folded on top, in queue order.
func (e *Engine) State() snapshot.ClientView {
	return e.view
}

// ServerState returns the projection of the raw snapshot, with no pending
// mutations applied.
func (e *Engine) ServerState() snapshot.ClientView {
	return snapshot.Project(e.store)
}

// PendingMutations returns an immutable snapshot of the queue, in
// insertion order.
func (e *Engine) PendingMutations() []mutation.Entry {
	return e.queue.Pending()
}

// MutateOptions controls a single Mutate call.
type MutateOptions struct {
	// Direct applies the handler once to the current client view as a
	// one-shot effect: it is not enqueued and the snapshot is untouched.
	Direct bool
}

// Mutate looks up name's handler and either enqueues it (triggering a
// rebase) or, if opts.Direct, applies it once directly to the client view.
func (e *Engine) Mutate(name string, input any, opts MutateOptions) (schema.MutationId, error) {
	if opts.Direct {
		handler, ok := e.schema.Handler(name)
		if !ok {
			return "", &mutation.HandlerMissing{Name: name}
		}
		next, err := rebase.ApplyDirect(e.view, handler, input)
		if err != nil {
			e.logger.Warn("direct mutation failed", "mutation", name, "error", err)
			return "", err
		}
		e.view = next
		return "", nil
	}

	id, err := e.queue.Mutate(name, input, mutation.Options{})
	if err != nil {
		return "", err
	}
	e.logger.Debug("mutation enqueued", "mutation", name, "id", id)
	e.recompute()
	return id, nil
}

// Commit removes the given mutation ids from the queue and, if any were
// actually present, triggers a rebase. Unknown ids are silently skipped.
func (e *Engine) Commit(ids ...schema.MutationId) {
	if e.queue.Commit(ids...) {
		e.recompute()
	}
}

// RebaseOptions controls how an inbound partial update is merged and
// whether the rebase fold runs afterward.
type RebaseOptions struct {
	// AllowServerFields controls whether regular/reference fields may be
	// written. When both AllowServerFields and AllowLocalFields are false,
	// the update is applied as if AllowServerFields were true, so the zero
	// value behaves like DefaultRebaseOptions().
	AllowServerFields bool
	// AllowLocalFields controls whether local fields may be overwritten by
	// this update. Defaults to false.
	AllowLocalFields bool
	// Direct applies the update's plain values straight onto the current
	// client view and skips re-folding the mutation queue — useful when
	// the caller knows no pending mutation touches the incoming fields.
	Direct bool
}

// DefaultRebaseOptions returns the documented defaults: allowServerFields=
// true, allowLocalFields=false, direct=false.
func DefaultRebaseOptions() RebaseOptions {
	return RebaseOptions{AllowServerFields: true}
}

// Rebase applies an inbound partial update to the snapshot under the given
// write mask, then — unless opts.Direct — recomputes the client view by
// re-folding the mutation queue over the refreshed snapshot. opts.Direct
// still writes the snapshot (so ServerState/Persist reflect it); it only
// skips re-running the fold, instead patching the cached view directly
// with the same update.
func (e *Engine) Rebase(update snapshot.Update, opts RebaseOptions) {
	e.store.ApplyPartialUpdate(update, writeMode(opts))
	if opts.Direct {
		e.view = applyDirectToView(e.view, update)
		return
	}
	e.recompute()
}

func writeMode(opts RebaseOptions) snapshot.Mode {
	switch {
	case opts.AllowServerFields && opts.AllowLocalFields:
		return snapshot.Both
	case opts.AllowLocalFields:
		return snapshot.LocalFields
	default:
		return snapshot.ServerFields
	}
}

// Persist serializes the snapshot and pending-mutation queue into a single
// blob suitable for Restore.
func (e *Engine) Persist() (string, error) {
	return codec.Persist(e.store, e.queue)
}

// recompute re-runs the rebase fold and updates the cached view. A handler
// failure is logged and the view becomes the one rebase returns with the
// error: the projection with only the entries before the failing one
// folded in. The snapshot and queue are left untouched.
func (e *Engine) recompute() {
	view, err := rebase.Rebase(e.store, e.queue)
	if err != nil {
		e.logger.Warn("rebase aborted", "error", err)
		e.view = view
		return
	}
	e.logger.Debug("rebase complete")
	e.view = view
}
