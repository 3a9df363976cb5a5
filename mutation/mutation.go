// Package mutation holds the named, user-issued pending-mutation queue:
// the immutable handler registry, the ordered queue of not-yet-confirmed
// mutations, and mutate/commit/pending.
package mutation

import (
	"fmt"
	"time"

	"github.com/driftstate/syncengine/clock"
	"github.com/driftstate/syncengine/schema"
)

// Entry is one queued mutation, in the order it was enqueued.
type Entry struct {
	MutationId schema.MutationId
	CreatedAt  time.Time
	Name       string
	Input      any
}

// HandlerMissing is returned by Mutate when name isn't registered on the
// schema.
type HandlerMissing struct {
	Name string
}

func (e *HandlerMissing) Error() string {
	return fmt.Sprintf("mutation: no handler registered for %q", e.Name)
}

// IDGenerator is the narrow subset of idgen.Generator the queue needs.
type IDGenerator interface {
	NewMutationId() schema.MutationId
}

// Queue is the ordered sequence of pending mutations plus the schema's
// immutable handler registry it dispatches against.
type Queue struct {
	schema *schema.Schema
	clock  clock.Clock
	ids    IDGenerator
	order  []schema.MutationId
	byID   map[schema.MutationId]Entry
}

// New builds an empty queue bound to s, stamping entries with clk and
// minting ids with ids.
func New(s *schema.Schema, clk clock.Clock, ids IDGenerator) *Queue {
	return &Queue{
		schema: s,
		clock:  clk,
		ids:    ids,
		byID:   make(map[schema.MutationId]Entry),
	}
}

// Options controls a single Mutate call.
type Options struct {
	// Direct applies the handler immediately as a one-shot effect on the
	// current client view, without enqueuing and without touching the
	// snapshot.
	Direct bool
}

// Mutate validates that name is registered, then either enqueues a new
// entry (returning its freshly minted MutationId) or — if opts.Direct —
// reports that no entry was queued. The caller (syncengine.Engine) is
// responsible for triggering the rebase or applying the direct effect.
func (q *Queue) Mutate(name string, input any, opts Options) (schema.MutationId, error) {
	if _, ok := q.schema.Handler(name); !ok {
		return "", &HandlerMissing{Name: name}
	}
	if opts.Direct {
		return "", nil
	}
	id := q.ids.NewMutationId()
	e := Entry{MutationId: id, CreatedAt: q.clock.Now(), Name: name, Input: input}
	q.byID[id] = e
	q.order = append(q.order, id)
	return id, nil
}

// Commit removes the given mutation ids from the queue. Unknown ids are
// silently skipped. It reports whether any entry was actually removed, so
// the caller knows whether a rebase is warranted.
func (q *Queue) Commit(ids ...schema.MutationId) (changed bool) {
	for _, id := range ids {
		if _, ok := q.byID[id]; ok {
			delete(q.byID, id)
			changed = true
		}
	}
	if !changed {
		return false
	}
	kept := q.order[:0:0]
	for _, id := range q.order {
		if _, ok := q.byID[id]; ok {
			kept = append(kept, id)
		}
	}
	q.order = kept
	return true
}

// Pending returns an immutable snapshot of queue entries in insertion
// order.
func (q *Queue) Pending() []Entry {
	out := make([]Entry, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, q.byID[id])
	}
	return out
}

// Handler looks up the registered handler for a queued entry's name.
func (q *Queue) Handler(name string) (schema.MutationHandler, bool) {
	return q.schema.Handler(name)
}

// LoadEntries repopulates the queue from previously persisted entries, in
// the order given — used only by codec.Restore when rebuilding an engine
// from a blob. It does not mint new ids or timestamps.
func (q *Queue) LoadEntries(entries []Entry) {
	q.order = q.order[:0]
	q.byID = make(map[schema.MutationId]Entry, len(entries))
	for _, e := range entries {
		q.byID[e.MutationId] = e
		q.order = append(q.order, e.MutationId)
	}
}
