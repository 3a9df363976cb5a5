// Package diffsync is the optional low-level diff rebaser: a simpler,
// schema-free surface for callers working in raw create/update/delete
// operations rather than named mutation handlers. It has no import-time
// coupling to schema, snapshot, mutation, or rebase — a caller may depend
// on this package alone.
package diffsync

import (
	"fmt"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/driftstate/syncengine/clock"
)

// OpKind distinguishes the three operation shapes a Diff can carry.
type OpKind int

const (
	OpCreate OpKind = iota
	OpUpdate
	OpDelete
)

// Operation is one tagged create/update/delete entry in a Diff.
type Operation struct {
	OpId    string
	Kind    OpKind
	Id      string
	Item    map[string]any // OpCreate: full item
	Partial map[string]any // OpUpdate: sparse field set
}

// FieldChange is one field's recorded value and the time it last changed,
// the unit the low-level LWW comparison works on (distinct from the
// versioned-integer LWW the snapshot package uses).
type FieldChange struct {
	Value     any
	ChangedAt time.Time
}

// Entity is a single create/update/delete-addressable record in a
// Rebaser's table: a bag of field-level changes keyed by field name.
type Entity struct {
	Id     string
	Fields map[string]FieldChange
}

func (e *Entity) clone() *Entity {
	out := &Entity{Id: e.Id, Fields: make(map[string]FieldChange, len(e.Fields))}
	for k, v := range e.Fields {
		out.Fields[k] = v
	}
	return out
}

// plainFields strips ChangedAt, producing the shape a caller would see.
func (e *Entity) plainFields() map[string]any {
	out := make(map[string]any, len(e.Fields))
	for k, v := range e.Fields {
		out[k] = v.Value
	}
	return out
}

// OperationRejected is the non-throwing per-op failure carrier: ApplyDiff
// never returns an error for a bad operation, it reports rejection in the
// per-op DiffResult's Err field instead, for callers that want to
// errors.As into a concrete reason rather than match on a string.
type OperationRejected struct {
	OpId   string
	Reason string
}

func (e *OperationRejected) Error() string {
	return fmt.Sprintf("diffsync: op %s rejected: %s", e.OpId, e.Reason)
}

// DiffResult is the per-operation outcome of ApplyDiff.
type DiffResult struct {
	OpId     string
	Accepted bool
	Reason   string
	Err      *OperationRejected // non-nil exactly when !Accepted
}

func rejected(opId, reason string) DiffResult {
	return DiffResult{OpId: opId, Accepted: false, Reason: reason, Err: &OperationRejected{OpId: opId, Reason: reason}}
}

// Rebaser holds a table of entities and applies create/update/delete
// operations against it under per-field last-writer-wins, keyed by
// ChangedAt rather than an integer version.
type Rebaser struct {
	clock   clock.Clock
	entries map[string]*Entity
}

// NewRebaser builds an empty table, using clk for "now" in the clamp and
// tie-break rules.
func NewRebaser(clk clock.Clock) *Rebaser {
	return &Rebaser{clock: clk, entries: make(map[string]*Entity)}
}

// Get returns the entity by id, if present. The caller must not mutate the
// returned value.
func (r *Rebaser) Get(id string) (*Entity, bool) {
	e, ok := r.entries[id]
	return e, ok
}

// All returns a snapshot of every entity's plain (unwrapped) fields, keyed
// by id.
func (r *Rebaser) All() map[string]map[string]any {
	out := make(map[string]map[string]any, len(r.entries))
	for id, e := range r.entries {
		out[id] = e.plainFields()
	}
	return out
}

// ApplyDiff applies each operation in order against the table, returning
// one DiffResult per operation — rejections are reported, never thrown.
func (r *Rebaser) ApplyDiff(ops []Operation) []DiffResult {
	results := make([]DiffResult, 0, len(ops))
	for _, op := range ops {
		results = append(results, r.applyOne(op))
	}
	return results
}

func (r *Rebaser) applyOne(op Operation) DiffResult {
	switch op.Kind {
	case OpCreate:
		return r.applyCreate(op)
	case OpUpdate:
		return r.applyUpdate(op)
	case OpDelete:
		return r.applyDelete(op)
	default:
		return rejected(op.OpId, "unknown operation kind")
	}
}

func (r *Rebaser) applyCreate(op Operation) DiffResult {
	if _, exists := r.entries[op.Id]; exists {
		return rejected(op.OpId, "id already exists")
	}
	now := r.clock.Now()
	fields := make(map[string]FieldChange, len(op.Item))
	for name, val := range op.Item {
		changedAt := now
		if fc, ok := extractChangedAt(val); ok && !fc.After(now) {
			changedAt = fc
		}
		fields[name] = FieldChange{Value: unwrapValue(val), ChangedAt: changedAt}
	}
	r.entries[op.Id] = &Entity{Id: op.Id, Fields: fields}
	return DiffResult{OpId: op.OpId, Accepted: true}
}

func (r *Rebaser) applyUpdate(op Operation) DiffResult {
	e, exists := r.entries[op.Id]
	if !exists {
		return rejected(op.OpId, "id missing")
	}
	now := r.clock.Now()
	anyChanged := false
	next := e.clone()
	for name, val := range op.Partial {
		incomingVal := unwrapValue(val)
		incomingAt, hasTime := extractChangedAt(val)
		if !hasTime {
			incomingAt = now
		}
		existing, had := next.Fields[name]
		switch {
		case !had:
			next.Fields[name] = FieldChange{Value: incomingVal, ChangedAt: incomingAt}
			anyChanged = true
		case incomingAt.After(existing.ChangedAt):
			next.Fields[name] = FieldChange{Value: incomingVal, ChangedAt: incomingAt}
			anyChanged = true
		case incomingAt.Equal(existing.ChangedAt) && !cmp.Equal(incomingVal, existing.Value):
			next.Fields[name] = FieldChange{Value: incomingVal, ChangedAt: now}
			anyChanged = true
		}
	}
	if !anyChanged {
		return rejected(op.OpId, "No changes to apply")
	}
	r.entries[op.Id] = next
	return DiffResult{OpId: op.OpId, Accepted: true}
}

func (r *Rebaser) applyDelete(op Operation) DiffResult {
	if _, exists := r.entries[op.Id]; !exists {
		return rejected(op.OpId, "id missing")
	}
	delete(r.entries, op.Id)
	return DiffResult{OpId: op.OpId, Accepted: true}
}

// extractChangedAt reads an optional "changedAt" sidecar out of a raw field
// value shaped as map[string]any{"value": ..., "changedAt": time.Time},
// the wire shape callers use when they want to carry LWW timestamps through
// an operation. Plain values (no sidecar) report ok=false.
func extractChangedAt(v any) (time.Time, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return time.Time{}, false
	}
	t, ok := m["changedAt"].(time.Time)
	return t, ok
}

func unwrapValue(v any) any {
	if m, ok := v.(map[string]any); ok {
		if val, has := m["value"]; has {
			return val
		}
	}
	return v
}
