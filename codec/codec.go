// Package codec serializes and restores {snapshot, queue} as a single
// JSON-compatible blob. The encoding is versioned so a future release can
// evolve the envelope without breaking old blobs.
package codec

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/driftstate/syncengine/mutation"
	"github.com/driftstate/syncengine/schema"
	"github.com/driftstate/syncengine/snapshot"
)

// schemaVersion is bumped whenever the envelope's shape changes in a way
// that isn't backward compatible.
const schemaVersion = 1

// RestoreError reports a malformed blob.
type RestoreError struct {
	Reason string
	Cause  error
}

func (e *RestoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("restore: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("restore: %s", e.Reason)
}

func (e *RestoreError) Unwrap() error { return e.Cause }

// envelope is the on-wire shape of Persist's output.
type envelope struct {
	SchemaVersion int                       `json:"schemaVersion"`
	Collections   map[string][]wireItem     `json:"collections"`
	Objects       map[string]wireObject     `json:"objects"`
	Queue         []wireEntry               `json:"queue"`
}

type wireItem struct {
	ID      string                    `json:"id"`
	Version schema.Version            `json:"version"`
	Fields  map[string]wireWrapper    `json:"fields"`
}

type wireObject struct {
	Version schema.Version         `json:"version"`
	Fields  map[string]wireWrapper `json:"fields"`
}

type wireWrapper struct {
	Value   any            `json:"value"`
	Version schema.Version `json:"version"`
}

type wireEntry struct {
	MutationId string    `json:"mutationId"`
	CreatedAt  time.Time `json:"createdAt"`
	Name       string    `json:"name"`
	Input      any       `json:"input"`
}

// Persist serializes store and queue into a single JSON blob. Local
// fields, every $version, and every field wrapper survive the round trip
// intact.
func Persist(store *snapshot.Store, queue *mutation.Queue) (string, error) {
	env := envelope{
		SchemaVersion: schemaVersion,
		Collections:   make(map[string][]wireItem),
		Objects:       make(map[string]wireObject),
	}

	s := store.Schema()
	for _, typeName := range s.Types() {
		t := s.Type(typeName)
		switch t.Kind {
		case schema.Collection:
			items, _ := store.ReadSnapshot(typeName)
			wireItems := make([]wireItem, 0, len(items))
			for _, it := range items {
				wireItems = append(wireItems, wireItem{
					ID:      string(it.ID),
					Version: it.Version,
					Fields:  wrapFieldsToWire(it.Fields),
				})
			}
			env.Collections[typeName] = wireItems
		case schema.Object:
			obj, ok := store.ReadObject(typeName)
			if !ok {
				continue
			}
			env.Objects[typeName] = wireObject{
				Version: obj.Version,
				Fields:  wrapFieldsToWire(obj.Fields),
			}
		}
	}

	for _, e := range queue.Pending() {
		env.Queue = append(env.Queue, wireEntry{
			MutationId: string(e.MutationId),
			CreatedAt:  e.CreatedAt,
			Name:       e.Name,
			Input:      e.Input,
		})
	}

	blob, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return string(blob), nil
}

func wrapFieldsToWire(fields map[string]snapshot.Wrapper) map[string]wireWrapper {
	out := make(map[string]wireWrapper, len(fields))
	for name, w := range fields {
		out[name] = wireWrapper{Value: w.Value, Version: w.Version}
	}
	return out
}

// Restored is the deserialized-but-not-yet-wired form: a freshly rebuilt
// snapshot store and the raw queue entries, which the caller (syncengine)
// re-enqueues through its own mutation.Queue (the queue owns ID generation
// and the clock, codec does not).
type Restored struct {
	Store   *snapshot.Store
	Entries []mutation.Entry
}

// Restore rebuilds a Restored from a blob produced by Persist, against s.
// A malformed blob (invalid JSON, unknown schemaVersion) yields a
// *RestoreError.
func Restore(blob string, s *schema.Schema) (*Restored, error) {
	var env envelope
	if err := json.Unmarshal([]byte(blob), &env); err != nil {
		return nil, &RestoreError{Reason: "invalid JSON", Cause: err}
	}
	if env.SchemaVersion != schemaVersion {
		return nil, &RestoreError{Reason: fmt.Sprintf("unsupported schemaVersion %d", env.SchemaVersion)}
	}

	store := snapshot.New(s)
	for typeName, items := range env.Collections {
		t := s.Type(typeName)
		if t == nil || t.Kind != schema.Collection {
			continue
		}
		for _, wi := range items {
			store.RestoreItem(typeName, schema.ItemId(wi.ID), wi.Version, wireFieldsToWrapper(wi.Fields))
		}
	}
	for typeName, wo := range env.Objects {
		t := s.Type(typeName)
		if t == nil || t.Kind != schema.Object {
			continue
		}
		store.RestoreObject(typeName, wo.Version, wireFieldsToWrapper(wo.Fields))
	}

	entries := make([]mutation.Entry, 0, len(env.Queue))
	for _, we := range env.Queue {
		entries = append(entries, mutation.Entry{
			MutationId: schema.MutationId(we.MutationId),
			CreatedAt:  we.CreatedAt.Local(),
			Name:       we.Name,
			Input:      we.Input,
		})
	}

	return &Restored{Store: store, Entries: entries}, nil
}

func wireFieldsToWrapper(fields map[string]wireWrapper) map[string]snapshot.Wrapper {
	out := make(map[string]snapshot.Wrapper, len(fields))
	for name, w := range fields {
		out[name] = snapshot.Wrapper{Value: w.Value, Version: w.Version}
	}
	return out
}
