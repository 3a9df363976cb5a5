// Package snapshot holds the server-authoritative store: wrapped field
// values with per-field versions, merged under last-writer-wins, plus the
// pure projector that unwraps a snapshot into a plain client view.
package snapshot

import (
	"github.com/driftstate/syncengine/schema"
)

// Wrapper is the storage form of one field: its value plus the version it
// was last written at. Every stored field is a Wrapper, regardless of kind.
type Wrapper struct {
	Value   any
	Version schema.Version
}

// Item is one collection entry: its id, optional entity version, and its
// wrapped fields.
type Item struct {
	ID      schema.ItemId
	Version schema.Version // meaningful only when the type is Versioned
	Fields  map[string]Wrapper
}

// Object is a singleton's wrapped fields; it has no id.
type Object struct {
	Version schema.Version
	Fields  map[string]Wrapper
	exists  bool
}

// Mode controls which field kinds a partial update is allowed to write.
type Mode int

const (
	ServerFields Mode = iota
	LocalFields
	Both
)

func (m Mode) allowsServer() bool { return m == ServerFields || m == Both }
func (m Mode) allowsLocal() bool  { return m == LocalFields || m == Both }

// Store holds, for every declared type, either a collection (ItemId →
// *Item, plus insertion order) or a singleton *Object.
type Store struct {
	schema      *schema.Schema
	collections map[string]*collectionState
	objects     map[string]*Object
}

type collectionState struct {
	items map[schema.ItemId]*Item
	order []schema.ItemId // insertion order, for deterministic iteration
}

// New builds an empty store for the given schema. Collections start empty;
// singletons start non-existent until their first complete update, unless
// seeded via Seed.
func New(s *schema.Schema) *Store {
	st := &Store{
		schema:      s,
		collections: make(map[string]*collectionState),
		objects:     make(map[string]*Object),
	}
	for _, name := range s.Types() {
		t := s.Type(name)
		switch t.Kind {
		case schema.Collection:
			st.collections[name] = &collectionState{items: make(map[schema.ItemId]*Item)}
		case schema.Object:
			st.objects[name] = &Object{Fields: make(map[string]Wrapper)}
		}
	}
	return st
}

// ReadSnapshot returns the live items of a declared collection type as a
// slice in insertion order. Callers must not mutate the returned items.
func (s *Store) ReadSnapshot(typeName string) (items []*Item, ok bool) {
	cs, ok := s.collections[typeName]
	if !ok {
		return nil, false
	}
	items = make([]*Item, 0, len(cs.order))
	for _, id := range cs.order {
		items = append(items, cs.items[id])
	}
	return items, true
}

// ReadObject returns the live singleton for a declared object type.
func (s *Store) ReadObject(typeName string) (*Object, bool) {
	obj, ok := s.objects[typeName]
	if !ok || !obj.exists {
		return nil, false
	}
	return obj, true
}

// Schema exposes the schema the store was built from.
func (s *Store) Schema() *schema.Schema { return s.schema }
