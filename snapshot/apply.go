package snapshot

import (
	"reflect"

	"dario.cat/mergo"

	"github.com/driftstate/syncengine/schema"
)

// Update is one partial-update payload: declared type name → a []map[string]any
// patch list for collections, or a map[string]any patch for singletons.
type Update map[string]any

// ApplyPartialUpdate merges update into the store under the given write
// mask. Unknown types and incomplete creates are silently dropped, and a
// missing or unreadable $version is read as 0 — never an error.
func (s *Store) ApplyPartialUpdate(update Update, mode Mode) {
	for typeName, payload := range update {
		t := s.schema.Type(typeName)
		if t == nil {
			continue // unknown type: silently ignored
		}
		switch t.Kind {
		case schema.Collection:
			patches, ok := payload.([]map[string]any)
			if !ok {
				continue
			}
			cs := s.collections[typeName]
			for _, patch := range patches {
				s.applyItemPatch(t, cs, patch, mode)
			}
		case schema.Object:
			patch, ok := payload.(map[string]any)
			if !ok {
				continue
			}
			s.applyObjectPatch(t, s.objects[typeName], patch, mode)
		}
	}
}

// incomingVersion reads $version from a patch, defaulting to 0, and
// normalizes it to 0 for non-versioned types.
func incomingVersion(t *schema.Type, patch map[string]any) schema.Version {
	if !t.Versioned {
		return 0
	}
	raw, ok := patch["$version"]
	if !ok {
		return 0
	}
	switch v := raw.(type) {
	case schema.Version:
		return v
	case int:
		if v < 0 {
			return 0
		}
		return schema.Version(v)
	case int64:
		if v < 0 {
			return 0
		}
		return schema.Version(v)
	case uint64:
		return schema.Version(v)
	default:
		return 0
	}
}

// isComplete reports whether patch is a full create for a collection item:
// it must carry an id plus every declared non-local field.
func isComplete(t *schema.Type, patch map[string]any) bool {
	if _, hasID := patch["id"]; !hasID {
		return false
	}
	for _, f := range t.NonLocalFields() {
		if _, ok := patch[f.Name]; !ok {
			return false
		}
	}
	return true
}

// isCompleteObject reports whether patch is a full create for a singleton:
// unlike a collection item it carries no id, just every declared non-local
// field.
func isCompleteObject(t *schema.Type, patch map[string]any) bool {
	for _, f := range t.NonLocalFields() {
		if _, ok := patch[f.Name]; !ok {
			return false
		}
	}
	return true
}

// wrapFields builds the Wrapper set for the non-local fields present in
// patch, all stamped with the same incoming version v. Used only on the
// creation path, where local fields must come from defaultLocalFields
// rather than the incoming patch.
func wrapFields(t *schema.Type, patch map[string]any, v schema.Version) map[string]Wrapper {
	out := make(map[string]Wrapper)
	for name, f := range t.Fields {
		if f.Kind == schema.KindLocal {
			continue
		}
		if val, ok := patch[name]; ok {
			out[name] = Wrapper{Value: val, Version: v}
		}
	}
	return out
}

// wrapWritable builds the Wrapper set for every field already present in
// writable, all stamped with v. Used on the existing-entity patch path,
// where writable has already been through filterWritable's mode mask — no
// further kind-based exclusion is applied here, so a LocalFields/Both
// write can actually land on a local field.
func wrapWritable(writable map[string]any, v schema.Version) map[string]Wrapper {
	out := make(map[string]Wrapper, len(writable))
	for name, val := range writable {
		out[name] = Wrapper{Value: val, Version: v}
	}
	return out
}

func defaultLocalFields(t *schema.Type) map[string]Wrapper {
	out := make(map[string]Wrapper)
	for _, f := range t.LocalFields() {
		out[f.Name] = Wrapper{Value: f.Default, Version: 0}
	}
	return out
}

// mergeFields merges incoming into existing under field-level LWW, via a
// mergo transformer that compares each Wrapper's Version. Each field is
// merged on its own addressable Wrapper, so the transformer sees it.
func mergeFields(existing, incoming map[string]Wrapper) {
	for name, in := range incoming {
		w := existing[name]
		_ = mergo.Merge(&w, in, mergo.WithOverride, mergo.WithTransformers(lwwTransformer{}))
		existing[name] = w
	}
}

type lwwTransformer struct{}

func (lwwTransformer) Transformer(typ reflect.Type) func(dst, src reflect.Value) error {
	if typ != reflect.TypeOf(Wrapper{}) {
		return nil
	}
	return func(dst, src reflect.Value) error {
		if !dst.CanSet() {
			return nil
		}
		existing := dst.Interface().(Wrapper)
		incoming := src.Interface().(Wrapper)
		// Tie or stale: keep existing. V == 0 or a strictly newer version
		// always writes.
		if incoming.Version > 0 && incoming.Version <= existing.Version {
			return nil
		}
		dst.Set(src)
		return nil
	}
}

func (s *Store) applyItemPatch(t *schema.Type, cs *collectionState, patch map[string]any, mode Mode) {
	rawID, ok := patch["id"]
	if !ok {
		return
	}
	id, ok := rawID.(schema.ItemId)
	if !ok {
		if str, ok2 := rawID.(string); ok2 {
			id = schema.ItemId(str)
		} else {
			return
		}
	}

	v := incomingVersion(t, patch)
	writable := filterWritable(t, patch, mode)

	if item, exists := cs.items[id]; exists {
		mergeFields(item.Fields, wrapWritable(writable, v))
		if t.Versioned && v > 0 && v > item.Version {
			item.Version = v
		}
		return
	}

	if !mode.allowsServer() || !isComplete(t, patch) {
		return // incomplete or server writes disabled: ignore silently
	}

	fields := defaultLocalFields(t)
	for name, w := range wrapFields(t, patch, v) {
		fields[name] = w
	}
	item := &Item{ID: id, Fields: fields}
	if t.Versioned {
		item.Version = v
	}
	cs.items[id] = item
	cs.order = append(cs.order, id)
}

func (s *Store) applyObjectPatch(t *schema.Type, obj *Object, patch map[string]any, mode Mode) {
	v := incomingVersion(t, patch)
	writable := filterWritable(t, patch, mode)

	if obj.exists {
		mergeFields(obj.Fields, wrapWritable(writable, v))
		if t.Versioned && v > 0 && v > obj.Version {
			obj.Version = v
		}
		return
	}

	if !mode.allowsServer() || !isCompleteObject(t, patch) {
		return
	}

	fields := defaultLocalFields(t)
	for name, w := range wrapFields(t, patch, v) {
		fields[name] = w
	}
	obj.Fields = fields
	obj.exists = true
	if t.Versioned {
		obj.Version = v
	}
}

// filterWritable drops fields the current mode isn't allowed to touch:
// local fields require LocalFields/Both, server (regular/reference) fields
// require ServerFields/Both.
func filterWritable(t *schema.Type, patch map[string]any, mode Mode) map[string]any {
	out := make(map[string]any, len(patch))
	for name, val := range patch {
		if name == "id" || name == "$version" {
			continue
		}
		f, declared := t.Fields[name]
		if !declared {
			continue // unknown field: ignored
		}
		if f.Kind == schema.KindLocal {
			if mode.allowsLocal() {
				out[name] = val
			}
			continue
		}
		if mode.allowsServer() {
			out[name] = val
		}
	}
	return out
}

// Seed initializes a singleton object directly (engine construction's
// `{from: "new", objects}` path), bypassing partial-update completeness
// checks — the caller is required to supply every declared non-local
// field.
func (s *Store) Seed(typeName string, values map[string]any) {
	t := s.schema.Type(typeName)
	if t == nil || t.Kind != schema.Object {
		return
	}
	fields := defaultLocalFields(t)
	for name, val := range values {
		if f, ok := t.Fields[name]; ok && f.Kind != schema.KindLocal {
			fields[name] = Wrapper{Value: val, Version: 0}
		}
	}
	s.objects[typeName] = &Object{Fields: fields, exists: true}
}
