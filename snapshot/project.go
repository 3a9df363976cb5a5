package snapshot

import "github.com/driftstate/syncengine/schema"

// ClientView is the plain, unwrapped projection of a whole snapshot: for
// each declared type name, either a map[string]any of id → item fields
// (collection) or the singleton's field map directly (object).
type ClientView map[string]any

// Project is the pure snapshot → client view projector: every Wrapper is
// replaced by its Value and no validation is performed (the snapshot's
// invariants already hold by construction).
func Project(s *Store) ClientView {
	out := make(ClientView, len(s.schema.Types()))
	for _, name := range s.schema.Types() {
		t := s.schema.Type(name)
		switch t.Kind {
		case schema.Collection:
			cs := s.collections[name]
			coll := make(map[string]any, len(cs.order))
			for _, id := range cs.order {
				coll[string(id)] = projectItem(t, cs.items[id])
			}
			out[name] = coll
		case schema.Object:
			obj := s.objects[name]
			if obj == nil || !obj.exists {
				continue
			}
			out[name] = projectObject(t, obj)
		}
	}
	return out
}

func projectItem(t *schema.Type, item *Item) map[string]any {
	view := make(map[string]any, len(item.Fields)+2)
	view["id"] = item.ID
	if t.Versioned {
		view["$version"] = item.Version
	}
	for name, w := range item.Fields {
		view[name] = w.Value
	}
	return view
}

func projectObject(t *schema.Type, obj *Object) map[string]any {
	view := make(map[string]any, len(obj.Fields)+1)
	if t.Versioned {
		view["$version"] = obj.Version
	}
	for name, w := range obj.Fields {
		view[name] = w.Value
	}
	return view
}
