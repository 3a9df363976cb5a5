package syncengine

import (
	"github.com/driftstate/syncengine/schema"
	"github.com/driftstate/syncengine/snapshot"
)

// applyDirectToView merges update's plain values straight onto view,
// bypassing every LWW/completeness rule the snapshot layer enforces. The
// caller has already decided no pending mutation should be influenced by
// the incoming fields, so there is nothing to fold — just overwrite.
func applyDirectToView(view snapshot.ClientView, update snapshot.Update) snapshot.ClientView {
	out := make(snapshot.ClientView, len(view))
	for typeName, val := range view {
		out[typeName] = val
	}

	for typeName, payload := range update {
		switch patches := payload.(type) {
		case []map[string]any:
			out[typeName] = mergeCollectionDirect(out[typeName], patches)
		case map[string]any:
			out[typeName] = mergeFieldsDirect(out[typeName], patches)
		}
	}
	return out
}

func mergeCollectionDirect(existing any, patches []map[string]any) map[string]any {
	coll, _ := existing.(map[string]any)
	out := make(map[string]any, len(coll)+len(patches))
	for id, item := range coll {
		out[id] = item
	}
	for _, patch := range patches {
		rawID, ok := patch["id"]
		if !ok {
			continue
		}
		id := itemIDString(rawID)
		merged := mergeFieldsDirect(out[id], patch)
		merged["id"] = schema.ItemId(id)
		out[id] = merged
	}
	return out
}

func mergeFieldsDirect(existing any, patch map[string]any) map[string]any {
	prior, _ := existing.(map[string]any)
	out := make(map[string]any, len(prior)+len(patch))
	for k, v := range prior {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

func itemIDString(raw any) string {
	switch v := raw.(type) {
	case schema.ItemId:
		return string(v)
	case string:
		return v
	default:
		return ""
	}
}
