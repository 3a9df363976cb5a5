package snapshot

import "github.com/driftstate/syncengine/schema"

// RestoreItem sets an item's wrapped fields and entity version verbatim,
// bypassing the partial-update completeness/LWW rules — used only by
// codec.Restore to rebuild a snapshot from a previously persisted blob.
func (s *Store) RestoreItem(typeName string, id schema.ItemId, version schema.Version, fields map[string]Wrapper) {
	cs, ok := s.collections[typeName]
	if !ok {
		return
	}
	if _, exists := cs.items[id]; !exists {
		cs.order = append(cs.order, id)
	}
	cs.items[id] = &Item{ID: id, Version: version, Fields: fields}
}

// RestoreObject sets a singleton's wrapped fields and version verbatim.
func (s *Store) RestoreObject(typeName string, version schema.Version, fields map[string]Wrapper) {
	obj, ok := s.objects[typeName]
	if !ok {
		obj = &Object{}
		s.objects[typeName] = obj
	}
	obj.Version = version
	obj.Fields = fields
	obj.exists = true
}
