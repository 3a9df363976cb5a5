package codec_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/driftstate/syncengine/clock"
	"github.com/driftstate/syncengine/codec"
	"github.com/driftstate/syncengine/mutation"
	"github.com/driftstate/syncengine/schema"
	"github.com/driftstate/syncengine/snapshot"
)

type seqIDs struct{ n int }

func (s *seqIDs) NewMutationId() schema.MutationId {
	s.n++
	return schema.MutationId(string(rune('a' + s.n - 1)))
}

func buildSchema(t *testing.T) *schema.Schema {
	noop := func(draft map[string]any, input any) (map[string]any, error) { return draft, nil }
	s, err := schema.NewBuilder().
		Collection("todos", true).
		Field("title").
		Local("isExpanded", false).
		End().
		WithMutations(map[string]schema.MutationHandler{"noop": noop}).
		Build()
	require.NoError(t, err)
	return s
}

func TestPersistRestore_RoundTripsSnapshotAndQueue(t *testing.T) {
	s := buildSchema(t)
	store := snapshot.New(s)
	store.ApplyPartialUpdate(snapshot.Update{
		"todos": []map[string]any{{"id": "t1", "$version": schema.Version(3), "title": "x"}},
	}, snapshot.ServerFields)

	fc, _ := clock.NewFake(time.Unix(100, 0))
	q := mutation.New(s, fc, &seqIDs{})
	_, err := q.Mutate("noop", map[string]any{"foo": "bar"}, mutation.Options{})
	require.NoError(t, err)

	blob, err := codec.Persist(store, q)
	require.NoError(t, err)
	require.NotEmpty(t, blob)

	restored, err := codec.Restore(blob, s)
	require.NoError(t, err)

	items, ok := restored.Store.ReadSnapshot("todos")
	require.True(t, ok)
	require.Len(t, items, 1)
	require.Equal(t, "x", items[0].Fields["title"].Value)
	require.EqualValues(t, 3, items[0].Fields["title"].Version)
	require.EqualValues(t, 3, items[0].Version)
	require.Equal(t, false, items[0].Fields["isExpanded"].Value, "local field state must survive round-trip")

	require.Len(t, restored.Entries, 1)
	require.Equal(t, "noop", restored.Entries[0].Name)
	require.Equal(t, map[string]any{"foo": "bar"}, restored.Entries[0].Input)
}

func TestRestore_MalformedBlob(t *testing.T) {
	s := buildSchema(t)
	_, err := codec.Restore("{not json", s)
	var re *codec.RestoreError
	require.ErrorAs(t, err, &re)
}

func TestRestore_UnsupportedSchemaVersion(t *testing.T) {
	s := buildSchema(t)
	_, err := codec.Restore(`{"schemaVersion":99}`, s)
	var re *codec.RestoreError
	require.ErrorAs(t, err, &re)
}
