package snapshot_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/driftstate/syncengine/schema"
	"github.com/driftstate/syncengine/snapshot"
)

func buildTodosSchema(t *testing.T) *schema.Schema {
	s, err := schema.NewBuilder().
		Collection("todos", true).
		Field("title").
		Field("done").
		Local("isExpanded", false).
		End().
		Build()
	require.NoError(t, err)
	return s
}

func TestApplyPartialUpdate_CreatesOnCompletePatch(t *testing.T) {
	st := snapshot.New(buildTodosSchema(t))
	st.ApplyPartialUpdate(snapshot.Update{
		"todos": []map[string]any{
			{"id": "t1", "$version": schema.Version(1), "title": "x", "done": false},
		},
	}, snapshot.ServerFields)

	items, ok := st.ReadSnapshot("todos")
	require.True(t, ok)
	require.Len(t, items, 1)
	require.Equal(t, "x", items[0].Fields["title"].Value)
	require.EqualValues(t, 1, items[0].Fields["title"].Version)
	require.EqualValues(t, 1, items[0].Version)
}

func TestApplyPartialUpdate_IncompletePatchSuppressesCreate(t *testing.T) {
	st := snapshot.New(buildTodosSchema(t))
	st.ApplyPartialUpdate(snapshot.Update{
		"todos": []map[string]any{
			{"id": "t1", "title": "x"}, // missing "done"
		},
	}, snapshot.ServerFields)

	items, _ := st.ReadSnapshot("todos")
	require.Empty(t, items)
}

func TestApplyPartialUpdate_UnknownTypeIgnored(t *testing.T) {
	st := snapshot.New(buildTodosSchema(t))
	require.NotPanics(t, func() {
		st.ApplyPartialUpdate(snapshot.Update{
			"bogus": []map[string]any{{"id": "x"}},
		}, snapshot.ServerFields)
	})
}

func TestApplyPartialUpdate_LWWRejectsStaleVersion(t *testing.T) {
	st := snapshot.New(buildTodosSchema(t))
	st.ApplyPartialUpdate(snapshot.Update{
		"todos": []map[string]any{{"id": "a", "$version": schema.Version(3), "title": "new", "done": false}},
	}, snapshot.ServerFields)

	st.ApplyPartialUpdate(snapshot.Update{
		"todos": []map[string]any{{"id": "a", "$version": schema.Version(1), "title": "old"}},
	}, snapshot.ServerFields)

	items, _ := st.ReadSnapshot("todos")
	require.Equal(t, "new", items[0].Fields["title"].Value)
}

func TestApplyPartialUpdate_FieldLevelLWWAcrossFields(t *testing.T) {
	st := snapshot.New(buildTodosSchema(t))
	apply := func(v schema.Version, fields map[string]any) {
		patch := map[string]any{"id": "a", "$version": v}
		for k, val := range fields {
			patch[k] = val
		}
		st.ApplyPartialUpdate(snapshot.Update{"todos": []map[string]any{patch}}, snapshot.ServerFields)
	}
	apply(1, map[string]any{"title": "A", "done": false})
	apply(2, map[string]any{"title": "B"})
	apply(3, map[string]any{"done": true})
	apply(1, map[string]any{"title": "C"})

	items, _ := st.ReadSnapshot("todos")
	require.Equal(t, "B", items[0].Fields["title"].Value)
	require.Equal(t, true, items[0].Fields["done"].Value)
}

func TestApplyPartialUpdate_LocalFieldIgnoredWhenServerFieldsOnly(t *testing.T) {
	st := snapshot.New(buildTodosSchema(t))
	st.ApplyPartialUpdate(snapshot.Update{
		"todos": []map[string]any{{"id": "t", "title": "x", "done": false}},
	}, snapshot.ServerFields)

	view := snapshot.Project(st)
	todo := view["todos"].(map[string]any)["t"].(map[string]any)
	require.Equal(t, false, todo["isExpanded"])

	// server update tries to set isExpanded but server-fields mode ignores local fields
	st.ApplyPartialUpdate(snapshot.Update{
		"todos": []map[string]any{{"id": "t", "title": "y", "done": false, "isExpanded": true}},
	}, snapshot.ServerFields)
	view = snapshot.Project(st)
	todo = view["todos"].(map[string]any)["t"].(map[string]any)
	require.Equal(t, false, todo["isExpanded"])
	require.Equal(t, "y", todo["title"])
}

func TestApplyPartialUpdate_NonVersionedAlwaysOverwrites(t *testing.T) {
	s, err := schema.NewBuilder().
		Collection("tags", false).
		Field("label").
		End().
		Build()
	require.NoError(t, err)
	st := snapshot.New(s)

	st.ApplyPartialUpdate(snapshot.Update{
		"tags": []map[string]any{{"id": "x", "$version": schema.Version(99), "label": "first"}},
	}, snapshot.ServerFields)
	st.ApplyPartialUpdate(snapshot.Update{
		"tags": []map[string]any{{"id": "x", "$version": schema.Version(1), "label": "second"}},
	}, snapshot.ServerFields)

	items, _ := st.ReadSnapshot("tags")
	require.Equal(t, "second", items[0].Fields["label"].Value)
	require.EqualValues(t, 0, items[0].Fields["label"].Version)
}

func TestApplyPartialUpdate_LocalFieldsModeWritesLocalFieldOnExistingItem(t *testing.T) {
	st := snapshot.New(buildTodosSchema(t))
	st.ApplyPartialUpdate(snapshot.Update{
		"todos": []map[string]any{{"id": "t", "$version": schema.Version(1), "title": "x", "done": false}},
	}, snapshot.ServerFields)

	st.ApplyPartialUpdate(snapshot.Update{
		"todos": []map[string]any{{"id": "t", "isExpanded": true}},
	}, snapshot.LocalFields)

	view := snapshot.Project(st)
	todo := view["todos"].(map[string]any)["t"].(map[string]any)
	require.Equal(t, true, todo["isExpanded"])
	require.Equal(t, "x", todo["title"], "server fields untouched by a local-fields-only write")
}

func TestApplyPartialUpdate_BothModeWritesServerAndLocalFieldsOnExistingItem(t *testing.T) {
	st := snapshot.New(buildTodosSchema(t))
	st.ApplyPartialUpdate(snapshot.Update{
		"todos": []map[string]any{{"id": "t", "$version": schema.Version(1), "title": "x", "done": false}},
	}, snapshot.ServerFields)

	st.ApplyPartialUpdate(snapshot.Update{
		"todos": []map[string]any{{"id": "t", "$version": schema.Version(2), "title": "y", "isExpanded": true}},
	}, snapshot.Both)

	view := snapshot.Project(st)
	todo := view["todos"].(map[string]any)["t"].(map[string]any)
	require.Equal(t, "y", todo["title"])
	require.Equal(t, true, todo["isExpanded"])
}

func buildProfileSchema(t *testing.T) *schema.Schema {
	s, err := schema.NewBuilder().
		Object("profile", true).
		Field("displayName").
		Local("draftBio", "").
		End().
		Build()
	require.NoError(t, err)
	return s
}

func TestApplyPartialUpdate_CreatesSingletonOnCompletePatch(t *testing.T) {
	st := snapshot.New(buildProfileSchema(t))
	st.ApplyPartialUpdate(snapshot.Update{
		"profile": map[string]any{"$version": schema.Version(1), "displayName": "Ada"},
	}, snapshot.ServerFields)

	obj, ok := st.ReadObject("profile")
	require.True(t, ok)
	require.Equal(t, "Ada", obj.Fields["displayName"].Value)

	view := snapshot.Project(st)
	profile := view["profile"].(map[string]any)
	require.Equal(t, "Ada", profile["displayName"])
	require.Equal(t, "", profile["draftBio"])
}

func TestApplyPartialUpdate_SingletonCreatedWithoutId(t *testing.T) {
	// Guards against a prior regression: isComplete once required "id" for
	// every type, which made a singleton's patch never satisfy completeness
	// since a singleton carries no id at all.
	st := snapshot.New(buildProfileSchema(t))
	st.ApplyPartialUpdate(snapshot.Update{
		"profile": map[string]any{"displayName": "Ada"}, // no $version, no id — still must create
	}, snapshot.ServerFields)

	_, ok := st.ReadObject("profile")
	require.True(t, ok, "singleton must be created from a complete patch with no id field")
}

func TestApplyPartialUpdate_SingletonLocalFieldWritableUnderLocalFieldsMode(t *testing.T) {
	st := snapshot.New(buildProfileSchema(t))
	st.ApplyPartialUpdate(snapshot.Update{
		"profile": map[string]any{"$version": schema.Version(1), "displayName": "Ada"},
	}, snapshot.ServerFields)

	st.ApplyPartialUpdate(snapshot.Update{
		"profile": map[string]any{"draftBio": "hello"},
	}, snapshot.LocalFields)

	view := snapshot.Project(st)
	profile := view["profile"].(map[string]any)
	require.Equal(t, "hello", profile["draftBio"])
	require.Equal(t, "Ada", profile["displayName"], "server field untouched by a local-fields-only write")
}

func TestProject_PreservesFieldsNotMentioned(t *testing.T) {
	st := snapshot.New(buildTodosSchema(t))
	st.ApplyPartialUpdate(snapshot.Update{
		"todos": []map[string]any{{"id": "a", "$version": schema.Version(1), "title": "A", "done": false}},
	}, snapshot.ServerFields)
	st.ApplyPartialUpdate(snapshot.Update{
		"todos": []map[string]any{{"id": "a", "$version": schema.Version(2), "title": "B"}},
	}, snapshot.ServerFields)

	items, _ := st.ReadSnapshot("todos")
	require.Equal(t, false, items[0].Fields["done"].Value, "field not mentioned in second update must survive")
}
