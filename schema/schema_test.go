package schema_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/driftstate/syncengine/schema"
)

func TestBuilder_ValidSchema(t *testing.T) {
	s, err := schema.NewBuilder().
		Collection("todos", true).
		Field("title").
		Local("isExpanded", false).
		Reference("assignee", "users", true).
		End().
		Collection("users", false).
		Field("name").
		End().
		Build()
	require.NoError(t, err)

	todos := s.Type("todos")
	require.NotNil(t, todos)
	require.True(t, todos.Versioned)
	require.Len(t, todos.NonLocalFields(), 2)
	require.Len(t, todos.LocalFields(), 1)
}

func TestBuilder_ReservedFieldName(t *testing.T) {
	_, err := schema.NewBuilder().
		Collection("todos", true).
		Field("id").
		End().
		Build()
	var se *schema.SchemaError
	require.ErrorAs(t, err, &se)
}

func TestBuilder_DollarVersionReserved(t *testing.T) {
	_, err := schema.NewBuilder().
		Object("settings", true).
		Field("$version").
		End().
		Build()
	require.Error(t, err)
}

func TestBuilder_UnknownReference(t *testing.T) {
	_, err := schema.NewBuilder().
		Collection("todos", true).
		Reference("assignee", "users", true).
		End().
		Build()
	var se *schema.SchemaError
	require.ErrorAs(t, err, &se)
	require.Contains(t, se.Reason, "undeclared collection")
}

func TestBuilder_DuplicateMutationName(t *testing.T) {
	noop := func(draft map[string]any, input any) (map[string]any, error) { return draft, nil }
	_, err := schema.NewBuilder().
		Collection("todos", true).
		Field("title").
		End().
		WithMutations(map[string]schema.MutationHandler{"createTodo": noop}).
		WithMutations(map[string]schema.MutationHandler{"createTodo": noop}).
		Build()
	require.Error(t, err)
}

func TestBuilder_DuplicateTypeName(t *testing.T) {
	_, err := schema.NewBuilder().
		Collection("todos", true).
		End().
		Collection("todos", false).
		End().
		Build()
	require.Error(t, err)
}

func TestVersion_Equal(t *testing.T) {
	v := schema.Version(5)
	require.True(t, v.Equal(5))
	require.True(t, v.Equal(int64(5)))
	require.True(t, v.Equal(uint64(5)))
	require.False(t, v.Equal(6))
	require.False(t, v.Equal("5"))
}
