package schema

import "fmt"

// Builder constructs an immutable Schema, validating eagerly as each type
// and field is declared (rest-layer's Schema.Compile eager-validation
// shape, applied at declaration time instead of after the fact).
type Builder struct {
	types     map[string]*Type
	typeOrder []string
	mutations map[string]MutationHandler
	err       *SchemaError
}

// NewBuilder starts an empty schema.
func NewBuilder() *Builder {
	return &Builder{
		types:     make(map[string]*Type),
		mutations: make(map[string]MutationHandler),
	}
}

// Collection declares a keyed collection type.
func (b *Builder) Collection(name string, versioned bool) *TypeBuilder {
	return b.declare(name, Collection, versioned)
}

// Object declares a singleton object type.
func (b *Builder) Object(name string, versioned bool) *TypeBuilder {
	return b.declare(name, Object, versioned)
}

func (b *Builder) declare(name string, kind EntityKind, versioned bool) *TypeBuilder {
	if b.err != nil {
		return &TypeBuilder{b: b}
	}
	if _, exists := b.types[name]; exists {
		b.fail(name, "type already declared")
		return &TypeBuilder{b: b}
	}
	t := &Type{Name: name, Kind: kind, Versioned: versioned, Fields: make(map[string]FieldDef)}
	b.types[name] = t
	b.typeOrder = append(b.typeOrder, name)
	return &TypeBuilder{b: b, t: t}
}

func (b *Builder) fail(path, reason string) {
	if b.err == nil {
		b.err = &SchemaError{Path: path, Reason: reason}
	}
}

// WithMutations registers named mutation handlers. A name reused across
// calls (or already registered) fails the build.
func (b *Builder) WithMutations(handlers map[string]MutationHandler) *Builder {
	if b.err != nil {
		return b
	}
	for name, h := range handlers {
		if _, exists := b.mutations[name]; exists {
			b.fail(name, "mutation name already registered")
			return b
		}
		b.mutations[name] = h
	}
	return b
}

// Build validates cross-type references and returns the immutable Schema,
// or the first SchemaError encountered.
func (b *Builder) Build() (*Schema, error) {
	if b.err != nil {
		return nil, b.err
	}
	for name, t := range b.types {
		for fname, f := range t.Fields {
			if f.Kind == KindReference {
				if _, ok := b.types[f.ReferencedCollection]; !ok {
					return nil, &SchemaError{
						Path:   fmt.Sprintf("%s.%s", name, fname),
						Reason: fmt.Sprintf("references undeclared collection %q", f.ReferencedCollection),
					}
				}
			}
		}
	}
	return &Schema{
		types:     b.types,
		typeOrder: append([]string(nil), b.typeOrder...),
		mutations: b.mutations,
	}, nil
}

// TypeBuilder adds fields to the Type it was created for.
type TypeBuilder struct {
	b *Builder
	t *Type
}

// Field declares a regular, server-synchronized field.
func (tb *TypeBuilder) Field(name string) *TypeBuilder {
	return tb.add(FieldDef{Name: name, Kind: KindRegular})
}

// Local declares a client-only field with the given default value.
func (tb *TypeBuilder) Local(name string, def any) *TypeBuilder {
	return tb.add(FieldDef{Name: name, Kind: KindLocal, Default: def})
}

// Reference declares a foreign-key field targeting the named collection.
func (tb *TypeBuilder) Reference(name, collection string, nullable bool) *TypeBuilder {
	return tb.add(FieldDef{
		Name:                 name,
		Kind:                 KindReference,
		ReferencedCollection: collection,
		Nullable:             nullable,
	})
}

func (tb *TypeBuilder) add(f FieldDef) *TypeBuilder {
	if tb.b.err != nil || tb.t == nil {
		return tb
	}
	if reservedNames[f.Name] {
		tb.b.fail(fmt.Sprintf("%s.%s", tb.t.Name, f.Name), "reserved field name")
		return tb
	}
	if _, exists := tb.t.Fields[f.Name]; exists {
		tb.b.fail(fmt.Sprintf("%s.%s", tb.t.Name, f.Name), "field already declared")
		return tb
	}
	tb.t.Fields[f.Name] = f
	tb.t.order = append(tb.t.order, f.Name)
	return tb
}

// End returns to the Builder, for chaining multiple type declarations.
func (tb *TypeBuilder) End() *Builder {
	return tb.b
}
