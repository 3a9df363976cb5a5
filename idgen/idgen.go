// Package idgen provides example implementations of the ID-generation
// collaborator kept external to the core: the engine only ever consumes
// an IDGenerator, never a concrete strategy.
package idgen

import (
	"io"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/driftstate/syncengine/clock"
	"github.com/driftstate/syncengine/schema"
)

// Generator produces opaque, collision-resistant identifiers for items,
// operations, and mutations. The core treats the result as an opaque
// string; it never parses or orders by it.
type Generator interface {
	NewItemId() schema.ItemId
	NewOperationId() schema.OperationId
	NewMutationId() schema.MutationId
}

// UUID generates RFC 4122 v4 identifiers.
type UUID struct{}

func (UUID) NewItemId() schema.ItemId           { return schema.ItemId(uuid.NewString()) }
func (UUID) NewOperationId() schema.OperationId { return schema.OperationId(uuid.NewString()) }
func (UUID) NewMutationId() schema.MutationId   { return schema.MutationId(uuid.NewString()) }

// ULID generates lexicographically sortable, monotonic identifiers backed
// by an injected clock.Clock.
type ULID struct {
	clk     clock.Clock
	entropy io.Reader
}

// NewULID builds a ULID generator whose timestamps come from clk.
func NewULID(clk clock.Clock) *ULID {
	return &ULID{clk: clk, entropy: ulid.Monotonic(ulidEntropySource{clk}, 0)}
}

func (g *ULID) new() string {
	ts := ulid.Timestamp(g.clk.Now())
	return ulid.MustNew(ts, g.entropy).String()
}

func (g *ULID) NewItemId() schema.ItemId           { return schema.ItemId(g.new()) }
func (g *ULID) NewOperationId() schema.OperationId { return schema.OperationId(g.new()) }
func (g *ULID) NewMutationId() schema.MutationId   { return schema.MutationId(g.new()) }

// ulidEntropySource adapts a clock.Clock to an io.Reader of pseudo-random
// bytes seeded by the clock's nanosecond value, so ULID's monotonic reader
// remains deterministic under a fake clock in tests.
type ulidEntropySource struct {
	clk clock.Clock
}

func (e ulidEntropySource) Read(p []byte) (int, error) {
	seed := uint64(e.clk.Now().UnixNano())
	for i := range p {
		seed = seed*6364136223846793005 + 1442695040888963407
		p[i] = byte(seed >> 56)
	}
	return len(p), nil
}
