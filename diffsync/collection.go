package diffsync

import (
	"time"

	"github.com/driftstate/syncengine/clock"
)

// PendingState is a pending operation's position in its lifecycle: Live
// while awaiting server confirmation, then exactly one of Confirmed,
// Evicted, or Expired.
type PendingState int

const (
	Live PendingState = iota
	Confirmed
	Evicted
	Expired
)

func (s PendingState) String() string {
	switch s {
	case Live:
		return "live"
	case Confirmed:
		return "confirmed"
	case Evicted:
		return "evicted"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// PendingOp tracks one locally-applied, not-yet-confirmed operation.
type PendingOp struct {
	Op           Operation
	State        PendingState
	CreatedAt    time.Time
	LastRebaseAt time.Time
	OrderTime    time.Time
}

// ClientCollection wraps a server-state Rebaser and a view Rebaser (the
// server's state plus locally pending operations folded on top), tracking
// every locally-issued operation until the server confirms, evicts, or
// it ages out.
type ClientCollection struct {
	server *Rebaser
	view   *Rebaser
	order  *clock.Monotonic

	maxPendingAge time.Duration
	pendingByID   map[string]*PendingOp
	pendingOrder  []string // opIds, in orderTime order
}

// NewClientCollection builds an empty collection backed by clk, evicting
// pending ops older than maxPendingAge during applyServerUpdate cleanup.
func NewClientCollection(clk clock.Clock, maxPendingAge time.Duration) *ClientCollection {
	return &ClientCollection{
		server:        NewRebaser(clk),
		view:          NewRebaser(clk),
		order:         clock.NewMonotonic(clk),
		maxPendingAge: maxPendingAge,
		pendingByID:   make(map[string]*PendingOp),
	}
}

// View returns the current client-visible state: server state with every
// still-live pending op folded on top.
func (c *ClientCollection) View() map[string]map[string]any {
	return c.view.All()
}

// ServerState returns the last-known server state, with no pending
// operations applied.
func (c *ClientCollection) ServerState() map[string]map[string]any {
	return c.server.All()
}

// Pending returns a snapshot of every tracked pending operation, in
// orderTime order.
func (c *ClientCollection) Pending() []PendingOp {
	out := make([]PendingOp, 0, len(c.pendingOrder))
	for _, id := range c.pendingOrder {
		out = append(out, *c.pendingByID[id])
	}
	return out
}

// Stats is a read-only observability snapshot of the pending-op table,
// broken down by state.
type Stats struct {
	Live      int
	Confirmed int
	Evicted   int
	Expired   int
}

// Stats reports how many tracked pending ops are in each state. Confirmed/
// Evicted/Expired ops are removed from tracking within the same call that
// moves them to that state, so those three counts are always zero when
// Stats returns; only Live counts tracked ops.
func (c *ClientCollection) Stats() Stats {
	var s Stats
	for _, p := range c.pendingByID {
		switch p.State {
		case Live:
			s.Live++
		case Confirmed:
			s.Confirmed++
		case Evicted:
			s.Evicted++
		case Expired:
			s.Expired++
		}
	}
	return s
}

// ApplyLocal applies diff to the view and tracks each accepted operation
// as pending, stamping it with a strictly-increasing orderTime.
func (c *ClientCollection) ApplyLocal(ops []Operation) []DiffResult {
	results := c.view.ApplyDiff(ops)
	now := c.view.clock.Now()
	for i, res := range results {
		if !res.Accepted {
			continue
		}
		op := ops[i]
		c.trackPending(&PendingOp{
			Op:        op,
			State:     Live,
			CreatedAt: now,
			OrderTime: c.order.Next(),
		})
	}
	return results
}

// ApplyServerUpdate applies diff to the server state, confirms any pending
// op sharing an opId, evicts pending ops older than maxPendingAge, then
// rebases the view on top of the refreshed server state.
func (c *ClientCollection) ApplyServerUpdate(ops []Operation) []DiffResult {
	results := c.server.ApplyDiff(ops)
	for _, op := range ops {
		if p, ok := c.pendingByID[op.OpId]; ok {
			p.State = Confirmed
			c.removePending(op.OpId)
		}
	}
	c.expireStale()
	c.rebaseView()
	return results
}

func (c *ClientCollection) trackPending(p *PendingOp) {
	c.pendingByID[p.Op.OpId] = p
	c.pendingOrder = append(c.pendingOrder, p.Op.OpId)
}

func (c *ClientCollection) removePending(opId string) {
	delete(c.pendingByID, opId)
	kept := c.pendingOrder[:0:0]
	for _, id := range c.pendingOrder {
		if id != opId {
			kept = append(kept, id)
		}
	}
	c.pendingOrder = kept
}

func (c *ClientCollection) expireStale() {
	now := c.server.clock.Now()
	var stale []string
	for id, p := range c.pendingByID {
		if p.State == Live && now.Sub(p.CreatedAt) > c.maxPendingAge {
			p.State = Expired
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		c.removePending(id)
	}
}

// rebaseView resets the view from the server state via synthetic create
// operations, then replays every still-pending operation in orderTime
// order. Any operation that fails to rebase (its DiffResult comes back
// rejected) is evicted immediately rather than retried.
func (c *ClientCollection) rebaseView() {
	c.view = NewRebaser(c.view.clock)
	for id, e := range c.server.entries {
		c.view.ApplyDiff([]Operation{{
			OpId: "synthetic-" + id,
			Kind: OpCreate,
			Id:   id,
			Item: e.plainFields(),
		}})
	}

	now := c.view.clock.Now()
	var evicted []string
	for _, id := range c.pendingOrder {
		p := c.pendingByID[id]
		res := c.view.applyOne(p.Op)
		p.LastRebaseAt = now
		if !res.Accepted {
			p.State = Evicted
			evicted = append(evicted, id)
		}
	}
	for _, id := range evicted {
		c.removePending(id)
	}
}
