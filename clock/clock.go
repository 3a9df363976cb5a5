// Package clock supplies the engine's only notion of "now": a thin
// indirection over github.com/jonboulle/clockwork so tests can drive time
// deterministically, including backward, to exercise the monotonic
// ordering guarantees mutation/diffsync timestamps depend on.
package clock

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock is the narrow interface the rest of the engine depends on.
type Clock interface {
	Now() time.Time
}

// Real returns a Clock backed by the system clock.
func Real() Clock {
	return realClock{clockwork.NewRealClock()}
}

type realClock struct{ clockwork.Clock }

func (r realClock) Now() time.Time { return r.Clock.Now() }

// NewFake returns a Clock seeded at the given time, advanceable by tests via
// the returned clockwork.FakeClock (Advance/Set), including backward.
func NewFake(at time.Time) (Clock, clockwork.FakeClock) {
	fc := clockwork.NewFakeClockAt(at)
	return fakeClock{fc}, fc
}

type fakeClock struct{ clockwork.FakeClock }

func (f fakeClock) Now() time.Time { return f.FakeClock.Now() }

// Monotonic wraps a Clock and hands out strictly increasing timestamps
// even when the underlying clock's Now() repeats or moves backward — the
// property diffsync.ClientCollection needs for its orderTime counter.
type Monotonic struct {
	mu      sync.Mutex
	base    Clock
	lastNs  int64
	counter int64
}

// NewMonotonic wraps base.
func NewMonotonic(base Clock) *Monotonic {
	return &Monotonic{base: base}
}

// Next returns a timestamp strictly greater (in nanoseconds) than every
// previous value returned by this Monotonic, regardless of what base.Now()
// reports.
func (m *Monotonic) Next() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.base.Now().UnixNano()
	if now <= m.lastNs {
		m.counter++
		now = m.lastNs + 1
	} else {
		m.counter = 0
	}
	m.lastNs = now
	return time.Unix(0, now)
}
