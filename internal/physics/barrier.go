package physics

import "sync"

// Barrier is a reusable rendezvous point for a fixed team of
// goroutines. All parties block in Await until the last one arrives,
// at which point the barrier resets for the next cycle.
type Barrier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	parties int
	waiting int
	phase   uint64
}

// NewBarrier creates a barrier for the given number of parties.
func NewBarrier(parties int) *Barrier {
	if parties < 1 {
		panic("physics: barrier needs at least one party")
	}
	b := &Barrier{parties: parties}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Parties returns the number of goroutines the barrier synchronizes.
func (b *Barrier) Parties() int { return b.parties }

// Await blocks until all parties have arrived. The last goroutine to
// arrive runs the serial action, if any, before the others are
// released. Returns true on the goroutine that arrived last.
func (b *Barrier) Await(serial func()) bool {
	b.mu.Lock()
	b.waiting++
	if b.waiting == b.parties {
		if serial != nil {
			serial()
		}
		b.waiting = 0
		b.phase++
		b.cond.Broadcast()
		b.mu.Unlock()
		return true
	}
	phase := b.phase
	for phase == b.phase {
		b.cond.Wait()
	}
	b.mu.Unlock()
	return false
}

// Wait blocks until all parties have arrived.
func (b *Barrier) Wait() {
	b.Await(nil)
}
