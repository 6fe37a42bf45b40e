// Package slot provides the fixed-capacity worker registry that bounds how
// many workers an orchestration run may have in flight.
package slot

import (
	"sort"
	"sync"
	"time"
)

// Process is the handle to a running worker held by a slot.
type Process interface {
	Kill()
}

// AgentSlot describes the worker occupying a slot.
type AgentSlot struct {
	StepID    string
	SessionID string // empty when no session has been captured yet
	Role      string
	Process   Process
	StartedAt time.Time
}

// Active pairs an occupied slot index with its occupant.
type Active struct {
	Index int
	Slot  AgentSlot
}

// Pool maps slot indexes in [0, capacity) to occupying workers. It holds no
// knowledge of steps; it is the single source of truth for the concurrency
// bound. It is safe for concurrent use.
type Pool struct {
	mu       sync.RWMutex
	capacity int
	slots    map[int]AgentSlot
}

// New creates an empty Pool with the given capacity. A capacity below one is
// treated as one.
func New(capacity int) *Pool {
	if capacity < 1 {
		capacity = 1
	}
	return &Pool{
		capacity: capacity,
		slots:    make(map[int]AgentSlot, capacity),
	}
}

// Capacity returns the number of slots in the pool.
func (p *Pool) Capacity() int {
	return p.capacity
}

// Acquire returns the lowest empty slot index, or false if every slot is
// occupied. Acquire does not reserve the slot; call Assign to occupy it.
func (p *Pool) Acquire() (int, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for i := 0; i < p.capacity; i++ {
		if _, ok := p.slots[i]; !ok {
			return i, true
		}
	}
	return 0, false
}

// Assign places s in slot index, replacing any current occupant.
// Indexes outside [0, capacity) are ignored.
func (p *Pool) Assign(index int, s AgentSlot) {
	if index < 0 || index >= p.capacity {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.slots[index] = s
}

// Release empties the slot. It returns true whether or not the slot was
// occupied.
func (p *Pool) Release(index int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.slots, index)
	return true
}

// Get returns the occupant of a slot.
func (p *Pool) Get(index int) (AgentSlot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.slots[index]
	return s, ok
}

// Len returns the number of occupied slots.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.slots)
}

// ListActive returns the occupied slots in index order.
func (p *Pool) ListActive() []Active {
	p.mu.RLock()
	out := make([]Active, 0, len(p.slots))
	for i, s := range p.slots {
		out = append(out, Active{Index: i, Slot: s})
	}
	p.mu.RUnlock()

	sort.Slice(out, func(a, b int) bool { return out[a].Index < out[b].Index })
	return out
}

// KillAll kills every occupying process and empties the pool.
func (p *Pool) KillAll() {
	p.mu.Lock()
	slots := p.slots
	p.slots = make(map[int]AgentSlot, p.capacity)
	p.mu.Unlock()

	for _, s := range slots {
		if s.Process != nil {
			s.Process.Kill()
		}
	}
}
