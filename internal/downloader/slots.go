package downloader

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	apperrors "mfpget/pkg/errors"
)

// Slot is one of the pool's fixed progress trackers. Its display fields are
// only ever mutated through the lease of the task that currently owns it.
type Slot struct {
	Index   int
	Busy    bool
	Label   string
	Total   int64
	Written int64
}

// SlotPool rations a fixed number of concurrent transfers. Admission is
// enforced by the counting semaphore; the slot list is the inspectable
// resource the semaphore is rationing. The two are kept in lock-step: a
// slot's busy flag only changes while its permit is held, under the pool
// mutex.
type SlotPool struct {
	sem   *semaphore.Weighted
	mu    sync.Mutex
	slots []Slot
}

// NewSlotPool creates a pool with the given capacity, all slots free
func NewSlotPool(capacity int) (*SlotPool, error) {
	if capacity < 1 {
		return nil, apperrors.Newf(apperrors.ErrorTypeConfig, "slot pool capacity must be positive, got %d", capacity)
	}

	slots := make([]Slot, capacity)
	for i := range slots {
		slots[i].Index = i
	}

	return &SlotPool{
		sem:   semaphore.NewWeighted(int64(capacity)),
		slots: slots,
	}, nil
}

// Acquire blocks until a permit is available, then marks a free slot busy and
// returns a lease over it. The caller must arrange for Release to run on
// every exit path, normally via defer.
func (p *SlotPool) Acquire(ctx context.Context) (*Lease, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.slots {
		if !p.slots[i].Busy {
			p.slots[i].Busy = true
			p.slots[i].Label = ""
			p.slots[i].Total = 0
			p.slots[i].Written = 0
			return &Lease{pool: p, index: i}, nil
		}
	}

	// Unreachable: a held permit guarantees a free slot.
	panic("downloader: slot pool permit held but no free slot")
}

// Capacity returns the fixed number of slots
func (p *SlotPool) Capacity() int {
	return len(p.slots)
}

// BusyCount returns how many slots are currently marked busy
func (p *SlotPool) BusyCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for i := range p.slots {
		if p.slots[i].Busy {
			n++
		}
	}
	return n
}

// Snapshot copies the current slot states for display purposes
func (p *SlotPool) Snapshot() []Slot {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Slot, len(p.slots))
	copy(out, p.slots)
	return out
}

// Lease is the capability returned by Acquire: the admission permit paired
// with the index of the slot it owns. Exchanging it back via Release is the
// only way to free the slot.
type Lease struct {
	pool  *SlotPool
	index int
	once  sync.Once
}

// Index returns the owned slot's stable index
func (l *Lease) Index() int {
	return l.index
}

// Update overwrites the owned slot's display fields. Never blocks and never
// fails; the lease guarantees the index is valid.
func (l *Lease) Update(label string, total, written int64) {
	l.pool.mu.Lock()
	s := &l.pool.slots[l.index]
	s.Label = label
	s.Total = total
	s.Written = written
	l.pool.mu.Unlock()
}

// Advance adds n to the owned slot's written count
func (l *Lease) Advance(n int64) {
	l.pool.mu.Lock()
	l.pool.slots[l.index].Written += n
	l.pool.mu.Unlock()
}

// Release marks the slot free and returns the permit. Safe to call more than
// once; only the first call has any effect, so deferred and explicit releases
// can coexist without shrinking capacity.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.pool.mu.Lock()
		l.pool.slots[l.index].Busy = false
		l.pool.sem.Release(1)
		l.pool.mu.Unlock()
	})
}
