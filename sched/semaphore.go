package sched

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Rendezvous is a counting semaphore used for fork/wait
// synchronization between a parent and its children: the parent downs
// it once per outstanding child, each child ups it exactly once (on
// normal exit or on being killed), so a parent blocked in wait wakes
// exactly when the count it's waiting on is satisfied.
//
// semaphore.Weighted is sized for a bounded pool; a counting
// semaphore here has no natural bound, so the pool is given a large
// fixed capacity and initial is simulated by pre-acquiring the
// difference, leaving exactly initial units available.
const rendezvousCapacity = 1 << 30

type Rendezvous struct {
	sem *semaphore.Weighted
}

// NewRendezvous creates a semaphore with the given initial count.
func NewRendezvous(initial int64) *Rendezvous {
	r := &Rendezvous{sem: semaphore.NewWeighted(rendezvousCapacity)}
	if initial < rendezvousCapacity {
		_ = r.sem.Acquire(context.Background(), rendezvousCapacity-initial)
	}
	return r
}

// Down blocks until a unit is available.
func (r *Rendezvous) Down(ctx context.Context) error {
	return r.sem.Acquire(ctx, 1)
}

// Up releases one unit.
func (r *Rendezvous) Up() {
	r.sem.Release(1)
}
