package sched

import (
	"context"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

// TestPriorityDonationRaisesHolder mirrors spec.md section 8's
// concrete scenario 1: a thread at priority 31 blocks on a lock held
// by a thread at priority 20; the holder's effective priority rises
// to 31 for as long as it holds the lock, and drops back to 20 once
// released.
func TestPriorityDonationRaisesHolder(t *testing.T) {
	s := NewScheduler()
	low := s.Spawn("low", 20)
	high := s.Spawn("high", 31)

	l := NewLock(s, "L")
	l.Acquire(low)

	if got := low.EffectivePriority(); got != 20 {
		t.Fatalf("low priority before contention = %d, want 20", got)
	}

	acquired := make(chan struct{})
	go func() {
		l.Acquire(high)
		close(acquired)
	}()
	waitUntil(t, func() bool { return high.State() == StateBlocked })

	if got := low.EffectivePriority(); got != 31 {
		t.Fatalf("low effective priority while donated to = %d, want 31", got)
	}

	l.Release(low)
	<-acquired

	if l.Holder() != high {
		t.Fatalf("lock holder after release = %v, want high", l.Holder())
	}
	if got := low.EffectivePriority(); got != 20 {
		t.Fatalf("low effective priority after release = %d, want 20", got)
	}
	l.Release(high)
}

// TestDonationChainDepthCapped checks spec.md section 4.4's bound:
// priority donation propagates through up to 8 nested lock holders;
// a 9th nesting level does not raise the root holder any further.
//
// Builds an 8-hop chain (threads[0..7] each holding locks[0..7],
// threads[1..8] each blocked on the lock one level down), confirming
// every holder in it is raised, then extends to a 9th nesting level
// and confirms the root holder's priority is unchanged by that last
// hop.
func TestDonationChainDepthCapped(t *testing.T) {
	s := NewScheduler()
	const levels = 8
	threads := make([]*Thread, levels+2)
	locks := make([]*Lock, levels+1)
	for i := range threads {
		threads[i] = s.Spawn("t", 10+i)
	}
	for i := range locks {
		locks[i] = NewLock(s, "L")
	}

	for i := 0; i <= levels; i++ {
		locks[i].Acquire(threads[i])
	}
	for i := 0; i < levels; i++ {
		go locks[i].Acquire(threads[i+1])
		waitUntil(t, func() bool { return threads[i+1].State() == StateBlocked })
	}

	donor := threads[levels]
	want := donor.EffectivePriority()
	for i := 0; i < levels; i++ {
		if got := threads[i].EffectivePriority(); got != want {
			t.Fatalf("threads[%d] effective priority = %d, want %d (8-level donation)", i, got, want)
		}
	}

	rootBefore := threads[0].EffectivePriority()
	go locks[levels].Acquire(threads[levels+1])
	waitUntil(t, func() bool { return threads[levels+1].State() == StateBlocked })

	if got := threads[0].EffectivePriority(); got != rootBefore {
		t.Fatalf("root holder effective priority changed after a 9th nesting level: %d -> %d", rootBefore, got)
	}
}

// TestReadyListStaysSorted asserts the ready list invariant from
// spec.md section 8: sorted descending by effective priority at every
// observation point.
func TestReadyListStaysSorted(t *testing.T) {
	s := NewScheduler()
	s.Spawn("a", 10)
	s.Spawn("b", 30)
	s.Spawn("c", 20)
	s.Spawn("d", 30)

	ready := s.Ready()
	for i := 1; i < len(ready); i++ {
		if ready[i-1].EffectivePriority() < ready[i].EffectivePriority() {
			t.Fatalf("ready list not sorted: %v", priorities(ready))
		}
	}
	if ready[0].EffectivePriority() != 30 {
		t.Fatalf("front of ready list = %d, want 30", ready[0].EffectivePriority())
	}
}

func TestSleepWakesOnDeadlineTick(t *testing.T) {
	s := NewScheduler()
	th := s.Spawn("sleeper", 10)
	s.Dispatch() // th becomes running
	s.Sleep(th, 3)

	for i := 0; i < 2; i++ {
		s.Tick()
		if th.State() != StateSleeping {
			t.Fatalf("thread woke early at tick %d", i+1)
		}
	}
	s.Tick()
	if th.State() != StateReady {
		t.Fatalf("thread state after deadline = %v, want ready", th.State())
	}
}

func TestDispatchPicksHighestPriority(t *testing.T) {
	s := NewScheduler()
	s.Spawn("low", 10)
	high := s.Spawn("high", 40)

	got := s.Dispatch()
	if got != high {
		t.Fatalf("Dispatch picked %s, want high", got.Name)
	}
	if got.State() != StateRunning {
		t.Fatalf("dispatched thread state = %v, want running", got.State())
	}
}

func priorities(ts []*Thread) []int {
	out := make([]int, len(ts))
	for i, t := range ts {
		out[i] = t.EffectivePriority()
	}
	return out
}

// TestManyThreadsHammerOneLockViaErrgroup drives a few dozen threads at
// mixed priorities through the same lock concurrently, grounded on the
// teacher's own use of golang.org/x/sync/errgroup to fan out and join
// concurrent workers in its test suite. The lock's critical section is
// a plain, unsynchronized increment, so a single corrupted count on
// exit would mean the donation/mutual-exclusion bookkeeping let two
// holders run it at once.
func TestManyThreadsHammerOneLockViaErrgroup(t *testing.T) {
	const threads = 32
	const itersPerThread = 50

	s := NewScheduler()
	l := NewLock(s, "hammer")
	counter := 0

	var g errgroup.Group
	for i := 0; i < threads; i++ {
		priority := 10 + i%20
		g.Go(func() error {
			me := s.Spawn("worker", priority)
			for j := 0; j < itersPerThread; j++ {
				l.Acquire(me)
				counter++
				l.Release(me)
			}
			s.Exit(me)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("errgroup.Wait: %v", err)
	}

	if want := threads * itersPerThread; counter != want {
		t.Fatalf("counter = %d, want %d (lock let concurrent holders through)", counter, want)
	}
	if l.Holder() != nil {
		t.Fatalf("lock should be free after every worker released it")
	}
}

// TestContextCanceledRendezvousUnblocksWait exercises Rendezvous.Down
// against a canceled context, mirroring errgroup.WithContext's pattern
// of propagating cancellation to every still-running goroutine.
func TestContextCanceledRendezvousUnblocksWait(t *testing.T) {
	r := NewRendezvous(0)
	ctx, cancel := context.WithCancel(context.Background())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.Down(ctx)
	})
	cancel()

	if err := g.Wait(); err == nil {
		t.Fatalf("expected Down to return an error once its context was canceled")
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
