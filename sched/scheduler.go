package sched

import "sync"

// TimeSlice is how many ticks a running thread gets before Tick marks
// it for preemption (spec.md section 4.4's round-robin-among-equals
// rule).
const TimeSlice = 4

// Scheduler owns the ready list, the sleep queue, and the single
// critical-section mutex every Lock and Thread state transition in
// this package goes through.
type Scheduler struct {
	mu   sync.Mutex
	cond *sync.Cond

	ready    []*Thread
	sleeping []*Thread
	tick     uint64
	nextID   int
	nextSeq  uint64

	running  *Thread
	sliceLeft int
}

// NewScheduler creates an empty scheduler with nothing runnable.
func NewScheduler() *Scheduler {
	s := &Scheduler{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Spawn creates a new thread at the given base priority and inserts
// it into the ready list in sorted position. It does not start any
// goroutine: callers that want the thread's body to actually execute
// concurrently run it themselves (e.g. `go body(t)`), using Yield/
// Lock/Sleep to cooperate with this scheduler; Spawn only creates the
// bookkeeping record spec.md's thread_create would allocate.
func (s *Scheduler) Spawn(name string, priority int) *Thread {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	s.nextSeq++
	t := &Thread{
		ID:           s.nextID,
		Name:         name,
		basePriority: priority,
		state:        StateReady,
		seq:          s.nextSeq,
		sched:        s,
	}
	s.insertReadyLocked(t)
	return t
}

// insertReadyLocked inserts t into s.ready keeping it sorted
// descending by effective priority, ties broken by insertion order.
// Callers must hold s.mu.
func (s *Scheduler) insertReadyLocked(t *Thread) {
	s.nextSeq++
	t.seq = s.nextSeq
	pri := t.effectivePriorityLocked()
	i := 0
	for ; i < len(s.ready); i++ {
		other := s.ready[i]
		if other.effectivePriorityLocked() < pri {
			break
		}
		if other.effectivePriorityLocked() == pri && other.seq > t.seq {
			break
		}
	}
	s.ready = append(s.ready, nil)
	copy(s.ready[i+1:], s.ready[i:])
	s.ready[i] = t
}

// Ready returns a snapshot of the ready list in its current sorted
// order, highest effective priority first. Intended for tests that
// assert spec.md section 8's ready-list-is-sorted invariant.
func (s *Scheduler) Ready() []*Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Thread, len(s.ready))
	copy(out, s.ready)
	return out
}

// Running returns the thread currently marked as running, if any.
func (s *Scheduler) Running() *Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Dispatch pops the highest-priority ready thread and marks it
// running. It is the caller's job to actually resume that thread's
// execution (this package does not itself run thread bodies).
func (s *Scheduler) Dispatch() *Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ready) == 0 {
		return nil
	}
	t := s.ready[0]
	s.ready = s.ready[1:]
	t.state = StateRunning
	s.running = t
	s.sliceLeft = TimeSlice
	return t
}

// Yield returns a running thread to the ready list in sorted
// position.
func (s *Scheduler) Yield(t *Thread) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.state = StateReady
	if s.running == t {
		s.running = nil
	}
	s.insertReadyLocked(t)
}

// Sleep removes t from circulation until at least ticks timer ticks
// have elapsed, mirroring timer_sleep.
func (s *Scheduler) Sleep(t *Thread, ticks uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.state = StateSleeping
	t.wakeupTick = s.tick + ticks
	if s.running == t {
		s.running = nil
	}
	s.sleeping = append(s.sleeping, t)
}

// Exit marks t as dying; it is never reinserted anywhere.
func (s *Scheduler) Exit(t *Thread) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.state = StateDying
	if s.running == t {
		s.running = nil
	}
}

// Tick advances the simulated timer by one: sleeping threads whose
// wakeup deadline has passed move back to the ready list, and the
// running thread's time slice is decremented. Returns true if the
// running thread's slice just expired and it should yield.
func (s *Scheduler) Tick() (sliceExpired bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tick++

	remaining := s.sleeping[:0]
	for _, t := range s.sleeping {
		if t.wakeupTick <= s.tick {
			t.state = StateReady
			s.insertReadyLocked(t)
		} else {
			remaining = append(remaining, t)
		}
	}
	s.sleeping = remaining

	if s.running != nil {
		s.sliceLeft--
		if s.sliceLeft <= 0 {
			return true
		}
	}
	return false
}

// maybeYieldTo checks whether the ready list's front now outranks the
// given running thread, and if so yields it. This is the
// "preemption on unblock / priority change" rule from spec.md section
// 4.4.
func (s *Scheduler) maybeYieldTo(t *Thread) {
	s.mu.Lock()
	outranked := len(s.ready) > 0 && s.ready[0].effectivePriorityLocked() > t.effectivePriorityLocked()
	s.mu.Unlock()
	if outranked {
		s.Yield(t)
	}
}

// CurrentTick returns the scheduler's simulated tick counter.
func (s *Scheduler) CurrentTick() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}
