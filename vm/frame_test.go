package vm

import "testing"

func TestClockEvictionSkipsAccessedThenEvicts(t *testing.T) {
	as, frames, _, _ := newTestEnv(t, 2, 4)
	// GetFrame hands out free frames from the end of the free list, so
	// allocating p1 first puts p0 in frame 0, the clock hand's first stop.
	p1 := mustAnonPage(t, as, 0xB000)
	p0 := mustAnonPage(t, as, 0xA000)
	frames.MarkAccessed(p0.Frame)

	// Pool is full (2/2). A third allocation must evict exactly one
	// page: p0 gets a second chance (accessed), p1 does not.
	p2, err := as.InstallAnon(0xC000, FlagWritable)
	if err != nil {
		t.Fatalf("InstallAnon: %v", err)
	}
	f := frames.GetFrame()
	p2.Frame = f
	f.Owner = p2
	p2.Flags |= FlagFrame

	if p0.Frame == nil {
		t.Fatalf("p0 should have survived eviction via its second chance")
	}
	if p1.Frame != nil || p1.Flags.has(FlagFrame) {
		t.Fatalf("p1 should have been evicted")
	}
	if !p1.Flags.has(FlagNoSwap) {
		t.Fatalf("a clean anon page evicted without dirty data should be marked NoSwap")
	}
}

func TestAnonSwapOutThenInRoundTripViaEviction(t *testing.T) {
	as, _, _, _ := newTestEnv(t, 1, 4)
	p := mustAnonPage(t, as, 0xD000)
	p.Frame.Data[0] = 0x42
	p.Flags |= FlagDirty

	if _, err := as.InstallAnon(0xE000, FlagWritable); err != nil {
		t.Fatalf("InstallAnon: %v", err)
	}
	// The pool has only one frame; claiming the second page forces the
	// clock algorithm to evict p and hand its frame to the newcomer.
	if err := as.HandleFault(0xE000, false, false, 0); err != nil {
		t.Fatalf("HandleFault (evict p): %v", err)
	}
	if p.Frame != nil {
		t.Fatalf("expected p's frame cleared after eviction")
	}
	av := p.Variant.(*anonVariant)
	if av.swapSlot < 0 {
		t.Fatalf("expected a swap slot recorded after dirty eviction")
	}

	// Reclaiming p now forces eviction of the page that took its place.
	if err := as.HandleFault(0xD000, false, false, 0); err != nil {
		t.Fatalf("HandleFault (reclaim p): %v", err)
	}
	if p.Frame == nil || p.Frame.Data[0] != 0x42 {
		t.Fatalf("expected p's original byte restored after swap-in round trip")
	}
	if av.swapSlot != -1 {
		t.Fatalf("expected swap slot freed after swap in")
	}
}
