package vm

import "testing"

func TestHandleFaultMissingStackGrowth(t *testing.T) {
	as, _, _, _ := newTestEnv(t, 4, 4)
	addr := as.StackBottom - 16 // 16 bytes below the bottom, inside the page below it
	rsp := addr
	if err := as.HandleFault(addr, true, false, rsp); err != nil {
		t.Fatalf("HandleFault: %v", err)
	}
	page, ok := as.Lookup(addr)
	if !ok {
		t.Fatalf("expected stack page installed at %#x", pageAlignDown(addr))
	}
	if !page.Flags.has(FlagStack) || !page.Flags.has(FlagFrame) {
		t.Fatalf("flags = %v, want Stack|Frame set", page.Flags)
	}
	if as.StackBottom != pageAlignDown(addr) {
		t.Fatalf("StackBottom = %#x, want %#x", as.StackBottom, pageAlignDown(addr))
	}
}

func TestHandleFaultStackGrowthRejectsFarRSP(t *testing.T) {
	as, _, _, _ := newTestEnv(t, 4, 4)
	addr := as.StackBottom - 16
	rsp := addr - 10*PageSize
	if err := as.HandleFault(addr, true, false, rsp); err != ErrKillProcess {
		t.Fatalf("HandleFault = %v, want ErrKillProcess", err)
	}
}

func TestHandleFaultStackGrowthCapped(t *testing.T) {
	as, _, _, _ := newTestEnv(t, 4, 4)
	as.stackTop = 2 * StackGrowLimit
	as.StackBottom = StackGrowLimit // already at the cap; one more page must be refused
	addr := as.StackBottom - 16
	rsp := addr
	if err := as.HandleFault(addr, true, false, rsp); err != ErrKillProcess {
		t.Fatalf("HandleFault = %v, want ErrKillProcess at cap", err)
	}
}

func TestHandleFaultMissingNoMappingKills(t *testing.T) {
	as, _, _, _ := newTestEnv(t, 4, 4)
	if err := as.HandleFault(0x1000, false, false, 0x1000); err != ErrKillProcess {
		t.Fatalf("HandleFault = %v, want ErrKillProcess", err)
	}
}

func TestHandleFaultPresentWriteWithoutCPWriteKills(t *testing.T) {
	as, _, _, _ := newTestEnv(t, 4, 4)
	p := mustAnonPage(t, as, 0x2000)
	if err := as.HandleFault(0x2000, true, true, 0); err != ErrKillProcess {
		t.Fatalf("HandleFault = %v, want ErrKillProcess", err)
	}
	_ = p
}

func TestHandleFaultClaimsLazyPage(t *testing.T) {
	as, frames, _, _ := newTestEnv(t, 4, 4)
	ranInit := false
	_, err := as.AllocPageWithInitializer(0x3000, FlagAnon|FlagWritable, func(p *Page) (Variant, error) {
		ranInit = true
		return &anonVariant{swapSlot: -1}, nil
	}, nil)
	if err != nil {
		t.Fatalf("AllocPageWithInitializer: %v", err)
	}
	before := frames.FreeCount()
	if err := as.HandleFault(0x3000, false, false, 0); err != nil {
		t.Fatalf("HandleFault: %v", err)
	}
	if !ranInit {
		t.Fatalf("expected uninit initializer to run")
	}
	if frames.FreeCount() != before-1 {
		t.Fatalf("FreeCount = %d, want %d", frames.FreeCount(), before-1)
	}
	page, ok := as.Lookup(0x3000)
	if !ok || !page.Flags.has(FlagFrame) {
		t.Fatalf("expected claimed page with FlagFrame set")
	}
}

func TestCopyOnWriteAloneJustUnlocksWrite(t *testing.T) {
	as, frames, _, _ := newTestEnv(t, 4, 4)
	p := mustAnonPage(t, as, 0x4000)
	p.Flags &^= FlagWritable
	p.Flags |= FlagCPWrite

	before := frames.FreeCount()
	if err := as.HandleFault(0x4000, true, true, 0); err != nil {
		t.Fatalf("HandleFault: %v", err)
	}
	if !p.Flags.has(FlagWritable) {
		t.Fatalf("expected writable after solo COW")
	}
	if p.Flags.has(FlagCPWrite) {
		t.Fatalf("expected CPWrite cleared")
	}
	if frames.FreeCount() != before {
		t.Fatalf("solo COW must not allocate a new frame")
	}
}

func TestCopyOnWriteSharedAllocatesNewFrame(t *testing.T) {
	parent, frames, _, _ := newTestEnv(t, 4, 4)
	pp := mustAnonPage(t, parent, 0x5000)
	pp.Frame.Data[0] = 0xAB

	child, err := Fork(parent)
	if err != nil {
		t.Fatalf("Fork: %v", err)
	}
	cp, ok := child.Lookup(0x5000)
	if !ok {
		t.Fatalf("expected forked page in child")
	}
	if !pp.Flags.has(FlagCPWrite) || !cp.Flags.has(FlagCPWrite) {
		t.Fatalf("expected CPWrite set on both copies after fork")
	}
	if pp.Ring.Len() != 2 {
		t.Fatalf("ring length = %d, want 2", pp.Ring.Len())
	}

	before := frames.FreeCount()
	if err := parent.HandleFault(0x5000, true, true, 0); err != nil {
		t.Fatalf("parent HandleFault: %v", err)
	}
	if frames.FreeCount() != before-1 {
		t.Fatalf("expected one new frame allocated for COW, FreeCount = %d", frames.FreeCount())
	}
	if pp.Frame.Data[0] != 0xAB {
		t.Fatalf("expected parent's copied frame to retain its data")
	}
	if cpFrame := cp.residentFrame(); cpFrame == nil || cpFrame.Data[0] != 0xAB {
		t.Fatalf("expected child's original frame untouched")
	}
	if pp.Ring.Len() != 1 {
		t.Fatalf("parent should be alone in its ring after COW detach")
	}
}
