package vm

import "errors"

// StackGrowLimit caps how far the stack may grow below its initial
// bottom, per spec.md section 4.7's "1 MiB cap".
const StackGrowLimit = 1 << 20

// ErrKillProcess signals the fault was not resolvable and, in a real
// kernel, would terminate the faulting process.
var ErrKillProcess = errors.New("vm: unresolvable page fault")

// HandleFault implements the decision tree from spec.md section 4.7.
// addr is the faulting address, write reports whether the access was
// a write, present reports whether the page table entry was marked
// present, and rsp is the thread's user stack pointer at the time of
// the fault (used to validate stack-growth faults that originate from
// a syscall, where the hardware-reported stack pointer is stale).
func (as *AddressSpace) HandleFault(addr uint64, write, present bool, rsp uint64) error {
	va := pageAlignDown(addr)

	if !present {
		if page, ok := as.Lookup(va); ok {
			return as.claim(page)
		}
		if as.isStackGrowth(addr, rsp) {
			return as.growStack(va)
		}
		return ErrKillProcess
	}

	page, ok := as.Lookup(va)
	if !ok {
		return ErrKillProcess
	}
	if write && page.Flags.has(FlagCPWrite) {
		return as.copyOnWrite(page)
	}
	return ErrKillProcess
}

// isStackGrowth reports whether a missing-page fault one page below
// the stack's current bottom, with a stack-pointer close to that
// bottom, should be treated as legitimate stack growth.
func (as *AddressSpace) isStackGrowth(addr, rsp uint64) bool {
	if addr < as.StackBottom-PageSize || addr >= as.StackBottom {
		return false
	}
	// A real CPU allows the fault address to trail rsp by a small,
	// architecture-defined margin (e.g. x86's PUSH writes below rsp
	// before decrementing it); this simulation accepts any rsp from
	// addr up to, but not including, addr+2*PageSize.
	if rsp < addr || rsp >= addr+2*PageSize {
		return false
	}
	return true
}

func (as *AddressSpace) growStack(va uint64) error {
	if as.stackTop-va > StackGrowLimit {
		return ErrKillProcess
	}
	page, err := as.InstallAnon(va, FlagStack|FlagWritable)
	if err != nil {
		return err
	}
	frame := as.Frames.GetFrame()
	page.Frame = frame
	frame.Owner = page
	as.mu.Lock()
	as.StackBottom = va
	as.mu.Unlock()
	return page.Variant.SwapIn(page)
}

// claim is vm_do_claim_page: ensure page has a frame, then bring its
// contents in (running the UNINIT initializer first if needed).
//
// A page can already be resident when this runs without being this
// page's own representative: after fork, a swapped-out page is
// spliced into its sibling's sharer ring, so if the sibling already
// faulted it back in, page.residentFrame() finds that frame even
// though page.Frame itself is still nil. In that case the contents
// are already loaded; there is nothing left to claim but marking this
// page present too.
func (as *AddressSpace) claim(page *Page) error {
	if page.residentFrame() != nil {
		page.Flags |= FlagFrame
		return nil
	}
	frame := as.Frames.GetFrame()
	page.Frame = frame
	frame.Owner = page
	return page.Variant.SwapIn(page)
}

// copyOnWrite implements spec.md section 4.7 case 3.
func (as *AddressSpace) copyOnWrite(page *Page) error {
	page.Flags &^= FlagCPWrite
	page.Flags |= FlagDirty

	if page.isAlone() {
		page.Flags |= FlagWritable
		return nil
	}

	oldFrame := page.residentFrame()
	page.detach()

	newFrame := as.Frames.GetFrame()
	newFrame.Data = oldFrame.Data
	page.Frame = newFrame
	newFrame.Owner = page
	page.Flags |= FlagWritable | FlagFrame
	return nil
}
