package vm

// forEachSharer calls fn for p and every other page in its sharer
// ring.
func forEachSharer(p *Page, fn func(*Page)) {
	fn(p)
	for cur := p.Ring.Next(); cur != p.Ring; cur = cur.Next() {
		fn(cur.Value.(*Page))
	}
}

func zero(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}

// anonVariant implements the ANON page class from spec.md section
// 4.6.
type anonVariant struct {
	swapSlot int // -1 if none
}

func (v *anonVariant) SwapIn(p *Page) error {
	frame := p.Frame
	switch {
	case p.Flags.has(FlagNoSwap):
		zero(frame.Data[:])
		p.Flags &^= FlagNoSwap
	case v.swapSlot >= 0:
		if err := p.AS.Swap.Read(v.swapSlot, frame.Data[:]); err != nil {
			return err
		}
		if err := p.AS.Swap.Free(v.swapSlot); err != nil {
			return err
		}
		// Every sharer's own anonVariant carries its own copy of
		// swapSlot (set at fork time); clear it on all of them, not
		// just p's, so a sibling that faults later never reads a slot
		// number the swap bitmap has since reallocated to someone else.
		forEachSharer(p, func(sp *Page) {
			if av, ok := sp.Variant.(*anonVariant); ok {
				av.swapSlot = -1
			}
		})
	default:
		zero(frame.Data[:])
	}
	forEachSharer(p, func(sp *Page) { sp.Flags |= FlagFrame })
	return nil
}

// SwapOut persists p's frame contents (if needed) and detaches p from
// it. p is always the frame's current representative here: it is
// called either directly on a page about to swap out, or via
// FrameTable's clock eviction on exactly the page the evicted frame
// belongs to — in the latter case the frame is being reused in place
// by the caller, so SwapOut must not hand it back through
// FrameTable.Release (that would reacquire FrameTable's own lock).
func (v *anonVariant) SwapOut(p *Page) error {
	frame := p.residentFrame()
	if !p.Flags.has(FlagBSS) && !p.Flags.has(FlagDirty) {
		p.Flags |= FlagNoSwap
		forEachSharer(p, func(sp *Page) { sp.Flags &^= FlagFrame })
		p.Frame = nil
		return nil
	}

	slot, err := p.AS.Swap.Alloc()
	if err != nil {
		return err
	}
	if err := p.AS.Swap.Write(slot, frame.Data[:]); err != nil {
		return err
	}
	forEachSharer(p, func(sp *Page) {
		sp.Flags &^= FlagFrame
		if av, ok := sp.Variant.(*anonVariant); ok {
			av.swapSlot = slot
		}
	})
	p.Frame = nil
	return nil
}

func (v *anonVariant) Destroy(p *Page) error {
	alone := p.isAlone()
	hadFrame := p.Frame != nil
	p.detach()
	if !alone {
		return nil
	}
	if hadFrame {
		p.AS.Frames.Release(p.Frame)
		p.Frame = nil
		return nil
	}
	if v.swapSlot >= 0 {
		if err := p.AS.Swap.Free(v.swapSlot); err != nil {
			return err
		}
		v.swapSlot = -1
	}
	return nil
}

// fileVariant implements the FILE page class.
type fileVariant struct {
	aux *LazyAux
}

func (v *fileVariant) SwapIn(p *Page) error {
	frame := p.Frame
	n, err := v.aux.Inode.Read(v.aux.FileOffset, frame.Data[:v.aux.ReadBytes])
	if err != nil {
		return err
	}
	zero(frame.Data[n:])
	forEachSharer(p, func(sp *Page) { sp.Flags |= FlagFrame })
	return nil
}

// SwapOut follows the same "caller reuses the frame in place" contract
// as anonVariant.SwapOut; see its comment.
func (v *fileVariant) SwapOut(p *Page) error {
	frame := p.residentFrame()
	if p.Flags.has(FlagDirty) && !v.aux.Inode.Removed() {
		if _, err := v.aux.Inode.Write(v.aux.FileOffset, frame.Data[:v.aux.ReadBytes]); err != nil {
			return err
		}
	}
	forEachSharer(p, func(sp *Page) { sp.Flags &^= FlagFrame })
	p.Frame = nil
	return nil
}

func (v *fileVariant) Destroy(p *Page) error {
	if v.aux.Mmap != nil {
		if p.Flags.has(FlagDirty) && !v.aux.Inode.Removed() {
			frame := p.residentFrame()
			if frame != nil {
				if _, err := v.aux.Inode.Write(v.aux.FileOffset, frame.Data[:v.aux.ReadBytes]); err != nil {
					return err
				}
			}
		}
		v.aux.Mmap.Pages = removePage(v.aux.Mmap.Pages, p)
		if len(v.aux.Mmap.Pages) == 0 {
			if err := p.AS.closeInode(v.aux.Inode); err != nil {
				return err
			}
		}
	}

	alone := p.isAlone()
	hadFrame := p.Frame != nil
	p.detach()
	if alone && hadFrame {
		p.AS.Frames.Release(p.Frame)
		p.Frame = nil
	}
	return nil
}

func removePage(pages []*Page, target *Page) []*Page {
	out := pages[:0]
	for _, p := range pages {
		if p != target {
			out = append(out, p)
		}
	}
	return out
}

// uninitVariant implements the UNINIT page class: on first fault it
// runs init to transform the page into its real class, then lazy-
// loads through that class's SwapIn.
type uninitVariant struct {
	init func(p *Page) (Variant, error)
	aux  *LazyAux
}

func (v *uninitVariant) SwapIn(p *Page) error {
	real, err := v.init(p)
	if err != nil {
		return err
	}
	p.Variant = real
	return real.SwapIn(p)
}

func (v *uninitVariant) SwapOut(p *Page) error {
	return nil // nothing resident yet
}

func (v *uninitVariant) Destroy(p *Page) error {
	return nil // nothing allocated yet; aux stays on AS.auxBlocks, which nothing releases
}
