package vm

// Fork implements spec.md section 4.8: copy the parent's SPT into a
// fresh child address space sharing the parent's frame and swap
// pools. Pages backed by a frame are turned copy-on-write in both
// parent and child. Swapped-out anon pages are also turned
// copy-on-write and spliced into the sharer ring with no physical
// frame: the first side to fault reads the slot back, and the other
// side adopts that frame until a write gives it a private copy. Lazy
// pages get their own copy of the lazy-load descriptor and are loaded
// independently by each side's own first fault.
func Fork(parent *AddressSpace) (*AddressSpace, error) {
	parent.mu.Lock()
	pages := make([]*Page, 0, len(parent.pages))
	for _, p := range parent.pages {
		pages = append(pages, p)
	}
	parent.mu.Unlock()

	child := NewAddressSpace(parent.Frames, parent.Swap, parent.Inodes, parent.StackBottom)
	child.stackTop = parent.stackTop
	mmapSiblings := make(map[*MmapList]*MmapList)

	for _, p := range pages {
		childPage := newPage(child, p.UserVA, p.Flags, nil)

		switch v := p.Variant.(type) {
		case *uninitVariant:
			aux := cloneAux(child, v.aux, mmapSiblings, childPage)
			childPage.Variant = &uninitVariant{init: v.init, aux: aux}

		case *fileVariant:
			aux := cloneAux(child, v.aux, mmapSiblings, childPage)
			childPage.Variant = &fileVariant{aux: aux}
			if p.Flags.has(FlagFrame) {
				linkSharedFrame(p, childPage)
			}

		case *anonVariant:
			childPage.Variant = &anonVariant{swapSlot: v.swapSlot}
			switch {
			case p.Flags.has(FlagFrame):
				linkSharedFrame(p, childPage)
			case v.swapSlot >= 0:
				// Swapped out: join the ring copy-on-write, since the
				// side that faults second adopts the first side's frame.
				// A later SwapIn on either side frees the slot and
				// updates swapSlot on every sharer via forEachSharer,
				// not just the page that faulted.
				p.Flags &^= FlagWritable
				p.Flags |= FlagCPWrite
				childPage.Flags &^= FlagWritable
				childPage.Flags |= FlagCPWrite
				spliceInto(childPage, p)
			}

		default:
			childPage.Variant = v
		}

		child.mu.Lock()
		child.pages[childPage.UserVA] = childPage
		child.mu.Unlock()
	}
	return child, nil
}

// linkSharedFrame implements the "present in a frame" branch of
// spec.md section 4.8: both copies lose their writable bit, both gain
// CPWRITE, and the child page joins the parent's sharer ring.
func linkSharedFrame(parent, child *Page) {
	parent.Flags &^= FlagWritable
	parent.Flags |= FlagCPWrite
	child.Flags &^= FlagWritable
	child.Flags |= FlagCPWrite | FlagFrame
	spliceInto(child, parent)
}

// cloneAux deep-copies a lazy-aux block for the child. If the parent
// aux belongs to an mmap region, the child's sibling MmapList is
// located (or created, bumping a fresh open reference on the shared
// inode) via a hash keyed on the parent's list pointer, so every
// forked page from the same mapping lands in the same child list.
func cloneAux(child *AddressSpace, aux *LazyAux, siblings map[*MmapList]*MmapList, childPage *Page) *LazyAux {
	if aux == nil {
		return nil
	}
	clone := &LazyAux{Inode: aux.Inode, FileOffset: aux.FileOffset, ReadBytes: aux.ReadBytes}
	if aux.Mmap != nil {
		sib, ok := siblings[aux.Mmap]
		if !ok {
			in := aux.Mmap.Inode
			if child.Inodes != nil {
				if opened, err := child.Inodes.Open(in.Sector()); err == nil {
					in = opened
				}
			}
			sib = &MmapList{Inode: in}
			siblings[aux.Mmap] = sib
		}
		sib.Pages = append(sib.Pages, childPage)
		clone.Mmap = sib
	}
	child.auxBlocks = append(child.auxBlocks, clone)
	return clone
}
