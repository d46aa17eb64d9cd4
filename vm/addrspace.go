package vm

import (
	"fmt"
	"sync"

	"github.com/junhokim/pintgo/inode"
	"github.com/junhokim/pintgo/swap"
)

// LazyAux is the lazy-load descriptor a file-backed or uninit page
// carries until its first fault: where to read from, and (for mmap
// regions) the sibling list every page in the same mapping belongs
// to. Fork gives each child page its own copy (cloneAux); the copies
// point at the same inode, and only an mmap region's child sibling
// list takes its own open reference on it.
type LazyAux struct {
	Inode      *inode.Inode
	FileOffset uint32
	ReadBytes  uint32
	Mmap       *MmapList
}

// MmapList tracks every page belonging to one mmap region, so the
// region's inode can be closed once the last page referencing it is
// torn down.
type MmapList struct {
	Inode *inode.Inode
	Pages []*Page
}

// AddressSpace is one process's supplemental page table: a hash map
// from page-aligned user virtual address to Page, plus the aux blocks
// it has handed out, per spec.md section 3. auxBlocks is only
// appended to: Destroy does not walk it or release anything it holds.
type AddressSpace struct {
	mu          sync.Mutex
	pages       map[uint64]*Page
	auxBlocks   []*LazyAux
	Frames      *FrameTable
	Swap        *swap.Table
	Inodes      *inode.Table
	StackBottom uint64
	stackTop    uint64 // StackBottom's initial value, for capping total growth
}

// NewAddressSpace creates an empty SPT backed by the given frame
// table, swap table and inode table (the last needed only to close
// mmap-backed inodes once their last page is destroyed).
func NewAddressSpace(frames *FrameTable, sw *swap.Table, inodes *inode.Table, stackBottom uint64) *AddressSpace {
	return &AddressSpace{
		pages:       make(map[uint64]*Page),
		Frames:      frames,
		Swap:        sw,
		Inodes:      inodes,
		StackBottom: stackBottom,
		stackTop:    stackBottom,
	}
}

// Lookup returns the page mapping va's containing page, if any.
func (as *AddressSpace) Lookup(va uint64) (*Page, bool) {
	as.mu.Lock()
	defer as.mu.Unlock()
	p, ok := as.pages[pageAlignDown(va)]
	return p, ok
}

// AllocPageWithInitializer constructs an UNINIT page that remembers
// init to run on first fault, and installs it in the SPT. Once
// installed, a lookup returns the same page pointer until freed.
func (as *AddressSpace) AllocPageWithInitializer(va uint64, flags Flags, init func(p *Page) (Variant, error), aux *LazyAux) (*Page, error) {
	as.mu.Lock()
	defer as.mu.Unlock()

	key := pageAlignDown(va)
	if _, exists := as.pages[key]; exists {
		return nil, fmt.Errorf("vm: page already mapped at %#x", key)
	}
	p := newPage(as, key, flags, nil)
	p.Variant = &uninitVariant{init: init, aux: aux}
	as.pages[key] = p
	if aux != nil {
		as.auxBlocks = append(as.auxBlocks, aux)
	}
	return p, nil
}

// InstallAnon directly installs an anon page already resident in a
// frame — used by stack growth, which has no lazy initializer.
func (as *AddressSpace) InstallAnon(va uint64, flags Flags) (*Page, error) {
	as.mu.Lock()
	defer as.mu.Unlock()

	key := pageAlignDown(va)
	if _, exists := as.pages[key]; exists {
		return nil, fmt.Errorf("vm: page already mapped at %#x", key)
	}
	p := newPage(as, key, flags|FlagAnon, nil)
	p.Variant = &anonVariant{swapSlot: -1}
	as.pages[key] = p
	return p, nil
}

// remove deletes p from the SPT without tearing it down;
// callers that also own the page's lifecycle call Destroy first.
func (as *AddressSpace) remove(p *Page) {
	as.mu.Lock()
	defer as.mu.Unlock()
	delete(as.pages, p.UserVA)
}

// Destroy tears down every page in this address space, releasing
// frames and swap slots.
func (as *AddressSpace) Destroy() error {
	as.mu.Lock()
	pages := make([]*Page, 0, len(as.pages))
	for _, p := range as.pages {
		pages = append(pages, p)
	}
	as.mu.Unlock()

	for _, p := range pages {
		if err := p.Variant.Destroy(p); err != nil {
			return err
		}
		as.remove(p)
	}
	return nil
}

// closeInode releases this address space's reference on in, used
// when the last page of an mmap region is torn down.
func (as *AddressSpace) closeInode(in *inode.Inode) error {
	if as.Inodes == nil {
		return nil
	}
	return as.Inodes.Close(in)
}
