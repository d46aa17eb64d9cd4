// Package vm simulates the virtual-memory subsystem: a frame table
// with clock eviction, a supplemental page table per address space,
// three page classes (uninit, anon, file-backed) that each know how
// to swap themselves in and out, a page-fault decision tree including
// copy-on-write, and a fork operation that copies an SPT while
// sharing physical frames through a sharer ring.
//
// There is no real hardware page table here — "frame" is a plain byte
// buffer and "writable"/"present" are just Page flags a fault handler
// consults — but the bookkeeping (who owns which frame, who shares it,
// what happens on eviction) mirrors spec.md section 4 exactly.
package vm

import "container/ring"

// PageSize is the size in bytes of one page / frame / swap slot.
const PageSize = 4096

// Flags is a bitmask of the page type/state flags from spec.md
// section 3's Page data model.
type Flags uint32

const (
	FlagAnon Flags = 1 << iota
	FlagFile
	FlagFrame
	FlagMmap
	FlagStack
	FlagWritable
	FlagCPWrite
	FlagDirty
	FlagNoSwap
	FlagBSS
)

func (f Flags) has(bit Flags) bool { return f&bit != 0 }

// Variant is the behavior specific to a page's class (uninit, anon,
// file-backed): how it brings itself into a frame, how it leaves one,
// and how it's torn down.
type Variant interface {
	SwapIn(p *Page) error
	SwapOut(p *Page) error
	Destroy(p *Page) error
}

// Page is one supplemental-page-table entry.
type Page struct {
	UserVA  uint64
	Flags   Flags
	Frame   *Frame // non-nil only on the sharer ring's representative
	AS      *AddressSpace
	Ring    *ring.Ring // this page's own node; Ring.Value == this page
	Variant Variant
}

func newPage(as *AddressSpace, va uint64, flags Flags, v Variant) *Page {
	p := &Page{UserVA: va, Flags: flags, AS: as, Variant: v}
	p.Ring = ring.New(1)
	p.Ring.Value = p
	return p
}

// isAlone reports whether p is the only member of its sharer ring.
func (p *Page) isAlone() bool {
	return p.Ring.Len() == 1
}

// residentFrame returns the frame this page's sharer ring currently
// occupies, if any: either this page's own Frame (if it is the
// representative) or, failing that, another ring member's.
func (p *Page) residentFrame() *Frame {
	if p.Frame != nil {
		return p.Frame
	}
	for cur := p.Ring.Next(); cur != p.Ring; cur = cur.Next() {
		if other := cur.Value.(*Page); other.Frame != nil {
			return other.Frame
		}
	}
	return nil
}

// detach removes p from its sharer ring, leaving it alone in a
// singleton ring. If p was the representative (held Frame) and other
// sharers remain, one of them is promoted to hold Frame in its place.
func (p *Page) detach() {
	if p.isAlone() {
		return
	}
	prev := p.Ring.Prev()
	detached := prev.Unlink(1) // removes the node right after prev, i.e. p.Ring
	_ = detached

	if p.Frame != nil {
		newRep := prev.Value.(*Page)
		newRep.Frame = p.Frame
		p.Frame.Owner = newRep
		p.Frame = nil
	}
}

// spliceInto links p into other's sharer ring.
func spliceInto(p *Page, other *Page) {
	other.Ring.Link(p.Ring)
}

func pageAlignDown(va uint64) uint64 {
	return va &^ (PageSize - 1)
}
