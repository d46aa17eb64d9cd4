// Package swap implements the swap table: a bitmap over a swap block
// device, one bit per page-sized slot, with a next-fit allocation
// cursor — the disk-backed counterpart to package fat's in-memory
// cluster allocator, grounded on the same slot-bitmap-plus-cursor
// shape.
package swap

import (
	"errors"
	"math/bits"
	"sync"

	"github.com/junhokim/pintgo/block"
)

// SectorsPerSlot is how many device sectors back one page-sized swap
// slot (spec.md section 3: "one slot = one page = 8 sectors").
const SectorsPerSlot = 8

// PageSize is the size in bytes of one swap slot.
const PageSize = SectorsPerSlot * block.SectorSize

// ErrNoSpace is returned when every slot is in use.
var ErrNoSpace = errors.New("swap: no free slots")

// ErrBadSlot is returned for an out-of-range or malformed slot index.
var ErrBadSlot = errors.New("swap: invalid slot")

// Table is a bitmap-backed swap area: bit i set means slot i is in
// use. All operations run under a single mutex, matching spec.md's
// "serialized by a mutex" requirement.
type Table struct {
	mu     sync.Mutex
	dev    block.Device
	bits   []uint64
	slots  int
	cursor int
}

// New creates a swap table over dev, sized for the given number of
// page slots.
func New(dev block.Device, slots int) *Table {
	words := (slots + 63) / 64
	return &Table{dev: dev, bits: make([]uint64, words), slots: slots}
}

func (t *Table) testLocked(i int) bool {
	return t.bits[i/64]&(1<<uint(i%64)) != 0
}

func (t *Table) setLocked(i int) {
	t.bits[i/64] |= 1 << uint(i%64)
}

func (t *Table) clearLocked(i int) {
	t.bits[i/64] &^= 1 << uint(i%64)
}

// Alloc finds a free slot via next-fit starting from the cursor,
// marks it used, and returns its index. Returns ErrNoSpace if every
// slot is occupied. Scans a whole word at a time, using
// TrailingZeros64 to land directly on the first free bit once a
// non-full word is found.
func (t *Table) Alloc() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	words := len(t.bits)
	startWord := t.cursor / 64
	// The cursor's word is visited twice: first with the slots below the
	// cursor masked off, and again in full after every other word.
	for w := 0; w <= words && words > 0; w++ {
		wi := (startWord + w) % words
		word := t.bits[wi]
		if w == 0 {
			word |= (uint64(1) << uint(t.cursor%64)) - 1
		}
		if word == ^uint64(0) {
			continue
		}
		bit, ok := firstFreeBit(word)
		if !ok {
			continue
		}
		i := wi*64 + bit
		if i >= t.slots {
			continue
		}
		if t.testLocked(i) {
			continue
		}
		t.setLocked(i)
		t.cursor = (i + 1) % t.slots
		return i, nil
	}
	return 0, ErrNoSpace
}

// firstFreeBit returns the index of the lowest zero bit in word, or
// false if word is entirely ones.
func firstFreeBit(word uint64) (int, bool) {
	inv := ^word
	if inv == 0 {
		return 0, false
	}
	return bits.TrailingZeros64(inv), true
}

// Free marks slot as available again.
func (t *Table) Free(slot int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if slot < 0 || slot >= t.slots {
		return ErrBadSlot
	}
	t.clearLocked(slot)
	return nil
}

// InUse reports whether slot is currently allocated.
func (t *Table) InUse(slot int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.testLocked(slot)
}

// FreeCount returns how many slots are currently unallocated.
func (t *Table) FreeCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	free := 0
	for i := 0; i < t.slots; i++ {
		if !t.testLocked(i) {
			free++
		}
	}
	return free
}

func (t *Table) sectorForSlot(slot int) uint32 {
	return uint32(slot * SectorsPerSlot)
}

// Read reads a whole slot (PageSize bytes) from the swap device into
// buf.
func (t *Table) Read(slot int, buf []byte) error {
	if len(buf) != PageSize {
		return ErrBadSlot
	}
	base := t.sectorForSlot(slot)
	for i := 0; i < SectorsPerSlot; i++ {
		if err := t.dev.Read(base+uint32(i), buf[i*block.SectorSize:(i+1)*block.SectorSize]); err != nil {
			return err
		}
	}
	return nil
}

// Write writes a whole slot (PageSize bytes) to the swap device.
func (t *Table) Write(slot int, buf []byte) error {
	if len(buf) != PageSize {
		return ErrBadSlot
	}
	base := t.sectorForSlot(slot)
	for i := 0; i < SectorsPerSlot; i++ {
		if err := t.dev.Write(base+uint32(i), buf[i*block.SectorSize:(i+1)*block.SectorSize]); err != nil {
			return err
		}
	}
	return nil
}
