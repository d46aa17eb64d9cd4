package vm

import (
	"testing"

	"github.com/junhokim/pintgo/block"
	"github.com/junhokim/pintgo/fat"
	"github.com/junhokim/pintgo/inode"
	"github.com/junhokim/pintgo/swap"
)

// newTestEnv builds a frame table, swap table and inode table sized
// for small unit tests, plus a fresh address space over them.
func newTestEnv(t *testing.T, numFrames, numSwapSlots int) (*AddressSpace, *FrameTable, *swap.Table, *inode.Table) {
	t.Helper()

	frames := NewFrameTable(numFrames)

	swapDev := block.NewMemDevice(uint32(numSwapSlots * swap.SectorsPerSlot))
	swapTable := swap.New(swapDev, numSwapSlots)

	const numClusters = 64
	fatSectors := (numClusters*4 + block.SectorSize - 1) / block.SectorSize
	fsDev := block.NewMemDevice(1 + fatSectors + numClusters + 2000)
	fatTable, err := fat.Format(fsDev, 1, fatSectors, 1+fatSectors, numClusters, 1)
	if err != nil {
		t.Fatalf("fat.Format: %v", err)
	}
	inodes := inode.NewTable(fsDev, fatTable)

	as := NewAddressSpace(frames, swapTable, inodes, 0x7FFFF000)
	return as, frames, swapTable, inodes
}

func mustAnonPage(t *testing.T, as *AddressSpace, va uint64) *Page {
	t.Helper()
	p, err := as.InstallAnon(va, FlagWritable)
	if err != nil {
		t.Fatalf("InstallAnon: %v", err)
	}
	f := as.Frames.GetFrame()
	p.Frame = f
	f.Owner = p
	p.Flags |= FlagFrame
	if err := p.Variant.SwapIn(p); err != nil {
		t.Fatalf("SwapIn: %v", err)
	}
	return p
}
