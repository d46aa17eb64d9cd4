// Package kernel wires packages block, fat, inode, and vfs (the
// filesystem), sched (the scheduler), and vm/swap (virtual memory)
// together behind one facade, the way fuse/nodefs.FileSystemConnector
// wires a raw bridge, an inode table, and mount options behind one
// Server/FileSystemConnector pair.
package kernel

import (
	"github.com/junhokim/pintgo/block"
	"github.com/junhokim/pintgo/sched"
	"github.com/junhokim/pintgo/swap"
	"github.com/junhokim/pintgo/vfs"
	"github.com/junhokim/pintgo/vm"
)

// StackBase is the initial top-of-stack virtual address a freshly
// spawned process's address space starts with, the simulated
// counterpart to Pintos' fixed USER_STACK constant.
const StackBase = 0x47480000

// Kernel is the top-level facade: a mounted filesystem, a scheduler,
// and the physical resources (frames, swap) every process's address
// space is carved out of.
type Kernel struct {
	FS     *vfs.FS
	Sched  *sched.Scheduler
	Frames *vm.FrameTable
	Swap   *swap.Table
}

// New formats a fresh filesystem on fsDev and wires it to a new
// scheduler, a fixed frame pool of numFrames frames, and a swap area
// over swapDev sized for swapSlots slots.
func New(fsDev block.Device, totalSectors uint32, numFrames int, swapDev block.Device, swapSlots int) (*Kernel, error) {
	fs, err := vfs.Format(fsDev, totalSectors)
	if err != nil {
		return nil, err
	}
	return &Kernel{
		FS:     fs,
		Sched:  sched.NewScheduler(),
		Frames: vm.NewFrameTable(numFrames),
		Swap:   swap.New(swapDev, swapSlots),
	}, nil
}

// Mount wires an already-formatted filesystem image instead of
// formatting a fresh one; see New for the rest of the wiring.
func Mount(fsDev block.Device, numFrames int, swapDev block.Device, swapSlots int) (*Kernel, error) {
	fs, err := vfs.Mount(fsDev)
	if err != nil {
		return nil, err
	}
	return &Kernel{
		FS:     fs,
		Sched:  sched.NewScheduler(),
		Frames: vm.NewFrameTable(numFrames),
		Swap:   swap.New(swapDev, swapSlots),
	}, nil
}
