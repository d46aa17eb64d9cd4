package kernel

import (
	"context"
	"fmt"
	"sync"

	"github.com/junhokim/pintgo/sched"
	"github.com/junhokim/pintgo/vfs"
	"github.com/junhokim/pintgo/vm"
)

// Process bundles one scheduler thread with the process-level state
// spec.md's thread_create doesn't itself own: an address space, a
// current working directory, and an open-file table.
type Process struct {
	Thread *sched.Thread
	AS     *vm.AddressSpace
	Cwd    *vfs.Directory

	k *Kernel

	mu       sync.Mutex
	files    map[int]vfs.Handle
	nextFD   int
	exitCode int

	// rendezvous is upped exactly once, by exit, and is what a parent's
	// Wait call downs — the semaphore-based fork/wait synchronization
	// spec.md section 3 describes, rather than a hand-rolled channel.
	rendezvous *sched.Rendezvous
}

// Spawn creates a new process: a scheduler thread at the given base
// priority and a fresh address space sharing the kernel's frame and
// swap pools, rooted at cwd with an empty file table.
func (k *Kernel) Spawn(name string, priority int, cwd *vfs.Directory) *Process {
	t := k.Sched.Spawn(name, priority)
	as := vm.NewAddressSpace(k.Frames, k.Swap, k.FS.Inodes(), StackBase)
	p := &Process{
		Thread:     t,
		AS:         as,
		Cwd:        cwd,
		k:          k,
		files:      make(map[int]vfs.Handle),
		nextFD:     2, // 0 and 1 reserved, mirroring stdin/stdout fd numbering
		rendezvous: sched.NewRendezvous(0),
	}
	t.Cwd = cwd
	t.AddrSpace = as
	t.Fdt = p
	return p
}

// Open opens path relative to the process's cwd and returns a file
// descriptor for it.
func (p *Process) Open(path string) (int, error) {
	h, err := p.k.FS.Open(path, p.Cwd)
	if err != nil {
		return -1, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fd := p.nextFD
	p.nextFD++
	p.files[fd] = h
	return fd, nil
}

func (p *Process) handle(fd int) (vfs.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.files[fd]
	if !ok {
		return nil, fmt.Errorf("kernel: bad file descriptor %d", fd)
	}
	return h, nil
}

// Read reads from fd into buf. fd must refer to an open regular file.
func (p *Process) Read(fd int, buf []byte) (int, error) {
	h, err := p.handle(fd)
	if err != nil {
		return 0, err
	}
	f, ok := h.(*vfs.File)
	if !ok {
		return 0, fmt.Errorf("kernel: fd %d is not a file", fd)
	}
	return f.Read(buf)
}

// Write writes buf to fd. fd must refer to an open regular file.
func (p *Process) Write(fd int, buf []byte) (int, error) {
	h, err := p.handle(fd)
	if err != nil {
		return 0, err
	}
	f, ok := h.(*vfs.File)
	if !ok {
		return 0, fmt.Errorf("kernel: fd %d is not a file", fd)
	}
	return f.Write(buf)
}

// Close releases fd.
func (p *Process) Close(fd int) error {
	p.mu.Lock()
	h, ok := p.files[fd]
	if ok {
		delete(p.files, fd)
	}
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("kernel: bad file descriptor %d", fd)
	}
	return h.Close()
}

// HandleFault resolves a page fault for this process, exiting the
// process if the fault cannot be resolved — the simulated counterpart
// of page_fault's "kill the offending thread" fallback.
func (p *Process) HandleFault(addr uint64, write, present bool, rsp uint64) error {
	err := p.AS.HandleFault(addr, write, present, rsp)
	if err == vm.ErrKillProcess {
		_ = p.Exit()
	}
	return err
}

// Exit marks the process's thread dying, tears down its address
// space, and wakes a parent blocked in Wait, with exit code 0.
func (p *Process) Exit() error {
	return p.exit(0)
}

// ExitWithCode is Exit with a caller-supplied exit status, the value a
// later Wait call observes.
func (p *Process) ExitWithCode(code int) error {
	return p.exit(code)
}

func (p *Process) exit(code int) error {
	p.mu.Lock()
	p.exitCode = code
	p.mu.Unlock()
	p.k.Sched.Exit(p.Thread)
	err := p.AS.Destroy()
	p.rendezvous.Up()
	return err
}

// Wait blocks until this process exits, then returns its exit code —
// the simulated counterpart of process_wait(pid), called by a parent
// holding the child's *Process directly rather than looking it up by
// pid. Per spec.md's semantics a given child can only be waited on
// once; a second Wait call blocks forever, matching process_wait's own
// single-use-per-child contract.
func (p *Process) Wait(ctx context.Context) (int, error) {
	if err := p.rendezvous.Down(ctx); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode, nil
}

// Fork creates a child process: a new scheduler thread at the same
// base priority, a copy-on-write address space produced by vm.Fork,
// the same cwd, and a duplicate of the open-file table (a real fork
// duplicates file descriptors, not the files they refer to).
func (p *Process) Fork(name string) (*Process, error) {
	childAS, err := vm.Fork(p.AS)
	if err != nil {
		return nil, err
	}
	t := p.k.Sched.Spawn(name, p.Thread.BasePriority())

	p.mu.Lock()
	files := make(map[int]vfs.Handle, len(p.files))
	for fd, h := range p.files {
		files[fd] = h
	}
	nextFD := p.nextFD
	p.mu.Unlock()

	child := &Process{
		Thread:     t,
		AS:         childAS,
		Cwd:        p.Cwd,
		k:          p.k,
		files:      files,
		nextFD:     nextFD,
		rendezvous: sched.NewRendezvous(0),
	}
	t.Cwd = child.Cwd
	t.AddrSpace = child.AS
	t.Fdt = child
	return child, nil
}
