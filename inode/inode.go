// Package inode implements the filesystem's inode layer: one on-disk
// sector per inode, shared in-memory state across openers of the same
// sector, bounce-buffered sector I/O, and atomic file growth that
// extends a cluster chain on write-past-EOF.
package inode

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/junhokim/pintgo/block"
	"github.com/junhokim/pintgo/fat"
)

// ErrRemoved names the state of an inode whose directory entry has
// already been unlinked. No operation in this package returns it:
// existing openers of a removed inode keep reading and writing it
// until they Close.
var ErrRemoved = errors.New("inode: removed")

// ErrDenyWrite is returned by Write when the inode's deny-write count
// is nonzero (an executable image denying writes to itself).
var ErrDenyWrite = errors.New("inode: write denied")

// ErrNoSpace is returned when the FAT cannot grow a chain far enough to
// satisfy a write or a Create.
var ErrNoSpace = errors.New("inode: out of space")

// Inode is the in-memory record for one on-disk inode sector, interned
// so every opener of the same sector shares the same struct the way
// fuse/nodefs.Inode is shared across all path lookups that resolve to
// the same underlying file.
type Inode struct {
	mu sync.Mutex // growth lock: serializes length+chain mutation and reads

	sector uint32
	disk   onDisk

	openCount      int
	denyWriteCount int
	cwdCount       int
	removed        bool

	dev block.Device
	fat *fat.Table
}

// Table is the process-wide intern table of in-memory inodes, keyed by
// on-disk sector number, mirroring the open-inode list described in
// spec.md section 3.
type Table struct {
	mu    sync.Mutex
	dev   block.Device
	fat   *fat.Table
	inter map[uint32]*Inode
}

// NewTable creates an inode table backed by dev and fat.
func NewTable(dev block.Device, f *fat.Table) *Table {
	return &Table{dev: dev, fat: f, inter: make(map[uint32]*Inode)}
}

func ceilDiv(a, b uint32) uint32 {
	if a == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// Create writes a fresh inode at sector, allocating ceil(length/512)
// clusters for its data and zeroing every sector they cover. On
// allocation failure the partially built chain is rolled back and
// ErrNoSpace is returned.
func (t *Table) Create(sector uint32, length uint32, flags uint32) error {
	nSectors := ceilDiv(length, block.SectorSize)

	var head uint32
	var tail uint32
	for i := uint32(0); i < nSectors; i++ {
		c := t.fat.CreateChain(tail)
		if c == 0 {
			if head != 0 {
				t.fat.RemoveChain(head, 0)
			}
			return ErrNoSpace
		}
		if head == 0 {
			head = c
		}
		tail = c
	}

	d := onDisk{
		Start:      head,
		SelfSector: sector,
		Length:     length,
		Flags:      flags,
		Magic:      Magic,
	}
	if err := t.dev.Write(sector, d.encode()); err != nil {
		return err
	}

	zero := make([]byte, block.SectorSize)
	c := head
	for i := uint32(0); i < nSectors; i++ {
		s := t.fat.ClusterToSector(c)
		if err := t.dev.Write(s, zero); err != nil {
			return err
		}
		c = t.fat.Get(c)
	}
	return nil
}

// Open interns (or returns the already-interned) in-memory inode for
// sector, validating the on-disk magic on first open.
func (t *Table) Open(sector uint32) (*Inode, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if in, ok := t.inter[sector]; ok {
		in.openCount++
		return in, nil
	}

	buf := make([]byte, block.SectorSize)
	if err := t.dev.Read(sector, buf); err != nil {
		return nil, err
	}
	d, err := decodeOnDisk(buf)
	if err != nil {
		return nil, err
	}
	if d.Magic != Magic {
		log.Panicf("inode: bad magic %#x at sector %d (want %#x)", d.Magic, sector, Magic)
	}

	in := &Inode{
		sector:    sector,
		disk:      *d,
		openCount: 1,
		dev:       t.dev,
		fat:       t.fat,
	}
	t.inter[sector] = in
	return in, nil
}

// Close decrements open_count; at zero the inode is removed from the
// intern table, and if it was marked removed its chain is reclaimed.
func (t *Table) Close(in *Inode) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	in.mu.Lock()
	in.openCount--
	count := in.openCount
	removed := in.removed
	head := in.disk.Start
	in.mu.Unlock()

	if count > 0 {
		return nil
	}
	delete(t.inter, in.sector)
	if !removed {
		return nil
	}
	if head != 0 {
		if err := t.fat.RemoveChain(head, 0); err != nil {
			return err
		}
	}
	// The inode's own sector is itself a one-cluster chain allocated
	// from the same table (self and data share one cluster address
	// space in this design); reclaim it too.
	selfCluster := t.fat.SectorToCluster(in.sector)
	return t.fat.RemoveChain(selfCluster, 0)
}

// Remove marks in as removed. The directory layer is responsible for
// refusing new Open calls once an entry is unlinked; existing openers
// keep working until they Close, per spec.md's concurrent-removal rule.
func (in *Inode) Remove() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.removed = true
}

// Removed reports whether this inode has been unlinked.
func (in *Inode) Removed() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.removed
}

// Sector returns the inode's own on-disk sector number.
func (in *Inode) Sector() uint32 { return in.sector }

// IsDir reports the directory flag bit.
func (in *Inode) IsDir() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.disk.Flags&FlagDir != 0
}

// IsSymlink reports the symlink flag bit.
func (in *Inode) IsSymlink() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.disk.Flags&FlagSymlink != 0
}

// Length returns the inode's current byte length, read under the
// growth lock so it is never observed ahead of the chain that backs it
// (spec.md section 9's second open question, resolved in DESIGN.md by
// always reading length under this lock).
func (in *Inode) Length() uint32 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.disk.Length
}

// DenyWrite increments the deny-write count, refusing future Write
// calls until a matching AllowWrite. Supplements spec.md with the
// original source's inode_deny_write/inode_allow_write pair (see
// SPEC_FULL.md section 4.2).
func (in *Inode) DenyWrite() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.denyWriteCount++
}

// AllowWrite reverses a prior DenyWrite.
func (in *Inode) AllowWrite() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.denyWriteCount > 0 {
		in.denyWriteCount--
	}
}

// sectorForIndex returns the data sector holding the i-th (0-based)
// sector of this inode's chain.
func (in *Inode) sectorForIndex(i uint32) (uint32, bool) {
	c := in.disk.Start
	for j := uint32(0); j < i; j++ {
		c = in.fat.Get(c)
		if c == 0 || c == fat.EndOfChain {
			return 0, false
		}
	}
	if c == 0 || c == fat.EndOfChain {
		return 0, false
	}
	return in.fat.ClusterToSector(c), true
}

// Read copies up to len(buf) bytes starting at offset into buf,
// returning the number of bytes actually read (0 at or past EOF).
func (in *Inode) Read(offset uint32, buf []byte) (int, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if offset >= in.disk.Length {
		return 0, nil
	}
	size := uint32(len(buf))
	if offset+size > in.disk.Length {
		size = in.disk.Length - offset
	}

	scratch := make([]byte, block.SectorSize)
	var n uint32
	for n < size {
		sectorIdx := (offset + n) / block.SectorSize
		localOff := (offset + n) % block.SectorSize
		s, ok := in.sectorForIndex(sectorIdx)
		if !ok {
			break
		}
		want := size - n
		avail := block.SectorSize - localOff
		if want > avail {
			want = avail
		}

		if localOff == 0 && want == block.SectorSize {
			if err := in.dev.Read(s, buf[n:n+want]); err != nil {
				return int(n), err
			}
		} else {
			if err := in.dev.Read(s, scratch); err != nil {
				return int(n), err
			}
			copy(buf[n:n+want], scratch[localOff:localOff+want])
		}
		n += want
	}
	return int(n), nil
}

// Write writes len(data) bytes at offset, atomically growing the
// backing chain (and zero-filling any hole) if offset+len(data) exceeds
// the current length. Returns the number of bytes written.
func (in *Inode) Write(offset uint32, data []byte) (int, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.denyWriteCount > 0 {
		return 0, ErrDenyWrite
	}

	end := offset + uint32(len(data))
	if end > in.disk.Length {
		if err := in.growLocked(offset, end); err != nil {
			return 0, err
		}
	}

	scratch := make([]byte, block.SectorSize)
	var n uint32
	size := uint32(len(data))
	for n < size {
		sectorIdx := (offset + n) / block.SectorSize
		localOff := (offset + n) % block.SectorSize
		s, ok := in.sectorForIndex(sectorIdx)
		if !ok {
			return int(n), fmt.Errorf("inode: write fell off the end of the chain at sector index %d", sectorIdx)
		}
		want := size - n
		avail := block.SectorSize - localOff
		if want > avail {
			want = avail
		}

		if localOff == 0 && want == block.SectorSize {
			if err := in.dev.Write(s, data[n:n+want]); err != nil {
				return int(n), err
			}
		} else {
			if err := in.dev.Read(s, scratch); err != nil {
				return int(n), err
			}
			copy(scratch[localOff:localOff+want], data[n:n+want])
			if err := in.dev.Write(s, scratch); err != nil {
				return int(n), err
			}
		}
		n += want
	}
	return int(n), nil
}

// growLocked extends the chain so it covers newLen bytes, zero-filling
// the hole between the old length and writeOffset (the offset of the
// write that triggered growth), then persists the new length. Must be
// called with in.mu held.
func (in *Inode) growLocked(writeOffset, newLen uint32) error {
	oldSectors := ceilDiv(in.disk.Length, block.SectorSize)
	newSectors := ceilDiv(newLen, block.SectorSize)
	need := int(newSectors) - int(oldSectors)
	if need <= 0 {
		in.disk.Length = newLen
		return in.persistLocked()
	}

	var tail uint32
	if oldSectors > 0 {
		var ok bool
		tail, ok = in.lastClusterLocked(oldSectors - 1)
		if !ok {
			return fmt.Errorf("inode: corrupt chain, expected %d sectors", oldSectors)
		}
	}

	writeStartIdx := writeOffset / block.SectorSize
	writeStartLocal := writeOffset % block.SectorSize

	newClusters := make([]uint32, 0, need)
	for i := 0; i < need; i++ {
		parent := tail
		if len(newClusters) > 0 {
			parent = newClusters[len(newClusters)-1]
		}
		c := in.fat.CreateChain(parent)
		if c == 0 {
			// Roll back everything allocated in this call.
			if len(newClusters) > 0 {
				in.fat.RemoveChain(newClusters[0], tail)
			}
			return ErrNoSpace
		}
		newClusters = append(newClusters, c)
	}
	if in.disk.Start == 0 {
		in.disk.Start = newClusters[0]
	}

	zero := make([]byte, block.SectorSize)
	for i, c := range newClusters {
		sectorIdx := oldSectors + uint32(i)
		s := in.fat.ClusterToSector(c)
		switch {
		case sectorIdx < writeStartIdx:
			if err := in.dev.Write(s, zero); err != nil {
				return err
			}
		case sectorIdx == writeStartIdx && writeStartLocal > 0:
			// Only the prefix before the write's start offset is ever
			// addressable as a hole; the remainder of this sector is
			// about to be overwritten by the write itself.
			if err := in.dev.Write(s, zero); err != nil {
				return err
			}
		}
	}

	in.disk.Length = newLen
	return in.persistLocked()
}

// lastClusterLocked returns the cluster at 0-based index idx in this
// inode's chain.
func (in *Inode) lastClusterLocked(idx uint32) (uint32, bool) {
	c := in.disk.Start
	for i := uint32(0); i < idx; i++ {
		c = in.fat.Get(c)
		if c == 0 || c == fat.EndOfChain {
			return 0, false
		}
	}
	if c == 0 || c == fat.EndOfChain {
		return 0, false
	}
	return c, true
}

func (in *Inode) persistLocked() error {
	return in.dev.Write(in.sector, in.disk.encode())
}

// WriteLinkTarget stores path as a symlink's target, as a null
// terminated string in the inode's first data sector.
func (in *Inode) WriteLinkTarget(path string) error {
	buf := append([]byte(path), 0)
	_, err := in.Write(0, buf)
	return err
}

// ReadLinkTarget reads back a symlink's null-terminated target path.
func (in *Inode) ReadLinkTarget() (string, error) {
	length := in.Length()
	buf := make([]byte, length)
	if _, err := in.Read(0, buf); err != nil {
		return "", err
	}
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	return string(buf), nil
}

// IncCwd / DecCwd track how many processes have this directory as cwd,
// used by the directory layer to refuse removing a directory that is
// someone's current working directory.
func (in *Inode) IncCwd() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.cwdCount++
}

func (in *Inode) DecCwd() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.cwdCount > 0 {
		in.cwdCount--
	}
}

func (in *Inode) CwdCount() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.cwdCount
}
