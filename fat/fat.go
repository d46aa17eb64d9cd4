// Package fat implements the cluster-linked allocation table described by
// the filesystem's on-disk layout: a packed array of 32-bit cluster
// entries, one per data cluster, where each entry is either 0 (free), a
// successor cluster id (chain continues), or EndOfChain (chain ends).
//
// Clusters are 1-indexed; cluster c's data lives at sector
// DataStart + (c-1)*SectorsPerCluster. Allocation is next-fit from the
// last successful allocation, wrapping around the table once.
package fat

import (
	"encoding/binary"
	"sync"

	"github.com/junhokim/pintgo/block"
)

// EndOfChain is the sentinel FAT entry marking the last cluster of a chain.
const EndOfChain uint32 = 0x0FFFFFFF

// entriesPerSector is how many packed 32-bit FAT entries fit in one sector.
const entriesPerSector = block.SectorSize / 4

// Table is the cluster allocator. All mutating operations and the
// next-fit cursor are serialized by a single mutex, matching spec.md's
// "all operations execute under a single allocator mutex".
type Table struct {
	mu sync.Mutex

	dev              block.Device
	fatStart         uint32 // first sector holding packed FAT entries
	fatSectors       uint32 // number of sectors occupied by the FAT
	dataStart        uint32 // first data sector (cluster 1)
	sectorsPerCluster uint32
	numClusters      uint32 // number of addressable clusters (entries 1..numClusters)

	lastAllocated uint32 // next-fit cursor, 0 means "start of table"

	// cache holds the whole table in memory, mirrored to disk on Put.
	// The original design reads/writes sector-at-a-time through a
	// scratch window; since the table is small relative to a modern
	// process's address space we keep it fully resident and persist
	// eagerly, which preserves the same crash-visible-state contract
	// (every Put is followed by a sector write before it returns).
	cache []uint32 // cache[0] unused, cache[c] is entry for cluster c
}

// Format initializes a fresh, all-free table of numClusters clusters
// starting at fatStart, occupying fatSectors sectors, with cluster data
// starting at dataStart, and persists it to dev.
func Format(dev block.Device, fatStart, fatSectors, dataStart, numClusters, sectorsPerCluster uint32) (*Table, error) {
	t := &Table{
		dev:               dev,
		fatStart:          fatStart,
		fatSectors:        fatSectors,
		dataStart:         dataStart,
		sectorsPerCluster: sectorsPerCluster,
		numClusters:       numClusters,
		cache:             make([]uint32, numClusters+1),
	}
	if err := t.flushAll(); err != nil {
		return nil, err
	}
	return t, nil
}

// Load reads an existing table from dev.
func Load(dev block.Device, fatStart, fatSectors, dataStart, numClusters, sectorsPerCluster uint32) (*Table, error) {
	t := &Table{
		dev:               dev,
		fatStart:          fatStart,
		fatSectors:        fatSectors,
		dataStart:         dataStart,
		sectorsPerCluster: sectorsPerCluster,
		numClusters:       numClusters,
		cache:             make([]uint32, numClusters+1),
	}
	buf := make([]byte, block.SectorSize)
	c := uint32(1)
	for s := uint32(0); s < fatSectors && c <= numClusters; s++ {
		if err := dev.Read(fatStart+s, buf); err != nil {
			return nil, err
		}
		for i := 0; i < entriesPerSector && c <= numClusters; i++ {
			t.cache[c] = binary.LittleEndian.Uint32(buf[i*4 : i*4+4])
			c++
		}
	}
	return t, nil
}

func (t *Table) flushAll() error {
	buf := make([]byte, block.SectorSize)
	c := uint32(1)
	for s := uint32(0); s < t.fatSectors; s++ {
		for i := 0; i < entriesPerSector; i++ {
			var v uint32
			if c <= t.numClusters {
				v = t.cache[c]
			}
			binary.LittleEndian.PutUint32(buf[i*4:i*4+4], v)
			c++
		}
		if err := t.dev.Write(t.fatStart+s, buf); err != nil {
			return err
		}
	}
	return nil
}

// flushOne persists the single sector containing cluster c's entry.
func (t *Table) flushOne(c uint32) error {
	sectorIdx := (c - 1) / entriesPerSector
	buf := make([]byte, block.SectorSize)
	base := sectorIdx*entriesPerSector + 1
	for i := 0; i < entriesPerSector; i++ {
		cc := base + uint32(i)
		var v uint32
		if cc <= t.numClusters {
			v = t.cache[cc]
		}
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], v)
	}
	return t.dev.Write(t.fatStart+sectorIdx, buf)
}

// ClusterToSector maps a cluster id to its first data sector.
func (t *Table) ClusterToSector(c uint32) uint32 {
	return t.dataStart + (c-1)*t.sectorsPerCluster
}

// SectorToCluster is the inverse of ClusterToSector.
func (t *Table) SectorToCluster(s uint32) uint32 {
	return (s-t.dataStart)/t.sectorsPerCluster + 1
}

// SectorsPerCluster returns the fixed cluster size in sectors.
func (t *Table) SectorsPerCluster() uint32 { return t.sectorsPerCluster }

// Get returns the raw FAT entry for cluster c: 0 (free), EndOfChain, or
// a successor cluster id.
func (t *Table) Get(c uint32) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.get(c)
}

func (t *Table) get(c uint32) uint32 {
	if c < 1 || c > t.numClusters {
		return 0
	}
	return t.cache[c]
}

// Put writes value v into cluster c's entry and persists it.
func (t *Table) Put(c, v uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.put(c, v)
}

func (t *Table) put(c, v uint32) error {
	if c < 1 || c > t.numClusters {
		return nil
	}
	t.cache[c] = v
	return t.flushOne(c)
}

// findFree runs next-fit starting after lastAllocated, wrapping once.
// Returns 0 if no free cluster exists.
func (t *Table) findFree() uint32 {
	if t.numClusters == 0 {
		return 0
	}
	start := t.lastAllocated
	for i := uint32(0); i < t.numClusters; i++ {
		c := (start+i)%t.numClusters + 1
		if t.cache[c] == 0 {
			return c
		}
	}
	return 0
}

// CreateChain allocates one new cluster and appends it after prev. If
// prev is 0, a fresh chain is started. Returns the new cluster id, or 0
// if the table is full (out of clusters). On success, the new cluster's
// entry is EndOfChain and prev's entry (if nonzero) points at it.
func (t *Table) CreateChain(prev uint32) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()

	nc := t.findFree()
	if nc == 0 {
		return 0
	}
	if err := t.put(nc, EndOfChain); err != nil {
		return 0
	}
	if prev != 0 {
		if err := t.put(prev, nc); err != nil {
			t.put(nc, 0)
			return 0
		}
	}
	t.lastAllocated = nc
	return nc
}

// RemoveChain frees every cluster in the chain starting at head. If prev
// is nonzero, prev's entry is first set to EndOfChain (truncating the
// chain there) before the remainder starting at head is freed; this
// supports truncating a file to a shorter length by passing the cluster
// that should become the new tail as prev and the first cluster to
// discard as head.
func (t *Table) RemoveChain(head, prev uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if prev != 0 {
		if err := t.put(prev, EndOfChain); err != nil {
			return err
		}
	}
	c := head
	for c != 0 && c != EndOfChain {
		next := t.get(c)
		if err := t.put(c, 0); err != nil {
			return err
		}
		c = next
	}
	return nil
}

// Walk returns the cluster n steps (0-indexed) along the chain rooted at
// start, or 0 if the chain is shorter than n+1.
func (t *Table) Walk(start uint32, n int) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := start
	for i := 0; i < n; i++ {
		c = t.get(c)
		if c == 0 || c == EndOfChain {
			return 0
		}
	}
	if c == EndOfChain {
		return 0
	}
	return c
}

// Length returns the number of clusters in the chain rooted at start.
func (t *Table) Length(start uint32) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	c := start
	for c != 0 && c != EndOfChain {
		n++
		c = t.get(c)
	}
	return n
}

// FreeCount returns the number of clusters currently marked free.
func (t *Table) FreeCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for c := uint32(1); c <= t.numClusters; c++ {
		if t.cache[c] == 0 {
			n++
		}
	}
	return n
}
