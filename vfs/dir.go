package vfs

import (
	"errors"
	"fmt"
	"sync"

	"github.com/junhokim/pintgo/inode"
)

// ErrNotEmpty is returned when removing a directory that still has
// entries beyond "." and "..".
var ErrNotEmpty = errors.New("vfs: directory not empty")

// ErrIsCwd is returned when removing a directory that some process has
// as its current working directory.
var ErrIsCwd = errors.New("vfs: directory is a process's cwd")

// ErrNameTooLong is returned for path components longer than MaxNameLen.
var ErrNameTooLong = errors.New("vfs: name too long")

// ErrExists is returned by add when the name is already in use.
var ErrExists = errors.New("vfs: name exists")

// ErrNotFound is returned when a lookup fails.
var ErrNotFound = errors.New("vfs: not found")

// ErrNotDir is returned when a non-leaf path component isn't a directory.
var ErrNotDir = errors.New("vfs: not a directory")

// Directory is an open directory: the inode backing it, plus the
// per-directory lock spec.md section 4.3 requires to serialize add/
// remove. The lock is shared across every open Directory for the same
// inode (see FS.dirLock), not private to this handle.
type Directory struct {
	inode *inode.Inode
	lock  *sync.Mutex
}

// Inode exposes the backing inode, e.g. for Inumber.
func (d *Directory) Inode() *inode.Inode { return d.inode }

// initDirectory writes the two reserved entries for a freshly created
// directory whose parent is parentSector (use the directory's own
// sector for the filesystem root, where ".." points at itself).
func initDirectory(in *inode.Inode, parentSector uint32) error {
	if err := writeEntry(in, 0, dirEntry{sector: in.Sector(), name: ".", inUse: true}); err != nil {
		return err
	}
	return writeEntry(in, 1, dirEntry{sector: parentSector, name: "..", inUse: true})
}

// lookup scans linearly for name, returning its entry index and sector.
func (d *Directory) lookup(name string) (idx int, sector uint32, ok bool) {
	n := entryCount(d.inode)
	for i := 0; i < n; i++ {
		e, err := readEntry(d.inode, i)
		if err != nil {
			return 0, 0, false
		}
		if e.inUse && e.name == name {
			return i, e.sector, true
		}
	}
	return 0, 0, false
}

// Lookup is the exported, lock-guarded form of lookup.
func (d *Directory) Lookup(name string) (sector uint32, ok bool) {
	d.lock.Lock()
	defer d.lock.Unlock()
	_, sector, ok = d.lookup(name)
	return sector, ok
}

// add inserts a new entry, reusing a freed slot past the two reserved
// ones when available, otherwise appending.
func (d *Directory) add(name string, sector uint32) error {
	if len(name) > MaxNameLen {
		return ErrNameTooLong
	}
	d.lock.Lock()
	defer d.lock.Unlock()

	if _, _, ok := d.lookup(name); ok {
		return ErrExists
	}

	n := entryCount(d.inode)
	for i := dotEntryCount; i < n; i++ {
		e, err := readEntry(d.inode, i)
		if err != nil {
			return err
		}
		if !e.inUse {
			return writeEntry(d.inode, i, dirEntry{sector: sector, name: name, inUse: true})
		}
	}
	if n < dotEntryCount {
		n = dotEntryCount
	}
	return writeEntry(d.inode, n, dirEntry{sector: sector, name: name, inUse: true})
}

// remove marks name's slot free, refusing when the target is a
// non-empty subdirectory or is some process's cwd. The caller passes
// the already-opened target inode (dir.go only ever sees the entry's
// sector; resolving it to an Inode is the FS facade's job).
func (d *Directory) remove(name string, target *inode.Inode) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	idx, _, ok := d.lookup(name)
	if !ok {
		return ErrNotFound
	}
	if target.IsDir() {
		if target.CwdCount() > 0 {
			return ErrIsCwd
		}
		count := entryCount(target)
		for i := dotEntryCount; i < count; i++ {
			e, err := readEntry(target, i)
			if err != nil {
				return err
			}
			if e.inUse {
				return ErrNotEmpty
			}
		}
	}
	return writeEntry(d.inode, idx, dirEntry{})
}

// unlinkRaw clears name's slot unconditionally; callers that already
// performed their own checks (e.g. Rename, which allows moving a
// non-empty directory that `remove` would otherwise refuse) use this
// instead of remove.
func (d *Directory) unlinkRaw(name string) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	idx, _, ok := d.lookup(name)
	if !ok {
		return ErrNotFound
	}
	return writeEntry(d.inode, idx, dirEntry{})
}

// Readdir returns every in-use name except the reserved "." and "..".
func (d *Directory) Readdir() ([]string, error) {
	d.lock.Lock()
	defer d.lock.Unlock()

	n := entryCount(d.inode)
	var names []string
	for i := dotEntryCount; i < n; i++ {
		e, err := readEntry(d.inode, i)
		if err != nil {
			return nil, fmt.Errorf("vfs: readdir: %w", err)
		}
		if e.inUse {
			names = append(names, e.name)
		}
	}
	return names, nil
}
