// Package vfs implements the directory layer, path resolver, and
// filesystem façade described by spec.md sections 4.3-4.4 and 6: create,
// open, remove, chdir, mkdir, readdir, symlink, inumber, laid on top of
// package inode's in-memory inode table and package fat's cluster
// allocator.
package vfs

import (
	"errors"
	"strings"
	"sync"

	"github.com/junhokim/pintgo/block"
	"github.com/junhokim/pintgo/fat"
	"github.com/junhokim/pintgo/inode"
)

// MaxSymlinkDepth bounds symlink-chain following so a cycle fails
// instead of looping forever.
const MaxSymlinkDepth = 10

// ErrSymlinkLoop is returned when MaxSymlinkDepth is exceeded.
var ErrSymlinkLoop = errors.New("vfs: too many levels of symbolic links")

// ErrInvalidPath is returned for empty paths.
var ErrInvalidPath = errors.New("vfs: invalid path")

// FS is the filesystem façade: the one type user-visible operations
// (create/open/remove/...) are called on.
type FS struct {
	dev    block.Device
	fat    *fat.Table
	inodes *inode.Table

	rootSector uint32

	dirLocksMu sync.Mutex
	dirLocks   map[uint32]*sync.Mutex
}

// Format lays down a fresh boot record, FAT, and root directory on dev,
// sized to totalSectors, and returns the mounted filesystem.
func Format(dev block.Device, totalSectors uint32) (*FS, error) {
	if err := validateTotalSectors(totalSectors); err != nil {
		return nil, err
	}
	fatSectors, numClusters, dataStart := planLayout(totalSectors)

	ft, err := fat.Format(dev, 1, fatSectors, dataStart, numClusters, 1)
	if err != nil {
		return nil, err
	}
	inodes := inode.NewTable(dev, ft)

	rootCluster := ft.CreateChain(0)
	if rootCluster == 0 {
		return nil, errors.New("vfs: image too small to hold a root directory")
	}
	rootSector := ft.ClusterToSector(rootCluster)
	if err := inodes.Create(rootSector, 0, inode.FlagDir); err != nil {
		return nil, err
	}
	rootInode, err := inodes.Open(rootSector)
	if err != nil {
		return nil, err
	}
	if err := initDirectory(rootInode, rootSector); err != nil {
		return nil, err
	}
	if err := inodes.Close(rootInode); err != nil {
		return nil, err
	}

	boot := &bootRecord{
		Magic:             BootMagic,
		SectorsPerCluster: 1,
		TotalSectors:      totalSectors,
		FatStart:          1,
		FatSectors:        fatSectors,
		RootDirCluster:    rootCluster,
		VolumeID:          newVolumeID(),
	}
	if err := writeBootRecord(dev, boot); err != nil {
		return nil, err
	}

	return &FS{
		dev:        dev,
		fat:        ft,
		inodes:     inodes,
		rootSector: rootSector,
		dirLocks:   make(map[uint32]*sync.Mutex),
	}, nil
}

// Mount opens an already-formatted image, panicking (per spec.md
// section 7's "malformed on-disk state" rule) if the boot magic doesn't
// match.
func Mount(dev block.Device) (*FS, error) {
	boot, err := readBootRecord(dev)
	if err != nil {
		return nil, err
	}
	ft, err := fat.Load(dev, boot.FatStart, boot.FatSectors, boot.FatStart+boot.FatSectors, boot.TotalSectors-1-boot.FatSectors, boot.SectorsPerCluster)
	if err != nil {
		return nil, err
	}
	inodes := inode.NewTable(dev, ft)
	rootSector := ft.ClusterToSector(boot.RootDirCluster)
	return &FS{
		dev:        dev,
		fat:        ft,
		inodes:     inodes,
		rootSector: rootSector,
		dirLocks:   make(map[uint32]*sync.Mutex),
	}, nil
}

func (fsys *FS) dirLock(sector uint32) *sync.Mutex {
	fsys.dirLocksMu.Lock()
	defer fsys.dirLocksMu.Unlock()
	l, ok := fsys.dirLocks[sector]
	if !ok {
		l = &sync.Mutex{}
		fsys.dirLocks[sector] = l
	}
	return l
}

func (fsys *FS) openDirAt(sector uint32) (*Directory, error) {
	in, err := fsys.inodes.Open(sector)
	if err != nil {
		return nil, err
	}
	if !in.IsDir() {
		fsys.inodes.Close(in)
		return nil, ErrNotDir
	}
	return &Directory{inode: in, lock: fsys.dirLock(sector)}, nil
}

// Root returns the root directory, opened.
func (fsys *FS) Root() (*Directory, error) {
	return fsys.openDirAt(fsys.rootSector)
}

// ReleaseDir closes a Directory obtained from Root, Chdir, or internally
// during path resolution.
func (fsys *FS) ReleaseDir(d *Directory) error {
	if d == nil {
		return nil
	}
	return fsys.inodes.Close(d.inode)
}

// findDir resolves all but the last component of path, returning the
// open parent directory and the final component's name. The returned
// Directory must be released by the caller.
func (fsys *FS) findDir(path string, cwd *Directory) (*Directory, string, error) {
	if path == "" {
		return nil, "", ErrInvalidPath
	}

	var cur *Directory
	var err error
	if strings.HasPrefix(path, "/") || cwd == nil {
		cur, err = fsys.Root()
	} else {
		cur, err = fsys.openDirAt(cwd.inode.Sector())
	}
	if err != nil {
		return nil, "", err
	}

	raw := strings.Split(path, "/")
	tokens := make([]string, 0, len(raw))
	for _, tok := range raw {
		if tok != "" {
			tokens = append(tokens, tok)
		}
	}
	if len(tokens) == 0 {
		// A path of only slashes ("/"): final component is ".".
		return cur, ".", nil
	}

	for i := 0; i < len(tokens)-1; i++ {
		tok := tokens[i]
		if len(tok) > MaxNameLen {
			fsys.ReleaseDir(cur)
			return nil, "", ErrNameTooLong
		}
		sector, ok := cur.Lookup(tok)
		if !ok {
			fsys.ReleaseDir(cur)
			return nil, "", ErrNotFound
		}
		next, err := fsys.openDirAt(sector)
		fsys.ReleaseDir(cur)
		if err != nil {
			return nil, "", err
		}
		cur = next
	}

	last := tokens[len(tokens)-1]
	if len(last) > MaxNameLen {
		fsys.ReleaseDir(cur)
		return nil, "", ErrNameTooLong
	}
	return cur, last, nil
}

// lookupEntry resolves path to its immediate directory entry, without
// following a terminal symlink. The returned parent must be released.
func (fsys *FS) lookupEntry(path string, cwd *Directory) (parent *Directory, name string, sector uint32, err error) {
	parent, name, err = fsys.findDir(path, cwd)
	if err != nil {
		return nil, "", 0, err
	}
	sector, ok := parent.Lookup(name)
	if !ok {
		fsys.ReleaseDir(parent)
		return nil, "", 0, ErrNotFound
	}
	return parent, name, sector, nil
}

// Create makes a new regular file at path with the given initial size
// (matching spec.md's create(path, length) operation).
func (fsys *FS) Create(path string, cwd *Directory, initialSize uint32) error {
	parent, name, err := fsys.findDir(path, cwd)
	if err != nil {
		return err
	}
	defer fsys.ReleaseDir(parent)

	cluster := fsys.fat.CreateChain(0)
	if cluster == 0 {
		return inode.ErrNoSpace
	}
	sector := fsys.fat.ClusterToSector(cluster)
	if err := fsys.inodes.Create(sector, initialSize, 0); err != nil {
		fsys.fat.RemoveChain(cluster, 0)
		return err
	}
	if err := parent.add(name, sector); err != nil {
		fsys.fat.RemoveChain(cluster, 0)
		return err
	}
	return nil
}

// Mkdir creates a new, empty subdirectory at path.
func (fsys *FS) Mkdir(path string, cwd *Directory) error {
	parent, name, err := fsys.findDir(path, cwd)
	if err != nil {
		return err
	}
	defer fsys.ReleaseDir(parent)

	cluster := fsys.fat.CreateChain(0)
	if cluster == 0 {
		return inode.ErrNoSpace
	}
	sector := fsys.fat.ClusterToSector(cluster)
	if err := fsys.inodes.Create(sector, 0, inode.FlagDir); err != nil {
		fsys.fat.RemoveChain(cluster, 0)
		return err
	}
	newDirInode, err := fsys.inodes.Open(sector)
	if err != nil {
		fsys.fat.RemoveChain(cluster, 0)
		return err
	}
	if err := initDirectory(newDirInode, parent.inode.Sector()); err != nil {
		fsys.inodes.Close(newDirInode)
		return err
	}
	if err := parent.add(name, sector); err != nil {
		fsys.inodes.Close(newDirInode)
		return err
	}
	return fsys.inodes.Close(newDirInode)
}

// Symlink creates a symlink at linkPath whose content is target.
func (fsys *FS) Symlink(target, linkPath string, cwd *Directory) error {
	parent, name, err := fsys.findDir(linkPath, cwd)
	if err != nil {
		return err
	}
	defer fsys.ReleaseDir(parent)

	cluster := fsys.fat.CreateChain(0)
	if cluster == 0 {
		return inode.ErrNoSpace
	}
	sector := fsys.fat.ClusterToSector(cluster)
	if err := fsys.inodes.Create(sector, 0, inode.FlagSymlink); err != nil {
		fsys.fat.RemoveChain(cluster, 0)
		return err
	}
	linkInode, err := fsys.inodes.Open(sector)
	if err != nil {
		fsys.fat.RemoveChain(cluster, 0)
		return err
	}
	if err := linkInode.WriteLinkTarget(target); err != nil {
		fsys.inodes.Close(linkInode)
		return err
	}
	if err := parent.add(name, sector); err != nil {
		fsys.inodes.Close(linkInode)
		return err
	}
	return fsys.inodes.Close(linkInode)
}

// Open resolves path (following a terminal symlink chain, as spec.md's
// design notes describe resolving once at open time) and returns a
// Handle: a *File for regular files, a *Dir for directories.
func (fsys *FS) Open(path string, cwd *Directory) (Handle, error) {
	in, err := fsys.resolveFollowingSymlinks(path, cwd, 0)
	if err != nil {
		return nil, err
	}
	if in.IsDir() {
		return &Dir{fs: fsys, dir: &Directory{inode: in, lock: fsys.dirLock(in.Sector())}}, nil
	}
	return &File{fs: fsys, inode: in}, nil
}

func (fsys *FS) resolveFollowingSymlinks(path string, cwd *Directory, depth int) (*inode.Inode, error) {
	if depth > MaxSymlinkDepth {
		return nil, ErrSymlinkLoop
	}
	parent, _, sector, err := fsys.lookupEntry(path, cwd)
	if err != nil {
		return nil, err
	}
	in, err := fsys.inodes.Open(sector)
	if err != nil {
		fsys.ReleaseDir(parent)
		return nil, err
	}
	if !in.IsSymlink() {
		fsys.ReleaseDir(parent)
		return in, nil
	}
	target, err := in.ReadLinkTarget()
	fsys.inodes.Close(in)
	if err != nil {
		fsys.ReleaseDir(parent)
		return nil, err
	}
	resolved, err := fsys.resolveFollowingSymlinks(target, parent, depth+1)
	fsys.ReleaseDir(parent)
	return resolved, err
}

// Remove unlinks path. If it names a directory, the directory must be
// empty and not any process's cwd.
func (fsys *FS) Remove(path string, cwd *Directory) error {
	parent, name, sector, err := fsys.lookupEntry(path, cwd)
	if err != nil {
		return err
	}
	defer fsys.ReleaseDir(parent)

	target, err := fsys.inodes.Open(sector)
	if err != nil {
		return err
	}
	if err := parent.remove(name, target); err != nil {
		fsys.inodes.Close(target)
		return err
	}
	target.Remove()
	return fsys.inodes.Close(target)
}

// Chdir resolves path to a directory and returns it, opened, with its
// cwd-reference count incremented. The caller is responsible for
// decrementing and releasing the directory that was previously the
// thread's cwd.
func (fsys *FS) Chdir(path string, cwd *Directory) (*Directory, error) {
	in, err := fsys.resolveFollowingSymlinks(path, cwd, 0)
	if err != nil {
		return nil, err
	}
	if !in.IsDir() {
		fsys.inodes.Close(in)
		return nil, ErrNotDir
	}
	in.IncCwd()
	return &Directory{inode: in, lock: fsys.dirLock(in.Sector())}, nil
}

// Readdir lists path's entries.
func (fsys *FS) Readdir(path string, cwd *Directory) ([]string, error) {
	h, err := fsys.Open(path, cwd)
	if err != nil {
		return nil, err
	}
	defer h.Close()
	d, ok := h.(*Dir)
	if !ok {
		return nil, ErrNotDir
	}
	return d.Readdir()
}

// Inumber returns the inode sector backing an open handle.
func (fsys *FS) Inumber(h Handle) uint32 { return h.Inumber() }

// FreeClusters reports how many clusters remain unallocated, for tests
// that check create+remove leaves the free count unchanged.
func (fsys *FS) FreeClusters() int { return fsys.fat.FreeCount() }

// Inodes exposes the underlying inode table, for callers (package
// kernel's process loader) that need to open an inode directly rather
// than through a Handle — e.g. to back a memory-mapped region.
func (fsys *FS) Inodes() *inode.Table { return fsys.inodes }

// isAncestor reports whether ancestorSector is dir or one of its
// ancestors, walking ".." up to the root with a bounded depth so a
// corrupt chain can't loop forever.
func (fsys *FS) isAncestor(ancestorSector uint32, dir *Directory) bool {
	sector := dir.inode.Sector()
	for depth := 0; depth < 1024; depth++ {
		if sector == ancestorSector {
			return true
		}
		if sector == fsys.rootSector {
			return false
		}
		d, err := fsys.openDirAt(sector)
		if err != nil {
			return false
		}
		parentSector, ok := d.Lookup("..")
		fsys.ReleaseDir(d)
		if !ok {
			return false
		}
		sector = parentSector
	}
	return false
}

// Rename moves oldPath to newPath (supplemented per SPEC_FULL.md
// section 4.3: not present in the original kept sources, but exercised
// by spec.md's boundary-behavior test "rename directory to a path
// where it is some process's cwd fails").
func (fsys *FS) Rename(oldPath, newPath string, cwd *Directory) error {
	oldParent, oldName, sector, err := fsys.lookupEntry(oldPath, cwd)
	if err != nil {
		return err
	}
	defer fsys.ReleaseDir(oldParent)

	target, err := fsys.inodes.Open(sector)
	if err != nil {
		return err
	}
	defer fsys.inodes.Close(target)

	if target.IsDir() && target.CwdCount() > 0 {
		return ErrIsCwd
	}

	newParent, newName, err := fsys.findDir(newPath, cwd)
	if err != nil {
		return err
	}
	defer fsys.ReleaseDir(newParent)

	if target.IsDir() && fsys.isAncestor(sector, newParent) {
		return errors.New("vfs: cannot move a directory inside itself")
	}

	if err := newParent.add(newName, sector); err != nil {
		return err
	}
	if err := oldParent.unlinkRaw(oldName); err != nil {
		return err
	}
	if target.IsDir() {
		return writeEntry(target, 1, dirEntry{sector: newParent.inode.Sector(), name: "..", inUse: true})
	}
	return nil
}
