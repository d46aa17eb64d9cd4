package vfs

import "github.com/junhokim/pintgo/inode"

// Handle is the explicit sum type spec.md's design notes call for in
// place of a pointer with a tag bit stolen from its low bit: a caller
// gets back either a File or a Dir, never a raw tagged pointer.
type Handle interface {
	handle()
	// Inumber returns the sector number backing this handle, matching
	// spec.md's filesystem facade operation of the same name.
	Inumber() uint32
	// Close releases the handle's reference on its inode.
	Close() error
}

// File is an open regular file.
type File struct {
	fs     *FS
	inode  *inode.Inode
	offset uint32
}

func (*File) handle() {}

// Inumber returns the backing inode's sector number.
func (f *File) Inumber() uint32 { return f.inode.Sector() }

// Read reads from the file's current offset, advancing it.
func (f *File) Read(buf []byte) (int, error) {
	n, err := f.inode.Read(f.offset, buf)
	f.offset += uint32(n)
	return n, err
}

// Write writes at the file's current offset, advancing it.
func (f *File) Write(buf []byte) (int, error) {
	n, err := f.inode.Write(f.offset, buf)
	f.offset += uint32(n)
	return n, err
}

// ReadAt/WriteAt bypass the cursor, for callers (like the page-fault
// handler's lazy load) that already know the absolute offset.
func (f *File) ReadAt(offset uint32, buf []byte) (int, error)  { return f.inode.Read(offset, buf) }
func (f *File) WriteAt(offset uint32, buf []byte) (int, error) { return f.inode.Write(offset, buf) }

// Seek repositions the cursor.
func (f *File) Seek(offset uint32) { f.offset = offset }

// Length returns the file's current byte length.
func (f *File) Length() uint32 { return f.inode.Length() }

// DenyWrite/AllowWrite forward to the backing inode (see SPEC_FULL.md
// section 4.2's executable-image deny-write supplement).
func (f *File) DenyWrite()  { f.inode.DenyWrite() }
func (f *File) AllowWrite() { f.inode.AllowWrite() }

func (f *File) Close() error {
	return f.fs.inodes.Close(f.inode)
}

// Dir is an open directory.
type Dir struct {
	fs  *FS
	dir *Directory
}

func (*Dir) handle() {}

// Inumber returns the backing inode's sector number.
func (d *Dir) Inumber() uint32 { return d.dir.inode.Sector() }

// Readdir lists entries, skipping "." and "..".
func (d *Dir) Readdir() ([]string, error) { return d.dir.Readdir() }

// Directory exposes the underlying Directory, e.g. to use as a cwd.
func (d *Dir) Directory() *Directory { return d.dir }

func (d *Dir) Close() error {
	return d.fs.inodes.Close(d.dir.inode)
}
