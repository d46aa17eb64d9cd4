//go:build unix

package block

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// FileDevice is a block device backed by a regular host file, addressed
// with positioned reads/writes so concurrent sector access never needs a
// shared file offset.
type FileDevice struct {
	f       *os.File
	sectors uint32
}

// NewFileDevice opens (creating if necessary) path and truncates it to
// hold numSectors sectors.
func NewFileDevice(path string, numSectors uint32) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	size := int64(numSectors) * SectorSize
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, err
	}
	return &FileDevice{f: f, sectors: numSectors}, nil
}

// OpenFileDevice opens an existing image file, inferring the sector
// count from its size.
func OpenFileDevice(path string) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &FileDevice{f: f, sectors: uint32(fi.Size() / SectorSize)}, nil
}

func (d *FileDevice) Read(sector uint32, buf []byte) error {
	if err := checkBuf(buf); err != nil {
		return err
	}
	if sector >= d.sectors {
		return &ErrOutOfRange{Sector: sector, Size: d.sectors}
	}
	n, err := unix.Pread(int(d.f.Fd()), buf, int64(sector)*SectorSize)
	if err != nil {
		return err
	}
	if n != SectorSize {
		return &shortIOError{op: "read", sector: sector, n: n}
	}
	return nil
}

func (d *FileDevice) Write(sector uint32, buf []byte) error {
	if err := checkBuf(buf); err != nil {
		return err
	}
	if sector >= d.sectors {
		return &ErrOutOfRange{Sector: sector, Size: d.sectors}
	}
	n, err := unix.Pwrite(int(d.f.Fd()), buf, int64(sector)*SectorSize)
	if err != nil {
		return err
	}
	if n != SectorSize {
		return &shortIOError{op: "write", sector: sector, n: n}
	}
	return nil
}

func (d *FileDevice) Size() uint32 { return d.sectors }

func (d *FileDevice) Close() error { return d.f.Close() }

type shortIOError struct {
	op     string
	sector uint32
	n      int
}

func (e *shortIOError) Error() string {
	return fmt.Sprintf("block: short %s on sector %d: %d bytes", e.op, e.sector, e.n)
}
