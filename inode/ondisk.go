package inode

import (
	"encoding/binary"
	"fmt"

	"github.com/junhokim/pintgo/block"
)

// Magic identifies a valid on-disk inode sector.
const Magic uint32 = 0x494e4f44 // "INOD"

// Flag bits packed into the on-disk inode's Flags field.
const (
	FlagDir     uint32 = 1 << 0
	FlagSymlink uint32 = 1 << 1
)

// onDisk is the exact 512-byte on-disk inode record: start cluster,
// self sector, length in bytes, flag bits, magic, and reserved padding.
// It is encoded field by field with encoding/binary's LittleEndian
// accessors at fixed offsets into a sector-sized byte slice.
type onDisk struct {
	Start      uint32
	SelfSector uint32
	Length     uint32
	Flags      uint32
	Magic      uint32
	Reserved   [block.SectorSize - 5*4]byte
}

func (d *onDisk) encode() []byte {
	buf := make([]byte, block.SectorSize)
	binary.LittleEndian.PutUint32(buf[0:4], d.Start)
	binary.LittleEndian.PutUint32(buf[4:8], d.SelfSector)
	binary.LittleEndian.PutUint32(buf[8:12], d.Length)
	binary.LittleEndian.PutUint32(buf[12:16], d.Flags)
	binary.LittleEndian.PutUint32(buf[16:20], d.Magic)
	copy(buf[20:], d.Reserved[:])
	return buf
}

func decodeOnDisk(buf []byte) (*onDisk, error) {
	if len(buf) != block.SectorSize {
		return nil, fmt.Errorf("inode: decode buffer must be %d bytes, got %d", block.SectorSize, len(buf))
	}
	d := &onDisk{
		Start:      binary.LittleEndian.Uint32(buf[0:4]),
		SelfSector: binary.LittleEndian.Uint32(buf[4:8]),
		Length:     binary.LittleEndian.Uint32(buf[8:12]),
		Flags:      binary.LittleEndian.Uint32(buf[12:16]),
		Magic:      binary.LittleEndian.Uint32(buf[16:20]),
	}
	copy(d.Reserved[:], buf[20:])
	return d, nil
}
