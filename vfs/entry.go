package vfs

import "github.com/junhokim/pintgo/inode"

// MaxNameLen is the longest name a directory entry can hold (14 bytes
// plus an implicit delimiter, matching spec.md's directory-entry shape).
const MaxNameLen = 14

const nameField = 15 // on-disk name field width (room for a NUL byte)
const entrySize = 4 /*inode sector*/ + nameField + 1 /*in_use*/

// dirEntry mirrors the on-disk directory-entry shape from spec.md
// section 6: {inode_sector: u32, name[15], in_use: u8}.
type dirEntry struct {
	sector uint32
	name   string
	inUse  bool
}

func encodeEntry(e dirEntry) []byte {
	buf := make([]byte, entrySize)
	buf[0] = byte(e.sector)
	buf[1] = byte(e.sector >> 8)
	buf[2] = byte(e.sector >> 16)
	buf[3] = byte(e.sector >> 24)
	copy(buf[4:4+nameField], e.name)
	if e.inUse {
		buf[4+nameField] = 1
	}
	return buf
}

func decodeEntry(buf []byte) dirEntry {
	sector := uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
	nameBuf := buf[4 : 4+nameField]
	n := 0
	for n < len(nameBuf) && nameBuf[n] != 0 {
		n++
	}
	return dirEntry{
		sector: sector,
		name:   string(nameBuf[:n]),
		inUse:  buf[4+nameField] != 0,
	}
}

// dotEntryCount is how many reserved slots (".", "..") sit at the front
// of every directory file and are never yielded by Readdir.
const dotEntryCount = 2

func readEntry(in *inode.Inode, idx int) (dirEntry, error) {
	buf := make([]byte, entrySize)
	n, err := in.Read(uint32(idx*entrySize), buf)
	if err != nil {
		return dirEntry{}, err
	}
	if n < entrySize {
		return dirEntry{}, nil
	}
	return decodeEntry(buf), nil
}

func writeEntry(in *inode.Inode, idx int, e dirEntry) error {
	_, err := in.Write(uint32(idx*entrySize), encodeEntry(e))
	return err
}

func entryCount(in *inode.Inode) int {
	return int(in.Length()) / entrySize
}
