package vfs

import (
	"encoding/binary"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/junhokim/pintgo/block"
)

// BootMagic identifies a formatted pintgo filesystem image.
const BootMagic uint32 = 0x50465342 // "PFSB"

// bootSector is the sector holding the boot record. The root
// directory's cluster is recorded there as whatever the FAT allocator
// handed back at format time.
const bootSector = 0

// entriesPerFATSector mirrors fat.entriesPerSector without importing
// fat's unexported constant.
const entriesPerFATSector = block.SectorSize / 4

type bootRecord struct {
	Magic             uint32
	SectorsPerCluster uint32
	TotalSectors      uint32
	FatStart          uint32
	FatSectors        uint32
	RootDirCluster    uint32
	VolumeID          [16]byte
}

func (b *bootRecord) encode() []byte {
	buf := make([]byte, block.SectorSize)
	binary.LittleEndian.PutUint32(buf[0:4], b.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], b.SectorsPerCluster)
	binary.LittleEndian.PutUint32(buf[8:12], b.TotalSectors)
	binary.LittleEndian.PutUint32(buf[12:16], b.FatStart)
	binary.LittleEndian.PutUint32(buf[16:20], b.FatSectors)
	binary.LittleEndian.PutUint32(buf[20:24], b.RootDirCluster)
	copy(buf[24:40], b.VolumeID[:])
	return buf
}

func decodeBootRecord(buf []byte) *bootRecord {
	b := &bootRecord{
		Magic:             binary.LittleEndian.Uint32(buf[0:4]),
		SectorsPerCluster: binary.LittleEndian.Uint32(buf[4:8]),
		TotalSectors:      binary.LittleEndian.Uint32(buf[8:12]),
		FatStart:          binary.LittleEndian.Uint32(buf[12:16]),
		FatSectors:        binary.LittleEndian.Uint32(buf[16:20]),
		RootDirCluster:    binary.LittleEndian.Uint32(buf[20:24]),
	}
	copy(b.VolumeID[:], buf[24:40])
	return b
}

// planLayout computes how many sectors the FAT needs to address every
// remaining sector as a cluster (sectors_per_cluster is fixed at 1, per
// spec.md section 6), solving fatSectors*entriesPerFATSector >=
// totalSectors-1-fatSectors for the smallest integer fatSectors.
func planLayout(totalSectors uint32) (fatSectors, numClusters, dataStart uint32) {
	fatSectors = (totalSectors - 1 + entriesPerFATSector) / (entriesPerFATSector + 1)
	if fatSectors == 0 {
		fatSectors = 1
	}
	numClusters = totalSectors - 1 - fatSectors
	dataStart = 1 + fatSectors
	return
}

func readBootRecord(dev block.Device) (*bootRecord, error) {
	buf := make([]byte, block.SectorSize)
	if err := dev.Read(bootSector, buf); err != nil {
		return nil, err
	}
	b := decodeBootRecord(buf)
	if b.Magic != BootMagic {
		log.Panicf("vfs: boot record magic mismatch: got %#x, want %#x", b.Magic, BootMagic)
	}
	return b, nil
}

func writeBootRecord(dev block.Device, b *bootRecord) error {
	return dev.Write(bootSector, b.encode())
}

func validateTotalSectors(totalSectors uint32) error {
	if totalSectors < 8 {
		return fmt.Errorf("vfs: image too small: %d sectors", totalSectors)
	}
	return nil
}

func newVolumeID() [16]byte {
	var id [16]byte
	copy(id[:], uuid.New()[:])
	return id
}
