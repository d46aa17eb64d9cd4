package block

import (
	"bytes"
	"testing"
)

func TestMemDeviceRoundTrip(t *testing.T) {
	d := NewMemDevice(4)
	want := bytes.Repeat([]byte{0xAB}, SectorSize)
	if err := d.Write(2, want); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got := make([]byte, SectorSize)
	if err := d.Read(2, got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("round trip mismatch")
	}

	other := make([]byte, SectorSize)
	if err := d.Read(0, other); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(other, make([]byte, SectorSize)) {
		t.Fatalf("untouched sector should read back zero")
	}
}

func TestMemDeviceOutOfRange(t *testing.T) {
	d := NewMemDevice(1)
	buf := make([]byte, SectorSize)
	if err := d.Read(5, buf); err == nil {
		t.Fatalf("expected out-of-range error")
	}
	if err := d.Write(5, buf); err == nil {
		t.Fatalf("expected out-of-range error")
	}
}

func TestMemDeviceBadBufferSize(t *testing.T) {
	d := NewMemDevice(1)
	if err := d.Read(0, make([]byte, 10)); err == nil {
		t.Fatalf("expected buffer size error")
	}
}
