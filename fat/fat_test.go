package fat

import (
	"testing"

	"github.com/junhokim/pintgo/block"
)

func newTestTable(t *testing.T, numClusters uint32) *Table {
	t.Helper()
	fatSectors := (numClusters*4 + block.SectorSize - 1) / block.SectorSize
	dev := block.NewMemDevice(1 + fatSectors + numClusters)
	tbl, err := Format(dev, 1, fatSectors, 1+fatSectors, numClusters, 1)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	return tbl
}

func TestCreateChainSingle(t *testing.T) {
	tbl := newTestTable(t, 8)
	c := tbl.CreateChain(0)
	if c == 0 {
		t.Fatalf("expected a cluster")
	}
	if got := tbl.Get(c); got != EndOfChain {
		t.Fatalf("Get(%d) = %#x, want EndOfChain", c, got)
	}
	if n := tbl.Length(c); n != 1 {
		t.Fatalf("Length = %d, want 1", n)
	}
}

func TestCreateChainAppend(t *testing.T) {
	tbl := newTestTable(t, 8)
	head := tbl.CreateChain(0)
	second := tbl.CreateChain(head)
	third := tbl.CreateChain(second)

	if got := tbl.Get(head); got != second {
		t.Fatalf("Get(head) = %d, want %d", got, second)
	}
	if got := tbl.Get(second); got != third {
		t.Fatalf("Get(second) = %d, want %d", got, third)
	}
	if got := tbl.Get(third); got != EndOfChain {
		t.Fatalf("Get(third) = %#x, want EndOfChain", got)
	}
	if n := tbl.Length(head); n != 3 {
		t.Fatalf("Length = %d, want 3", n)
	}
}

func TestOutOfClusters(t *testing.T) {
	tbl := newTestTable(t, 2)
	c1 := tbl.CreateChain(0)
	c2 := tbl.CreateChain(c1)
	if c1 == 0 || c2 == 0 {
		t.Fatalf("expected two successful allocations")
	}
	if c3 := tbl.CreateChain(c2); c3 != 0 {
		t.Fatalf("expected allocation failure, got cluster %d", c3)
	}
}

func TestRemoveChainWholeChain(t *testing.T) {
	tbl := newTestTable(t, 8)
	head := tbl.CreateChain(0)
	second := tbl.CreateChain(head)
	before := tbl.FreeCount()

	if err := tbl.RemoveChain(head, 0); err != nil {
		t.Fatalf("RemoveChain: %v", err)
	}
	if got := tbl.Get(head); got != 0 {
		t.Fatalf("Get(head) = %d, want 0 (free)", got)
	}
	if got := tbl.Get(second); got != 0 {
		t.Fatalf("Get(second) = %d, want 0 (free)", got)
	}
	if after := tbl.FreeCount(); after != before+2 {
		t.Fatalf("FreeCount = %d, want %d", after, before+2)
	}
}

func TestRemoveChainTruncate(t *testing.T) {
	tbl := newTestTable(t, 8)
	head := tbl.CreateChain(0)
	second := tbl.CreateChain(head)
	third := tbl.CreateChain(second)

	if err := tbl.RemoveChain(second, head); err != nil {
		t.Fatalf("RemoveChain: %v", err)
	}
	if got := tbl.Get(head); got != EndOfChain {
		t.Fatalf("Get(head) = %#x, want EndOfChain", got)
	}
	if got := tbl.Get(second); got != 0 {
		t.Fatalf("Get(second) = %d, want 0 (free)", got)
	}
	if got := tbl.Get(third); got != 0 {
		t.Fatalf("Get(third) = %d, want 0 (free)", got)
	}
}

func TestCreateThenRemoveLeavesFreeCountUnchanged(t *testing.T) {
	tbl := newTestTable(t, 16)
	before := tbl.FreeCount()
	head := tbl.CreateChain(0)
	tbl.CreateChain(head)
	if err := tbl.RemoveChain(head, 0); err != nil {
		t.Fatalf("RemoveChain: %v", err)
	}
	if after := tbl.FreeCount(); after != before {
		t.Fatalf("FreeCount = %d, want %d (unchanged)", after, before)
	}
}

func TestNextFitWrapsAround(t *testing.T) {
	tbl := newTestTable(t, 4)
	a := tbl.CreateChain(0)
	b := tbl.CreateChain(0)
	if err := tbl.RemoveChain(a, 0); err != nil {
		t.Fatalf("RemoveChain: %v", err)
	}
	c := tbl.CreateChain(0)
	d := tbl.CreateChain(0)
	if c == 0 || d == 0 {
		t.Fatalf("expected allocations to succeed after freeing one cluster")
	}
	if e := tbl.CreateChain(0); e != a {
		t.Fatalf("allocation after the last cluster = %d, want %d (wrap to the freed cluster)", e, a)
	}
	_ = b
}

func TestClusterSectorRoundTrip(t *testing.T) {
	tbl := newTestTable(t, 8)
	for c := uint32(1); c <= 8; c++ {
		s := tbl.ClusterToSector(c)
		if got := tbl.SectorToCluster(s); got != c {
			t.Fatalf("SectorToCluster(ClusterToSector(%d)) = %d", c, got)
		}
	}
}

func TestLoadRoundTrip(t *testing.T) {
	fatSectors := uint32(1)
	dev := block.NewMemDevice(1 + fatSectors + 8)
	tbl, err := Format(dev, 1, fatSectors, 1+fatSectors, 8, 1)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	head := tbl.CreateChain(0)
	tbl.CreateChain(head)

	reloaded, err := Load(dev, 1, fatSectors, 1+fatSectors, 8, 1)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := reloaded.Length(head); got != 2 {
		t.Fatalf("reloaded Length = %d, want 2", got)
	}
}
