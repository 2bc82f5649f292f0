package dzone

import (
	"testing"

	"github.com/sofs14/sofs14/pkg/blockio"
	"github.com/sofs14/sofs14/pkg/sofs"
	"github.com/sofs14/sofs14/pkg/sofs/errs"
)

type fakeSuperblock struct {
	sb *sofs.Superblock
}

func (f *fakeSuperblock) Get() *sofs.Superblock { return f.sb }
func (f *fakeSuperblock) MarkDirty()            {}

// newTestManager builds a Manager over a data zone of n clusters (0..n-1,
// zone-relative), all threaded onto the free list via CleanDataCluster +
// FreeDataCluster, the same sequence pkg/mkfs.Format uses.
func newTestManager(t *testing.T, clusters sofs.ClusterNum) *Manager {
	t.Helper()
	dev := blockio.NewMemDevice(int64(clusters) * sofs.BlocksPerCluster)
	sb := &fakeSuperblock{sb: &sofs.Superblock{DHead: sofs.NullCluster, DTail: sofs.NullCluster}}
	m := NewManager(dev, sb)
	for c := clusters - 1; c >= 1; c-- {
		if err := m.CleanDataCluster(c); err != nil {
			t.Fatalf("CleanDataCluster(%s): %v", c, err)
		}
		if err := m.FreeDataCluster(c); err != nil {
			t.Fatalf("FreeDataCluster(%s): %v", c, err)
		}
	}
	return m
}

func TestAllocFreeRoundTrip(t *testing.T) {
	m := newTestManager(t, 10)

	seen := map[sofs.ClusterNum]bool{}
	for i := 0; i < 9; i++ {
		c, err := m.AllocDataCluster()
		if err != nil {
			t.Fatalf("AllocDataCluster #%d: %v", i, err)
		}
		if c == 0 {
			t.Fatalf("AllocDataCluster returned reserved cluster 0")
		}
		if seen[c] {
			t.Fatalf("AllocDataCluster returned cluster %s twice", c)
		}
		seen[c] = true
	}

	if _, err := m.AllocDataCluster(); !errs.Is(err, errs.ENOSPC) {
		t.Fatalf("AllocDataCluster after exhausting the free list: err = %v, want ENOSPC", err)
	}

	for c := range seen {
		if err := m.FreeDataCluster(c); err != nil {
			t.Fatalf("FreeDataCluster(%s): %v", c, err)
		}
	}
	if _, err := m.AllocDataCluster(); err != nil {
		t.Fatalf("AllocDataCluster after freeing everything back: %v", err)
	}
}

// TestCacheReplenishAcrossBoundary allocates more clusters than fit in a
// single retrieval cache (DzoneCacheSize), forcing at least one
// replenish from the on-disk list partway through.
func TestCacheReplenishAcrossBoundary(t *testing.T) {
	total := sofs.ClusterNum(sofs.DzoneCacheSize*2 + 5)
	m := newTestManager(t, total)

	count := 0
	for {
		if _, err := m.AllocDataCluster(); err != nil {
			if errs.Is(err, errs.ENOSPC) {
				break
			}
			t.Fatalf("AllocDataCluster #%d: %v", count, err)
		}
		count++
	}
	if want := int(total) - 1; count != want {
		t.Fatalf("allocated %d clusters, want %d", count, want)
	}
}

func TestFreeDataClusterZeroRejected(t *testing.T) {
	m := newTestManager(t, 4)
	if err := m.FreeDataCluster(sofs.RootCluster); err == nil {
		t.Fatalf("FreeDataCluster(RootCluster) succeeded, want an error")
	}
}
