package fcluster

import (
	"testing"

	"github.com/sofs14/sofs14/pkg/blockio"
	"github.com/sofs14/sofs14/pkg/sofs"
	"github.com/sofs14/sofs14/pkg/sofs/dzone"
	"github.com/sofs14/sofs14/pkg/sofs/errs"
	"github.com/sofs14/sofs14/pkg/sofs/inode"
)

type fakeSuperblock struct {
	sb *sofs.Superblock
}

func (f *fakeSuperblock) Get() *sofs.Superblock { return f.sb }
func (f *fakeSuperblock) MarkDirty()            {}

// newTestManager builds a Manager over an inode table of itotal inodes and
// a data zone of dclusters clusters (0..dclusters-1, zone-relative), the
// data zone threaded onto dzone's free list the same way pkg/mkfs.Format
// does it.
func newTestManager(t *testing.T, itotal uint32, dclusters sofs.ClusterNum) (*Manager, *inode.Manager, blockio.Device) {
	t.Helper()
	itableBlocks := int64(itotal) / sofs.InodesPerBlock
	dev := blockio.NewMemDevice(itableBlocks + int64(dclusters)*sofs.BlocksPerCluster)
	for b := int64(0); b < itableBlocks; b++ {
		if err := dev.WriteBlock(b, make([]byte, sofs.BlockSize)); err != nil {
			t.Fatalf("zero inode table: %v", err)
		}
	}
	dev.SetDZoneStart(itableBlocks)

	im := inode.NewManager(dev, inode.Table{ITableStart: 0, ITotal: itotal})
	sb := &fakeSuperblock{sb: &sofs.Superblock{DHead: sofs.NullCluster, DTail: sofs.NullCluster}}
	dzMgr := dzone.NewManager(dev, sb)
	for c := dclusters - 1; c >= 1; c-- {
		if err := dzMgr.CleanDataCluster(c); err != nil {
			t.Fatalf("CleanDataCluster(%s): %v", c, err)
		}
		if err := dzMgr.FreeDataCluster(c); err != nil {
			t.Fatalf("FreeDataCluster(%s): %v", c, err)
		}
	}

	return NewManager(dev, im, dzMgr), im, dev
}

// blankInode writes a fully-dissociated inode record (no clusters attached)
// at n, the starting point most of these tests build on.
func blankInode(t *testing.T, im *inode.Manager, n sofs.InodeNum) {
	t.Helper()
	rec := &sofs.Inode{I1: sofs.NullCluster, I2: sofs.NullCluster}
	for i := range rec.D {
		rec.D[i] = sofs.NullCluster
	}
	if err := im.WriteInode(n, rec); err != nil {
		t.Fatalf("seed blank inode %s: %v", n, err)
	}
}

func TestHandleDirectAllocFreeRoundTrip(t *testing.T) {
	fc, im, _ := newTestManager(t, 8, 8)
	const n sofs.InodeNum = 1
	blankInode(t, im, n)

	c, err := fc.HandleFileCluster(n, 0, sofs.OpAlloc)
	if err != nil {
		t.Fatalf("HandleFileCluster(OpAlloc): %v", err)
	}
	if c == sofs.NullCluster {
		t.Fatalf("HandleFileCluster(OpAlloc) returned NullCluster")
	}

	rec, err := im.ReadInode(n)
	if err != nil {
		t.Fatalf("ReadInode: %v", err)
	}
	if rec.D[0] != c {
		t.Errorf("rec.D[0] = %s, want %s", rec.D[0], c)
	}
	if rec.CluCount != 1 {
		t.Errorf("rec.CluCount = %d, want 1", rec.CluCount)
	}

	got, err := fc.HandleFileCluster(n, 0, sofs.OpGet)
	if err != nil {
		t.Fatalf("HandleFileCluster(OpGet): %v", err)
	}
	if got != c {
		t.Errorf("HandleFileCluster(OpGet) = %s, want %s", got, c)
	}

	if _, err := fc.HandleFileCluster(n, 0, sofs.OpAlloc); !errs.Is(err, errs.EDCARDYIL) {
		t.Fatalf("second OpAlloc on the same slot: err = %v, want EDCARDYIL", err)
	}

	if _, err := fc.HandleFileCluster(n, 0, sofs.OpFree); err != nil {
		t.Fatalf("HandleFileCluster(OpFree): %v", err)
	}
	rec, err = im.ReadInode(n)
	if err != nil {
		t.Fatalf("ReadInode after free: %v", err)
	}
	if rec.D[0] != sofs.NullCluster {
		t.Errorf("rec.D[0] after free = %s, want NullCluster", rec.D[0])
	}
	if rec.CluCount != 0 {
		t.Errorf("rec.CluCount after free = %d, want 0", rec.CluCount)
	}

	if _, err := fc.HandleFileCluster(n, 0, sofs.OpFree); !errs.Is(err, errs.EDCNOTIL) {
		t.Fatalf("double free: err = %v, want EDCNOTIL", err)
	}
}

// TestSingleIndirectCluCount checks spec.md §4.5/§8: allocating the first
// single-indirect slot must count both the newly allocated I1 reference
// cluster and the data cluster it points at, and collapsing the now-empty
// I1 block on free must reverse both increments.
func TestSingleIndirectCluCount(t *testing.T) {
	fc, im, _ := newTestManager(t, 8, 16)
	const n sofs.InodeNum = 1
	blankInode(t, im, n)

	const idx = sofs.ClustIndex(sofs.NDirect)
	if _, err := fc.HandleFileCluster(n, idx, sofs.OpAlloc); err != nil {
		t.Fatalf("HandleFileCluster(OpAlloc) on first single-indirect slot: %v", err)
	}

	rec, err := im.ReadInode(n)
	if err != nil {
		t.Fatalf("ReadInode: %v", err)
	}
	if rec.I1 == sofs.NullCluster {
		t.Fatalf("rec.I1 still NullCluster after allocating a single-indirect slot")
	}
	if rec.CluCount != 2 {
		t.Errorf("rec.CluCount after single-indirect alloc = %d, want 2 (I1 + data)", rec.CluCount)
	}

	if err := fc.HandleFileClusters(n, 0, sofs.OpFree); err != nil {
		t.Fatalf("HandleFileClusters(OpFree): %v", err)
	}
	rec, err = im.ReadInode(n)
	if err != nil {
		t.Fatalf("ReadInode after sweep: %v", err)
	}
	if rec.I1 != sofs.NullCluster {
		t.Errorf("rec.I1 after freeing the only slot in it = %s, want NullCluster (collapsed)", rec.I1)
	}
	if rec.CluCount != 0 {
		t.Errorf("rec.CluCount after collapse = %d, want 0", rec.CluCount)
	}
}

// TestDoubleIndirectCluCount is the same check one level deeper: the first
// double-indirect slot allocates I2, the outer table's first inner
// reference cluster, and the data cluster itself — three increments, all
// three reversed when the sweep collapses everything back down.
func TestDoubleIndirectCluCount(t *testing.T) {
	fc, im, _ := newTestManager(t, 8, 24)
	const n sofs.InodeNum = 1
	blankInode(t, im, n)

	const idx = sofs.ClustIndex(sofs.NDirect + sofs.ReferencesPerCluster)
	if _, err := fc.HandleFileCluster(n, idx, sofs.OpAlloc); err != nil {
		t.Fatalf("HandleFileCluster(OpAlloc) on first double-indirect slot: %v", err)
	}

	rec, err := im.ReadInode(n)
	if err != nil {
		t.Fatalf("ReadInode: %v", err)
	}
	if rec.I2 == sofs.NullCluster {
		t.Fatalf("rec.I2 still NullCluster after allocating a double-indirect slot")
	}
	if rec.CluCount != 3 {
		t.Errorf("rec.CluCount after double-indirect alloc = %d, want 3 (I2 + inner ref + data)", rec.CluCount)
	}

	if err := fc.HandleFileClusters(n, 0, sofs.OpFree); err != nil {
		t.Fatalf("HandleFileClusters(OpFree): %v", err)
	}
	rec, err = im.ReadInode(n)
	if err != nil {
		t.Fatalf("ReadInode after sweep: %v", err)
	}
	if rec.I2 != sofs.NullCluster {
		t.Errorf("rec.I2 after freeing the only slot beneath it = %s, want NullCluster (collapsed)", rec.I2)
	}
	if rec.CluCount != 0 {
		t.Errorf("rec.CluCount after collapse = %d, want 0", rec.CluCount)
	}
}

// TestCleanInodeDissociatesDirtyCluster exercises spec.md §4.2's cleanInode
// by hand: an inode left FREE-DIRTY still records a data cluster stamped
// with its own inode number. CleanInode must dissociate it (header stat ->
// NULL_INODE) and clear the inode's own reference, without re-freeing the
// cluster onto dzone's list (it was already freed by whatever FREE pass
// made the inode dirty in the first place).
func TestCleanInodeDissociatesDirtyCluster(t *testing.T) {
	fc, im, dev := newTestManager(t, 8, 8)
	const n sofs.InodeNum = 1

	const dataClust sofs.ClusterNum = 2
	hdr := &sofs.ClusterHeader{Stat: n, Prev: sofs.NullCluster, Next: sofs.NullCluster}
	raw := make([]byte, sofs.ClusterSize)
	copy(raw, hdr.Encode())
	if err := dev.WriteCluster(dataClust, raw); err != nil {
		t.Fatalf("seed dirty cluster %s: %v", dataClust, err)
	}

	rec := &sofs.Inode{Mode: sofs.ModeFree, CluCount: 1, I1: sofs.NullCluster, I2: sofs.NullCluster}
	rec.D[0] = dataClust
	for i := 1; i < len(rec.D); i++ {
		rec.D[i] = sofs.NullCluster
	}
	if err := im.WriteInode(n, rec); err != nil {
		t.Fatalf("seed FREE-DIRTY inode %s: %v", n, err)
	}

	if err := fc.CleanInode(n); err != nil {
		t.Fatalf("CleanInode(%s): %v", n, err)
	}

	got, err := im.ReadInode(n)
	if err != nil {
		t.Fatalf("ReadInode after CleanInode: %v", err)
	}
	if got.D[0] != sofs.NullCluster {
		t.Errorf("rec.D[0] after CleanInode = %s, want NullCluster", got.D[0])
	}
	if got.CluCount != 0 {
		t.Errorf("rec.CluCount after CleanInode = %d, want 0", got.CluCount)
	}

	clustRaw, err := dev.ReadCluster(dataClust)
	if err != nil {
		t.Fatalf("ReadCluster(%s): %v", dataClust, err)
	}
	clustHdr, err := sofs.DecodeClusterHeader(clustRaw)
	if err != nil {
		t.Fatalf("DecodeClusterHeader: %v", err)
	}
	if clustHdr.Stat != sofs.NullInode {
		t.Errorf("cluster %s stat after CleanInode = %s, want NullInode (dissociated)", dataClust, clustHdr.Stat)
	}
}

// TestCleanInodeRejectsMismatchedOwner guards against cleaning a cluster
// that was reassigned to a different inode between the free and the clean
// (spec.md's EWGINODENB stat check).
func TestCleanInodeRejectsMismatchedOwner(t *testing.T) {
	fc, im, dev := newTestManager(t, 8, 8)
	const n sofs.InodeNum = 1
	const otherOwner sofs.InodeNum = 2

	const dataClust sofs.ClusterNum = 2
	hdr := &sofs.ClusterHeader{Stat: otherOwner, Prev: sofs.NullCluster, Next: sofs.NullCluster}
	raw := make([]byte, sofs.ClusterSize)
	copy(raw, hdr.Encode())
	if err := dev.WriteCluster(dataClust, raw); err != nil {
		t.Fatalf("seed cluster %s: %v", dataClust, err)
	}

	rec := &sofs.Inode{Mode: sofs.ModeFree, CluCount: 1, I1: sofs.NullCluster, I2: sofs.NullCluster}
	rec.D[0] = dataClust
	for i := 1; i < len(rec.D); i++ {
		rec.D[i] = sofs.NullCluster
	}
	if err := im.WriteInode(n, rec); err != nil {
		t.Fatalf("seed inode %s: %v", n, err)
	}

	if err := fc.CleanInode(n); !errs.Is(err, errs.EWGINODENB) {
		t.Fatalf("CleanInode with mismatched owner: err = %v, want EWGINODENB", err)
	}
}

func TestAttachLogicalClusterLinksNeighbors(t *testing.T) {
	fc, im, dev := newTestManager(t, 8, 8)
	const n sofs.InodeNum = 1
	blankInode(t, im, n)

	var clusters [3]sofs.ClusterNum
	for i := range clusters {
		c, err := fc.HandleFileCluster(n, sofs.ClustIndex(i), sofs.OpAlloc)
		if err != nil {
			t.Fatalf("HandleFileCluster(OpAlloc) slot %d: %v", i, err)
		}
		clusters[i] = c
	}
	for i := range clusters {
		if err := fc.AttachLogicalCluster(n, sofs.ClustIndex(i)); err != nil {
			t.Fatalf("AttachLogicalCluster(%d): %v", i, err)
		}
	}

	for i, c := range clusters {
		raw, err := dev.ReadCluster(c)
		if err != nil {
			t.Fatalf("ReadCluster(%s): %v", c, err)
		}
		hdr, err := sofs.DecodeClusterHeader(raw)
		if err != nil {
			t.Fatalf("DecodeClusterHeader: %v", err)
		}
		wantPrev, wantNext := sofs.NullCluster, sofs.NullCluster
		if i > 0 {
			wantPrev = clusters[i-1]
		}
		if i < len(clusters)-1 {
			wantNext = clusters[i+1]
		}
		if hdr.Prev != wantPrev {
			t.Errorf("cluster %d (%s) Prev = %s, want %s", i, c, hdr.Prev, wantPrev)
		}
		if hdr.Next != wantNext {
			t.Errorf("cluster %d (%s) Next = %s, want %s", i, c, hdr.Next, wantNext)
		}
	}
}
