package ifree

import (
	"testing"

	"github.com/sofs14/sofs14/pkg/blockio"
	"github.com/sofs14/sofs14/pkg/sofs"
	"github.com/sofs14/sofs14/pkg/sofs/dzone"
	"github.com/sofs14/sofs14/pkg/sofs/errs"
	"github.com/sofs14/sofs14/pkg/sofs/fcluster"
	"github.com/sofs14/sofs14/pkg/sofs/inode"
)

// fakeSuperblock is the narrowest possible Superblock: just enough state
// for ifree's and dzone's bookkeeping, without pulling in pkg/sofs/super.
type fakeSuperblock struct {
	sb *sofs.Superblock
}

func (f *fakeSuperblock) Get() *sofs.Superblock { return f.sb }
func (f *fakeSuperblock) MarkDirty()            {}

func newTestManager(t *testing.T, itotal uint32) (*Manager, blockio.Device) {
	t.Helper()
	blocks := int64(itotal)/sofs.InodesPerBlock + 4
	dev := blockio.NewMemDevice(blocks)
	for b := int64(0); b < int64(itotal)/sofs.InodesPerBlock; b++ {
		if err := dev.WriteBlock(b, make([]byte, sofs.BlockSize)); err != nil {
			t.Fatalf("zero inode table: %v", err)
		}
	}
	im := inode.NewManager(dev, inode.Table{ITableStart: 0, ITotal: itotal})
	sb := &fakeSuperblock{sb: &sofs.Superblock{
		IHead: sofs.NullInode, ITail: sofs.NullInode,
		DHead: sofs.NullCluster, DTail: sofs.NullCluster,
	}}
	dzMgr := dzone.NewManager(dev, sb)
	fcMgr := fcluster.NewManager(dev, im, dzMgr)
	return NewManager(sb, im, fcMgr), dev
}

func TestAllocInodeOnEmptyListReturnsENOSPC(t *testing.T) {
	m, _ := newTestManager(t, 4)
	_, err := m.AllocInode(sofs.TypeKindFile, 0644, 0, 0)
	if !errs.Is(err, errs.ENOSPC) {
		t.Fatalf("AllocInode on empty free list: err = %v, want ENOSPC", err)
	}
}

func TestFreeThenAllocRoundTrip(t *testing.T) {
	m, _ := newTestManager(t, 8)

	for n := sofs.InodeNum(1); n < 8; n++ {
		if err := m.FreeInode(n); err != nil {
			t.Fatalf("FreeInode(%s): %v", n, err)
		}
	}

	seen := map[sofs.InodeNum]bool{}
	for i := 0; i < 7; i++ {
		n, err := m.AllocInode(sofs.TypeKindFile, sofs.Mode(0644), 1, 2)
		if err != nil {
			t.Fatalf("AllocInode #%d: %v", i, err)
		}
		if seen[n] {
			t.Fatalf("AllocInode returned inode %s twice", n)
		}
		seen[n] = true
	}

	if _, err := m.AllocInode(sofs.TypeKindFile, 0644, 0, 0); !errs.Is(err, errs.ENOSPC) {
		t.Fatalf("AllocInode after exhausting the free list: err = %v, want ENOSPC", err)
	}
}

func TestAllocInodeSetsFields(t *testing.T) {
	m, dev := newTestManager(t, 4)
	if err := m.FreeInode(1); err != nil {
		t.Fatalf("FreeInode(1): %v", err)
	}

	n, err := m.AllocInode(sofs.TypeKindDir, sofs.Mode(0755), 10, 20)
	if err != nil {
		t.Fatalf("AllocInode: %v", err)
	}
	rec, err := inode.NewManager(dev, inode.Table{ITableStart: 0, ITotal: 4}).ReadInode(n)
	if err != nil {
		t.Fatalf("ReadInode(%s): %v", n, err)
	}
	if !rec.Mode.IsDir() {
		t.Errorf("allocated inode's Mode is not a directory: %#x", rec.Mode)
	}
	if rec.Mode.Perm() != sofs.Mode(0755) {
		t.Errorf("allocated inode's perm = %#o, want 0755", rec.Mode.Perm())
	}
	if rec.RefCount != 1 {
		t.Errorf("allocated inode's RefCount = %d, want 1", rec.RefCount)
	}
	if rec.Owner != 10 || rec.Group != 20 {
		t.Errorf("allocated inode's owner/group = %d/%d, want 10/20", rec.Owner, rec.Group)
	}
}

func TestFreeRootInodeRejected(t *testing.T) {
	m, _ := newTestManager(t, 4)
	if err := m.FreeInode(sofs.RootInode); !errs.Is(err, errs.EPERM) {
		t.Fatalf("FreeInode(RootInode): err = %v, want EPERM", err)
	}
}

func TestDoubleFreeRejected(t *testing.T) {
	m, _ := newTestManager(t, 4)
	if err := m.FreeInode(1); err != nil {
		t.Fatalf("first FreeInode(1): %v", err)
	}
	if err := m.FreeInode(1); !errs.Is(err, errs.EFININVAL) {
		t.Fatalf("second FreeInode(1): err = %v, want EFININVAL", err)
	}
}
