// Package ifree manages the free-inode list (spec.md §4.3): a doubly
// linked list threaded through each free inode's VD1/VD2 fields, anchored
// at the superblock's IHead/ITail. allocInode and freeInode are the only
// two operations; everything else (reading/writing/cleaning a record) is
// delegated to pkg/sofs/inode.
package ifree

import (
	"time"

	"github.com/sofs14/sofs14/pkg/sofs"
	"github.com/sofs14/sofs14/pkg/sofs/errs"
	"github.com/sofs14/sofs14/pkg/sofs/fcluster"
	"github.com/sofs14/sofs14/pkg/sofs/inode"
)

// Superblock is the narrow view of superblock state this package reads and
// mutates, avoiding an import of pkg/sofs/super (which would create a
// cycle, since super knows nothing about free-list layout).
type Superblock interface {
	Get() *sofs.Superblock
	MarkDirty()
}

// Manager allocates and frees inodes against the free list threaded
// through the inode table.
type Manager struct {
	sb       Superblock
	inode    *inode.Manager
	fcluster *fcluster.Manager
}

// NewManager builds a free-inode-list Manager. fm dissociates a FREE-DIRTY
// inode's leftover cluster references when AllocInode reclaims it.
func NewManager(sb Superblock, im *inode.Manager, fm *fcluster.Manager) *Manager {
	return &Manager{sb: sb, inode: im, fcluster: fm}
}

// AllocInode removes the head of the free-inode list, cleans it if it was
// only FREE-DIRTY, and reinitializes it as an IN-USE inode of the given
// type, owner, group and permission bits. Returns ENOSPC if the free list
// is empty.
func (m *Manager) AllocInode(kind sofs.Type, perm sofs.Mode, owner, group uint16) (sofs.InodeNum, error) {
	sb := m.sb.Get()
	if sb.IHead == sofs.NullInode {
		return sofs.NullInode, errs.New(errs.ENOSPC, "no free inodes")
	}

	n := sb.IHead
	rec, err := m.inode.ReadInode(n)
	if err != nil {
		return sofs.NullInode, err
	}
	if !rec.Mode.IsFree() {
		return sofs.NullInode, errs.New(errs.EWGINODENB, "free-inode list head %s is not marked free", n)
	}

	next := rec.NextFree()
	sb.IHead = next
	if next == sofs.NullInode {
		sb.ITail = sofs.NullInode
	} else {
		nextRec, err := m.inode.ReadInode(next)
		if err != nil {
			return sofs.NullInode, err
		}
		nextRec.SetPrevFree(sofs.NullInode)
		if err := m.inode.WriteInode(next, nextRec); err != nil {
			return sofs.NullInode, err
		}
	}
	sb.IFree--
	m.sb.MarkDirty()

	// The record is FREE-DIRTY when it still records clusters (CluCount
	// != 0): walk and dissociate those before the record-level clean,
	// which zeroes everything but the (now-irrelevant) free-list links —
	// both get immediately overwritten below with the IN-USE fields. A
	// record with CluCount == 0 (e.g. a freshly formatted, all-zero one)
	// goes straight to the record-level clean.
	if rec.CluCount != 0 {
		if err := m.fcluster.CleanInode(n); err != nil {
			return sofs.NullInode, err
		}
	}
	if err := m.inode.CleanInode(n); err != nil {
		return sofs.NullInode, err
	}
	rec, err = m.inode.ReadInode(n)
	if err != nil {
		return sofs.NullInode, err
	}

	now := uint32(time.Now().Unix())
	rec.Mode = kind.Bits() | (perm & sofs.PermMask)
	rec.RefCount = 1
	rec.Owner = owner
	rec.Group = group
	rec.Size = 0
	rec.CluCount = 0
	rec.SetATime(now)
	rec.SetMTime(now)
	if err := m.inode.WriteInode(n, rec); err != nil {
		return sofs.NullInode, err
	}

	return n, nil
}

// FreeInode moves inode n from IN-USE to FREE-DIRTY, appending it to the
// tail of the free-inode list. The caller must already have dropped
// refCount to zero (freeing a still-referenced inode is a structural bug,
// not a normal error path). Inode 0 (the root) can never be freed.
func (m *Manager) FreeInode(n sofs.InodeNum) error {
	if n == sofs.RootInode {
		return errs.New(errs.EPERM, "the root inode can never be freed")
	}

	rec, err := m.inode.ReadInode(n)
	if err != nil {
		return err
	}
	if rec.Mode.IsFree() {
		return errs.New(errs.EFININVAL, "double free of inode %s", n)
	}
	if rec.RefCount != 0 {
		return errs.New(errs.EFININVAL, "freeInode on inode %s with nonzero refCount %d", n, rec.RefCount)
	}

	sb := m.sb.Get()
	rec.Mode |= sofs.ModeFree
	rec.SetPrevFree(sb.ITail)
	rec.SetNextFree(sofs.NullInode)

	if sb.ITail == sofs.NullInode {
		sb.IHead = n
	} else {
		tailRec, err := m.inode.ReadInode(sb.ITail)
		if err != nil {
			return err
		}
		tailRec.SetNextFree(n)
		if err := m.inode.WriteInode(sb.ITail, tailRec); err != nil {
			return err
		}
	}
	sb.ITail = n
	sb.IFree++
	m.sb.MarkDirty()

	return m.inode.WriteInode(n, rec)
}
