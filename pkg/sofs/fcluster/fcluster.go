// Package fcluster implements a file's three-level cluster reference index
// (spec.md §4.5–§4.7: direct, single-indirect, double-indirect) and the
// file-cluster I/O built on top of it (§4.8). HandleFileCluster is the
// single dispatcher every other operation in this package (and every
// caller outside it) goes through to resolve a logical cluster index to a
// concrete cluster number, allocating or freeing along the way.
package fcluster

import (
	"encoding/binary"

	"github.com/sofs14/sofs14/pkg/blockio"
	"github.com/sofs14/sofs14/pkg/sofs"
	"github.com/sofs14/sofs14/pkg/sofs/dzone"
	"github.com/sofs14/sofs14/pkg/sofs/errs"
	"github.com/sofs14/sofs14/pkg/sofs/inode"
)

// Manager resolves logical file-cluster indices against the data zone and
// performs whole-cluster file I/O.
type Manager struct {
	dev   blockio.Device
	inode *inode.Manager
	dzone *dzone.Manager
}

// NewManager builds a file-cluster Manager.
func NewManager(dev blockio.Device, im *inode.Manager, dm *dzone.Manager) *Manager {
	return &Manager{dev: dev, inode: im, dzone: dm}
}

func (m *Manager) stampOwner(n sofs.ClusterNum, owner sofs.InodeNum) error {
	raw, err := m.dev.ReadCluster(n)
	if err != nil {
		return errs.Wrap(errs.EIO, err, "stamp owner on cluster %s", n)
	}
	hdr, err := sofs.DecodeClusterHeader(raw)
	if err != nil {
		return errs.Wrap(errs.EIO, err, "decode header for cluster %s", n)
	}
	hdr.Stat = owner
	copy(raw[:sofs.ClusterHeaderSize], hdr.Encode())
	if err := m.dev.WriteCluster(n, raw); err != nil {
		return errs.Wrap(errs.EIO, err, "write cluster %s", n)
	}
	return nil
}

// readHeader reads cluster n in full and decodes its header.
func (m *Manager) readHeader(n sofs.ClusterNum) (*sofs.ClusterHeader, []byte, error) {
	raw, err := m.dev.ReadCluster(n)
	if err != nil {
		return nil, nil, errs.Wrap(errs.EIO, err, "read cluster %s", n)
	}
	hdr, err := sofs.DecodeClusterHeader(raw)
	if err != nil {
		return nil, nil, errs.Wrap(errs.EIO, err, "decode header for cluster %s", n)
	}
	return hdr, raw, nil
}

func (m *Manager) writeHeader(n sofs.ClusterNum, raw []byte, hdr *sofs.ClusterHeader) error {
	copy(raw[:sofs.ClusterHeaderSize], hdr.Encode())
	if err := m.dev.WriteCluster(n, raw); err != nil {
		return errs.Wrap(errs.EIO, err, "write cluster %s", n)
	}
	return nil
}

// setClusterLinks rewrites cluster n's Prev/Next logical-order links,
// leaving Stat and payload untouched.
func (m *Manager) setClusterLinks(n sofs.ClusterNum, prev, next sofs.ClusterNum) error {
	hdr, raw, err := m.readHeader(n)
	if err != nil {
		return err
	}
	hdr.Prev, hdr.Next = prev, next
	return m.writeHeader(n, raw, hdr)
}

// readRefSlot reads the slot'th cluster reference out of reference
// cluster n's payload.
func (m *Manager) readRefSlot(n sofs.ClusterNum, slot int) (sofs.ClusterNum, error) {
	raw, err := m.dev.ReadCluster(n)
	if err != nil {
		return sofs.NullCluster, errs.Wrap(errs.EIO, err, "read reference cluster %s", n)
	}
	off := sofs.ClusterHeaderSize + slot*sofs.ReferenceSize
	return sofs.ClusterNum(int32(binary.LittleEndian.Uint32(raw[off : off+4]))), nil
}

// writeRefSlot writes the slot'th cluster reference into reference
// cluster n's payload.
func (m *Manager) writeRefSlot(n sofs.ClusterNum, slot int, value sofs.ClusterNum) error {
	raw, err := m.dev.ReadCluster(n)
	if err != nil {
		return errs.Wrap(errs.EIO, err, "read reference cluster %s", n)
	}
	off := sofs.ClusterHeaderSize + slot*sofs.ReferenceSize
	binary.LittleEndian.PutUint32(raw[off:off+4], uint32(int32(value)))
	if err := m.dev.WriteCluster(n, raw); err != nil {
		return errs.Wrap(errs.EIO, err, "write reference cluster %s", n)
	}
	return nil
}

// refClusterEmpty reports whether every slot of reference cluster n is
// NullCluster.
func (m *Manager) refClusterEmpty(n sofs.ClusterNum) (bool, error) {
	raw, err := m.dev.ReadCluster(n)
	if err != nil {
		return false, errs.Wrap(errs.EIO, err, "read reference cluster %s", n)
	}
	for i := 0; i < sofs.ReferencesPerCluster; i++ {
		off := sofs.ClusterHeaderSize + i*sofs.ReferenceSize
		if int32(binary.LittleEndian.Uint32(raw[off:off+4])) != int32(sofs.NullCluster) {
			return false, nil
		}
	}
	return true, nil
}

// initRefCluster stamps a freshly allocated reference cluster with its
// owner and sets every one of its reference slots to NullCluster.
func (m *Manager) initRefCluster(n sofs.ClusterNum, owner sofs.InodeNum) error {
	hdr, raw, err := m.readHeader(n)
	if err != nil {
		return err
	}
	hdr.Stat = owner
	for i := 0; i < sofs.ReferencesPerCluster; i++ {
		off := sofs.ClusterHeaderSize + i*sofs.ReferenceSize
		binary.LittleEndian.PutUint32(raw[off:off+4], uint32(int32(sofs.NullCluster)))
	}
	return m.writeHeader(n, raw, hdr)
}

// HandleFileCluster is the unified dispatcher for spec.md §4.5: resolving
// (and, depending on op, allocating or freeing) the cluster at logical
// index clustInd within inode nInode's direct, single-indirect, or
// double-indirect reference space.
func (m *Manager) HandleFileCluster(nInode sofs.InodeNum, clustInd sofs.ClustIndex, op sofs.OpKind) (sofs.ClusterNum, error) {
	if clustInd < 0 || clustInd >= sofs.MaxFileClusters {
		return sofs.NullCluster, errs.New(errs.EFDININVAL, "logical cluster index %d out of range [0,%d)", clustInd, sofs.MaxFileClusters)
	}

	rec, err := m.inode.ReadInode(nInode)
	if err != nil {
		return sofs.NullCluster, err
	}

	switch {
	case clustInd < sofs.NDirect:
		return m.handleDirect(nInode, rec, int(clustInd), op)
	case clustInd < sofs.NDirect+sofs.ReferencesPerCluster:
		return m.handleSingleIndirect(nInode, rec, int(clustInd-sofs.NDirect), op)
	default:
		idx := int(clustInd - sofs.NDirect - sofs.ReferencesPerCluster)
		outer := idx / sofs.ReferencesPerCluster
		inner := idx % sofs.ReferencesPerCluster
		return m.handleDoubleIndirect(nInode, rec, outer, inner, op)
	}
}

func (m *Manager) handleDirect(nInode sofs.InodeNum, rec *sofs.Inode, slot int, op sofs.OpKind) (sofs.ClusterNum, error) {
	cur := rec.D[slot]
	result, changed, err := m.applyOp(nInode, cur, op)
	if err != nil {
		return sofs.NullCluster, err
	}
	if changed {
		rec.D[slot] = result
		if op == sofs.OpAlloc {
			rec.CluCount++
		} else if op == sofs.OpFree || op == sofs.OpFreeClean || op == sofs.OpClean {
			rec.CluCount--
		}
		if err := m.inode.WriteInode(nInode, rec); err != nil {
			return sofs.NullCluster, err
		}
	}
	return result, nil
}

func (m *Manager) handleSingleIndirect(nInode sofs.InodeNum, rec *sofs.Inode, slot int, op sofs.OpKind) (sofs.ClusterNum, error) {
	if rec.I1 == sofs.NullCluster {
		if op != sofs.OpAlloc {
			if op == sofs.OpGet {
				return sofs.NullCluster, nil
			}
			return sofs.NullCluster, errs.New(errs.EDCNOTIL, "single-indirect block not allocated on inode %s", nInode)
		}
		n, err := m.dzone.AllocDataCluster()
		if err != nil {
			return sofs.NullCluster, err
		}
		if err := m.initRefCluster(n, nInode); err != nil {
			return sofs.NullCluster, err
		}
		rec.I1 = n
		rec.CluCount++
		if err := m.inode.WriteInode(nInode, rec); err != nil {
			return sofs.NullCluster, err
		}
	}

	cur, err := m.readRefSlot(rec.I1, slot)
	if err != nil {
		return sofs.NullCluster, err
	}
	result, changed, err := m.applyOp(nInode, cur, op)
	if err != nil {
		return sofs.NullCluster, err
	}
	if changed {
		if err := m.writeRefSlot(rec.I1, slot, result); err != nil {
			return sofs.NullCluster, err
		}
		if op == sofs.OpAlloc {
			rec.CluCount++
		} else if op == sofs.OpFree || op == sofs.OpFreeClean || op == sofs.OpClean {
			rec.CluCount--
		}
		if err := m.inode.WriteInode(nInode, rec); err != nil {
			return sofs.NullCluster, err
		}
	}
	return result, nil
}

func (m *Manager) handleDoubleIndirect(nInode sofs.InodeNum, rec *sofs.Inode, outer, inner int, op sofs.OpKind) (sofs.ClusterNum, error) {
	if rec.I2 == sofs.NullCluster {
		if op != sofs.OpAlloc {
			if op == sofs.OpGet {
				return sofs.NullCluster, nil
			}
			return sofs.NullCluster, errs.New(errs.ELDCININVAL, "double-indirect block not allocated on inode %s", nInode)
		}
		n, err := m.dzone.AllocDataCluster()
		if err != nil {
			return sofs.NullCluster, err
		}
		if err := m.initRefCluster(n, nInode); err != nil {
			return sofs.NullCluster, err
		}
		rec.I2 = n
		rec.CluCount++
		if err := m.inode.WriteInode(nInode, rec); err != nil {
			return sofs.NullCluster, err
		}
	}

	innerRef, err := m.readRefSlot(rec.I2, outer)
	if err != nil {
		return sofs.NullCluster, err
	}
	if innerRef == sofs.NullCluster {
		if op != sofs.OpAlloc {
			if op == sofs.OpGet {
				return sofs.NullCluster, nil
			}
			return sofs.NullCluster, errs.New(errs.ELDCININVAL, "double-indirect inner block not allocated on inode %s", nInode)
		}
		n, err := m.dzone.AllocDataCluster()
		if err != nil {
			return sofs.NullCluster, err
		}
		if err := m.initRefCluster(n, nInode); err != nil {
			return sofs.NullCluster, err
		}
		if err := m.writeRefSlot(rec.I2, outer, n); err != nil {
			return sofs.NullCluster, err
		}
		innerRef = n
		rec.CluCount++
		if err := m.inode.WriteInode(nInode, rec); err != nil {
			return sofs.NullCluster, err
		}
	}

	cur, err := m.readRefSlot(innerRef, inner)
	if err != nil {
		return sofs.NullCluster, err
	}
	result, changed, err := m.applyOp(nInode, cur, op)
	if err != nil {
		return sofs.NullCluster, err
	}
	if changed {
		if err := m.writeRefSlot(innerRef, inner, result); err != nil {
			return sofs.NullCluster, err
		}
		if op == sofs.OpAlloc {
			rec.CluCount++
		} else if op == sofs.OpFree || op == sofs.OpFreeClean || op == sofs.OpClean {
			rec.CluCount--
		}
		if err := m.inode.WriteInode(nInode, rec); err != nil {
			return sofs.NullCluster, err
		}
	}
	return result, nil
}

// applyOp performs op against a single slot's current cluster value cur,
// returning the slot's new value and whether the slot changed.
func (m *Manager) applyOp(nInode sofs.InodeNum, cur sofs.ClusterNum, op sofs.OpKind) (result sofs.ClusterNum, changed bool, err error) {
	switch op {
	case sofs.OpGet:
		return cur, false, nil

	case sofs.OpAlloc:
		if cur != sofs.NullCluster {
			return sofs.NullCluster, false, errs.New(errs.EDCARDYIL, "cluster already allocated at this index")
		}
		n, err := m.dzone.AllocDataCluster()
		if err != nil {
			return sofs.NullCluster, false, err
		}
		if err := m.stampOwner(n, nInode); err != nil {
			return sofs.NullCluster, false, err
		}
		return n, true, nil

	case sofs.OpFree, sofs.OpFreeClean:
		if cur == sofs.NullCluster {
			return sofs.NullCluster, false, errs.New(errs.EDCNOTIL, "no cluster allocated at this index")
		}
		if err := m.dzone.FreeDataCluster(cur); err != nil {
			return sofs.NullCluster, false, err
		}
		if op == sofs.OpFreeClean {
			if err := m.dzone.CleanDataCluster(cur); err != nil {
				return sofs.NullCluster, false, err
			}
		}
		return sofs.NullCluster, true, nil

	case sofs.OpClean:
		if cur == sofs.NullCluster {
			return sofs.NullCluster, false, errs.New(errs.EDCNOTIL, "no cluster to clean at this index")
		}
		hdr, _, err := m.readHeader(cur)
		if err != nil {
			return sofs.NullCluster, false, err
		}
		if hdr.Stat != nInode {
			return sofs.NullCluster, false, errs.New(errs.EWGINODENB, "cluster %s stat %s does not match inode %s being cleaned", cur, hdr.Stat, nInode)
		}
		if err := m.dzone.CleanDataCluster(cur); err != nil {
			return sofs.NullCluster, false, err
		}
		return sofs.NullCluster, true, nil

	default:
		return sofs.NullCluster, false, errs.New(errs.EINVAL, "unknown file-cluster operation %s", op)
	}
}

// AttachLogicalCluster threads a newly allocated cluster at logical index
// clustInd into the doubly linked list of the file's clusters in logical
// order. It always re-resolves the predecessor and successor with fresh
// GET calls rather than relying on any cached neighbor pointer, and treats
// clustInd as having a successor iff clustInd < MaxFileClusters-1 (not
// clustInd != MaxFileClusters, which is off by one).
func (m *Manager) AttachLogicalCluster(nInode sofs.InodeNum, clustInd sofs.ClustIndex) error {
	cur, err := m.HandleFileCluster(nInode, clustInd, sofs.OpGet)
	if err != nil {
		return err
	}
	if cur == sofs.NullCluster {
		return errs.New(errs.EFDININVAL, "attachLogicalCluster: no cluster allocated at index %d", clustInd)
	}

	var pred, succ sofs.ClusterNum = sofs.NullCluster, sofs.NullCluster
	if clustInd > 0 {
		p, err := m.HandleFileCluster(nInode, clustInd-1, sofs.OpGet)
		if err != nil {
			return err
		}
		pred = p
	}
	if clustInd < sofs.ClustIndex(sofs.MaxFileClusters)-1 {
		s, err := m.HandleFileCluster(nInode, clustInd+1, sofs.OpGet)
		if err != nil {
			return err
		}
		succ = s
	}

	if err := m.setClusterLinks(cur, pred, succ); err != nil {
		return err
	}
	if pred != sofs.NullCluster {
		hdr, raw, err := m.readHeader(pred)
		if err != nil {
			return err
		}
		hdr.Next = cur
		if err := m.writeHeader(pred, raw, hdr); err != nil {
			return err
		}
	}
	if succ != sofs.NullCluster {
		hdr, raw, err := m.readHeader(succ)
		if err != nil {
			return err
		}
		hdr.Prev = cur
		if err := m.writeHeader(succ, raw, hdr); err != nil {
			return err
		}
	}
	return nil
}

// CleanInode dissociates every data and reference cluster still recorded
// against a FREE-DIRTY inode (spec.md §4.2's cleanInode: handleFileClusters
// (nInode, 0, CLEAN)). Called by pkg/sofs/ifree.AllocInode before reusing a
// free-list head inode that was freed but never cleaned.
func (m *Manager) CleanInode(nInode sofs.InodeNum) error {
	return m.HandleFileClusters(nInode, 0, sofs.OpClean)
}

// HandleFileClusters performs a bulk FREE, FREE_CLEAN, or CLEAN from
// startInd through the end of the file's addressable cluster range,
// processed in reverse layout order (double-indirect, then
// single-indirect, then direct), and then collapses any reference (index)
// cluster left completely empty by the sweep. FREE/FREE_CLEAN drive a
// truncate or whole-file delete; CLEAN drives cleanInode's dissociation of
// a FREE-DIRTY inode's still-recorded cluster references.
func (m *Manager) HandleFileClusters(nInode sofs.InodeNum, startInd sofs.ClustIndex, op sofs.OpKind) error {
	if op != sofs.OpFree && op != sofs.OpFreeClean && op != sofs.OpClean {
		return errs.New(errs.EINVAL, "handleFileClusters only supports FREE/FREE_CLEAN/CLEAN")
	}
	for idx := sofs.ClustIndex(sofs.MaxFileClusters) - 1; idx >= startInd; idx-- {
		cur, err := m.HandleFileCluster(nInode, idx, sofs.OpGet)
		if err != nil {
			return err
		}
		if cur == sofs.NullCluster {
			continue
		}
		if _, err := m.HandleFileCluster(nInode, idx, op); err != nil {
			return err
		}
	}
	return m.collapseEmptyIndirection(nInode, op)
}

// collapseRefCluster retires a reference cluster n that collapseEmptyIndirection
// found holding no more live slots. FREE/FREE_CLEAN push it onto the
// free-cluster list (optionally zeroing it too); CLEAN only zeroes it and
// does not push it onto the free-cluster list.
func (m *Manager) collapseRefCluster(n sofs.ClusterNum, op sofs.OpKind) error {
	if op == sofs.OpClean {
		return m.dzone.CleanDataCluster(n)
	}
	if err := m.dzone.FreeDataCluster(n); err != nil {
		return err
	}
	if op == sofs.OpFreeClean {
		return m.dzone.CleanDataCluster(n)
	}
	return nil
}

// collapseEmptyIndirection frees the single- and double-indirect reference
// clusters of nInode if the sweep above left them holding no more live
// references.
func (m *Manager) collapseEmptyIndirection(nInode sofs.InodeNum, op sofs.OpKind) error {
	rec, err := m.inode.ReadInode(nInode)
	if err != nil {
		return err
	}

	if rec.I1 != sofs.NullCluster {
		empty, err := m.refClusterEmpty(rec.I1)
		if err != nil {
			return err
		}
		if empty {
			if err := m.collapseRefCluster(rec.I1, op); err != nil {
				return err
			}
			rec.I1 = sofs.NullCluster
			rec.CluCount--
		}
	}

	if rec.I2 != sofs.NullCluster {
		for outer := 0; outer < sofs.ReferencesPerCluster; outer++ {
			innerRef, err := m.readRefSlot(rec.I2, outer)
			if err != nil {
				return err
			}
			if innerRef == sofs.NullCluster {
				continue
			}
			empty, err := m.refClusterEmpty(innerRef)
			if err != nil {
				return err
			}
			if !empty {
				continue
			}
			if err := m.collapseRefCluster(innerRef, op); err != nil {
				return err
			}
			if err := m.writeRefSlot(rec.I2, outer, sofs.NullCluster); err != nil {
				return err
			}
			rec.CluCount--
		}
		empty, err := m.refClusterEmpty(rec.I2)
		if err != nil {
			return err
		}
		if empty {
			if err := m.collapseRefCluster(rec.I2, op); err != nil {
				return err
			}
			rec.I2 = sofs.NullCluster
			rec.CluCount--
		}
	}

	return m.inode.WriteInode(nInode, rec)
}
