// Package dzone is the free-cluster repository (spec.md §4.4): an on-disk
// doubly linked list of free clusters (threaded through each free
// cluster's header prev/next fields, anchored at the superblock's
// dHead/dTail) fronted by two superblock-resident caches so that the
// common case of a single alloc or free never touches the on-disk list at
// all. replenish moves clusters from the on-disk list into the retrieval
// cache; deplete moves the insertion cache onto the on-disk list.
package dzone

import (
	"github.com/sofs14/sofs14/pkg/blockio"
	"github.com/sofs14/sofs14/pkg/sofs"
	"github.com/sofs14/sofs14/pkg/sofs/errs"
)

// Superblock is the narrow superblock view dzone needs.
type Superblock interface {
	Get() *sofs.Superblock
	MarkDirty()
}

// Manager allocates and frees data clusters.
type Manager struct {
	dev blockio.Device
	sb  Superblock
}

// NewManager builds a free-cluster-repository Manager.
func NewManager(dev blockio.Device, sb Superblock) *Manager {
	return &Manager{dev: dev, sb: sb}
}

// replenish pulls clusters off the head of the on-disk free list into the
// retrieval cache until the cache is full. If the on-disk list runs dry
// before then, it depletes the insertion cache onto the on-disk list and
// resumes walking rather than giving up with clusters still sitting
// unreachable in the insertion cache.
func (m *Manager) replenish() error {
	sb := m.sb.Get()
	for sb.RetrievCacheIdx < sofs.DzoneCacheSize {
		if sb.DHead == sofs.NullCluster {
			if sb.InsertCacheIdx == 0 {
				break
			}
			if err := m.deplete(); err != nil {
				return err
			}
			continue
		}
		n := sb.DHead
		raw, err := m.dev.ReadCluster(n)
		if err != nil {
			return errs.Wrap(errs.EIO, err, "replenish: read cluster %s", n)
		}
		hdr, err := sofs.DecodeClusterHeader(raw)
		if err != nil {
			return errs.Wrap(errs.EIO, err, "replenish: decode header for cluster %s", n)
		}
		next := hdr.Next
		sb.DHead = next
		if next == sofs.NullCluster {
			sb.DTail = sofs.NullCluster
		} else {
			nextRaw, err := m.dev.ReadCluster(next)
			if err != nil {
				return errs.Wrap(errs.EIO, err, "replenish: read cluster %s", next)
			}
			nextHdr, err := sofs.DecodeClusterHeader(nextRaw)
			if err != nil {
				return errs.Wrap(errs.EIO, err, "replenish: decode header for cluster %s", next)
			}
			nextHdr.Prev = sofs.NullCluster
			copy(nextRaw[:sofs.ClusterHeaderSize], nextHdr.Encode())
			if err := m.dev.WriteCluster(next, nextRaw); err != nil {
				return errs.Wrap(errs.EIO, err, "replenish: write cluster %s", next)
			}
		}
		sb.DZoneRetriev[sb.RetrievCacheIdx] = n
		sb.RetrievCacheIdx++
	}
	m.sb.MarkDirty()
	return nil
}

// deplete pushes every cluster sitting in the insertion cache onto the
// head of the on-disk free list, then empties the cache.
func (m *Manager) deplete() error {
	sb := m.sb.Get()
	for i := uint32(0); i < sb.InsertCacheIdx; i++ {
		n := sb.DZoneInsert[i]
		hdr := &sofs.ClusterHeader{Stat: sofs.NullInode, Prev: sofs.NullCluster, Next: sb.DHead}
		raw := make([]byte, sofs.ClusterSize)
		copy(raw, hdr.Encode())
		if err := m.dev.WriteCluster(n, raw); err != nil {
			return errs.Wrap(errs.EIO, err, "deplete: write cluster %s", n)
		}
		if sb.DHead != sofs.NullCluster {
			oldHeadRaw, err := m.dev.ReadCluster(sb.DHead)
			if err != nil {
				return errs.Wrap(errs.EIO, err, "deplete: read cluster %s", sb.DHead)
			}
			oldHeadHdr, err := sofs.DecodeClusterHeader(oldHeadRaw)
			if err != nil {
				return errs.Wrap(errs.EIO, err, "deplete: decode header for cluster %s", sb.DHead)
			}
			oldHeadHdr.Prev = n
			copy(oldHeadRaw[:sofs.ClusterHeaderSize], oldHeadHdr.Encode())
			if err := m.dev.WriteCluster(sb.DHead, oldHeadRaw); err != nil {
				return errs.Wrap(errs.EIO, err, "deplete: write cluster %s", sb.DHead)
			}
		}
		sb.DHead = n
		if sb.DTail == sofs.NullCluster {
			sb.DTail = n
		}
	}
	sb.InsertCacheIdx = 0
	m.sb.MarkDirty()
	return nil
}

// AllocDataCluster removes one cluster from the free pool, zeroes it, and
// returns its number. The caller (pkg/sofs/fcluster) is responsible for
// stamping the header's Stat field with the owning inode once it knows it.
func (m *Manager) AllocDataCluster() (sofs.ClusterNum, error) {
	sb := m.sb.Get()
	if sb.RetrievCacheIdx == 0 {
		if err := m.replenish(); err != nil {
			return sofs.NullCluster, err
		}
	}
	if sb.RetrievCacheIdx == 0 {
		return sofs.NullCluster, errs.New(errs.ENOSPC, "no free data clusters")
	}
	sb.RetrievCacheIdx--
	n := sb.DZoneRetriev[sb.RetrievCacheIdx]
	sb.DZoneFree--
	m.sb.MarkDirty()

	if err := m.CleanDataCluster(n); err != nil {
		return sofs.NullCluster, err
	}
	return n, nil
}

// FreeDataCluster returns cluster n to the free pool (IN-USE -> FREE-DIRTY:
// its payload is left untouched until CleanDataCluster is next called on
// it, e.g. the next time it's allocated). Cluster 0, which permanently
// holds the root directory, can never be freed.
func (m *Manager) FreeDataCluster(n sofs.ClusterNum) error {
	if n == sofs.RootCluster {
		return errs.New(errs.EPERM, "the root directory's cluster can never be freed")
	}
	sb := m.sb.Get()
	if sb.InsertCacheIdx == sofs.DzoneCacheSize {
		if err := m.deplete(); err != nil {
			return err
		}
	}
	sb.DZoneInsert[sb.InsertCacheIdx] = n
	sb.InsertCacheIdx++
	sb.DZoneFree++
	m.sb.MarkDirty()
	return nil
}

// CleanDataCluster zeroes cluster n's header and payload in place
// (FREE-DIRTY -> FREE-CLEAN, or preparing a freshly allocated cluster for
// its new owner). It does not change free/in-use accounting.
func (m *Manager) CleanDataCluster(n sofs.ClusterNum) error {
	raw := make([]byte, sofs.ClusterSize)
	hdr := &sofs.ClusterHeader{Stat: sofs.NullInode, Prev: sofs.NullCluster, Next: sofs.NullCluster}
	copy(raw, hdr.Encode())
	if err := m.dev.WriteCluster(n, raw); err != nil {
		return errs.Wrap(errs.EIO, err, "clean cluster %s", n)
	}
	return nil
}
