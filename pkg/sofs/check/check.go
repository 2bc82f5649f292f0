// Package check implements the consistency predicates from spec.md §4.10
// and Volume, a full-volume consistency scan that exercises every one of
// them against an entire mounted volume rather than a single operation's
// precondition — the fsck-shaped operation spec.md §7 assumes exists
// ("structural consistency... must never occur on a well-formed volume")
// but never names as a standalone component.
package check

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/sofs14/sofs14/pkg/blockio"
	"github.com/sofs14/sofs14/pkg/elog"
	"github.com/sofs14/sofs14/pkg/sofs"
	"github.com/sofs14/sofs14/pkg/sofs/dir"
	"github.com/sofs14/sofs14/pkg/sofs/dzone"
	"github.com/sofs14/sofs14/pkg/sofs/fcluster"
	"github.com/sofs14/sofs14/pkg/sofs/inode"
	"github.com/sofs14/sofs14/pkg/sofs/super"
)

// Report summarizes one Volume scan.
type Report struct {
	InodesChecked   uint32
	ClustersChecked uint32
	Violations      *multierror.Error
}

// Clean reports whether the scan found no violations.
func (r *Report) Clean() bool {
	return r.Violations == nil || r.Violations.Len() == 0
}

// Volume runs every consistency predicate against the entire volume on
// dev, aggregating every violation found (rather than stopping at the
// first, which is every other operation's policy) into a single
// multierror.Error so a caller (cmd/sofs14's fsck subcommand) can report
// everything wrong with a volume in one pass.
func Volume(dev blockio.Device, log elog.Logger) (*Report, error) {
	if log == nil {
		log = elog.Discard
	}

	sbMgr, err := super.Load(dev, log)
	if err != nil {
		return nil, err
	}
	sb := sbMgr.Get()
	dev.SetDZoneStart(int64(sb.DZoneStart))

	im := inode.NewManager(dev, inode.Table{ITableStart: sb.ITableStart, ITotal: sb.ITotal})
	dzMgr := dzone.NewManager(dev, sbMgr)
	fcMgr := fcluster.NewManager(dev, im, dzMgr)
	dirMgr := dir.NewManager(im, fcMgr)

	report := &Report{}

	addf := func(format string, args ...interface{}) {
		report.Violations = multierror.Append(report.Violations, fmt.Errorf(format, args...))
	}

	// §4.1: superblock invariants already validated by Load/QuickCheck,
	// plus free-list length accounting below.

	freeSeen := make(map[sofs.InodeNum]bool)
	n := sb.IHead
	var freeLen uint32
	for n != sofs.NullInode {
		if freeSeen[n] {
			addf("free-inode list contains a cycle at %s", n)
			break
		}
		freeSeen[n] = true
		rec, err := im.ReadInode(n)
		if err != nil {
			addf("free-inode list: %v", err)
			break
		}
		if !rec.Mode.IsFree() {
			addf("inode %s is on the free-inode list but is not marked free", n)
		}
		freeLen++
		n = rec.NextFree()
	}
	if freeLen != sb.IFree {
		addf("superblock reports %d free inodes but the free-inode list has %d", sb.IFree, freeLen)
	}

	for i := sofs.InodeNum(0); uint32(i) < sb.ITotal; i++ {
		report.InodesChecked++
		rec, err := im.ReadInode(i)
		if err != nil {
			addf("inode %s: %v", i, err)
			continue
		}

		if rec.Mode.IsFree() {
			if !freeSeen[i] && sb.IFree > 0 {
				addf("inode %s is marked free but is not reachable from the free-inode list", i)
			}
			continue
		}

		switch rec.Mode.Type() {
		case sofs.TypeFile, sofs.TypeDir, sofs.TypeSymlink:
		default:
			addf("inode %s has an illegal type bit pattern %#x", i, uint16(rec.Mode))
		}
		if rec.RefCount == 0 {
			addf("in-use inode %s has a zero refCount", i)
		}
		if i == sofs.RootInode && !rec.Mode.IsDir() {
			addf("inode 0 (the root) is not a directory")
		}

		for slot, c := range rec.D {
			if c != sofs.NullCluster && (c < 0 || uint32(c) >= sb.DZoneTotal) {
				addf("inode %s direct slot %d references out-of-range cluster %s", i, slot, c)
			}
		}
		if rec.I1 != sofs.NullCluster && (rec.I1 < 0 || uint32(rec.I1) >= sb.DZoneTotal) {
			addf("inode %s single-indirect block references out-of-range cluster %s", i, rec.I1)
		}
		if rec.I2 != sofs.NullCluster && (rec.I2 < 0 || uint32(rec.I2) >= sb.DZoneTotal) {
			addf("inode %s double-indirect block references out-of-range cluster %s", i, rec.I2)
		}

		if rec.Mode.IsDir() {
			if _, _, _, err := dirMgr.GetDirEntryByName(i, "."); err != nil {
				addf("directory %s is missing a \".\" entry", i)
			}
			if i != sofs.RootInode {
				if _, _, _, err := dirMgr.GetDirEntryByName(i, ".."); err != nil {
					addf("directory %s is missing a \"..\" entry", i)
				}
			}
		}
	}

	dFreeSeen := make(map[sofs.ClusterNum]bool)
	c := sb.DHead
	var dFreeLen uint32
	for c != sofs.NullCluster {
		if dFreeSeen[c] {
			addf("free-cluster list contains a cycle at %s", c)
			break
		}
		dFreeSeen[c] = true
		raw, err := dev.ReadCluster(c)
		if err != nil {
			addf("free-cluster list: %v", err)
			break
		}
		hdr, err := sofs.DecodeClusterHeader(raw)
		if err != nil {
			addf("free-cluster list: %v", err)
			break
		}
		if hdr.Stat != sofs.NullInode {
			addf("cluster %s is on the free-cluster list but its header names owner %s", c, hdr.Stat)
		}
		dFreeLen++
		c = hdr.Next
	}
	cachedFree := sb.RetrievCacheIdx + sb.InsertCacheIdx
	if dFreeLen+cachedFree != sb.DZoneFree {
		addf("superblock reports %d free clusters but the on-disk list (%d) plus caches (%d) account for %d",
			sb.DZoneFree, dFreeLen, cachedFree, dFreeLen+cachedFree)
	}
	report.ClustersChecked = sb.DZoneTotal

	return report, nil
}
