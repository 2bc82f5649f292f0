package mkfs

import (
	"github.com/google/uuid"

	"github.com/sofs14/sofs14/pkg/blockio"
	"github.com/sofs14/sofs14/pkg/elog"
	"github.com/sofs14/sofs14/pkg/sofs"
	"github.com/sofs14/sofs14/pkg/sofs/dzone"
	"github.com/sofs14/sofs14/pkg/sofs/errs"
	"github.com/sofs14/sofs14/pkg/sofs/fcluster"
	"github.com/sofs14/sofs14/pkg/sofs/ifree"
	"github.com/sofs14/sofs14/pkg/sofs/inode"
	"github.com/sofs14/sofs14/pkg/sofs/super"
)

// Options controls a single Format call.
type Options struct {
	Manifest Manifest
	Log      elog.Logger
}

// Format lays out a brand-new SOFS14 volume on dev: the superblock at
// block 0, a zeroed inode table sized from opts.Manifest.Inodes, every
// inode threaded onto the free-inode list except inode 0 (the root),
// every cluster past the inode table threaded onto the free-cluster
// list except cluster 0 (the root directory's first cluster), and the
// root directory itself initialized with "." and ".." both pointing at
// inode 0. dev's total block count (dev.BlockCount()) fixes the data
// zone's size; Format uses every block it doesn't need for the
// superblock and inode table.
func Format(dev blockio.Device, opts Options) error {
	log := opts.Log
	if log == nil {
		log = elog.Discard
	}
	m := opts.Manifest
	if err := m.validate(); err != nil {
		return err
	}

	const superblockBlocks = 1
	inodeTableBlocks := int64(m.Inodes) / sofs.InodesPerBlock
	dzoneStartBlock := superblockBlocks + inodeTableBlocks

	totalBlocks := dev.BlockCount()
	if totalBlocks < dzoneStartBlock+sofs.BlocksPerCluster {
		return errs.New(errs.ENOSPC, "device has %d blocks, too small for %d inodes plus one data cluster", totalBlocks, m.Inodes)
	}
	dzoneBlocks := totalBlocks - dzoneStartBlock
	dzoneTotal := uint32(dzoneBlocks / sofs.BlocksPerCluster)
	if dzoneTotal == 0 {
		return errs.New(errs.ENOSPC, "device leaves no room for a data zone")
	}

	dev.SetDZoneStart(dzoneStartBlock)

	name := m.Name
	if name == "" {
		name = uuid.New().String()
	}

	sb := &sofs.Superblock{
		Magic:       sofs.MagicNumber,
		Version:     sofs.Version,
		MStat:       sofs.PRU,
		ITableStart: sofs.InodeNum(superblockBlocks),
		ITableSize:  uint32(inodeTableBlocks),
		ITotal:      m.Inodes,
		IHead:       sofs.NullInode,
		ITail:       sofs.NullInode,
		DZoneStart:  sofs.ClusterNum(dzoneStartBlock),
		DZoneTotal:  dzoneTotal,
		DHead:       sofs.NullCluster,
		DTail:       sofs.NullCluster,
	}
	sb.SetName(name)

	sbMgr := super.New(dev, sb, log)
	im := inode.NewManager(dev, inode.Table{ITableStart: sb.ITableStart, ITotal: sb.ITotal})

	log.Infof("formatting %q: %d inodes, %d data clusters", name, sb.ITotal, sb.DZoneTotal)

	if err := zeroInodeTable(dev, sb); err != nil {
		return err
	}

	if err := seedRootInode(im, m); err != nil {
		return err
	}
	sb.IHead = sofs.NullInode
	sb.ITail = sofs.NullInode
	sb.IFree = 0
	dzMgr := dzone.NewManager(dev, sbMgr)
	fcMgr := fcluster.NewManager(dev, im, dzMgr)
	ifMgr := ifree.NewManager(sbMgr, im, fcMgr)
	for n := sofs.InodeNum(1); uint32(n) < sb.ITotal; n++ {
		if err := ifMgr.FreeInode(n); err != nil {
			return err
		}
	}

	sb.DHead = sofs.NullCluster
	sb.DTail = sofs.NullCluster
	sb.DZoneFree = 0
	for c := sofs.ClusterNum(dzoneTotal - 1); c >= 1; c-- {
		if err := dzMgr.CleanDataCluster(c); err != nil {
			return err
		}
		if err := dzMgr.FreeDataCluster(c); err != nil {
			return err
		}
	}

	if err := layoutRootDirectory(dev, im); err != nil {
		return err
	}

	sbMgr.MarkDirty()
	return sbMgr.Store()
}

// layoutRootDirectory writes cluster 0 (the data zone's permanently
// reserved cluster, never drawn from the free pool) as the root
// directory's content: "." and ".." both pointing at inode 0, with every
// other slot CLEAN. dir.Manager.InitDirectory can't be reused here since
// it attaches its first cluster through the ordinary allocate-from-the-free-
// pool path, and cluster 0 was deliberately withheld from that pool.
func layoutRootDirectory(dev blockio.Device, im *inode.Manager) error {
	payload := make([]byte, sofs.BytesPerClusterPayload)
	clean := &sofs.DirEntry{NInode: sofs.NullInode}
	for slot := 0; slot < sofs.DirEntriesPerCluster; slot++ {
		copy(payload[slot*sofs.DirEntrySize:(slot+1)*sofs.DirEntrySize], clean.Encode())
	}
	dot := &sofs.DirEntry{NInode: sofs.RootInode}
	dot.SetName(".")
	copy(payload[0:sofs.DirEntrySize], dot.Encode())
	dotdot := &sofs.DirEntry{NInode: sofs.RootInode}
	dotdot.SetName("..")
	copy(payload[sofs.DirEntrySize:2*sofs.DirEntrySize], dotdot.Encode())

	hdr := &sofs.ClusterHeader{Stat: sofs.RootInode, Prev: sofs.NullCluster, Next: sofs.NullCluster}
	raw := make([]byte, sofs.ClusterSize)
	copy(raw, hdr.Encode())
	copy(raw[sofs.ClusterHeaderSize:], payload)
	if err := dev.WriteCluster(sofs.RootCluster, raw); err != nil {
		return errs.Wrap(errs.EIO, err, "write root directory cluster")
	}

	rec, err := im.ReadInode(sofs.RootInode)
	if err != nil {
		return err
	}
	rec.D[0] = sofs.RootCluster
	rec.CluCount = 1
	rec.Size = uint64(sofs.BytesPerClusterPayload)
	rec.RefCount = 2
	return im.WriteInode(sofs.RootInode, rec)
}

// zeroInodeTable writes every block the inode table occupies as zero bytes
// before any inode is individually seeded or freed, so stray bytes left
// over from whatever previously occupied the device can never be mistaken
// for inode data.
func zeroInodeTable(dev blockio.Device, sb *sofs.Superblock) error {
	zero := make([]byte, sofs.BlockSize)
	for b := int64(sb.ITableStart); b < int64(sb.ITableStart)+int64(sb.ITableSize); b++ {
		if err := dev.WriteBlock(b, zero); err != nil {
			return errs.Wrap(errs.EIO, err, "zero inode table block %d", b)
		}
	}
	return nil
}

// seedRootInode writes inode 0 directly (AllocInode can't be used: the
// root's inode number is fixed, not drawn from the free-inode list).
// RefCount starts at 0; layoutRootDirectory brings it to 2 once "." and
// ".." are both in place.
func seedRootInode(im *inode.Manager, m Manifest) error {
	rec := &sofs.Inode{
		Mode:     sofs.TypeDir | sofs.Mode(m.RootPerm)&sofs.PermMask,
		RefCount: 0,
		Owner:    m.OwnerUID,
		Group:    m.OwnerGID,
	}
	for i := range rec.D {
		rec.D[i] = sofs.NullCluster
	}
	rec.I1 = sofs.NullCluster
	rec.I2 = sofs.NullCluster
	return im.WriteInode(sofs.RootInode, rec)
}
