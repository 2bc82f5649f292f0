// Package super is the superblock manager (spec.md §4.1): it owns the
// single in-memory image of block 0, mirrors the teacher's pattern of
// a thin manager type around a decoded on-disk record (compare
// pkg/ext4.Superblock's load/encode pair), and is the one package every
// other pkg/sofs/... package asks for the current geometry and free-list
// anchors rather than re-reading block 0 itself.
package super

import (
	"github.com/sofs14/sofs14/pkg/blockio"
	"github.com/sofs14/sofs14/pkg/elog"
	"github.com/sofs14/sofs14/pkg/sofs"
	"github.com/sofs14/sofs14/pkg/sofs/errs"
)

// SuperblockBlock is the fixed block number the superblock always lives at.
const SuperblockBlock int64 = 0

// Manager holds the single authoritative in-memory copy of the superblock
// for a mounted volume. Every read goes through Get; every write goes
// through the mutator methods, which mark the image dirty so Store knows
// there is something to flush.
type Manager struct {
	dev   blockio.Device
	sb    *sofs.Superblock
	dirty bool
	log   elog.Logger
}

// Load reads block 0 from dev, decodes it, and validates the magic number
// and version, returning a Manager ready for use. This is the entry point
// every mount goes through.
func Load(dev blockio.Device, log elog.Logger) (*Manager, error) {
	if log == nil {
		log = elog.Discard
	}
	block, err := dev.ReadBlock(SuperblockBlock)
	if err != nil {
		return nil, errs.Wrap(errs.EIO, err, "read superblock")
	}
	sb, err := sofs.DecodeSuperblock(block)
	if err != nil {
		return nil, errs.Wrap(errs.EIO, err, "decode superblock")
	}
	m := &Manager{dev: dev, sb: sb, log: log}
	if err := m.QuickCheck(); err != nil {
		return nil, err
	}
	log.Debugf("superblock loaded: %s, %d inodes (%d free), %d clusters (%d free)",
		sb.NameString(), sb.ITotal, sb.IFree, sb.DZoneTotal, sb.DZoneFree)
	return m, nil
}

// New wraps an already-built in-memory superblock (used by pkg/mkfs when
// formatting a fresh volume, before the first Store).
func New(dev blockio.Device, sb *sofs.Superblock, log elog.Logger) *Manager {
	if log == nil {
		log = elog.Discard
	}
	return &Manager{dev: dev, sb: sb, log: log, dirty: true}
}

// QuickCheck validates the fields every operation implicitly trusts: magic
// number, format version, and the basic shape of the inode table and data
// zone descriptors (spec.md §4.10's superblock invariants, checked eagerly
// here rather than deferred entirely to pkg/sofs/check.Volume).
func (m *Manager) QuickCheck() error {
	sb := m.sb
	if sb.Magic != sofs.MagicNumber {
		return errs.New(errs.EINVAL, "not a SOFS14 volume (bad magic %#x)", sb.Magic)
	}
	if sb.Version != sofs.Version {
		return errs.New(errs.EINVAL, "unsupported SOFS14 version %d", sb.Version)
	}
	if sb.ITotal == 0 {
		return errs.New(errs.EDCMINVAL, "superblock reports zero inodes")
	}
	if sb.IFree > sb.ITotal {
		return errs.New(errs.EDCMINVAL, "free inode count %d exceeds total %d", sb.IFree, sb.ITotal)
	}
	if sb.DZoneFree > sb.DZoneTotal {
		return errs.New(errs.EDCMINVAL, "free cluster count %d exceeds total %d", sb.DZoneFree, sb.DZoneTotal)
	}
	if sb.RetrievCacheIdx > sofs.DzoneCacheSize {
		return errs.New(errs.EDCMINVAL, "retrieval cache index %d out of range", sb.RetrievCacheIdx)
	}
	if sb.InsertCacheIdx > sofs.DzoneCacheSize {
		return errs.New(errs.EDCMINVAL, "insertion cache index %d out of range", sb.InsertCacheIdx)
	}
	return nil
}

// Get returns the in-memory superblock. Callers mutate it in place and
// then call MarkDirty; Get never returns a copy, matching the spec's
// single in-memory image requirement.
func (m *Manager) Get() *sofs.Superblock { return m.sb }

// MarkDirty records that the in-memory superblock has been mutated and
// must be flushed before the next clean unmount.
func (m *Manager) MarkDirty() { m.dirty = true }

// Dirty reports whether the in-memory image has unflushed mutations.
func (m *Manager) Dirty() bool { return m.dirty }

// Store writes the in-memory superblock back to block 0 if it is dirty,
// per spec.md §5's "the superblock store must immediately follow any
// mutation that changes an invariant-relevant field".
func (m *Manager) Store() error {
	if !m.dirty {
		return nil
	}
	if err := m.dev.WriteBlock(SuperblockBlock, m.sb.Encode()); err != nil {
		return errs.Wrap(errs.EIO, err, "write superblock")
	}
	m.dirty = false
	return nil
}

// SetMStat sets the mount-status flag and marks the superblock dirty.
func (m *Manager) SetMStat(s sofs.MStat) {
	m.sb.MStat = s
	m.dirty = true
}
