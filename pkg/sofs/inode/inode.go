// Package inode is the inode-table access layer (spec.md §4.2): converting
// an inode number to its on-disk location, and reading, writing, and
// cleaning individual inode records. It never decides which inode is free
// or in use (that is pkg/sofs/ifree's job) — it only knows how to get a
// record in and out of the table.
package inode

import (
	"github.com/sofs14/sofs14/pkg/blockio"
	"github.com/sofs14/sofs14/pkg/sofs"
	"github.com/sofs14/sofs14/pkg/sofs/errs"
)

// Table is a view of the superblock fields the inode layer needs, kept
// narrow so this package doesn't import pkg/sofs/super and create a
// dependency cycle (super, in turn, knows nothing about inode layout).
type Table struct {
	ITableStart sofs.InodeNum
	ITotal      uint32
}

// Manager reads and writes individual inode records against a Device.
type Manager struct {
	dev blockio.Device
	tbl Table
}

// NewManager builds an inode Manager against dev, described by tbl (the
// inode table's starting block and inode count, read from the superblock
// by the caller).
func NewManager(dev blockio.Device, tbl Table) *Manager {
	return &Manager{dev: dev, tbl: tbl}
}

// ConvertRef maps an inode number to the block it lives in and its byte
// offset within that block (spec.md §4.2's convertRef).
func (m *Manager) ConvertRef(n sofs.InodeNum) (block int64, offset int, err error) {
	if n < 0 || uint32(n) >= m.tbl.ITotal {
		return 0, 0, errs.New(errs.EINVAL, "inode number %s out of range [0,%d)", n, m.tbl.ITotal)
	}
	block = int64(m.tbl.ITableStart) + int64(n)/sofs.InodesPerBlock
	offset = int(int64(n)%sofs.InodesPerBlock) * sofs.InodeSize
	return block, offset, nil
}

// ReadInode reads and decodes inode n.
func (m *Manager) ReadInode(n sofs.InodeNum) (*sofs.Inode, error) {
	block, offset, err := m.ConvertRef(n)
	if err != nil {
		return nil, err
	}
	raw, err := m.dev.ReadBlock(block)
	if err != nil {
		return nil, errs.Wrap(errs.EIO, err, "read inode %s", n)
	}
	rec, err := sofs.DecodeInode(raw[offset : offset+sofs.InodeSize])
	if err != nil {
		return nil, errs.Wrap(errs.EIO, err, "decode inode %s", n)
	}
	return rec, nil
}

// WriteInode encodes and writes inode n, read-modify-write against the
// block it shares with its InodesPerBlock-1 neighbors.
func (m *Manager) WriteInode(n sofs.InodeNum, rec *sofs.Inode) error {
	block, offset, err := m.ConvertRef(n)
	if err != nil {
		return err
	}
	raw, err := m.dev.ReadBlock(block)
	if err != nil {
		return errs.Wrap(errs.EIO, err, "read inode block for %s", n)
	}
	copy(raw[offset:offset+sofs.InodeSize], rec.Encode())
	if err := m.dev.WriteBlock(block, raw); err != nil {
		return errs.Wrap(errs.EIO, err, "write inode %s", n)
	}
	return nil
}

// CleanInode zeroes an inode's data fields (mode's permission/type bits,
// refCount, owner, group, size, cluCount, direct/indirect references) while
// preserving the FREE bit and the VD1/VD2 free-list links, which belong to
// whatever free-list entry currently threads through this record
// (spec.md §4.2's cleanInode: the FREE-DIRTY -> FREE-CLEAN transition).
// Cleaning an inode that is not marked FREE is a structural error: it would
// discard a live file's data.
func (m *Manager) CleanInode(n sofs.InodeNum) error {
	rec, err := m.ReadInode(n)
	if err != nil {
		return err
	}
	if !rec.Mode.IsFree() {
		return errs.New(errs.EIUININVAL, "cleanInode on in-use inode %s", n)
	}
	nextFree, prevFree := rec.VD1, rec.VD2
	rec.Mode = sofs.ModeFree
	rec.RefCount = 0
	rec.Owner = 0
	rec.Group = 0
	rec.Size = 0
	rec.CluCount = 0
	for i := range rec.D {
		rec.D[i] = sofs.NullCluster
	}
	rec.I1 = sofs.NullCluster
	rec.I2 = sofs.NullCluster
	rec.VD1, rec.VD2 = nextFree, prevFree
	return m.WriteInode(n, rec)
}
