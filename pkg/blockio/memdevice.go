package blockio

import (
	"fmt"

	"github.com/sofs14/sofs14/pkg/sofs"
)

// memDevice is an in-memory Device backed by a plain []byte. The package
// tests run against one of these rather than a real file (pkg/mkfs,
// pkg/mount and pkg/sofs/check format a tiny volume onto it), the role
// pkg/ext4's in-memory fixtures play for the teacher's filesystem-builder
// tests.
type memDevice struct {
	buf        []byte
	blocks     int64
	dzoneStart int64
}

// NewMemDevice returns a Device of the given block count, zero-initialized.
func NewMemDevice(blocks int64) Device {
	return &memDevice{
		buf:    make([]byte, blocks*sofs.BlockSize),
		blocks: blocks,
	}
}

func (d *memDevice) ReadBlock(n int64) ([]byte, error) {
	if n < 0 || n >= d.blocks {
		return nil, fmt.Errorf("blockio: block %d out of range [0,%d)", n, d.blocks)
	}
	out := make([]byte, sofs.BlockSize)
	copy(out, d.buf[n*sofs.BlockSize:(n+1)*sofs.BlockSize])
	return out, nil
}

func (d *memDevice) WriteBlock(n int64, p []byte) error {
	if n < 0 || n >= d.blocks {
		return fmt.Errorf("blockio: block %d out of range [0,%d)", n, d.blocks)
	}
	if len(p) != sofs.BlockSize {
		return fmt.Errorf("blockio: write block %d: buffer is %d bytes, want %d", n, len(p), sofs.BlockSize)
	}
	copy(d.buf[n*sofs.BlockSize:(n+1)*sofs.BlockSize], p)
	return nil
}

func (d *memDevice) clusterBlock(n sofs.ClusterNum) int64 {
	return d.dzoneStart + int64(n)*sofs.BlocksPerCluster
}

func (d *memDevice) ReadCluster(n sofs.ClusterNum) ([]byte, error) {
	first := d.clusterBlock(n)
	if first < 0 || first+sofs.BlocksPerCluster > d.blocks {
		return nil, fmt.Errorf("blockio: cluster %s out of range", n)
	}
	start := first * sofs.BlockSize
	out := make([]byte, sofs.ClusterSize)
	copy(out, d.buf[start:start+sofs.ClusterSize])
	return out, nil
}

func (d *memDevice) WriteCluster(n sofs.ClusterNum, p []byte) error {
	first := d.clusterBlock(n)
	if first < 0 || first+sofs.BlocksPerCluster > d.blocks {
		return fmt.Errorf("blockio: cluster %s out of range", n)
	}
	if len(p) != sofs.ClusterSize {
		return fmt.Errorf("blockio: write cluster %s: buffer is %d bytes, want %d", n, len(p), sofs.ClusterSize)
	}
	start := first * sofs.BlockSize
	copy(d.buf[start:start+sofs.ClusterSize], p)
	return nil
}

func (d *memDevice) BlockCount() int64 { return d.blocks }

func (d *memDevice) SetDZoneStart(blocks int64) { d.dzoneStart = blocks }

func (d *memDevice) Sync() error { return nil }

func (d *memDevice) Close() error { return nil }
