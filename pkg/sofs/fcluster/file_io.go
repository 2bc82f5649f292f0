package fcluster

import (
	"github.com/sofs14/sofs14/pkg/sofs"
	"github.com/sofs14/sofs14/pkg/sofs/errs"
)

// ReadFileCluster returns the BytesPerClusterPayload-sized payload of the
// cluster at logical index clustInd (spec.md §4.8). A hole (no cluster
// allocated at that index, within a sparse file) reads back as zeros,
// matching ordinary Unix sparse-file semantics.
func (m *Manager) ReadFileCluster(nInode sofs.InodeNum, clustInd sofs.ClustIndex) ([]byte, error) {
	cur, err := m.HandleFileCluster(nInode, clustInd, sofs.OpGet)
	if err != nil {
		return nil, err
	}
	if cur == sofs.NullCluster {
		return make([]byte, sofs.BytesPerClusterPayload), nil
	}
	raw, err := m.dev.ReadCluster(cur)
	if err != nil {
		return nil, errs.Wrap(errs.EIO, err, "read file cluster %s", cur)
	}
	out := make([]byte, sofs.BytesPerClusterPayload)
	copy(out, raw[sofs.ClusterHeaderSize:])
	return out, nil
}

// WriteFileCluster writes a full BytesPerClusterPayload-sized payload to
// the cluster at logical index clustInd, allocating and attaching it into
// the file's logical cluster chain first if this is the first write at
// that index, and growing the inode's recorded Size to cover it.
func (m *Manager) WriteFileCluster(nInode sofs.InodeNum, clustInd sofs.ClustIndex, payload []byte) error {
	if len(payload) != sofs.BytesPerClusterPayload {
		return errs.New(errs.EINVAL, "file cluster payload must be exactly %d bytes, got %d", sofs.BytesPerClusterPayload, len(payload))
	}

	cur, err := m.HandleFileCluster(nInode, clustInd, sofs.OpGet)
	if err != nil {
		return err
	}
	if cur == sofs.NullCluster {
		cur, err = m.HandleFileCluster(nInode, clustInd, sofs.OpAlloc)
		if err != nil {
			return err
		}
		if err := m.AttachLogicalCluster(nInode, clustInd); err != nil {
			return err
		}
	}

	raw, err := m.dev.ReadCluster(cur)
	if err != nil {
		return errs.Wrap(errs.EIO, err, "read file cluster %s", cur)
	}
	copy(raw[sofs.ClusterHeaderSize:], payload)
	if err := m.dev.WriteCluster(cur, raw); err != nil {
		return errs.Wrap(errs.EIO, err, "write file cluster %s", cur)
	}

	rec, err := m.inode.ReadInode(nInode)
	if err != nil {
		return err
	}
	end := uint64(clustInd+1) * uint64(sofs.BytesPerClusterPayload)
	if end > rec.Size {
		rec.Size = end
		return m.inode.WriteInode(nInode, rec)
	}
	return nil
}

// Truncate frees every cluster from logical index startClustInd onward
// (HandleFileClusters) and clamps the inode's recorded Size to size.
func (m *Manager) Truncate(nInode sofs.InodeNum, size uint64) error {
	rec, err := m.inode.ReadInode(nInode)
	if err != nil {
		return err
	}
	var startClustInd sofs.ClustIndex
	if size == 0 {
		startClustInd = 0
	} else {
		startClustInd = sofs.ClustIndex((size + uint64(sofs.BytesPerClusterPayload) - 1) / uint64(sofs.BytesPerClusterPayload))
	}
	if err := m.HandleFileClusters(nInode, startClustInd, sofs.OpFreeClean); err != nil {
		return err
	}
	rec, err = m.inode.ReadInode(nInode)
	if err != nil {
		return err
	}
	rec.Size = size
	return m.inode.WriteInode(nInode, rec)
}
