package mount

import (
	"io"

	"github.com/sofs14/sofs14/pkg/sofs"
	"github.com/sofs14/sofs14/pkg/sofs/errs"
)

// ReadAt reads len(buf) bytes (or as many as remain) from n's content
// starting at byte offset off, scattering the read across as many
// clusters as it spans.
func (fs *FS) ReadAt(n sofs.InodeNum, buf []byte, off int64) (int, error) {
	rec, err := fs.vol.Inode().ReadInode(n)
	if err != nil {
		return 0, err
	}
	if rec.Mode.IsDir() {
		return 0, errs.New(errs.EINVAL, "inode %s is a directory", n)
	}
	if off < 0 {
		return 0, errs.New(errs.EINVAL, "negative offset")
	}
	if off >= int64(rec.Size) {
		return 0, io.EOF
	}
	want := len(buf)
	if off+int64(want) > int64(rec.Size) {
		want = int(int64(rec.Size) - off)
	}

	total := 0
	payloadSize := int64(sofs.BytesPerClusterPayload)
	for total < want {
		pos := off + int64(total)
		clustInd := sofs.ClustIndex(pos / payloadSize)
		within := int(pos % payloadSize)
		payload, err := fs.vol.FCluster().ReadFileCluster(n, clustInd)
		if err != nil {
			return total, err
		}
		total += copy(buf[total:want], payload[within:])
	}
	var readErr error
	if total < len(buf) {
		readErr = io.EOF
	}
	return total, readErr
}

// WriteAt writes buf into n's content at byte offset off, allocating and
// attaching new clusters as needed and growing the inode's recorded size.
func (fs *FS) WriteAt(n sofs.InodeNum, buf []byte, off int64) (int, error) {
	rec, err := fs.vol.Inode().ReadInode(n)
	if err != nil {
		return 0, err
	}
	if !rec.Mode.IsFile() {
		return 0, errs.New(errs.EINVAL, "inode %s is not a regular file", n)
	}
	if off < 0 {
		return 0, errs.New(errs.EINVAL, "negative offset")
	}

	total := 0
	payloadSize := int64(sofs.BytesPerClusterPayload)
	for total < len(buf) {
		pos := off + int64(total)
		clustInd := sofs.ClustIndex(pos / payloadSize)
		within := int(pos % payloadSize)
		payload, err := fs.vol.FCluster().ReadFileCluster(n, clustInd)
		if err != nil {
			return total, err
		}
		cpy := copy(payload[within:], buf[total:])
		if err := fs.vol.FCluster().WriteFileCluster(n, clustInd, payload); err != nil {
			return total, err
		}
		total += cpy
	}
	return total, nil
}

// Truncate resizes n's content to size, freeing any cluster past it.
func (fs *FS) Truncate(n sofs.InodeNum, size uint64) error {
	return fs.vol.FCluster().Truncate(n, size)
}
