package dir

import (
	"strings"

	"github.com/sofs14/sofs14/pkg/sofs"
	"github.com/sofs14/sofs14/pkg/sofs/errs"
)

// splitPath breaks an absolute path into its non-empty segments, so that
// "/a//b/" becomes ["a", "b"] and "/" becomes an empty slice.
func splitPath(path string) []string {
	var out []string
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

// ReadSymlinkTarget returns the link text stored in a symlink inode's
// content (spec.md stores a symlink's target as its file data, exactly
// like a regular file's bytes, just interpreted as a path by the
// resolver).
func (m *Manager) ReadSymlinkTarget(symlinkInode sofs.InodeNum) (string, error) {
	rec, err := m.inode.ReadInode(symlinkInode)
	if err != nil {
		return "", err
	}
	if !rec.Mode.IsSymlink() {
		return "", errs.New(errs.EINVAL, "inode %s is not a symlink", symlinkInode)
	}
	if rec.Size > uint64(sofs.BytesPerClusterPayload) {
		return "", errs.New(errs.EINVAL, "symlink target too long")
	}
	payload, err := m.fc.ReadFileCluster(symlinkInode, 0)
	if err != nil {
		return "", err
	}
	return string(payload[:rec.Size]), nil
}

// WriteSymlinkTarget stores target as a symlink inode's content.
func (m *Manager) WriteSymlinkTarget(symlinkInode sofs.InodeNum, target string) error {
	if len(target) > sofs.BytesPerClusterPayload {
		return errs.New(errs.ENAMETOOLONG, "symlink target exceeds %d bytes", sofs.BytesPerClusterPayload)
	}
	payload := make([]byte, sofs.BytesPerClusterPayload)
	copy(payload, target)
	if err := m.fc.WriteFileCluster(symlinkInode, 0, payload); err != nil {
		return err
	}
	rec, err := m.inode.ReadInode(symlinkInode)
	if err != nil {
		return err
	}
	rec.Size = uint64(len(target))
	return m.inode.WriteInode(symlinkInode, rec)
}

// GetDirEntryByPath resolves an absolute path from the root directory
// (spec.md §4.9's getDirEntryByPath). followFinal controls whether a
// symlink named by the path's last segment is itself followed (Stat,
// ReadDir and Link's source path pass true; Lstat and Readlink pass false,
// since they operate on the link itself). Symlink-loop detection is per-call
// state threaded as a parameter through the recursive walk, never a
// package- or Manager-level counter, so concurrent resolutions (were this
// package ever used concurrently) can't corrupt each other's loop count.
func (m *Manager) GetDirEntryByPath(path string, followFinal bool) (sofs.InodeNum, error) {
	if path == "" || path[0] != '/' {
		return sofs.NullInode, errs.New(errs.ERELPATH, "path must be absolute: %q", path)
	}
	if len(path) > sofs.MaxPathLen {
		return sofs.NullInode, errs.New(errs.ENAMETOOLONG, "path exceeds %d bytes: %q", sofs.MaxPathLen, path)
	}
	segments := splitPath(path)
	if len(segments) == 0 {
		return sofs.RootInode, nil
	}
	return m.walk(sofs.RootInode, segments, followFinal, 0)
}

func (m *Manager) walk(dir sofs.InodeNum, segments []string, followFinal bool, symlinkHops int) (sofs.InodeNum, error) {
	cur := dir
	for i, seg := range segments {
		rec, err := m.inode.ReadInode(cur)
		if err != nil {
			return sofs.NullInode, err
		}
		if !rec.Mode.IsDir() {
			return sofs.NullInode, errs.New(errs.ENOTDIR, "%s is not a directory", seg)
		}

		entry, _, _, err := m.GetDirEntryByName(cur, seg)
		if err != nil {
			return sofs.NullInode, err
		}
		target := entry.NInode

		isLast := i == len(segments)-1
		if isLast && !followFinal {
			cur = target
			continue
		}

		targetRec, err := m.inode.ReadInode(target)
		if err != nil {
			return sofs.NullInode, err
		}

		if targetRec.Mode.IsSymlink() {
			if symlinkHops >= sofs.MaxSymlinkResolutions {
				return sofs.NullInode, errs.New(errs.ELOOP, "too many levels of symbolic links resolving %q", seg)
			}
			linkTarget, err := m.ReadSymlinkTarget(target)
			if err != nil {
				return sofs.NullInode, err
			}

			var base sofs.InodeNum
			var rest []string
			if strings.HasPrefix(linkTarget, "/") {
				base = sofs.RootInode
				rest = splitPath(linkTarget)
			} else {
				base = cur
				rest = splitPath("/" + linkTarget)
			}
			rest = append(rest, segments[i+1:]...)
			return m.walk(base, rest, followFinal, symlinkHops+1)
		}

		cur = target
	}
	return cur, nil
}
