// Package mount is the thin POSIX-shaped façade over pkg/sofs/...: the
// directory-entry and path-resolution primitives there are sequenced here
// into the operations a filesystem user actually asks for (create a file,
// make a directory, remove something, rename it), the role
// pkg/vdecompiler/fs.go plays over pkg/ext in the teacher repo, adapted
// from a read-only image inspector into a read/write façade since SOFS14
// is a live, mountable filesystem rather than a build artifact to inspect.
package mount

import (
	"strings"

	"github.com/sofs14/sofs14/pkg/sofs"
	"github.com/sofs14/sofs14/pkg/sofs/dir"
	"github.com/sofs14/sofs14/pkg/sofs/errs"
	"github.com/sofs14/sofs14/pkg/sofs/volume"
)

// FS is a mounted volume through its POSIX-shaped operations.
type FS struct {
	vol *volume.Volume
}

// New wraps an already-mounted volume.
func New(vol *volume.Volume) *FS {
	return &FS{vol: vol}
}

// Volume returns the underlying volume context, for callers (cmd/sofs14)
// that also need direct access to check.Volume or Unmount.
func (fs *FS) Volume() *volume.Volume { return fs.vol }

// splitPath splits an absolute path into its parent directory and final
// name component. "/" and "" are rejected: every mutating operation names
// something inside a directory, never the root itself.
func splitPath(path string) (parent, name string, err error) {
	if path == "" || path[0] != '/' {
		return "", "", errs.New(errs.ERELPATH, "path must be absolute: %q", path)
	}
	if path == "/" {
		return "", "", errs.New(errs.EINVAL, "path names the root directory")
	}
	trimmed := strings.TrimRight(path, "/")
	if trimmed == "" {
		return "", "", errs.New(errs.EINVAL, "path names the root directory")
	}
	idx := strings.LastIndexByte(trimmed, '/')
	parent = trimmed[:idx]
	if parent == "" {
		parent = "/"
	}
	name = trimmed[idx+1:]
	return parent, name, nil
}

// resolveParentDir resolves path's parent directory and confirms uid/gid
// hold write+exec permission on it (needed to add or remove an entry).
func (fs *FS) resolveParentDir(path string, uid, gid uint16) (sofs.InodeNum, string, error) {
	parentPath, name, err := splitPath(path)
	if err != nil {
		return sofs.NullInode, "", err
	}
	parentInode, err := fs.vol.Dir().GetDirEntryByPath(parentPath, true)
	if err != nil {
		return sofs.NullInode, "", err
	}
	parentRec, err := fs.vol.Inode().ReadInode(parentInode)
	if err != nil {
		return sofs.NullInode, "", err
	}
	if !parentRec.Mode.IsDir() {
		return sofs.NullInode, "", errs.New(errs.ENOTDIR, "%s is not a directory", parentPath)
	}
	if !dir.AccessGranted(parentRec, uid, gid, sofs.AccessWrite|sofs.AccessExec) {
		return sofs.NullInode, "", errs.New(errs.EACCES, "permission denied on %s", parentPath)
	}
	return parentInode, name, nil
}

// abandonInode rolls back a freshly allocated inode that never made it
// into a directory entry (e.g. AddAttDirEntry below failed with EEXIST):
// drop it straight back to FREE without passing through the ordinary
// refCount-must-reach-zero path, since it never acquired a real link.
func (fs *FS) abandonInode(n sofs.InodeNum) {
	rec, err := fs.vol.Inode().ReadInode(n)
	if err != nil {
		return
	}
	rec.RefCount = 0
	if err := fs.vol.Inode().WriteInode(n, rec); err != nil {
		return
	}
	_ = fs.vol.IFree().FreeInode(n)
}

// Stat resolves path, following a symlink named by its final component,
// and returns the inode it names along with its record.
func (fs *FS) Stat(path string) (sofs.InodeNum, *sofs.Inode, error) {
	n, err := fs.vol.Dir().GetDirEntryByPath(path, true)
	if err != nil {
		return sofs.NullInode, nil, err
	}
	rec, err := fs.vol.Inode().ReadInode(n)
	return n, rec, err
}

// Lstat resolves path without following a symlink named by its final
// component.
func (fs *FS) Lstat(path string) (sofs.InodeNum, *sofs.Inode, error) {
	n, err := fs.vol.Dir().GetDirEntryByPath(path, false)
	if err != nil {
		return sofs.NullInode, nil, err
	}
	rec, err := fs.vol.Inode().ReadInode(n)
	return n, rec, err
}

// Mkdir creates an empty directory at path.
func (fs *FS) Mkdir(path string, perm sofs.Mode, uid, gid uint16) error {
	parentInode, name, err := fs.resolveParentDir(path, uid, gid)
	if err != nil {
		return err
	}
	newInode, err := fs.vol.IFree().AllocInode(sofs.TypeKindDir, perm, uid, gid)
	if err != nil {
		return err
	}
	if err := fs.vol.Dir().AddAttDirEntry(parentInode, name, newInode, sofs.OpAdd); err != nil {
		fs.abandonInode(newInode)
		return err
	}
	return fs.vol.Dir().InitDirectory(newInode, parentInode)
}

// Create makes an empty regular file at path and returns its inode.
func (fs *FS) Create(path string, perm sofs.Mode, uid, gid uint16) (sofs.InodeNum, error) {
	parentInode, name, err := fs.resolveParentDir(path, uid, gid)
	if err != nil {
		return sofs.NullInode, err
	}
	newInode, err := fs.vol.IFree().AllocInode(sofs.TypeKindFile, perm, uid, gid)
	if err != nil {
		return sofs.NullInode, err
	}
	if err := fs.vol.Dir().AddAttDirEntry(parentInode, name, newInode, sofs.OpAdd); err != nil {
		fs.abandonInode(newInode)
		return sofs.NullInode, err
	}
	return newInode, nil
}

// Symlink creates a symlink at path whose content is target.
func (fs *FS) Symlink(target, path string, uid, gid uint16) error {
	parentInode, name, err := fs.resolveParentDir(path, uid, gid)
	if err != nil {
		return err
	}
	newInode, err := fs.vol.IFree().AllocInode(sofs.TypeKindSymlink, sofs.Mode(0777), uid, gid)
	if err != nil {
		return err
	}
	if err := fs.vol.Dir().AddAttDirEntry(parentInode, name, newInode, sofs.OpAdd); err != nil {
		fs.abandonInode(newInode)
		return err
	}
	return fs.vol.Dir().WriteSymlinkTarget(newInode, target)
}

// Link creates newpath as an additional hard link to the inode oldpath
// resolves to. Directories can never be hard-linked.
func (fs *FS) Link(oldpath, newpath string, uid, gid uint16) error {
	oldInode, err := fs.vol.Dir().GetDirEntryByPath(oldpath, true)
	if err != nil {
		return err
	}
	oldRec, err := fs.vol.Inode().ReadInode(oldInode)
	if err != nil {
		return err
	}
	if oldRec.Mode.IsDir() {
		return errs.New(errs.EPERM, "%s is a directory", oldpath)
	}
	parentInode, name, err := fs.resolveParentDir(newpath, uid, gid)
	if err != nil {
		return err
	}
	return fs.vol.Dir().AddAttDirEntry(parentInode, name, oldInode, sofs.OpAttach)
}

// freeIfUnreferenced drops n's remaining content and returns it to the
// free-inode list once its refCount has reached zero.
func (fs *FS) freeIfUnreferenced(n sofs.InodeNum) error {
	rec, err := fs.vol.Inode().ReadInode(n)
	if err != nil {
		return err
	}
	if rec.RefCount != 0 {
		return nil
	}
	if err := fs.vol.FCluster().Truncate(n, 0); err != nil {
		return err
	}
	return fs.vol.IFree().FreeInode(n)
}

// Unlink removes the directory entry at path and, if that was its last
// link, frees the inode and its content. path must not name a directory;
// use Rmdir for that.
func (fs *FS) Unlink(path string, uid, gid uint16) error {
	parentInode, name, err := fs.resolveParentDir(path, uid, gid)
	if err != nil {
		return err
	}
	entry, _, _, err := fs.vol.Dir().GetDirEntryByName(parentInode, name)
	if err != nil {
		return err
	}
	targetRec, err := fs.vol.Inode().ReadInode(entry.NInode)
	if err != nil {
		return err
	}
	if targetRec.Mode.IsDir() {
		return errs.New(errs.EPERM, "%s is a directory", path)
	}

	target, err := fs.vol.Dir().RemDetachDirEntry(parentInode, name, sofs.OpRem)
	if err != nil {
		return err
	}
	targetRec.RefCount--
	if err := fs.vol.Inode().WriteInode(target, targetRec); err != nil {
		return err
	}
	return fs.freeIfUnreferenced(target)
}

// Rmdir removes the empty directory at path.
func (fs *FS) Rmdir(path string, uid, gid uint16) error {
	parentInode, name, err := fs.resolveParentDir(path, uid, gid)
	if err != nil {
		return err
	}
	if name == "." || name == ".." {
		return errs.New(errs.EINVAL, "%q is not a valid rmdir target", name)
	}
	entry, _, _, err := fs.vol.Dir().GetDirEntryByName(parentInode, name)
	if err != nil {
		return err
	}
	target := entry.NInode
	targetRec, err := fs.vol.Inode().ReadInode(target)
	if err != nil {
		return err
	}
	if !targetRec.Mode.IsDir() {
		return errs.New(errs.ENOTDIR, "%s is not a directory", path)
	}
	empty, err := fs.vol.Dir().CheckDirectoryEmptiness(target)
	if err != nil {
		return err
	}
	if !empty {
		return errs.New(errs.ENOTEMPTY, "%s is not empty", path)
	}

	if _, err := fs.vol.Dir().RemDetachDirEntry(parentInode, name, sofs.OpDetach); err != nil {
		return err
	}
	parentRec, err := fs.vol.Inode().ReadInode(parentInode)
	if err != nil {
		return err
	}
	parentRec.RefCount-- // the removed subdirectory's ".." no longer references it
	if err := fs.vol.Inode().WriteInode(parentInode, parentRec); err != nil {
		return err
	}

	targetRec.RefCount = 0
	if err := fs.vol.Inode().WriteInode(target, targetRec); err != nil {
		return err
	}
	return fs.freeIfUnreferenced(target)
}

// Rename moves the entry at oldpath to newpath, which may name a
// different directory. Moving a directory updates its ".." entry and the
// old/new parents' refCounts accordingly.
func (fs *FS) Rename(oldpath, newpath string, uid, gid uint16) error {
	oldParentInode, oldName, err := fs.resolveParentDir(oldpath, uid, gid)
	if err != nil {
		return err
	}
	newParentInode, newName, err := fs.resolveParentDir(newpath, uid, gid)
	if err != nil {
		return err
	}

	if oldParentInode == newParentInode {
		return fs.vol.Dir().RenameDirEntry(oldParentInode, oldName, newName)
	}

	entry, _, _, err := fs.vol.Dir().GetDirEntryByName(oldParentInode, oldName)
	if err != nil {
		return err
	}
	target := entry.NInode

	if _, _, _, err := fs.vol.Dir().GetDirEntryByName(newParentInode, newName); err == nil {
		return errs.New(errs.EEXIST, "%s already exists", newpath)
	} else if !errs.Is(err, errs.ENOENT) {
		return err
	}

	if err := fs.vol.Dir().AddAttDirEntry(newParentInode, newName, target, sofs.OpAttach); err != nil {
		return err
	}
	if _, err := fs.vol.Dir().RemDetachDirEntry(oldParentInode, oldName, sofs.OpDetach); err != nil {
		return err
	}
	// AddAttDirEntry(ATTACH) bumped target's refCount for the new name;
	// RemDetachDirEntry doesn't touch refCount for the old one it just
	// removed, so the net change across the move should be zero.
	targetRec, err := fs.vol.Inode().ReadInode(target)
	if err != nil {
		return err
	}
	targetRec.RefCount--
	if err := fs.vol.Inode().WriteInode(target, targetRec); err != nil {
		return err
	}

	if targetRec.Mode.IsDir() {
		// Re-point target's ".." entry at its new parent, and move the
		// refCount of that ".." back-reference from the old parent to the
		// new one.
		if err := fs.vol.Dir().RetargetReservedEntry(target, "..", newParentInode); err != nil {
			return err
		}
		newParentRec, err := fs.vol.Inode().ReadInode(newParentInode)
		if err != nil {
			return err
		}
		newParentRec.RefCount++
		if err := fs.vol.Inode().WriteInode(newParentInode, newParentRec); err != nil {
			return err
		}

		oldParentRec, err := fs.vol.Inode().ReadInode(oldParentInode)
		if err != nil {
			return err
		}
		oldParentRec.RefCount-- // lost the moved subdirectory's ".." back-reference
		if err := fs.vol.Inode().WriteInode(oldParentInode, oldParentRec); err != nil {
			return err
		}
	}

	return nil
}
