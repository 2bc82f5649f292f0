package mount

import (
	"github.com/sofs14/sofs14/pkg/sofs"
	"github.com/sofs14/sofs14/pkg/sofs/errs"
)

// DirListing is one entry returned by ReadDir.
type DirListing struct {
	Name  string
	Inode sofs.InodeNum
	Mode  sofs.Mode
	Size  uint64
}

// ReadDir resolves path (following a final symlink) and lists every entry
// in the directory it names.
func (fs *FS) ReadDir(path string) ([]DirListing, error) {
	n, err := fs.vol.Dir().GetDirEntryByPath(path, true)
	if err != nil {
		return nil, err
	}
	rec, err := fs.vol.Inode().ReadInode(n)
	if err != nil {
		return nil, err
	}
	if !rec.Mode.IsDir() {
		return nil, errs.New(errs.ENOTDIR, "%s is not a directory", path)
	}

	entries, err := fs.vol.Dir().ListEntries(n)
	if err != nil {
		return nil, err
	}
	out := make([]DirListing, 0, len(entries))
	for _, e := range entries {
		childRec, err := fs.vol.Inode().ReadInode(e.NInode)
		if err != nil {
			return nil, err
		}
		out = append(out, DirListing{
			Name:  e.NameString(),
			Inode: e.NInode,
			Mode:  childRec.Mode,
			Size:  childRec.Size,
		})
	}
	return out, nil
}

// Readlink resolves path without following its final component and
// returns the symlink's target text.
func (fs *FS) Readlink(path string) (string, error) {
	n, err := fs.vol.Dir().GetDirEntryByPath(path, false)
	if err != nil {
		return "", err
	}
	return fs.vol.Dir().ReadSymlinkTarget(n)
}
