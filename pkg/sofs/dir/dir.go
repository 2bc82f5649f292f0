// Package dir implements directory operations (spec.md §4.9): looking up,
// adding, removing, and renaming directory entries, checking whether a
// directory is empty, resolving an absolute path (following symlinks with
// per-call loop-detection state, not a package-level counter), and the
// permission check every mutating operation runs first.
package dir

import (
	"strings"

	"github.com/sofs14/sofs14/pkg/sofs"
	"github.com/sofs14/sofs14/pkg/sofs/errs"
	"github.com/sofs14/sofs14/pkg/sofs/fcluster"
	"github.com/sofs14/sofs14/pkg/sofs/inode"
)

// Location names one directory-entry slot: the clustInd'th cluster of the
// directory's content, entry number slot within it.
type Location struct {
	ClustInd sofs.ClustIndex
	Slot     int
}

// Manager implements directory content operations on top of the
// file-cluster layer (directories are, on disk, files whose clusters hold
// arrays of DirEntry instead of raw bytes).
type Manager struct {
	inode *inode.Manager
	fc    *fcluster.Manager
}

// NewManager builds a directory-operations Manager.
func NewManager(im *inode.Manager, fc *fcluster.Manager) *Manager {
	return &Manager{inode: im, fc: fc}
}

func entriesPerCluster() int { return sofs.DirEntriesPerCluster }

// initDirCluster overwrites every slot of the clustInd'th cluster of
// dirInode's content with a CLEAN entry (Name all zero, NInode
// NullInode). A freshly zeroed cluster would decode its NInode field as 0,
// which collides with inode 0 (the root) being a legitimate directory
// entry target — so a directory's clusters are always explicitly
// initialized to the CLEAN sentinel rather than left to zero-fill.
func (m *Manager) initDirCluster(dirInode sofs.InodeNum, clustInd sofs.ClustIndex) error {
	payload := make([]byte, sofs.BytesPerClusterPayload)
	clean := &sofs.DirEntry{NInode: sofs.NullInode}
	for slot := 0; slot < entriesPerCluster(); slot++ {
		copy(payload[slot*sofs.DirEntrySize:(slot+1)*sofs.DirEntrySize], clean.Encode())
	}
	return m.fc.WriteFileCluster(dirInode, clustInd, payload)
}

// readDirEntry reads the directory entry at loc.
func (m *Manager) readDirEntry(dirInode sofs.InodeNum, loc Location) (*sofs.DirEntry, error) {
	payload, err := m.fc.ReadFileCluster(dirInode, loc.ClustInd)
	if err != nil {
		return nil, err
	}
	off := loc.Slot * sofs.DirEntrySize
	return sofs.DecodeDirEntry(payload[off : off+sofs.DirEntrySize])
}

// writeDirEntry writes entry at loc.
func (m *Manager) writeDirEntry(dirInode sofs.InodeNum, loc Location, entry *sofs.DirEntry) error {
	payload, err := m.fc.ReadFileCluster(dirInode, loc.ClustInd)
	if err != nil {
		return err
	}
	off := loc.Slot * sofs.DirEntrySize
	copy(payload[off:off+sofs.DirEntrySize], entry.Encode())
	return m.fc.WriteFileCluster(dirInode, loc.ClustInd, payload)
}

// clusterCount returns how many clusters of content dirInode currently has.
func (m *Manager) clusterCount(dirInode sofs.InodeNum) (int, error) {
	rec, err := m.inode.ReadInode(dirInode)
	if err != nil {
		return 0, err
	}
	if rec.Size == 0 {
		return 0, nil
	}
	return int((rec.Size + uint64(sofs.BytesPerClusterPayload) - 1) / uint64(sofs.BytesPerClusterPayload)), nil
}

// GetDirEntryByName scans dirInode's content for an entry named name,
// returning it and its location. If absent, it returns ENOENT; firstClean,
// when non-nil, is the first CLEAN slot encountered during the scan (never
// a DELETED one — a deliberate choice: reusing a DELETED slot would erase
// the chance of recovering it, so only CLEAN slots are offered up for
// reuse by addAttDirEntry).
func (m *Manager) GetDirEntryByName(dirInode sofs.InodeNum, name string) (entry *sofs.DirEntry, loc Location, firstClean *Location, err error) {
	n, err := m.clusterCount(dirInode)
	if err != nil {
		return nil, Location{}, nil, err
	}
	for k := 0; k < n; k++ {
		payload, err := m.fc.ReadFileCluster(dirInode, sofs.ClustIndex(k))
		if err != nil {
			return nil, Location{}, nil, err
		}
		for slot := 0; slot < entriesPerCluster(); slot++ {
			off := slot * sofs.DirEntrySize
			de, err := sofs.DecodeDirEntry(payload[off : off+sofs.DirEntrySize])
			if err != nil {
				return nil, Location{}, nil, errs.Wrap(errs.EDEINVAL, err, "decode directory entry")
			}
			if de.IsInUse() && de.NameString() == name {
				return de, Location{ClustInd: sofs.ClustIndex(k), Slot: slot}, firstClean, nil
			}
			if firstClean == nil && de.IsClean() {
				loc := Location{ClustInd: sofs.ClustIndex(k), Slot: slot}
				firstClean = &loc
			}
		}
	}
	return nil, Location{}, firstClean, errs.New(errs.ENOENT, "no such directory entry: %s", name)
}

func validateName(name string) error {
	if name == "" {
		return errs.New(errs.EINVAL, "empty directory entry name")
	}
	if len(name) > sofs.MaxNameLen {
		return errs.New(errs.ENAMETOOLONG, "name %q exceeds %d bytes", name, sofs.MaxNameLen)
	}
	if strings.ContainsRune(name, '/') {
		return errs.New(errs.EINVAL, "directory entry name %q contains '/'", name)
	}
	return nil
}

// AddAttDirEntry inserts a directory entry named name pointing at target
// (spec.md §4.9). ADD is used for a brand-new inode (refCount already 1
// from allocInode); ATTACH links an existing inode and bumps its refCount,
// refusing with EMLINK if that would exceed the type's link-count ceiling.
func (m *Manager) AddAttDirEntry(dirInode sofs.InodeNum, name string, target sofs.InodeNum, op sofs.DirOp) error {
	if op != sofs.OpAdd && op != sofs.OpAttach {
		return errs.New(errs.EINVAL, "addAttDirEntry: unsupported op %v", op)
	}
	if err := validateName(name); err != nil {
		return err
	}
	if name == "." || name == ".." {
		return errs.New(errs.EINVAL, "%q is a reserved directory entry name", name)
	}

	_, _, firstClean, err := m.GetDirEntryByName(dirInode, name)
	if err == nil {
		return errs.New(errs.EEXIST, "%s already exists", name)
	}
	if !errs.Is(err, errs.ENOENT) {
		return err
	}

	var loc Location
	if firstClean != nil {
		loc = *firstClean
	} else {
		n, err := m.clusterCount(dirInode)
		if err != nil {
			return err
		}
		newClustInd := sofs.ClustIndex(n)
		if err := m.initDirCluster(dirInode, newClustInd); err != nil {
			return err
		}
		loc = Location{ClustInd: newClustInd, Slot: 0}
	}

	var targetRec *sofs.Inode
	if op == sofs.OpAttach {
		if targetRec, err = m.inode.ReadInode(target); err != nil {
			return err
		}
		maxLinks := sofs.MaxLinksFile
		if targetRec.Mode.IsDir() {
			maxLinks = sofs.MaxLinksDir
		}
		if int(targetRec.RefCount)+1 > maxLinks {
			return errs.New(errs.EMLINK, "link count of inode %s would exceed the maximum", target)
		}
	}

	entry := &sofs.DirEntry{NInode: target}
	entry.SetName(name)
	if err := m.writeDirEntry(dirInode, loc, entry); err != nil {
		return err
	}

	if op == sofs.OpAttach {
		targetRec.RefCount++
		return m.inode.WriteInode(target, targetRec)
	}
	return nil
}

// RemDetachDirEntry removes the directory entry named name. REM marks the
// slot DELETED (parking the original first byte at Name[MaxNameLen] and
// retaining NInode, so the removal is in principle recoverable); DETACH
// fully clears the slot back to CLEAN. Either way it returns the inode
// number the entry pointed at — dropping that inode's refCount and
// freeing it if it reaches zero is the caller's responsibility (dir
// bookkeeping and inode lifecycle are kept separate).
func (m *Manager) RemDetachDirEntry(dirInode sofs.InodeNum, name string, op sofs.DirOp) (sofs.InodeNum, error) {
	if op != sofs.OpRem && op != sofs.OpDetach {
		return sofs.NullInode, errs.New(errs.EINVAL, "remDetachDirEntry: unsupported op %v", op)
	}
	entry, loc, _, err := m.GetDirEntryByName(dirInode, name)
	if err != nil {
		return sofs.NullInode, err
	}
	target := entry.NInode

	if op == sofs.OpRem {
		orig := entry.Name[0]
		entry.Name[0] = 0
		entry.Name[sofs.MaxNameLen] = orig
	} else {
		entry.Name = [sofs.MaxNameLen + 1]byte{}
		entry.NInode = sofs.NullInode
	}
	if err := m.writeDirEntry(dirInode, loc, entry); err != nil {
		return sofs.NullInode, err
	}
	return target, nil
}

// RenameDirEntry renames the entry at oldName to newName within the same
// directory, refusing if newName already names a different live entry.
func (m *Manager) RenameDirEntry(dirInode sofs.InodeNum, oldName, newName string) error {
	entry, loc, _, err := m.GetDirEntryByName(dirInode, oldName)
	if err != nil {
		return err
	}
	if err := validateName(newName); err != nil {
		return err
	}
	if newName != oldName {
		if _, _, _, err := m.GetDirEntryByName(dirInode, newName); err == nil {
			return errs.New(errs.EEXIST, "%s already exists", newName)
		} else if !errs.Is(err, errs.ENOENT) {
			return err
		}
	}
	entry.SetName(newName)
	return m.writeDirEntry(dirInode, loc, entry)
}

// CheckDirectoryEmptiness reports whether dirInode's content holds any
// in-use entry other than "." and "..".
func (m *Manager) CheckDirectoryEmptiness(dirInode sofs.InodeNum) (bool, error) {
	n, err := m.clusterCount(dirInode)
	if err != nil {
		return false, err
	}
	for k := 0; k < n; k++ {
		payload, err := m.fc.ReadFileCluster(dirInode, sofs.ClustIndex(k))
		if err != nil {
			return false, err
		}
		for slot := 0; slot < entriesPerCluster(); slot++ {
			off := slot * sofs.DirEntrySize
			de, err := sofs.DecodeDirEntry(payload[off : off+sofs.DirEntrySize])
			if err != nil {
				return false, err
			}
			if de.IsInUse() {
				switch de.NameString() {
				case ".", "..":
				default:
					return false, nil
				}
			}
		}
	}
	return true, nil
}

// putReservedEntry writes "." or ".." into dirInode without the
// reserved-name refusal AddAttDirEntry applies to ordinary callers; it
// does not touch refCount, since "." and ".." accounting is handled once,
// together, by InitDirectory.
func (m *Manager) putReservedEntry(dirInode sofs.InodeNum, name string, target sofs.InodeNum) error {
	_, _, firstClean, err := m.GetDirEntryByName(dirInode, name)
	if err == nil {
		return errs.New(errs.EEXIST, "%s already exists", name)
	}
	if !errs.Is(err, errs.ENOENT) {
		return err
	}
	if firstClean == nil {
		return errs.New(errs.EDIRINVAL, "no clean slot available for reserved entry %q", name)
	}
	entry := &sofs.DirEntry{NInode: target}
	entry.SetName(name)
	return m.writeDirEntry(dirInode, *firstClean, entry)
}

// InitDirectory lays out a freshly allocated directory inode's first
// cluster with "." (pointing at itself) and ".." (pointing at parent),
// bumping both inodes' refCount accordingly. For the root directory,
// self and parent are the same inode, so both increments land on it,
// giving it the conventional starting link count of 2 with no outside
// caller needing to special-case that.
func (m *Manager) InitDirectory(self, parent sofs.InodeNum) error {
	if err := m.initDirCluster(self, 0); err != nil {
		return err
	}
	if err := m.putReservedEntry(self, ".", self); err != nil {
		return err
	}
	if err := m.putReservedEntry(self, "..", parent); err != nil {
		return err
	}

	selfRec, err := m.inode.ReadInode(self)
	if err != nil {
		return err
	}
	selfRec.RefCount++
	if err := m.inode.WriteInode(self, selfRec); err != nil {
		return err
	}

	parentRec, err := m.inode.ReadInode(parent)
	if err != nil {
		return err
	}
	parentRec.RefCount++
	return m.inode.WriteInode(parent, parentRec)
}

// RetargetReservedEntry overwrites the existing "." or ".." entry in
// dirInode to point at target, used when Rename moves a directory to a
// new parent and must re-point its ".." without going through
// AddAttDirEntry (which refuses reserved names outright, since every
// other caller of it is adding a brand new entry, not retargeting one
// that must already exist). RefCount bookkeeping is the caller's
// responsibility, matching every other dir-entry mutator here.
func (m *Manager) RetargetReservedEntry(dirInode sofs.InodeNum, name string, target sofs.InodeNum) error {
	if name != "." && name != ".." {
		return errs.New(errs.EINVAL, "%q is not a reserved directory entry name", name)
	}
	_, loc, _, err := m.GetDirEntryByName(dirInode, name)
	if err != nil {
		return err
	}
	entry := &sofs.DirEntry{NInode: target}
	entry.SetName(name)
	return m.writeDirEntry(dirInode, loc, entry)
}

// ListEntries returns every in-use entry in dirInode's content, in on-disk
// slot order (the order cmd/sofs14 ls and pkg/mount's directory listing
// both rely on).
func (m *Manager) ListEntries(dirInode sofs.InodeNum) ([]*sofs.DirEntry, error) {
	n, err := m.clusterCount(dirInode)
	if err != nil {
		return nil, err
	}
	var out []*sofs.DirEntry
	for k := 0; k < n; k++ {
		payload, err := m.fc.ReadFileCluster(dirInode, sofs.ClustIndex(k))
		if err != nil {
			return nil, err
		}
		for slot := 0; slot < entriesPerCluster(); slot++ {
			off := slot * sofs.DirEntrySize
			de, err := sofs.DecodeDirEntry(payload[off : off+sofs.DirEntrySize])
			if err != nil {
				return nil, errs.Wrap(errs.EDEINVAL, err, "decode directory entry")
			}
			if de.IsInUse() {
				out = append(out, de)
			}
		}
	}
	return out, nil
}

// AccessGranted implements spec.md §4.9's access check: root (uid 0) is
// granted read and write unconditionally, and exec iff any exec bit is set
// anywhere in the mode; everyone else is checked against the owner, group,
// or other permission triad depending on which one applies to them.
func AccessGranted(rec *sofs.Inode, uid, gid uint16, want sofs.AccessMask) bool {
	if uid == 0 {
		if want&sofs.AccessExec != 0 {
			const anyExec = sofs.PermOwnerExec | sofs.PermGroupExec | sofs.PermOtherExec
			return rec.Mode.Perm()&anyExec != 0
		}
		return true
	}

	var have sofs.Mode
	switch {
	case uid == rec.Owner:
		have = (rec.Mode.Perm() >> 6) & 0x7
	case gid == rec.Group:
		have = (rec.Mode.Perm() >> 3) & 0x7
	default:
		have = rec.Mode.Perm() & 0x7
	}

	if want&sofs.AccessRead != 0 && have&0x4 == 0 {
		return false
	}
	if want&sofs.AccessWrite != 0 && have&0x2 == 0 {
		return false
	}
	if want&sofs.AccessExec != 0 && have&0x1 == 0 {
		return false
	}
	return true
}
