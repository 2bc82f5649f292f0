package sofs

import "testing"

func TestModeTypeTriad(t *testing.T) {
	cases := []struct {
		name       string
		mode       Mode
		isDir      bool
		isFile     bool
		isSymlink  bool
	}{
		{"file", TypeFile | PermOwnerRead, false, true, false},
		{"dir", TypeDir | PermOwnerRead | PermOwnerExec, true, false, false},
		{"symlink", TypeSymlink, false, false, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.mode.IsDir(); got != c.isDir {
				t.Errorf("IsDir() = %v, want %v", got, c.isDir)
			}
			if got := c.mode.IsFile(); got != c.isFile {
				t.Errorf("IsFile() = %v, want %v", got, c.isFile)
			}
			if got := c.mode.IsSymlink(); got != c.isSymlink {
				t.Errorf("IsSymlink() = %v, want %v", got, c.isSymlink)
			}
		})
	}
}

func TestModeFreeBitIndependentOfType(t *testing.T) {
	m := TypeDir | ModeFree | PermOwnerRead
	if !m.IsFree() {
		t.Errorf("IsFree() = false, want true")
	}
	if !m.IsDir() {
		t.Errorf("IsFree set should not change the type triad: IsDir() = false")
	}
}

func TestModePermMask(t *testing.T) {
	m := TypeFile | PermMask
	if m.Perm() != PermMask {
		t.Errorf("Perm() = %#o, want %#o", m.Perm(), PermMask)
	}
	m2 := TypeDir
	if m2.Perm() != 0 {
		t.Errorf("Perm() of a mode with no permission bits set = %#o, want 0", m2.Perm())
	}
}

func TestTypeBits(t *testing.T) {
	cases := []struct {
		kind Type
		want Mode
	}{
		{TypeKindFile, TypeFile},
		{TypeKindDir, TypeDir},
		{TypeKindSymlink, TypeSymlink},
	}
	for _, c := range cases {
		if got := c.kind.Bits(); got != c.want {
			t.Errorf("Type(%d).Bits() = %#x, want %#x", c.kind, got, c.want)
		}
	}
}

func TestNullSentinels(t *testing.T) {
	if NullInode.Valid() {
		t.Errorf("NullInode.Valid() = true, want false")
	}
	if NullCluster.Valid() {
		t.Errorf("NullCluster.Valid() = true, want false")
	}
	if RootInode.String() == NullInode.String() {
		t.Errorf("RootInode and NullInode stringify the same")
	}
}

func TestClusterPayloadDivisibility(t *testing.T) {
	if BytesPerClusterPayload%ReferenceSize != 0 {
		t.Errorf("BytesPerClusterPayload (%d) not a multiple of ReferenceSize (%d)", BytesPerClusterPayload, ReferenceSize)
	}
	if BytesPerClusterPayload%DirEntrySize != 0 {
		t.Errorf("BytesPerClusterPayload (%d) not a multiple of DirEntrySize (%d)", BytesPerClusterPayload, DirEntrySize)
	}
	if ReferencesPerCluster != BytesPerClusterPayload/ReferenceSize {
		t.Errorf("ReferencesPerCluster = %d, want %d", ReferencesPerCluster, BytesPerClusterPayload/ReferenceSize)
	}
	if DirEntriesPerCluster != BytesPerClusterPayload/DirEntrySize {
		t.Errorf("DirEntriesPerCluster = %d, want %d", DirEntriesPerCluster, BytesPerClusterPayload/DirEntrySize)
	}
}
