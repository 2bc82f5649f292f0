package mount

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sofs14/sofs14/pkg/blockio"
	"github.com/sofs14/sofs14/pkg/mkfs"
	"github.com/sofs14/sofs14/pkg/sofs"
	"github.com/sofs14/sofs14/pkg/sofs/volume"
)

func newTestFS(t *testing.T) *FS {
	t.Helper()
	dev := blockio.NewMemDevice(256)
	m := mkfs.DefaultManifest()
	m.Inodes = 32
	require.NoError(t, mkfs.Format(dev, mkfs.Options{Manifest: m}))

	vol, err := volume.Mount(dev, volume.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = vol.Unmount() })

	return New(vol)
}

func TestMkdirAndReadDir(t *testing.T) {
	fs := newTestFS(t)

	require.NoError(t, fs.Mkdir("/etc", 0755, 0, 0))
	require.NoError(t, fs.Mkdir("/etc/conf", 0755, 0, 0))

	entries, err := fs.ReadDir("/")
	require.NoError(t, err)
	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name] = true
	}
	assert.True(t, names["etc"])
	assert.True(t, names["."])
	assert.True(t, names[".."])

	_, rec, err := fs.Stat("/etc")
	require.NoError(t, err)
	assert.True(t, rec.Mode.IsDir())
	assert.Equal(t, uint16(3), rec.RefCount) // its own entry + "." + "conf"'s ".."
}

func TestCreateWriteRead(t *testing.T) {
	fs := newTestFS(t)

	n, err := fs.Create("/hello.txt", 0644, 0, 0)
	require.NoError(t, err)

	data := []byte("hello, sofs14")
	written, err := fs.WriteAt(n, data, 0)
	require.NoError(t, err)
	assert.Equal(t, len(data), written)

	buf := make([]byte, len(data))
	read, err := fs.ReadAt(n, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, len(data), read)
	assert.Equal(t, data, buf)
}

func TestSymlinkAndReadlink(t *testing.T) {
	fs := newTestFS(t)

	require.NoError(t, mustCreate(t, fs, "/target"))
	require.NoError(t, fs.Symlink("/target", "/link", 0, 0))

	target, err := fs.Readlink("/link")
	require.NoError(t, err)
	assert.Equal(t, "/target", target)

	_, rec, err := fs.Stat("/link")
	require.NoError(t, err)
	assert.True(t, rec.Mode.IsFile())
}

func TestLinkIncreasesRefCount(t *testing.T) {
	fs := newTestFS(t)

	n, err := fs.Create("/a", 0644, 0, 0)
	require.NoError(t, err)
	require.NoError(t, fs.Link("/a", "/b", 0, 0))

	_, rec, err := fs.Stat("/a")
	require.NoError(t, err)
	assert.Equal(t, uint16(2), rec.RefCount)

	n2, _, err := fs.Stat("/b")
	require.NoError(t, err)
	assert.Equal(t, n, n2)
}

func TestUnlinkFreesInodeAtZeroRefCount(t *testing.T) {
	fs := newTestFS(t)

	require.NoError(t, mustCreate(t, fs, "/a"))
	require.NoError(t, fs.Unlink("/a", 0, 0))

	_, _, err := fs.Stat("/a")
	assert.Error(t, err)
}

func TestRmdirRejectsNonEmpty(t *testing.T) {
	fs := newTestFS(t)
	require.NoError(t, fs.Mkdir("/d", 0755, 0, 0))
	require.NoError(t, fs.Mkdir("/d/child", 0755, 0, 0))

	err := fs.Rmdir("/d", 0, 0)
	assert.Error(t, err)

	require.NoError(t, fs.Rmdir("/d/child", 0, 0))
	require.NoError(t, fs.Rmdir("/d", 0, 0))
}

func TestRenameMovesEntryAndUpdatesDotDot(t *testing.T) {
	fs := newTestFS(t)

	require.NoError(t, fs.Mkdir("/src", 0755, 0, 0))
	require.NoError(t, fs.Mkdir("/dst", 0755, 0, 0))
	require.NoError(t, fs.Mkdir("/src/moved", 0755, 0, 0))

	require.NoError(t, fs.Rename("/src/moved", "/dst/moved", 0, 0))

	_, _, err := fs.Stat("/src/moved")
	assert.Error(t, err)
	movedN, movedRec, err := fs.Stat("/dst/moved")
	require.NoError(t, err)
	assert.True(t, movedRec.Mode.IsDir())

	entries, err := fs.ReadDir("/dst/moved")
	require.NoError(t, err)
	var dotdotTarget sofs.InodeNum = sofs.NullInode
	for _, e := range entries {
		if e.Name == ".." {
			dotdotTarget = e.Inode
		}
	}
	dstN, _, err := fs.Stat("/dst")
	require.NoError(t, err)
	assert.Equal(t, dstN, dotdotTarget)
	_ = movedN
}

func mustCreate(t *testing.T, fs *FS, path string) error {
	t.Helper()
	_, err := fs.Create(path, 0644, 0, 0)
	return err
}
