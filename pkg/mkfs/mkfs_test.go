package mkfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sofs14/sofs14/pkg/blockio"
	"github.com/sofs14/sofs14/pkg/sofs"
	"github.com/sofs14/sofs14/pkg/sofs/inode"
	"github.com/sofs14/sofs14/pkg/sofs/super"
)

func TestFormatRejectsZeroInodes(t *testing.T) {
	dev := blockio.NewMemDevice(64)
	m := DefaultManifest()
	m.Inodes = 0
	err := Format(dev, Options{Manifest: m})
	require.Error(t, err)
}

func TestFormatRejectsInodeCountNotMultipleOfInodesPerBlock(t *testing.T) {
	dev := blockio.NewMemDevice(64)
	m := DefaultManifest()
	m.Inodes = 5
	err := Format(dev, Options{Manifest: m})
	require.Error(t, err)
}

func TestFormatRejectsUndersizedDevice(t *testing.T) {
	dev := blockio.NewMemDevice(2)
	err := Format(dev, Options{Manifest: DefaultManifest()})
	require.Error(t, err)
}

func TestFormatStampsUUIDWhenNameBlank(t *testing.T) {
	dev := blockio.NewMemDevice(64)
	m := DefaultManifest()
	m.Name = ""
	m.Inodes = 16
	require.NoError(t, Format(dev, Options{Manifest: m}))

	sbMgr, err := super.Load(dev, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, sbMgr.Get().NameString())
}

func TestFormatLaysOutRootDirectory(t *testing.T) {
	dev := blockio.NewMemDevice(64)
	m := DefaultManifest()
	m.Name = "testvol"
	m.Inodes = 16
	require.NoError(t, Format(dev, Options{Manifest: m}))

	sbMgr, err := super.Load(dev, nil)
	require.NoError(t, err)
	sb := sbMgr.Get()

	assert.Equal(t, sofs.MagicNumber, sb.Magic)
	assert.Equal(t, sofs.Version, sb.Version)
	assert.Equal(t, sofs.PRU, sb.MStat)
	assert.Equal(t, "testvol", sb.NameString())
	assert.Equal(t, uint32(16), sb.ITotal)
	// Inode 0 is permanently in use; every other inode starts free.
	assert.Equal(t, uint32(15), sb.IFree)
	// Cluster 0 is permanently in use; every other cluster starts free.
	assert.Equal(t, sb.DZoneTotal-1, sb.DZoneFree)

	dev.SetDZoneStart(int64(sb.DZoneStart))
	im := inode.NewManager(dev, inode.Table{ITableStart: sb.ITableStart, ITotal: sb.ITotal})
	root, err := im.ReadInode(sofs.RootInode)
	require.NoError(t, err)
	assert.True(t, root.Mode.IsDir())
	assert.Equal(t, uint16(2), root.RefCount)
	assert.Equal(t, sofs.RootCluster, root.D[0])

	raw, err := dev.ReadCluster(sofs.RootCluster)
	require.NoError(t, err)
	hdr, err := sofs.DecodeClusterHeader(raw)
	require.NoError(t, err)
	assert.Equal(t, sofs.RootInode, hdr.Stat)

	dot, err := sofs.DecodeDirEntry(raw[sofs.ClusterHeaderSize : sofs.ClusterHeaderSize+sofs.DirEntrySize])
	require.NoError(t, err)
	assert.Equal(t, ".", dot.NameString())
	assert.Equal(t, sofs.RootInode, dot.NInode)

	dotdot, err := sofs.DecodeDirEntry(raw[sofs.ClusterHeaderSize+sofs.DirEntrySize : sofs.ClusterHeaderSize+2*sofs.DirEntrySize])
	require.NoError(t, err)
	assert.Equal(t, "..", dotdot.NameString())
	assert.Equal(t, sofs.RootInode, dotdot.NInode)
}
