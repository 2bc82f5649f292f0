package check

import (
	"testing"

	"github.com/sofs14/sofs14/pkg/blockio"
	"github.com/sofs14/sofs14/pkg/mkfs"
	"github.com/sofs14/sofs14/pkg/sofs"
)

func formatted(t *testing.T) blockio.Device {
	t.Helper()
	dev := blockio.NewMemDevice(128)
	m := mkfs.DefaultManifest()
	m.Inodes = 16
	if err := mkfs.Format(dev, mkfs.Options{Manifest: m}); err != nil {
		t.Fatalf("Format: %v", err)
	}
	return dev
}

func TestVolumeCleanOnFreshFormat(t *testing.T) {
	dev := formatted(t)
	report, err := Volume(dev, nil)
	if err != nil {
		t.Fatalf("Volume: %v", err)
	}
	if !report.Clean() {
		t.Errorf("freshly formatted volume reported unclean: %v", report.Violations)
	}
	if report.InodesChecked == 0 {
		t.Errorf("InodesChecked = 0, want > 0")
	}
}

func TestVolumeCatchesRefCountCorruption(t *testing.T) {
	dev := formatted(t)

	// Zero out the root inode's refCount directly through a raw block
	// write, bypassing every higher-level invariant-preserving mutator,
	// the way on-disk corruption would: a zero refCount on an in-use
	// inode is one of check.Volume's predicates.
	sb := mustSuperblock(t, dev)
	block, err := dev.ReadBlock(int64(sb.ITableStart))
	if err != nil {
		t.Fatalf("read inode table block: %v", err)
	}
	// RefCount is the second field (uint16) right after Mode (uint16) in
	// the little-endian encoding pkg/sofs.Inode.Encode produces.
	block[2] = 0x00
	block[3] = 0x00
	if err := dev.WriteBlock(int64(sb.ITableStart), block); err != nil {
		t.Fatalf("write inode table block: %v", err)
	}

	report, err := Volume(dev, nil)
	if err != nil {
		t.Fatalf("Volume: %v", err)
	}
	if report.Clean() {
		t.Errorf("expected a refCount corruption to be reported, scan came back clean")
	}
}

func mustSuperblock(t *testing.T, dev blockio.Device) *sofs.Superblock {
	t.Helper()
	block, err := dev.ReadBlock(0)
	if err != nil {
		t.Fatalf("ReadBlock(0): %v", err)
	}
	sb, err := sofs.DecodeSuperblock(block)
	if err != nil {
		t.Fatalf("DecodeSuperblock: %v", err)
	}
	return sb
}
