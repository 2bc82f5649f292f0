package sofs

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// byteOrder is the fixed wire order for every on-disk record, matching the
// teacher's ext4 superblock/inode encode/decode helpers.
var byteOrder = binary.LittleEndian

// Superblock is the block-0 record: partition identity, mount status, the
// inode-table descriptor, and the free-cluster repository's on-disk list
// anchors plus its two resident caches (spec.md §3's Superblock).
type Superblock struct {
	Magic   uint32
	Version uint16
	MStat   MStat
	Name    [PartitionNameSize]byte

	ITableStart InodeNum
	ITableSize  uint32
	ITotal      uint32
	IFree       uint32
	IHead       InodeNum
	ITail       InodeNum

	DZoneStart ClusterNum
	DZoneTotal uint32
	DZoneFree  uint32
	DHead      ClusterNum
	DTail      ClusterNum

	DZoneRetriev    [DzoneCacheSize]ClusterNum
	RetrievCacheIdx uint32

	DZoneInsert    [DzoneCacheSize]ClusterNum
	InsertCacheIdx uint32
}

// MStat is the superblock's mount-status flag (spec.md §5).
type MStat uint16

// Mount status values. PRU ("properly unmounted") is set by a clean
// Unmount and cleared by Mount; finding NPRU at mount time means the
// volume was not cleanly unmounted last time.
const (
	NPRU MStat = 0
	PRU  MStat = 1
)

// SuperblockSize is the encoded size of a Superblock; it must not exceed
// BlockSize, since the superblock occupies block 0 in its entirety.
const SuperblockSize = 4 + 2 + 2 + PartitionNameSize +
	4 + 4 + 4 + 4 + 4 + 4 +
	4 + 4 + 4 + 4 + 4 +
	DzoneCacheSize*4 + 4 +
	DzoneCacheSize*4 + 4

func init() {
	if SuperblockSize > BlockSize {
		panic(fmt.Sprintf("sofs: Superblock (%d bytes) does not fit in one block (%d bytes)", SuperblockSize, BlockSize))
	}
}

// SetName stores a volume name, truncating to PartitionNameSize-1 bytes and
// NUL-terminating it.
func (s *Superblock) SetName(name string) {
	var buf [PartitionNameSize]byte
	n := copy(buf[:PartitionNameSize-1], name)
	buf[n] = 0
	s.Name = buf
}

// NameString returns the volume name up to its first NUL.
func (s *Superblock) NameString() string {
	n := bytes.IndexByte(s.Name[:], 0)
	if n < 0 {
		n = len(s.Name)
	}
	return string(s.Name[:n])
}

// Encode serializes the superblock into a BlockSize-length buffer, zero
// padded after SuperblockSize.
func (s *Superblock) Encode() []byte {
	buf := new(bytes.Buffer)
	buf.Grow(BlockSize)
	fields := []interface{}{
		s.Magic, s.Version, s.MStat, s.Name,
		s.ITableStart, s.ITableSize, s.ITotal, s.IFree, s.IHead, s.ITail,
		s.DZoneStart, s.DZoneTotal, s.DZoneFree, s.DHead, s.DTail,
		s.DZoneRetriev, s.RetrievCacheIdx,
		s.DZoneInsert, s.InsertCacheIdx,
	}
	for _, f := range fields {
		if err := binary.Write(buf, byteOrder, f); err != nil {
			panic(err) // fixed-size fields only; a write error here is a bug
		}
	}
	out := make([]byte, BlockSize)
	copy(out, buf.Bytes())
	return out
}

// DecodeSuperblock parses a block-0-sized buffer into a Superblock.
func DecodeSuperblock(block []byte) (*Superblock, error) {
	if len(block) < SuperblockSize {
		return nil, fmt.Errorf("sofs: superblock buffer too short (%d < %d)", len(block), SuperblockSize)
	}
	r := bytes.NewReader(block)
	s := new(Superblock)
	fields := []interface{}{
		&s.Magic, &s.Version, &s.MStat, &s.Name,
		&s.ITableStart, &s.ITableSize, &s.ITotal, &s.IFree, &s.IHead, &s.ITail,
		&s.DZoneStart, &s.DZoneTotal, &s.DZoneFree, &s.DHead, &s.DTail,
		&s.DZoneRetriev, &s.RetrievCacheIdx,
		&s.DZoneInsert, &s.InsertCacheIdx,
	}
	for _, f := range fields {
		if err := binary.Read(r, byteOrder, f); err != nil {
			return nil, fmt.Errorf("sofs: decode superblock: %w", err)
		}
	}
	return s, nil
}

// Inode is one inode-table record (spec.md §3's Inode). VD1/VD2 hold
// aTime/mTime while IN-USE and the free-list's next/prev links while
// FREE-DIRTY — the union is the caller's (pkg/sofs/inode's) responsibility
// to interpret correctly based on Mode.
type Inode struct {
	Mode     Mode
	RefCount uint16
	Owner    uint16
	Group    uint16
	Size     uint64
	CluCount uint32
	VD1      uint32 // aTime (IN-USE) or next free inode (FREE-DIRTY)
	VD2      uint32 // mTime (IN-USE) or prev free inode (FREE-DIRTY)
	D        [NDirect]ClusterNum
	I1       ClusterNum
	I2       ClusterNum
}

// InodeEncodedSize is the portion of InodeSize actually occupied by fields;
// the remainder is reserved padding.
const InodeEncodedSize = 2 + 2 + 2 + 2 + 8 + 4 + 4 + 4 + NDirect*4 + 4 + 4

func init() {
	if InodeEncodedSize > InodeSize {
		panic(fmt.Sprintf("sofs: Inode (%d bytes) does not fit in InodeSize (%d bytes)", InodeEncodedSize, InodeSize))
	}
}

// NextFree / PrevFree read VD1/VD2 as free-list links.
func (i *Inode) NextFree() InodeNum { return InodeNum(int32(i.VD1)) }
func (i *Inode) PrevFree() InodeNum { return InodeNum(int32(i.VD2)) }

// SetNextFree / SetPrevFree write VD1/VD2 as free-list links.
func (i *Inode) SetNextFree(n InodeNum) { i.VD1 = uint32(int32(n)) }
func (i *Inode) SetPrevFree(n InodeNum) { i.VD2 = uint32(int32(n)) }

// ATime / MTime read VD1/VD2 as Unix timestamps.
func (i *Inode) ATime() uint32     { return i.VD1 }
func (i *Inode) MTime() uint32     { return i.VD2 }
func (i *Inode) SetATime(t uint32) { i.VD1 = t }
func (i *Inode) SetMTime(t uint32) { i.VD2 = t }

// Encode serializes the inode into an InodeSize-length buffer.
func (i *Inode) Encode() []byte {
	buf := new(bytes.Buffer)
	buf.Grow(InodeSize)
	fields := []interface{}{
		i.Mode, i.RefCount, i.Owner, i.Group, i.Size, i.CluCount,
		i.VD1, i.VD2, i.D, i.I1, i.I2,
	}
	for _, f := range fields {
		if err := binary.Write(buf, byteOrder, f); err != nil {
			panic(err)
		}
	}
	out := make([]byte, InodeSize)
	copy(out, buf.Bytes())
	return out
}

// DecodeInode parses an InodeSize-sized buffer into an Inode.
func DecodeInode(b []byte) (*Inode, error) {
	if len(b) < InodeEncodedSize {
		return nil, fmt.Errorf("sofs: inode buffer too short (%d < %d)", len(b), InodeEncodedSize)
	}
	r := bytes.NewReader(b)
	i := new(Inode)
	fields := []interface{}{
		&i.Mode, &i.RefCount, &i.Owner, &i.Group, &i.Size, &i.CluCount,
		&i.VD1, &i.VD2, &i.D, &i.I1, &i.I2,
	}
	for _, f := range fields {
		if err := binary.Read(r, byteOrder, f); err != nil {
			return nil, fmt.Errorf("sofs: decode inode: %w", err)
		}
	}
	return i, nil
}

// ClusterHeader is the fixed-size header prefixing every data cluster
// (spec.md §3's cluster header: stat/prev/next).
type ClusterHeader struct {
	Stat InodeNum   // NullInode when free, else the owning inode number
	Prev ClusterNum // free-list prev, or logical-order prev when in use
	Next ClusterNum // free-list next, or logical-order next when in use
}

// Encode serializes the header into a ClusterHeaderSize-length buffer.
func (h *ClusterHeader) Encode() []byte {
	buf := new(bytes.Buffer)
	buf.Grow(ClusterHeaderSize)
	_ = binary.Write(buf, byteOrder, h.Stat)
	_ = binary.Write(buf, byteOrder, h.Prev)
	_ = binary.Write(buf, byteOrder, h.Next)
	out := make([]byte, ClusterHeaderSize)
	copy(out, buf.Bytes())
	return out
}

// DecodeClusterHeader parses the first ClusterHeaderSize bytes of a cluster.
func DecodeClusterHeader(b []byte) (*ClusterHeader, error) {
	if len(b) < 12 {
		return nil, fmt.Errorf("sofs: cluster header buffer too short (%d < 12)", len(b))
	}
	r := bytes.NewReader(b)
	h := new(ClusterHeader)
	if err := binary.Read(r, byteOrder, &h.Stat); err != nil {
		return nil, err
	}
	if err := binary.Read(r, byteOrder, &h.Prev); err != nil {
		return nil, err
	}
	if err := binary.Read(r, byteOrder, &h.Next); err != nil {
		return nil, err
	}
	return h, nil
}

// DirEntry is one directory-entry record (spec.md §3). A CLEAN entry has
// Name[0] == 0 and NInode == NullInode. An IN-USE entry has Name[0] != 0. A
// DELETED entry has Name[0] == 0 but a nonzero byte parked at
// Name[MaxNameLen] (the original first byte) and NInode still set, per
// spec.md §4.9's remDetachDirEntry.
type DirEntry struct {
	NInode InodeNum
	Name   [MaxNameLen + 1]byte
}

// IsClean reports whether the entry is unused and has never held a name.
func (d *DirEntry) IsClean() bool {
	return d.Name[0] == 0 && d.Name[MaxNameLen] == 0 && d.NInode == NullInode
}

// IsDeleted reports whether the entry was removed (REM, not DETACH) and
// still parks its original first byte for potential inspection/undelete.
func (d *DirEntry) IsDeleted() bool {
	return d.Name[0] == 0 && d.Name[MaxNameLen] != 0
}

// IsInUse reports whether the entry names a live directory member.
func (d *DirEntry) IsInUse() bool {
	return d.Name[0] != 0
}

// NameString returns the entry's name (valid only when IsInUse).
func (d *DirEntry) NameString() string {
	n := bytes.IndexByte(d.Name[:], 0)
	if n < 0 {
		n = len(d.Name)
	}
	return string(d.Name[:n])
}

// SetName stores name into the entry, marking it IN-USE. The caller is
// responsible for length-checking against MaxNameLen beforehand
// (addAttDirEntry returns ENAMETOOLONG rather than silently truncating).
func (d *DirEntry) SetName(name string) {
	var buf [MaxNameLen + 1]byte
	copy(buf[:MaxNameLen], name)
	d.Name = buf
}

// Encode serializes the entry into a DirEntrySize-length buffer.
func (d *DirEntry) Encode() []byte {
	buf := new(bytes.Buffer)
	buf.Grow(DirEntrySize)
	_ = binary.Write(buf, byteOrder, d.NInode)
	_ = binary.Write(buf, byteOrder, d.Name)
	return buf.Bytes()
}

// DecodeDirEntry parses a DirEntrySize-sized buffer into a DirEntry.
func DecodeDirEntry(b []byte) (*DirEntry, error) {
	if len(b) < DirEntrySize {
		return nil, fmt.Errorf("sofs: dir entry buffer too short (%d < %d)", len(b), DirEntrySize)
	}
	r := bytes.NewReader(b)
	d := new(DirEntry)
	if err := binary.Read(r, byteOrder, &d.NInode); err != nil {
		return nil, err
	}
	if err := binary.Read(r, byteOrder, &d.Name); err != nil {
		return nil, err
	}
	return d, nil
}
