// Package mkfs formats a fresh SOFS14 volume onto a blockio.Device: laying
// out the superblock, inode table, free-inode list, free-cluster
// repository, and the root directory's first cluster. Its Manifest
// mirrors the shape of the teacher's pkg/vcfg.VCFG: a TOML-tagged
// configuration struct loaded with sisatech/toml and completed against a
// set of defaults with imdario/mergo, rather than requiring every field on
// every format.
package mkfs

import (
	"io/ioutil"

	"github.com/imdario/mergo"
	"github.com/sisatech/toml"

	"github.com/sofs14/sofs14/pkg/sofs"
	"github.com/sofs14/sofs14/pkg/sofs/errs"
)

// Manifest describes the volume to format: how large to make the inode
// table, who owns the root directory, and what name to stamp into the
// superblock.
type Manifest struct {
	Name       string `toml:"name,omitempty" json:"name,omitempty"`
	Inodes     uint32 `toml:"inodes,omitempty" json:"inodes,omitempty"`
	OwnerUID   uint16 `toml:"owner-uid,omitempty" json:"owner-uid,omitempty"`
	OwnerGID   uint16 `toml:"owner-gid,omitempty" json:"owner-gid,omitempty"`
	RootPerm   uint16 `toml:"root-perm,omitempty" json:"root-perm,omitempty"`
}

// DefaultManifest returns the manifest used to fill in any field a loaded
// or hand-built Manifest leaves at its zero value. Name is deliberately
// left blank: Format stamps a generated UUID into the superblock's name
// field when no explicit name was given.
func DefaultManifest() Manifest {
	return Manifest{
		Inodes:   1024,
		OwnerUID: 0,
		OwnerGID: 0,
		RootPerm: 0755,
	}
}

// LoadManifest reads a TOML manifest from path and completes it against
// DefaultManifest, the way pkg/vcfg.Merge completes a partial VCFG against
// a package's own default settings.
func LoadManifest(path string) (Manifest, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return Manifest{}, errs.Wrap(errs.EIO, err, "read manifest %s", path)
	}
	var m Manifest
	if err := toml.Unmarshal(raw, &m); err != nil {
		return Manifest{}, errs.Wrap(errs.EINVAL, err, "parse manifest %s", path)
	}
	def := DefaultManifest()
	if err := mergo.Merge(&m, def); err != nil {
		return Manifest{}, errs.Wrap(errs.EINVAL, err, "merge manifest %s with defaults", path)
	}
	return m, nil
}

// validate checks the manifest describes a shape the layout math in
// Format can actually build.
func (m Manifest) validate() error {
	if m.Inodes == 0 {
		return errs.New(errs.EDCMINVAL, "manifest requests zero inodes")
	}
	if m.Inodes%sofs.InodesPerBlock != 0 {
		return errs.New(errs.EDCMINVAL, "inode count %d must be a multiple of %d", m.Inodes, sofs.InodesPerBlock)
	}
	return nil
}
