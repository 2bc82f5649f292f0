package main

import (
	"github.com/cloudfoundry/bytefmt"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sofs14/sofs14/pkg/blockio"
	"github.com/sofs14/sofs14/pkg/mkfs"
)

var (
	flagMkfsSize     string
	flagMkfsInodes   uint32
	flagMkfsName     string
	flagMkfsRootPerm uint16
)

var mkfsCmd = &cobra.Command{
	Use:   "mkfs DEVICE",
	Short: "Format DEVICE as a fresh SOFS14 volume",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := args[0]

		size, err := bytefmt.ToBytes(flagMkfsSize)
		if err != nil {
			SetError(err, 1)
			return
		}
		blocks := int64(size / 512)

		dev, err := blockio.Open(path, blocks)
		if err != nil {
			SetError(err, 1)
			return
		}
		defer dev.Close()

		m := mkfs.DefaultManifest()
		m.Name = flagMkfsName
		if flagMkfsInodes != 0 {
			m.Inodes = flagMkfsInodes
		}
		if flagMkfsRootPerm != 0 {
			m.RootPerm = flagMkfsRootPerm
		}

		if err := mkfs.Format(dev, mkfs.Options{Manifest: m, Log: log}); err != nil {
			SetError(err, 1)
			return
		}
		log.Infof("formatted %s (%s, %d inodes)", path, bytefmt.ByteSize(size), m.Inodes)
	},
}

func addMkfsFlags(f *pflag.FlagSet) {
	f.StringVar(&flagMkfsSize, "size", "64MB", "backing file size, e.g. 64MB, 1GB")
	f.Uint32Var(&flagMkfsInodes, "inodes", 0, "inode count, a multiple of 4 (defaults to 1024)")
	f.StringVar(&flagMkfsName, "name", "", "volume name (defaults to a random UUID)")
	f.Uint16Var(&flagMkfsRootPerm, "root-perm", 0, "root directory permission bits, octal (defaults to 0755)")
}
