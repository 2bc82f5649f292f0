package main

import (
	"fmt"

	"github.com/cloudfoundry/bytefmt"
	"github.com/spf13/cobra"

	"github.com/sofs14/sofs14/pkg/mount"
	"github.com/sofs14/sofs14/pkg/sofs/volume"
)

var statCmd = &cobra.Command{
	Use:   "stat DEVICE PATH",
	Short: "Print an inode's metadata",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		path, fpath := args[0], args[1]

		dev, err := openExisting(path)
		if err != nil {
			SetError(err, 1)
			return
		}
		defer dev.Close()

		vol, err := volume.Mount(dev, volume.Options{Log: log})
		if err != nil {
			SetError(err, 1)
			return
		}
		defer vol.Unmount()

		fs := mount.New(vol)
		n, rec, err := fs.Lstat(fpath)
		if err != nil {
			SetError(err, 1)
			return
		}

		fmt.Printf("  File: %s\n", fpath)
		fmt.Printf("  Inode: %s\tType: %s\tLinks: %d\n", n, modeKind(rec.Mode), rec.RefCount)
		fmt.Printf("  Size: %s\tClusters: %d\n", bytefmt.ByteSize(rec.Size), rec.CluCount)
		fmt.Printf("  Perm: %#o\tUID: %d\tGID: %d\n", rec.Mode.Perm(), rec.Owner, rec.Group)

		if rec.Mode.IsSymlink() {
			target, err := fs.Readlink(fpath)
			if err == nil {
				fmt.Printf("  -> %s\n", target)
			}
		}
	},
}
