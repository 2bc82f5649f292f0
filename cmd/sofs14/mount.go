package main

import (
	"github.com/cloudfoundry/bytefmt"
	"github.com/spf13/cobra"

	"github.com/sofs14/sofs14/pkg/sofs"
	"github.com/sofs14/sofs14/pkg/sofs/volume"
)

var mountCmd = &cobra.Command{
	Use:   "mount DEVICE",
	Short: "Mount DEVICE, report its geometry, then unmount it cleanly",
	Long: `mount loads a SOFS14 volume's superblock, runs the same mount-time
bookkeeping every other subcommand relies on, reports the volume's
free-space and inode accounting, and unmounts it again. It does not expose
the volume through the host's own file-system namespace (no FUSE loopback
driver is wired in); ls/cat/stat mount and unmount internally per
invocation instead.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := args[0]

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

		sb := vol.Super().Get()
		log.Printf("volume %q: %d/%d inodes free, %s/%s data zone free",
			sb.NameString(), sb.IFree, sb.ITotal,
			bytefmt.ByteSize(uint64(sb.DZoneFree)*uint64(sofs.ClusterSize)),
			bytefmt.ByteSize(uint64(sb.DZoneTotal)*uint64(sofs.ClusterSize)))

		if err := vol.Unmount(); err != nil {
			SetError(err, 1)
			return
		}
	},
}
