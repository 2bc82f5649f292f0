package main

import (
	"os"

	"github.com/cloudfoundry/bytefmt"
	"github.com/sisatech/tablewriter"
	"github.com/spf13/cobra"

	"github.com/sofs14/sofs14/pkg/mount"
	"github.com/sofs14/sofs14/pkg/sofs"
	"github.com/sofs14/sofs14/pkg/sofs/volume"
)

var lsCmd = &cobra.Command{
	Use:   "ls DEVICE PATH",
	Short: "List the entries of the directory at PATH",
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
		entries, err := fs.ReadDir(fpath)
		if err != nil {
			SetError(err, 1)
			return
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		table.SetBorder(false)
		table.SetColumnSeparator("")
		table.SetHeader([]string{"TYPE", "INODE", "SIZE", "NAME"})
		for _, e := range entries {
			table.Append([]string{
				modeKind(e.Mode),
				e.Inode.String(),
				bytefmt.ByteSize(e.Size),
				e.Name,
			})
		}
		table.Render()
	},
}

func modeKind(m sofs.Mode) string {
	switch {
	case m.IsDir():
		return "dir"
	case m.IsSymlink():
		return "symlink"
	default:
		return "file"
	}
}
