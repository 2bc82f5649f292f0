package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sofs14/sofs14/pkg/mount"
	"github.com/sofs14/sofs14/pkg/sofs/volume"
)

var catCmd = &cobra.Command{
	Use:   "cat DEVICE PATH",
	Short: "Write a regular file's content to stdout",
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
		n, rec, err := fs.Stat(fpath)
		if err != nil {
			SetError(err, 1)
			return
		}
		if !rec.Mode.IsFile() {
			SetError(fmt.Errorf("%q is not a regular file", fpath), 1)
			return
		}

		const chunk = 64 * 1024
		buf := make([]byte, chunk)
		var off int64
		for {
			want := buf
			if int64(len(want)) > int64(rec.Size)-off {
				if int64(rec.Size)-off <= 0 {
					break
				}
				want = buf[:int64(rec.Size)-off]
			}
			got, rerr := fs.ReadAt(n, want, off)
			if got > 0 {
				if _, werr := os.Stdout.Write(want[:got]); werr != nil {
					SetError(werr, 1)
					return
				}
				off += int64(got)
			}
			if rerr == io.EOF || off >= int64(rec.Size) {
				break
			}
			if rerr != nil {
				SetError(rerr, 1)
				return
			}
		}
	},
}
