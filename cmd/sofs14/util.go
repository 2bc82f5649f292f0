package main

import (
	"os"

	"github.com/sofs14/sofs14/pkg/blockio"
	"github.com/sofs14/sofs14/pkg/sofs"
)

// openExisting opens path as a Device sized to its current file length,
// the shape every read/check subcommand (fsck, ls, cat, stat, mount)
// needs: none of them know a volume's geometry ahead of time, only that
// whatever is already on disk is the volume's full extent.
func openExisting(path string) (blockio.Device, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	blocks := fi.Size() / sofs.BlockSize
	return blockio.Open(path, blocks)
}
