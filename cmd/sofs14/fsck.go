package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sofs14/sofs14/pkg/sofs/check"
)

var fsckCmd = &cobra.Command{
	Use:   "fsck DEVICE",
	Short: "Run a full consistency scan against DEVICE",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := args[0]

		dev, err := openExisting(path)
		if err != nil {
			SetError(err, 1)
			return
		}
		defer dev.Close()

		report, err := check.Volume(dev, log)
		if err != nil {
			SetError(err, 1)
			return
		}

		log.Printf("%d inodes checked, %d clusters checked", report.InodesChecked, report.ClustersChecked)
		if report.Clean() {
			log.Infof("volume is clean")
			return
		}

		for _, v := range report.Violations.Errors {
			fmt.Println(v)
		}
		SetError(fmt.Errorf("%d violation(s) found", report.Violations.Len()), 1)
	},
}
