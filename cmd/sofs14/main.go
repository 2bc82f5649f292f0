package main

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/sofs14/sofs14/pkg/elog"
)

var log elog.View

func main() {
	commandInit()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	logrus.SetLevel(logrus.TraceLevel)
}
