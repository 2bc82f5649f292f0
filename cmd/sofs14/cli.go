package main

import (
	"os"

	"github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sofs14/sofs14/pkg/elog"
)

var (
	flagVerbose bool
	flagDebug   bool
	flagDevice  string
)

const configFileName = ".sofs14"

var rootCmd = &cobra.Command{
	Use:   "sofs14",
	Short: "sofs14 creates, checks and inspects SOFS14 volumes",
	Long: `sofs14 is a command-line interface for the SOFS14 block-oriented
file system: format a volume, run a consistency check against one, and
inspect or modify a mounted volume's contents.`,
}

func commandInit() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "d", false, "enable debug output")
	rootCmd.PersistentFlags().StringVar(&flagDevice, "device", "", "path to the volume's backing file (overrides the config file default; subcommands take DEVICE as an argument and do not read this flag)")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		logger := &elog.CLI{}
		logrus.SetFormatter(logger)
		if flagDebug {
			logger.IsDebug = true
			logger.IsVerbose = true
		} else if flagVerbose {
			logger.IsVerbose = true
		}
		log = logger

		initConfig()
		if flagDevice == "" {
			flagDevice = viper.GetString("device")
		}
		return nil
	}

	rootCmd.AddCommand(mkfsCmd)
	rootCmd.AddCommand(fsckCmd)
	rootCmd.AddCommand(mountCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(catCmd)
	rootCmd.AddCommand(statCmd)

	addMkfsFlags(mkfsCmd.Flags())
}

// initConfig loads $HOME/.sofs14.toml, falling back to built-in defaults
// when it's absent, mirroring the teacher's cmd/vorteil/conf.go.
func initConfig() {
	home, err := homedir.Dir()
	if err == nil {
		viper.AddConfigPath(home)
		viper.SetConfigName(configFileName)
		viper.SetConfigType("toml")
	}

	if err := viper.ReadInConfig(); err == nil {
		log.Debugf("using config file: %s", viper.ConfigFileUsed())
	} else {
		log.Debugf("no config file found, using defaults")
		viper.SetDefault("device", "")
		viper.SetDefault("inodes", 1024)
	}
}

// SetError logs err and exits the process with code.
func SetError(err error, code int) {
	log.Errorf("%v", err)
	os.Exit(code)
}
