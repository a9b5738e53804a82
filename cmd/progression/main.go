// Command progression dispatches court progression commands read as
// newline-delimited JSON envelopes.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/terraskye/progression/internal/config"
)

var Version = "dev"

type rootFlags struct {
	envFile  string
	store    string
	logLevel string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	rootCmd := &cobra.Command{
		Use:           "progression",
		Short:         "Court case progression command dispatcher",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded before the environment")
	rootCmd.PersistentFlags().StringVar(&flags.store, "store", "", "event store backend, overrides PROGRESSION_STORE")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level, overrides PROGRESSION_LOG_LEVEL")

	rootCmd.AddCommand(serveCmd(flags))
	rootCmd.AddCommand(commandsCmd())
	rootCmd.AddCommand(migrateCmd(flags))
	return rootCmd
}

func (f *rootFlags) load() (config.Config, error) {
	if f.store != "" {
		os.Setenv("PROGRESSION_STORE", f.store)
	}
	if f.logLevel != "" {
		os.Setenv("PROGRESSION_LOG_LEVEL", f.logLevel)
	}
	return config.Load(f.envFile)
}

func newLogger(cfg config.LogConfig) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}
