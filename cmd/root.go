// Package cmd assembles the datamover command line.
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/datamover/cmd/archive"
	"github.com/tphakala/datamover/cmd/migrate"
	"github.com/tphakala/datamover/cmd/serve"
	"github.com/tphakala/datamover/cmd/version"
	"github.com/tphakala/datamover/internal/buildinfo"
	"github.com/tphakala/datamover/internal/conf"
	"github.com/tphakala/datamover/internal/errors"
	"github.com/tphakala/datamover/internal/logger"
)

const telemetryFlushTimeout = 2 * time.Second

// RootCommand creates and returns the root command
func RootCommand(build *buildinfo.Context) *cobra.Command {
	var (
		configFile string
		central    *logger.CentralLogger
	)

	rootCmd := &cobra.Command{
		Use:           "datamover",
		Short:         "Batch archive and migration jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	if err := setupFlags(rootCmd, &configFile); err != nil {
		// flag names are static; a failure here is a programming error
		panic(err)
	}

	versionCmd := version.Command(build)
	rootCmd.AddCommand(
		archive.Command(),
		migrate.Command(),
		serve.Command(),
		versionCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		if configFile != "" {
			viper.SetConfigFile(configFile)
		}

		settings, err := conf.Load()
		if err != nil {
			return err
		}
		if settings.Debug {
			settings.Logging.DefaultLevel = "debug"
			if settings.Logging.Console != nil {
				settings.Logging.Console.Level = "debug"
			}
		}

		central, err = logger.NewCentralLogger(&settings.Logging)
		if err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		logger.SetGlobal(central)

		if err := errors.InitSentry(settings.Telemetry.SentryDSN, settings.Telemetry.Environment, build.Release()); err != nil {
			central.Module("main").Warn("telemetry disabled", logger.Error(err))
		}
		return nil
	}

	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		errors.FlushTelemetry(telemetryFlushTimeout)
		if central != nil {
			_ = central.Close()
		}
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, configFile *string) error {
	rootCmd.PersistentFlags().StringVarP(configFile, "config", "c", "", "Path to the configuration file")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")

	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
