// Package migrate provides the migrate-products command
package migrate

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/datamover/internal/app"
	"github.com/tphakala/datamover/internal/conf"
)

// Command creates and returns the migrate-products command
func Command() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:     "migrate-products",
		Aliases: []string{"migrate"},
		Short:   "Copy product documents into the relational store",
		Long: `Migrate pages through the document source, maps each document to a product
and its tags, and inserts them batch by batch. Existing products are skipped.
A throttled source ends the run after one back-off.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runner := app.NewRunner(conf.GetSettings(), nil)
			report, runErr := runner.RunMigrate(cmd.Context())
			if err := app.WriteReport(cmd.OutOrStdout(), report, output); err != nil {
				return err
			}
			return runErr
		},
	}

	cmd.Flags().Int("batch-size", conf.DefaultMigrateBatchSize, "Documents per page and per transaction")
	cmd.Flags().Float64("rps", 0, "Maximum source requests per second, 0 for unlimited")
	cmd.Flags().StringVarP(&output, "output", "o", app.FormatJSON, "Report format: json or yaml")

	if err := viper.BindPFlag("migrate.batch_size", cmd.Flags().Lookup("batch-size")); err != nil {
		panic(err)
	}
	if err := viper.BindPFlag("migrate.requests_per_second", cmd.Flags().Lookup("rps")); err != nil {
		panic(err)
	}

	return cmd
}
