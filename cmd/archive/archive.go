// Package archive provides the archive command
package archive

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/datamover/internal/app"
	"github.com/tphakala/datamover/internal/conf"
)

// Command creates and returns the archive command
func Command() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Archive aged records to object storage and purge them",
		Long: `Archive selects records older than the configured age, writes each batch
as an NDJSON object to the configured sink, and deletes the archived rows once
the object is stored. With --dry-run the objects are still written but no
source rows are deleted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runner := app.NewRunner(conf.GetSettings(), nil)
			report, runErr := runner.RunArchive(cmd.Context(), app.ArchiveOptions{})
			if err := app.WriteReport(cmd.OutOrStdout(), report, output); err != nil {
				return err
			}
			return runErr
		},
	}

	cmd.Flags().Bool("dry-run", false, "Write archive objects but keep the source rows")
	cmd.Flags().Int("batch-size", conf.DefaultArchiveBatchSize, "Records per archived object")
	cmd.Flags().Int("days-old", conf.DefaultDaysOld, "Archive records older than this many days")
	cmd.Flags().StringVarP(&output, "output", "o", app.FormatJSON, "Report format: json or yaml")

	bind(cmd, "dry-run", "archive.dry_run")
	bind(cmd, "batch-size", "archive.batch_size")
	bind(cmd, "days-old", "archive.days_old")

	return cmd
}

func bind(cmd *cobra.Command, flag, key string) {
	if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
		panic(err)
	}
}
