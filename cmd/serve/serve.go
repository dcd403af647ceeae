// Package serve provides the serve command
package serve

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/datamover/internal/api"
	"github.com/tphakala/datamover/internal/archive"
	"github.com/tphakala/datamover/internal/app"
	"github.com/tphakala/datamover/internal/conf"
	"github.com/tphakala/datamover/internal/etl"
	"github.com/tphakala/datamover/internal/logger"
	"github.com/tphakala/datamover/internal/observability"
)

// Command creates and returns the serve command
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose the pipelines over HTTP",
		Long: `Serve starts the HTTP trigger endpoints, health and metrics. When
archive.schedule.enabled is set the archive pipeline also runs on its interval.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), conf.GetSettings())
		},
	}

	cmd.Flags().String("listen", ":8080", "Address to listen on")
	if err := viper.BindPFlag("server.listen", cmd.Flags().Lookup("listen")); err != nil {
		panic(err)
	}

	return cmd
}

func run(ctx context.Context, settings *conf.Settings) error {
	log := logger.Global().Module("serve")

	metrics, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	runner := app.NewRunner(settings, metrics)

	var scheduler *app.Scheduler
	if settings.Archive.Schedule.Enabled {
		scheduler, err = app.NewScheduler(archive.PipelineName, settings.Archive.Schedule.Interval,
			func(ctx context.Context) (etl.Report, error) {
				return runner.RunArchive(ctx, app.ArchiveOptions{})
			})
		if err != nil {
			return err
		}
	}

	srv, err := api.New(api.ConfigFromSettings(settings), runner, api.WithMetrics(metrics))
	if err != nil {
		return err
	}
	runner.Reporter().Subscribe(srv.RecordReport)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	if scheduler != nil {
		g.Go(func() error {
			return scheduler.Run(gctx)
		})
	}

	err = g.Wait()
	log.Info("server stopped")
	return err
}
