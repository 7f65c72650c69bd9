package cmd

import (
	"github.com/spf13/cobra"

	infralogger "github.com/north-cloud/huv-matcher/infrastructure/logger"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the unmatched re-run scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			app, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := app.Close(); closeErr != nil {
					app.Logger.Error("Failed to close resources", infralogger.Error(closeErr))
				}
				_ = app.Logger.Sync()
			}()

			if app.Config.Scheduler.Enabled {
				sched, schedErr := app.NewScheduler()
				if schedErr != nil {
					return schedErr
				}
				if startErr := sched.Start(ctx); startErr != nil {
					return startErr
				}
				defer sched.Stop()
			}

			return app.NewHTTPServer().RunWithGracefulShutdown(ctx)
		},
	}
}
