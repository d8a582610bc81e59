package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/ethpandaops/trendsync/pkg/engine"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra commands are typically global
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume harvest messages from the table queues",
	Long:  `The worker runs one harvest per queued geography message.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return serveRoles(cmd, func(cfg *engine.Config) engine.Roles {
			return engine.Roles{Worker: true, Scheduler: cfg.Scheduler.Enabled}
		})
	},
}

//nolint:gochecknoglobals // Cobra commands are typically global
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Serve the push endpoint",
	Long:  `The server accepts push envelopes on POST / and routes them to a harvest or a broadcast.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return serveRoles(cmd, func(cfg *engine.Config) engine.Roles {
			return engine.Roles{Server: true, Scheduler: cfg.Scheduler.Enabled}
		})
	},
}

//nolint:gochecknoglobals // Cobra commands are typically global
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the push endpoint, the worker and the scheduler in one process",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return serveRoles(cmd, func(_ *engine.Config) engine.Roles {
			return engine.Roles{Server: true, Worker: true, Scheduler: true}
		})
	},
}

func init() {
	rootCmd.AddCommand(workerCmd, serverCmd, serveCmd)
}

// serveRoles runs the selected components until SIGINT or SIGTERM
func serveRoles(cmd *cobra.Command, roles func(cfg *engine.Config) engine.Roles) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, cfg, err := newEngine(ctx, cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.Serve(ctx, roles(cfg)); err != nil {
		return err
	}

	logger.Info("Shut down gracefully")

	return nil
}
