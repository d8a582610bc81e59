package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra flags are typically global
var broadcastTable string

//nolint:gochecknoglobals // Cobra commands are typically global
var broadcastCmd = &cobra.Command{
	Use:   "broadcast",
	Short: "Enqueue one harvest message per configured geography of a table",
	RunE:  runBroadcast,
}

func init() {
	rootCmd.AddCommand(broadcastCmd)

	broadcastCmd.Flags().StringVar(&broadcastTable, "table", "", "table to broadcast (default is the first configured table)")
}

func runBroadcast(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, cfg, err := newEngine(ctx, cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	table := broadcastTable
	if table == "" {
		table = svc.DefaultTable()
	}

	summary, err := svc.Broadcast(ctx, table)
	if err != nil {
		return err
	}

	return printJSON(cfg.Server.AppName, summary)
}
