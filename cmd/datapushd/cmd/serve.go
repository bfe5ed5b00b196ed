package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves push requests",
	Long: `Serves push requests over HTTP.

The rebuild of datasets after a commit runs in the background, as well as the garbage collection
of abandoned push sessions. Both stop with the server on SIGINT or SIGTERM.`,
	Run: func(cmd *cobra.Command, args []string) {
		var err error
		defer func(t0 time.Time) {
			cliUsage(t0, "serve", err)
		}(time.Now())

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		d, err := newDaemon(config, logger)
		if err != nil {
			wrapFatalln("failed to start", err)
			return
		}
		defer func() { _ = d.Close() }()

		if err = d.run(ctx); err != nil {
			wrapFatalln("server failed", err)
			return
		}
	},
}

// addServeFlags declares the flags of the daemon which are not shared by all commands
func addServeFlags(cmd *cobra.Command) {
	addGCIntervalFlag(cmd)
	addMergeStrategyFlag(cmd)
	addConcurrencyModeFlag(cmd)
	addListenFlag(cmd)
	addMaxUploadSizeFlag(cmd)
	addAuthTokenFlag(cmd)
	addPollIntervalFlag(cmd)
	addMaxAttemptsFlag(cmd)
	addRetriesFlag(cmd)
}

func init() {
	addServeFlags(serveCmd)
	rootCmd.AddCommand(serveCmd)
}
