package cmd

import (
	"context"
	"time"

	"github.com/oneconcern/datapush/pkg/engine/localdb"
	"github.com/oneconcern/datapush/pkg/push"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Removes abandoned staging areas",
	Long: `Removes the staging areas left over under the tmp path, e.g. by a daemon which was stopped
during a push.

Only the staging areas older than the session TTL are removed: this may run safely along a
serving daemon configured with the same TTL.`,
	Example: `% datapushd gc --tmp-path /var/tmp/datapush --session-ttl 24h`,
	Run: func(cmd *cobra.Command, args []string) {
		var err error
		defer func(t0 time.Time) {
			cliUsage(t0, "gc", err)
		}(time.Now())

		fs := afero.NewOsFs()
		pusher, err := push.New(localdb.New(fs, config.StoragePath, localdb.WithLogger(logger.Named("engine"))),
			push.WithLogger(logger.Named("push")),
			push.WithFs(fs),
			push.WithTmpPath(config.TmpPath),
			push.WithSessionTTL(config.SessionTTL),
		)
		if err != nil {
			wrapFatalln("failed to initialize", err)
			return
		}

		report, err := pusher.GarbageCollector().Sweep(context.Background())
		if err != nil {
			wrapFatalln("sweep failed", err)
			return
		}
		logger.Info("staging areas removed", zap.Int("orphans", report.Orphans))
	},
}

func init() {
	rootCmd.AddCommand(gcCmd)
}
