package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/docker/go-units"
	"github.com/fatih/color"
	"github.com/gosuri/uitable"
	"github.com/oneconcern/datapush/pkg/engine/localdb"
	"github.com/oneconcern/datapush/pkg/model"
	"github.com/oneconcern/datapush/pkg/queue"
	"github.com/oneconcern/datapush/pkg/queue/bdgr"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Commands to inspect the rebuild queue",
	Long: `Commands to inspect and process the queue of dataset rebuilds submitted after commits.

The queue database is locked by a serving daemon: these commands are meant to run while the daemon is stopped.`,
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists pending and given up rebuild tasks",
	Run: func(cmd *cobra.Command, args []string) {
		var err error
		defer func(t0 time.Time) {
			cliUsage(t0, "queue list", err)
		}(time.Now())

		ctx := context.Background()
		backend, err := bdgr.Open(config.queuePath(), bdgr.WithLogger(logger.Named("queue")))
		if err != nil {
			wrapFatalln("failed to open queue", err)
			return
		}
		defer func() { _ = backend.Close() }()

		pending, err := backend.Pending(ctx)
		if err != nil {
			wrapFatalln("failed to list pending tasks", err)
			return
		}
		dead, err := backend.DeadLetters(ctx)
		if err != nil {
			wrapFatalln("failed to list dead letters", err)
			return
		}
		err = printTasks(os.Stdout, pending, dead, time.Now())
		if err != nil {
			wrapFatalln("failed to print tasks", err)
		}
	},
}

var queueSubmitCmd = &cobra.Command{
	Use:     "submit {org}/{dataset}",
	Short:   "Submits the rebuild of a dataset",
	Example: `% datapushd queue submit acme/images`,
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var err error
		defer func(t0 time.Time) {
			cliUsage(t0, "queue submit", err)
		}(time.Now())

		ref, err := model.ParseDatasetRef(args[0])
		if err != nil {
			wrapFatalln("invalid dataset", err)
			return
		}
		backend, err := bdgr.Open(config.queuePath(), bdgr.WithLogger(logger.Named("queue")))
		if err != nil {
			wrapFatalln("failed to open queue", err)
			return
		}
		defer func() { _ = backend.Close() }()

		task, err := backend.Submit(context.Background(), queue.NewRebuildTask(ref))
		if err != nil {
			wrapFatalln("failed to submit task", err)
			return
		}
		fmt.Println(task.ID)
	},
}

var queueDrainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Processes the pending rebuild tasks once",
	Run: func(cmd *cobra.Command, args []string) {
		var err error
		defer func(t0 time.Time) {
			cliUsage(t0, "queue drain", err)
		}(time.Now())

		done, err := drainQueue(context.Background(), config, logger)
		if err != nil {
			wrapFatalln("failed to process tasks", err)
			return
		}
		logger.Info("tasks processed", zap.Int("done", done))
	},
}

// drainQueue processes the pending rebuild tasks with the settings of a serving daemon
func drainQueue(ctx context.Context, cfg *Config, l *zap.Logger) (int, error) {
	backend, err := bdgr.Open(cfg.queuePath(), bdgr.WithLogger(l.Named("queue")))
	if err != nil {
		return 0, err
	}
	defer func() { _ = backend.Close() }()

	d := &daemon{
		cfg:    cfg,
		l:      l,
		engine: localdb.New(afero.NewOsFs(), cfg.StoragePath, localdb.WithLogger(l.Named("engine"))),
	}
	opts := []queue.WorkerOption{
		queue.WithLogger(l.Named("worker")),
		queue.WithMaxAttempts(cfg.MaxAttempts),
	}
	if cfg.Retries >= 0 {
		opts = append(opts, queue.WithRetries(uint64(cfg.Retries)))
	}
	return queue.NewWorker(backend, d.handle, opts...).Drain(ctx)
}

func printTasks(w io.Writer, pending, dead []queue.Task, now time.Time) error {
	table := uitable.New()
	table.MaxColWidth = 80
	table.AddRow("ID", "KIND", "DATASET", "STATUS", "SUBMITTED", "ATTEMPTS", "LAST ERROR")
	for _, task := range pending {
		table.AddRow(task.ID, task.Kind, task.Dataset, "pending",
			units.HumanDuration(now.Sub(task.SubmittedAt))+" ago", task.Attempts, color.HiBlackString(task.LastError))
	}
	for _, task := range dead {
		table.AddRow(task.ID, task.Kind, task.Dataset, color.RedString("given up"),
			units.HumanDuration(now.Sub(task.SubmittedAt))+" ago", task.Attempts, color.HiBlackString(task.LastError))
	}
	_, err := fmt.Fprintln(w, table)
	return err
}

func init() {
	addMaxAttemptsFlag(queueDrainCmd)
	addRetriesFlag(queueDrainCmd)

	queueCmd.AddCommand(queueListCmd, queueSubmitCmd, queueDrainCmd)
	rootCmd.AddCommand(queueCmd)
}
