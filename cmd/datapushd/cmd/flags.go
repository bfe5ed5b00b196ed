// Copyright © 2018 One Concern

package cmd

import (
	"time"

	"github.com/docker/go-units"
	"github.com/oneconcern/datapush/pkg/dlogger"
	"github.com/oneconcern/datapush/pkg/model"
	"github.com/oneconcern/datapush/pkg/push"
	"github.com/oneconcern/datapush/pkg/queue"
	"github.com/oneconcern/datapush/pkg/web"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type flagsT struct {
	root struct {
		logLevel  string
		logFormat string
		metrics   metricsFlags
	}
	storage struct {
		path      string
		tmpPath   string
		queuePath string
		singleDB  bool
	}
	push struct {
		sessionTTL      time.Duration
		gcInterval      time.Duration
		mergeStrategy   string
		concurrencyMode string
	}
	server struct {
		listen        string
		maxUploadSize string
		authToken     string
	}
	queue struct {
		pollInterval time.Duration
		maxAttempts  int
		retries      int
	}
}

var datapushFlags = flagsT{}

// bindFlags makes the flags of the running command available to the configuration.
//
// Only the flags of the running command are bound, so that commands may declare flags with the same name.
func bindFlags(fs *pflag.FlagSet) error {
	return viper.BindPFlags(fs)
}

func addLogLevelFlag(cmd *cobra.Command) string {
	logLevel := "log-level"
	cmd.PersistentFlags().StringVar(&datapushFlags.root.logLevel, logLevel, dlogger.LogLevelInfo, "The logging level. Levels by increasing order of verbosity: none, error, warn, info, debug")
	return logLevel
}

func addLogFormatFlag(cmd *cobra.Command) string {
	logFormat := "log-format"
	cmd.PersistentFlags().StringVar(&datapushFlags.root.logFormat, logFormat, dlogger.FormatJSON, "The format of logs: json or console")
	return logFormat
}

func addMetricsFlag(cmd *cobra.Command) string {
	enabled := "metrics"
	cmd.PersistentFlags().BoolVar(&datapushFlags.root.metrics.enabled, enabled, false, "Toggles metrics collection, reported to the log")
	return enabled
}

func addStoragePathFlag(cmd *cobra.Command) string {
	storagePath := "storage-path"
	cmd.PersistentFlags().StringVar(&datapushFlags.storage.path, storagePath, "/var/lib/datapush", "The root directory of datasets")
	return storagePath
}

func addTmpPathFlag(cmd *cobra.Command) string {
	tmpPath := "tmp-path"
	cmd.PersistentFlags().StringVar(&datapushFlags.storage.tmpPath, tmpPath, push.DefaultTmpPath(), "The root directory of staging areas")
	return tmpPath
}

func addQueuePathFlag(cmd *cobra.Command) string {
	queuePath := "queue-path"
	cmd.PersistentFlags().StringVar(&datapushFlags.storage.queuePath, queuePath, "", "The directory of the rebuild queue database. Defaults to {storage-path}/.queue")
	return queuePath
}

func addSessionTTLFlag(cmd *cobra.Command) string {
	ttl := "session-ttl"
	cmd.PersistentFlags().DurationVar(&datapushFlags.push.sessionTTL, ttl, push.DefaultSessionTTL, "The age after which abandoned push sessions are reclaimed")
	return ttl
}

func addSingleDBFlag(cmd *cobra.Command) string {
	singleDB := "single-db"
	cmd.PersistentFlags().BoolVar(&datapushFlags.storage.singleDB, singleDB, false, "Forbids the creation of datasets by push")
	return singleDB
}

func addGCIntervalFlag(cmd *cobra.Command) string {
	interval := "gc-interval"
	cmd.Flags().DurationVar(&datapushFlags.push.gcInterval, interval, push.DefaultGCInterval, "The interval between two sweeps of abandoned push sessions")
	return interval
}

func addMergeStrategyFlag(cmd *cobra.Command) string {
	strategy := "merge-strategy"
	cmd.Flags().StringVar(&datapushFlags.push.mergeStrategy, strategy, string(model.KeepTheirs),
		"How paths changed upstream while committing are handled: keep-theirs, keep-ours or dont-merge")
	return strategy
}

func addConcurrencyModeFlag(cmd *cobra.Command) string {
	mode := "concurrency-mode"
	cmd.Flags().StringVar(&datapushFlags.push.concurrencyMode, mode, string(model.ForbidStale),
		"How commits react to a dataset changed since the push started: forbid-stale or rebase")
	return mode
}

func addListenFlag(cmd *cobra.Command) string {
	listen := "listen"
	cmd.Flags().StringVar(&datapushFlags.server.listen, listen, ":8080", "The address to listen on")
	return listen
}

func addMaxUploadSizeFlag(cmd *cobra.Command) string {
	maxUpload := "max-upload-size"
	cmd.Flags().StringVar(&datapushFlags.server.maxUploadSize, maxUpload, units.BytesSize(float64(web.DefaultMaxUploadSize)), "The maximum size of an uploaded file, e.g. 512MiB")
	return maxUpload
}

func addAuthTokenFlag(cmd *cobra.Command) string {
	token := "auth-token"
	cmd.Flags().StringVar(&datapushFlags.server.authToken, token, "", "A static bearer token required to push. Pushes are not authenticated when empty")
	return token
}

func addPollIntervalFlag(cmd *cobra.Command) string {
	poll := "poll-interval"
	cmd.Flags().DurationVar(&datapushFlags.queue.pollInterval, poll, queue.DefaultPollInterval, "The interval between two scans of pending rebuild tasks")
	return poll
}

func addMaxAttemptsFlag(cmd *cobra.Command) string {
	attempts := "max-attempts"
	cmd.Flags().IntVar(&datapushFlags.queue.maxAttempts, attempts, queue.DefaultMaxAttempts, "The number of processing rounds after which a failing rebuild task is given up")
	return attempts
}

func addRetriesFlag(cmd *cobra.Command) string {
	retries := "retries"
	cmd.Flags().IntVar(&datapushFlags.queue.retries, retries, queue.DefaultRetries, "The number of immediate retries of a failing rebuild task")
	return retries
}
