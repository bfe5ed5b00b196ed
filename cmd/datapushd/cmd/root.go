// Copyright © 2018 One Concern

package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/oneconcern/datapush/pkg/dlogger"
	"github.com/oneconcern/datapush/pkg/metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const envPrefix = "DATAPUSH"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "datapushd",
	Short: "datapushd receives dataset pushes",
	Long: `datapushd receives changes pushed by clients to shared, content-addressed datasets.

A push goes through three steps: init compares the client state with the dataset and opens a session,
uploads are staged with the session, and commit applies the changes if the dataset has not moved in a
conflicting way.

Configuration is read from flags, from DATAPUSH_* environment variables and from a datapushd.yaml
configuration file, in this order of precedence.
`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := bindFlags(cmd.Flags()); err != nil {
			wrapFatalln("failed to bind flags", err)
			return
		}
		var err error
		config, err = newConfig()
		if err != nil {
			wrapFatalln("invalid configuration", err)
			return
		}
		logger, err = dlogger.GetLogger(config.LogLevel, dlogger.WithFormat(config.LogFormat))
		if err != nil {
			wrapFatalln("failed to set log level", err)
			return
		}
		if config.Metrics {
			host, _ := os.Hostname()
			metrics.Init(
				metrics.WithBasePath("datapush"),
				metrics.WithTags(map[string]string{"instance": host}),
				metrics.WithExporter(metrics.LogExporter(logger.Named("metrics"))),
				metrics.WithReportingPeriod(time.Minute),
			)
			datapushFlags.root.metrics.m = metrics.EnsureMetrics("datapushd", &M{}).(*M)
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var (
	config *Config
	logger *zap.Logger
)

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		osExit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	addLogLevelFlag(rootCmd)
	addLogFormatFlag(rootCmd)
	addMetricsFlag(rootCmd)
	addStoragePathFlag(rootCmd)
	addTmpPathFlag(rootCmd)
	addQueuePathFlag(rootCmd)
	addSessionTTLFlag(rootCmd)
	addSingleDBFlag(rootCmd)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfg := os.Getenv(envPrefix + "_CONFIG"); cfg != "" {
		viper.SetConfigFile(cfg)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.datapush")
		viper.AddConfigPath("/etc/datapush")
		viper.SetConfigName("datapushd")
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		infoLogger.Println("Using config file:", viper.ConfigFileUsed())
	}
}
