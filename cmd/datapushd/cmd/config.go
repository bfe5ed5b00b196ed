package cmd

import (
	"os"
	"path/filepath"
	"time"

	"github.com/docker/go-units"
	"github.com/oneconcern/datapush/pkg/errors"
	"github.com/oneconcern/datapush/pkg/model"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

// ErrInvalidConfig indicates a configuration which cannot be used
var ErrInvalidConfig = errors.New("invalid configuration")

// Config describes the daemon configuration.
//
// Keys are the names of the flags, in the configuration file as well as in DATAPUSH_* environment variables
// (e.g. DATAPUSH_STORAGE_PATH).
type Config struct {
	LogLevel  string `mapstructure:"log-level" yaml:"log-level"`
	LogFormat string `mapstructure:"log-format" yaml:"log-format"`
	Metrics   bool   `mapstructure:"metrics" yaml:"metrics"`

	StoragePath string `mapstructure:"storage-path" yaml:"storage-path"`
	TmpPath     string `mapstructure:"tmp-path" yaml:"tmp-path"`
	QueuePath   string `mapstructure:"queue-path" yaml:"queue-path,omitempty"`
	SingleDB    bool   `mapstructure:"single-db" yaml:"single-db"`

	SessionTTL      time.Duration `mapstructure:"session-ttl" yaml:"session-ttl"`
	GCInterval      time.Duration `mapstructure:"gc-interval" yaml:"gc-interval,omitempty"`
	MergeStrategy   string        `mapstructure:"merge-strategy" yaml:"merge-strategy,omitempty"`
	ConcurrencyMode string        `mapstructure:"concurrency-mode" yaml:"concurrency-mode,omitempty"`

	Listen        string `mapstructure:"listen" yaml:"listen,omitempty"`
	MaxUploadSize string `mapstructure:"max-upload-size" yaml:"max-upload-size,omitempty"`
	AuthToken     string `mapstructure:"auth-token" yaml:"auth-token,omitempty"`

	PollInterval time.Duration `mapstructure:"poll-interval" yaml:"poll-interval,omitempty"`
	MaxAttempts  int           `mapstructure:"max-attempts" yaml:"max-attempts,omitempty"`
	Retries      int           `mapstructure:"retries" yaml:"retries,omitempty"`
}

func newConfig() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, ErrInvalidConfig.Wrap(err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.StoragePath == "" {
		return ErrInvalidConfig.WrapMessage("storage-path is required")
	}
	if c.SessionTTL < 0 || c.GCInterval < 0 || c.PollInterval < 0 {
		return ErrInvalidConfig.WrapMessage("durations must be positive")
	}
	if c.MergeStrategy != "" && !model.MergeStrategy(c.MergeStrategy).IsValid() {
		return ErrInvalidConfig.WrapMessage("unsupported merge strategy %q", c.MergeStrategy)
	}
	if c.ConcurrencyMode != "" && !model.ConcurrencyMode(c.ConcurrencyMode).IsValid() {
		return ErrInvalidConfig.WrapMessage("unsupported concurrency mode %q", c.ConcurrencyMode)
	}
	if _, err := c.maxUploadBytes(); err != nil {
		return err
	}
	return nil
}

// maxUploadBytes parses the human readable upload limit. Zero means the default limit.
func (c *Config) maxUploadBytes() (int64, error) {
	if c.MaxUploadSize == "" {
		return 0, nil
	}
	size, err := units.RAMInBytes(c.MaxUploadSize)
	if err != nil {
		return 0, ErrInvalidConfig.WrapMessage("max-upload-size").Wrap(err)
	}
	return size, nil
}

// queuePath defaults to a directory under the storage root, which no dataset may use
func (c *Config) queuePath() string {
	if c.QueuePath != "" {
		return c.QueuePath
	}
	return filepath.Join(c.StoragePath, ".queue")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Prints the effective configuration",
	Long: `Prints the configuration resulting from flags, environment and configuration file, as YAML.

The output may be used as a datapushd.yaml configuration file.`,
	Run: func(cmd *cobra.Command, args []string) {
		shown := *config
		if shown.AuthToken != "" {
			shown.AuthToken = "********"
		}
		out, err := yaml.Marshal(shown)
		if err != nil {
			wrapFatalln("failed to render configuration", err)
			return
		}
		_, _ = os.Stdout.Write(out)
	},
}

func init() {
	addServeFlags(configCmd)
	rootCmd.AddCommand(configCmd)
}
