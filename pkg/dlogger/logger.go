// Package dlogger builds the zap loggers of the daemon, by level and output format.
package dlogger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log levels, by increasing order of verbosity
const (
	LogLevelNone  = "none"
	LogLevelError = "error"
	LogLevelWarn  = "warn"
	LogLevelInfo  = "info"
	LogLevelDebug = "debug"
)

// Output formats
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

type options struct {
	name   string
	format string
}

// Option configures a logger
type Option func(*options)

// WithName names the logger. The default name is "datapush"
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithFormat sets the output format: json (default) or console
func WithFormat(format string) Option {
	return func(o *options) {
		if format != "" {
			o.format = format
		}
	}
}

// GetLogger returns a zap logger writing to stderr at the specified level
func GetLogger(logLevel string, opts ...Option) (*zap.Logger, error) {
	if logLevel == LogLevelNone {
		return zap.NewNop(), nil
	}
	o := options{name: "datapush", format: FormatJSON}
	for _, apply := range opts {
		apply(&o)
	}

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, err
	}

	var cfg zap.Config
	switch o.format {
	case FormatJSON:
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
	case FormatConsole:
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("unsupported log format %q", o.format)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	if o.name == "" {
		return logger, nil
	}
	return logger.Named(o.name), nil
}

// MustGetLogger returns a zap logger with the specified level or panics
func MustGetLogger(logLevel string, opts ...Option) *zap.Logger {
	l, err := GetLogger(logLevel, opts...)
	if err != nil {
		panic(err)
	}
	return l
}
