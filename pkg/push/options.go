package push

import (
	"os"
	"path/filepath"
	"time"

	"github.com/oneconcern/datapush/pkg/model"
	"github.com/oneconcern/datapush/pkg/queue"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	// DefaultSessionTTL is the age after which a session is reclaimed
	DefaultSessionTTL = 48 * time.Hour

	// DefaultGCInterval is the interval between two sweeps of the garbage collector
	DefaultGCInterval = 30 * time.Minute
)

// DefaultTmpPath is the default root of staging areas
func DefaultTmpPath() string {
	return filepath.Join(os.TempDir(), "datapush")
}

// Option configures the orchestrator
type Option func(*Orchestrator)

// WithLogger sets a logger. The default is a no-op logger
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.l = l
		}
	}
}

// WithClock sets the clock used to date sessions and to evaluate their age
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithFs sets the file system holding staging areas. It defaults to the OS file system
func WithFs(fs afero.Fs) Option {
	return func(o *Orchestrator) {
		if fs != nil {
			o.fs = fs
		}
	}
}

// WithTmpPath sets the root directory of staging areas
func WithTmpPath(pth string) Option {
	return func(o *Orchestrator) {
		if pth != "" {
			o.tmpPath = pth
		}
	}
}

// WithAllowCreate tells whether pushing to an unknown dataset creates it
func WithAllowCreate(enabled bool) Option {
	return func(o *Orchestrator) {
		o.allowCreate = enabled
	}
}

// WithMergeStrategy sets the strategy applied by the engine to paths changed upstream
func WithMergeStrategy(strategy model.MergeStrategy) Option {
	return func(o *Orchestrator) {
		if strategy != "" {
			o.strategy = strategy
		}
	}
}

// WithConcurrencyMode sets how commits react to a dataset changed since the session started
func WithConcurrencyMode(mode model.ConcurrencyMode) Option {
	return func(o *Orchestrator) {
		if mode != "" {
			o.mode = mode
		}
	}
}

// WithQueue sets the queue receiving rebuild tasks after a successful commit
func WithQueue(q queue.Queue) Option {
	return func(o *Orchestrator) {
		o.queue = q
	}
}

// WithSessionTTL sets the age after which sessions are no longer reachable
func WithSessionTTL(ttl time.Duration) Option {
	return func(o *Orchestrator) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithMetrics toggles metrics collection
func WithMetrics(enabled bool) Option {
	return func(o *Orchestrator) {
		o.EnableMetrics(enabled)
	}
}

// GCOption configures the garbage collector
type GCOption func(*GarbageCollector)

// WithInterval sets the interval between two sweeps
func WithInterval(d time.Duration) GCOption {
	return func(g *GarbageCollector) {
		if d > 0 {
			g.interval = d
		}
	}
}

// WithTTL sets the age after which sessions and orphan staging areas are reclaimed.
// It defaults to the session TTL of the orchestrator.
func WithTTL(ttl time.Duration) GCOption {
	return func(g *GarbageCollector) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}
