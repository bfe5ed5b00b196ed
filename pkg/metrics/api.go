package metrics

import (
	"sync"
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/tag"
)

var (
	// global settings for metrics
	mp       *settings
	initOnce sync.Once
)

// Init global settings for metrics collection, such as the exporter.
//
// Init is called by the top-level command. It may be called multiple times: only the first call matters.
// Metrics may be registered before or after Init.
func Init(opts ...Option) {
	initOnce.Do(func() {
		mp = newSettings(opts...)
	})
}

func global() *settings {
	Init()
	return mp
}

// Flush all collected metrics to the exporter
func Flush() {
	global().Flush()
}

// EnsureMetrics registers a struct describing metrics, at some location in the metrics tree.
//
// It may safely be called several times: only the first registration for a given location is retained,
// and it is returned to subsequent callers. Registering a different type at the same location panics.
func EnsureMetrics(location string, m interface{}) interface{} {
	return global().EnsureMetrics(location, m)
}

// Inc increments a counter-like metric
func Inc(counter *stats.Int64Measure, tags ...map[string]string) {
	Int64(counter, 1, tags...)
}

// Int64 records a measurement
func Int64(measure *stats.Int64Measure, value int64, tags ...map[string]string) {
	if measure == nil {
		return
	}
	_ = stats.RecordWithTags(global().ctx, mergeTags(tags), measure.M(value))
}

// Float64 records a measurement
func Float64(measure *stats.Float64Measure, value float64, tags ...map[string]string) {
	if measure == nil {
		return
	}
	_ = stats.RecordWithTags(global().ctx, mergeTags(tags), measure.M(value))
}

// Since records a timing in milliseconds, from some start time
func Since(start time.Time, measure *stats.Float64Measure, tags ...map[string]string) {
	Float64(measure, float64(time.Since(start).Nanoseconds())/1e6, tags...)
}

// mergeTags adds some dynamically defined tags to a single measurement
func mergeTags(extras []map[string]string) []tag.Mutator {
	mutators := make([]tag.Mutator, 0, 4)
	for _, extra := range extras {
		for k, v := range extra {
			mutators = append(mutators, tag.Upsert(tag.MustNewKey(k), v))
		}
	}
	return mutators
}

// Enable equips any type with a toggle for metrics collection.
//
// Sample usage:
//
//	type orchestrator struct{
//	  metrics.Enable
//	  m *pushMetrics
//	}
//
//	func newOrchestrator() *orchestrator {
//	  o := &orchestrator{}
//	  o.m = o.EnsureMetrics("push", &pushMetrics{}).(*pushMetrics)
//	  o.EnableMetrics(true)
//	  return o
//	}
type Enable struct {
	metricsEnabled bool
}

// MetricsEnabled tells whether metrics are enabled or not
func (e Enable) MetricsEnabled() bool {
	return e.metricsEnabled
}

// EnableMetrics toggles metrics collection
func (e *Enable) EnableMetrics(enabled bool) {
	e.metricsEnabled = enabled
}

// EnsureMetrics registers a type describing metrics to the global metrics collection.
//
// NOTE: EnsureMetrics panics if not called with a pointer to a struct.
func (e *Enable) EnsureMetrics(name string, m interface{}) interface{} {
	return EnsureMetrics(name, m)
}
