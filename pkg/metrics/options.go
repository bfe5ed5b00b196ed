package metrics

import (
	"time"

	"go.opencensus.io/stats/view"
)

// Option defines some options to the metrics initialization
type Option func(*settings)

// WithBasePath prefixes the name of all registered views
func WithBasePath(location string) Option {
	return func(m *settings) {
		m.basePath = location
	}
}

// WithTags sets tags recorded with every measurement, e.g. the instance emitting them.
// The tag keys are added to all views.
func WithTags(tags map[string]string) Option {
	return func(m *settings) {
		for k, v := range tags {
			if k != "" {
				m.baseTags[k] = v
			}
		}
	}
}

// WithExporter sets the exporter receiving the views.
// Measurements are still aggregated when no exporter is set.
func WithExporter(exporter view.Exporter) Option {
	return func(m *settings) {
		m.exporter = exporter
	}
}

// WithReportingPeriod sets the interval between two exports. Periods under a second are ignored
func WithReportingPeriod(d time.Duration) Option {
	return func(m *settings) {
		if d >= time.Second {
			m.d = d
		}
	}
}
