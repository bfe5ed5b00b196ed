package metrics

import (
	"time"

	"go.opencensus.io/stats"
)

// FilesMetrics is a common set of metrics reporting about file activity
type FilesMetrics struct {
	FileCount *stats.Int64Measure `metric:"fileCount" description:"number of files" extraviews:"sum" tags:"kind,operation"`
	FileSize  *stats.Int64Measure `metric:"fileSize" unit:"bytes" description:"size of files" extraviews:"sum" tags:"kind,operation"`
}

func (f *FilesMetrics) tags(operation string) map[string]string {
	return map[string]string{"kind": "files", "operation": operation}
}

// Inc increments the counter for files
func (f *FilesMetrics) Inc(operation string) {
	Inc(f.FileCount, f.tags(operation))
}

// Size measures the size of a file. Zero sizes are not recorded.
func (f *FilesMetrics) Size(size int64, operation string) {
	if size == 0 {
		return
	}
	Int64(f.FileSize, size, f.tags(operation))
}

// UsageMetrics is a common set of metrics reporting about usage
type UsageMetrics struct {
	Count    *stats.Int64Measure   `metric:"usageCount" description:"number of calls" tags:"kind,method"`
	Failures *stats.Int64Measure   `metric:"usageFailures" description:"number of failed calls" tags:"kind,method"`
	Timing   *stats.Float64Measure `metric:"timing" unit:"milliseconds" description:"duration of a call" tags:"kind,method"`
}

func (u *UsageMetrics) tags(method string) map[string]string {
	return map[string]string{"kind": "usage", "method": method}
}

// Inc records the usage of some method, without timings or failure reporting
func (u *UsageMetrics) Inc(method string) {
	Inc(u.Count, u.tags(method))
}

// UsedAll records usage of some instrumented entry point with failures, in one go.
//
// Example:
//
//	func (o *Orchestrator) Commit(ctx context.Context, token string) (err error) {
//	  defer func(start time.Time) {
//	    o.m.Usage.UsedAll(start, "Commit")(err)
//	  }(time.Now())
//	  ...
//	}
func (u *UsageMetrics) UsedAll(start time.Time, method string) func(error) {
	return func(err error) {
		Since(start, u.Timing, u.tags(method))
		Inc(u.Count, u.tags(method))
		if err != nil {
			Inc(u.Failures, u.tags(method))
		}
	}
}
