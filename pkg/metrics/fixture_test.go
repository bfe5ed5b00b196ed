package metrics

import (
	"sync"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
)

type exampleMetrics struct {
	Telemetry struct {
		UsageCounts   []FilesMetrics        `group:"usage" description:""`    // ignored
		FailureCounts []*stats.Int64Measure `group:"failures" description:""` // ignored
		TestCount     *stats.Int64Measure   `metric:"testCount" description:"number of tests"`
	} `group:"telemetry" description:""`
	Volumetry struct {
		Staged FilesMetrics `group:"staged" description:""`
	} `group:"volumetry" description:""`
	Usage UsageMetrics `group:"usage"`
}

func (e *exampleMetrics) IncTest() {
	Inc(e.Telemetry.TestCount, map[string]string{"kind": "test"})
}

type captureExporter struct {
	mx    sync.Mutex
	views map[string]int
}

func newCaptureExporter() *captureExporter {
	return &captureExporter{views: make(map[string]int)}
}

func (c *captureExporter) ExportView(data *view.Data) {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.views[data.View.Name] += len(data.Rows)
}

func (c *captureExporter) rows(name string) int {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.views[name]
}
