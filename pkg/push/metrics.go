package push

import (
	"github.com/oneconcern/datapush/pkg/metrics"
	"github.com/oneconcern/datapush/pkg/push/status"
	"go.opencensus.io/stats"
)

// M describes the metrics collected about push sessions
type M struct {
	Usage  metrics.UsageMetrics `group:"usage"`
	Staged metrics.FilesMetrics `group:"staged"`

	Sessions struct {
		Initialized *stats.Int64Measure `metric:"initialized" description:"number of push session initializations by outcome" tags:"outcome"`
		Reclaimed   *stats.Int64Measure `metric:"reclaimed" description:"number of staging areas reclaimed by the garbage collector" tags:"reason"`
	} `group:"sessions"`

	Commits struct {
		Outcome *stats.Int64Measure `metric:"outcome" description:"number of commits by outcome" tags:"outcome"`
	} `group:"commits"`
}

func (o *Orchestrator) initialized(outcome string) {
	if !o.MetricsEnabled() {
		return
	}
	metrics.Inc(o.m.Sessions.Initialized, map[string]string{"outcome": outcome})
}

func (o *Orchestrator) staged(size int64) {
	if !o.MetricsEnabled() {
		return
	}
	o.m.Staged.Inc("upload")
	o.m.Staged.Size(size, "upload")
}

func (o *Orchestrator) committed(err error) {
	if !o.MetricsEnabled() {
		return
	}
	outcome := "committed"
	if err != nil {
		outcome = string(status.KindOf(err))
	}
	metrics.Inc(o.m.Commits.Outcome, map[string]string{"outcome": outcome})
}

func (o *Orchestrator) reclaimed(reason string) {
	if !o.MetricsEnabled() {
		return
	}
	metrics.Inc(o.m.Sessions.Reclaimed, map[string]string{"reason": reason})
}
