// Package metrics collects opencensus measurements, declared as tagged struct fields.
package metrics

import (
	"context"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	units "github.com/docker/go-units"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

const (
	unitCount    = "count"
	unitSumBytes = "sumbytes"
)

type settings struct {
	basePath string
	baseTags map[string]string
	baseKeys []tag.Key
	ctx      context.Context
	exporter view.Exporter

	allMetrics []stats.Measure
	allViews   []*view.View

	// registered modules, by location
	modules   map[string]interface{}
	exclusive sync.Mutex

	d time.Duration
}

func newSettings(opts ...Option) *settings {
	s := &settings{
		modules:  make(map[string]interface{}),
		baseTags: make(map[string]string),
		ctx:      context.Background(),
	}
	for _, apply := range opts {
		apply(s)
	}

	if len(s.baseTags) > 0 {
		names := make([]string, 0, len(s.baseTags))
		for k := range s.baseTags {
			names = append(names, k)
		}
		sort.Strings(names)

		mutators := make([]tag.Mutator, 0, len(names))
		for _, k := range names {
			key := tag.MustNewKey(k)
			s.baseKeys = append(s.baseKeys, key)
			mutators = append(mutators, tag.Upsert(key, s.baseTags[k]))
		}
		if ctx, err := tag.New(s.ctx, mutators...); err == nil {
			s.ctx = ctx
		}
	}

	if s.exporter != nil {
		view.RegisterExporter(s.exporter)
		if s.d >= time.Second {
			view.SetReportingPeriod(s.d)
		}
	}
	return s
}

func (s *settings) EnsureMetrics(location string, m interface{}) interface{} {
	s.exclusive.Lock()
	defer s.exclusive.Unlock()
	location = path.Join(s.basePath, location)

	if existing, ok := s.modules[location]; ok {
		if !equalType(existing, m) {
			panic("trying to re-register existing metrics module with a different type")
		}
		return existing
	}
	scanStruct(location, s.addMetric, m)
	s.modules[location] = m
	return m
}

// Flush exports the current data of all registered views
func (s *settings) Flush() {
	if s.exporter == nil {
		return
	}
	now := time.Now()
	for _, v := range s.allViews {
		rows, err := view.RetrieveData(v.Name)
		if err != nil {
			continue
		}
		s.exporter.ExportView(&view.Data{View: v, Start: now, End: now, Rows: rows})
	}
}

// addMetric creates a measure and its views, according to the decoded struct tags.
//
// Every measure gets a default view according to its unit:
//   - counters (unit "count" or none) get a count view
//   - bytes get a size distribution view
//   - milliseconds get a duration distribution view
//   - sumbytes get a cumulated sum view
//
// Extra views are declared with tags such as extraviews:"sum,lastvalue".
func (s *settings) addMetric(m interface{}, metric, group string, tags map[string]string) interface{} {
	name := path.Join(group, metric)
	description := tags["description"]
	if description == "" {
		description = name + " " + tags["unit"]
	}
	unit, dist := unitAndDist(tags["unit"])

	var measure stats.Measure
	switch m.(type) {
	case *stats.Int64Measure:
		measure = stats.Int64(name, description, unit)
	case *stats.Float64Measure:
		measure = stats.Float64(name, description, unit)
	default:
		return nil
	}
	s.allMetrics = append(s.allMetrics, measure)

	keys := append([]tag.Key{}, s.baseKeys...)
	for _, g := range strings.Split(tags["groupings"], ",") {
		if g != "" {
			keys = append(keys, tag.MustNewKey(g))
		}
	}

	s.register(&view.View{
		Name:        name,
		Description: describeView(description, dist),
		Measure:     measure,
		Aggregation: dist,
		TagKeys:     keys,
	})

	for _, extra := range strings.Split(tags["views"], ",") {
		var agg *view.Aggregation
		switch extra {
		case unitCount:
			agg = view.Count()
		case "sum":
			agg = view.Sum()
		case "lastvalue":
			agg = view.LastValue()
		default:
			continue
		}
		s.register(&view.View{
			Name:        describeView(name, agg),
			Description: describeView(description, agg),
			Measure:     measure,
			Aggregation: agg,
			TagKeys:     keys,
		})
	}
	return measure
}

func (s *settings) register(v *view.View) {
	s.allViews = append(s.allViews, v)
	_ = view.Register(v)
}

func unitAndDist(unit string) (string, *view.Aggregation) {
	switch unit {
	case "milliseconds":
		// buckets in milliseconds
		return stats.UnitMilliseconds, view.Distribution(
			10, 50, 100, 300, 500, 1000, 2000, 5000, 10000, 30000, 60000, 300000,
		)
	case "bytes":
		return stats.UnitBytes, view.Distribution(
			500, units.KiB, 10*units.KiB, 100*units.KiB, units.MiB, 10*units.MiB, 100*units.MiB, units.GiB, 10*units.GiB,
		)
	case unitSumBytes:
		return stats.UnitBytes, view.Sum()
	default:
		return stats.UnitDimensionless, view.Count()
	}
}

func describeView(desc string, in *view.Aggregation) string {
	switch in.Type {
	case view.AggTypeCount:
		return desc + " [count]"
	case view.AggTypeSum:
		return desc + " [cumulated]"
	case view.AggTypeDistribution:
		return desc + " [distribution]"
	case view.AggTypeLastValue:
		return desc + " [last]"
	default:
		return desc
	}
}
