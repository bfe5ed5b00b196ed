package metrics

import (
	"go.opencensus.io/stats/view"
	"go.uber.org/zap"
)

// LogExporter exports views as structured log entries, at debug level
func LogExporter(l *zap.Logger) view.Exporter {
	if l == nil {
		l = zap.NewNop()
	}
	return &logExporter{l: l.Named("metrics")}
}

type logExporter struct {
	l *zap.Logger
}

func (e *logExporter) ExportView(data *view.Data) {
	if data == nil || data.View == nil {
		return
	}
	for _, row := range data.Rows {
		fields := make([]zap.Field, 0, len(row.Tags)+2)
		fields = append(fields, zap.String("view", data.View.Name))
		for _, t := range row.Tags {
			fields = append(fields, zap.String(t.Key.Name(), t.Value))
		}
		switch agg := row.Data.(type) {
		case *view.CountData:
			fields = append(fields, zap.Int64("count", agg.Value))
		case *view.SumData:
			fields = append(fields, zap.Float64("sum", agg.Value))
		case *view.LastValueData:
			fields = append(fields, zap.Float64("last", agg.Value))
		case *view.DistributionData:
			fields = append(fields, zap.Int64("count", agg.Count), zap.Float64("mean", agg.Mean),
				zap.Float64("min", agg.Min), zap.Float64("max", agg.Max))
		}
		e.l.Debug("metric", fields...)
	}
}
