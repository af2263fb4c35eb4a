package packline

import "github.com/prometheus/client_golang/prometheus"

var DissectCount = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "packline",
	Subsystem: "rows",
	Name:      "dissect",
}, []string{"reason"})

var ColumnReads = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "packline",
	Subsystem: "rows",
	Name:      "column_reads",
}, []string{"result"})

var ReadFailures = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "packline",
	Subsystem: "rows",
	Name:      "read_failures",
})

var DissectDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
	Namespace: "packline",
	Subsystem: "rows",
	Name:      "dissect_duration_seconds",
	Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
})

func dissectReason(dissectColumns, dissectColor bool) string {
	switch {
	case dissectColumns && dissectColor:
		return "columns_color"
	case dissectColor:
		return "color"
	default:
		return "columns"
	}
}
