package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the sync pipeline's prometheus collectors.
type Registry struct {
	reg *prometheus.Registry

	Runs            prometheus.Counter
	RecordsFetched  prometheus.Counter
	RecordsInserted prometheus.Counter
	RecordsUpdated  prometheus.Counter
	RecordsErrored  prometheus.Counter
	RecordsFiltered prometheus.Counter
	RunDurationSec  prometheus.Histogram
}

// NewRegistry creates and registers all sync collectors.
func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	runs := prometheus.NewCounter(prometheus.CounterOpts{Name: "sync_runs_total"})
	fetched := prometheus.NewCounter(prometheus.CounterOpts{Name: "sync_records_fetched_total"})
	inserted := prometheus.NewCounter(prometheus.CounterOpts{Name: "sync_records_inserted_total"})
	updated := prometheus.NewCounter(prometheus.CounterOpts{Name: "sync_records_updated_total"})
	errored := prometheus.NewCounter(prometheus.CounterOpts{Name: "sync_records_errored_total"})
	filtered := prometheus.NewCounter(prometheus.CounterOpts{Name: "sync_records_filtered_total"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sync_run_duration_seconds",
		Buckets: prometheus.DefBuckets,
	})

	r.MustRegister(runs, fetched, inserted, updated, errored, filtered, duration)
	return &Registry{
		reg:             r,
		Runs:            runs,
		RecordsFetched:  fetched,
		RecordsInserted: inserted,
		RecordsUpdated:  updated,
		RecordsErrored:  errored,
		RecordsFiltered: filtered,
		RunDurationSec:  duration,
	}
}

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
