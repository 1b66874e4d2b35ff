package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CatalogPrograms tracks the number of programs currently held.
	CatalogPrograms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "radigw_catalog_programs",
		Help: "Number of programs currently in the catalog",
	})

	// CatalogStations tracks the number of admitted stations.
	CatalogStations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "radigw_catalog_stations",
		Help: "Number of stations currently in the catalog",
	})

	// CatalogRefreshTotal tracks refresh run outcomes.
	CatalogRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "radigw_catalog_refresh_total",
		Help: "Total number of catalog refresh runs by result",
	}, []string{"result"})

	// CatalogRefreshDuration tracks refresh run latency.
	CatalogRefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "radigw_catalog_refresh_duration_seconds",
		Help:    "Duration of catalog refresh runs",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	// CatalogOverlapResolved tracks overlapping inserts resolved in favour
	// of the later program.
	CatalogOverlapResolved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "radigw_catalog_overlap_resolved_total",
		Help: "Total number of overlapping program inserts resolved (later wins)",
	})
)

// SetCatalogSize records the current program and station counts.
func SetCatalogSize(programs, stations int) {
	CatalogPrograms.Set(float64(programs))
	CatalogStations.Set(float64(stations))
}

// IncCatalogOverlap records one overlap resolution.
func IncCatalogOverlap() {
	CatalogOverlapResolved.Inc()
}
