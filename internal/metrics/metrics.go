// Package metrics provides Prometheus metrics for the davmount client.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PROPFIND request metrics
	propfindRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "davmount_propfind_requests_total",
			Help: "Total number of PROPFIND requests",
		},
		[]string{"depth", "status"},
	)

	propfindDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "davmount_propfind_duration_seconds",
			Help:    "PROPFIND round trip duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"depth"},
	)

	multistatusParseErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "davmount_multistatus_parse_errors_total",
			Help: "Total multistatus documents rejected by the parser",
		},
	)

	// Filesystem operation metrics
	fsOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "davmount_fs_ops_total",
			Help: "Total filesystem operations by result",
		},
		[]string{"op", "result"},
	)

	inodesLive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "davmount_inodes_live",
			Help: "Number of inodes known to the inode directory",
		},
	)

	dirPopulationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "davmount_dir_populations_total",
			Help: "Total directory population fetches (coalesced)",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr. Blocks; intended to run in a goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return http.ListenAndServe(addr, mux)
}

// RecordPropfind records a PROPFIND request metric.
func RecordPropfind(depth string, status int, duration time.Duration) {
	propfindRequestsTotal.WithLabelValues(depth, strconv.Itoa(status)).Inc()
	propfindDuration.WithLabelValues(depth).Observe(duration.Seconds())
}

// RecordParseError records a rejected multistatus document.
func RecordParseError() {
	multistatusParseErrors.Inc()
}

// RecordOp records a filesystem operation outcome.
func RecordOp(op string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	fsOpsTotal.WithLabelValues(op, result).Inc()
}

// SetInodesLive sets the current inode count.
func SetInodesLive(n int) {
	inodesLive.Set(float64(n))
}

// RecordDirPopulation records a directory population fetch.
func RecordDirPopulation() {
	dirPopulationsTotal.Inc()
}
