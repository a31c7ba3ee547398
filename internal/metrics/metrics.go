// Package metrics holds the Prometheus collectors shared by the control plane
// and the embedded data service.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "openbio",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"server", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "openbio",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"server", "method", "path", "status"},
	)
	licenseValidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "openbio",
			Subsystem: "license",
			Name:      "validations_total",
			Help:      "License validations by method and outcome.",
		},
		[]string{"method", "outcome"},
	)
	discoveryScans = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "openbio",
			Subsystem: "discovery",
			Name:      "scans_total",
			Help:      "Network scans by outcome.",
		},
		[]string{"outcome"},
	)
	discoveryPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "openbio",
			Subsystem: "discovery",
			Name:      "last_scan_peers",
			Help:      "Number of peers found by the most recent scan.",
		},
	)
	serviceStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "openbio",
			Subsystem: "service",
			Name:      "starts_total",
			Help:      "Data service start attempts by outcome.",
		},
		[]string{"outcome"},
	)
	activeMode = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "openbio",
			Subsystem: "deployment",
			Name:      "mode",
			Help:      "Currently active deployment mode (1 for the active mode).",
		},
		[]string{"mode"},
	)
)

// RegisterMetrics registers the collectors with the default registry.
// Safe to call more than once; the Record functions call it themselves.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			licenseValidations,
			discoveryScans,
			discoveryPeers,
			serviceStarts,
			activeMode,
		)
	})
}

// RecordHTTPRequest counts a request and observes its latency. path is the
// route template, not the raw URL.
func RecordHTTPRequest(server, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(server, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(server, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordLicenseValidation counts a validation; outcome is "ok" or a failure kind
func RecordLicenseValidation(method, outcome string) {
	RegisterMetrics()
	licenseValidations.WithLabelValues(method, outcome).Inc()
}

// RecordScan counts a scan and, when it succeeded, sets the last peer count
func RecordScan(peers int, err error) {
	RegisterMetrics()
	if err != nil {
		discoveryScans.WithLabelValues("error").Inc()
		return
	}
	discoveryScans.WithLabelValues("ok").Inc()
	discoveryPeers.Set(float64(peers))
}

// RecordServiceStart counts a data service start attempt by result
func RecordServiceStart(err error) {
	RegisterMetrics()
	if err != nil {
		serviceStarts.WithLabelValues("error").Inc()
		return
	}
	serviceStarts.WithLabelValues("ok").Inc()
}

// SetActiveMode marks mode as the only active deployment mode
func SetActiveMode(mode string, all []string) {
	RegisterMetrics()
	for _, m := range all {
		if m == mode {
			activeMode.WithLabelValues(m).Set(1)
		} else {
			activeMode.WithLabelValues(m).Set(0)
		}
	}
}
