// Package metrics exposes Prometheus instruments for the sync engine.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "stravasync"

var (
	syncPasses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "passes_total",
		Help:      "Sync passes by kind (activities, photos) and outcome.",
	}, []string{"kind", "outcome"})
	syncRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "records_total",
		Help:      "Records reconciled during sync passes by kind and outcome.",
	}, []string{"kind", "outcome"})
	lastSync = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successful activity sync pass.",
	})
	tokenRefreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "credential",
		Name:      "refreshes_total",
		Help:      "Strava token refresh attempts by outcome.",
	}, []string{"outcome"})
	remoteRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "strava",
		Name:      "requests_total",
		Help:      "Strava API requests by operation and status class.",
	}, []string{"op", "status"})
	remoteLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "strava",
		Name:      "request_duration_seconds",
		Help:      "Strava API request latency by operation.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})
	photoMirrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "photos",
		Name:      "mirror_total",
		Help:      "Best-effort photo writes to Strava by action and outcome.",
	}, []string{"action", "outcome"})
)

func init() {
	prometheus.MustRegister(syncPasses, syncRecords, lastSync, tokenRefreshes, remoteRequests, remoteLatency, photoMirrors)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordSyncPass counts a finished pass. Successful activity passes also move
// the last-success watermark.
func RecordSyncPass(kind string, err error) {
	syncPasses.WithLabelValues(kind, outcome(err)).Inc()
	if err == nil && kind == "activities" {
		lastSync.Set(float64(time.Now().Unix()))
	}
}

func RecordSyncRecord(kind string, err error) {
	syncRecords.WithLabelValues(kind, outcome(err)).Inc()
}

func RecordTokenRefresh(err error) {
	tokenRefreshes.WithLabelValues(outcome(err)).Inc()
}

// RecordRemoteRequest records one Strava call. status is the HTTP status code,
// or 0 when no response was received.
func RecordRemoteRequest(op string, status int, elapsed time.Duration) {
	class := "error"
	if status > 0 {
		class = strconv.Itoa(status/100) + "xx"
	}
	remoteRequests.WithLabelValues(op, class).Inc()
	remoteLatency.WithLabelValues(op).Observe(elapsed.Seconds())
}

func RecordPhotoMirror(action string, err error) {
	photoMirrors.WithLabelValues(action, outcome(err)).Inc()
}
