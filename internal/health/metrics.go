package health

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters and histograms for the operational metrics named in spec §4.7:
// start/stop latency, protected-stop hits, forced-teardown count, retry
// count, EOS-timeout count, overload triggers.
var (
	startLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "matchcam_recording_start_latency_seconds",
		Help:    "Time from start_recording call to all cameras reaching Active.",
		Buckets: prometheus.DefBuckets,
	})

	stopLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "matchcam_recording_stop_latency_seconds",
		Help:    "Time from stop_recording call to StopReport returned.",
		Buckets: prometheus.DefBuckets,
	})

	protectedStopHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matchcam_protected_stop_hits_total",
		Help: "Total number of stop_recording calls refused by the protection window.",
	})

	forcedTeardownTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matchcam_forced_teardown_total",
		Help: "Total number of pipelines reclaimed via forced teardown after a stuck native Stop.",
	})

	cameraRetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matchcam_camera_start_retry_total",
		Help: "Total number of per-camera start retries, by camera id.",
	}, []string{"camera_id"})

	eosTimeoutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matchcam_eos_timeout_total",
		Help: "Total number of cameras that did not drain within the EOS timeout on stop.",
	})

	overloadTriggerTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matchcam_overload_guard_trigger_total",
		Help: "Total number of forced stops triggered by the CPU overload guard.",
	})

	alertsEmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matchcam_alerts_emitted_total",
		Help: "Total number of alerts emitted, by kind and severity.",
	}, []string{"kind", "severity"})
)

// ObserveStartLatency records the elapsed seconds for a start_recording call.
func ObserveStartLatency(seconds float64) { startLatencySeconds.Observe(seconds) }

// ObserveStopLatency records the elapsed seconds for a stop_recording call.
func ObserveStopLatency(seconds float64) { stopLatencySeconds.Observe(seconds) }

// recordAlertMetrics folds an alert's kind into the matching counter, so
// producers never need a second call site for metrics vs. alerting.
func recordAlertMetrics(a Alert) {
	alertsEmittedTotal.WithLabelValues(a.Kind, a.Severity).Inc()
	switch a.Kind {
	case "recording_protected_stop_rejected":
		protectedStopHitsTotal.Inc()
	case "recording_forced_teardown":
		forcedTeardownTotal.Inc()
	case "recording_camera_retry":
		camID := "unknown"
		if a.CameraID != nil {
			camID = strconv.Itoa(*a.CameraID)
		}
		cameraRetryTotal.WithLabelValues(camID).Inc()
	case "recording_stop_non_graceful":
		eosTimeoutTotal.Inc()
	case "recording_overload_guard_triggered":
		overloadTriggerTotal.Inc()
	}
}
