// Package metrics holds the Prometheus collectors for the recording studio.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the studio.
type Metrics struct {
	// Take lifecycle
	TakesCreated   prometheus.Counter
	TakesSaved     prometheus.Counter
	TakesDiscarded prometheus.Counter

	// Silence trimming
	TrimFallbacks  prometheus.Counter
	SamplesRemoved prometheus.Counter
	TrimRatio      prometheus.Histogram

	// Mirror
	PublishFailures prometheus.Counter

	// HTTP API
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		TakesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "studio_takes_created_total",
			Help: "Total number of takes uploaded or recorded",
		}),
		TakesSaved: factory.NewCounter(prometheus.CounterOpts{
			Name: "studio_takes_saved_total",
			Help: "Total number of takes trimmed and written to a dataset",
		}),
		TakesDiscarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "studio_takes_discarded_total",
			Help: "Total number of takes thrown away",
		}),

		TrimFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "studio_trim_fallbacks_total",
			Help: "Total number of takes saved untrimmed because no voiced region was found",
		}),
		SamplesRemoved: factory.NewCounter(prometheus.CounterOpts{
			Name: "studio_trim_samples_removed_total",
			Help: "Total number of silent samples cut from saved takes",
		}),
		TrimRatio: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "studio_trim_kept_ratio",
			Help:    "Fraction of samples kept after trimming",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10), // 0.1 to 1.0
		}),

		PublishFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "studio_publish_failures_total",
			Help: "Total number of dataset files that could not be mirrored",
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "studio_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "studio_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// RecordTrim records the outcome of trimming a take of original samples down
// to kept samples. A take left untouched counts as a fallback.
func (m *Metrics) RecordTrim(original, kept int, fallback bool) {
	if m == nil {
		return
	}
	if fallback {
		m.TrimFallbacks.Inc()
	}
	if original > kept {
		m.SamplesRemoved.Add(float64(original - kept))
	}
	if original > 0 {
		m.TrimRatio.Observe(float64(kept) / float64(original))
	}
}

// RecordHTTPRequest records a served request.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
