package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "flipbook"

var (
	loadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loads_total",
			Help:      "Document loads by result (ready, decode_error, render_error, superseded, cancelled)",
		},
		[]string{"result"},
	)

	loadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "load_duration_seconds",
			Help:      "Wall time of document loads by result",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"result"},
	)

	pagesRendered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_rendered_total",
			Help:      "Pages emitted by result (ok, blank, failed)",
		},
		[]string{"result"},
	)

	intakeRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intake_rejected_total",
			Help:      "Uploads rejected before rasterization by reason",
		},
		[]string{"reason"},
	)

	navigation = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "navigation_total",
			Help:      "Navigation commands by action and whether the index moved",
		},
		[]string{"action", "moved"},
	)

	sessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Live flipbook sessions",
		},
	)

	renderSlots = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "render_slots",
			Help:      "Render slot usage by state (in_use, waiting)",
		},
		[]string{"state"},
	)
)

// Init registers collectors.
func Init() {
	prometheus.MustRegister(loadsTotal, loadDuration, pagesRendered, intakeRejected, navigation, sessions, renderSlots)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveLoad(result string, dur time.Duration) {
	loadsTotal.WithLabelValues(result).Inc()
	loadDuration.WithLabelValues(result).Observe(dur.Seconds())
}

func IncPage(result string) { pagesRendered.WithLabelValues(result).Inc() }
func IncRejected(reason string) { intakeRejected.WithLabelValues(reason).Inc() }
func SessionOpened() { sessions.Inc() }
func SessionClosed() { sessions.Dec() }

func IncNavigation(action string, moved bool) {
	navigation.WithLabelValues(action, boolToStr(moved)).Inc()
}

func SetRenderSlots(inUse, waiting int) {
	renderSlots.WithLabelValues("in_use").Set(float64(inUse))
	renderSlots.WithLabelValues("waiting").Set(float64(waiting))
}

func boolToStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
