package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var Registry = prometheus.NewRegistry()

var (
	ReportsIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tracker_reports_ingested_total",
		Help: "Telemetry reports accepted and stored.",
	})

	IngestErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_ingest_errors_total",
		Help: "Ingest failures by stage.",
	}, []string{"stage"}) // validation, owner, previous, pending_clear, insert

	IngestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tracker_ingest_duration_seconds",
		Help:    "Time to decide and persist one report.",
		Buckets: prometheus.DefBuckets,
	})

	AlertsRaised = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tracker_alerts_raised_total",
		Help: "Emergency reports that passed the notification gate.",
	})

	Notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_notifications_total",
		Help: "Notification attempts by channel and outcome.",
	}, []string{"channel", "outcome"}) // outcome: sent, failed, skipped

	DispatchDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_dispatch_dropped_total",
		Help: "Background hand-offs dropped because the target was full or unavailable.",
	}, []string{"channel"}) // state, mirror, notify, realtime

	RealtimeClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tracker_realtime_clients",
		Help: "Connected realtime clients on this instance.",
	})
)

func init() {
	Registry.MustRegister(
		ReportsIngested,
		IngestErrors,
		IngestDuration,
		AlertsRaised,
		Notifications,
		DispatchDropped,
		RealtimeClients,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
}

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
