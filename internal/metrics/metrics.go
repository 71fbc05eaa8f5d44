package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	WsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "collabrun_ws_connections",
		Help: "Current number of active websocket connections",
	})
	EventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "collabrun_events_published_total",
		Help: "Events published to the room event bus",
	}, []string{"type"})
	JobsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "collabrun_jobs_processed_total",
		Help: "Execution jobs finished by workers",
	}, []string{"status"})
	JobDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "collabrun_job_duration_seconds",
		Help:    "Wall time from claim to terminal event",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(WsConnections, EventsPublished, JobsProcessed, JobDuration)
}
