package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/devrev/tsdb/confignode/internal/model"
)

// Heartbeat sample results
const (
	SampleCached           = "cached"
	SampleUnknownGroup     = "unknown_group"
	SampleUnknownNode      = "unknown_replica"
	SampleInvalidStatus    = "invalid_status"
	SampleInvalidTimestamp = "invalid_timestamp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestErrors   *prometheus.CounterVec

	// Heartbeat ingestion metrics
	HeartbeatSamples *prometheus.CounterVec
	HeartbeatReports prometheus.Counter
	IngestRejections *prometheus.CounterVec

	// Recompute metrics
	RecomputeDuration prometheus.Histogram
	RecomputeErrors   prometheus.Counter

	// Region group metrics
	RegionGroups      *prometheus.GaugeVec
	RegisteredGroups  prometheus.Gauge
	Replicas          *prometheus.GaugeVec
	StatusTransitions *prometheus.CounterVec

	// Publishing metrics
	PublishedSnapshots *prometheus.CounterVec
}

// NewMetrics creates Prometheus metrics and registers them with reg.
// A nil registerer uses the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confignode_requests_total",
				Help: "Total number of API requests processed",
			},
			[]string{"operation", "code"},
		),

		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "confignode_request_duration_seconds",
				Help:    "Duration of API request processing",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		RequestErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confignode_request_errors_total",
				Help: "Total number of API request errors",
			},
			[]string{"operation", "error_code"},
		),

		HeartbeatSamples: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confignode_heartbeat_samples_total",
				Help: "Total number of region heartbeat samples by result",
			},
			[]string{"result"},
		),

		HeartbeatReports: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "confignode_heartbeat_reports_total",
				Help: "Total number of data node heartbeat reports handled",
			},
		),

		IngestRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confignode_heartbeat_ingest_rejections_total",
				Help: "Total number of heartbeat reports rejected before ingestion",
			},
			[]string{"reason"},
		),

		RecomputeDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "confignode_recompute_duration_seconds",
				Help:    "Duration of a full region group statistics recompute",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),

		RecomputeErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "confignode_recompute_errors_total",
				Help: "Total number of aborted recompute cycles",
			},
		),

		RegionGroups: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "confignode_region_groups",
				Help: "Number of region groups by published status",
			},
			[]string{"status"},
		),

		RegisteredGroups: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "confignode_registered_region_groups",
				Help: "Number of region groups held in the load cache",
			},
		),

		Replicas: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "confignode_replicas",
				Help: "Number of replicas by published status",
			},
			[]string{"status"},
		),

		StatusTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confignode_region_group_status_transitions_total",
				Help: "Total number of region group status transitions",
			},
			[]string{"from", "to"},
		),

		PublishedSnapshots: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confignode_published_snapshots_total",
				Help: "Total number of group snapshots written to the statistics store",
			},
			[]string{"status"},
		),
	}
}

// RecordRequest records an API request metric
func (m *Metrics) RecordRequest(operation, code string, duration float64) {
	m.RequestsTotal.WithLabelValues(operation, code).Inc()
	m.RequestDuration.WithLabelValues(operation).Observe(duration)
}

// RecordError records an API error metric
func (m *Metrics) RecordError(operation, errorCode string) {
	m.RequestErrors.WithLabelValues(operation, errorCode).Inc()
}

// RecordHeartbeatReport records one handled data node report
func (m *Metrics) RecordHeartbeatReport() {
	m.HeartbeatReports.Inc()
}

// RecordHeartbeatSample records the outcome of one region heartbeat
func (m *Metrics) RecordHeartbeatSample(result string) {
	m.HeartbeatSamples.WithLabelValues(result).Inc()
}

// RecordIngestRejection records a report dropped before ingestion
func (m *Metrics) RecordIngestRejection(reason string) {
	m.IngestRejections.WithLabelValues(reason).Inc()
}

// RecordRecompute records a recompute cycle
func (m *Metrics) RecordRecompute(duration float64, err error) {
	m.RecomputeDuration.Observe(duration)
	if err != nil {
		m.RecomputeErrors.Inc()
	}
}

// RecordStatusTransition records a region group status change
func (m *Metrics) RecordStatusTransition(from, to model.GroupStatus) {
	m.StatusTransitions.WithLabelValues(string(from), string(to)).Inc()
}

// RecordPublished records a snapshot written to the statistics store
func (m *Metrics) RecordPublished(status model.GroupStatus) {
	m.PublishedSnapshots.WithLabelValues(string(status)).Inc()
}

// UpdateRegionGroups sets the per-status group gauges
func (m *Metrics) UpdateRegionGroups(counts map[model.GroupStatus]int) {
	total := 0
	for _, s := range model.AllGroupStatuses {
		m.RegionGroups.WithLabelValues(string(s)).Set(float64(counts[s]))
		total += counts[s]
	}
	m.RegisteredGroups.Set(float64(total))
}

// UpdateReplicas sets the per-status replica gauges
func (m *Metrics) UpdateReplicas(counts map[model.ReplicaStatus]int) {
	for _, s := range model.AllReplicaStatuses {
		m.Replicas.WithLabelValues(string(s)).Set(float64(counts[s]))
	}
}
