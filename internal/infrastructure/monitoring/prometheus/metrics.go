package prometheus

import (
	"strconv"
	"time"
)

// AppMetrics holds all application metrics.
type AppMetrics struct {
	// HTTP Layer
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec
	HTTPActiveRequests  GaugeVec

	// Engine Layer
	RunsTotal            CounterVec
	RunDuration          HistogramVec
	PhaseDuration        HistogramVec
	ClustersSplitTotal   CounterVec
	SpeciesClusters      GaugeVec
	ReactionClusters     GaugeVec
	GeneralizedReactions GaugeVec

	// Infrastructure Layer
	DBQueryDuration  HistogramVec
	CacheHitsTotal   CounterVec
	CacheMissesTotal CounterVec
	EventsPublished  CounterVec

	ErrorsTotal CounterVec
}

// Default Buckets
var (
	DefaultHTTPDurationBuckets   = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}
	DefaultEngineDurationBuckets = []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300, 900}
	DefaultDBDurationBuckets     = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5}
)

// NewAppMetrics registers all metrics and returns AppMetrics struct.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	m := &AppMetrics{}

	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path")
	m.HTTPActiveRequests = collector.RegisterGauge("http_active_requests", "Active HTTP requests", "method")

	m.RunsTotal = collector.RegisterCounter("generalization_runs_total", "Generalization runs", "status")
	m.RunDuration = collector.RegisterHistogram("generalization_run_duration_seconds", "Generalization run duration", DefaultEngineDurationBuckets, "source")
	m.PhaseDuration = collector.RegisterHistogram("generalization_phase_duration_seconds", "Engine phase duration", DefaultEngineDurationBuckets, "phase")
	m.ClustersSplitTotal = collector.RegisterCounter("generalization_clusters_split_total", "Clusters created by splitting", "phase")
	m.SpeciesClusters = collector.RegisterGauge("generalization_species_clusters", "Species clusters of the last run", "network")
	m.ReactionClusters = collector.RegisterGauge("generalization_reaction_clusters", "Reaction clusters of the last run", "network")
	m.GeneralizedReactions = collector.RegisterGauge("generalization_generalized_reactions", "Reaction clusters with more than one member in the last run", "network")

	m.DBQueryDuration = collector.RegisterHistogram("db_query_duration_seconds", "Database query duration", DefaultDBDurationBuckets, "db", "operation")
	m.CacheHitsTotal = collector.RegisterCounter("cache_hits_total", "Cache hits", "cache")
	m.CacheMissesTotal = collector.RegisterCounter("cache_misses_total", "Cache misses", "cache")
	m.EventsPublished = collector.RegisterCounter("events_published_total", "Published events", "topic", "status")

	m.ErrorsTotal = collector.RegisterCounter("errors_total", "Total errors", "component", "error_type")

	return m
}

// EngineObserver feeds engine progress into the phase metrics.
type EngineObserver struct {
	metrics *AppMetrics
}

// EngineObserver returns an observer for one or more engine runs.
func (m *AppMetrics) EngineObserver() *EngineObserver {
	return &EngineObserver{metrics: m}
}

func (o *EngineObserver) PhaseCompleted(phase string, elapsed time.Duration) {
	o.metrics.PhaseDuration.WithLabelValues(phase).Observe(elapsed.Seconds())
}

func (o *EngineObserver) ClustersSplit(phase string, clusters int) {
	if clusters > 0 {
		o.metrics.ClustersSplitTotal.WithLabelValues(phase).Add(float64(clusters))
	}
}

// Helpers

func RecordHTTPRequest(metrics *AppMetrics, method, path string, statusCode int, duration time.Duration) {
	metrics.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RunSummary is what RecordRun needs to know about a finished run.
type RunSummary struct {
	NetworkID            string
	Source               string // "engine" | "cache"
	SpeciesClusters      int
	ReactionClusters     int
	GeneralizedReactions int
}

func RecordRun(metrics *AppMetrics, s RunSummary, duration time.Duration, err error) {
	if err != nil {
		metrics.RunsTotal.WithLabelValues("failure").Inc()
		return
	}
	metrics.RunsTotal.WithLabelValues("success").Inc()
	metrics.RunDuration.WithLabelValues(s.Source).Observe(duration.Seconds())
	metrics.SpeciesClusters.WithLabelValues(s.NetworkID).Set(float64(s.SpeciesClusters))
	metrics.ReactionClusters.WithLabelValues(s.NetworkID).Set(float64(s.ReactionClusters))
	metrics.GeneralizedReactions.WithLabelValues(s.NetworkID).Set(float64(s.GeneralizedReactions))
}

func RecordDBQuery(metrics *AppMetrics, db, operation string, duration time.Duration, err error) {
	metrics.DBQueryDuration.WithLabelValues(db, operation).Observe(duration.Seconds())
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues(db, "query_error").Inc()
	}
}

func RecordCacheAccess(metrics *AppMetrics, cache string, hit bool) {
	if hit {
		metrics.CacheHitsTotal.WithLabelValues(cache).Inc()
	} else {
		metrics.CacheMissesTotal.WithLabelValues(cache).Inc()
	}
}

func RecordEvent(metrics *AppMetrics, topic string, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	metrics.EventsPublished.WithLabelValues(topic, status).Inc()
}

func RecordError(metrics *AppMetrics, component, errorType string) {
	metrics.ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
