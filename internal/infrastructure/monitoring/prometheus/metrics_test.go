package prometheus

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAppMetrics(t *testing.T) (*AppMetrics, MetricsCollector) {
	c := newTestCollector(t)
	return NewAppMetrics(c), c
}

func TestNewAppMetrics_AllMetricsRegistered(t *testing.T) {
	m, _ := newTestAppMetrics(t)
	require.NotNil(t, m)

	assert.NotNil(t, m.HTTPRequestsTotal)
	assert.NotNil(t, m.RunsTotal)
	assert.NotNil(t, m.PhaseDuration)
	assert.NotNil(t, m.CacheHitsTotal)
	assert.NotNil(t, m.EventsPublished)
}

func TestRecordHTTPRequest(t *testing.T) {
	m, c := newTestAppMetrics(t)

	RecordHTTPRequest(m, "POST", "/api/v1/generalizations", 201, 100*time.Millisecond)

	output := scrapeMetrics(t, c)
	assert.Contains(t, output, `test_unit_http_requests_total{method="POST",path="/api/v1/generalizations",status_code="201"} 1`)
	assert.Contains(t, output, `test_unit_http_request_duration_seconds_count{method="POST",path="/api/v1/generalizations"} 1`)
}

func TestRecordRun(t *testing.T) {
	m, c := newTestAppMetrics(t)

	RecordRun(m, RunSummary{NetworkID: "iJO1366", Source: "engine", SpeciesClusters: 12, ReactionClusters: 40, GeneralizedReactions: 7}, time.Second, nil)
	RecordRun(m, RunSummary{NetworkID: "iJO1366"}, 0, errors.New("boom"))

	output := scrapeMetrics(t, c)
	assert.Contains(t, output, `test_unit_generalization_runs_total{status="success"} 1`)
	assert.Contains(t, output, `test_unit_generalization_runs_total{status="failure"} 1`)
	assert.Contains(t, output, `test_unit_generalization_species_clusters{network="iJO1366"} 12`)
	assert.Contains(t, output, `test_unit_generalization_reaction_clusters{network="iJO1366"} 40`)
	assert.Contains(t, output, `test_unit_generalization_generalized_reactions{network="iJO1366"} 7`)
	assert.Contains(t, output, `test_unit_generalization_run_duration_seconds_count{source="engine"} 1`)
}

func TestEngineObserver(t *testing.T) {
	m, c := newTestAppMetrics(t)
	obs := m.EngineObserver()

	obs.PhaseCompleted("maximize", 20*time.Millisecond)
	obs.PhaseCompleted("maximize", 30*time.Millisecond)
	obs.ClustersSplit("maximize", 3)
	obs.ClustersSplit("stoichiometry", 0)

	output := scrapeMetrics(t, c)
	assert.Contains(t, output, `test_unit_generalization_phase_duration_seconds_count{phase="maximize"} 2`)
	assert.Contains(t, output, `test_unit_generalization_clusters_split_total{phase="maximize"} 3`)
	assert.NotContains(t, output, `phase="stoichiometry"`)
}

func TestRecordDBQuery_WithError(t *testing.T) {
	m, c := newTestAppMetrics(t)

	RecordDBQuery(m, "postgres", "insert_run", 10*time.Millisecond, nil)
	RecordDBQuery(m, "postgres", "get_run", 10*time.Millisecond, errors.New("db error"))

	output := scrapeMetrics(t, c)
	assert.Contains(t, output, `test_unit_db_query_duration_seconds_count{db="postgres",operation="insert_run"} 1`)
	assert.Contains(t, output, `test_unit_errors_total{component="postgres",error_type="query_error"} 1`)
}

func TestRecordCacheAccess(t *testing.T) {
	m, c := newTestAppMetrics(t)

	RecordCacheAccess(m, "results", true)
	RecordCacheAccess(m, "results", false)
	RecordCacheAccess(m, "results", false)

	output := scrapeMetrics(t, c)
	assert.Contains(t, output, `test_unit_cache_hits_total{cache="results"} 1`)
	assert.Contains(t, output, `test_unit_cache_misses_total{cache="results"} 2`)
}

func TestRecordEventAndError(t *testing.T) {
	m, c := newTestAppMetrics(t)

	RecordEvent(m, "metanet.generalization.completed", nil)
	RecordEvent(m, "metanet.generalization.completed", errors.New("broker down"))
	RecordError(m, "archive", "upload")

	output := scrapeMetrics(t, c)
	assert.Contains(t, output, `test_unit_events_published_total{status="success",topic="metanet.generalization.completed"} 1`)
	assert.Contains(t, output, `test_unit_events_published_total{status="failure",topic="metanet.generalization.completed"} 1`)
	assert.Contains(t, output, `test_unit_errors_total{component="archive",error_type="upload"} 1`)
}
