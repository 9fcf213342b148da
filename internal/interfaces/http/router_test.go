package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/MetaNet-Generalizer/internal/application/generalize"
	"github.com/turtacn/MetaNet-Generalizer/internal/config"
	"github.com/turtacn/MetaNet-Generalizer/internal/domain/run"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/search/opensearch"
	"github.com/turtacn/MetaNet-Generalizer/internal/interfaces/http/handlers"
	"github.com/turtacn/MetaNet-Generalizer/internal/interfaces/http/middleware"
	"github.com/turtacn/MetaNet-Generalizer/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubService struct{}

func (stubService) Generalize(context.Context, *generalize.GeneralizeInput) (*generalize.Output, error) {
	return nil, errors.New(errors.ErrCodeFeatureDisabled, "stub")
}

func (stubService) GetRun(_ context.Context, id string) (*run.Run, error) {
	return &run.Run{ID: id, Status: run.StatusSucceeded}, nil
}

func (stubService) ListRuns(context.Context, *generalize.ListInput) (*generalize.ListResult, error) {
	return &generalize.ListResult{Runs: []*run.Run{}, Limit: 20}, nil
}

func (stubService) SearchGroups(context.Context, opensearch.SearchQuery) (*opensearch.SearchResult, error) {
	return &opensearch.SearchResult{}, nil
}

func newTestRouter(t *testing.T, server config.ServerConfig) (*gin.Engine, prometheus.MetricsCollector) {
	t.Helper()
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "router_test"}, logging.NewNopLogger())
	require.NoError(t, err)
	r := NewRouter(RouterConfig{
		Server:                server,
		GeneralizationHandler: handlers.NewGeneralizationHandler(stubService{}, 1<<20, logging.NewNopLogger()),
		HealthHandler:         handlers.NewHealthHandler("test"),
		Logger:                logging.NewNopLogger(),
		Metrics:               prometheus.NewAppMetrics(collector),
		MetricsCollector:      collector,
	})
	return r, collector
}

func get(r http.Handler, target string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestNewRouter_Routes(t *testing.T) {
	r, _ := newTestRouter(t, config.ServerConfig{})

	tests := []struct {
		method, target string
		want           int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/readyz", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/api/v1/generalizations", http.StatusOK},
		{http.MethodGet, "/api/v1/generalizations/run-1", http.StatusOK},
		{http.MethodGet, "/api/v1/species-groups?q=hexose", http.StatusOK},
		{http.MethodPost, "/api/v1/generalizations", http.StatusBadRequest},
		{http.MethodGet, "/api/v1/unknown", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(tt.method, tt.target, nil))
			assert.Equal(t, tt.want, w.Code)
			assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
		})
	}
}

func TestNewRouter_NilHandlersLeaveRoutesOut(t *testing.T) {
	r := NewRouter(RouterConfig{})
	assert.Equal(t, http.StatusNotFound, get(r, "/healthz").Code)
	assert.Equal(t, http.StatusNotFound, get(r, "/api/v1/generalizations").Code)
}

func TestNewRouter_RecordsMetrics(t *testing.T) {
	r, collector := newTestRouter(t, config.ServerConfig{})
	get(r, "/api/v1/generalizations/run-1")

	body, err := io.ReadAll(get(collector.Handler(), "/metrics").Body)
	require.NoError(t, err)
	assert.Contains(t, string(body),
		`router_test_http_requests_total{method="GET",path="/api/v1/generalizations/:id",status_code="200"} 1`)
}

func TestNewRouter_RecoversPanics(t *testing.T) {
	r, _ := newTestRouter(t, config.ServerConfig{})
	r.GET("/boom", func(*gin.Context) { panic("boom") })

	w := get(r, "/boom")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	var resp handlers.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(errors.ErrCodeInternal), resp.Code)
	assert.NotEmpty(t, resp.RequestID)
}

func TestNewRouter_RateLimit(t *testing.T) {
	r, _ := newTestRouter(t, config.ServerConfig{RateLimitRPS: 0.001, RateLimitBurst: 1})

	assert.Equal(t, http.StatusOK, get(r, "/api/v1/generalizations").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "/api/v1/generalizations").Code)
	// health endpoints are exempt
	assert.Equal(t, http.StatusOK, get(r, "/healthz").Code)
	assert.Equal(t, http.StatusOK, get(r, "/healthz").Code)
}

func TestNewRouter_CORS(t *testing.T) {
	r, _ := newTestRouter(t, config.ServerConfig{CORSOrigins: []string{"https://app.example.org"}})

	w := get(r, "/api/v1/generalizations", "Origin", "https://app.example.org")
	assert.Equal(t, "https://app.example.org", w.Header().Get("Access-Control-Allow-Origin"))

	w = get(r, "/api/v1/generalizations", "Origin", "https://evil.example.org")
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestNewRouter_AuthGuardsAPIOnly(t *testing.T) {
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "router_auth_test"}, logging.NewNopLogger())
	require.NoError(t, err)
	r := NewRouter(RouterConfig{
		GeneralizationHandler: handlers.NewGeneralizationHandler(stubService{}, 1<<20, logging.NewNopLogger()),
		HealthHandler:         handlers.NewHealthHandler("test"),
		Auth: func(c *gin.Context) {
			if c.GetHeader("Authorization") != "Bearer ok" {
				c.AbortWithStatus(http.StatusUnauthorized)
				return
			}
			c.Next()
		},
		MetricsCollector: collector,
	})

	assert.Equal(t, http.StatusUnauthorized, get(r, "/api/v1/generalizations/run-1").Code)
	assert.Equal(t, http.StatusOK, get(r, "/api/v1/generalizations/run-1", "Authorization", "Bearer ok").Code)
	assert.Equal(t, http.StatusOK, get(r, "/healthz").Code)
	assert.Equal(t, http.StatusOK, get(r, "/metrics").Code)
}
