package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/MetaNet-Generalizer/internal/application/generalize"
	"github.com/turtacn/MetaNet-Generalizer/internal/domain/run"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/search/opensearch"
	"github.com/turtacn/MetaNet-Generalizer/pkg/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts = append([]Option{WithRetryWait(time.Millisecond, 5*time.Millisecond)}, opts...)
	c, err := NewClient(server.URL, opts...)
	require.NoError(t, err)
	return c
}

type testLogger struct {
	mu      sync.Mutex
	lastMsg string
	count   int32
}

func (l *testLogger) Debugf(format string, args ...interface{}) { l.log(format, args...) }
func (l *testLogger) Infof(format string, args ...interface{})  { l.log(format, args...) }
func (l *testLogger) Errorf(format string, args ...interface{}) { l.log(format, args...) }

func (l *testLogger) log(format string, args ...interface{}) {
	atomic.AddInt32(&l.count, 1)
	l.mu.Lock()
	l.lastMsg = fmt.Sprintf(format, args...)
	l.mu.Unlock()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewClient(t *testing.T) {
	c, err := NewClient("http://api.example.com/")
	require.NoError(t, err)
	assert.Equal(t, "http://api.example.com", c.baseURL)
	assert.Equal(t, 3, c.retryMax)
	assert.Contains(t, c.userAgent, "metanet-go-sdk/")

	for _, bad := range []string{"", "ftp://example.com", "example.com"} {
		_, err := NewClient(bad)
		assert.True(t, errors.IsCode(err, errors.ErrCodeBadRequest), "base URL %q", bad)
	}
}

func TestClient_Generalize(t *testing.T) {
	network := json.RawMessage(`{"id":"hexose"}`)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/generalizations", r.URL.Path)
		assert.Equal(t, "false", r.URL.Query().Get("persist"))
		assert.Equal(t, "true", r.URL.Query().Get("refresh"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, string(network), string(body))

		writeJSON(w, http.StatusCreated, generalize.Output{Run: &run.Run{ID: "run-1", Status: run.StatusSucceeded}})
	})

	out, err := c.Generalize(context.Background(), network, GeneralizeOptions{SkipPersist: true, Refresh: true})
	require.NoError(t, err)
	assert.Equal(t, "run-1", out.Run.ID)

	_, err = c.Generalize(context.Background(), nil, GeneralizeOptions{})
	assert.True(t, errors.IsCode(err, errors.ErrCodeBadRequest))
}

func TestClient_BearerToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"code": "COMMON_003", "message": "authentication required"})
			return
		}
		writeJSON(w, http.StatusOK, run.Run{ID: "run-1"})
	}, WithBearerToken("secret"))

	_, err := c.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
}

func TestClient_ReadEndpoints(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/generalizations/run-1":
			writeJSON(w, http.StatusOK, run.Run{ID: "run-1"})
		case "/api/v1/generalizations":
			assert.Equal(t, "hexose", r.URL.Query().Get("network_id"))
			assert.Equal(t, "5", r.URL.Query().Get("limit"))
			assert.Equal(t, "10", r.URL.Query().Get("offset"))
			writeJSON(w, http.StatusOK, generalize.ListResult{Total: 11, Limit: 5, Offset: 10})
		case "/api/v1/species-groups":
			assert.Equal(t, "hexose", r.URL.Query().Get("q"))
			assert.Equal(t, "chebi:18133", r.URL.Query().Get("term_id"))
			writeJSON(w, http.StatusOK, opensearch.SearchResult{Total: 1})
		case "/readyz":
			writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	r, err := c.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", r.ID)

	page, err := c.ListRuns(ctx, ListOptions{NetworkID: "hexose", Limit: 5, Offset: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 11, page.Total)

	res, err := c.SearchGroups(ctx, opensearch.SearchQuery{Text: "hexose", TermID: "chebi:18133"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Total)

	assert.NoError(t, c.Ready(ctx))

	_, err = c.GetRun(ctx, "")
	assert.True(t, errors.IsCode(err, errors.ErrCodeBadRequest))
}

func TestClient_APIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"code": "NET_004", "message": "unknown species", "detail": "xyz", "request_id": "req-9",
		})
	})

	_, err := c.GetRun(context.Background(), "run-1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "NET_004", apiErr.Code)
	assert.Equal(t, "req-9", apiErr.RequestID)
	assert.Contains(t, apiErr.Error(), "unknown species: xyz")
	assert.False(t, apiErr.IsServerError())
}

func TestAPIError_Predicates(t *testing.T) {
	assert.True(t, (&APIError{StatusCode: 404}).IsNotFound())
	assert.True(t, (&APIError{StatusCode: 429}).IsRateLimited())
	assert.True(t, (&APIError{StatusCode: 501}).IsNotSupported())
	assert.True(t, (&APIError{StatusCode: 503}).IsServerError())
	assert.False(t, (&APIError{StatusCode: 400}).IsServerError())
}

func TestClient_RetriesServerErrorsOnReads(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, run.Run{ID: "run-1"})
	})

	r, err := c.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", r.ID)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestClient_RetryExhausted(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}, WithRetryMax(2))

	_, err := c.GetRun(context.Background(), "run-1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestClient_DoesNotRetryWritesOrClientErrors(t *testing.T) {
	for _, tc := range []struct {
		name   string
		status int
		call   func(c *Client) error
	}{
		{"post 500", http.StatusInternalServerError, func(c *Client) error {
			_, err := c.Generalize(context.Background(), json.RawMessage(`{}`), GeneralizeOptions{})
			return err
		}},
		{"get 400", http.StatusBadRequest, func(c *Client) error {
			_, err := c.GetRun(context.Background(), "x")
			return err
		}},
		{"get 501", http.StatusNotImplemented, func(c *Client) error {
			_, err := c.SearchGroups(context.Background(), opensearch.SearchQuery{})
			return err
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var calls int32
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tc.status)
			})
			require.Error(t, tc.call(c))
			assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
		})
	}
}

func TestClient_HonoursRetryAfter(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeJSON(w, http.StatusCreated, generalize.Output{Run: &run.Run{ID: "run-2"}})
	})

	out, err := c.Generalize(context.Background(), json.RawMessage(`{}`), GeneralizeOptions{})
	require.NoError(t, err)
	assert.Equal(t, "run-2", out.Run.ID)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestClient_ContextCanceled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.GetRun(ctx, "run-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_NetworkErrorIsLogged(t *testing.T) {
	logger := &testLogger{}
	c, err := NewClient("http://127.0.0.1:1", WithRetryMax(0), WithLogger(logger))
	require.NoError(t, err)

	_, err = c.GetRun(context.Background(), "run-1")
	require.Error(t, err)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&logger.count), int32(1))
}
