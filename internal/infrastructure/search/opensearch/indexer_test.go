package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/MetaNet-Generalizer/internal/generalization"
	apperrors "github.com/turtacn/MetaNet-Generalizer/pkg/errors"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
}

// fakeCluster answers with a fixed status/body per "METHOD path-suffix" and
// records every request.
type fakeCluster struct {
	mu        sync.Mutex
	requests  []recordedRequest
	responses map[string]fakeResponse
}

type fakeResponse struct {
	status int
	body   string
}

func (f *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Body: string(body)})
	f.mu.Unlock()

	for key, resp := range f.responses {
		parts := strings.SplitN(key, " ", 2)
		if r.Method == parts[0] && strings.HasSuffix(r.URL.Path, parts[1]) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(resp.status)
			_, _ = w.Write([]byte(resp.body))
			return
		}
	}
	w.WriteHeader(http.StatusBadRequest)
}

func (f *fakeCluster) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func newTestIndexer(t *testing.T, f *fakeCluster) *Indexer {
	t.Helper()
	server := httptest.NewServer(f)
	t.Cleanup(server.Close)

	idx := NewIndexer(newTestClient(t, server.URL), "metanet-species-groups", nil)
	idx.now = func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) }
	return idx
}

func sampleView() *generalization.View {
	return &generalization.View{
		NetworkID: "toy",
		SpeciesGroups: []generalization.SpeciesGroup{
			{ID: "g_species_1", Name: "alcohol (2) [cytosol]", TermID: "chebi:30879", Compartment: "c", Members: []string{"s1", "s2"}},
		},
		Ubiquitous: &generalization.SpeciesGroup{ID: generalization.UbiquitousGroupID, Name: "ubiquitous", Members: []string{"h2o"}},
	}
}

func TestEnsureIndex_Creates(t *testing.T) {
	f := &fakeCluster{responses: map[string]fakeResponse{
		"HEAD /metanet-species-groups": {status: http.StatusNotFound},
		"PUT /metanet-species-groups":  {status: http.StatusOK, body: `{"acknowledged":true}`},
	}}
	idx := newTestIndexer(t, f)

	require.NoError(t, idx.EnsureIndex(context.Background()))
	reqs := f.recorded()
	require.Len(t, reqs, 2)
	assert.Equal(t, http.MethodPut, reqs[1].Method)
	assert.Contains(t, reqs[1].Body, `"member_count"`)
}

func TestEnsureIndex_Exists(t *testing.T) {
	f := &fakeCluster{responses: map[string]fakeResponse{
		"HEAD /metanet-species-groups": {status: http.StatusOK},
	}}
	idx := newTestIndexer(t, f)

	require.NoError(t, idx.EnsureIndex(context.Background()))
	assert.Len(t, f.recorded(), 1)
}

func TestEnsureIndex_RaceLost(t *testing.T) {
	f := &fakeCluster{responses: map[string]fakeResponse{
		"HEAD /metanet-species-groups": {status: http.StatusNotFound},
		"PUT /metanet-species-groups": {status: http.StatusBadRequest,
			body: `{"error":{"type":"resource_already_exists_exception"}}`},
	}}
	idx := newTestIndexer(t, f)
	assert.NoError(t, idx.EnsureIndex(context.Background()))
}

func TestDocuments(t *testing.T) {
	idx := NewIndexer(nil, "i", nil)
	idx.now = func() time.Time { return time.Unix(0, 0) }

	docs := idx.Documents("run-1", sampleView())
	require.Len(t, docs, 2)
	assert.Equal(t, "g_species_1", docs[0].GroupID)
	assert.Equal(t, 2, docs[0].MemberCount)
	assert.False(t, docs[0].Ubiquitous)
	assert.True(t, docs[1].Ubiquitous)
	assert.Equal(t, "toy:g_ubiquitous", DocID(docs[1].NetworkID, docs[1].GroupID))
}

func TestIndexView(t *testing.T) {
	f := &fakeCluster{responses: map[string]fakeResponse{
		"POST /_delete_by_query": {status: http.StatusOK, body: `{"deleted":3}`},
		"POST /_bulk": {status: http.StatusOK, body: `{"errors":false,"items":[
			{"index":{"_id":"toy:g_species_1","status":201}},
			{"index":{"_id":"toy:g_ubiquitous","status":201}}]}`},
	}}
	idx := newTestIndexer(t, f)

	n, err := idx.IndexView(context.Background(), "run-1", sampleView())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	reqs := f.recorded()
	require.Len(t, reqs, 2)
	assert.Contains(t, reqs[0].Body, `"network_id":"toy"`)

	lines := strings.Split(strings.TrimSpace(reqs[1].Body), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, `{"index":{"_index":"metanet-species-groups","_id":"toy:g_species_1"}}`, lines[0])
	var doc SpeciesGroupDoc
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &doc))
	assert.Equal(t, "run-1", doc.RunID)
	assert.Equal(t, []string{"s1", "s2"}, doc.Members)
}

func TestIndexView_ItemFailures(t *testing.T) {
	f := &fakeCluster{responses: map[string]fakeResponse{
		"POST /_delete_by_query": {status: http.StatusNotFound, body: `{}`},
		"POST /_bulk": {status: http.StatusOK, body: `{"errors":true,"items":[
			{"index":{"_id":"toy:g_species_1","status":201}},
			{"index":{"_id":"toy:g_ubiquitous","status":400,"error":{"type":"mapper_parsing_exception","reason":"bad"}}}]}`},
	}}
	idx := newTestIndexer(t, f)

	n, err := idx.IndexView(context.Background(), "run-1", sampleView())
	assert.Equal(t, 1, n)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeIndexingFailed))
}

func TestIndexView_RejectsAnonymousView(t *testing.T) {
	idx := NewIndexer(nil, "i", nil)
	_, err := idx.IndexView(context.Background(), "run-1", &generalization.View{})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))
}

func TestBuildSearchBody(t *testing.T) {
	body := buildSearchBody(SearchQuery{Text: "alcohol", NetworkID: "toy", Size: 500, From: -3})
	assert.Equal(t, maxSearchSize, body["size"])
	assert.Equal(t, 0, body["from"])

	b := body["query"].(map[string]interface{})["bool"].(map[string]interface{})
	assert.Len(t, b["filter"], 1)
	assert.Len(t, b["must"], 1)

	empty := buildSearchBody(SearchQuery{})
	assert.Equal(t, 20, empty["size"])
	assert.Empty(t, empty["query"].(map[string]interface{})["bool"])
}

func TestSearch(t *testing.T) {
	f := &fakeCluster{responses: map[string]fakeResponse{
		"POST /metanet-species-groups/_search": {status: http.StatusOK, body: `{"hits":{"total":{"value":1},"hits":[
			{"_source":{"run_id":"run-1","network_id":"toy","group_id":"g_species_1","name":"alcohol (2) [cytosol]","members":["s1","s2"],"member_count":2}}]}}`},
	}}
	idx := newTestIndexer(t, f)

	res, err := idx.Search(context.Background(), SearchQuery{Text: "alcohol"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Total)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "g_species_1", res.Hits[0].GroupID)
}

func TestSearch_MissingIndex(t *testing.T) {
	f := &fakeCluster{responses: map[string]fakeResponse{
		"POST /metanet-species-groups/_search": {status: http.StatusNotFound, body: `{}`},
	}}
	idx := newTestIndexer(t, f)

	res, err := idx.Search(context.Background(), SearchQuery{})
	require.NoError(t, err)
	assert.Empty(t, res.Hits)
}
