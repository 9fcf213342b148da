package opensearch

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/turtacn/MetaNet-Generalizer/pkg/errors"
)

const maxSearchSize = 100

// SearchQuery selects species groups. Text matches the group name and member
// species ids; the other fields filter exactly.
type SearchQuery struct {
	Text      string
	NetworkID string
	TermID    string
	From      int
	Size      int
}

type SearchResult struct {
	Total int64             `json:"total"`
	Hits  []SpeciesGroupDoc `json:"hits"`
}

func buildSearchBody(q SearchQuery) map[string]interface{} {
	var filters []interface{}
	if q.NetworkID != "" {
		filters = append(filters, map[string]interface{}{"term": map[string]string{"network_id": q.NetworkID}})
	}
	if q.TermID != "" {
		filters = append(filters, map[string]interface{}{"term": map[string]string{"term_id": q.TermID}})
	}

	boolQuery := map[string]interface{}{}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	}
	if q.Text != "" {
		boolQuery["must"] = []interface{}{
			map[string]interface{}{
				"multi_match": map[string]interface{}{
					"query":  q.Text,
					"fields": []string{"name^2", "members", "term_id"},
				},
			},
		}
	}

	size := q.Size
	if size <= 0 {
		size = 20
	}
	if size > maxSearchSize {
		size = maxSearchSize
	}
	from := q.From
	if from < 0 {
		from = 0
	}

	return map[string]interface{}{
		"from":  from,
		"size":  size,
		"query": map[string]interface{}{"bool": boolQuery},
		"sort": []interface{}{
			"_score",
			map[string]string{"member_count": "desc"},
			map[string]string{"group_id": "asc"},
		},
	}
}

// Search runs q against the species group index.
func (i *Indexer) Search(ctx context.Context, q SearchQuery) (*SearchResult, error) {
	body, err := json.Marshal(buildSearchBody(q))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal search query")
	}

	req := opensearchapi.SearchRequest{
		Index: []string{i.index},
		Body:  bytes.NewReader(body),
	}
	resp, err := req.Do(ctx, i.client.client)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "search request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == 404 {
		return &SearchResult{Hits: []SpeciesGroupDoc{}}, nil
	}
	if resp.IsError() {
		return nil, errors.Newf(errors.ErrCodeExternalService, "search returned status %d", resp.StatusCode).
			WithDetail(readBody(resp.Body))
	}

	var raw struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source SpeciesGroupDoc `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode search response")
	}

	res := &SearchResult{Total: raw.Hits.Total.Value, Hits: make([]SpeciesGroupDoc, 0, len(raw.Hits.Hits))}
	for _, h := range raw.Hits.Hits {
		res.Hits = append(res.Hits, h.Source)
	}
	return res, nil
}
