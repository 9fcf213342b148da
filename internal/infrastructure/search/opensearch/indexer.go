package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/turtacn/MetaNet-Generalizer/internal/generalization"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MetaNet-Generalizer/pkg/errors"
)

// speciesGroupMapping keeps ids and term ids as keywords and names as text.
const speciesGroupMapping = `{
  "settings": {"number_of_shards": 1, "number_of_replicas": 0},
  "mappings": {
    "properties": {
      "run_id":       {"type": "keyword"},
      "network_id":   {"type": "keyword"},
      "group_id":     {"type": "keyword"},
      "name":         {"type": "text", "fields": {"raw": {"type": "keyword"}}},
      "term_id":      {"type": "keyword"},
      "compartment":  {"type": "keyword"},
      "members":      {"type": "keyword"},
      "member_count": {"type": "integer"},
      "ubiquitous":   {"type": "boolean"},
      "indexed_at":   {"type": "date"}
    }
  }
}`

// SpeciesGroupDoc is the indexed form of a species group.
type SpeciesGroupDoc struct {
	RunID       string    `json:"run_id"`
	NetworkID   string    `json:"network_id"`
	GroupID     string    `json:"group_id"`
	Name        string    `json:"name"`
	TermID      string    `json:"term_id,omitempty"`
	Compartment string    `json:"compartment,omitempty"`
	Members     []string  `json:"members"`
	MemberCount int       `json:"member_count"`
	Ubiquitous  bool      `json:"ubiquitous"`
	IndexedAt   time.Time `json:"indexed_at"`
}

// DocID is unique per network so a re-run replaces the previous documents.
func DocID(networkID, groupID string) string {
	return networkID + ":" + groupID
}

// Indexer writes species groups of a generalized view into one index.
type Indexer struct {
	client  *Client
	index   string
	refresh string
	logger  logging.Logger
	now     func() time.Time
}

func NewIndexer(client *Client, index string, logger logging.Logger) *Indexer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Indexer{
		client:  client,
		index:   index,
		refresh: "wait_for",
		logger:  logger,
		now:     time.Now,
	}
}

func (i *Indexer) Index() string { return i.index }

// EnsureIndex creates the index with its mapping unless it exists.
func (i *Indexer) EnsureIndex(ctx context.Context) error {
	exists, err := i.IndexExists(ctx)
	if err != nil || exists {
		return err
	}

	req := opensearchapi.IndicesCreateRequest{
		Index: i.index,
		Body:  strings.NewReader(speciesGroupMapping),
	}
	resp, err := req.Do(ctx, i.client.client)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeIndexingFailed, "failed to create index")
	}
	defer resp.Body.Close()

	// Another replica may have created it first.
	if resp.IsError() && !strings.Contains(readBody(resp.Body), "resource_already_exists_exception") {
		return errors.Newf(errors.ErrCodeIndexingFailed, "create index returned status %d", resp.StatusCode)
	}

	i.logger.Info("Index created", logging.String("index", i.index))
	return nil
}

func (i *Indexer) IndexExists(ctx context.Context) (bool, error) {
	req := opensearchapi.IndicesExistsRequest{Index: []string{i.index}}
	resp, err := req.Do(ctx, i.client.client)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeIndexingFailed, "failed to check index existence")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case 200:
		return true, nil
	case 404:
		return false, nil
	}
	return false, errors.Newf(errors.ErrCodeIndexingFailed, "index exists returned status %d", resp.StatusCode)
}

// Documents converts the species groups of view, ubiquitous group included.
func (i *Indexer) Documents(runID string, view *generalization.View) []SpeciesGroupDoc {
	now := i.now().UTC()
	doc := func(g generalization.SpeciesGroup, ubiquitous bool) SpeciesGroupDoc {
		return SpeciesGroupDoc{
			RunID:       runID,
			NetworkID:   view.NetworkID,
			GroupID:     g.ID,
			Name:        g.Name,
			TermID:      g.TermID,
			Compartment: g.Compartment,
			Members:     g.Members,
			MemberCount: len(g.Members),
			Ubiquitous:  ubiquitous,
			IndexedAt:   now,
		}
	}

	docs := make([]SpeciesGroupDoc, 0, len(view.SpeciesGroups)+1)
	for _, g := range view.SpeciesGroups {
		docs = append(docs, doc(g, false))
	}
	if view.Ubiquitous != nil {
		docs = append(docs, doc(*view.Ubiquitous, true))
	}
	return docs
}

// IndexView replaces the documents of the view's network with its current
// species groups and returns the number indexed.
func (i *Indexer) IndexView(ctx context.Context, runID string, view *generalization.View) (int, error) {
	if view == nil || view.NetworkID == "" {
		return 0, errors.New(errors.ErrCodeValidation, "view without network id cannot be indexed")
	}
	if err := i.deleteNetwork(ctx, view.NetworkID); err != nil {
		return 0, err
	}

	docs := i.Documents(runID, view)
	if len(docs) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	for _, d := range docs {
		meta := fmt.Sprintf(`{"index":{"_index":%q,"_id":%q}}`, i.index, DocID(d.NetworkID, d.GroupID))
		buf.WriteString(meta)
		buf.WriteByte('\n')
		src, err := json.Marshal(d)
		if err != nil {
			return 0, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal species group")
		}
		buf.Write(src)
		buf.WriteByte('\n')
	}

	req := opensearchapi.BulkRequest{
		Body:    bytes.NewReader(buf.Bytes()),
		Refresh: i.refresh,
	}
	resp, err := req.Do(ctx, i.client.client)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeIndexingFailed, "bulk request failed")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return 0, errors.Newf(errors.ErrCodeIndexingFailed, "bulk request returned status %d", resp.StatusCode).
			WithDetail(readBody(resp.Body))
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error,omitempty"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&bulkResp); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode bulk response")
	}

	indexed := 0
	var failures []string
	for _, item := range bulkResp.Items {
		for _, info := range item {
			if info.Error != nil {
				failures = append(failures, fmt.Sprintf("%s: %s", info.ID, info.Error.Reason))
				continue
			}
			indexed++
		}
	}

	i.logger.Debug("Indexed species groups",
		logging.String("network_id", view.NetworkID),
		logging.Int("indexed", indexed),
		logging.Int("failed", len(failures)))

	if len(failures) > 0 {
		return indexed, errors.Newf(errors.ErrCodeIndexingFailed, "%d species groups failed to index", len(failures)).
			WithDetail(strings.Join(failures, "; "))
	}
	return indexed, nil
}

func (i *Indexer) deleteNetwork(ctx context.Context, networkID string) error {
	query, _ := json.Marshal(map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]string{"network_id": networkID},
		},
	})
	refresh := true
	req := opensearchapi.DeleteByQueryRequest{
		Index:     []string{i.index},
		Body:      bytes.NewReader(query),
		Conflicts: "proceed",
		Refresh:   &refresh,
	}
	resp, err := req.Do(ctx, i.client.client)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeIndexingFailed, "failed to delete previous species groups")
	}
	defer resp.Body.Close()

	if resp.IsError() && resp.StatusCode != 404 {
		return errors.Newf(errors.ErrCodeIndexingFailed, "delete by query returned status %d", resp.StatusCode)
	}
	return nil
}

func readBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 4096))
	return string(b)
}
