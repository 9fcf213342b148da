package client

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/turtacn/MetaNet-Generalizer/internal/application/generalize"
	"github.com/turtacn/MetaNet-Generalizer/internal/domain/run"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/search/opensearch"
	"github.com/turtacn/MetaNet-Generalizer/pkg/errors"
)

// GeneralizeOptions are the query flags of POST /api/v1/generalizations.
type GeneralizeOptions struct {
	// SkipPersist runs without recording the run or fanning out.
	SkipPersist bool
	// Refresh bypasses the result cache.
	Refresh bool
}

// ListOptions pages GET /api/v1/generalizations. Zero values use the server
// defaults.
type ListOptions struct {
	NetworkID string
	Limit     int
	Offset    int
}

// Generalize submits a network document and returns the run with its
// generalized view.
func (c *Client) Generalize(ctx context.Context, network json.RawMessage, opts GeneralizeOptions) (*generalize.Output, error) {
	if len(network) == 0 {
		return nil, errors.New(errors.ErrCodeBadRequest, "network document is required")
	}
	q := url.Values{}
	if opts.SkipPersist {
		q.Set("persist", "false")
	}
	if opts.Refresh {
		q.Set("refresh", "true")
	}
	var out generalize.Output
	if err := c.post(ctx, withQuery("/api/v1/generalizations", q), network, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetRun fetches one run including its result.
func (c *Client) GetRun(ctx context.Context, id string) (*run.Run, error) {
	if id == "" {
		return nil, errors.New(errors.ErrCodeBadRequest, "run id is required")
	}
	var r run.Run
	if err := c.get(ctx, "/api/v1/generalizations/"+url.PathEscape(id), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRuns lists runs newest first.
func (c *Client) ListRuns(ctx context.Context, opts ListOptions) (*generalize.ListResult, error) {
	q := url.Values{}
	if opts.NetworkID != "" {
		q.Set("network_id", opts.NetworkID)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}
	var page generalize.ListResult
	if err := c.get(ctx, withQuery("/api/v1/generalizations", q), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// SearchGroups searches indexed species groups.
func (c *Client) SearchGroups(ctx context.Context, sq opensearch.SearchQuery) (*opensearch.SearchResult, error) {
	q := url.Values{}
	if sq.Text != "" {
		q.Set("q", sq.Text)
	}
	if sq.NetworkID != "" {
		q.Set("network_id", sq.NetworkID)
	}
	if sq.TermID != "" {
		q.Set("term_id", sq.TermID)
	}
	if sq.From > 0 {
		q.Set("from", strconv.Itoa(sq.From))
	}
	if sq.Size > 0 {
		q.Set("size", strconv.Itoa(sq.Size))
	}
	var res opensearch.SearchResult
	if err := c.get(ctx, withQuery("/api/v1/species-groups", q), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Ready returns nil when /readyz reports every dependency healthy.
func (c *Client) Ready(ctx context.Context) error {
	return c.get(ctx, "/readyz", nil)
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}
