// Package generalize is the application service behind every entry point:
// it runs the engine for a network and fans the outcome out to the run store,
// result cache, artifact archive, search index, graph export and event bus.
package generalize

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/turtacn/MetaNet-Generalizer/internal/config"
	"github.com/turtacn/MetaNet-Generalizer/internal/domain/network"
	"github.com/turtacn/MetaNet-Generalizer/internal/domain/ontology"
	"github.com/turtacn/MetaNet-Generalizer/internal/domain/run"
	"github.com/turtacn/MetaNet-Generalizer/internal/generalization"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/database/neo4j"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/database/redis"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/search/opensearch"
	"github.com/turtacn/MetaNet-Generalizer/pkg/errors"
)

// Service defines the generalization use cases.
type Service interface {
	Generalize(ctx context.Context, input *GeneralizeInput) (*Output, error)
	GetRun(ctx context.Context, id string) (*run.Run, error)
	ListRuns(ctx context.Context, input *ListInput) (*ListResult, error)
	SearchGroups(ctx context.Context, q opensearch.SearchQuery) (*opensearch.SearchResult, error)
}

// GeneralizeInput contains input for one generalization.
type GeneralizeInput struct {
	Network *network.Network
	// Persist stores the run; without a run store it is ignored.
	Persist bool
	// Refresh bypasses the result cache.
	Refresh bool
}

// Output is a finished run with the generalized view of its network.
type Output struct {
	Run  *run.Run             `json:"run" yaml:"run"`
	View *generalization.View `json:"view" yaml:"view"`
}

// ListInput contains input for listing runs.
type ListInput struct {
	NetworkID string
	Limit     int
	Offset    int
}

// ListResult represents a page of runs.
type ListResult struct {
	Runs   []*run.Run `json:"runs"`
	Total  int64      `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// Engine runs the generalization algorithm.
type Engine interface {
	Generalize(ctx context.Context, net *network.Network, onto *ontology.Ontology) (*generalization.Result, error)
}

// ResultCache de-duplicates runs over identical input.
type ResultCache interface {
	GetOrCompute(ctx context.Context, digest string, compute func(context.Context) (*generalization.Result, error)) (*generalization.Result, bool, error)
}

// ArtifactStore archives result documents.
type ArtifactStore interface {
	Put(ctx context.Context, runID string, res *generalization.Result) (string, error)
	Get(ctx context.Context, key string) (*generalization.Result, error)
}

// GroupIndex indexes and searches species groups.
type GroupIndex interface {
	IndexView(ctx context.Context, runID string, view *generalization.View) (int, error)
	Search(ctx context.Context, q opensearch.SearchQuery) (*opensearch.SearchResult, error)
}

// GraphExporter writes the generalized graph. Exports of an unchanged
// digest may be skipped.
type GraphExporter interface {
	Export(ctx context.Context, runID, digest string, view *generalization.View) (neo4j.ExportSummary, error)
}

// EventPublisher announces finished runs.
type EventPublisher interface {
	PublishCompleted(ctx context.Context, evt kafka.GeneralizationCompleted) error
}

// Option wires an optional collaborator.
type Option func(*serviceImpl)

func WithRunStore(r run.Repository) Option        { return func(s *serviceImpl) { s.runs = r } }
func WithCache(c ResultCache) Option              { return func(s *serviceImpl) { s.cache = c } }
func WithLeases(l redis.RunLeases) Option        { return func(s *serviceImpl) { s.leases = l } }
func WithArtifacts(a ArtifactStore) Option        { return func(s *serviceImpl) { s.artifacts = a } }
func WithGroupIndex(i GroupIndex) Option          { return func(s *serviceImpl) { s.index = i } }
func WithGraphExporter(e GraphExporter) Option    { return func(s *serviceImpl) { s.exporter = e } }
func WithEvents(p EventPublisher) Option          { return func(s *serviceImpl) { s.events = p } }
func WithMetrics(m *prometheus.AppMetrics) Option { return func(s *serviceImpl) { s.metrics = m } }
func WithOntologyHeader(h ontology.Header) Option { return func(s *serviceImpl) { s.ontoHeader = h } }
func withClock(now func() time.Time) Option       { return func(s *serviceImpl) { s.now = now } }

// serviceImpl implements the Service interface.
type serviceImpl struct {
	engine     Engine
	onto       *ontology.Ontology
	ontoHeader ontology.Header
	cfg        config.EngineConfig
	logger     logging.Logger

	runs      run.Repository
	cache     ResultCache
	leases    redis.RunLeases
	artifacts ArtifactStore
	index     GroupIndex
	exporter  GraphExporter
	events    EventPublisher
	metrics   *prometheus.AppMetrics
	now       func() time.Time
}

// NewService creates the service. onto is never mutated; every run works on
// a clone.
func NewService(engine Engine, onto *ontology.Ontology, cfg config.EngineConfig, logger logging.Logger, opts ...Option) (Service, error) {
	if engine == nil {
		return nil, errors.New(errors.ErrCodeInternal, "engine is required")
	}
	if onto == nil || onto.Len() == 0 {
		return nil, errors.New(errors.ErrCodeOntologyEmpty, "ontology has no terms")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	s := &serviceImpl{
		engine: engine,
		onto:   onto,
		cfg:    cfg,
		logger: logger.Named("generalize"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Digest identifies the input of a run: the network content, the engine
// parameters that change results and the ontology release.
func Digest(net *network.Network, cfg config.EngineConfig, hdr ontology.Header, terms int) (string, error) {
	netDigest, err := net.Digest()
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeSerialization, "failed to digest network")
	}
	// Workers and paths do not change results.
	cfg.Workers = 0
	cfg.OntologyPath = ""
	params, err := json.Marshal(cfg)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeSerialization, "failed to digest engine config")
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s\n%s\n%s/%s/%d\n", netDigest, params, hdr.Ontology, hdr.DataVersion, terms)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (s *serviceImpl) Generalize(ctx context.Context, input *GeneralizeInput) (*Output, error) {
	if input == nil || input.Network == nil {
		return nil, errors.New(errors.ErrCodeBadRequest, "network is required")
	}
	started := s.now()

	digest, err := Digest(input.Network, s.cfg, s.ontoHeader, s.onto.Len())
	if err != nil {
		return nil, err
	}

	// Preprocessing edits the network, so it works on a copy.
	work := input.Network.Clone()
	isa := work.RemoveIsAReactions()
	species, compartments := work.RemoveUnusedElements()

	r := run.New(input.Network.ID, digest, started)
	log := s.logger.With(logging.String("run_id", r.ID), logging.String("network_id", r.NetworkID))
	log.Info("Generalization requested",
		logging.String("digest", digest),
		logging.Int("isa_reactions_removed", len(isa)),
		logging.Int("species_removed", species),
		logging.Int("compartments_removed", compartments))

	persist := input.Persist && s.runs != nil
	if persist {
		if err := s.runs.Save(ctx, r); err != nil {
			return nil, err
		}
	}

	res, cached, err := s.compute(ctx, digest, work, input.Refresh)
	if err != nil {
		r.Fail(err, s.now())
		s.recordRun(r, err)
		if persist {
			if saveErr := s.runs.Save(context.WithoutCancel(ctx), r); saveErr != nil {
				log.Error("Failed to record failed run", logging.Err(saveErr))
			}
		}
		log.Warn("Generalization failed", logging.Err(err))
		return nil, err
	}

	source := run.SourceEngine
	if cached {
		source = run.SourceCache
	}
	view := generalization.BuildView(work, s.onto, res)

	if persist && s.artifacts != nil {
		key, err := s.artifacts.Put(ctx, r.ID, res)
		if err != nil {
			s.sideEffectFailed(log, "artifacts", err)
		} else {
			r.ArtifactKey = key
		}
	}

	r.Succeed(res, source, s.now())
	if persist {
		if err := s.runs.Save(ctx, r); err != nil {
			s.recordRun(r, err)
			return nil, err
		}
	}
	s.recordRun(r, nil)

	if persist {
		s.fanOut(ctx, log, r, view)
	}

	log.Info("Generalization finished",
		logging.String("source", string(source)),
		logging.Int("species_clusters", res.Stats.SpeciesClusters),
		logging.Int("reaction_clusters", res.Stats.ReactionClusters),
		logging.Duration("elapsed", r.Duration()))
	return &Output{Run: r, View: view}, nil
}

// compute serializes identical work across processes with a digest lease and
// within the process through the cache.
func (s *serviceImpl) compute(ctx context.Context, digest string, net *network.Network, refresh bool) (*generalization.Result, bool, error) {
	exec := func(ctx context.Context) (*generalization.Result, error) {
		return s.engine.Generalize(ctx, net, s.onto.Clone())
	}
	if s.cache == nil || refresh {
		res, err := exec(ctx)
		return res, false, err
	}

	if s.leases != nil {
		lease, err := s.leases.Acquire(ctx, digest)
		switch {
		case err == nil:
			defer func() {
				if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
					s.logger.Warn("Failed to release run lease", logging.String("digest", digest), logging.Err(err))
				}
			}()
		case errors.IsCode(err, errors.ErrCodeCacheError):
			s.logger.Warn("Run lease unavailable, computing unleased", logging.Err(err))
		default:
			return nil, false, err
		}
	}

	return s.cache.GetOrCompute(ctx, digest, exec)
}

// fanOut runs the best-effort side effects of a succeeded run. Their
// failures are logged and counted but do not fail the run.
func (s *serviceImpl) fanOut(ctx context.Context, log logging.Logger, r *run.Run, view *generalization.View) {
	if s.index != nil {
		if n, err := s.index.IndexView(ctx, r.ID, view); err != nil {
			s.sideEffectFailed(log, "opensearch", err)
		} else {
			log.Debug("Species groups indexed", logging.Int("documents", n))
		}
	}
	if s.exporter != nil {
		if sum, err := s.exporter.Export(ctx, r.ID, r.Digest, view); err != nil {
			s.sideEffectFailed(log, "neo4j", err)
		} else {
			log.Debug("Graph exported",
				logging.Bool("unchanged", sum.Unchanged),
				logging.Int("species_nodes", sum.SpeciesNodes),
				logging.Int("reaction_nodes", sum.ReactionNodes),
				logging.Int("edges", sum.Edges))
		}
	}
	if s.events != nil {
		evt := kafka.GeneralizationCompleted{
			RunID:       r.ID,
			NetworkID:   r.NetworkID,
			Digest:      r.Digest,
			Source:      string(r.Source),
			Stats:       r.Stats,
			ArtifactKey: r.ArtifactKey,
		}
		if r.FinishedAt != nil {
			evt.FinishedAt = *r.FinishedAt
		}
		if err := s.events.PublishCompleted(ctx, evt); err != nil {
			s.sideEffectFailed(log, "kafka", err)
		}
	}
}

func (s *serviceImpl) sideEffectFailed(log logging.Logger, component string, err error) {
	log.Warn("Run side effect failed", logging.String("component", component), logging.Err(err))
	if s.metrics != nil {
		prometheus.RecordError(s.metrics, component, string(errors.GetCode(err)))
	}
}

func (s *serviceImpl) recordRun(r *run.Run, err error) {
	if s.metrics == nil {
		return
	}
	prometheus.RecordRun(s.metrics, prometheus.RunSummary{
		NetworkID:            r.NetworkID,
		Source:               string(r.Source),
		SpeciesClusters:      r.Stats.SpeciesClusters,
		ReactionClusters:     r.Stats.ReactionClusters,
		GeneralizedReactions: r.Stats.GeneralizedReactions,
	}, r.Duration(), err)
}

// GetRun loads a run, filling the result from the artifact archive when the
// row does not carry it.
func (s *serviceImpl) GetRun(ctx context.Context, id string) (*run.Run, error) {
	if s.runs == nil {
		return nil, errors.New(errors.ErrCodeFeatureDisabled, "run store is not configured")
	}
	r, err := s.runs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Result == nil && r.ArtifactKey != "" && s.artifacts != nil {
		res, err := s.artifacts.Get(ctx, r.ArtifactKey)
		if err != nil {
			s.logger.Warn("Failed to load archived result", logging.String("run_id", id), logging.Err(err))
		} else {
			r.Result = res
		}
	}
	return r, nil
}

func (s *serviceImpl) ListRuns(ctx context.Context, input *ListInput) (*ListResult, error) {
	if s.runs == nil {
		return nil, errors.New(errors.ErrCodeFeatureDisabled, "run store is not configured")
	}
	if input == nil {
		input = &ListInput{}
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset := input.Offset
	if offset < 0 {
		offset = 0
	}

	runs, total, err := s.runs.List(ctx, input.NetworkID, limit, offset)
	if err != nil {
		return nil, err
	}
	// Listings stay small; results are fetched per run.
	for _, r := range runs {
		r.Result = nil
	}
	return &ListResult{Runs: runs, Total: total, Limit: limit, Offset: offset}, nil
}

func (s *serviceImpl) SearchGroups(ctx context.Context, q opensearch.SearchQuery) (*opensearch.SearchResult, error) {
	if s.index == nil {
		return nil, errors.New(errors.ErrCodeFeatureDisabled, "species group search is not configured")
	}
	return s.index.Search(ctx, q)
}
