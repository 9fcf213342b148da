package generalization

import (
	"context"
	"sort"
	"time"

	"github.com/turtacn/MetaNet-Generalizer/internal/config"
	"github.com/turtacn/MetaNet-Generalizer/internal/domain/cluster"
	"github.com/turtacn/MetaNet-Generalizer/internal/domain/network"
	"github.com/turtacn/MetaNet-Generalizer/internal/domain/ontology"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MetaNet-Generalizer/pkg/errors"
)

// Phase names reported to the Observer.
const (
	PhaseCover         = "cover"
	PhaseMaximize      = "maximize"
	PhaseStoichiometry = "stoichiometry"
	PhaseFinalize      = "finalize"
)

// Observer receives engine progress. Calls come from the orchestrating
// goroutine only.
type Observer interface {
	PhaseCompleted(phase string, elapsed time.Duration)
	ClustersSplit(phase string, clusters int)
}

type nopObserver struct{}

func (nopObserver) PhaseCompleted(string, time.Duration) {}
func (nopObserver) ClustersSplit(string, int)            {}

// Engine generalizes networks against an ontology.
type Engine struct {
	cfg      config.EngineConfig
	logger   logging.Logger
	observer Observer
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithObserver sets the progress observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// NewEngine creates an engine from its configuration section.
func NewEngine(cfg config.EngineConfig, opts ...Option) *Engine {
	e := &Engine{cfg: cfg, logger: logging.NewNopLogger(), observer: nopObserver{}}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.Named("generalization")
	return e
}

// env is the read-mostly state shared by the phases of one run.
type env struct {
	net          *network.Network
	onto         *ontology.Ontology
	speciesTerms map[string]string
	ubiquitous   map[string]bool
	ignoredUb    map[string]bool
	ignore       map[string]bool
	infer        bool
	workers      int
	ceiling      int
}

func (e *env) keyComputer(speciesClusters map[string]cluster.Path) *KeyComputer {
	return NewKeyComputer(e.net, speciesClusters, e.speciesTerms, e.ubiquitous, e.ignoredUb)
}

// speciesClusters projects term clusters onto species. Annotated species
// follow their term; unmapped species follow their own entry when
// withUnmapped is set.
func (e *env) speciesClusters(terms cluster.Map, withUnmapped bool) map[string]cluster.Path {
	out := make(map[string]cluster.Path, len(e.net.Species))
	for _, s := range e.net.Species {
		if t, ok := e.speciesTerms[s.ID]; ok {
			if p, ok := terms[cluster.TermID(t)]; ok {
				out[s.ID] = p
			} else {
				out[s.ID] = cluster.Singleton(cluster.TermID(t))
			}
			continue
		}
		if !withUnmapped {
			continue
		}
		if p, ok := terms[cluster.SpeciesID(s.ID)]; ok {
			out[s.ID] = p
		}
	}
	return out
}

// conflictSets returns, per non-ignored reaction, the identifiers it uses
// when there are at least two.
func (e *env) conflictSets() []cluster.Set {
	var out []cluster.Set
	for i := range e.net.Reactions {
		r := &e.net.Reactions[i]
		if e.ignore[r.ID] {
			continue
		}
		set := make(cluster.Set)
		for _, s := range r.SpeciesIDs() {
			set.Add(identifierOf(e.speciesTerms, s))
		}
		if len(set) > 1 {
			out = append(out, set)
		}
	}
	return out
}

type run struct {
	*env
	engine     *Engine
	logger     logging.Logger
	terms      cluster.Map
	unmapped   []string
	ub         Ubiquity
	iterations int
}

// Generalize clusters the species and reactions of net. onto is pruned and
// extended in place; pass a clone when it is shared.
func (e *Engine) Generalize(ctx context.Context, net *network.Network, onto *ontology.Ontology) (*Result, error) {
	if net == nil || len(net.Reactions) == 0 {
		return nil, errors.New(errors.ErrCodeEmptyNetwork, "network has no reactions")
	}
	if onto == nil || onto.Len() == 0 {
		return nil, errors.New(errors.ErrCodeOntologyEmpty, "ontology has no terms")
	}
	if err := net.Validate(); err != nil {
		return nil, err
	}
	started := time.Now()
	// Lookups from the phase workers read the index concurrently.
	net.Reindex()

	ignore := make(map[string]bool)
	for _, id := range e.cfg.ReactionsToIgnore {
		ignore[id] = true
	}
	if e.cfg.IgnoreBiomass {
		for _, id := range net.BiomassReactionIDs() {
			ignore[id] = true
		}
	}
	if len(e.cfg.EquivalenceRelationships) > 0 {
		onto.SetEquivalenceTypes(e.cfg.EquivalenceRelationships...)
	}

	speciesTerms := net.SpeciesTermMap()
	ub := ResolveUbiquity(net, onto, e.cfg.UbiquitousTermIDs, e.cfg.UbiquitousSpeciesIDs, e.cfg.IgnoredUbiquitousTermIDs)

	distinct := make(map[string]bool)
	for _, t := range speciesTerms {
		distinct[t] = true
	}
	termIDs := make([]string, 0, len(distinct))
	for t := range distinct {
		termIDs = append(termIDs, t)
	}
	sort.Strings(termIDs)
	if e.cfg.MinOntologyDepth > 0 {
		removed := onto.Filter(termIDs, e.cfg.MinOntologyDepth)
		e.logger.Debug("ontology filtered", logging.Int("removed", removed), logging.Int("remaining", onto.Len()))
	}

	r := &run{
		env: &env{
			net:          net,
			onto:         onto,
			speciesTerms: speciesTerms,
			ubiquitous:   ub.TermIDs,
			ignoredUb:    ub.Ignored,
			ignore:       ignore,
			infer:        e.cfg.InferUnmapped,
			workers:      e.cfg.Workers,
			ceiling:      e.cfg.ConflictCeiling,
		},
		engine:   e,
		logger:   e.logger.With(logging.String("network", net.ID)),
		unmapped: net.UnmappedSpecies(),
		ub:       ub,
	}
	r.logger.Info("generalization started",
		logging.Int("species", len(net.Species)),
		logging.Int("reactions", len(net.Reactions)),
		logging.Int("unmapped", len(r.unmapped)),
		logging.Int("ubiquitous_terms", len(ub.TermIDs)),
		logging.Int("ignored_reactions", len(ignore)))

	var specific []cluster.Identifier
	for _, t := range termIDs {
		if !ub.TermIDs[t] {
			specific = append(specific, cluster.TermID(t))
		}
	}
	r.coverInitial(specific)

	if err := r.maximizationLoop(ctx); err != nil {
		return nil, err
	}
	if err := r.fixStoichiometry(ctx); err != nil {
		return nil, err
	}
	if err := r.maximizationLoop(ctx); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, cancelled(err)
	}
	r.suggest("final")

	res := r.finalize()
	res.Stats.Iterations = r.iterations
	res.Stats.Elapsed = time.Since(started)
	r.logger.Info("generalization finished",
		logging.Int("species_clusters", res.Stats.SpeciesClusters),
		logging.Int("reaction_clusters", res.Stats.ReactionClusters),
		logging.Int("iterations", r.iterations),
		logging.Duration("elapsed", res.Stats.Elapsed))
	return res, nil
}

func cancelled(err error) error {
	return errors.Wrap(err, errors.ErrCodeRunCancelled, "generalization cancelled")
}

func (r *run) coverInitial(ids []cluster.Identifier) {
	start := time.Now()
	r.terms = r.cover(ids, nil)
	var heads []string
	seen := make(map[string]bool)
	for _, g := range r.terms.Groups() {
		if h, ok := g.Path.Head(); ok && h.Kind == cluster.SegmentTerm && !seen[h.ID] {
			seen[h.ID] = true
			heads = append(heads, h.ID)
		}
	}
	removed := r.onto.Trim(heads)
	r.logger.Info("initial cover done",
		logging.Int("terms", len(ids)),
		logging.Int("roots", len(heads)),
		logging.Int("trimmed", removed))
	r.suggest("cover")
	r.engine.observer.PhaseCompleted(PhaseCover, time.Since(start))
}

// suggest places unmapped species that are not clustered yet into the
// clusters inference finds for them. Placed species join the term map as
// species identifiers and follow their cluster through later phases.
func (r *run) suggest(stage string) {
	if !r.infer || len(r.unmapped) == 0 {
		return
	}
	var pending []string
	for _, s := range r.unmapped {
		if _, ok := r.terms[cluster.SpeciesID(s)]; !ok {
			pending = append(pending, s)
		}
	}
	if len(pending) == 0 {
		return
	}
	found := r.newInferrer(r.speciesClusters(r.terms, true), pending).run()
	for s, p := range found {
		r.terms[cluster.SpeciesID(s)] = p
	}
	r.logger.Info("unmapped species inferred",
		logging.String("stage", stage),
		logging.Int("pending", len(pending)),
		logging.Int("placed", len(found)))
}

func (r *run) maximizationLoop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return cancelled(err)
		}
		r.iterations++
		if err := r.maximize(ctx); err != nil {
			return err
		}
		if !r.reCover() {
			return nil
		}
	}
}

func multiMember(groups []cluster.Group) []cluster.Group {
	out := groups[:0]
	for _, g := range groups {
		if len(g.Members) > 1 {
			out = append(out, g)
		}
	}
	return out
}

func (r *run) maximize(ctx context.Context) error {
	start := time.Now()
	kc := r.keyComputer(r.speciesClusters(r.terms, true))
	reactionClusters := BuildKeyIndex(r.net, kc, r.ignore).ReactionClusters()
	m := NewMaximizer(r.net, kc, reactionClusters, r.speciesTerms, r.ignore)

	tasks := multiMember(r.terms.Groups())
	moves, err := fanOut(ctx, r.workers, tasks, func(_ context.Context, g cluster.Group) ([]cluster.Assignment, error) {
		out := m.Maximize(g.Path, g.Members)
		if len(out) > 0 {
			r.logger.Debug("cluster split by neighbourhood",
				logging.Stringer("cluster", g.Path), logging.Int("moves", len(out)))
		}
		return out, nil
	})
	if err != nil {
		return cancelled(err)
	}
	r.terms.Apply(moves)
	split := countSplit(moves)
	r.logger.Info("maximization pass done",
		logging.Int("iteration", r.iterations),
		logging.Int("clusters", len(tasks)),
		logging.Int("moves", len(moves)))
	r.engine.observer.ClustersSplit(PhaseMaximize, split)
	r.engine.observer.PhaseCompleted(PhaseMaximize, time.Since(start))
	return nil
}

// countSplit counts the distinct target clusters of moves.
func countSplit(moves []cluster.Assignment) int {
	seen := make(map[string]bool)
	for _, m := range moves {
		if m.Path != nil {
			seen[m.Path.Key()] = true
		}
	}
	return len(seen)
}

func (r *run) realTerms(members []cluster.Identifier) []string {
	var out []string
	for _, id := range members {
		if id.IsTerm() && r.onto.Has(id.Value) {
			out = append(out, id.Value)
		}
	}
	return out
}

// updateOntology removes every ancestor that is the least common ancestor
// of two or more clusters, together with its own ancestors and
// equivalents, so that those clusters can no longer be covered alike.
func (r *run) updateOntology() bool {
	counts := make(map[string]int)
	for _, g := range multiMember(r.terms.Groups()) {
		values := r.realTerms(g.Members)
		if len(values) == 0 {
			continue
		}
		for _, a := range r.onto.CommonAncestors(values, 0) {
			counts[a]++
		}
	}
	var shared []string
	for a, n := range counts {
		if n > 1 {
			shared = append(shared, a)
		}
	}
	sort.Strings(shared)

	removed := 0
	for _, a := range shared {
		if !r.onto.Has(a) {
			continue
		}
		for _, it := range r.onto.GeneralizedAncestors(a) {
			if r.onto.RemoveTerm(it, true) {
				removed++
			}
		}
		for _, it := range r.onto.Equivalents(a) {
			if r.onto.RemoveTerm(it, true) {
				removed++
			}
		}
		if r.onto.RemoveTerm(a, true) {
			removed++
		}
	}
	if removed > 0 {
		r.logger.Debug("shared ancestors removed", logging.Strings("ancestors", shared), logging.Int("terms", removed))
	}
	return removed > 0
}

// reCover re-covers every cluster after the ontology shrank. Returns false
// when the ontology did not change.
func (r *run) reCover() bool {
	if !r.updateOntology() {
		return false
	}
	for _, g := range r.terms.Groups() {
		if len(g.Members) == 1 {
			delete(r.terms, g.Members[0])
			continue
		}
		covered := r.cover(g.Members, g.Path)
		for _, id := range g.Members {
			if p, ok := covered[id]; ok {
				r.terms[id] = p
			} else {
				delete(r.terms, id)
			}
		}
	}
	return true
}

type stoichiometryTask struct {
	group     cluster.Group
	real      cluster.Set
	others    []cluster.Identifier
	conflicts []cluster.Set
}

func (r *run) fixStoichiometry(ctx context.Context) error {
	start := time.Now()
	conflicts := r.conflictSets()
	var tasks []stoichiometryTask
	for _, g := range multiMember(r.terms.Groups()) {
		members := cluster.NewSet(g.Members...)
		seen := make(map[string]bool)
		var local []cluster.Set
		for _, c := range conflicts {
			x := members.Intersect(c)
			if len(x) <= 1 {
				continue
			}
			if k := x.Key(); !seen[k] {
				seen[k] = true
				local = append(local, x)
			}
		}
		if len(local) == 0 {
			continue
		}
		t := stoichiometryTask{group: g, real: make(cluster.Set), conflicts: local}
		for _, id := range g.Members {
			if id.IsTerm() && r.onto.Has(id.Value) {
				t.real.Add(id)
			} else {
				t.others = append(t.others, id)
			}
		}
		tasks = append(tasks, t)
	}

	resolver := NewResolver(r.onto, r.ceiling)
	moves, err := fanOut(ctx, r.workers, tasks, func(_ context.Context, t stoichiometryTask) ([]cluster.Assignment, error) {
		out := resolver.Resolve(t.group.Path, t.real, t.conflicts)
		r.logger.Debug("conflicting cluster resolved",
			logging.Stringer("cluster", t.group.Path),
			logging.Int("conflicts", len(t.conflicts)),
			logging.Int("moves", len(out)))
		return append(out, r.placeOthers(t, out)...), nil
	})
	if err != nil {
		return cancelled(err)
	}
	r.terms.Apply(moves)
	r.logger.Info("stoichiometry fix done",
		logging.Int("conflicts", len(conflicts)),
		logging.Int("clusters", len(tasks)),
		logging.Int("moves", len(moves)))
	r.engine.observer.ClustersSplit(PhaseStoichiometry, countSplit(moves))
	r.engine.observer.PhaseCompleted(PhaseStoichiometry, time.Since(start))
	return nil
}

// placeOthers keeps the members the ontology cannot place (unmapped
// species, pruned terms) only when inference finds them a cluster.
func (r *run) placeOthers(t stoichiometryTask, moves []cluster.Assignment) []cluster.Assignment {
	if len(t.others) == 0 {
		return nil
	}
	var found map[string]cluster.Path
	if r.infer {
		var species []string
		for _, id := range t.others {
			if id.IsSpecies() {
				species = append(species, id.Value)
			}
		}
		if len(species) > 0 {
			local := r.terms.Clone()
			local.Apply(moves)
			found = r.newInferrer(r.speciesClusters(local, false), species).run()
		}
	}
	out := make([]cluster.Assignment, 0, len(t.others))
	for _, id := range t.others {
		if p, ok := found[id.Value]; ok && id.IsSpecies() {
			out = append(out, cluster.Assignment{ID: id, Path: p})
			continue
		}
		out = append(out, cluster.Assignment{ID: id})
	}
	return out
}
