package generalization

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/MetaNet-Generalizer/internal/config"
	"github.com/turtacn/MetaNet-Generalizer/internal/domain/cluster"
	"github.com/turtacn/MetaNet-Generalizer/internal/domain/network"
	"github.com/turtacn/MetaNet-Generalizer/internal/domain/ontology"
	"github.com/turtacn/MetaNet-Generalizer/pkg/errors"
)

// neighbourhoodOntology: A and C sit under unrelated roots, B and D share
// chebi:800, E has its own root.
func neighbourhoodOntology() *ontology.Ontology {
	o := ontology.New()
	for _, root := range []struct{ id, name string }{
		{"chebi:800", "bd class"}, {"chebi:900", "a class"}, {"chebi:901", "c class"}, {"chebi:902", "e class"},
	} {
		o.AddTerm(&ontology.Term{ID: root.id, Name: root.name})
	}
	o.AddTerm(&ontology.Term{ID: "chebi:10", Name: "a", Parents: []string{"chebi:900"}})
	o.AddTerm(&ontology.Term{ID: "chebi:20", Name: "b", Parents: []string{"chebi:800"}})
	o.AddTerm(&ontology.Term{ID: "chebi:30", Name: "c", Parents: []string{"chebi:901"}})
	o.AddTerm(&ontology.Term{ID: "chebi:40", Name: "d", Parents: []string{"chebi:800"}})
	o.AddTerm(&ontology.Term{ID: "chebi:50", Name: "e", Parents: []string{"chebi:902"}})
	return o
}

func neighbourhoodNetwork(t *testing.T) *network.Network {
	terms := map[string]string{
		"A": "chebi:10", "B": "chebi:20", "C": "chebi:30", "D": "chebi:40", "E": "chebi:50", "W": water,
	}
	return buildNetwork(t, terms,
		network.Reaction{ID: "R1", Name: "a to b", Reactants: participants("A", "W"), Products: participants("B", "W")},
		network.Reaction{ID: "R2", Name: "c to d", Reactants: participants("C", "W"), Products: participants("D", "W")},
		network.Reaction{ID: "R3", Name: "b to e", Reactants: participants("B", "W"), Products: participants("E", "W")},
		network.Reaction{ID: "R4", Name: "d to e", Reactants: participants("D", "W"), Products: participants("E", "W")},
	)
}

// conflictOntology: chebi:1, chebi:2 and chebi:3 under chebi:100; X alone.
func conflictOntology() *ontology.Ontology {
	o := flatOntology("chebi:1", "chebi:2", "chebi:3")
	o.AddTerm(&ontology.Term{ID: "chebi:200", Name: "x"})
	return o
}

func conflictNetwork(t *testing.T) *network.Network {
	terms := map[string]string{"T1": "chebi:1", "T2": "chebi:2", "T3": "chebi:3", "X": "chebi:200"}
	return buildNetwork(t, terms,
		network.Reaction{ID: "R1", Reactants: participants("T1", "T2"), Products: participants("X")},
		network.Reaction{ID: "R2", Reactants: participants("T3", "T1"), Products: participants("X")},
	)
}

type recordingObserver struct {
	mu     sync.Mutex
	phases []string
}

func (o *recordingObserver) PhaseCompleted(phase string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.phases = append(o.phases, phase)
}

func (o *recordingObserver) ClustersSplit(string, int) {}

type EngineSuite struct {
	suite.Suite
	cfg config.EngineConfig
}

func (s *EngineSuite) SetupTest() {
	s.cfg = config.EngineConfig{Workers: 2}
}

func (s *EngineSuite) TestSharedNeighbourhoodKeepsPairTogether() {
	net := neighbourhoodNetwork(s.T())
	obs := &recordingObserver{}
	res, err := NewEngine(s.cfg, WithObserver(obs)).Generalize(context.Background(), net, neighbourhoodOntology())
	s.Require().NoError(err)

	s.True(res.SameSpeciesCluster("B", "D"))
	s.False(res.SameSpeciesCluster("A", "C"))
	s.Equal(SpeciesCluster{Compartment: "c", TermID: "chebi:800"}, res.Species["B"])
	s.NotContains(res.Species, "A")
	s.NotContains(res.Species, "C")

	s.True(res.SameReactionCluster("R3", "R4"))
	s.False(res.SameReactionCluster("R1", "R2"))
	s.Equal(1, res.Stats.GeneralizedReactions)
	s.Equal([]string{"W"}, res.UbiquitousSpecies)

	rep, ok := res.Representative("chebi:20")
	s.True(ok)
	s.Equal("chebi:800", rep)

	s.Equal([]string{PhaseCover, PhaseMaximize, PhaseStoichiometry, PhaseMaximize, PhaseFinalize}, obs.phases)
}

func (s *EngineSuite) TestConflictingTermsAreSeparated() {
	res, err := NewEngine(s.cfg).Generalize(context.Background(), conflictNetwork(s.T()), conflictOntology())
	s.Require().NoError(err)

	s.True(res.SameSpeciesCluster("T2", "T3"))
	s.False(res.SameSpeciesCluster("T1", "T2"))
	s.NotContains(res.Species, "T1")

	rep, ok := res.Representative("chebi:2")
	s.True(ok)
	s.Equal("chebi:100", rep)
	rep, ok = res.Representative("chebi:1")
	s.True(ok)
	s.Equal("chebi:1", rep)
	s.True(res.SameReactionCluster("R1", "R2"))
	s.Empty(res.UbiquitousSpecies)
}

func (s *EngineSuite) TestDeterministicAcrossWorkerCounts() {
	generalize := func(workers int) *Result {
		cfg := s.cfg
		cfg.Workers = workers
		res, err := NewEngine(cfg).Generalize(context.Background(), neighbourhoodNetwork(s.T()), neighbourhoodOntology())
		s.Require().NoError(err)
		res.Stats.Elapsed = 0
		return res
	}
	first := generalize(1)
	for i := 0; i < 5; i++ {
		s.Equal(first, generalize(8))
	}
}

func (s *EngineSuite) TestCancelledContext() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEngine(s.cfg).Generalize(ctx, neighbourhoodNetwork(s.T()), neighbourhoodOntology())
	s.Require().Error(err)
	s.True(errors.IsCode(err, errors.ErrCodeRunCancelled))
}

func (s *EngineSuite) TestRejectsEmptyInputs() {
	_, err := NewEngine(s.cfg).Generalize(context.Background(), &network.Network{}, neighbourhoodOntology())
	s.True(errors.IsCode(err, errors.ErrCodeEmptyNetwork))

	_, err = NewEngine(s.cfg).Generalize(context.Background(), neighbourhoodNetwork(s.T()), ontology.New())
	s.True(errors.IsCode(err, errors.ErrCodeOntologyEmpty))
}

func (s *EngineSuite) TestRejectsInvalidNetwork() {
	net := &network.Network{
		ID:           "dup",
		Compartments: []network.Compartment{{ID: "c"}},
		Species:      []network.Species{{ID: "A", Compartment: "c"}, {ID: "A", Compartment: "c"}},
		Reactions: []network.Reaction{
			{ID: "R1", Reactants: participants("A"), Products: participants("A")},
		},
	}
	_, err := NewEngine(s.cfg).Generalize(context.Background(), net, neighbourhoodOntology())
	s.Require().Error(err)
	s.True(errors.IsCode(err, errors.ErrCodeDuplicateElement))
}

// U has no term but reacts like A1 and A2 (same ubiquitous partner, same
// product), so inference can place it in their cluster.
func (s *EngineSuite) TestInferUnmappedSpecies() {
	generalize := func(infer bool) *Result {
		cfg := s.cfg
		cfg.InferUnmapped = infer
		net := buildNetwork(s.T(), map[string]string{"A1": "chebi:1", "A2": "chebi:2", "B": "chebi:3", "W": water},
			network.Reaction{ID: "r1", Reactants: participants("A1", "W"), Products: participants("B")},
			network.Reaction{ID: "r2", Reactants: participants("A2", "W"), Products: participants("B")},
			network.Reaction{ID: "r3", Reactants: participants("U", "W"), Products: participants("B")},
		)
		res, err := NewEngine(cfg).Generalize(context.Background(), net, flatOntology("chebi:1", "chebi:2", "chebi:3"))
		s.Require().NoError(err)
		return res
	}

	s.Run("disabled", func() {
		res := generalize(false)
		s.True(res.SameSpeciesCluster("A1", "A2"))
		s.NotContains(res.Species, "U")
		s.False(res.SameReactionCluster("r1", "r3"))
	})

	s.Run("enabled", func() {
		res := generalize(true)
		s.Require().Contains(res.Species, "U")
		s.Equal(res.Species["A1"], res.Species["U"])
		s.True(res.SameSpeciesCluster("A2", "U"))
		s.True(res.SameReactionCluster("r1", "r3"))
		s.True(res.SameReactionCluster("r2", "r3"))
		s.Contains(res.Terms, TermAssignment{ID: "U", Species: true, Representative: res.Species["A1"].TermID})
	})
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func TestFinalize_SynthesizesPlaceholder(t *testing.T) {
	// both clusters share chebi:100, so the second needs a synthesized
	// representative
	o := ontology.New()
	o.AddTerm(&ontology.Term{ID: "chebi:100", Name: "root"})
	o.AddTerm(&ontology.Term{ID: "chebi:1", Parents: []string{"chebi:100"}})
	o.AddTerm(&ontology.Term{ID: "chebi:2", Parents: []string{"chebi:100"}})
	o.AddTerm(&ontology.Term{ID: "chebi:3", Parents: []string{"chebi:100"}})
	o.AddTerm(&ontology.Term{ID: "chebi:4", Parents: []string{"chebi:100"}})

	n := buildNetwork(t, map[string]string{"S1": "chebi:1", "S2": "chebi:2", "S3": "chebi:3", "S4": "chebi:4"},
		network.Reaction{ID: "r1", Reactants: participants("S1"), Products: participants("S3")},
		network.Reaction{ID: "r2", Reactants: participants("S2"), Products: participants("S4")},
	)
	r := &run{
		env: &env{
			net:          n,
			onto:         o,
			speciesTerms: n.SpeciesTermMap(),
			ubiquitous:   map[string]bool{},
			ignoredUb:    map[string]bool{},
			ignore:       map[string]bool{},
		},
	}
	r.engine = NewEngine(config.EngineConfig{})
	r.logger = r.engine.logger
	root := cluster.NewPath(cluster.TermSegment("chebi:100"))
	r.terms = cluster.Map{
		cluster.TermID("chebi:1"): root.Child(0),
		cluster.TermID("chebi:2"): root.Child(0),
		cluster.TermID("chebi:3"): root.Child(1),
		cluster.TermID("chebi:4"): root.Child(1),
	}

	res := r.finalize()

	require.Len(t, res.Placeholders, 1)
	assert.Equal(t, Placeholder{ID: "chebi:unknown_0", Name: "root (another)"}, res.Placeholders[0])
	assert.True(t, o.Has("chebi:unknown_0"))
	assert.True(t, res.SameSpeciesCluster("S1", "S2"))
	assert.True(t, res.SameSpeciesCluster("S3", "S4"))
	assert.False(t, res.SameSpeciesCluster("S1", "S3"))
	assert.Equal(t, "chebi:100", res.Species["S1"].TermID)
	assert.Equal(t, "chebi:unknown_0", res.Species["S3"].TermID)
	assert.True(t, res.SameReactionCluster("r1", "r2"))
}
