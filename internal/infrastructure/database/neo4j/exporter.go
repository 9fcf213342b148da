package neo4j

import (
	"context"
	"time"

	"github.com/turtacn/MetaNet-Generalizer/internal/domain/network"
	"github.com/turtacn/MetaNet-Generalizer/internal/generalization"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MetaNet-Generalizer/pkg/errors"
)

// store is the part of Driver the exporter needs.
type store interface {
	ExecuteRead(ctx context.Context, work TxWork) (any, error)
	ExecuteWrite(ctx context.Context, work TxWork) (any, error)
}

// Graph layout written per network:
//
//	(:Network {id})-[:HAS_SPECIES]->(:GeneralizedSpecies {network_id, id})
//	(:Network {id})-[:HAS_REACTION]->(:GeneralizedReaction {network_id, id})
//	(:GeneralizedReaction)-[:CONSUMES {stoichiometry}]->(:GeneralizedSpecies)
//	(:GeneralizedReaction)-[:PRODUCES {stoichiometry}]->(:GeneralizedSpecies)
//
// Participants that are not group ids become GeneralizedSpecies nodes with
// group = false.
const (
	cypherExportedDigest = `
		MATCH (n:Network {id: $network_id})
		RETURN n.digest AS digest`

	cypherClearNetwork = `
		MATCH (n:Network {id: $network_id})
		OPTIONAL MATCH (n)-[:HAS_SPECIES|HAS_REACTION]->(x)
		DETACH DELETE x`

	cypherMergeNetwork = `
		MERGE (n:Network {id: $network_id})
		SET n.run_id = $run_id, n.digest = $digest, n.exported_at = $exported_at`

	cypherMergeSpecies = `
		MATCH (n:Network {id: $network_id})
		UNWIND $species AS s
		MERGE (g:GeneralizedSpecies {network_id: $network_id, id: s.id})
		SET g.name = s.name, g.term_id = s.term_id, g.compartment = s.compartment,
		    g.members = s.members, g.group = s.group, g.ubiquitous = s.ubiquitous
		MERGE (n)-[:HAS_SPECIES]->(g)`

	cypherMergeReactions = `
		MATCH (n:Network {id: $network_id})
		UNWIND $reactions AS r
		MERGE (g:GeneralizedReaction {network_id: $network_id, id: r.id})
		SET g.name = r.name, g.reversible = r.reversible, g.members = r.members
		MERGE (n)-[:HAS_REACTION]->(g)`

	cypherMergeConsumes = `
		UNWIND $edges AS e
		MATCH (r:GeneralizedReaction {network_id: $network_id, id: e.reaction})
		MATCH (s:GeneralizedSpecies {network_id: $network_id, id: e.species})
		MERGE (r)-[c:CONSUMES]->(s)
		SET c.stoichiometry = e.stoichiometry`

	cypherMergeProduces = `
		UNWIND $edges AS e
		MATCH (r:GeneralizedReaction {network_id: $network_id, id: e.reaction})
		MATCH (s:GeneralizedSpecies {network_id: $network_id, id: e.species})
		MERGE (r)-[p:PRODUCES]->(s)
		SET p.stoichiometry = e.stoichiometry`
)

// ExportSummary counts what an export wrote. Unchanged is set when the
// graph already held a result with the same digest and nothing was written.
type ExportSummary struct {
	SpeciesNodes  int
	ReactionNodes int
	Edges         int
	Unchanged     bool
}

// GraphExporter writes a generalized network into Neo4j, replacing any
// earlier export of the same network.
type GraphExporter struct {
	db     store
	logger logging.Logger
	now    func() time.Time
}

func NewGraphExporter(d *Driver, log logging.Logger) *GraphExporter {
	return newGraphExporter(d, log)
}

func newGraphExporter(db store, log logging.Logger) *GraphExporter {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &GraphExporter{db: db, logger: log.Named("graph_exporter"), now: time.Now}
}

// ExportedDigest returns the input digest of the result currently exported
// for networkID, or "" when the network was never exported.
func (e *GraphExporter) ExportedDigest(ctx context.Context, networkID string) (string, error) {
	out, err := e.db.ExecuteRead(ctx, func(tx Transaction) (any, error) {
		res, err := tx.Run(ctx, cypherExportedDigest, map[string]any{"network_id": networkID})
		if err != nil {
			return nil, err
		}
		if !res.Next(ctx) {
			return "", res.Err()
		}
		digest, _ := res.Record().Get("digest")
		s, _ := digest.(string)
		return s, nil
	})
	if err != nil {
		return "", err
	}
	s, _ := out.(string)
	return s, nil
}

// Export writes view for the run. A network whose exported digest equals
// digest is left as is.
func (e *GraphExporter) Export(ctx context.Context, runID, digest string, view *generalization.View) (ExportSummary, error) {
	if view == nil || view.NetworkID == "" {
		return ExportSummary{}, errors.New(errors.ErrCodeValidation, "view has no network id")
	}
	if digest != "" {
		current, err := e.ExportedDigest(ctx, view.NetworkID)
		if err != nil {
			return ExportSummary{}, errors.Wrap(err, errors.ErrCodeExportFailed, "failed to read exported graph")
		}
		if current == digest {
			e.logger.Debug("Exported graph is up to date",
				logging.String("network_id", view.NetworkID), logging.String("digest", digest))
			return ExportSummary{Unchanged: true}, nil
		}
	}

	species, reactions, consumes, produces := graphParams(view)
	summary := ExportSummary{
		SpeciesNodes:  len(species),
		ReactionNodes: len(reactions),
		Edges:         len(consumes) + len(produces),
	}

	base := map[string]any{"network_id": view.NetworkID}
	statements := []struct {
		cypher string
		params map[string]any
	}{
		{cypherClearNetwork, base},
		{cypherMergeNetwork, with(base, "run_id", runID, "digest", digest, "exported_at", e.now().UTC().Format(time.RFC3339))},
		{cypherMergeSpecies, with(base, "species", species)},
		{cypherMergeReactions, with(base, "reactions", reactions)},
		{cypherMergeConsumes, with(base, "edges", consumes)},
		{cypherMergeProduces, with(base, "edges", produces)},
	}

	_, err := e.db.ExecuteWrite(ctx, func(tx Transaction) (any, error) {
		for _, st := range statements {
			res, err := tx.Run(ctx, st.cypher, st.params)
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return ExportSummary{}, errors.Wrap(err, errors.ErrCodeExportFailed, "failed to export generalized network")
	}

	e.logger.Info("Exported generalized network",
		logging.String("network_id", view.NetworkID),
		logging.String("run_id", runID),
		logging.Int("species_nodes", summary.SpeciesNodes),
		logging.Int("reaction_nodes", summary.ReactionNodes),
		logging.Int("edges", summary.Edges),
	)
	return summary, nil
}

// graphParams flattens the view into UNWIND parameter lists. Participants
// that are not groups get their own singleton species node.
func graphParams(view *generalization.View) (species, reactions, consumes, produces []map[string]any) {
	known := make(map[string]bool)
	addGroup := func(g generalization.SpeciesGroup, ubiquitous bool) {
		known[g.ID] = true
		species = append(species, map[string]any{
			"id":          g.ID,
			"name":        g.Name,
			"term_id":     g.TermID,
			"compartment": g.Compartment,
			"members":     g.Members,
			"group":       true,
			"ubiquitous":  ubiquitous,
		})
	}
	for _, g := range view.SpeciesGroups {
		addGroup(g, false)
	}
	if view.Ubiquitous != nil {
		addGroup(*view.Ubiquitous, true)
	}

	edge := func(reaction string, p network.Participant) map[string]any {
		if !known[p.SpeciesID] {
			known[p.SpeciesID] = true
			species = append(species, map[string]any{
				"id":          p.SpeciesID,
				"name":        p.SpeciesID,
				"term_id":     "",
				"compartment": "",
				"members":     []string{p.SpeciesID},
				"group":       false,
				"ubiquitous":  false,
			})
		}
		return map[string]any{"reaction": reaction, "species": p.SpeciesID, "stoichiometry": p.Stoichiometry}
	}

	for _, r := range view.ReactionGroups {
		reactions = append(reactions, map[string]any{
			"id":         r.ID,
			"name":       r.Name,
			"reversible": r.Reversible,
			"members":    r.Members,
		})
		for _, p := range r.Reactants {
			consumes = append(consumes, edge(r.ID, p))
		}
		for _, p := range r.Products {
			produces = append(produces, edge(r.ID, p))
		}
	}
	return species, reactions, consumes, produces
}

func with(base map[string]any, kv ...any) map[string]any {
	out := make(map[string]any, len(base)+len(kv)/2)
	for k, v := range base {
		out[k] = v
	}
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i].(string)] = kv[i+1]
	}
	return out
}
