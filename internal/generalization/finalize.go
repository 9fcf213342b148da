package generalization

import (
	"fmt"
	"sort"
	"time"

	"github.com/turtacn/MetaNet-Generalizer/internal/domain/cluster"
	"github.com/turtacn/MetaNet-Generalizer/internal/domain/ontology"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/monitoring/logging"
)

// PlaceholderPrefix starts the ids of representative terms synthesized for
// clusters without an unused common ancestor.
const PlaceholderPrefix = "chebi:unknown_"

// finalize names every cluster by a representative term, projects the
// result onto species and reactions and selects ubiquitous species.
func (r *run) finalize() *Result {
	start := time.Now()
	res := &Result{
		NetworkID: r.net.ID,
		Species:   make(map[string]SpeciesCluster),
	}

	used := make(map[string]bool)
	representative := make(map[cluster.Identifier]string, len(r.terms))
	next := 0
	for _, g := range r.terms.Groups() {
		values := r.realTerms(g.Members)
		var common []string
		if len(values) > 0 {
			common = r.onto.CommonAncestors(values, 0)
		}
		chosen := ""
		for _, c := range common {
			if !used[c] {
				chosen = c
				break
			}
		}
		if chosen == "" {
			name := "fake term"
			if len(common) > 0 {
				if t, ok := r.onto.Term(common[0]); ok {
					name = t.Name + " (another)"
				}
			}
			for {
				chosen = fmt.Sprintf("%s%d", PlaceholderPrefix, next)
				next++
				if !r.onto.Has(chosen) {
					break
				}
			}
			r.onto.AddTerm(&ontology.Term{ID: chosen, Name: name})
			res.Placeholders = append(res.Placeholders, Placeholder{ID: chosen, Name: name})
		}
		used[chosen] = true
		for _, id := range g.Members {
			representative[id] = chosen
			res.Terms = append(res.Terms, TermAssignment{
				ID:             id.Value,
				Species:        id.IsSpecies(),
				Representative: chosen,
			})
		}
	}
	sort.Slice(res.Terms, func(i, j int) bool {
		if res.Terms[i].Species != res.Terms[j].Species {
			return !res.Terms[i].Species
		}
		return res.Terms[i].ID < res.Terms[j].ID
	})

	byCluster := make(map[SpeciesCluster][]string)
	for _, s := range r.net.Species {
		var c SpeciesCluster
		if t, ok := r.speciesTerms[s.ID]; ok {
			c = SpeciesCluster{Compartment: s.Compartment, TermID: t}
			if rep, ok := representative[cluster.TermID(t)]; ok {
				c.TermID = rep
			}
		} else if rep, ok := representative[cluster.SpeciesID(s.ID)]; ok {
			c = SpeciesCluster{Compartment: s.Compartment, TermID: rep}
		} else {
			continue
		}
		byCluster[c] = append(byCluster[c], s.ID)
	}
	for c, members := range byCluster {
		if len(members) < 2 {
			continue
		}
		for _, s := range members {
			res.Species[s] = c
		}
	}

	paths := make(map[string]cluster.Path, len(res.Species))
	for s, c := range res.Species {
		paths[s] = cluster.Singleton(cluster.TermID(c.TermID))
	}
	idx := BuildKeyIndex(r.net, r.keyComputer(paths), r.ignore)
	res.Reactions = idx.ReactionClusters()

	res.UbiquitousTermIDs = sortedKeys(r.ub.TermIDs)
	res.UbiquitousSpecies = r.ubiquitousSpecies(res.Species)

	res.Stats = Stats{
		TermClusters:     len(r.terms.Groups()),
		SpeciesClusters:  len(clusterKeys(res.Species)),
		ReactionClusters: len(idx.Groups),
		Placeholders:     len(res.Placeholders),
	}
	for _, g := range idx.Groups {
		if len(g.Reactions) > 1 {
			res.Stats.GeneralizedReactions++
		}
	}
	r.logger.Info("clusters finalized",
		logging.Int("term_clusters", res.Stats.TermClusters),
		logging.Int("placeholders", res.Stats.Placeholders),
		logging.Int("ubiquitous_species", len(res.UbiquitousSpecies)))
	r.engine.observer.PhaseCompleted(PhaseFinalize, time.Since(start))
	return res
}

// ubiquitousSpecies keeps the resolved ubiquitous species, or falls back to
// species of frequent terms that did not end up in a cluster.
func (r *run) ubiquitousSpecies(clustered map[string]SpeciesCluster) []string {
	if len(r.ub.SpeciesIDs) > 0 {
		return sortedKeys(r.ub.SpeciesIDs)
	}
	threshold := FrequencyThreshold(len(r.net.Reactions), r.engine.cfg.UbiquitousThreshold)
	frequent := make(map[string]bool)
	for _, t := range FrequentTermIDs(r.net, threshold) {
		frequent[t] = true
	}
	var out []string
	for _, s := range r.net.Species {
		if _, ok := clustered[s.ID]; ok {
			continue
		}
		if frequent[r.speciesTerms[s.ID]] {
			out = append(out, s.ID)
		}
	}
	sort.Strings(out)
	return out
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k, ok := range m {
		if ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func clusterKeys(species map[string]SpeciesCluster) map[SpeciesCluster]bool {
	out := make(map[SpeciesCluster]bool)
	for _, c := range species {
		out[c] = true
	}
	return out
}
