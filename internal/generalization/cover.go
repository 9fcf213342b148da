package generalization

import (
	"sort"

	"github.com/turtacn/MetaNet-Generalizer/internal/domain/cluster"
)

const coverLevel = 4

type rootCandidate struct {
	root    string
	members cluster.Set
}

// cover groups ids under ontology roots and returns their new paths, each
// prefix+(root). Ids the ontology cannot place are absent from the result
// unless inference finds a cluster for them.
func (e *env) cover(ids []cluster.Identifier, prefix cluster.Path) cluster.Map {
	out := make(cluster.Map, len(ids))
	real := make(cluster.Set)
	var unmapped []string
	for _, id := range ids {
		switch {
		case id.IsTerm() && e.onto.Has(id.Value):
			real.Add(id)
		case id.IsSpecies():
			unmapped = append(unmapped, id.Value)
		}
	}
	values := termValues(real)

	if roots := e.onto.CommonAncestors(values, 0); len(roots) > 0 {
		p := prefix.WithTerm(roots[0])
		for _, id := range ids {
			out[id] = p
		}
		return out
	}

	for _, g := range e.coverByRoots(real) {
		p := prefix.WithTerm(g.root)
		for id := range g.members {
			out[id] = p
		}
	}

	if e.infer && len(unmapped) > 0 {
		sort.Strings(unmapped)
		found := e.newInferrer(e.speciesClusters(out, false), unmapped).run()
		for s, p := range found {
			out[cluster.SpeciesID(s)] = p
		}
	}
	return out
}

// coverByRoots picks ancestors up to coverLevel steps above the terms and
// greedily covers the terms with their subtrees, largest overlap first.
func (e *env) coverByRoots(terms cluster.Set) []rootCandidate {
	roots := make(map[string]bool)
	for _, t := range termValues(terms) {
		for _, a := range e.onto.GeneralizedAncestorsUpToLevel(t, coverLevel) {
			roots[a] = true
		}
	}
	sorted := make([]string, 0, len(roots))
	for r := range roots {
		sorted = append(sorted, r)
	}
	sort.Strings(sorted)

	bySubtree := make(map[string]bool)
	var pool []rootCandidate
	for _, r := range sorted {
		sub := make(cluster.Set)
		for id := range e.onto.SubTree(r) {
			sub.Add(cluster.TermID(id))
		}
		k := sub.Key()
		if bySubtree[k] {
			continue
		}
		bySubtree[k] = true
		pool = append(pool, rootCandidate{root: r, members: sub})
	}

	remaining := terms.Clone()
	var out []rootCandidate
	for len(remaining) > 0 && len(pool) > 0 {
		best, bestOverlap := -1, -1
		for i, c := range pool {
			if n := c.members.IntersectLen(remaining); n > bestOverlap {
				best, bestOverlap = i, n
			}
		}
		if bestOverlap == 0 {
			break
		}
		c := pool[best]
		if g := c.members.Intersect(remaining); len(g) > 0 {
			out = append(out, rootCandidate{root: c.root, members: g})
		}
		remaining.Subtract(c.members)
		pool = append(pool[:best], pool[best+1:]...)
	}
	return out
}
