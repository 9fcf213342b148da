package generalization

import (
	"sort"

	"github.com/turtacn/MetaNet-Generalizer/internal/domain/cluster"
	"github.com/turtacn/MetaNet-Generalizer/internal/domain/ontology"
)

const (
	// DefaultConflictCeiling drops cover candidates whose members would
	// break too many reactions.
	DefaultConflictCeiling = 40

	candidateDepth = 3
)

// good reports whether set can form one cluster: no reaction uses two of
// its members.
func good(set cluster.Set, conflicts []cluster.Set) bool {
	switch len(set) {
	case 0:
		return false
	case 1:
		return true
	}
	for _, c := range conflicts {
		if set.IntersectLen(c) > 1 {
			return false
		}
	}
	return true
}

// mostProblematic returns the member involved in the most conflicting
// intersections, the smallest identifier on ties.
func mostProblematic(set cluster.Set, conflicts []cluster.Set) (cluster.Identifier, bool) {
	if len(set) <= 1 {
		return cluster.Identifier{}, false
	}
	counts := make(map[cluster.Identifier]int)
	for _, c := range conflicts {
		common := set.Intersect(c)
		if len(common) <= 1 {
			continue
		}
		for id := range common {
			counts[id]++
		}
	}
	var best cluster.Identifier
	bestCount := 0
	for id, n := range counts {
		if n > bestCount || (n == bestCount && id.Compare(best) < 0) {
			best, bestCount = id, n
		}
	}
	return best, bestCount > 0
}

// conflictNum counts the stoichiometric conflicts set would introduce.
func conflictNum(set cluster.Set, conflicts []cluster.Set) int {
	if len(set) <= 1 {
		return 0
	}
	n := 0
	for _, c := range conflicts {
		n += set.IntersectLen(c) / 2
	}
	return n
}

type candidate struct {
	members cluster.Set
	key     string
	level   float64
}

// better orders candidates by overlap, then level, then the smaller key.
func (c *candidate) better(overlap int, other *candidate, otherOverlap int) bool {
	if other == nil {
		return true
	}
	if overlap != otherOverlap {
		return overlap > otherOverlap
	}
	if c.level != other.level {
		return c.level > other.level
	}
	return c.key < other.key
}

// Resolver splits clusters whose members react with each other, using the
// ontology to keep the remaining groups semantically tight.
type Resolver struct {
	onto    *ontology.Ontology
	ceiling int
}

// NewResolver creates a resolver. A non-positive ceiling selects
// DefaultConflictCeiling.
func NewResolver(onto *ontology.Ontology, ceiling int) *Resolver {
	if ceiling <= 0 {
		ceiling = DefaultConflictCeiling
	}
	return &Resolver{onto: onto, ceiling: ceiling}
}

func termValues(ids cluster.Set) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids.Sorted() {
		out = append(out, id.Value)
	}
	return out
}

func (rs *Resolver) level(term string) float64 {
	if !rs.onto.Has(term) {
		return 0
	}
	return rs.onto.Level(term)
}

// candidates builds the cover pool: every term alone, then the subsets of
// terms below each nearby common ancestor and below each of its
// descendants.
func (rs *Resolver) candidates(terms cluster.Set, conflicts []cluster.Set) map[string]*candidate {
	pool := make(map[string]*candidate)
	add := func(members cluster.Set, level float64) {
		k := members.Key()
		if _, ok := pool[k]; ok {
			return
		}
		if conflictNum(members, conflicts) > rs.ceiling {
			return
		}
		pool[k] = &candidate{members: members, key: k, level: level}
	}
	for _, id := range terms.Sorted() {
		add(cluster.NewSet(id), rs.level(id.Value))
	}

	values := termValues(terms)
	ancestors := rs.onto.CommonAncestors(values, candidateDepth)
	if len(ancestors) == 0 {
		seen := make(map[string]bool)
		for _, t := range values {
			for _, a := range rs.onto.GeneralizedAncestorsUpToLevel(t, candidateDepth) {
				if !seen[a] {
					seen[a] = true
					ancestors = append(ancestors, a)
				}
			}
		}
		sort.Strings(ancestors)
	}

	processed := make(map[string]bool, len(values))
	for _, t := range values {
		processed[t] = true
	}
	below := func(root string, within cluster.Set) cluster.Set {
		sub := rs.onto.SubTree(root)
		out := make(cluster.Set)
		for id := range within {
			if _, ok := sub[id.Value]; ok {
				out.Add(id)
			}
		}
		return out
	}
	for _, a := range ancestors {
		if processed[a] {
			continue
		}
		processed[a] = true
		covered := below(a, terms)
		if len(covered) == 0 {
			continue
		}
		add(covered, rs.level(a))
		for _, d := range rs.onto.GeneralizedDescendants(a) {
			if processed[d] {
				continue
			}
			processed[d] = true
			sub := below(d, covered)
			if len(sub) == 0 {
				continue
			}
			add(sub, rs.level(d))
		}
	}
	return pool
}

// Cover greedily partitions terms into conflict-free groups. Terms the
// greedy cannot place are left out of every group.
func (rs *Resolver) Cover(terms cluster.Set, conflicts []cluster.Set) []cluster.Set {
	pool := rs.candidates(terms, conflicts)
	remaining := terms.Clone()
	var groups []cluster.Set
	for len(remaining) > 0 && len(pool) > 0 {
		if good(remaining, conflicts) {
			groups = append(groups, remaining)
			break
		}
		var best *candidate
		bestOverlap := 0
		for _, c := range pool {
			if !good(c.members, conflicts) {
				continue
			}
			overlap := c.members.IntersectLen(remaining)
			if c.better(overlap, best, bestOverlap) {
				best, bestOverlap = c, overlap
			}
		}
		if best == nil {
			break
		}
		chosen := best
		if bestOverlap == 1 {
			if p, ok := mostProblematic(remaining, conflicts); ok {
				single := cluster.NewSet(p)
				chosen = &candidate{members: single, key: single.Key()}
			}
		}
		group := chosen.members.Intersect(remaining)
		if len(group) > 0 {
			groups = append(groups, group)
		}
		remaining.Subtract(chosen.members)
		delete(pool, chosen.key)
	}
	return groups
}

// Resolve returns moves placing each group of the cover under path+(i),
// i counting from 1.
func (rs *Resolver) Resolve(path cluster.Path, terms cluster.Set, conflicts []cluster.Set) []cluster.Assignment {
	var out []cluster.Assignment
	for i, g := range rs.Cover(terms, conflicts) {
		next := path.Child(i + 1)
		for _, id := range g.Sorted() {
			out = append(out, cluster.Assignment{ID: id, Path: next})
		}
	}
	return out
}
