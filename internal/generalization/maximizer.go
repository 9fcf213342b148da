package generalization

import (
	"sort"
	"strconv"

	"github.com/turtacn/MetaNet-Generalizer/internal/domain/cluster"
	"github.com/turtacn/MetaNet-Generalizer/internal/domain/network"
)

// neighbour is one element of a neighbourhood signature: the reaction
// cluster a member takes part in and on which side.
type neighbour struct {
	out     bool
	cluster int
}

func (n neighbour) less(o neighbour) bool {
	if n.out != o.out {
		return !n.out
	}
	return n.cluster < o.cluster
}

type signature []neighbour

func (s signature) less(o signature) bool {
	for i := 0; i < len(s) && i < len(o); i++ {
		if s[i] != o[i] {
			return s[i].less(o[i])
		}
	}
	return len(s) < len(o)
}

// Maximizer splits clusters whose members occur in different reaction
// contexts. One Maximizer serves a whole phase; Maximize may be called
// concurrently for different clusters.
type Maximizer struct {
	keys             *KeyComputer
	reactionClusters map[string]int
	byIdentifier     map[cluster.Identifier][]*network.Reaction
}

// NewMaximizer indexes the eligible reactions (more than two participants,
// not ignored) by participant identifier.
func NewMaximizer(net *network.Network, keys *KeyComputer, reactionClusters map[string]int,
	speciesTerms map[string]string, ignore map[string]bool) *Maximizer {
	m := &Maximizer{
		keys:             keys,
		reactionClusters: reactionClusters,
		byIdentifier:     make(map[cluster.Identifier][]*network.Reaction),
	}
	for i := range net.Reactions {
		r := &net.Reactions[i]
		if r.NumParticipants() <= 2 || ignore[r.ID] {
			continue
		}
		seen := make(map[cluster.Identifier]bool)
		for _, s := range r.SpeciesIDs() {
			id := identifierOf(speciesTerms, s)
			if !seen[id] {
				seen[id] = true
				m.byIdentifier[id] = append(m.byIdentifier[id], r)
			}
		}
	}
	return m
}

func (m *Maximizer) signatureOf(id cluster.Identifier) signature {
	set := make(map[neighbour]bool)
	for _, r := range m.byIdentifier[id] {
		c, ok := m.reactionClusters[r.ID]
		if !ok {
			continue
		}
		set[neighbour{out: !m.keys.IsReactant(id, r), cluster: c}] = true
	}
	sig := make(signature, 0, len(set))
	for n := range set {
		sig = append(sig, n)
	}
	sort.Slice(sig, func(i, j int) bool { return sig[i].less(sig[j]) })
	return sig
}

type signatureGroup struct {
	neighbours map[neighbour]bool
	members    []cluster.Identifier
	smallest   neighbour
}

// mergeOverlapping unions groups sharing at least one neighbour.
func mergeOverlapping(groups []signatureGroup) []signatureGroup {
	var merged []signatureGroup
	for _, g := range groups {
		cur := g
		kept := merged[:0]
		for _, other := range merged {
			overlap := false
			for n := range other.neighbours {
				if cur.neighbours[n] {
					overlap = true
					break
				}
			}
			if !overlap {
				kept = append(kept, other)
				continue
			}
			for n := range other.neighbours {
				cur.neighbours[n] = true
			}
			cur.members = append(cur.members, other.members...)
			if other.smallest.less(cur.smallest) {
				cur.smallest = other.smallest
			}
		}
		merged = append(kept, cur)
	}
	return merged
}

// Maximize partitions members of the cluster at path by neighbourhood
// signature and returns the moves. Members with overlapping signatures
// stay together; members without eligible reactions become singleton
// sub-clusters.
func (m *Maximizer) Maximize(path cluster.Path, members []cluster.Identifier) []cluster.Assignment {
	bySig := make(map[string]int)
	var sigs []signature
	var groups []signatureGroup
	var neighbourless []cluster.Identifier
	for _, id := range members {
		sig := m.signatureOf(id)
		if len(sig) == 0 {
			neighbourless = append(neighbourless, id)
			continue
		}
		k := signatureKey(sig)
		i, ok := bySig[k]
		if !ok {
			i = len(groups)
			bySig[k] = i
			set := make(map[neighbour]bool, len(sig))
			for _, n := range sig {
				set[n] = true
			}
			sigs = append(sigs, sig)
			groups = append(groups, signatureGroup{neighbours: set, smallest: sig[0]})
		}
		groups[i].members = append(groups[i].members, id)
	}
	order := make([]int, len(groups))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return sigs[order[a]].less(sigs[order[b]]) })
	sorted := make([]signatureGroup, len(groups))
	for i, g := range order {
		sorted[i] = groups[g]
	}

	merged := mergeOverlapping(sorted)
	sort.Slice(merged, func(a, b int) bool { return merged[a].smallest.less(merged[b].smallest) })

	var out []cluster.Assignment
	i := 0
	if len(merged) > 1 {
		for _, g := range merged {
			cluster.SortIdentifiers(g.members)
			next := path.Child(i)
			for _, id := range g.members {
				out = append(out, cluster.Assignment{ID: id, Path: next})
			}
			i++
		}
	}
	cluster.SortIdentifiers(neighbourless)
	for _, id := range neighbourless {
		out = append(out, cluster.Assignment{ID: id, Path: path.Child(i)})
		i++
	}
	return out
}

func signatureKey(sig signature) string {
	b := make([]byte, 0, len(sig)*6)
	for _, n := range sig {
		if n.out {
			b = append(b, 'o')
		} else {
			b = append(b, 'i')
		}
		b = strconv.AppendInt(b, int64(n.cluster), 10)
		b = append(b, ',')
	}
	return string(b)
}
