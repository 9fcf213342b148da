// Package generalization implements the clustering engine: vertical keys,
// neighbourhood maximization, stoichiometry conflict resolution and the
// orchestration loop tying them together.
package generalization

import (
	"sort"
	"strconv"
	"strings"

	"github.com/turtacn/MetaNet-Generalizer/internal/domain/cluster"
	"github.com/turtacn/MetaNet-Generalizer/internal/domain/network"
)

// KeyElement is one participant class of a vertical key: a cluster path
// (a one-term path for ubiquitous participants) located in a compartment.
type KeyElement struct {
	Class       cluster.Path `json:"class"`
	Compartment string       `json:"compartment"`
}

// Compare orders by class, then compartment.
func (e KeyElement) Compare(other KeyElement) int {
	if c := e.Class.Compare(other.Class); c != 0 {
		return c
	}
	return strings.Compare(e.Compartment, other.Compartment)
}

func (e KeyElement) key() string {
	return e.Class.Key() + "@" + strconv.Itoa(len(e.Compartment)) + ":" + e.Compartment
}

// Side is a sorted multiset of key elements.
type Side []KeyElement

// Compare orders sides lexicographically, a proper prefix first.
func (s Side) Compare(other Side) int {
	for i := 0; i < len(s) && i < len(other); i++ {
		if c := s[i].Compare(other[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(s) < len(other):
		return -1
	case len(s) > len(other):
		return 1
	}
	return 0
}

func (s Side) sort() {
	sort.Slice(s, func(i, j int) bool { return s[i].Compare(s[j]) < 0 })
}

func (s Side) key() string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(len(s)))
	b.WriteByte('[')
	for _, e := range s {
		b.WriteString(e.key())
		b.WriteByte(';')
	}
	b.WriteByte(']')
	return b.String()
}

// VerticalKey is the structural fingerprint of a reaction. Reactions with
// equal keys convert the same clusters into the same clusters.
type VerticalKey struct {
	UbiquitousReactants Side `json:"ubiquitous_reactants"`
	UbiquitousProducts  Side `json:"ubiquitous_products"`
	Reactants           Side `json:"reactants"`
	Products            Side `json:"products"`
}

// Key returns a canonical string for map grouping.
func (k VerticalKey) Key() string {
	return k.UbiquitousReactants.key() + "|" + k.UbiquitousProducts.key() + "|" +
		k.Reactants.key() + "|" + k.Products.key()
}

// SimplifiedSide keeps the ubiquitous part of a side and only the size of
// the specific part.
type SimplifiedSide struct {
	Ubiquitous Side
	Specific   int
}

func (s SimplifiedSide) compare(other SimplifiedSide) int {
	if c := s.Ubiquitous.Compare(other.Ubiquitous); c != 0 {
		return c
	}
	switch {
	case s.Specific < other.Specific:
		return -1
	case s.Specific > other.Specific:
		return 1
	}
	return 0
}

// SimplifiedKey is an orientation-free relaxation of a vertical key used to
// find candidate matches for partially known reactions.
type SimplifiedKey struct {
	First  SimplifiedSide
	Second SimplifiedSide
}

// Key returns a canonical string for map grouping.
func (k SimplifiedKey) Key() string {
	return k.First.Ubiquitous.key() + "#" + strconv.Itoa(k.First.Specific) + "|" +
		k.Second.Ubiquitous.key() + "#" + strconv.Itoa(k.Second.Specific)
}

// Simplify drops specific participants down to their count and orders the
// two sides smaller first.
func (k VerticalKey) Simplify() SimplifiedKey {
	a := SimplifiedSide{Ubiquitous: k.UbiquitousReactants, Specific: len(k.Reactants)}
	b := SimplifiedSide{Ubiquitous: k.UbiquitousProducts, Specific: len(k.Products)}
	if b.compare(a) < 0 {
		a, b = b, a
	}
	return SimplifiedKey{First: a, Second: b}
}

// KeyComputer derives vertical keys from a species-to-cluster snapshot. It
// only reads its inputs and is safe for concurrent use once built.
type KeyComputer struct {
	net             *network.Network
	speciesClusters map[string]cluster.Path
	speciesTerms    map[string]string
	ubiquitous      map[string]bool
	ignored         map[string]bool
}

// NewKeyComputer builds a key computer. speciesClusters maps species ids to
// their current cluster path; species missing from it fall back to their
// term, then to themselves.
func NewKeyComputer(net *network.Network, speciesClusters map[string]cluster.Path,
	speciesTerms map[string]string, ubiquitous, ignored map[string]bool) *KeyComputer {
	return &KeyComputer{
		net:             net,
		speciesClusters: speciesClusters,
		speciesTerms:    speciesTerms,
		ubiquitous:      ubiquitous,
		ignored:         ignored,
	}
}

// identifierOf routes a species to the identifier its cluster is keyed by.
func identifierOf(speciesTerms map[string]string, speciesID string) cluster.Identifier {
	if t, ok := speciesTerms[speciesID]; ok {
		return cluster.TermID(t)
	}
	return cluster.SpeciesID(speciesID)
}

// classify splits one side of a reaction into ignored, ubiquitous and
// specific elements, each sorted.
func (kc *KeyComputer) classify(side []network.Participant) (ignored, ubiquitous, specific Side) {
	for _, p := range side {
		comp := kc.net.CompartmentOf(p.SpeciesID)
		term, mapped := kc.speciesTerms[p.SpeciesID]
		switch {
		case mapped && kc.ubiquitous[term] && kc.ignored[term]:
			ignored = append(ignored, KeyElement{Class: cluster.Singleton(cluster.TermID(term)), Compartment: comp})
		case mapped && kc.ubiquitous[term]:
			ubiquitous = append(ubiquitous, KeyElement{Class: cluster.Singleton(cluster.TermID(term)), Compartment: comp})
		default:
			class, ok := kc.speciesClusters[p.SpeciesID]
			if !ok {
				class = cluster.Singleton(identifierOf(kc.speciesTerms, p.SpeciesID))
			}
			specific = append(specific, KeyElement{Class: class, Compartment: comp})
		}
	}
	ignored.sort()
	ubiquitous.sort()
	specific.sort()
	return ignored, ubiquitous, specific
}

// orient computes the key and whether the reaction had to be read backwards
// to reach its canonical orientation.
func (kc *KeyComputer) orient(r *network.Reaction) (VerticalKey, bool) {
	ignR, ubR, sR := kc.classify(r.Reactants)
	ignP, ubP, sP := kc.classify(r.Products)
	if len(ubR) == 0 && len(ubP) == 0 && len(sR) == 0 && len(sP) == 0 {
		ubR, ubP = ignR, ignP
	}
	reversed := false
	if r.Reversible {
		c := ubR.Compare(ubP)
		switch {
		case c > 0:
			reversed = true
		case len(ubR) == 0 && len(ubP) == 0:
			reversed = len(sR) > len(sP) || (len(sR) == len(sP) && sR.Compare(sP) > 0)
		}
	}
	if reversed {
		return VerticalKey{UbiquitousReactants: ubP, UbiquitousProducts: ubR, Reactants: sP, Products: sR}, true
	}
	return VerticalKey{UbiquitousReactants: ubR, UbiquitousProducts: ubP, Reactants: sR, Products: sP}, false
}

// Compute returns the canonical vertical key of r.
func (kc *KeyComputer) Compute(r *network.Reaction) VerticalKey {
	k, _ := kc.orient(r)
	return k
}

// IsReactant reports whether id sits on the reactant side of r once r is
// canonically oriented.
func (kc *KeyComputer) IsReactant(id cluster.Identifier, r *network.Reaction) bool {
	_, reversed := kc.orient(r)
	side := r.Reactants
	if reversed {
		side = r.Products
	}
	for _, p := range side {
		if identifierOf(kc.speciesTerms, p.SpeciesID) == id {
			return true
		}
	}
	return false
}

// KeyGroup is the set of reactions sharing one vertical key.
type KeyGroup struct {
	Key       VerticalKey
	Reactions []string
}

// KeyIndex groups reactions by vertical key. Groups keep the order in which
// their first reaction appears in the network.
type KeyIndex struct {
	Groups []KeyGroup
	byKey  map[string]int
}

// BuildKeyIndex computes the key of every reaction not in ignore.
func BuildKeyIndex(net *network.Network, kc *KeyComputer, ignore map[string]bool) *KeyIndex {
	idx := &KeyIndex{byKey: make(map[string]int)}
	for i := range net.Reactions {
		r := &net.Reactions[i]
		if ignore[r.ID] {
			continue
		}
		vk := kc.Compute(r)
		k := vk.Key()
		g, ok := idx.byKey[k]
		if !ok {
			g = len(idx.Groups)
			idx.byKey[k] = g
			idx.Groups = append(idx.Groups, KeyGroup{Key: vk})
		}
		idx.Groups[g].Reactions = append(idx.Groups[g].Reactions, r.ID)
	}
	return idx
}

// ReactionClusters numbers the groups: every reaction maps to the index of
// its key group.
func (idx *KeyIndex) ReactionClusters() map[string]int {
	out := make(map[string]int)
	for i, g := range idx.Groups {
		for _, r := range g.Reactions {
			out[r] = i
		}
	}
	return out
}

// Lookup returns the reactions sharing k.
func (idx *KeyIndex) Lookup(k VerticalKey) []string {
	if g, ok := idx.byKey[k.Key()]; ok {
		return idx.Groups[g].Reactions
	}
	return nil
}
