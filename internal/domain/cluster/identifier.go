// Package cluster holds the value types shared by every generalization phase:
// tagged identifiers for terms and unmapped species, and cluster paths that
// grow by one segment every time a cluster is refined.
package cluster

import (
	"sort"
	"strings"
)

// Kind tells a term identifier apart from a species identifier.
type Kind uint8

const (
	KindTerm Kind = iota + 1
	KindSpecies
)

// String returns a short label for the kind.
func (k Kind) String() string {
	switch k {
	case KindTerm:
		return "term"
	case KindSpecies:
		return "species"
	default:
		return "unknown"
	}
}

// Identifier is either an ontology term id or, for species that carry no
// term, the species id itself. Both live in the same term-to-cluster map.
type Identifier struct {
	Kind  Kind   `json:"kind"`
	Value string `json:"value"`
}

// TermID returns a term identifier.
func TermID(id string) Identifier { return Identifier{Kind: KindTerm, Value: id} }

// SpeciesID returns an identifier for an unmapped species.
func SpeciesID(id string) Identifier { return Identifier{Kind: KindSpecies, Value: id} }

// IsTerm reports whether id names an ontology term.
func (id Identifier) IsTerm() bool { return id.Kind == KindTerm }

// IsSpecies reports whether id names an unmapped species.
func (id Identifier) IsSpecies() bool { return id.Kind == KindSpecies }

// String renders the identifier as "<kind>:<value>".
func (id Identifier) String() string {
	return id.Kind.String() + ":" + id.Value
}

// Compare orders terms before species, then by value.
func (id Identifier) Compare(other Identifier) int {
	if id.Kind != other.Kind {
		if id.Kind < other.Kind {
			return -1
		}
		return 1
	}
	return strings.Compare(id.Value, other.Value)
}

// SortIdentifiers sorts ids in place by Compare.
func SortIdentifiers(ids []Identifier) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Compare(ids[j]) < 0 })
}

// Set is an unordered set of identifiers.
type Set map[Identifier]struct{}

// NewSet builds a Set from ids.
func NewSet(ids ...Identifier) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts id.
func (s Set) Add(id Identifier) { s[id] = struct{}{} }

// Remove deletes id.
func (s Set) Remove(id Identifier) { delete(s, id) }

// Has reports membership.
func (s Set) Has(id Identifier) bool {
	_, ok := s[id]
	return ok
}

// Len returns the number of members.
func (s Set) Len() int { return len(s) }

// Clone returns an independent copy.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// Sorted returns the members in Compare order.
func (s Set) Sorted() []Identifier {
	out := make([]Identifier, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	SortIdentifiers(out)
	return out
}

// Intersect returns the members present in both sets.
func (s Set) Intersect(other Set) Set {
	small, large := s, other
	if len(large) < len(small) {
		small, large = large, small
	}
	out := make(Set)
	for id := range small {
		if large.Has(id) {
			out[id] = struct{}{}
		}
	}
	return out
}

// IntersectLen counts the members present in both sets without allocating.
func (s Set) IntersectLen(other Set) int {
	small, large := s, other
	if len(large) < len(small) {
		small, large = large, small
	}
	n := 0
	for id := range small {
		if large.Has(id) {
			n++
		}
	}
	return n
}

// Subtract removes every member of other from s in place.
func (s Set) Subtract(other Set) {
	for id := range other {
		delete(s, id)
	}
}

// Equal reports whether both sets hold the same members.
func (s Set) Equal(other Set) bool {
	if len(s) != len(other) {
		return false
	}
	for id := range s {
		if !other.Has(id) {
			return false
		}
	}
	return true
}

// Key returns a canonical string usable as a map key for the set.
func (s Set) Key() string {
	var b strings.Builder
	for _, id := range s.Sorted() {
		writeSegmentKey(&b, byte('0'+id.Kind), id.Value)
	}
	return b.String()
}
