package cluster

import (
	"sort"
	"strconv"
	"strings"
)

// SegmentKind tags one element of a cluster path.
type SegmentKind uint8

const (
	// SegmentIndex is a split index appended by a refinement phase.
	SegmentIndex SegmentKind = iota
	// SegmentTerm names an ontology term, usually the covering root.
	SegmentTerm
	// SegmentSpecies names a species that stands in for a missing term.
	SegmentSpecies
)

// Segment is one discriminator of a Path.
type Segment struct {
	Kind  SegmentKind `json:"kind"`
	ID    string      `json:"id,omitempty"`
	Index int         `json:"index,omitempty"`
}

// IndexSegment returns a split-index segment.
func IndexSegment(i int) Segment { return Segment{Kind: SegmentIndex, Index: i} }

// TermSegment returns a term segment.
func TermSegment(id string) Segment { return Segment{Kind: SegmentTerm, ID: id} }

// SpeciesSegment returns a species segment.
func SpeciesSegment(id string) Segment { return Segment{Kind: SegmentSpecies, ID: id} }

// Compare orders index segments before term segments before species
// segments, then by index or id.
func (s Segment) Compare(other Segment) int {
	if s.Kind != other.Kind {
		if s.Kind < other.Kind {
			return -1
		}
		return 1
	}
	if s.Kind == SegmentIndex {
		switch {
		case s.Index < other.Index:
			return -1
		case s.Index > other.Index:
			return 1
		}
		return 0
	}
	return strings.Compare(s.ID, other.ID)
}

func (s Segment) String() string {
	if s.Kind == SegmentIndex {
		return strconv.Itoa(s.Index)
	}
	return s.ID
}

// Path is the accumulated sequence of discriminators identifying a cluster.
// Two members share a cluster iff their paths are equal. Paths are values:
// Child and WithTerm always return a fresh slice.
type Path []Segment

// NewPath builds a Path from segments.
func NewPath(segments ...Segment) Path {
	return append(Path(nil), segments...)
}

// Singleton returns the one-segment path standing for id on its own.
func Singleton(id Identifier) Path {
	if id.IsSpecies() {
		return Path{SpeciesSegment(id.Value)}
	}
	return Path{TermSegment(id.Value)}
}

// Child returns p extended by the split index i.
func (p Path) Child(i int) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, IndexSegment(i))
}

// WithTerm returns p extended by a term segment.
func (p Path) WithTerm(id string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, TermSegment(id))
}

// Head returns the first segment, if any.
func (p Path) Head() (Segment, bool) {
	if len(p) == 0 {
		return Segment{}, false
	}
	return p[0], true
}

// Equal reports structural equality.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix is a (not necessarily strict) prefix of p.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	return p[:len(prefix)].Equal(prefix)
}

// Compare gives a total order over paths: segment-wise, with a shorter
// prefix ordered first.
func (p Path) Compare(other Path) int {
	for i := 0; i < len(p) && i < len(other); i++ {
		if c := p[i].Compare(other[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(p) < len(other):
		return -1
	case len(p) > len(other):
		return 1
	}
	return 0
}

// Key returns a canonical, collision-free string form for use as a map key.
func (p Path) Key() string {
	var b strings.Builder
	for _, s := range p {
		switch s.Kind {
		case SegmentIndex:
			writeSegmentKey(&b, 'i', strconv.Itoa(s.Index))
		case SegmentTerm:
			writeSegmentKey(&b, 't', s.ID)
		default:
			writeSegmentKey(&b, 's', s.ID)
		}
	}
	return b.String()
}

// String renders the path for logs, e.g. "chebi:33709/0/2".
func (p Path) String() string {
	parts := make([]string, len(p))
	for i, s := range p {
		parts[i] = s.String()
	}
	return strings.Join(parts, "/")
}

// SortPaths sorts paths in place by Compare.
func SortPaths(paths []Path) {
	sort.Slice(paths, func(i, j int) bool { return paths[i].Compare(paths[j]) < 0 })
}

// writeSegmentKey writes a length-prefixed segment so that ids containing
// separator characters cannot collide.
func writeSegmentKey(b *strings.Builder, tag byte, value string) {
	b.WriteByte(tag)
	b.WriteString(strconv.Itoa(len(value)))
	b.WriteByte(':')
	b.WriteString(value)
}
