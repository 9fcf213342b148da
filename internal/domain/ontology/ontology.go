package ontology

import (
	"sort"
)

type idSet map[string]struct{}

func (s idSet) add(id string) { s[id] = struct{}{} }

func (s idSet) has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s idSet) sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Ontology is an in-memory, mutable term hierarchy.
//
// Navigation methods are safe for concurrent use as long as no mutation
// (AddTerm, RemoveTerm, Trim, Filter) runs at the same time. The engine only
// mutates between phases.
type Ontology struct {
	terms       map[string]*Term
	alt         map[string]string
	children    map[string]idSet
	incoming    map[string][]Relationship // target id -> {type, source id}
	equivalence map[string]bool
}

// New returns an empty ontology treating the given relationship types as
// equivalence.
func New(equivalenceTypes ...string) *Ontology {
	o := &Ontology{
		terms:       make(map[string]*Term),
		alt:         make(map[string]string),
		children:    make(map[string]idSet),
		incoming:    make(map[string][]Relationship),
		equivalence: make(map[string]bool, len(equivalenceTypes)),
	}
	for _, t := range equivalenceTypes {
		o.equivalence[t] = true
	}
	return o
}

// SetEquivalenceTypes replaces the relationship types treated as equivalence.
func (o *Ontology) SetEquivalenceTypes(types ...string) {
	o.equivalence = make(map[string]bool, len(types))
	for _, t := range types {
		o.equivalence[t] = true
	}
}

// EquivalenceTypes returns the equivalence relationship types, sorted.
func (o *Ontology) EquivalenceTypes() []string {
	out := make([]string, 0, len(o.equivalence))
	for t := range o.equivalence {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of terms.
func (o *Ontology) Len() int { return len(o.terms) }

// IDs returns all term ids, sorted.
func (o *Ontology) IDs() []string {
	out := make([]string, 0, len(o.terms))
	for id := range o.terms {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (o *Ontology) resolve(id string) (string, bool) {
	if _, ok := o.terms[id]; ok {
		return id, true
	}
	if canonical, ok := o.alt[id]; ok {
		if _, ok := o.terms[canonical]; ok {
			return canonical, true
		}
	}
	if n := NormalizeID(id); n != id {
		return o.resolve(n)
	}
	return "", false
}

// Term looks a term up by id or alt id.
func (o *Ontology) Term(id string) (*Term, bool) {
	canonical, ok := o.resolve(id)
	if !ok {
		return nil, false
	}
	return o.terms[canonical], true
}

// Has reports whether id (or an alt id) names a present term.
func (o *Ontology) Has(id string) bool {
	_, ok := o.resolve(id)
	return ok
}

// Canonical returns the primary id for id, resolving alt ids.
func (o *Ontology) Canonical(id string) (string, bool) {
	return o.resolve(id)
}

// AddTerm inserts t, replacing any term with the same id.
func (o *Ontology) AddTerm(t *Term) {
	if t == nil || t.ID == "" {
		return
	}
	if _, exists := o.terms[t.ID]; exists {
		o.detach(t.ID)
	}
	o.terms[t.ID] = t
	for _, a := range t.AltIDs {
		o.alt[a] = t.ID
	}
	for _, p := range t.Parents {
		set, ok := o.children[p]
		if !ok {
			set = make(idSet)
			o.children[p] = set
		}
		set.add(t.ID)
	}
	for _, r := range t.Relationships {
		o.incoming[r.TargetID] = append(o.incoming[r.TargetID], Relationship{Type: r.Type, TargetID: t.ID})
	}
}

// detach removes the index entries contributed by the term's own edges.
func (o *Ontology) detach(id string) {
	t := o.terms[id]
	for _, p := range t.Parents {
		if set, ok := o.children[p]; ok {
			delete(set, id)
		}
	}
	for _, r := range t.Relationships {
		in := o.incoming[r.TargetID]
		kept := in[:0]
		for _, e := range in {
			if e.TargetID != id || e.Type != r.Type {
				kept = append(kept, e)
			}
		}
		o.incoming[r.TargetID] = kept
	}
	for _, a := range t.AltIDs {
		if o.alt[a] == id {
			delete(o.alt, a)
		}
	}
}

// RemoveTerm deletes a term. With cascade the term's edges are simply
// dropped, so its children lose that parent; without cascade the children
// are re-attached to the removed term's parents. Reports whether a term was
// removed.
func (o *Ontology) RemoveTerm(id string, cascade bool) bool {
	id, ok := o.resolve(id)
	if !ok {
		return false
	}
	parents := o.Parents(id)
	children := o.Children(id)

	o.detach(id)
	delete(o.terms, id)

	for _, c := range children {
		ct := o.terms[c]
		ct.Parents = without(ct.Parents, id)
		if cascade {
			continue
		}
		for _, p := range parents {
			if contains(ct.Parents, p) {
				continue
			}
			ct.Parents = append(ct.Parents, p)
			o.children[p].add(c)
		}
	}
	delete(o.children, id)

	for _, in := range o.incoming[id] {
		src, ok := o.terms[in.TargetID]
		if !ok {
			continue
		}
		kept := src.Relationships[:0]
		for _, r := range src.Relationships {
			if r.TargetID != id {
				kept = append(kept, r)
			}
		}
		src.Relationships = kept
	}
	delete(o.incoming, id)
	return true
}

// Parents returns the present is_a parents of id, sorted.
func (o *Ontology) Parents(id string) []string {
	id, ok := o.resolve(id)
	if !ok {
		return nil
	}
	set := o.parentSet(id)
	return set.sorted()
}

func (o *Ontology) parentSet(id string) idSet {
	out := make(idSet)
	t, ok := o.terms[id]
	if !ok {
		return out
	}
	for _, p := range t.Parents {
		if _, ok := o.terms[p]; ok {
			out.add(p)
		}
	}
	return out
}

// Children returns the present is_a children of id, sorted.
func (o *Ontology) Children(id string) []string {
	id, ok := o.resolve(id)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(o.children[id]))
	for c := range o.children[id] {
		if _, ok := o.terms[c]; ok {
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

func (o *Ontology) equivalentNeighbours(id string) []string {
	if len(o.equivalence) == 0 {
		return nil
	}
	var out []string
	if t, ok := o.terms[id]; ok {
		for _, r := range t.Relationships {
			if o.equivalence[r.Type] {
				if _, ok := o.terms[r.TargetID]; ok {
					out = append(out, r.TargetID)
				}
			}
		}
	}
	for _, in := range o.incoming[id] {
		if o.equivalence[in.Type] {
			if _, ok := o.terms[in.TargetID]; ok {
				out = append(out, in.TargetID)
			}
		}
	}
	return out
}

// equivalentSet is the transitive equivalence class of id, without id.
func (o *Ontology) equivalentSet(id string) idSet {
	out := make(idSet)
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range o.equivalentNeighbours(cur) {
			if n == id || out.has(n) {
				continue
			}
			out.add(n)
			queue = append(queue, n)
		}
	}
	return out
}

func (o *Ontology) selfClass(id string) idSet {
	s := o.equivalentSet(id)
	s.add(id)
	return s
}

// Equivalents returns the terms equivalent to id, sorted.
func (o *Ontology) Equivalents(id string) []string {
	id, ok := o.resolve(id)
	if !ok {
		return nil
	}
	return o.equivalentSet(id).sorted()
}

func (o *Ontology) generalizedParents(id string) idSet {
	self := o.selfClass(id)
	out := make(idSet)
	for member := range self {
		for p := range o.parentSet(member) {
			if !self.has(p) {
				out.add(p)
			}
		}
	}
	return out
}

// walk runs a breadth-first closure from the equivalence class of id along
// next, adding the equivalence class of every reached term. depth <= 0 means
// unbounded. The result includes the starting class.
func (o *Ontology) walk(id string, depth int, next func(string) idSet) idSet {
	seen := o.selfClass(id)
	frontier := seen.sorted()
	for d := 0; len(frontier) > 0 && (depth <= 0 || d < depth); d++ {
		var following []string
		for _, f := range frontier {
			for n := range next(f) {
				if seen.has(n) {
					continue
				}
				seen.add(n)
				following = append(following, n)
				for e := range o.equivalentSet(n) {
					if !seen.has(e) {
						seen.add(e)
						following = append(following, e)
					}
				}
			}
		}
		frontier = following
	}
	return seen
}

func (o *Ontology) childSet(id string) idSet {
	out := make(idSet)
	for c := range o.children[id] {
		if _, ok := o.terms[c]; ok {
			out.add(c)
		}
	}
	return out
}

func (o *Ontology) upward(id string, depth int) idSet { return o.walk(id, depth, o.parentSet) }

func (o *Ontology) downward(id string) idSet { return o.walk(id, 0, o.childSet) }

// GeneralizedAncestors returns every ancestor of id reachable through is_a
// and equivalence edges, excluding id and its equivalents.
func (o *Ontology) GeneralizedAncestors(id string) []string {
	id, ok := o.resolve(id)
	if !ok {
		return nil
	}
	all := o.upward(id, 0)
	for s := range o.selfClass(id) {
		delete(all, s)
	}
	return all.sorted()
}

// GeneralizedDescendants returns every descendant of id reachable through
// is_a and equivalence edges, excluding id and its equivalents.
func (o *Ontology) GeneralizedDescendants(id string) []string {
	id, ok := o.resolve(id)
	if !ok {
		return nil
	}
	all := o.downward(id)
	for s := range o.selfClass(id) {
		delete(all, s)
	}
	return all.sorted()
}

// GeneralizedAncestorsUpToLevel climbs level generalized-parent steps from
// id. Chains that reach a root earlier stop at that root, and a term without
// parents yields itself, so the result is never empty for a present term.
func (o *Ontology) GeneralizedAncestorsUpToLevel(id string, level int) []string {
	id, ok := o.resolve(id)
	if !ok {
		return nil
	}
	type key struct {
		id    string
		level int
	}
	memo := make(map[key]idSet)
	var climb func(string, int) idSet
	climb = func(t string, l int) idSet {
		k := key{t, l}
		if r, ok := memo[k]; ok {
			return r
		}
		parents := o.generalizedParents(t)
		res := make(idSet)
		if l <= 0 || len(parents) == 0 {
			res.add(t)
		} else {
			for p := range parents {
				for a := range climb(p, l-1) {
					res.add(a)
				}
			}
		}
		memo[k] = res
		return res
	}
	return climb(id, level).sorted()
}

// SubTree returns id and all its is_a descendants.
func (o *Ontology) SubTree(id string) map[string]struct{} {
	out := make(map[string]struct{})
	id, ok := o.resolve(id)
	if !ok {
		return out
	}
	queue := []string{id}
	out[id] = struct{}{}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for c := range o.childSet(cur) {
			if _, seen := out[c]; seen {
				continue
			}
			out[c] = struct{}{}
			queue = append(queue, c)
		}
	}
	return out
}

// depths returns the distinct is_a path lengths from id to the roots.
func (o *Ontology) depths(id string, memo map[string]map[int]bool, visiting idSet) map[int]bool {
	if d, ok := memo[id]; ok {
		return d
	}
	if visiting.has(id) {
		return map[int]bool{0: true}
	}
	visiting.add(id)
	out := make(map[int]bool)
	parents := o.parentSet(id)
	if len(parents) == 0 {
		out[0] = true
	}
	for p := range parents {
		for d := range o.depths(p, memo, visiting) {
			out[d+1] = true
		}
	}
	delete(visiting, id)
	memo[id] = out
	return out
}

// Level is the mean of the distinct is_a distances from id to a root. Unknown
// ids have level 0.
func (o *Ontology) Level(id string) float64 {
	id, ok := o.resolve(id)
	if !ok {
		return 0
	}
	ds := o.depths(id, make(map[string]map[int]bool), make(idSet))
	if len(ds) == 0 {
		return 0
	}
	sum := 0
	for d := range ds {
		sum += d
	}
	return float64(sum) / float64(len(ds))
}

func (o *Ontology) minDepth(id string, memo map[string]map[int]bool) int {
	best := -1
	for d := range o.depths(id, memo, make(idSet)) {
		if best < 0 || d < best {
			best = d
		}
	}
	return best
}

// CommonAncestors returns the least common generalized ancestors of ids,
// each id counting as its own ancestor. When depth > 0 only ancestors within
// depth steps of every id are considered. Unknown ids are ignored. The result
// is ordered by decreasing level, then id.
func (o *Ontology) CommonAncestors(ids []string, depth int) []string {
	var common idSet
	for _, raw := range ids {
		id, ok := o.resolve(raw)
		if !ok {
			continue
		}
		up := o.upward(id, depth)
		if common == nil {
			common = up
			continue
		}
		for c := range common {
			if !up.has(c) {
				delete(common, c)
			}
		}
	}
	if len(common) == 0 {
		return nil
	}

	strict := make(map[string]idSet, len(common))
	for c := range common {
		anc := o.upward(c, 0)
		for s := range o.selfClass(c) {
			delete(anc, s)
		}
		strict[c] = anc
	}

	var least []string
	for c := range common {
		dominated := false
		for d := range common {
			if d != c && strict[d].has(c) {
				dominated = true
				break
			}
		}
		if !dominated {
			least = append(least, c)
		}
	}

	levels := make(map[string]float64, len(least))
	for _, c := range least {
		levels[c] = o.Level(c)
	}
	sort.Slice(least, func(i, j int) bool {
		if levels[least[i]] != levels[least[j]] {
			return levels[least[i]] > levels[least[j]]
		}
		return least[i] < least[j]
	})
	return least
}

// Trim keeps the given roots and everything below them (through is_a and
// equivalence edges) and removes every other term. Returns the number of
// removed terms.
func (o *Ontology) Trim(keep []string) int {
	keepSet := make(idSet)
	for _, raw := range keep {
		id, ok := o.resolve(raw)
		if !ok {
			continue
		}
		for d := range o.downward(id) {
			keepSet.add(d)
		}
	}
	removed := 0
	for _, id := range o.IDs() {
		if !keepSet.has(id) && o.RemoveTerm(id, true) {
			removed++
		}
	}
	return removed
}

// Filter keeps only the generalized ancestors-or-self of ids, then removes
// the kept ancestors lying closer than minDepth to a root. Terms named in ids
// are never removed. Returns the number of removed terms.
func (o *Ontology) Filter(ids []string, minDepth int) int {
	named := make(idSet)
	keepSet := make(idSet)
	for _, raw := range ids {
		id, ok := o.resolve(raw)
		if !ok {
			continue
		}
		named.add(id)
		for a := range o.upward(id, 0) {
			keepSet.add(a)
		}
	}

	memo := make(map[string]map[int]bool)
	shallow := make(idSet)
	if minDepth > 0 {
		for id := range keepSet {
			if !named.has(id) && o.minDepth(id, memo) < minDepth {
				shallow.add(id)
			}
		}
	}

	removed := 0
	for _, id := range o.IDs() {
		if keepSet.has(id) && !shallow.has(id) {
			continue
		}
		if o.RemoveTerm(id, true) {
			removed++
		}
	}
	return removed
}

// Clone returns a deep copy that can be mutated independently.
func (o *Ontology) Clone() *Ontology {
	c := New(o.EquivalenceTypes()...)
	for _, id := range o.IDs() {
		t := o.terms[id]
		cp := *t
		cp.AltIDs = append([]string(nil), t.AltIDs...)
		cp.Parents = append([]string(nil), t.Parents...)
		cp.Relationships = append([]Relationship(nil), t.Relationships...)
		c.AddTerm(&cp)
	}
	return c
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func without(list []string, v string) []string {
	out := list[:0]
	for _, x := range list {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
