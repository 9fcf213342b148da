package generalization

import (
	"github.com/turtacn/MetaNet-Generalizer/internal/domain/cluster"
	"github.com/turtacn/MetaNet-Generalizer/internal/domain/network"
)

type elementSet map[string]KeyElement

func newElementSet(side Side) elementSet {
	out := make(elementSet, len(side))
	for _, e := range side {
		out[e.key()] = e
	}
	return out
}

// minus returns the elements of s missing from other.
func (s elementSet) minus(other elementSet) []KeyElement {
	var out []KeyElement
	for k, e := range s {
		if _, ok := other[k]; !ok {
			out = append(out, e)
		}
	}
	return out
}

func (s elementSet) subsetOf(other elementSet) bool {
	for k := range s {
		if _, ok := other[k]; !ok {
			return false
		}
	}
	return true
}

// speciesOf returns the species a singleton species class stands for.
func speciesOf(e KeyElement) (string, bool) {
	if len(e.Class) != 1 || e.Class[0].Kind != cluster.SegmentSpecies {
		return "", false
	}
	return e.Class[0].ID, true
}

type clusterRef struct {
	compartment string
	path        string
}

// inferrer proposes clusters for unmapped species by matching the reactions
// they take part in against groups of reactions sharing a vertical key.
type inferrer struct {
	env      *env
	clusters map[string]cluster.Path
	members  map[clusterRef]map[string]bool
	unmapped map[string]bool
	byKind   map[string][]VerticalKey
	reacts   map[string]map[string]bool
	skip     map[string]bool
}

func (e *env) newInferrer(speciesClusters map[string]cluster.Path, unmapped []string) *inferrer {
	inf := &inferrer{
		env:      e,
		clusters: make(map[string]cluster.Path, len(speciesClusters)),
		members:  make(map[clusterRef]map[string]bool),
		unmapped: make(map[string]bool, len(unmapped)),
		byKind:   make(map[string][]VerticalKey),
		reacts:   make(map[string]map[string]bool),
		skip:     make(map[string]bool),
	}
	for s, p := range speciesClusters {
		inf.assign(s, p)
	}
	for _, s := range unmapped {
		inf.unmapped[s] = true
	}

	idx := BuildKeyIndex(e.net, e.keyComputer(inf.clusters), e.ignore)
	for _, g := range idx.Groups {
		if len(g.Reactions) <= 1 {
			continue
		}
		sk := g.Key.Simplify().Key()
		inf.byKind[sk] = append(inf.byKind[sk], g.Key)
		for _, r := range g.Reactions {
			inf.skip[r] = true
		}
	}
	for i := range e.net.Reactions {
		r := &e.net.Reactions[i]
		if r.NumParticipants() <= 2 || e.ignore[r.ID] {
			continue
		}
		for _, s := range r.SpeciesIDs() {
			if inf.reacts[s] == nil {
				inf.reacts[s] = make(map[string]bool)
			}
			inf.reacts[s][r.ID] = true
		}
	}
	return inf
}

func (inf *inferrer) assign(speciesID string, p cluster.Path) {
	inf.clusters[speciesID] = p
	ref := clusterRef{compartment: inf.env.net.CompartmentOf(speciesID), path: p.Key()}
	if inf.members[ref] == nil {
		inf.members[ref] = make(map[string]bool)
	}
	inf.members[ref][speciesID] = true
}

// conflicts reports whether putting speciesID into p would make it share a
// reaction with a species already there or already proposed for it.
func (inf *inferrer) conflicts(speciesID string, p cluster.Path, proposal map[string]cluster.Path) bool {
	comp := inf.env.net.CompartmentOf(speciesID)
	ref := clusterRef{compartment: comp, path: p.Key()}
	others := make([]string, 0, len(inf.members[ref]))
	for s := range inf.members[ref] {
		others = append(others, s)
	}
	for s, q := range proposal {
		if q.Equal(p) && inf.env.net.CompartmentOf(s) == comp {
			others = append(others, s)
		}
	}
	own := inf.reacts[speciesID]
	for _, o := range others {
		for r := range inf.reacts[o] {
			if own[r] {
				return true
			}
		}
	}
	return false
}

func (inf *inferrer) touchesUnmapped(r *network.Reaction) bool {
	for _, s := range r.SpeciesIDs() {
		if inf.unmapped[s] {
			return true
		}
	}
	return false
}

func (inf *inferrer) partial(side Side) elementSet {
	out := make(elementSet, len(side))
	for _, e := range side {
		if s, ok := speciesOf(e); ok && inf.unmapped[s] {
			continue
		}
		out[e.key()] = e
	}
	return out
}

// propose matches one differing element pair: the reaction's element must
// be an unmapped species, the candidate's a real cluster.
func (inf *inferrer) propose(mine, theirs []KeyElement, proposal map[string]cluster.Path) bool {
	if len(mine) == 0 {
		return true
	}
	if len(mine) != 1 || len(theirs) != 1 {
		return true
	}
	s, ok := speciesOf(mine[0])
	if !ok || !inf.unmapped[s] {
		return false
	}
	if _, isSpecies := speciesOf(theirs[0]); isSpecies {
		return false
	}
	target := theirs[0].Class
	if inf.conflicts(s, target, proposal) {
		return false
	}
	proposal[s] = target
	return true
}

func sideEqual(a, b Side) bool { return a.Compare(b) == 0 }

// run infers clusters until every reaction has been tried once and returns
// the clusters found for the originally unmapped species.
func (inf *inferrer) run() map[string]cluster.Path {
	found := make(map[string]cluster.Path)
	if len(inf.unmapped) == 0 {
		return found
	}
	// kc shares inf.clusters, so accepted proposals feed later keys.
	kc := inf.env.keyComputer(inf.clusters)
	for i := range inf.env.net.Reactions {
		r := &inf.env.net.Reactions[i]
		if inf.skip[r.ID] || inf.env.ignore[r.ID] || !inf.touchesUnmapped(r) {
			continue
		}
		vk := kc.Compute(r)
		rs, ps := newElementSet(vk.Reactants), newElementSet(vk.Products)
		partialR, partialP := inf.partial(vk.Reactants), inf.partial(vk.Products)
		if len(vk.UbiquitousReactants)+len(vk.UbiquitousProducts)+len(partialR)+len(partialP) < 2 {
			continue
		}
		for _, cand := range inf.byKind[vk.Simplify().Key()] {
			candR, candP := newElementSet(cand.Reactants), newElementSet(cand.Products)
			switch {
			case sideEqual(cand.UbiquitousReactants, vk.UbiquitousReactants) &&
				sideEqual(cand.UbiquitousProducts, vk.UbiquitousProducts) &&
				partialR.subsetOf(candR) && partialP.subsetOf(candP):
			case sideEqual(cand.UbiquitousReactants, vk.UbiquitousProducts) &&
				sideEqual(cand.UbiquitousProducts, vk.UbiquitousReactants) &&
				partialR.subsetOf(candP) && partialP.subsetOf(candR):
				candR, candP = candP, candR
			default:
				continue
			}
			diffR, diffP := rs.minus(candR), ps.minus(candP)
			if len(diffR) > 1 || len(diffP) > 1 || len(diffR)+len(diffP) == 0 {
				continue
			}
			proposal := make(map[string]cluster.Path)
			if !inf.propose(diffR, candR.minus(rs), proposal) ||
				!inf.propose(diffP, candP.minus(ps), proposal) || len(proposal) == 0 {
				continue
			}
			for s, p := range proposal {
				inf.assign(s, p)
				delete(inf.unmapped, s)
				found[s] = p
			}
			break
		}
	}
	return found
}
