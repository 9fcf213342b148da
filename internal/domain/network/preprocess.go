package network

import (
	"sort"
	"strings"
)

// RemoveIsAReactions drops the purely hierarchical "isa" reactions some
// reconstructions carry, e.g. "lauroyl-CoA isa fatty-acyl-CoA": one reactant,
// one product, same compartment, "isa " in the name. Returns removed ids.
func (n *Network) RemoveIsAReactions() []string {
	var removed []string
	kept := n.Reactions[:0]
	for _, r := range n.Reactions {
		if isIsAReaction(n, r) {
			removed = append(removed, r.ID)
			continue
		}
		kept = append(kept, r)
	}
	n.Reactions = kept
	n.Reindex()
	return removed
}

func isIsAReaction(n *Network, r Reaction) bool {
	if len(r.Reactants) != 1 || len(r.Products) != 1 {
		return false
	}
	if !strings.Contains(r.Name, "isa ") {
		return false
	}
	return n.CompartmentOf(r.Reactants[0].SpeciesID) == n.CompartmentOf(r.Products[0].SpeciesID)
}

// RemoveUnusedElements drops species that take part in no reaction and
// compartments that neither contain a remaining species nor enclose one.
// Returns the number of removed species and compartments.
func (n *Network) RemoveUnusedElements() (int, int) {
	used := make(map[string]bool)
	for _, r := range n.Reactions {
		for _, id := range r.SpeciesIDs() {
			used[id] = true
		}
	}
	keptSpecies := n.Species[:0]
	for _, s := range n.Species {
		if used[s.ID] {
			keptSpecies = append(keptSpecies, s)
		}
	}
	removedSpecies := len(n.Species) - len(keptSpecies)
	n.Species = keptSpecies
	n.Reindex()

	keepComp := make(map[string]bool)
	for _, s := range n.Species {
		c := s.Compartment
		for c != "" && !keepComp[c] {
			keepComp[c] = true
			comp, ok := n.CompartmentByID(c)
			if !ok {
				break
			}
			c = comp.Outside
		}
	}
	keptComps := n.Compartments[:0]
	for _, c := range n.Compartments {
		if keepComp[c.ID] {
			keptComps = append(keptComps, c)
		}
	}
	removedComps := len(n.Compartments) - len(keptComps)
	n.Compartments = keptComps
	n.Reindex()
	return removedSpecies, removedComps
}

// BiomassReactionIDs returns the reactions whose id or name mentions
// "biomass", sorted. Their atypical stoichiometry is excluded from keys.
func (n *Network) BiomassReactionIDs() []string {
	var out []string
	for _, r := range n.Reactions {
		if strings.Contains(strings.ToLower(r.ID), "biomass") || strings.Contains(strings.ToLower(r.Name), "biomass") {
			out = append(out, r.ID)
		}
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy of the network.
func (n *Network) Clone() *Network {
	c := &Network{
		ID:           n.ID,
		Name:         n.Name,
		Compartments: append([]Compartment(nil), n.Compartments...),
		Species:      append([]Species(nil), n.Species...),
		Reactions:    make([]Reaction, len(n.Reactions)),
	}
	for i, r := range n.Reactions {
		r.Reactants = append([]Participant(nil), r.Reactants...)
		r.Products = append([]Participant(nil), r.Products...)
		c.Reactions[i] = r
	}
	c.Reindex()
	return c
}
