package generalization

import (
	"fmt"
	"sort"
	"strings"

	"github.com/turtacn/MetaNet-Generalizer/internal/domain/network"
	"github.com/turtacn/MetaNet-Generalizer/internal/domain/ontology"
)

// UbiquitousGroupID is the id of the group holding ubiquitous species.
const UbiquitousGroupID = "g_ubiquitous"

// SpeciesGroup is a generalized species: the members of one species cluster.
type SpeciesGroup struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	TermID      string   `json:"term_id,omitempty" yaml:"term_id,omitempty"`
	Compartment string   `json:"compartment,omitempty" yaml:"compartment,omitempty"`
	Members     []string `json:"members" yaml:"members"`
}

// ReactionGroup is a generalized reaction over species groups.
type ReactionGroup struct {
	ID         string                `json:"id" yaml:"id"`
	Name       string                `json:"name" yaml:"name"`
	Reversible bool                  `json:"reversible" yaml:"reversible"`
	Members    []string              `json:"members" yaml:"members"`
	Reactants  []network.Participant `json:"reactants" yaml:"reactants"`
	Products   []network.Participant `json:"products" yaml:"products"`
}

// View is the generalized network: groups of species and reactions that
// stand for their members.
type View struct {
	NetworkID      string          `json:"network_id" yaml:"network_id"`
	SpeciesGroups  []SpeciesGroup  `json:"species_groups" yaml:"species_groups"`
	ReactionGroups []ReactionGroup `json:"reaction_groups" yaml:"reaction_groups"`
	Ubiquitous     *SpeciesGroup   `json:"ubiquitous,omitempty" yaml:"ubiquitous,omitempty"`
}

func termName(onto *ontology.Ontology, res *Result, id string) (string, bool) {
	if onto != nil {
		if t, ok := onto.Term(id); ok && t.Name != "" {
			return t.Name, true
		}
	}
	for _, p := range res.Placeholders {
		if p.ID == id {
			return p.Name, true
		}
	}
	return "", false
}

// BuildView groups the species and reactions of net according to res.
// onto supplies display names and may be nil.
func BuildView(net *network.Network, onto *ontology.Ontology, res *Result) *View {
	v := &View{NetworkID: net.ID}

	byCluster := make(map[SpeciesCluster][]string)
	for _, s := range net.Species {
		if c, ok := res.Species[s.ID]; ok {
			byCluster[c] = append(byCluster[c], s.ID)
		}
	}
	clusters := make([]SpeciesCluster, 0, len(byCluster))
	for c := range byCluster {
		clusters = append(clusters, c)
	}
	sort.Slice(clusters, func(i, j int) bool {
		if clusters[i].Compartment != clusters[j].Compartment {
			return clusters[i].Compartment < clusters[j].Compartment
		}
		return clusters[i].TermID < clusters[j].TermID
	})

	groupOf := make(map[string]string)
	for i, c := range clusters {
		members := byCluster[c]
		g := SpeciesGroup{
			ID:          fmt.Sprintf("g_species_%d", i+1),
			TermID:      c.TermID,
			Compartment: c.Compartment,
			Members:     members,
		}
		compName := c.Compartment
		if comp, ok := net.CompartmentByID(c.Compartment); ok && comp.Name != "" {
			compName = comp.Name
		}
		if name, ok := termName(onto, res, c.TermID); ok {
			g.Name = fmt.Sprintf("%s (%d) [%s]", name, len(members), compName)
		} else {
			names := make([]string, 0, len(members))
			for _, s := range members {
				sp, _ := net.SpeciesByID(s)
				if sp.Name != "" {
					names = append(names, sp.Name)
				} else {
					names = append(names, sp.ID)
				}
			}
			g.Name = strings.Join(names, " or ")
		}
		for _, s := range members {
			groupOf[s] = g.ID
		}
		v.SpeciesGroups = append(v.SpeciesGroups, g)
	}

	byReaction := make(map[int][]string)
	var order []int
	for _, r := range net.Reactions {
		c, ok := res.Reactions[r.ID]
		if !ok {
			continue
		}
		if _, seen := byReaction[c]; !seen {
			order = append(order, c)
		}
		byReaction[c] = append(byReaction[c], r.ID)
	}
	n := 0
	for _, c := range order {
		members := byReaction[c]
		if len(members) < 2 {
			continue
		}
		n++
		rep, _ := net.ReactionByID(members[0])
		name := rep.Name
		if name == "" {
			name = rep.ID
		}
		g := ReactionGroup{
			ID:         fmt.Sprintf("g_reaction_%d", n),
			Name:       "generalized " + name,
			Reversible: true,
			Members:    members,
			Reactants:  regroup(rep.Reactants, groupOf),
			Products:   regroup(rep.Products, groupOf),
		}
		for _, id := range members {
			if r, _ := net.ReactionByID(id); !r.Reversible {
				g.Reversible = false
			}
		}
		v.ReactionGroups = append(v.ReactionGroups, g)
	}

	if len(res.UbiquitousSpecies) > 0 {
		v.Ubiquitous = &SpeciesGroup{
			ID:      UbiquitousGroupID,
			Name:    "ubiquitous",
			Members: append([]string(nil), res.UbiquitousSpecies...),
		}
	}
	return v
}

// regroup replaces clustered species by their group, merging duplicates.
func regroup(side []network.Participant, groupOf map[string]string) []network.Participant {
	out := make([]network.Participant, 0, len(side))
	seen := make(map[string]bool)
	for _, p := range side {
		id := p.SpeciesID
		if g, ok := groupOf[id]; ok {
			id = g
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, network.Participant{SpeciesID: id, Stoichiometry: p.Stoichiometry})
	}
	return out
}
