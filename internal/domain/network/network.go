// Package network models the biochemical reaction network being generalized:
// compartments, species (optionally annotated with an ontology term) and
// reactions with stoichiometry.
package network

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/turtacn/MetaNet-Generalizer/pkg/errors"
)

// Compartment is a spatial container for species.
type Compartment struct {
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name,omitempty" yaml:"name,omitempty"`
	Outside string `json:"outside,omitempty" yaml:"outside,omitempty"`
}

// Species is a metabolite located in one compartment.
type Species struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Compartment string `json:"compartment" yaml:"compartment"`
	// TermID is the ontology term annotating the species, empty if unmapped.
	TermID string `json:"term_id,omitempty" yaml:"term_id,omitempty"`
}

// Participant is a species reference with its stoichiometric coefficient.
type Participant struct {
	SpeciesID     string  `json:"species" yaml:"species"`
	Stoichiometry float64 `json:"stoichiometry,omitempty" yaml:"stoichiometry,omitempty"`
}

// Reaction converts reactants into products.
type Reaction struct {
	ID         string        `json:"id" yaml:"id"`
	Name       string        `json:"name,omitempty" yaml:"name,omitempty"`
	Reversible bool          `json:"reversible" yaml:"reversible"`
	Reactants  []Participant `json:"reactants" yaml:"reactants"`
	Products   []Participant `json:"products" yaml:"products"`
}

// NumParticipants counts reactant and product references.
func (r *Reaction) NumParticipants() int { return len(r.Reactants) + len(r.Products) }

// SpeciesIDs returns the distinct species of the reaction, reactants first.
func (r *Reaction) SpeciesIDs() []string {
	seen := make(map[string]bool, r.NumParticipants())
	out := make([]string, 0, r.NumParticipants())
	for _, side := range [][]Participant{r.Reactants, r.Products} {
		for _, p := range side {
			if !seen[p.SpeciesID] {
				seen[p.SpeciesID] = true
				out = append(out, p.SpeciesID)
			}
		}
	}
	return out
}

// Network is the in-memory model. It is read-only while the engine runs.
type Network struct {
	ID           string        `json:"id" yaml:"id"`
	Name         string        `json:"name,omitempty" yaml:"name,omitempty"`
	Compartments []Compartment `json:"compartments" yaml:"compartments"`
	Species      []Species     `json:"species" yaml:"species"`
	Reactions    []Reaction    `json:"reactions" yaml:"reactions"`

	indexed        bool
	compartmentIdx map[string]int
	speciesIdx     map[string]int
	reactionIdx    map[string]int
}

// Reindex rebuilds the id lookup tables. Call it after editing the slices
// and before sharing the network between goroutines; lookups only build the
// tables when they were never built.
func (n *Network) Reindex() {
	n.compartmentIdx = make(map[string]int, len(n.Compartments))
	for i, c := range n.Compartments {
		n.compartmentIdx[c.ID] = i
	}
	n.speciesIdx = make(map[string]int, len(n.Species))
	for i, s := range n.Species {
		n.speciesIdx[s.ID] = i
	}
	n.reactionIdx = make(map[string]int, len(n.Reactions))
	for i, r := range n.Reactions {
		n.reactionIdx[r.ID] = i
	}
	n.indexed = true
}

func (n *Network) ensureIndex() {
	if !n.indexed {
		n.Reindex()
	}
}

// SpeciesByID looks a species up.
func (n *Network) SpeciesByID(id string) (*Species, bool) {
	n.ensureIndex()
	i, ok := n.speciesIdx[id]
	if !ok {
		return nil, false
	}
	return &n.Species[i], true
}

// CompartmentByID looks a compartment up.
func (n *Network) CompartmentByID(id string) (*Compartment, bool) {
	n.ensureIndex()
	i, ok := n.compartmentIdx[id]
	if !ok {
		return nil, false
	}
	return &n.Compartments[i], true
}

// ReactionByID looks a reaction up.
func (n *Network) ReactionByID(id string) (*Reaction, bool) {
	n.ensureIndex()
	i, ok := n.reactionIdx[id]
	if !ok {
		return nil, false
	}
	return &n.Reactions[i], true
}

// CompartmentOf returns the compartment id of a species, or "" if unknown.
func (n *Network) CompartmentOf(speciesID string) string {
	if s, ok := n.SpeciesByID(speciesID); ok {
		return s.Compartment
	}
	return ""
}

// SpeciesTermMap returns species id -> term id for annotated species.
func (n *Network) SpeciesTermMap() map[string]string {
	out := make(map[string]string, len(n.Species))
	for _, s := range n.Species {
		if s.TermID != "" {
			out[s.ID] = s.TermID
		}
	}
	return out
}

// UnmappedSpecies returns the ids of species without a term, sorted.
func (n *Network) UnmappedSpecies() []string {
	var out []string
	for _, s := range n.Species {
		if s.TermID == "" {
			out = append(out, s.ID)
		}
	}
	sort.Strings(out)
	return out
}

// Validate checks referential integrity: unique ids, known compartments and
// species, positive stoichiometry.
func (n *Network) Validate() error {
	if len(n.Reactions) == 0 {
		return errors.New(errors.ErrCodeEmptyNetwork, "network has no reactions")
	}
	seen := make(map[string]string)
	check := func(kind, id string) error {
		if id == "" {
			return errors.Newf(errors.ErrCodeNetworkInvalid, "%s with empty id", kind)
		}
		if prev, dup := seen[id]; dup {
			return errors.Newf(errors.ErrCodeDuplicateElement, "duplicate id %q (%s and %s)", id, prev, kind)
		}
		seen[id] = kind
		return nil
	}
	for _, c := range n.Compartments {
		if err := check("compartment", c.ID); err != nil {
			return err
		}
	}
	compartments := make(map[string]bool, len(n.Compartments))
	for _, c := range n.Compartments {
		compartments[c.ID] = true
	}
	for _, c := range n.Compartments {
		if c.Outside != "" && !compartments[c.Outside] {
			return errors.Newf(errors.ErrCodeUnknownCompartment, "compartment %q is outside unknown compartment %q", c.ID, c.Outside)
		}
	}
	for _, s := range n.Species {
		if err := check("species", s.ID); err != nil {
			return err
		}
		if !compartments[s.Compartment] {
			return errors.Newf(errors.ErrCodeUnknownCompartment, "species %q refers to unknown compartment %q", s.ID, s.Compartment)
		}
	}
	species := make(map[string]bool, len(n.Species))
	for _, s := range n.Species {
		species[s.ID] = true
	}
	for _, r := range n.Reactions {
		if err := check("reaction", r.ID); err != nil {
			return err
		}
		if r.NumParticipants() == 0 {
			return errors.Newf(errors.ErrCodeNetworkInvalid, "reaction %q has no participants", r.ID)
		}
		for _, side := range [][]Participant{r.Reactants, r.Products} {
			for _, p := range side {
				if !species[p.SpeciesID] {
					return errors.Newf(errors.ErrCodeUnknownSpecies, "reaction %q refers to unknown species %q", r.ID, p.SpeciesID)
				}
				if p.Stoichiometry <= 0 {
					return errors.Newf(errors.ErrCodeInvalidStoichiometry,
						"reaction %q has non-positive stoichiometry %v for %q", r.ID, p.Stoichiometry, p.SpeciesID)
				}
			}
		}
	}
	return nil
}

// Digest returns a stable SHA-256 over the network content, used as a cache
// key for generalization results.
func (n *Network) Digest() (string, error) {
	raw, err := json.Marshal(n)
	if err != nil {
		return "", fmt.Errorf("network: digest: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Stats summarises the network size.
type Stats struct {
	Compartments int `json:"compartments"`
	Species      int `json:"species"`
	Reactions    int `json:"reactions"`
	Unmapped     int `json:"unmapped"`
}

// Stats returns element counts.
func (n *Network) Stats() Stats {
	return Stats{
		Compartments: len(n.Compartments),
		Species:      len(n.Species),
		Reactions:    len(n.Reactions),
		Unmapped:     len(n.UnmappedSpecies()),
	}
}
