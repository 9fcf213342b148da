package generalization

import (
	"time"
)

// TermAssignment maps a clustered term (or unmapped species) to the term
// representing its cluster.
type TermAssignment struct {
	ID             string `json:"id" yaml:"id"`
	Species        bool   `json:"species,omitempty" yaml:"species,omitempty"`
	Representative string `json:"representative" yaml:"representative"`
}

// SpeciesCluster identifies a species cluster: one representative term in
// one compartment.
type SpeciesCluster struct {
	Compartment string `json:"compartment" yaml:"compartment"`
	TermID      string `json:"term_id" yaml:"term_id"`
}

// Placeholder is a representative term synthesized during finalization.
type Placeholder struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Stats summarises a run.
type Stats struct {
	TermClusters         int           `json:"term_clusters" yaml:"term_clusters"`
	SpeciesClusters      int           `json:"species_clusters" yaml:"species_clusters"`
	ReactionClusters     int           `json:"reaction_clusters" yaml:"reaction_clusters"`
	GeneralizedReactions int           `json:"generalized_reactions" yaml:"generalized_reactions"`
	Placeholders         int           `json:"placeholders" yaml:"placeholders"`
	Iterations           int           `json:"iterations" yaml:"iterations"`
	Elapsed              time.Duration `json:"elapsed_ns" yaml:"elapsed_ns"`
}

// Result is the outcome of one generalization run. Species missing from
// Species are not clustered.
type Result struct {
	NetworkID         string                    `json:"network_id" yaml:"network_id"`
	Terms             []TermAssignment          `json:"terms" yaml:"terms"`
	Species           map[string]SpeciesCluster `json:"species" yaml:"species"`
	Reactions         map[string]int            `json:"reactions" yaml:"reactions"`
	UbiquitousSpecies []string                  `json:"ubiquitous_species" yaml:"ubiquitous_species"`
	UbiquitousTermIDs []string                  `json:"ubiquitous_term_ids" yaml:"ubiquitous_term_ids"`
	Placeholders      []Placeholder             `json:"placeholders,omitempty" yaml:"placeholders,omitempty"`
	Stats             Stats                     `json:"stats" yaml:"stats"`
}

// Representative returns the representative of a clustered term.
func (r *Result) Representative(termID string) (string, bool) {
	for _, t := range r.Terms {
		if !t.Species && t.ID == termID {
			return t.Representative, true
		}
	}
	return "", false
}

// SameSpeciesCluster reports whether both species ended up in one cluster.
func (r *Result) SameSpeciesCluster(a, b string) bool {
	ca, okA := r.Species[a]
	cb, okB := r.Species[b]
	return okA && okB && ca == cb
}

// SameReactionCluster reports whether both reactions share a vertical key.
func (r *Result) SameReactionCluster(a, b string) bool {
	ca, okA := r.Reactions[a]
	cb, okB := r.Reactions[b]
	return okA && okB && ca == cb
}
