// Package ontology models the chemical classification hierarchy (ChEBI) used
// to decide which metabolites may share a cluster. Terms are linked by is_a
// edges and by typed relationships; a configurable subset of relationship
// types (conjugate acid/base, tautomer) is treated as equivalence.
package ontology

import "strings"

// Relationship is a typed, directed edge to another term.
type Relationship struct {
	Type     string `json:"type"`
	TargetID string `json:"target_id"`
}

// Term is one node of the ontology.
type Term struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	AltIDs        []string       `json:"alt_ids,omitempty"`
	Parents       []string       `json:"parents,omitempty"`
	Relationships []Relationship `json:"relationships,omitempty"`
	Obsolete      bool           `json:"obsolete,omitempty"`
}

// NormalizeID trims id and lower-cases its prefix, so that "CHEBI:15377"
// and "chebi:15377" name the same term.
func NormalizeID(id string) string {
	id = strings.TrimSpace(id)
	prefix, rest, ok := strings.Cut(id, ":")
	if !ok {
		return id
	}
	return strings.ToLower(prefix) + ":" + rest
}

// NormalizeIDs applies NormalizeID to every element, dropping empties.
func NormalizeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if n := NormalizeID(id); n != "" {
			out = append(out, n)
		}
	}
	return out
}
