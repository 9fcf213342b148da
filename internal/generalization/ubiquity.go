package generalization

import (
	"sort"

	"github.com/turtacn/MetaNet-Generalizer/internal/domain/network"
	"github.com/turtacn/MetaNet-Generalizer/internal/domain/ontology"
)

// DefaultUbiquitousThreshold caps the reaction count above which a term is
// considered ubiquitous by frequency.
const DefaultUbiquitousThreshold = 20

// CommonUbiquitousTermIDs are small inorganic molecules present in most
// reactions of any network.
var CommonUbiquitousTermIDs = []string{
	"chebi:15377", // water
	"chebi:15378", // hydron
	"chebi:24636", // proton
	"chebi:15379", // dioxygen
	"chebi:16526", // carbon dioxide
	"chebi:43474", // hydrogenphosphate
	"chebi:18367", // phosphate(3-)
	"chebi:26078", // phosphoric acid
	"chebi:33019", // diphosphate(3-)
	"chebi:29888", // diphosphoric acid
	"chebi:18361", // hydrogendiphosphate
	"chebi:28938", // ammonium
	"chebi:16134", // ammonia
	"chebi:16240", // hydrogen peroxide
}

// CofactorTermIDs are the energy and redox carriers.
var CofactorTermIDs = []string{
	"chebi:30616", "chebi:15422", // ATP
	"chebi:456216", "chebi:16761", // ADP
	"chebi:456215", "chebi:16027", // AMP
	"chebi:57540", "chebi:15846", // NAD+
	"chebi:57945", "chebi:16908", // NADH
	"chebi:58349", "chebi:18009", // NADP+
	"chebi:57783", "chebi:16474", // NADPH
	"chebi:57287", "chebi:15346", // coenzyme A
	"chebi:16238", "chebi:17877", // FAD, FADH2
	"chebi:15996", "chebi:17552", // GTP, GDP
	"chebi:15713", "chebi:17659", // UTP, UDP
}

// ProtonTermIDs are ubiquitous terms left out of vertical keys.
var ProtonTermIDs = []string{"chebi:15378", "chebi:24636"}

// FrequencyThreshold returns min(max(3, reactions/10), limit).
func FrequencyThreshold(reactions, limit int) int {
	if limit <= 0 {
		limit = DefaultUbiquitousThreshold
	}
	t := reactions / 10
	if t < 3 {
		t = 3
	}
	if t > limit {
		t = limit
	}
	return t
}

// FrequentTermIDs returns the terms whose species take part in at least
// threshold reactions, sorted.
func FrequentTermIDs(net *network.Network, threshold int) []string {
	terms := net.SpeciesTermMap()
	counts := make(map[string]int)
	for _, r := range net.Reactions {
		seen := make(map[string]bool)
		for _, s := range r.SpeciesIDs() {
			if t, ok := terms[s]; ok && !seen[t] {
				seen[t] = true
				counts[t]++
			}
		}
	}
	var out []string
	for t, n := range counts {
		if n >= threshold {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// withEquivalents adds the equivalents of every id known to onto.
func withEquivalents(onto *ontology.Ontology, ids []string) map[string]bool {
	out := make(map[string]bool, len(ids))
	for _, id := range ontology.NormalizeIDs(ids) {
		out[id] = true
		if canonical, ok := onto.Canonical(id); ok {
			out[canonical] = true
			for _, eq := range onto.Equivalents(canonical) {
				out[eq] = true
			}
		}
	}
	return out
}

// Ubiquity is the resolved classification of ubiquitous participants.
type Ubiquity struct {
	TermIDs    map[string]bool
	SpeciesIDs map[string]bool
	Ignored    map[string]bool
}

// ResolveUbiquity decides which terms and species are ubiquitous. Explicit
// species win: their terms join the given term ids. Otherwise the given
// term ids, or the built-in common and cofactor ids, are expanded with
// their equivalents and every species annotated with one of them is
// ubiquitous.
func ResolveUbiquity(net *network.Network, onto *ontology.Ontology, termIDs, speciesIDs, ignored []string) Ubiquity {
	u := Ubiquity{SpeciesIDs: make(map[string]bool), Ignored: make(map[string]bool)}
	terms := net.SpeciesTermMap()
	if len(speciesIDs) > 0 {
		u.TermIDs = make(map[string]bool)
		for _, t := range ontology.NormalizeIDs(termIDs) {
			u.TermIDs[t] = true
		}
		for _, s := range speciesIDs {
			u.SpeciesIDs[s] = true
			if t, ok := terms[s]; ok {
				u.TermIDs[t] = true
			}
		}
	} else {
		if len(termIDs) == 0 {
			termIDs = append(append([]string(nil), CommonUbiquitousTermIDs...), CofactorTermIDs...)
		}
		u.TermIDs = withEquivalents(onto, termIDs)
		for s, t := range terms {
			if u.TermIDs[t] {
				u.SpeciesIDs[s] = true
			}
		}
	}
	if len(ignored) == 0 {
		ignored = ProtonTermIDs
	}
	for _, t := range ontology.NormalizeIDs(ignored) {
		u.Ignored[t] = true
	}
	return u
}
