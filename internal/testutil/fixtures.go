package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/turtacn/MetaNet-Generalizer/internal/domain/network"
	"github.com/turtacn/MetaNet-Generalizer/internal/domain/ontology"
)

// HexoseNetworkJSON phosphorylates glucose and fructose with ATP in the
// cytosol. Glucose and fructose share chebi:18133 (hexose), their phosphates
// share chebi:26816 (hexose phosphate).
const HexoseNetworkJSON = `{
  "id": "hexose",
  "name": "hexose phosphorylation",
  "compartments": [{"id": "c", "name": "cytosol"}],
  "species": [
    {"id": "glc", "name": "D-glucose", "compartment": "c", "term_id": "CHEBI:17634"},
    {"id": "fru", "name": "D-fructose", "compartment": "c", "term_id": "CHEBI:15824"},
    {"id": "g6p", "name": "glucose 6-phosphate", "compartment": "c", "term_id": "CHEBI:4170"},
    {"id": "f6p", "name": "fructose 6-phosphate", "compartment": "c", "term_id": "CHEBI:15946"},
    {"id": "atp", "name": "ATP", "compartment": "c", "term_id": "CHEBI:15422"},
    {"id": "adp", "name": "ADP", "compartment": "c", "term_id": "CHEBI:16761"}
  ],
  "reactions": [
    {"id": "HEX1", "name": "hexokinase", "reversible": false,
     "reactants": [{"species": "glc"}, {"species": "atp"}],
     "products": [{"species": "g6p"}, {"species": "adp"}]},
    {"id": "FRUK", "name": "fructokinase", "reversible": false,
     "reactants": [{"species": "fru"}, {"species": "atp"}],
     "products": [{"species": "f6p"}, {"species": "adp"}]}
  ]
}`

// HexoseOBO is the ontology fragment covering HexoseNetworkJSON.
const HexoseOBO = `format-version: 1.2
data-version: test/2026-01
ontology: chebi

[Term]
id: CHEBI:18133
name: hexose

[Term]
id: CHEBI:26816
name: hexose phosphate

[Term]
id: CHEBI:17634
name: D-glucose
is_a: CHEBI:18133

[Term]
id: CHEBI:15824
name: D-fructose
is_a: CHEBI:18133

[Term]
id: CHEBI:4170
name: D-glucose 6-phosphate
is_a: CHEBI:26816

[Term]
id: CHEBI:15946
name: D-fructose 6-phosphate
is_a: CHEBI:26816

[Term]
id: CHEBI:15422
name: ATP

[Term]
id: CHEBI:16761
name: ADP
`

// HexoseNetwork decodes HexoseNetworkJSON.
func HexoseNetwork(t testing.TB) *network.Network {
	t.Helper()
	net, err := network.Decode(strings.NewReader(HexoseNetworkJSON))
	require.NoError(t, err)
	return net
}

// HexoseOntology parses HexoseOBO.
func HexoseOntology(t testing.TB) (*ontology.Ontology, ontology.Header) {
	t.Helper()
	onto, hdr, err := ontology.LoadOBOFile(WriteFile(t, "chebi.obo", HexoseOBO))
	require.NoError(t, err)
	return onto, hdr
}

// WriteFile writes content to name inside a per-test temporary directory and
// returns the path.
func WriteFile(t testing.TB, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
