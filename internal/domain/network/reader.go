package network

import (
	"encoding/json"
	"io"
	"os"

	"github.com/turtacn/MetaNet-Generalizer/internal/domain/ontology"
	"github.com/turtacn/MetaNet-Generalizer/pkg/errors"
)

// Decode reads a JSON network document, normalizes term ids, defaults
// missing stoichiometry to 1 and validates the result.
func Decode(r io.Reader) (*Network, error) {
	var n Network
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&n); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeNetworkParse, "failed to decode network document")
	}
	if err := n.Normalize(); err != nil {
		return nil, err
	}
	return &n, nil
}

// Normalize prepares a network built in memory or decoded from another
// encoding: term ids are normalized, zero stoichiometry becomes 1, the index
// is rebuilt and the network is validated.
func (n *Network) Normalize() error {
	for i := range n.Species {
		n.Species[i].TermID = ontology.NormalizeID(n.Species[i].TermID)
	}
	for i := range n.Reactions {
		for _, side := range [][]Participant{n.Reactions[i].Reactants, n.Reactions[i].Products} {
			for j := range side {
				if side[j].Stoichiometry == 0 {
					side[j].Stoichiometry = 1
				}
			}
		}
	}
	n.Reindex()
	return n.Validate()
}

// LoadFile opens and decodes a JSON network file.
func LoadFile(path string) (*Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeNetworkParse, "failed to open network file").WithDetail(path)
	}
	defer f.Close()
	return Decode(f)
}
