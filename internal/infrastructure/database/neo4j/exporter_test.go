package neo4j

import (
	"context"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/MetaNet-Generalizer/internal/domain/network"
	"github.com/turtacn/MetaNet-Generalizer/internal/generalization"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/MetaNet-Generalizer/pkg/errors"
)

// txStore runs reads against reads and writes against tx.
type txStore struct {
	reads *recordingTx
	tx    *recordingTx
}

func (s *txStore) ExecuteRead(ctx context.Context, work TxWork) (any, error) {
	if s.reads == nil {
		s.reads = &recordingTx{}
	}
	return work(s.reads)
}

func (s *txStore) ExecuteWrite(ctx context.Context, work TxWork) (any, error) {
	return work(s.tx)
}

func exportedRecord(digest string) *neo4j.Record {
	return &neo4j.Record{Keys: []string{"digest"}, Values: []any{digest}}
}

func sampleView() *generalization.View {
	return &generalization.View{
		NetworkID: "net-1",
		SpeciesGroups: []generalization.SpeciesGroup{
			{ID: "g_species_1", Name: "bd class (2) [cytosol]", TermID: "chebi:800", Compartment: "c", Members: []string{"B", "D"}},
		},
		ReactionGroups: []generalization.ReactionGroup{{
			ID:        "g_reaction_1",
			Name:      "generalized b to e",
			Members:   []string{"R3", "R4"},
			Reactants: []network.Participant{{SpeciesID: "g_species_1", Stoichiometry: 1}, {SpeciesID: "W", Stoichiometry: 1}},
			Products:  []network.Participant{{SpeciesID: "E", Stoichiometry: 1}, {SpeciesID: "W", Stoichiometry: 1}},
		}},
		Ubiquitous: &generalization.SpeciesGroup{ID: generalization.UbiquitousGroupID, Name: "ubiquitous", Members: []string{"W"}},
	}
}

func TestGraphExporter_Export(t *testing.T) {
	tx := &recordingTx{}
	db := &txStore{reads: &recordingTx{record: exportedRecord("older")}, tx: tx}
	exp := newGraphExporter(db, logging.NewNopLogger())
	exp.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

	summary, err := exp.Export(context.Background(), "run-1", "digest-1", sampleView())
	require.NoError(t, err)

	require.Len(t, db.reads.calls, 1)
	assert.Equal(t, cypherExportedDigest, db.reads.calls[0].cypher)

	// group, ubiquitous group, W and E
	assert.Equal(t, ExportSummary{SpeciesNodes: 4, ReactionNodes: 1, Edges: 4}, summary)

	require.Len(t, tx.calls, 6)
	assert.Equal(t, cypherClearNetwork, tx.calls[0].cypher)
	assert.Equal(t, "run-1", tx.calls[1].params["run_id"])
	assert.Equal(t, "digest-1", tx.calls[1].params["digest"])
	assert.Equal(t, "2024-03-01T12:00:00Z", tx.calls[1].params["exported_at"])
	for _, c := range tx.calls {
		assert.Equal(t, "net-1", c.params["network_id"])
	}

	species := tx.calls[2].params["species"].([]map[string]any)
	ids := make([]string, 0, len(species))
	for _, s := range species {
		ids = append(ids, s["id"].(string))
	}
	assert.Equal(t, []string{"g_species_1", generalization.UbiquitousGroupID, "W", "E"}, ids)
	assert.Equal(t, true, species[1]["ubiquitous"])
	assert.Equal(t, false, species[2]["group"])

	consumes := tx.calls[4].params["edges"].([]map[string]any)
	require.Len(t, consumes, 2)
	assert.Equal(t, map[string]any{"reaction": "g_reaction_1", "species": "g_species_1", "stoichiometry": 1.0}, consumes[0])
}

func TestGraphExporter_FailureIsWrapped(t *testing.T) {
	tx := &recordingTx{failAt: 3}
	exp := newGraphExporter(&txStore{tx: tx}, nil)

	_, err := exp.Export(context.Background(), "run-1", "digest-1", sampleView())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeExportFailed))
	assert.Len(t, tx.calls, 3, "statements after the failure are not run")
}

func TestGraphExporter_RejectsAnonymousView(t *testing.T) {
	exp := newGraphExporter(&txStore{tx: &recordingTx{}}, nil)
	_, err := exp.Export(context.Background(), "run-1", "digest-1", &generalization.View{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeValidation))
}

func TestGraphExporter_SkipsUnchangedDigest(t *testing.T) {
	tx := &recordingTx{}
	exp := newGraphExporter(&txStore{reads: &recordingTx{record: exportedRecord("digest-1")}, tx: tx}, nil)

	summary, err := exp.Export(context.Background(), "run-2", "digest-1", sampleView())
	require.NoError(t, err)
	assert.Equal(t, ExportSummary{Unchanged: true}, summary)
	assert.Empty(t, tx.calls)
}

func TestGraphExporter_ExportedDigest(t *testing.T) {
	exp := newGraphExporter(&txStore{reads: &recordingTx{}}, nil)
	digest, err := exp.ExportedDigest(context.Background(), "never-exported")
	require.NoError(t, err)
	assert.Empty(t, digest)

	exp = newGraphExporter(&txStore{reads: &recordingTx{failAt: 1}}, nil)
	_, err = exp.Export(context.Background(), "run-1", "digest-1", sampleView())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeExportFailed))
}
