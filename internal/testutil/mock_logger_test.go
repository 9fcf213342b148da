package testutil_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MetaNet-Generalizer/internal/testutil"
)

func TestMockLogger(t *testing.T) {
	logger := testutil.NewMockLogger()

	logger.Info("test info", logging.String("key", "value"))

	messages := logger.GetMessages()
	require.Len(t, messages, 1)
	assert.Equal(t, "info", messages[0].Level)
	assert.Equal(t, "test info", messages[0].Message)

	logger.Clear()
	assert.Len(t, logger.GetMessages(), 0)

	logger.Error("test error")
	assert.True(t, logger.HasMessage("error", "test error"))
	assert.False(t, logger.HasMessage("info", "test info"))
}

func TestMockLogger_ChildrenShareRecord(t *testing.T) {
	logger := testutil.NewMockLogger()
	child := logger.Named("engine").With(logging.String("run_id", "r1"))

	child.Warn("slow phase", logging.Int("ms", 12))

	messages := logger.GetMessages()
	require.Len(t, messages, 1)
	assert.Equal(t, "engine", messages[0].Logger)
	v, ok := logger.Field("slow phase", "run_id")
	require.True(t, ok)
	assert.Equal(t, "r1", v)
	v, ok = logger.Field("slow phase", "ms")
	require.True(t, ok)
	assert.Equal(t, 12, v)
}

func TestHexoseFixtures(t *testing.T) {
	net := testutil.HexoseNetwork(t)
	assert.Equal(t, "hexose", net.ID)
	assert.Len(t, net.Species, 6)
	assert.Equal(t, "chebi:17634", net.Species[0].TermID)

	onto, hdr := testutil.HexoseOntology(t)
	assert.Equal(t, 8, onto.Len())
	assert.Equal(t, "test/2026-01", hdr.DataVersion)
	assert.Equal(t, []string{"chebi:18133"}, onto.Parents("chebi:17634"))
}
