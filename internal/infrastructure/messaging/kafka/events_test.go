package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/MetaNet-Generalizer/internal/generalization"
	apperrors "github.com/turtacn/MetaNet-Generalizer/pkg/errors"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []*Message
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, msg *Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *recordingPublisher) published() []*Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Message(nil), p.msgs...)
}

func TestNewEventEnvelope(t *testing.T) {
	env, err := NewEventEnvelope(EventGeneralizationCompleted, map[string]int{"n": 1})
	require.NoError(t, err)
	assert.Len(t, env.ID, 36)
	assert.Equal(t, "metanet-generalizer", env.Source)
	assert.JSONEq(t, `{"n":1}`, string(env.Payload))

	_, err = NewEventEnvelope("bad", func() {})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeSerialization))
}

func TestPublishCompleted(t *testing.T) {
	rec := &recordingPublisher{}
	pub := NewEventPublisher(rec, "metanet.generalization.completed", nil, nil)

	finished := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	err := pub.PublishCompleted(context.Background(), GeneralizationCompleted{
		RunID:      "run-1",
		NetworkID:  "ecoli",
		Digest:     "abc",
		Source:     "engine",
		Stats:      generalization.Stats{SpeciesClusters: 4},
		FinishedAt: finished,
	})
	require.NoError(t, err)

	msgs := rec.published()
	require.Len(t, msgs, 1)
	assert.Equal(t, "metanet.generalization.completed", msgs[0].Topic)
	assert.Equal(t, "ecoli", string(msgs[0].Key))
	assert.Equal(t, EventGeneralizationCompleted, msgs[0].Headers[HeaderEventType])

	var env EventEnvelope
	require.NoError(t, json.Unmarshal(msgs[0].Value, &env))
	assert.Equal(t, msgs[0].Headers[HeaderEventID], env.ID)

	var evt GeneralizationCompleted
	require.NoError(t, json.Unmarshal(env.Payload, &evt))
	assert.Equal(t, "run-1", evt.RunID)
	assert.Equal(t, 4, evt.Stats.SpeciesClusters)
	assert.True(t, finished.Equal(evt.FinishedAt))
}

func TestPublishCompleted_Error(t *testing.T) {
	rec := &recordingPublisher{err: errors.New("down")}
	pub := NewEventPublisher(rec, "t", nil, nil)
	assert.Error(t, pub.PublishCompleted(context.Background(), GeneralizationCompleted{RunID: "r"}))
}

const requestJSON = `{
  "request_id": "req-1",
  "network": {
    "id": "toy",
    "compartments": [{"id": "c"}],
    "species": [
      {"id": "a", "compartment": "c", "term_id": "chebi:15377"},
      {"id": "b", "compartment": "c"}
    ],
    "reactions": [
      {"id": "r1", "reactants": [{"species": "a"}], "products": [{"species": "b", "stoichiometry": 2}]}
    ]
  }
}`

func TestDecodeRequest(t *testing.T) {
	req, net, err := DecodeRequest([]byte(requestJSON))
	require.NoError(t, err)
	assert.Equal(t, "req-1", req.RequestID)
	assert.Equal(t, "toy", net.ID)
	assert.Equal(t, 1.0, net.Reactions[0].Reactants[0].Stoichiometry)
	assert.Equal(t, 2.0, net.Reactions[0].Products[0].Stoichiometry)
}

func TestDecodeRequest_Invalid(t *testing.T) {
	_, _, err := DecodeRequest([]byte("{not json"))
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNetworkParse))
	assert.True(t, Permanent(err))

	_, _, err = DecodeRequest([]byte(`{"request_id":"x"}`))
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNetworkParse))

	_, _, err = DecodeRequest([]byte(`{"network":{"id":"n","compartments":[],"species":[],"reactions":[]}}`))
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeEmptyNetwork))
	assert.True(t, Permanent(err))
}
