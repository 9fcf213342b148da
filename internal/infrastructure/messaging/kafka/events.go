package kafka

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/MetaNet-Generalizer/internal/domain/network"
	"github.com/turtacn/MetaNet-Generalizer/internal/generalization"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/MetaNet-Generalizer/pkg/errors"
)

const (
	EventGeneralizationCompleted = "generalization.completed"

	eventSource  = "metanet-generalizer"
	eventVersion = "1.0"

	HeaderEventType     = "event_type"
	HeaderEventID       = "event_id"
	HeaderOriginalTopic = "original_topic"
	HeaderErrorMessage  = "error_message"
)

// EventEnvelope wraps every published event.
type EventEnvelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Source    string          `json:"source"`
	Version   string          `json:"version"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// NewEventEnvelope encodes payload into a fresh envelope.
func NewEventEnvelope(eventType string, payload interface{}) (*EventEnvelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode event payload")
	}
	return &EventEnvelope{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    eventSource,
		Version:   eventVersion,
		Timestamp: time.Now().UTC(),
		Payload:   raw,
	}, nil
}

// GeneralizationCompleted announces a finished run.
type GeneralizationCompleted struct {
	RunID       string               `json:"run_id"`
	NetworkID   string               `json:"network_id"`
	Digest      string               `json:"digest"`
	Source      string               `json:"source"`
	Stats       generalization.Stats `json:"stats"`
	ArtifactKey string               `json:"artifact_key,omitempty"`
	FinishedAt  time.Time            `json:"finished_at"`
}

// GeneralizationRequest is the value of a message on the request topic.
type GeneralizationRequest struct {
	RequestID string          `json:"request_id"`
	Network   json.RawMessage `json:"network"`
}

// DecodeRequest parses a request message and the network it carries. The
// network is normalized and validated.
func DecodeRequest(value []byte) (*GeneralizationRequest, *network.Network, error) {
	var req GeneralizationRequest
	if err := json.Unmarshal(value, &req); err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeNetworkParse, "failed to decode generalization request")
	}
	if len(req.Network) == 0 {
		return nil, nil, errors.New(errors.ErrCodeNetworkParse, "generalization request carries no network")
	}
	net, err := network.Decode(bytes.NewReader(req.Network))
	if err != nil {
		return nil, nil, err
	}
	return &req, net, nil
}

type publisher interface {
	Publish(ctx context.Context, msg *Message) error
}

// EventPublisher sends generalization.completed events to one topic.
type EventPublisher struct {
	producer publisher
	topic    string
	metrics  *prometheus.AppMetrics
	logger   logging.Logger
}

func NewEventPublisher(p publisher, topic string, metrics *prometheus.AppMetrics, log logging.Logger) *EventPublisher {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &EventPublisher{producer: p, topic: topic, metrics: metrics, logger: log}
}

// PublishCompleted publishes evt keyed by network id, so events of one
// network stay ordered within a partition.
func (p *EventPublisher) PublishCompleted(ctx context.Context, evt GeneralizationCompleted) (err error) {
	defer func() {
		if p.metrics != nil {
			prometheus.RecordEvent(p.metrics, p.topic, err)
		}
	}()

	env, err := NewEventEnvelope(EventGeneralizationCompleted, evt)
	if err != nil {
		return err
	}
	value, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode event envelope")
	}

	err = p.producer.Publish(ctx, &Message{
		Topic: p.topic,
		Key:   []byte(evt.NetworkID),
		Value: value,
		Headers: map[string]string{
			HeaderEventType: env.Type,
			HeaderEventID:   env.ID,
		},
		Timestamp: env.Timestamp,
	})
	if err != nil {
		p.logger.Warn("Failed to publish event",
			logging.String("run_id", evt.RunID),
			logging.Err(err))
		return err
	}
	p.logger.Debug("Event published",
		logging.String("event_id", env.ID),
		logging.String("run_id", evt.RunID))
	return nil
}
