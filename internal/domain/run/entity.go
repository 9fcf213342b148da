// Package run models one generalization of a network: its input digest,
// lifecycle status and outcome.
package run

import (
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/MetaNet-Generalizer/internal/generalization"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Source tells whether a result was computed or served from the cache.
type Source string

const (
	SourceEngine Source = "engine"
	SourceCache  Source = "cache"
)

type Run struct {
	ID          string                 `json:"id" yaml:"id"`
	NetworkID   string                 `json:"network_id" yaml:"network_id"`
	Digest      string                 `json:"digest" yaml:"digest"`
	Status      Status                 `json:"status" yaml:"status"`
	Source      Source                 `json:"source" yaml:"source"`
	Error       string                 `json:"error,omitempty" yaml:"error,omitempty"`
	Stats       generalization.Stats   `json:"stats" yaml:"stats"`
	Result      *generalization.Result `json:"result,omitempty" yaml:"result,omitempty"`
	ArtifactKey string                 `json:"artifact_key,omitempty" yaml:"artifact_key,omitempty"`
	StartedAt   time.Time              `json:"started_at" yaml:"started_at"`
	FinishedAt  *time.Time             `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
}

// New starts a run for the network with the given input digest.
func New(networkID, digest string, now time.Time) *Run {
	return &Run{
		ID:        uuid.NewString(),
		NetworkID: networkID,
		Digest:    digest,
		Status:    StatusRunning,
		Source:    SourceEngine,
		StartedAt: now.UTC(),
	}
}

func (r *Run) Succeed(res *generalization.Result, source Source, now time.Time) {
	finished := now.UTC()
	r.Status = StatusSucceeded
	r.Source = source
	r.Result = res
	if res != nil {
		r.Stats = res.Stats
	}
	r.FinishedAt = &finished
}

func (r *Run) Fail(err error, now time.Time) {
	finished := now.UTC()
	r.Status = StatusFailed
	if err != nil {
		r.Error = err.Error()
	}
	r.FinishedAt = &finished
}

// Duration is the wall time of a finished run, zero while running.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *Run) Finished() bool { return r.Status != StatusRunning }
