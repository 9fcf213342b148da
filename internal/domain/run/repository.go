package run

import "context"

// Repository persists runs.
type Repository interface {
	// Save inserts the run or replaces the stored row with the same id.
	Save(ctx context.Context, r *Run) error
	Get(ctx context.Context, id string) (*Run, error)
	// FindLatestByDigest returns the most recent succeeded run for digest.
	FindLatestByDigest(ctx context.Context, digest string) (*Run, error)
	// List returns runs newest first together with the total count. An
	// empty networkID lists every network.
	List(ctx context.Context, networkID string, limit, offset int) ([]*Run, int64, error)
}
