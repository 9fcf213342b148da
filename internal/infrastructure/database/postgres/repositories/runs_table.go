package repositories

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/turtacn/MetaNet-Generalizer/internal/domain/run"
	"github.com/turtacn/MetaNet-Generalizer/internal/generalization"
)

// runColumns lists the generalization_runs columns in scanRun order. The
// uuid primary key is read back as text.
const runColumns = `id::text, network_id, digest, status, source, error, stats, result, artifact_key, started_at, finished_at`

// runStore runs statements against generalization_runs; *sql.DB and
// *sql.Tx both satisfy it.
type runStore interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// runRow is a single generalization_runs row from *sql.Row or *sql.Rows.
type runRow interface {
	Scan(dest ...any) error
}

// encodeRun returns the stats and result JSONB values. result is nil for
// runs without a result, which stores SQL NULL.
func encodeRun(rn *run.Run) (stats []byte, result any, err error) {
	if stats, err = json.Marshal(rn.Stats); err != nil {
		return nil, nil, err
	}
	if rn.Result == nil {
		return stats, nil, nil
	}
	b, err := json.Marshal(rn.Result)
	if err != nil {
		return nil, nil, err
	}
	return stats, b, nil
}

func scanRun(row runRow) (*run.Run, error) {
	var (
		rn         run.Run
		status     string
		source     string
		statsJSON  []byte
		resultJSON []byte
		finishedAt sql.NullTime
	)
	if err := row.Scan(&rn.ID, &rn.NetworkID, &rn.Digest, &status, &source, &rn.Error,
		&statsJSON, &resultJSON, &rn.ArtifactKey, &rn.StartedAt, &finishedAt); err != nil {
		return nil, err
	}
	rn.Status = run.Status(status)
	rn.Source = run.Source(source)
	if len(statsJSON) > 0 {
		if err := json.Unmarshal(statsJSON, &rn.Stats); err != nil {
			return nil, err
		}
	}
	if len(resultJSON) > 0 {
		rn.Result = &generalization.Result{}
		if err := json.Unmarshal(resultJSON, rn.Result); err != nil {
			return nil, err
		}
	}
	if finishedAt.Valid {
		t := finishedAt.Time.UTC()
		rn.FinishedAt = &t
	}
	rn.StartedAt = rn.StartedAt.UTC()
	return &rn, nil
}
