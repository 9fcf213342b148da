package repositories

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/turtacn/MetaNet-Generalizer/internal/domain/run"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/database/postgres"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/MetaNet-Generalizer/pkg/errors"
)

type postgresRunRepo struct {
	conn     *postgres.Connection
	log      logging.Logger
	metrics  *prometheus.AppMetrics
	executor runStore
}

// NewRunRepository returns a run.Repository over the generalization_runs
// table. metrics may be nil.
func NewRunRepository(conn *postgres.Connection, log logging.Logger, metrics *prometheus.AppMetrics) run.Repository {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &postgresRunRepo{
		conn:     conn,
		log:      log.Named("run_repo"),
		metrics:  metrics,
		executor: conn.DB(),
	}
}

func (r *postgresRunRepo) observe(op string, start time.Time, err error) {
	if r.metrics != nil {
		prometheus.RecordDBQuery(r.metrics, "postgres", op, time.Since(start), err)
	}
}

func (r *postgresRunRepo) Save(ctx context.Context, rn *run.Run) (err error) {
	defer func(start time.Time) { r.observe("save_run", start, err) }(time.Now())

	statsJSON, resultJSON, err := encodeRun(rn)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode run")
	}

	query := `
		INSERT INTO generalization_runs (
			id, network_id, digest, status, source, error, stats, result, artifact_key, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			source = EXCLUDED.source,
			error = EXCLUDED.error,
			stats = EXCLUDED.stats,
			result = EXCLUDED.result,
			artifact_key = EXCLUDED.artifact_key,
			finished_at = EXCLUDED.finished_at
	`
	_, err = r.executor.ExecContext(ctx, query,
		rn.ID, rn.NetworkID, rn.Digest, string(rn.Status), string(rn.Source), rn.Error,
		statsJSON, resultJSON, rn.ArtifactKey, rn.StartedAt, rn.FinishedAt,
	)
	if err != nil {
		r.log.Error("failed to save run", logging.String("run_id", rn.ID), logging.Err(err))
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to save run")
	}
	return nil
}

func (r *postgresRunRepo) Get(ctx context.Context, id string) (rn *run.Run, err error) {
	defer func(start time.Time) { r.observe("get_run", start, err) }(time.Now())

	query := `SELECT ` + runColumns + ` FROM generalization_runs WHERE id::text = $1`
	rn, err = scanRun(r.executor.QueryRowContext(ctx, query, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.Newf(errors.ErrCodeRunNotFound, "run %s not found", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to get run")
	}
	return rn, nil
}

func (r *postgresRunRepo) FindLatestByDigest(ctx context.Context, digest string) (rn *run.Run, err error) {
	defer func(start time.Time) { r.observe("find_run_by_digest", start, err) }(time.Now())

	query := `SELECT ` + runColumns + ` FROM generalization_runs
		WHERE digest = $1 AND status = $2
		ORDER BY finished_at DESC LIMIT 1`
	rn, err = scanRun(r.executor.QueryRowContext(ctx, query, digest, string(run.StatusSucceeded)))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.Newf(errors.ErrCodeRunNotFound, "no succeeded run for digest %s", digest)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to find run by digest")
	}
	return rn, nil
}

func (r *postgresRunRepo) List(ctx context.Context, networkID string, limit, offset int) (runs []*run.Run, total int64, err error) {
	defer func(start time.Time) { r.observe("list_runs", start, err) }(time.Now())

	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	countQuery := `SELECT COUNT(*) FROM generalization_runs WHERE ($1 = '' OR network_id = $1)`
	if err = r.executor.QueryRowContext(ctx, countQuery, networkID).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to count runs")
	}

	query := `SELECT ` + runColumns + ` FROM generalization_runs
		WHERE ($1 = '' OR network_id = $1)
		ORDER BY started_at DESC, id
		LIMIT $2 OFFSET $3`
	rows, err := r.executor.QueryContext(ctx, query, networkID, limit, offset)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list runs")
	}
	defer rows.Close()

	for rows.Next() {
		rn, scanErr := scanRun(rows)
		if scanErr != nil {
			err = scanErr
			return nil, 0, errors.Wrap(scanErr, errors.ErrCodeDatabaseError, "failed to scan run")
		}
		runs = append(runs, rn)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate runs")
	}
	return runs, total, nil
}
