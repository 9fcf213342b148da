package repositories

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/MetaNet-Generalizer/internal/domain/run"
	"github.com/turtacn/MetaNet-Generalizer/internal/generalization"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/database/postgres"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MetaNet-Generalizer/pkg/errors"
)

var runRowColumns = []string{
	"id", "network_id", "digest", "status", "source", "error", "stats", "result", "artifact_key", "started_at", "finished_at",
}

type RunRepoTestSuite struct {
	suite.Suite
	mock sqlmock.Sqlmock
	db   *sql.DB
	repo run.Repository
}

func (s *RunRepoTestSuite) SetupTest() {
	var err error
	s.db, s.mock, err = sqlmock.New()
	s.Require().NoError(err)

	logger := logging.NewNopLogger()
	s.repo = NewRunRepository(postgres.NewConnectionWithDB(s.db, logger), logger, nil)
}

func (s *RunRepoTestSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
	s.db.Close()
}

func (s *RunRepoTestSuite) TestSave_Upserts() {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rn := run.New("net-1", "sha256:abc", now)
	rn.Succeed(&generalization.Result{NetworkID: "net-1", Stats: generalization.Stats{SpeciesClusters: 2}}, run.SourceEngine, now.Add(time.Second))

	s.mock.ExpectExec("INSERT INTO generalization_runs .* ON CONFLICT \\(id\\) DO UPDATE").
		WithArgs(rn.ID, "net-1", "sha256:abc", "succeeded", "engine", "",
			sqlmock.AnyArg(), sqlmock.AnyArg(), "", now, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s.NoError(s.repo.Save(context.Background(), rn))
}

func (s *RunRepoTestSuite) TestSave_DatabaseError() {
	rn := run.New("net-1", "sha256:abc", time.Now())
	s.mock.ExpectExec("INSERT INTO generalization_runs").WillReturnError(sql.ErrConnDone)

	err := s.repo.Save(context.Background(), rn)
	s.True(errors.IsCode(err, errors.ErrCodeDatabaseError))
}

func (s *RunRepoTestSuite) TestGet_Found() {
	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	finished := started.Add(2 * time.Second)
	s.mock.ExpectQuery("SELECT id::text, .* FROM generalization_runs WHERE id::text = \\$1").
		WithArgs("run-1").
		WillReturnRows(sqlmock.NewRows(runRowColumns).AddRow(
			"run-1", "net-1", "sha256:abc", "succeeded", "cache", "",
			[]byte(`{"species_clusters":3,"generalized_reactions":1}`),
			[]byte(`{"network_id":"net-1","species":{"B":{"compartment":"c","term_id":"chebi:800"}}}`),
			"runs/run-1.json", started, finished,
		))

	rn, err := s.repo.Get(context.Background(), "run-1")
	s.Require().NoError(err)
	s.Equal(run.StatusSucceeded, rn.Status)
	s.Equal(run.SourceCache, rn.Source)
	s.Equal(3, rn.Stats.SpeciesClusters)
	s.Equal(1, rn.Stats.GeneralizedReactions)
	s.Require().NotNil(rn.Result)
	s.Equal("chebi:800", rn.Result.Species["B"].TermID)
	s.Equal("runs/run-1.json", rn.ArtifactKey)
	s.Require().NotNil(rn.FinishedAt)
	s.Equal(2*time.Second, rn.Duration())
}

func (s *RunRepoTestSuite) TestGet_NotFound() {
	s.mock.ExpectQuery("SELECT .* FROM generalization_runs").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(runRowColumns))

	_, err := s.repo.Get(context.Background(), "missing")
	s.True(errors.IsCode(err, errors.ErrCodeRunNotFound))
	s.True(errors.IsNotFound(err))
}

func (s *RunRepoTestSuite) TestFindLatestByDigest_OnlySucceeded() {
	started := time.Now().UTC()
	s.mock.ExpectQuery("SELECT .* WHERE digest = \\$1 AND status = \\$2").
		WithArgs("sha256:abc", "succeeded").
		WillReturnRows(sqlmock.NewRows(runRowColumns).AddRow(
			"run-2", "net-1", "sha256:abc", "succeeded", "engine", "",
			[]byte(`{}`), nil, "", started, started,
		))

	rn, err := s.repo.FindLatestByDigest(context.Background(), "sha256:abc")
	s.Require().NoError(err)
	s.Equal("run-2", rn.ID)
	s.Nil(rn.Result)
}

func (s *RunRepoTestSuite) TestList_WithTotal() {
	started := time.Now().UTC()
	s.mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM generalization_runs").
		WithArgs("net-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(7)))
	s.mock.ExpectQuery("SELECT .* ORDER BY started_at DESC, id LIMIT \\$2 OFFSET \\$3").
		WithArgs("net-1", 2, 4).
		WillReturnRows(sqlmock.NewRows(runRowColumns).
			AddRow("run-5", "net-1", "d1", "failed", "engine", "boom", []byte(`{}`), nil, "", started, started).
			AddRow("run-4", "net-1", "d2", "running", "engine", "", []byte(`{}`), nil, "", started, nil))

	runs, total, err := s.repo.List(context.Background(), "net-1", 2, 4)
	s.Require().NoError(err)
	s.Equal(int64(7), total)
	s.Require().Len(runs, 2)
	s.Equal("boom", runs[0].Error)
	s.Nil(runs[1].FinishedAt)
	s.False(runs[1].Finished())
}

func (s *RunRepoTestSuite) TestList_DefaultLimit() {
	s.mock.ExpectQuery("SELECT COUNT").WithArgs("").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))
	s.mock.ExpectQuery("SELECT .* LIMIT").WithArgs("", 20, 0).
		WillReturnRows(sqlmock.NewRows(runRowColumns))

	runs, total, err := s.repo.List(context.Background(), "", 0, -3)
	s.Require().NoError(err)
	s.Empty(runs)
	s.Zero(total)
}

func TestRunRepoTestSuite(t *testing.T) {
	suite.Run(t, new(RunRepoTestSuite))
}
