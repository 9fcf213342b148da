package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/MetaNet-Generalizer/internal/generalization"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/MetaNet-Generalizer/pkg/errors"
)

type CacheTestSuite struct {
	suite.Suite
	mock  redismock.ClientMock
	cache ResultCache
}

func (s *CacheTestSuite) SetupTest() {
	db, mock := redismock.NewClientMock()
	s.mock = mock
	client := NewClientWithUniversal(db, "test:", logging.NewNopLogger())
	s.cache = NewResultCache(client, logging.NewNopLogger(), WithTTL(time.Hour))
}

func (s *CacheTestSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
}

func sampleResult() *generalization.Result {
	return &generalization.Result{
		NetworkID: "net-1",
		Species:   map[string]generalization.SpeciesCluster{"B": {Compartment: "c", TermID: "chebi:800"}},
		Reactions: map[string]int{"R3": 0, "R4": 0},
		Stats:     generalization.Stats{SpeciesClusters: 1, GeneralizedReactions: 1},
	}
}

func encoded(res *generalization.Result) []byte {
	data, _ := json.Marshal(res)
	return data
}

func (s *CacheTestSuite) TestGet_Hit() {
	s.mock.ExpectGet("test:result:d1").SetVal(string(encoded(sampleResult())))

	res, err := s.cache.Get(context.Background(), "d1")
	s.Require().NoError(err)
	s.Equal(sampleResult(), res)
}

func (s *CacheTestSuite) TestGet_Miss() {
	s.mock.ExpectGet("test:result:d1").RedisNil()

	_, err := s.cache.Get(context.Background(), "d1")
	s.Equal(ErrCacheMiss, err)
	s.True(pkgerrors.IsNotFound(err))
}

func (s *CacheTestSuite) TestGet_UndecodableIsMiss() {
	s.mock.ExpectGet("test:result:d1").SetVal("{not json")

	_, err := s.cache.Get(context.Background(), "d1")
	s.Equal(ErrCacheMiss, err)
}

func (s *CacheTestSuite) TestGet_Error() {
	s.mock.ExpectGet("test:result:d1").SetErr(errors.New("connection reset"))

	_, err := s.cache.Get(context.Background(), "d1")
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeCacheError))
}

func (s *CacheTestSuite) TestSet() {
	s.mock.ExpectSet("test:result:d1", encoded(sampleResult()), time.Hour).SetVal("OK")
	s.NoError(s.cache.Set(context.Background(), "d1", sampleResult()))
}

func (s *CacheTestSuite) TestDelete() {
	s.mock.ExpectDel("test:result:d1").SetVal(1)
	s.NoError(s.cache.Delete(context.Background(), "d1"))
}

func (s *CacheTestSuite) TestGetOrCompute_Hit() {
	s.mock.ExpectGet("test:result:d1").SetVal(string(encoded(sampleResult())))

	called := false
	res, cached, err := s.cache.GetOrCompute(context.Background(), "d1", func(context.Context) (*generalization.Result, error) {
		called = true
		return nil, nil
	})
	s.Require().NoError(err)
	s.True(cached)
	s.False(called)
	s.Equal("net-1", res.NetworkID)
}

func (s *CacheTestSuite) TestGetOrCompute_MissStores() {
	s.mock.ExpectGet("test:result:d1").RedisNil()
	s.mock.ExpectSet("test:result:d1", encoded(sampleResult()), time.Hour).SetVal("OK")

	res, cached, err := s.cache.GetOrCompute(context.Background(), "d1", func(context.Context) (*generalization.Result, error) {
		return sampleResult(), nil
	})
	s.Require().NoError(err)
	s.False(cached)
	s.Equal(sampleResult(), res)
}

func (s *CacheTestSuite) TestGetOrCompute_ComputeErrorNotStored() {
	s.mock.ExpectGet("test:result:d1").RedisNil()
	boom := errors.New("boom")

	_, _, err := s.cache.GetOrCompute(context.Background(), "d1", func(context.Context) (*generalization.Result, error) {
		return nil, boom
	})
	s.ErrorIs(err, boom)
}

func (s *CacheTestSuite) TestGetOrCompute_CacheDownStillComputes() {
	s.mock.ExpectGet("test:result:d1").SetErr(errors.New("connection refused"))
	s.mock.ExpectSet("test:result:d1", encoded(sampleResult()), time.Hour).SetErr(errors.New("connection refused"))

	res, cached, err := s.cache.GetOrCompute(context.Background(), "d1", func(context.Context) (*generalization.Result, error) {
		return sampleResult(), nil
	})
	s.Require().NoError(err)
	s.False(cached)
	s.NotNil(res)
}

func TestCacheSuite(t *testing.T) {
	suite.Run(t, new(CacheTestSuite))
}
