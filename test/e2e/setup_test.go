// Package e2e_test drives the full HTTP stack in process: the generalization
// engine behind a Redis result cache, the gin router and the Go SDK.
package e2e_test

import (
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/turtacn/MetaNet-Generalizer/internal/application/generalize"
	"github.com/turtacn/MetaNet-Generalizer/internal/config"
	"github.com/turtacn/MetaNet-Generalizer/internal/domain/ontology"
	"github.com/turtacn/MetaNet-Generalizer/internal/generalization"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/database/redis"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/MetaNet-Generalizer/internal/testutil"
	httpserver "github.com/turtacn/MetaNet-Generalizer/internal/interfaces/http"
	"github.com/turtacn/MetaNet-Generalizer/internal/interfaces/http/handlers"
	"github.com/turtacn/MetaNet-Generalizer/pkg/client"
)

type testEnv struct {
	server       *httptest.Server
	sdk          *client.Client
	redis        *miniredis.Miniredis
	cleanupFuncs []func()
}

var env *testEnv

func TestMain(m *testing.M) {
	var err error
	env, err = setupTestEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "E2E test setup failed: %v\n", err)
		os.Exit(1)
	}

	exitCode := m.Run()
	env.cleanup()
	os.Exit(exitCode)
}

func setupTestEnv() (*testEnv, error) {
	e := &testEnv{}
	cfg := config.Default()
	cfg.Server.Mode = "test"
	cfg.Metrics.Namespace = "e2e"
	logger := logging.NewNopLogger()

	mr, err := miniredis.Run()
	if err != nil {
		return nil, err
	}
	e.redis = mr
	e.cleanupFuncs = append(e.cleanupFuncs, mr.Close)

	rdb := redis.NewClientWithUniversal(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}), "e2e", logger)
	e.cleanupFuncs = append(e.cleanupFuncs, func() { _ = rdb.Close() })

	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: cfg.Metrics.Namespace}, logger)
	if err != nil {
		return nil, err
	}
	metrics := prometheus.NewAppMetrics(collector)

	onto, hdr, err := ontology.ParseOBO(strings.NewReader(testutil.HexoseOBO), cfg.Engine.EquivalenceRelationships...)
	if err != nil {
		return nil, err
	}
	engine := generalization.NewEngine(cfg.Engine,
		generalization.WithLogger(logger),
		generalization.WithObserver(metrics.EngineObserver()))
	svc, err := generalize.NewService(engine, onto, cfg.Engine, logger,
		generalize.WithCache(redis.NewResultCache(rdb, logger, redis.WithMetrics(metrics))),
		generalize.WithLeases(redis.NewRunLeases(rdb, logger)),
		generalize.WithMetrics(metrics),
		generalize.WithOntologyHeader(hdr))
	if err != nil {
		return nil, err
	}

	router := httpserver.NewRouter(httpserver.RouterConfig{
		Server:                cfg.Server,
		GeneralizationHandler: handlers.NewGeneralizationHandler(svc, cfg.Server.MaxBodySize, logger),
		HealthHandler: handlers.NewHealthHandler("e2e", handlers.NamedCheck("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx)
		})),
		Logger:           logger,
		Metrics:          metrics,
		MetricsCollector: collector,
	})
	e.server = httptest.NewServer(router)
	e.cleanupFuncs = append(e.cleanupFuncs, e.server.Close)

	e.sdk, err = client.NewClient(e.server.URL, client.WithRetryMax(0))
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (e *testEnv) cleanup() {
	for i := len(e.cleanupFuncs) - 1; i >= 0; i-- {
		e.cleanupFuncs[i]()
	}
}
