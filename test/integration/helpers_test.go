//go:build integration

// Package integration runs the generalization service against real
// PostgreSQL and Redis containers.
package integration

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/turtacn/MetaNet-Generalizer/internal/application/generalize"
	"github.com/turtacn/MetaNet-Generalizer/internal/config"
	"github.com/turtacn/MetaNet-Generalizer/internal/domain/ontology"
	"github.com/turtacn/MetaNet-Generalizer/internal/generalization"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/database/postgres"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/database/redis"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MetaNet-Generalizer/internal/testutil"
)

func startContainer(t *testing.T, req testcontainers.ContainerRequest, port string) (string, int) {
	t.Helper()
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mapped, err := container.MappedPort(ctx, nat.Port(port))
	require.NoError(t, err)
	return host, mapped.Int()
}

func startPostgres(t *testing.T) *postgres.Connection {
	t.Helper()
	host, port := startContainer(t, testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "metanet_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}, "5432")

	cfg := postgres.PostgresConfig{Host: host, Port: port, Database: "metanet_test", Username: "test", Password: "test"}
	require.NoError(t, postgres.RunMigrations(cfg.DSN()))
	conn, err := postgres.NewConnection(cfg, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	host, port := startContainer(t, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}, "6379")

	client, err := redis.NewClient(config.RedisConfig{Addr: fmt.Sprintf("%s:%d", host, port), KeyPrefix: "it"}, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// newService wires the engine with a Postgres run store and a Redis result
// cache guarded by digest run leases.
func newService(t *testing.T) generalize.Service {
	t.Helper()
	logger := logging.NewNopLogger()
	cfg := config.Default()

	onto, hdr, err := ontology.ParseOBO(strings.NewReader(testutil.HexoseOBO))
	require.NoError(t, err)

	conn := startPostgres(t)
	rdb := startRedis(t)

	svc, err := generalize.NewService(generalization.NewEngine(cfg.Engine, generalization.WithLogger(logger)), onto, cfg.Engine, logger,
		generalize.WithRunStore(repositories.NewRunRepository(conn, logger, nil)),
		generalize.WithCache(redis.NewResultCache(rdb, logger, redis.WithTTL(time.Minute))),
		generalize.WithLeases(redis.NewRunLeases(rdb, logger)),
		generalize.WithOntologyHeader(hdr))
	require.NoError(t, err)
	return svc
}
