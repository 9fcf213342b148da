package cli

import (
	"context"

	"github.com/turtacn/MetaNet-Generalizer/internal/application/generalize"
	"github.com/turtacn/MetaNet-Generalizer/internal/config"
	"github.com/turtacn/MetaNet-Generalizer/internal/domain/ontology"
	"github.com/turtacn/MetaNet-Generalizer/internal/domain/run"
	"github.com/turtacn/MetaNet-Generalizer/internal/generalization"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/auth/keycloak"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/database/neo4j"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/database/postgres"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/database/redis"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/search/opensearch"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/storage/minio"
	"github.com/turtacn/MetaNet-Generalizer/internal/interfaces/http/handlers"
	"github.com/turtacn/MetaNet-Generalizer/pkg/errors"
)

// StackOptions selects what NewStack builds beyond the enabled adapters.
type StackOptions struct {
	// OntologyPath overrides engine.ontology_path.
	OntologyPath string
	// WithService loads the ontology and builds the generalization service.
	WithService bool
	// RuntimeMetrics adds Go and process collectors to the registry.
	RuntimeMetrics bool
	// WithAuth connects the token verifier when auth.enabled is set.
	WithAuth bool
}

// Stack holds every adapter enabled in the configuration and the service
// wired on top of them. Disabled sections leave their field nil.
type Stack struct {
	Config    *config.Config
	Logger    logging.Logger
	Collector prometheus.MetricsCollector
	Metrics   *prometheus.AppMetrics

	Runs      run.Repository
	Artifacts minio.ArtifactStore
	Index     *opensearch.Indexer
	Producer  *kafka.Producer
	Auth      *keycloak.Client

	Ontology       *ontology.Ontology
	OntologyHeader ontology.Header
	Service        generalize.Service

	Checkers []handlers.HealthChecker
	closers  []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

// NewStack connects the enabled adapters. On failure everything opened so
// far is closed again.
func NewStack(ctx context.Context, cfg *config.Config, logger logging.Logger, opts StackOptions) (_ *Stack, err error) {
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:            cfg.Metrics.Namespace,
		EnableProcessMetrics: opts.RuntimeMetrics,
		EnableGoMetrics:      opts.RuntimeMetrics,
	}, logger)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create metrics collector")
	}

	st := &Stack{
		Config:    cfg,
		Logger:    logger,
		Collector: collector,
		Metrics:   prometheus.NewAppMetrics(collector),
	}
	defer func() {
		if err != nil {
			st.Close()
		}
	}()

	svcOpts := []generalize.Option{generalize.WithMetrics(st.Metrics)}

	if cfg.Database.Enabled {
		pgCfg := postgres.FromConfig(cfg.Database)
		if cfg.Database.AutoMigrate {
			if err = postgres.RunMigrations(pgCfg.DSN()); err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to apply migrations")
			}
		}
		conn, cerr := postgres.NewConnection(pgCfg, logger)
		if cerr != nil {
			return nil, cerr
		}
		st.addCloser("postgres", conn.Close)
		st.Checkers = append(st.Checkers, handlers.NamedCheck("postgres", conn.HealthCheck))
		st.Runs = repositories.NewRunRepository(conn, logger, st.Metrics)
		svcOpts = append(svcOpts, generalize.WithRunStore(st.Runs))
	}

	if cfg.Redis.Enabled {
		client, cerr := redis.NewClient(cfg.Redis, logger)
		if cerr != nil {
			return nil, cerr
		}
		st.addCloser("redis", client.Close)
		st.Checkers = append(st.Checkers, handlers.NamedCheck("redis", client.Ping))
		svcOpts = append(svcOpts,
			generalize.WithCache(redis.NewResultCache(client, logger,
				redis.WithTTL(cfg.Redis.DefaultTTL), redis.WithMetrics(st.Metrics))),
			generalize.WithLeases(redis.NewRunLeases(client, logger)),
		)
	}

	if cfg.MinIO.Enabled {
		client, cerr := minio.NewClient(cfg.MinIO, logger)
		if cerr != nil {
			return nil, cerr
		}
		st.addCloser("minio", client.Close)
		st.Checkers = append(st.Checkers, handlers.NamedCheck("minio", client.HealthCheck))
		st.Artifacts = minio.NewArtifactStore(client, logger)
		svcOpts = append(svcOpts, generalize.WithArtifacts(st.Artifacts))
	}

	if cfg.OpenSearch.Enabled {
		client, cerr := opensearch.NewClient(opensearch.ClientConfigFrom(cfg.OpenSearch), logger)
		if cerr != nil {
			return nil, cerr
		}
		st.addCloser("opensearch", client.Close)
		st.Checkers = append(st.Checkers, handlers.NamedCheck("opensearch", client.Ping))
		st.Index = opensearch.NewIndexer(client, cfg.OpenSearch.IndexName, logger)
		if err = st.Index.EnsureIndex(ctx); err != nil {
			return nil, err
		}
		svcOpts = append(svcOpts, generalize.WithGroupIndex(st.Index))
	}

	if cfg.Neo4j.Enabled {
		driver, cerr := neo4j.NewDriver(cfg.Neo4j, logger)
		if cerr != nil {
			return nil, cerr
		}
		st.addCloser("neo4j", driver.Close)
		st.Checkers = append(st.Checkers, handlers.NamedCheck("neo4j", driver.HealthCheck))
		svcOpts = append(svcOpts, generalize.WithGraphExporter(neo4j.NewGraphExporter(driver, logger)))
	}

	if cfg.Kafka.Enabled {
		producer, cerr := kafka.NewProducer(kafka.ProducerConfigFrom(cfg.Kafka), logger)
		if cerr != nil {
			return nil, cerr
		}
		st.addCloser("kafka", producer.Close)
		st.Producer = producer
		svcOpts = append(svcOpts, generalize.WithEvents(kafka.NewEventPublisher(producer, cfg.Kafka.Topic, st.Metrics, logger)))
	}

	if cfg.Auth.Enabled && opts.WithAuth {
		verifier, cerr := keycloak.NewClient(cfg.Auth, logger)
		if cerr != nil {
			return nil, cerr
		}
		st.addCloser("keycloak", verifier.Close)
		st.Checkers = append(st.Checkers, handlers.NamedCheck("keycloak", verifier.Health))
		st.Auth = verifier
	}

	if !opts.WithService {
		return st, nil
	}

	path := opts.OntologyPath
	if path == "" {
		path = cfg.Engine.OntologyPath
	}
	if path == "" {
		return nil, errors.New(errors.ErrCodeBadRequest, "no ontology configured").
			WithDetail("pass --ontology or set engine.ontology_path")
	}
	st.Ontology, st.OntologyHeader, err = ontology.LoadOBOFile(path, cfg.Engine.EquivalenceRelationships...)
	if err != nil {
		return nil, err
	}
	logger.Info("Ontology loaded",
		logging.String("path", path),
		logging.String("data_version", st.OntologyHeader.DataVersion),
		logging.Int("terms", st.Ontology.Len()))

	engine := generalization.NewEngine(cfg.Engine,
		generalization.WithLogger(logger),
		generalization.WithObserver(st.Metrics.EngineObserver()))
	svcOpts = append(svcOpts, generalize.WithOntologyHeader(st.OntologyHeader))

	st.Service, err = generalize.NewService(engine, st.Ontology, cfg.Engine, logger, svcOpts...)
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Stack) addCloser(name string, fn func() error) {
	s.closers = append(s.closers, namedCloser{name: name, close: fn})
}

// Close releases the adapters in reverse order of creation.
func (s *Stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		c := s.closers[i]
		if err := c.close(); err != nil {
			s.Logger.Warn("Failed to close adapter", logging.String("component", c.name), logging.Err(err))
		}
	}
	s.closers = nil
	_ = s.Logger.Sync()
}
