// Package neo4j exports generalized networks into a Neo4j graph.
package neo4j

import (
	"context"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/turtacn/MetaNet-Generalizer/internal/config"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MetaNet-Generalizer/pkg/errors"
)

const (
	defaultDatabase       = "neo4j"
	defaultPoolSize       = 50
	defaultAcquireTimeout = time.Minute
	connectTimeout        = 10 * time.Second
)

// Result is the part of a query result the exporter reads.
type Result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
	Err() error
	Consume(ctx context.Context) (neo4j.ResultSummary, error)
}

// Transaction runs statements inside a managed transaction.
type Transaction interface {
	Run(ctx context.Context, cypher string, params map[string]any) (Result, error)
}

// TxWork is one unit of work retried by the driver on transient errors.
type TxWork func(tx Transaction) (any, error)

// session and graph are the seams between Driver and the official driver.
type session interface {
	ExecuteRead(ctx context.Context, work TxWork) (any, error)
	ExecuteWrite(ctx context.Context, work TxWork) (any, error)
	Close(ctx context.Context) error
}

type graph interface {
	VerifyConnectivity(ctx context.Context) error
	NewSession(ctx context.Context, cfg neo4j.SessionConfig) session
	Close(ctx context.Context) error
}

type managedTx struct{ tx neo4j.ManagedTransaction }

func (t managedTx) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	return t.tx.Run(ctx, cypher, params)
}

type driverSession struct{ s neo4j.SessionWithContext }

func (s driverSession) ExecuteRead(ctx context.Context, work TxWork) (any, error) {
	return s.s.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) { return work(managedTx{tx}) })
}

func (s driverSession) ExecuteWrite(ctx context.Context, work TxWork) (any, error) {
	return s.s.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) { return work(managedTx{tx}) })
}

func (s driverSession) Close(ctx context.Context) error { return s.s.Close(ctx) }

type driverGraph struct{ d neo4j.DriverWithContext }

func (g driverGraph) VerifyConnectivity(ctx context.Context) error { return g.d.VerifyConnectivity(ctx) }

func (g driverGraph) NewSession(ctx context.Context, cfg neo4j.SessionConfig) session {
	return driverSession{g.d.NewSession(ctx, cfg)}
}

func (g driverGraph) Close(ctx context.Context) error { return g.d.Close(ctx) }

// Driver holds the connection pool of the graph export database.
type Driver struct {
	graph    graph
	database string
	logger   logging.Logger
	closed   sync.Once
}

// NewDriver connects to cfg.URI and verifies the connection.
func NewDriver(cfg config.Neo4jConfig, log logging.Logger) (*Driver, error) {
	if log == nil {
		log = logging.NewNopLogger()
	}
	d, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""), poolOptions(cfg))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create neo4j driver").WithDetail(cfg.URI)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := d.VerifyConnectivity(ctx); err != nil {
		_ = d.Close(ctx)
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to connect to neo4j").WithDetail(cfg.URI)
	}

	database := cfg.Database
	if database == "" {
		database = defaultDatabase
	}
	log.Info("Connected to Neo4j", logging.String("uri", cfg.URI), logging.String("database", database))
	return &Driver{graph: driverGraph{d}, database: database, logger: log}, nil
}

func poolOptions(cfg config.Neo4jConfig) func(*neo4j.Config) {
	return func(c *neo4j.Config) {
		c.MaxConnectionLifetime = time.Hour
		c.MaxConnectionPoolSize = defaultPoolSize
		if cfg.MaxConnectionPoolSize > 0 {
			c.MaxConnectionPoolSize = cfg.MaxConnectionPoolSize
		}
		c.ConnectionAcquisitionTimeout = defaultAcquireTimeout
		if cfg.ConnectionTimeout > 0 {
			c.ConnectionAcquisitionTimeout = cfg.ConnectionTimeout
			c.SocketConnectTimeout = cfg.ConnectionTimeout
		}
	}
}

// ExecuteRead runs work in a read transaction.
func (d *Driver) ExecuteRead(ctx context.Context, work TxWork) (any, error) {
	return d.execute(ctx, neo4j.AccessModeRead, work)
}

// ExecuteWrite runs work in a write transaction.
func (d *Driver) ExecuteWrite(ctx context.Context, work TxWork) (any, error) {
	return d.execute(ctx, neo4j.AccessModeWrite, work)
}

func (d *Driver) execute(ctx context.Context, mode neo4j.AccessMode, work TxWork) (any, error) {
	db := d.database
	if db == "" {
		db = defaultDatabase
	}
	s := d.graph.NewSession(ctx, neo4j.SessionConfig{DatabaseName: db, AccessMode: mode})
	defer s.Close(ctx)

	run, kind := s.ExecuteWrite, "write"
	if mode == neo4j.AccessModeRead {
		run, kind = s.ExecuteRead, "read"
	}
	out, err := run(ctx, work)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "neo4j "+kind+" transaction failed")
	}
	return out, nil
}

// HealthCheck verifies connectivity and that the export database answers
// queries.
func (d *Driver) HealthCheck(ctx context.Context) error {
	if err := d.graph.VerifyConnectivity(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "neo4j connectivity check failed")
	}
	_, err := d.ExecuteRead(ctx, func(tx Transaction) (any, error) {
		res, err := tx.Run(ctx, "RETURN 1 AS ok", nil)
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	return err
}

// Close releases the pool. Later calls are no-ops.
func (d *Driver) Close() error {
	var err error
	d.closed.Do(func() {
		if err = d.graph.Close(context.Background()); err != nil {
			d.logger.Error("Failed to close Neo4j driver", logging.Err(err))
		}
	})
	return err
}
