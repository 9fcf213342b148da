package config

import (
	"time"

	"github.com/spf13/viper"
)

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultServerPort            = 8080
	DefaultServerMode            = "release"
	DefaultServerReadTimeout     = 30 * time.Second
	DefaultServerWriteTimeout    = 5 * time.Minute
	DefaultServerMaxBodySize     = 64 << 20
	DefaultServerShutdownTimeout = 30 * time.Second
	DefaultServerRateLimitBurst  = 20

	DefaultConflictCeiling     = 40
	DefaultUbiquitousThreshold = 20
	DefaultMinOntologyDepth    = 3

	DefaultDBHost     = "localhost"
	DefaultDBPort     = 5432
	DefaultDBName     = "metanet"
	DefaultDBUser     = "metanet"
	DefaultDBMaxConns = 10

	DefaultRedisAddr       = "localhost:6379"
	DefaultRedisTTL        = 24 * time.Hour
	DefaultRedisKeyPrefix  = "metanet:"
	DefaultRedisPoolSize   = 10
	DefaultRedisIOTimeout  = 3 * time.Second
	DefaultNeo4jURI        = "neo4j://localhost:7687"
	DefaultKafkaBroker     = "localhost:9092"
	DefaultKafkaTopic      = "metanet.generalization.completed"
	DefaultKafkaRequests   = "metanet.generalization.requested"
	DefaultKafkaGroupID    = "metanet-worker"
	DefaultMinIOEndpoint   = "localhost:9000"
	DefaultMinIOBucket     = "metanet-artifacts"
	DefaultOpenSearchAddr  = "http://localhost:9200"
	DefaultOpenSearchIndex = "metanet-species-groups"

	DefaultJWKSRefreshInterval = 5 * time.Minute
	DefaultAuthRequestTimeout  = 10 * time.Second

	DefaultMetricsNamespace = "metanet"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// DefaultEquivalenceRelationships are the ChEBI relationship types under which
// two terms denote the same chemical entity for generalization purposes.
var DefaultEquivalenceRelationships = []string{
	"is_conjugate_acid_of",
	"is_conjugate_base_of",
	"is_tautomer_of",
}

// ApplyDefaults fills zero-value fields in cfg. Explicit values always win.
// Booleans whose default is true are handled by viper defaults instead,
// since false cannot be told apart from "unset" here.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultServerReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultServerWriteTimeout
	}
	if cfg.Server.MaxBodySize == 0 {
		cfg.Server.MaxBodySize = DefaultServerMaxBodySize
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultServerShutdownTimeout
	}
	if cfg.Server.RateLimitRPS > 0 && cfg.Server.RateLimitBurst == 0 {
		cfg.Server.RateLimitBurst = DefaultServerRateLimitBurst
	}

	// ── Engine ────────────────────────────────────────────────────────────────
	if cfg.Engine.ConflictCeiling == 0 {
		cfg.Engine.ConflictCeiling = DefaultConflictCeiling
	}
	if cfg.Engine.UbiquitousThreshold == 0 {
		cfg.Engine.UbiquitousThreshold = DefaultUbiquitousThreshold
	}
	if cfg.Engine.MinOntologyDepth == 0 {
		cfg.Engine.MinOntologyDepth = DefaultMinOntologyDepth
	}
	if len(cfg.Engine.EquivalenceRelationships) == 0 {
		cfg.Engine.EquivalenceRelationships = append([]string(nil), DefaultEquivalenceRelationships...)
	}

	// ── Database ──────────────────────────────────────────────────────────────
	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.User == "" {
		cfg.Database.User = DefaultDBUser
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = DefaultDBMaxConns
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.DefaultTTL == 0 {
		cfg.Redis.DefaultTTL = DefaultRedisTTL
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = DefaultRedisPoolSize
	}
	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = DefaultRedisIOTimeout
	}

	// ── Neo4j ─────────────────────────────────────────────────────────────────
	if cfg.Neo4j.URI == "" {
		cfg.Neo4j.URI = DefaultNeo4jURI
	}
	if cfg.Neo4j.Database == "" {
		cfg.Neo4j.Database = "neo4j"
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = DefaultKafkaTopic
	}
	if cfg.Kafka.RequestTopic == "" {
		cfg.Kafka.RequestTopic = DefaultKafkaRequests
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.BatchSize == 0 {
		cfg.Kafka.BatchSize = 100
	}
	if cfg.Kafka.BatchTimeout == 0 {
		cfg.Kafka.BatchTimeout = 10 * time.Millisecond
	}
	if cfg.Kafka.MaxAttempts == 0 {
		cfg.Kafka.MaxAttempts = 3
	}

	// ── MinIO ─────────────────────────────────────────────────────────────────
	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}
	if cfg.MinIO.Region == "" {
		cfg.MinIO.Region = "us-east-1"
	}

	// ── OpenSearch ────────────────────────────────────────────────────────────
	if len(cfg.OpenSearch.Addresses) == 0 {
		cfg.OpenSearch.Addresses = []string{DefaultOpenSearchAddr}
	}
	if cfg.OpenSearch.IndexName == "" {
		cfg.OpenSearch.IndexName = DefaultOpenSearchIndex
	}

	// ── Auth ──────────────────────────────────────────────────────────────────
	if cfg.Auth.JWKSRefreshInterval <= 0 {
		cfg.Auth.JWKSRefreshInterval = DefaultJWKSRefreshInterval
	}
	if cfg.Auth.RequestTimeout <= 0 {
		cfg.Auth.RequestTimeout = DefaultAuthRequestTimeout
	}

	// ── Metrics / Log ─────────────────────────────────────────────────────────
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}

// Default returns a fully defaulted Config, as used when no file is given.
func Default() *Config {
	cfg := &Config{Engine: EngineConfig{IgnoreBiomass: true}}
	ApplyDefaults(cfg)
	return cfg
}

// registerDefaults seeds viper with defaults so that every key is known to
// viper; AutomaticEnv only resolves keys viper has seen.
func registerDefaults(v *viper.Viper) {
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.mode", DefaultServerMode)
	v.SetDefault("server.read_timeout", DefaultServerReadTimeout)
	v.SetDefault("server.write_timeout", DefaultServerWriteTimeout)
	v.SetDefault("server.max_body_size", DefaultServerMaxBodySize)
	v.SetDefault("server.shutdown_timeout", DefaultServerShutdownTimeout)
	v.SetDefault("server.rate_limit_rps", 0.0)
	v.SetDefault("server.rate_limit_burst", 0)
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.grpc_health_port", 0)

	v.SetDefault("engine.workers", 0)
	v.SetDefault("engine.infer_unmapped", false)
	v.SetDefault("engine.conflict_ceiling", DefaultConflictCeiling)
	v.SetDefault("engine.ubiquitous_threshold", DefaultUbiquitousThreshold)
	v.SetDefault("engine.ubiquitous_term_ids", []string{})
	v.SetDefault("engine.ubiquitous_species_ids", []string{})
	v.SetDefault("engine.ignored_ubiquitous_term_ids", []string{})
	v.SetDefault("engine.equivalence_relationships", DefaultEquivalenceRelationships)
	v.SetDefault("engine.ignore_biomass", true)
	v.SetDefault("engine.reactions_to_ignore", []string{})
	v.SetDefault("engine.ontology_path", "")
	v.SetDefault("engine.min_ontology_depth", DefaultMinOntologyDepth)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", DefaultDBHost)
	v.SetDefault("database.port", DefaultDBPort)
	v.SetDefault("database.user", DefaultDBUser)
	v.SetDefault("database.password", "")
	v.SetDefault("database.db_name", DefaultDBName)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", DefaultDBMaxConns)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", DefaultRedisAddr)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.default_ttl", DefaultRedisTTL)
	v.SetDefault("redis.key_prefix", DefaultRedisKeyPrefix)

	v.SetDefault("neo4j.enabled", false)
	v.SetDefault("neo4j.uri", DefaultNeo4jURI)
	v.SetDefault("neo4j.user", "neo4j")
	v.SetDefault("neo4j.password", "")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{DefaultKafkaBroker})
	v.SetDefault("kafka.topic", DefaultKafkaTopic)
	v.SetDefault("kafka.request_topic", DefaultKafkaRequests)
	v.SetDefault("kafka.group_id", DefaultKafkaGroupID)

	v.SetDefault("minio.enabled", false)
	v.SetDefault("minio.endpoint", DefaultMinIOEndpoint)
	v.SetDefault("minio.access_key", "")
	v.SetDefault("minio.secret_key", "")
	v.SetDefault("minio.bucket", DefaultMinIOBucket)
	v.SetDefault("minio.use_ssl", false)

	v.SetDefault("opensearch.enabled", false)
	v.SetDefault("opensearch.addresses", []string{DefaultOpenSearchAddr})
	v.SetDefault("opensearch.index_name", DefaultOpenSearchIndex)

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.base_url", "")
	v.SetDefault("auth.realm", "")
	v.SetDefault("auth.client_id", "")
	v.SetDefault("auth.required_role", "")
	v.SetDefault("auth.jwks_refresh_interval", DefaultJWKSRefreshInterval)
	v.SetDefault("auth.request_timeout", DefaultAuthRequestTimeout)

	v.SetDefault("metrics.namespace", DefaultMetricsNamespace)
	v.SetDefault("metrics.textfile_path", "")

	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)
}
