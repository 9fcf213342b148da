// Package config defines the configuration structures of the MetaNet
// generalizer. No I/O lives here, only plain data types and validation.
package config

import (
	"fmt"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// RateLimitRPS is the per-client sustained request rate; zero disables
	// rate limiting.
	RateLimitRPS   float64  `mapstructure:"rate_limit_rps"`
	RateLimitBurst int      `mapstructure:"rate_limit_burst"`
	CORSOrigins    []string `mapstructure:"cors_origins"`
	// GRPCHealthPort serves grpc.health.v1 when non-zero.
	GRPCHealthPort int `mapstructure:"grpc_health_port"`
}

// EngineConfig holds the generalization engine parameters.
type EngineConfig struct {
	// Workers bounds the per-phase fan-out. Zero means runtime.NumCPU().
	Workers int `mapstructure:"workers"`

	// InferUnmapped enables structural inference of clusters for species
	// without an ontology term.
	InferUnmapped bool `mapstructure:"infer_unmapped"`

	// ConflictCeiling drops candidate term sets whose conflict count exceeds it.
	ConflictCeiling int `mapstructure:"conflict_ceiling"`

	// UbiquitousThreshold caps the frequency threshold for ubiquitous terms.
	UbiquitousThreshold int `mapstructure:"ubiquitous_threshold"`

	// UbiquitousTermIDs overrides the built-in ubiquitous ChEBI ids when set.
	UbiquitousTermIDs []string `mapstructure:"ubiquitous_term_ids"`

	// UbiquitousSpeciesIDs marks species as ubiquitous explicitly.
	UbiquitousSpeciesIDs []string `mapstructure:"ubiquitous_species_ids"`

	// IgnoredUbiquitousTermIDs are excluded from vertical keys unless the key
	// would otherwise be empty. Defaults to the proton ids.
	IgnoredUbiquitousTermIDs []string `mapstructure:"ignored_ubiquitous_term_ids"`

	// EquivalenceRelationships are the ontology relationship types treated as
	// equivalence (conjugate acid/base, tautomer).
	EquivalenceRelationships []string `mapstructure:"equivalence_relationships"`

	// IgnoreBiomass excludes reactions recognised as biomass reactions.
	IgnoreBiomass bool `mapstructure:"ignore_biomass"`

	// ReactionsToIgnore lists additional reaction ids excluded from keys.
	ReactionsToIgnore []string `mapstructure:"reactions_to_ignore"`

	// OntologyPath is the OBO file loaded at startup by the serve command.
	OntologyPath string `mapstructure:"ontology_path"`

	// MinOntologyDepth filters ontology terms shallower than this depth from
	// the ancestor sets used for covering.
	MinOntologyDepth int `mapstructure:"min_ontology_depth"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RedisConfig holds Redis connection parameters for the result cache.
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	DefaultTTL   time.Duration `mapstructure:"default_ttl"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// Neo4jConfig holds the graph export target.
type Neo4jConfig struct {
	Enabled               bool          `mapstructure:"enabled"`
	URI                   string        `mapstructure:"uri"`
	User                  string        `mapstructure:"user"`
	Password              string        `mapstructure:"password"`
	Database              string        `mapstructure:"database"`
	MaxConnectionPoolSize int           `mapstructure:"max_connection_pool_size"`
	ConnectionTimeout     time.Duration `mapstructure:"connection_timeout"`
}

// KafkaConfig holds the event publisher and request consumer parameters.
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	// Topic receives generalization.completed events.
	Topic string `mapstructure:"topic"`
	// RequestTopic is consumed by the worker command.
	RequestTopic    string        `mapstructure:"request_topic"`
	GroupID         string        `mapstructure:"group_id"`
	DeadLetterTopic string        `mapstructure:"dead_letter_topic"`
	BatchSize       int           `mapstructure:"batch_size"`
	BatchTimeout    time.Duration `mapstructure:"batch_timeout"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	RequiredAcks    int           `mapstructure:"required_acks"`
}

// MinIOConfig holds the artifact archive parameters.
type MinIOConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Region    string `mapstructure:"region"`
}

// OpenSearchConfig holds the species-group index parameters.
type OpenSearchConfig struct {
	Enabled            bool     `mapstructure:"enabled"`
	Addresses          []string `mapstructure:"addresses"`
	User               string   `mapstructure:"user"`
	Password           string   `mapstructure:"password"`
	InsecureSkipVerify bool     `mapstructure:"insecure_skip_verify"`
	IndexName          string   `mapstructure:"index_name"`
}

// AuthConfig enables bearer-token authentication of the /api/v1 routes
// against a Keycloak realm.
type AuthConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BaseURL  string `mapstructure:"base_url"`
	Realm    string `mapstructure:"realm"`
	ClientID string `mapstructure:"client_id"`
	// RequiredRole, when set, must be among the realm or client roles.
	RequiredRole        string        `mapstructure:"required_role"`
	JWKSRefreshInterval time.Duration `mapstructure:"jwks_refresh_interval"`
	RequestTimeout      time.Duration `mapstructure:"request_timeout"`
}

// MetricsConfig holds Prometheus parameters.
type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
	// TextfilePath, when set, makes CLI runs write their metrics in the
	// node_exporter textfile format.
	TextfilePath string `mapstructure:"textfile_path"`
}

// LogConfig holds structured-logging parameters.
type LogConfig struct {
	Level       string   `mapstructure:"level"`  // "debug" | "info" | "warn" | "error"
	Format      string   `mapstructure:"format"` // "json" | "console"
	OutputPaths []string `mapstructure:"output_paths"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration structure.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Neo4j      Neo4jConfig      `mapstructure:"neo4j"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	MinIO      MinIOConfig      `mapstructure:"minio"`
	OpenSearch OpenSearchConfig `mapstructure:"opensearch"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Log        LogConfig        `mapstructure:"log"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate performs semantic validation of a defaulted Config and returns the
// first problem found.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	if c.Server.GRPCHealthPort < 0 || c.Server.GRPCHealthPort > 65535 {
		return fmt.Errorf("config: server.grpc_health_port %d is out of range [0, 65535]", c.Server.GRPCHealthPort)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}

	if c.Engine.Workers < 0 {
		return fmt.Errorf("config: engine.workers must be >= 0, got %d", c.Engine.Workers)
	}
	if c.Engine.ConflictCeiling < 1 {
		return fmt.Errorf("config: engine.conflict_ceiling must be >= 1, got %d", c.Engine.ConflictCeiling)
	}
	if c.Engine.UbiquitousThreshold < 3 {
		return fmt.Errorf("config: engine.ubiquitous_threshold must be >= 3, got %d", c.Engine.UbiquitousThreshold)
	}

	if c.Database.Enabled {
		if c.Database.Host == "" {
			return fmt.Errorf("config: database.host is required")
		}
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			return fmt.Errorf("config: database.port %d is out of range [1, 65535]", c.Database.Port)
		}
		if c.Database.User == "" {
			return fmt.Errorf("config: database.user is required")
		}
		if c.Database.DBName == "" {
			return fmt.Errorf("config: database.db_name is required")
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			return fmt.Errorf("config: redis.addr is required")
		}
		if c.Redis.DB < 0 {
			return fmt.Errorf("config: redis.db must be >= 0, got %d", c.Redis.DB)
		}
	}

	if c.Neo4j.Enabled && c.Neo4j.URI == "" {
		return fmt.Errorf("config: neo4j.uri is required")
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("config: kafka.brokers must contain at least one broker address")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("config: kafka.topic is required")
		}
	}

	if c.MinIO.Enabled {
		if c.MinIO.Endpoint == "" {
			return fmt.Errorf("config: minio.endpoint is required")
		}
		if c.MinIO.Bucket == "" {
			return fmt.Errorf("config: minio.bucket is required")
		}
	}

	if c.OpenSearch.Enabled && len(c.OpenSearch.Addresses) == 0 {
		return fmt.Errorf("config: opensearch.addresses must contain at least one address")
	}

	if c.Auth.Enabled {
		if c.Auth.BaseURL == "" {
			return fmt.Errorf("config: auth.base_url is required")
		}
		if c.Auth.Realm == "" {
			return fmt.Errorf("config: auth.realm is required")
		}
		if c.Auth.ClientID == "" {
			return fmt.Errorf("config: auth.client_id is required")
		}
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	return nil
}
