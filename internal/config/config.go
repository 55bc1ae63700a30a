package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Datastore      DatastoreConfig      `mapstructure:"datastore"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Mongo          MongoConfig          `mapstructure:"mongo"`
	Neo4j          Neo4jConfig          `mapstructure:"neo4j"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Kafka          KafkaConfig          `mapstructure:"kafka"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Recommendation RecommendationConfig `mapstructure:"recommendation"`
	Search         SearchConfig         `mapstructure:"search"`
	Monitoring     MonitoringConfig     `mapstructure:"monitoring"`
	Security       SecurityConfig       `mapstructure:"security"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// Datastore drivers and order sources.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"

	OrderSourceDatastore = "datastore"
	OrderSourceNeo4j     = "neo4j"
)

// DatastoreConfig selects where catalog and order data is read from.
type DatastoreConfig struct {
	Driver      string `mapstructure:"driver"`
	OrderSource string `mapstructure:"order_source"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type MongoConfig struct {
	URI      string        `mapstructure:"uri"`
	Database string        `mapstructure:"database"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type Neo4jConfig struct {
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

type RedisConfig struct {
	URL        string        `mapstructure:"url"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	GroupID string   `mapstructure:"group_id"`
	Topics  struct {
		OrderEvents string `mapstructure:"order_events"`
	} `mapstructure:"topics"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RecommendationConfig struct {
	DefaultLimit      int           `mapstructure:"default_limit"`
	MaxLimit          int           `mapstructure:"max_limit"`
	BuildTimeout      time.Duration `mapstructure:"build_timeout"`
	MinCoInteractions int           `mapstructure:"min_co_interactions"`
	RetrainInterval   time.Duration `mapstructure:"retrain_interval"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
	Weights           WeightsConfig `mapstructure:"weights"`
	Breaker           BreakerConfig `mapstructure:"breaker"`
}

type WeightsConfig struct {
	Collaborative float64 `mapstructure:"collaborative"`
	Content       float64 `mapstructure:"content"`
}

type BreakerConfig struct {
	MaxFailures uint32        `mapstructure:"max_failures"`
	OpenTimeout time.Duration `mapstructure:"open_timeout"`
}

type SearchConfig struct {
	Index struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"index"`
	DefaultLimit int `mapstructure:"default_limit"`
	MaxLimit     int `mapstructure:"max_limit"`
}

type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
}

type SecurityConfig struct {
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	setDefaults(v)

	// Environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional, continue with env vars and defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "development")

	// Datastore defaults
	v.SetDefault("datastore.driver", DriverPostgres)
	v.SetDefault("datastore.order_source", OrderSourceDatastore)

	// Database defaults
	v.SetDefault("database.url", "postgres://localhost:5432/marketplace")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.max_idle_time", "15m")
	v.SetDefault("database.max_lifetime", "1h")
	v.SetDefault("database.connect_timeout", "10s")

	// Mongo defaults
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "marketplace")
	v.SetDefault("mongo.timeout", "10s")

	// Neo4j defaults
	v.SetDefault("neo4j.url", "neo4j://localhost:7687")
	v.SetDefault("neo4j.username", "neo4j")
	v.SetDefault("neo4j.database", "neo4j")

	// Redis defaults; an empty url disables the recommendation cache
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.timeout", "5s")

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.group_id", "marketrec-model")
	v.SetDefault("kafka.topics.order_events", "order-events")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	// Recommendation defaults
	v.SetDefault("recommendation.default_limit", 10)
	v.SetDefault("recommendation.max_limit", 100)
	v.SetDefault("recommendation.build_timeout", "5m")
	v.SetDefault("recommendation.min_co_interactions", 1)
	v.SetDefault("recommendation.retrain_interval", "1h")
	v.SetDefault("recommendation.cache_ttl", "15m")
	v.SetDefault("recommendation.weights.collaborative", 0.6)
	v.SetDefault("recommendation.weights.content", 0.4)
	v.SetDefault("recommendation.breaker.max_failures", 5)
	v.SetDefault("recommendation.breaker.open_timeout", "30s")

	// Search defaults
	v.SetDefault("search.index.enabled", true)
	v.SetDefault("search.default_limit", 20)
	v.SetDefault("search.max_limit", 100)

	// Monitoring defaults
	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.metrics_path", "/metrics")

	// Security defaults
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("security.cors.allowed_headers", []string{"*"})
}
