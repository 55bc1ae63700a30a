package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/temcen/marketrec/internal/config"
)

const connectTimeout = 10 * time.Second

// Database holds the connections the configured datastore needs. Only the
// ones selected by configuration are opened; the rest stay nil.
type Database struct {
	PG      *pgxpool.Pool
	Mongo   *mongo.Client
	MongoDB *mongo.Database
	Neo4j   neo4j.DriverWithContext
	Redis   *redis.Client
	logger  *logrus.Logger
}

func New(cfg *config.Config, logger *logrus.Logger) (*Database, error) {
	db := &Database{
		logger: logger,
	}

	var err error
	switch cfg.Datastore.Driver {
	case config.DriverPostgres:
		err = db.initPostgreSQL(cfg)
	case config.DriverMongo:
		err = db.initMongo(cfg)
	default:
		err = fmt.Errorf("unknown datastore driver %q", cfg.Datastore.Driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Datastore.OrderSource == config.OrderSourceNeo4j {
		if err := db.initNeo4j(cfg); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to initialize Neo4j: %w", err)
		}
	}

	if cfg.Redis.URL != "" {
		if err := db.initRedis(cfg); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to initialize Redis: %w", err)
		}
	}

	return db, nil
}

func (db *Database) initPostgreSQL(cfg *config.Config) error {
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to parse PostgreSQL config: %w", err)
	}

	// Configure connection pool
	poolConfig.MaxConns = int32(cfg.Database.MaxConnections)
	poolConfig.MaxConnIdleTime = cfg.Database.MaxIdleTime
	poolConfig.MaxConnLifetime = cfg.Database.MaxLifetime
	poolConfig.ConnConfig.ConnectTimeout = cfg.Database.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return fmt.Errorf("failed to create PostgreSQL pool: %w", err)
	}

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	db.PG = pool
	db.logger.Info("PostgreSQL connection established")
	return nil
}

func (db *Database) initMongo(cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Mongo.Timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(cfg.Mongo.URI).
		SetServerSelectionTimeout(cfg.Mongo.Timeout))
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db.Mongo = client
	db.MongoDB = client.Database(cfg.Mongo.Database)
	db.logger.WithField("database", cfg.Mongo.Database).Info("MongoDB connection established")
	return nil
}

func (db *Database) initNeo4j(cfg *config.Config) error {
	driver, err := neo4j.NewDriverWithContext(
		cfg.Neo4j.URL,
		neo4j.BasicAuth(cfg.Neo4j.Username, cfg.Neo4j.Password, ""),
		func(config *neo4j.Config) {
			config.MaxConnectionPoolSize = 10
			config.ConnectionAcquisitionTimeout = 30 * time.Second
		},
	)
	if err != nil {
		return fmt.Errorf("failed to create Neo4j driver: %w", err)
	}

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(context.Background())
		return fmt.Errorf("failed to verify Neo4j connectivity: %w", err)
	}

	db.Neo4j = driver
	db.logger.Info("Neo4j connection established")
	return nil
}

func (db *Database) initRedis(cfg *config.Config) error {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		PoolSize:     cfg.Redis.PoolSize,
		ReadTimeout:  cfg.Redis.Timeout,
		WriteTimeout: cfg.Redis.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to ping Redis: %w", err)
	}

	db.Redis = client
	db.logger.Info("Redis connection established")
	return nil
}

// Checks returns a probe per open connection for the health service. The
// primary datastore is critical; Neo4j and Redis are not.
func (db *Database) Checks() []Check {
	var checks []Check
	if db.PG != nil {
		checks = append(checks, Check{Name: "postgresql", Critical: true, Probe: db.PG.Ping})
	}
	if db.Mongo != nil {
		checks = append(checks, Check{Name: "mongodb", Critical: true, Probe: func(ctx context.Context) error {
			return db.Mongo.Ping(ctx, readpref.Primary())
		}})
	}
	if db.Neo4j != nil {
		checks = append(checks, Check{Name: "neo4j", Critical: false, Probe: db.Neo4j.VerifyConnectivity})
	}
	if db.Redis != nil {
		checks = append(checks, Check{Name: "redis", Critical: false, Probe: func(ctx context.Context) error {
			return db.Redis.Ping(ctx).Err()
		}})
	}
	return checks
}

// Check is a named connectivity probe.
type Check struct {
	Name     string
	Critical bool
	Probe    func(ctx context.Context) error
}

func (db *Database) Close() error {
	var errs []error

	// Close PostgreSQL
	if db.PG != nil {
		db.PG.Close()
		db.logger.Info("PostgreSQL connection closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if db.Mongo != nil {
		if err := db.Mongo.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close MongoDB: %w", err))
		} else {
			db.logger.Info("MongoDB connection closed")
		}
	}

	if db.Neo4j != nil {
		if err := db.Neo4j.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Neo4j: %w", err))
		} else {
			db.logger.Info("Neo4j connection closed")
		}
	}

	if db.Redis != nil {
		if err := db.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Redis: %w", err))
		} else {
			db.logger.Info("Redis connection closed")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing database connections: %w", errors.Join(errs...))
	}

	return nil
}
