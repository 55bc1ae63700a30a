package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/temcen/marketrec/internal/cache"
	"github.com/temcen/marketrec/internal/config"
	"github.com/temcen/marketrec/internal/database"
	"github.com/temcen/marketrec/internal/handlers"
	"github.com/temcen/marketrec/internal/messaging"
	"github.com/temcen/marketrec/internal/middleware"
	"github.com/temcen/marketrec/internal/recommender"
	"github.com/temcen/marketrec/internal/search"
	"github.com/temcen/marketrec/internal/services"
	"github.com/temcen/marketrec/internal/store"
	"github.com/temcen/marketrec/internal/validation"
)

type App struct {
	config     *config.Config
	logger     *logrus.Logger
	db         *database.Database
	engine     *recommender.HybridRecommender
	index      *search.Index
	schemas    *validation.SchemaValidator
	services   *services.Services
	handlers   *handlers.Handlers
	consumer   *messaging.OrderEventConsumer
	router     *gin.Engine
	background *errgroup.Group
	cancel     context.CancelFunc
}

// sources are the data sources the recommender and services read from.
type sources struct {
	orders   recommender.OrderSource
	catalog  recommender.CatalogSource
	history  recommender.PurchaseHistorySource
	insights recommender.CatalogInsights
}

func New(cfg *config.Config) (*App, error) {
	app := &App{
		config: cfg,
		logger: setupLogger(cfg),
	}

	// Initialize database connections
	db, err := database.New(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	src, err := buildSources(cfg, db, app.logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	schemas, err := validation.NewSchemaValidator()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to load schemas: %w", err)
	}
	app.schemas = schemas

	app.engine = recommender.NewHybridRecommender(src.orders, src.catalog, src.history, recommender.HybridConfig{
		Weights: recommender.BlendWeights{
			Collaborative: cfg.Recommendation.Weights.Collaborative,
			Content:       cfg.Recommendation.Weights.Content,
		},
		BuildTimeout:      cfg.Recommendation.BuildTimeout,
		MinCoInteractions: cfg.Recommendation.MinCoInteractions,
	}, app.logger)

	var recCache *cache.Recommendations
	if db.Redis != nil {
		recCache = cache.NewRecommendations(db.Redis, cfg.Recommendation.CacheTTL, app.logger)
	}

	deps := services.Dependencies{
		Engine:     app.engine,
		Catalog:    src.catalog,
		Insights:   src.insights,
		Cache:      recCache,
		Registerer: prometheus.DefaultRegisterer,
	}
	for _, check := range db.Checks() {
		deps.HealthChecks = append(deps.HealthChecks, services.HealthCheck{
			Name:     check.Name,
			Critical: check.Critical,
			Check:    check.Probe,
		})
	}

	if cfg.Search.Index.Enabled {
		index, err := search.NewIndex()
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		app.index = index
		deps.Index = index
	}

	// Initialize services
	app.services = services.New(cfg, app.logger, deps)

	// Initialize handlers
	app.handlers = handlers.New(app.logger, app.services)

	if cfg.Kafka.Enabled {
		app.consumer = messaging.NewOrderEventConsumer(cfg.Kafka, schemas, app.services.Scheduler.HandleOrderEvent, app.logger)
	}

	// Setup router
	app.setupRouter()

	return app, nil
}

// buildSources selects the configured datastore and guards each backend with
// its own circuit breaker.
func buildSources(cfg *config.Config, db *database.Database, logger *logrus.Logger) (sources, error) {
	breaker := store.BreakerConfig{
		MaxFailures: cfg.Recommendation.Breaker.MaxFailures,
		OpenTimeout: cfg.Recommendation.Breaker.OpenTimeout,
	}

	var primary interface {
		recommender.OrderSource
		recommender.CatalogSource
		recommender.PurchaseHistorySource
		recommender.CatalogInsights
	}
	switch cfg.Datastore.Driver {
	case config.DriverPostgres:
		primary = store.NewPostgres(db.PG, logger)
	case config.DriverMongo:
		if db.MongoDB == nil {
			return sources{}, errors.New("mongo driver selected but no mongo connection is open")
		}
		primary = store.NewMongo(db.MongoDB, logger)
	default:
		return sources{}, fmt.Errorf("unknown datastore driver %q", cfg.Datastore.Driver)
	}

	guard := store.NewGuard(cfg.Datastore.Driver, breaker, logger)
	src := sources{
		orders:   guard.Orders(primary),
		catalog:  guard.Catalog(primary),
		history:  guard.History(primary),
		insights: guard.Insights(primary),
	}

	switch cfg.Datastore.OrderSource {
	case config.OrderSourceDatastore, "":
	case config.OrderSourceNeo4j:
		graph := store.NewGraphOrders(db.Neo4j, cfg.Neo4j.Database, logger)
		src.orders = store.NewGuard(config.OrderSourceNeo4j, breaker, logger).Orders(graph)
	default:
		return sources{}, fmt.Errorf("unknown order source %q", cfg.Datastore.OrderSource)
	}

	logger.WithFields(logrus.Fields{
		"driver":       cfg.Datastore.Driver,
		"order_source": cfg.Datastore.OrderSource,
	}).Info("Data sources configured")

	return src, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

// Start launches the background work: the first model build, the initial
// index load, the retrain scheduler and the order event consumer.
func (a *App) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)
	a.background = g

	g.Go(func() error {
		if err := a.engine.Initialize(ctx); err != nil {
			// Requests retry the build lazily.
			a.logger.WithError(err).Warn("Initial recommendation model build failed")
		}
		return nil
	})

	if a.index != nil {
		g.Go(func() error {
			if _, err := a.services.Search.IndexProducts(ctx); err != nil {
				a.logger.WithError(err).Warn("Initial search index load failed")
			}
			return nil
		})
	}

	g.Go(func() error {
		return ignoreCancel(a.services.Scheduler.Run(ctx))
	})

	if a.consumer != nil {
		g.Go(func() error {
			return ignoreCancel(a.consumer.Run(ctx))
		})
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application...")

	if a.cancel != nil {
		a.cancel()
		done := make(chan error, 1)
		go func() { done <- a.background.Wait() }()
		select {
		case err := <-done:
			if err != nil {
				a.logger.WithError(err).Error("Background worker failed")
			}
		case <-ctx.Done():
			a.logger.Warn("Timed out waiting for background workers")
		}
	}

	var errs []error
	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.index != nil {
		if err := a.index.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing database connections")
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func (a *App) setupRouter() {
	if a.config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	validator := middleware.NewValidationMiddleware(a.schemas)

	// Global middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(a.logger))
	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.CORS(a.config))
	router.Use(middleware.Metrics(a.services.Metrics))

	router.GET("/health", a.handlers.Health.Check)

	if a.config.Monitoring.Enabled {
		router.GET(a.config.Monitoring.MetricsPath, gin.WrapH(promhttp.Handler()))
	}

	api := router.Group("/api/v1")
	{
		recommendations := api.Group("/recommendations")
		{
			recommendations.GET("/personalized/:userId", validator.ValidatePathParams("userId"), a.handlers.Recommendation.Personalized)
			recommendations.GET("/similar/:productId", validator.ValidatePathParams("productId"), a.handlers.Recommendation.Similar)
			recommendations.GET("/trending", a.handlers.Recommendation.Trending)
			recommendations.GET("/category/:category", validator.ValidatePathParams("category"), a.handlers.Recommendation.Category)
			recommendations.POST("/retrain", a.handlers.Recommendation.Retrain)
		}

		search := api.Group("/search")
		{
			search.GET("/products", a.handlers.Search.Products)
			search.POST("/index-products", a.handlers.Search.IndexProducts)
			search.POST("/rank", validator.ValidateRankRequest(), a.handlers.Search.Rank)
			search.GET("/suggestions", a.handlers.Search.Suggestions)
			search.GET("/trending", a.handlers.Search.Trending)
		}
	}

	a.router = router
}
