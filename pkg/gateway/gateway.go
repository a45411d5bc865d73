package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	apiv1 "github.com/beam-cloud/toolshelf/pkg/api/v1"
	"github.com/beam-cloud/toolshelf/pkg/backup"
	"github.com/beam-cloud/toolshelf/pkg/catalog"
	"github.com/beam-cloud/toolshelf/pkg/clients"
	"github.com/beam-cloud/toolshelf/pkg/common"
	"github.com/beam-cloud/toolshelf/pkg/repository"
	"github.com/beam-cloud/toolshelf/pkg/types"
)

type Gateway struct {
	Config      types.AppConfig
	RedisClient *common.RedisClient
	BackendRepo *repository.PostgresBackend
	Collection  repository.CollectionRepository
	httpServer  *http.Server
	echo        *echo.Echo
	ctx         context.Context
	cancelFunc  context.CancelFunc

	// Cancelled when the HTTP server starts shutting down, which ends open event streams
	streamsCtx    context.Context
	cancelStreams context.CancelFunc

	baseRouteGroup *echo.Group
	rootRouteGroup *echo.Group

	eventBus *common.EventBus
	sessions *catalog.Sessions
	archiver *backup.Archiver
}

func NewGateway() (*Gateway, error) {
	configManager, err := common.NewConfigManager[types.AppConfig]()
	if err != nil {
		return nil, err
	}
	config := configManager.GetConfig()

	// Setup logging
	if config.PrettyLogs {
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}

	ctx, cancel := context.WithCancel(context.Background())
	gateway := &Gateway{
		Config:     config,
		ctx:        ctx,
		cancelFunc: cancel,
	}

	if err := gateway.initCollection(); err != nil {
		cancel()
		return nil, err
	}

	return gateway, nil
}

// initCollection connects the configured collection backend. Local mode
// always uses the in-process collection.
func (g *Gateway) initCollection() error {
	backend := g.Config.Catalog.Backend
	if g.Config.IsLocalMode() {
		log.Info().Msg("running in local mode - Redis and Postgres disabled")
		backend = types.BackendMemory
	}

	// Redis is used for change fan-out and locking whenever it is configured
	if !g.Config.IsLocalMode() && len(g.Config.Database.Redis.Addrs) > 0 {
		redisClient, err := common.NewRedisClient(g.Config.Database.Redis, common.WithClientName("ToolshelfGateway"))
		switch {
		case err == nil:
			g.RedisClient = redisClient
		case backend == types.BackendRedis:
			return err
		default:
			log.Warn().Err(err).Msg("redis unavailable - init locks disabled")
		}
	}

	switch backend {
	case types.BackendMemory, "":
		g.eventBus = common.NewEventBus(g.ctx, nil)
		g.Collection = repository.NewCollectionMemoryRepository(g.ctx, g.eventBus)

	case types.BackendRedis:
		if g.RedisClient == nil {
			return fmt.Errorf("catalog backend %q requires database.redis.addrs", backend)
		}
		g.eventBus = common.NewEventBus(g.ctx, g.RedisClient)
		go g.eventBus.Start()
		<-g.eventBus.Ready()
		g.Collection = repository.NewCollectionRedisRepository(g.ctx, g.RedisClient, g.eventBus)

	case types.BackendPostgres:
		backendRepo, err := repository.NewPostgresBackend(g.Config.Database.Postgres)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		g.BackendRepo = backendRepo

		if err := g.migrate(); err != nil {
			return err
		}

		collection, err := repository.NewCollectionPostgresRepository(g.ctx, backendRepo, g.Config.Catalog.NotifyDebounce)
		if err != nil {
			return err
		}
		g.Collection = collection

	default:
		return fmt.Errorf("unknown catalog backend %q", backend)
	}

	log.Info().Str("backend", backend).Str("path", g.Config.Catalog.Path).Msg("catalog collection ready")
	return nil
}

// migrate runs the postgres migrations, holding the init lock so that only
// one replica migrates at a time.
func (g *Gateway) migrate() error {
	unlock, err := g.initLock("migrations")
	if err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	defer unlock()

	if err := g.BackendRepo.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run postgres migrations: %w", err)
	}
	return nil
}

func (g *Gateway) initLock(name string) (func(), error) {
	// Skip locking without Redis
	if g.RedisClient == nil {
		return func() {}, nil
	}

	lockKey := common.Keys.GatewayInitLock(name)
	lock := common.NewRedisLock(g.RedisClient)

	if err := lock.Acquire(g.ctx, lockKey, common.RedisLockOptions{TtlS: 10, Retries: 1}); err != nil {
		return nil, err
	}

	return func() {
		if err := lock.Release(lockKey); err != nil {
			log.Error().Str("lock_key", lockKey).Err(err).Msg("failed to release init lock")
		}
	}, nil
}

func (g *Gateway) initHTTP() error {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Pre(middleware.RemoveTrailingSlash())

	// Configure logging middleware
	if g.Config.Gateway.HTTP.EnablePrettyLogs {
		e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
			Format: "${time_rfc3339} ${method} ${uri} ${status} ${latency_human}\n",
		}))
	}

	// CORS
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: g.Config.Gateway.HTTP.CORS.AllowedOrigins,
		AllowHeaders: g.Config.Gateway.HTTP.CORS.AllowedHeaders,
		AllowMethods: g.Config.Gateway.HTTP.CORS.AllowedMethods,
	}))

	e.Use(middleware.Recover())

	g.echo = e
	g.streamsCtx, g.cancelStreams = context.WithCancel(g.ctx)
	g.httpServer = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", g.Config.Gateway.HTTP.Host, g.Config.Gateway.HTTP.Port),
		Handler:     e,
		BaseContext: func(net.Listener) context.Context { return g.streamsCtx },
	}
	g.httpServer.RegisterOnShutdown(g.cancelStreams)

	g.baseRouteGroup = e.Group(apiv1.HttpServerBaseRoute)
	g.rootRouteGroup = e.Group(apiv1.HttpServerRootRoute)

	apiv1.NewHealthGroup(g.baseRouteGroup.Group("/health"), g.Collection)

	return nil
}

func (g *Gateway) registerServices() error {
	catalogCfg := g.Config.Catalog

	g.sessions = catalog.NewSessions(g.ctx, g.Collection, catalog.ViewConfig{
		Path:                catalogCfg.Path,
		CelebrationDuration: catalogCfg.CelebrationDuration,
	}, catalogCfg.MaxSessions, catalogCfg.SessionTTL)

	// JSON API
	apiv1.RegisterCategoriesRoute(g.baseRouteGroup)
	apiv1.NewToolsGroup(g.baseRouteGroup.Group("/tools"), g.Collection, catalogCfg.Path)

	// Browser pages
	apiv1.NewPagesGroup(g.rootRouteGroup, g.sessions, apiv1.NewSessionManager(g.Config.Gateway.SessionKey))

	log.Info().Msg("catalog pages and tools API registered")

	if g.Config.Backup.IsConfigured() {
		if err := g.initBackup(); err != nil {
			log.Warn().Err(err).Msg("failed to start snapshot archiver - backups disabled")
		}
	}

	return nil
}

func (g *Gateway) initBackup() error {
	cfg := g.Config.Backup

	storage, err := clients.NewStorageClient(g.ctx, cfg.S3)
	if err != nil {
		return err
	}
	if err := storage.EnsureBucket(g.ctx); err != nil {
		return err
	}

	archiver := backup.NewArchiver(g.ctx, g.Collection, storage, backup.Config{
		Path:     g.Config.Catalog.Path,
		Prefix:   cfg.Prefix,
		Debounce: cfg.Debounce,
	})

	if cfg.RestoreOnEmpty {
		unlock, err := g.initLock("restore")
		if err != nil {
			return err
		}
		_, err = archiver.Restore(g.ctx)
		unlock()
		if err != nil {
			log.Warn().Err(err).Msg("failed to restore catalog from archive")
		}
	}

	if err := archiver.Start(); err != nil {
		return err
	}
	g.archiver = archiver

	log.Info().Str("bucket", storage.Bucket()).Str("prefix", cfg.Prefix).Msg("snapshot archiver registered")
	return nil
}

// StartAsync starts the gateway servers without blocking.
func (g *Gateway) StartAsync() error {
	err := g.initHTTP()
	if err != nil {
		return fmt.Errorf("failed to initialize http server: %w", err)
	}

	err = g.registerServices()
	if err != nil {
		return fmt.Errorf("failed to register services: %w", err)
	}

	// Start HTTP server
	go func() {
		lis, err := net.Listen("tcp", g.httpServer.Addr)
		if err != nil {
			log.Error().Err(err).Msg("failed to listen on http")
			return
		}

		if err := g.httpServer.Serve(lis); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server error")
		}
	}()

	log.Info().
		Str("host", g.Config.Gateway.HTTP.Host).
		Int("port", g.Config.Gateway.HTTP.Port).
		Msg("gateway http server running")

	return nil
}

// Shutdown gracefully shuts down the gateway (exported for external use)
func (g *Gateway) Shutdown() {
	g.shutdown()
}

func (g *Gateway) Start() error {
	if err := g.StartAsync(); err != nil {
		return err
	}

	terminationSignal := make(chan os.Signal, 1)
	signal.Notify(terminationSignal, os.Interrupt, syscall.SIGTERM)
	<-terminationSignal

	log.Info().Msg("termination signal received. shutting down...")
	g.shutdown()

	return nil
}

// shutdown gracefully shuts down the gateway
func (g *Gateway) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), g.Config.Gateway.ShutdownTimeout)
	defer cancel()

	eg, ctx := errgroup.WithContext(ctx)

	// Stop HTTP server
	eg.Go(func() error {
		return g.httpServer.Shutdown(ctx)
	})

	// Close session views and wait for the writes they dispatched
	if g.sessions != nil {
		eg.Go(func() error {
			g.sessions.Close()
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		log.Error().Err(err).Msg("failed to shutdown gateway gracefully")
	}

	// Upload pending backup, including the writes drained above
	if g.archiver != nil {
		if err := g.archiver.Close(); err != nil {
			log.Error().Err(err).Msg("failed to flush snapshot archive")
		}
	}

	// The collection goes last so the archiver can still flush
	if err := g.Collection.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close collection")
	}
	if g.BackendRepo != nil {
		if err := g.BackendRepo.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close postgres backend")
		}
	}

	g.cancelFunc()

	log.Info().Msg("gateway stopped")
}

// Echo returns the HTTP router, e.g. for tests that serve it directly
func (g *Gateway) Echo() *echo.Echo {
	return g.echo
}
