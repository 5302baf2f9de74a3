package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/collabdocs/handlers"
	"github.com/gogotex/collabdocs/internal/checkpoint/handler"
	syncservice "github.com/gogotex/collabdocs/internal/checkpoint/service"
	"github.com/gogotex/collabdocs/internal/checkpoint/store"
	"github.com/gogotex/collabdocs/internal/config"
	"github.com/gogotex/collabdocs/internal/database"
	dochandler "github.com/gogotex/collabdocs/internal/document/handler"
	"github.com/gogotex/collabdocs/internal/document/repository"
	docservice "github.com/gogotex/collabdocs/internal/document/service"
	"github.com/gogotex/collabdocs/internal/events"
	"github.com/gogotex/collabdocs/internal/oidc"
	"github.com/gogotex/collabdocs/internal/presence"
	"github.com/gogotex/collabdocs/internal/realtime"
	"github.com/gogotex/collabdocs/internal/sessions"
	"github.com/gogotex/collabdocs/internal/storage"
	"github.com/gogotex/collabdocs/internal/tokens"
	"github.com/gogotex/collabdocs/pkg/logger"
	"github.com/gogotex/collabdocs/pkg/metrics"
	"github.com/gogotex/collabdocs/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Init(cfg.Log.Level)
	logger.SetFormat(cfg.Log.Format)
	logger.Infow("config loaded",
		"documents", cfg.Storage.Documents,
		"checkpoints", cfg.Storage.Checkpoints,
		"presence", cfg.Storage.Presence,
		"keycloak", cfg.Keycloak.URL != "",
		"redis", cfg.Redis.Addr() != "",
		"minio", cfg.MinIO.Enabled())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checks := map[string]handlers.Check{}

	var rdb *redis.Client
	if addr := cfg.Redis.Addr(); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warnf("redis ping failed (%s): %v", addr, err)
		}
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	repo, closeRepo, err := openDocuments(ctx, cfg, checks)
	if err != nil {
		logger.Fatalf("document store: %v", err)
	}
	defer closeRepo()

	var checkpoints store.Store = store.NewMemoryStore()
	if cfg.Storage.Checkpoints == config.BackendRedis {
		checkpoints = store.NewRedisStore(rdb, cfg.Redis.Prefix)
	}
	var tracker presence.Tracker = presence.NewMemoryTracker()
	if cfg.Storage.Presence == config.BackendRedis {
		tracker = presence.NewRedisTracker(rdb, cfg.Redis.Prefix, cfg.Presence.TTL)
	}

	syncOpts := []syncservice.Option{syncservice.WithLimits(syncservice.Limits{
		MaxStepsPerBatch: cfg.Sync.MaxStepsPerBatch,
		MaxContentBytes:  cfg.Sync.MaxContentBytes,
	})}
	if cfg.MinIO.Enabled() && cfg.Sync.ArchiveSnapshots {
		archive, err := storage.NewMinIOStorage(ctx, cfg.MinIO)
		if err != nil {
			logger.Warnf("snapshot archive disabled: %v", err)
		} else {
			syncOpts = append(syncOpts, syncservice.WithArchiver(archive))
			checks["minio"] = archive.Ping
		}
	}

	bus := events.NewBus()
	docs := docservice.New(repo, bus)
	sync := syncservice.New(repo, checkpoints, bus, syncOpts...)
	viewers := presence.NewService(repo, tracker, cfg.Presence.Interval, cfg.Presence.TTL)
	hub := realtime.NewHub(repo, cfg.Realtime.MaxConnectionsPerUser)
	docs.Subscribe(bus)
	sync.Subscribe(bus)
	viewers.Subscribe(bus)
	hub.Subscribe(bus)

	verifier, err := newVerifier(ctx, cfg)
	if err != nil {
		logger.Fatalf("token verifier: %v", err)
	}
	blacklist := sessions.NewBlacklist(rdb, cfg.Redis.Prefix)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), cors)

	handlers.NewHealth(checks).Register(r)
	handlers.RegisterSwagger(r)
	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1", middleware.AuthMiddleware(verifier, middleware.AllowAnonymous(), middleware.WithRevocations(blacklist)))
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && rdb != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			api.Use(middleware.RedisRateLimitMiddleware(rdb, cfg.Redis.Prefix, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			api.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}
	handlers.NewSessionHandler(blacklist).Register(api)
	dochandler.NewDocumentHandler(docs).Register(api)
	handler.NewSyncHandler(sync).Register(api)
	presence.NewHandler(viewers).Register(api)
	realtime.NewHandler(hub, sync, cfg.Realtime.AllowedOrigins).Register(api)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Infof("collabdocs listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("graceful shutdown failed: %v", err)
	}
}

// openDocuments connects the configured document repository and registers
// its readiness check.
func openDocuments(ctx context.Context, cfg *config.Config, checks map[string]handlers.Check) (repository.Repository, func(), error) {
	switch cfg.Storage.Documents {
	case config.BackendMongo:
		client, err := database.ConnectMongoWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, cfg.MongoDB.MaxAttempts)
		if err != nil {
			return nil, nil, err
		}
		checks["mongodb"] = func(ctx context.Context) error { return client.Ping(ctx, nil) }
		repo := repository.NewMongoRepo(client.Database(cfg.MongoDB.Database).Collection(cfg.MongoDB.Collection))
		return repo, func() { _ = client.Disconnect(context.Background()) }, nil
	case config.BackendSQLite:
		db, err := database.OpenSQLite(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		repo, err := repository.NewSQLiteRepo(ctx, db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		checks["sqlite"] = db.PingContext
		return repo, func() { _ = db.Close() }, nil
	default:
		logger.Warn("documents are kept in memory and lost on restart")
		return repository.NewMemoryRepo(), func() {}, nil
	}
}

// newVerifier prefers Keycloak, then locally signed HS256 tokens, then the
// unsigned verifier when explicitly allowed.
func newVerifier(ctx context.Context, cfg *config.Config) (middleware.Verifier, error) {
	if cfg.Keycloak.URL != "" && cfg.Keycloak.ClientID != "" {
		v, err := oidc.NewVerifier(ctx, cfg.Keycloak.Issuer(), cfg.Keycloak.ClientID)
		if err == nil {
			logger.Infof("verifying tokens issued by %s", v.Issuer())
			return v, nil
		}
		logger.Warnf("failed to initialize OIDC verifier: %v", err)
	}
	if cfg.JWT.Secret != "" {
		return tokens.NewHMACVerifier(cfg.JWT.Secret), nil
	}
	if cfg.JWT.AllowInsecure {
		logger.Warn("enabling insecure token verifier (integration mode)")
		return oidc.NewInsecureVerifier(), nil
	}
	return nil, fmt.Errorf("configure KEYCLOAK_URL, JWT_SECRET or ALLOW_INSECURE_TOKEN")
}

// cors allows browser clients from any origin; websocket origins are
// checked separately.
func cors(c *gin.Context) {
	c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
	c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
	c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
	c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length, Retry-After")
	if c.Request.Method == http.MethodOptions {
		c.AbortWithStatus(http.StatusNoContent)
		return
	}
	c.Next()
}
