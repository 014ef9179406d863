package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MrEthical07/campusauth"
	"github.com/MrEthical07/campusauth/internal/httpapi"
	promexport "github.com/MrEthical07/campusauth/metrics/export/prometheus"
	"github.com/MrEthical07/campusauth/store/memory"
	"github.com/MrEthical07/campusauth/store/postgres"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Runtime owns every long-lived resource of the service.
type Runtime struct {
	cfg        Config
	logger     *zap.Logger
	engine     *campusauth.Engine
	httpServer *http.Server
	cleanupFn  func()
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger.Info("bootstrapping campusauth", zap.Int("http_port", cfg.HTTPPort), zap.String("store", cfg.Store))

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		_ = logger.Sync()
	}
	fail := func(err error) (*Runtime, error) {
		cleanup()
		return nil, err
	}

	users, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, closeStore)

	rdb, err := ConnectRedis(ctx, cfg.RedisURL)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, func() { _ = rdb.Close() })

	engine, err := campusauth.New().
		WithConfig(cfg.Auth).
		WithRedis(rdb).
		WithUserProvider(users).
		WithLogger(logger).
		Build()
	if err != nil {
		return fail(fmt.Errorf("build engine: %w", err))
	}
	closers = append(closers, engine.Close)

	if mem, ok := users.(*memory.Store); ok && cfg.SeedAdminUsername != "" {
		if err := seedAdmin(ctx, mem, cfg); err != nil {
			return fail(err)
		}
		logger.Info("seeded administrator", zap.String("username", cfg.SeedAdminUsername))
	}

	registry := promexport.NewRegistry(promexport.NewCollector(engine))
	handler := httpapi.NewHandler(engine, cfg.Auth.Lifecycle.AdminRole, logger.Named("http"))
	router := httpapi.NewRouter(handler, httpapi.RouterOptions{
		Metrics:    promexport.Handler(registry),
		TrustProxy: cfg.TrustProxy,
	})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		engine:     engine,
		httpServer: httpServer,
		cleanupFn:  cleanup,
	}, nil
}

// Run serves HTTP and the expiration job until ctx ends or SIGINT/SIGTERM.
func (r *Runtime) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := r.engine.StartExpirationJob(ctx); err != nil {
		r.cleanupFn()
		return fmt.Errorf("start expiration job: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		r.logger.Info("http server started", zap.String("addr", r.httpServer.Addr))
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		r.logger.Error("server failure", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), r.cfg.ShutdownTimeout)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.cleanupFn()
	return runErr
}

// NewLogger builds a JSON production logger at level.
func NewLogger(level string) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	lvl, err := zap.ParseAtomicLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zcfg.Level = lvl
	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

// ConnectRedis accepts a redis:// or rediss:// URL or a bare host:port.
func ConnectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}

func openStore(ctx context.Context, cfg Config, logger *zap.Logger) (campusauth.UserProvider, func(), error) {
	if cfg.Store == StoreMemory {
		logger.Warn("using in-memory user store, records are lost on exit")
		return memory.New(), func() {}, nil
	}

	db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns, logger)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("gorm sql db: %w", err)
	}
	if err := postgres.RunMigrations(ctx, db); err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}
	return postgres.NewRepository(db), func() { _ = sqlDB.Close() }, nil
}

func seedAdmin(ctx context.Context, store *memory.Store, cfg Config) error {
	hasher, err := campusauth.NewHasher(cfg.Auth.Password)
	if err != nil {
		return err
	}
	hash, err := hasher.Hash(cfg.SeedAdminPassword)
	if err != nil {
		return fmt.Errorf("hash seed password: %w", err)
	}
	return store.Create(ctx, campusauth.UserRecord{
		UserID:       uuid.NewString(),
		Username:     cfg.SeedAdminUsername,
		PasswordHash: hash,
		Roles:        []string{cfg.Auth.Lifecycle.AdminRole},
		Status:       campusauth.AccountActive,
	})
}
