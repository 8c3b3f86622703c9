package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/item-catalog/internal/adapter/handler"
	"github.com/rl1809/item-catalog/internal/adapter/profile"
	"github.com/rl1809/item-catalog/internal/adapter/storage"
	"github.com/rl1809/item-catalog/internal/config"
	"github.com/rl1809/item-catalog/internal/core/identity"
	"github.com/rl1809/item-catalog/internal/core/service"
	"github.com/rl1809/item-catalog/internal/observability"
	"github.com/rl1809/item-catalog/internal/port"
)

// memoryDatabaseURI selects the in-process item store instead of MySQL.
const memoryDatabaseURI = "memory"

func main() {
	var configPath string

	cmd := &cobra.Command{
		Use:           "catalog-server",
		Short:         "Serve the item catalog over HTTP and gRPC",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	metrics := observability.NewMetrics("catalog")

	// Initialize item store
	var items port.ItemRepository
	if cfg.DatabaseURI == memoryDatabaseURI {
		items = storage.NewMemoryStore()
		logger.Warn("using in-memory item store")
	} else {
		db, err := storage.OpenMySQL(ctx, cfg.DatabaseURI)
		if err != nil {
			return err
		}
		defer db.Close()

		mysqlAdapter := storage.NewMySQLAdapter(db)
		if err := mysqlAdapter.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		items = mysqlAdapter
		logger.Info("connected to mysql")
	}

	// Initialize profile cache
	var cache port.ProfileCache
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, PoolSize: 100})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()
		cache = storage.NewRedisAdapter(rdb)
		logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
	} else {
		memoryCache, err := storage.NewMemoryCache(cfg.Profile.CacheSize, nil)
		if err != nil {
			return fmt.Errorf("init profile cache: %w", err)
		}
		cache = memoryCache
	}

	// Initialize identity resolver
	profiles := profile.NewClient(cfg.Profile.ServiceURL, cfg.Profile.Timeout, profile.DefaultBreakerConfig(), logger)
	resolver, err := identity.NewResolver(identity.Config{
		SecretKey:    cfg.Auth.SecretKey,
		Algorithm:    cfg.Auth.Algorithm,
		SubjectClaim: cfg.Auth.SubjectClaim,
		CacheTTL:     cfg.Profile.CacheTTL,
	}, cache, profiles, logger, metrics)
	if err != nil {
		return fmt.Errorf("init resolver: %w", err)
	}

	itemService := service.NewItemService(items, logger, metrics)

	// Initialize gRPC server
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		handler.UnaryLoggingInterceptor(logger),
		handler.UnaryAuthInterceptor(resolver, logger),
	))
	handler.NewGRPCHandler(itemService).Register(grpcServer)
	healthpb.RegisterHealthServer(grpcServer, health.NewServer())

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	// Initialize HTTP server
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.NewRouter(handler.NewHTTPHandler(itemService, logger), resolver, metrics, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		return grpcServer.Serve(lis)
	})

	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown", zap.Error(err))
		}
		logger.Info("HTTP server stopped")

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")
		return nil
	})

	return g.Wait()
}
