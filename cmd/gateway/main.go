package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-watchlist/cmd/gateway/internal/api"
	"github.com/shubham-shewale/stock-watchlist/cmd/gateway/internal/feed"
	"github.com/shubham-shewale/stock-watchlist/cmd/gateway/internal/gateway"
	"github.com/shubham-shewale/stock-watchlist/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/stock-watchlist/cmd/gateway/internal/repository"
	"github.com/shubham-shewale/stock-watchlist/cmd/gateway/internal/simulator"
	"github.com/shubham-shewale/stock-watchlist/pkg/config"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis is needed for the redis store and for the snapshot mirror
	var rdb *redis.Client
	if cfg.Store.Driver == config.DriverRedis || cfg.Broadcast.MirrorToRedis {
		rdb, err = repository.OpenRedis(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
	}

	backend, err := openStore(ctx, cfg, rdb, logger)
	if err != nil {
		logger.Fatal("Failed to open symbol store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	store := repository.WithTimeout(backend, cfg.Store.OpTimeout)
	defer store.Close()

	sim := simulator.NewPriceSimulator(cfg.Broadcast.MaxPrice, cfg.Broadcast.HoldOverProbability, simulator.NewRealRand(), simulator.RealClock{})

	opts := []hub.Option{hub.WithInterval(cfg.Broadcast.Interval)}
	if cfg.Broadcast.MirrorToRedis {
		opts = append(opts, hub.WithSink("redis", repository.NewRedisSnapshotMirror(rdb)))
	}
	var publisher *feed.KafkaPublisher
	if cfg.Kafka.Enabled {
		publisher = feed.OpenKafkaPublisher(ctx, cfg.Kafka, feed.RealKafkaDialer{Dialer: kafka.DefaultDialer}, logger)
		opts = append(opts, hub.WithSink("kafka", publisher))
	}

	// Dependency Injection: Hub depends on the SymbolStore interface
	wsHub := hub.NewHub(store, sim, logger, opts...)
	go wsHub.Run(ctx)

	handler := api.NewHandler(store, wsHub, cfg.Gateway.ValidTickers, logger)
	router := api.NewRouter(handler, gateway.Handler(wsHub, logger, cfg.Broadcast.SendBuffer), cfg.App.ClientURL, logger)

	srv := &http.Server{Addr: cfg.App.Port, Handler: router}

	go func() {
		logger.Info("Server Started", zap.String("port", cfg.App.Port), zap.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("HTTP Error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("Shutdown signal received")

	cancel() // stops the broadcast loop, never individual sessions

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	if publisher != nil {
		publisher.Close()
	}
	if rdb != nil && cfg.Store.Driver != config.DriverRedis {
		rdb.Close()
	}
	logger.Info("Shutdown Complete")
}

func openStore(ctx context.Context, cfg *config.Config, rdb *redis.Client, logger *zap.Logger) (repository.SymbolStore, error) {
	switch cfg.Store.Driver {
	case config.DriverRedis:
		return repository.NewRedisStore(rdb), nil
	default:
		if err := bootstrapDatabase(ctx, cfg, logger); err != nil {
			return nil, err
		}
		db, err := repository.OpenPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, err
		}
		pg := repository.NewPostgresStore(db)
		schemaCtx, cancel := context.WithTimeout(ctx, cfg.Store.OpTimeout)
		defer cancel()
		if err := pg.EnsureSchema(schemaCtx); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil
	}
}

// bootstrapDatabase creates the watchlist database on a fresh server. An empty
// admin database disables it for deployments without CREATEDB rights.
func bootstrapDatabase(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if cfg.Postgres.AdminDatabase == "" {
		return nil
	}
	admin, err := repository.OpenPostgres(ctx, cfg.Postgres.Admin(), logger)
	if err != nil {
		return err
	}
	defer admin.Close()

	bootCtx, cancel := context.WithTimeout(ctx, cfg.Store.OpTimeout)
	defer cancel()
	return repository.EnsureDatabase(bootCtx, admin, cfg.Postgres.Database, logger)
}
