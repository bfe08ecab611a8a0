package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/fathima-sithara/relay-service/internal/api"
	"github.com/fathima-sithara/relay-service/internal/auth"
	"github.com/fathima-sithara/relay-service/internal/config"
	"github.com/fathima-sithara/relay-service/internal/hub"
	"github.com/fathima-sithara/relay-service/internal/kafka"
	"github.com/fathima-sithara/relay-service/internal/metric"
	"github.com/fathima-sithara/relay-service/internal/presence"
	relayredis "github.com/fathima-sithara/relay-service/internal/redis"
	"github.com/fathima-sithara/relay-service/internal/registry"
	"github.com/fathima-sithara/relay-service/internal/relay"
	"github.com/fathima-sithara/relay-service/internal/store"
	"github.com/fathima-sithara/relay-service/internal/utils"
	"github.com/fathima-sithara/relay-service/internal/ws"
)

func main() {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	logger, err := utils.NewLogger(cfg.App.Env == "dev", cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatalw("relay service stopped", "error", err)
	}
}

func run(cfg *config.Config, logger *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		metric.Init()
	}

	instance := cfg.App.InstanceID
	if instance == "" {
		host, _ := os.Hostname()
		instance = fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
	}
	logger = logger.With("instance", instance)

	authn, err := newAuthenticator(cfg.Auth)
	if err != nil {
		return fmt.Errorf("jwt validator init: %w", err)
	}

	st, mongoClient, err := newStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if mongoClient != nil {
		defer func() {
			dctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := mongoClient.Disconnect(dctx); err != nil {
				logger.Warnw("mongo disconnect", "error", err)
			}
		}()
	}

	var (
		reg    registry.Registry  = registry.NewMemory()
		online presence.OnlineSet = presence.NewMemory()
		bus    hub.Bus
	)
	if cfg.Redis.Enabled {
		rdb, err := relayredis.NewClient(ctx, relayredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.ConnectTimeout, logger)
		if err != nil {
			return fmt.Errorf("redis connect: %w", err)
		}
		defer func() { _ = rdb.Close() }()
		reg = relayredis.NewRegistry(rdb, cfg.Redis.Prefix)
		online = relayredis.NewOnlineSet(rdb, cfg.Redis.Prefix, logger)
		bus = relayredis.NewBus(rdb, cfg.Redis.Prefix, logger)
	}

	h := hub.New(instance, bus, logger)
	go func() {
		if err := h.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Errorw("hub stopped", "error", err)
		}
	}()

	var opts []relay.Option
	if cfg.Kafka.Enabled() {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, kafka.BreakerConfig{
			MaxFailures: cfg.Kafka.BreakerMaxFailures,
			Timeout:     cfg.BreakerTimeout,
		}, logger)
		defer func() {
			if err := producer.Close(); err != nil {
				logger.Warnw("kafka producer close", "error", err)
			}
		}()
		opts = append(opts, relay.WithPublisher(producer))
	}

	rl := relay.New(reg, online, st, h, logger, opts...)
	if cfg.Metrics.Enabled {
		go metric.WatchOnline(ctx, online, logger)
	}

	wsrv := ws.NewServer(h, rl, ws.Options{
		PingInterval:    cfg.PingInterval,
		PongWait:        cfg.PongWait,
		WriteDeadline:   cfg.WriteDeadline,
		MaxMessageSize:  cfg.WS.MaxMessageSizeBytes,
		SendBuffer:      cfg.WS.SendBuffer,
		RateLimitPerSec: cfg.WS.RateLimitPerSec,
	}, logger)
	app := api.NewServer(cfg, wsrv, rl, authn, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("starting relay service", "addr", cfg.App.Addr(), "store", cfg.Store.Driver, "redis", cfg.Redis.Enabled)
		errCh <- app.Listen(cfg.App.Addr())
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Infow("signal received, shutting down")
	}

	wsrv.Shutdown()
	if err := app.ShutdownWithTimeout(cfg.ShutdownTimeout); err != nil {
		logger.Warnw("fiber shutdown", "error", err)
	}
	return nil
}

func newAuthenticator(c config.AuthConfig) (auth.Authenticator, error) {
	if c.Algorithm == "RS256" {
		return auth.NewRS256FromFile(c.PublicKeyPath)
	}
	return auth.NewHS256(c.HSSecret)
}

func newStore(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (store.Store, *mongo.Client, error) {
	if cfg.Store.Driver != "mongo" {
		logger.Warnw("using in-memory message store; messages are lost on restart")
		return store.NewMemoryStore(), nil, nil
	}
	client, err := store.NewMongoClient(ctx, cfg.Mongo.URI, cfg.ConnectTimeout, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}
	ms := store.NewMongoStore(client.Database(cfg.Mongo.Database), cfg.Mongo.MessagesCollection, cfg.Mongo.ChatsCollection)
	if err := ms.EnsureIndexes(ctx); err != nil {
		logger.Warnw("mongo ensure indexes", "error", err)
	}
	return ms, client, nil
}
