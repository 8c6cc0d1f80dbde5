package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"gymsync/common/database"
	"gymsync/common/mqtt"
	rediscommon "gymsync/common/redis"
	"gymsync/internal/auth"
	"gymsync/internal/cache"
	"gymsync/internal/config"
	"gymsync/internal/consumer"
	"gymsync/internal/docstore"
	"gymsync/internal/metrics"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// GymService hosts a Gym with its backends, the notification dispatcher and
// the metrics endpoint.
type GymService struct {
	config  *config.Config
	logger  *zap.Logger
	metrics *metrics.Sync

	db          *sql.DB
	redisClient *redis.Client
	store       docstore.Store
	kv          cache.KV
	mqttClient  *mqtt.Client

	gym        *Gym
	session    *auth.Session
	dispatcher *consumer.NotificationDispatcher
	server     *Server
}

func NewGymService(cfg *config.Config, logger *zap.Logger) (*GymService, error) {
	s := &GymService{
		config:  cfg,
		logger:  logger,
		metrics: metrics.New(),
	}
	if err := s.init(); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func (s *GymService) init() error {
	ctx := context.Background()
	cfg := s.config

	if cfg.Store.Backend == "redis" || cfg.Cache.Backend == "redis" {
		client, err := rediscommon.Connect(ctx, &cfg.Redis)
		if err != nil {
			return err
		}
		s.redisClient = client
	}

	switch cfg.Store.Backend {
	case "memory":
		s.store = docstore.NewMemoryStore()
	case "redis":
		s.store = docstore.NewRedisStore(s.redisClient, cfg.Store.Prefix, s.logger)
	case "postgres":
		db, err := database.NewPostgresDB(&cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		s.db = db
		pg := docstore.NewPostgresStore(db, database.NewListener(&cfg.Database, s.logger), s.logger)
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		s.store = pg
	default:
		return fmt.Errorf("unsupported store backend: %s", cfg.Store.Backend)
	}

	switch cfg.Cache.Backend {
	case "memory":
		s.kv = cache.NewMemoryKV()
	case "redis":
		s.kv = cache.NewRedisKV(s.redisClient, cfg.Cache.Prefix)
	case "sqlite":
		s.kv = cache.NewSQLiteKV(cfg.Cache.Path)
	}

	var provider auth.Provider
	if cfg.Auth.BaseURL != "" {
		provider = auth.NewRESTProvider(auth.RESTConfig{
			BaseURL:    cfg.Auth.BaseURL,
			APIKey:     cfg.Auth.APIKey,
			RetryCount: cfg.Auth.RetryCount,
		}, s.logger)
	}
	s.session = auth.NewSession(provider, s.logger)

	opts, err := entityOptions(cfg, s.kv)
	if err != nil {
		return err
	}
	s.gym = NewGym(s.store, s.session, s.logger, s.metrics, opts)

	if cfg.Notifications.Enabled {
		client, err := mqtt.NewClient(&cfg.MQTT, s.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to mqtt: %w", err)
		}
		s.mqttClient = client
		s.dispatcher = consumer.NewNotificationDispatcher(
			s.gym.Notifications.List(),
			client,
			cfg.Notifications.TopicPrefix,
			cfg.MQTT.QoS,
			s.logger,
			s.metrics,
		)
	}

	if cfg.Metrics.Addr != "" {
		conns := map[string]Conn{}
		if s.mqttClient != nil {
			conns["mqtt"] = s.mqttClient
		}
		s.server = NewServer(cfg.Metrics.Addr, NewHandler(s.gym, s.metrics, conns), s.logger)
	}
	return nil
}

func entityOptions(cfg *config.Config, kv cache.KV) ([]Option, error) {
	var opts []Option
	if cfg.Sync.Optimistic {
		policy, err := ParseConflictPolicy(cfg.Sync.ConflictPolicy)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithOptimistic(policy))
	}
	if kv != nil {
		opts = append(opts, WithCache(kv))
	}
	return opts, nil
}

func (s *GymService) Gym() *Gym { return s.gym }

func (s *GymService) Session() *auth.Session { return s.session }

// Start begins syncing and serving; it returns once everything is running.
func (s *GymService) Start(ctx context.Context) error {
	s.logger.Info("Starting gymsync service",
		zap.String("store", s.config.Store.Backend),
		zap.String("cache", s.config.Cache.Backend),
		zap.Bool("optimistic", s.config.Sync.Optimistic),
		zap.Bool("notifications", s.dispatcher != nil),
	)

	if err := s.gym.Start(ctx); err != nil {
		return err
	}
	if s.dispatcher != nil {
		if err := s.dispatcher.Start(ctx); err != nil {
			return err
		}
	}
	if s.server != nil {
		go func() {
			if err := s.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("HTTP server failed", zap.Error(err))
			}
		}()
	}
	return nil
}

// Stop shuts everything down in reverse order.
func (s *GymService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping gymsync service")
	if s.server != nil {
		if err := s.server.Stop(ctx); err != nil {
			s.logger.Error("Failed to stop HTTP server", zap.Error(err))
		}
	}
	if s.dispatcher != nil {
		s.dispatcher.Stop()
	}
	s.gym.Stop()
	s.close()
	return nil
}

func (s *GymService) close() {
	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}
	if closer, ok := s.kv.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			s.logger.Warn("Failed to close cache", zap.Error(err))
		}
	}
	if closer, ok := s.store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			s.logger.Warn("Failed to close store listener", zap.Error(err))
		}
	}
	if s.db != nil {
		if err := database.Close(s.db); err != nil {
			s.logger.Warn("Failed to close database", zap.Error(err))
		}
	}
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Warn("Failed to close redis", zap.Error(err))
		}
	}
}
