package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"go.uber.org/zap"

	"sensorstream/internal/common/database"
	mqttcommon "sensorstream/internal/common/mqtt"
	rediscommon "sensorstream/internal/common/redis"
	"sensorstream/internal/config"
	"sensorstream/internal/consumer"
	"sensorstream/internal/forwarder"
	"sensorstream/internal/httpapi"
	"sensorstream/internal/registry"
	"sensorstream/internal/repository"
	"sensorstream/internal/sink"
)

// ReceiverService wires the sinks, optional backends and the WebSocket
// listener together.
type ReceiverService struct {
	config    *config.Config
	logger    *zap.Logger
	startedAt time.Time

	db         *sql.DB
	forwarders forwarder.Multi
	sensorLog  *sink.SensorLog
	registry   *registry.Registry
	manager    *consumer.ConnectionManager
	server     *Server

	metricsCancel context.CancelFunc
}

// NewReceiverService creates the recordings directory and connects to every
// enabled backend. A backend that is enabled but unreachable is an error.
func NewReceiverService(cfg *config.Config, logger *zap.Logger) (_ *ReceiverService, err error) {
	root := cfg.Receiver.RecordingsDir
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create recordings directory %s: %w", root, err)
	}

	s := &ReceiverService{
		config:    cfg,
		logger:    logger,
		startedAt: time.Now(),
	}
	defer func() {
		if err != nil {
			s.closeBackends()
		}
	}()

	checks := make(map[string]httpapi.HealthCheck)

	var catalog sink.Catalog
	if cfg.DBEnabled {
		db, err := database.NewPostgresDB(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		s.db = db

		index := repository.NewRecordingIndex(db, logger)
		if err := index.EnsureSchema(context.Background()); err != nil {
			return nil, err
		}
		catalog = index
		checks["database"] = db.PingContext
	}

	if cfg.Redis.Enabled {
		redisClient, err := rediscommon.Connect(context.Background(), &cfg.Redis.RedisConfig)
		if err != nil {
			return nil, err
		}
		s.forwarders = append(s.forwarders,
			forwarder.NewRedisStreamForwarder(redisClient, cfg.Redis.SensorStream, cfg.Redis.AudioStream))
		checks["redis"] = func(ctx context.Context) error {
			return rediscommon.Ping(ctx, redisClient)
		}
	}

	if cfg.MQTT.Enabled {
		mqttClient, err := mqttcommon.NewClient(&cfg.MQTT.MQTTConfig, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MQTT: %w", err)
		}
		s.forwarders = append(s.forwarders,
			forwarder.NewMQTTForwarder(mqttClient, cfg.MQTT.TopicPrefix, cfg.MQTT.QoS))
		checks["mqtt"] = func(context.Context) error {
			if !mqttClient.IsConnected() {
				return errors.New("not connected")
			}
			return nil
		}
	}

	s.sensorLog = sink.NewSensorLog(root, s.startedAt, catalog, logger)
	sinks := consumer.Sinks{
		Sensor:  s.sensorLog,
		Audio:   sink.NewAudioSink(root, cfg.Receiver.AudioFsync, catalog, logger),
		Unknown: sink.NewUnknownSink(root, catalog, logger),
	}

	s.registry = registry.New()
	s.manager = consumer.NewConnectionManager(consumer.ManagerConfig{
		IdleTimeout:     cfg.Receiver.IdleTimeout,
		MaxMessageBytes: cfg.Receiver.MaxMessageBytes,
		MetricsInterval: cfg.Receiver.MetricsInterval,
	}, sinks, s.forwarders, s.registry, logger)

	router := httpapi.NewRouter(logger)
	router.RegisterReceiverRoutes(s.manager, httpapi.NewStatusHandler(s.startedAt, s.sensorLog.Path(), s.manager, checks))
	s.server = NewServer(cfg.ListenAddr(), router, logger)

	return s, nil
}

// Start binds the listener. A bind failure is returned; the caller treats it
// as fatal.
func (s *ReceiverService) Start(ctx context.Context) error {
	if err := s.server.Start(); err != nil {
		return err
	}

	metricsCtx, cancel := context.WithCancel(ctx)
	s.metricsCancel = cancel
	go s.manager.RunMetricsReporter(metricsCtx)

	port := s.config.Receiver.Port
	if tcpAddr, ok := s.server.Addr().(*net.TCPAddr); ok {
		port = tcpAddr.Port
	}
	s.logger.Info("Receiver ready",
		zap.String("url", WebSocketURL(LocalIP(), port)),
		zap.String("recordings_dir", s.config.Receiver.RecordingsDir),
		zap.String("sensor_log", s.sensorLog.Path()),
		zap.Int("forwarders", len(s.forwarders)),
		zap.Bool("catalog", s.db != nil),
	)
	return nil
}

// Addr returns the bound listener address after Start.
func (s *ReceiverService) Addr() net.Addr {
	return s.server.Addr()
}

// Stop stops accepting, closes every live connection and waits for their
// handlers to tear down before releasing the sinks and backends.
func (s *ReceiverService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping receiver service")

	if err := s.server.Stop(ctx); err != nil {
		s.logger.Error("Error stopping HTTP server", zap.Error(err))
	}

	closed := s.manager.CloseAll()
	s.logger.Info("Closing live connections", zap.Int("count", closed))

	done := make(chan struct{})
	go func() {
		s.manager.Wait()
		close(done)
	}()

	var waitErr error
	select {
	case <-done:
	case <-ctx.Done():
		waitErr = fmt.Errorf("failed to drain connections: %w", ctx.Err())
	}

	if s.metricsCancel != nil {
		s.metricsCancel()
	}
	if waitErr == nil {
		// handlers still running would call into a stopped registry
		s.registry.Stop()
	}
	if err := s.sensorLog.Close(); err != nil {
		s.logger.Error("Error closing sensor log", zap.Error(err))
	}
	s.closeBackends()

	s.logger.Info("Receiver service stopped")
	return waitErr
}

func (s *ReceiverService) closeBackends() {
	if err := s.forwarders.Close(); err != nil {
		s.logger.Error("Error closing forwarders", zap.Error(err))
	}
	s.forwarders = nil
	if s.db != nil {
		database.Close(s.db)
		s.db = nil
	}
}
