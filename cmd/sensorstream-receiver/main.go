package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"sensorstream/internal/common/logger"
	"sensorstream/internal/config"
	"sensorstream/internal/service"
)

func main() {
	envFile := pflag.String("env-file", ".env", "optional .env file loaded before the environment")
	host := pflag.String("host", "", "listen host (overrides RECEIVER_HOST)")
	port := pflag.Int("port", 0, "listen port (overrides RECEIVER_PORT)")
	recordingsDir := pflag.String("recordings-dir", "", "storage root (overrides RECORDINGS_DIR)")
	idleTimeout := pflag.Duration("idle-timeout", -1, "close connections idle this long, 0 disables (overrides RECEIVER_IDLE_TIMEOUT)")
	logLevel := pflag.String("log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
	pflag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *host != "" {
		cfg.Receiver.Host = *host
	}
	if *port != 0 {
		cfg.Receiver.Port = *port
	}
	if *recordingsDir != "" {
		cfg.Receiver.RecordingsDir = *recordingsDir
	}
	if *idleTimeout >= 0 {
		cfg.Receiver.IdleTimeout = *idleTimeout
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	zlog, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "sensorstream-receiver")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	zlog.Info("Starting sensorstream-receiver",
		zap.String("listen_addr", cfg.ListenAddr()),
		zap.String("recordings_dir", cfg.Receiver.RecordingsDir),
		zap.Duration("idle_timeout", cfg.Receiver.IdleTimeout),
		zap.Bool("redis_enabled", cfg.Redis.Enabled),
		zap.Bool("mqtt_enabled", cfg.MQTT.Enabled),
		zap.Bool("db_enabled", cfg.DBEnabled),
	)

	receiver, err := service.NewReceiverService(cfg, zlog)
	if err != nil {
		zlog.Fatal("Failed to create receiver service", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := receiver.Start(ctx); err != nil {
		zlog.Fatal("Failed to start receiver service", zap.Error(err))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	zlog.Info("Received signal, shutting down", zap.String("signal", sig.String()))

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := receiver.Stop(shutdownCtx); err != nil {
		zlog.Error("Error during shutdown", zap.Error(err))
	}

	zlog.Info("Service stopped")
}
