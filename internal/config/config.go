package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	commoncfg "sensorstream/internal/common/config"
)

// Config sensorstream-receiver configuration.
type Config struct {
	Receiver struct {
		Host            string
		Port            int
		RecordingsDir   string
		IdleTimeout     time.Duration // 0 keeps idle connections open forever
		MaxMessageBytes int64
		AudioFsync      bool
		MetricsInterval time.Duration // 0 disables the periodic metrics report
	}

	Redis struct {
		Enabled      bool
		SensorStream string
		AudioStream  string
		commoncfg.RedisConfig
	}

	MQTT struct {
		Enabled     bool
		TopicPrefix string
		commoncfg.MQTTConfig
	}

	DBEnabled bool
	Database  commoncfg.DatabaseConfig

	Log struct {
		Level  string
		Format string
	}
}

// Load reads an optional .env file and then the environment.
func Load(envFiles ...string) (*Config, error) {
	// a missing .env is not an error
	_ = godotenv.Load(envFiles...)

	cfg := &Config{}

	cfg.Receiver.Host = getEnv("RECEIVER_HOST", "0.0.0.0")
	cfg.Receiver.Port = getEnvInt("RECEIVER_PORT", 8082)
	cfg.Receiver.RecordingsDir = getEnv("RECORDINGS_DIR", "recordings")
	cfg.Receiver.IdleTimeout = getEnvDuration("RECEIVER_IDLE_TIMEOUT", 0)
	cfg.Receiver.MaxMessageBytes = int64(getEnvInt("RECEIVER_MAX_MESSAGE_BYTES", 1<<20))
	cfg.Receiver.AudioFsync = getEnvBool("AUDIO_FSYNC", false)
	cfg.Receiver.MetricsInterval = getEnvDuration("RECEIVER_METRICS_INTERVAL", 60*time.Second)

	cfg.Redis.Enabled = getEnvBool("REDIS_ENABLED", false)
	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.RedisConfig.LoadFromEnv("REDIS")
	cfg.Redis.SensorStream = getEnv("REDIS_SENSOR_STREAM", "sensorstream:sensor:stream")
	cfg.Redis.AudioStream = getEnv("REDIS_AUDIO_STREAM", "sensorstream:audio:stream")

	cfg.MQTT.Enabled = getEnvBool("MQTT_ENABLED", false)
	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "sensorstream-receiver"
	cfg.MQTT.MQTTConfig.LoadFromEnv("MQTT")
	cfg.MQTT.TopicPrefix = getEnv("MQTT_TOPIC_PREFIX", "sensorstream")

	cfg.DBEnabled = getEnvBool("DB_ENABLED", false)
	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Database = "sensorstream"
	cfg.Database.SSLMode = "disable"
	cfg.Database.LoadFromEnv("DB")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "console")

	return cfg, nil
}

// ListenAddr is the host:port the receiver binds.
func (c *Config) ListenAddr() string {
	return c.Receiver.Host + ":" + strconv.Itoa(c.Receiver.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return v
}
