package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDatabaseConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_NAME", "recordings")

	cfg := DatabaseConfig{Host: "localhost", Port: 5432, User: "postgres", SSLMode: "disable"}
	cfg.LoadFromEnv("DB")

	assert.Equal(t, "db.internal", cfg.Host)
	assert.Equal(t, 6543, cfg.Port)
	assert.Equal(t, "recordings", cfg.Database)
	assert.Equal(t, "host=db.internal port=6543 user=postgres password= dbname=recordings sslmode=disable", cfg.GetDSN())
}

func TestDatabaseConfig_LoadFromEnv_BadPortKeepsDefault(t *testing.T) {
	t.Setenv("DB_PORT", "not-a-port")

	cfg := DatabaseConfig{Port: 5432}
	cfg.LoadFromEnv("DB")

	assert.Equal(t, 5432, cfg.Port)
}

func TestRedisConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("REDIS_ADDR", "cache:6380")
	t.Setenv("REDIS_DB", "3")

	cfg := RedisConfig{Addr: "localhost:6379"}
	cfg.LoadFromEnv("REDIS")

	assert.Equal(t, "cache:6380", cfg.Addr)
	assert.Equal(t, 3, cfg.DB)
}

func TestMQTTConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("MQTT_BROKER", "tcp://broker:1883")
	t.Setenv("MQTT_QOS", "2")
	t.Setenv("MQTT_USERNAME", "phone")

	cfg := MQTTConfig{ClientID: "default"}
	cfg.LoadFromEnv("MQTT")

	assert.Equal(t, "tcp://broker:1883", cfg.Broker)
	assert.Equal(t, "default", cfg.ClientID)
	assert.Equal(t, "phone", cfg.Username)
	assert.Equal(t, byte(2), cfg.QoS)
}

func TestDatabaseConfig_LoadFromEnv_PoolLimits(t *testing.T) {
	t.Setenv("DB_MAX_CONNS", "20")
	t.Setenv("DB_MAX_IDLE", "5")

	cfg := DatabaseConfig{}
	cfg.LoadFromEnv("DB")

	assert.Equal(t, 20, cfg.MaxConns)
	assert.Equal(t, 5, cfg.MaxIdle)
}

func TestDatabaseConfig_LoadFromEnv_BadPoolLimitsIgnored(t *testing.T) {
	t.Setenv("DB_MAX_CONNS", "-1")
	t.Setenv("DB_MAX_IDLE", "many")

	cfg := DatabaseConfig{MaxConns: 10, MaxIdle: 2}
	cfg.LoadFromEnv("DB")

	assert.Equal(t, 10, cfg.MaxConns)
	assert.Equal(t, 2, cfg.MaxIdle)
}
