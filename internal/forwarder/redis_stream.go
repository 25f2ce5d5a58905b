package forwarder

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	commonredis "sensorstream/internal/common/redis"
)

// RedisStreamForwarder appends events to Redis Streams with XADD, one stream
// per event kind.
type RedisStreamForwarder struct {
	client       *redis.Client
	sensorStream string
	audioStream  string
}

func NewRedisStreamForwarder(client *redis.Client, sensorStream, audioStream string) *RedisStreamForwarder {
	return &RedisStreamForwarder{
		client:       client,
		sensorStream: sensorStream,
		audioStream:  audioStream,
	}
}

func (f *RedisStreamForwarder) ForwardSensor(ctx context.Context, event SensorEvent) error {
	if _, err := commonredis.PublishJSONToStream(ctx, f.client, f.sensorStream, event); err != nil {
		return fmt.Errorf("failed to publish sensor event to stream %s: %w", f.sensorStream, err)
	}
	return nil
}

func (f *RedisStreamForwarder) ForwardAudio(ctx context.Context, event AudioEvent) error {
	if _, err := commonredis.PublishJSONToStream(ctx, f.client, f.audioStream, event); err != nil {
		return fmt.Errorf("failed to publish audio event to stream %s: %w", f.audioStream, err)
	}
	return nil
}

// Close closes the Redis client.
func (f *RedisStreamForwarder) Close() error {
	return commonredis.Close(f.client)
}
