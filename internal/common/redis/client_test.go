package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorstream/internal/common/config"
)

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := Connect(context.Background(), &config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	defer Close(client)

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	mr.CheckGet(t, "k", "v")
}

func TestConnect_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	client, err := Connect(context.Background(), &config.RedisConfig{Addr: addr})
	require.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "failed to connect to redis at "+addr)
}

func TestClose_Nil(t *testing.T) {
	assert.NoError(t, Close(nil))
}
