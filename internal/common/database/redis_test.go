package database

import (
	"context"
	"testing"

	"pulse-server/internal/common/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	c := NewRedis(config.RedisConfig{Address: mr.Addr()})
	defer c.Close()
	assert.Equal(t, 10, c.Client.Options().PoolSize)
	assert.Equal(t, 2, c.Client.Options().MinIdleConns)
	require.NoError(t, c.Ping(context.Background()))

	sized := NewRedis(config.RedisConfig{Address: mr.Addr(), PoolSize: 40})
	defer sized.Close()
	assert.Equal(t, 40, sized.Client.Options().PoolSize)
	assert.Equal(t, 10, sized.Client.Options().MinIdleConns)

	mr.Close()
	assert.Error(t, c.Ping(context.Background()))
}
