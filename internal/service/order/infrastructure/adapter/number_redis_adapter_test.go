package adapter

import (
	"context"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 需要本地 Redis，未设置 REDIS_ADDR 时跳过
func TestNumberRedisAdapter_Next(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	a := NewNumberRedisAdapter(rdb)
	a.now = func() time.Time { return time.Date(2099, 1, 2, 3, 4, 5, 0, time.UTC) }
	require.NoError(t, rdb.Del(context.Background(), numberKeyPrefix+"20990102").Err())

	first, err := a.Next(context.Background())
	require.NoError(t, err)
	second, err := a.Next(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "20990102000001", first)
	assert.Equal(t, "20990102000002", second)
	assert.Regexp(t, regexp.MustCompile(`^\d{14}$`), second)
}
