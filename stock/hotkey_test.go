package stock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHotKeyMarkAndQuery(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	router := NewHotKeyRouter(rdb, 30*time.Second)
	ctx := context.Background()

	assert.False(t, router.IsHot(ctx, 100, "goods_01"))

	require.NoError(t, router.MarkHot(ctx, 100, "goods_01"))
	assert.True(t, router.IsHot(ctx, 100, "goods_01"))
	assert.False(t, router.IsHot(ctx, 100, "goods_02"))

	require.NoError(t, router.UnmarkHot(ctx, 100, "goods_01"))
	assert.False(t, router.IsHot(ctx, 100, "goods_01"))
}

// 别的进程标记的热点，本进程查redis也能认出来并回填缓存
func TestHotKeyBackfill(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	router := NewHotKeyRouter(rdb, 30*time.Second)
	ctx := context.Background()

	_, err := mr.SAdd(HotGoodsSetKey(), HotGoodsMember(100, "goods_01"))
	require.NoError(t, err)

	assert.True(t, router.IsHot(ctx, 100, "goods_01"))
	// 回填后redis里删掉也还是热点，直到本地缓存过期
	mr.Del(HotGoodsSetKey())
	assert.True(t, router.IsHot(ctx, 100, "goods_01"))
}

// redis挂掉的时候按普通商品处理
func TestHotKeyRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	router := NewHotKeyRouter(rdb, 30*time.Second)
	ctx := context.Background()

	mr.Close()
	assert.False(t, router.IsHot(ctx, 100, "goods_01"))
}
