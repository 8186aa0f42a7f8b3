package stock

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// HotKeyRouter 判断一个(activityId, goodsId)是不是热点商品
// redis set是全量名单，进程内再放一层本地缓存挡住高频读
// 增删都是先写本地再写redis，本进程立即可见，其他进程等缓存过期
type HotKeyRouter struct {
	rdb   *redis.Client
	cache *gocache.Cache
}

func NewHotKeyRouter(rdb *redis.Client, cacheTTL time.Duration) *HotKeyRouter {
	return &HotKeyRouter{
		rdb:   rdb,
		cache: gocache.New(cacheTTL, 10*time.Minute),
	}
}

// IsHot 先查本地缓存，miss了查redis并回填
func (r *HotKeyRouter) IsHot(ctx context.Context, activityID int64, goodsID string) bool {
	member := HotGoodsMember(activityID, goodsID)
	if _, found := r.cache.Get(member); found {
		return true
	}
	hot, err := r.rdb.SIsMember(ctx, HotGoodsSetKey(), member).Result()
	if err != nil {
		// redis不可用时按普通商品处理，走TCC慢路径，不影响正确性
		zap.S().Errorf("查询热点商品集合失败: %s", err.Error())
		return false
	}
	if hot {
		r.cache.SetDefault(member, struct{}{})
	}
	return hot
}

// MarkHot 把商品标记成热点
func (r *HotKeyRouter) MarkHot(ctx context.Context, activityID int64, goodsID string) error {
	member := HotGoodsMember(activityID, goodsID)
	r.cache.SetDefault(member, struct{}{})
	return r.rdb.SAdd(ctx, HotGoodsSetKey(), member).Err()
}

// UnmarkHot 取消热点标记
func (r *HotKeyRouter) UnmarkHot(ctx context.Context, activityID int64, goodsID string) error {
	member := HotGoodsMember(activityID, goodsID)
	r.cache.Delete(member)
	return r.rdb.SRem(ctx, HotGoodsSetKey(), member).Err()
}
