package stock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// TokenStore是下单的防重令牌：下单前先领令牌，提交时原子地校验并删除
// 同一个令牌只能消费一次，重复提交直接被挡掉

type TokenStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewTokenStore(rdb *redis.Client, ttl time.Duration) *TokenStore {
	return &TokenStore{rdb: rdb, ttl: ttl}
}

// Issue 发放一次性令牌
func (t *TokenStore) Issue(ctx context.Context, scene, userID string, activityID int64) (string, error) {
	token := uuid.NewString()
	err := t.rdb.Set(ctx, TokenKey(scene, userID, activityID), token, t.ttl).Err()
	if err != nil {
		return "", err
	}
	return token, nil
}

// Consume 校验并删除令牌，值不匹配或已被消费返回false
func (t *TokenStore) Consume(ctx context.Context, scene, userID string, activityID int64, token string) (bool, error) {
	ok, err := consumeTokenScript.Run(ctx, t.rdb,
		[]string{TokenKey(scene, userID, activityID)}, token).Int64()
	if err != nil {
		return false, err
	}
	return ok == 1, nil
}
