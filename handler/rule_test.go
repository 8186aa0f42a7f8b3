package handler

import (
	"context"
	"testing"
	"time"

	"GroupBuyMarket/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleChainPass(t *testing.T) {
	env := newTestEnv(t)
	env.seedActivity(t, 2, 1)

	tc := &TradeContext{UserID: "u001", ActivityID: 100, GoodsID: "goods_01"}
	require.NoError(t, env.rules.Apply(context.Background(), tc))
	// 过滤器要把查到的活动填回上下文
	require.NotNil(t, tc.Activity)
	assert.Equal(t, int32(2), tc.Activity.Target)
	assert.Equal(t, int64(0), tc.UserTakeOrderCount)
}

func TestRuleChainActivityMissing(t *testing.T) {
	env := newTestEnv(t)

	tc := &TradeContext{UserID: "u001", ActivityID: 100, GoodsID: "goods_01"}
	err := env.rules.Apply(context.Background(), tc)
	assert.ErrorIs(t, err, ErrActivityNotUsable)
}

func TestRuleChainActivityExpired(t *testing.T) {
	env := newTestEnv(t)
	err := env.db.Create(&model.GroupBuyActivity{
		ActivityID:     100,
		ActivityName:   "过期活动",
		Target:         2,
		TakeLimitCount: 1,
		ValidTime:      30,
		Status:         model.ActivityStatusEffect,
		StartTime:      time.Now().Add(-2 * time.Hour),
		EndTime:        time.Now().Add(-time.Hour),
	}).Error
	require.NoError(t, err)

	tc := &TradeContext{UserID: "u001", ActivityID: 100, GoodsID: "goods_01"}
	err = env.rules.Apply(context.Background(), tc)
	assert.ErrorIs(t, err, ErrActivityNotUsable)
}

func TestRuleChainTakeLimit(t *testing.T) {
	env := newTestEnv(t)
	env.seedActivity(t, 2, 1)
	ctx := context.Background()

	// 先占掉1次参与名额
	require.NoError(t, env.db.Create(&model.MarketPayOrder{
		UserID:     "u001",
		OrderID:    "o001",
		ActivityID: 100,
		GoodsID:    "goods_01",
		Status:     model.OrderStatusConfirm,
		StartTime:  time.Now(),
		EndTime:    time.Now().Add(time.Hour),
		BizID:      "u001_100_1",
	}).Error)

	tc := &TradeContext{UserID: "u001", ActivityID: 100, GoodsID: "goods_01"}
	err := env.rules.Apply(ctx, tc)
	assert.ErrorIs(t, err, ErrTakeLimitExceeded)

	// 其他用户不受影响
	tc = &TradeContext{UserID: "u002", ActivityID: 100, GoodsID: "goods_01"}
	assert.NoError(t, env.rules.Apply(ctx, tc))
}
