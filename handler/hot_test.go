package handler

import (
	"context"
	"testing"
	"time"

	"GroupBuyMarket/model"
	"GroupBuyMarket/mq"
	"GroupBuyMarket/stock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 桩sender把事务消息直接转给listener执行，模拟rocketmq的本地事务回调
func newHotService(env *testEnv) *HotGoodsTradeService {
	env.sender.listener = &mq.HotGoodsOrderListener{
		Ledger: env.ledger,
		Trade:  env.trade,
		Sender: env.sender,
	}
	verifier := NewBypassVerifier(env.ledger, env.sku, 10*time.Millisecond)
	return NewHotGoodsTradeService(env.ledger, env.trade, env.sender, env.rules, verifier)
}

func TestHotLockOrderSuccess(t *testing.T) {
	env := newTestEnv(t)
	env.seedActivity(t, 1, 1)
	env.seedSku(t, 10)
	env.preheatStock(t, 10)
	svc := newHotService(env)
	ctx := context.Background()

	order, err := svc.LockHotGoodsOrder(ctx, &TradeContext{UserID: "u001", ActivityID: 100, GoodsID: "goods_01"}, testDiscount())
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, model.OrderStatusCreate, order.Status)

	// 本地事务里redis扣了1
	n, err := env.ledger.GetStock(ctx, stock.GoodsStockKey(100, "goods_01"))
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)

	// 数据库库存这时候还没动，冻结在消费端做
	sku, err := env.sku.QuerySkuActivity(ctx, 100, "goods_01")
	require.NoError(t, err)
	assert.Equal(t, int32(10), sku.SaleableStock)
	assert.Equal(t, int32(0), sku.FrozenStock)

	svc.verifier.Wait()
}

func TestHotLockOrderStockNotEnough(t *testing.T) {
	env := newTestEnv(t)
	env.seedActivity(t, 1, 1)
	env.seedSku(t, 10)
	env.preheatStock(t, 0)
	svc := newHotService(env)
	ctx := context.Background()

	// 本地事务回滚，订单查不到，锁单报结果未知
	_, err := svc.LockHotGoodsOrder(ctx, &TradeContext{UserID: "u001", ActivityID: 100, GoodsID: "goods_01"}, testDiscount())
	assert.ErrorIs(t, err, ErrOrderPending)

	var count int64
	require.NoError(t, env.db.Model(&model.MarketPayOrder{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

// 旁路验证：消费端把数据库流水落了之后，redis流水要被清掉
func TestHotBypassVerifierCleansJournal(t *testing.T) {
	env := newTestEnv(t)
	env.seedActivity(t, 1, 1)
	env.seedSku(t, 10)
	env.preheatStock(t, 10)
	svc := newHotService(env)
	ctx := context.Background()

	order, err := svc.LockHotGoodsOrder(ctx, &TradeContext{UserID: "u001", ActivityID: 100, GoodsID: "goods_01"}, testDiscount())
	require.NoError(t, err)

	// 模拟消费端冻结数据库库存
	ok, err := env.sku.DecreaseSkuStock(ctx, 100, "goods_01", 1, order.OrderID, "u001")
	require.NoError(t, err)
	require.True(t, ok)

	// 10ms后旁路验证跑完，redis流水被清掉
	svc.verifier.Wait()
	identifier := stock.DecreaseIdentifier("u001", order.OrderID)
	entry, err := env.ledger.GetLog(ctx, stock.GoodsStockLogKey(100, "goods_01"), identifier)
	require.NoError(t, err)
	assert.Nil(t, entry)
}
