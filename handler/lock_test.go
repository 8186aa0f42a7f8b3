package handler

import (
	"context"
	"testing"

	"GroupBuyMarket/model"
	"GroupBuyMarket/mq"
	"GroupBuyMarket/stock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTCCService(env *testEnv) *GroupBuyTradeService {
	return NewGroupBuyTradeService(env.ledger, env.sku, env.trade, env.sender, env.rules)
}

func TestTCCLockOrderNewTeam(t *testing.T) {
	env := newTestEnv(t)
	env.seedActivity(t, 2, 1)
	env.seedSku(t, 10)
	env.preheatStock(t, 10)
	svc := newTCCService(env)
	ctx := context.Background()

	tc := &TradeContext{UserID: "u001", ActivityID: 100, GoodsID: "goods_01"}
	order, err := svc.LockOrder(ctx, tc, testDiscount())
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, model.OrderStatusConfirm, order.Status)
	assert.NotEmpty(t, order.TeamID)

	// redis库存扣掉1
	n, err := env.ledger.GetStock(ctx, stock.GoodsStockKey(100, "goods_01"))
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)

	// 数据库可售也扣掉1，冻结清零，流水CONFIRM
	sku, err := env.sku.QuerySkuActivity(ctx, 100, "goods_01")
	require.NoError(t, err)
	assert.Equal(t, int32(9), sku.SaleableStock)
	assert.Equal(t, int32(0), sku.FrozenStock)
	dbLog, err := env.sku.QueryDeductionLog(ctx, order.OrderID)
	require.NoError(t, err)
	require.NotNil(t, dbLog)
	assert.Equal(t, model.DeductionStatusConfirm, dbLog.Status)

	// 队伍建出来，锁单量1完成量1
	team, err := env.trade.QueryTeam(ctx, order.TeamID)
	require.NoError(t, err)
	assert.Equal(t, int32(1), team.LockCount)
	assert.Equal(t, int32(1), team.CompleteCount)
}

func TestTCCLockOrderJoinTeamCompletes(t *testing.T) {
	env := newTestEnv(t)
	env.seedActivity(t, 2, 1)
	env.seedSku(t, 10)
	env.preheatStock(t, 10)
	svc := newTCCService(env)
	ctx := context.Background()

	first, err := svc.LockOrder(ctx, &TradeContext{UserID: "u001", ActivityID: 100, GoodsID: "goods_01"}, testDiscount())
	require.NoError(t, err)

	second, err := svc.LockOrder(ctx, &TradeContext{
		UserID: "u002", ActivityID: 100, GoodsID: "goods_01", TeamID: first.TeamID,
	}, testDiscount())
	require.NoError(t, err)
	assert.Equal(t, first.TeamID, second.TeamID)

	// 第二单确认后成团
	team, err := env.trade.QueryTeam(ctx, first.TeamID)
	require.NoError(t, err)
	assert.Equal(t, int32(2), team.CompleteCount)
	assert.Equal(t, model.TeamStatusComplete, team.Status)
}

func TestTCCLockOrderNonGrouping(t *testing.T) {
	env := newTestEnv(t)
	// 目标人数1，按普通商品处理，不建队伍
	env.seedActivity(t, 1, 1)
	env.seedSku(t, 10)
	env.preheatStock(t, 10)
	svc := newTCCService(env)
	ctx := context.Background()

	order, err := svc.LockOrder(ctx, &TradeContext{UserID: "u001", ActivityID: 100, GoodsID: "goods_01"}, testDiscount())
	require.NoError(t, err)
	assert.Empty(t, order.TeamID)
	assert.Equal(t, model.OrderStatusConfirm, order.Status)
}

func TestTCCLockOrderStockNotEnough(t *testing.T) {
	env := newTestEnv(t)
	env.seedActivity(t, 2, 1)
	env.seedSku(t, 10)
	env.preheatStock(t, 0)
	svc := newTCCService(env)
	ctx := context.Background()

	_, err := svc.LockOrder(ctx, &TradeContext{UserID: "u001", ActivityID: 100, GoodsID: "goods_01"}, testDiscount())
	assert.ErrorIs(t, err, stock.ErrStockNotEnough)

	// 被拒的请求什么都不留
	var count int64
	require.NoError(t, env.db.Model(&model.MarketPayOrder{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestTCCLockOrderStockNotPreheated(t *testing.T) {
	env := newTestEnv(t)
	env.seedActivity(t, 2, 1)
	env.seedSku(t, 10)
	svc := newTCCService(env)
	ctx := context.Background()

	// redis没预热直接拒绝，不会打到数据库
	_, err := svc.LockOrder(ctx, &TradeContext{UserID: "u001", ActivityID: 100, GoodsID: "goods_01"}, testDiscount())
	assert.ErrorIs(t, err, stock.ErrStockNotFound)
}

func TestTCCLockOrderTeamFull(t *testing.T) {
	env := newTestEnv(t)
	env.seedActivity(t, 2, 1)
	env.seedSku(t, 10)
	env.preheatStock(t, 10)
	svc := newTCCService(env)
	ctx := context.Background()

	first, err := svc.LockOrder(ctx, &TradeContext{UserID: "u001", ActivityID: 100, GoodsID: "goods_01"}, testDiscount())
	require.NoError(t, err)
	_, err = svc.LockOrder(ctx, &TradeContext{
		UserID: "u002", ActivityID: 100, GoodsID: "goods_01", TeamID: first.TeamID,
	}, testDiscount())
	require.NoError(t, err)

	// 第3个人进不来，商品库存也不能被多扣
	_, err = svc.LockOrder(ctx, &TradeContext{
		UserID: "u003", ActivityID: 100, GoodsID: "goods_01", TeamID: first.TeamID,
	}, testDiscount())
	assert.ErrorIs(t, err, stock.ErrTeamFull)

	n, err := env.ledger.GetStock(ctx, stock.GoodsStockKey(100, "goods_01"))
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)
}

// Confirm阶段失败时不能直接回滚，要发延迟检查消息裁决
func TestTCCConfirmExhaustedSendsPreCancel(t *testing.T) {
	env := newTestEnv(t)
	env.seedActivity(t, 2, 1)
	// 故意不建sku_activity行，Confirm阶段的冻结一定失败
	env.preheatStock(t, 10)
	svc := newTCCService(env)
	ctx := context.Background()

	_, err := svc.LockOrder(ctx, &TradeContext{UserID: "u001", ActivityID: 100, GoodsID: "goods_01"}, testDiscount())
	assert.ErrorIs(t, err, ErrOrderPending)

	// 延迟检查消息发出去了
	delayed := env.sender.byTopic(mq.TopicGroupBuyOrderPreCancel)
	require.Len(t, delayed, 1)
	assert.Equal(t, mq.DelayLevel1m, delayed[0].DelayLevel)

	// 订单停在TRY，等消费端裁决
	var order model.MarketPayOrder
	require.NoError(t, env.db.Where("user_id = ?", "u001").First(&order).Error)
	assert.Equal(t, model.OrderStatusTry, order.Status)
}

// 取消消息发不出去时就地回滚redis
func TestTCCSendCancelFallbackRollsBackLedger(t *testing.T) {
	env := newTestEnv(t)
	env.seedActivity(t, 2, 1)
	env.seedSku(t, 10)
	env.preheatStock(t, 10)
	env.sender.failSend = true
	svc := newTCCService(env)
	ctx := context.Background()

	// 先把队伍的订单名额占满，让订单落库吃ErrTeamLockFull
	first, err := svc.LockOrder(ctx, &TradeContext{UserID: "u001", ActivityID: 100, GoodsID: "goods_01"}, testDiscount())
	require.NoError(t, err)
	teamID := first.TeamID
	// 直接把lock_count顶到目标人数
	require.NoError(t, env.db.Model(&model.GroupBuyTeam{}).
		Where("team_id = ?", teamID).Update("lock_count", 2).Error)
	// redis队伍计数放宽，让冲突发生在数据库侧
	require.NoError(t, env.rdb.Set(ctx, stock.TeamStockKey(100, teamID), 0, 0).Err())

	_, err = svc.LockOrder(ctx, &TradeContext{
		UserID: "u002", ActivityID: 100, GoodsID: "goods_01", TeamID: teamID,
	}, testDiscount())
	assert.ErrorIs(t, err, stock.ErrTeamFull)

	// 消息发送失败，商品库存要就地补回来
	n, err := env.ledger.GetStock(ctx, stock.GoodsStockKey(100, "goods_01"))
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)
	// u002的扣减流水被清掉，补偿任务不会重复回补，只留下回滚流水
	logs, err := env.ledger.AllLogs(ctx, stock.GoodsStockLogKey(100, "goods_01"))
	require.NoError(t, err)
	for _, entry := range logs {
		if entry.ExtractUserID() == "u002" {
			assert.Equal(t, model.StockActionIncrease, entry.Action)
		}
	}
}
