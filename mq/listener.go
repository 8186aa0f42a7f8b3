package mq

import (
	"context"
	"errors"

	"GroupBuyMarket/model"
	"GroupBuyMarket/repository"
	"GroupBuyMarket/stock"

	"github.com/apache/rocketmq-client-go/v2/primitive"
	"go.uber.org/zap"
)

// HotGoodsOrderListener 热点商品下单的本地事务
// 本地事务里只做两件事：redis扣库存、订单落库，数据库库存在消费端异步冻结
// 订单落库失败不能直接回滚redis，可能是假失败，交给延迟检查消息处理
type HotGoodsOrderListener struct {
	Ledger *stock.Ledger
	Trade  *repository.TradeRepository
	Sender Sender
}

func (l *HotGoodsOrderListener) ExecuteLocalTransaction(msg *primitive.Message) primitive.LocalTransactionState {
	var agg model.HotGoodsOrderAggregate
	identifier, err := DecodeMessage(msg.Body, &agg)
	if err != nil {
		zap.S().Errorf("热点商品-解析事务消息失败: %s", err.Error())
		return primitive.RollbackMessageState
	}
	ctx := context.Background()
	orderID := agg.OrderID
	activityID := agg.PayActivityEntity.ActivityID
	goodsID := agg.PayDiscountEntity.GoodsID

	goodsStockKey := stock.GoodsStockKey(activityID, goodsID)
	goodsStockLogKey := stock.GoodsStockLogKey(activityID, goodsID)

	// 1. 扣减redis库存
	remaining, err := l.Ledger.Decrease(ctx, goodsStockKey, goodsStockLogKey, identifier, 1)
	switch {
	case err == nil:
		zap.S().Infof("热点商品-预扣减库存成功: orderId=%s, 剩余库存=%d", orderID, remaining)
	case errors.Is(err, stock.ErrAlreadyExecuted):
		// 消息重投，这笔已经扣过，继续往下走
		zap.S().Infof("热点商品-库存流水已存在，幂等继续: orderId=%s", orderID)
	case errors.Is(err, stock.ErrStockNotEnough), errors.Is(err, stock.ErrStockNotFound):
		zap.S().Warnf("热点商品-扣减库存被拒绝: orderId=%s, err=%s", orderID, err.Error())
		return primitive.RollbackMessageState
	default:
		// 网络类错误要查流水确认是不是假失败，流水在就是扣成功了
		zap.S().Warnf("热点商品-redis扣减失败，查询流水确认: orderId=%s, err=%s", orderID, err.Error())
		entry, logErr := l.Ledger.GetLog(ctx, goodsStockLogKey, identifier)
		if logErr != nil || entry == nil {
			zap.S().Errorf("热点商品-扣减失败且流水不存在，回滚消息: orderId=%s", orderID)
			return primitive.RollbackMessageState
		}
		zap.S().Infof("热点商品-扣减假失败，流水存在继续执行: orderId=%s", orderID)
	}

	// 2. 订单落库
	if err := l.Trade.LockHotGoodsOrder(ctx, &agg); err != nil {
		// 订单创建可能也是假失败，发延迟消息30秒后再查，查到了就补数据库库存，查不到回滚redis
		zap.S().Warnf("热点商品-订单创建失败，发送延迟检查消息: orderId=%s, err=%s", orderID, err.Error())
		if sendErr := l.Sender.SendDelay(ctx, TopicHotGoodsOrderPreCancel, identifier, &agg, DelayLevel30s); sendErr != nil {
			// 延迟消息也发不出去，只能靠补偿任务兜底回收库存
			zap.S().Errorf("热点商品-延迟检查消息发送失败，等补偿任务兜底: orderId=%s, err=%s", orderID, sendErr.Error())
		}
		return primitive.RollbackMessageState
	}
	return primitive.CommitMessageState
}

// CheckLocalTransaction broker回查，只凭落库状态和redis流水推断结果
// 订单CREATE就提交，其他情况一律回滚，库存由补偿链路自愈
func (l *HotGoodsOrderListener) CheckLocalTransaction(msg *primitive.MessageExt) primitive.LocalTransactionState {
	var agg model.HotGoodsOrderAggregate
	identifier, err := DecodeMessage(msg.Body, &agg)
	if err != nil {
		zap.S().Errorf("热点商品-回查解析消息失败: %s", err.Error())
		return primitive.RollbackMessageState
	}
	ctx := context.Background()
	orderID := agg.OrderID
	userID := agg.UserEntity.UserID

	order, err := l.Trade.QueryMarketPayOrder(ctx, userID, orderID)
	if err != nil {
		zap.S().Errorf("热点商品-回查查询订单失败: orderId=%s, err=%s", orderID, err.Error())
		return primitive.RollbackMessageState
	}
	if order != nil && order.Status == model.OrderStatusCreate {
		zap.S().Infof("热点商品-回查订单已创建，提交消息: orderId=%s", orderID)
		return primitive.CommitMessageState
	}

	goodsStockLogKey := stock.GoodsStockLogKey(agg.PayActivityEntity.ActivityID, agg.PayDiscountEntity.GoodsID)
	entry, err := l.Ledger.GetLog(ctx, goodsStockLogKey, identifier)
	if err == nil && entry == nil {
		zap.S().Warnf("热点商品-回查订单和流水都不存在，本地事务未执行: orderId=%s", orderID)
		return primitive.RollbackMessageState
	}
	// 流水存在但订单不在，订单创建失败了，回滚消息，redis库存由补偿任务收回
	zap.S().Warnf("热点商品-回查流水存在但订单不存在，回滚消息: orderId=%s", orderID)
	return primitive.RollbackMessageState
}
