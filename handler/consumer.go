package handler

import (
	"context"
	"errors"
	"strings"
	"time"

	"GroupBuyMarket/model"
	"GroupBuyMarket/mq"
	"GroupBuyMarket/repository"
	"GroupBuyMarket/stock"

	"github.com/apache/rocketmq-client-go/v2/consumer"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// 批量消费时的并发上限
const consumeConcurrency = 8

// OrderConsumer 下单链路的消息消费端
// 创建消息做数据库库存冻结，取消和延迟检查消息做补偿
type OrderConsumer struct {
	Ledger *stock.Ledger
	Sku    *repository.SkuRepository
	Trade  *repository.TradeRepository
	Sender mq.Sender
}

// HandleHotGoodsOrderCreate 热点商品创建消息，批量并发冻结数据库库存
// 本地事务里只扣了redis，这里把sku_activity的冻结量补上
func (c *OrderConsumer) HandleHotGoodsOrderCreate(ctx context.Context, msgs ...*primitive.MessageExt) (consumer.ConsumeResult, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(consumeConcurrency)
	for _, msg := range msgs {
		msg := msg
		g.Go(func() error {
			var agg model.HotGoodsOrderAggregate
			if _, err := mq.DecodeMessage(msg.Body, &agg); err != nil {
				// 消息格式坏了，重试也没用，记日志放过
				zap.S().Errorf("热点商品-创建消息解析失败: msgId=%s, err=%s", msg.MsgId, err.Error())
				return nil
			}
			orderID := agg.OrderID
			activityID := agg.PayActivityEntity.ActivityID
			goodsID := agg.PayDiscountEntity.GoodsID

			ok, err := c.Sku.DecreaseSkuStock(gctx, activityID, goodsID, 1, orderID, agg.UserEntity.UserID)
			if err != nil {
				zap.S().Errorf("热点商品-数据库冻结库存失败: orderId=%s, err=%s", orderID, err.Error())
				return err
			}
			if !ok {
				// 数据库可售库存不足，redis超发了或者预热值配错了，走取消链路收回
				zap.S().Errorf("热点商品-数据库库存不足，发送取消消息: orderId=%s", orderID)
				identifier := stock.DecreaseIdentifier(agg.UserEntity.UserID, orderID)
				if sendErr := c.Sender.Send(gctx, mq.TopicHotGoodsOrderCancel, identifier, &agg); sendErr != nil {
					return sendErr
				}
				return nil
			}
			zap.S().Infof("热点商品-数据库冻结库存成功: orderId=%s", orderID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return consumer.ConsumeRetryLater, nil
	}
	return consumer.ConsumeSuccess, nil
}

// HandleHotGoodsOrderPreCancel 热点商品的延迟检查消息，30秒后裁决假失败
// 订单在：本地事务其实成功了，把数据库库存补扣上
// 订单不在：真失败，回滚redis库存
func (c *OrderConsumer) HandleHotGoodsOrderPreCancel(ctx context.Context, msgs ...*primitive.MessageExt) (consumer.ConsumeResult, error) {
	for _, msg := range msgs {
		var agg model.HotGoodsOrderAggregate
		identifier, err := mq.DecodeMessage(msg.Body, &agg)
		if err != nil {
			zap.S().Errorf("热点商品-延迟检查消息解析失败: msgId=%s, err=%s", msg.MsgId, err.Error())
			continue
		}
		orderID := agg.OrderID
		userID := agg.UserEntity.UserID
		activityID := agg.PayActivityEntity.ActivityID
		goodsID := agg.PayDiscountEntity.GoodsID

		order, err := c.Trade.QueryMarketPayOrder(ctx, userID, orderID)
		if err != nil {
			zap.S().Errorf("热点商品-延迟检查查询订单失败: orderId=%s, err=%s", orderID, err.Error())
			return consumer.ConsumeRetryLater, nil
		}
		if order != nil && order.Status == model.OrderStatusCreate {
			// 假失败，订单实际创建成功了，补数据库库存，幂等的
			zap.S().Infof("热点商品-延迟检查发现订单已创建，补偿数据库库存: orderId=%s", orderID)
			if _, err := c.Sku.DecreaseSkuStock(ctx, activityID, goodsID, 1, orderID, userID); err != nil {
				zap.S().Errorf("热点商品-补偿冻结库存失败: orderId=%s, err=%s", orderID, err.Error())
				return consumer.ConsumeRetryLater, nil
			}
			continue
		}
		// 真失败，回滚redis并关单
		zap.S().Warnf("热点商品-延迟检查订单不存在，回滚redis库存: orderId=%s", orderID)
		if err := c.cancelHotGoods(ctx, identifier, &agg); err != nil {
			return consumer.ConsumeRetryLater, nil
		}
	}
	return consumer.ConsumeSuccess, nil
}

// HandleHotGoodsOrderCancel 热点商品取消消息
func (c *OrderConsumer) HandleHotGoodsOrderCancel(ctx context.Context, msgs ...*primitive.MessageExt) (consumer.ConsumeResult, error) {
	for _, msg := range msgs {
		var agg model.HotGoodsOrderAggregate
		identifier, err := mq.DecodeMessage(msg.Body, &agg)
		if err != nil {
			zap.S().Errorf("热点商品-取消消息解析失败: msgId=%s, err=%s", msg.MsgId, err.Error())
			continue
		}
		if err := c.cancelHotGoods(ctx, identifier, &agg); err != nil {
			return consumer.ConsumeRetryLater, nil
		}
	}
	return consumer.ConsumeSuccess, nil
}

// cancelHotGoods 回滚redis库存、删流水、关单
// 不释放数据库冻结：走到这的场景数据库冻结大概率还没执行，执行过的由流水状态挡住
func (c *OrderConsumer) cancelHotGoods(ctx context.Context, identifier string, agg *model.HotGoodsOrderAggregate) error {
	orderID := agg.OrderID
	activityID := agg.PayActivityEntity.ActivityID
	goodsID := agg.PayDiscountEntity.GoodsID

	goodsKey := stock.GoodsStockKey(activityID, goodsID)
	goodsLogKey := stock.GoodsStockLogKey(activityID, goodsID)
	increaseID := strings.Replace(identifier, model.IdentifierPrefixDecrease, model.IdentifierPrefixIncrease, 1)

	_, err := c.Ledger.Increase(ctx, goodsKey, goodsLogKey, increaseID, 1)
	if err != nil && !errors.Is(err, stock.ErrAlreadyExecuted) && !errors.Is(err, stock.ErrStockNotFound) {
		zap.S().Errorf("热点商品-回滚redis库存失败: orderId=%s, err=%s", orderID, err.Error())
		return err
	}
	// 回滚完删掉扣减流水，不然对账任务会一直对这笔报MISSING_DB
	if err := c.Ledger.RemoveLog(ctx, goodsLogKey, identifier); err != nil {
		zap.S().Errorf("热点商品-删除扣减流水失败: orderId=%s, err=%s", orderID, err.Error())
		return err
	}

	closed, err := c.Trade.CloseOrder(ctx, orderID)
	if err != nil {
		zap.S().Warnf("热点商品-关单失败（订单可能不存在）: orderId=%s, err=%s", orderID, err.Error())
	} else if closed {
		zap.S().Infof("热点商品-关单成功: orderId=%s", orderID)
	}
	return nil
}

// HandleGroupBuyOrderCancel 拼团取消消息，Try失败后的同步补偿
func (c *OrderConsumer) HandleGroupBuyOrderCancel(ctx context.Context, msgs ...*primitive.MessageExt) (consumer.ConsumeResult, error) {
	for _, msg := range msgs {
		var agg model.GroupBuyOrderAggregate
		identifier, err := mq.DecodeMessage(msg.Body, &agg)
		if err != nil {
			zap.S().Errorf("拼团-取消消息解析失败: msgId=%s, err=%s", msg.MsgId, err.Error())
			continue
		}
		if err := c.cancelGroupBuy(ctx, identifier, &agg); err != nil {
			return consumer.ConsumeRetryLater, nil
		}
	}
	return consumer.ConsumeSuccess, nil
}

// HandleGroupBuyOrderPreCancel 拼团的延迟检查消息，Confirm重试耗尽1分钟后裁决
// 数据库流水已CONFIRM说明扣减其实成了，把订单的确认补完
// 否则整笔取消
func (c *OrderConsumer) HandleGroupBuyOrderPreCancel(ctx context.Context, msgs ...*primitive.MessageExt) (consumer.ConsumeResult, error) {
	for _, msg := range msgs {
		var agg model.GroupBuyOrderAggregate
		identifier, err := mq.DecodeMessage(msg.Body, &agg)
		if err != nil {
			zap.S().Errorf("拼团-延迟检查消息解析失败: msgId=%s, err=%s", msg.MsgId, err.Error())
			continue
		}
		orderID := agg.OrderID
		userID := agg.UserEntity.UserID

		order, err := c.Trade.QueryMarketPayOrder(ctx, userID, orderID)
		if err != nil {
			return consumer.ConsumeRetryLater, nil
		}
		if order == nil || order.Status == model.OrderStatusConfirm || order.Status == model.OrderStatusCancel {
			// 没这笔单或者已经到了终态，不用管
			continue
		}

		dbLog, err := c.Sku.QueryDeductionLog(ctx, orderID)
		if err != nil {
			return consumer.ConsumeRetryLater, nil
		}
		if dbLog != nil && dbLog.Status == model.DeductionStatusConfirm {
			// 扣减其实成功了，只是订单状态没翻过去，补上确认
			zap.S().Infof("拼团-延迟检查发现扣减已确认，补偿订单状态: orderId=%s", orderID)
			if _, err := c.Trade.ConfirmOrder(ctx, userID, orderID); err != nil {
				return consumer.ConsumeRetryLater, nil
			}
			continue
		}
		// 扣减没确认，整笔取消
		zap.S().Warnf("拼团-延迟检查确认失败，执行取消: orderId=%s", orderID)
		if err := c.cancelGroupBuy(ctx, identifier, &agg); err != nil {
			return consumer.ConsumeRetryLater, nil
		}
	}
	return consumer.ConsumeSuccess, nil
}

// cancelGroupBuy 拼团整笔取消：释放数据库冻结、回滚redis、让出座位、订单翻CANCEL
func (c *OrderConsumer) cancelGroupBuy(ctx context.Context, identifier string, agg *model.GroupBuyOrderAggregate) error {
	orderID := agg.OrderID
	activityID := agg.PayActivityEntity.ActivityID
	goodsID := agg.PayDiscountEntity.GoodsID

	// 1. 数据库侧释放冻结，流水翻CANCEL，没冻结过就是空操作
	if _, err := c.Sku.CancelDecreaseInventory(ctx, activityID, goodsID, 1, orderID); err != nil {
		zap.S().Errorf("拼团-释放冻结库存失败: orderId=%s, err=%s", orderID, err.Error())
		return err
	}

	// 2. redis侧回滚商品库存并删流水
	goodsKey := stock.GoodsStockKey(activityID, goodsID)
	goodsLogKey := stock.GoodsStockLogKey(activityID, goodsID)
	increaseID := strings.Replace(identifier, model.IdentifierPrefixDecrease, model.IdentifierPrefixIncrease, 1)
	_, err := c.Ledger.Increase(ctx, goodsKey, goodsLogKey, increaseID, 1)
	if err != nil && !errors.Is(err, stock.ErrAlreadyExecuted) && !errors.Is(err, stock.ErrStockNotFound) {
		zap.S().Errorf("拼团-回滚redis库存失败: orderId=%s, err=%s", orderID, err.Error())
		return err
	}
	if err := c.Ledger.RemoveLog(ctx, goodsLogKey, identifier); err != nil {
		zap.S().Errorf("拼团-删除商品流水失败: orderId=%s, err=%s", orderID, err.Error())
		return err
	}

	// 3. 队伍座位用恢复量让出来，有效期跟活动一致
	if agg.TeamID != "" {
		validTime := time.Duration(agg.PayActivityEntity.ValidTime) * time.Minute
		if _, err := c.Ledger.RecoverTeamSeat(ctx, activityID, agg.TeamID, validTime); err != nil {
			zap.S().Errorf("拼团-让出队伍座位失败: teamId=%s, err=%s", agg.TeamID, err.Error())
			return err
		}
		if err := c.Ledger.RemoveLog(ctx, stock.TeamStockLogKey(activityID, agg.TeamID), identifier); err != nil {
			zap.S().Errorf("拼团-删除队伍流水失败: teamId=%s, err=%s", agg.TeamID, err.Error())
		}
	}

	// 4. 订单翻CANCEL，队伍锁单量让出来
	if _, err := c.Trade.CancelOrder(ctx, orderID); err != nil {
		zap.S().Errorf("拼团-取消订单失败: orderId=%s, err=%s", orderID, err.Error())
		return err
	}
	zap.S().Infof("拼团-取消完成: orderId=%s", orderID)
	return nil
}
