package handler

import (
	"context"
	"errors"
	"time"

	"GroupBuyMarket/model"
	"GroupBuyMarket/mq"
	"GroupBuyMarket/repository"
	"GroupBuyMarket/stock"
	"GroupBuyMarket/utils"

	"go.uber.org/zap"
)

// ErrOrderPending 结果不明确时给调用方的信号，让它稍后查单，不是失败
var ErrOrderPending = errors.New("订单创建中，请稍后查询")

// 发完事务消息之后查单的重试参数
const (
	orderQueryRetry        = 3
	orderQueryBackoff      = 100 * time.Millisecond
	orderQueryExtraRetry   = 2
	orderQueryExtraBackoff = 200 * time.Millisecond
)

// HotGoodsTradeService 热点商品下单，不做拼团
// redis扣减和订单落库在事务消息的本地事务里完成，数据库库存冻结由消费端异步补
type HotGoodsTradeService struct {
	ledger   *stock.Ledger
	trade    *repository.TradeRepository
	sender   mq.Sender
	rules    *RuleChain
	verifier *BypassVerifier
}

func NewHotGoodsTradeService(ledger *stock.Ledger, trade *repository.TradeRepository,
	sender mq.Sender, rules *RuleChain, verifier *BypassVerifier) *HotGoodsTradeService {
	return &HotGoodsTradeService{
		ledger:   ledger,
		trade:    trade,
		sender:   sender,
		rules:    rules,
		verifier: verifier,
	}
}

// LockHotGoodsOrder 热点商品锁单
// 返回的订单可能还查不到明细（极端情况下），调用方拿到ErrOrderPending要轮询
func (s *HotGoodsTradeService) LockHotGoodsOrder(ctx context.Context, tc *TradeContext, discount *model.PayDiscountEntity) (*model.MarketPayOrder, error) {
	if err := s.rules.Apply(ctx, tc); err != nil {
		return nil, err
	}
	activity := tc.Activity
	orderID := utils.GenerateOrderSn(tc.UserID)
	identifier := stock.DecreaseIdentifier(tc.UserID, orderID)

	agg := &model.HotGoodsOrderAggregate{
		OrderID:    orderID,
		UserEntity: &model.UserEntity{UserID: tc.UserID},
		PayActivityEntity: &model.PayActivityEntity{
			ActivityID:   tc.ActivityID,
			ActivityName: activity.ActivityName,
			ValidTime:    activity.ValidTime,
			StartTime:    activity.StartTime.UnixMilli(),
			EndTime:      activity.EndTime.UnixMilli(),
		},
		PayDiscountEntity:  discount,
		UserTakeOrderCount: int32(tc.UserTakeOrderCount),
	}

	// 半消息发出去，redis扣减和订单落库在本地事务里执行
	if err := s.sender.SendTransaction(ctx, mq.TopicHotGoodsOrderCreate, identifier, agg); err != nil {
		zap.S().Errorf("热点商品-发送事务消息失败: orderId=%s, err=%s", orderID, err.Error())
		return nil, err
	}

	// 本地事务是在回调里执行的，这里查单确认结果
	order, err := s.queryOrderWithRetry(ctx, tc.UserID, orderID, orderQueryRetry, orderQueryBackoff)
	if err != nil {
		return nil, err
	}
	if order != nil && order.Status == model.OrderStatusCreate {
		// 下单成功，3秒后旁路核对redis流水和数据库流水
		s.verifier.Schedule(tc.ActivityID, tc.GoodsID, identifier, orderID)
		return order, nil
	}

	// 查不到订单，看redis流水。流水在说明扣减成功了，订单可能是读延迟，再多等一轮
	logKey := stock.GoodsStockLogKey(tc.ActivityID, tc.GoodsID)
	entry, logErr := s.ledger.GetLog(ctx, logKey, identifier)
	if logErr == nil && entry != nil {
		order, err = s.queryOrderWithRetry(ctx, tc.UserID, orderID, orderQueryExtraRetry, orderQueryExtraBackoff)
		if err != nil {
			return nil, err
		}
		if order != nil && order.Status == model.OrderStatusCreate {
			s.verifier.Schedule(tc.ActivityID, tc.GoodsID, identifier, orderID)
			return order, nil
		}
	}

	// 结果不明确，延迟检查消息（本地事务失败时已发）会在30秒后收尾
	zap.S().Warnf("热点商品-锁单结果不明确: userId=%s, orderId=%s", tc.UserID, orderID)
	return nil, ErrOrderPending
}

func (s *HotGoodsTradeService) queryOrderWithRetry(ctx context.Context, userID, orderID string, attempts int, backoff time.Duration) (*model.MarketPayOrder, error) {
	for i := 0; i < attempts; i++ {
		order, err := s.trade.QueryMarketPayOrder(ctx, userID, orderID)
		if err != nil {
			zap.S().Warnf("热点商品-查询订单失败: orderId=%s, err=%s", orderID, err.Error())
		} else if order != nil {
			return order, nil
		}
		if i < attempts-1 {
			time.Sleep(backoff)
		}
	}
	return nil, nil
}
