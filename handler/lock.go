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
	"GroupBuyMarket/utils"

	"go.uber.org/zap"
)

// Confirm阶段的重试上限，超过之后发延迟消息兜底而不是直接报错
const confirmMaxRetry = 2

// GroupBuyTradeService 普通商品和拼团商品的TCC下单
// Try只动redis和订单表，Confirm才动数据库库存，Cancel走消息异步补偿
type GroupBuyTradeService struct {
	ledger *stock.Ledger
	sku    *repository.SkuRepository
	trade  *repository.TradeRepository
	sender mq.Sender
	rules  *RuleChain
}

func NewGroupBuyTradeService(ledger *stock.Ledger, sku *repository.SkuRepository,
	trade *repository.TradeRepository, sender mq.Sender, rules *RuleChain) *GroupBuyTradeService {
	return &GroupBuyTradeService{
		ledger: ledger,
		sku:    sku,
		trade:  trade,
		sender: sender,
		rules:  rules,
	}
}

// LockOrder 锁单入口
// teamId为空且活动是拼团活动时开新团，teamId非空时加入已有队伍
func (s *GroupBuyTradeService) LockOrder(ctx context.Context, tc *TradeContext, discount *model.PayDiscountEntity) (*model.MarketPayOrder, error) {
	if err := s.rules.Apply(ctx, tc); err != nil {
		return nil, err
	}
	activity := tc.Activity

	orderID := utils.GenerateOrderSn(tc.UserID)
	identifier := stock.DecreaseIdentifier(tc.UserID, orderID)

	// 拼团活动才有队伍，目标人数1的活动按普通商品处理
	grouping := activity.Target > 1
	teamID := tc.TeamID
	newTeam := false
	if grouping && teamID == "" {
		teamID = utils.GenerateTeamID()
		newTeam = true
	}
	if !grouping {
		teamID = ""
	}

	agg := &model.GroupBuyOrderAggregate{
		OrderID:    orderID,
		TeamID:     teamID,
		UserEntity: &model.UserEntity{UserID: tc.UserID},
		PayActivityEntity: &model.PayActivityEntity{
			ActivityID:   tc.ActivityID,
			ActivityName: activity.ActivityName,
			TargetCount:  activity.Target,
			ValidTime:    activity.ValidTime,
			StartTime:    activity.StartTime.UnixMilli(),
			EndTime:      activity.EndTime.UnixMilli(),
		},
		PayDiscountEntity:  discount,
		UserTakeOrderCount: int32(tc.UserTakeOrderCount),
	}

	// Try：商品扣减和入队一个脚本完成，失败时redis里不会留下半个结果
	result, err := s.ledger.DecreaseGoodsAndJoinTeam(ctx, tc.ActivityID, tc.GoodsID, teamID,
		identifier, 1, int64(activity.Target))
	switch {
	case err == nil:
		zap.S().Infof("拼团-预扣减成功: orderId=%s, 剩余库存=%d, 队伍人数=%d",
			orderID, result.GoodsRemaining, result.TeamCount)
	case errors.Is(err, stock.ErrAlreadyExecuted), errors.Is(err, stock.ErrDuplicateJoin):
		zap.S().Infof("拼团-流水已存在，幂等继续: orderId=%s", orderID)
	default:
		// 库存不足、队伍已满、key没预热都直接拒绝
		zap.S().Warnf("拼团-预扣减被拒绝: orderId=%s, err=%s", orderID, err.Error())
		return nil, err
	}

	// Try：订单落TRY状态，建团或者加团在同一个事务里
	if err := s.trade.LockGroupBuyOrder(ctx, agg, model.OrderStatusTry, newTeam); err != nil {
		zap.S().Warnf("拼团-订单落库失败，发送取消消息: orderId=%s, err=%s", orderID, err.Error())
		s.sendCancel(ctx, identifier, agg)
		if errors.Is(err, repository.ErrTeamLockFull) {
			return nil, stock.ErrTeamFull
		}
		return nil, err
	}

	// Confirm：数据库冻结加真实扣减，再把订单翻CONFIRM
	if s.confirmWithRetry(ctx, agg) {
		order, err := s.trade.QueryMarketPayOrder(ctx, tc.UserID, orderID)
		if err != nil {
			return nil, err
		}
		return order, nil
	}

	// Confirm重试耗尽。可能已经部分成功，不能直接回滚，发延迟消息1分钟后再裁决
	zap.S().Warnf("拼团-确认重试耗尽，发送延迟检查消息: orderId=%s", orderID)
	if err := s.sender.SendDelay(ctx, mq.TopicGroupBuyOrderPreCancel, identifier, agg, mq.DelayLevel1m); err != nil {
		zap.S().Errorf("拼团-延迟检查消息发送失败，等补偿任务兜底: orderId=%s, err=%s", orderID, err.Error())
	}
	return nil, ErrOrderPending
}

func (s *GroupBuyTradeService) confirmWithRetry(ctx context.Context, agg *model.GroupBuyOrderAggregate) bool {
	orderID := agg.OrderID
	userID := agg.UserEntity.UserID
	activityID := agg.PayActivityEntity.ActivityID
	goodsID := agg.PayDiscountEntity.GoodsID

	for i := 0; i < confirmMaxRetry; i++ {
		ok, err := s.sku.DecreaseSkuStock(ctx, activityID, goodsID, 1, orderID, userID)
		if err != nil || !ok {
			zap.S().Warnf("拼团-确认阶段冻结库存失败(第%d次): orderId=%s, err=%v", i+1, orderID, err)
			continue
		}
		ok, err = s.sku.ConfirmDecreaseInventory(ctx, activityID, goodsID, 1, orderID)
		if err != nil || !ok {
			zap.S().Warnf("拼团-确认扣减失败(第%d次): orderId=%s, err=%v", i+1, orderID, err)
			continue
		}
		confirmed, err := s.trade.ConfirmOrder(ctx, userID, orderID)
		if err != nil || !confirmed {
			zap.S().Warnf("拼团-订单确认失败(第%d次): orderId=%s, err=%v", i+1, orderID, err)
			continue
		}
		return true
	}
	return false
}

// sendCancel Try失败的同步补偿，消费端做redis回滚、释放冻结、让出座位
func (s *GroupBuyTradeService) sendCancel(ctx context.Context, identifier string, agg *model.GroupBuyOrderAggregate) {
	if err := s.sender.Send(ctx, mq.TopicGroupBuyOrderCancel, identifier, agg); err != nil {
		zap.S().Errorf("拼团-取消消息发送失败，就地补偿: orderId=%s, err=%s", agg.OrderID, err.Error())
		// 消息发不出去就把redis先补回来，数据库侧等补偿任务
		s.rollbackLedger(ctx, identifier, agg)
	}
}

// rollbackLedger redis侧回滚：商品库存加回去、删流水、让出队伍座位
func (s *GroupBuyTradeService) rollbackLedger(ctx context.Context, identifier string, agg *model.GroupBuyOrderAggregate) {
	activityID := agg.PayActivityEntity.ActivityID
	goodsID := agg.PayDiscountEntity.GoodsID
	increaseID := strings.Replace(identifier, model.IdentifierPrefixDecrease, model.IdentifierPrefixIncrease, 1)

	goodsKey := stock.GoodsStockKey(activityID, goodsID)
	goodsLogKey := stock.GoodsStockLogKey(activityID, goodsID)
	if _, err := s.ledger.Increase(ctx, goodsKey, goodsLogKey, increaseID, 1); err != nil &&
		!errors.Is(err, stock.ErrAlreadyExecuted) {
		zap.S().Errorf("拼团-回滚商品库存失败: orderId=%s, err=%s", agg.OrderID, err.Error())
		return
	}
	// 回滚成功后把扣减流水删掉，补偿任务就不会再碰这一笔
	if err := s.ledger.RemoveLog(ctx, goodsLogKey, identifier); err != nil {
		zap.S().Errorf("拼团-删除扣减流水失败: orderId=%s, err=%s", agg.OrderID, err.Error())
	}
	if agg.TeamID != "" {
		validTime := time.Duration(agg.PayActivityEntity.ValidTime) * time.Minute
		if _, err := s.ledger.RecoverTeamSeat(ctx, activityID, agg.TeamID, validTime); err != nil {
			zap.S().Errorf("拼团-让出队伍座位失败: teamId=%s, err=%s", agg.TeamID, err.Error())
		}
		if err := s.ledger.RemoveLog(ctx, stock.TeamStockLogKey(activityID, agg.TeamID), identifier); err != nil {
			zap.S().Errorf("拼团-删除队伍流水失败: teamId=%s, err=%s", agg.TeamID, err.Error())
		}
	}
}
