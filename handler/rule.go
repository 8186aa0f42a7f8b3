package handler

import (
	"context"
	"errors"
	"time"

	"GroupBuyMarket/model"
	"GroupBuyMarket/repository"

	"go.uber.org/zap"
)

var (
	ErrActivityNotUsable = errors.New("拼团活动不可用")
	ErrTakeLimitExceeded = errors.New("超过活动参与次数上限")
)

// TradeContext 责任链传递的上下文，过滤器一边校验一边把查到的数据填进来
// 后面的锁单流程直接复用，不用再查一遍
type TradeContext struct {
	UserID     string
	ActivityID int64
	GoodsID    string
	TeamID     string

	Activity           *model.GroupBuyActivity
	UserTakeOrderCount int64
}

// RuleFilter 锁单前的校验规则，按顺序执行，返回error就中断
type RuleFilter func(ctx context.Context, tc *TradeContext) error

// RuleChain 把规则串起来，热点和拼团两条链路共用
type RuleChain struct {
	trade   *repository.TradeRepository
	filters []RuleFilter
}

func NewRuleChain(trade *repository.TradeRepository) *RuleChain {
	c := &RuleChain{trade: trade}
	c.filters = []RuleFilter{
		c.activityUsability,
		c.userTakeLimit,
	}
	return c
}

func (c *RuleChain) Apply(ctx context.Context, tc *TradeContext) error {
	for _, filter := range c.filters {
		if err := filter(ctx, tc); err != nil {
			return err
		}
	}
	return nil
}

// 活动可用性：活动存在、状态生效、在起止时间内
func (c *RuleChain) activityUsability(ctx context.Context, tc *TradeContext) error {
	activity, err := c.trade.QueryActivity(ctx, tc.ActivityID)
	if err != nil {
		if errors.Is(err, repository.ErrActivityNotFound) {
			return ErrActivityNotUsable
		}
		return err
	}
	if !activity.Usable(time.Now()) {
		zap.S().Warnf("活动不在可用状态: activityId=%d, status=%d", tc.ActivityID, activity.Status)
		return ErrActivityNotUsable
	}
	tc.Activity = activity
	return nil
}

// 用户参与次数限制，已取消的订单不占名额
func (c *RuleChain) userTakeLimit(ctx context.Context, tc *TradeContext) error {
	count, err := c.trade.QueryUserTakeOrderCount(ctx, tc.UserID, tc.ActivityID)
	if err != nil {
		return err
	}
	if count >= int64(tc.Activity.TakeLimitCount) {
		zap.S().Warnf("用户参与次数超限: userId=%s, activityId=%d, count=%d, limit=%d",
			tc.UserID, tc.ActivityID, count, tc.Activity.TakeLimitCount)
		return ErrTakeLimitExceeded
	}
	tc.UserTakeOrderCount = count
	return nil
}
