package handler

import (
	"context"
	"errors"

	"GroupBuyMarket/model"
	"GroupBuyMarket/stock"

	"go.uber.org/zap"
)

var ErrInvalidToken = errors.New("下单令牌无效或已使用")

// LockOrderRequest 锁单请求
type LockOrderRequest struct {
	UserID     string `json:"userId" binding:"required"`
	ActivityID int64  `json:"activityId" binding:"required"`
	GoodsID    string `json:"goodsId" binding:"required"`
	TeamID     string `json:"teamId"`
	Source     string `json:"source"`
	Channel    string `json:"channel"`
	OutTradeNo string `json:"outTradeNo"`
	Token      string `json:"token"`

	OriginalPrice  int64 `json:"originalPrice"`
	DeductionPrice int64 `json:"deductionPrice"`
	PayPrice       int64 `json:"payPrice"`
}

// 防重令牌的业务场景名
const tokenSceneLockOrder = "lock_order"

// TradeService 下单的总入口，按热点标记分流
// 热点商品走事务消息的快路径，其他走TCC
type TradeService struct {
	router *stock.HotKeyRouter
	tokens *stock.TokenStore
	hot    *HotGoodsTradeService
	tcc    *GroupBuyTradeService
}

func NewTradeService(router *stock.HotKeyRouter, tokens *stock.TokenStore,
	hot *HotGoodsTradeService, tcc *GroupBuyTradeService) *TradeService {
	return &TradeService{router: router, tokens: tokens, hot: hot, tcc: tcc}
}

// IssueToken 下单前领防重令牌
func (s *TradeService) IssueToken(ctx context.Context, userID string, activityID int64) (string, error) {
	return s.tokens.Issue(ctx, tokenSceneLockOrder, userID, activityID)
}

// LockOrder 锁单，令牌校验通过才往下走
func (s *TradeService) LockOrder(ctx context.Context, req *LockOrderRequest) (*model.MarketPayOrder, error) {
	ok, err := s.tokens.Consume(ctx, tokenSceneLockOrder, req.UserID, req.ActivityID, req.Token)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidToken
	}

	tc := &TradeContext{
		UserID:     req.UserID,
		ActivityID: req.ActivityID,
		GoodsID:    req.GoodsID,
		TeamID:     req.TeamID,
	}
	discount := &model.PayDiscountEntity{
		GoodsID:        req.GoodsID,
		Source:         req.Source,
		Channel:        req.Channel,
		OriginalPrice:  req.OriginalPrice,
		DeductionPrice: req.DeductionPrice,
		PayPrice:       req.PayPrice,
		OutTradeNo:     req.OutTradeNo,
	}

	if s.router.IsHot(ctx, req.ActivityID, req.GoodsID) {
		zap.S().Infof("热点商品下单: userId=%s, activityId=%d, goodsId=%s", req.UserID, req.ActivityID, req.GoodsID)
		return s.hot.LockHotGoodsOrder(ctx, tc, discount)
	}
	zap.S().Infof("普通商品下单: userId=%s, activityId=%d, goodsId=%s, teamId=%s",
		req.UserID, req.ActivityID, req.GoodsID, req.TeamID)
	return s.tcc.LockOrder(ctx, tc, discount)
}
