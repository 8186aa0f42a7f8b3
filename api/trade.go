package api

import (
	"errors"
	"net/http"

	"GroupBuyMarket/handler"
	"GroupBuyMarket/stock"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TradeHandler 交易接口，参数校验和错误码转换放这里，业务都在handler包
type TradeHandler struct {
	trade *handler.TradeService
}

func NewTradeHandler(trade *handler.TradeService) *TradeHandler {
	return &TradeHandler{trade: trade}
}

type issueTokenRequest struct {
	UserID     string `json:"userId" binding:"required"`
	ActivityID int64  `json:"activityId" binding:"required"`
}

// IssueToken 领取下单防重令牌
func (h *TradeHandler) IssueToken(c *gin.Context) {
	var req issueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, fail(CodeIllegalParam, "参数无效"))
		return
	}
	token, err := h.trade.IssueToken(c.Request.Context(), req.UserID, req.ActivityID)
	if err != nil {
		zap.S().Errorf("发放令牌失败: userId=%s, err=%s", req.UserID, err.Error())
		c.JSON(http.StatusInternalServerError, fail(CodeUnError, "发放令牌失败"))
		return
	}
	c.JSON(http.StatusOK, ok(gin.H{"token": token}))
}

// LockOrder 锁单
func (h *TradeHandler) LockOrder(c *gin.Context) {
	var req handler.LockOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, fail(CodeIllegalParam, "参数无效"))
		return
	}
	order, err := h.trade.LockOrder(c.Request.Context(), &req)
	if err != nil {
		code, info := lockOrderErrCode(err)
		zap.S().Infof("锁单未成功: userId=%s, activityId=%d, code=%s, err=%s",
			req.UserID, req.ActivityID, code, err.Error())
		c.JSON(http.StatusOK, fail(code, info))
		return
	}
	c.JSON(http.StatusOK, ok(gin.H{
		"orderId":          order.OrderID,
		"teamId":           order.TeamID,
		"tradeOrderStatus": order.Status,
		"deductionPrice":   order.DeductionPrice,
	}))
}

// lockOrderErrCode 业务错误转错误码，剩下的都算系统异常
func lockOrderErrCode(err error) (string, string) {
	switch {
	case errors.Is(err, handler.ErrInvalidToken):
		return CodeInvalidToken, err.Error()
	case errors.Is(err, stock.ErrStockNotEnough), errors.Is(err, stock.ErrStockNotFound):
		return CodeStockNotEnough, err.Error()
	case errors.Is(err, stock.ErrTeamFull), errors.Is(err, stock.ErrDuplicateJoin):
		return CodeTeamFull, err.Error()
	case errors.Is(err, handler.ErrOrderPending):
		return CodeOrderPending, err.Error()
	case errors.Is(err, handler.ErrActivityNotUsable), errors.Is(err, handler.ErrTakeLimitExceeded):
		return CodeRuleRejected, err.Error()
	default:
		return CodeUnError, "系统异常"
	}
}
