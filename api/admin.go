package api

import (
	"net/http"

	"GroupBuyMarket/stock"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AdminHandler 运营侧接口：库存预热、热点商品标记
type AdminHandler struct {
	ledger *stock.Ledger
	router *stock.HotKeyRouter
}

func NewAdminHandler(ledger *stock.Ledger, router *stock.HotKeyRouter) *AdminHandler {
	return &AdminHandler{ledger: ledger, router: router}
}

type preheatGoodsRequest struct {
	ActivityID int64  `json:"activityId" binding:"required"`
	GoodsID    string `json:"goodsId" binding:"required"`
	Stock      int64  `json:"stock" binding:"required,gt=0"`
}

// PreheatGoodsStock 活动开始前把商品库存计数灌进redis，不覆盖已有计数
func (h *AdminHandler) PreheatGoodsStock(c *gin.Context) {
	var req preheatGoodsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, fail(CodeIllegalParam, "参数无效"))
		return
	}
	created, err := h.ledger.InitGoodsStock(c.Request.Context(), req.ActivityID, req.GoodsID, req.Stock)
	if err != nil {
		zap.S().Errorf("预热商品库存失败: activityId=%d, goodsId=%s, err=%s", req.ActivityID, req.GoodsID, err.Error())
		c.JSON(http.StatusInternalServerError, fail(CodeUnError, "预热失败"))
		return
	}
	zap.S().Infof("预热商品库存: activityId=%d, goodsId=%s, stock=%d, created=%v",
		req.ActivityID, req.GoodsID, req.Stock, created)
	c.JSON(http.StatusOK, ok(gin.H{"created": created}))
}

type preheatTeamRequest struct {
	ActivityID int64    `json:"activityId" binding:"required"`
	TeamIDs    []string `json:"teamIds" binding:"required,min=1"`
}

// PreheatTeamStock 批量预热队伍人数计数，返回真正写入的数量
func (h *AdminHandler) PreheatTeamStock(c *gin.Context) {
	var req preheatTeamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, fail(CodeIllegalParam, "参数无效"))
		return
	}
	success := 0
	for _, teamID := range req.TeamIDs {
		created, err := h.ledger.InitTeamStock(c.Request.Context(), req.ActivityID, teamID)
		if err != nil {
			zap.S().Errorf("预热队伍计数失败: teamId=%s, err=%s", teamID, err.Error())
			continue
		}
		if created {
			success++
		}
	}
	zap.S().Infof("批量预热队伍计数: 总数=%d, 写入=%d", len(req.TeamIDs), success)
	c.JSON(http.StatusOK, ok(gin.H{"total": len(req.TeamIDs), "created": success}))
}

type hotGoodsRequest struct {
	ActivityID int64  `json:"activityId" binding:"required"`
	GoodsID    string `json:"goodsId" binding:"required"`
}

// MarkHotGoods 把商品标记为热点，之后的下单走事务消息链路
func (h *AdminHandler) MarkHotGoods(c *gin.Context) {
	var req hotGoodsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, fail(CodeIllegalParam, "参数无效"))
		return
	}
	if err := h.router.MarkHot(c.Request.Context(), req.ActivityID, req.GoodsID); err != nil {
		zap.S().Errorf("标记热点商品失败: activityId=%d, goodsId=%s, err=%s", req.ActivityID, req.GoodsID, err.Error())
		c.JSON(http.StatusInternalServerError, fail(CodeUnError, "标记失败"))
		return
	}
	c.JSON(http.StatusOK, ok(nil))
}

// UnmarkHotGoods 取消热点标记，回到TCC链路
func (h *AdminHandler) UnmarkHotGoods(c *gin.Context) {
	var req hotGoodsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, fail(CodeIllegalParam, "参数无效"))
		return
	}
	if err := h.router.UnmarkHot(c.Request.Context(), req.ActivityID, req.GoodsID); err != nil {
		zap.S().Errorf("取消热点商品失败: activityId=%d, goodsId=%s, err=%s", req.ActivityID, req.GoodsID, err.Error())
		c.JSON(http.StatusInternalServerError, fail(CodeUnError, "取消失败"))
		return
	}
	c.JSON(http.StatusOK, ok(nil))
}

// QueryHotGoods 查询某个商品当前是不是热点
func (h *AdminHandler) QueryHotGoods(c *gin.Context) {
	var req hotGoodsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, fail(CodeIllegalParam, "参数无效"))
		return
	}
	hot := h.router.IsHot(c.Request.Context(), req.ActivityID, req.GoodsID)
	c.JSON(http.StatusOK, ok(gin.H{"hot": hot}))
}
