package api

import (
	"github.com/gin-gonic/gin"
)

// InitRouter 注册所有路由
func InitRouter(tradeHandler *TradeHandler, adminHandler *AdminHandler) *gin.Engine {
	router := gin.Default()
	router.Use(gin.Recovery())

	marketGroup := router.Group("/api/v1/market")
	{
		marketGroup.POST("/token", tradeHandler.IssueToken)
		marketGroup.POST("/lock_order", tradeHandler.LockOrder)
	}

	// 运营接口
	adminGroup := router.Group("/api/v1/admin")
	{
		adminGroup.POST("/stock/preheat", adminHandler.PreheatGoodsStock)
		adminGroup.POST("/stock/preheat_team", adminHandler.PreheatTeamStock)
		adminGroup.POST("/hot_goods/mark", adminHandler.MarkHotGoods)
		adminGroup.POST("/hot_goods/unmark", adminHandler.UnmarkHotGoods)
		adminGroup.POST("/hot_goods/query", adminHandler.QueryHotGoods)
	}

	return router
}
