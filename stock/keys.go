package stock

import "fmt"

// redis key的统一拼接，除了这里任何地方都不要手拼key
// goods_stock:{activityId}:{goodsId}         商品库存计数
// goods_stock_log:{activityId}:{goodsId}     商品库存流水hash
// team_stock:{activityId}:{teamId}           队伍人数计数
// team_stock_log:{activityId}:{teamId}       队伍流水hash
// team_stock:{activityId}:{teamId}_recovery  取消订单后的恢复量

func GoodsStockKey(activityID int64, goodsID string) string {
	return fmt.Sprintf("goods_stock:%d:%s", activityID, goodsID)
}

func GoodsStockLogKey(activityID int64, goodsID string) string {
	return fmt.Sprintf("goods_stock_log:%d:%s", activityID, goodsID)
}

func TeamStockKey(activityID int64, teamID string) string {
	return fmt.Sprintf("team_stock:%d:%s", activityID, teamID)
}

func TeamStockLogKey(activityID int64, teamID string) string {
	return fmt.Sprintf("team_stock_log:%d:%s", activityID, teamID)
}

func TeamRecoveryKey(activityID int64, teamID string) string {
	return TeamStockKey(activityID, teamID) + "_recovery"
}

// HotGoodsSetKey 热点商品集合，成员是 activityId:goodsId
func HotGoodsSetKey() string {
	return "hot_goods_set"
}

func HotGoodsMember(activityID int64, goodsID string) string {
	return fmt.Sprintf("%d:%s", activityID, goodsID)
}

// TokenKey 下单防重令牌，scene区分业务场景
func TokenKey(scene, userID string, activityID int64) string {
	return fmt.Sprintf("trade_token:%s:%s:%d", scene, userID, activityID)
}

func DecreaseIdentifier(userID, orderID string) string {
	return fmt.Sprintf("DECREASE_%s_%s", userID, orderID)
}

func IncreaseIdentifier(userID, orderID string) string {
	return fmt.Sprintf("INCREASE_%s_%s", userID, orderID)
}
