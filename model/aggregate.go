package model

// 下单链路在MQ里传递的聚合对象，字段都打json tag，消息体是json

type UserEntity struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

type PayActivityEntity struct {
	ActivityID   int64  `json:"activityId"`
	ActivityName string `json:"activityName"`
	TargetCount  int32  `json:"targetCount"`
	// 拼团有效时长，单位分钟
	ValidTime int32 `json:"validTime"`
	StartTime int64 `json:"startTime"`
	EndTime   int64 `json:"endTime"`
}

type PayDiscountEntity struct {
	GoodsID        string `json:"goodsId"`
	GoodsName      string `json:"goodsName"`
	Source         string `json:"source"`
	Channel        string `json:"channel"`
	OriginalPrice  int64  `json:"originalPrice"`
	DeductionPrice int64  `json:"deductionPrice"`
	PayPrice       int64  `json:"payPrice"`
	OutTradeNo     string `json:"outTradeNo"`
}

// 热点商品下单聚合，没有拼团的概念，一单一件
type HotGoodsOrderAggregate struct {
	OrderID            string             `json:"orderId"`
	UserEntity         *UserEntity        `json:"userEntity"`
	PayActivityEntity  *PayActivityEntity `json:"payActivityEntity"`
	PayDiscountEntity  *PayDiscountEntity `json:"payDiscountEntity"`
	UserTakeOrderCount int32              `json:"userTakeOrderCount"`
}

// 拼团下单聚合，teamId为空代表首次开团
type GroupBuyOrderAggregate struct {
	OrderID            string             `json:"orderId"`
	TeamID             string             `json:"teamId"`
	UserEntity         *UserEntity        `json:"userEntity"`
	PayActivityEntity  *PayActivityEntity `json:"payActivityEntity"`
	PayDiscountEntity  *PayDiscountEntity `json:"payDiscountEntity"`
	UserTakeOrderCount int32              `json:"userTakeOrderCount"`
}
