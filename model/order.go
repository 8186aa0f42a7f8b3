package model

import "time"

// 订单状态，TCC流程会经过 TRY -> CONFIRM，热点商品下单直接是 CREATE
const (
	OrderStatusCreate   int32 = 0 // 初始创建（锁单）
	OrderStatusComplete int32 = 1 // 消费完成
	OrderStatusClose    int32 = 2 // 超时关单
	OrderStatusTry      int32 = 3 // TCC预留
	OrderStatusConfirm  int32 = 4 // TCC确认
	OrderStatusCancel   int32 = 5 // TCC取消
)

// 拼团队伍状态
const (
	TeamStatusProgress int32 = 0 // 拼单中
	TeamStatusComplete int32 = 1 // 完成
	TeamStatusFail     int32 = 2 // 失败
)

// 用户拼团订单明细表
type MarketPayOrder struct {
	BaseModel
	UserID     string `gorm:"type:varchar(64);index:idx_user_order,unique;not null"`
	TeamID     string `gorm:"type:varchar(16);index"`
	OrderID    string `gorm:"type:varchar(32);index:idx_user_order,unique;not null"`
	ActivityID int64  `gorm:"type:bigint;index;not null"`
	GoodsID    string `gorm:"type:varchar(64);not null"`
	Source     string `gorm:"type:varchar(16)"`
	Channel    string `gorm:"type:varchar(16)"`
	// 原始价格、折扣价格、实际支付价格，单位分
	OriginalPrice  int64     `gorm:"type:bigint;not null;default:0"`
	DeductionPrice int64     `gorm:"type:bigint;not null;default:0"`
	PayPrice       int64     `gorm:"type:bigint;not null;default:0"`
	Status         int32     `gorm:"type:tinyint;not null;default:0"`
	OutTradeNo     string    `gorm:"type:varchar(64)"`
	StartTime      time.Time `gorm:"not null"`
	EndTime        time.Time `gorm:"not null"`
	// 业务防重id，userId_activityId_第几次参与
	BizID string `gorm:"type:varchar(64);index:idx_biz_id,unique"`
}

func (MarketPayOrder) TableName() string {
	return "group_buy_order_list"
}

// 拼团队伍表，记录一个teamId的锁单量和完成量
type GroupBuyTeam struct {
	BaseModel
	TeamID         string    `gorm:"type:varchar(16);index:idx_team_id,unique;not null"`
	ActivityID     int64     `gorm:"type:bigint;index;not null"`
	TargetCount    int32     `gorm:"type:int;not null"`
	CompleteCount  int32     `gorm:"type:int;not null;default:0"`
	LockCount      int32     `gorm:"type:int;not null;default:0"`
	Status         int32     `gorm:"type:tinyint;not null;default:0"`
	ValidStartTime time.Time `gorm:"not null"`
	ValidEndTime   time.Time `gorm:"not null"`
	NotifyURL      string    `gorm:"type:varchar(256)"`
}

func (GroupBuyTeam) TableName() string {
	return "group_buy_order"
}

// 订单归档表，结构和订单表一致，归档任务批量搬运
type MarketPayOrderArchive struct {
	MarketPayOrder
}

func (MarketPayOrderArchive) TableName() string {
	return "group_buy_order_list_archive"
}
