package model

import "time"

// 拼团活动状态
const (
	ActivityStatusCreated = iota // 创建
	ActivityStatusEffect         // 生效
	ActivityStatusExpired        // 过期
	ActivityStatusAbandon        // 废弃
)

// 拼团活动配置表
type GroupBuyActivity struct {
	BaseModel
	ActivityID   int64  `gorm:"type:bigint;index:idx_activity_id,unique;not null"`
	ActivityName string `gorm:"type:varchar(128);not null"`
	DiscountID   string `gorm:"type:varchar(8)"`
	GroupType    int32  `gorm:"type:tinyint;not null;default:0"` // 0自动成团 1达成目标成团
	// 拼团目标人数
	Target int32 `gorm:"type:int;not null"`
	// 单个userId可以参与的次数上限
	TakeLimitCount int32 `gorm:"type:int;not null;default:1"`
	// 拼团有效时长，单位分钟，队伍的有效期以及恢复量的窗口都用它
	ValidTime int32     `gorm:"type:int;not null"`
	Status    int32     `gorm:"type:tinyint;not null;default:0"`
	StartTime time.Time `gorm:"not null"`
	EndTime   time.Time `gorm:"not null"`
	TagID     string    `gorm:"type:varchar(8)"`
}

func (GroupBuyActivity) TableName() string {
	return "group_buy_activity"
}

// Usable 活动是否可用：状态生效且在起止时间内
func (a *GroupBuyActivity) Usable(now time.Time) bool {
	if a.Status != ActivityStatusEffect {
		return false
	}
	return !now.Before(a.StartTime) && !now.After(a.EndTime)
}
