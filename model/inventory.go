package model

// 库存扣减流水状态
const (
	DeductionStatusSuccess = "SUCCESS" // Try，冻结成功
	DeductionStatusConfirm = "CONFIRM" // Confirm，真实扣减
	DeductionStatusCancel  = "CANCEL"  // Cancel，释放冻结
)

// 活动商品库存表，数据库侧的兜底库存
// saleable是可售库存，frozen是TCC预留的冻结量
type SkuActivity struct {
	BaseModel
	ActivityID int64  `gorm:"type:bigint;index:idx_activity_goods,unique;not null"`
	GoodsID    string `gorm:"type:varchar(64);index:idx_activity_goods,unique;not null"`
	// 总库存
	TotalStock int32 `gorm:"type:int;not null"`
	// 可售库存，Try阶段不动它，Confirm阶段才减
	SaleableStock int32 `gorm:"type:int;not null"`
	// 冻结库存，Try加Confirm/Cancel减
	FrozenStock int32 `gorm:"type:int;not null;default:0"`
	// 乐观锁版本号
	LockVersion int32 `gorm:"type:int;not null;default:0"`
}

func (SkuActivity) TableName() string {
	return "sku_activity"
}

// 库存扣减流水表，orderId唯一索引是数据库侧幂等的锚点
type InventoryDeductionLog struct {
	BaseModel
	OrderID    string `gorm:"type:varchar(32);index:idx_deduction_order,unique;not null"`
	UserID     string `gorm:"type:varchar(64);not null"`
	ActivityID int64  `gorm:"type:bigint;index;not null"`
	GoodsID    string `gorm:"type:varchar(64);not null"`
	Quantity   int32  `gorm:"type:int;not null"`
	// 冻结前后的快照，对账的时候人工排查用
	BeforeSaleable int32  `gorm:"type:int;not null;default:0"`
	AfterSaleable  int32  `gorm:"type:int;not null;default:0"`
	BeforeFrozen   int32  `gorm:"type:int;not null;default:0"`
	AfterFrozen    int32  `gorm:"type:int;not null;default:0"`
	Status         string `gorm:"type:varchar(16);not null"`
}

func (InventoryDeductionLog) TableName() string {
	return "inventory_deduction_log"
}

// 流水归档表
type InventoryDeductionLogArchive struct {
	InventoryDeductionLog
}

func (InventoryDeductionLogArchive) TableName() string {
	return "inventory_deduction_log_archive"
}
