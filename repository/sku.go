package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"GroupBuyMarket/model"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 乐观锁的重试次数和退避基数
const (
	casMaxRetry     = 3
	casRetryBackoff = 10 * time.Millisecond
)

var ErrSkuNotFound = errors.New("活动商品库存不存在")

// SkuRepository 数据库侧的库存，redis扣完之后这里做兜底账
// 扣减流水表的orderId唯一索引是幂等锚点，先查流水再动库存
type SkuRepository struct {
	db *gorm.DB
}

func NewSkuRepository(db *gorm.DB) *SkuRepository {
	return &SkuRepository{db: db}
}

func (r *SkuRepository) QuerySkuActivity(ctx context.Context, activityID int64, goodsID string) (*model.SkuActivity, error) {
	var sku model.SkuActivity
	err := r.db.WithContext(ctx).
		Where("activity_id = ? AND goods_id = ?", activityID, goodsID).
		First(&sku).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSkuNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sku, nil
}

// QueryDeductionLog 按orderId查扣减流水，不存在返回(nil, nil)
func (r *SkuRepository) QueryDeductionLog(ctx context.Context, orderID string) (*model.InventoryDeductionLog, error) {
	var log model.InventoryDeductionLog
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&log).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// DecreaseSkuStock TCC的Try：冻结库存并写扣减流水
// 只加frozen不动saleable，Confirm的时候才真正减
// 同一个orderId重复调用直接返回成功
func (r *SkuRepository) DecreaseSkuStock(ctx context.Context, activityID int64, goodsID string, quantity int32, orderID, userID string) (bool, error) {
	// 1. 流水存在说明已经扣过了，幂等返回
	existing, err := r.QueryDeductionLog(ctx, orderID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		zap.S().Infof("库存扣减流水已存在，幂等返回: orderId=%s, status=%s", orderID, existing.Status)
		return true, nil
	}

	// 2. 乐观锁冻结库存，版本号不对就重试
	frozen := false
	var sku model.SkuActivity
	for i := 0; i < casMaxRetry; i++ {
		err := r.db.WithContext(ctx).
			Where("activity_id = ? AND goods_id = ?", activityID, goodsID).
			First(&sku).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrSkuNotFound
		}
		if err != nil {
			return false, err
		}
		if sku.SaleableStock-sku.FrozenStock < quantity {
			zap.S().Warnf("数据库可售库存不足: activityId=%d, goodsId=%s, saleable=%d, frozen=%d, 需要=%d",
				activityID, goodsID, sku.SaleableStock, sku.FrozenStock, quantity)
			return false, nil
		}
		result := r.db.WithContext(ctx).Model(&model.SkuActivity{}).
			Where("activity_id = ? AND goods_id = ? AND lock_version = ?", activityID, goodsID, sku.LockVersion).
			Updates(map[string]interface{}{
				"frozen_stock": gorm.Expr("frozen_stock + ?", quantity),
				"lock_version": gorm.Expr("lock_version + 1"),
			})
		if result.Error != nil {
			return false, result.Error
		}
		if result.RowsAffected > 0 {
			frozen = true
			break
		}
		// 版本号冲突，退避之后重试
		time.Sleep(casRetryBackoff * time.Duration(i+1))
	}
	if !frozen {
		return false, fmt.Errorf("冻结库存失败，乐观锁重试%d次耗尽: orderId=%s", casMaxRetry, orderID)
	}

	// 3. 写扣减流水，唯一索引冲突说明并发请求已经写过了
	log := model.InventoryDeductionLog{
		OrderID:        orderID,
		UserID:         userID,
		ActivityID:     activityID,
		GoodsID:        goodsID,
		Quantity:       quantity,
		BeforeSaleable: sku.SaleableStock,
		AfterSaleable:  sku.SaleableStock,
		BeforeFrozen:   sku.FrozenStock,
		AfterFrozen:    sku.FrozenStock + quantity,
		Status:         model.DeductionStatusSuccess,
	}
	if err := r.db.WithContext(ctx).Create(&log).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// 并发下另一个请求已落流水，把刚冻结的量还回去
			r.releaseFrozen(ctx, activityID, goodsID, quantity)
			return true, nil
		}
		return false, err
	}
	return true, nil
}

// ConfirmDecreaseInventory TCC的Confirm：真实扣减可售库存，释放冻结
// 流水状态翻到CONFIRM，重复确认幂等返回
func (r *SkuRepository) ConfirmDecreaseInventory(ctx context.Context, activityID int64, goodsID string, quantity int32, orderID string) (bool, error) {
	log, err := r.QueryDeductionLog(ctx, orderID)
	if err != nil {
		return false, err
	}
	if log == nil {
		zap.S().Warnf("确认扣减失败，流水不存在: orderId=%s", orderID)
		return false, nil
	}
	switch log.Status {
	case model.DeductionStatusConfirm:
		return true, nil
	case model.DeductionStatusCancel:
		zap.S().Warnf("确认扣减失败，流水已取消: orderId=%s", orderID)
		return false, nil
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.SkuActivity{}).
			Where("activity_id = ? AND goods_id = ? AND saleable_stock >= ? AND frozen_stock >= ?",
				activityID, goodsID, quantity, quantity).
			Updates(map[string]interface{}{
				"saleable_stock": gorm.Expr("saleable_stock - ?", quantity),
				"frozen_stock":   gorm.Expr("frozen_stock - ?", quantity),
				"lock_version":   gorm.Expr("lock_version + 1"),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("确认扣减失败，库存不满足条件: activityId=%d, goodsId=%s", activityID, goodsID)
		}
		return tx.Model(&model.InventoryDeductionLog{}).
			Where("order_id = ? AND status = ?", orderID, model.DeductionStatusSuccess).
			Update("status", model.DeductionStatusConfirm).Error
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// CancelDecreaseInventory TCC的Cancel：释放冻结库存，流水翻到CANCEL
// 流水不存在说明Try就没成，视为取消成功
func (r *SkuRepository) CancelDecreaseInventory(ctx context.Context, activityID int64, goodsID string, quantity int32, orderID string) (bool, error) {
	log, err := r.QueryDeductionLog(ctx, orderID)
	if err != nil {
		return false, err
	}
	if log == nil {
		return true, nil
	}
	switch log.Status {
	case model.DeductionStatusCancel:
		return true, nil
	case model.DeductionStatusConfirm:
		zap.S().Warnf("取消扣减失败，流水已确认: orderId=%s", orderID)
		return false, nil
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.SkuActivity{}).
			Where("activity_id = ? AND goods_id = ? AND frozen_stock >= ?", activityID, goodsID, quantity).
			Updates(map[string]interface{}{
				"frozen_stock": gorm.Expr("frozen_stock - ?", quantity),
				"lock_version": gorm.Expr("lock_version + 1"),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("释放冻结库存失败: activityId=%d, goodsId=%s", activityID, goodsID)
		}
		return tx.Model(&model.InventoryDeductionLog{}).
			Where("order_id = ? AND status = ?", orderID, model.DeductionStatusSuccess).
			Update("status", model.DeductionStatusCancel).Error
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *SkuRepository) releaseFrozen(ctx context.Context, activityID int64, goodsID string, quantity int32) {
	err := r.db.WithContext(ctx).Model(&model.SkuActivity{}).
		Where("activity_id = ? AND goods_id = ? AND frozen_stock >= ?", activityID, goodsID, quantity).
		Updates(map[string]interface{}{
			"frozen_stock": gorm.Expr("frozen_stock - ?", quantity),
			"lock_version": gorm.Expr("lock_version + 1"),
		}).Error
	if err != nil {
		zap.S().Errorf("并发冲突回退冻结库存失败: activityId=%d, goodsId=%s, err=%s", activityID, goodsID, err.Error())
	}
}

// ArchiveDeductionLogs 把超过保留期的流水搬到归档表，按批处理
// 返回归档的行数
func (r *SkuRepository) ArchiveDeductionLogs(ctx context.Context, before time.Time, batchSize int) (int64, error) {
	var moved int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var logs []model.InventoryDeductionLog
		if err := tx.Where("update_time < ?", before).Limit(batchSize).Find(&logs).Error; err != nil {
			return err
		}
		if len(logs) == 0 {
			return nil
		}
		archives := make([]model.InventoryDeductionLogArchive, 0, len(logs))
		ids := make([]int32, 0, len(logs))
		for _, l := range logs {
			archives = append(archives, model.InventoryDeductionLogArchive{InventoryDeductionLog: l})
			ids = append(ids, l.ID)
		}
		if err := tx.Create(&archives).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("id IN ?", ids).Delete(&model.InventoryDeductionLog{}).Error; err != nil {
			return err
		}
		moved = int64(len(logs))
		return nil
	})
	return moved, err
}
