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

var (
	ErrActivityNotFound = errors.New("拼团活动不存在")
	ErrTeamNotFound     = errors.New("拼团队伍不存在")
	ErrTeamLockFull     = errors.New("拼团队伍锁单量已满")
)

// TradeRepository 订单和拼团队伍的数据库操作
// 订单状态只有这里写，userId+orderId和bizId两个唯一索引兜住重复下单
type TradeRepository struct {
	db *gorm.DB
}

func NewTradeRepository(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

func (r *TradeRepository) QueryActivity(ctx context.Context, activityID int64) (*model.GroupBuyActivity, error) {
	var activity model.GroupBuyActivity
	err := r.db.WithContext(ctx).Where("activity_id = ?", activityID).First(&activity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrActivityNotFound
	}
	if err != nil {
		return nil, err
	}
	return &activity, nil
}

// QueryMarketPayOrder 查订单，不存在返回(nil, nil)
func (r *TradeRepository) QueryMarketPayOrder(ctx context.Context, userID, orderID string) (*model.MarketPayOrder, error) {
	var order model.MarketPayOrder
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND order_id = ?", userID, orderID).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// QueryOrderByOrderID 只按orderId查，对账补偿任务从流水里拿不到userId时用
func (r *TradeRepository) QueryOrderByOrderID(ctx context.Context, orderID string) (*model.MarketPayOrder, error) {
	var order model.MarketPayOrder
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// QueryUserTakeOrderCount 用户在一个活动里已经参与的次数，限购校验用
// 已取消和已关单的不计数
func (r *TradeRepository) QueryUserTakeOrderCount(ctx context.Context, userID string, activityID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.MarketPayOrder{}).
		Where("user_id = ? AND activity_id = ? AND status NOT IN ?",
			userID, activityID, []int32{model.OrderStatusClose, model.OrderStatusCancel}).
		Count(&count).Error
	return count, err
}

func (r *TradeRepository) QueryTeam(ctx context.Context, teamID string) (*model.GroupBuyTeam, error) {
	var team model.GroupBuyTeam
	err := r.db.WithContext(ctx).Where("team_id = ?", teamID).First(&team).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTeamNotFound
	}
	if err != nil {
		return nil, err
	}
	return &team, nil
}

// LockHotGoodsOrder 热点商品锁单，没有拼团，直接落CREATE状态的订单
func (r *TradeRepository) LockHotGoodsOrder(ctx context.Context, agg *model.HotGoodsOrderAggregate) error {
	activity := agg.PayActivityEntity
	discount := agg.PayDiscountEntity
	order := model.MarketPayOrder{
		UserID:         agg.UserEntity.UserID,
		OrderID:        agg.OrderID,
		ActivityID:     activity.ActivityID,
		GoodsID:        discount.GoodsID,
		Source:         discount.Source,
		Channel:        discount.Channel,
		OriginalPrice:  discount.OriginalPrice,
		DeductionPrice: discount.DeductionPrice,
		PayPrice:       discount.PayPrice,
		Status:         model.OrderStatusCreate,
		OutTradeNo:     discount.OutTradeNo,
		StartTime:      time.UnixMilli(activity.StartTime),
		EndTime:        time.UnixMilli(activity.EndTime),
		BizID:          fmt.Sprintf("%s_%d_%d", agg.UserEntity.UserID, activity.ActivityID, agg.UserTakeOrderCount+1),
	}
	err := r.db.WithContext(ctx).Create(&order).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// 同一笔订单重复落库，幂等成功
		zap.S().Infof("热点商品订单已存在，幂等返回: orderId=%s", agg.OrderID)
		return nil
	}
	return err
}

// LockGroupBuyOrder 拼团锁单：队伍建团或加团和订单落库放在一个事务里
// teamId由调用方生成好传进来，已有队伍时lock_count加一，超过目标人数拒绝
func (r *TradeRepository) LockGroupBuyOrder(ctx context.Context, agg *model.GroupBuyOrderAggregate, status int32, newTeam bool) error {
	activity := agg.PayActivityEntity
	discount := agg.PayDiscountEntity
	now := time.Now()
	validEnd := now.Add(time.Duration(activity.ValidTime) * time.Minute)

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if newTeam {
			team := model.GroupBuyTeam{
				TeamID:         agg.TeamID,
				ActivityID:     activity.ActivityID,
				TargetCount:    activity.TargetCount,
				LockCount:      1,
				Status:         model.TeamStatusProgress,
				ValidStartTime: now,
				ValidEndTime:   validEnd,
			}
			if err := tx.Create(&team).Error; err != nil {
				return err
			}
		} else {
			result := tx.Model(&model.GroupBuyTeam{}).
				Where("team_id = ? AND lock_count < target_count", agg.TeamID).
				Update("lock_count", gorm.Expr("lock_count + 1"))
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return ErrTeamLockFull
			}
		}

		order := model.MarketPayOrder{
			UserID:         agg.UserEntity.UserID,
			TeamID:         agg.TeamID,
			OrderID:        agg.OrderID,
			ActivityID:     activity.ActivityID,
			GoodsID:        discount.GoodsID,
			Source:         discount.Source,
			Channel:        discount.Channel,
			OriginalPrice:  discount.OriginalPrice,
			DeductionPrice: discount.DeductionPrice,
			PayPrice:       discount.PayPrice,
			Status:         status,
			OutTradeNo:     discount.OutTradeNo,
			StartTime:      now,
			EndTime:        validEnd,
			BizID:          fmt.Sprintf("%s_%d_%d", agg.UserEntity.UserID, activity.ActivityID, agg.UserTakeOrderCount+1),
		}
		if err := tx.Create(&order).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				zap.S().Infof("拼团订单已存在，幂等返回: orderId=%s", agg.OrderID)
				return nil
			}
			return err
		}
		return nil
	})
}

// ConfirmOrder TCC确认：订单TRY翻CONFIRM，队伍完成量加一
// 队伍凑满人数时把队伍置为完成
func (r *TradeRepository) ConfirmOrder(ctx context.Context, userID, orderID string) (bool, error) {
	var confirmed bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order model.MarketPayOrder
		err := tx.Where("user_id = ? AND order_id = ?", userID, orderID).First(&order).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if order.Status == model.OrderStatusConfirm {
			confirmed = true
			return nil
		}
		if order.Status != model.OrderStatusTry {
			return nil
		}
		result := tx.Model(&model.MarketPayOrder{}).
			Where("user_id = ? AND order_id = ? AND status = ?", userID, orderID, model.OrderStatusTry).
			Update("status", model.OrderStatusConfirm)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		confirmed = true
		if order.TeamID == "" {
			return nil
		}
		if err := tx.Model(&model.GroupBuyTeam{}).
			Where("team_id = ?", order.TeamID).
			Update("complete_count", gorm.Expr("complete_count + 1")).Error; err != nil {
			return err
		}
		// 完成量追上目标人数就成团
		return tx.Model(&model.GroupBuyTeam{}).
			Where("team_id = ? AND complete_count >= target_count AND status = ?",
				order.TeamID, model.TeamStatusProgress).
			Update("status", model.TeamStatusComplete).Error
	})
	return confirmed, err
}

// CancelOrder TCC取消：订单翻CANCEL，队伍锁单量让出来
// 已确认的订单不能取消
func (r *TradeRepository) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	var cancelled bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order model.MarketPayOrder
		err := tx.Where("order_id = ?", orderID).First(&order).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		switch order.Status {
		case model.OrderStatusCancel:
			cancelled = true
			return nil
		case model.OrderStatusConfirm, model.OrderStatusComplete:
			zap.S().Warnf("订单已确认，拒绝取消: orderId=%s, status=%d", orderID, order.Status)
			return nil
		}
		result := tx.Model(&model.MarketPayOrder{}).
			Where("order_id = ? AND status NOT IN ?", orderID,
				[]int32{model.OrderStatusConfirm, model.OrderStatusComplete}).
			Update("status", model.OrderStatusCancel)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		cancelled = true
		if order.TeamID == "" {
			return nil
		}
		return tx.Model(&model.GroupBuyTeam{}).
			Where("team_id = ? AND lock_count > 0", order.TeamID).
			Update("lock_count", gorm.Expr("lock_count - 1")).Error
	})
	return cancelled, err
}

// CloseOrder 热点商品链路的关单，订单还没确认时翻CLOSE
func (r *TradeRepository) CloseOrder(ctx context.Context, orderID string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.MarketPayOrder{}).
		Where("order_id = ? AND status = ?", orderID, model.OrderStatusCreate).
		Update("status", model.OrderStatusClose)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ArchiveOrders 终态订单超过保留期后搬到归档表
func (r *TradeRepository) ArchiveOrders(ctx context.Context, before time.Time, batchSize int) (int64, error) {
	var moved int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var orders []model.MarketPayOrder
		err := tx.Where("update_time < ? AND status IN ?", before,
			[]int32{model.OrderStatusComplete, model.OrderStatusClose, model.OrderStatusCancel, model.OrderStatusConfirm}).
			Limit(batchSize).Find(&orders).Error
		if err != nil {
			return err
		}
		if len(orders) == 0 {
			return nil
		}
		archives := make([]model.MarketPayOrderArchive, 0, len(orders))
		ids := make([]int32, 0, len(orders))
		for _, o := range orders {
			archives = append(archives, model.MarketPayOrderArchive{MarketPayOrder: o})
			ids = append(ids, o.ID)
		}
		if err := tx.Create(&archives).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("id IN ?", ids).Delete(&model.MarketPayOrder{}).Error; err != nil {
			return err
		}
		moved = int64(len(orders))
		return nil
	})
	return moved, err
}
