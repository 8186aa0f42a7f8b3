package jobs

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"GroupBuyMarket/model"
	"GroupBuyMarket/repository"
	"GroupBuyMarket/stock"

	"github.com/go-redsync/redsync/v4"
	"go.uber.org/zap"
)

const (
	compensateLockName = "job_lock:inventory_compensate"
	// 流水落库和下单之间有个窗口期，太新的不碰
	compensateThreshold = 5 * time.Second
	// 活动查不到的时候恢复量key的保底过期时间
	defaultRecoveryTTL = 24 * time.Hour
)

// CompensateJob 补偿任务：redis扣了库存但订单一直没落库的，把库存还回去
// 订单在的留给对账任务处理，这里只回收真正丢了的扣减
type CompensateJob struct {
	ledger *stock.Ledger
	trade  *repository.TradeRepository
	rs     *redsync.Redsync
}

func NewCompensateJob(ledger *stock.Ledger, trade *repository.TradeRepository, rs *redsync.Redsync) *CompensateJob {
	return &CompensateJob{ledger: ledger, trade: trade, rs: rs}
}

func (j *CompensateJob) Run(ctx context.Context) error {
	mutex := tryLock(ctx, j.rs, compensateLockName)
	if mutex == nil {
		return nil
	}
	defer unlock(ctx, mutex, compensateLockName)

	compensated, err := j.compensateGoods(ctx)
	if err != nil {
		return err
	}
	recovered, err := j.compensateTeams(ctx)
	if err != nil {
		return err
	}
	zap.S().Infof("补偿任务完成: 商品库存回补=%d, 队伍名额恢复=%d", compensated, recovered)
	return nil
}

// compensateGoods 扫商品扣减流水，订单不存在的把库存加回去
func (j *CompensateJob) compensateGoods(ctx context.Context) (int, error) {
	keys, err := j.ledger.ScanLogKeys(ctx, "goods_stock_log:*")
	if err != nil {
		return 0, err
	}
	compensated := 0
	for _, logKey := range keys {
		stockKey := strings.Replace(logKey, "goods_stock_log:", "goods_stock:", 1)
		logs, err := j.ledger.AllLogs(ctx, logKey)
		if err != nil {
			zap.S().Errorf("补偿-读取流水失败: key=%s, err=%s", logKey, err.Error())
			continue
		}
		for identifier, entry := range logs {
			if !j.shouldCompensate(ctx, entry, identifier) {
				continue
			}
			increaseID := strings.Replace(identifier, model.IdentifierPrefixDecrease, model.IdentifierPrefixIncrease, 1)
			if _, err := j.ledger.Increase(ctx, stockKey, logKey, increaseID, entry.ChangeAsInt()); err != nil {
				if !errors.Is(err, stock.ErrAlreadyExecuted) {
					zap.S().Errorf("补偿-回补库存失败: identifier=%s, err=%s", identifier, err.Error())
					continue
				}
			}
			if err := j.ledger.RemoveLog(ctx, logKey, identifier); err != nil {
				zap.S().Errorf("补偿-删除扣减流水失败: identifier=%s, err=%s", identifier, err.Error())
				continue
			}
			zap.S().Infof("补偿-库存已回补: identifier=%s, change=%d", identifier, entry.ChangeAsInt())
			compensated++
		}
	}
	return compensated, nil
}

// compensateTeams 扫队伍流水，订单不存在的把名额记到恢复量里
func (j *CompensateJob) compensateTeams(ctx context.Context) (int, error) {
	keys, err := j.ledger.ScanLogKeys(ctx, "team_stock_log:*")
	if err != nil {
		return 0, err
	}
	recovered := 0
	for _, logKey := range keys {
		activityID, teamID, ok := parseTeamLogKey(logKey)
		if !ok {
			zap.S().Warnf("补偿-队伍流水key格式异常: key=%s", logKey)
			continue
		}
		logs, err := j.ledger.AllLogs(ctx, logKey)
		if err != nil {
			zap.S().Errorf("补偿-读取队伍流水失败: key=%s, err=%s", logKey, err.Error())
			continue
		}
		for identifier, entry := range logs {
			if entry.Action != model.StockActionDecreaseTeam {
				continue
			}
			if !j.shouldCompensate(ctx, entry, identifier) {
				continue
			}
			if _, err := j.ledger.RecoverTeamSeat(ctx, activityID, teamID, j.recoveryTTL(ctx, activityID)); err != nil {
				zap.S().Errorf("补偿-恢复队伍名额失败: identifier=%s, err=%s", identifier, err.Error())
				continue
			}
			if err := j.ledger.RemoveLog(ctx, logKey, identifier); err != nil {
				zap.S().Errorf("补偿-删除队伍流水失败: identifier=%s, err=%s", identifier, err.Error())
				continue
			}
			zap.S().Infof("补偿-队伍名额已恢复: teamId=%s, identifier=%s", teamID, identifier)
			recovered++
		}
	}
	return recovered, nil
}

// shouldCompensate 判定这条流水要不要补偿：扣减动作、超过时间窗、订单确实没落库
func (j *CompensateJob) shouldCompensate(ctx context.Context, entry *model.StockLog, identifier string) bool {
	if entry.Action == model.StockActionIncrease {
		return false
	}
	if time.Since(time.UnixMilli(entry.Timestamp)) < compensateThreshold {
		return false
	}
	orderID := entry.ExtractOrderID()
	if orderID == "" {
		zap.S().Warnf("补偿-流水标识格式异常: identifier=%s", identifier)
		return false
	}
	order, err := j.trade.QueryOrderByOrderID(ctx, orderID)
	if err != nil {
		zap.S().Errorf("补偿-查询订单失败: orderId=%s, err=%s", orderID, err.Error())
		return false
	}
	// 订单在，扣减就是有效的，交给对账任务去核对
	return order == nil
}

func (j *CompensateJob) recoveryTTL(ctx context.Context, activityID int64) time.Duration {
	activity, err := j.trade.QueryActivity(ctx, activityID)
	if err != nil || activity == nil {
		return defaultRecoveryTTL
	}
	return time.Duration(activity.ValidTime) * time.Minute
}

// parseTeamLogKey 从 team_stock_log:{activityId}:{teamId} 里拆出活动和队伍
func parseTeamLogKey(key string) (int64, string, bool) {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 {
		return 0, "", false
	}
	activityID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, "", false
	}
	return activityID, parts[2], true
}
