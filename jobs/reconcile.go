package jobs

import (
	"context"
	"time"

	"GroupBuyMarket/model"
	"GroupBuyMarket/repository"
	"GroupBuyMarket/stock"

	"github.com/go-redsync/redsync/v4"
	"go.uber.org/zap"
)

// 对账结果
const (
	ReconcileResultReconciled   = "RECONCILED"   // 对平，redis流水已删
	ReconcileResultMissingDB    = "MISSING_DB"   // 数据库流水缺失，告警等人工或补偿处理
	ReconcileResultInconsistent = "INCONSISTENT" // 数量对不上，告警不自动修
	ReconcileResultSkipped      = "SKIPPED"      // 太新或者不是扣减流水，下轮再看
)

const (
	reconcileLockName = "job_lock:inventory_reconcile"
	// 太新的流水先跳过，别和旁路验证抢活
	reconcileGrace = 3 * time.Second
)

// ReconcileJob 对账任务：拿redis扣减流水和数据库扣减流水对数
// 只裁决redis流水能不能删，从不改数据库
type ReconcileJob struct {
	ledger *stock.Ledger
	sku    *repository.SkuRepository
	rs     *redsync.Redsync
}

func NewReconcileJob(ledger *stock.Ledger, sku *repository.SkuRepository, rs *redsync.Redsync) *ReconcileJob {
	return &ReconcileJob{ledger: ledger, sku: sku, rs: rs}
}

func (j *ReconcileJob) Run(ctx context.Context) error {
	mutex := tryLock(ctx, j.rs, reconcileLockName)
	if mutex == nil {
		return nil
	}
	defer unlock(ctx, mutex, reconcileLockName)

	keys, err := j.ledger.ScanLogKeys(ctx, "goods_stock_log:*")
	if err != nil {
		return err
	}
	stats := map[string]int{}
	for _, logKey := range keys {
		logs, err := j.ledger.AllLogs(ctx, logKey)
		if err != nil {
			zap.S().Errorf("对账-读取流水失败: key=%s, err=%s", logKey, err.Error())
			continue
		}
		for identifier, entry := range logs {
			result := j.reconcileEntry(ctx, logKey, identifier, entry)
			stats[result]++
		}
	}
	zap.S().Infof("对账任务完成: reconciled=%d, missing_db=%d, inconsistent=%d, skipped=%d",
		stats[ReconcileResultReconciled], stats[ReconcileResultMissingDB],
		stats[ReconcileResultInconsistent], stats[ReconcileResultSkipped])
	return nil
}

func (j *ReconcileJob) reconcileEntry(ctx context.Context, logKey, identifier string, entry *model.StockLog) string {
	// 回滚流水和队伍流水不参与对账
	if entry.Action != model.StockActionDecrease {
		return ReconcileResultSkipped
	}
	if time.Since(time.UnixMilli(entry.Timestamp)) < reconcileGrace {
		return ReconcileResultSkipped
	}
	orderID := entry.ExtractOrderID()
	if orderID == "" {
		zap.S().Warnf("对账-流水标识格式异常: key=%s, identifier=%s", logKey, identifier)
		return ReconcileResultSkipped
	}

	dbLog, err := j.sku.QueryDeductionLog(ctx, orderID)
	if err != nil {
		zap.S().Errorf("对账-查询数据库流水失败: orderId=%s, err=%s", orderID, err.Error())
		return ReconcileResultSkipped
	}
	if dbLog == nil {
		// 数据库没这笔账，可能订单真的失败了，留给补偿任务回收
		zap.S().Errorf("对账告警-数据库流水缺失: orderId=%s, identifier=%s", orderID, identifier)
		return ReconcileResultMissingDB
	}

	if int64(dbLog.Quantity) != entry.ChangeAsInt() {
		// 数量不一致是逻辑bug不是并发问题，绝不自动修，也不删流水
		zap.S().Errorf("对账告警-数量不一致: orderId=%s, redis扣减=%d, 数据库扣减=%d",
			orderID, entry.ChangeAsInt(), dbLog.Quantity)
		return ReconcileResultInconsistent
	}

	// 冻结量核验：流水还在SUCCESS说明冻结没释放，库存表的冻结量不该小于它
	if dbLog.Status == model.DeductionStatusSuccess {
		sku, err := j.sku.QuerySkuActivity(ctx, dbLog.ActivityID, dbLog.GoodsID)
		if err != nil {
			zap.S().Errorf("对账-查询库存失败: orderId=%s, err=%s", orderID, err.Error())
			return ReconcileResultSkipped
		}
		if int64(sku.FrozenStock) < int64(dbLog.Quantity) {
			zap.S().Errorf("对账告警-冻结量对不上: orderId=%s, frozen=%d, 需要=%d",
				orderID, sku.FrozenStock, dbLog.Quantity)
			return ReconcileResultInconsistent
		}
	}

	if err := j.ledger.RemoveLog(ctx, logKey, identifier); err != nil {
		zap.S().Errorf("对账-删除流水失败: orderId=%s, err=%s", orderID, err.Error())
		return ReconcileResultSkipped
	}
	return ReconcileResultReconciled
}
