package jobs

import (
	"context"
	"time"

	"GroupBuyMarket/repository"

	"github.com/go-redsync/redsync/v4"
	"go.uber.org/zap"
)

const (
	archiveLockName = "job_lock:data_archive"
	// 订单表留90天，扣减流水表留30天
	orderRetention = 90 * 24 * time.Hour
	logRetention   = 30 * 24 * time.Hour
	archiveBatch   = 1000
	// 一轮最多搬的批次数，别让归档任务长时间占着锁
	archiveMaxBatches = 50
)

// ArchiveJob 归档任务：把终态的老订单和老扣减流水搬到归档表
type ArchiveJob struct {
	trade *repository.TradeRepository
	sku   *repository.SkuRepository
	rs    *redsync.Redsync
}

func NewArchiveJob(trade *repository.TradeRepository, sku *repository.SkuRepository, rs *redsync.Redsync) *ArchiveJob {
	return &ArchiveJob{trade: trade, sku: sku, rs: rs}
}

func (j *ArchiveJob) Run(ctx context.Context) error {
	mutex := tryLock(ctx, j.rs, archiveLockName)
	if mutex == nil {
		return nil
	}
	defer unlock(ctx, mutex, archiveLockName)

	var orderTotal, logTotal int64
	for i := 0; i < archiveMaxBatches; i++ {
		moved, err := j.trade.ArchiveOrders(ctx, time.Now().Add(-orderRetention), archiveBatch)
		if err != nil {
			return err
		}
		orderTotal += moved
		if moved < archiveBatch {
			break
		}
	}
	for i := 0; i < archiveMaxBatches; i++ {
		moved, err := j.sku.ArchiveDeductionLogs(ctx, time.Now().Add(-logRetention), archiveBatch)
		if err != nil {
			return err
		}
		logTotal += moved
		if moved < archiveBatch {
			break
		}
	}
	zap.S().Infof("归档任务完成: 订单归档=%d, 扣减流水归档=%d", orderTotal, logTotal)
	return nil
}
