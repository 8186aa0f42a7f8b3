package handler

import (
	"context"
	"sync"
	"time"

	"GroupBuyMarket/repository"
	"GroupBuyMarket/stock"

	"go.uber.org/zap"
)

// BypassVerifier 旁路验证：下单成功几秒后核对redis流水和数据库流水
// 对得上就把redis流水删掉，让对账任务在正常情况下没活可干
// 对不上只告警不修数据，数量不一致说明有bug，不是并发问题
type BypassVerifier struct {
	ledger *stock.Ledger
	sku    *repository.SkuRepository
	delay  time.Duration

	wg sync.WaitGroup
}

func NewBypassVerifier(ledger *stock.Ledger, sku *repository.SkuRepository, delay time.Duration) *BypassVerifier {
	return &BypassVerifier{ledger: ledger, sku: sku, delay: delay}
}

// Schedule 延迟触发一次核对
func (v *BypassVerifier) Schedule(activityID int64, goodsID, identifier, orderID string) {
	v.wg.Add(1)
	time.AfterFunc(v.delay, func() {
		defer v.wg.Done()
		v.verify(activityID, goodsID, identifier, orderID)
	})
}

// Wait 等在途的核对跑完，进程退出前调用
func (v *BypassVerifier) Wait() {
	v.wg.Wait()
}

func (v *BypassVerifier) verify(activityID int64, goodsID, identifier, orderID string) {
	ctx := context.Background()
	logKey := stock.GoodsStockLogKey(activityID, goodsID)

	entry, err := v.ledger.GetLog(ctx, logKey, identifier)
	if err != nil {
		zap.S().Errorf("旁路验证-查询redis流水失败: orderId=%s, err=%s", orderID, err.Error())
		return
	}
	if entry == nil {
		// 已经被对账或补偿处理掉了
		return
	}

	dbLog, err := v.sku.QueryDeductionLog(ctx, orderID)
	if err != nil {
		zap.S().Errorf("旁路验证-查询数据库流水失败: orderId=%s, err=%s", orderID, err.Error())
		return
	}
	if dbLog == nil {
		// 数据库流水还没落，消费端可能在排队，留给对账任务处理
		zap.S().Infof("旁路验证-数据库流水未落库，跳过: orderId=%s", orderID)
		return
	}

	if int64(dbLog.Quantity) == entry.ChangeAsInt() {
		if err := v.ledger.RemoveLog(ctx, logKey, identifier); err != nil {
			zap.S().Errorf("旁路验证-删除redis流水失败: orderId=%s, err=%s", orderID, err.Error())
			return
		}
		zap.S().Infof("旁路验证-核对通过，流水已清理: orderId=%s", orderID)
		return
	}
	// 数量对不上只告警，留给人看
	zap.S().Errorf("旁路验证-数量不一致告警: orderId=%s, redis扣减=%d, 数据库扣减=%d",
		orderID, entry.ChangeAsInt(), dbLog.Quantity)
}
