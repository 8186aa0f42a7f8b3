package repository

import (
	"context"
	"testing"
	"time"

	"GroupBuyMarket/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedSku(t *testing.T, repo *SkuRepository, saleable, frozen int32) {
	err := repo.db.Create(&model.SkuActivity{
		ActivityID:    100,
		GoodsID:       "goods_01",
		TotalStock:    saleable,
		SaleableStock: saleable,
		FrozenStock:   frozen,
	}).Error
	require.NoError(t, err)
}

func TestDecreaseSkuStockFreeze(t *testing.T) {
	repo := NewSkuRepository(newTestDB(t))
	seedSku(t, repo, 10, 0)
	ctx := context.Background()

	ok, err := repo.DecreaseSkuStock(ctx, 100, "goods_01", 1, "o001", "u001")
	require.NoError(t, err)
	assert.True(t, ok)

	// Try只冻结不减可售
	sku, err := repo.QuerySkuActivity(ctx, 100, "goods_01")
	require.NoError(t, err)
	assert.Equal(t, int32(10), sku.SaleableStock)
	assert.Equal(t, int32(1), sku.FrozenStock)

	log, err := repo.QueryDeductionLog(ctx, "o001")
	require.NoError(t, err)
	require.NotNil(t, log)
	assert.Equal(t, model.DeductionStatusSuccess, log.Status)
}

func TestDecreaseSkuStockIdempotent(t *testing.T) {
	repo := NewSkuRepository(newTestDB(t))
	seedSku(t, repo, 10, 0)
	ctx := context.Background()

	ok, err := repo.DecreaseSkuStock(ctx, 100, "goods_01", 1, "o001", "u001")
	require.NoError(t, err)
	require.True(t, ok)

	// 同一个订单重复冻结不能多扣
	ok, err = repo.DecreaseSkuStock(ctx, 100, "goods_01", 1, "o001", "u001")
	require.NoError(t, err)
	assert.True(t, ok)

	sku, err := repo.QuerySkuActivity(ctx, 100, "goods_01")
	require.NoError(t, err)
	assert.Equal(t, int32(1), sku.FrozenStock)
}

func TestDecreaseSkuStockInsufficient(t *testing.T) {
	repo := NewSkuRepository(newTestDB(t))
	seedSku(t, repo, 5, 4)
	ctx := context.Background()

	// 可售减冻结只剩1，要2就不给
	ok, err := repo.DecreaseSkuStock(ctx, 100, "goods_01", 2, "o001", "u001")
	require.NoError(t, err)
	assert.False(t, ok)

	log, err := repo.QueryDeductionLog(ctx, "o001")
	require.NoError(t, err)
	assert.Nil(t, log)
}

func TestDecreaseSkuStockNotFound(t *testing.T) {
	repo := NewSkuRepository(newTestDB(t))
	ctx := context.Background()

	_, err := repo.DecreaseSkuStock(ctx, 100, "nope", 1, "o001", "u001")
	assert.ErrorIs(t, err, ErrSkuNotFound)
}

func TestConfirmDecreaseInventory(t *testing.T) {
	repo := NewSkuRepository(newTestDB(t))
	seedSku(t, repo, 10, 0)
	ctx := context.Background()

	ok, err := repo.DecreaseSkuStock(ctx, 100, "goods_01", 2, "o001", "u001")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.ConfirmDecreaseInventory(ctx, 100, "goods_01", 2, "o001")
	require.NoError(t, err)
	assert.True(t, ok)

	// 可售和冻结一起减
	sku, err := repo.QuerySkuActivity(ctx, 100, "goods_01")
	require.NoError(t, err)
	assert.Equal(t, int32(8), sku.SaleableStock)
	assert.Equal(t, int32(0), sku.FrozenStock)

	log, err := repo.QueryDeductionLog(ctx, "o001")
	require.NoError(t, err)
	assert.Equal(t, model.DeductionStatusConfirm, log.Status)

	// 重复确认不能再扣
	ok, err = repo.ConfirmDecreaseInventory(ctx, 100, "goods_01", 2, "o001")
	require.NoError(t, err)
	assert.True(t, ok)
	sku, err = repo.QuerySkuActivity(ctx, 100, "goods_01")
	require.NoError(t, err)
	assert.Equal(t, int32(8), sku.SaleableStock)
}

func TestConfirmWithoutTry(t *testing.T) {
	repo := NewSkuRepository(newTestDB(t))
	seedSku(t, repo, 10, 0)
	ctx := context.Background()

	// 空确认：流水不存在时不动库存
	ok, err := repo.ConfirmDecreaseInventory(ctx, 100, "goods_01", 2, "o001")
	require.NoError(t, err)
	assert.False(t, ok)

	sku, err := repo.QuerySkuActivity(ctx, 100, "goods_01")
	require.NoError(t, err)
	assert.Equal(t, int32(10), sku.SaleableStock)
}

func TestCancelDecreaseInventory(t *testing.T) {
	repo := NewSkuRepository(newTestDB(t))
	seedSku(t, repo, 10, 0)
	ctx := context.Background()

	ok, err := repo.DecreaseSkuStock(ctx, 100, "goods_01", 2, "o001", "u001")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.CancelDecreaseInventory(ctx, 100, "goods_01", 2, "o001")
	require.NoError(t, err)
	assert.True(t, ok)

	// 冻结释放，可售不动
	sku, err := repo.QuerySkuActivity(ctx, 100, "goods_01")
	require.NoError(t, err)
	assert.Equal(t, int32(10), sku.SaleableStock)
	assert.Equal(t, int32(0), sku.FrozenStock)

	log, err := repo.QueryDeductionLog(ctx, "o001")
	require.NoError(t, err)
	assert.Equal(t, model.DeductionStatusCancel, log.Status)
}

// 空回滚：Try没成功时Cancel要直接放行
func TestCancelWithoutTry(t *testing.T) {
	repo := NewSkuRepository(newTestDB(t))
	seedSku(t, repo, 10, 0)
	ctx := context.Background()

	ok, err := repo.CancelDecreaseInventory(ctx, 100, "goods_01", 2, "o001")
	require.NoError(t, err)
	assert.True(t, ok)
}

// 已确认的流水不允许再取消
func TestCancelAfterConfirm(t *testing.T) {
	repo := NewSkuRepository(newTestDB(t))
	seedSku(t, repo, 10, 0)
	ctx := context.Background()

	_, err := repo.DecreaseSkuStock(ctx, 100, "goods_01", 2, "o001", "u001")
	require.NoError(t, err)
	_, err = repo.ConfirmDecreaseInventory(ctx, 100, "goods_01", 2, "o001")
	require.NoError(t, err)

	ok, err := repo.CancelDecreaseInventory(ctx, 100, "goods_01", 2, "o001")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArchiveDeductionLogs(t *testing.T) {
	repo := NewSkuRepository(newTestDB(t))
	seedSku(t, repo, 10, 0)
	ctx := context.Background()

	for _, orderID := range []string{"o001", "o002"} {
		ok, err := repo.DecreaseSkuStock(ctx, 100, "goods_01", 1, orderID, "u001")
		require.NoError(t, err)
		require.True(t, ok)
	}

	// 还没过保留期，什么都不归档
	moved, err := repo.ArchiveDeductionLogs(ctx, time.Now().Add(-time.Hour), 100)
	require.NoError(t, err)
	assert.Equal(t, int64(0), moved)

	moved, err = repo.ArchiveDeductionLogs(ctx, time.Now().Add(time.Hour), 100)
	require.NoError(t, err)
	assert.Equal(t, int64(2), moved)

	// 原表清空，归档表有数据
	log, err := repo.QueryDeductionLog(ctx, "o001")
	require.NoError(t, err)
	assert.Nil(t, log)
	var archived int64
	require.NoError(t, repo.db.Model(&model.InventoryDeductionLogArchive{}).Count(&archived).Error)
	assert.Equal(t, int64(2), archived)
}
