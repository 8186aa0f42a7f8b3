package jobs

import (
	"context"
	"fmt"
	"testing"
	"time"

	"GroupBuyMarket/model"
	"GroupBuyMarket/repository"
	"GroupBuyMarket/stock"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredislib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

type jobEnv struct {
	ledger *stock.Ledger
	sku    *repository.SkuRepository
	trade  *repository.TradeRepository
	rs     *redsync.Redsync
	db     *gorm.DB
	rdb    *goredislib.Client
}

func newJobEnv(t *testing.T) *jobEnv {
	mr := miniredis.RunT(t)
	rdb := goredislib.NewClient(&goredislib.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: true},
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(
		&model.GroupBuyActivity{},
		&model.MarketPayOrder{},
		&model.MarketPayOrderArchive{},
		&model.GroupBuyTeam{},
		&model.SkuActivity{},
		&model.InventoryDeductionLog{},
		&model.InventoryDeductionLogArchive{},
	))

	return &jobEnv{
		ledger: stock.NewLedger(rdb),
		sku:    repository.NewSkuRepository(db),
		trade:  repository.NewTradeRepository(db),
		rs:     redsync.New(goredis.NewPool(rdb)),
		db:     db,
		rdb:    rdb,
	}
}

// 直接往流水hash里塞一条指定时间戳的记录，模拟过了时间窗的扣减
func (e *jobEnv) seedJournal(t *testing.T, logKey, identifier, action string, change int64, age time.Duration) {
	ts := time.Now().Add(-age).UnixMilli()
	entry := fmt.Sprintf(`{"action":"%s","from":10,"to":%d,"change":%d,"by":"%s","timestamp":%d}`,
		action, 10-change, change, identifier, ts)
	require.NoError(t, e.rdb.HSet(context.Background(), logKey, identifier, entry).Err())
}

func (e *jobEnv) seedSku(t *testing.T, saleable, frozen int32) {
	require.NoError(t, e.db.Create(&model.SkuActivity{
		ActivityID:    100,
		GoodsID:       "goods_01",
		TotalStock:    saleable,
		SaleableStock: saleable,
		FrozenStock:   frozen,
	}).Error)
}

func (e *jobEnv) seedDeductionLog(t *testing.T, orderID string, quantity int32, status string) {
	require.NoError(t, e.db.Create(&model.InventoryDeductionLog{
		OrderID:    orderID,
		UserID:     "u001",
		ActivityID: 100,
		GoodsID:    "goods_01",
		Quantity:   quantity,
		Status:     status,
	}).Error)
}

func (e *jobEnv) seedOrder(t *testing.T, userID, orderID string, status int32) {
	require.NoError(t, e.db.Create(&model.MarketPayOrder{
		UserID:     userID,
		OrderID:    orderID,
		ActivityID: 100,
		GoodsID:    "goods_01",
		Status:     status,
		StartTime:  time.Now(),
		EndTime:    time.Now().Add(time.Hour),
		BizID:      fmt.Sprintf("%s_100_1", userID),
	}).Error)
}
