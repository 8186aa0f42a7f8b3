package repository

import (
	"fmt"
	"testing"

	"GroupBuyMarket/model"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// 每个测试一个独立的内存库，表结构直接从model迁移出来
func newTestDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: true},
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 内存库连接关完数据就没了，锁死一个连接
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
	return db
}
