package handler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"GroupBuyMarket/model"
	"GroupBuyMarket/mq"
	"GroupBuyMarket/repository"
	"GroupBuyMarket/stock"

	"github.com/alicebob/miniredis/v2"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// 测试用的下单环境：miniredis + 内存sqlite + 桩sender
type testEnv struct {
	ledger *stock.Ledger
	sku    *repository.SkuRepository
	trade  *repository.TradeRepository
	rules  *RuleChain
	sender *stubSender
	db     *gorm.DB
	rdb    *redis.Client
}

func newTestEnv(t *testing.T) *testEnv {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
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

	trade := repository.NewTradeRepository(db)
	return &testEnv{
		ledger: stock.NewLedger(rdb),
		sku:    repository.NewSkuRepository(db),
		trade:  trade,
		rules:  NewRuleChain(trade),
		sender: &stubSender{},
		db:     db,
		rdb:    rdb,
	}
}

// 活动生效中，目标人数和限购次数按参数给
func (e *testEnv) seedActivity(t *testing.T, target, takeLimit int32) {
	err := e.db.Create(&model.GroupBuyActivity{
		ActivityID:     100,
		ActivityName:   "测试活动",
		Target:         target,
		TakeLimitCount: takeLimit,
		ValidTime:      30,
		Status:         model.ActivityStatusEffect,
		StartTime:      time.Now().Add(-time.Hour),
		EndTime:        time.Now().Add(time.Hour),
	}).Error
	require.NoError(t, err)
}

func (e *testEnv) seedSku(t *testing.T, saleable int32) {
	err := e.db.Create(&model.SkuActivity{
		ActivityID:    100,
		GoodsID:       "goods_01",
		TotalStock:    saleable,
		SaleableStock: saleable,
	}).Error
	require.NoError(t, err)
}

func (e *testEnv) preheatStock(t *testing.T, n int64) {
	_, err := e.ledger.InitGoodsStock(context.Background(), 100, "goods_01", n)
	require.NoError(t, err)
}

func testDiscount() *model.PayDiscountEntity {
	return &model.PayDiscountEntity{
		GoodsID:        "goods_01",
		Source:         "s01",
		Channel:        "c01",
		OriginalPrice:  10000,
		DeductionPrice: 2000,
		PayPrice:       8000,
	}
}

type sentMessage struct {
	Topic      string
	Identifier string
	DelayLevel int
	Payload    interface{}
}

// stubSender 记录发出去的消息，事务消息可以接一个listener模拟本地事务回调
type stubSender struct {
	mu       sync.Mutex
	sent     []sentMessage
	failSend bool
	listener primitive.TransactionListener
}

func (s *stubSender) record(topic, identifier string, payload interface{}, delayLevel int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMessage{Topic: topic, Identifier: identifier, DelayLevel: delayLevel, Payload: payload})
}

func (s *stubSender) Send(ctx context.Context, topic, identifier string, payload interface{}) error {
	if s.failSend {
		return fmt.Errorf("模拟发送失败")
	}
	s.record(topic, identifier, payload, 0)
	return nil
}

func (s *stubSender) SendDelay(ctx context.Context, topic, identifier string, payload interface{}, delayLevel int) error {
	if s.failSend {
		return fmt.Errorf("模拟发送失败")
	}
	s.record(topic, identifier, payload, delayLevel)
	return nil
}

func (s *stubSender) SendTransaction(ctx context.Context, topic, identifier string, payload interface{}) error {
	s.record(topic, identifier, payload, 0)
	if s.listener == nil {
		return nil
	}
	msg, err := mq.NewMessage(topic, identifier, payload)
	if err != nil {
		return err
	}
	s.listener.ExecuteLocalTransaction(msg)
	return nil
}

func (s *stubSender) byTopic(topic string) []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sentMessage
	for _, m := range s.sent {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

// asMessageExt 把业务对象打包成消费端收到的消息
func asMessageExt(t *testing.T, topic, identifier string, payload interface{}) *primitive.MessageExt {
	msg, err := mq.NewMessage(topic, identifier, payload)
	require.NoError(t, err)
	return &primitive.MessageExt{Message: *msg}
}
