package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"GroupBuyMarket/api"
	"GroupBuyMarket/global"
	"GroupBuyMarket/handler"
	"GroupBuyMarket/initialize"
	"GroupBuyMarket/jobs"
	"GroupBuyMarket/mq"
	"GroupBuyMarket/repository"
	"GroupBuyMarket/stock"

	"go.uber.org/zap"
)

func main() {
	IP := flag.String("ip", "0.0.0.0", "ip地址")
	Port := flag.Int("port", 0, "端口号")
	flag.Parse()

	// 初始化
	initialize.InitLogger()
	initialize.InitConfig()
	initialize.InitDB()
	initialize.InitRedis()

	// 命令行没传port就用配置里的
	if *Port == 0 {
		*Port = global.ServerConfig.Port
	}
	zap.S().Info("ip：", *IP)
	zap.S().Info("port：", *Port)

	// 存储层
	ledger := stock.NewLedger(global.Redis)
	tokens := stock.NewTokenStore(global.Redis, 5*time.Minute)
	hotRouter := stock.NewHotKeyRouter(global.Redis, 30*time.Second)
	skuRepo := repository.NewSkuRepository(global.DB)
	tradeRepo := repository.NewTradeRepository(global.DB)

	// mq，事务listener要能发延迟消息，所以先起普通producer
	listener := &mq.HotGoodsOrderListener{Ledger: ledger, Trade: tradeRepo}
	producer := initialize.InitProducer(listener)
	listener.Sender = producer
	defer producer.Shutdown()

	// 业务层
	rules := handler.NewRuleChain(tradeRepo)
	verifier := handler.NewBypassVerifier(ledger, skuRepo, 3*time.Second)
	hotService := handler.NewHotGoodsTradeService(ledger, tradeRepo, producer, rules, verifier)
	tccService := handler.NewGroupBuyTradeService(ledger, skuRepo, tradeRepo, producer, rules)
	tradeService := handler.NewTradeService(hotRouter, tokens, hotService, tccService)

	// 消费端
	orderConsumer := &handler.OrderConsumer{Ledger: ledger, Sku: skuRepo, Trade: tradeRepo, Sender: producer}
	consumers := initialize.InitConsumers(orderConsumer)
	defer func() {
		for _, c := range consumers {
			_ = c.Shutdown()
		}
	}()

	// 定时任务，抢到分布式锁的实例才真正执行
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()
	jobInfo := global.ServerConfig.JobInfo
	reconcileJob := jobs.NewReconcileJob(ledger, skuRepo, global.RS)
	compensateJob := jobs.NewCompensateJob(ledger, tradeRepo, global.RS)
	archiveJob := jobs.NewArchiveJob(tradeRepo, skuRepo, global.RS)
	go jobs.RunPeriodically(jobCtx, "inventory_reconcile", time.Duration(jobInfo.ReconcileInterval)*time.Second, reconcileJob.Run)
	go jobs.RunPeriodically(jobCtx, "inventory_compensate", time.Duration(jobInfo.CompensateInterval)*time.Second, compensateJob.Run)
	go jobs.RunPeriodically(jobCtx, "data_archive", time.Duration(jobInfo.ArchiveInterval)*time.Second, archiveJob.Run)

	// http服务
	tradeHandler := api.NewTradeHandler(tradeService)
	adminHandler := api.NewAdminHandler(ledger, hotRouter)
	router := api.InitRouter(tradeHandler, adminHandler)
	go func() {
		if err := router.Run(fmt.Sprintf("%s:%d", *IP, *Port)); err != nil {
			zap.S().Panicf("启动http服务失败: %s", err.Error())
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.S().Info("服务退出中")
	// 等旁路验证的定时器跑完再退
	verifier.Wait()
}
