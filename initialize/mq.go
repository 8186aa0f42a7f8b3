package initialize

import (
	"context"
	"fmt"

	"GroupBuyMarket/global"
	"GroupBuyMarket/handler"
	"GroupBuyMarket/mq"

	"github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/consumer"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"go.uber.org/zap"
)

// InitProducer 启动普通生产者和热点商品的事务生产者
// 每个producer和consumer的group名称不要一样，否则报错
func InitProducer(listener primitive.TransactionListener) *mq.Producer {
	nameServer := fmt.Sprintf("%s:%d", global.ServerConfig.RocketmqInfo.Host, global.ServerConfig.RocketmqInfo.Port)
	groupName := global.ServerConfig.RocketmqInfo.GroupName

	producer, err := mq.NewProducer(nameServer, groupName+"_producer")
	if err != nil {
		zap.S().Panicf("初始化producer失败: %s", err.Error())
	}
	if err := producer.StartTransactionProducer(nameServer, groupName+"_tx_producer", listener); err != nil {
		zap.S().Panicf("初始化事务producer失败: %s", err.Error())
	}
	return producer
}

// InitConsumers 按topic起推模式消费者，一个topic一个消费组
// 返回的consumer进程退出前要逐个Shutdown
func InitConsumers(oc *handler.OrderConsumer) []rocketmq.PushConsumer {
	nameServer := fmt.Sprintf("%s:%d", global.ServerConfig.RocketmqInfo.Host, global.ServerConfig.RocketmqInfo.Port)
	groupName := global.ServerConfig.RocketmqInfo.GroupName

	subscriptions := []struct {
		topic   string
		handler func(context.Context, ...*primitive.MessageExt) (consumer.ConsumeResult, error)
	}{
		{mq.TopicHotGoodsOrderCreate, oc.HandleHotGoodsOrderCreate},
		{mq.TopicHotGoodsOrderPreCancel, oc.HandleHotGoodsOrderPreCancel},
		{mq.TopicHotGoodsOrderCancel, oc.HandleHotGoodsOrderCancel},
		{mq.TopicGroupBuyOrderCancel, oc.HandleGroupBuyOrderCancel},
		{mq.TopicGroupBuyOrderPreCancel, oc.HandleGroupBuyOrderPreCancel},
	}

	consumers := make([]rocketmq.PushConsumer, 0, len(subscriptions))
	for _, sub := range subscriptions {
		c, err := rocketmq.NewPushConsumer(
			consumer.WithNameServer([]string{nameServer}),
			consumer.WithGroupName(fmt.Sprintf("%s_%s", groupName, sub.topic)),
			consumer.WithConsumerModel(consumer.Clustering),
		)
		if err != nil {
			zap.S().Panicf("创建consumer失败 topic=%s: %s", sub.topic, err.Error())
		}
		if err := c.Subscribe(sub.topic, consumer.MessageSelector{}, sub.handler); err != nil {
			zap.S().Panicf("订阅topic失败 topic=%s: %s", sub.topic, err.Error())
		}
		if err := c.Start(); err != nil {
			zap.S().Panicf("启动consumer失败 topic=%s: %s", sub.topic, err.Error())
		}
		zap.S().Infof("consumer已启动: topic=%s", sub.topic)
		consumers = append(consumers, c)
	}
	return consumers
}
