package mq

import (
	"context"
	"fmt"

	"github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/apache/rocketmq-client-go/v2/producer"
	"go.uber.org/zap"
)

// Sender 业务侧发消息的口子，方便测试的时候替换成桩
type Sender interface {
	// Send 同步发普通消息
	Send(ctx context.Context, topic, identifier string, payload interface{}) error
	// SendDelay 发延迟消息，delayLevel是rocketmq的延迟等级
	SendDelay(ctx context.Context, topic, identifier string, payload interface{}, delayLevel int) error
	// SendTransaction 发半消息，本地事务由创建时注册的listener执行
	SendTransaction(ctx context.Context, topic, identifier string, payload interface{}) error
}

// Producer 包了一个普通producer和一个事务producer
// 事务producer在创建时绑定热点商品下单的本地事务listener
type Producer struct {
	plain rocketmq.Producer
	tx    rocketmq.TransactionProducer
}

// NewProducer 创建并启动普通生产者
// 事务listener依赖producer发延迟消息，所以事务producer拆开单独起
func NewProducer(nameServer, groupName string) (*Producer, error) {
	plain, err := rocketmq.NewProducer(
		producer.WithNameServer([]string{nameServer}),
		producer.WithGroupName(groupName),
		producer.WithRetry(2),
	)
	if err != nil {
		return nil, fmt.Errorf("创建producer失败: %w", err)
	}
	if err := plain.Start(); err != nil {
		return nil, fmt.Errorf("启动producer失败: %w", err)
	}
	return &Producer{plain: plain}, nil
}

// StartTransactionProducer 注册本地事务listener并启动事务producer
// group名称不要和普通producer一样，否则报错
func (p *Producer) StartTransactionProducer(nameServer, groupName string, listener primitive.TransactionListener) error {
	tx, err := rocketmq.NewTransactionProducer(
		listener,
		producer.WithNameServer([]string{nameServer}),
		producer.WithGroupName(groupName),
		producer.WithRetry(2),
	)
	if err != nil {
		return fmt.Errorf("创建事务producer失败: %w", err)
	}
	if err := tx.Start(); err != nil {
		return fmt.Errorf("启动事务producer失败: %w", err)
	}
	p.tx = tx
	return nil
}

func (p *Producer) Send(ctx context.Context, topic, identifier string, payload interface{}) error {
	msg, err := NewMessage(topic, identifier, payload)
	if err != nil {
		return err
	}
	result, err := p.plain.SendSync(ctx, msg)
	if err != nil {
		return fmt.Errorf("发送消息失败 topic=%s: %w", topic, err)
	}
	zap.S().Infof("发送消息成功: topic=%s, identifier=%s, msgId=%s", topic, identifier, result.MsgID)
	return nil
}

func (p *Producer) SendDelay(ctx context.Context, topic, identifier string, payload interface{}, delayLevel int) error {
	msg, err := NewMessage(topic, identifier, payload)
	if err != nil {
		return err
	}
	msg.WithDelayTimeLevel(delayLevel)
	result, err := p.plain.SendSync(ctx, msg)
	if err != nil {
		return fmt.Errorf("发送延迟消息失败 topic=%s: %w", topic, err)
	}
	zap.S().Infof("发送延迟消息成功: topic=%s, identifier=%s, level=%d, msgId=%s", topic, identifier, delayLevel, result.MsgID)
	return nil
}

func (p *Producer) SendTransaction(ctx context.Context, topic, identifier string, payload interface{}) error {
	if p.tx == nil {
		return fmt.Errorf("事务producer未初始化")
	}
	msg, err := NewMessage(topic, identifier, payload)
	if err != nil {
		return err
	}
	result, err := p.tx.SendMessageInTransaction(ctx, msg)
	if err != nil {
		return fmt.Errorf("发送事务消息失败 topic=%s: %w", topic, err)
	}
	zap.S().Infof("发送事务消息完成: topic=%s, identifier=%s, state=%v", topic, identifier, result.State)
	return nil
}

// Shutdown 停掉生产者，进程退出前调用
func (p *Producer) Shutdown() {
	if p.tx != nil {
		_ = p.tx.Shutdown()
	}
	_ = p.plain.Shutdown()
}
