package mq

import (
	"encoding/json"

	"github.com/apache/rocketmq-client-go/v2/primitive"
)

// 消息topic
const (
	TopicHotGoodsOrderCreate    = "hot_goods_order_create"
	TopicHotGoodsOrderPreCancel = "hot_goods_order_pre_cancel"
	TopicHotGoodsOrderCancel    = "hot_goods_order_cancel"
	TopicGroupBuyOrderCancel    = "group_buy_order_cancel"
	TopicGroupBuyOrderPreCancel = "group_buy_order_pre_cancel"
)

// rocketmq的延迟等级：1s 5s 10s 30s 1m 2m ...
const (
	DelayLevel10s = 3
	DelayLevel30s = 4
	DelayLevel1m  = 5
)

// MessageBody 消息的统一信封，identifier用于消费端幂等
type MessageBody struct {
	Identifier string `json:"identifier"`
	Body       string `json:"body"`
}

// NewMessage 把业务对象包进信封，组装成rocketmq消息
func NewMessage(topic, identifier string, payload interface{}) (*primitive.Message, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	envelope, err := json.Marshal(MessageBody{
		Identifier: identifier,
		Body:       string(body),
	})
	if err != nil {
		return nil, err
	}
	msg := primitive.NewMessage(topic, envelope)
	msg.WithKeys([]string{identifier})
	return msg, nil
}

// DecodeMessage 从信封里解出业务对象
func DecodeMessage(raw []byte, out interface{}) (string, error) {
	var envelope MessageBody
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return "", err
	}
	if err := json.Unmarshal([]byte(envelope.Body), out); err != nil {
		return "", err
	}
	return envelope.Identifier, nil
}
