package data

import (
	"context"
	"encoding/json"
	"fmt"

	"payment-service/internal/biz"
	"payment-service/internal/conf"

	"github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/apache/rocketmq-client-go/v2/producer"
	"github.com/go-kratos/kratos/v2/log"
)

// defaultPaymentTopic 支付完成事件默认 topic
const defaultPaymentTopic = "payment_completed_queue"

// paymentEventPublisher RocketMQ 支付完成事件发布
type paymentEventPublisher struct {
	mq    rocketmq.Producer
	topic string
	log   *log.Helper
}

// noopEventPublisher 未启用 MQ 时的空实现
type noopEventPublisher struct{}

func (noopEventPublisher) PublishPaymentCompleted(ctx context.Context, event *biz.PaymentCompletedEvent) error {
	return nil
}

// NewPaymentEventPublisher 创建支付完成事件发布器
// 未启用 RocketMQ 时返回空实现，回调处理不感知差别
func NewPaymentEventPublisher(c *conf.Bootstrap, logger log.Logger) (biz.PaymentEventPublisher, func(), error) {
	helper := log.NewHelper(logger)
	mqConf := c.Data.Rocketmq
	if mqConf == nil || !mqConf.Enabled {
		helper.Info("RocketMQ disabled, payment events will not be published")
		return noopEventPublisher{}, func() {}, nil
	}

	retry := int(mqConf.RetryTimes)
	if retry <= 0 {
		retry = 2
	}
	p, err := rocketmq.NewProducer(
		producer.WithNsResolver(primitive.NewPassthroughResolver(mqConf.NameServers)),
		producer.WithGroupName(mqConf.GroupName),
		producer.WithRetry(retry),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create rocketmq producer: %w", err)
	}
	if err := p.Start(); err != nil {
		return nil, nil, fmt.Errorf("failed to start rocketmq producer: %w", err)
	}

	topic := mqConf.Topic
	if topic == "" {
		topic = defaultPaymentTopic
	}

	cleanup := func() {
		if err := p.Shutdown(); err != nil {
			helper.Errorf("failed to shutdown rocketmq producer: %v", err)
		}
	}
	return &paymentEventPublisher{
		mq:    p,
		topic: topic,
		log:   helper,
	}, cleanup, nil
}

// PublishPaymentCompleted 同步发送支付完成事件
func (p *paymentEventPublisher) PublishPaymentCompleted(ctx context.Context, event *biz.PaymentCompletedEvent) error {
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal payment event: %w", err)
	}
	msg := primitive.NewMessage(p.topic, msgBytes)
	msg.WithKeys([]string{event.OrderNumber})

	res, err := p.mq.SendSync(ctx, msg)
	if err != nil {
		return fmt.Errorf("failed to send payment event: %w", err)
	}
	p.log.Infof("Payment event published: order_number=%s, msg_id=%s", event.OrderNumber, res.MsgID)
	return nil
}
