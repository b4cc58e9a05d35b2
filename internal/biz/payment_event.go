package biz

import (
	"context"
	"time"
)

// PaymentCompletedEvent 支付完成事件
// 发布到 RocketMQ，由配额、站内信等下游系统消费
type PaymentCompletedEvent struct {
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	UserID      string    `json:"user_id"`
	PlanID      string    `json:"plan_id"`
	Amount      float64   `json:"amount"`
	Currency    string    `json:"currency"`
	TradeNo     string    `json:"trade_no"`
	PaidAt      time.Time `json:"paid_at"`
}

// PaymentEventPublisher 支付完成事件发布接口
// 发布失败只记录日志，绝不影响回调应答
type PaymentEventPublisher interface {
	PublishPaymentCompleted(ctx context.Context, event *PaymentCompletedEvent) error
}
