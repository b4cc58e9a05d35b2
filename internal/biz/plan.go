package biz

import (
	"context"
	"time"
)

// Plan 订阅套餐（支付流程中的只读参照数据）
type Plan struct {
	PlanID       string
	PlanName     string // 唯一业务键，下单时按名称查找
	DisplayName  string
	Price        float64
	Currency     string
	DurationDays int
	// 配额栏位归配额系统消费，本服务只透传
	QuotaLimit int
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PlanRepo 套餐数据层接口（定义在 biz 层）
type PlanRepo interface {
	GetPlanByName(ctx context.Context, planName string) (*Plan, error)
	GetPlanByID(ctx context.Context, planID string) (*Plan, error)
}
