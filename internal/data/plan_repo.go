package data

import (
	"context"
	"errors"
	"fmt"

	"payment-service/internal/biz"
	"payment-service/internal/data/model"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// planRepo 订阅套餐数据访问
type planRepo struct {
	data *Data
	log  *log.Helper
}

// NewPlanRepo 创建套餐 repo（返回 biz.PlanRepo 接口）
func NewPlanRepo(data *Data, logger log.Logger) biz.PlanRepo {
	return &planRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// GetPlanByName 按套餐名称查询，不存在返回 nil
func (r *planRepo) GetPlanByName(ctx context.Context, planName string) (*biz.Plan, error) {
	var m model.SubscriptionPlan
	if err := r.data.DB(ctx).Where("plan_name = ?", planName).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.log.Errorf("GetPlanByName failed: plan_name=%s, error=%v", planName, err)
		return nil, fmt.Errorf("failed to query subscription plan: %w", err)
	}
	return toBizPlan(&m), nil
}

// GetPlanByID 按套餐ID查询，不存在返回 nil
func (r *planRepo) GetPlanByID(ctx context.Context, planID string) (*biz.Plan, error) {
	var m model.SubscriptionPlan
	if err := r.data.DB(ctx).Where("plan_id = ?", planID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.log.Errorf("GetPlanByID failed: plan_id=%s, error=%v", planID, err)
		return nil, fmt.Errorf("failed to query subscription plan: %w", err)
	}
	return toBizPlan(&m), nil
}

func toBizPlan(m *model.SubscriptionPlan) *biz.Plan {
	return &biz.Plan{
		PlanID:       m.PlanID,
		PlanName:     m.PlanName,
		DisplayName:  m.DisplayName,
		Price:        m.Price,
		Currency:     m.Currency,
		DurationDays: m.DurationDays,
		QuotaLimit:   int(m.QuotaLimit),
		IsActive:     m.IsActive,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}
