package biz

import (
	"context"
	"time"

	"payment-service/internal/constants"
	"payment-service/internal/metrics"

	paymentErrors "payment-service/internal/errors"

	pkgErrors "github.com/gaoyong06/go-pkg/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

// SubscriptionRecord 会员订阅记录（每个用户至多一条）
type SubscriptionRecord struct {
	SubscriptionID string
	UserID         string
	PlanID         string
	StartDate      time.Time
	EndDate        time.Time // 不变式：EndDate >= StartDate
	Status         string    // trial, active, expired, cancelled
	IsTrial        bool
	PaymentOrderID string // 最近一次付款订单的回链（非拥有）
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SubscriptionRepo 订阅数据层接口
type SubscriptionRepo interface {
	GetSubscription(ctx context.Context, userID string) (*SubscriptionRecord, error)
	SaveSubscription(ctx context.Context, sub *SubscriptionRecord) error
	// UpdateExpiredSubscriptions 批量把已过期的 active 订阅标记为 expired
	UpdateExpiredSubscriptions(ctx context.Context) (int, error)
}

// SubscriptionUseCase 订阅业务逻辑（支付对账引擎）
type SubscriptionUseCase struct {
	subRepo   SubscriptionRepo
	planRepo  PlanRepo
	orderRepo PaymentOrderRepo
	tm        Transaction
	log       *log.Helper
	metrics   *metrics.PaymentMetrics
}

// NewSubscriptionUseCase 创建订阅 UseCase
func NewSubscriptionUseCase(
	subRepo SubscriptionRepo,
	planRepo PlanRepo,
	orderRepo PaymentOrderRepo,
	tm Transaction,
	logger log.Logger,
) *SubscriptionUseCase {
	return &SubscriptionUseCase{
		subRepo:   subRepo,
		planRepo:  planRepo,
		orderRepo: orderRepo,
		tm:        tm,
		log:       log.NewHelper(logger),
		metrics:   metrics.GetMetrics(),
	}
}

// ApplyPaidOrder 把一笔已完成的付款落到用户订阅上
// 前置条件：order 已在同一事务内翻转为 completed，本方法必须与该翻转共享事务边界
func (uc *SubscriptionUseCase) ApplyPaidOrder(ctx context.Context, order *PaymentOrder) (*SubscriptionRecord, error) {
	plan, err := uc.planRepo.GetPlanByID(ctx, order.PlanID)
	if err != nil {
		return nil, pkgErrors.WrapErrorWithLang(ctx, err, paymentErrors.ErrCodePlanGetFailed)
	}
	if plan == nil {
		return nil, pkgErrors.NewBizErrorWithLang(ctx, paymentErrors.ErrCodePlanNotFound)
	}

	now := time.Now().UTC()
	// 续费以"现在"重新计算结束时间，不在原到期日上累加。
	// 这是线上既有行为，提前续费会损失剩余天数，产品确认前不改。
	endDate := now.AddDate(0, 0, plan.DurationDays)

	sub, err := uc.subRepo.GetSubscription(ctx, order.UserID)
	if err != nil {
		return nil, pkgErrors.WrapErrorWithLang(ctx, err, paymentErrors.ErrCodeSubscriptionApplyFailed)
	}

	if sub == nil {
		sub = &SubscriptionRecord{
			SubscriptionID: uuid.New().String(),
			UserID:         order.UserID,
			CreatedAt:      now,
		}
	}
	sub.PlanID = order.PlanID
	sub.StartDate = now
	sub.EndDate = endDate
	sub.Status = constants.SubscriptionStatusActive
	sub.IsTrial = false
	sub.PaymentOrderID = order.OrderID
	sub.UpdatedAt = now

	if err := uc.subRepo.SaveSubscription(ctx, sub); err != nil {
		if uc.metrics != nil {
			uc.metrics.SubscriptionApplyTotal.WithLabelValues(constants.ResultFailed).Inc()
		}
		return nil, pkgErrors.WrapErrorWithLang(ctx, err, paymentErrors.ErrCodeSubscriptionSaveFailed)
	}

	// 入账标记与订阅落库同事务：事务回滚时标记一并消失，对账扫描会重试
	if err := uc.orderRepo.MarkSubscriptionApplied(ctx, order.OrderNumber); err != nil {
		if uc.metrics != nil {
			uc.metrics.SubscriptionApplyTotal.WithLabelValues(constants.ResultFailed).Inc()
		}
		return nil, pkgErrors.WrapErrorWithLang(ctx, err, paymentErrors.ErrCodeSubscriptionApplyFailed)
	}

	if uc.metrics != nil {
		uc.metrics.SubscriptionApplyTotal.WithLabelValues(constants.ResultSuccess).Inc()
	}
	uc.log.Infof("Subscription applied: user_id=%s, plan=%s, end_date=%s, order=%s",
		order.UserID, plan.PlanName, endDate.Format(time.RFC3339), order.OrderNumber)
	return sub, nil
}

// GetSubscription 获取用户当前订阅
// 到期但尚未被定时任务扫到的记录按 expired 返回，不回写数据库
func (uc *SubscriptionUseCase) GetSubscription(ctx context.Context, userID string) (*SubscriptionRecord, error) {
	sub, err := uc.subRepo.GetSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub != nil && sub.Status == constants.SubscriptionStatusActive && sub.EndDate.Before(time.Now().UTC()) {
		sub.Status = constants.SubscriptionStatusExpired
	}
	return sub, nil
}

// UpdateExpiredSubscriptions 批量标记过期订阅（定时任务调用）
func (uc *SubscriptionUseCase) UpdateExpiredSubscriptions(ctx context.Context) (int, error) {
	count, err := uc.subRepo.UpdateExpiredSubscriptions(ctx)
	if err != nil {
		uc.log.Errorf("UpdateExpiredSubscriptions failed: %v", err)
		return 0, err
	}
	if count > 0 && uc.metrics != nil {
		uc.metrics.SubscriptionExpired.Add(float64(count))
	}
	uc.log.Infof("Marked %d subscriptions expired", count)
	return count, nil
}

// ReconcileUnappliedOrders 对账补偿扫描（定时任务调用）
//
// 兜底"订单已 completed 但订阅落库失败"的缺口：绿界收到 1|OK 后不会再重送，
// 崩溃留下的中间态只能靠这里找出缺少入账标记的已完成订单重放 ApplyPaidOrder
func (uc *SubscriptionUseCase) ReconcileUnappliedOrders(ctx context.Context, limit int) (int, error) {
	orders, err := uc.orderRepo.ListCompletedUnapplied(ctx, limit)
	if err != nil {
		uc.log.Errorf("ListCompletedUnapplied failed: %v", err)
		return 0, err
	}

	repaired := 0
	for _, order := range orders {
		err := uc.tm.Exec(ctx, func(ctx context.Context) error {
			_, err := uc.ApplyPaidOrder(ctx, order)
			return err
		})
		if err != nil {
			uc.log.Errorf("Reconcile failed: order_number=%s, error=%v", order.OrderNumber, err)
			if uc.metrics != nil {
				uc.metrics.ReconcileSweepTotal.WithLabelValues(constants.ResultFailed).Inc()
			}
			continue
		}
		repaired++
		if uc.metrics != nil {
			uc.metrics.ReconcileSweepTotal.WithLabelValues(constants.ResultSuccess).Inc()
		}
		uc.log.Warnf("Reconciled orphan completed order: order_number=%s, user_id=%s", order.OrderNumber, order.UserID)
	}
	return repaired, nil
}
