package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"payment-service/internal/biz"
	"payment-service/internal/constants"
	"payment-service/internal/data/model"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// subscriptionRepo 订阅数据访问
type subscriptionRepo struct {
	data *Data
	log  *log.Helper
}

// NewSubscriptionRepo 创建订阅 repo（返回 biz.SubscriptionRepo 接口）
func NewSubscriptionRepo(data *Data, logger log.Logger) biz.SubscriptionRepo {
	return &subscriptionRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// cachedSubscription Redis 缓存结构
type cachedSubscription struct {
	SubscriptionID string    `json:"subscription_id"`
	UserID         string    `json:"user_id"`
	PlanID         string    `json:"plan_id"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	Status         string    `json:"status"`
	IsTrial        bool      `json:"is_trial"`
	PaymentOrderID string    `json:"payment_order_id"`
}

// GetSubscription 获取用户订阅，不存在返回 nil
func (r *subscriptionRepo) GetSubscription(ctx context.Context, userID string) (*biz.SubscriptionRecord, error) {
	if userID == "" {
		return nil, fmt.Errorf("userID is required")
	}

	// 事务内必须读库，缓存只服务平时的状态查询
	if _, inTx := ctx.Value(contextTxKey{}).(*gorm.DB); !inTx {
		if sub, ok := r.getFromCache(ctx, userID); ok {
			return sub, nil
		}
	}

	var m model.MemberSubscription
	if err := r.data.DB(ctx).Where("user_id = ?", userID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.log.Errorf("GetSubscription failed: user_id=%s, error=%v", userID, err)
		return nil, fmt.Errorf("failed to query subscription: %w", err)
	}

	sub := toBizSubscription(&m)
	r.setCache(sub)
	return sub, nil
}

// SaveSubscription 插入或按主键更新订阅记录，并让缓存失效
func (r *subscriptionRepo) SaveSubscription(ctx context.Context, sub *biz.SubscriptionRecord) error {
	m := &model.MemberSubscription{
		SubscriptionID: sub.SubscriptionID,
		UserID:         sub.UserID,
		PlanID:         sub.PlanID,
		StartDate:      sub.StartDate,
		EndDate:        sub.EndDate,
		Status:         sub.Status,
		IsTrial:        sub.IsTrial,
		PaymentOrderID: sub.PaymentOrderID,
	}
	err := r.data.DB(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "subscription_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"plan_id", "start_date", "end_date", "status", "is_trial", "payment_order_id",
		}),
	}).Create(m).Error
	if err != nil {
		r.log.Errorf("SaveSubscription failed: user_id=%s, error=%v", sub.UserID, err)
		return fmt.Errorf("failed to save subscription: %w", err)
	}

	r.invalidateCache(ctx, sub.UserID)
	return nil
}

// UpdateExpiredSubscriptions 批量把已过期的 active 订阅标记为 expired。
// 查询与更新共用同一个事务和同一个截止时刻，两步之间不会漏掉新过期的行
func (r *subscriptionRepo) UpdateExpiredSubscriptions(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	var expired []model.MemberSubscription
	var affected int64

	err := r.data.Exec(ctx, func(ctx context.Context) error {
		if err := r.data.DB(ctx).
			Where("status = ? AND end_date < ?", constants.SubscriptionStatusActive, now).
			Find(&expired).Error; err != nil {
			return fmt.Errorf("failed to query expired subscriptions: %w", err)
		}
		if len(expired) == 0 {
			return nil
		}

		res := r.data.DB(ctx).Model(&model.MemberSubscription{}).
			Where("status = ? AND end_date < ?", constants.SubscriptionStatusActive, now).
			Update("status", constants.SubscriptionStatusExpired)
		if res.Error != nil {
			return fmt.Errorf("failed to update expired subscriptions: %w", res.Error)
		}
		affected = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}

	for i := range expired {
		r.invalidateCache(ctx, expired[i].UserID)
	}
	return int(affected), nil
}

func (r *subscriptionRepo) getFromCache(ctx context.Context, userID string) (*biz.SubscriptionRecord, bool) {
	key := constants.RedisKeySubscriptionStatus + userID
	raw, err := r.data.rdb.Get(ctx, key).Result()
	if err != nil {
		return nil, false
	}
	var c cachedSubscription
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, false
	}
	return &biz.SubscriptionRecord{
		SubscriptionID: c.SubscriptionID,
		UserID:         c.UserID,
		PlanID:         c.PlanID,
		StartDate:      c.StartDate,
		EndDate:        c.EndDate,
		Status:         c.Status,
		IsTrial:        c.IsTrial,
		PaymentOrderID: c.PaymentOrderID,
	}, true
}

// setCache 异步回填缓存，失败不影响主流程
func (r *subscriptionRepo) setCache(sub *biz.SubscriptionRecord) {
	raw, err := json.Marshal(&cachedSubscription{
		SubscriptionID: sub.SubscriptionID,
		UserID:         sub.UserID,
		PlanID:         sub.PlanID,
		StartDate:      sub.StartDate,
		EndDate:        sub.EndDate,
		Status:         sub.Status,
		IsTrial:        sub.IsTrial,
		PaymentOrderID: sub.PaymentOrderID,
	})
	if err != nil {
		return
	}
	key := constants.RedisKeySubscriptionStatus + sub.UserID
	go func() {
		cacheCtx, cancel := context.WithTimeout(context.Background(), constants.CacheWriteTimeout)
		defer cancel()
		r.data.rdb.Set(cacheCtx, key, raw, constants.SubscriptionCacheTTL)
	}()
}

func (r *subscriptionRepo) invalidateCache(ctx context.Context, userID string) {
	key := constants.RedisKeySubscriptionStatus + userID
	if err := r.data.rdb.Del(ctx, key).Err(); err != nil {
		r.log.Warnf("Failed to invalidate subscription cache: user_id=%s, error=%v", userID, err)
	}
}

func toBizSubscription(m *model.MemberSubscription) *biz.SubscriptionRecord {
	return &biz.SubscriptionRecord{
		SubscriptionID: m.SubscriptionID,
		UserID:         m.UserID,
		PlanID:         m.PlanID,
		StartDate:      m.StartDate,
		EndDate:        m.EndDate,
		Status:         m.Status,
		IsTrial:        m.IsTrial,
		PaymentOrderID: m.PaymentOrderID,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}
