package biz

import (
	"context"
	"errors"
	"time"

	"payment-service/internal/ecpay"
)

var errMockRepo = errors.New("mock repo error")

// fakePlanRepo 内存套餐仓库
type fakePlanRepo struct {
	plans  []*Plan
	getErr error
}

func (f *fakePlanRepo) GetPlanByName(ctx context.Context, planName string) (*Plan, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, p := range f.plans {
		if p.PlanName == planName {
			return p, nil
		}
	}
	return nil, nil
}

func (f *fakePlanRepo) GetPlanByID(ctx context.Context, planID string) (*Plan, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, p := range f.plans {
		if p.PlanID == planID {
			return p, nil
		}
	}
	return nil, nil
}

// fakeOrderRepo 内存订单仓库，保留真实的 pending 条件更新语义
type fakeOrderRepo struct {
	orders map[string]*PaymentOrder // key: order number

	createErr      error
	createErrCount int // 前 N 次 CreateOrder 返回 createErr
	saveOfflineErr error
	completeErr    error
	markErr        error
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[string]*PaymentOrder)}
}

func (f *fakeOrderRepo) CreateOrder(ctx context.Context, order *PaymentOrder) error {
	if f.createErr != nil && f.createErrCount != 0 {
		f.createErrCount--
		return f.createErr
	}
	if _, ok := f.orders[order.OrderNumber]; ok {
		return ErrOrderNumberTaken
	}
	cp := *order
	f.orders[order.OrderNumber] = &cp
	return nil
}

func (f *fakeOrderRepo) GetOrderByNumber(ctx context.Context, orderNumber string) (*PaymentOrder, error) {
	order, ok := f.orders[orderNumber]
	if !ok {
		return nil, nil
	}
	cp := *order
	return &cp, nil
}

func (f *fakeOrderRepo) ListOrdersByUser(ctx context.Context, userID string, limit int) ([]*PaymentOrder, error) {
	var out []*PaymentOrder
	for _, o := range f.orders {
		if o.UserID == userID && len(out) < limit {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeOrderRepo) CompleteOrder(ctx context.Context, orderNumber string, cb *ecpay.Callback) (bool, error) {
	if f.completeErr != nil {
		return false, f.completeErr
	}
	order, ok := f.orders[orderNumber]
	if !ok || order.Status != "pending" {
		return false, nil
	}
	order.Status = "completed"
	order.TradeNo = cb.TradeNo
	order.RtnCode = cb.RtnCode
	order.RtnMsg = cb.RtnMsg
	order.PaymentType = cb.PaymentType
	order.SimulatePaid = cb.SimulatePaid
	return true, nil
}

func (f *fakeOrderRepo) FailOrder(ctx context.Context, orderNumber string, cb *ecpay.Callback) (bool, error) {
	order, ok := f.orders[orderNumber]
	if !ok || order.Status != "pending" {
		return false, nil
	}
	order.Status = "failed"
	order.RtnCode = cb.RtnCode
	order.RtnMsg = cb.RtnMsg
	return true, nil
}

func (f *fakeOrderRepo) SaveOfflineInfo(ctx context.Context, orderNumber string, cb *ecpay.Callback, info ecpay.OfflineInfo) error {
	if f.saveOfflineErr != nil {
		return f.saveOfflineErr
	}
	order, ok := f.orders[orderNumber]
	if !ok {
		return errMockRepo
	}
	order.TradeNo = cb.TradeNo
	order.RtnCode = cb.RtnCode
	order.RtnMsg = cb.RtnMsg
	order.Offline = info
	return nil
}

func (f *fakeOrderRepo) MarkSubscriptionApplied(ctx context.Context, orderNumber string) error {
	if f.markErr != nil {
		return f.markErr
	}
	if order, ok := f.orders[orderNumber]; ok {
		now := time.Now().UTC()
		order.SubscriptionAppliedAt = &now
	}
	return nil
}

// ListCompletedUnapplied 与真实仓库同一谓词：completed 且缺少入账标记
func (f *fakeOrderRepo) ListCompletedUnapplied(ctx context.Context, limit int) ([]*PaymentOrder, error) {
	var out []*PaymentOrder
	for _, o := range f.orders {
		if o.Status == "completed" && o.SubscriptionAppliedAt == nil && len(out) < limit {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

// fakeSubRepo 内存订阅仓库
type fakeSubRepo struct {
	subs    map[string]*SubscriptionRecord // key: user id
	saveErr error
	expired int
}

func newFakeSubRepo() *fakeSubRepo {
	return &fakeSubRepo{subs: make(map[string]*SubscriptionRecord)}
}

func (f *fakeSubRepo) GetSubscription(ctx context.Context, userID string) (*SubscriptionRecord, error) {
	sub, ok := f.subs[userID]
	if !ok {
		return nil, nil
	}
	cp := *sub
	return &cp, nil
}

func (f *fakeSubRepo) SaveSubscription(ctx context.Context, sub *SubscriptionRecord) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	cp := *sub
	f.subs[sub.UserID] = &cp
	return nil
}

func (f *fakeSubRepo) UpdateExpiredSubscriptions(ctx context.Context) (int, error) {
	return f.expired, nil
}

// fakeTx 直接执行闭包，不提供真实事务语义
type fakeTx struct {
	execErr error
}

func (f *fakeTx) Exec(ctx context.Context, fn func(ctx context.Context) error) error {
	if f.execErr != nil {
		return f.execErr
	}
	return fn(ctx)
}

// fakePublisher 记录发布的事件
type fakePublisher struct {
	events     []*PaymentCompletedEvent
	publishErr error
}

func (f *fakePublisher) PublishPaymentCompleted(ctx context.Context, event *PaymentCompletedEvent) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.events = append(f.events, event)
	return nil
}
