package biz

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"payment-service/internal/constants"
	"payment-service/internal/ecpay"
	"payment-service/internal/metrics"

	paymentErrors "payment-service/internal/errors"

	pkgErrors "github.com/gaoyong06/go-pkg/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-redsync/redsync/v4"
	"github.com/google/uuid"
)

// ErrOrderNumberTaken 订单编号唯一索引冲突（data 层翻译 MySQL 1062 后返回）
var ErrOrderNumberTaken = errors.New("order number already taken")

// PaymentOrder 付款订单领域对象
// 状态单调：pending → completed 或 pending → failed，终态不可逆、记录不删除
type PaymentOrder struct {
	OrderID       string  // 订单ID（本服务生成的 UUID）
	UserID        string  // 用户ID
	OrderNumber   string  // 商店订单编号（送绿界，全局唯一，创建后不变）
	PlanID        string  // 套餐ID
	Amount        float64 // 订单金额
	Currency      string  // 币种
	PaymentMethod string  // 付款方式（atm/webatm/barcode/cvs/credit）
	Status        string  // 订单状态
	TradeNo       string  // 绿界交易编号（首次回调时写入一次）
	RtnCode       int     // 绿界最后一次回调状态码
	RtnMsg        string  // 绿界最后一次回调讯息
	PaymentType   string  // 绿界实际付款通路
	SimulatePaid  bool    // 是否为绿界模拟付款
	PaidAt        *time.Time
	// SubscriptionAppliedAt 订单入账时间：订阅落库成功后在同一事务内写入。
	// 对账扫描只认这个标记，不看订阅表的回链（回链只保留最近一单，
	// 多单用户的旧订单会被误判为未入账）
	SubscriptionAppliedAt *time.Time
	// Offline 取号成功后的离线缴费资讯（按付款方式区分的联合类型）
	Offline   ecpay.OfflineInfo
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Terminal 订单是否已到终态
func (o *PaymentOrder) Terminal() bool {
	return o.Status == constants.OrderStatusCompleted || o.Status == constants.OrderStatusFailed
}

// PaymentOrderRepo 付款订单数据层接口（定义在 biz 层）
type PaymentOrderRepo interface {
	CreateOrder(ctx context.Context, order *PaymentOrder) error
	GetOrderByNumber(ctx context.Context, orderNumber string) (*PaymentOrder, error)
	ListOrdersByUser(ctx context.Context, userID string, limit int) ([]*PaymentOrder, error)
	// CompleteOrder 条件更新 pending → completed，返回是否真的发生了翻转
	// （false 表示订单已不在 pending，幂等路径）
	CompleteOrder(ctx context.Context, orderNumber string, cb *ecpay.Callback) (bool, error)
	// FailOrder 条件更新 pending → failed
	FailOrder(ctx context.Context, orderNumber string, cb *ecpay.Callback) (bool, error)
	// SaveOfflineInfo 保存取号回调的缴费资讯，订单保持 pending
	SaveOfflineInfo(ctx context.Context, orderNumber string, cb *ecpay.Callback, info ecpay.OfflineInfo) error
	// MarkSubscriptionApplied 标记订单已入账到订阅（必须与订阅落库同事务）
	MarkSubscriptionApplied(ctx context.Context, orderNumber string) error
	// ListCompletedUnapplied 找出已完成但尚未入账到订阅的订单（对账补偿用）
	ListCompletedUnapplied(ctx context.Context, limit int) ([]*PaymentOrder, error)
}

// CheckoutPayload 下单结果：调用方把 FormData 渲染成表单提交到 ActionURL
// 本服务不直接对绿界发起网络请求
type CheckoutPayload struct {
	OrderNumber string
	Amount      float64
	FormData    map[string]string
	ActionURL   string
}

// allowedCreateMethods 下单允许的付款方式
// webatm 即时完成无取号流程、credit 需另签约，均不开放自助下单
var allowedCreateMethods = map[string]bool{
	ecpay.MethodATM:     true,
	ecpay.MethodBarcode: true,
	ecpay.MethodCVS:     true,
}

// PaymentUseCase 付款订单业务逻辑
type PaymentUseCase struct {
	orderRepo PaymentOrderRepo
	planRepo  PlanRepo
	subUC     *SubscriptionUseCase
	tm        Transaction
	rs        *redsync.Redsync
	publisher PaymentEventPublisher
	gateway   *GatewayConfig
	log       *log.Helper
	metrics   *metrics.PaymentMetrics
}

// NewPaymentUseCase 创建付款订单 UseCase
func NewPaymentUseCase(
	orderRepo PaymentOrderRepo,
	planRepo PlanRepo,
	subUC *SubscriptionUseCase,
	tm Transaction,
	rs *redsync.Redsync,
	publisher PaymentEventPublisher,
	gateway *GatewayConfig,
	logger log.Logger,
) *PaymentUseCase {
	return &PaymentUseCase{
		orderRepo: orderRepo,
		planRepo:  planRepo,
		subUC:     subUC,
		tm:        tm,
		rs:        rs,
		publisher: publisher,
		gateway:   gateway,
		log:       log.NewHelper(logger),
		metrics:   metrics.GetMetrics(),
	}
}

// CreatePayment 创建付款订单并产生绿界付款表单
func (uc *PaymentUseCase) CreatePayment(ctx context.Context, userID, planName, paymentMethod string) (*CheckoutPayload, error) {
	startTime := time.Now()

	if !allowedCreateMethods[paymentMethod] {
		return nil, pkgErrors.NewBizErrorWithLang(ctx, paymentErrors.ErrCodeUnsupportedPaymentMethod)
	}

	// 查套餐（必须启用中）
	plan, err := uc.planRepo.GetPlanByName(ctx, planName)
	if err != nil {
		uc.log.Errorf("GetPlanByName failed: plan_name=%s, error=%v", planName, err)
		return nil, pkgErrors.WrapErrorWithLang(ctx, err, paymentErrors.ErrCodePlanGetFailed)
	}
	if plan == nil || !plan.IsActive {
		return nil, pkgErrors.NewBizErrorWithLang(ctx, paymentErrors.ErrCodePlanNotFound)
	}

	// 落一条 pending 订单；订单编号唯一性靠存储层唯一索引兜底，冲突时换号重试
	order := &PaymentOrder{
		OrderID:       uuid.New().String(),
		UserID:        userID,
		PlanID:        plan.PlanID,
		Amount:        plan.Price,
		Currency:      plan.Currency,
		PaymentMethod: paymentMethod,
		Status:        constants.OrderStatusPending,
	}
	for attempt := 0; ; attempt++ {
		order.OrderNumber = ecpay.GenerateMerchantTradeNo(time.Now())
		err = uc.orderRepo.CreateOrder(ctx, order)
		if err == nil {
			break
		}
		if errors.Is(err, ErrOrderNumberTaken) && attempt < constants.OrderNumberMaxRetries {
			uc.log.Warnf("Order number collision, retrying: order_number=%s", order.OrderNumber)
			continue
		}
		uc.log.Errorf("CreateOrder failed: user_id=%s, plan=%s, error=%v", userID, planName, err)
		if uc.metrics != nil {
			uc.metrics.OrderTotal.WithLabelValues(paymentMethod, constants.OrderStatusFailed).Inc()
		}
		if errors.Is(err, ErrOrderNumberTaken) {
			return nil, pkgErrors.NewBizErrorWithLang(ctx, paymentErrors.ErrCodeOrderNumberConflict)
		}
		return nil, pkgErrors.WrapErrorWithLang(ctx, err, paymentErrors.ErrCodeOrderCreateFailed)
	}

	form, err := ecpay.BuildCheckoutForm(uc.gateway.ECPay, &ecpay.CheckoutOrder{
		MerchantTradeNo: order.OrderNumber,
		TradeDate:       time.Now(),
		TotalAmount:     plan.Price,
		TradeDesc:       fmt.Sprintf("%s - %s", uc.gateway.TradeDescPrefix, plan.DisplayName),
		ItemName:        plan.DisplayName,
		ReturnURL:       uc.gateway.ReturnURL,
		PaymentMethod:   paymentMethod,
		ClientBackURL:   uc.gateway.ClientBackURL,
		OrderResultURL:  uc.gateway.OrderResultURL,
	})
	if err != nil {
		uc.log.Errorf("BuildCheckoutForm failed: order_number=%s, error=%v", order.OrderNumber, err)
		return nil, pkgErrors.WrapErrorWithLang(ctx, err, paymentErrors.ErrCodeGatewayConfigMissing)
	}

	if uc.metrics != nil {
		uc.metrics.OrderTotal.WithLabelValues(paymentMethod, constants.OrderStatusPending).Inc()
		uc.metrics.OrderCreateDuration.Observe(time.Since(startTime).Seconds())
	}
	uc.log.Infof("Payment order created: order_number=%s, user_id=%s, plan=%s, method=%s, amount=%.0f",
		order.OrderNumber, userID, planName, paymentMethod, plan.Price)

	return &CheckoutPayload{
		OrderNumber: order.OrderNumber,
		Amount:      plan.Price,
		FormData:    form,
		ActionURL:   uc.gateway.ECPay.AioCheckoutURL(),
	}, nil
}

// HandleCallback 处理绿界异步回调，返回应答给绿界的纯文本
//
// 应答约定：只要回调本身被正确处理（含幂等去重和付款失败）就回 1|OK，
// 验签失败、订单不存在、落库失败回 0|Error 让绿界稍后重送
func (uc *PaymentUseCase) HandleCallback(ctx context.Context, form url.Values) string {
	startTime := time.Now()
	cb := ecpay.ParseCallback(form)

	result := uc.handleCallback(ctx, cb)
	if uc.metrics != nil {
		uc.metrics.CallbackTotal.WithLabelValues(result.label).Inc()
		uc.metrics.CallbackDuration.WithLabelValues(result.label).Observe(time.Since(startTime).Seconds())
	}
	return result.ack
}

type callbackResult struct {
	ack   string
	label string
}

func (uc *PaymentUseCase) handleCallback(ctx context.Context, cb *ecpay.Callback) callbackResult {
	// 1. 先验签：签名不过的回调不可信，除日志外不产生任何状态变化
	if !cb.Verify(uc.gateway.ECPay.HashKey, uc.gateway.ECPay.HashIV) {
		uc.log.Warnf("Callback rejected, CheckMacValue mismatch: order_number=%s, trade_no=%s, rtn_code=%d",
			cb.MerchantTradeNo, cb.TradeNo, cb.RtnCode)
		if uc.metrics != nil {
			uc.metrics.SignatureRejects.Inc()
		}
		return callbackResult{ack: ecpay.AckFailure, label: constants.ResultRejected}
	}

	// 2. 查订单：查不到可能是环境配错，也可能是重放探测
	order, err := uc.orderRepo.GetOrderByNumber(ctx, cb.MerchantTradeNo)
	if err != nil {
		uc.log.Errorf("GetOrderByNumber failed: order_number=%s, error=%v", cb.MerchantTradeNo, err)
		return callbackResult{ack: ecpay.AckFailure, label: constants.ResultFailed}
	}
	if order == nil {
		uc.log.Warnf("Callback for unknown order: order_number=%s, trade_no=%s, rtn_code=%d",
			cb.MerchantTradeNo, cb.TradeNo, cb.RtnCode)
		return callbackResult{ack: ecpay.AckFailure, label: constants.ResultRejected}
	}

	// 3. 终态订单的重复回调：纯 no-op，回 1|OK 止住绿界重送
	if order.Terminal() {
		uc.log.Infof("Duplicate callback for terminal order: order_number=%s, status=%s", order.OrderNumber, order.Status)
		return callbackResult{ack: ecpay.AckSuccess, label: constants.ResultDuplicate}
	}

	// 4. 每单一把分布式锁，把并发重复回调串行化；
	//    锁内的状态条件更新是最终防线，锁只是减少无谓的事务冲突
	if uc.rs != nil {
		lockStart := time.Now()
		mutex := uc.rs.NewMutex(constants.RedisKeyCallbackLock+order.OrderNumber,
			redsync.WithExpiry(constants.CallbackLockExpiry))
		if err := mutex.LockContext(ctx); err != nil {
			uc.log.Errorf("Failed to acquire callback lock: order_number=%s, error=%v", order.OrderNumber, err)
			if uc.metrics != nil {
				uc.metrics.LockAcquireTotal.WithLabelValues(constants.ResultFailed).Inc()
			}
			return callbackResult{ack: ecpay.AckFailure, label: constants.ResultFailed}
		}
		if uc.metrics != nil {
			uc.metrics.LockAcquireTotal.WithLabelValues(constants.ResultSuccess).Inc()
			uc.metrics.LockAcquireDuration.Observe(time.Since(lockStart).Seconds())
		}
		defer func() {
			if ok, err := mutex.UnlockContext(ctx); !ok || err != nil {
				uc.log.Warnf("Failed to unlock callback lock: order_number=%s, error=%v", order.OrderNumber, err)
			}
		}()
	}

	switch cb.Outcome() {
	case ecpay.OutcomePaid:
		return uc.applyPaid(ctx, order, cb)
	case ecpay.OutcomeCodeIssued:
		return uc.applyCodeIssued(ctx, order, cb)
	default:
		return uc.applyFailed(ctx, order, cb)
	}
}

// applyPaid 付款成功：订单翻转与订阅落库在同一事务内完成
func (uc *PaymentUseCase) applyPaid(ctx context.Context, order *PaymentOrder, cb *ecpay.Callback) callbackResult {
	applied := false
	err := uc.tm.Exec(ctx, func(ctx context.Context) error {
		var err error
		applied, err = uc.orderRepo.CompleteOrder(ctx, order.OrderNumber, cb)
		if err != nil {
			return err
		}
		if !applied {
			// 并发回调输掉了 CAS，赢家已经处理过
			return nil
		}
		if _, err := uc.subUC.ApplyPaidOrder(ctx, order); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		// 事务整体回滚，订单仍然是 pending，让绿界重送
		uc.log.Errorf("Apply paid callback failed: order_number=%s, trade_no=%s, error=%v",
			order.OrderNumber, cb.TradeNo, err)
		return callbackResult{ack: ecpay.AckFailure, label: constants.ResultFailed}
	}
	if !applied {
		uc.log.Infof("Paid callback lost the race, already applied: order_number=%s", order.OrderNumber)
		return callbackResult{ack: ecpay.AckSuccess, label: constants.ResultDuplicate}
	}

	if uc.metrics != nil {
		uc.metrics.OrderTotal.WithLabelValues(order.PaymentMethod, constants.OrderStatusCompleted).Inc()
		uc.metrics.OrderAmount.WithLabelValues(constants.OrderStatusCompleted).Add(order.Amount)
	}
	uc.log.Infof("Payment completed: order_number=%s, trade_no=%s, user_id=%s, simulate=%v",
		order.OrderNumber, cb.TradeNo, order.UserID, cb.SimulatePaid)

	uc.publishCompleted(ctx, order, cb)
	return callbackResult{ack: ecpay.AckSuccess, label: ecpay.OutcomePaid.String()}
}

// applyCodeIssued 取号成功：保存缴费资讯，订单保持 pending 等待实际付款的第二次回调
func (uc *PaymentUseCase) applyCodeIssued(ctx context.Context, order *PaymentOrder, cb *ecpay.Callback) callbackResult {
	info, ok := cb.OfflineInfo()
	if !ok {
		uc.log.Warnf("Code-issued callback without offline info: order_number=%s, rtn_code=%d",
			order.OrderNumber, cb.RtnCode)
	}
	if err := uc.orderRepo.SaveOfflineInfo(ctx, order.OrderNumber, cb, info); err != nil {
		uc.log.Errorf("SaveOfflineInfo failed: order_number=%s, error=%v", order.OrderNumber, err)
		return callbackResult{ack: ecpay.AckFailure, label: constants.ResultFailed}
	}
	uc.log.Infof("Payment code issued: order_number=%s, trade_no=%s, method=%s",
		order.OrderNumber, cb.TradeNo, order.PaymentMethod)
	return callbackResult{ack: ecpay.AckSuccess, label: ecpay.OutcomeCodeIssued.String()}
}

// applyFailed 付款失败：订单进入 failed 终态；回调本身是被正确处理的，回 1|OK
func (uc *PaymentUseCase) applyFailed(ctx context.Context, order *PaymentOrder, cb *ecpay.Callback) callbackResult {
	applied, err := uc.orderRepo.FailOrder(ctx, order.OrderNumber, cb)
	if err != nil {
		uc.log.Errorf("FailOrder failed: order_number=%s, error=%v", order.OrderNumber, err)
		return callbackResult{ack: ecpay.AckFailure, label: constants.ResultFailed}
	}
	if !applied {
		return callbackResult{ack: ecpay.AckSuccess, label: constants.ResultDuplicate}
	}
	if uc.metrics != nil {
		uc.metrics.OrderTotal.WithLabelValues(order.PaymentMethod, constants.OrderStatusFailed).Inc()
	}
	uc.log.Infof("Payment failed: order_number=%s, rtn_code=%d, rtn_msg=%s",
		order.OrderNumber, cb.RtnCode, cb.RtnMsg)
	return callbackResult{ack: ecpay.AckSuccess, label: ecpay.OutcomeFailed.String()}
}

// publishCompleted 发布支付完成事件（尽力而为，失败不影响应答）
func (uc *PaymentUseCase) publishCompleted(ctx context.Context, order *PaymentOrder, cb *ecpay.Callback) {
	if uc.publisher == nil {
		return
	}
	paidAt := time.Now().UTC()
	if t, err := ecpay.ParseTradeDate(cb.PaymentDate); err == nil {
		paidAt = t.UTC()
	}
	event := &PaymentCompletedEvent{
		OrderID:     order.OrderID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		PlanID:      order.PlanID,
		Amount:      order.Amount,
		Currency:    order.Currency,
		TradeNo:     cb.TradeNo,
		PaidAt:      paidAt,
	}
	if err := uc.publisher.PublishPaymentCompleted(ctx, event); err != nil {
		uc.log.Warnf("Publish payment completed event failed: order_number=%s, error=%v", order.OrderNumber, err)
		if uc.metrics != nil {
			uc.metrics.EventPublishTotal.WithLabelValues(constants.ResultFailed).Inc()
		}
		return
	}
	if uc.metrics != nil {
		uc.metrics.EventPublishTotal.WithLabelValues(constants.ResultSuccess).Inc()
	}
}

// GetOrder 查询订单（付款结果页轮询用，校验归属）
func (uc *PaymentUseCase) GetOrder(ctx context.Context, userID, orderNumber string) (*PaymentOrder, error) {
	order, err := uc.orderRepo.GetOrderByNumber(ctx, orderNumber)
	if err != nil {
		return nil, pkgErrors.WrapErrorWithLang(ctx, err, paymentErrors.ErrCodeOrderGetFailed)
	}
	if order == nil || order.UserID != userID {
		return nil, pkgErrors.NewBizErrorWithLang(ctx, paymentErrors.ErrCodeOrderNotFound)
	}
	return order, nil
}

// ListOrders 查询用户付款历史
func (uc *PaymentUseCase) ListOrders(ctx context.Context, userID string, limit int) ([]*PaymentOrder, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return uc.orderRepo.ListOrdersByUser(ctx, userID, limit)
}
