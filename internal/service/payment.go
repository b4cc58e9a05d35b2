package service

import (
	"context"
	"net/url"
	"time"

	"payment-service/internal/biz"
	"payment-service/internal/constants"
	"payment-service/internal/ecpay"

	"github.com/google/wire"
)

// ProviderSet is service providers.
var ProviderSet = wire.NewSet(NewPaymentService)

// PaymentService 付款与订阅 HTTP 服务
type PaymentService struct {
	paymentUC *biz.PaymentUseCase
	subUC     *biz.SubscriptionUseCase
}

// NewPaymentService 创建付款服务
func NewPaymentService(paymentUC *biz.PaymentUseCase, subUC *biz.SubscriptionUseCase) *PaymentService {
	return &PaymentService{
		paymentUC: paymentUC,
		subUC:     subUC,
	}
}

// CreatePaymentRequest 下单请求
type CreatePaymentRequest struct {
	PlanName      string `json:"plan_name"`
	PaymentMethod string `json:"payment_method"`
}

// CreatePaymentReply 下单结果：前端把 FormData 渲染成表单自动提交到 ActionURL
type CreatePaymentReply struct {
	OrderNumber string            `json:"order_number"`
	Amount      float64           `json:"amount"`
	ActionURL   string            `json:"action_url"`
	FormData    map[string]string `json:"form_data"`
}

// PaymentInfoReply 离线缴费资讯
type PaymentInfoReply struct {
	Type           string `json:"type"` // atm, barcode, cvs
	BankCode       string `json:"bank_code,omitempty"`
	VirtualAccount string `json:"virtual_account,omitempty"`
	Barcode1       string `json:"barcode_1,omitempty"`
	Barcode2       string `json:"barcode_2,omitempty"`
	Barcode3       string `json:"barcode_3,omitempty"`
	PaymentNo      string `json:"payment_no,omitempty"`
	ExpireDate     string `json:"expire_date,omitempty"`
}

// OrderReply 订单查询结果
type OrderReply struct {
	OrderNumber   string            `json:"order_number"`
	PlanID        string            `json:"plan_id"`
	Amount        float64           `json:"amount"`
	Currency      string            `json:"currency"`
	PaymentMethod string            `json:"payment_method"`
	Status        string            `json:"status"`
	TradeNo       string            `json:"trade_no,omitempty"`
	PaidAt        *time.Time        `json:"paid_at,omitempty"`
	PaymentInfo   *PaymentInfoReply `json:"payment_info,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// ListOrdersReply 付款历史
type ListOrdersReply struct {
	Orders []*OrderReply `json:"orders"`
}

// SubscriptionStatusReply 订阅状态
type SubscriptionStatusReply struct {
	IsActive  bool   `json:"is_active"`
	PlanID    string `json:"plan_id,omitempty"`
	Status    string `json:"status,omitempty"`
	IsTrial   bool   `json:"is_trial,omitempty"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

// CreatePayment 创建付款订单
func (s *PaymentService) CreatePayment(ctx context.Context, uid string, req *CreatePaymentRequest) (*CreatePaymentReply, error) {
	payload, err := s.paymentUC.CreatePayment(ctx, uid, req.PlanName, req.PaymentMethod)
	if err != nil {
		return nil, err
	}
	return &CreatePaymentReply{
		OrderNumber: payload.OrderNumber,
		Amount:      payload.Amount,
		ActionURL:   payload.ActionURL,
		FormData:    payload.FormData,
	}, nil
}

// HandleCallback 处理绿界异步回调，返回给绿界的纯文本应答
func (s *PaymentService) HandleCallback(ctx context.Context, form url.Values) string {
	return s.paymentUC.HandleCallback(ctx, form)
}

// GetOrder 查询单笔订单
func (s *PaymentService) GetOrder(ctx context.Context, uid, orderNumber string) (*OrderReply, error) {
	order, err := s.paymentUC.GetOrder(ctx, uid, orderNumber)
	if err != nil {
		return nil, err
	}
	return toOrderReply(order), nil
}

// ListOrders 查询付款历史
func (s *PaymentService) ListOrders(ctx context.Context, uid string, limit int) (*ListOrdersReply, error) {
	orders, err := s.paymentUC.ListOrders(ctx, uid, limit)
	if err != nil {
		return nil, err
	}
	replies := make([]*OrderReply, 0, len(orders))
	for _, order := range orders {
		replies = append(replies, toOrderReply(order))
	}
	return &ListOrdersReply{Orders: replies}, nil
}

// GetSubscriptionStatus 查询当前用户订阅状态
func (s *PaymentService) GetSubscriptionStatus(ctx context.Context, uid string) (*SubscriptionStatusReply, error) {
	sub, err := s.subUC.GetSubscription(ctx, uid)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return &SubscriptionStatusReply{IsActive: false}, nil
	}
	return &SubscriptionStatusReply{
		IsActive:  sub.Status == constants.SubscriptionStatusActive,
		PlanID:    sub.PlanID,
		Status:    sub.Status,
		IsTrial:   sub.IsTrial,
		StartDate: sub.StartDate.Format(time.RFC3339),
		EndDate:   sub.EndDate.Format(time.RFC3339),
	}, nil
}

func toOrderReply(order *biz.PaymentOrder) *OrderReply {
	reply := &OrderReply{
		OrderNumber:   order.OrderNumber,
		PlanID:        order.PlanID,
		Amount:        order.Amount,
		Currency:      order.Currency,
		PaymentMethod: order.PaymentMethod,
		Status:        order.Status,
		TradeNo:       order.TradeNo,
		PaidAt:        order.PaidAt,
		CreatedAt:     order.CreatedAt,
	}
	switch v := order.Offline.(type) {
	case ecpay.ATMInfo:
		reply.PaymentInfo = &PaymentInfoReply{
			Type:           "atm",
			BankCode:       v.BankCode,
			VirtualAccount: v.VirtualAccount,
			ExpireDate:     v.ExpireDate,
		}
	case ecpay.BarcodeInfo:
		reply.PaymentInfo = &PaymentInfoReply{
			Type:       "barcode",
			Barcode1:   v.Barcode1,
			Barcode2:   v.Barcode2,
			Barcode3:   v.Barcode3,
			ExpireDate: v.ExpireDate,
		}
	case ecpay.CVSInfo:
		reply.PaymentInfo = &PaymentInfoReply{
			Type:       "cvs",
			PaymentNo:  v.PaymentNo,
			ExpireDate: v.ExpireDate,
		}
	}
	return reply
}
