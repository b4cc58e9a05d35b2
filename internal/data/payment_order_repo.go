package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"payment-service/internal/biz"
	"payment-service/internal/constants"
	"payment-service/internal/data/model"
	"payment-service/internal/ecpay"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// mysqlDuplicateEntry MySQL 唯一索引冲突错误码
const mysqlDuplicateEntry = 1062

// paymentOrderRepo 付款订单数据访问
type paymentOrderRepo struct {
	data *Data
	log  *log.Helper
}

// NewPaymentOrderRepo 创建付款订单 repo（返回 biz.PaymentOrderRepo 接口）
func NewPaymentOrderRepo(data *Data, logger log.Logger) biz.PaymentOrderRepo {
	return &paymentOrderRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// CreateOrder 落一条 pending 订单，订单编号冲突翻译为 biz.ErrOrderNumberTaken
func (r *paymentOrderRepo) CreateOrder(ctx context.Context, order *biz.PaymentOrder) error {
	m := &model.PaymentOrder{
		PaymentOrderID: order.OrderID,
		UserID:         order.UserID,
		OrderNumber:    order.OrderNumber,
		PlanID:         order.PlanID,
		Amount:         order.Amount,
		Currency:       order.Currency,
		PaymentMethod:  order.PaymentMethod,
		Status:         order.Status,
	}
	if err := r.data.DB(ctx).Create(m).Error; err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
			return biz.ErrOrderNumberTaken
		}
		r.log.Errorf("CreateOrder failed: order_number=%s, error=%v", order.OrderNumber, err)
		return fmt.Errorf("failed to create payment order: %w", err)
	}
	order.CreatedAt = m.CreatedAt
	order.UpdatedAt = m.UpdatedAt
	return nil
}

// GetOrderByNumber 按订单编号查询，不存在返回 nil
func (r *paymentOrderRepo) GetOrderByNumber(ctx context.Context, orderNumber string) (*biz.PaymentOrder, error) {
	var m model.PaymentOrder
	if err := r.data.DB(ctx).Where("order_number = ?", orderNumber).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.log.Errorf("GetOrderByNumber failed: order_number=%s, error=%v", orderNumber, err)
		return nil, fmt.Errorf("failed to query payment order: %w", err)
	}
	return toBizOrder(&m), nil
}

// ListOrdersByUser 按用户查询付款历史（新的在前）
func (r *paymentOrderRepo) ListOrdersByUser(ctx context.Context, userID string, limit int) ([]*biz.PaymentOrder, error) {
	var ms []model.PaymentOrder
	if err := r.data.DB(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&ms).Error; err != nil {
		r.log.Errorf("ListOrdersByUser failed: user_id=%s, error=%v", userID, err)
		return nil, fmt.Errorf("failed to list payment orders: %w", err)
	}
	orders := make([]*biz.PaymentOrder, 0, len(ms))
	for i := range ms {
		orders = append(orders, toBizOrder(&ms[i]))
	}
	return orders, nil
}

// CompleteOrder 条件更新 pending → completed
// WHERE status = pending 是重复回调的最终防线，返回值表示本次调用是否赢得翻转
func (r *paymentOrderRepo) CompleteOrder(ctx context.Context, orderNumber string, cb *ecpay.Callback) (bool, error) {
	paidAt := time.Now().UTC()
	if t, err := ecpay.ParseTradeDate(cb.PaymentDate); err == nil {
		paidAt = t.UTC()
	}
	res := r.data.DB(ctx).Model(&model.PaymentOrder{}).
		Where("order_number = ? AND status = ?", orderNumber, constants.OrderStatusPending).
		Updates(map[string]interface{}{
			"status":        constants.OrderStatusCompleted,
			"trade_no":      cb.TradeNo,
			"rtn_code":      cb.RtnCode,
			"rtn_msg":       cb.RtnMsg,
			"payment_type":  cb.PaymentType,
			"simulate_paid": cb.SimulatePaid,
			"paid_at":       paidAt,
		})
	if res.Error != nil {
		r.log.Errorf("CompleteOrder failed: order_number=%s, error=%v", orderNumber, res.Error)
		return false, fmt.Errorf("failed to complete payment order: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// FailOrder 条件更新 pending → failed
func (r *paymentOrderRepo) FailOrder(ctx context.Context, orderNumber string, cb *ecpay.Callback) (bool, error) {
	res := r.data.DB(ctx).Model(&model.PaymentOrder{}).
		Where("order_number = ? AND status = ?", orderNumber, constants.OrderStatusPending).
		Updates(map[string]interface{}{
			"status":       constants.OrderStatusFailed,
			"trade_no":     cb.TradeNo,
			"rtn_code":     cb.RtnCode,
			"rtn_msg":      cb.RtnMsg,
			"payment_type": cb.PaymentType,
		})
	if res.Error != nil {
		r.log.Errorf("FailOrder failed: order_number=%s, error=%v", orderNumber, res.Error)
		return false, fmt.Errorf("failed to fail payment order: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// SaveOfflineInfo 保存取号回调的缴费资讯，订单保持 pending
func (r *paymentOrderRepo) SaveOfflineInfo(ctx context.Context, orderNumber string, cb *ecpay.Callback, info ecpay.OfflineInfo) error {
	updates := map[string]interface{}{
		"trade_no":     cb.TradeNo,
		"rtn_code":     cb.RtnCode,
		"rtn_msg":      cb.RtnMsg,
		"payment_type": cb.PaymentType,
	}
	switch v := info.(type) {
	case ecpay.ATMInfo:
		updates["bank_code"] = v.BankCode
		updates["virtual_account"] = v.VirtualAccount
		updates["payment_deadline"] = v.ExpireDate
	case ecpay.BarcodeInfo:
		updates["barcode1"] = v.Barcode1
		updates["barcode2"] = v.Barcode2
		updates["barcode3"] = v.Barcode3
		updates["payment_deadline"] = v.ExpireDate
	case ecpay.CVSInfo:
		updates["payment_no"] = v.PaymentNo
		updates["payment_deadline"] = v.ExpireDate
	}
	res := r.data.DB(ctx).Model(&model.PaymentOrder{}).
		Where("order_number = ? AND status = ?", orderNumber, constants.OrderStatusPending).
		Updates(updates)
	if res.Error != nil {
		r.log.Errorf("SaveOfflineInfo failed: order_number=%s, error=%v", orderNumber, res.Error)
		return fmt.Errorf("failed to save offline payment info: %w", res.Error)
	}
	return nil
}

// MarkSubscriptionApplied 标记订单已入账到订阅
// 调用方负责与订阅落库放在同一事务内
func (r *paymentOrderRepo) MarkSubscriptionApplied(ctx context.Context, orderNumber string) error {
	res := r.data.DB(ctx).Model(&model.PaymentOrder{}).
		Where("order_number = ?", orderNumber).
		Update("subscription_applied_at", time.Now().UTC())
	if res.Error != nil {
		r.log.Errorf("MarkSubscriptionApplied failed: order_number=%s, error=%v", orderNumber, res.Error)
		return fmt.Errorf("failed to mark order applied: %w", res.Error)
	}
	return nil
}

// ListCompletedUnapplied 找出已完成但缺少入账标记的订单（对账扫描）
// 不查订阅表的回链：回链只保留最近一单，多单用户的旧订单会被误判
func (r *paymentOrderRepo) ListCompletedUnapplied(ctx context.Context, limit int) ([]*biz.PaymentOrder, error) {
	var ms []model.PaymentOrder
	err := r.data.DB(ctx).
		Where("status = ?", constants.OrderStatusCompleted).
		Where("subscription_applied_at IS NULL").
		Order("updated_at ASC").
		Limit(limit).
		Find(&ms).Error
	if err != nil {
		r.log.Errorf("ListCompletedUnapplied failed: %v", err)
		return nil, fmt.Errorf("failed to list unapplied orders: %w", err)
	}
	orders := make([]*biz.PaymentOrder, 0, len(ms))
	for i := range ms {
		orders = append(orders, toBizOrder(&ms[i]))
	}
	return orders, nil
}

// toBizOrder 模型转领域对象，离线缴费栏位还原为联合类型
func toBizOrder(m *model.PaymentOrder) *biz.PaymentOrder {
	order := &biz.PaymentOrder{
		OrderID:               m.PaymentOrderID,
		UserID:                m.UserID,
		OrderNumber:           m.OrderNumber,
		PlanID:                m.PlanID,
		Amount:                m.Amount,
		Currency:              m.Currency,
		PaymentMethod:         m.PaymentMethod,
		Status:                m.Status,
		TradeNo:               m.TradeNo,
		RtnCode:               m.RtnCode,
		RtnMsg:                m.RtnMsg,
		PaymentType:           m.PaymentType,
		SimulatePaid:          m.SimulatePaid,
		PaidAt:                m.PaidAt,
		SubscriptionAppliedAt: m.SubscriptionAppliedAt,
		CreatedAt:             m.CreatedAt,
		UpdatedAt:             m.UpdatedAt,
	}
	switch {
	case m.VirtualAccount != "":
		order.Offline = ecpay.ATMInfo{
			BankCode:       m.BankCode,
			VirtualAccount: m.VirtualAccount,
			ExpireDate:     m.PaymentDeadline,
		}
	case m.Barcode1 != "":
		order.Offline = ecpay.BarcodeInfo{
			Barcode1:   m.Barcode1,
			Barcode2:   m.Barcode2,
			Barcode3:   m.Barcode3,
			ExpireDate: m.PaymentDeadline,
		}
	case m.PaymentNo != "":
		order.Offline = ecpay.CVSInfo{
			PaymentNo:  m.PaymentNo,
			ExpireDate: m.PaymentDeadline,
		}
	}
	return order
}
