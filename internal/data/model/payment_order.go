package model

import (
	"time"
)

// PaymentOrder 付款订单表
// 订单是追加型账目：只进终态，不删除、不复用订单编号
type PaymentOrder struct {
	PaymentOrderID string  `gorm:"primaryKey;type:varchar(36)"`
	UserID         string  `gorm:"index;type:varchar(36);not null"`
	OrderNumber    string  `gorm:"uniqueIndex;type:varchar(20);not null"`
	PlanID         string  `gorm:"type:varchar(36);not null"`
	Amount         float64 `gorm:"type:decimal(10,2);not null"`
	Currency       string  `gorm:"type:varchar(8);not null;default:TWD"`
	PaymentMethod  string  `gorm:"type:varchar(16);not null"`
	Status         string  `gorm:"type:enum('pending','completed','failed');not null;default:pending;index"`

	// 绿界回调写入
	TradeNo      string     `gorm:"type:varchar(20)"`
	RtnCode      int        `gorm:"type:int;default:0"`
	RtnMsg       string     `gorm:"type:varchar(200)"`
	PaymentType  string     `gorm:"type:varchar(32)"`
	SimulatePaid bool       `gorm:"default:false"`
	PaidAt       *time.Time `gorm:"type:datetime"`
	// SubscriptionAppliedAt 入账标记：与订阅落库同事务写入，对账扫描按 IS NULL 找缺口
	SubscriptionAppliedAt *time.Time `gorm:"type:datetime;index"`

	// 取号回调写入的离线缴费资讯（按付款方式只会填其中一组）
	BankCode        string `gorm:"type:varchar(8)"`
	VirtualAccount  string `gorm:"type:varchar(24)"`
	Barcode1        string `gorm:"type:varchar(32)"`
	Barcode2        string `gorm:"type:varchar(32)"`
	Barcode3        string `gorm:"type:varchar(32)"`
	PaymentNo       string `gorm:"type:varchar(20)"`
	PaymentDeadline string `gorm:"type:varchar(20)"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (PaymentOrder) TableName() string {
	return "payment_order"
}
