package model

import (
	"time"
)

// MemberSubscription 会员订阅表（每个用户至多一条）
type MemberSubscription struct {
	SubscriptionID string    `gorm:"primaryKey;type:varchar(36)"`
	UserID         string    `gorm:"uniqueIndex;type:varchar(36);not null"`
	PlanID         string    `gorm:"type:varchar(36);not null"`
	StartDate      time.Time `gorm:"type:datetime;not null"`
	EndDate        time.Time `gorm:"type:datetime;not null;index"`
	Status         string    `gorm:"type:enum('trial','active','expired','cancelled');not null;index"`
	IsTrial        bool      `gorm:"default:false"`
	// PaymentOrderID 最近一次付款订单的回链，仅作查询溯源用；订单是否已入账看 payment_order.subscription_applied_at
	PaymentOrderID string    `gorm:"index;type:varchar(36)"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (MemberSubscription) TableName() string {
	return "member_subscription"
}
