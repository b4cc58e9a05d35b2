package model

import (
	"time"
)

// SubscriptionPlan 订阅套餐表
type SubscriptionPlan struct {
	PlanID       string    `gorm:"primaryKey;type:varchar(36)"`
	PlanName     string    `gorm:"uniqueIndex;type:varchar(64);not null"`
	DisplayName  string    `gorm:"type:varchar(128);not null"`
	Price        float64   `gorm:"type:decimal(10,2);not null"`
	Currency     string    `gorm:"type:varchar(8);not null;default:TWD"`
	DurationDays int       `gorm:"type:int;not null"`
	QuotaLimit   int64     `gorm:"type:bigint;default:0"`
	IsActive     bool      `gorm:"default:true"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (SubscriptionPlan) TableName() string {
	return "subscription_plan"
}
