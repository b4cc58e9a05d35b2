package constants

import "time"

// 订单状态常量
const (
	// OrderStatusPending 待付款（含已取号待缴费）
	OrderStatusPending = "pending"
	// OrderStatusCompleted 付款完成
	OrderStatusCompleted = "completed"
	// OrderStatusFailed 付款失败
	OrderStatusFailed = "failed"
)

// 订阅状态常量
const (
	// SubscriptionStatusTrial 试用中
	SubscriptionStatusTrial = "trial"
	// SubscriptionStatusActive 生效中
	SubscriptionStatusActive = "active"
	// SubscriptionStatusExpired 已过期
	SubscriptionStatusExpired = "expired"
	// SubscriptionStatusCancelled 已取消
	SubscriptionStatusCancelled = "cancelled"
)

// Redis Key 前缀常量
const (
	// RedisKeySubscriptionStatus 订阅状态缓存 key 前缀
	RedisKeySubscriptionStatus = "subscription:status:"
	// RedisKeyCallbackLock 回调处理锁 key 前缀
	RedisKeyCallbackLock = "payment:callback:lock:"
)

// 回调锁参数
const (
	// CallbackLockExpiry 回调锁过期时间（必须大于单次回调处理耗时）
	CallbackLockExpiry = 10 * time.Second
)

// 缓存参数
const (
	// SubscriptionCacheTTL 订阅状态缓存时长
	SubscriptionCacheTTL = 5 * time.Minute
	// CacheWriteTimeout 缓存写入超时，避免 Redis 异常拖慢回调热路径
	CacheWriteTimeout = 1 * time.Second
)

// 订单编号生成参数
const (
	// OrderNumberMaxRetries 订单编号唯一索引冲突的最大重试次数
	OrderNumberMaxRetries = 3
)

// 默认币种
const (
	// CurrencyTWD 新台币
	CurrencyTWD = "TWD"
)

// 指标结果标签
const (
	// ResultSuccess 成功
	ResultSuccess = "success"
	// ResultFailed 失败
	ResultFailed = "failed"
	// ResultRejected 验签拒绝
	ResultRejected = "rejected"
	// ResultDuplicate 幂等去重
	ResultDuplicate = "duplicate"
)
