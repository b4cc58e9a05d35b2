package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PaymentMetrics 支付服务指标
type PaymentMetrics struct {
	// 订单相关指标
	OrderTotal          *prometheus.CounterVec // 付款订单总数（按付款方式、状态）
	OrderCreateDuration prometheus.Histogram   // 订单创建耗时
	OrderAmount         *prometheus.CounterVec // 订单金额（按状态）

	// 回调相关指标
	CallbackTotal    *prometheus.CounterVec   // 回调总数（按分类结果）
	CallbackDuration *prometheus.HistogramVec // 回调处理耗时
	SignatureRejects prometheus.Counter       // 验签失败总数

	// 订阅相关指标
	SubscriptionApplyTotal *prometheus.CounterVec // 订阅开通/续期总数（按结果）
	ReconcileSweepTotal    *prometheus.CounterVec // 对账补偿扫描修复总数（按结果）
	SubscriptionExpired    prometheus.Counter     // 定时任务标记过期的订阅总数

	// 分布式锁相关指标
	LockAcquireTotal    *prometheus.CounterVec // 锁获取总数（按结果）
	LockAcquireDuration prometheus.Histogram   // 锁获取耗时

	// 事件发布指标
	EventPublishTotal *prometheus.CounterVec // 支付完成事件发布总数（按结果）
}

// NewPaymentMetrics 创建支付服务指标
func NewPaymentMetrics() *PaymentMetrics {
	return &PaymentMetrics{
		OrderTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_order_total",
				Help: "Total number of payment orders",
			},
			[]string{"method", "status"}, // status: pending/completed/failed
		),
		OrderCreateDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "payment_order_create_duration_seconds",
				Help:    "Duration of payment order creation",
				Buckets: prometheus.DefBuckets,
			},
		),
		OrderAmount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_order_amount_total",
				Help: "Total amount of payment orders",
			},
			[]string{"status"},
		),

		CallbackTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_callback_total",
				Help: "Total number of gateway callbacks",
			},
			[]string{"result"}, // result: paid/code_issued/failed/rejected/duplicate
		),
		CallbackDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "payment_callback_duration_seconds",
				Help:    "Duration of callback processing",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		),
		SignatureRejects: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "payment_callback_signature_reject_total",
				Help: "Total number of callbacks rejected by CheckMacValue verification",
			},
		),

		SubscriptionApplyTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_subscription_apply_total",
				Help: "Total number of subscription activations/renewals",
			},
			[]string{"result"}, // result: success/failed
		),
		ReconcileSweepTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_reconcile_sweep_total",
				Help: "Total number of orders repaired by the reconciliation sweep",
			},
			[]string{"result"},
		),
		SubscriptionExpired: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "payment_subscription_expired_total",
				Help: "Total number of subscriptions marked expired by the cron job",
			},
		),

		LockAcquireTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_lock_acquire_total",
				Help: "Total number of callback lock acquisition attempts",
			},
			[]string{"result"},
		),
		LockAcquireDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "payment_lock_acquire_duration_seconds",
				Help:    "Duration of callback lock acquisition",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
		),

		EventPublishTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_event_publish_total",
				Help: "Total number of payment completed events published",
			},
			[]string{"result"},
		),
	}
}

// 全局指标实例
var defaultMetrics *PaymentMetrics

// InitMetrics 初始化全局指标
func InitMetrics() {
	defaultMetrics = NewPaymentMetrics()
}

// GetMetrics 获取全局指标实例
func GetMetrics() *PaymentMetrics {
	if defaultMetrics == nil {
		InitMetrics()
	}
	return defaultMetrics
}
