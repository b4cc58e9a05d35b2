package errors

import (
	pkgErrors "github.com/gaoyong06/go-pkg/errors"
	i18nPkg "github.com/gaoyong06/go-pkg/middleware/i18n"
)

func init() {
	// 初始化全局错误管理器（使用项目特定的配置）
	pkgErrors.InitGlobalErrorManager("i18n", i18nPkg.Language)
}

// Payment Service 错误码定义
// 错误码格式：SSMMEE (6位数字)
//   SS: 服务标识，Payment 固定为 21
//   MM: 模块标识，按业务划分
//   EE: 模块内错误序号
//
// 模块划分：
//   00: 通用模块（复用 go-pkg 通用错误码）
//   01: 套餐模块
//   02: 订单模块
//   03: 回调模块
//   04: 订阅模块
//   05-99: 预留扩展

// 套餐模块错误码 (210100-210199)
const (
	// ErrCodePlanNotFound 订阅套餐不存在或已停用
	ErrCodePlanNotFound = 210101
	// ErrCodePlanGetFailed 获取订阅套餐失败
	ErrCodePlanGetFailed = 210102
)

// 订单模块错误码 (210200-210299)
const (
	// ErrCodeUnsupportedPaymentMethod 不支持的付款方式
	ErrCodeUnsupportedPaymentMethod = 210201
	// ErrCodeGatewayConfigMissing 绿界商户配置缺失
	ErrCodeGatewayConfigMissing = 210202
	// ErrCodeOrderCreateFailed 创建付款订单失败
	ErrCodeOrderCreateFailed = 210203
	// ErrCodeOrderNumberConflict 订单编号冲突（重试耗尽）
	ErrCodeOrderNumberConflict = 210204
	// ErrCodeOrderNotFound 付款订单不存在
	ErrCodeOrderNotFound = 210205
	// ErrCodeOrderGetFailed 获取付款订单失败
	ErrCodeOrderGetFailed = 210206
)

// 回调模块错误码 (210300-210399)
const (
	// ErrCodeCallbackSignatureInvalid 回调检查码验证失败
	ErrCodeCallbackSignatureInvalid = 210301
	// ErrCodeCallbackOrderNotFound 回调引用的订单不存在
	ErrCodeCallbackOrderNotFound = 210302
	// ErrCodeCallbackLockFailed 获取回调处理锁失败
	ErrCodeCallbackLockFailed = 210303
	// ErrCodeCallbackApplyFailed 回调落库失败
	ErrCodeCallbackApplyFailed = 210304
)

// 订阅模块错误码 (210400-210499)
const (
	// ErrCodeSubscriptionNotFound 订阅记录不存在
	ErrCodeSubscriptionNotFound = 210401
	// ErrCodeSubscriptionSaveFailed 保存订阅记录失败
	ErrCodeSubscriptionSaveFailed = 210402
	// ErrCodeSubscriptionApplyFailed 订阅开通/续期失败
	ErrCodeSubscriptionApplyFailed = 210403
)
