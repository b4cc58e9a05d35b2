package biz

import (
	"fmt"

	"payment-service/internal/conf"
	"payment-service/internal/ecpay"
)

// GatewayConfig 绿界网关配置（从 Bootstrap 注入）
type GatewayConfig struct {
	ECPay           *ecpay.Config
	ReturnURL       string // 付款结果异步通知网址
	ClientBackURL   string // 返回商店网址
	OrderResultURL  string // 付款完成导向网址
	TradeDescPrefix string // 交易描述前缀
}

// NewGatewayConfig 从配置创建 GatewayConfig
// 商户凭证缺失属于致命配置错误，启动即失败，不等到下单才暴露
func NewGatewayConfig(c *conf.Bootstrap) (*GatewayConfig, error) {
	if c.ECPay == nil {
		return nil, fmt.Errorf("ecpay config is nil")
	}

	cfg := &GatewayConfig{
		ECPay: &ecpay.Config{
			MerchantID: c.ECPay.MerchantID,
			HashKey:    c.ECPay.HashKey,
			HashIV:     c.ECPay.HashIV,
			TestMode:   c.ECPay.TestMode,
		},
		ReturnURL:       c.ECPay.ReturnURL,
		ClientBackURL:   c.ECPay.ClientBackURL,
		OrderResultURL:  c.ECPay.OrderResultURL,
		TradeDescPrefix: "會員訂閱",
	}
	if c.Subscription != nil && c.Subscription.TradeDescPrefix != "" {
		cfg.TradeDescPrefix = c.Subscription.TradeDescPrefix
	}

	if err := cfg.ECPay.Validate(); err != nil {
		return nil, err
	}
	if cfg.ReturnURL == "" {
		return nil, fmt.Errorf("ecpay return_url is required")
	}
	return cfg, nil
}
