package ecpay

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// CheckoutOrder AioCheckOut 付款表单的业务输入
type CheckoutOrder struct {
	MerchantTradeNo string    // 商店订单编号（20 码）
	TradeDate       time.Time // 商店交易时间
	TotalAmount     float64   // 交易金额（绿界要求整数新台币）
	TradeDesc       string    // 交易描述
	ItemName        string    // 商品名称
	ReturnURL       string    // 付款结果异步通知网址
	PaymentMethod   string    // 付款方式（atm/webatm/barcode/cvs/credit）
	ClientBackURL   string    // 返回商店网址（可选）
	OrderResultURL  string    // 付款完成导向网址（可选）
}

// offlineMethods 需要绿界回传缴费资讯的离线付款方式
var offlineMethods = map[string]bool{
	MethodATM:     true,
	MethodBarcode: true,
	MethodCVS:     true,
}

// IsOfflineMethod 判断是否为先取号后缴费的离线付款方式
func IsOfflineMethod(method string) bool {
	return offlineMethods[method]
}

// BuildCheckoutForm 组装带检查码的付款表单参数
// 返回的 map 可直接渲染为提交到 ActionURL 的 HTML 表单，本函数不发起网络请求
func BuildCheckoutForm(cfg *Config, order *CheckoutOrder) (map[string]string, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	choosePayment, ok := ChoosePayment(order.PaymentMethod)
	if !ok {
		return nil, fmt.Errorf("unsupported payment method: %s", order.PaymentMethod)
	}

	params := map[string]string{
		"MerchantID":        cfg.MerchantID,
		"MerchantTradeNo":   order.MerchantTradeNo,
		"MerchantTradeDate": FormatTradeDate(order.TradeDate),
		"PaymentType":       "aio",
		"TotalAmount":       strconv.Itoa(int(math.Round(order.TotalAmount))),
		"TradeDesc":         order.TradeDesc,
		"ItemName":          order.ItemName,
		"ReturnURL":         order.ReturnURL,
		"ChoosePayment":     choosePayment,
		// EncryptType=1 表示 CheckMacValue 使用 SHA256
		"EncryptType": "1",
	}

	if order.ClientBackURL != "" {
		params["ClientBackURL"] = order.ClientBackURL
	}
	if order.OrderResultURL != "" {
		params["OrderResultURL"] = order.OrderResultURL
	}

	// ATM 和超商付款需要绿界在回调中带上缴费资讯
	if IsOfflineMethod(order.PaymentMethod) {
		params["NeedExtraPaidInfo"] = "Y"
	}

	params[CheckMacField] = GenerateCheckMacValue(params, cfg.HashKey, cfg.HashIV)
	return params, nil
}
