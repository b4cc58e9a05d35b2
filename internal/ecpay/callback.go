package ecpay

import (
	"net/url"
	"strconv"
)

// Outcome 回调分类结果
type Outcome int

const (
	// OutcomePaid 付款成功
	OutcomePaid Outcome = iota
	// OutcomeCodeIssued 取号成功（ATM 虚拟帐号 / 超商条码 / 超商代码），尚未实际付款
	OutcomeCodeIssued
	// OutcomeFailed 交易失败
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomePaid:
		return "paid"
	case OutcomeCodeIssued:
		return "code_issued"
	default:
		return "failed"
	}
}

// OfflineInfo 离线缴费资讯（按付款方式区分的标签联合，
// 避免单一结构体里塞一堆可选栏位导致非法组合可表达）
type OfflineInfo interface {
	offlineInfo()
	// ExpireAt 缴费期限（绿界原始字符串格式）
	ExpireAt() string
}

// ATMInfo ATM 虚拟帐号缴费资讯
type ATMInfo struct {
	BankCode       string
	VirtualAccount string
	ExpireDate     string
}

func (ATMInfo) offlineInfo()       {}
func (i ATMInfo) ExpireAt() string { return i.ExpireDate }

// BarcodeInfo 超商条码缴费资讯
type BarcodeInfo struct {
	Barcode1   string
	Barcode2   string
	Barcode3   string
	ExpireDate string
}

func (BarcodeInfo) offlineInfo()       {}
func (i BarcodeInfo) ExpireAt() string { return i.ExpireDate }

// CVSInfo 超商代码缴费资讯
type CVSInfo struct {
	PaymentNo  string
	ExpireDate string
}

func (CVSInfo) offlineInfo()       {}
func (i CVSInfo) ExpireAt() string { return i.ExpireDate }

// Callback 绿界异步通知内容
type Callback struct {
	MerchantID      string
	MerchantTradeNo string
	TradeNo         string // 绿界交易编号
	RtnCode         int
	RtnMsg          string
	TradeAmt        int
	PaymentDate     string // yyyy/MM/dd HH:mm:ss
	PaymentType     string
	TradeDate       string
	SimulatePaid    bool // 绿界后台模拟付款

	// raw 保留全部原始栏位用于验签：验签必须覆盖收到的每一个栏位，
	// 不能只用上面解析过的子集
	raw map[string]string
}

// ParseCallback 解析 x-www-form-urlencoded 回调参数
func ParseCallback(form url.Values) *Callback {
	raw := make(map[string]string, len(form))
	for k := range form {
		raw[k] = form.Get(k)
	}

	rtnCode, _ := strconv.Atoi(raw["RtnCode"])
	tradeAmt, _ := strconv.Atoi(raw["TradeAmt"])
	simulate, _ := strconv.Atoi(raw["SimulatePaid"])

	return &Callback{
		MerchantID:      raw["MerchantID"],
		MerchantTradeNo: raw["MerchantTradeNo"],
		TradeNo:         raw["TradeNo"],
		RtnCode:         rtnCode,
		RtnMsg:          raw["RtnMsg"],
		TradeAmt:        tradeAmt,
		PaymentDate:     raw["PaymentDate"],
		PaymentType:     raw["PaymentType"],
		TradeDate:       raw["TradeDate"],
		SimulatePaid:    simulate == 1,
		raw:             raw,
	}
}

// Verify 用全部原始栏位验证检查码
func (c *Callback) Verify(hashKey, hashIV string) bool {
	return VerifyCheckMacValue(c.raw, hashKey, hashIV)
}

// Outcome 按 RtnCode 分类交易结果
func (c *Callback) Outcome() Outcome {
	switch c.RtnCode {
	case RtnCodePaid:
		return OutcomePaid
	case RtnCodeATMCodeIssued, RtnCodeCVSCodeIssued:
		return OutcomeCodeIssued
	default:
		return OutcomeFailed
	}
}

// OfflineInfo 提取取号回调里的离线缴费资讯
// 只在 OutcomeCodeIssued 时有意义，按回传栏位推断付款方式
func (c *Callback) OfflineInfo() (OfflineInfo, bool) {
	expire := c.raw["ExpireDate"]
	if c.raw["BankCode"] != "" && c.raw["vAccount"] != "" {
		return ATMInfo{
			BankCode:       c.raw["BankCode"],
			VirtualAccount: c.raw["vAccount"],
			ExpireDate:     expire,
		}, true
	}
	if c.raw["Barcode1"] != "" && c.raw["Barcode2"] != "" && c.raw["Barcode3"] != "" {
		return BarcodeInfo{
			Barcode1:   c.raw["Barcode1"],
			Barcode2:   c.raw["Barcode2"],
			Barcode3:   c.raw["Barcode3"],
			ExpireDate: expire,
		}, true
	}
	if c.raw["PaymentNo"] != "" {
		return CVSInfo{
			PaymentNo:  c.raw["PaymentNo"],
			ExpireDate: expire,
		}, true
	}
	return nil, false
}
