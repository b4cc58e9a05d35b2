package ecpay

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"
)

// 绿界（ECPay）全方位金流对接工具
//
// 本包是纯函数集合，不做任何 IO：
//  1. 产生/验证检查码（CheckMacValue）
//  2. 产生商店订单编号（MerchantTradeNo）
//  3. 组装 AioCheckOut 付款表单参数
//  4. 解析异步回调并分类交易结果

// 绿界 AioCheckOut API 端点
const (
	// AioCheckoutURLTest 测试环境
	AioCheckoutURLTest = "https://payment-stage.ecpay.com.tw/Cashier/AioCheckOut/V5"
	// AioCheckoutURLProduction 正式环境
	AioCheckoutURLProduction = "https://payment.ecpay.com.tw/Cashier/AioCheckOut/V5"
)

// 回调应答内容：绿界只认这两个字符串，回错了会一直重送
const (
	// AckSuccess 处理成功应答
	AckSuccess = "1|OK"
	// AckFailure 处理失败应答
	AckFailure = "0|Error"
)

// 绿界交易状态码（RtnCode）
const (
	// RtnCodePaid 付款成功
	RtnCodePaid = 1
	// RtnCodeATMCodeIssued ATM 虚拟帐号取号成功（待缴费）
	RtnCodeATMCodeIssued = 2
	// RtnCodeCVSCodeIssued 超商取号成功（待缴费，含条码与代码）
	RtnCodeCVSCodeIssued = 10100073
)

// TradeDateLayout 绿界交易时间格式（yyyy/MM/dd HH:mm:ss）
const TradeDateLayout = "2006/01/02 15:04:05"

// TradeTimeLocation 绿界所有时间栏位使用的台湾时区（UTC+8，无夏令时）
// 固定偏移，不依赖系统 tzdata
var TradeTimeLocation = time.FixedZone("Asia/Taipei", 8*60*60)

// CheckMacField 检查码栏位名
const CheckMacField = "CheckMacValue"

// MerchantTradeNoPrefix 商店订单编号固定前缀
const MerchantTradeNoPrefix = "ZHX"

// 付款方式
const (
	MethodATM     = "atm"
	MethodWebATM  = "webatm"
	MethodBarcode = "barcode"
	MethodCVS     = "cvs"
	MethodCredit  = "credit"
)

// choosePaymentMap 付款方式对应绿界 ChoosePayment 参数
var choosePaymentMap = map[string]string{
	MethodATM:     "ATM",
	MethodWebATM:  "WebATM",
	MethodBarcode: "BARCODE",
	MethodCVS:     "CVS",
	MethodCredit:  "Credit",
}

// ChoosePayment 返回付款方式对应的绿界枚举值
func ChoosePayment(method string) (string, bool) {
	v, ok := choosePaymentMap[method]
	return v, ok
}

// Config 绿界商户配置（由外部注入，禁止包级全局状态）
type Config struct {
	MerchantID string
	HashKey    string
	HashIV     string
	TestMode   bool
}

// AioCheckoutURL 根据测试/正式模式返回收银台端点
func (c *Config) AioCheckoutURL() string {
	if c.TestMode {
		return AioCheckoutURLTest
	}
	return AioCheckoutURLProduction
}

// Validate 校验商户配置完整性
func (c *Config) Validate() error {
	if c.MerchantID == "" {
		return fmt.Errorf("ecpay merchant_id is required")
	}
	if c.HashKey == "" {
		return fmt.Errorf("ecpay hash_key is required")
	}
	if c.HashIV == "" {
		return fmt.Errorf("ecpay hash_iv is required")
	}
	return nil
}

// uriComponentSafe 与 JS encodeURIComponent 相同的保留字符集
const uriComponentSafe = "-_.!~*'()"

func isURIComponentSafe(b byte) bool {
	if 'A' <= b && b <= 'Z' || 'a' <= b && b <= 'z' || '0' <= b && b <= '9' {
		return true
	}
	return strings.IndexByte(uriComponentSafe, b) >= 0
}

const upperHex = "0123456789ABCDEF"

// encodeURIComponent 逐字节百分号编码，保留字符集与 JS encodeURIComponent 一致
func encodeURIComponent(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		b := s[i]
		if isURIComponentSafe(b) {
			sb.WriteByte(b)
			continue
		}
		sb.WriteByte('%')
		sb.WriteByte(upperHex[b>>4])
		sb.WriteByte(upperHex[b&0x0f])
	}
	return sb.String()
}

// ecpayReplacer 绿界检查码专用替换规则：
// 空白转 +，而 ! ' ( ) * 虽是 RFC 3986 保留字符，绿界要求强制转义。
// 这套替换和标准 URL 编码不一致，是检查码不符最常见的根因，改动前先跑测试。
var ecpayReplacer = strings.NewReplacer(
	"%20", "+",
	"!", "%21",
	"'", "%27",
	"(", "%28",
	")", "%29",
	"*", "%2A",
)

// URLEncode 绿界检查码专用 URL 编码
func URLEncode(value string) string {
	return ecpayReplacer.Replace(encodeURIComponent(value))
}

// GenerateCheckMacValue 产生检查码
//
// 步骤（必须与绿界文档完全一致，任何偏差都会导致签名静默不符）：
//  1. 移除 CheckMacValue 栏位（如果存在）
//  2. 按 Key 不分大小写字典序排序
//  3. 串接成 key1=value1&key2=value2
//  4. 前后加上 HashKey / HashIV
//  5. URL 编码（绿界专用规则）
//  6. 全部转小写
//  7. SHA256
//  8. 十六进制转大写
func GenerateCheckMacValue(params map[string]string, hashKey, hashIV string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == CheckMacField {
			continue
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return strings.ToLower(keys[i]) < strings.ToLower(keys[j])
	})

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}

	raw := "HashKey=" + hashKey + "&" + strings.Join(pairs, "&") + "&HashIV=" + hashIV
	encoded := strings.ToLower(URLEncode(raw))
	sum := sha256.Sum256([]byte(encoded))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// VerifyCheckMacValue 验证回调参数的检查码
// 使用常数时间比较，避免签名比对的时序侧信道
func VerifyCheckMacValue(params map[string]string, hashKey, hashIV string) bool {
	received, ok := params[CheckMacField]
	if !ok || received == "" {
		return false
	}
	calculated := GenerateCheckMacValue(params, hashKey, hashIV)
	return subtle.ConstantTimeCompare([]byte(received), []byte(calculated)) == 1
}

// GenerateMerchantTradeNo 产生商店订单编号
// 格式：ZHX + 毫秒时间戳（13 码）+ 随机数（4 码）= 20 码
// 唯一性由存储层唯一索引兜底，调用方发生冲突时重试
func GenerateMerchantTradeNo(now time.Time) string {
	timestamp := now.UnixMilli()
	random := rand.Intn(10000)
	return fmt.Sprintf("%s%013d%04d", MerchantTradeNoPrefix, timestamp, random)
}

// FormatTradeDate 格式化绿界交易时间（转为台湾时区后输出）
func FormatTradeDate(t time.Time) string {
	return t.In(TradeTimeLocation).Format(TradeDateLayout)
}

// ParseTradeDate 解析绿界回传的时间栏位
// 绿界回传的是台湾当地时间，按 UTC 解析会整体偏移 8 小时
func ParseTradeDate(s string) (time.Time, error) {
	return time.ParseInLocation(TradeDateLayout, s, TradeTimeLocation)
}
