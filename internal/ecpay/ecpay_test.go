package ecpay

import (
	"net/url"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testHashKey = "5294y06JbISpM5x9"
	testHashIV  = "v77hoKGq4kWxNNIS"
)

var checkMacShape = regexp.MustCompile(`^[0-9A-F]{64}$`)

func sampleParams() map[string]string {
	return map[string]string{
		"MerchantID":        "2000132",
		"MerchantTradeNo":   "ZHX17000000000001234",
		"MerchantTradeDate": "2025/09/01 12:30:00",
		"PaymentType":       "aio",
		"TotalAmount":       "299",
		"TradeDesc":         "vip monthly",
		"ItemName":          "VIP (monthly) * 1",
		"ReturnURL":         "https://example.com/v1/payments/callback",
		"ChoosePayment":     "ATM",
		"EncryptType":       "1",
	}
}

func TestURLEncode(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "abcXYZ019", "abcXYZ019"},
		{"space becomes plus", "a b c", "a+b+c"},
		{"exclamation", "a!b", "a%21b"},
		{"single quote", "it's", "it%27s"},
		{"parens", "(x)", "%28x%29"},
		{"asterisk", "a*b", "a%2Ab"},
		{"tilde stays", "a~b", "a~b"},
		{"unreserved stay", "a-b_c.d", "a-b_c.d"},
		{"slash", "a/b", "a%2Fb"},
		{"equals and ampersand", "k=v&x=y", "k%3Dv%26x%3Dy"},
		{"colon", "https://x", "https%3A%2F%2Fx"},
		{"percent", "100%", "100%25"},
		{"cjk utf8", "中", "%E4%B8%AD"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, URLEncode(tc.in))
		})
	}
}

func TestGenerateCheckMacValueShape(t *testing.T) {
	mac := GenerateCheckMacValue(sampleParams(), testHashKey, testHashIV)
	assert.Regexp(t, checkMacShape, mac)
}

func TestGenerateCheckMacValueDeterministic(t *testing.T) {
	params := sampleParams()
	first := GenerateCheckMacValue(params, testHashKey, testHashIV)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, GenerateCheckMacValue(params, testHashKey, testHashIV))
	}
}

func TestGenerateCheckMacValueIgnoresOwnField(t *testing.T) {
	params := sampleParams()
	without := GenerateCheckMacValue(params, testHashKey, testHashIV)

	params[CheckMacField] = "GARBAGE"
	with := GenerateCheckMacValue(params, testHashKey, testHashIV)
	assert.Equal(t, without, with)
}

func TestVerifyCheckMacValueRoundTrip(t *testing.T) {
	params := sampleParams()
	params[CheckMacField] = GenerateCheckMacValue(params, testHashKey, testHashIV)
	assert.True(t, VerifyCheckMacValue(params, testHashKey, testHashIV))
}

func TestVerifyCheckMacValueRejectsTamper(t *testing.T) {
	params := sampleParams()
	params[CheckMacField] = GenerateCheckMacValue(params, testHashKey, testHashIV)

	params["TotalAmount"] = "1"
	assert.False(t, VerifyCheckMacValue(params, testHashKey, testHashIV))
}

func TestVerifyCheckMacValueRejectsWrongSecrets(t *testing.T) {
	params := sampleParams()
	params[CheckMacField] = GenerateCheckMacValue(params, testHashKey, testHashIV)
	assert.False(t, VerifyCheckMacValue(params, "wrongkey", testHashIV))
	assert.False(t, VerifyCheckMacValue(params, testHashKey, "wrongiv"))
}

func TestVerifyCheckMacValueMissingField(t *testing.T) {
	assert.False(t, VerifyCheckMacValue(sampleParams(), testHashKey, testHashIV))
}

func TestCheckMacValueSortIsCaseInsensitive(t *testing.T) {
	// aKey 和 Bkey：区分大小写的字典序会把 B 排在 a 前面，
	// 绿界要求按不分大小写排序（a 在前）
	lower := map[string]string{"aKey": "1", "Bkey": "2", "MerchantID": "m"}
	mac := GenerateCheckMacValue(lower, testHashKey, testHashIV)
	assert.Regexp(t, checkMacShape, mac)

	lower[CheckMacField] = mac
	assert.True(t, VerifyCheckMacValue(lower, testHashKey, testHashIV))
}

func TestGenerateMerchantTradeNo(t *testing.T) {
	now := time.Now()
	no := GenerateMerchantTradeNo(now)
	assert.Len(t, no, 20)
	assert.Regexp(t, `^ZHX\d{13}\d{4}$`, no)

	// 同一毫秒内靠 4 码随机数区分，多次生成应当几乎不重复
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		seen[GenerateMerchantTradeNo(time.Now())] = true
	}
	assert.Greater(t, len(seen), 90)
}

func TestFormatTradeDate(t *testing.T) {
	// 绿界栏位一律为台湾时间：UTC 08:05 应输出 16:05
	ts := time.Date(2025, 9, 1, 8, 5, 9, 0, time.UTC)
	assert.Equal(t, "2025/09/01 16:05:09", FormatTradeDate(ts))

	local := time.Date(2025, 9, 1, 8, 5, 9, 0, TradeTimeLocation)
	assert.Equal(t, "2025/09/01 08:05:09", FormatTradeDate(local))
}

func TestParseTradeDate(t *testing.T) {
	ts, err := ParseTradeDate("2026/08/31 10:30:00")
	assert.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 31, 2, 30, 0, 0, time.UTC), ts.UTC())

	_, err = ParseTradeDate("not-a-date")
	assert.Error(t, err)
}

func TestBuildCheckoutFormATM(t *testing.T) {
	cfg := &Config{MerchantID: "2000132", HashKey: testHashKey, HashIV: testHashIV, TestMode: true}
	order := &CheckoutOrder{
		MerchantTradeNo: GenerateMerchantTradeNo(time.Now()),
		TradeDate:       time.Now(),
		TotalAmount:     299,
		TradeDesc:       "vip monthly subscription",
		ItemName:        "VIP monthly",
		ReturnURL:       "https://example.com/v1/payments/callback",
		PaymentMethod:   MethodATM,
	}

	form, err := BuildCheckoutForm(cfg, order)
	require.NoError(t, err)

	assert.Equal(t, "ATM", form["ChoosePayment"])
	assert.Equal(t, "1", form["EncryptType"])
	assert.Equal(t, "Y", form["NeedExtraPaidInfo"])
	assert.Equal(t, "299", form["TotalAmount"])
	assert.Equal(t, "aio", form["PaymentType"])
	assert.Regexp(t, checkMacShape, form[CheckMacField])
	assert.True(t, VerifyCheckMacValue(form, testHashKey, testHashIV))
	assert.Equal(t, AioCheckoutURLTest, cfg.AioCheckoutURL())
}

func TestBuildCheckoutFormCreditHasNoExtraPaidInfo(t *testing.T) {
	cfg := &Config{MerchantID: "2000132", HashKey: testHashKey, HashIV: testHashIV}
	order := &CheckoutOrder{
		MerchantTradeNo: GenerateMerchantTradeNo(time.Now()),
		TradeDate:       time.Now(),
		TotalAmount:     299,
		TradeDesc:       "desc",
		ItemName:        "item",
		ReturnURL:       "https://example.com/cb",
		PaymentMethod:   MethodCredit,
	}

	form, err := BuildCheckoutForm(cfg, order)
	require.NoError(t, err)
	_, ok := form["NeedExtraPaidInfo"]
	assert.False(t, ok)
	assert.Equal(t, AioCheckoutURLProduction, cfg.AioCheckoutURL())
}

func TestBuildCheckoutFormRejectsUnknownMethod(t *testing.T) {
	cfg := &Config{MerchantID: "2000132", HashKey: testHashKey, HashIV: testHashIV}
	_, err := BuildCheckoutForm(cfg, &CheckoutOrder{PaymentMethod: "paypal"})
	assert.Error(t, err)
}

func TestBuildCheckoutFormRejectsMissingCredentials(t *testing.T) {
	_, err := BuildCheckoutForm(&Config{}, &CheckoutOrder{PaymentMethod: MethodATM})
	assert.Error(t, err)
}

func signedCallbackForm(t *testing.T, override map[string]string) url.Values {
	t.Helper()
	params := map[string]string{
		"MerchantID":      "2000132",
		"MerchantTradeNo": "ZHX17000000000001234",
		"TradeNo":         "2409021234567890",
		"RtnCode":         "1",
		"RtnMsg":          "Succeeded",
		"TradeAmt":        "299",
		"PaymentDate":     "2025/09/01 12:34:56",
		"PaymentType":     "ATM_TAISHIN",
		"TradeDate":       "2025/09/01 12:30:00",
		"SimulatePaid":    "0",
	}
	for k, v := range override {
		params[k] = v
	}
	params[CheckMacField] = GenerateCheckMacValue(params, testHashKey, testHashIV)

	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	return form
}

func TestParseCallbackVerifyAndClassifyPaid(t *testing.T) {
	cb := ParseCallback(signedCallbackForm(t, nil))
	assert.True(t, cb.Verify(testHashKey, testHashIV))
	assert.Equal(t, OutcomePaid, cb.Outcome())
	assert.Equal(t, "2409021234567890", cb.TradeNo)
	assert.Equal(t, 299, cb.TradeAmt)
	assert.False(t, cb.SimulatePaid)
}

func TestParseCallbackTamperedAmountFailsVerify(t *testing.T) {
	form := signedCallbackForm(t, nil)
	form.Set("TradeAmt", "1")
	cb := ParseCallback(form)
	assert.False(t, cb.Verify(testHashKey, testHashIV))
}

func TestCallbackOutcomeClassification(t *testing.T) {
	cases := []struct {
		code string
		want Outcome
	}{
		{"1", OutcomePaid},
		{"2", OutcomeCodeIssued},
		{"10100073", OutcomeCodeIssued},
		{"10200095", OutcomeFailed},
		{"0", OutcomeFailed},
	}
	for _, tc := range cases {
		cb := ParseCallback(signedCallbackForm(t, map[string]string{"RtnCode": tc.code}))
		assert.Equal(t, tc.want, cb.Outcome(), "RtnCode=%s", tc.code)
	}
}

func TestCallbackOfflineInfoATM(t *testing.T) {
	cb := ParseCallback(signedCallbackForm(t, map[string]string{
		"RtnCode":    "2",
		"BankCode":   "812",
		"vAccount":   "9103522175887271",
		"ExpireDate": "2025/09/04",
	}))
	require.True(t, cb.Verify(testHashKey, testHashIV))

	info, ok := cb.OfflineInfo()
	require.True(t, ok)
	atm, ok := info.(ATMInfo)
	require.True(t, ok)
	assert.Equal(t, "812", atm.BankCode)
	assert.Equal(t, "9103522175887271", atm.VirtualAccount)
	assert.Equal(t, "2025/09/04", info.ExpireAt())
}

func TestCallbackOfflineInfoBarcode(t *testing.T) {
	cb := ParseCallback(signedCallbackForm(t, map[string]string{
		"RtnCode":    "10100073",
		"Barcode1":   "1104086EA",
		"Barcode2":   "3453011399918671",
		"Barcode3":   "061206000000299",
		"ExpireDate": "2025/09/08 23:59:59",
	}))
	info, ok := cb.OfflineInfo()
	require.True(t, ok)
	barcode, ok := info.(BarcodeInfo)
	require.True(t, ok)
	assert.Equal(t, "3453011399918671", barcode.Barcode2)
}

func TestCallbackOfflineInfoCVS(t *testing.T) {
	cb := ParseCallback(signedCallbackForm(t, map[string]string{
		"RtnCode":    "10100073",
		"PaymentNo":  "GW250901123456",
		"ExpireDate": "2025/09/08 23:59:59",
	}))
	info, ok := cb.OfflineInfo()
	require.True(t, ok)
	cvs, ok := info.(CVSInfo)
	require.True(t, ok)
	assert.Equal(t, "GW250901123456", cvs.PaymentNo)
}

func TestCallbackOfflineInfoAbsent(t *testing.T) {
	cb := ParseCallback(signedCallbackForm(t, nil))
	_, ok := cb.OfflineInfo()
	assert.False(t, ok)
}
