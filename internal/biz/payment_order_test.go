package biz

import (
	"context"
	"net/url"
	"strconv"
	"testing"
	"time"

	"payment-service/internal/constants"
	"payment-service/internal/ecpay"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 绿界测试环境公开商店凭证
const (
	testMerchantID = "2000132"
	testHashKey    = "5294y06JbISpM5x9"
	testHashIV     = "v77hoKGq4kWxNNIS"
)

type paymentTestEnv struct {
	uc        *PaymentUseCase
	subUC     *SubscriptionUseCase
	orderRepo *fakeOrderRepo
	subRepo   *fakeSubRepo
	planRepo  *fakePlanRepo
	tx        *fakeTx
	publisher *fakePublisher
}

func newPaymentTestEnv() *paymentTestEnv {
	planRepo := &fakePlanRepo{plans: []*Plan{
		{
			PlanID:       "plan-premium",
			PlanName:     "premium",
			DisplayName:  "高级会员",
			Price:        299,
			Currency:     constants.CurrencyTWD,
			DurationDays: 30,
			IsActive:     true,
		},
		{
			PlanID:       "plan-legacy",
			PlanName:     "legacy",
			DisplayName:  "旧版套餐",
			Price:        199,
			Currency:     constants.CurrencyTWD,
			DurationDays: 30,
			IsActive:     false,
		},
	}}
	orderRepo := newFakeOrderRepo()
	subRepo := newFakeSubRepo()
	tx := &fakeTx{}
	publisher := &fakePublisher{}

	gateway := &GatewayConfig{
		ECPay: &ecpay.Config{
			MerchantID: testMerchantID,
			HashKey:    testHashKey,
			HashIV:     testHashIV,
			TestMode:   true,
		},
		ReturnURL:       "https://example.com/v1/payments/callback",
		ClientBackURL:   "https://example.com/membership",
		TradeDescPrefix: "會員訂閱",
	}

	subUC := NewSubscriptionUseCase(subRepo, planRepo, orderRepo, tx, log.DefaultLogger)
	uc := NewPaymentUseCase(orderRepo, planRepo, subUC, tx, nil, publisher, gateway, log.DefaultLogger)
	return &paymentTestEnv{
		uc:        uc,
		subUC:     subUC,
		orderRepo: orderRepo,
		subRepo:   subRepo,
		planRepo:  planRepo,
		tx:        tx,
		publisher: publisher,
	}
}

// signedForm 用测试凭证产生一份验签通过的回调表单
func signedForm(fields map[string]string) url.Values {
	params := make(map[string]string, len(fields)+1)
	for k, v := range fields {
		params[k] = v
	}
	mac := ecpay.GenerateCheckMacValue(params, testHashKey, testHashIV)
	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	form.Set(ecpay.CheckMacField, mac)
	return form
}

func paidCallbackFields(orderNumber string, amount int) map[string]string {
	return map[string]string{
		"MerchantID":      testMerchantID,
		"MerchantTradeNo": orderNumber,
		"TradeNo":         "2508311234567890",
		"RtnCode":         "1",
		"RtnMsg":          "交易成功",
		"TradeAmt":        strconv.Itoa(amount),
		"PaymentDate":     "2026/08/31 10:30:00",
		"PaymentType":     "ATM_LAND",
		"TradeDate":       "2026/08/30 18:00:00",
		"SimulatePaid":    "0",
	}
}

func TestCreatePayment(t *testing.T) {
	ctx := context.Background()

	t.Run("creates pending order and signed checkout form", func(t *testing.T) {
		env := newPaymentTestEnv()

		payload, err := env.uc.CreatePayment(ctx, "user-1", "premium", ecpay.MethodATM)
		require.NoError(t, err)
		require.NotNil(t, payload)

		assert.Len(t, payload.OrderNumber, 20)
		assert.Equal(t, float64(299), payload.Amount)
		assert.Equal(t, ecpay.AioCheckoutURLTest, payload.ActionURL)
		assert.Equal(t, payload.OrderNumber, payload.FormData["MerchantTradeNo"])
		assert.Equal(t, "ATM", payload.FormData["ChoosePayment"])
		assert.Equal(t, "Y", payload.FormData["NeedExtraPaidInfo"])
		assert.True(t, ecpay.VerifyCheckMacValue(payload.FormData, testHashKey, testHashIV))

		order, err := env.orderRepo.GetOrderByNumber(ctx, payload.OrderNumber)
		require.NoError(t, err)
		require.NotNil(t, order)
		assert.Equal(t, constants.OrderStatusPending, order.Status)
		assert.Equal(t, "user-1", order.UserID)
		assert.Equal(t, "plan-premium", order.PlanID)
		assert.Equal(t, ecpay.MethodATM, order.PaymentMethod)
	})

	t.Run("rejects online-only payment methods", func(t *testing.T) {
		env := newPaymentTestEnv()

		for _, method := range []string{ecpay.MethodCredit, ecpay.MethodWebATM, "paypal", ""} {
			payload, err := env.uc.CreatePayment(ctx, "user-1", "premium", method)
			assert.Error(t, err, "method %q should be rejected", method)
			assert.Nil(t, payload)
		}
		assert.Empty(t, env.orderRepo.orders)
	})

	t.Run("rejects unknown plan", func(t *testing.T) {
		env := newPaymentTestEnv()

		payload, err := env.uc.CreatePayment(ctx, "user-1", "no-such-plan", ecpay.MethodATM)
		assert.Error(t, err)
		assert.Nil(t, payload)
	})

	t.Run("rejects inactive plan", func(t *testing.T) {
		env := newPaymentTestEnv()

		payload, err := env.uc.CreatePayment(ctx, "user-1", "legacy", ecpay.MethodCVS)
		assert.Error(t, err)
		assert.Nil(t, payload)
	})

	t.Run("retries on order number collision", func(t *testing.T) {
		env := newPaymentTestEnv()
		env.orderRepo.createErr = ErrOrderNumberTaken
		env.orderRepo.createErrCount = 2

		payload, err := env.uc.CreatePayment(ctx, "user-1", "premium", ecpay.MethodBarcode)
		require.NoError(t, err)
		require.NotNil(t, payload)
		assert.Len(t, env.orderRepo.orders, 1)
	})

	t.Run("gives up after repeated collisions", func(t *testing.T) {
		env := newPaymentTestEnv()
		env.orderRepo.createErr = ErrOrderNumberTaken
		env.orderRepo.createErrCount = -1

		payload, err := env.uc.CreatePayment(ctx, "user-1", "premium", ecpay.MethodATM)
		assert.Error(t, err)
		assert.Nil(t, payload)
	})
}

func TestHandleCallbackPaid(t *testing.T) {
	ctx := context.Background()

	t.Run("flips order and activates subscription", func(t *testing.T) {
		env := newPaymentTestEnv()
		payload, err := env.uc.CreatePayment(ctx, "user-1", "premium", ecpay.MethodATM)
		require.NoError(t, err)

		before := time.Now().UTC()
		ack := env.uc.HandleCallback(ctx, signedForm(paidCallbackFields(payload.OrderNumber, 299)))
		assert.Equal(t, ecpay.AckSuccess, ack)

		order, _ := env.orderRepo.GetOrderByNumber(ctx, payload.OrderNumber)
		assert.Equal(t, constants.OrderStatusCompleted, order.Status)
		assert.Equal(t, "2508311234567890", order.TradeNo)
		assert.NotNil(t, order.SubscriptionAppliedAt, "completed order must carry the applied marker")

		sub, err := env.subRepo.GetSubscription(ctx, "user-1")
		require.NoError(t, err)
		require.NotNil(t, sub)
		assert.Equal(t, constants.SubscriptionStatusActive, sub.Status)
		assert.Equal(t, "plan-premium", sub.PlanID)
		assert.False(t, sub.IsTrial)
		assert.Equal(t, order.OrderID, sub.PaymentOrderID)
		assert.WithinDuration(t, before.AddDate(0, 0, 30), sub.EndDate, 5*time.Second)
	})

	t.Run("duplicate paid callback is a no-op", func(t *testing.T) {
		env := newPaymentTestEnv()
		payload, err := env.uc.CreatePayment(ctx, "user-1", "premium", ecpay.MethodATM)
		require.NoError(t, err)

		form := signedForm(paidCallbackFields(payload.OrderNumber, 299))
		require.Equal(t, ecpay.AckSuccess, env.uc.HandleCallback(ctx, form))
		firstSub, _ := env.subRepo.GetSubscription(ctx, "user-1")
		firstEvents := len(env.publisher.events)

		ack := env.uc.HandleCallback(ctx, form)
		assert.Equal(t, ecpay.AckSuccess, ack)

		secondSub, _ := env.subRepo.GetSubscription(ctx, "user-1")
		assert.Equal(t, firstSub.EndDate, secondSub.EndDate)
		assert.Equal(t, firstSub.StartDate, secondSub.StartDate)
		assert.Equal(t, firstEvents, len(env.publisher.events))
	})

	t.Run("renewal replaces the period instead of extending it", func(t *testing.T) {
		env := newPaymentTestEnv()

		first, err := env.uc.CreatePayment(ctx, "user-1", "premium", ecpay.MethodATM)
		require.NoError(t, err)
		require.Equal(t, ecpay.AckSuccess,
			env.uc.HandleCallback(ctx, signedForm(paidCallbackFields(first.OrderNumber, 299))))

		second, err := env.uc.CreatePayment(ctx, "user-1", "premium", ecpay.MethodATM)
		require.NoError(t, err)
		before := time.Now().UTC()
		require.Equal(t, ecpay.AckSuccess,
			env.uc.HandleCallback(ctx, signedForm(paidCallbackFields(second.OrderNumber, 299))))

		sub, _ := env.subRepo.GetSubscription(ctx, "user-1")
		require.NotNil(t, sub)
		assert.WithinDuration(t, before.AddDate(0, 0, 30), sub.EndDate, 5*time.Second)
		secondOrder, _ := env.orderRepo.GetOrderByNumber(ctx, second.OrderNumber)
		assert.Equal(t, secondOrder.OrderID, sub.PaymentOrderID)
	})

	t.Run("publishes payment completed event", func(t *testing.T) {
		env := newPaymentTestEnv()
		payload, err := env.uc.CreatePayment(ctx, "user-1", "premium", ecpay.MethodATM)
		require.NoError(t, err)

		env.uc.HandleCallback(ctx, signedForm(paidCallbackFields(payload.OrderNumber, 299)))

		require.Len(t, env.publisher.events, 1)
		event := env.publisher.events[0]
		assert.Equal(t, payload.OrderNumber, event.OrderNumber)
		assert.Equal(t, "user-1", event.UserID)
		assert.Equal(t, "plan-premium", event.PlanID)
		assert.Equal(t, float64(299), event.Amount)
		assert.Equal(t, "2508311234567890", event.TradeNo)
		// PaymentDate 是台湾当地时间，折算成 UTC 要回拨八小时
		assert.Equal(t, time.Date(2026, 8, 31, 2, 30, 0, 0, time.UTC), event.PaidAt)
	})

	t.Run("publish failure does not change the ack", func(t *testing.T) {
		env := newPaymentTestEnv()
		env.publisher.publishErr = errMockRepo
		payload, err := env.uc.CreatePayment(ctx, "user-1", "premium", ecpay.MethodATM)
		require.NoError(t, err)

		ack := env.uc.HandleCallback(ctx, signedForm(paidCallbackFields(payload.OrderNumber, 299)))
		assert.Equal(t, ecpay.AckSuccess, ack)
		order, _ := env.orderRepo.GetOrderByNumber(ctx, payload.OrderNumber)
		assert.Equal(t, constants.OrderStatusCompleted, order.Status)
	})

	t.Run("transaction failure keeps order pending and asks for redelivery", func(t *testing.T) {
		env := newPaymentTestEnv()
		env.tx.execErr = errMockRepo
		payload, err := env.uc.CreatePayment(ctx, "user-1", "premium", ecpay.MethodATM)
		require.NoError(t, err)

		ack := env.uc.HandleCallback(ctx, signedForm(paidCallbackFields(payload.OrderNumber, 299)))
		assert.Equal(t, ecpay.AckFailure, ack)

		order, _ := env.orderRepo.GetOrderByNumber(ctx, payload.OrderNumber)
		assert.Equal(t, constants.OrderStatusPending, order.Status)
		sub, _ := env.subRepo.GetSubscription(ctx, "user-1")
		assert.Nil(t, sub)
	})
}

func TestHandleCallbackCodeIssued(t *testing.T) {
	ctx := context.Background()

	t.Run("ATM code issued keeps order pending and stores payment info", func(t *testing.T) {
		env := newPaymentTestEnv()
		payload, err := env.uc.CreatePayment(ctx, "user-1", "premium", ecpay.MethodATM)
		require.NoError(t, err)

		ack := env.uc.HandleCallback(ctx, signedForm(map[string]string{
			"MerchantID":      testMerchantID,
			"MerchantTradeNo": payload.OrderNumber,
			"TradeNo":         "2508319876543210",
			"RtnCode":         "2",
			"RtnMsg":          "Get VirtualAccount Succeeded",
			"TradeAmt":        "299",
			"PaymentType":     "ATM_LAND",
			"TradeDate":       "2026/08/31 10:00:00",
			"BankCode":        "005",
			"vAccount":        "9103522175887271",
			"ExpireDate":      "2026/09/03",
		}))
		assert.Equal(t, ecpay.AckSuccess, ack)

		order, _ := env.orderRepo.GetOrderByNumber(ctx, payload.OrderNumber)
		assert.Equal(t, constants.OrderStatusPending, order.Status)
		atm, ok := order.Offline.(ecpay.ATMInfo)
		require.True(t, ok)
		assert.Equal(t, "005", atm.BankCode)
		assert.Equal(t, "9103522175887271", atm.VirtualAccount)
		assert.Equal(t, "2026/09/03", atm.ExpireDate)

		sub, _ := env.subRepo.GetSubscription(ctx, "user-1")
		assert.Nil(t, sub, "code issuance must not create a subscription")
	})

	t.Run("CVS code issued stores payment number", func(t *testing.T) {
		env := newPaymentTestEnv()
		payload, err := env.uc.CreatePayment(ctx, "user-1", "premium", ecpay.MethodCVS)
		require.NoError(t, err)

		ack := env.uc.HandleCallback(ctx, signedForm(map[string]string{
			"MerchantID":      testMerchantID,
			"MerchantTradeNo": payload.OrderNumber,
			"TradeNo":         "2508319876543211",
			"RtnCode":         "10100073",
			"RtnMsg":          "Get CVS Code Succeeded",
			"TradeAmt":        "299",
			"PaymentType":     "CVS_CVS",
			"TradeDate":       "2026/08/31 10:00:00",
			"PaymentNo":       "LLL22168688386",
			"ExpireDate":      "2026/09/07 10:00:00",
		}))
		assert.Equal(t, ecpay.AckSuccess, ack)

		order, _ := env.orderRepo.GetOrderByNumber(ctx, payload.OrderNumber)
		assert.Equal(t, constants.OrderStatusPending, order.Status)
		cvs, ok := order.Offline.(ecpay.CVSInfo)
		require.True(t, ok)
		assert.Equal(t, "LLL22168688386", cvs.PaymentNo)
	})
}

func TestHandleCallbackRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("tampered amount fails verification and changes nothing", func(t *testing.T) {
		env := newPaymentTestEnv()
		payload, err := env.uc.CreatePayment(ctx, "user-1", "premium", ecpay.MethodATM)
		require.NoError(t, err)

		form := signedForm(paidCallbackFields(payload.OrderNumber, 299))
		form.Set("TradeAmt", "1")

		ack := env.uc.HandleCallback(ctx, form)
		assert.Equal(t, ecpay.AckFailure, ack)

		order, _ := env.orderRepo.GetOrderByNumber(ctx, payload.OrderNumber)
		assert.Equal(t, constants.OrderStatusPending, order.Status)
		sub, _ := env.subRepo.GetSubscription(ctx, "user-1")
		assert.Nil(t, sub)
	})

	t.Run("missing signature is rejected", func(t *testing.T) {
		env := newPaymentTestEnv()
		payload, err := env.uc.CreatePayment(ctx, "user-1", "premium", ecpay.MethodATM)
		require.NoError(t, err)

		form := signedForm(paidCallbackFields(payload.OrderNumber, 299))
		form.Del(ecpay.CheckMacField)

		assert.Equal(t, ecpay.AckFailure, env.uc.HandleCallback(ctx, form))
	})

	t.Run("unknown order is rejected", func(t *testing.T) {
		env := newPaymentTestEnv()

		ack := env.uc.HandleCallback(ctx, signedForm(paidCallbackFields("ZHX17566560000001234", 299)))
		assert.Equal(t, ecpay.AckFailure, ack)
	})
}

func TestHandleCallbackFailed(t *testing.T) {
	ctx := context.Background()

	t.Run("failure callback moves order to failed and acks OK", func(t *testing.T) {
		env := newPaymentTestEnv()
		payload, err := env.uc.CreatePayment(ctx, "user-1", "premium", ecpay.MethodATM)
		require.NoError(t, err)

		fields := paidCallbackFields(payload.OrderNumber, 299)
		fields["RtnCode"] = "10100058"
		fields["RtnMsg"] = "付款失敗"

		ack := env.uc.HandleCallback(ctx, signedForm(fields))
		assert.Equal(t, ecpay.AckSuccess, ack)

		order, _ := env.orderRepo.GetOrderByNumber(ctx, payload.OrderNumber)
		assert.Equal(t, constants.OrderStatusFailed, order.Status)
		assert.Equal(t, 10100058, order.RtnCode)
		sub, _ := env.subRepo.GetSubscription(ctx, "user-1")
		assert.Nil(t, sub)
		assert.Empty(t, env.publisher.events)
	})

	t.Run("paid callback after failure does not resurrect the order", func(t *testing.T) {
		env := newPaymentTestEnv()
		payload, err := env.uc.CreatePayment(ctx, "user-1", "premium", ecpay.MethodATM)
		require.NoError(t, err)

		fields := paidCallbackFields(payload.OrderNumber, 299)
		fields["RtnCode"] = "10100058"
		require.Equal(t, ecpay.AckSuccess, env.uc.HandleCallback(ctx, signedForm(fields)))

		ack := env.uc.HandleCallback(ctx, signedForm(paidCallbackFields(payload.OrderNumber, 299)))
		assert.Equal(t, ecpay.AckSuccess, ack)

		order, _ := env.orderRepo.GetOrderByNumber(ctx, payload.OrderNumber)
		assert.Equal(t, constants.OrderStatusFailed, order.Status)
		sub, _ := env.subRepo.GetSubscription(ctx, "user-1")
		assert.Nil(t, sub)
	})
}

func TestGetOrderAndList(t *testing.T) {
	ctx := context.Background()

	t.Run("returns own order", func(t *testing.T) {
		env := newPaymentTestEnv()
		payload, err := env.uc.CreatePayment(ctx, "user-1", "premium", ecpay.MethodATM)
		require.NoError(t, err)

		order, err := env.uc.GetOrder(ctx, "user-1", payload.OrderNumber)
		require.NoError(t, err)
		assert.Equal(t, payload.OrderNumber, order.OrderNumber)
	})

	t.Run("hides other users orders", func(t *testing.T) {
		env := newPaymentTestEnv()
		payload, err := env.uc.CreatePayment(ctx, "user-1", "premium", ecpay.MethodATM)
		require.NoError(t, err)

		order, err := env.uc.GetOrder(ctx, "user-2", payload.OrderNumber)
		assert.Error(t, err)
		assert.Nil(t, order)
	})

	t.Run("lists user orders", func(t *testing.T) {
		env := newPaymentTestEnv()
		_, err := env.uc.CreatePayment(ctx, "user-1", "premium", ecpay.MethodATM)
		require.NoError(t, err)
		_, err = env.uc.CreatePayment(ctx, "user-1", "premium", ecpay.MethodCVS)
		require.NoError(t, err)
		_, err = env.uc.CreatePayment(ctx, "user-2", "premium", ecpay.MethodATM)
		require.NoError(t, err)

		orders, err := env.uc.ListOrders(ctx, "user-1", 10)
		require.NoError(t, err)
		assert.Len(t, orders, 2)
	})
}
