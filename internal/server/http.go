package server

import (
	"encoding/json"
	stdhttp "net/http"
	"strconv"
	"time"

	"github.com/gaoyong06/go-pkg/health"
	"github.com/gaoyong06/go-pkg/middleware/i18n"

	"payment-service/internal/auth"
	"payment-service/internal/conf"
	"payment-service/internal/ecpay"
	"payment-service/internal/service"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ProviderSet is server providers.
var ProviderSet = wire.NewSet(NewHTTPServer)

// NewHTTPServer new an HTTP server.
func NewHTTPServer(c *conf.Bootstrap, svc *service.PaymentService, logger log.Logger) *http.Server {
	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
			auth.Middleware(),
			// 添加 i18n 中间件
			i18n.Middleware(),
		),
		http.ErrorEncoder(customErrorEncoder),
	}
	if c.Server.Http.Addr != "" {
		opts = append(opts, http.Address(c.Server.Http.Addr))
	}
	if c.Server.Http.Timeout != "" {
		if timeout, err := time.ParseDuration(c.Server.Http.Timeout); err == nil {
			opts = append(opts, http.Timeout(timeout))
		}
	}
	srv := http.NewServer(opts...)

	registerPaymentRoutes(srv, svc)

	// 注册健康检查端点
	srv.Route("/").GET("/health", func(ctx http.Context) error {
		return ctx.Result(200, health.NewResponse("payment-service"))
	})

	// Prometheus 指标端点
	srv.Handle("/metrics", promhttp.Handler())

	return srv
}

// requestUID 取当前请求的用户ID
// 原生路由不经过 kratos 中间件链，Header 需直接从请求读取
func requestUID(ctx http.Context) (string, bool) {
	if uid, ok := auth.GetUIDFromContext(ctx); ok {
		return uid, true
	}
	uid := ctx.Request().Header.Get(auth.UserIDHeader)
	return uid, uid != ""
}

func registerPaymentRoutes(srv *http.Server, svc *service.PaymentService) {
	route := srv.Route("/v1")

	route.POST("/payments", func(ctx http.Context) error {
		uid, ok := requestUID(ctx)
		if !ok {
			return kerrors.Unauthorized("UNAUTHORIZED", "missing user identity")
		}
		var req service.CreatePaymentRequest
		if err := ctx.Bind(&req); err != nil {
			return err
		}
		reply, err := svc.CreatePayment(ctx, uid, &req)
		if err != nil {
			return err
		}
		return ctx.Result(200, reply)
	})

	// 绿界服务器到服务器回调：应答必须是纯文本 1|OK / 0|Error，
	// 不走统一错误编码
	route.POST("/payments/callback", func(ctx http.Context) error {
		req := ctx.Request()
		if err := req.ParseForm(); err != nil {
			return ctx.String(200, ecpay.AckFailure)
		}
		ack := svc.HandleCallback(ctx, req.PostForm)
		return ctx.String(200, ack)
	})

	route.GET("/payments/{order_number}", func(ctx http.Context) error {
		uid, ok := requestUID(ctx)
		if !ok {
			return kerrors.Unauthorized("UNAUTHORIZED", "missing user identity")
		}
		reply, err := svc.GetOrder(ctx, uid, ctx.Vars().Get("order_number"))
		if err != nil {
			return err
		}
		return ctx.Result(200, reply)
	})

	route.GET("/payments", func(ctx http.Context) error {
		uid, ok := requestUID(ctx)
		if !ok {
			return kerrors.Unauthorized("UNAUTHORIZED", "missing user identity")
		}
		limit, _ := strconv.Atoi(ctx.Query().Get("limit"))
		reply, err := svc.ListOrders(ctx, uid, limit)
		if err != nil {
			return err
		}
		return ctx.Result(200, reply)
	})

	route.GET("/subscription/status", func(ctx http.Context) error {
		uid, ok := requestUID(ctx)
		if !ok {
			return kerrors.Unauthorized("UNAUTHORIZED", "missing user identity")
		}
		reply, err := svc.GetSubscriptionStatus(ctx, uid)
		if err != nil {
			return err
		}
		return ctx.Result(200, reply)
	})
}

func customErrorEncoder(w stdhttp.ResponseWriter, r *stdhttp.Request, err error) {
	se := kerrors.FromError(err)
	status := stdhttp.StatusInternalServerError
	response := map[string]interface{}{
		"code":    status,
		"message": "internal server error",
	}

	if se != nil {
		status = mapErrorStatus(int(se.Code))
		response["code"] = se.Code
		response["reason"] = se.Reason
		response["message"] = se.Message
		if len(se.Metadata) > 0 {
			response["metadata"] = se.Metadata
		}
	} else if err != nil {
		response["message"] = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response)
}

func mapErrorStatus(code int) int {
	if code >= 100 && code < 600 {
		return code
	}
	// 业务错误码（21xxxx）统一映射为 400
	if code >= 210000 && code < 220000 {
		return stdhttp.StatusBadRequest
	}
	return stdhttp.StatusInternalServerError
}
