package auth

import (
	"context"

	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
)

// 用户身份由上游网关完成认证后通过 Header 透传，
// 本服务只负责把它放进 Context 供 service 层使用

// UserIDHeader 网关透传的用户ID Header
const UserIDHeader = "X-User-Id"

type contextKey string

// UserIDKey 用户ID的 context key
const UserIDKey contextKey = "user_id"

// GetUIDFromContext 从 context 中获取用户ID
func GetUIDFromContext(ctx context.Context) (string, bool) {
	uid, ok := ctx.Value(UserIDKey).(string)
	return uid, ok && uid != ""
}

// WithUID 写入用户ID（测试用）
func WithUID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, UserIDKey, uid)
}

// Middleware 从请求 Header 提取用户ID写入 Context
// 不做强制校验：回调等匿名端点没有该 Header，由各 handler 自行决定是否要求登录
func Middleware() middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			if tr, ok := transport.FromServerContext(ctx); ok {
				if uid := tr.RequestHeader().Get(UserIDHeader); uid != "" {
					ctx = context.WithValue(ctx, UserIDKey, uid)
				}
			}
			return handler(ctx, req)
		}
	}
}
