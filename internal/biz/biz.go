package biz

import (
	"context"

	"github.com/google/wire"
)

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewGatewayConfig,
	NewSubscriptionUseCase,
	NewPaymentUseCase,
)

// Transaction 事务执行接口（由 data 层实现，fn 内的 repo 调用共享同一事务）
type Transaction interface {
	Exec(ctx context.Context, fn func(ctx context.Context) error) error
}
