package execution

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"polyastra/logger"
)

// OrderPlacer 底层下单能力。凭证刷新是显式操作，在下单前由网关调用。
type OrderPlacer interface {
	EnsureCredentials(ctx context.Context) error
	PlaceOrder(ctx context.Context, token string, price, size float64) (status, orderRef string, err error)
}

// Result 提交结果。Accepted=false 时 Err 描述失败原因。
// 提交是单次逻辑尝试，网关内部不重试：对部分生效的金融操作做
// 无幂等键的重试是不安全的。
type Result struct {
	Accepted bool
	Status   string
	OrderRef string
	Err      error
}

// Gateway 执行网关：校验输入、限速、把底层的一切故障归一化为 Result。
// 任何异常都不会从本组件外逸。
type Gateway struct {
	placer  OrderPlacer
	limiter *rate.Limiter
}

// NewGateway 创建执行网关
func NewGateway(placer OrderPlacer, limiter *rate.Limiter) *Gateway {
	return &Gateway{placer: placer, limiter: limiter}
}

// Submit 提交一笔订单
func (g *Gateway) Submit(ctx context.Context, token string, price, size float64) (result Result) {
	// 底层SDK可能panic，统一收敛为拒绝结果
	defer func() {
		if r := recover(); r != nil {
			logger.Error("❌ 下单过程发生panic: %v", r)
			result = Result{Err: fmt.Errorf("下单panic: %v", r)}
		}
	}()

	if price <= 0 || price >= 1 {
		return Result{Err: fmt.Errorf("非法价格: %f", price)}
	}
	if size <= 0 {
		return Result{Err: fmt.Errorf("非法数量: %f", size)}
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return Result{Err: err}
		}
	}

	if err := g.placer.EnsureCredentials(ctx); err != nil {
		logger.Error("❌ 凭证刷新失败: %v", err)
		return Result{Err: fmt.Errorf("凭证刷新失败: %w", err)}
	}

	status, ref, err := g.placer.PlaceOrder(ctx, token, price, size)
	if err != nil {
		logger.Error("❌ 下单失败: %v", err)
		return Result{Err: err}
	}

	logger.Info("✅ 订单已接受: status=%s ref=%s", status, ref)
	return Result{Accepted: true, Status: status, OrderRef: ref}
}
