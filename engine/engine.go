package engine

import (
	"context"
	"sync"
	"time"

	"polyastra/config"
	"polyastra/decision"
	"polyastra/execution"
	"polyastra/ledger"
	"polyastra/logger"
	"polyastra/market"
	"polyastra/metrics"
	"polyastra/signal"
	"polyastra/utils"
	"polyastra/window"
)

// Resolver 市场解析能力
type Resolver interface {
	Resolve(ctx context.Context, w window.Window) (market.OutcomePair, error)
}

// Signals 信号采集能力
type Signals interface {
	Gather(ctx context.Context, symbol, token string) *signal.Snapshot
}

// Filter 趋势过滤能力
type Filter interface {
	Allows(ctx context.Context, symbol string, action decision.Action) bool
}

// Submitter 下单能力
type Submitter interface {
	Submit(ctx context.Context, token string, price, size float64) execution.Result
}

// Ledger 决策通道所需的台账操作
type Ledger interface {
	ExistsForWindow(ctx context.Context, symbol, windowID string) (bool, error)
	Create(ctx context.Context, trade *ledger.Trade) (uint, error)
}

// Settler 结算能力
type Settler interface {
	RunPass(ctx context.Context, now time.Time) error
}

// Reporter 周期性绩效报告
type Reporter interface {
	Report(ctx context.Context)
}

// Engine 交易周期驱动器。
// 每个窗口执行一轮：各标的并发决策，然后一次串行结算。
type Engine struct {
	cfg      *config.Config
	resolver Resolver
	signals  Signals
	filter   Filter
	gateway  Submitter
	store    Ledger
	settler  Settler
	reporter Reporter

	now func() time.Time // 可注入时钟，便于测试
}

// New 创建引擎
func New(cfg *config.Config, resolver Resolver, signals Signals, filter Filter,
	gateway Submitter, store Ledger, settler Settler, reporter Reporter) *Engine {
	return &Engine{
		cfg:      cfg,
		resolver: resolver,
		signals:  signals,
		filter:   filter,
		gateway:  gateway,
		store:    store,
		settler:  settler,
		reporter: reporter,
		now:      utils.NowMarket,
	}
}

// Run 主循环：对齐窗口边界 + 延迟后执行一个周期，直到 context 取消。
func (e *Engine) Run(ctx context.Context) error {
	length := time.Duration(e.cfg.Trading.WindowMinutes) * time.Minute
	cycle := 0

	// 启动时立即跑一轮，不等下一个边界
	e.runCycle(ctx, length, &cycle)

	for {
		delay := time.Duration(e.cfg.GetWindowDelay()) * time.Second
		wait := nextCycleWait(e.now(), length, delay)
		logger.Info("⏳ 下一周期将在 %s 后开始", wait.Round(time.Second))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info("🛑 引擎收到停止信号")
			return ctx.Err()
		case <-timer.C:
		}

		e.runCycle(ctx, length, &cycle)
	}
}

// runCycle 执行一个完整周期：决策 -> 结算 -> （按周期）报告
func (e *Engine) runCycle(ctx context.Context, length time.Duration, cycle *int) {
	*cycle++
	now := e.now()
	logger.Info("🔄 周期 #%d 开始", *cycle)

	// 各标的窗口独立、台账行独立，可并发决策
	var wg sync.WaitGroup
	for _, symbol := range e.cfg.Trading.Symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			e.tradeSymbol(ctx, symbol, now, length)
		}(symbol)
	}
	wg.Wait()

	// 结算不可与自身并发，单独串行执行
	if err := e.settler.RunPass(ctx, e.now()); err != nil {
		logger.Warn("⚠️ 结算轮失败: %v", err)
	}

	if e.reporter != nil && *cycle%e.cfg.System.ReportEveryCycles == 0 {
		e.reporter.Report(ctx)
	}
}

// tradeSymbol 单个标的的一次决策通道。任何失败都只影响本标的本周期。
func (e *Engine) tradeSymbol(ctx context.Context, symbol string, now time.Time, length time.Duration) {
	w := window.Current(symbol, now, length)

	exists, err := e.store.ExistsForWindow(ctx, symbol, w.ID)
	if err != nil {
		logger.Warn("⚠️ [%s] 查询窗口记录失败: %v", symbol, err)
		return
	}
	if exists {
		logger.Debug("[%s] 窗口 %s 已有交易，跳过", symbol, w.ID)
		return
	}

	pair, err := e.resolver.Resolve(ctx, w)
	if err != nil {
		logger.Warn("⚠️ [%s] 市场解析失败，跳过本周期: %v", symbol, err)
		return
	}

	snap := e.signals.Gather(ctx, symbol, pair.Up)
	if snap.Degraded {
		metrics.RecordDegraded(symbol, snap.Reason)
	} else {
		metrics.RecordEdge(symbol, snap.Edge)
	}

	d := decision.Decide(snap, pair, e.cfg.GetMinEdge(), e.cfg.GetStakeUSD(), e.cfg.Trading.MinSize)
	metrics.RecordDecision(symbol, string(d.Action))
	if d.Action == decision.ActionNone {
		logger.Info("[%s] 不交易: edge=%.4f %s", symbol, d.Edge, d.Reason)
		return
	}

	if !e.filter.Allows(ctx, symbol, d.Action) {
		metrics.RecordDecision(symbol, "VETOED")
		return
	}

	side := "UP"
	if d.Action == decision.ActionBuyDown {
		side = "DOWN"
	}

	res := e.gateway.Submit(ctx, d.Token, d.Price, d.Size)

	state := ledger.StateOpen
	status := "accepted"
	orderStatus := res.Status
	if !res.Accepted {
		// 提交失败也要留痕：FAILED 终态，不参与结算与盈亏
		state = ledger.StateFailed
		status = "rejected"
		if orderStatus == "" {
			orderStatus = status
		}
	}
	metrics.RecordOrder(symbol, side, status)

	trade, err := ledger.NewTrade(ledger.TradeDraft{
		Symbol:      symbol,
		WindowID:    w.ID,
		WindowStart: w.Start,
		WindowEnd:   w.End,
		Side:        side,
		Token:       d.Token,
		Price:       d.Price,
		Size:        d.Size,
		StakeUSD:    d.StakeUSD,
		Edge:        d.Edge,
		BestBid:     snap.BestBid,
		BestAsk:     snap.BestAsk,
		Imbalance:   snap.Imbalance,
		FundingBias: snap.FundingBias,
		State:       state,
		OrderStatus: orderStatus,
		OrderRef:    res.OrderRef,
	})
	if err != nil {
		logger.Error("❌ [%s] 构造交易记录失败: %v", symbol, err)
		return
	}

	id, err := e.store.Create(ctx, trade)
	if err != nil {
		logger.Error("❌ [%s] 写入交易记录失败: %v", symbol, err)
		return
	}

	if res.Accepted {
		logger.Info("✅ [%s] 交易 #%d 已开仓: %s %.4f份 @ %.4f (edge=%.4f)",
			symbol, id, side, d.Size, d.Price, d.Edge)
	} else {
		logger.Warn("⚠️ [%s] 交易 #%d 提交失败已记录: %v", symbol, id, res.Err)
	}
}

// nextCycleWait 到下一个窗口边界加延迟的等待时长。纯函数。
func nextCycleWait(now time.Time, length, delay time.Duration) time.Duration {
	w := window.Current("", now, length)
	return w.End.Add(delay).Sub(now)
}
