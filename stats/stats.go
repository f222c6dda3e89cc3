package stats

import (
	"context"
	"fmt"
	"strings"
	"time"

	"polyastra/ledger"
	"polyastra/metrics"
)

// Source 统计所需的台账查询
type Source interface {
	SettledSummary(ctx context.Context) (*ledger.Summary, error)
	PnLBySymbol(ctx context.Context) ([]ledger.SymbolPnL, error)
	OpenCount(ctx context.Context) (int64, error)
	FailedCount(ctx context.Context) (int64, error)
}

// Report 运行统计报告
type Report struct {
	GeneratedAt time.Time          `json:"generated_at"`
	Settled     int64              `json:"settled"`
	Wins        int64              `json:"wins"`
	WinRate     float64            `json:"win_rate"`
	PnLUSD      float64            `json:"pnl_usd"`
	AvgROI      float64            `json:"avg_roi"`
	Open        int64              `json:"open"`
	Failed      int64              `json:"failed"`
	BySymbol    []ledger.SymbolPnL `json:"by_symbol"`
}

// Aggregator 统计聚合器
type Aggregator struct {
	source Source
}

// NewAggregator 创建统计聚合器
func NewAggregator(source Source) *Aggregator {
	return &Aggregator{source: source}
}

// Build 生成一份统计报告，并同步刷新相关指标
func (a *Aggregator) Build(ctx context.Context) (*Report, error) {
	sum, err := a.source.SettledSummary(ctx)
	if err != nil {
		return nil, fmt.Errorf("汇总已结算交易失败: %w", err)
	}
	bySym, err := a.source.PnLBySymbol(ctx)
	if err != nil {
		return nil, err
	}
	open, err := a.source.OpenCount(ctx)
	if err != nil {
		return nil, err
	}
	failed, err := a.source.FailedCount(ctx)
	if err != nil {
		return nil, err
	}

	metrics.SetWinRate(sum.WinRate)
	metrics.SetOpenTrades(int(open))

	return &Report{
		GeneratedAt: time.Now(),
		Settled:     sum.Total,
		Wins:        sum.Wins,
		WinRate:     sum.WinRate,
		PnLUSD:      sum.PnLUSD,
		AvgROI:      sum.AvgROI,
		Open:        open,
		Failed:      failed,
		BySymbol:    bySym,
	}, nil
}

// Text 渲染为通知用的文本报告
func (r *Report) Text() string {
	var b strings.Builder
	b.WriteString("📊 运行报告\n")
	fmt.Fprintf(&b, "已结算: %d | 胜: %d | 胜率: %.1f%%\n", r.Settled, r.Wins, r.WinRate)
	fmt.Fprintf(&b, "累计盈亏: $%.2f | 平均ROI: %.2f%%\n", r.PnLUSD, r.AvgROI)
	fmt.Fprintf(&b, "未结算: %d | 提交失败: %d\n", r.Open, r.Failed)
	for _, s := range r.BySymbol {
		fmt.Fprintf(&b, "  [%s] %d笔 $%.2f\n", s.Symbol, s.Count, s.PnLUSD)
	}
	return strings.TrimRight(b.String(), "\n")
}
