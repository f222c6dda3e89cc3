package stats

import (
	"context"
	"strings"
	"testing"

	"polyastra/ledger"
)

type fakeSource struct {
	sum    ledger.Summary
	bySym  []ledger.SymbolPnL
	open   int64
	failed int64
}

func (f *fakeSource) SettledSummary(ctx context.Context) (*ledger.Summary, error) {
	return &f.sum, nil
}
func (f *fakeSource) PnLBySymbol(ctx context.Context) ([]ledger.SymbolPnL, error) {
	return f.bySym, nil
}
func (f *fakeSource) OpenCount(ctx context.Context) (int64, error)   { return f.open, nil }
func (f *fakeSource) FailedCount(ctx context.Context) (int64, error) { return f.failed, nil }

func TestBuildAndText(t *testing.T) {
	src := &fakeSource{
		sum: ledger.Summary{Total: 4, Wins: 3, PnLUSD: 12.5, AvgROI: 8.33, WinRate: 75.0},
		bySym: []ledger.SymbolPnL{
			{Symbol: "BTC", Count: 3, PnLUSD: 10.0},
			{Symbol: "ETH", Count: 1, PnLUSD: 2.5},
		},
		open:   2,
		failed: 1,
	}

	report, err := NewAggregator(src).Build(context.Background())
	if err != nil {
		t.Fatalf("生成报告失败: %v", err)
	}
	if report.Settled != 4 || report.WinRate != 75.0 || report.Open != 2 {
		t.Errorf("报告数值错误: %+v", report)
	}

	text := report.Text()
	for _, want := range []string{"胜率: 75.0%", "$12.50", "[BTC] 3笔 $10.00", "提交失败: 1"} {
		if !strings.Contains(text, want) {
			t.Errorf("文本报告缺少 %q:\n%s", want, text)
		}
	}
}
