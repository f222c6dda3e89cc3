package ledger

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(&Config{
		Type: "sqlite",
		DSN:  filepath.Join(t.TempDir(), "trades.db"),
	})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func draft(symbol, windowID string, windowEnd time.Time, state string) TradeDraft {
	return TradeDraft{
		Symbol:      symbol,
		WindowID:    windowID,
		WindowStart: windowEnd.Add(-15 * time.Minute),
		WindowEnd:   windowEnd,
		Side:        "UP",
		Token:       "tok-up",
		Price:       0.61,
		Size:        10,
		StakeUSD:    6.1,
		Edge:        0.727,
		BestBid:     0.60,
		BestAsk:     0.62,
		Imbalance:   1.0,
		FundingBias: 0.01,
		State:       state,
		OrderStatus: "matched",
		OrderRef:    "ord-1",
	}
}

func mustTrade(t *testing.T, symbol, windowID string, windowEnd time.Time, state string) *Trade {
	t.Helper()
	trade, err := NewTrade(draft(symbol, windowID, windowEnd, state))
	if err != nil {
		t.Fatalf("构造交易失败: %v", err)
	}
	return trade
}

func TestNewTrade_Validation(t *testing.T) {
	end := time.Now().Add(15 * time.Minute)

	cases := []struct {
		name   string
		mutate func(*TradeDraft)
	}{
		{"缺少标的", func(d *TradeDraft) { d.Symbol = "" }},
		{"缺少代币", func(d *TradeDraft) { d.Token = "" }},
		{"非法方向", func(d *TradeDraft) { d.Side = "LONG" }},
		{"价格越界", func(d *TradeDraft) { d.Price = 1.5 }},
		{"数量非正", func(d *TradeDraft) { d.Size = 0 }},
		{"投入非正", func(d *TradeDraft) { d.StakeUSD = -1 }},
		{"新交易不能是SETTLED", func(d *TradeDraft) { d.State = StateSettled }},
		{"缺少窗口边界", func(d *TradeDraft) { d.WindowStart = time.Time{} }},
	}
	for _, tc := range cases {
		d := draft("BTC", "w1", end, StateOpen)
		tc.mutate(&d)
		if _, err := NewTrade(d); err == nil {
			t.Errorf("%s: 应校验失败", tc.name)
		}
	}
}

func TestStore_CreateAndWindowUniqueness(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	end := time.Now().Add(15 * time.Minute)

	id, err := store.Create(ctx, mustTrade(t, "BTC", "BTC-1000", end, StateOpen))
	if err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	if id == 0 {
		t.Error("应分配非零ID")
	}

	exists, err := store.ExistsForWindow(ctx, "BTC", "BTC-1000")
	if err != nil || !exists {
		t.Errorf("窗口记录应存在: exists=%v err=%v", exists, err)
	}
	exists, _ = store.ExistsForWindow(ctx, "BTC", "BTC-2000")
	if exists {
		t.Error("不同窗口不应命中")
	}

	// 唯一索引拒绝同标的同窗口的第二笔
	if _, err := store.Create(ctx, mustTrade(t, "BTC", "BTC-1000", end, StateOpen)); err == nil {
		t.Error("同窗口重复写入应失败")
	}
}

func TestStore_AuditFieldsRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	end := time.Now().Add(15 * time.Minute).Truncate(time.Second)

	store.Create(ctx, mustTrade(t, "BTC", "BTC-1000", end, StateOpen))

	trades, err := store.RecentTrades(ctx, 1)
	if err != nil || len(trades) != 1 {
		t.Fatalf("读取交易失败: %v", err)
	}
	got := trades[0]

	// 开仓快照与下单结果必须完整落库
	if got.BestBid != 0.60 || got.BestAsk != 0.62 {
		t.Errorf("盘口快照丢失: bid=%f ask=%f", got.BestBid, got.BestAsk)
	}
	if got.Imbalance != 1.0 || got.FundingBias != 0.01 {
		t.Errorf("信号快照丢失: imb=%f bias=%f", got.Imbalance, got.FundingBias)
	}
	if got.OrderStatus != "matched" || got.OrderRef != "ord-1" {
		t.Errorf("下单结果丢失: status=%q ref=%q", got.OrderStatus, got.OrderRef)
	}
	if got.WindowStart.IsZero() || !got.WindowEnd.Equal(got.WindowStart.Add(15*time.Minute)) {
		t.Errorf("窗口边界丢失: start=%v end=%v", got.WindowStart, got.WindowEnd)
	}
}

func TestStore_ListDue(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	store.Create(ctx, mustTrade(t, "BTC", "BTC-1", now.Add(-10*time.Minute), StateOpen))
	store.Create(ctx, mustTrade(t, "ETH", "ETH-1", now.Add(10*time.Minute), StateOpen))
	// FAILED 永不进入结算队列
	store.Create(ctx, mustTrade(t, "SOL", "SOL-1", now.Add(-10*time.Minute), StateFailed))

	due, err := store.ListDue(ctx, now)
	if err != nil {
		t.Fatalf("查询待结算失败: %v", err)
	}
	if len(due) != 1 || due[0].Symbol != "BTC" {
		t.Fatalf("待结算应只有BTC: %+v", due)
	}
}

func TestStore_SettlementIdempotence(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, _ := store.Create(ctx, mustTrade(t, "BTC", "BTC-1", time.Now().Add(-time.Minute), StateOpen))

	first := time.Now()
	if err := store.UpdateSettlement(ctx, id, 0.70, 1.00, 16.67, first); err != nil {
		t.Fatalf("首次结算失败: %v", err)
	}

	// 重复结算必须是空操作
	if err := store.UpdateSettlement(ctx, id, 0.99, 99.0, 999.0, first.Add(time.Hour)); err != nil {
		t.Fatalf("重复结算不应报错: %v", err)
	}

	trades, _ := store.RecentTrades(ctx, 1)
	got := trades[0]
	if got.State != StateSettled {
		t.Fatalf("状态应为SETTLED: %s", got.State)
	}
	if *got.PnLUSD != 1.00 || *got.FinalPrice != 0.70 {
		t.Errorf("重复结算改写了结果: pnl=%f final=%f", *got.PnLUSD, *got.FinalPrice)
	}
}

func TestStore_Rollups(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	// 两笔已结算（一赢一输），一笔FAILED
	winID, _ := store.Create(ctx, mustTrade(t, "BTC", "BTC-1", now.Add(-time.Minute), StateOpen))
	lossID, _ := store.Create(ctx, mustTrade(t, "ETH", "ETH-1", now.Add(-time.Minute), StateOpen))
	store.Create(ctx, mustTrade(t, "SOL", "SOL-1", now.Add(-time.Minute), StateFailed))

	store.UpdateSettlement(ctx, winID, 0.70, 1.00, 16.67, now)
	store.UpdateSettlement(ctx, lossID, 0.40, -2.10, -34.43, now)

	sum, err := store.SettledSummary(ctx)
	if err != nil {
		t.Fatalf("汇总失败: %v", err)
	}
	if sum.Total != 2 || sum.Wins != 1 {
		t.Errorf("汇总计数错误: %+v", sum)
	}
	if sum.WinRate != 50.0 {
		t.Errorf("胜率应为50%%: %f", sum.WinRate)
	}
	if math.Abs(sum.PnLUSD-(-1.10)) > 1e-9 {
		t.Errorf("累计盈亏错误: %f", sum.PnLUSD)
	}

	bySym, err := store.PnLBySymbol(ctx)
	if err != nil {
		t.Fatalf("按标的汇总失败: %v", err)
	}
	if len(bySym) != 2 {
		t.Fatalf("FAILED 不应计入按标的汇总: %+v", bySym)
	}
	// 盈亏数值必须被正确扫描，而不只是行数对
	if bySym[0].Symbol != "BTC" || math.Abs(bySym[0].PnLUSD-1.00) > 1e-9 {
		t.Errorf("BTC盈亏扫描错误: %+v", bySym[0])
	}
	if bySym[1].Symbol != "ETH" || math.Abs(bySym[1].PnLUSD-(-2.10)) > 1e-9 {
		t.Errorf("ETH盈亏扫描错误: %+v", bySym[1])
	}

	failed, _ := store.FailedCount(ctx)
	if failed != 1 {
		t.Errorf("失败计数错误: %d", failed)
	}
}
