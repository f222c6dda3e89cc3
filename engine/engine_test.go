package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"polyastra/config"
	"polyastra/decision"
	"polyastra/execution"
	"polyastra/ledger"
	"polyastra/market"
	"polyastra/signal"
	"polyastra/utils"
	"polyastra/window"
)

type fakeResolver struct {
	pair market.OutcomePair
	err  error
}

func (f *fakeResolver) Resolve(ctx context.Context, w window.Window) (market.OutcomePair, error) {
	return f.pair, f.err
}

type fakeSignals struct{ snap *signal.Snapshot }

func (f *fakeSignals) Gather(ctx context.Context, symbol, token string) *signal.Snapshot {
	return f.snap
}

type allowAll struct{}

func (allowAll) Allows(ctx context.Context, symbol string, action decision.Action) bool { return true }

type fakeGateway struct {
	res execution.Result

	mu      sync.Mutex
	submits int
}

func (f *fakeGateway) Submit(ctx context.Context, token string, price, size float64) execution.Result {
	f.mu.Lock()
	f.submits++
	f.mu.Unlock()
	return f.res
}

type fakeStore struct {
	mu       sync.Mutex
	existing map[string]bool
	created  []*ledger.Trade
}

func newFakeStore() *fakeStore {
	return &fakeStore{existing: make(map[string]bool)}
}

func (f *fakeStore) ExistsForWindow(ctx context.Context, symbol, windowID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.existing[symbol+"/"+windowID], nil
}

func (f *fakeStore) Create(ctx context.Context, trade *ledger.Trade) (uint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, trade)
	return uint(len(f.created)), nil
}

type fakeSettler struct{ passes int }

func (f *fakeSettler) RunPass(ctx context.Context, now time.Time) error {
	f.passes++
	return nil
}

func testConfig(t *testing.T, symbols ...string) *config.Config {
	t.Helper()
	cfg, err := config.LoadConfigFromBytes([]byte("trading:\n  stake_usd: 10\n"))
	if err != nil {
		t.Fatalf("加载测试配置失败: %v", err)
	}
	if len(symbols) > 0 {
		cfg.Trading.Symbols = symbols
	}
	return cfg
}

func newTestEngine(cfg *config.Config, r Resolver, s Signals, g Submitter, store Ledger, settler Settler) *Engine {
	e := New(cfg, r, s, allowAll{}, g, store, settler, nil)
	e.now = func() time.Time {
		return time.Date(2026, 5, 1, 9, 17, 0, 0, utils.MarketLocation)
	}
	return e
}

func TestRunCycle_OpensTradeAndSettles(t *testing.T) {
	cfg := testConfig(t, "BTC")
	store := newFakeStore()
	gateway := &fakeGateway{res: execution.Result{Accepted: true, Status: "matched", OrderRef: "ord-1"}}
	settler := &fakeSettler{}
	snap := &signal.Snapshot{
		BestBid: 0.60, BestAsk: 0.62, MidPrice: 0.61,
		Imbalance: 1.0, FundingBias: 0.01, Edge: 0.727,
	}

	e := newTestEngine(cfg, &fakeResolver{pair: market.OutcomePair{Up: "up", Down: "down"}},
		&fakeSignals{snap: snap}, gateway, store, settler)

	cycle := 0
	e.runCycle(context.Background(), 15*time.Minute, &cycle)

	if gateway.submits != 1 {
		t.Fatalf("应提交一次订单: %d", gateway.submits)
	}
	if len(store.created) != 1 {
		t.Fatalf("应写入一笔交易: %d", len(store.created))
	}
	got := store.created[0]
	if got.State != ledger.StateOpen || got.Side != "UP" || got.OrderRef != "ord-1" {
		t.Errorf("交易记录错误: %+v", got)
	}
	// 开仓快照与下单状态必须随单落库
	if got.BestBid != 0.60 || got.BestAsk != 0.62 || got.Imbalance != 1.0 || got.FundingBias != 0.01 {
		t.Errorf("信号快照未随单落库: %+v", got)
	}
	if got.OrderStatus != "matched" {
		t.Errorf("下单状态未落库: %q", got.OrderStatus)
	}
	if got.WindowStart.IsZero() || !got.WindowEnd.Equal(got.WindowStart.Add(15*time.Minute)) {
		t.Errorf("窗口边界未落库: start=%v end=%v", got.WindowStart, got.WindowEnd)
	}
	if settler.passes != 1 {
		t.Errorf("每周期应结算一次: %d", settler.passes)
	}
}

func TestRunCycle_SkipsExistingWindow(t *testing.T) {
	cfg := testConfig(t, "BTC")
	store := newFakeStore()
	gateway := &fakeGateway{res: execution.Result{Accepted: true}}

	w := window.Current("BTC", time.Date(2026, 5, 1, 9, 17, 0, 0, utils.MarketLocation), 15*time.Minute)
	store.existing["BTC/"+w.ID] = true

	e := newTestEngine(cfg, &fakeResolver{pair: market.OutcomePair{Up: "up", Down: "down"}},
		&fakeSignals{snap: &signal.Snapshot{MidPrice: 0.61, Edge: 0.727}}, gateway, store, &fakeSettler{})

	cycle := 0
	e.runCycle(context.Background(), 15*time.Minute, &cycle)

	if gateway.submits != 0 || len(store.created) != 0 {
		t.Error("已有窗口记录时不应再交易")
	}
}

func TestRunCycle_RejectedSubmissionRecordedAsFailed(t *testing.T) {
	cfg := testConfig(t, "BTC")
	store := newFakeStore()
	gateway := &fakeGateway{res: execution.Result{Err: errors.New("rejected")}}

	e := newTestEngine(cfg, &fakeResolver{pair: market.OutcomePair{Up: "up", Down: "down"}},
		&fakeSignals{snap: &signal.Snapshot{MidPrice: 0.61, Edge: 0.727}}, gateway, store, &fakeSettler{})

	cycle := 0
	e.runCycle(context.Background(), 15*time.Minute, &cycle)

	if len(store.created) != 1 {
		t.Fatal("提交失败也应留痕")
	}
	if store.created[0].State != ledger.StateFailed {
		t.Errorf("状态应为FAILED: %s", store.created[0].State)
	}
	if store.created[0].OrderStatus != "rejected" {
		t.Errorf("失败单应记录拒绝状态: %q", store.created[0].OrderStatus)
	}
}

func TestRunCycle_ResolverFailureSkipsSymbol(t *testing.T) {
	cfg := testConfig(t, "BTC", "ETH")
	store := newFakeStore()
	gateway := &fakeGateway{res: execution.Result{Accepted: true}}
	settler := &fakeSettler{}

	e := newTestEngine(cfg, &fakeResolver{err: market.ErrMarketNotFound},
		&fakeSignals{snap: &signal.Snapshot{MidPrice: 0.61, Edge: 0.727}}, gateway, store, settler)

	cycle := 0
	e.runCycle(context.Background(), 15*time.Minute, &cycle)

	if len(store.created) != 0 {
		t.Error("解析失败不应交易")
	}
	if settler.passes != 1 {
		t.Error("解析失败不应影响结算轮")
	}
}

func TestNextCycleWait(t *testing.T) {
	loc := utils.MarketLocation

	// 09:17 -> 下一边界 09:30，加30秒延迟
	now := time.Date(2026, 5, 1, 9, 17, 0, 0, loc)
	wait := nextCycleWait(now, 15*time.Minute, 30*time.Second)
	if wait != 13*time.Minute+30*time.Second {
		t.Errorf("等待时长错误: %v", wait)
	}

	// 恰在边界上：等整个窗口加延迟
	now = time.Date(2026, 5, 1, 9, 30, 0, 0, loc)
	wait = nextCycleWait(now, 15*time.Minute, 0)
	if wait != 15*time.Minute {
		t.Errorf("边界等待时长错误: %v", wait)
	}
}
