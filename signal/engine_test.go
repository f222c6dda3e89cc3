package signal

import (
	"context"
	"errors"
	"math"
	"testing"
)

type fakeBooks struct {
	book *OrderBook
	err  error
}

func (f *fakeBooks) GetOrderBook(ctx context.Context, token string) (*OrderBook, error) {
	return f.book, f.err
}

type fakeFunding struct{ r Reading }

func (f *fakeFunding) FundingBias(ctx context.Context, symbol string) Reading { return f.r }

type fakeSentiment struct{ r IntReading }

func (f *fakeSentiment) SentimentIndex(ctx context.Context) IntReading { return f.r }

func newTestEngine(books BookSource, funding Reading, fg IntReading) *Engine {
	return NewEngine(books, &fakeFunding{funding}, &fakeSentiment{fg}, func() float64 { return 0.15 })
}

func bookAt(bid, ask float64) *OrderBook {
	// 最优档在末尾，前面放一个更差的档位
	return &OrderBook{
		Bids: []BookLevel{{Price: bid - 0.05, Size: 100}, {Price: bid, Size: 50}},
		Asks: []BookLevel{{Price: ask + 0.05, Size: 100}, {Price: ask, Size: 50}},
	}
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestGather_EdgeScenario(t *testing.T) {
	// bid=0.60 ask=0.62: mid=0.61, 不平衡原始值0.22截断到1.0,
	// 资金偏置0.01, 情绪中性 => edge = 0.7*0.61 + 0.3*1.0 + 0.01 = 0.737
	e := newTestEngine(&fakeBooks{book: bookAt(0.60, 0.62)},
		Reading{Value: 0.01, OK: true}, IntReading{Value: 50, OK: true})

	snap := e.Gather(context.Background(), "BTC", "tok")
	if snap.Degraded {
		t.Fatalf("不应降级: %s", snap.Reason)
	}
	if !approx(snap.MidPrice, 0.61) {
		t.Errorf("中间价错误: %f", snap.MidPrice)
	}
	if !approx(snap.Imbalance, 1.0) {
		t.Errorf("不平衡应截断到1.0: %f", snap.Imbalance)
	}
	if !approx(snap.Edge, 0.737) {
		t.Errorf("边际错误: %f", snap.Edge)
	}
}

func TestGather_SpreadTooWide(t *testing.T) {
	// 点差 0.62-0.40 = 0.22 > 0.15，必须降级为中性快照
	e := newTestEngine(&fakeBooks{book: bookAt(0.40, 0.62)},
		Reading{Value: 0.01, OK: true}, IntReading{Value: 50, OK: true})

	snap := e.Gather(context.Background(), "BTC", "tok")
	if !snap.Degraded {
		t.Fatal("点差过宽应降级")
	}
	if snap.Edge != 0.5 || snap.MidPrice != 0.5 || snap.Imbalance != 0.5 {
		t.Errorf("降级快照应为中性值: %+v", snap)
	}
}

func TestGather_EmptyBookAndError(t *testing.T) {
	e := newTestEngine(&fakeBooks{book: &OrderBook{}}, Reading{}, IntReading{})
	if snap := e.Gather(context.Background(), "ETH", "tok"); !snap.Degraded {
		t.Error("空订单簿应降级")
	}

	e = newTestEngine(&fakeBooks{err: errors.New("boom")}, Reading{}, IntReading{})
	if snap := e.Gather(context.Background(), "ETH", "tok"); !snap.Degraded {
		t.Error("订单簿错误应降级")
	}
}

func TestGather_SourceFailuresUseNeutralDefaults(t *testing.T) {
	// 资金费率和情绪都失败时，偏置为0、情绪视为50，快照仍然有效
	e := newTestEngine(&fakeBooks{book: bookAt(0.50, 0.52)}, Reading{}, IntReading{})

	snap := e.Gather(context.Background(), "SOL", "tok")
	if snap.Degraded {
		t.Fatalf("子信号失败不应降级整个快照: %s", snap.Reason)
	}
	if snap.FundingBias != 0 || snap.Sentiment != 50 {
		t.Errorf("失败的子信号应取中性默认值: %+v", snap)
	}
}

func TestCalculateEdge_SentimentNudge(t *testing.T) {
	base := CalculateEdge(0.61, 1.0, 0.0, 50)
	if !approx(base, 0.727) {
		t.Fatalf("基准边际错误: %f", base)
	}

	// 极端恐惧 +0.03，极端贪婪 -0.03，边界值 30/70 不触发
	if got := CalculateEdge(0.61, 1.0, 0.0, 29); !approx(got, base+0.03) {
		t.Errorf("极端恐惧应加0.03: %f", got)
	}
	if got := CalculateEdge(0.61, 1.0, 0.0, 71); !approx(got, base-0.03) {
		t.Errorf("极端贪婪应减0.03: %f", got)
	}
	if got := CalculateEdge(0.61, 1.0, 0.0, 30); !approx(got, base) {
		t.Errorf("情绪=30不应调整: %f", got)
	}
	if got := CalculateEdge(0.61, 1.0, 0.0, 70); !approx(got, base) {
		t.Errorf("情绪=70不应调整: %f", got)
	}
}
