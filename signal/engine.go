package signal

import (
	"context"

	"polyastra/logger"
	"polyastra/utils"
)

// Snapshot 某一时刻的市场/情绪状态快照。
// Degraded=true 表示没有可用的清晰信号（空订单簿、点差过宽等），
// 此时快照取中性值，调用方应把它当作"无信号"输入，而不是错误。
type Snapshot struct {
	BestBid     float64
	BestAsk     float64
	MidPrice    float64
	Imbalance   float64
	FundingBias float64
	Sentiment   int
	Edge        float64
	Degraded    bool
	Reason      string
}

// Reading 外部数值读取的带标签结果
type Reading struct {
	Value float64
	OK    bool
}

// IntReading 外部整数读取的带标签结果
type IntReading struct {
	Value int
	OK    bool
}

// BookLevel 订单簿档位
type BookLevel struct {
	Price float64
	Size  float64
}

// OrderBook 订单簿。档位按从差到优排序（CLOB返回顺序），最优档在末尾。
type OrderBook struct {
	Bids []BookLevel
	Asks []BookLevel
}

// BestBid 最优买价，不存在时返回0
func (b *OrderBook) BestBid() float64 {
	if len(b.Bids) == 0 {
		return 0
	}
	return b.Bids[len(b.Bids)-1].Price
}

// BestAsk 最优卖价，不存在时返回0
func (b *OrderBook) BestAsk() float64 {
	if len(b.Asks) == 0 {
		return 0
	}
	return b.Asks[len(b.Asks)-1].Price
}

// BookSource 订单簿数据源
type BookSource interface {
	GetOrderBook(ctx context.Context, token string) (*OrderBook, error)
}

// FundingSource 动量偏置数据源（资金费率）
type FundingSource interface {
	FundingBias(ctx context.Context, symbol string) Reading
}

// SentimentSource 市场情绪数据源（0-100）
type SentimentSource interface {
	SentimentIndex(ctx context.Context) IntReading
}

// Engine 信号引擎：汇总订单簿、动量、情绪，折算为单一边际分数
type Engine struct {
	books     BookSource
	funding   FundingSource
	sentiment SentimentSource
	maxSpread func() float64 // 热更新阈值通过闭包读取
}

// NewEngine 创建信号引擎
func NewEngine(books BookSource, funding FundingSource, sentiment SentimentSource, maxSpread func() float64) *Engine {
	return &Engine{
		books:     books,
		funding:   funding,
		sentiment: sentiment,
		maxSpread: maxSpread,
	}
}

// Gather 为标的采集一次信号快照（以UP代币的订单簿为基准）。
// 所有子读取失败都降级为中性默认值，本方法不会让周期中断。
func (e *Engine) Gather(ctx context.Context, symbol, upToken string) *Snapshot {
	book, err := e.books.GetOrderBook(ctx, upToken)
	if err != nil {
		logger.Warn("[%s] 订单簿读取失败: %v", symbol, err)
		return neutral("order book error")
	}

	bid := book.BestBid()
	ask := book.BestAsk()
	if bid <= 0 || ask <= 0 {
		return neutral("empty order book")
	}

	spread := ask - bid
	if spread > e.maxSpread() {
		logger.Info("[%s] 点差过宽: %.2f%%", symbol, spread*100)
		return neutral("spread too wide")
	}

	mid := (bid + ask) / 2.0
	imbalanceRaw := bid - (1.0 - ask)
	imbalance := utils.Clamp((imbalanceRaw+0.1)/0.2, 0.0, 1.0)

	// 资金费率偏置，读取失败视为0
	bias := 0.0
	if r := e.funding.FundingBias(ctx, symbol); r.OK {
		bias = r.Value
	}

	// 恐惧贪婪指数，读取失败视为中性50
	fg := 50
	if r := e.sentiment.SentimentIndex(ctx); r.OK {
		fg = r.Value
	}

	edge := CalculateEdge(mid, imbalance, bias, fg)
	logger.Info("[%s] 边际计算: mid=%.4f bid=%.4f ask=%.4f imb=%.4f bias=%.4f fg=%d edge=%.4f",
		symbol, mid, bid, ask, imbalance, bias, fg, edge)

	return &Snapshot{
		BestBid:     bid,
		BestAsk:     ask,
		MidPrice:    mid,
		Imbalance:   imbalance,
		FundingBias: bias,
		Sentiment:   fg,
		Edge:        edge,
	}
}

// CalculateEdge 边际分数：70% 价格 + 30% 订单簿不平衡 + 动量偏置，
// 再叠加对称的情绪调整（极端恐惧看涨，极端贪婪看跌）。
// 纯函数；edge 是分数而非概率，不做 [0,1] 截断。
func CalculateEdge(midPrice, imbalance, fundingBias float64, sentiment int) float64 {
	edge := 0.7*midPrice + 0.3*imbalance + fundingBias
	if sentiment < 30 {
		edge += 0.03
	} else if sentiment > 70 {
		edge -= 0.03
	}
	return edge
}

// neutral 降级快照：中性中间价与不平衡，edge=0.5 落在决策死区
func neutral(reason string) *Snapshot {
	return &Snapshot{
		MidPrice:  0.5,
		Imbalance: 0.5,
		Sentiment: 50,
		Edge:      0.5,
		Degraded:  true,
		Reason:    reason,
	}
}
