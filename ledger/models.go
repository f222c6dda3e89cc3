package ledger

import (
	"fmt"
	"time"
)

// 交易状态。OPEN 和 FAILED/SETTLED 之间只有一条单向迁移：
// OPEN -> SETTLED。FAILED 在创建时写入，终态，不参与结算与盈亏统计。
const (
	StateOpen    = "OPEN"
	StateSettled = "SETTLED"
	StateFailed  = "FAILED"
)

// Trade 交易台账记录。
// (symbol, window_id) 唯一索引保证每个标的每个窗口最多一笔交易。
// 开仓时的信号快照随单落库，用于事后审计。
type Trade struct {
	ID        uint      `gorm:"primarykey"`
	CreatedAt time.Time `gorm:"index"`

	Symbol      string    `gorm:"column:symbol;size:16;uniqueIndex:idx_symbol_window"`
	WindowID    string    `gorm:"column:window_id;size:64;uniqueIndex:idx_symbol_window"`
	WindowStart time.Time `gorm:"column:window_start"`
	WindowEnd   time.Time `gorm:"column:window_end;index"`

	Side     string  `gorm:"column:side;size:8"` // UP / DOWN
	Token    string  `gorm:"column:token;size:128"`
	Price    float64 `gorm:"column:price"`
	Size     float64 `gorm:"column:size"`
	StakeUSD float64 `gorm:"column:stake_usd"`

	// 开仓时的信号快照
	Edge        float64 `gorm:"column:edge"`
	BestBid     float64 `gorm:"column:best_bid"`
	BestAsk     float64 `gorm:"column:best_ask"`
	Imbalance   float64 `gorm:"column:imbalance"`
	FundingBias float64 `gorm:"column:funding_bias"`

	// 下单结果
	OrderStatus string `gorm:"column:order_status;size:32"`
	OrderRef    string `gorm:"column:order_ref;size:128"`

	State string `gorm:"column:state;size:16;index"`

	// 结算字段，仅 SETTLED 后有值
	FinalPrice *float64   `gorm:"column:final_price"` // 结算时刻所持代币的中间价
	PnLUSD     *float64   `gorm:"column:pnl_usd"`
	ROIPct     *float64   `gorm:"column:roi_pct"`
	SettledAt  *time.Time `gorm:"column:settled_at"`
}

// TableName 指定表名
func (Trade) TableName() string {
	return "trades"
}

// TradeDraft 新交易的全部输入字段，构造时强校验
type TradeDraft struct {
	Symbol      string
	WindowID    string
	WindowStart time.Time
	WindowEnd   time.Time

	Side     string
	Token    string
	Price    float64
	Size     float64
	StakeUSD float64

	Edge        float64
	BestBid     float64
	BestAsk     float64
	Imbalance   float64
	FundingBias float64

	State       string
	OrderStatus string
	OrderRef    string
}

// NewTrade 构造并校验一笔新交易。
// 字段在构造时强校验，而不是推迟到持久层报错。
func NewTrade(d TradeDraft) (*Trade, error) {
	if d.Symbol == "" || d.WindowID == "" || d.Token == "" {
		return nil, fmt.Errorf("交易缺少必要字段: symbol=%q window=%q token=%q", d.Symbol, d.WindowID, d.Token)
	}
	if d.Side != "UP" && d.Side != "DOWN" {
		return nil, fmt.Errorf("非法方向: %q", d.Side)
	}
	if d.Price <= 0 || d.Price >= 1 {
		return nil, fmt.Errorf("非法价格: %f", d.Price)
	}
	if d.Size <= 0 || d.StakeUSD <= 0 {
		return nil, fmt.Errorf("非法数量或投入: size=%f stake=%f", d.Size, d.StakeUSD)
	}
	if d.State != StateOpen && d.State != StateFailed {
		return nil, fmt.Errorf("新交易状态必须是 OPEN 或 FAILED: %q", d.State)
	}
	if d.WindowStart.IsZero() || d.WindowEnd.IsZero() {
		return nil, fmt.Errorf("交易缺少窗口边界")
	}

	return &Trade{
		Symbol:      d.Symbol,
		WindowID:    d.WindowID,
		WindowStart: d.WindowStart,
		WindowEnd:   d.WindowEnd,
		Side:        d.Side,
		Token:       d.Token,
		Price:       d.Price,
		Size:        d.Size,
		StakeUSD:    d.StakeUSD,
		Edge:        d.Edge,
		BestBid:     d.BestBid,
		BestAsk:     d.BestAsk,
		Imbalance:   d.Imbalance,
		FundingBias: d.FundingBias,
		State:       d.State,
		OrderStatus: d.OrderStatus,
		OrderRef:    d.OrderRef,
	}, nil
}
