package decision

import (
	"polyastra/logger"
	"polyastra/market"
	"polyastra/signal"
	"polyastra/utils"
)

// Action 决策动作
type Action string

const (
	ActionNone    Action = "NONE"
	ActionBuyUp   Action = "BUY_UP"
	ActionBuyDown Action = "BUY_DOWN"
)

// Decision 单次决策结果。Action=NONE 时其余字段无意义。
type Decision struct {
	Action     Action
	Token      string  // 目标结果代币
	Price      float64 // 下单价（中间价截断到 [0.01, 0.99]）
	Size       float64 // 份额数量
	StakeUSD   float64 // 实际投入金额
	Edge       float64
	SizeBumped bool // 是否触发最小下单量抬升
	Reason     string
}

// Decide 把信号快照折算为交易决策。纯函数，不触发任何IO。
// 对称阈值：edge >= minEdge 买UP，edge <= 1-minEdge 买DOWN，
// 中间的死区不交易。
func Decide(snap *signal.Snapshot, pair market.OutcomePair, minEdge, stakeUSD, minSize float64) Decision {
	if snap.Degraded {
		return Decision{Action: ActionNone, Edge: snap.Edge, Reason: snap.Reason}
	}

	var action Action
	var token string
	var price float64

	switch {
	case snap.Edge >= minEdge:
		action = ActionBuyUp
		token = pair.Up
		price = snap.MidPrice
	case snap.Edge <= 1.0-minEdge:
		action = ActionBuyDown
		token = pair.Down
		price = 1.0 - snap.MidPrice
	default:
		return Decision{Action: ActionNone, Edge: snap.Edge, Reason: "edge in dead zone"}
	}

	// 价格截断到合法报价区间，再据此派生数量
	price = utils.Clamp(price, 0.01, 0.99)
	size := utils.Round(stakeUSD/price, 6)
	stake := stakeUSD
	bumped := false

	// 交易所最小下单量：数量抬升到下限，实际投入随之放大
	if size < minSize {
		size = minSize
		stake = utils.Round(size*price, 4)
		bumped = true
		logger.Info("下单量不足下限，抬升至 %.0f（实际投入 $%.4f）", minSize, stake)
	}

	return Decision{
		Action:     action,
		Token:      token,
		Price:      price,
		Size:       size,
		StakeUSD:   stake,
		Edge:       snap.Edge,
		SizeBumped: bumped,
	}
}
