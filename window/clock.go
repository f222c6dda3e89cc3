package window

import (
	"fmt"
	"strings"
	"time"

	"polyastra/utils"
)

// Window 固定长度交易窗口。每个标的在每个窗口内只存在一个市场实例。
type Window struct {
	Symbol string
	Start  time.Time // 市场参考时区
	End    time.Time
	ID     string // 窗口稳定标识，由 (标的, 窗口起点UTC时刻) 决定
	Slug   string // 市场查询用 slug
}

// Current 计算 ref 所在的窗口。
// 窗口边界在市场参考时区内按 length 对齐；ID/Slug 由窗口起点的UTC绝对时刻
// 派生，而不是本地钟面字段，夏令时切换不会产生重复或跳号。
// 纯函数：同一窗口内任意 ref 得到相同结果。
func Current(symbol string, ref time.Time, length time.Duration) Window {
	local := utils.ToMarketTime(ref)

	minutes := int(length.Minutes())
	slot := (local.Minute() / minutes) * minutes
	start := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), slot, 0, 0, local.Location())
	end := start.Add(length)

	ts := start.UTC().Unix()
	slug := fmt.Sprintf("%s-updown-%dm-%d", strings.ToLower(symbol), minutes, ts)

	return Window{
		Symbol: symbol,
		Start:  start,
		End:    end,
		ID:     fmt.Sprintf("%s-%d", symbol, ts),
		Slug:   slug,
	}
}
