package window

import (
	"strconv"
	"testing"
	"time"

	"polyastra/utils"
)

func TestCurrent_Alignment(t *testing.T) {
	loc := utils.MarketLocation

	// 14:37 落在 [14:30, 14:45) 窗口
	ref := time.Date(2026, 3, 2, 14, 37, 42, 0, loc)
	w := Current("BTC", ref, 15*time.Minute)

	if w.Start.Minute() != 30 || w.Start.Second() != 0 {
		t.Errorf("窗口起点未对齐: %v", w.Start)
	}
	if !w.End.Equal(w.Start.Add(15 * time.Minute)) {
		t.Errorf("窗口终点错误: %v", w.End)
	}
	if w.Slug != "btc-updown-15m-"+strconv.FormatInt(w.Start.UTC().Unix(), 10) {
		t.Errorf("slug 派生错误: %s", w.Slug)
	}
}

func TestCurrent_IdempotentWithinWindow(t *testing.T) {
	loc := utils.MarketLocation

	// 同一窗口内的两次调用必须得到相同 ID
	a := Current("ETH", time.Date(2026, 5, 1, 9, 15, 1, 0, loc), 15*time.Minute)
	b := Current("ETH", time.Date(2026, 5, 1, 9, 29, 59, 0, loc), 15*time.Minute)

	if a.ID != b.ID || a.Slug != b.Slug {
		t.Errorf("同一窗口内 ID 不一致: %s vs %s", a.ID, b.ID)
	}

	// 下一个窗口的 ID 必须不同
	c := Current("ETH", time.Date(2026, 5, 1, 9, 30, 0, 0, loc), 15*time.Minute)
	if c.ID == a.ID {
		t.Errorf("相邻窗口 ID 不应相同: %s", c.ID)
	}
}

func TestCurrent_DSTFallBack(t *testing.T) {
	loc := utils.MarketLocation

	// 2026-11-01 美东夏令时结束，01:30 出现两次；ID 基于UTC绝对时刻，
	// 两个钟面相同的窗口必须得到不同 ID。
	first := time.Date(2026, 11, 1, 5, 30, 0, 0, time.UTC).In(loc)  // EDT 01:30
	second := time.Date(2026, 11, 1, 6, 30, 0, 0, time.UTC).In(loc) // EST 01:30

	a := Current("BTC", first, 15*time.Minute)
	b := Current("BTC", second, 15*time.Minute)

	if a.ID == b.ID {
		t.Errorf("夏令时回拨产生了重复窗口 ID: %s", a.ID)
	}
}

func TestCurrent_DistinctSymbols(t *testing.T) {
	ref := time.Date(2026, 5, 1, 9, 15, 0, 0, utils.MarketLocation)
	a := Current("BTC", ref, 15*time.Minute)
	b := Current("SOL", ref, 15*time.Minute)
	if a.ID == b.ID {
		t.Errorf("不同标的不应共享窗口 ID")
	}
}
