package utils

import (
	"time"
)

var (
	// MarketLocation 预测市场窗口对齐使用的参考时区
	MarketLocation *time.Location
)

func init() {
	// 默认加载美东时区（Polymarket 15分钟市场按美东时间对齐）
	SetMarketLocation("America/New_York")
}

// SetMarketLocation 设置市场参考时区
func SetMarketLocation(name string) error {
	loc, err := time.LoadLocation(name)
	if err != nil {
		// 加载失败时保留原有时区或退回UTC
		if MarketLocation == nil {
			MarketLocation = time.UTC
		}
		return err
	}
	MarketLocation = loc
	return nil
}

// ToMarketTime 将时间转换为市场参考时区
func ToMarketTime(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.In(MarketLocation)
}

// NowMarket 获取市场参考时区的当前时间
func NowMarket() time.Time {
	return time.Now().In(MarketLocation)
}

// ToUTC 将时间转换为UTC时间
func ToUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

// NowUTC 获取当前UTC时间
func NowUTC() time.Time {
	return time.Now().UTC()
}
