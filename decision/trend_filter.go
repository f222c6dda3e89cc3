package decision

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"polyastra/logger"
)

// TrendFilter 外部趋势过滤器。
// 所有异常路径（未配置、请求失败、键缺失、未知趋势值）一律放行，
// 过滤器只会在明确相反的趋势下否决交易，绝不因自身故障阻塞交易。
type TrendFilter struct {
	url      string
	pairKeys map[string]string // 标的 -> 趋势表键名，如 BTC -> BTC/USDT
	client   *http.Client
}

// NewTrendFilter 创建趋势过滤器。url 为空表示未启用。
func NewTrendFilter(url string, pairKeys map[string]string, client *http.Client) *TrendFilter {
	if client == nil {
		client = http.DefaultClient
	}
	return &TrendFilter{url: strings.TrimSpace(url), pairKeys: pairKeys, client: client}
}

// Allows 判断趋势是否允许在该标的上执行指定方向。
func (f *TrendFilter) Allows(ctx context.Context, symbol string, action Action) bool {
	if f.url == "" {
		return true
	}
	if action != ActionBuyUp && action != ActionBuyDown {
		return true
	}

	key, ok := f.pairKeys[strings.ToUpper(symbol)]
	if !ok {
		return true
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return true
	}
	resp, err := f.client.Do(req)
	if err != nil {
		logger.Debug("[%s] 趋势过滤器请求失败，放行: %v", symbol, err)
		return true
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return true
	}

	var trends map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&trends); err != nil {
		logger.Debug("[%s] 趋势过滤器响应无效，放行: %v", symbol, err)
		return true
	}

	trend := strings.ToUpper(trends[key])
	switch trend {
	case "UP":
		if action == ActionBuyDown {
			logger.Info("[%s] 趋势过滤器否决: 趋势UP，拒绝DOWN", symbol)
			return false
		}
	case "DOWN":
		if action == ActionBuyUp {
			logger.Info("[%s] 趋势过滤器否决: 趋势DOWN，拒绝UP", symbol)
			return false
		}
	default:
		// 缺失或未知趋势值，放行
	}
	return true
}
