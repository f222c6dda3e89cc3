package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"polyastra/logger"
	"polyastra/window"
)

// ErrMarketNotFound 重试耗尽后仍未找到窗口对应的市场。
// 调用方应跳过该标的的本周期，而不是中止。
var ErrMarketNotFound = errors.New("market not found")

// OutcomePair 一个窗口的两个结果代币（UP / DOWN）
type OutcomePair struct {
	Up   string
	Down string
}

// RetryPolicy 有界重试策略
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Resolver 市场解析器：按 (标的, 窗口slug) 查找结果代币对
type Resolver struct {
	baseURL string
	client  *http.Client
	policy  RetryPolicy
	limiter *rate.Limiter
	sleep   func(ctx context.Context, d time.Duration) error // 可注入，便于测试
}

// NewResolver 创建市场解析器
func NewResolver(baseURL string, timeout time.Duration, policy RetryPolicy, limiter *rate.Limiter) *Resolver {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	return &Resolver{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		policy:  policy,
		limiter: limiter,
		sleep:   sleepCtx,
	}
}

// Resolve 解析窗口对应的 UP/DOWN 代币对。
// 新窗口的市场在窗口开始后才可查询，因此按策略有界重试；
// 耗尽后返回 ErrMarketNotFound。
func (r *Resolver) Resolve(ctx context.Context, w window.Window) (OutcomePair, error) {
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		pair, err := r.lookup(ctx, w.Slug)
		if err == nil {
			logger.Info("[%s] 找到市场: UP %s... | DOWN %s...", w.Symbol, head(pair.Up), head(pair.Down))
			return pair, nil
		}
		if ctx.Err() != nil {
			return OutcomePair{}, ctx.Err()
		}
		logger.Debug("[%s] 市场查找第 %d/%d 次失败: %v", w.Symbol, attempt, r.policy.MaxAttempts, err)

		if attempt < r.policy.MaxAttempts {
			if err := r.sleep(ctx, r.policy.Backoff); err != nil {
				return OutcomePair{}, err
			}
		}
	}
	return OutcomePair{}, fmt.Errorf("%w: %s", ErrMarketNotFound, w.Slug)
}

// lookup 单次市场查询
func (r *Resolver) lookup(ctx context.Context, slug string) (OutcomePair, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return OutcomePair{}, err
		}
	}

	url := fmt.Sprintf("%s/markets/slug/%s", r.baseURL, slug)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return OutcomePair{}, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return OutcomePair{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return OutcomePair{}, fmt.Errorf("市场API返回状态码 %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return OutcomePair{}, err
	}

	var payload struct {
		ClobTokenIDs    json.RawMessage `json:"clobTokenIds"`
		ClobTokenIDsAlt json.RawMessage `json:"clob_token_ids"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return OutcomePair{}, fmt.Errorf("解析市场响应失败: %w", err)
	}

	raw := payload.ClobTokenIDs
	if len(raw) == 0 {
		raw = payload.ClobTokenIDsAlt
	}

	ids, err := parseTokenIDs(raw)
	if err != nil {
		return OutcomePair{}, err
	}

	// 约定: ids[0] = UP, ids[1] = DOWN
	return OutcomePair{Up: ids[0], Down: ids[1]}, nil
}

// parseTokenIDs 解析结果代币列表。
// 上游schema不稳定：该字段可能是JSON数组，也可能是数组的字符串编码，
// 两种形式都要解析成相同的有序两元素结果。
func parseTokenIDs(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("市场响应缺少代币列表")
	}

	var ids []string
	if err := json.Unmarshal(raw, &ids); err == nil {
		return checkPair(ids)
	}

	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil, fmt.Errorf("无法识别的代币列表格式: %s", string(raw))
	}

	if err := json.Unmarshal([]byte(encoded), &ids); err == nil {
		return checkPair(ids)
	}

	// 最后兜底：手工去掉括号和引号
	parts := strings.Split(strings.Trim(encoded, "[]"), ",")
	ids = ids[:0]
	for _, p := range parts {
		p = strings.Trim(strings.TrimSpace(p), `"`)
		if p != "" {
			ids = append(ids, p)
		}
	}
	return checkPair(ids)
}

func checkPair(ids []string) ([]string, error) {
	if len(ids) < 2 {
		return nil, fmt.Errorf("代币列表长度不足: %d", len(ids))
	}
	return ids[:2], nil
}

func head(token string) string {
	if len(token) > 10 {
		return token[:10]
	}
	return token
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
