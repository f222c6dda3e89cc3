package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"

	"polyastra/logger"
)

// BinanceFunding 基于币安永续资金费率的动量偏置源。
// 费率量级约 1e-4，放大1000倍后落到边际分数可感知的量级。
type BinanceFunding struct {
	client *futures.Client
	pairs  map[string]string // 标的 -> 币安合约对，如 BTC -> BTCUSDT
}

// NewBinanceFunding 创建资金费率源。只读公共接口，无需API密钥。
func NewBinanceFunding(pairs map[string]string) *BinanceFunding {
	return &BinanceFunding{
		client: futures.NewClient("", ""),
		pairs:  pairs,
	}
}

// FundingBias 获取标的的动量偏置。未配置合约对或读取失败均返回 OK=false。
func (b *BinanceFunding) FundingBias(ctx context.Context, symbol string) Reading {
	pair, ok := b.pairs[symbol]
	if !ok {
		return Reading{}
	}

	list, err := b.client.NewPremiumIndexService().Symbol(pair).Do(ctx)
	if err != nil {
		logger.Debug("[%s] 获取资金费率失败: %v", symbol, err)
		return Reading{}
	}
	if len(list) == 0 {
		return Reading{}
	}

	fundingRate, err := strconv.ParseFloat(list[0].LastFundingRate, 64)
	if err != nil {
		logger.Debug("[%s] 解析资金费率失败: %v", symbol, err)
		return Reading{}
	}

	return Reading{Value: fundingRate * 1000.0, OK: true}
}

// FearGreed 恐惧贪婪指数源
type FearGreed struct {
	url    string
	client *http.Client
}

// NewFearGreed 创建情绪源
func NewFearGreed(url string, client *http.Client) *FearGreed {
	if client == nil {
		client = http.DefaultClient
	}
	return &FearGreed{url: url, client: client}
}

// SentimentIndex 获取恐惧贪婪指数（0-100）。任何失败返回 OK=false。
func (f *FearGreed) SentimentIndex(ctx context.Context) IntReading {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return IntReading{}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		logger.Debug("获取恐惧贪婪指数失败: %v", err)
		return IntReading{}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return IntReading{}
	}

	var payload struct {
		Data []struct {
			Value string `json:"value"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil || len(payload.Data) == 0 {
		return IntReading{}
	}

	v, err := strconv.Atoi(strings.TrimSpace(payload.Data[0].Value))
	if err != nil {
		return IntReading{}
	}
	return IntReading{Value: v, OK: true}
}

// ClobBooks CLOB订单簿源
type ClobBooks struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewClobBooks 创建订单簿源
func NewClobBooks(baseURL string, client *http.Client, limiter *rate.Limiter) *ClobBooks {
	if client == nil {
		client = http.DefaultClient
	}
	return &ClobBooks{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		limiter: limiter,
	}
}

// GetOrderBook 拉取单个结果代币的订单簿。
// CLOB 返回的价格/数量是字符串，档位从差到优排序（最优档在末尾）。
func (c *ClobBooks) GetOrderBook(ctx context.Context, token string) (*OrderBook, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	url := fmt.Sprintf("%s/book?token_id=%s", c.baseURL, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("订单簿API返回状态码 %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Bids []struct {
			Price string `json:"price"`
			Size  string `json:"size"`
		} `json:"bids"`
		Asks []struct {
			Price string `json:"price"`
			Size  string `json:"size"`
		} `json:"asks"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("解析订单簿失败: %w", err)
	}

	book := &OrderBook{}
	for _, lv := range payload.Bids {
		p, err1 := strconv.ParseFloat(lv.Price, 64)
		s, err2 := strconv.ParseFloat(lv.Size, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		book.Bids = append(book.Bids, BookLevel{Price: p, Size: s})
	}
	for _, lv := range payload.Asks {
		p, err1 := strconv.ParseFloat(lv.Price, 64)
		s, err2 := strconv.ParseFloat(lv.Size, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		book.Asks = append(book.Asks, BookLevel{Price: p, Size: s})
	}
	return book, nil
}
