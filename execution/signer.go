package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"polyastra/logger"
)

// SignerPlacer 通过独立签名服务下单。
// 签名服务持有私钥并负责EIP-712签名与CLOB提交，本进程不接触密钥。
type SignerPlacer struct {
	baseURL string
	token   string
	client  *http.Client

	mu        sync.Mutex
	credsOK   bool
	credsTime time.Time
}

// credTTL 凭证会话有效期，过期后下次下单前重新握手
const credTTL = 30 * time.Minute

// NewSignerPlacer 创建签名服务下单器
func NewSignerPlacer(baseURL, authToken string, timeout time.Duration) *SignerPlacer {
	return &SignerPlacer{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   authToken,
		client:  &http.Client{Timeout: timeout},
	}
}

// EnsureCredentials 确保签名服务会话有效。
func (s *SignerPlacer) EnsureCredentials(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.credsOK && time.Since(s.credsTime) < credTTL {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/session", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("签名服务握手失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("签名服务握手返回状态码 %d", resp.StatusCode)
	}

	s.credsOK = true
	s.credsTime = time.Now()
	logger.Debug("签名服务会话已刷新")
	return nil
}

// PlaceOrder 提交限价买单
func (s *SignerPlacer) PlaceOrder(ctx context.Context, token string, price, size float64) (string, string, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"token_id": token,
		"side":     "BUY",
		"price":    price,
		"size":     size,
	})
	if err != nil {
		return "", "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/orders", bytes.NewReader(payload))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("签名服务拒绝下单: %d %s", resp.StatusCode, string(body))
	}

	var out struct {
		Status  string `json:"status"`
		OrderID string `json:"orderID"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", "", fmt.Errorf("解析下单响应失败: %w", err)
	}
	return out.Status, out.OrderID, nil
}
