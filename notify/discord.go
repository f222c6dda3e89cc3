package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// discordMaxLen Discord 单条消息上限
const discordMaxLen = 2000

// DiscordNotifier Discord Webhook 通知器
type DiscordNotifier struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

// NewDiscordNotifier 创建 Discord 通知器
func NewDiscordNotifier(webhookURL string, timeoutSec int) *DiscordNotifier {
	timeout := time.Duration(timeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &DiscordNotifier{
		url:     webhookURL,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name 返回通知器名称
func (d *DiscordNotifier) Name() string {
	return "Discord"
}

// Send 发送通知
func (d *DiscordNotifier) Send(message string) error {
	if len(message) > discordMaxLen {
		message = message[:discordMaxLen-3] + "..."
	}

	payload, err := json.Marshal(map[string]string{"content": message})
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("Discord 返回错误状态码: %d", resp.StatusCode)
	}
	return nil
}
