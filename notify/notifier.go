package notify

import (
	"sync"

	"polyastra/config"
	"polyastra/logger"
)

// Notifier 通知接口
type Notifier interface {
	Send(message string) error
	Name() string
}

// Service 通知服务，向所有启用的渠道异步广播
type Service struct {
	notifiers []Notifier
}

// NewService 根据配置创建通知服务
func NewService(cfg *config.Config) *Service {
	s := &Service{}
	if !cfg.Notifications.Enabled {
		return s
	}

	if cfg.Notifications.Discord.Enabled && cfg.Notifications.Discord.WebhookURL != "" {
		s.notifiers = append(s.notifiers, NewDiscordNotifier(
			cfg.Notifications.Discord.WebhookURL,
			cfg.Notifications.Discord.TimeoutSec,
		))
		logger.Info("✅ Discord 通知已启用")
	}

	return s
}

// Enabled 是否有任何渠道启用
func (s *Service) Enabled() bool {
	return len(s.notifiers) > 0
}

// Send 发送通知（异步，不阻塞交易周期）
func (s *Service) Send(message string) {
	if message == "" || len(s.notifiers) == 0 {
		return
	}

	go func() {
		var wg sync.WaitGroup
		for _, n := range s.notifiers {
			wg.Add(1)
			go func(n Notifier) {
				defer wg.Done()
				if err := n.Send(message); err != nil {
					logger.Warn("⚠️ [%s] 通知发送失败: %v", n.Name(), err)
				}
			}(n)
		}
		wg.Wait()
	}()
}
