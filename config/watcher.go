package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"polyastra/logger"
)

// Watcher 配置文件监控器，仅热更新交易阈值（min_edge / max_spread / stake_usd / window_delay）
type Watcher struct {
	configPath string
	watcher    *fsnotify.Watcher
	cfg        *Config
}

// NewWatcher 创建配置监控器
func NewWatcher(configPath string, cfg *Config) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("创建文件监控器失败: %w", err)
	}

	// 监控配置文件所在目录（部分编辑器保存时会替换文件）
	configDir := filepath.Dir(configPath)
	if err := watcher.Add(configDir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("添加监控目录失败: %w", err)
	}

	return &Watcher{
		configPath: configPath,
		watcher:    watcher,
		cfg:        cfg,
	}, nil
}

// Start 启动监控（阻塞，建议在独立 goroutine 中运行）
func (w *Watcher) Start(ctx context.Context) {
	// 防抖：编辑器保存通常触发多个事件
	var debounce *time.Timer
	target := filepath.Clean(w.configPath)

	for {
		select {
		case <-ctx.Done():
			w.watcher.Close()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(500*time.Millisecond, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("⚠️ 配置监控错误: %v", err)
		}
	}
}

// reload 重新加载配置并应用热更新字段
func (w *Watcher) reload() {
	newCfg, err := LoadConfig(w.configPath)
	if err != nil {
		logger.Warn("⚠️ 配置热更新失败，保留当前配置: %v", err)
		return
	}

	w.cfg.ApplyHot(newCfg)
	logger.Info("🔄 配置已热更新: min_edge=%.3f max_spread=%.3f stake=%.2f delay=%ds",
		newCfg.Trading.MinEdge, newCfg.Trading.MaxSpread,
		newCfg.Trading.StakeUSD, newCfg.Trading.WindowDelaySec)
}
