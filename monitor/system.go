package monitor

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"polyastra/logger"
	"polyastra/metrics"
)

// SystemMetrics 进程资源指标
type SystemMetrics struct {
	Timestamp     time.Time `json:"timestamp"`
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryMB      float64   `json:"memory_mb"`
	MemoryPercent float64   `json:"memory_percent"`
	Goroutines    int       `json:"goroutines"`
	ProcessID     int       `json:"process_id"`
}

// Collect 采集一次进程资源指标
func Collect() (*SystemMetrics, error) {
	pid := os.Getpid()
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil, fmt.Errorf("获取进程失败: %w", err)
	}

	cpuPercent, err := p.CPUPercent()
	if err != nil {
		// 进程级失败时退回系统CPU使用率
		percentages, cerr := cpu.Percent(time.Second, false)
		if cerr != nil || len(percentages) == 0 {
			return nil, fmt.Errorf("获取CPU占用率失败: %w", err)
		}
		cpuPercent = percentages[0]
	}

	memInfo, err := p.MemoryInfo()
	if err != nil {
		return nil, fmt.Errorf("获取内存信息失败: %w", err)
	}
	memoryMB := float64(memInfo.RSS) / 1024 / 1024

	var memoryPercent float64
	if memStat, err := mem.VirtualMemory(); err == nil && memStat.Total > 0 {
		memoryPercent = float64(memInfo.RSS) / float64(memStat.Total) * 100
	}

	return &SystemMetrics{
		Timestamp:     time.Now(),
		CPUPercent:    cpuPercent,
		MemoryMB:      memoryMB,
		MemoryPercent: memoryPercent,
		Goroutines:    runtime.NumGoroutine(),
		ProcessID:     pid,
	}, nil
}

// Collector 周期性资源采集器，结果写入指标
type Collector struct {
	interval time.Duration
	cancel   context.CancelFunc
}

// NewCollector 创建采集器
func NewCollector(interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Collector{interval: interval}
}

// Start 启动后台采集
func (c *Collector) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m, err := Collect()
				if err != nil {
					logger.Debug("系统指标采集失败: %v", err)
					continue
				}
				metrics.SetSystemStats(m.CPUPercent, m.MemoryMB, m.Goroutines)
			}
		}
	}()
}

// Stop 停止采集
func (c *Collector) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}
