package config

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Config polyastra 系统配置
type Config struct {
	// 交易配置
	Trading struct {
		Symbols        []string `yaml:"symbols"`              // 跟踪的标的，如 BTC, ETH, XRP, SOL
		StakeUSD       float64  `yaml:"stake_usd"`            // 每笔名义下注金额（USDC）
		MinEdge        float64  `yaml:"min_edge"`             // 开仓边际阈值（>0.5）
		MaxSpread      float64  `yaml:"max_spread"`           // 最大允许点差，超过视为无信号
		MinSize        float64  `yaml:"min_size"`             // 交易所最小下单数量
		WindowMinutes  int      `yaml:"window_minutes"`       // 窗口长度（分钟），须整除60
		WindowDelaySec int      `yaml:"window_delay_seconds"` // 窗口开始后延迟多少秒再交易
	} `yaml:"trading"`

	// 市场解析配置
	Market struct {
		GammaBaseURL       string  `yaml:"gamma_base_url"`          // 市场元数据API
		ClobBaseURL        string  `yaml:"clob_base_url"`           // 订单簿API
		ResolveMaxAttempts int     `yaml:"resolve_max_attempts"`    // 市场查找最大尝试次数
		ResolveBackoffSec  int     `yaml:"resolve_backoff_seconds"` // 尝试间隔（秒）
		RequestTimeoutSec  int     `yaml:"request_timeout_seconds"` // 单次HTTP请求超时
		RateLimitPerSec    float64 `yaml:"rate_limit_per_second"`   // 外部查询限速
	} `yaml:"market"`

	// 信号源配置
	Signal struct {
		FundingPairs map[string]string `yaml:"funding_pairs"` // 标的 -> 币安永续合约交易对
		SentimentURL string            `yaml:"sentiment_url"` // 恐惧贪婪指数API
	} `yaml:"signal"`

	// 外部趋势过滤器（可选，未配置URL时不过滤）
	TrendFilter struct {
		URL      string            `yaml:"url"`
		PairKeys map[string]string `yaml:"pair_keys"` // 标的 -> 趋势表中的键，如 BTC -> BTC/USDT
	} `yaml:"trend_filter"`

	// 下单通道配置（签名服务作为外部协作方）
	Execution struct {
		SignerURL  string `yaml:"signer_url"`
		AuthToken  string `yaml:"auth_token"`
		TimeoutSec int    `yaml:"timeout_seconds"`
	} `yaml:"execution"`

	// 数据库配置（支持 SQLite、PostgreSQL、MySQL）
	Database struct {
		Type            string `yaml:"type"`              // 数据库类型: sqlite, postgres, mysql，默认 sqlite
		DSN             string `yaml:"dsn"`               // 数据源名称，默认 ./data/polyastra.db
		MaxOpenConns    int    `yaml:"max_open_conns"`    // 最大打开连接数
		MaxIdleConns    int    `yaml:"max_idle_conns"`    // 最大空闲连接数
		ConnMaxLifetime int    `yaml:"conn_max_lifetime"` // 连接最大生命周期（秒）
		LogLevel        string `yaml:"log_level"`         // 日志级别: silent, error, warn, info
	} `yaml:"database"`

	// 结算锁配置（多实例部署时串行化结算）
	SettlementLock struct {
		Enabled bool   `yaml:"enabled"` // 默认false（单实例模式，使用进程内锁）
		Prefix  string `yaml:"prefix"`  // 锁键前缀，默认 "polyastra:lock:"
		TTLSec  int    `yaml:"ttl"`     // 锁过期时间（秒）

		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			PoolSize int    `yaml:"pool_size"`
		} `yaml:"redis"`
	} `yaml:"settlement_lock"`

	// 通知配置
	Notifications struct {
		Enabled bool `yaml:"enabled"`

		Discord struct {
			Enabled    bool   `yaml:"enabled"`
			WebhookURL string `yaml:"webhook_url"`
			TimeoutSec int    `yaml:"timeout_seconds"`
		} `yaml:"discord"`
	} `yaml:"notifications"`

	// Web 状态接口配置
	Web struct {
		Enabled bool   `yaml:"enabled"`
		Listen  string `yaml:"listen"` // 监听地址，默认 :8087
	} `yaml:"web"`

	System struct {
		LogLevel          string `yaml:"log_level"`
		MarketTimezone    string `yaml:"market_timezone"`     // 窗口对齐时区，默认 America/New_York
		ReportEveryCycles int    `yaml:"report_every_cycles"` // 每N个周期生成一次绩效报告
	} `yaml:"system"`

	mu sync.RWMutex // 保护可热更新字段
}

// LoadConfig 从文件加载配置
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	return LoadConfigFromBytes(data)
}

// LoadConfigFromBytes 从字节数据加载配置
func LoadConfigFromBytes(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults 填充默认值
func (c *Config) applyDefaults() {
	if len(c.Trading.Symbols) == 0 {
		c.Trading.Symbols = []string{"BTC", "ETH", "XRP", "SOL"}
	}
	if c.Trading.StakeUSD <= 0 {
		c.Trading.StakeUSD = 1.1
	}
	if c.Trading.MinEdge == 0 {
		c.Trading.MinEdge = 0.565
	}
	if c.Trading.MaxSpread == 0 {
		c.Trading.MaxSpread = 0.15
	}
	if c.Trading.MinSize == 0 {
		c.Trading.MinSize = 5.0
	}
	if c.Trading.WindowMinutes == 0 {
		c.Trading.WindowMinutes = 15
	}
	// 简单兜底：窗口延迟限制在 [0, 300] 秒
	if c.Trading.WindowDelaySec < 0 {
		c.Trading.WindowDelaySec = 0
	}
	if c.Trading.WindowDelaySec > 300 {
		c.Trading.WindowDelaySec = 300
	}

	if c.Market.GammaBaseURL == "" {
		c.Market.GammaBaseURL = "https://gamma-api.polymarket.com"
	}
	if c.Market.ClobBaseURL == "" {
		c.Market.ClobBaseURL = "https://clob.polymarket.com"
	}
	if c.Market.ResolveMaxAttempts == 0 {
		c.Market.ResolveMaxAttempts = 12
	}
	if c.Market.ResolveBackoffSec == 0 {
		c.Market.ResolveBackoffSec = 4
	}
	if c.Market.RequestTimeoutSec == 0 {
		c.Market.RequestTimeoutSec = 5
	}
	if c.Market.RateLimitPerSec == 0 {
		c.Market.RateLimitPerSec = 10
	}

	if c.Signal.FundingPairs == nil {
		c.Signal.FundingPairs = map[string]string{
			"BTC": "BTCUSDT",
			"ETH": "ETHUSDT",
			"XRP": "XRPUSDT",
			"SOL": "SOLUSDT",
		}
	}
	if c.Signal.SentimentURL == "" {
		c.Signal.SentimentURL = "https://api.alternative.me/fng/"
	}

	if c.TrendFilter.PairKeys == nil {
		c.TrendFilter.PairKeys = map[string]string{"BTC": "BTC/USDT"}
	}

	if c.Execution.TimeoutSec == 0 {
		c.Execution.TimeoutSec = 10
	}

	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Database.DSN == "" {
		c.Database.DSN = "./data/polyastra.db"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 3600
	}
	if c.Database.LogLevel == "" {
		c.Database.LogLevel = "error"
	}

	if c.SettlementLock.Prefix == "" {
		c.SettlementLock.Prefix = "polyastra:lock:"
	}
	if c.SettlementLock.TTLSec == 0 {
		c.SettlementLock.TTLSec = 60
	}
	if c.SettlementLock.Redis.Addr == "" {
		c.SettlementLock.Redis.Addr = "localhost:6379"
	}
	if c.SettlementLock.Redis.PoolSize == 0 {
		c.SettlementLock.Redis.PoolSize = 10
	}

	if c.Notifications.Discord.TimeoutSec == 0 {
		c.Notifications.Discord.TimeoutSec = 5
	}

	if c.Web.Listen == "" {
		c.Web.Listen = ":8087"
	}

	if c.System.LogLevel == "" {
		c.System.LogLevel = "info"
	}
	if c.System.MarketTimezone == "" {
		c.System.MarketTimezone = "America/New_York"
	}
	if c.System.ReportEveryCycles == 0 {
		c.System.ReportEveryCycles = 16
	}
}

// applyEnvOverrides 敏感配置允许通过环境变量注入
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DISCORD_WEBHOOK"); v != "" {
		c.Notifications.Enabled = true
		c.Notifications.Discord.Enabled = true
		c.Notifications.Discord.WebhookURL = v
	}
	if v := os.Getenv("BFXD_URL"); v != "" {
		c.TrendFilter.URL = v
	}
	if v := os.Getenv("SIGNER_TOKEN"); v != "" {
		c.Execution.AuthToken = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.SettlementLock.Redis.Password = v
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if len(c.Trading.Symbols) == 0 {
		return fmt.Errorf("trading.symbols 不能为空")
	}
	if c.Trading.StakeUSD <= 0 {
		return fmt.Errorf("trading.stake_usd 必须大于0")
	}
	if c.Trading.MinEdge <= 0.5 || c.Trading.MinEdge >= 1 {
		return fmt.Errorf("trading.min_edge 必须在 (0.5, 1) 区间，当前: %v", c.Trading.MinEdge)
	}
	if c.Trading.MaxSpread <= 0 || c.Trading.MaxSpread >= 1 {
		return fmt.Errorf("trading.max_spread 必须在 (0, 1) 区间，当前: %v", c.Trading.MaxSpread)
	}
	if c.Trading.MinSize <= 0 {
		return fmt.Errorf("trading.min_size 必须大于0")
	}
	if c.Trading.WindowMinutes <= 0 || c.Trading.WindowMinutes > 60 || 60%c.Trading.WindowMinutes != 0 {
		return fmt.Errorf("trading.window_minutes 必须整除60，当前: %d", c.Trading.WindowMinutes)
	}
	switch c.Database.Type {
	case "sqlite", "postgres", "postgresql", "mysql":
	default:
		return fmt.Errorf("不支持的数据库类型: %s", c.Database.Type)
	}
	return nil
}

// GetMinEdge 获取开仓边际阈值（支持热更新）
func (c *Config) GetMinEdge() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Trading.MinEdge
}

// GetMaxSpread 获取最大点差（支持热更新）
func (c *Config) GetMaxSpread() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Trading.MaxSpread
}

// GetStakeUSD 获取名义下注金额（支持热更新）
func (c *Config) GetStakeUSD() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Trading.StakeUSD
}

// GetWindowDelay 获取窗口延迟秒数（支持热更新）
func (c *Config) GetWindowDelay() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Trading.WindowDelaySec
}

// ApplyHot 应用可热更新的参数（由配置监控器调用）
func (c *Config) ApplyHot(n *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Trading.MinEdge = n.Trading.MinEdge
	c.Trading.MaxSpread = n.Trading.MaxSpread
	c.Trading.StakeUSD = n.Trading.StakeUSD
	c.Trading.WindowDelaySec = n.Trading.WindowDelaySec
}
