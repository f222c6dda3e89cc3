package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"polyastra/config"
	"polyastra/decision"
	"polyastra/engine"
	"polyastra/execution"
	"polyastra/ledger"
	"polyastra/lock"
	"polyastra/logger"
	"polyastra/market"
	"polyastra/monitor"
	"polyastra/notify"
	"polyastra/settle"
	"polyastra/signal"
	"polyastra/stats"
	"polyastra/utils"
	"polyastra/web"
)

// Version 版本号
var Version = "1.2.0"

// reporter 周期性绩效报告：生成统计并推送通知
type reporter struct {
	agg      *stats.Aggregator
	notifier *notify.Service
}

func (r *reporter) Report(ctx context.Context) {
	report, err := r.agg.Build(ctx)
	if err != nil {
		logger.Warn("⚠️ 生成绩效报告失败: %v", err)
		return
	}
	text := report.Text()
	logger.Info("%s", text)
	r.notifier.Send(text)
}

func main() {
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal("❌ 加载配置失败: %v", err)
	}

	logger.SetLevel(logger.ParseLogLevel(cfg.System.LogLevel))
	if err := utils.SetMarketLocation(cfg.System.MarketTimezone); err != nil {
		logger.Fatal("❌ 加载市场时区失败: %v", err)
	}

	logger.Info("🚀 polyastra v%s 启动", Version)
	logger.Info("📊 标的: %v | 窗口: %d分钟 | 下注: $%.2f | 阈值: %.3f",
		cfg.Trading.Symbols, cfg.Trading.WindowMinutes, cfg.Trading.StakeUSD, cfg.Trading.MinEdge)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 台账
	store, err := ledger.NewStore(&ledger.Config{
		Type:            cfg.Database.Type,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetime) * time.Second,
		LogLevel:        cfg.Database.LogLevel,
	})
	if err != nil {
		logger.Fatal("❌ 初始化台账失败: %v", err)
	}
	defer store.Close()

	// 结算锁
	settleLock, err := lock.New(&lock.Config{
		Enabled:    cfg.SettlementLock.Enabled,
		Prefix:     cfg.SettlementLock.Prefix,
		DefaultTTL: time.Duration(cfg.SettlementLock.TTLSec) * time.Second,
		Redis: lock.RedisConfig{
			Addr:     cfg.SettlementLock.Redis.Addr,
			Password: cfg.SettlementLock.Redis.Password,
			DB:       cfg.SettlementLock.Redis.DB,
			PoolSize: cfg.SettlementLock.Redis.PoolSize,
		},
	})
	if err != nil {
		logger.Fatal("❌ 初始化结算锁失败: %v", err)
	}
	defer settleLock.Close()

	// 外部查询共享限速器
	limiter := rate.NewLimiter(rate.Limit(cfg.Market.RateLimitPerSec), 1)
	httpTimeout := time.Duration(cfg.Market.RequestTimeoutSec) * time.Second
	httpClient := &http.Client{Timeout: httpTimeout}

	// 市场解析
	resolver := market.NewResolver(cfg.Market.GammaBaseURL, httpTimeout, market.RetryPolicy{
		MaxAttempts: cfg.Market.ResolveMaxAttempts,
		Backoff:     time.Duration(cfg.Market.ResolveBackoffSec) * time.Second,
	}, limiter)

	// 信号引擎
	books := signal.NewClobBooks(cfg.Market.ClobBaseURL, httpClient, limiter)
	funding := signal.NewBinanceFunding(cfg.Signal.FundingPairs)
	sentiment := signal.NewFearGreed(cfg.Signal.SentimentURL, httpClient)
	signals := signal.NewEngine(books, funding, sentiment, cfg.GetMaxSpread)

	// 趋势过滤
	filter := decision.NewTrendFilter(cfg.TrendFilter.URL, cfg.TrendFilter.PairKeys, httpClient)

	// 执行网关
	placer := execution.NewSignerPlacer(cfg.Execution.SignerURL, cfg.Execution.AuthToken,
		time.Duration(cfg.Execution.TimeoutSec)*time.Second)
	gateway := execution.NewGateway(placer, limiter)

	// 通知与统计
	notifier := notify.NewService(cfg)
	aggregator := stats.NewAggregator(store)

	// 结算引擎
	settler := settle.NewSettler(store, signals, settleLock,
		time.Duration(cfg.SettlementLock.TTLSec)*time.Second, notifier)

	// 配置热更新
	watcher, err := config.NewWatcher(*configPath, cfg)
	if err != nil {
		logger.Warn("⚠️ 配置热更新不可用: %v", err)
	} else {
		go watcher.Start(ctx)
	}

	// 系统资源采集
	collector := monitor.NewCollector(30 * time.Second)
	collector.Start()
	defer collector.Stop()

	// 状态服务器
	web.NewServer(cfg, store, aggregator).Start(ctx)

	// 引擎主循环
	rep := &reporter{agg: aggregator, notifier: notifier}
	eng := engine.New(cfg, resolver, signals, filter, gateway, store, settler, rep)

	go func() {
		if err := eng.Run(ctx); err != nil && err != context.Canceled {
			logger.Error("❌ 引擎退出: %v", err)
		}
	}()

	logger.Info("✅ 系统初始化完成，程序正在运行中...")
	logger.Info("💡 按 Ctrl+C 退出程序")

	sigChan := make(chan os.Signal, 1)
	ossignal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("🛑 收到退出信号，开始优雅关闭...")
	cancel()

	// 退出前推送一次最终报告
	finalCtx, finalCancel := context.WithTimeout(context.Background(), 5*time.Second)
	rep.Report(finalCtx)
	finalCancel()

	// 留出时间让进行中的周期与通知收尾
	time.Sleep(500 * time.Millisecond)
	logger.Info("✅ 已退出")
}
