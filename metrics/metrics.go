package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 决策指标
	decisionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polyastra_decision_total",
			Help: "Total number of decisions by action",
		},
		[]string{"symbol", "action"},
	)

	edgeScore = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "polyastra_edge_score",
			Help:    "Distribution of computed edge scores",
			Buckets: prometheus.LinearBuckets(0.30, 0.05, 11),
		},
		[]string{"symbol"},
	)

	degradedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polyastra_signal_degraded_total",
			Help: "Total number of degraded signal snapshots",
		},
		[]string{"symbol", "reason"},
	)

	// 订单指标
	orderTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polyastra_order_total",
			Help: "Total number of order submissions",
		},
		[]string{"symbol", "side", "status"},
	)

	// 结算指标
	settledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polyastra_settled_total",
			Help: "Total number of settled trades",
		},
		[]string{"symbol"},
	)

	// 已实现盈亏可能为负，用 Gauge 而不是 Counter
	realizedPnL = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "polyastra_realized_pnl_usd",
			Help: "Cumulative realized PnL in USD",
		},
		[]string{"symbol"},
	)

	winRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "polyastra_win_rate",
			Help: "Win rate percentage over settled trades (0-100)",
		},
	)

	openTrades = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "polyastra_open_trades",
			Help: "Number of trades currently in OPEN state",
		},
	)

	// 系统指标
	processCPU = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "polyastra_process_cpu_percent",
			Help: "Process CPU usage percentage",
		},
	)

	processMemoryMB = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "polyastra_process_memory_mb",
			Help: "Process resident memory in MB",
		},
	)

	goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "polyastra_goroutines",
			Help: "Number of goroutines",
		},
	)
)

// RecordDecision 记录一次决策
func RecordDecision(symbol, action string) {
	decisionTotal.WithLabelValues(symbol, action).Inc()
}

// RecordEdge 记录边际分数
func RecordEdge(symbol string, edge float64) {
	edgeScore.WithLabelValues(symbol).Observe(edge)
}

// RecordDegraded 记录降级快照
func RecordDegraded(symbol, reason string) {
	degradedTotal.WithLabelValues(symbol, reason).Inc()
}

// RecordOrder 记录一次下单
func RecordOrder(symbol, side, status string) {
	orderTotal.WithLabelValues(symbol, side, status).Inc()
}

// RecordSettlement 记录一次结算
func RecordSettlement(symbol string, pnlUSD float64) {
	settledTotal.WithLabelValues(symbol).Inc()
	realizedPnL.WithLabelValues(symbol).Add(pnlUSD)
}

// SetWinRate 更新胜率
func SetWinRate(pct float64) {
	winRate.Set(pct)
}

// SetOpenTrades 更新未结算交易数
func SetOpenTrades(n int) {
	openTrades.Set(float64(n))
}

// SetSystemStats 更新进程资源指标
func SetSystemStats(cpuPercent, memoryMB float64, goroutines int) {
	processCPU.Set(cpuPercent)
	processMemoryMB.Set(memoryMB)
	goroutineCount.Set(float64(goroutines))
}
