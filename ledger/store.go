package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"polyastra/logger"
)

// Config 台账数据库配置
type Config struct {
	Type            string        // sqlite, postgres, mysql
	DSN             string        // 数据源名称
	MaxOpenConns    int           // 最大打开连接数
	MaxIdleConns    int           // 最大空闲连接数
	ConnMaxLifetime time.Duration // 连接最大生命周期
	LogLevel        string        // silent, error, warn, info
}

// Store 交易台账存储
type Store struct {
	db *gorm.DB
}

// NewStore 打开台账数据库并迁移表结构
func NewStore(config *Config) (*Store, error) {
	var dialector gorm.Dialector

	switch config.Type {
	case "sqlite":
		dsn := config.DSN
		// sqlite 默认启用 WAL 与 busy_timeout，支持并发单行插入
		if !strings.Contains(dsn, "?") {
			dsn += "?_journal_mode=WAL&_busy_timeout=5000"
		}
		dialector = sqlite.Open(dsn)
	case "postgres", "postgresql":
		dialector = postgres.Open(config.DSN)
	case "mysql":
		dialector = mysql.Open(config.DSN)
	default:
		return nil, fmt.Errorf("不支持的数据库类型: %s", config.Type)
	}

	logLevel := gormlogger.Silent
	switch config.LogLevel {
	case "error":
		logLevel = gormlogger.Error
	case "warn":
		logLevel = gormlogger.Warn
	case "info":
		logLevel = gormlogger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层连接失败: %w", err)
	}
	if config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	if err := db.AutoMigrate(&Trade{}); err != nil {
		return nil, fmt.Errorf("迁移表结构失败: %w", err)
	}

	logger.Info("✅ 台账数据库已就绪: %s", config.Type)
	return &Store{db: db}, nil
}

// Create 插入一笔新交易，返回分配的ID
func (s *Store) Create(ctx context.Context, trade *Trade) (uint, error) {
	if err := s.db.WithContext(ctx).Create(trade).Error; err != nil {
		return 0, fmt.Errorf("写入交易失败: %w", err)
	}
	return trade.ID, nil
}

// ExistsForWindow 检查标的在指定窗口是否已有记录（含FAILED，避免同窗重试下单）
func (s *Store) ExistsForWindow(ctx context.Context, symbol, windowID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Trade{}).
		Where("symbol = ? AND window_id = ?", symbol, windowID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListDue 返回所有窗口已结束的 OPEN 交易。
// 窗口结束是唯一的结算资格判据。
func (s *Store) ListDue(ctx context.Context, now time.Time) ([]*Trade, error) {
	var trades []*Trade
	err := s.db.WithContext(ctx).
		Where("state = ? AND window_end < ?", StateOpen, now).
		Order("id ASC").
		Find(&trades).Error
	if err != nil {
		return nil, fmt.Errorf("查询待结算交易失败: %w", err)
	}
	return trades, nil
}

// UpdateSettlement 原子写入结算结果。
// WHERE state=OPEN 保证幂等：已结算的行再次结算是空操作，不是错误。
func (s *Store) UpdateSettlement(ctx context.Context, id uint, finalPrice, pnlUSD, roiPct float64, settledAt time.Time) error {
	res := s.db.WithContext(ctx).Model(&Trade{}).
		Where("id = ? AND state = ?", id, StateOpen).
		Updates(map[string]interface{}{
			"state":       StateSettled,
			"final_price": finalPrice,
			"pnl_usd":     pnlUSD,
			"roi_pct":     roiPct,
			"settled_at":  settledAt,
		})
	if res.Error != nil {
		return fmt.Errorf("写入结算结果失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		logger.Debug("交易 #%d 已结算，跳过重复写入", id)
	}
	return nil
}

// Summary 已结算交易的汇总
type Summary struct {
	Total   int64
	Wins    int64
	PnLUSD  float64
	AvgROI  float64
	WinRate float64 // 百分比
}

// SettledSummary 汇总所有已结算交易（FAILED 不计入）
func (s *Store) SettledSummary(ctx context.Context) (*Summary, error) {
	var row struct {
		Total  int64
		Wins   int64
		PnL    float64
		AvgROI float64
	}
	err := s.db.WithContext(ctx).Model(&Trade{}).
		Select("COUNT(*) as total, SUM(CASE WHEN pnl_usd > 0 THEN 1 ELSE 0 END) as wins, COALESCE(SUM(pnl_usd), 0) as pn_l, COALESCE(AVG(roi_pct), 0) as avg_roi").
		Where("state = ?", StateSettled).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}

	out := &Summary{Total: row.Total, Wins: row.Wins, PnLUSD: row.PnL, AvgROI: row.AvgROI}
	if row.Total > 0 {
		out.WinRate = float64(row.Wins) / float64(row.Total) * 100.0
	}
	return out, nil
}

// SymbolPnL 按标的的盈亏汇总。
// 显式列标签，避免依赖命名策略对 PnLUSD 的推导。
type SymbolPnL struct {
	Symbol string  `gorm:"column:symbol"`
	Count  int64   `gorm:"column:count"`
	PnLUSD float64 `gorm:"column:pnl_usd"`
}

// PnLBySymbol 按标的汇总已结算盈亏
func (s *Store) PnLBySymbol(ctx context.Context) ([]SymbolPnL, error) {
	var rows []SymbolPnL
	err := s.db.WithContext(ctx).Model(&Trade{}).
		Select("symbol, COUNT(*) as count, COALESCE(SUM(pnl_usd), 0) as pnl_usd").
		Where("state = ?", StateSettled).
		Group("symbol").
		Order("symbol ASC").
		Scan(&rows).Error
	return rows, err
}

// OpenCount 当前未结算的交易数量
func (s *Store) OpenCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Trade{}).
		Where("state = ?", StateOpen).
		Count(&count).Error
	return count, err
}

// FailedCount 提交失败的交易数量
func (s *Store) FailedCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Trade{}).
		Where("state = ?", StateFailed).
		Count(&count).Error
	return count, err
}

// RecentTrades 最近的交易记录（所有状态）
func (s *Store) RecentTrades(ctx context.Context, limit int) ([]*Trade, error) {
	var trades []*Trade
	err := s.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&trades).Error
	return trades, err
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
