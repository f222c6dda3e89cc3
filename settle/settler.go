package settle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"polyastra/ledger"
	"polyastra/lock"
	"polyastra/logger"
	"polyastra/metrics"
	"polyastra/signal"
	"polyastra/utils"
)

// lockKey 结算互斥锁键名
const lockKey = "settlement"

// SnapshotSource 结算用行情源：按结果代币取一次快照
type SnapshotSource interface {
	Gather(ctx context.Context, symbol, token string) *signal.Snapshot
}

// Ledger 结算所需的台账操作
type Ledger interface {
	ListDue(ctx context.Context, now time.Time) ([]*ledger.Trade, error)
	UpdateSettlement(ctx context.Context, id uint, finalPrice, pnlUSD, roiPct float64, settledAt time.Time) error
}

// Notifier 结算摘要通知
type Notifier interface {
	Send(message string)
}

// Settler 结算引擎。
// 结算使用当前中间价作为退出价的近似，而非场馆的最终判定结果——
// 这是有意的近似，盈亏数字应按此理解。
type Settler struct {
	store    Ledger
	source   SnapshotSource
	lock     lock.Lock
	lockTTL  time.Duration
	notifier Notifier
}

// NewSettler 创建结算引擎
func NewSettler(store Ledger, source SnapshotSource, l lock.Lock, lockTTL time.Duration, notifier Notifier) *Settler {
	if lockTTL <= 0 {
		lockTTL = 60 * time.Second
	}
	return &Settler{
		store:    store,
		source:   source,
		lock:     l,
		lockTTL:  lockTTL,
		notifier: notifier,
	}
}

// RunPass 执行一轮结算。
// 结算不可与自身并发（会重复处理同一笔待结算交易），锁被占用时直接跳过本轮。
// 单笔失败不影响同轮其他交易。
func (s *Settler) RunPass(ctx context.Context, now time.Time) error {
	ok, err := s.lock.TryLock(ctx, lockKey, s.lockTTL)
	if err != nil {
		return fmt.Errorf("获取结算锁失败: %w", err)
	}
	if !ok {
		logger.Debug("结算锁被占用，跳过本轮")
		return nil
	}
	defer func() {
		if err := s.lock.Unlock(ctx, lockKey); err != nil {
			logger.Warn("⚠️ 释放结算锁失败: %v", err)
		}
	}()

	due, err := s.store.ListDue(ctx, now)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}

	logger.Info("🔄 开始结算 %d 笔到期交易", len(due))

	var lines []string
	for _, trade := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line, err := s.settleOne(ctx, trade, now)
		if err != nil {
			// 单笔失败保持 OPEN，下轮重试
			logger.Warn("⚠️ 交易 #%d 结算失败，留待下轮: %v", trade.ID, err)
			continue
		}
		lines = append(lines, line)
	}

	if len(lines) > 0 && s.notifier != nil {
		s.notifier.Send("📊 结算完成\n" + strings.Join(lines, "\n"))
	}
	return nil
}

// settleOne 结算单笔交易
func (s *Settler) settleOne(ctx context.Context, trade *ledger.Trade, now time.Time) (string, error) {
	snap := s.source.Gather(ctx, trade.Symbol, trade.Token)
	if snap.Degraded {
		return "", fmt.Errorf("行情降级(%s)，无法取退出价", snap.Reason)
	}

	// 退出价近似：UP 按中间价，DOWN 按 1-中间价。
	// final_price 落库的是代币的原始中间价，退出价只参与盈亏计算。
	exit := snap.MidPrice
	if trade.Side == "DOWN" {
		exit = 1.0 - snap.MidPrice
	}

	pnl := utils.Round(exit*trade.Size-trade.StakeUSD, 4)
	roi := utils.Round(pnl/trade.StakeUSD*100.0, 2)

	if err := s.store.UpdateSettlement(ctx, trade.ID, snap.MidPrice, pnl, roi, now); err != nil {
		return "", err
	}

	metrics.RecordSettlement(trade.Symbol, pnl)
	logger.Info("✅ [%s] 交易 #%d 已结算: %s exit=%.4f pnl=$%.4f roi=%.2f%%",
		trade.Symbol, trade.ID, trade.Side, exit, pnl, roi)

	return fmt.Sprintf("[%s] %s #%d: $%.2f (%.2f%%)",
		trade.Symbol, trade.Side, trade.ID, pnl, roi), nil
}
