package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"council/internal/config"
	"council/internal/models"
	"council/internal/reason"
)

// Store is the slice of the repository the ledger needs.
type Store interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	GetBetForUpdateTx(ctx context.Context, tx *gorm.DB, id uint64) (*models.Bet, error)
	MarkBetSettledTx(ctx context.Context, tx *gorm.DB, id uint64, outcome string, pnl decimal.Decimal, settledAt time.Time) (bool, error)
	GetOutcomeByAssertionID(ctx context.Context, assertionID uint64) (*models.Outcome, error)
	GetBankrollForUpdateTx(ctx context.Context, tx *gorm.DB, expertID, season string) (*models.Bankroll, error)
	ApplyBankrollTx(ctx context.Context, tx *gorm.DB, id uint64, bankroll decimal.Decimal, isActive bool, bustedAt *time.Time) error
	ListSettleableBets(ctx context.Context, gameID string) ([]models.Bet, error)
	ListExpiredPendingBets(ctx context.Context, before time.Time, limit int) ([]models.Bet, error)
}

// keyedLocks hands out one mutex per expert. The FOR UPDATE row locks are
// what serialize settlements; the in-process mutex, taken after the bet row
// lock, only keeps concurrent local attempts from burning their retry budget
// on the same bankroll.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedLocks) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = map[string]*sync.Mutex{}
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()
	m.Lock()
	return m.Unlock
}

type Ledger struct {
	Store  Store
	Logger *zap.Logger
	Config config.SettlementConfig

	experts keyedLocks
}

// SettleBet settles one bet against its graded outcome and applies the pnl
// to the expert's seasonal bankroll. Safe to call repeatedly: an already
// settled bet returns its recorded result unchanged.
func (l *Ledger) SettleBet(ctx context.Context, betID uint64) (*models.Bet, error) {
	if l == nil || l.Store == nil {
		return nil, nil
	}
	attempts := l.Config.MaxRetries
	if attempts <= 0 {
		attempts = 5
	}
	backoff := l.Config.RetryBackoff
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff * time.Duration(attempt)):
			}
		}
		bet, err := l.settleOnce(ctx, betID, nil)
		if err == nil {
			return bet, nil
		}
		if code := reason.CodeOf(err); code != "" && code != reason.CodeSettlementConflict {
			return nil, err
		}
		lastErr = err
	}
	if l.Logger != nil {
		l.Logger.Error("settlement stuck after retries",
			zap.Uint64("bet_id", betID),
			zap.Int("attempts", attempts),
			zap.Error(lastErr))
	}
	return nil, reason.SettlementConflict("bet %d stuck after %d attempts: %v", betID, attempts, lastErr)
}

// settleOnce runs one serialized settlement attempt. forcedOutcome settles
// the bet administratively (the pending-push sweep) instead of reading its
// graded outcome.
func (l *Ledger) settleOnce(ctx context.Context, betID uint64, forcedOutcome *string) (*models.Bet, error) {
	var settled *models.Bet
	err := l.withBetLocked(ctx, betID, func(tx *gorm.DB, bet *models.Bet) error {
		if bet.Settled {
			settled = bet
			return nil
		}
		outcome, pnl, err := l.resolve(ctx, bet, forcedOutcome)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		applied, err := l.Store.MarkBetSettledTx(ctx, tx, bet.ID, outcome, pnl, now)
		if err != nil {
			return err
		}
		if !applied {
			// Lost the race to another settler; the row lock means this
			// should not happen, so treat it as a conflict and retry.
			return reason.SettlementConflict("bet %d changed underneath settlement", bet.ID)
		}
		if !pnl.IsZero() {
			if err := l.applyPnL(ctx, tx, bet, pnl); err != nil {
				return err
			}
		}
		bet.Settled = true
		bet.Outcome = outcome
		bet.PnL = pnl
		bet.SettledAt = &now
		settled = bet
		return nil
	})
	return settled, err
}

// withBetLocked opens the transaction, row-locks the bet, then takes the
// per-expert lock for the rest of the closure and hands the bet to fn.
func (l *Ledger) withBetLocked(ctx context.Context, betID uint64, fn func(tx *gorm.DB, bet *models.Bet) error) error {
	return l.Store.InTx(ctx, func(tx *gorm.DB) error {
		bet, err := l.Store.GetBetForUpdateTx(ctx, tx, betID)
		if err != nil {
			return err
		}
		if bet == nil {
			return reason.Validation("bet %d not found", betID)
		}

		unlock := l.experts.lock(bet.ExpertID + "/" + bet.Season)
		defer unlock()

		return fn(tx, bet)
	})
}

// resolve maps the bet's graded outcome to (outcome, pnl).
func (l *Ledger) resolve(ctx context.Context, bet *models.Bet, forcedOutcome *string) (string, decimal.Decimal, error) {
	if forcedOutcome != nil {
		return *forcedOutcome, decimal.Zero, nil
	}
	out, err := l.Store.GetOutcomeByAssertionID(ctx, bet.AssertionID)
	if err != nil {
		return "", decimal.Zero, err
	}
	if out == nil {
		return "", decimal.Zero, reason.StaleOutcome("bet %d has no graded outcome yet", bet.ID)
	}

	won := false
	switch {
	case out.IsCorrect != nil:
		won = *out.IsCorrect
	default:
		// Numeric categories have no exact hit; a kernel grade of 0.5 or
		// better (a miss under about 0.83 sigma) cashes the bet.
		won = out.Grade >= 0.5
	}
	if won {
		mult, err := ProfitMultiplier(bet.OddsFormat, bet.OddsValue)
		if err != nil {
			return "", decimal.Zero, err
		}
		return models.BetOutcomeWin, bet.Stake.Mul(mult), nil
	}
	return models.BetOutcomeLoss, bet.Stake.Neg(), nil
}

// applyPnL mutates the expert's bankroll inside the same transaction and
// retires the expert for the season when it crosses zero.
func (l *Ledger) applyPnL(ctx context.Context, tx *gorm.DB, bet *models.Bet, pnl decimal.Decimal) error {
	bank, err := l.Store.GetBankrollForUpdateTx(ctx, tx, bet.ExpertID, bet.Season)
	if err != nil {
		return err
	}
	if bank == nil {
		return reason.InactiveBankroll("no bankroll for expert %s season %s", bet.ExpertID, bet.Season)
	}
	if !bank.IsActive {
		// Busted experts keep their frozen bankroll; their residual bets
		// still get marked settled but move no money.
		return nil
	}
	next := bank.Bankroll.Add(pnl)
	active := bank.IsActive
	bustedAt := bank.BustedAt
	if next.LessThanOrEqual(decimal.Zero) {
		active = false
		now := time.Now().UTC()
		bustedAt = &now
		if l.Logger != nil {
			l.Logger.Warn("expert busted",
				zap.String("expert_id", bet.ExpertID),
				zap.String("season", bet.Season),
				zap.String("bankroll", next.String()))
		}
	}
	return l.Store.ApplyBankrollTx(ctx, tx, bank.ID, next, active, bustedAt)
}

// SettleGame settles every unsettled bet whose assertion has been graded.
// Failures on individual bets are logged and skipped so one stuck bet cannot
// block the rest of the game.
func (l *Ledger) SettleGame(ctx context.Context, gameID string) (int, error) {
	if l == nil || l.Store == nil {
		return 0, nil
	}
	bets, err := l.Store.ListSettleableBets(ctx, gameID)
	if err != nil {
		return 0, err
	}
	settled := 0
	for _, bet := range bets {
		if _, err := l.SettleBet(ctx, bet.ID); err != nil {
			if l.Logger != nil {
				l.Logger.Warn("bet settlement failed",
					zap.Uint64("bet_id", bet.ID),
					zap.String("game_id", gameID),
					zap.Error(err))
			}
			continue
		}
		settled++
	}
	return settled, nil
}

// SweepPendingPushes settles bets that have sat pending past the configured
// timeout on games whose truth never arrived. Stakes come back as a push.
func (l *Ledger) SweepPendingPushes(ctx context.Context, limit int) (int, error) {
	if l == nil || l.Store == nil {
		return 0, nil
	}
	after := l.Config.PendingPushAfter
	if after <= 0 {
		after = 14 * 24 * time.Hour
	}
	cutoff := time.Now().UTC().Add(-after)
	bets, err := l.Store.ListExpiredPendingBets(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}
	push := models.BetOutcomePush
	swept := 0
	for _, bet := range bets {
		if _, err := l.settleOnce(ctx, bet.ID, &push); err != nil {
			if l.Logger != nil {
				l.Logger.Warn("pending push failed",
					zap.Uint64("bet_id", bet.ID),
					zap.Error(err))
			}
			continue
		}
		swept++
	}
	if swept > 0 && l.Logger != nil {
		l.Logger.Info("swept pending bets to push", zap.Int("count", swept))
	}
	return swept, nil
}
