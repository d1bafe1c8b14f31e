package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"council/internal/config"
	"council/internal/grading"
	"council/internal/ledger"
	"council/internal/learning"
	"council/internal/models"
	"council/internal/registry"
	"council/internal/repository"
)

// sweepRepo serves only the gradable-games listing; the pipeline stages run
// against their own stores.
type sweepRepo struct {
	repository.Repository
	games []models.Game
}

func (r *sweepRepo) ListGradableGames(ctx context.Context, limit int) ([]models.Game, error) {
	return r.games, nil
}

type sweepGradeStore struct {
	game       models.Game
	assertions []models.Assertion
}

func (s *sweepGradeStore) GetGame(ctx context.Context, gameID string) (*models.Game, error) {
	g := s.game
	return &g, nil
}

func (s *sweepGradeStore) ListGroundTruthsByGame(ctx context.Context, gameID string) ([]models.GroundTruth, error) {
	return nil, nil
}

func (s *sweepGradeStore) ListAssertionsByGame(ctx context.Context, gameID string) ([]models.Assertion, error) {
	return s.assertions, nil
}

func (s *sweepGradeStore) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func (s *sweepGradeStore) InsertOutcomesTx(ctx context.Context, tx *gorm.DB, items []models.Outcome) error {
	return nil
}

func (s *sweepGradeStore) MarkAssertionsGradedTx(ctx context.Context, tx *gorm.DB, ids []uint64) error {
	return nil
}

type sweepLedgerStore struct {
	bet      models.Bet
	outcome  models.Outcome
	bankroll models.Bankroll
}

func (s *sweepLedgerStore) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func (s *sweepLedgerStore) GetBetForUpdateTx(ctx context.Context, tx *gorm.DB, id uint64) (*models.Bet, error) {
	if id != s.bet.ID {
		return nil, nil
	}
	b := s.bet
	return &b, nil
}

func (s *sweepLedgerStore) MarkBetSettledTx(ctx context.Context, tx *gorm.DB, id uint64, outcome string, pnl decimal.Decimal, settledAt time.Time) (bool, error) {
	if id != s.bet.ID || s.bet.Settled {
		return false, nil
	}
	s.bet.Settled = true
	s.bet.Outcome = outcome
	s.bet.PnL = pnl
	s.bet.SettledAt = &settledAt
	return true, nil
}

func (s *sweepLedgerStore) GetOutcomeByAssertionID(ctx context.Context, assertionID uint64) (*models.Outcome, error) {
	if assertionID != s.outcome.AssertionID {
		return nil, nil
	}
	o := s.outcome
	return &o, nil
}

func (s *sweepLedgerStore) GetBankrollForUpdateTx(ctx context.Context, tx *gorm.DB, expertID, season string) (*models.Bankroll, error) {
	b := s.bankroll
	return &b, nil
}

func (s *sweepLedgerStore) ApplyBankrollTx(ctx context.Context, tx *gorm.DB, id uint64, bankroll decimal.Decimal, isActive bool, bustedAt *time.Time) error {
	s.bankroll.Bankroll = bankroll
	s.bankroll.IsActive = isActive
	s.bankroll.BustedAt = bustedAt
	return nil
}

func (s *sweepLedgerStore) ListSettleableBets(ctx context.Context, gameID string) ([]models.Bet, error) {
	if s.bet.Settled {
		return nil, nil
	}
	return []models.Bet{s.bet}, nil
}

func (s *sweepLedgerStore) ListExpiredPendingBets(ctx context.Context, before time.Time, limit int) ([]models.Bet, error) {
	return nil, nil
}

type sweepLearnStore struct {
	outcomes []models.Outcome
}

func (s *sweepLearnStore) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func (s *sweepLearnStore) ListOutcomesByGame(ctx context.Context, gameID string) ([]models.Outcome, error) {
	return s.outcomes, nil
}

func (s *sweepLearnStore) ListAssertionsByGame(ctx context.Context, gameID string) ([]models.Assertion, error) {
	return nil, nil
}

func (s *sweepLearnStore) GetLatestCalibration(ctx context.Context, expertID, category string) (*models.CalibrationState, error) {
	return nil, nil
}

func (s *sweepLearnStore) InsertCalibrationTx(ctx context.Context, tx *gorm.DB, item *models.CalibrationState) error {
	return nil
}

func (s *sweepLearnStore) MarkOutcomeLearnedTx(ctx context.Context, tx *gorm.DB, id uint64) error {
	return nil
}

func (s *sweepLearnStore) ListActiveFactorWeights(ctx context.Context, expertID, category string) ([]models.FactorWeight, error) {
	return nil, nil
}

func (s *sweepLearnStore) CloseFactorWeightTx(ctx context.Context, tx *gorm.DB, id uint64, at time.Time) error {
	return nil
}

func (s *sweepLearnStore) InsertFactorWeightsTx(ctx context.Context, tx *gorm.DB, items []models.FactorWeight) error {
	return nil
}

func (s *sweepLearnStore) InsertReflectionNote(ctx context.Context, item *models.ReflectionNote) error {
	return nil
}

// A game whose grading committed but whose settlement then failed must be
// picked up again by the retry sweep and settled, with learning staying a
// no-op on the already-consumed outcome.
func TestRetryGradableSettlesLeftoverBets(t *testing.T) {
	correct := true
	gradeStore := &sweepGradeStore{
		game: models.Game{GameID: "g1", Season: "2026", TruthComplete: true},
		assertions: []models.Assertion{
			{ID: 1, ExpertID: "e1", GameID: "g1", Category: "overtime", PredType: models.PredTypeBinary, Confidence: 0.8, Graded: true},
		},
	}
	ledgerStore := &sweepLedgerStore{
		bet: models.Bet{
			ID: 7, AssertionID: 1, ExpertID: "e1", GameID: "g1", Season: "2026",
			Stake: decimal.NewFromInt(5), OddsFormat: ledger.OddsDecimal, OddsValue: "3",
			Outcome: models.BetOutcomePending,
		},
		outcome:  models.Outcome{ID: 1, AssertionID: 1, ExpertID: "e1", GameID: "g1", Category: "overtime", IsCorrect: &correct, Grade: 1, Learned: true},
		bankroll: models.Bankroll{ID: 1, ExpertID: "e1", Season: "2026", Bankroll: decimal.NewFromInt(1000), IsActive: true},
	}
	learnStore := &sweepLearnStore{
		outcomes: []models.Outcome{{ID: 1, AssertionID: 1, ExpertID: "e1", GameID: "g1", Category: "overtime", Grade: 1, Learned: true}},
	}

	svc := &OutcomeService{
		Repo:     &sweepRepo{games: []models.Game{{GameID: "g1", Season: "2026", TruthComplete: true}}},
		Registry: registry.Default(),
		Logger:   zap.NewNop(),
		Grader:   &grading.Grader{Store: gradeStore, Registry: registry.Default()},
		Ledger:   &ledger.Ledger{Store: ledgerStore, Logger: zap.NewNop(), Config: config.SettlementConfig{MaxRetries: 1}},
		Learner:  &learning.Learner{Store: learnStore},
		Season:   "2026",
	}
	if err := svc.RetryGradable(context.Background(), 10); err != nil {
		t.Fatalf("retry sweep: %v", err)
	}

	if !ledgerStore.bet.Settled || ledgerStore.bet.Outcome != models.BetOutcomeWin {
		t.Fatalf("bet = %+v, want settled win", ledgerStore.bet)
	}
	if ledgerStore.bet.PnL.String() != "10" {
		t.Fatalf("pnl = %s, want 10", ledgerStore.bet.PnL)
	}
	if ledgerStore.bankroll.Bankroll.String() != "1010" {
		t.Fatalf("bankroll = %s, want 1010", ledgerStore.bankroll.Bankroll)
	}
}
