package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"council/internal/models"
)

// Repository is the unified persistence surface for the engine. Components
// that only need a slice of it declare their own narrow interface and accept
// this implementation.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Games & ground truth.
	UpsertGame(ctx context.Context, item *models.Game) error
	UpsertGameTx(ctx context.Context, tx *gorm.DB, item *models.Game) error
	GetGame(ctx context.Context, gameID string) (*models.Game, error)
	UpsertGroundTruthsTx(ctx context.Context, tx *gorm.DB, items []models.GroundTruth) error
	ListGroundTruthsByGame(ctx context.Context, gameID string) ([]models.GroundTruth, error)
	ListGradableGames(ctx context.Context, limit int) ([]models.Game, error)
	ListGamesNeedingConsensus(ctx context.Context, limit int) ([]string, error)

	// Assertions & bets.
	InsertAssertionsTx(ctx context.Context, tx *gorm.DB, items []models.Assertion) error
	InsertBetsTx(ctx context.Context, tx *gorm.DB, items []models.Bet) error
	ListAssertionsByGame(ctx context.Context, gameID string) ([]models.Assertion, error)
	ListAssertions(ctx context.Context, params ListAssertionsParams) ([]models.Assertion, error)
	MarkAssertionsGradedTx(ctx context.Context, tx *gorm.DB, ids []uint64) error
	ListExpertSubmissions(ctx context.Context, gameID string, categories []string) ([]ExpertSubmission, error)

	GetBet(ctx context.Context, id uint64) (*models.Bet, error)
	GetBetForUpdateTx(ctx context.Context, tx *gorm.DB, id uint64) (*models.Bet, error)
	MarkBetSettledTx(ctx context.Context, tx *gorm.DB, id uint64, outcome string, pnl decimal.Decimal, settledAt time.Time) (bool, error)
	ListSettleableBets(ctx context.Context, gameID string) ([]models.Bet, error)
	ListExpiredPendingBets(ctx context.Context, before time.Time, limit int) ([]models.Bet, error)
	ListBets(ctx context.Context, params ListBetsParams) ([]models.Bet, error)

	// Bankrolls.
	GetBankroll(ctx context.Context, expertID, season string) (*models.Bankroll, error)
	GetBankrollForUpdateTx(ctx context.Context, tx *gorm.DB, expertID, season string) (*models.Bankroll, error)
	CreateBankrollIfMissing(ctx context.Context, item *models.Bankroll) error
	ApplyBankrollTx(ctx context.Context, tx *gorm.DB, id uint64, bankroll decimal.Decimal, isActive bool, bustedAt *time.Time) error
	ListBankrolls(ctx context.Context, params ListBankrollsParams) ([]models.Bankroll, error)

	// Outcomes.
	InsertOutcomesTx(ctx context.Context, tx *gorm.DB, items []models.Outcome) error
	GetOutcomeByAssertionID(ctx context.Context, assertionID uint64) (*models.Outcome, error)
	ListOutcomesByGame(ctx context.Context, gameID string) ([]models.Outcome, error)
	CountOutcomesByGame(ctx context.Context, gameID string) (int64, error)
	ListOutcomes(ctx context.Context, params ListOutcomesParams) ([]models.Outcome, error)
	MarkOutcomeLearnedTx(ctx context.Context, tx *gorm.DB, id uint64) error

	// Council seats.
	HasCouncilSeats(ctx context.Context, gameID, family string) (bool, error)
	InsertCouncilSeats(ctx context.Context, items []models.CouncilSeat) error
	ListSeatsByGame(ctx context.Context, gameID string, family *string) ([]models.CouncilSeat, error)

	// Consensus.
	SaveConsensus(ctx context.Context, outputs []models.ConsensusOutput, record *models.ProjectionRecord) error
	HasConsensus(ctx context.Context, gameID string) (bool, error)
	ListConsensusByGame(ctx context.Context, gameID string) ([]models.ConsensusOutput, error)
	GetProjectionRecord(ctx context.Context, gameID string) (*models.ProjectionRecord, error)

	// Trailing performance for the council selector.
	TrailingPerf(ctx context.Context, categories []string, since time.Time) ([]TrailingPerfRow, error)
	ListRecentResiduals(ctx context.Context, categories []string, since time.Time, depth int) ([]ResidualRow, error)

	// Calibration & factor weights (append-only).
	GetLatestCalibration(ctx context.Context, expertID, category string) (*models.CalibrationState, error)
	ListLatestCalibrations(ctx context.Context, expertIDs []string) ([]models.CalibrationState, error)
	InsertCalibrationTx(ctx context.Context, tx *gorm.DB, item *models.CalibrationState) error
	ListCalibrationHistory(ctx context.Context, expertID, category string) ([]models.CalibrationState, error)
	ListActiveFactorWeights(ctx context.Context, expertID, category string) ([]models.FactorWeight, error)
	CloseFactorWeightTx(ctx context.Context, tx *gorm.DB, id uint64, at time.Time) error
	InsertFactorWeightsTx(ctx context.Context, tx *gorm.DB, items []models.FactorWeight) error
	ListFactorWeights(ctx context.Context, params ListFactorWeightsParams) ([]models.FactorWeight, error)

	InsertReflectionNote(ctx context.Context, item *models.ReflectionNote) error
}

// ExpertSubmission is the earliest submission an expert made for a game
// within a category set. Used for the selector's final tie-break.
type ExpertSubmission struct {
	ExpertID         string
	FirstSubmittedAt time.Time
}

// TrailingPerfRow aggregates one expert's graded record over a category set.
type TrailingPerfRow struct {
	ExpertID         string
	Samples          int64
	ROI              float64
	Accuracy         float64
	CalibrationError float64
	AvgStake         float64
}

// ResidualRow is one graded residual, ordered for correlation estimates.
type ResidualRow struct {
	ExpertID string
	GameID   string
	Residual float64
}

type ListAssertionsParams struct {
	Limit    int
	Offset   int
	ExpertID *string
	GameID   *string
	Category *string
	Graded   *bool
}

type ListBetsParams struct {
	Limit    int
	Offset   int
	ExpertID *string
	GameID   *string
	Season   *string
	Settled  *bool
	Outcome  *string
}

type ListBankrollsParams struct {
	Limit    int
	Offset   int
	Season   *string
	IsActive *bool
}

type ListOutcomesParams struct {
	Limit    int
	Offset   int
	ExpertID *string
	GameID   *string
	Category *string
	Since    *time.Time
}

type ListFactorWeightsParams struct {
	Limit      int
	Offset     int
	ExpertID   *string
	Category   *string
	Factor     *string
	ActiveOnly bool
}
