package gormrepository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"council/internal/models"
	"council/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- games & ground truth ---------------------------------------------------

func (s *Store) UpsertGame(ctx context.Context, item *models.Game) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return upsertGame(s.db.WithContext(ctx), item)
}

func (s *Store) UpsertGameTx(ctx context.Context, tx *gorm.DB, item *models.Game) error {
	if tx == nil || item == nil {
		return nil
	}
	return upsertGame(tx, item)
}

func upsertGame(db *gorm.DB, item *models.Game) error {
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "game_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"season",
			"status",
			"truth_complete",
			"truth_at",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetGame(ctx context.Context, gameID string) (*models.Game, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Game
	err := s.db.WithContext(ctx).Where("game_id = ?", gameID).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpsertGroundTruthsTx(ctx context.Context, tx *gorm.DB, items []models.GroundTruth) error {
	if tx == nil || len(items) == 0 {
		return nil
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "game_id"}, {Name: "category"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"actual_bool",
			"actual_enum",
			"actual_num",
		}),
	}).CreateInBatches(items, 200).Error
}

func (s *Store) ListGroundTruthsByGame(ctx context.Context, gameID string) ([]models.GroundTruth, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.GroundTruth
	if err := s.db.WithContext(ctx).
		Where("game_id = ?", gameID).
		Order("category asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListGradableGames(ctx context.Context, limit int) ([]models.Game, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	limit = normalizeLimit(limit, 50)
	// A game needs another pass while any stage is unfinished: ungraded
	// assertions, unsettled bets or unlearned outcomes. Grading, settlement
	// and learning are all no-ops on finished rows, so re-listing a game is
	// safe.
	var items []models.Game
	err := s.db.WithContext(ctx).
		Where("truth_complete = ?", true).
		Where(`EXISTS (SELECT 1 FROM assertions a WHERE a.game_id = games.game_id AND a.graded = false)
			OR EXISTS (SELECT 1 FROM bets b WHERE b.game_id = games.game_id AND b.settled = false)
			OR EXISTS (SELECT 1 FROM outcomes o WHERE o.game_id = games.game_id AND o.learned = false)`).
		Order("truth_at asc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListGamesNeedingConsensus(ctx context.Context, limit int) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	limit = normalizeLimit(limit, 50)
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&models.Assertion{}).
		Distinct("assertions.game_id").
		Where("NOT EXISTS (SELECT 1 FROM consensus_outputs c WHERE c.game_id = assertions.game_id)").
		Order("assertions.game_id asc").
		Limit(limit).
		Pluck("assertions.game_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// --- assertions & bets ------------------------------------------------------

func (s *Store) InsertAssertionsTx(ctx context.Context, tx *gorm.DB, items []models.Assertion) error {
	if tx == nil || len(items) == 0 {
		return nil
	}
	return tx.CreateInBatches(items, 200).Error
}

func (s *Store) InsertBetsTx(ctx context.Context, tx *gorm.DB, items []models.Bet) error {
	if tx == nil || len(items) == 0 {
		return nil
	}
	return tx.CreateInBatches(items, 200).Error
}

func (s *Store) ListAssertionsByGame(ctx context.Context, gameID string) ([]models.Assertion, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Assertion
	if err := s.db.WithContext(ctx).
		Where("game_id = ?", gameID).
		Order("expert_id asc, category asc, subject asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListAssertions(ctx context.Context, params repository.ListAssertionsParams) ([]models.Assertion, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Assertion{})
	if params.ExpertID != nil {
		query = query.Where("expert_id = ?", *params.ExpertID)
	}
	if params.GameID != nil {
		query = query.Where("game_id = ?", *params.GameID)
	}
	if params.Category != nil {
		query = query.Where("category = ?", *params.Category)
	}
	if params.Graded != nil {
		query = query.Where("graded = ?", *params.Graded)
	}
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.Assertion
	if err := query.Order("created_at desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) MarkAssertionsGradedTx(ctx context.Context, tx *gorm.DB, ids []uint64) error {
	if tx == nil || len(ids) == 0 {
		return nil
	}
	return tx.Model(&models.Assertion{}).
		Where("id IN ?", ids).
		Update("graded", true).Error
}

func (s *Store) ListExpertSubmissions(ctx context.Context, gameID string, categories []string) ([]repository.ExpertSubmission, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var rows []repository.ExpertSubmission
	query := s.db.WithContext(ctx).
		Model(&models.Assertion{}).
		Select("expert_id, MIN(created_at) AS first_submitted_at").
		Where("game_id = ?", gameID)
	if len(categories) > 0 {
		query = query.Where("category IN ?", categories)
	}
	if err := query.Group("expert_id").Order("expert_id asc").Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Store) GetBet(ctx context.Context, id uint64) (*models.Bet, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Bet
	err := s.db.WithContext(ctx).First(&item, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetBetForUpdateTx(ctx context.Context, tx *gorm.DB, id uint64) (*models.Bet, error) {
	if tx == nil {
		return nil, nil
	}
	var item models.Bet
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&item, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// MarkBetSettledTx flips a bet to settled exactly once. The settled=false
// guard makes retried settlements no-ops; the bool reports whether this call
// performed the settlement.
func (s *Store) MarkBetSettledTx(ctx context.Context, tx *gorm.DB, id uint64, outcome string, pnl decimal.Decimal, settledAt time.Time) (bool, error) {
	if tx == nil {
		return false, nil
	}
	res := tx.Model(&models.Bet{}).
		Where("id = ?", id).
		Where("settled = ?", false).
		Updates(map[string]any{
			"settled":    true,
			"outcome":    outcome,
			"pnl":        pnl,
			"settled_at": settledAt,
		})
	return res.RowsAffected > 0, res.Error
}

func (s *Store) ListSettleableBets(ctx context.Context, gameID string) ([]models.Bet, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Bet
	err := s.db.WithContext(ctx).
		Model(&models.Bet{}).
		Joins("JOIN outcomes o ON o.assertion_id = bets.assertion_id").
		Where("bets.game_id = ?", gameID).
		Where("bets.settled = ?", false).
		Order("bets.expert_id asc, bets.id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListExpiredPendingBets(ctx context.Context, before time.Time, limit int) ([]models.Bet, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	limit = normalizeLimit(limit, 200)
	var items []models.Bet
	err := s.db.WithContext(ctx).
		Model(&models.Bet{}).
		Joins("JOIN games g ON g.game_id = bets.game_id").
		Where("bets.settled = ?", false).
		Where("bets.created_at < ?", before).
		Where("g.truth_complete = ?", false).
		Order("bets.created_at asc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListBets(ctx context.Context, params repository.ListBetsParams) ([]models.Bet, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Bet{})
	if params.ExpertID != nil {
		query = query.Where("expert_id = ?", *params.ExpertID)
	}
	if params.GameID != nil {
		query = query.Where("game_id = ?", *params.GameID)
	}
	if params.Season != nil {
		query = query.Where("season = ?", *params.Season)
	}
	if params.Settled != nil {
		query = query.Where("settled = ?", *params.Settled)
	}
	if params.Outcome != nil {
		query = query.Where("outcome = ?", *params.Outcome)
	}
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.Bet
	if err := query.Order("created_at desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- bankrolls --------------------------------------------------------------

func (s *Store) GetBankroll(ctx context.Context, expertID, season string) (*models.Bankroll, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Bankroll
	err := s.db.WithContext(ctx).
		Where("expert_id = ? AND season = ?", expertID, season).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetBankrollForUpdateTx(ctx context.Context, tx *gorm.DB, expertID, season string) (*models.Bankroll, error) {
	if tx == nil {
		return nil, nil
	}
	var item models.Bankroll
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("expert_id = ? AND season = ?", expertID, season).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) CreateBankrollIfMissing(ctx context.Context, item *models.Bankroll) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "expert_id"}, {Name: "season"}},
		DoNothing: true,
	}).Create(item).Error
}

func (s *Store) ApplyBankrollTx(ctx context.Context, tx *gorm.DB, id uint64, bankroll decimal.Decimal, isActive bool, bustedAt *time.Time) error {
	if tx == nil {
		return nil
	}
	return tx.Model(&models.Bankroll{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"bankroll":  bankroll,
			"is_active": isActive,
			"busted_at": bustedAt,
		}).Error
}

func (s *Store) ListBankrolls(ctx context.Context, params repository.ListBankrollsParams) ([]models.Bankroll, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Bankroll{})
	if params.Season != nil {
		query = query.Where("season = ?", *params.Season)
	}
	if params.IsActive != nil {
		query = query.Where("is_active = ?", *params.IsActive)
	}
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.Bankroll
	if err := query.Order("bankroll desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- outcomes ---------------------------------------------------------------

func (s *Store) InsertOutcomesTx(ctx context.Context, tx *gorm.DB, items []models.Outcome) error {
	if tx == nil || len(items) == 0 {
		return nil
	}
	return tx.CreateInBatches(items, 200).Error
}

func (s *Store) GetOutcomeByAssertionID(ctx context.Context, assertionID uint64) (*models.Outcome, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Outcome
	err := s.db.WithContext(ctx).Where("assertion_id = ?", assertionID).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListOutcomesByGame(ctx context.Context, gameID string) ([]models.Outcome, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Outcome
	if err := s.db.WithContext(ctx).
		Where("game_id = ?", gameID).
		Order("expert_id asc, category asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) MarkOutcomeLearnedTx(ctx context.Context, tx *gorm.DB, id uint64) error {
	if tx == nil {
		return nil
	}
	return tx.Model(&models.Outcome{}).
		Where("id = ?", id).
		Update("learned", true).Error
}

func (s *Store) CountOutcomesByGame(ctx context.Context, gameID string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Outcome{}).
		Where("game_id = ?", gameID).
		Count(&count).Error
	return count, err
}

func (s *Store) ListOutcomes(ctx context.Context, params repository.ListOutcomesParams) ([]models.Outcome, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Outcome{})
	if params.ExpertID != nil {
		query = query.Where("expert_id = ?", *params.ExpertID)
	}
	if params.GameID != nil {
		query = query.Where("game_id = ?", *params.GameID)
	}
	if params.Category != nil {
		query = query.Where("category = ?", *params.Category)
	}
	if params.Since != nil {
		query = query.Where("graded_at >= ?", *params.Since)
	}
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.Outcome
	if err := query.Order("graded_at desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- council seats ----------------------------------------------------------

func (s *Store) HasCouncilSeats(ctx context.Context, gameID, family string) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.CouncilSeat{}).
		Where("game_id = ? AND family = ?", gameID, family).
		Count(&count).Error
	return count > 0, err
}

// InsertCouncilSeats writes seats once; conflicts are ignored so a retried
// selection never mutates the locked-in seat set.
func (s *Store) InsertCouncilSeats(ctx context.Context, items []models.CouncilSeat) error {
	if s == nil || s.db == nil || len(items) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "game_id"}, {Name: "family"}, {Name: "expert_id"}},
		DoNothing: true,
	}).CreateInBatches(items, 200).Error
}

func (s *Store) ListSeatsByGame(ctx context.Context, gameID string, family *string) ([]models.CouncilSeat, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Where("game_id = ?", gameID)
	if family != nil {
		query = query.Where("family = ?", *family)
	}
	var items []models.CouncilSeat
	if err := query.Order("family asc, rank asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- consensus --------------------------------------------------------------

func (s *Store) SaveConsensus(ctx context.Context, outputs []models.ConsensusOutput, record *models.ProjectionRecord) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(outputs) > 0 {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "game_id"}, {Name: "category"}},
				DoNothing: true,
			}).CreateInBatches(outputs, 200).Error; err != nil {
				return err
			}
		}
		if record != nil {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "game_id"}},
				DoNothing: true,
			}).Create(record).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) HasConsensus(ctx context.Context, gameID string) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.ConsensusOutput{}).
		Where("game_id = ?", gameID).
		Count(&count).Error
	return count > 0, err
}

func (s *Store) ListConsensusByGame(ctx context.Context, gameID string) ([]models.ConsensusOutput, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.ConsensusOutput
	if err := s.db.WithContext(ctx).
		Where("game_id = ?", gameID).
		Order("category asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) GetProjectionRecord(ctx context.Context, gameID string) (*models.ProjectionRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.ProjectionRecord
	err := s.db.WithContext(ctx).Where("game_id = ?", gameID).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// --- trailing performance ---------------------------------------------------

func (s *Store) TrailingPerf(ctx context.Context, categories []string, since time.Time) ([]repository.TrailingPerfRow, error) {
	if s == nil || s.db == nil || len(categories) == 0 {
		return nil, nil
	}
	var rows []repository.TrailingPerfRow
	err := s.db.WithContext(ctx).
		Table("outcomes AS o").
		Select(`
			o.expert_id AS expert_id,
			COUNT(*) AS samples,
			COALESCE(SUM(b.pnl) / NULLIF(SUM(b.stake), 0), 0) AS roi,
			AVG(o.grade) AS accuracy,
			COALESCE(AVG(o.brier), AVG(ABS(COALESCE(o.error, 0)))) AS calibration_error,
			COALESCE(AVG(b.stake), 0) AS avg_stake`).
		Joins("JOIN assertions a ON a.id = o.assertion_id").
		Joins("LEFT JOIN bets b ON b.assertion_id = o.assertion_id AND b.settled = true").
		Where("a.category IN ?", categories).
		Where("o.graded_at >= ?", since).
		Group("o.expert_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Store) ListRecentResiduals(ctx context.Context, categories []string, since time.Time, depth int) ([]repository.ResidualRow, error) {
	if s == nil || s.db == nil || len(categories) == 0 {
		return nil, nil
	}
	if depth <= 0 {
		depth = 40
	}
	var rows []repository.ResidualRow
	err := s.db.WithContext(ctx).
		Table("outcomes AS o").
		Select("o.expert_id AS expert_id, o.game_id AS game_id, (1 - o.grade) AS residual").
		Joins("JOIN assertions a ON a.id = o.assertion_id").
		Where("a.category IN ?", categories).
		Where("o.graded_at >= ?", since).
		Order("o.expert_id asc, o.graded_at desc").
		Limit(depth * 64).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// --- calibration & factor weights -------------------------------------------

func (s *Store) GetLatestCalibration(ctx context.Context, expertID, category string) (*models.CalibrationState, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.CalibrationState
	err := s.db.WithContext(ctx).
		Where("expert_id = ? AND category = ?", expertID, category).
		Order("version desc").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListLatestCalibrations(ctx context.Context, expertIDs []string) ([]models.CalibrationState, error) {
	if s == nil || s.db == nil || len(expertIDs) == 0 {
		return nil, nil
	}
	var items []models.CalibrationState
	err := s.db.WithContext(ctx).
		Raw(`
			SELECT DISTINCT ON (expert_id, category) *
			FROM calibration_states
			WHERE expert_id IN ?
			ORDER BY expert_id, category, version DESC`, expertIDs).
		Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) InsertCalibrationTx(ctx context.Context, tx *gorm.DB, item *models.CalibrationState) error {
	if tx == nil || item == nil {
		return nil
	}
	return tx.Create(item).Error
}

func (s *Store) ListCalibrationHistory(ctx context.Context, expertID, category string) ([]models.CalibrationState, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.CalibrationState
	if err := s.db.WithContext(ctx).
		Where("expert_id = ? AND category = ?", expertID, category).
		Order("version asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListActiveFactorWeights(ctx context.Context, expertID, category string) ([]models.FactorWeight, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.FactorWeight
	if err := s.db.WithContext(ctx).
		Where("expert_id = ? AND category = ?", expertID, category).
		Where("valid_to IS NULL").
		Order("factor asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CloseFactorWeightTx(ctx context.Context, tx *gorm.DB, id uint64, at time.Time) error {
	if tx == nil {
		return nil
	}
	return tx.Model(&models.FactorWeight{}).
		Where("id = ?", id).
		Where("valid_to IS NULL").
		Update("valid_to", at).Error
}

func (s *Store) InsertFactorWeightsTx(ctx context.Context, tx *gorm.DB, items []models.FactorWeight) error {
	if tx == nil || len(items) == 0 {
		return nil
	}
	return tx.CreateInBatches(items, 200).Error
}

func (s *Store) ListFactorWeights(ctx context.Context, params repository.ListFactorWeightsParams) ([]models.FactorWeight, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.FactorWeight{})
	if params.ExpertID != nil {
		query = query.Where("expert_id = ?", *params.ExpertID)
	}
	if params.Category != nil {
		query = query.Where("category = ?", *params.Category)
	}
	if params.Factor != nil {
		query = query.Where("factor = ?", *params.Factor)
	}
	if params.ActiveOnly {
		query = query.Where("valid_to IS NULL")
	}
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.FactorWeight
	if err := query.Order("valid_from desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) InsertReflectionNote(ctx context.Context, item *models.ReflectionNote) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

// --- helpers ----------------------------------------------------------------

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
