// Package service wires the repository, registry and algorithm packages into
// the engine's operations: bundle ingest, the pre-outcome consensus pipeline
// and the post-outcome grade/settle/learn pipeline.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"council/internal/audit"
	"council/internal/ledger"
	"council/internal/models"
	"council/internal/reason"
	"council/internal/registry"
	"council/internal/repository"
)

// AssertionInput is one category prediction inside a bundle.
type AssertionInput struct {
	Category   string             `json:"category"`
	PredType   string             `json:"pred_type"`
	ValueBool  *bool              `json:"value_bool,omitempty"`
	ValueEnum  *string            `json:"value_enum,omitempty"`
	ValueNum   *float64           `json:"value_num,omitempty"`
	Confidence float64            `json:"confidence"`
	StakeUnits decimal.Decimal    `json:"stake_units"`
	OddsFormat string             `json:"odds_format"`
	OddsValue  string             `json:"odds_value"`
	Why        []models.WhyFactor `json:"why,omitempty"`
}

// BundleRequest is one expert's complete submission for one game.
type BundleRequest struct {
	ExpertID   string           `json:"expert_id"`
	GameID     string           `json:"game_id"`
	Season     string           `json:"season,omitempty"`
	State      BundleState      `json:"state"`
	Assertions []AssertionInput `json:"assertions"`
}

// BundleResult reports an accepted bundle.
type BundleResult struct {
	BundleID   string `json:"bundle_id"`
	Assertions int    `json:"assertions"`
	Bets       int    `json:"bets"`
	Degraded   bool   `json:"degraded,omitempty"`
}

type IngestService struct {
	Repo     repository.Repository
	Registry *registry.Registry
	Logger   *zap.Logger
	Audit    *audit.Emitter

	Season           string
	StartingBankroll decimal.Decimal
}

// SubmitBundle validates and stores a full bundle, or rejects it whole. On
// acceptance the assertion rows plus one bet per nonzero stake land in a
// single transaction.
func (s *IngestService) SubmitBundle(ctx context.Context, req BundleRequest) (*BundleResult, error) {
	if s == nil || s.Repo == nil || s.Registry == nil {
		return nil, reason.Validation("ingest service not configured")
	}
	if strings.TrimSpace(req.ExpertID) == "" || strings.TrimSpace(req.GameID) == "" {
		return nil, reason.Validation("expert_id and game_id are required")
	}
	if err := req.State.acceptable(); err != nil {
		return nil, err
	}
	season := req.Season
	if season == "" {
		season = s.Season
	}

	assertions, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	if err := s.Repo.CreateBankrollIfMissing(ctx, &models.Bankroll{
		ExpertID:         req.ExpertID,
		Season:           season,
		StartingBankroll: s.StartingBankroll,
		Bankroll:         s.StartingBankroll,
		IsActive:         true,
	}); err != nil {
		return nil, err
	}
	bank, err := s.Repo.GetBankroll(ctx, req.ExpertID, season)
	if err != nil {
		return nil, err
	}
	if bank == nil || !bank.IsActive {
		if s.Logger != nil {
			s.Logger.Error("bet submitted against inactive bankroll",
				zap.String("expert_id", req.ExpertID),
				zap.String("season", season))
		}
		return nil, reason.InactiveBankroll("expert %s is retired for season %s", req.ExpertID, season)
	}

	bundleID := uuid.NewString()
	for i := range assertions {
		assertions[i].BundleID = bundleID
	}

	var bets []models.Bet
	err = s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		if err := s.Repo.UpsertGameTx(ctx, tx, &models.Game{GameID: req.GameID, Season: season}); err != nil {
			return err
		}
		if err := s.Repo.InsertAssertionsTx(ctx, tx, assertions); err != nil {
			return err
		}
		for _, as := range assertions {
			if as.StakeUnits.IsZero() {
				continue
			}
			bets = append(bets, models.Bet{
				AssertionID:    as.ID,
				ExpertID:       as.ExpertID,
				GameID:         as.GameID,
				Season:         season,
				Stake:          as.StakeUnits,
				OddsFormat:     as.OddsFormat,
				OddsValue:      as.OddsValue,
				IdempotencyKey: uuid.NewString(),
				Outcome:        models.BetOutcomePending,
			})
		}
		if len(bets) == 0 {
			return nil
		}
		return s.Repo.InsertBetsTx(ctx, tx, bets)
	})
	if err != nil {
		return nil, bundleWriteError(err, req.ExpertID, req.GameID)
	}

	if s.Audit != nil {
		s.Audit.Enqueue(audit.AssertionGraph(assertions))
	}
	if req.State.Degraded() && s.Logger != nil {
		s.Logger.Warn("accepted degraded bundle",
			zap.String("expert_id", req.ExpertID),
			zap.String("game_id", req.GameID),
			zap.String("bundle_id", bundleID))
	}
	return &BundleResult{
		BundleID:   bundleID,
		Assertions: len(assertions),
		Bets:       len(bets),
		Degraded:   req.State.Degraded(),
	}, nil
}

// bundleWriteError classifies persistence failures from the bundle
// transaction. A duplicate key on the assertion identity index means this
// (expert, game) pair already has an accepted bundle; that gets the
// validation reason code rather than an upstream error.
func bundleWriteError(err error, expertID, gameID string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return reason.Validation("bundle already submitted for expert %s game %s", expertID, gameID)
	}
	return err
}

// validate checks the whole bundle against the category registry and returns
// the model rows, or a validation error naming every offending item.
func (s *IngestService) validate(req BundleRequest) ([]models.Assertion, error) {
	var issues []string
	addIssue := func(format string, args ...any) {
		issues = append(issues, fmt.Sprintf(format, args...))
	}

	if len(req.Assertions) != s.Registry.Count() {
		addIssue("bundle has %d assertions, registry defines %d categories", len(req.Assertions), s.Registry.Count())
	}

	seen := map[string]bool{}
	assertions := make([]models.Assertion, 0, len(req.Assertions))
	for i, in := range req.Assertions {
		cat, ok := s.Registry.Get(in.Category)
		if !ok {
			addIssue("item %d: unknown category %q", i, in.Category)
			continue
		}
		if seen[in.Category] {
			addIssue("item %d: duplicate category %q", i, in.Category)
			continue
		}
		seen[in.Category] = true

		if in.PredType != cat.PredType {
			addIssue("item %d: category %s is %s, got %s", i, cat.Key, cat.PredType, in.PredType)
			continue
		}
		if err := s.Registry.ValidateValue(cat, in.PredType, in.ValueBool, in.ValueEnum, in.ValueNum); err != nil {
			addIssue("item %d: %v", i, err)
			continue
		}
		if in.Confidence < 0 || in.Confidence > 1 {
			addIssue("item %d: confidence %v outside [0,1]", i, in.Confidence)
			continue
		}
		if in.StakeUnits.IsNegative() {
			addIssue("item %d: negative stake %s", i, in.StakeUnits)
			continue
		}
		if !in.StakeUnits.IsZero() {
			if _, err := ledger.ProfitMultiplier(in.OddsFormat, in.OddsValue); err != nil {
				addIssue("item %d: %v", i, err)
				continue
			}
		}

		as := models.Assertion{
			ExpertID:   req.ExpertID,
			GameID:     req.GameID,
			Category:   cat.Key,
			Subject:    cat.Subject,
			PredType:   cat.PredType,
			ValueBool:  in.ValueBool,
			ValueEnum:  in.ValueEnum,
			ValueNum:   in.ValueNum,
			Confidence: in.Confidence,
			StakeUnits: in.StakeUnits,
			OddsFormat: in.OddsFormat,
			OddsValue:  in.OddsValue,
		}
		if len(in.Why) > 0 {
			raw, err := json.Marshal(in.Why)
			if err != nil {
				addIssue("item %d: bad why provenance: %v", i, err)
				continue
			}
			as.Why = raw
		}
		if as.OddsFormat == "" {
			as.OddsFormat = ledger.OddsDecimal
			as.OddsValue = "2.0"
		}
		assertions = append(assertions, as)
	}

	if len(issues) > 0 {
		return nil, reason.Validation("bundle rejected: %s", strings.Join(issues, "; "))
	}
	return assertions, nil
}
