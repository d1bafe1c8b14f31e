package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"council/internal/audit"
	"council/internal/consensus"
	"council/internal/council"
	"council/internal/grading"
	"council/internal/ledger"
	"council/internal/learning"
	"council/internal/models"
	"council/internal/reason"
	"council/internal/registry"
	"council/internal/repository"
)

// ConsensusService runs the pre-outcome pipeline for one game: seat the
// councils, aggregate the seated assertions, project the numeric vector onto
// the coherence constraints and persist the platform output once.
type ConsensusService struct {
	Repo       repository.Repository
	Registry   *registry.Registry
	Logger     *zap.Logger
	Selector   *council.Selector
	Aggregator *consensus.Aggregator
	Projector  *consensus.Projector
}

// RunGame computes and stores the consensus for a game. A game that already
// has consensus rows is a no-op.
func (s *ConsensusService) RunGame(ctx context.Context, gameID string) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	done, err := s.Repo.HasConsensus(ctx, gameID)
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	if _, err := s.Selector.SelectForGame(ctx, gameID); err != nil {
		return err
	}
	seats, err := s.Repo.ListSeatsByGame(ctx, gameID, nil)
	if err != nil {
		return err
	}
	if len(seats) == 0 {
		return reason.InsufficientData("game %s has no seatable experts", gameID)
	}
	assertions, err := s.Repo.ListAssertionsByGame(ctx, gameID)
	if err != nil {
		return err
	}
	expertIDs := make([]string, 0, len(seats))
	seen := map[string]bool{}
	for _, seat := range seats {
		if !seen[seat.ExpertID] {
			seen[seat.ExpertID] = true
			expertIDs = append(expertIDs, seat.ExpertID)
		}
	}
	calibs, err := s.Repo.ListLatestCalibrations(ctx, expertIDs)
	if err != nil {
		return err
	}

	estimates, skipped := s.Aggregator.Aggregate(seats, assertions, calibs)
	for _, u := range skipped {
		if s.Logger != nil {
			s.Logger.Debug("category left unestimated",
				zap.String("game_id", gameID),
				zap.String("category", u.Category),
				zap.String("reason", u.Reason))
		}
	}
	if len(estimates) == 0 {
		return reason.InsufficientData("game %s has no estimable categories", gameID)
	}

	projected, err := s.Projector.Project(estimates,
		registry.CoherenceConstraints(), registry.WinnerSignConstraints())
	if err != nil {
		return err
	}
	if len(projected.Relaxed) > 0 && s.Logger != nil {
		s.Logger.Warn("projection relaxed constraints",
			zap.String("game_id", gameID),
			zap.Strings("constraints", projected.Relaxed))
	}

	outputs := make([]models.ConsensusOutput, 0, len(estimates))
	for _, est := range estimates {
		out := models.ConsensusOutput{
			GameID:     gameID,
			Category:   est.Category,
			PredType:   est.PredType,
			Prob:       est.Prob,
			EnumValue:  est.EnumValue,
			RawValue:   est.Value,
			Confidence: est.Confidence,
			SeatCount:  est.SeatCount,
		}
		if est.Value != nil {
			adjusted := projected.Adjusted[est.Category]
			out.Value = &adjusted
		}
		outputs = append(outputs, out)
	}

	record := &models.ProjectionRecord{
		GameID:             gameID,
		SquaredAdjustment:  projected.SquaredAdjustment,
		ConstraintsApplied: projected.ConstraintsApplied,
	}
	if len(projected.Relaxed) > 0 {
		raw, err := json.Marshal(projected.Relaxed)
		if err != nil {
			return err
		}
		record.RelaxedConstraints = raw
	}
	if err := s.Repo.SaveConsensus(ctx, outputs, record); err != nil {
		return err
	}
	if s.Logger != nil {
		s.Logger.Info("consensus stored",
			zap.String("game_id", gameID),
			zap.Int("categories", len(outputs)),
			zap.Float64("squared_adjustment", projected.SquaredAdjustment))
	}
	return nil
}

// RunDue runs the pipeline for games that have assertions but no consensus
// yet. Used by the cron sweep.
func (s *ConsensusService) RunDue(ctx context.Context, limit int) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	gameIDs, err := s.Repo.ListGamesNeedingConsensus(ctx, limit)
	if err != nil {
		return err
	}
	for _, gameID := range gameIDs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.RunGame(ctx, gameID); err != nil {
			if s.Logger != nil {
				s.Logger.Warn("consensus run failed",
					zap.String("game_id", gameID),
					zap.Error(err))
			}
		}
	}
	return nil
}

// TruthInput is one category's actual inside a truth event.
type TruthInput struct {
	Category  string   `json:"category"`
	ValueBool *bool    `json:"value_bool,omitempty"`
	ValueEnum *string  `json:"value_enum,omitempty"`
	ValueNum  *float64 `json:"value_num,omitempty"`
}

// TruthRequest is the atomic ground-truth event for one game.
type TruthRequest struct {
	GameID string       `json:"game_id"`
	Season string       `json:"season,omitempty"`
	Truths []TruthInput `json:"truths"`
}

// OutcomeService runs the post-outcome pipeline: store the truth event, then
// grade, settle and learn. The audit emitter mirrors graded outcomes into
// the provenance graph without blocking any of it.
type OutcomeService struct {
	Repo     repository.Repository
	Registry *registry.Registry
	Logger   *zap.Logger
	Grader   *grading.Grader
	Ledger   *ledger.Ledger
	Learner  *learning.Learner
	Audit    *audit.Emitter

	Season string
}

// SubmitTruth stores a complete ground-truth event atomically and kicks the
// grade/settle/learn pipeline. Partial events are rejected whole.
func (s *OutcomeService) SubmitTruth(ctx context.Context, req TruthRequest) error {
	if s == nil || s.Repo == nil || s.Registry == nil {
		return reason.Validation("outcome service not configured")
	}
	if strings.TrimSpace(req.GameID) == "" {
		return reason.Validation("game_id is required")
	}
	truths, err := s.validateTruths(req)
	if err != nil {
		return err
	}
	season := req.Season
	if season == "" {
		season = s.Season
	}

	now := time.Now().UTC()
	err = s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		game := &models.Game{
			GameID:        req.GameID,
			Season:        season,
			Status:        models.GameStatusFinal,
			TruthComplete: true,
			TruthAt:       &now,
		}
		if err := s.Repo.UpsertGameTx(ctx, tx, game); err != nil {
			return err
		}
		return s.Repo.UpsertGroundTruthsTx(ctx, tx, truths)
	})
	if err != nil {
		return err
	}
	return s.ProcessGame(ctx, req.GameID)
}

// ProcessGame grades, settles and learns one game whose truth is complete.
// Re-runs are safe: grading and settlement are no-ops on finished work.
func (s *OutcomeService) ProcessGame(ctx context.Context, gameID string) error {
	outcomes, err := s.Grader.GradeGame(ctx, gameID)
	if err != nil {
		return err
	}
	settled, err := s.Ledger.SettleGame(ctx, gameID)
	if err != nil {
		return err
	}
	learned, err := s.Learner.LearnGame(ctx, gameID)
	if err != nil {
		return err
	}
	if len(outcomes) > 0 && s.Audit != nil {
		s.Audit.Enqueue(audit.OutcomeGraph(outcomes))
	}
	if s.Logger != nil {
		s.Logger.Info("game processed",
			zap.String("game_id", gameID),
			zap.Int("graded", len(outcomes)),
			zap.Int("settled", settled),
			zap.Int("learned", learned))
	}
	return nil
}

// RetryGradable re-runs the pipeline for finalized games that still have
// ungraded assertions. Used by the cron retry sweep.
func (s *OutcomeService) RetryGradable(ctx context.Context, limit int) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	games, err := s.Repo.ListGradableGames(ctx, limit)
	if err != nil {
		return err
	}
	for _, game := range games {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.ProcessGame(ctx, game.GameID); err != nil {
			if s.Logger != nil {
				s.Logger.Warn("grade retry failed",
					zap.String("game_id", game.GameID),
					zap.Error(err))
			}
		}
	}
	return nil
}

func (s *OutcomeService) validateTruths(req TruthRequest) ([]models.GroundTruth, error) {
	var issues []string
	seen := map[string]bool{}
	truths := make([]models.GroundTruth, 0, len(req.Truths))
	for i, in := range req.Truths {
		cat, ok := s.Registry.Get(in.Category)
		if !ok {
			issues = append(issues, fmt.Sprintf("item %d: unknown category %q", i, in.Category))
			continue
		}
		if seen[in.Category] {
			issues = append(issues, fmt.Sprintf("item %d: duplicate category %q", i, in.Category))
			continue
		}
		seen[in.Category] = true
		if err := s.Registry.ValidateValue(cat, cat.PredType, in.ValueBool, in.ValueEnum, in.ValueNum); err != nil {
			issues = append(issues, fmt.Sprintf("item %d: %v", i, err))
			continue
		}
		truths = append(truths, models.GroundTruth{
			GameID:     req.GameID,
			Category:   cat.Key,
			ActualBool: in.ValueBool,
			ActualEnum: in.ValueEnum,
			ActualNum:  in.ValueNum,
		})
	}
	if len(seen) != s.Registry.Count() {
		issues = append(issues, fmt.Sprintf("truth event covers %d of %d categories", len(seen), s.Registry.Count()))
	}
	if len(issues) > 0 {
		return nil, reason.Validation("truth event rejected: %s", strings.Join(issues, "; "))
	}
	return truths, nil
}
