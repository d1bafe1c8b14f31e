// Package grading scores stored assertions against a game's ground truth.
// A game is graded in one transaction: either every ungraded assertion gets
// an outcome row or none do.
package grading

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"council/internal/models"
	"council/internal/reason"
	"council/internal/registry"
)

// Store is the slice of the repository the grader needs.
type Store interface {
	GetGame(ctx context.Context, gameID string) (*models.Game, error)
	ListGroundTruthsByGame(ctx context.Context, gameID string) ([]models.GroundTruth, error)
	ListAssertionsByGame(ctx context.Context, gameID string) ([]models.Assertion, error)
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	InsertOutcomesTx(ctx context.Context, tx *gorm.DB, items []models.Outcome) error
	MarkAssertionsGradedTx(ctx context.Context, tx *gorm.DB, ids []uint64) error
}

type Grader struct {
	Store    Store
	Registry *registry.Registry
	Logger   *zap.Logger
}

// GradeGame scores every ungraded assertion for the game and writes the
// outcome rows atomically. It refuses to grade until the game's full truth
// event has landed, and is a no-op on a game that is already fully graded.
func (g *Grader) GradeGame(ctx context.Context, gameID string) ([]models.Outcome, error) {
	if g == nil || g.Store == nil {
		return nil, nil
	}
	game, err := g.Store.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game == nil || !game.TruthComplete {
		return nil, reason.StaleOutcome("game %s has no complete ground truth yet", gameID)
	}

	truths, err := g.Store.ListGroundTruthsByGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	truthByCategory := make(map[string]models.GroundTruth, len(truths))
	for _, tr := range truths {
		truthByCategory[tr.Category] = tr
	}

	assertions, err := g.Store.ListAssertionsByGame(ctx, gameID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var outcomes []models.Outcome
	var gradedIDs []uint64
	for _, as := range assertions {
		if as.Graded {
			continue
		}
		truth, ok := truthByCategory[as.Category]
		if !ok {
			// Truth events carry every category; a hole here means the
			// feed sent a partial event and grading must wait.
			return nil, reason.StaleOutcome("game %s missing truth for category %s", gameID, as.Category)
		}
		out, err := g.gradeOne(as, truth)
		if err != nil {
			return nil, err
		}
		out.GradedAt = now
		outcomes = append(outcomes, out)
		gradedIDs = append(gradedIDs, as.ID)
	}
	if len(outcomes) == 0 {
		return nil, nil
	}

	err = g.Store.InTx(ctx, func(tx *gorm.DB) error {
		if err := g.Store.InsertOutcomesTx(ctx, tx, outcomes); err != nil {
			return err
		}
		return g.Store.MarkAssertionsGradedTx(ctx, tx, gradedIDs)
	})
	if err != nil {
		return nil, err
	}
	if g.Logger != nil {
		g.Logger.Info("graded game",
			zap.String("game_id", gameID),
			zap.Int("outcomes", len(outcomes)))
	}
	return outcomes, nil
}

func (g *Grader) gradeOne(as models.Assertion, truth models.GroundTruth) (models.Outcome, error) {
	out := models.Outcome{
		AssertionID: as.ID,
		ExpertID:    as.ExpertID,
		GameID:      as.GameID,
		Category:    as.Category,
	}
	switch as.PredType {
	case models.PredTypeBinary:
		if as.ValueBool == nil || truth.ActualBool == nil {
			return out, reason.Validation("assertion %d: binary value missing", as.ID)
		}
		correct := *as.ValueBool == *truth.ActualBool
		out.IsCorrect = &correct
		out.Grade = exactGrade(correct)
		brier := brierScore(as.Confidence, correct)
		out.Brier = &brier
	case models.PredTypeEnum:
		if as.ValueEnum == nil || truth.ActualEnum == nil {
			return out, reason.Validation("assertion %d: enum value missing", as.ID)
		}
		correct := *as.ValueEnum == *truth.ActualEnum
		out.IsCorrect = &correct
		out.Grade = exactGrade(correct)
		brier := brierScore(as.Confidence, correct)
		out.Brier = &brier
	case models.PredTypeNumeric:
		if as.ValueNum == nil || truth.ActualNum == nil {
			return out, reason.Validation("assertion %d: numeric value missing", as.ID)
		}
		diff := *as.ValueNum - *truth.ActualNum
		out.Error = &diff
		out.Grade = kernelGrade(diff, g.sigmaFor(as.Category))
	default:
		return out, reason.Validation("assertion %d: unknown pred type %q", as.ID, as.PredType)
	}
	return out, nil
}

func (g *Grader) sigmaFor(category string) float64 {
	if g.Registry != nil {
		if cat, ok := g.Registry.Get(category); ok && cat.Sigma > 0 {
			return cat.Sigma
		}
	}
	return 10
}

func exactGrade(correct bool) float64 {
	if correct {
		return 1
	}
	return 0
}

// brierScore is the squared gap between the asserted confidence and the 0/1
// outcome.
func brierScore(confidence float64, correct bool) float64 {
	outcome := 0.0
	if correct {
		outcome = 1
	}
	d := confidence - outcome
	return d * d
}

// kernelGrade maps a numeric miss onto (0,1] with a Gaussian kernel: a dead
// hit grades 1, a miss of one sigma grades exp(-1).
func kernelGrade(diff, sigma float64) float64 {
	if sigma <= 0 {
		sigma = 10
	}
	r := diff / sigma
	return math.Exp(-(r * r))
}
