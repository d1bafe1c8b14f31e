// Package learning folds graded outcomes back into each expert's calibration
// and factor weights. Every update appends a new version or interval row;
// history is never rewritten.
package learning

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"council/internal/config"
	"council/internal/models"
)

// Store is the slice of the repository the learner needs.
type Store interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	ListOutcomesByGame(ctx context.Context, gameID string) ([]models.Outcome, error)
	ListAssertionsByGame(ctx context.Context, gameID string) ([]models.Assertion, error)
	GetLatestCalibration(ctx context.Context, expertID, category string) (*models.CalibrationState, error)
	InsertCalibrationTx(ctx context.Context, tx *gorm.DB, item *models.CalibrationState) error
	MarkOutcomeLearnedTx(ctx context.Context, tx *gorm.DB, id uint64) error
	ListActiveFactorWeights(ctx context.Context, expertID, category string) ([]models.FactorWeight, error)
	CloseFactorWeightTx(ctx context.Context, tx *gorm.DB, id uint64, at time.Time) error
	InsertFactorWeightsTx(ctx context.Context, tx *gorm.DB, items []models.FactorWeight) error
	InsertReflectionNote(ctx context.Context, item *models.ReflectionNote) error
}

type Learner struct {
	Store  Store
	Logger *zap.Logger
	Config config.LearnerConfig

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// lockScope serializes updates to one (expert, category) calibration line.
func (l *Learner) lockScope(expertID, category string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = map[string]*sync.Mutex{}
	}
	key := expertID + "/" + category
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// LearnGame runs the calibration and factor-weight updates for every graded
// assertion of the game. Each outcome is consumed at most once: the learned
// flag commits in the same transaction as the calibration row, so replaying
// a truth event or re-sweeping the game is a no-op. Individual failures are
// logged and skipped so one bad row cannot stall the rest of the pass.
func (l *Learner) LearnGame(ctx context.Context, gameID string) (int, error) {
	if l == nil || l.Store == nil {
		return 0, nil
	}
	outcomes, err := l.Store.ListOutcomesByGame(ctx, gameID)
	if err != nil {
		return 0, err
	}
	if len(outcomes) == 0 {
		return 0, nil
	}
	assertions, err := l.Store.ListAssertionsByGame(ctx, gameID)
	if err != nil {
		return 0, err
	}
	byID := make(map[uint64]models.Assertion, len(assertions))
	for _, as := range assertions {
		byID[as.ID] = as
	}

	updated := 0
	for _, out := range outcomes {
		if out.Learned {
			continue
		}
		as, ok := byID[out.AssertionID]
		if !ok {
			continue
		}
		if err := l.learnOne(ctx, as, out); err != nil {
			if l.Logger != nil {
				l.Logger.Warn("learning update failed",
					zap.String("expert_id", out.ExpertID),
					zap.String("category", out.Category),
					zap.Error(err))
			}
			continue
		}
		updated++
	}
	return updated, nil
}

func (l *Learner) learnOne(ctx context.Context, as models.Assertion, out models.Outcome) error {
	unlock := l.lockScope(out.ExpertID, out.Category)
	defer unlock()

	prev, err := l.Store.GetLatestCalibration(ctx, out.ExpertID, out.Category)
	if err != nil {
		return err
	}
	next := l.nextCalibration(prev, as, out)

	factors := citedFactors(as)
	var closing []uint64
	var opening []models.FactorWeight
	if len(factors) > 0 {
		active, err := l.Store.ListActiveFactorWeights(ctx, out.ExpertID, out.Category)
		if err != nil {
			return err
		}
		closing, opening = l.reweighted(active, factors, out.Grade)
	}

	now := time.Now().UTC()
	for i := range opening {
		opening[i].ExpertID = out.ExpertID
		opening[i].Category = out.Category
		opening[i].ValidFrom = now
	}
	return l.Store.InTx(ctx, func(tx *gorm.DB) error {
		if err := l.Store.InsertCalibrationTx(ctx, tx, &next); err != nil {
			return err
		}
		for _, id := range closing {
			if err := l.Store.CloseFactorWeightTx(ctx, tx, id, now); err != nil {
				return err
			}
		}
		if len(opening) > 0 {
			if err := l.Store.InsertFactorWeightsTx(ctx, tx, opening); err != nil {
				return err
			}
		}
		return l.Store.MarkOutcomeLearnedTx(ctx, tx, out.ID)
	})
}

// nextCalibration derives the successor version. Binary and enum categories
// move the Beta pair by the exact-match grade; numeric categories move the
// EMA bias toward the signed residual (actual minus predicted) and the
// spread toward its magnitude.
func (l *Learner) nextCalibration(prev *models.CalibrationState, as models.Assertion, out models.Outcome) models.CalibrationState {
	eta := l.Config.Eta
	if eta <= 0 || eta >= 1 {
		eta = 0.1
	}
	next := models.CalibrationState{
		ExpertID: out.ExpertID,
		Category: out.Category,
		Version:  1,
		Alpha:    1,
		Beta:     1,
	}
	if prev != nil {
		next.Version = prev.Version + 1
		next.Alpha = prev.Alpha
		next.Beta = prev.Beta
		next.Mu = prev.Mu
		next.Sigma = prev.Sigma
		next.Samples = prev.Samples
	}
	next.Samples++

	switch as.PredType {
	case models.PredTypeBinary, models.PredTypeEnum:
		next.Alpha += out.Grade
		next.Beta += 1 - out.Grade
	case models.PredTypeNumeric:
		if out.Error != nil {
			residual := -*out.Error
			next.Mu = (1-eta)*next.Mu + eta*residual
			next.Sigma = (1-eta)*next.Sigma + eta*math.Abs(residual)
		}
	}
	return next
}

// reweighted applies the multiplicative-weights step to the cited factors and
// renormalizes the whole active vector. Uncited factors keep their raw weight
// through the renormalization. Returns the interval ids to close and the new
// rows to open.
func (l *Learner) reweighted(active []models.FactorWeight, factors map[string]float64, grade float64) ([]uint64, []models.FactorWeight) {
	betaLR := l.Config.BetaLR
	if betaLR <= 0 {
		betaLR = 0.3
	}
	direction := 2*grade - 1

	weights := map[string]float64{}
	var closing []uint64
	for _, fw := range active {
		weights[fw.Factor] = fw.Weight
		closing = append(closing, fw.ID)
	}
	for factor, contribution := range factors {
		w, ok := weights[factor]
		if !ok {
			// First citation starts from a neutral weight.
			w = 1
		}
		weights[factor] = w * math.Exp(betaLR*direction*contribution)
	}

	var total float64
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return closing, nil
	}

	names := make([]string, 0, len(weights))
	for factor := range weights {
		names = append(names, factor)
	}
	sort.Strings(names)
	opening := make([]models.FactorWeight, 0, len(names))
	for _, factor := range names {
		opening = append(opening, models.FactorWeight{
			Factor: factor,
			Weight: weights[factor] / total,
		})
	}
	return closing, opening
}

// citedFactors decodes the why provenance into factor -> contribution.
func citedFactors(as models.Assertion) map[string]float64 {
	if len(as.Why) == 0 {
		return nil
	}
	var parsed []models.WhyFactor
	if err := json.Unmarshal(as.Why, &parsed); err != nil {
		return nil
	}
	out := make(map[string]float64, len(parsed))
	for _, f := range parsed {
		if f.MemoryID == "" {
			continue
		}
		out[f.MemoryID] = f.Weight
	}
	return out
}

// Reflect stores an optional natural-language annotation alongside the
// numeric updates.
func (l *Learner) Reflect(ctx context.Context, expertID, gameID, category, note string) error {
	if l == nil || l.Store == nil || note == "" {
		return nil
	}
	return l.Store.InsertReflectionNote(ctx, &models.ReflectionNote{
		ExpertID: expertID,
		GameID:   gameID,
		Category: category,
		Note:     note,
	})
}
