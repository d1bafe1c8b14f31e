package learning

import (
	"context"
	"math"
	"testing"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"council/internal/config"
	"council/internal/models"
)

type stubStore struct {
	outcomes   []models.Outcome
	assertions []models.Assertion

	calibrations  map[string][]models.CalibrationState
	factorWeights []models.FactorWeight
	notes         []models.ReflectionNote
}

func newStubStore() *stubStore {
	return &stubStore{calibrations: map[string][]models.CalibrationState{}}
}

func (s *stubStore) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func (s *stubStore) ListOutcomesByGame(ctx context.Context, gameID string) ([]models.Outcome, error) {
	return s.outcomes, nil
}

func (s *stubStore) ListAssertionsByGame(ctx context.Context, gameID string) ([]models.Assertion, error) {
	return s.assertions, nil
}

func (s *stubStore) GetLatestCalibration(ctx context.Context, expertID, category string) (*models.CalibrationState, error) {
	versions := s.calibrations[expertID+"/"+category]
	if len(versions) == 0 {
		return nil, nil
	}
	latest := versions[len(versions)-1]
	return &latest, nil
}

func (s *stubStore) InsertCalibrationTx(ctx context.Context, tx *gorm.DB, item *models.CalibrationState) error {
	key := item.ExpertID + "/" + item.Category
	s.calibrations[key] = append(s.calibrations[key], *item)
	return nil
}

func (s *stubStore) MarkOutcomeLearnedTx(ctx context.Context, tx *gorm.DB, id uint64) error {
	for i := range s.outcomes {
		if s.outcomes[i].ID == id {
			s.outcomes[i].Learned = true
		}
	}
	return nil
}

func (s *stubStore) ListActiveFactorWeights(ctx context.Context, expertID, category string) ([]models.FactorWeight, error) {
	var out []models.FactorWeight
	for _, fw := range s.factorWeights {
		if fw.ExpertID == expertID && fw.Category == category && fw.ValidTo == nil {
			out = append(out, fw)
		}
	}
	return out, nil
}

func (s *stubStore) CloseFactorWeightTx(ctx context.Context, tx *gorm.DB, id uint64, at time.Time) error {
	for i := range s.factorWeights {
		if s.factorWeights[i].ID == id {
			closed := at
			s.factorWeights[i].ValidTo = &closed
		}
	}
	return nil
}

func (s *stubStore) InsertFactorWeightsTx(ctx context.Context, tx *gorm.DB, items []models.FactorWeight) error {
	for _, fw := range items {
		fw.ID = uint64(len(s.factorWeights) + 1)
		s.factorWeights = append(s.factorWeights, fw)
	}
	return nil
}

func (s *stubStore) InsertReflectionNote(ctx context.Context, item *models.ReflectionNote) error {
	s.notes = append(s.notes, *item)
	return nil
}

func newLearner(s *stubStore) *Learner {
	return &Learner{Store: s, Config: config.LearnerConfig{Eta: 0.1, BetaLR: 0.3}}
}

func boolPtr(v bool) *bool        { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestLearnGameBetaUpdate(t *testing.T) {
	s := newStubStore()
	s.assertions = []models.Assertion{
		{ID: 1, ExpertID: "e1", GameID: "g1", Category: "overtime", PredType: models.PredTypeBinary, ValueBool: boolPtr(true), Confidence: 0.8},
	}
	s.outcomes = []models.Outcome{
		{ID: 1, AssertionID: 1, ExpertID: "e1", GameID: "g1", Category: "overtime", IsCorrect: boolPtr(false), Grade: 0},
	}
	n, err := newLearner(s).LearnGame(context.Background(), "g1")
	if err != nil || n != 1 {
		t.Fatalf("learn: n=%d err=%v", n, err)
	}
	versions := s.calibrations["e1/overtime"]
	if len(versions) != 1 {
		t.Fatalf("got %d versions, want 1", len(versions))
	}
	got := versions[0]
	// Fresh prior Beta(1,1); a miss moves beta only.
	if got.Version != 1 || got.Alpha != 1 || got.Beta != 2 || got.Samples != 1 {
		t.Fatalf("calibration = %+v, want version 1 alpha 1 beta 2", got)
	}

	// A later hit on the same line appends version 2 and leaves version 1
	// in place.
	s.assertions = append(s.assertions, models.Assertion{
		ID: 2, ExpertID: "e1", GameID: "g1", Category: "overtime", PredType: models.PredTypeBinary, ValueBool: boolPtr(true), Confidence: 0.8,
	})
	s.outcomes = append(s.outcomes, models.Outcome{
		ID: 2, AssertionID: 2, ExpertID: "e1", GameID: "g1", Category: "overtime", IsCorrect: boolPtr(true), Grade: 1,
	})
	if _, err := newLearner(s).LearnGame(context.Background(), "g1"); err != nil {
		t.Fatalf("second learn: %v", err)
	}
	versions = s.calibrations["e1/overtime"]
	if len(versions) != 2 {
		t.Fatalf("got %d versions, want append-only growth to 2", len(versions))
	}
	if versions[0].Beta != 2 {
		t.Fatalf("history rewritten: %+v", versions[0])
	}
	if versions[1].Version != 2 || versions[1].Alpha != 2 || versions[1].Beta != 2 || versions[1].Samples != 2 {
		t.Fatalf("version 2 = %+v, want alpha 2 beta 2", versions[1])
	}
}

func TestLearnGameReplayDoesNotDoubleCount(t *testing.T) {
	s := newStubStore()
	s.assertions = []models.Assertion{
		{ID: 1, ExpertID: "e1", GameID: "g1", Category: "overtime", PredType: models.PredTypeBinary, ValueBool: boolPtr(true), Confidence: 0.8},
	}
	s.outcomes = []models.Outcome{
		{ID: 1, AssertionID: 1, ExpertID: "e1", GameID: "g1", Category: "overtime", IsCorrect: boolPtr(true), Grade: 1},
	}
	l := newLearner(s)
	n, err := l.LearnGame(context.Background(), "g1")
	if err != nil || n != 1 {
		t.Fatalf("first learn: n=%d err=%v", n, err)
	}
	// A duplicate truth event re-runs the whole pipeline over the same
	// outcomes; the win must not count twice.
	n, err = l.LearnGame(context.Background(), "g1")
	if err != nil || n != 0 {
		t.Fatalf("replay: n=%d err=%v, want a no-op", n, err)
	}
	versions := s.calibrations["e1/overtime"]
	if len(versions) != 1 {
		t.Fatalf("replay appended a version: got %d, want 1", len(versions))
	}
	got := versions[0]
	if got.Alpha != 2 || got.Beta != 1 || got.Samples != 1 {
		t.Fatalf("calibration = %+v, want alpha 2 beta 1 samples 1", got)
	}
	if !s.outcomes[0].Learned {
		t.Fatalf("outcome not marked learned")
	}
}

func TestLearnGameNumericEMA(t *testing.T) {
	s := newStubStore()
	s.assertions = []models.Assertion{
		{ID: 1, ExpertID: "e1", GameID: "g1", Category: "winning_margin", PredType: models.PredTypeNumeric, ValueNum: floatPtr(4)},
	}
	// Predicted 4, actual 10: signed error -6, residual (actual-predicted) +6.
	s.outcomes = []models.Outcome{
		{AssertionID: 1, ExpertID: "e1", GameID: "g1", Category: "winning_margin", Error: floatPtr(-6), Grade: 0.5},
	}
	if _, err := newLearner(s).LearnGame(context.Background(), "g1"); err != nil {
		t.Fatalf("learn: %v", err)
	}
	got := s.calibrations["e1/winning_margin"][0]
	if math.Abs(got.Mu-0.6) > 1e-12 {
		t.Fatalf("mu = %v, want 0.6", got.Mu)
	}
	if math.Abs(got.Sigma-0.6) > 1e-12 {
		t.Fatalf("sigma = %v, want 0.6", got.Sigma)
	}
	if got.Alpha != 1 || got.Beta != 1 {
		t.Fatalf("numeric update moved the beta pair: %+v", got)
	}
}

func TestLearnGameFactorWeights(t *testing.T) {
	s := newStubStore()
	why := datatypes.JSON([]byte(`[{"memory_id":"m1","weight":0.7},{"memory_id":"m2","weight":0.3}]`))
	s.assertions = []models.Assertion{
		{ID: 1, ExpertID: "e1", GameID: "g1", Category: "overtime", PredType: models.PredTypeBinary, ValueBool: boolPtr(true), Confidence: 0.8, Why: why},
	}
	s.outcomes = []models.Outcome{
		{AssertionID: 1, ExpertID: "e1", GameID: "g1", Category: "overtime", IsCorrect: boolPtr(false), Grade: 0},
	}
	s.factorWeights = []models.FactorWeight{
		{ID: 1, ExpertID: "e1", Category: "overtime", Factor: "m1", Weight: 0.5, ValidFrom: time.Now().Add(-time.Hour)},
		{ID: 2, ExpertID: "e1", Category: "overtime", Factor: "m2", Weight: 0.5, ValidFrom: time.Now().Add(-time.Hour)},
	}
	if _, err := newLearner(s).LearnGame(context.Background(), "g1"); err != nil {
		t.Fatalf("learn: %v", err)
	}
	if s.factorWeights[0].ValidTo == nil || s.factorWeights[1].ValidTo == nil {
		t.Fatalf("old intervals left open")
	}
	var open []models.FactorWeight
	for _, fw := range s.factorWeights {
		if fw.ValidTo == nil {
			open = append(open, fw)
		}
	}
	if len(open) != 2 {
		t.Fatalf("got %d open intervals, want 2", len(open))
	}
	// Grade 0 shrinks both, the heavier contributor more; normalization
	// keeps the vector summing to 1.
	var sum float64
	byFactor := map[string]float64{}
	for _, fw := range open {
		sum += fw.Weight
		byFactor[fw.Factor] = fw.Weight
	}
	if math.Abs(sum-1) > 1e-12 {
		t.Fatalf("weights sum to %v, want 1", sum)
	}
	if byFactor["m1"] >= byFactor["m2"] {
		t.Fatalf("m1=%v m2=%v, want the heavier cited factor punished harder", byFactor["m1"], byFactor["m2"])
	}
	w1 := 0.5 * math.Exp(0.3*(-1)*0.7)
	w2 := 0.5 * math.Exp(0.3*(-1)*0.3)
	if math.Abs(byFactor["m1"]-w1/(w1+w2)) > 1e-12 {
		t.Fatalf("m1 = %v, want %v", byFactor["m1"], w1/(w1+w2))
	}
}

func TestLearnGameUncitedAssertionSkipsFactors(t *testing.T) {
	s := newStubStore()
	s.assertions = []models.Assertion{
		{ID: 1, ExpertID: "e1", GameID: "g1", Category: "overtime", PredType: models.PredTypeBinary, ValueBool: boolPtr(true), Confidence: 0.8},
	}
	s.outcomes = []models.Outcome{
		{AssertionID: 1, ExpertID: "e1", GameID: "g1", Category: "overtime", IsCorrect: boolPtr(true), Grade: 1},
	}
	if _, err := newLearner(s).LearnGame(context.Background(), "g1"); err != nil {
		t.Fatalf("learn: %v", err)
	}
	if len(s.factorWeights) != 0 {
		t.Fatalf("factor weights touched without citations: %+v", s.factorWeights)
	}
	if len(s.calibrations["e1/overtime"]) != 1 {
		t.Fatalf("calibration not appended")
	}
}

func TestReflect(t *testing.T) {
	s := newStubStore()
	l := newLearner(s)
	if err := l.Reflect(context.Background(), "e1", "g1", "overtime", "leaned too hard on pace"); err != nil {
		t.Fatalf("reflect: %v", err)
	}
	if err := l.Reflect(context.Background(), "e1", "g1", "overtime", ""); err != nil {
		t.Fatalf("empty reflect: %v", err)
	}
	if len(s.notes) != 1 {
		t.Fatalf("got %d notes, want 1", len(s.notes))
	}
}
