package consensus

import (
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"council/internal/models"
	"council/internal/registry"
)

func newAggregator() *Aggregator {
	return &Aggregator{
		Registry:        registry.Default(),
		ConfidenceClamp: 0.01,
		DefaultSigma:    10,
	}
}

func seat(family, expert string, weight float64) models.CouncilSeat {
	return models.CouncilSeat{Family: family, ExpertID: expert, Weight: weight}
}

func binaryAssertion(expert, category string, value bool, conf float64, stake float64) models.Assertion {
	v := value
	return models.Assertion{
		ExpertID:   expert,
		Category:   category,
		PredType:   models.PredTypeBinary,
		ValueBool:  &v,
		Confidence: conf,
		StakeUnits: decimal.NewFromFloat(stake),
	}
}

func numericAssertion(expert, category string, value, conf, stake float64) models.Assertion {
	v := value
	return models.Assertion{
		ExpertID:   expert,
		Category:   category,
		PredType:   models.PredTypeNumeric,
		ValueNum:   &v,
		Confidence: conf,
		StakeUnits: decimal.NewFromFloat(stake),
	}
}

func TestAggregateBinaryLogOdds(t *testing.T) {
	a := newAggregator()
	seats := []models.CouncilSeat{
		seat(registry.FamilyTotals, "e1", 0.5),
		seat(registry.FamilyTotals, "e2", 0.5),
	}
	asserts := []models.Assertion{
		binaryAssertion("e1", "overtime", true, 0.9, 5),
		binaryAssertion("e2", "overtime", false, 0.9, 5),
	}
	ests, _ := a.Aggregate(seats, asserts, nil)
	var got *CategoryEstimate
	for i := range ests {
		if ests[i].Category == "overtime" {
			got = &ests[i]
		}
	}
	if got == nil || got.Prob == nil {
		t.Fatalf("overtime not estimated")
	}
	// Symmetric disagreement with equal weights lands on 0.5.
	if *got.Prob < 0.499 || *got.Prob > 0.501 {
		t.Fatalf("prob = %v, want ~0.5", *got.Prob)
	}
	if got.SeatCount != 2 {
		t.Fatalf("seat count %d, want 2", got.SeatCount)
	}
}

func TestAggregateBinaryExtremesDoNotSaturate(t *testing.T) {
	a := newAggregator()
	seats := []models.CouncilSeat{
		seat(registry.FamilyTotals, "e1", 0.6),
		seat(registry.FamilyTotals, "e2", 0.4),
	}
	asserts := []models.Assertion{
		binaryAssertion("e1", "overtime", true, 1.0, 5), // clamped, not Inf
		binaryAssertion("e2", "overtime", false, 0.6, 5),
	}
	ests, _ := a.Aggregate(seats, asserts, nil)
	p := *ests[0].Prob
	if p <= 0.5 || p >= 1 {
		t.Fatalf("prob = %v, want in (0.5, 1)", p)
	}
}

func TestAggregateNumericPrecisionWeighted(t *testing.T) {
	a := newAggregator()
	seats := []models.CouncilSeat{
		seat(registry.FamilyTotals, "sharp", 0.5),
		seat(registry.FamilyTotals, "loose", 0.5),
	}
	asserts := []models.Assertion{
		numericAssertion("sharp", "game_total", 40, 0.8, 5),
		numericAssertion("loose", "game_total", 60, 0.8, 5),
	}
	calibs := []models.CalibrationState{
		{ExpertID: "sharp", Category: "game_total", Sigma: 2},
		{ExpertID: "loose", Category: "game_total", Sigma: 10},
	}
	ests, _ := a.Aggregate(seats, asserts, calibs)
	v := *ests[0].Value
	// Inverse-variance weighting pulls hard toward the sharp expert.
	if v > 45 {
		t.Fatalf("value = %v, want close to sharp expert's 40", v)
	}
	if v < 40 {
		t.Fatalf("value = %v, below both members", v)
	}
}

func TestAggregateNumericEqualFallbackWithoutCalibration(t *testing.T) {
	a := newAggregator()
	seats := []models.CouncilSeat{
		seat(registry.FamilyTotals, "e1", 0.5),
		seat(registry.FamilyTotals, "e2", 0.5),
	}
	asserts := []models.Assertion{
		numericAssertion("e1", "game_total", 40, 0.8, 5),
		numericAssertion("e2", "game_total", 60, 0.8, 5),
	}
	ests, _ := a.Aggregate(seats, asserts, nil)
	v := *ests[0].Value
	if v < 49.99 || v > 50.01 {
		t.Fatalf("value = %v, want 50 under equal weighting", v)
	}
}

func TestAggregateUnseatedCategoryExplicit(t *testing.T) {
	a := newAggregator()
	// Seats exist only for totals; every other category must surface as
	// unestimated rather than defaulting.
	seats := []models.CouncilSeat{seat(registry.FamilyTotals, "e1", 1)}
	asserts := []models.Assertion{numericAssertion("e1", "game_total", 44, 0.7, 3)}
	ests, skipped := a.Aggregate(seats, asserts, nil)
	if len(ests) != 1 {
		t.Fatalf("got %d estimates, want 1", len(ests))
	}
	if len(skipped)+len(ests) != a.Registry.Count() {
		t.Fatalf("estimates+skipped = %d, want %d", len(skipped)+len(ests), a.Registry.Count())
	}
	for _, u := range skipped {
		if u.Reason == "" {
			t.Fatalf("skipped category %s has no reason", u.Category)
		}
	}
}

func TestAggregateDeterministic(t *testing.T) {
	a := newAggregator()
	seats := []models.CouncilSeat{
		seat(registry.FamilySpread, "e1", 0.4),
		seat(registry.FamilySpread, "e2", 0.35),
		seat(registry.FamilySpread, "e3", 0.25),
	}
	home := "home"
	away := "away"
	asserts := []models.Assertion{
		{ExpertID: "e1", Category: "game_winner", PredType: models.PredTypeEnum, ValueEnum: &home, Confidence: 0.7, StakeUnits: decimal.NewFromInt(4)},
		{ExpertID: "e2", Category: "game_winner", PredType: models.PredTypeEnum, ValueEnum: &away, Confidence: 0.6, StakeUnits: decimal.NewFromInt(2)},
		{ExpertID: "e3", Category: "game_winner", PredType: models.PredTypeEnum, ValueEnum: &home, Confidence: 0.55, StakeUnits: decimal.NewFromInt(1)},
		numericAssertion("e1", "winning_margin", 6, 0.7, 4),
		numericAssertion("e2", "winning_margin", -3, 0.6, 2),
	}
	first, firstSkipped := a.Aggregate(seats, asserts, nil)
	for i := 0; i < 10; i++ {
		again, againSkipped := a.Aggregate(seats, asserts, nil)
		if !reflect.DeepEqual(first, again) || !reflect.DeepEqual(firstSkipped, againSkipped) {
			t.Fatalf("aggregation not deterministic on run %d", i)
		}
	}
}
