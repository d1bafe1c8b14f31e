// Package consensus combines seated experts' assertions into one platform
// estimate per category and then adjusts that estimate minimally to satisfy
// cross-category consistency constraints. Both steps are pure functions of
// their inputs: the same seats and assertions always produce bit-identical
// output.
package consensus

import (
	"math"
	"sort"

	"council/internal/models"
	"council/internal/registry"
)

// CategoryEstimate is the platform-level combined estimate for one category.
type CategoryEstimate struct {
	Category   string
	PredType   string
	Prob       *float64
	EnumValue  *string
	Value      *float64
	Confidence float64
	SeatCount  int
}

// Unestimated marks a category deliberately left without an estimate. It is
// surfaced explicitly rather than silently defaulted.
type Unestimated struct {
	Category string
	Reason   string
}

type Aggregator struct {
	Registry *registry.Registry

	// ConfidenceClamp bounds member confidences away from 0 and 1 before
	// the logit transform.
	ConfidenceClamp float64
	// DefaultSigma stands in for an expert with no numeric calibration
	// history yet, which makes its precision weight match a neutral peer.
	DefaultSigma float64
}

type member struct {
	assertion models.Assertion
	seatW     float64
	calib     *models.CalibrationState
}

// Aggregate combines the seated experts' assertions per category. Seats
// carry the family weights locked in by the selector; calibs are the latest
// calibration rows for the seated experts.
func (a *Aggregator) Aggregate(seats []models.CouncilSeat, assertions []models.Assertion, calibs []models.CalibrationState) ([]CategoryEstimate, []Unestimated) {
	if a == nil || a.Registry == nil {
		return nil, nil
	}
	clamp := a.ConfidenceClamp
	if clamp <= 0 || clamp >= 0.5 {
		clamp = 0.01
	}

	seatWeight := map[string]map[string]float64{}
	for _, seat := range seats {
		if seatWeight[seat.Family] == nil {
			seatWeight[seat.Family] = map[string]float64{}
		}
		seatWeight[seat.Family][seat.ExpertID] = seat.Weight
	}
	calibByKey := map[string]*models.CalibrationState{}
	for i := range calibs {
		c := calibs[i]
		calibByKey[c.ExpertID+"/"+c.Category] = &calibs[i]
	}
	byCategory := map[string][]models.Assertion{}
	for _, as := range assertions {
		byCategory[as.Category] = append(byCategory[as.Category], as)
	}

	var estimates []CategoryEstimate
	var skipped []Unestimated
	for _, cat := range a.Registry.All() {
		weights := seatWeight[cat.Family]
		var members []member
		for _, as := range byCategory[cat.Key] {
			w, seated := weights[as.ExpertID]
			if !seated {
				continue
			}
			members = append(members, member{
				assertion: as,
				seatW:     w,
				calib:     calibByKey[as.ExpertID+"/"+cat.Key],
			})
		}
		if len(members) == 0 {
			skipped = append(skipped, Unestimated{Category: cat.Key, Reason: "no seated assertions"})
			continue
		}
		sort.Slice(members, func(i, j int) bool {
			return members[i].assertion.ExpertID < members[j].assertion.ExpertID
		})

		est := CategoryEstimate{Category: cat.Key, PredType: cat.PredType, SeatCount: len(members)}
		switch cat.PredType {
		case models.PredTypeBinary:
			p := a.combineBinary(members, clamp)
			est.Prob = &p
		case models.PredTypeEnum:
			label, p := a.combineEnum(cat, members, clamp)
			est.EnumValue = &label
			est.Prob = &p
		case models.PredTypeNumeric:
			v := a.combineNumeric(members)
			est.Value = &v
		}
		est.Confidence = weightedConfidence(members)
		estimates = append(estimates, est)
	}
	return estimates, skipped
}

// combineBinary mixes member confidences in log-odds space. A member's
// confidence is read as P(value=true): an expert asserting false with
// confidence c contributes 1-c.
func (a *Aggregator) combineBinary(members []member, clamp float64) float64 {
	var num, den float64
	for _, m := range members {
		p := m.assertion.Confidence
		if m.assertion.ValueBool != nil && !*m.assertion.ValueBool {
			p = 1 - p
		}
		p = clampRange(p, clamp, 1-clamp)
		w := memberWeight(m)
		num += w * math.Log(p/(1-p))
		den += w
	}
	if den == 0 {
		return 0.5
	}
	return 1 / (1 + math.Exp(-num/den))
}

// combineEnum runs log-space voting per label: each member spreads its
// leftover confidence uniformly across the labels it did not pick.
func (a *Aggregator) combineEnum(cat registry.Category, members []member, clamp float64) (string, float64) {
	k := len(cat.EnumValues)
	scores := make(map[string]float64, k)
	var den float64
	for _, m := range members {
		conf := clampRange(m.assertion.Confidence, clamp, 1-clamp)
		w := memberWeight(m)
		den += w
		for _, label := range cat.EnumValues {
			p := (1 - conf) / float64(k-1)
			if m.assertion.ValueEnum != nil && *m.assertion.ValueEnum == label {
				p = conf
			}
			scores[label] += w * math.Log(p)
		}
	}
	if den == 0 {
		den = 1
	}
	// Softmax over mean log scores; argmax ties break lexically.
	var maxScore float64
	first := true
	for _, label := range cat.EnumValues {
		s := scores[label] / den
		if first || s > maxScore {
			maxScore = s
			first = false
		}
	}
	var total float64
	probs := make(map[string]float64, k)
	for _, label := range cat.EnumValues {
		p := math.Exp(scores[label]/den - maxScore)
		probs[label] = p
		total += p
	}
	best := ""
	bestP := -1.0
	for _, label := range cat.EnumValues {
		p := probs[label] / total
		probs[label] = p
		if p > bestP+1e-12 || (math.Abs(p-bestP) <= 1e-12 && (best == "" || label < best)) {
			best = label
			bestP = p
		}
	}
	return best, bestP
}

// combineNumeric is a precision-weighted mean using each expert's calibrated
// spread as inverse variance.
func (a *Aggregator) combineNumeric(members []member) float64 {
	defaultSigma := a.DefaultSigma
	if defaultSigma <= 0 {
		defaultSigma = 10
	}
	var num, den float64
	for _, m := range members {
		if m.assertion.ValueNum == nil {
			continue
		}
		sigma := defaultSigma
		if m.calib != nil && m.calib.Sigma > 0 {
			sigma = m.calib.Sigma
		}
		w := m.seatW * stakeWeight(m.assertion) / (sigma * sigma)
		num += w * *m.assertion.ValueNum
		den += w
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// memberWeight is stake x seat skill x calibration quality. Calibration
// quality grows with the Beta evidence mass so unproven experts neither
// dominate nor vanish.
func memberWeight(m member) float64 {
	quality := 0.5
	if m.calib != nil {
		n := m.calib.Alpha + m.calib.Beta
		quality = n / (n + 10)
		if quality < 0.1 {
			quality = 0.1
		}
	}
	return m.seatW * stakeWeight(m.assertion) * quality
}

func stakeWeight(as models.Assertion) float64 {
	stake, _ := as.StakeUnits.Float64()
	// Zero-stake assertions still carry an opinion, just a faint one.
	return stake + 0.25
}

func weightedConfidence(members []member) float64 {
	var num, den float64
	for _, m := range members {
		w := memberWeight(m)
		num += w * m.assertion.Confidence
		den += w
	}
	if den == 0 {
		return 0
	}
	return num / den
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
