// Package council picks the seated experts for each prediction family on a
// game. Seats are written once and never mutated: selection is the point at
// which influence on the platform output is locked in.
package council

import (
	"context"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"council/internal/config"
	"council/internal/models"
	"council/internal/registry"
	"council/internal/repository"
)

// Store is the slice of the repository the selector needs.
type Store interface {
	HasCouncilSeats(ctx context.Context, gameID, family string) (bool, error)
	InsertCouncilSeats(ctx context.Context, items []models.CouncilSeat) error
	ListExpertSubmissions(ctx context.Context, gameID string, categories []string) ([]repository.ExpertSubmission, error)
	TrailingPerf(ctx context.Context, categories []string, since time.Time) ([]repository.TrailingPerfRow, error)
	ListRecentResiduals(ctx context.Context, categories []string, since time.Time, depth int) ([]repository.ResidualRow, error)
	ListBankrolls(ctx context.Context, params repository.ListBankrollsParams) ([]models.Bankroll, error)
}

type Selector struct {
	Store    Store
	Registry *registry.Registry
	Logger   *zap.Logger
	Config   config.CouncilConfig
	Season   string
}

type candidate struct {
	expertID         string
	perf             repository.TrailingPerfRow
	bankrollRatio    float64
	active           bool
	firstSubmittedAt time.Time
	residuals        map[string]float64
}

// SelectForGame ranks eligible experts per family and writes the seat set for
// every family that has submissions and no locked-in seats yet.
func (s *Selector) SelectForGame(ctx context.Context, gameID string) ([]models.CouncilSeat, error) {
	if s == nil || s.Store == nil || s.Registry == nil {
		return nil, nil
	}
	since := time.Now().UTC().Add(-s.Config.TrailingWindow)

	bankrolls, err := s.Store.ListBankrolls(ctx, repository.ListBankrollsParams{
		Limit:  500,
		Season: &s.Season,
	})
	if err != nil {
		return nil, err
	}
	rollByExpert := make(map[string]models.Bankroll, len(bankrolls))
	for _, b := range bankrolls {
		rollByExpert[b.ExpertID] = b
	}

	var written []models.CouncilSeat
	for _, family := range s.Registry.Families() {
		locked, err := s.Store.HasCouncilSeats(ctx, gameID, family)
		if err != nil {
			return nil, err
		}
		if locked {
			continue
		}
		categories := s.Registry.KeysByFamily(family)
		subs, err := s.Store.ListExpertSubmissions(ctx, gameID, categories)
		if err != nil {
			return nil, err
		}
		if len(subs) == 0 {
			continue
		}
		perf, err := s.Store.TrailingPerf(ctx, categories, since)
		if err != nil {
			return nil, err
		}
		perfByExpert := make(map[string]repository.TrailingPerfRow, len(perf))
		for _, row := range perf {
			perfByExpert[row.ExpertID] = row
		}
		residualRows, err := s.Store.ListRecentResiduals(ctx, categories, since, s.Config.ResidualDepth)
		if err != nil {
			return nil, err
		}
		residuals := map[string]map[string]float64{}
		for _, row := range residualRows {
			if residuals[row.ExpertID] == nil {
				residuals[row.ExpertID] = map[string]float64{}
			}
			residuals[row.ExpertID][row.GameID] = row.Residual
		}

		cands := make([]candidate, 0, len(subs))
		for _, sub := range subs {
			roll, ok := rollByExpert[sub.ExpertID]
			ratio := 1.0
			active := false
			if ok {
				active = roll.IsActive
				if start, _ := roll.StartingBankroll.Float64(); start > 0 {
					cur, _ := roll.Bankroll.Float64()
					ratio = cur / start
				}
			}
			cands = append(cands, candidate{
				expertID:         sub.ExpertID,
				perf:             perfByExpert[sub.ExpertID],
				bankrollRatio:    ratio,
				active:           active,
				firstSubmittedAt: sub.FirstSubmittedAt,
				residuals:        residuals[sub.ExpertID],
			})
		}

		seats := s.rankFamily(cands)
		for i := range seats {
			seats[i].GameID = gameID
			seats[i].Family = family
		}
		if len(seats) == 0 {
			continue
		}
		if err := s.Store.InsertCouncilSeats(ctx, seats); err != nil {
			return nil, err
		}
		if s.Logger != nil {
			s.Logger.Info("council seats locked",
				zap.String("game_id", gameID),
				zap.String("family", family),
				zap.Int("seats", len(seats)),
			)
		}
		written = append(written, seats...)
	}
	return written, nil
}

// rankFamily applies the composite seat score with a greedy diversity bonus:
// each pick's diversity term reflects how uncorrelated its recent errors are
// with the experts already seated.
func (s *Selector) rankFamily(cands []candidate) []models.CouncilSeat {
	minSamples := s.Config.MinSamples
	if minSamples <= 0 {
		minSamples = 10
	}
	eligible := make([]candidate, 0, len(cands))
	for _, c := range cands {
		if !c.active {
			continue
		}
		if c.perf.Samples < int64(minSamples) {
			continue
		}
		eligible = append(eligible, c)
	}
	if len(eligible) == 0 {
		return nil
	}

	seatCount := s.Config.Seats
	if seatCount <= 0 {
		seatCount = 5
	}

	var seats []models.CouncilSeat
	var seated []candidate
	remaining := append([]candidate(nil), eligible...)
	for len(seats) < seatCount && len(remaining) > 0 {
		best := -1
		bestSeat := models.CouncilSeat{}
		for i, c := range remaining {
			seat := s.scoreCandidate(c, seated)
			if best < 0 || seatLess(bestSeat, seat, remaining[best], c) {
				best = i
				bestSeat = seat
			}
		}
		bestSeat.Rank = len(seats) + 1
		seats = append(seats, bestSeat)
		seated = append(seated, remaining[best])
		remaining = append(remaining[:best], remaining[best+1:]...)
	}

	// Normalize seat weights over the selected set. Scores can go negative
	// on poor trailing records, so floor at a small epsilon first.
	total := 0.0
	for i := range seats {
		w := seats[i].SeatScore
		if w < 1e-6 {
			w = 1e-6
		}
		seats[i].Weight = w
		total += w
	}
	for i := range seats {
		seats[i].Weight /= total
	}
	return seats
}

func (s *Selector) scoreCandidate(c candidate, seated []candidate) models.CouncilSeat {
	calErr := clamp01(c.perf.CalibrationError)
	stakeIntensity := c.perf.AvgStake / (c.perf.AvgStake + 1)
	diversity := 1.0
	for _, other := range seated {
		corr := residualCorrelation(c.residuals, other.residuals)
		if d := 1 - math.Abs(corr); d < diversity {
			diversity = d
		}
	}

	score := s.Config.WeightROI*c.perf.ROI +
		s.Config.WeightAccuracy*c.perf.Accuracy +
		s.Config.WeightCalib*(1-calErr) +
		s.Config.WeightBankroll*c.bankrollRatio +
		s.Config.WeightStake*stakeIntensity +
		s.Config.WeightDiversity*diversity

	return models.CouncilSeat{
		ExpertID:       c.expertID,
		SeatScore:      score,
		ROIScore:       c.perf.ROI,
		AccuracyScore:  c.perf.Accuracy,
		CalibrationErr: calErr,
		BankrollRatio:  c.bankrollRatio,
		StakeIntensity: stakeIntensity,
		DiversityBonus: diversity,
	}
}

// seatLess reports whether challenger should replace current as the best
// pick. Ties break on lower calibration error, then earlier first submission,
// then expert id for full determinism.
func seatLess(current, challenger models.CouncilSeat, currentCand, challengerCand candidate) bool {
	const eps = 1e-9
	if math.Abs(challenger.SeatScore-current.SeatScore) > eps {
		return challenger.SeatScore > current.SeatScore
	}
	if math.Abs(challenger.CalibrationErr-current.CalibrationErr) > eps {
		return challenger.CalibrationErr < current.CalibrationErr
	}
	if !challengerCand.firstSubmittedAt.Equal(currentCand.firstSubmittedAt) {
		return challengerCand.firstSubmittedAt.Before(currentCand.firstSubmittedAt)
	}
	return challenger.ExpertID < current.ExpertID
}

// residualCorrelation is the Pearson correlation of two experts' residuals
// over the games they have in common. Fewer than three common games gives no
// signal and reads as uncorrelated.
func residualCorrelation(a, b map[string]float64) float64 {
	var keys []string
	for k := range a {
		if _, ok := b[k]; ok {
			keys = append(keys, k)
		}
	}
	if len(keys) < 3 {
		return 0
	}
	sort.Strings(keys)

	n := float64(len(keys))
	var meanA, meanB float64
	for _, k := range keys {
		meanA += a[k]
		meanB += b[k]
	}
	meanA /= n
	meanB /= n

	var cov, varA, varB float64
	for _, k := range keys {
		da := a[k] - meanA
		db := b[k] - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0
	}
	return cov / math.Sqrt(varA*varB)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
