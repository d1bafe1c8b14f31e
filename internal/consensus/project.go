package consensus

import (
	"math"
	"sort"

	"council/internal/reason"
	"council/internal/registry"
)

// Projector solves the coherence projection: the minimum squared adjustment
// to the aggregated numeric vector that satisfies the registry's linear
// equality constraints, with winner/margin sign coupling applied as a soft
// penalty. Individual assertions are never touched.
type Projector struct {
	Tolerance   float64
	SignPenalty float64
	// MaxRelaxations caps how many constraints may be dropped before the
	// projector gives up. Zero means up to the full constraint count.
	MaxRelaxations int
}

type ProjectionResult struct {
	// Adjusted maps category key to the projected value for every numeric
	// category that had an estimate.
	Adjusted           map[string]float64
	SquaredAdjustment  float64
	ConstraintsApplied int
	Relaxed            []string
}

// Project adjusts the numeric estimates in place-order-independent fashion
// and returns the adjustment applied. Constraints that reference a category
// with no estimate are skipped; if the remaining system is infeasible within
// tolerance the least-confident constraint is relaxed and the solve retried.
func (p *Projector) Project(estimates []CategoryEstimate, constraints []registry.LinearConstraint, signs []registry.SignConstraint) (ProjectionResult, error) {
	tol := p.Tolerance
	if tol <= 0 {
		tol = 1e-6
	}

	value := map[string]float64{}
	confidence := map[string]float64{}
	enumValue := map[string]string{}
	for _, est := range estimates {
		confidence[est.Category] = est.Confidence
		if est.Value != nil {
			value[est.Category] = *est.Value
		}
		if est.EnumValue != nil {
			enumValue[est.Category] = *est.EnumValue
		}
	}

	// Stable variable ordering keeps the solve deterministic.
	keys := make([]string, 0, len(value))
	for k := range value {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	index := make(map[string]int, len(keys))
	for i, k := range keys {
		index[k] = i
	}
	x0 := make([]float64, len(keys))
	for i, k := range keys {
		x0[i] = value[k]
	}

	// Keep only constraints fully covered by estimated categories.
	var active []registry.LinearConstraint
	for _, c := range constraints {
		covered := true
		for key := range c.Terms {
			if _, ok := index[key]; !ok {
				covered = false
				break
			}
		}
		if covered {
			active = append(active, c)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].Name < active[j].Name })

	result := ProjectionResult{Adjusted: map[string]float64{}}
	if len(keys) == 0 {
		return result, nil
	}

	// Soft sign terms: only engaged when the categorical winner contradicts
	// the current margin sign.
	var penalties []penaltyTerm
	for _, s := range signs {
		margin, ok := value[s.MarginKey]
		if !ok {
			continue
		}
		winner, ok := enumValue[s.EnumKey]
		if !ok {
			continue
		}
		dir := -1.0
		if winner == s.PositiveValue {
			dir = 1.0
		}
		if margin*dir >= 0 {
			continue
		}
		penalties = append(penalties, penaltyTerm{
			col:    index[s.MarginKey],
			target: dir, // pull toward a one-point win in the right direction
			weight: p.SignPenalty,
		})
	}

	maxRelax := p.MaxRelaxations
	if maxRelax <= 0 {
		maxRelax = len(active)
	}

	remaining := append([]registry.LinearConstraint(nil), active...)
	for {
		x, ok := solveProjection(x0, remaining, index, penalties)
		if ok && maxResidual(x, remaining, index) <= tol {
			for i, k := range keys {
				result.Adjusted[k] = x[i]
				d := x[i] - x0[i]
				result.SquaredAdjustment += d * d
			}
			result.ConstraintsApplied = len(remaining)
			return result, nil
		}
		if len(remaining) == 0 || len(result.Relaxed) >= maxRelax {
			return result, reason.ConstraintInfeasible("projection infeasible after relaxing %d constraints", len(result.Relaxed))
		}
		drop := leastConfidentConstraint(remaining, confidence)
		result.Relaxed = append(result.Relaxed, remaining[drop].Name)
		remaining = append(remaining[:drop], remaining[drop+1:]...)
	}
}

type penaltyTerm struct {
	col    int
	target float64
	weight float64
}

// solveProjection solves
//
//	min ||x - x0||^2 + sum_k w_k (x[c_k] - t_k)^2   s.t.  A x = b
//
// via the KKT system, using dense Gaussian elimination. The system is small:
// at most a few dozen numeric categories plus ~20 constraints.
func solveProjection(x0 []float64, constraints []registry.LinearConstraint, index map[string]int, penalties []penaltyTerm) ([]float64, bool) {
	n := len(x0)
	m := len(constraints)
	size := n + m

	mat := make([][]float64, size)
	rhs := make([]float64, size)
	for i := range mat {
		mat[i] = make([]float64, size)
	}

	// Stationarity block: (I + sum w e e^T) x + A^T lambda = x0 + sum w t e.
	for i := 0; i < n; i++ {
		mat[i][i] = 1
		rhs[i] = x0[i]
	}
	for _, p := range penalties {
		if p.weight <= 0 {
			continue
		}
		mat[p.col][p.col] += p.weight
		rhs[p.col] += p.weight * p.target
	}
	for j, c := range constraints {
		for key, coef := range c.Terms {
			col := index[key]
			mat[col][n+j] = coef
			mat[n+j][col] = coef
		}
		rhs[n+j] = c.RHS
	}

	sol, ok := solveDense(mat, rhs)
	if !ok {
		return nil, false
	}
	return sol[:n], true
}

func maxResidual(x []float64, constraints []registry.LinearConstraint, index map[string]int) float64 {
	worst := 0.0
	for _, c := range constraints {
		sum := -c.RHS
		for key, coef := range c.Terms {
			sum += coef * x[index[key]]
		}
		if r := math.Abs(sum); r > worst {
			worst = r
		}
	}
	return worst
}

// leastConfidentConstraint picks the constraint whose weakest member category
// has the lowest aggregated confidence; name order breaks ties.
func leastConfidentConstraint(constraints []registry.LinearConstraint, confidence map[string]float64) int {
	best := 0
	bestConf := math.Inf(1)
	for i, c := range constraints {
		conf := math.Inf(1)
		for key := range c.Terms {
			if v, ok := confidence[key]; ok && v < conf {
				conf = v
			}
		}
		if conf < bestConf || (conf == bestConf && c.Name < constraints[best].Name) {
			best = i
			bestConf = conf
		}
	}
	return best
}

// solveDense is Gaussian elimination with partial pivoting. Returns false on
// a singular system.
func solveDense(mat [][]float64, rhs []float64) ([]float64, bool) {
	n := len(mat)
	a := make([][]float64, n)
	for i := range a {
		a[i] = append([]float64(nil), mat[i]...)
	}
	b := append([]float64(nil), rhs...)

	for col := 0; col < n; col++ {
		pivot := col
		for row := col + 1; row < n; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil, false
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]
		for row := col + 1; row < n; row++ {
			f := a[row][col] / a[col][col]
			if f == 0 {
				continue
			}
			for k := col; k < n; k++ {
				a[row][k] -= f * a[col][k]
			}
			b[row] -= f * b[col]
		}
	}
	x := make([]float64, n)
	for row := n - 1; row >= 0; row-- {
		sum := b[row]
		for k := row + 1; k < n; k++ {
			sum -= a[row][k] * x[k]
		}
		x[row] = sum / a[row][row]
	}
	return x, true
}
