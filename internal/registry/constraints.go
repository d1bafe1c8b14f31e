package registry

// LinearConstraint is one cross-category consistency requirement of the form
// sum(Terms[key] * x[key]) = RHS over the numeric consensus vector.
type LinearConstraint struct {
	Name  string
	Terms map[string]float64
	RHS   float64
}

// SignConstraint couples a categorical winner with the sign of a numeric
// margin. It is enforced as a soft penalty, never a hard equality.
type SignConstraint struct {
	Name      string
	EnumKey   string
	MarginKey string
	// PositiveValue is the enum value that implies MarginKey >= 0.
	PositiveValue string
}

// CoherenceConstraints returns the platform's fixed consistency constraint
// set, expressed over registry keys. Constraints whose categories were left
// unestimated are skipped by the projector at solve time.
func CoherenceConstraints() []LinearConstraint {
	var cons []LinearConstraint

	add := func(name string, terms map[string]float64) {
		cons = append(cons, LinearConstraint{Name: name, Terms: terms})
	}

	// Per-quarter: home + away = total.
	for _, q := range []string{"q1", "q2", "q3", "q4"} {
		add(q+"_sum", map[string]float64{
			q + "_home_points":  1,
			q + "_away_points":  1,
			q + "_total_points": -1,
		})
	}

	// Halves roll up from quarters.
	halves := map[string][2]string{"h1": {"q1", "q2"}, "h2": {"q3", "q4"}}
	for _, h := range []string{"h1", "h2"} {
		qs := halves[h]
		for _, side := range []string{"home_points", "away_points", "total_points"} {
			add(h+"_"+side+"_rollup", map[string]float64{
				qs[0] + "_" + side: 1,
				qs[1] + "_" + side: 1,
				h + "_" + side:     -1,
			})
		}
	}

	// Team totals roll up from halves; game total from team totals.
	add("home_total_rollup", map[string]float64{
		"h1_home_points":  1,
		"h2_home_points":  1,
		"home_team_total": -1,
	})
	add("away_total_rollup", map[string]float64{
		"h1_away_points":  1,
		"h2_away_points":  1,
		"away_team_total": -1,
	})
	add("game_total_sum", map[string]float64{
		"home_team_total": 1,
		"away_team_total": 1,
		"game_total":      -1,
	})

	// Margin is consistent with team totals.
	add("margin_consistency", map[string]float64{
		"home_team_total": 1,
		"away_team_total": -1,
		"winning_margin":  -1,
	})

	return cons
}

// WinnerSignConstraints returns the soft sign couplings.
func WinnerSignConstraints() []SignConstraint {
	return []SignConstraint{
		{
			Name:          "winner_margin_sign",
			EnumKey:       "game_winner",
			MarginKey:     "winning_margin",
			PositiveValue: "home",
		},
	}
}
