// Package registry holds the fixed category registry: every prediction
// category the platform accepts, its family, subject, value type, and the
// per-category grading kernel width for numeric categories. The registry is
// the single source of truth for bundle validation and for the coherence
// constraints between categories.
package registry

import (
	"fmt"
	"sort"
)

const (
	FamilySpread      = "spread"
	FamilyTotals      = "totals"
	FamilyQuarters    = "quarters"
	FamilyTeamProps   = "team_props"
	FamilyPlayerProps = "player_props"
	FamilyLive        = "live"
)

const (
	SubjectHome   = "home"
	SubjectAway   = "away"
	SubjectGame   = "game"
	SubjectPlayer = "player"
)

type Category struct {
	Key        string
	Family     string
	Subject    string
	PredType   string
	EnumValues []string
	// Sigma is the fixed Gaussian grading kernel width for numeric
	// categories. It is a registry constant, not the expert's learned
	// spread, so grades stay comparable across experts.
	Sigma float64
}

type Registry struct {
	cats  []Category
	byKey map[string]Category
}

func New(cats []Category) *Registry {
	byKey := make(map[string]Category, len(cats))
	for _, c := range cats {
		byKey[c.Key] = c
	}
	return &Registry{cats: cats, byKey: byKey}
}

// Default returns the platform registry: 83 categories across six families.
func Default() *Registry {
	return New(defaultCategories())
}

func (r *Registry) Count() int { return len(r.cats) }

func (r *Registry) Get(key string) (Category, bool) {
	c, ok := r.byKey[key]
	return c, ok
}

// All returns categories in stable key order.
func (r *Registry) All() []Category {
	out := make([]Category, len(r.cats))
	copy(out, r.cats)
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (r *Registry) Families() []string {
	return []string{FamilySpread, FamilyTotals, FamilyQuarters, FamilyTeamProps, FamilyPlayerProps, FamilyLive}
}

func (r *Registry) CategoriesByFamily(family string) []Category {
	var out []Category
	for _, c := range r.All() {
		if c.Family == family {
			out = append(out, c)
		}
	}
	return out
}

func (r *Registry) KeysByFamily(family string) []string {
	cats := r.CategoriesByFamily(family)
	keys := make([]string, 0, len(cats))
	for _, c := range cats {
		keys = append(keys, c.Key)
	}
	return keys
}

// ValidateValue checks one typed value against its category definition.
func (r *Registry) ValidateValue(cat Category, predType string, boolV *bool, enumV *string, numV *float64) error {
	if predType != cat.PredType {
		return fmt.Errorf("category %s expects pred_type %s, got %s", cat.Key, cat.PredType, predType)
	}
	switch cat.PredType {
	case "binary":
		if boolV == nil {
			return fmt.Errorf("category %s: missing binary value", cat.Key)
		}
	case "enum":
		if enumV == nil {
			return fmt.Errorf("category %s: missing enum value", cat.Key)
		}
		allowed := false
		for _, v := range cat.EnumValues {
			if v == *enumV {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("category %s: enum value %q not in %v", cat.Key, *enumV, cat.EnumValues)
		}
	case "numeric":
		if numV == nil {
			return fmt.Errorf("category %s: missing numeric value", cat.Key)
		}
	default:
		return fmt.Errorf("category %s: unknown pred_type %s", cat.Key, cat.PredType)
	}
	return nil
}

func defaultCategories() []Category {
	var cats []Category

	num := func(key, family, subject string, sigma float64) {
		cats = append(cats, Category{Key: key, Family: family, Subject: subject, PredType: "numeric", Sigma: sigma})
	}
	bin := func(key, family, subject string) {
		cats = append(cats, Category{Key: key, Family: family, Subject: subject, PredType: "binary"})
	}
	enum := func(key, family, subject string, values ...string) {
		cats = append(cats, Category{Key: key, Family: family, Subject: subject, PredType: "enum", EnumValues: values})
	}

	// Quarters: per-quarter and per-half scoring lines.
	for _, q := range []string{"q1", "q2", "q3", "q4"} {
		num(q+"_home_points", FamilyQuarters, SubjectHome, 4.0)
		num(q+"_away_points", FamilyQuarters, SubjectAway, 4.0)
		num(q+"_total_points", FamilyQuarters, SubjectGame, 6.0)
	}
	for _, h := range []string{"h1", "h2"} {
		num(h+"_home_points", FamilyQuarters, SubjectHome, 6.0)
		num(h+"_away_points", FamilyQuarters, SubjectAway, 6.0)
		num(h+"_total_points", FamilyQuarters, SubjectGame, 8.0)
	}

	// Totals.
	num("game_total", FamilyTotals, SubjectGame, 10.0)
	num("home_team_total", FamilyTotals, SubjectHome, 7.0)
	num("away_team_total", FamilyTotals, SubjectAway, 7.0)
	bin("game_total_over", FamilyTotals, SubjectGame)
	enum("highest_scoring_quarter", FamilyTotals, SubjectGame, "q1", "q2", "q3", "q4")
	bin("overtime", FamilyTotals, SubjectGame)

	// Spread.
	enum("game_winner", FamilySpread, SubjectGame, "home", "away")
	num("winning_margin", FamilySpread, SubjectGame, 7.5)
	bin("home_covers_spread", FamilySpread, SubjectHome)
	bin("double_digit_win", FamilySpread, SubjectGame)
	bin("comeback_win", FamilySpread, SubjectGame)
	bin("wire_to_wire", FamilySpread, SubjectGame)

	// Team props.
	for _, side := range []string{"home", "away"} {
		subject := SubjectHome
		if side == "away" {
			subject = SubjectAway
		}
		num(side+"_touchdowns", FamilyTeamProps, subject, 1.2)
		num(side+"_field_goals", FamilyTeamProps, subject, 1.0)
		num(side+"_turnovers", FamilyTeamProps, subject, 1.0)
		num(side+"_sacks", FamilyTeamProps, subject, 1.2)
		num(side+"_penalties", FamilyTeamProps, subject, 2.0)
		num(side+"_first_downs", FamilyTeamProps, subject, 3.5)
	}
	enum("first_team_to_score", FamilyTeamProps, SubjectGame, "home", "away")
	enum("last_team_to_score", FamilyTeamProps, SubjectGame, "home", "away")
	enum("most_penalized_team", FamilyTeamProps, SubjectGame, "home", "away")

	// Player props, keyed by side and role.
	for _, side := range []string{"home", "away"} {
		num(side+"_qb_passing_yards", FamilyPlayerProps, SubjectPlayer, 45.0)
		num(side+"_qb_passing_tds", FamilyPlayerProps, SubjectPlayer, 0.9)
		num(side+"_qb_interceptions", FamilyPlayerProps, SubjectPlayer, 0.8)
		num(side+"_qb_rushing_yards", FamilyPlayerProps, SubjectPlayer, 12.0)
		num(side+"_rb_rushing_yards", FamilyPlayerProps, SubjectPlayer, 25.0)
		num(side+"_rb_rushing_tds", FamilyPlayerProps, SubjectPlayer, 0.7)
		num(side+"_rb_receptions", FamilyPlayerProps, SubjectPlayer, 1.6)
		num(side+"_wr1_receiving_yards", FamilyPlayerProps, SubjectPlayer, 22.0)
		num(side+"_wr1_receptions", FamilyPlayerProps, SubjectPlayer, 1.5)
		num(side+"_wr1_receiving_tds", FamilyPlayerProps, SubjectPlayer, 0.6)
		num(side+"_te_receiving_yards", FamilyPlayerProps, SubjectPlayer, 16.0)
		num(side+"_te_receptions", FamilyPlayerProps, SubjectPlayer, 1.4)
		num(side+"_kicker_points", FamilyPlayerProps, SubjectPlayer, 3.0)
		num(side+"_defense_sacks", FamilyPlayerProps, SubjectPlayer, 1.2)
	}

	// Live.
	for _, q := range []string{"q1", "q2", "q3", "q4"} {
		enum(q+"_leader", FamilyLive, SubjectGame, "home", "away", "tied")
	}
	enum("halftime_leader", FamilyLive, SubjectGame, "home", "away", "tied")
	num("lead_changes", FamilyLive, SubjectGame, 2.0)
	num("largest_lead", FamilyLive, SubjectGame, 5.0)
	enum("first_score_type", FamilyLive, SubjectGame, "td", "fg", "safety")
	enum("last_score_type", FamilyLive, SubjectGame, "td", "fg", "safety")
	num("longest_scoring_run", FamilyLive, SubjectGame, 4.0)

	return cats
}
