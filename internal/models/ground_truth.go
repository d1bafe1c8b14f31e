package models

import "time"

// Game tracks the lifecycle of one game as seen by the engine. TruthComplete
// gates grading: the grader refuses to run until the full ground-truth event
// for the game has landed.
type Game struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement"`
	GameID string `gorm:"type:varchar(60);not null;uniqueIndex"`
	Season string `gorm:"type:varchar(20);not null;index"`

	Status        string     `gorm:"type:varchar(20);not null;default:'scheduled';index"`
	TruthComplete bool       `gorm:"not null;default:false;index"`
	TruthAt       *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Game) TableName() string {
	return "games"
}

const (
	GameStatusScheduled = "scheduled"
	GameStatusFinal     = "final"
	GameStatusCancelled = "cancelled"
)

// GroundTruth is the category-specific actual for one game, supplied once per
// completed game as part of a single atomic truth event.
type GroundTruth struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	GameID   string `gorm:"type:varchar(60);not null;uniqueIndex:idx_truth_identity;index"`
	Category string `gorm:"type:varchar(60);not null;uniqueIndex:idx_truth_identity"`

	ActualBool *bool    `gorm:"type:boolean"`
	ActualEnum *string  `gorm:"type:varchar(60)"`
	ActualNum  *float64 `gorm:"type:double precision"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (GroundTruth) TableName() string {
	return "ground_truths"
}
