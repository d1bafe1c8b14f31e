package models

import "time"

// Outcome is the graded result of one assertion. Immutable once written; a
// game's outcomes are written in a single transaction so partial grading is
// never observable.
type Outcome struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	AssertionID uint64 `gorm:"not null;uniqueIndex"`

	ExpertID string `gorm:"type:varchar(60);not null;index"`
	GameID   string `gorm:"type:varchar(60);not null;index"`
	Category string `gorm:"type:varchar(60);not null;index"`

	IsCorrect *bool    `gorm:"type:boolean"`
	Error     *float64 `gorm:"type:double precision"`
	Grade     float64  `gorm:"not null"`
	Brier     *float64 `gorm:"type:double precision"`

	// Learned flips once the calibration update for this outcome has
	// committed; re-running the learner over the game skips it.
	Learned bool `gorm:"not null;default:false;index"`

	GradedAt  time.Time `gorm:"type:timestamptz;not null;index"`
	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (Outcome) TableName() string {
	return "outcomes"
}
