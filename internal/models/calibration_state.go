package models

import "time"

// CalibrationState is one version of an expert's per-category calibration.
// Rows are append-only: the learner inserts a new version instead of mutating
// the previous one, so the full timeline stays queryable. Binary/enum
// categories use the Beta(alpha,beta) pair; numeric categories use the EMA
// bias Mu and spread Sigma.
type CalibrationState struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	ExpertID string `gorm:"type:varchar(60);not null;uniqueIndex:idx_calibration_version;index"`
	Category string `gorm:"type:varchar(60);not null;uniqueIndex:idx_calibration_version;index"`
	Version  int    `gorm:"not null;uniqueIndex:idx_calibration_version"`

	Alpha float64 `gorm:"not null;default:1"`
	Beta  float64 `gorm:"not null;default:1"`

	Mu    float64 `gorm:"not null;default:0"`
	Sigma float64 `gorm:"not null;default:0"`

	Samples int `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (CalibrationState) TableName() string {
	return "calibration_states"
}
