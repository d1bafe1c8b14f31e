package models

import "time"

// CouncilSeat records one expert's selected, weighted participation in the
// platform consensus for one prediction family on one game. Written once by
// the selector and never mutated; this is where influence on the platform
// output is locked in.
type CouncilSeat struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	GameID   string `gorm:"type:varchar(60);not null;uniqueIndex:idx_seat_identity;index"`
	Family   string `gorm:"type:varchar(30);not null;uniqueIndex:idx_seat_identity;index"`
	ExpertID string `gorm:"type:varchar(60);not null;uniqueIndex:idx_seat_identity"`

	Rank      int     `gorm:"not null"`
	SeatScore float64 `gorm:"not null"`

	ROIScore        float64 `gorm:"column:roi_score;not null"`
	AccuracyScore   float64 `gorm:"not null"`
	CalibrationErr  float64 `gorm:"not null"`
	BankrollRatio   float64 `gorm:"not null"`
	StakeIntensity  float64 `gorm:"not null"`
	DiversityBonus  float64 `gorm:"not null"`
	Weight          float64 `gorm:"not null"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (CouncilSeat) TableName() string {
	return "council_seats"
}
