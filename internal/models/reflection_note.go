package models

import "time"

// ReflectionNote is an optional natural-language annotation attached to a
// learning pass. It carries no algorithmic weight.
type ReflectionNote struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	ExpertID string `gorm:"type:varchar(60);not null;index"`
	GameID   string `gorm:"type:varchar(60);not null;index"`
	Category string `gorm:"type:varchar(60)"`

	Note string `gorm:"type:text;not null"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (ReflectionNote) TableName() string {
	return "reflection_notes"
}
