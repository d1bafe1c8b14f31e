package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bankroll is one expert's virtual capital for one season. It is only ever
// mutated by applying a settled bet's pnl; once it crosses zero the expert is
// retired for the season and the row becomes read-only apart from IsActive.
type Bankroll struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	ExpertID string `gorm:"type:varchar(60);not null;uniqueIndex:idx_bankroll_expert_season;index"`
	Season   string `gorm:"type:varchar(20);not null;uniqueIndex:idx_bankroll_expert_season"`

	StartingBankroll decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	Bankroll         decimal.Decimal `gorm:"type:numeric(30,10);not null"`

	IsActive bool       `gorm:"not null;default:true;index"`
	BustedAt *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Bankroll) TableName() string {
	return "bankrolls"
}
