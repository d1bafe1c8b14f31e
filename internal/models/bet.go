package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bet is derived 1:1 from an Assertion with nonzero stake. It is settled at
// most once; IdempotencyKey makes retried settlement attempts no-ops.
type Bet struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	AssertionID uint64 `gorm:"not null;uniqueIndex"`

	ExpertID string `gorm:"type:varchar(60);not null;index"`
	GameID   string `gorm:"type:varchar(60);not null;index"`
	Season   string `gorm:"type:varchar(20);not null;index"`

	Stake      decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	OddsFormat string          `gorm:"type:varchar(12);not null"`
	OddsValue  string          `gorm:"type:varchar(20);not null"`

	IdempotencyKey string `gorm:"type:varchar(40);not null;uniqueIndex"`

	Settled bool            `gorm:"not null;default:false;index"`
	Outcome string          `gorm:"type:varchar(10);not null;default:'pending';index"`
	PnL     decimal.Decimal `gorm:"column:pnl;type:numeric(30,10);not null;default:0"`

	SettledAt *time.Time `gorm:"type:timestamptz"`
	CreatedAt time.Time  `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time  `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Bet) TableName() string {
	return "bets"
}

const (
	BetOutcomePending = "pending"
	BetOutcomeWin     = "win"
	BetOutcomeLoss    = "loss"
	BetOutcomePush    = "push"
)
