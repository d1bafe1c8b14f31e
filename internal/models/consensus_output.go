package models

import (
	"time"

	"gorm.io/datatypes"
)

// ConsensusOutput is the platform-level estimate for one category on one
// game: the raw aggregated value plus the coherence-projected value. All rows
// for a game are written in one transaction. Individual assertions are never
// touched by projection.
type ConsensusOutput struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	GameID   string `gorm:"type:varchar(60);not null;uniqueIndex:idx_consensus_identity;index"`
	Category string `gorm:"type:varchar(60);not null;uniqueIndex:idx_consensus_identity"`

	PredType string `gorm:"type:varchar(10);not null"`

	Prob      *float64 `gorm:"type:double precision"`
	EnumValue *string  `gorm:"type:varchar(60)"`
	RawValue  *float64 `gorm:"type:double precision"`
	Value     *float64 `gorm:"type:double precision"`

	Confidence float64 `gorm:"not null"`
	SeatCount  int     `gorm:"not null"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (ConsensusOutput) TableName() string {
	return "consensus_outputs"
}

// ProjectionRecord logs the adjustment the coherence projector applied to one
// game's aggregated vector, including any constraints it had to relax.
type ProjectionRecord struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement"`
	GameID string `gorm:"type:varchar(60);not null;uniqueIndex"`

	SquaredAdjustment  float64        `gorm:"not null"`
	ConstraintsApplied int            `gorm:"not null"`
	RelaxedConstraints datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (ProjectionRecord) TableName() string {
	return "projection_records"
}
