package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Assertion is one structured per-category prediction by one expert for one
// game. Exactly one assertion may exist per (expert, game, category, subject);
// the row is immutable once grading has begun.
type Assertion struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	BundleID string `gorm:"type:varchar(40);not null;index"`

	ExpertID string `gorm:"type:varchar(60);not null;uniqueIndex:idx_assertion_identity;index"`
	GameID   string `gorm:"type:varchar(60);not null;uniqueIndex:idx_assertion_identity;index"`
	Category string `gorm:"type:varchar(60);not null;uniqueIndex:idx_assertion_identity;index"`
	Subject  string `gorm:"type:varchar(60);not null;uniqueIndex:idx_assertion_identity"`

	PredType string `gorm:"type:varchar(10);not null"`

	ValueBool *bool    `gorm:"type:boolean"`
	ValueEnum *string  `gorm:"type:varchar(60)"`
	ValueNum  *float64 `gorm:"type:double precision"`

	Confidence float64         `gorm:"not null"`
	StakeUnits decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`

	OddsFormat string `gorm:"type:varchar(12);not null;default:'decimal'"`
	OddsValue  string `gorm:"type:varchar(20);not null;default:'2.0'"`

	// Why holds the memory provenance pointers supplied by the drafting
	// agent: a JSON list of {memory_id, weight}.
	Why datatypes.JSON `gorm:"type:jsonb"`

	Graded bool `gorm:"not null;default:false;index"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Assertion) TableName() string {
	return "assertions"
}

// WhyFactor is the decoded shape of one Why entry.
type WhyFactor struct {
	MemoryID string  `json:"memory_id"`
	Weight   float64 `json:"weight"`
}

const (
	PredTypeBinary  = "binary"
	PredTypeEnum    = "enum"
	PredTypeNumeric = "numeric"
)
