package models

import "time"

// FactorWeight is one expert's emphasis on one cited factor for one category,
// valid over [ValidFrom, ValidTo). A weight change closes the open interval
// and inserts a new row, so the history is append-only.
type FactorWeight struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	ExpertID string `gorm:"type:varchar(60);not null;index:idx_factor_weight_scope"`
	Category string `gorm:"type:varchar(60);not null;index:idx_factor_weight_scope"`
	Factor   string `gorm:"type:varchar(80);not null;index:idx_factor_weight_scope"`

	Weight float64 `gorm:"not null"`

	ValidFrom time.Time  `gorm:"type:timestamptz;not null;index"`
	ValidTo   *time.Time `gorm:"type:timestamptz;index"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (FactorWeight) TableName() string {
	return "factor_weights"
}
