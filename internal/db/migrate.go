package db

import (
	"council/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.Game{},
		&models.GroundTruth{},
		&models.Assertion{},
		&models.Bet{},
		&models.Bankroll{},
		&models.Outcome{},
		&models.CouncilSeat{},
		&models.ConsensusOutput{},
		&models.ProjectionRecord{},
		&models.CalibrationState{},
		&models.FactorWeight{},
		&models.ReflectionNote{},
	)
}
