package db

import (
	"autotrader/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.TradeRecord{},
		&models.Position{},
		&models.ModelArtifact{},
		&models.PerformanceSnapshot{},
		&models.PortfolioSnapshot{},
		&models.TradeInstruction{},
		&models.DecisionLog{},
		&models.SystemSetting{},
	)
}
