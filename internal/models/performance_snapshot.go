package models

import (
	"time"
)

type PerformanceSnapshot struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement"`
	Symbol string `gorm:"type:varchar(20);not null;index"`

	WindowStart time.Time `gorm:"type:timestamptz;not null"`
	WindowEnd   time.Time `gorm:"type:timestamptz;not null;index"`

	Trades      int     `gorm:"not null"`
	Wins        int     `gorm:"not null"`
	SuccessRate float64 `gorm:"not null"`

	BuyThreshold     float64 `gorm:"not null"`
	RetrainTriggered bool    `gorm:"not null;default:false"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (PerformanceSnapshot) TableName() string {
	return "performance_snapshots"
}
