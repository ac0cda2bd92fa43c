package models

import (
	"time"
)

// DecisionLog records every per-symbol cycle outcome, including holds, so no
// decision is ever silently dropped.
type DecisionLog struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement"`
	Symbol string `gorm:"type:varchar(20);not null;index"`

	CycleAt time.Time `gorm:"type:timestamptz;not null;index"`

	Action string `gorm:"type:varchar(10);not null"`
	Reason string `gorm:"type:varchar(40);not null"`

	Confidence   *float64 `gorm:""`
	ModelVersion int      `gorm:"not null;default:0"`
	SizeFraction float64  `gorm:"not null;default:0"`
	Forced       bool     `gorm:"not null;default:false"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (DecisionLog) TableName() string {
	return "decision_logs"
}
