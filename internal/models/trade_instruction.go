package models

import (
	"time"

	"gorm.io/datatypes"
)

// TradeInstruction is a manual-execution order waiting for a human operator.
// Payload holds the exact JSON handed to the operator so the instruction
// round-trips byte-for-byte through the API.
type TradeInstruction struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement"`
	Symbol string `gorm:"type:varchar(20);not null;index"`

	Action  string         `gorm:"type:varchar(10);not null"`
	Payload datatypes.JSON `gorm:"type:jsonb;not null"`

	Status  string     `gorm:"type:varchar(20);not null;default:'queued';index"`
	AckedAt *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (TradeInstruction) TableName() string {
	return "trade_instructions"
}
