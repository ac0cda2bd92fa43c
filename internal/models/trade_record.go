package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TradeRecord struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement"`
	Symbol string `gorm:"type:varchar(20);not null;index"`

	Side string `gorm:"type:varchar(10);not null"`

	Quantity decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	Price    decimal.Decimal `gorm:"type:numeric(20,10);not null"`

	Channel      string  `gorm:"type:varchar(20);not null"`
	Confidence   float64 `gorm:"not null;default:0"`
	ModelVersion int     `gorm:"not null;default:0"`
	Reason       string  `gorm:"type:varchar(40);not null;default:''"`

	// Outcome starts pending and is resolved exactly once by the outcome
	// tracker when the round-trip closes.
	Outcome        string           `gorm:"type:varchar(10);not null;default:'pending';index"`
	RealizedReturn *decimal.Decimal `gorm:"type:numeric(20,10)"`
	ResolvedAt     *time.Time       `gorm:"type:timestamptz"`

	PositionID *uint64   `gorm:"index"`
	ExecutedAt time.Time `gorm:"type:timestamptz;not null;index"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (TradeRecord) TableName() string {
	return "trade_records"
}
