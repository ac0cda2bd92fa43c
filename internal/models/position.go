package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Position struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement"`
	Symbol string `gorm:"type:varchar(20);not null;index"`

	Quantity   decimal.Decimal  `gorm:"type:numeric(30,10);not null;default:0"`
	EntryPrice decimal.Decimal  `gorm:"type:numeric(20,10);not null;default:0"`
	ExitPrice  *decimal.Decimal `gorm:"type:numeric(20,10)"`

	StopLoss   decimal.Decimal `gorm:"type:numeric(20,10);not null;default:0"`
	TakeProfit decimal.Decimal `gorm:"type:numeric(20,10);not null;default:0"`

	RealizedPnL decimal.Decimal `gorm:"column:realized_pnl;type:numeric(30,10);not null;default:0"`

	Status   string     `gorm:"type:varchar(20);not null;default:'open';index"`
	OpenedAt time.Time  `gorm:"type:timestamptz;not null"`
	ClosedAt *time.Time `gorm:"type:timestamptz"`

	// How the position ended: signal, stop_loss, take_profit.
	CloseReason string `gorm:"type:varchar(20);not null;default:''"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Position) TableName() string {
	return "positions"
}
