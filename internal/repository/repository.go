package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"autotrader/internal/models"
)

type ListTradeRecordsParams struct {
	Symbol  *string
	Outcome *string
	Side    *string
	Since   *time.Time
	Until   *time.Time
	Limit   int
	Offset  int
	OrderBy string
	Asc     *bool
}

type ListPositionsParams struct {
	Symbol  *string
	Status  *string
	Limit   int
	Offset  int
	OrderBy string
	Asc     *bool
}

type ListModelArtifactsParams struct {
	Symbol *string
	Active *bool
	Limit  int
	Offset int
}

type ListPerformanceSnapshotsParams struct {
	Symbol *string
	Since  *time.Time
	Limit  int
	Offset int
}

type ListPortfolioSnapshotsParams struct {
	Since  *time.Time
	Until  *time.Time
	Limit  int
	Offset int
}

type ListTradeInstructionsParams struct {
	Symbol *string
	Status *string
	Limit  int
	Offset int
}

type ListDecisionLogsParams struct {
	Symbol *string
	Action *string
	Since  *time.Time
	Limit  int
	Offset int
}

type PositionsSummary struct {
	Open           int             `json:"open"`
	Closed         int             `json:"closed"`
	TotalRealized  decimal.Decimal `json:"total_realized_pnl"`
	TotalCostBasis decimal.Decimal `json:"total_cost_basis"`
}

type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Trades.
	InsertTradeRecord(ctx context.Context, item *models.TradeRecord) error
	InsertTradeRecordTx(ctx context.Context, tx *gorm.DB, item *models.TradeRecord) error
	ListTradeRecords(ctx context.Context, params ListTradeRecordsParams) ([]models.TradeRecord, error)
	CountTradeRecords(ctx context.Context, params ListTradeRecordsParams) (int64, error)
	ListPendingTradesWithClosedPositions(ctx context.Context) ([]models.TradeRecord, error)
	UpdateTradeOutcome(ctx context.Context, id uint64, outcome string, realized decimal.Decimal, at time.Time) error
	LastTradeTime(ctx context.Context, symbol string) (*time.Time, error)

	// Positions.
	InsertPositionTx(ctx context.Context, tx *gorm.DB, item *models.Position) error
	GetPositionByID(ctx context.Context, id uint64) (*models.Position, error)
	GetOpenPositionBySymbol(ctx context.Context, symbol string) (*models.Position, error)
	ListOpenPositions(ctx context.Context) ([]models.Position, error)
	ListPositions(ctx context.Context, params ListPositionsParams) ([]models.Position, error)
	CountPositions(ctx context.Context, params ListPositionsParams) (int64, error)
	ClosePositionTx(ctx context.Context, tx *gorm.DB, id uint64, exitPrice decimal.Decimal, realized decimal.Decimal, reason string, at time.Time) error
	PositionsSummary(ctx context.Context) (*PositionsSummary, error)

	// Model artifacts.
	InsertModelArtifact(ctx context.Context, item *models.ModelArtifact) error
	GetActiveModelArtifact(ctx context.Context, symbol string) (*models.ModelArtifact, error)
	GetModelArtifactByID(ctx context.Context, id uint64) (*models.ModelArtifact, error)
	ListModelArtifacts(ctx context.Context, params ListModelArtifactsParams) ([]models.ModelArtifact, error)
	MaxModelArtifactVersion(ctx context.Context, symbol string) (int, error)
	ActivateModelArtifact(ctx context.Context, id uint64) error

	// Performance and portfolio snapshots.
	InsertPerformanceSnapshot(ctx context.Context, item *models.PerformanceSnapshot) error
	ListPerformanceSnapshots(ctx context.Context, params ListPerformanceSnapshotsParams) ([]models.PerformanceSnapshot, error)
	InsertPortfolioSnapshot(ctx context.Context, item *models.PortfolioSnapshot) error
	ListPortfolioSnapshots(ctx context.Context, params ListPortfolioSnapshotsParams) ([]models.PortfolioSnapshot, error)

	// Manual trade instructions.
	InsertTradeInstruction(ctx context.Context, item *models.TradeInstruction) error
	GetTradeInstructionByID(ctx context.Context, id uint64) (*models.TradeInstruction, error)
	ListTradeInstructions(ctx context.Context, params ListTradeInstructionsParams) ([]models.TradeInstruction, error)
	AckTradeInstruction(ctx context.Context, id uint64, at time.Time) error
	ExpireTradeInstructions(ctx context.Context, olderThan time.Time) (int64, error)

	// Decision audit.
	InsertDecisionLog(ctx context.Context, item *models.DecisionLog) error
	ListDecisionLogs(ctx context.Context, params ListDecisionLogsParams) ([]models.DecisionLog, error)

	// System settings.
	GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error)
	UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error
	ListSystemSettings(ctx context.Context) ([]models.SystemSetting, error)
}
