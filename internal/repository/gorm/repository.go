package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"autotrader/internal/models"
	"autotrader/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- Trades -----------------------------------------------------------------

func (s *Store) InsertTradeRecord(ctx context.Context, item *models.TradeRecord) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) InsertTradeRecordTx(ctx context.Context, tx *gorm.DB, item *models.TradeRecord) error {
	if tx == nil {
		return s.InsertTradeRecord(ctx, item)
	}
	return tx.WithContext(ctx).Create(item).Error
}

func (s *Store) tradeQuery(ctx context.Context, params repository.ListTradeRecordsParams) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.TradeRecord{})
	if params.Symbol != nil && strings.TrimSpace(*params.Symbol) != "" {
		query = query.Where("symbol = ?", strings.TrimSpace(*params.Symbol))
	}
	if params.Outcome != nil && strings.TrimSpace(*params.Outcome) != "" {
		query = query.Where("outcome = ?", strings.TrimSpace(*params.Outcome))
	}
	if params.Side != nil && strings.TrimSpace(*params.Side) != "" {
		query = query.Where("side = ?", strings.TrimSpace(*params.Side))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("executed_at >= ?", *params.Since)
	}
	if params.Until != nil && !params.Until.IsZero() {
		query = query.Where("executed_at < ?", *params.Until)
	}
	return query
}

func (s *Store) ListTradeRecords(ctx context.Context, params repository.ListTradeRecordsParams) ([]models.TradeRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyOrder(s.tradeQuery(ctx, params), params.OrderBy, params.Asc, "executed_at")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.TradeRecord
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountTradeRecords(ctx context.Context, params repository.ListTradeRecordsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := s.tradeQuery(ctx, params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) ListPendingTradesWithClosedPositions(ctx context.Context) ([]models.TradeRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.TradeRecord
	err := s.db.WithContext(ctx).
		Model(&models.TradeRecord{}).
		Joins("JOIN positions ON positions.id = trade_records.position_id").
		Where("trade_records.outcome = ?", "pending").
		Where("positions.status = ?", "closed").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) UpdateTradeOutcome(ctx context.Context, id uint64, outcome string, realized decimal.Decimal, at time.Time) error {
	if s == nil || s.db == nil || id == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.TradeRecord{}).
		Where("id = ? AND outcome = ?", id, "pending").
		Updates(map[string]any{
			"outcome":         outcome,
			"realized_return": realized,
			"resolved_at":     at,
		}).Error
}

func (s *Store) LastTradeTime(ctx context.Context, symbol string) (*time.Time, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.TradeRecord
	err := s.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("executed_at desc").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ts := item.ExecutedAt
	return &ts, nil
}

// --- Positions --------------------------------------------------------------

func (s *Store) InsertPositionTx(ctx context.Context, tx *gorm.DB, item *models.Position) error {
	if item == nil {
		return nil
	}
	if tx == nil {
		tx = s.db
	}
	return tx.WithContext(ctx).Create(item).Error
}

func (s *Store) GetPositionByID(ctx context.Context, id uint64) (*models.Position, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.Position
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetOpenPositionBySymbol(ctx context.Context, symbol string) (*models.Position, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Position
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND status = ?", symbol, "open").
		Order("opened_at desc").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListOpenPositions(ctx context.Context) ([]models.Position, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Position
	if err := s.db.WithContext(ctx).Where("status = ?", "open").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) positionQuery(ctx context.Context, params repository.ListPositionsParams) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.Position{})
	if params.Symbol != nil && strings.TrimSpace(*params.Symbol) != "" {
		query = query.Where("symbol = ?", strings.TrimSpace(*params.Symbol))
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	return query
}

func (s *Store) ListPositions(ctx context.Context, params repository.ListPositionsParams) ([]models.Position, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyOrder(s.positionQuery(ctx, params), params.OrderBy, params.Asc, "opened_at")
	limit := normalizeLimit(params.Limit, 100)
	offset := normalizeOffset(params.Offset)
	var items []models.Position
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountPositions(ctx context.Context, params repository.ListPositionsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := s.positionQuery(ctx, params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) ClosePositionTx(ctx context.Context, tx *gorm.DB, id uint64, exitPrice decimal.Decimal, realized decimal.Decimal, reason string, at time.Time) error {
	if id == 0 {
		return nil
	}
	if tx == nil {
		tx = s.db
	}
	return tx.WithContext(ctx).
		Model(&models.Position{}).
		Where("id = ? AND status = ?", id, "open").
		Updates(map[string]any{
			"status":       "closed",
			"exit_price":   exitPrice,
			"realized_pnl": realized,
			"close_reason": reason,
			"closed_at":    at,
		}).Error
}

func (s *Store) PositionsSummary(ctx context.Context) (*repository.PositionsSummary, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	out := &repository.PositionsSummary{}
	var open, closed int64
	if err := s.db.WithContext(ctx).Model(&models.Position{}).Where("status = ?", "open").Count(&open).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&models.Position{}).Where("status = ?", "closed").Count(&closed).Error; err != nil {
		return nil, err
	}
	out.Open = int(open)
	out.Closed = int(closed)

	type sums struct {
		Realized  decimal.Decimal
		CostBasis decimal.Decimal
	}
	var agg sums
	err := s.db.WithContext(ctx).Model(&models.Position{}).
		Select("COALESCE(SUM(realized_pnl), 0) AS realized, COALESCE(SUM(quantity * entry_price), 0) AS cost_basis").
		Scan(&agg).Error
	if err != nil {
		return nil, err
	}
	out.TotalRealized = agg.Realized
	out.TotalCostBasis = agg.CostBasis
	return out, nil
}

// --- Model artifacts --------------------------------------------------------

func (s *Store) InsertModelArtifact(ctx context.Context, item *models.ModelArtifact) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetActiveModelArtifact(ctx context.Context, symbol string) (*models.ModelArtifact, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.ModelArtifact
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND active = ?", symbol, true).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetModelArtifactByID(ctx context.Context, id uint64) (*models.ModelArtifact, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.ModelArtifact
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListModelArtifacts(ctx context.Context, params repository.ListModelArtifactsParams) ([]models.ModelArtifact, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.ModelArtifact{})
	if params.Symbol != nil && strings.TrimSpace(*params.Symbol) != "" {
		query = query.Where("symbol = ?", strings.TrimSpace(*params.Symbol))
	}
	if params.Active != nil {
		query = query.Where("active = ?", *params.Active)
	}
	limit := normalizeLimit(params.Limit, 50)
	offset := normalizeOffset(params.Offset)
	var items []models.ModelArtifact
	if err := query.Order("symbol asc, version desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) MaxModelArtifactVersion(ctx context.Context, symbol string) (int, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var max *int
	err := s.db.WithContext(ctx).
		Model(&models.ModelArtifact{}).
		Where("symbol = ?", symbol).
		Select("MAX(version)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}

// ActivateModelArtifact swaps the active flag for the artifact's symbol in a
// single transaction so readers see either the old or the new model.
func (s *Store) ActivateModelArtifact(ctx context.Context, id uint64) error {
	if s == nil || s.db == nil || id == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item models.ModelArtifact
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&item).Error; err != nil {
			return err
		}
		now := time.Now().UTC()
		if err := tx.Model(&models.ModelArtifact{}).
			Where("symbol = ? AND active = ?", item.Symbol, true).
			Updates(map[string]any{"active": false}).Error; err != nil {
			return err
		}
		return tx.Model(&models.ModelArtifact{}).
			Where("id = ?", id).
			Updates(map[string]any{"active": true, "activated_at": now}).Error
	})
}

// --- Snapshots --------------------------------------------------------------

func (s *Store) InsertPerformanceSnapshot(ctx context.Context, item *models.PerformanceSnapshot) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListPerformanceSnapshots(ctx context.Context, params repository.ListPerformanceSnapshotsParams) ([]models.PerformanceSnapshot, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.PerformanceSnapshot{})
	if params.Symbol != nil && strings.TrimSpace(*params.Symbol) != "" {
		query = query.Where("symbol = ?", strings.TrimSpace(*params.Symbol))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("window_end >= ?", *params.Since)
	}
	limit := normalizeLimit(params.Limit, 168)
	offset := normalizeOffset(params.Offset)
	var items []models.PerformanceSnapshot
	if err := query.Order("window_end desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) InsertPortfolioSnapshot(ctx context.Context, item *models.PortfolioSnapshot) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "snapshot_at"}},
		UpdateAll: true,
	}).Create(item).Error
}

func (s *Store) ListPortfolioSnapshots(ctx context.Context, params repository.ListPortfolioSnapshotsParams) ([]models.PortfolioSnapshot, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.PortfolioSnapshot{})
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("snapshot_at >= ?", *params.Since)
	}
	if params.Until != nil && !params.Until.IsZero() {
		query = query.Where("snapshot_at < ?", *params.Until)
	}
	limit := normalizeLimit(params.Limit, 168)
	offset := normalizeOffset(params.Offset)
	var items []models.PortfolioSnapshot
	if err := query.Order("snapshot_at desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Trade instructions -----------------------------------------------------

func (s *Store) InsertTradeInstruction(ctx context.Context, item *models.TradeInstruction) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetTradeInstructionByID(ctx context.Context, id uint64) (*models.TradeInstruction, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.TradeInstruction
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListTradeInstructions(ctx context.Context, params repository.ListTradeInstructionsParams) ([]models.TradeInstruction, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.TradeInstruction{})
	if params.Symbol != nil && strings.TrimSpace(*params.Symbol) != "" {
		query = query.Where("symbol = ?", strings.TrimSpace(*params.Symbol))
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	limit := normalizeLimit(params.Limit, 100)
	offset := normalizeOffset(params.Offset)
	var items []models.TradeInstruction
	if err := query.Order("created_at desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) AckTradeInstruction(ctx context.Context, id uint64, at time.Time) error {
	if s == nil || s.db == nil || id == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.TradeInstruction{}).
		Where("id = ? AND status = ?", id, "queued").
		Updates(map[string]any{"status": "acked", "acked_at": at}).Error
}

func (s *Store) ExpireTradeInstructions(ctx context.Context, olderThan time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.TradeInstruction{}).
		Where("status = ? AND created_at < ?", "queued", olderThan).
		Updates(map[string]any{"status": "expired"})
	return res.RowsAffected, res.Error
}

// --- Decision audit ---------------------------------------------------------

func (s *Store) InsertDecisionLog(ctx context.Context, item *models.DecisionLog) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListDecisionLogs(ctx context.Context, params repository.ListDecisionLogsParams) ([]models.DecisionLog, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.DecisionLog{})
	if params.Symbol != nil && strings.TrimSpace(*params.Symbol) != "" {
		query = query.Where("symbol = ?", strings.TrimSpace(*params.Symbol))
	}
	if params.Action != nil && strings.TrimSpace(*params.Action) != "" {
		query = query.Where("action = ?", strings.TrimSpace(*params.Action))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("cycle_at >= ?", *params.Since)
	}
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.DecisionLog
	if err := query.Order("cycle_at desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- System settings --------------------------------------------------------

func (s *Store) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.SystemSetting
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "description", "updated_at"}),
	}).Create(item).Error
}

func (s *Store) ListSystemSettings(ctx context.Context) ([]models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.SystemSetting
	if err := s.db.WithContext(ctx).Order("key asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Helpers ----------------------------------------------------------------

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
