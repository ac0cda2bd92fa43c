package models

import (
	"time"

	"gorm.io/datatypes"
)

// ModelArtifact is a versioned, immutable snapshot of a trained signal model.
// At most one artifact per symbol is active at a time.
type ModelArtifact struct {
	ID      uint64 `gorm:"primaryKey;autoIncrement"`
	Symbol  string `gorm:"type:varchar(20);not null;uniqueIndex:idx_artifact_symbol_version,priority:1"`
	Version int    `gorm:"not null;uniqueIndex:idx_artifact_symbol_version,priority:2"`

	// Ordered feature names the model was trained on.
	Features datatypes.JSON `gorm:"type:jsonb;not null"`

	// Serialized parameters (logistic stump ensemble).
	Params datatypes.JSON `gorm:"type:jsonb;not null"`

	ValidationScore float64 `gorm:"not null"`

	Active      bool       `gorm:"not null;default:false;index"`
	TrainedAt   time.Time  `gorm:"type:timestamptz;not null"`
	ActivatedAt *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (ModelArtifact) TableName() string {
	return "model_artifacts"
}
