package signalmodel

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"autotrader/internal/features"
	"autotrader/internal/models"
	"autotrader/internal/repository"
)

const DefaultMinValidationScore = 0.55

type Trainer interface {
	Train(ctx context.Context, symbol string) (*TrainResult, error)
}

// Service resolves the active artifact per symbol, scores feature vectors and
// gates candidate models behind the validation floor.
type Service struct {
	Repo               repository.Repository
	Trainer            Trainer
	Logger             *zap.Logger
	MinValidationScore float64
}

func (s *Service) floor() float64 {
	if s != nil && s.MinValidationScore > 0 {
		return s.MinValidationScore
	}
	return DefaultMinValidationScore
}

// Confidence scores vec with the symbol's active artifact. It returns the
// confidence and the artifact version that produced it.
func (s *Service) Confidence(ctx context.Context, symbol string, vec features.Vector) (float64, int, error) {
	if s == nil || s.Repo == nil {
		return 0, 0, ErrModelUnavailable
	}
	artifact, err := s.Repo.GetActiveModelArtifact(ctx, symbol)
	if err != nil {
		return 0, 0, fmt.Errorf("load active artifact for %s: %w", symbol, err)
	}
	if artifact == nil {
		return 0, 0, fmt.Errorf("%w: no active artifact for %s", ErrModelUnavailable, symbol)
	}
	conf, err := Score(artifact, vec)
	if err != nil {
		return 0, artifact.Version, err
	}
	return conf, artifact.Version, nil
}

// Retrain asks the training service for a candidate model and publishes it
// only when the validation score clears the floor. On a failed validation the
// previously active artifact stays in place and a ValidationError is returned.
func (s *Service) Retrain(ctx context.Context, symbol string) (*models.ModelArtifact, error) {
	if s == nil || s.Repo == nil || s.Trainer == nil {
		return nil, fmt.Errorf("model service not configured")
	}
	result, err := s.Trainer.Train(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("train %s: %w", symbol, err)
	}
	if result.ValidationScore <= s.floor() {
		if s.Logger != nil {
			s.Logger.Warn("candidate model rejected",
				zap.String("symbol", symbol),
				zap.Float64("validation_score", result.ValidationScore),
				zap.Float64("floor", s.floor()),
			)
		}
		return nil, &ValidationError{Symbol: symbol, Score: result.ValidationScore, Floor: s.floor()}
	}

	version, err := s.Repo.MaxModelArtifactVersion(ctx, symbol)
	if err != nil {
		return nil, err
	}
	featuresJSON, err := json.Marshal(result.Features)
	if err != nil {
		return nil, err
	}
	paramsJSON, err := json.Marshal(result.Params)
	if err != nil {
		return nil, err
	}
	artifact := &models.ModelArtifact{
		Symbol:          symbol,
		Version:         version + 1,
		Features:        datatypes.JSON(featuresJSON),
		Params:          datatypes.JSON(paramsJSON),
		ValidationScore: result.ValidationScore,
		TrainedAt:       time.Now().UTC(),
	}
	if err := s.Repo.InsertModelArtifact(ctx, artifact); err != nil {
		return nil, err
	}
	if err := s.Repo.ActivateModelArtifact(ctx, artifact.ID); err != nil {
		return nil, err
	}
	if s.Logger != nil {
		s.Logger.Info("model artifact published",
			zap.String("symbol", symbol),
			zap.Int("version", artifact.Version),
			zap.Float64("validation_score", artifact.ValidationScore),
		)
	}
	return artifact, nil
}

// MissingFeatures lists artifact features absent from the engine's canonical
// set. Useful for surfacing drift between trainer and engine.
func MissingFeatures(artifact *models.ModelArtifact) ([]string, error) {
	if artifact == nil {
		return nil, ErrModelUnavailable
	}
	var names []string
	if err := json.Unmarshal(artifact.Features, &names); err != nil {
		return nil, err
	}
	known := map[string]struct{}{}
	for _, name := range features.FeatureNames {
		known[name] = struct{}{}
	}
	var missing []string
	for _, name := range names {
		if _, ok := known[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing, nil
}
