package signalmodel

import (
	"encoding/json"
	"fmt"
	"math"

	"autotrader/internal/features"
	"autotrader/internal/models"
)

// Score evaluates an artifact against a feature vector and returns a
// probability-like confidence strictly inside (0, 1).
func Score(artifact *models.ModelArtifact, vec features.Vector) (float64, error) {
	if artifact == nil {
		return 0, ErrModelUnavailable
	}

	var names []string
	if err := json.Unmarshal(artifact.Features, &names); err != nil {
		return 0, fmt.Errorf("decode artifact features: %w", err)
	}
	for _, name := range names {
		if _, ok := vec[name]; !ok {
			return 0, fmt.Errorf("%w: %s version %d requires feature %q", ErrFeatureMismatch, artifact.Symbol, artifact.Version, name)
		}
	}

	var params Params
	if err := json.Unmarshal(artifact.Params, &params); err != nil {
		return 0, fmt.Errorf("decode artifact params: %w", err)
	}

	raw := params.Bias
	for _, stump := range params.Stumps {
		v, ok := vec[stump.Feature]
		if !ok {
			return 0, fmt.Errorf("%w: %s version %d requires feature %q", ErrFeatureMismatch, artifact.Symbol, artifact.Version, stump.Feature)
		}
		if v < stump.Threshold {
			raw += stump.Left
		} else {
			raw += stump.Right
		}
	}
	return sigmoid(raw), nil
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
