package signalmodel

import (
	"errors"
	"fmt"
)

// ErrModelUnavailable means no active artifact exists for the symbol. The
// decision layer must degrade to protective-exit-only mode, never assume a
// neutral confidence.
var ErrModelUnavailable = errors.New("model unavailable")

// ErrFeatureMismatch means the feature vector does not carry a feature the
// active artifact was trained on.
var ErrFeatureMismatch = errors.New("feature mismatch")

// ValidationError reports a candidate model that failed the publication floor.
type ValidationError struct {
	Symbol string
	Score  float64
	Floor  float64
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("model validation failed for %s: roc_auc %.4f <= floor %.4f", e.Symbol, e.Score, e.Floor)
}

// Stump is one boosted decision stump: it contributes Left to the raw score
// when the feature is below Threshold, Right otherwise.
type Stump struct {
	Feature   string  `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      float64 `json:"left"`
	Right     float64 `json:"right"`
}

// Params is the serialized form of a trained model, stored as jsonb on the
// artifact row.
type Params struct {
	Bias   float64 `json:"bias"`
	Stumps []Stump `json:"stumps"`
}
