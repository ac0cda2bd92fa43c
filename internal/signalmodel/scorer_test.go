package signalmodel

import (
	"encoding/json"
	"errors"
	"testing"

	"gorm.io/datatypes"

	"autotrader/internal/features"
	"autotrader/internal/models"
)

func mkArtifact(t *testing.T, symbol string, version int, featureNames []string, params Params) *models.ModelArtifact {
	t.Helper()
	featuresJSON, err := json.Marshal(featureNames)
	if err != nil {
		t.Fatalf("marshal features: %v", err)
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	return &models.ModelArtifact{
		Symbol:          symbol,
		Version:         version,
		Features:        datatypes.JSON(featuresJSON),
		Params:          datatypes.JSON(paramsJSON),
		ValidationScore: 0.62,
		Active:          true,
	}
}

func TestScoreBoundedOpenInterval(t *testing.T) {
	artifact := mkArtifact(t, "SPY", 1, []string{"mom_20d"}, Params{
		Bias: 5,
		Stumps: []Stump{
			{Feature: "mom_20d", Threshold: 0, Left: -2, Right: 8},
		},
	})
	conf, err := Score(artifact, features.Vector{"mom_20d": 0.1})
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if conf <= 0 || conf >= 1 {
		t.Fatalf("conf=%v want strictly inside (0,1)", conf)
	}
	if conf < 0.99 {
		t.Fatalf("conf=%v want near 1 for strongly positive raw score", conf)
	}
}

func TestScoreStumpRouting(t *testing.T) {
	artifact := mkArtifact(t, "SPY", 1, []string{"ret_5d"}, Params{
		Stumps: []Stump{
			{Feature: "ret_5d", Threshold: 0, Left: -1, Right: 1},
		},
	})

	up, err := Score(artifact, features.Vector{"ret_5d": 0.02})
	if err != nil {
		t.Fatalf("score up: %v", err)
	}
	down, err := Score(artifact, features.Vector{"ret_5d": -0.02})
	if err != nil {
		t.Fatalf("score down: %v", err)
	}
	if up <= 0.5 {
		t.Fatalf("up=%v want >0.5", up)
	}
	if down >= 0.5 {
		t.Fatalf("down=%v want <0.5", down)
	}
}

func TestScoreFeatureMismatch(t *testing.T) {
	artifact := mkArtifact(t, "SPY", 3, []string{"ret_5d", "vol_30d"}, Params{
		Stumps: []Stump{{Feature: "vol_30d", Threshold: 0.01, Left: 1, Right: -1}},
	})
	_, err := Score(artifact, features.Vector{"ret_5d": 0.01})
	if !errors.Is(err, ErrFeatureMismatch) {
		t.Fatalf("err=%v want ErrFeatureMismatch", err)
	}
}

func TestScoreNilArtifact(t *testing.T) {
	_, err := Score(nil, features.Vector{"ret_5d": 0})
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("err=%v want ErrModelUnavailable", err)
	}
}
