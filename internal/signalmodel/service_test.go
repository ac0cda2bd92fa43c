package signalmodel

import (
	"context"
	"errors"
	"testing"

	"autotrader/internal/features"
	"autotrader/internal/models"
	"autotrader/internal/repository"
)

// stubRepo overrides only the artifact methods the service touches.
type stubRepo struct {
	repository.Repository

	active     map[string]*models.ModelArtifact
	maxVersion map[string]int
	inserted   []*models.ModelArtifact
	activated  []uint64
}

func (s *stubRepo) GetActiveModelArtifact(ctx context.Context, symbol string) (*models.ModelArtifact, error) {
	return s.active[symbol], nil
}

func (s *stubRepo) MaxModelArtifactVersion(ctx context.Context, symbol string) (int, error) {
	return s.maxVersion[symbol], nil
}

func (s *stubRepo) InsertModelArtifact(ctx context.Context, item *models.ModelArtifact) error {
	item.ID = uint64(len(s.inserted) + 1)
	s.inserted = append(s.inserted, item)
	return nil
}

func (s *stubRepo) ActivateModelArtifact(ctx context.Context, id uint64) error {
	s.activated = append(s.activated, id)
	return nil
}

type stubTrainer struct {
	result *TrainResult
	err    error
	calls  int
}

func (s *stubTrainer) Train(ctx context.Context, symbol string) (*TrainResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func TestConfidenceNoActiveArtifact(t *testing.T) {
	svc := &Service{Repo: &stubRepo{active: map[string]*models.ModelArtifact{}}}
	_, _, err := svc.Confidence(context.Background(), "SPY", features.Vector{"ret_5d": 0})
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("err=%v want ErrModelUnavailable", err)
	}
}

func TestConfidenceUsesActiveArtifact(t *testing.T) {
	artifact := mkArtifact(t, "SPY", 4, []string{"mom_20d"}, Params{
		Stumps: []Stump{{Feature: "mom_20d", Threshold: 0, Left: -1, Right: 1}},
	})
	repo := &stubRepo{active: map[string]*models.ModelArtifact{"SPY": artifact}}
	svc := &Service{Repo: repo}

	conf, version, err := svc.Confidence(context.Background(), "SPY", features.Vector{"mom_20d": 0.05})
	if err != nil {
		t.Fatalf("confidence: %v", err)
	}
	if version != 4 {
		t.Fatalf("version=%d want 4", version)
	}
	if conf <= 0.5 {
		t.Fatalf("conf=%v want >0.5", conf)
	}
}

func TestRetrainRejectsBelowFloor(t *testing.T) {
	repo := &stubRepo{maxVersion: map[string]int{"SPY": 2}}
	trainer := &stubTrainer{result: &TrainResult{
		Symbol:          "SPY",
		Features:        []string{"ret_5d"},
		ValidationScore: 0.52,
	}}
	svc := &Service{Repo: repo, Trainer: trainer, MinValidationScore: 0.55}

	_, err := svc.Retrain(context.Background(), "SPY")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err=%v want ValidationError", err)
	}
	if verr.Score != 0.52 {
		t.Fatalf("score=%v want 0.52", verr.Score)
	}
	if len(repo.inserted) != 0 {
		t.Fatalf("inserted=%d want 0, rejected candidates must not be stored", len(repo.inserted))
	}
	if len(repo.activated) != 0 {
		t.Fatalf("activated=%d want 0", len(repo.activated))
	}
}

func TestRetrainPublishesAboveFloor(t *testing.T) {
	repo := &stubRepo{maxVersion: map[string]int{"SPY": 2}}
	trainer := &stubTrainer{result: &TrainResult{
		Symbol:          "SPY",
		Features:        []string{"ret_5d", "mom_20d"},
		Params:          Params{Stumps: []Stump{{Feature: "ret_5d", Threshold: 0, Left: -1, Right: 1}}},
		ValidationScore: 0.61,
	}}
	svc := &Service{Repo: repo, Trainer: trainer, MinValidationScore: 0.55}

	artifact, err := svc.Retrain(context.Background(), "SPY")
	if err != nil {
		t.Fatalf("retrain: %v", err)
	}
	if artifact.Version != 3 {
		t.Fatalf("version=%d want 3 (monotonic)", artifact.Version)
	}
	if len(repo.activated) != 1 || repo.activated[0] != artifact.ID {
		t.Fatalf("activated=%v want [%d]", repo.activated, artifact.ID)
	}
}

func TestValidationFloorIsExclusive(t *testing.T) {
	repo := &stubRepo{}
	trainer := &stubTrainer{result: &TrainResult{
		Symbol:          "SPY",
		Features:        []string{"ret_5d"},
		ValidationScore: 0.55,
	}}
	svc := &Service{Repo: repo, Trainer: trainer, MinValidationScore: 0.55}

	_, err := svc.Retrain(context.Background(), "SPY")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err=%v want ValidationError, exactly-at-floor must not publish", err)
	}
}
