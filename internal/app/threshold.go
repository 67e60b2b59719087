package service

import (
	"context"
	"errors"

	"github.com/okian/biomatch/internal/adapters/repository"
)

// ThresholdSource supplies the base match threshold for one verification.
type ThresholdSource interface {
	Threshold(ctx context.Context) (float64, error)
}

// settingsThreshold reads the threshold from the settings store and falls
// back to the configured value until an operator sets one.
type settingsThreshold struct {
	settings repository.SettingsStore
	fallback float64
}

// NewSettingsThreshold returns a ThresholdSource backed by settings.
func NewSettingsThreshold(settings repository.SettingsStore, fallback float64) ThresholdSource {
	return &settingsThreshold{settings: settings, fallback: fallback}
}

func (t *settingsThreshold) Threshold(ctx context.Context) (float64, error) {
	v, err := t.settings.Float(ctx, repository.ThresholdKey)
	if errors.Is(err, repository.ErrNotFound) {
		return t.fallback, nil
	}
	if err != nil {
		return 0, err
	}
	return v, nil
}

func validThreshold(v float64) bool {
	return v >= 0 && v <= 1
}
