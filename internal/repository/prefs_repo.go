package repository

import (
	"context"
	"errors"
	"time"

	"github.com/docling/docling-agent/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Preference keys known to the application.
const (
	PrefSelectedModel = "selected_model"
	PrefDevisCounter  = "devis_counter"
)

// PreferenceRepository is the durable key-value store for the few settings
// that survive process restarts.
type PreferenceRepository struct {
	db *gorm.DB
}

// NewPreferenceRepository creates a new PreferenceRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *PreferenceRepository: repository instance bound to db.
func NewPreferenceRepository(db *gorm.DB) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

// Get returns the stored value for key, or the empty string when the key
// has never been written.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - key: preference key.
// Returns:
//   - string: stored value or "".
//   - error: non-nil if the lookup fails.
func (r *PreferenceRepository) Get(ctx context.Context, key string) (string, error) {
	var pref domain.Preference
	err := r.db.WithContext(ctx).First(&pref, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return pref.Value, nil
}

// Set writes the value for key, creating or updating the record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - key: preference key.
//   - value: value to store.
// Returns:
//   - error: non-nil if the upsert fails.
func (r *PreferenceRepository) Set(ctx context.Context, key, value string) error {
	pref := domain.Preference{Key: key, Value: value, UpdatedAt: time.Now()}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		UpdateAll: true,
	}).Create(&pref).Error
}
