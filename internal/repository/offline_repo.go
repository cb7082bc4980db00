package repository

import (
	"context"
	"time"

	"github.com/docling/docling-agent/internal/domain"
	"gorm.io/gorm"
)

// OfflineQueueRepository persists uploads that could not be sent due to
// missing connectivity, across process restarts, until connectivity returns.
type OfflineQueueRepository struct {
	db *gorm.DB
}

// NewOfflineQueueRepository creates a new OfflineQueueRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *OfflineQueueRepository: repository instance bound to db.
func NewOfflineQueueRepository(db *gorm.DB) *OfflineQueueRepository {
	return &OfflineQueueRepository{db: db}
}

// Enqueue stores file bytes plus metadata and the enqueue timestamp.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - file: in-memory file to persist.
//   - model: AI model chosen for the upload.
//   - source: upload source tag.
// Returns:
//   - uint: generated record identifier.
//   - error: non-nil if the insert fails.
func (r *OfflineQueueRepository) Enqueue(ctx context.Context, file domain.File, model string, source domain.Source) (uint, error) {
	rec := domain.PendingUpload{
		FileData:  file.Data,
		FileName:  file.Name,
		FileType:  file.MIME,
		Model:     model,
		Source:    string(source),
		CreatedAt: time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return 0, err
	}
	return rec.ID, nil
}

// ListPending returns all stored records in insertion order.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - []domain.PendingUpload: pending records, oldest first.
//   - error: non-nil if the query fails.
func (r *OfflineQueueRepository) ListPending(ctx context.Context) ([]domain.PendingUpload, error) {
	var recs []domain.PendingUpload
	if err := r.db.WithContext(ctx).Order("id asc").Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// Remove deletes one record. Removing an unknown id is not an error.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: record identifier.
// Returns:
//   - error: non-nil if the delete fails.
func (r *OfflineQueueRepository) Remove(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&domain.PendingUpload{}, id).Error
}

// Count returns the number of stored records.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - int64: record count.
//   - error: non-nil if the query fails.
func (r *OfflineQueueRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&domain.PendingUpload{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
