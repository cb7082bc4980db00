package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/docling/docling-agent/internal/api"
	"github.com/docling/docling-agent/internal/domain"
	"github.com/docling/docling-agent/internal/logger"
)

// SyncStats summarizes one offline-queue sync pass.
type SyncStats struct {
	Pending int
	Flushed int
	Failed  int
}

// SyncService drains the durable offline queue once connectivity returns.
type SyncService struct {
	api     InvoiceAPI
	comp    Compressor
	offline OfflineQueue
	log     *logger.Logger
}

// NewSyncService creates a SyncService.
func NewSyncService(apiClient InvoiceAPI, comp Compressor, offline OfflineQueue, log *logger.Logger) *SyncService {
	if log == nil {
		log = logger.GetDefault()
	}
	return &SyncService{api: apiClient, comp: comp, offline: offline, log: log}
}

// Sync submits every pending offline record. Fire-and-forget acceptance is
// sufficient: no polling happens here. A record is removed only after the
// server accepted it. An authentication failure aborts the whole pass,
// leaving the remaining records in place; any other failure is reported and
// the pass continues with the next record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//
// Returns:
//   - SyncStats: counts of flushed and failed records.
//   - error: non-nil when the pass aborted (auth failure or listing error).
func (s *SyncService) Sync(ctx context.Context) (SyncStats, error) {
	recs, err := s.offline.ListPending(ctx)
	if err != nil {
		return SyncStats{}, fmt.Errorf("list pending uploads: %w", err)
	}

	stats := SyncStats{Pending: len(recs)}
	if len(recs) == 0 {
		return stats, nil
	}
	s.log.WithField(logger.FieldCount, len(recs)).Info("Syncing offline uploads")

	for _, rec := range recs {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		file := rec.AsFile()
		if file.IsImage() {
			if compressed, cerr := s.comp.Compress(file); cerr == nil {
				file = compressed
			}
			// A file that no longer decodes still gets a chance raw.
		}

		_, err := s.api.ProcessInvoice(ctx, file, rec.Model, domain.Source(rec.Source))
		if errors.Is(err, api.ErrUnauthorized) {
			s.log.Warn("Sync aborted: authentication required")
			return stats, err
		}
		if err != nil {
			stats.Failed++
			s.log.WithField(logger.FieldFile, rec.FileName).WithError(err).Error("Failed to resubmit offline upload")
			continue
		}

		if err := s.offline.Remove(ctx, rec.ID); err != nil {
			s.log.WithError(err).Warn("Failed to remove synced offline record")
		}
		stats.Flushed++
	}

	s.log.WithFields(logger.Fields{
		"flushed": stats.Flushed,
		"failed":  stats.Failed,
	}).Info("Offline sync finished")
	return stats, nil
}
