package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/docling/docling-agent/internal/api"
	"github.com/docling/docling-agent/internal/domain"
	"github.com/docling/docling-agent/internal/logger"
	"github.com/docling/docling-agent/internal/store"
)

// StageFunc observes the scan pipeline for progress display. Stages are
// presentational only; they do not affect pipeline behavior.
type StageFunc func(stage domain.ScanStage, progress int)

// ScanResult is the outcome of one single-file scan.
type ScanResult struct {
	// QueuedOffline is true when the file went to the durable offline queue
	// instead of the remote API.
	QueuedOffline bool
	Products      []domain.ExtractedProduct
}

// ScanService is the simplified one-task pipeline for the "snap one photo"
// flow: same compress-submit-poll sequence as the batch queue, bypassing the
// queue and writing straight into the extracted product list.
type ScanService struct {
	store   *store.Store
	api     InvoiceAPI
	comp    Compressor
	offline OfflineQueue
	net     Connectivity
	cfg     QueueConfig
	log     *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc // abort handle of the scan in flight
}

// NewScanService creates a ScanService.
func NewScanService(st *store.Store, apiClient InvoiceAPI, comp Compressor, offline OfflineQueue, net Connectivity, cfg QueueConfig, log *logger.Logger) *ScanService {
	if log == nil {
		log = logger.GetDefault()
	}
	cfg.defaults()
	return &ScanService{
		store:   st,
		api:     apiClient,
		comp:    comp,
		offline: offline,
		net:     net,
		cfg:     cfg,
		log:     log,
	}
}

// Scan runs the single-file pipeline. A new submission aborts the previous
// one; the abandoned pipeline leaves no terminal state behind.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - file: invoice file to process.
//   - source: upload source tag.
//   - onStage: optional stage observer; may be nil.
//
// Returns:
//   - *ScanResult: extraction outcome or offline-queue notice.
//   - error: non-nil on pipeline failure; ctx.Err() when a newer scan aborted
//     this one.
func (s *ScanService) Scan(ctx context.Context, file domain.File, source domain.Source, onStage StageFunc) (*ScanResult, error) {
	ctx = s.replaceHandle(ctx)
	if onStage == nil {
		onStage = func(domain.ScanStage, int) {}
	}
	log := s.log.WithField(logger.FieldFile, file.Name)

	if s.net != nil && !s.net.Online(ctx) {
		if _, err := s.offline.Enqueue(ctx, file, s.store.SelectedModel(), source); err != nil {
			return nil, fmt.Errorf("offline queue: %w", err)
		}
		log.Info("Offline: scan queued durably")
		return &ScanResult{QueuedOffline: true}, nil
	}

	onStage(domain.StageUpload, 10)
	payload := file
	if file.IsImage() {
		compressed, err := s.comp.Compress(file)
		if err != nil {
			return nil, fmt.Errorf("compression failed: %w", err)
		}
		payload = compressed
	}
	onStage(domain.StageUpload, 30)

	s.store.SetJobStart("processing_now", file.Name)

	onStage(domain.StageAI, 50)
	resp, err := s.api.ProcessInvoice(ctx, payload, s.store.SelectedModel(), source)
	if err != nil {
		if canceled(ctx, err) {
			return nil, ctx.Err()
		}
		return nil, err
	}

	var products []domain.ExtractedProduct
	switch {
	case resp.JobID != "":
		products, err = s.pollJob(ctx, resp.JobID, onStage)
		if err != nil {
			return nil, err
		}
	case resp.Success:
		// Simple path: the backend answered synchronously.
		products = resp.Products
	default:
		return nil, errors.New("processing rejected by the server")
	}

	onStage(domain.StageValidate, 95)
	s.store.SetJobComplete(products, source)
	log.WithField(logger.FieldCount, len(products)).Info("Scan completed")

	return &ScanResult{Products: s.store.Products()}, nil
}

// pollJob polls the job to a terminal state for the single-file path.
func (s *ScanService) pollJob(ctx context.Context, jobID string, onStage StageFunc) ([]domain.ExtractedProduct, error) {
	ctx = logger.SetJobID(ctx, jobID)
	for attempts := 1; attempts <= s.cfg.PollMaxAttempts; attempts++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.cfg.PollIntervalSmall):
		}

		st, err := s.api.JobStatus(ctx, jobID)
		if err != nil {
			if canceled(ctx, err) {
				return nil, ctx.Err()
			}
			if errors.Is(err, api.ErrUnauthorized) {
				return nil, err
			}
			logger.FromContext(ctx).WithError(err).Warn("Status poll failed")
			continue
		}

		switch {
		case st.Completed():
			if st.Result != nil {
				return st.Result.Products, nil
			}
			return nil, nil
		case st.Failed():
			if st.Error != "" {
				return nil, errors.New(st.Error)
			}
			return nil, errors.New("extraction failed")
		default:
			onStage(domain.StageAI, 50+min(45, attempts*2))
		}
	}
	return nil, ErrPollTimeout
}

// SaveValidated commits the edited product list to the catalogue and clears
// the job state on success.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - onStage: optional stage observer; may be nil.
//
// Returns:
//   - int: number of products committed.
//   - error: non-nil if the batch is rejected (state is kept for retry).
func (s *ScanService) SaveValidated(ctx context.Context, onStage StageFunc) (int, error) {
	products := s.store.Products()
	if len(products) == 0 {
		return 0, nil
	}
	if onStage != nil {
		onStage(domain.StageSave, 98)
	}

	if err := s.api.SaveBatch(ctx, products, s.store.PendingSource()); err != nil {
		return 0, fmt.Errorf("save batch: %w", err)
	}

	s.store.ClearJob()
	if onStage != nil {
		onStage(domain.StageSave, 100)
	}
	s.log.WithField(logger.FieldCount, len(products)).Info("Validated products saved")
	return len(products), nil
}

// Abort cancels the scan in flight, if any. Component teardown calls this.
func (s *ScanService) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// replaceHandle aborts the previous scan and installs a fresh cancel handle.
func (s *ScanService) replaceHandle(parent context.Context) context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	return ctx
}
