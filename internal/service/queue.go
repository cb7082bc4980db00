// Package service drives the upload pipelines: the bounded-concurrency batch
// queue, the single-file scan path, offline queue sync, and the catalogue and
// devis operations built on top of the extracted products.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/docling/docling-agent/internal/api"
	"github.com/docling/docling-agent/internal/domain"
	"github.com/docling/docling-agent/internal/logger"
	"github.com/docling/docling-agent/internal/store"
)

// ErrPollTimeout marks a job that never reached a terminal state within the
// polling attempt bound.
var ErrPollTimeout = errors.New("extraction timed out")

// InvoiceAPI is the remote processing surface the pipelines depend on.
type InvoiceAPI interface {
	ProcessInvoice(ctx context.Context, file domain.File, model string, source domain.Source) (*api.ProcessResponse, error)
	JobStatus(ctx context.Context, jobID string) (*api.JobStatusResponse, error)
	SaveBatch(ctx context.Context, products []domain.ExtractedProduct, source domain.Source) error
}

// Connectivity answers whether the remote service is currently reachable.
type Connectivity interface {
	Online(ctx context.Context) bool
}

// Compressor shrinks image payloads before upload.
type Compressor interface {
	Compress(file domain.File) (domain.File, error)
}

// OfflineQueue is the durable store for uploads deferred while offline.
type OfflineQueue interface {
	Enqueue(ctx context.Context, file domain.File, model string, source domain.Source) (uint, error)
	ListPending(ctx context.Context) ([]domain.PendingUpload, error)
	Remove(ctx context.Context, id uint) error
	Count(ctx context.Context) (int64, error)
}

// QueueConfig holds tuning knobs for the batch queue manager.
type QueueConfig struct {
	// Concurrency bounds how many tasks run at once within one cohort.
	// Compression is CPU-bound, so this also protects responsiveness.
	Concurrency int

	PollMaxAttempts   int
	PollIntervalSmall time.Duration
	PollIntervalLarge time.Duration
}

func (c *QueueConfig) defaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 3
	}
	if c.PollMaxAttempts <= 0 {
		c.PollMaxAttempts = 60
	}
	if c.PollIntervalSmall <= 0 {
		c.PollIntervalSmall = 2 * time.Second
	}
	if c.PollIntervalLarge <= 0 {
		c.PollIntervalLarge = 3 * time.Second
	}
}

// QueueManager drives the batch queue: it admits files, dedupes them, runs
// each through the compress-submit-poll pipeline with bounded concurrency,
// and hands files to the durable offline queue when the network is down.
// It is a controller over the store's batch queue and mutates it only
// through the store's named operations.
type QueueManager struct {
	store   *store.Store
	api     InvoiceAPI
	comp    Compressor
	offline OfflineQueue
	net     Connectivity
	cfg     QueueConfig
	log     *logger.Logger

	running atomic.Bool // run-lock guarding StartBatch re-entry
}

// NewQueueManager creates a QueueManager.
func NewQueueManager(st *store.Store, apiClient InvoiceAPI, comp Compressor, offline OfflineQueue, net Connectivity, cfg QueueConfig, log *logger.Logger) *QueueManager {
	if log == nil {
		log = logger.GetDefault()
	}
	cfg.defaults()
	return &QueueManager{
		store:   st,
		api:     apiClient,
		comp:    comp,
		offline: offline,
		net:     net,
		cfg:     cfg,
		log:     log,
	}
}

// AddFiles admits files into the queue, deduplicated by (name, size). The
// source tag is recorded per task; empty means pc.
// Returns the tasks actually admitted.
func (m *QueueManager) AddFiles(files []domain.File, source domain.Source) []domain.UploadTask {
	admitted := m.store.AddToQueue(files, source)
	m.log.WithFields(logger.Fields{
		"offered":  len(files),
		"admitted": len(admitted),
		"source":   string(source),
	}).Info("Files added to batch queue")
	return admitted
}

// StartBatch processes every currently-pending task as one cohort, in chunks
// of Concurrency tasks. A chunk starts only after every task of the previous
// chunk reached a terminal per-task outcome. Re-entrant calls and calls with
// nothing pending are no-ops.
func (m *QueueManager) StartBatch(ctx context.Context) {
	if !m.running.CompareAndSwap(false, true) {
		m.log.Debug("Batch already running, ignoring start")
		return
	}
	defer m.running.Store(false)

	cohort := m.store.PendingTasks()
	if len(cohort) == 0 {
		m.log.Debug("No pending tasks, nothing to do")
		return
	}

	// Small cohorts poll faster; a long batch backs off to spare the API.
	pollInterval := m.cfg.PollIntervalSmall
	if len(cohort) > m.cfg.Concurrency {
		pollInterval = m.cfg.PollIntervalLarge
	}

	m.log.WithFields(logger.Fields{
		"cohort":      len(cohort),
		"concurrency": m.cfg.Concurrency,
	}).Info("Starting batch")

	for start := 0; start < len(cohort); start += m.cfg.Concurrency {
		if ctx.Err() != nil {
			return
		}
		end := start + m.cfg.Concurrency
		if end > len(cohort) {
			end = len(cohort)
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, task := range cohort[start:end] {
			id := task.ID
			g.Go(func() error {
				// Per-task failures are converted to task state, never
				// propagated: one bad invoice must not fail its siblings.
				m.ProcessOne(gctx, id, pollInterval)
				return nil
			})
		}
		_ = g.Wait()
	}

	stats := m.store.QueueStats()
	m.log.WithFields(logger.Fields{
		"done":           stats.Done,
		"errors":         stats.Errors,
		"products_added": stats.ProductsAdded,
	}).Info("Batch finished")
}

// ProcessOne drives a single task through its pipeline. When offline, the
// file goes to the durable queue and the task leaves the in-memory queue
// without touching the remote API. Cancellation leaves the task state as-is:
// an aborted operation is an abandonment, not a failure.
func (m *QueueManager) ProcessOne(ctx context.Context, taskID string, pollInterval time.Duration) {
	task, ok := m.store.Task(taskID)
	if !ok {
		return
	}
	log := m.log.WithFields(logger.Fields{
		logger.FieldTaskID: taskID,
		logger.FieldFile:   task.File.Name,
	})

	if m.net != nil && !m.net.Online(ctx) {
		if _, err := m.offline.Enqueue(ctx, task.File, m.store.SelectedModel(), task.Source); err != nil {
			log.WithError(err).Error("Failed to enqueue offline upload")
			m.failTask(taskID, fmt.Sprintf("offline queue: %v", err))
			return
		}
		m.store.RemoveFromQueue(taskID)
		log.Info("Offline: upload queued durably")
		return
	}

	m.patch(taskID, statusPatch(domain.TaskStatusUploading, 10))

	payload := task.File
	if task.File.IsImage() {
		compressed, err := m.comp.Compress(task.File)
		if err != nil {
			m.failTask(taskID, fmt.Sprintf("compression failed: %v", err))
			return
		}
		payload = compressed
		m.store.UpdateQueueItem(taskID, store.TaskPatch{Compressed: &compressed})
	}
	m.patch(taskID, progressPatch(30))

	m.patch(taskID, statusPatch(domain.TaskStatusProcessing, 50))

	resp, err := m.api.ProcessInvoice(ctx, payload, m.store.SelectedModel(), task.Source)
	if err != nil {
		if canceled(ctx, err) {
			return
		}
		m.failTask(taskID, err.Error())
		return
	}
	if resp.JobID == "" {
		m.failTask(taskID, api.ErrMissingJobID.Error())
		return
	}

	m.pollToTerminal(ctx, taskID, resp.JobID, pollInterval, log)
}

// pollToTerminal polls job status until completion, error, or exhaustion of
// the attempt bound. Progress advances monotonically in [50,95) while the
// job is in flight.
func (m *QueueManager) pollToTerminal(ctx context.Context, taskID, jobID string, interval time.Duration, log *logger.Logger) {
	for attempts := 1; attempts <= m.cfg.PollMaxAttempts; attempts++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		st, err := m.api.JobStatus(ctx, jobID)
		if err != nil {
			if canceled(ctx, err) {
				return
			}
			if errors.Is(err, api.ErrUnauthorized) {
				m.failTask(taskID, err.Error())
				return
			}
			// Transient poll failure: the status endpoint is idempotent,
			// keep polling within the attempt bound.
			log.WithError(err).Warn("Status poll failed")
			continue
		}

		switch {
		case st.Completed():
			added := 0
			if st.Result != nil {
				added = st.Result.ProductsAdded
				if added == 0 {
					added = len(st.Result.Products)
				}
			}
			m.store.UpdateQueueItem(taskID, store.TaskPatch{
				Status:        ptr(domain.TaskStatusDone),
				Progress:      ptr(100),
				ProductsAdded: ptr(added),
			})
			log.WithField(logger.FieldCount, added).Info("Task completed")
			return
		case st.Failed():
			msg := st.Error
			if msg == "" {
				msg = "extraction failed"
			}
			m.failTask(taskID, msg)
			return
		default:
			progress := 50 + min(45, attempts*2)
			m.patch(taskID, progressPatch(progress))
		}
	}

	m.failTask(taskID, ErrPollTimeout.Error())
}

// failTask marks a task failed. The task stays in the queue for manual retry
// so the user never has to re-select the file.
func (m *QueueManager) failTask(taskID, msg string) {
	m.store.UpdateQueueItem(taskID, store.TaskPatch{
		Status:   ptr(domain.TaskStatusError),
		Progress: ptr(0),
		Error:    &msg,
	})
}

func (m *QueueManager) patch(taskID string, p store.TaskPatch) {
	m.store.UpdateQueueItem(taskID, p)
}

func statusPatch(s domain.TaskStatus, progress int) store.TaskPatch {
	return store.TaskPatch{Status: &s, Progress: &progress}
}

func progressPatch(progress int) store.TaskPatch {
	return store.TaskPatch{Progress: &progress}
}

func ptr[T any](v T) *T { return &v }

// canceled reports whether err (or the context) represents deliberate
// abandonment rather than a failure.
func canceled(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
}
