package store

import (
	"github.com/google/uuid"

	"github.com/docling/docling-agent/internal/domain"
)

// TaskPatch is a typed partial update for one queue item. Nil fields are
// left unchanged; ClearError resets the error message together with its
// invariant (Error set iff status is error).
type TaskPatch struct {
	Status        *domain.TaskStatus
	Progress      *int
	Error         *string
	ProductsAdded *int
	Compressed    *domain.File
}

// AddToQueue admits files into the batch queue in arrival order, skipping
// any file whose (name, size) already exists in the queue. Duplicate or
// empty input is not an error; those entries are simply dropped.
// Parameters:
//   - files: candidate files.
//   - source: upload source tag recorded on each task; empty means pc.
// Returns:
//   - []domain.UploadTask: the tasks actually admitted.
func (s *Store) AddToQueue(files []domain.File, source domain.Source) []domain.UploadTask {
	s.mu.Lock()
	defer s.mu.Unlock()

	if source == "" {
		source = domain.SourcePC
	}
	existing := make(map[string]struct{}, len(s.batchQueue))
	for _, t := range s.batchQueue {
		existing[t.File.DedupeKey()] = struct{}{}
	}

	var admitted []domain.UploadTask
	for _, f := range files {
		key := f.DedupeKey()
		if _, dup := existing[key]; dup {
			continue
		}
		existing[key] = struct{}{}
		task := domain.UploadTask{
			ID:     uuid.New().String(),
			File:   f,
			Source: source,
			Status: domain.TaskStatusPending,
		}
		s.batchQueue = append(s.batchQueue, task)
		admitted = append(admitted, task)
	}
	return admitted
}

// UpdateQueueItem merges a patch into the task with the given id. Unknown
// ids are a silent no-op: a task removed while its pipeline was in flight
// must not resurrect.
func (s *Store) UpdateQueueItem(id string, patch TaskPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.batchQueue {
		if s.batchQueue[i].ID != id {
			continue
		}
		t := &s.batchQueue[i]
		if patch.Status != nil {
			t.Status = *patch.Status
		}
		if patch.Progress != nil {
			t.Progress = *patch.Progress
		}
		if patch.Error != nil {
			t.Error = *patch.Error
		}
		if patch.ProductsAdded != nil {
			t.ProductsAdded = *patch.ProductsAdded
		}
		if patch.Compressed != nil {
			t.Compressed = patch.Compressed
		}
		return
	}
}

// RetryItem transitions one task from error back to pending with progress 0
// and no error message. Tasks in any other status are left untouched.
func (s *Store) RetryItem(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.batchQueue {
		if s.batchQueue[i].ID == id && s.batchQueue[i].Status == domain.TaskStatusError {
			resetForRetry(&s.batchQueue[i])
		}
	}
}

// RetryAllErrors applies the retry transition to every error task.
func (s *Store) RetryAllErrors() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.batchQueue {
		if s.batchQueue[i].Status == domain.TaskStatusError {
			resetForRetry(&s.batchQueue[i])
		}
	}
}

func resetForRetry(t *domain.UploadTask) {
	t.Status = domain.TaskStatusPending
	t.Progress = 0
	t.Error = ""
}

// RemoveFromQueue removes one task regardless of status. Removing a running
// task is permitted; its abandoned pipeline updates then no-op.
func (s *Store) RemoveFromQueue(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.batchQueue {
		if s.batchQueue[i].ID == id {
			s.batchQueue = append(s.batchQueue[:i], s.batchQueue[i+1:]...)
			return
		}
	}
}

// ClearQueue removes all tasks.
func (s *Store) ClearQueue() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchQueue = nil
}

// Queue returns a snapshot copy of the batch queue.
func (s *Store) Queue() []domain.UploadTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UploadTask, len(s.batchQueue))
	copy(out, s.batchQueue)
	return out
}

// Task returns one task by id.
func (s *Store) Task(id string) (domain.UploadTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.batchQueue {
		if t.ID == id {
			return t, true
		}
	}
	return domain.UploadTask{}, false
}

// PendingTasks returns the tasks currently in pending status, queue order.
func (s *Store) PendingTasks() []domain.UploadTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.UploadTask
	for _, t := range s.batchQueue {
		if t.Status == domain.TaskStatusPending {
			out = append(out, t)
		}
	}
	return out
}

// QueueStats derives the aggregate view over the queue. Nothing here is
// stored; it is recomputed from the task list on every call.
func (s *Store) QueueStats() domain.QueueStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := domain.QueueStats{Total: len(s.batchQueue)}
	for _, t := range s.batchQueue {
		switch t.Status {
		case domain.TaskStatusPending:
			stats.Pending++
		case domain.TaskStatusUploading, domain.TaskStatusProcessing:
			stats.Running++
		case domain.TaskStatusDone:
			stats.Done++
		case domain.TaskStatusError:
			stats.Errors++
		}
		stats.ProductsAdded += t.ProductsAdded
	}
	return stats
}
