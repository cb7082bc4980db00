package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/docling/docling-agent/internal/api"
	"github.com/docling/docling-agent/internal/domain"
	"github.com/docling/docling-agent/internal/store"
)

// fakeAPI scripts the remote endpoints per file name.
type fakeAPI struct {
	mu sync.Mutex

	// processCalls records ProcessInvoice invocations in arrival order.
	processCalls []string
	savedBatches [][]domain.ExtractedProduct
	savedSource  domain.Source

	processFn func(file domain.File) (*api.ProcessResponse, error)
	statusFn  func(jobID string) (*api.JobStatusResponse, error)
	saveErr   error
}

func (f *fakeAPI) ProcessInvoice(_ context.Context, file domain.File, _ string, _ domain.Source) (*api.ProcessResponse, error) {
	f.mu.Lock()
	f.processCalls = append(f.processCalls, file.Name)
	f.mu.Unlock()
	if f.processFn != nil {
		return f.processFn(file)
	}
	return &api.ProcessResponse{Success: true, JobID: "job-" + file.Name}, nil
}

func (f *fakeAPI) JobStatus(_ context.Context, jobID string) (*api.JobStatusResponse, error) {
	if f.statusFn != nil {
		return f.statusFn(jobID)
	}
	return completedStatus(2), nil
}

func (f *fakeAPI) SaveBatch(_ context.Context, products []domain.ExtractedProduct, source domain.Source) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.savedBatches = append(f.savedBatches, products)
	f.savedSource = source
	return nil
}

func (f *fakeAPI) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.processCalls))
	copy(out, f.processCalls)
	return out
}

func completedStatus(added int) *api.JobStatusResponse {
	st := &api.JobStatusResponse{Status: "completed"}
	st.Result = &struct {
		Products      []domain.ExtractedProduct `json:"products"`
		ProductsAdded int                       `json:"products_added"`
	}{ProductsAdded: added}
	return st
}

// passComp passes files through unchanged.
type passComp struct{}

func (passComp) Compress(file domain.File) (domain.File, error) { return file, nil }

// fakeOffline is an in-memory durable queue.
type fakeOffline struct {
	mu      sync.Mutex
	nextID  uint
	records []domain.PendingUpload
}

func (f *fakeOffline) Enqueue(_ context.Context, file domain.File, model string, source domain.Source) (uint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.records = append(f.records, domain.PendingUpload{
		ID:       f.nextID,
		FileData: file.Data,
		FileName: file.Name,
		FileType: file.MIME,
		Model:    model,
		Source:   string(source),
	})
	return f.nextID, nil
}

func (f *fakeOffline) ListPending(context.Context) ([]domain.PendingUpload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.PendingUpload, len(f.records))
	copy(out, f.records)
	return out, nil
}

func (f *fakeOffline) Remove(_ context.Context, id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.records {
		if r.ID == id {
			f.records = append(f.records[:i], f.records[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeOffline) Count(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.records)), nil
}

// online is a fixed connectivity answer.
type online bool

func (o online) Online(context.Context) bool { return bool(o) }

func fastConfig() QueueConfig {
	return QueueConfig{
		Concurrency:       3,
		PollMaxAttempts:   5,
		PollIntervalSmall: time.Millisecond,
		PollIntervalLarge: time.Millisecond,
	}
}

func pdf(name string) domain.File {
	return domain.File{Name: name, Size: 10, MIME: "application/pdf", Data: []byte("%PDF-fake.")}
}

func TestStartBatchProcessesInChunks(t *testing.T) {
	st := store.New(nil, "m")
	apiFake := &fakeAPI{}
	mgr := NewQueueManager(st, apiFake, passComp{}, &fakeOffline{}, online(true), fastConfig(), nil)

	var files []domain.File
	for i := 0; i < 7; i++ {
		files = append(files, pdf(fmt.Sprintf("f%d.pdf", i)))
	}
	mgr.AddFiles(files, domain.SourcePC)
	mgr.StartBatch(context.Background())

	calls := apiFake.calls()
	if len(calls) != 7 {
		t.Fatalf("ProcessInvoice called %d times, want 7", len(calls))
	}

	// With concurrency 3, the cohort must submit as the groups
	// {f0,f1,f2}, {f3,f4,f5}, {f6}; order within a group is free.
	chunks := [][]int{{0, 1, 2}, {3, 4, 5}, {6}}
	pos := 0
	for _, chunk := range chunks {
		seen := map[string]bool{}
		for range chunk {
			seen[calls[pos]] = true
			pos++
		}
		for _, i := range chunk {
			name := fmt.Sprintf("f%d.pdf", i)
			if !seen[name] {
				t.Errorf("file %s submitted outside its chunk; calls = %v", name, calls)
			}
		}
	}

	stats := st.QueueStats()
	if stats.Done != 7 || stats.Errors != 0 {
		t.Errorf("stats = %+v, want 7 done", stats)
	}
	if stats.ProductsAdded != 14 {
		t.Errorf("ProductsAdded = %d, want 14", stats.ProductsAdded)
	}
}

func TestStartBatchIsNotReentrant(t *testing.T) {
	st := store.New(nil, "m")
	release := make(chan struct{})
	apiFake := &fakeAPI{
		processFn: func(file domain.File) (*api.ProcessResponse, error) {
			<-release
			return &api.ProcessResponse{Success: true, JobID: "j"}, nil
		},
	}
	mgr := NewQueueManager(st, apiFake, passComp{}, &fakeOffline{}, online(true), fastConfig(), nil)
	mgr.AddFiles([]domain.File{pdf("a.pdf")}, domain.SourcePC)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		mgr.StartBatch(context.Background())
	}()

	// Wait for the first run to hold the lock, then try to re-enter.
	for i := 0; i < 100; i++ {
		if len(apiFake.calls()) > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	mgr.StartBatch(context.Background())
	close(release)
	wg.Wait()

	if got := len(apiFake.calls()); got != 1 {
		t.Errorf("ProcessInvoice called %d times, want 1 (second start must no-op)", got)
	}
}

func TestProcessOneFailureSetsTaskError(t *testing.T) {
	tests := []struct {
		name      string
		processFn func(domain.File) (*api.ProcessResponse, error)
		statusFn  func(string) (*api.JobStatusResponse, error)
		wantError string
	}{
		{
			name: "job reports extraction failure",
			statusFn: func(string) (*api.JobStatusResponse, error) {
				return &api.JobStatusResponse{Status: "error", Error: "Bad OCR"}, nil
			},
			wantError: "Bad OCR",
		},
		{
			name: "job failure without message gets a default",
			statusFn: func(string) (*api.JobStatusResponse, error) {
				return &api.JobStatusResponse{Status: "error"}, nil
			},
			wantError: "extraction failed",
		},
		{
			name: "accept response without job id",
			processFn: func(domain.File) (*api.ProcessResponse, error) {
				return &api.ProcessResponse{Success: true}, nil
			},
			wantError: api.ErrMissingJobID.Error(),
		},
		{
			name: "polling never reaches terminal state",
			statusFn: func(string) (*api.JobStatusResponse, error) {
				return &api.JobStatusResponse{Status: "processing"}, nil
			},
			wantError: ErrPollTimeout.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.New(nil, "m")
			apiFake := &fakeAPI{processFn: tt.processFn, statusFn: tt.statusFn}
			mgr := NewQueueManager(st, apiFake, passComp{}, &fakeOffline{}, online(true), fastConfig(), nil)

			admitted := mgr.AddFiles([]domain.File{pdf("a.pdf")}, domain.SourcePC)
			mgr.ProcessOne(context.Background(), admitted[0].ID, time.Millisecond)

			task, ok := st.Task(admitted[0].ID)
			if !ok {
				t.Fatal("task missing after processing")
			}
			if task.Status != domain.TaskStatusError {
				t.Errorf("status = %q, want error", task.Status)
			}
			if task.Progress != 0 {
				t.Errorf("progress = %d, want 0", task.Progress)
			}
			if task.Error != tt.wantError {
				t.Errorf("error = %q, want %q", task.Error, tt.wantError)
			}
		})
	}
}

func TestProcessOneTransientPollErrorsAreRetried(t *testing.T) {
	st := store.New(nil, "m")
	polls := 0
	apiFake := &fakeAPI{
		statusFn: func(string) (*api.JobStatusResponse, error) {
			polls++
			if polls < 3 {
				return nil, errors.New("connection reset")
			}
			return completedStatus(1), nil
		},
	}
	mgr := NewQueueManager(st, apiFake, passComp{}, &fakeOffline{}, online(true), fastConfig(), nil)

	admitted := mgr.AddFiles([]domain.File{pdf("a.pdf")}, domain.SourcePC)
	mgr.ProcessOne(context.Background(), admitted[0].ID, time.Millisecond)

	task, _ := st.Task(admitted[0].ID)
	if task.Status != domain.TaskStatusDone || task.Progress != 100 {
		t.Errorf("task = (%s, %d), want (done, 100)", task.Status, task.Progress)
	}
}

func TestProcessOneUnauthorizedPollFailsTask(t *testing.T) {
	st := store.New(nil, "m")
	apiFake := &fakeAPI{
		statusFn: func(string) (*api.JobStatusResponse, error) {
			return nil, api.ErrUnauthorized
		},
	}
	mgr := NewQueueManager(st, apiFake, passComp{}, &fakeOffline{}, online(true), fastConfig(), nil)

	admitted := mgr.AddFiles([]domain.File{pdf("a.pdf")}, domain.SourcePC)
	mgr.ProcessOne(context.Background(), admitted[0].ID, time.Millisecond)

	task, _ := st.Task(admitted[0].ID)
	if task.Status != domain.TaskStatusError {
		t.Errorf("status = %q, want error (401 is terminal)", task.Status)
	}
}

func TestProcessOneOfflineGoesToDurableQueue(t *testing.T) {
	st := store.New(nil, "model-x")
	apiFake := &fakeAPI{}
	offline := &fakeOffline{}
	mgr := NewQueueManager(st, apiFake, passComp{}, offline, online(false), fastConfig(), nil)

	mgr.AddFiles([]domain.File{pdf("a.pdf"), pdf("b.pdf")}, domain.SourcePC)
	mgr.StartBatch(context.Background())

	if got := len(apiFake.calls()); got != 0 {
		t.Errorf("ProcessInvoice called %d times while offline, want 0", got)
	}
	recs, _ := offline.ListPending(context.Background())
	if len(recs) != 2 {
		t.Fatalf("durable queue holds %d records, want 2", len(recs))
	}
	if recs[0].Model != "model-x" {
		t.Errorf("record model = %q, want model-x", recs[0].Model)
	}
	if got := st.QueueStats().Total; got != 0 {
		t.Errorf("in-memory queue holds %d tasks after offline handoff, want 0", got)
	}
}

func TestProcessOneCancellationLeavesTaskStateAlone(t *testing.T) {
	st := store.New(nil, "m")
	ctx, cancel := context.WithCancel(context.Background())
	apiFake := &fakeAPI{
		processFn: func(domain.File) (*api.ProcessResponse, error) {
			cancel()
			return nil, context.Canceled
		},
	}
	mgr := NewQueueManager(st, apiFake, passComp{}, &fakeOffline{}, online(true), fastConfig(), nil)

	admitted := mgr.AddFiles([]domain.File{pdf("a.pdf")}, domain.SourcePC)
	mgr.ProcessOne(ctx, admitted[0].ID, time.Millisecond)

	task, _ := st.Task(admitted[0].ID)
	if task.Status == domain.TaskStatusError || task.Status == domain.TaskStatusDone {
		t.Errorf("status = %q, cancellation must not produce a terminal state", task.Status)
	}
	if task.Error != "" {
		t.Errorf("error = %q, want empty after cancellation", task.Error)
	}
}

func TestProcessOneRemovedTaskIsIgnored(t *testing.T) {
	st := store.New(nil, "m")
	apiFake := &fakeAPI{}
	mgr := NewQueueManager(st, apiFake, passComp{}, &fakeOffline{}, online(true), fastConfig(), nil)

	admitted := mgr.AddFiles([]domain.File{pdf("a.pdf")}, domain.SourcePC)
	st.RemoveFromQueue(admitted[0].ID)

	mgr.ProcessOne(context.Background(), admitted[0].ID, time.Millisecond)

	if got := len(apiFake.calls()); got != 0 {
		t.Errorf("ProcessInvoice called %d times for a removed task, want 0", got)
	}
}
