package domain

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// TaskStatus represents the processing status of an upload task.
// Values include TaskStatusPending, TaskStatusUploading, TaskStatusProcessing,
// TaskStatusDone, and TaskStatusError.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusUploading  TaskStatus = "uploading"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusError      TaskStatus = "error"
)

// Terminal reports whether the status is a terminal state, i.e. no further
// automatic transition occurs.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusDone || s == TaskStatusError
}

// File is one invoice payload with its original metadata. The raw bytes are
// held in memory until the task reaches a terminal state.
type File struct {
	Name string
	Size int64
	MIME string
	Data []byte
}

// NewFile builds a File from raw bytes, inferring the MIME type from the
// file name when none is given.
func NewFile(name string, data []byte, mimeType string) File {
	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(name))
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
	}
	return File{
		Name: name,
		Size: int64(len(data)),
		MIME: mimeType,
		Data: data,
	}
}

// LoadFile reads a file from disk into a File.
// Parameters:
//   - path: filesystem path of the invoice file.
// Returns:
//   - File: in-memory file with name, size and MIME type filled.
//   - error: non-nil if the file cannot be read.
func LoadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("failed to read file: %w", err)
	}
	return NewFile(filepath.Base(path), data, ""), nil
}

// IsImage reports whether the file is an image by MIME type.
func (f File) IsImage() bool {
	return strings.HasPrefix(f.MIME, "image/")
}

// DedupeKey returns the queue deduplication key. No two tasks in the same
// queue may share identical (name, size).
func (f File) DedupeKey() string {
	return fmt.Sprintf("%s__%d", f.Name, f.Size)
}

// UploadTask is one file pending or undergoing batch processing.
// Invariant: Error is non-empty exactly when Status == TaskStatusError.
type UploadTask struct {
	ID            string
	File          File
	Source        Source
	Compressed    *File // set once image compression ran, nil otherwise
	Status        TaskStatus
	Progress      int // 0-100, monotone within one attempt, reset on retry
	Error         string
	ProductsAdded int
}

// Payload returns the bytes to upload: the compressed variant when present,
// the original file otherwise.
func (t *UploadTask) Payload() File {
	if t.Compressed != nil {
		return *t.Compressed
	}
	return t.File
}

// QueueStats is the derived aggregate view over a batch queue.
type QueueStats struct {
	Total         int
	Pending       int
	Running       int // uploading + processing
	Done          int
	Errors        int
	ProductsAdded int
}
