package domain

import "testing"

func TestTaskStatusTerminal(t *testing.T) {
	tests := []struct {
		status TaskStatus
		want   bool
	}{
		{TaskStatusPending, false},
		{TaskStatusUploading, false},
		{TaskStatusProcessing, false},
		{TaskStatusDone, true},
		{TaskStatusError, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestNewFileInfersMIME(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		mime     string
		wantMIME string
	}{
		{name: "explicit mime kept", fileName: "x.bin", mime: "image/png", wantMIME: "image/png"},
		{name: "pdf inferred", fileName: "facture.pdf", mime: "", wantMIME: "application/pdf"},
		{name: "unknown falls back", fileName: "facture", mime: "", wantMIME: "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFile(tt.fileName, []byte("abc"), tt.mime)
			if f.MIME != tt.wantMIME {
				t.Errorf("MIME = %q, want %q", f.MIME, tt.wantMIME)
			}
			if f.Size != 3 {
				t.Errorf("Size = %d, want 3", f.Size)
			}
		})
	}
}

func TestDedupeKey(t *testing.T) {
	a := NewFile("facture.pdf", []byte("abc"), "")
	b := NewFile("facture.pdf", []byte("xyz"), "")
	c := NewFile("facture.pdf", []byte("abcd"), "")

	if a.DedupeKey() != b.DedupeKey() {
		t.Error("same name and size must share a dedupe key")
	}
	if a.DedupeKey() == c.DedupeKey() {
		t.Error("different sizes must not share a dedupe key")
	}
}

func TestUploadTaskPayload(t *testing.T) {
	original := NewFile("photo.png", []byte("original"), "image/png")
	task := UploadTask{File: original}

	if got := task.Payload(); got.Name != "photo.png" {
		t.Errorf("Payload() = %q, want the original before compression", got.Name)
	}

	compressed := NewFile("photo.jpg", []byte("small"), "image/jpeg")
	task.Compressed = &compressed
	if got := task.Payload(); got.Name != "photo.jpg" {
		t.Errorf("Payload() = %q, want the compressed rendition", got.Name)
	}
}
