package domain

import "time"

// PendingUpload is a durable record of an upload that could not be sent due
// to missing connectivity. It survives process restarts and is removed only
// after successful remote submission.
type PendingUpload struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	FileData  []byte    `gorm:"type:blob;not null" json:"-"`
	FileName  string    `gorm:"type:text;not null" json:"file_name"`
	FileType  string    `gorm:"type:text" json:"file_type"`
	Model     string    `gorm:"type:text" json:"model"`
	Source    string    `gorm:"type:text" json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for PendingUpload.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (PendingUpload) TableName() string {
	return "pending_uploads"
}

// AsFile reconstructs the in-memory File from the durable record.
func (p *PendingUpload) AsFile() File {
	return NewFile(p.FileName, p.FileData, p.FileType)
}

// Preference is one durable key-value record. Only user preferences live
// here; the batch queue and extracted products are deliberately ephemeral
// because queue items reference large binary payloads.
type Preference struct {
	Key       string    `gorm:"type:text;primaryKey" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Preference.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Preference) TableName() string {
	return "preferences"
}
