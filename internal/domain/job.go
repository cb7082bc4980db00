package domain

// Source identifies where an upload originated.
// Values include SourceMobile, SourcePC, and SourceFolderScan.
type Source string

const (
	SourceMobile     Source = "mobile"
	SourcePC         Source = "pc"
	SourceFolderScan Source = "folder-scan"
)

// ScanStage is one of the UI-visible stages of the single-file scan path.
// The stages exist purely for progress display; the pipeline underneath is
// the same compress-submit-poll sequence the batch queue uses.
type ScanStage string

const (
	StageUpload   ScanStage = "upload"
	StageAI       ScanStage = "ai"
	StageValidate ScanStage = "validate"
	StageSave     ScanStage = "save"
)

// Job is one backend-tracked extraction request for the single-file path.
// It exists from submission until a terminal status and is superseded by the
// extracted product list on success.
type Job struct {
	JobID       string
	PreviewPath string // local-only reference to the original file
	Source      Source
}
