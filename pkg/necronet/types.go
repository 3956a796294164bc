package necronet

import (
	"io"
	"time"
)

// ArtifactType classifies an artifact for rendering.
type ArtifactType string

// Artifact type constants (typed).
const (
	ArtifactTypeFlash   ArtifactType = "flash"
	ArtifactTypeHTML    ArtifactType = "html"
	ArtifactTypeImage   ArtifactType = "image"
	ArtifactTypeArchive ArtifactType = "archive"
	ArtifactTypeOther   ArtifactType = "other"
)

// Valid reports whether t is one of the known artifact types.
func (t ArtifactType) Valid() bool {
	switch t {
	case ArtifactTypeFlash, ArtifactTypeHTML, ArtifactTypeImage, ArtifactTypeArchive, ArtifactTypeOther:
		return true
	}
	return false
}

// Status is the migration state of an artifact as reported by the service.
type Status string

// Status constants (typed).
const (
	StatusUploaded  Status = "uploaded"
	StatusMigrating Status = "migrating"
	StatusReady     Status = "ready"
	StatusFailed    Status = "failed"
)

// Artifact is the remote service's view of an uploaded file.
// The client only ever holds a possibly stale copy.
type Artifact struct {
	ID           string       `json:"artifact_id"`
	Name         string       `json:"name"`
	Type         ArtifactType `json:"artifact_type"`
	StorageKey   string       `json:"storage_key"`
	CreatedAt    Timestamp    `json:"created_at"`
	Status       Status       `json:"status"`
	NarrationURL *string      `json:"ghost_narration_url"`
	ErrorMessage *string      `json:"error_message"`
	Description  *string      `json:"description,omitempty"`
	OriginalURL  *string      `json:"original_url,omitempty"`
}

// HasNarration reports whether the migration produced a narration.
func (a *Artifact) HasNarration() bool {
	return a != nil && a.NarrationURL != nil && *a.NarrationURL != ""
}

// ArtifactList is one page of artifacts.
type ArtifactList struct {
	Artifacts []Artifact `json:"artifacts"`
	Total     int        `json:"total"`
}

// MigrationPlan describes how the service intends to migrate an artifact type.
type MigrationPlan struct {
	ArtifactID               string       `json:"artifact_id"`
	ArtifactType             ArtifactType `json:"artifact_type"`
	Strategy                 string       `json:"strategy"`
	Steps                    []string     `json:"steps"`
	EstimatedDurationSeconds int          `json:"estimated_duration_seconds"`
}

// MigrationPlanRequest is the body of a migration plan query.
type MigrationPlanRequest struct {
	Name         string       `json:"name"`
	ArtifactType ArtifactType `json:"artifact_type"`
}

// Health is the service liveness report.
type Health struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp,omitempty"`
	Supabase  string `json:"supabase,omitempty"`
	S3        string `json:"s3,omitempty"`
	TTS       string `json:"tts,omitempty"`
}

// File is a candidate upload. Only Name and Size are consulted by validation;
// Reader supplies the bytes when the file is sent.
type File struct {
	Name   string
	Size   int64
	Reader io.Reader
}

// ProgressStatus is the phase of a single upload attempt.
type ProgressStatus string

// Upload progress phases.
const (
	ProgressIdle      ProgressStatus = "idle"
	ProgressUploading ProgressStatus = "uploading"
	ProgressSuccess   ProgressStatus = "success"
	ProgressError     ProgressStatus = "error"
)

// UploadProgress is local, never persisted upload state.
type UploadProgress struct {
	Percent int            `json:"percent"`
	Status  ProgressStatus `json:"status"`
	Error   string         `json:"error,omitempty"`
}

// IdleProgress is the state before any upload and after a reset.
func IdleProgress() UploadProgress {
	return UploadProgress{Percent: 0, Status: ProgressIdle}
}

// ValidationResult is the outcome of a pre-flight file check.
type ValidationResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// Timestamp accepts both RFC 3339 and the zone-less ISO 8601 form the
// service emits ("2024-05-01T10:00:00.123456"). Zone-less values are UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" || s == `""` {
		t.Time = time.Time{}
		return nil
	}
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return &time.ParseError{Layout: time.RFC3339Nano, Value: s, Message: ": timestamp must be a JSON string"}
	}
	s = s[1 : len(s)-1]

	var lastErr error
	for _, layout := range timestampLayouts {
		parsed, err := time.Parse(layout, s)
		if err == nil {
			t.Time = parsed.UTC()
			return nil
		}
		lastErr = err
	}
	return lastErr
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.UTC().Format(time.RFC3339Nano) + `"`), nil
}
