package domain

import "time"

// AssetStatus enumerates the pipeline states an asset moves through.
type AssetStatus string

const (
	AssetStatusPending        AssetStatus = "pending"
	AssetStatusAuditingInput  AssetStatus = "auditing_input"
	AssetStatusGenerating     AssetStatus = "generating"
	AssetStatusAuditingOutput AssetStatus = "auditing_output"
	AssetStatusUploading      AssetStatus = "uploading"
	AssetStatusCompleted      AssetStatus = "completed"
	AssetStatusFailed         AssetStatus = "failed"
)

// statusOrder is the position of each non-failed status along the pipeline.
var statusOrder = map[AssetStatus]int{
	AssetStatusPending:        0,
	AssetStatusAuditingInput:  1,
	AssetStatusGenerating:     2,
	AssetStatusAuditingOutput: 3,
	AssetStatusUploading:      4,
	AssetStatusCompleted:      5,
}

// Valid reports whether s is a known status.
func (s AssetStatus) Valid() bool {
	if s == AssetStatusFailed {
		return true
	}
	_, ok := statusOrder[s]
	return ok
}

// Terminal reports whether no further transition may leave s.
func (s AssetStatus) Terminal() bool {
	return s == AssetStatusCompleted || s == AssetStatusFailed
}

// Ahead reports whether s sits strictly later in the pipeline than other.
// Failed is never ahead of anything; use CanTransition for the full rules.
func (s AssetStatus) Ahead(other AssetStatus) bool {
	a, okA := statusOrder[s]
	b, okB := statusOrder[other]
	return okA && okB && a > b
}

// CanTransition reports whether the pipeline may move an asset from one status to another.
// Forward moves (including skips) are allowed, failed is reachable from any non-terminal
// status, and terminal statuses never change.
func CanTransition(from, to AssetStatus) bool {
	if !from.Valid() || !to.Valid() || from.Terminal() {
		return false
	}
	if to == AssetStatusFailed {
		return true
	}
	return to.Ahead(from)
}

// Asset is the durable record tracking one generation from submission to artifact.
type Asset struct {
	ID               string      `json:"id" db:"id"`
	ProjectID        string      `json:"project_id" db:"project_id"`
	SourceSketchID   string      `json:"source_sketch_id,omitempty" db:"source_sketch_id"`
	Prompt           string      `json:"prompt" db:"prompt"`
	Status           AssetStatus `json:"status" db:"status"`
	StorageURL       *string     `json:"storage_url,omitempty" db:"storage_url"`
	ErrorCode        *ErrorCode  `json:"error_code,omitempty" db:"error_code"`
	ErrorMessage     *string     `json:"error_message,omitempty" db:"error_message"`
	AIModelVersion   *string     `json:"ai_model_version,omitempty" db:"ai_model_version"`
	GenerationSeed   *int64      `json:"generation_seed,omitempty" db:"generation_seed"`
	ProcessingTimeMs *int64      `json:"processing_time_ms,omitempty" db:"processing_time_ms"`
	CreatedAt        time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at" db:"updated_at"`
}

// AssetFields carries the optional columns a transition may set alongside the status.
// Nil pointers leave the stored value untouched.
type AssetFields struct {
	StorageURL       *string
	ErrorCode        *ErrorCode
	ErrorMessage     *string
	AIModelVersion   *string
	GenerationSeed   *int64
	ProcessingTimeMs *int64
}

// Apply copies the non-nil fields onto a.
func (f AssetFields) Apply(a *Asset) {
	if f.StorageURL != nil {
		a.StorageURL = f.StorageURL
	}
	if f.ErrorCode != nil {
		a.ErrorCode = f.ErrorCode
	}
	if f.ErrorMessage != nil {
		a.ErrorMessage = f.ErrorMessage
	}
	if f.AIModelVersion != nil {
		a.AIModelVersion = f.AIModelVersion
	}
	if f.GenerationSeed != nil {
		a.GenerationSeed = f.GenerationSeed
	}
	if f.ProcessingTimeMs != nil {
		a.ProcessingTimeMs = f.ProcessingTimeMs
	}
}

// FailureFields builds the fields recorded when an asset fails with err.
func FailureFields(err *Error) AssetFields {
	code := err.Code
	msg := err.Message
	return AssetFields{ErrorCode: &code, ErrorMessage: &msg}
}
