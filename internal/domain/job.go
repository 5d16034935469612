package domain

import "time"

// Quality enumerates the requested output quality tiers, lowest first.
type Quality string

const (
	QualityStandard Quality = "standard"
	QualityHD       Quality = "hd"
	QualityUltra    Quality = "ultra"
)

// Rank orders qualities; unknown values rank zero.
func (q Quality) Rank() int {
	switch q {
	case QualityStandard:
		return 1
	case QualityHD:
		return 2
	case QualityUltra:
		return 3
	default:
		return 0
	}
}

// NormalizeQuality maps free-form input onto a supported tier.
func NormalizeQuality(q string) Quality {
	switch Quality(q) {
	case QualityHD, QualityUltra:
		return Quality(q)
	default:
		return QualityStandard
	}
}

// JobStatus enumerates queue-level job states.
type JobStatus string

const (
	JobStatusQueued  JobStatus = "queued"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusDead    JobStatus = "dead"
)

// Finished reports whether the job left the queue for good.
func (s JobStatus) Finished() bool {
	return s == JobStatusDone || s == JobStatusDead
}

// GenerationJob is the transient unit of work handed to a worker. It is 1:1 with an
// asset while queued or running.
type GenerationJob struct {
	ID               string    `json:"id" db:"id"`
	AssetID          string    `json:"asset_id" db:"asset_id"`
	SourceImage      []byte    `json:"-" db:"source_image"`
	SourceMIME       string    `json:"source_mime" db:"source_mime"`
	Prompt           string    `json:"prompt" db:"prompt"`
	RequestedQuality Quality   `json:"requested_quality" db:"requested_quality"`
	Style            string    `json:"style,omitempty" db:"style"`
	Seed             *int64    `json:"seed,omitempty" db:"seed"`
	Provider         string    `json:"provider,omitempty" db:"provider"`
	Fallbacks        []string  `json:"fallbacks,omitempty" db:"fallbacks"`
	Priority         int       `json:"priority" db:"priority"`
	Status           JobStatus `json:"status" db:"status"`
	Attempts         int       `json:"attempts" db:"attempts"`
	MaxAttempts      int       `json:"max_attempts" db:"max_attempts"`
	LastError        *string   `json:"last_error,omitempty" db:"last_error"`
	CancelRequested  bool      `json:"cancel_requested" db:"cancel_requested"`
	RunAt            time.Time `json:"run_at" db:"run_at"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}
