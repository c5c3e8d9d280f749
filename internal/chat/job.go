package chat

import "time"

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

type JobKind string

const (
	JobQuestion JobKind = "question"
	JobIncident JobKind = "incident"
)

// Job is one queued interaction, picked up by the worker.
type Job struct {
	ID string `gorm:"primaryKey;size:26" json:"job_id"` // ULID length

	SessionID string  `gorm:"size:36;index;not null" json:"session_id"`
	Kind      JobKind `gorm:"type:varchar(16);not null" json:"kind"`

	Prompt   string `gorm:"type:text" json:"prompt,omitempty"`
	LogID    *int64 `json:"log_id,omitempty"`
	Language string `gorm:"type:varchar(16)" json:"language,omitempty"`

	Status JobStatus `gorm:"type:varchar(16);index;not null" json:"status"`

	// Filled when succeeded
	ResultMessageID *string `gorm:"size:26;index" json:"result_message_id,omitempty"`

	// Filled when failed
	Error *string `gorm:"type:text" json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Job) TableName() string { return "chat_jobs" }
