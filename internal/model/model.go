package model

import "time"

type Room struct {
	RoomKey      string    `json:"room_key"`
	CreatedBy    string    `json:"created_by"`
	Participants []string  `json:"participants"`
	Language     string    `json:"language"`
	CreatedAt    time.Time `json:"created_at"`
}

const DefaultLanguage = "javascript"

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// ExecutionJob is the queued form of a run request. RoomKey is empty for
// solo runs; results are then addressed to the submitting user instead.
type ExecutionJob struct {
	JobID      string    `json:"job_id"`
	RoomKey    string    `json:"room_key,omitempty"`
	UserID     string    `json:"user_id"`
	Language   string    `json:"language"`
	SourceCode string    `json:"source_code"`
	Stdin      string    `json:"stdin,omitempty"`
	Status     JobStatus `json:"status"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Topic names the event bus channel a job's terminal event is published to.
func (j ExecutionJob) Topic() string {
	if j.RoomKey != "" {
		return j.RoomKey
	}
	return j.UserID
}

const (
	RunStatusSuccess = "success"
	RunStatusError   = "error"
)

// ExecutionRecord is the immutable audit entry written once per completed
// job. Output holds stdout on success, stderr or the failure message
// otherwise. ExecutionMs is wall time reported by the engine.
type ExecutionRecord struct {
	ID          int64     `json:"id" db:"id"`
	JobID       string    `json:"job_id" db:"job_id"`
	UserID      string    `json:"user_id" db:"user_id"`
	RoomKey     *string   `json:"room_key,omitempty" db:"room_key"`
	Language    string    `json:"language" db:"language"`
	Code        string    `json:"code" db:"code"`
	Input       string    `json:"input" db:"input"`
	Output      string    `json:"output" db:"output"`
	ExecutionMs int64     `json:"execution_ms" db:"execution_ms"`
	Status      string    `json:"status" db:"status"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
