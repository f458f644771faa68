package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeRegistration    JobType = "registration"
	JobTypeStatementExport JobType = "statement_export"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// RegistrationJobPayload points at the registration task to attempt
type RegistrationJobPayload struct {
	TaskID uint `json:"task_id"`
}

// ToMap converts the payload to a map for storage
func (p RegistrationJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"task_id": p.TaskID,
	}
}

// RegistrationJobPayloadFromMap creates a payload from a map
func RegistrationJobPayloadFromMap(data map[string]interface{}) (*RegistrationJobPayload, error) {
	var payload RegistrationJobPayload
	err := decodePayload(data, &payload)
	return &payload, err
}

// StatementExportJobPayload contains the statement range to export
type StatementExportJobPayload struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// ToMap converts the payload to a map for storage
func (p StatementExportJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"from": p.From.UTC().Format(time.RFC3339),
		"to":   p.To.UTC().Format(time.RFC3339),
	}
}

// StatementExportJobPayloadFromMap creates a payload from a map
func StatementExportJobPayloadFromMap(data map[string]interface{}) (*StatementExportJobPayload, error) {
	var payload StatementExportJobPayload
	err := decodePayload(data, &payload)
	return &payload, err
}

func decodePayload(data map[string]interface{}, out interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonData, out)
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
