package dto

import "encoding/json"

type CreateJobRequest struct {
	JobType    string          `json:"job_type" binding:"required"`
	OwnerID    string          `json:"owner_id" binding:"required"`
	Payload    json.RawMessage `json:"payload"`
	MaxRetries *int            `json:"max_retries"`
}

type ListJobsRequest struct {
	OwnerID string `form:"owner_id"`
	Status  string `form:"status"`
	Limit   int    `form:"limit"`
}

type ListJobsResponse struct {
	Jobs []JobDTO `json:"jobs"`
}

type JobDTO struct {
	JobID        string `json:"job_id"`
	JobType      string `json:"job_type"`
	OwnerID      string `json:"owner_id"`
	Payload      string `json:"payload"`
	Status       string `json:"status"`
	RetryCount   int    `json:"retry_count"`
	MaxRetries   int    `json:"max_retries"`
	ErrorMessage string `json:"error_message,omitempty"`
	CreatedAt    string `json:"created_at"`
	ProcessedAt  string `json:"processed_at,omitempty"`
	CompletedAt  string `json:"completed_at,omitempty"`
}
