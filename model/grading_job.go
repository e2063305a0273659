package model

import "time"

// GradingJobStatus represents the status of a batch grading job
type GradingJobStatus string

const (
	GradingJobPending    GradingJobStatus = "pending"
	GradingJobProcessing GradingJobStatus = "processing"
	GradingJobCompleted  GradingJobStatus = "completed"
	GradingJobFailed     GradingJobStatus = "failed"
	GradingJobCancelled  GradingJobStatus = "cancelled"
)

// SubmissionError records one submission's failure inside a batch job.
// Individual failures never abort the job; they accumulate here.
type SubmissionError struct {
	SubmissionID uint   `json:"submission_id"`
	Error        string `json:"error"`
}

// GradingJob is the state of a batch grading job stored in Redis.
// Progress counts are updated after each submission completes, so a polling
// caller observes monotonically increasing counts.
type GradingJob struct {
	JobID  string           `json:"job_id"`
	ExamID uint             `json:"exam_id"`
	Status GradingJobStatus `json:"status"`

	TotalSubmissions int `json:"total_submissions"`
	ProcessedCount   int `json:"processed_count"`
	SuccessCount     int `json:"success_count"`
	FailureCount     int `json:"failure_count"`

	Message string            `json:"message,omitempty"`
	Errors  []SubmissionError `json:"errors,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Redis key patterns for grading jobs
const (
	// RedisKeyGradingJob stores the full job state as JSON.
	// Usage: fmt.Sprintf(RedisKeyGradingJob, jobID)
	RedisKeyGradingJob = "grading:job:%s"

	// RedisKeyGradingJobCancel is the cooperative cancellation flag, checked
	// at submission boundaries only.
	// Usage: fmt.Sprintf(RedisKeyGradingJobCancel, jobID)
	RedisKeyGradingJobCancel = "grading:job:cancel:%s"

	// RedisKeyActiveGradingJob tracks the active job for an exam.
	// Usage: fmt.Sprintf(RedisKeyActiveGradingJob, examID)
	RedisKeyActiveGradingJob = "grading:active:%d"
)
