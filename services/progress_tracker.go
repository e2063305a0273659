package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scriptgrade/scriptgrade/model"
	"github.com/scriptgrade/scriptgrade/utils/cache"
)

// TTL configurations for grading job states
const (
	JobStateTTLSuccess = 1 * time.Hour  // completed jobs
	JobStateTTLFailure = 24 * time.Hour // failed jobs, kept longer for debugging
	JobStateTTLPending = 24 * time.Hour // pending/processing jobs
	JobCancelFlagTTL   = 30 * time.Minute
)

// ErrorType classifies a submission failure for the job's error list
type ErrorType string

const (
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeLLM        ErrorType = "llm"
	ErrorTypeRateLimit  ErrorType = "rate_limit"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeDatabase   ErrorType = "database"
	ErrorTypePDF        ErrorType = "pdf"
	ErrorTypeOCR        ErrorType = "ocr"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeUnknown    ErrorType = "unknown"
)

// jobStore is the subset of cache operations the tracker needs
type jobStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// ProgressTracker manages batch grading job state in Redis
type ProgressTracker struct {
	cache jobStore
}

// NewProgressTracker creates a new progress tracker instance
func NewProgressTracker(redisCache *cache.RedisCache) *ProgressTracker {
	return &ProgressTracker{cache: redisCache}
}

// CreateJob creates a new grading job and marks it active for the exam.
// One active job per exam: a second batch against the same exam is rejected
// until the first finishes or is cancelled.
func (pt *ProgressTracker) CreateJob(ctx context.Context, examID uint, totalSubmissions int) (*model.GradingJob, error) {
	activeKey := fmt.Sprintf(model.RedisKeyActiveGradingJob, examID)
	existingJobID, err := pt.cache.Get(ctx, activeKey)
	if err == nil && existingJobID != "" {
		return nil, fmt.Errorf("exam %d already has an active grading job: %s", examID, existingJobID)
	}

	job := &model.GradingJob{
		JobID:            uuid.NewString(),
		ExamID:           examID,
		Status:           model.GradingJobPending,
		TotalSubmissions: totalSubmissions,
		Message:          "Grading queued",
		StartedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}

	jobKey := fmt.Sprintf(model.RedisKeyGradingJob, job.JobID)
	if err := pt.cache.SetJSON(ctx, jobKey, job, JobStateTTLPending); err != nil {
		return nil, fmt.Errorf("failed to save job state: %w", err)
	}

	if err := pt.cache.Set(ctx, activeKey, job.JobID, JobStateTTLPending); err != nil {
		pt.cache.Delete(ctx, jobKey)
		return nil, fmt.Errorf("failed to mark job as active: %w", err)
	}

	return job, nil
}

// MarkProcessing transitions a pending job to processing
func (pt *ProgressTracker) MarkProcessing(ctx context.Context, jobID string) error {
	return pt.update(ctx, jobID, func(job *model.GradingJob) {
		job.Status = model.GradingJobProcessing
		job.Message = "Grading submissions"
	})
}

// RecordSubmission updates progress counts after one submission finishes.
// Counts only ever grow, so pollers observe monotonic progress.
func (pt *ProgressTracker) RecordSubmission(ctx context.Context, jobID string, submissionID uint, submissionErr error) error {
	return pt.update(ctx, jobID, func(job *model.GradingJob) {
		job.ProcessedCount++
		if submissionErr != nil {
			job.FailureCount++
			job.Errors = append(job.Errors, model.SubmissionError{
				SubmissionID: submissionID,
				Error:        submissionErr.Error(),
			})
		} else {
			job.SuccessCount++
		}
		job.Message = fmt.Sprintf("Graded %d/%d submissions", job.ProcessedCount, job.TotalSubmissions)
	})
}

// CompleteJob finalizes a job. "completed" means every submission was
// attempted even if some recorded errors; "failed" means the job loop itself
// died.
func (pt *ProgressTracker) CompleteJob(ctx context.Context, jobID string, jobErr error) error {
	err := pt.update(ctx, jobID, func(job *model.GradingJob) {
		// The batch loop defers completion even when it exits on a cancel
		// flag, so a cancelled job must keep its cancelled status.
		if job.Status == model.GradingJobCancelled {
			return
		}

		now := time.Now()
		job.CompletedAt = &now

		if jobErr != nil {
			job.Status = model.GradingJobFailed
			job.Message = jobErr.Error()
		} else {
			job.Status = model.GradingJobCompleted
			job.Message = fmt.Sprintf("Completed: %d succeeded, %d failed", job.SuccessCount, job.FailureCount)
		}
	})
	if err != nil {
		return err
	}

	job, err := pt.GetJob(ctx, jobID)
	if err == nil {
		activeKey := fmt.Sprintf(model.RedisKeyActiveGradingJob, job.ExamID)
		pt.cache.Delete(ctx, activeKey)
	}
	return nil
}

// GetJob retrieves job state from Redis
func (pt *ProgressTracker) GetJob(ctx context.Context, jobID string) (*model.GradingJob, error) {
	jobKey := fmt.Sprintf(model.RedisKeyGradingJob, jobID)

	var job model.GradingJob
	if err := pt.cache.GetJSON(ctx, jobKey, &job); err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, fmt.Errorf("job not found or expired: %s", jobID)
		}
		return nil, fmt.Errorf("failed to get job state: %w", err)
	}

	return &job, nil
}

// CancelJob flags a job cancelled. Cancellation is cooperative: the running
// loop notices the flag at the next submission boundary, never mid-call.
func (pt *ProgressTracker) CancelJob(ctx context.Context, jobID string) error {
	job, err := pt.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	if job.Status == model.GradingJobPending || job.Status == model.GradingJobProcessing {
		now := time.Now()
		job.Status = model.GradingJobCancelled
		job.CompletedAt = &now
		job.UpdatedAt = now
		job.Message = "Job cancelled"

		jobKey := fmt.Sprintf(model.RedisKeyGradingJob, jobID)
		if err := pt.cache.SetJSON(ctx, jobKey, job, JobStateTTLFailure); err != nil {
			return fmt.Errorf("failed to update job state: %w", err)
		}

		cancelKey := fmt.Sprintf(model.RedisKeyGradingJobCancel, jobID)
		pt.cache.Set(ctx, cancelKey, "1", JobCancelFlagTTL)
	}

	activeKey := fmt.Sprintf(model.RedisKeyActiveGradingJob, job.ExamID)
	pt.cache.Delete(ctx, activeKey)

	return nil
}

// IsJobCancelled checks the cooperative cancellation flag
func (pt *ProgressTracker) IsJobCancelled(ctx context.Context, jobID string) bool {
	cancelKey := fmt.Sprintf(model.RedisKeyGradingJobCancel, jobID)
	val, err := pt.cache.Get(ctx, cancelKey)
	return err == nil && val == "1"
}

// update applies a mutation to the stored job state and re-saves it with the
// TTL matching its (possibly new) status.
func (pt *ProgressTracker) update(ctx context.Context, jobID string, mutate func(*model.GradingJob)) error {
	job, err := pt.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	mutate(job)
	job.UpdatedAt = time.Now()

	ttl := JobStateTTLPending
	switch job.Status {
	case model.GradingJobCompleted:
		ttl = JobStateTTLSuccess
	case model.GradingJobFailed, model.GradingJobCancelled:
		ttl = JobStateTTLFailure
	}

	jobKey := fmt.Sprintf(model.RedisKeyGradingJob, jobID)
	if err := pt.cache.SetJSON(ctx, jobKey, job, ttl); err != nil {
		return fmt.Errorf("failed to update job state: %w", err)
	}

	return nil
}

// ClassifyError classifies a submission failure and reports whether a retry
// could plausibly succeed.
func ClassifyError(err error) (ErrorType, bool) {
	if err == nil {
		return ErrorTypeUnknown, false
	}

	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "rate limit") || strings.Contains(errStr, "status 429") {
		return ErrorTypeRateLimit, true
	}

	if strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "network") ||
		strings.Contains(errStr, "dial") ||
		strings.Contains(errStr, "eof") ||
		strings.Contains(errStr, "reset by peer") {
		return ErrorTypeNetwork, true
	}

	if strings.Contains(errStr, "inference api") ||
		strings.Contains(errStr, "status 500") ||
		strings.Contains(errStr, "status 502") ||
		strings.Contains(errStr, "status 503") ||
		strings.Contains(errStr, "status 504") ||
		strings.Contains(errStr, "llm") {
		return ErrorTypeLLM, true
	}

	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "context deadline") {
		return ErrorTypeTimeout, true
	}

	if strings.Contains(errStr, "database") ||
		strings.Contains(errStr, "transaction") ||
		strings.Contains(errStr, "sql") ||
		strings.Contains(errStr, "gorm") {
		return ErrorTypeDatabase, false
	}

	if strings.Contains(errStr, "pdf") ||
		strings.Contains(errStr, "render pages") ||
		strings.Contains(errStr, "invalid document") {
		return ErrorTypePDF, false
	}

	if strings.Contains(errStr, "ocr") {
		return ErrorTypeOCR, true
	}

	if strings.Contains(errStr, "validation") ||
		strings.Contains(errStr, "invalid") ||
		strings.Contains(errStr, "required") {
		return ErrorTypeValidation, false
	}

	return ErrorTypeUnknown, false
}
