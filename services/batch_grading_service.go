package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"gorm.io/gorm"

	"github.com/scriptgrade/scriptgrade/model"
	"github.com/scriptgrade/scriptgrade/services/storage"
)

// ObjectStore is the storage slice the batch runner needs
type ObjectStore interface {
	UploadBytes(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Download(ctx context.Context, key string) ([]byte, error)
}

// pageRenderer converts an answer-script PDF into ordered page images
type pageRenderer interface {
	RenderPages(ctx context.Context, pdfBytes []byte, filename string) ([][]byte, error)
}

// BatchGradingService runs grading jobs over many submissions. Submissions
// are processed strictly sequentially; the only parallelism in the pipeline
// is the bounded PDF conversion gate inside the render client.
type BatchGradingService struct {
	db      *gorm.DB
	grading *GradingService
	tracker *ProgressTracker
	render  pageRenderer
	store   ObjectStore
}

// NewBatchGradingService wires the batch runner
func NewBatchGradingService(db *gorm.DB, grading *GradingService, tracker *ProgressTracker, render pageRenderer, store ObjectStore) *BatchGradingService {
	return &BatchGradingService{
		db:      db,
		grading: grading,
		tracker: tracker,
		render:  render,
		store:   store,
	}
}

// StartBatch creates the job record and launches the grading loop in the
// background. The returned job is immediately pollable.
func (b *BatchGradingService) StartBatch(ctx context.Context, examID uint, submissionIDs []uint) (*model.GradingJob, error) {
	var exam model.Exam
	if err := b.db.Preload("Questions.SubQuestions").First(&exam, examID).Error; err != nil {
		return nil, fmt.Errorf("exam %d not found: %w", examID, err)
	}
	if len(exam.Questions) == 0 {
		return nil, fmt.Errorf("exam %d has no questions", examID)
	}

	var submissions []model.Submission
	if err := b.db.Where("exam_id = ? AND id IN ?", examID, submissionIDs).Find(&submissions).Error; err != nil {
		return nil, fmt.Errorf("load submissions: %w", err)
	}
	if len(submissions) == 0 {
		return nil, fmt.Errorf("no submissions to grade for exam %d", examID)
	}

	job, err := b.tracker.CreateJob(ctx, examID, len(submissions))
	if err != nil {
		return nil, err
	}

	// The loop outlives the HTTP request that started it.
	go b.runJob(context.Background(), job.JobID, exam, submissions)

	return job, nil
}

// runJob is the sequential grading loop. One bad submission records an error
// and the loop moves on; only a crash of the loop itself marks the job
// failed. Cancellation is honored at submission boundaries.
func (b *BatchGradingService) runJob(ctx context.Context, jobID string, exam model.Exam, submissions []model.Submission) {
	var jobErr error
	defer func() {
		if r := recover(); r != nil {
			jobErr = fmt.Errorf("grading job panicked: %v", r)
			log.Printf("BatchGradingService: job %s panicked: %v", jobID, r)
		}
		if err := b.tracker.CompleteJob(ctx, jobID, jobErr); err != nil {
			log.Printf("BatchGradingService: failed to finalize job %s: %v", jobID, err)
		}
	}()

	if err := b.tracker.MarkProcessing(ctx, jobID); err != nil {
		jobErr = err
		return
	}

	for i := range submissions {
		if b.tracker.IsJobCancelled(ctx, jobID) {
			log.Printf("BatchGradingService: job %s cancelled after %d submissions", jobID, i)
			return
		}

		sub := &submissions[i]
		err := b.gradeOne(ctx, exam, sub, GradeOptions{})
		if err != nil {
			errType, _ := ClassifyError(err)
			log.Printf("BatchGradingService: submission %d failed (%s): %v", sub.ID, errType, err)
		}

		if trackErr := b.tracker.RecordSubmission(ctx, jobID, sub.ID, err); trackErr != nil {
			log.Printf("BatchGradingService: failed to record progress for submission %d: %v", sub.ID, trackErr)
		}
	}
}

// RegradeSubmission re-runs the full pipeline for one submission, bypassing
// the cache so the LLM is actually consulted again.
func (b *BatchGradingService) RegradeSubmission(ctx context.Context, submissionID uint) error {
	var sub model.Submission
	if err := b.db.First(&sub, submissionID).Error; err != nil {
		return fmt.Errorf("submission %d not found: %w", submissionID, err)
	}

	var exam model.Exam
	if err := b.db.Preload("Questions.SubQuestions").First(&exam, sub.ExamID).Error; err != nil {
		return fmt.Errorf("exam %d not found: %w", sub.ExamID, err)
	}

	return b.gradeOne(ctx, exam, &sub, GradeOptions{SkipCache: true})
}

// gradeOne runs the full pipeline for a single submission: fetch PDF, render
// pages, grade, annotate, upload, persist.
func (b *BatchGradingService) gradeOne(ctx context.Context, exam model.Exam, sub *model.Submission, opts GradeOptions) error {
	b.setStatus(sub, model.SubmissionGrading, "")

	pdfBytes, err := b.store.Download(ctx, sub.SourceObjectKey)
	if err != nil {
		b.setStatus(sub, model.SubmissionFailed, err.Error())
		return fmt.Errorf("download submission %d: %w", sub.ID, err)
	}

	pages, err := b.render.RenderPages(ctx, pdfBytes, fmt.Sprintf("submission_%d.pdf", sub.ID))
	if err != nil {
		b.setStatus(sub, model.SubmissionFailed, err.Error())
		return fmt.Errorf("render submission %d: %w", sub.ID, err)
	}

	scores, err := b.grading.GradeSubmission(ctx, GradingInput{
		Images:          pages,
		Questions:       exam.Questions,
		GradingMode:     exam.GradingMode,
		ExamID:          exam.ID,
		ExamType:        exam.ExamType,
		ModelAnswerText: exam.ModelAnswerText,
	}, opts)
	if err != nil {
		b.setStatus(sub, model.SubmissionFailed, err.Error())
		return fmt.Errorf("grade submission %d: %w", sub.ID, err)
	}

	urls := b.annotateAndUpload(ctx, sub.ID, pages, exam.Questions, scores)

	return b.persistResult(sub, pages, scores, urls)
}

// annotateAndUpload renders annotated pages and pushes them to storage.
// Strictly best effort: any failure here logs and returns what succeeded,
// never failing the submission whose scores are already final.
func (b *BatchGradingService) annotateAndUpload(ctx context.Context, submissionID uint, pages [][]byte, questions []model.Question, scores []model.QuestionScore) []string {
	annotated, stats, err := b.grading.RenderAnnotations(ctx, pages, questions, scores)
	if err != nil {
		log.Printf("BatchGradingService: annotation rendering failed for submission %d: %v", submissionID, err)
		return nil
	}
	if stats.Skipped > 0 {
		log.Printf("BatchGradingService: submission %d: %d annotations skipped, %d margin-placed",
			submissionID, stats.Skipped, stats.MarginPlaced)
	}

	var urls []string
	for i, page := range annotated {
		key := storage.AnnotatedPageKey(submissionID, i)
		url, err := b.store.UploadBytes(ctx, key, page, "image/jpeg")
		if err != nil {
			log.Printf("BatchGradingService: upload failed for %s: %v", key, err)
			continue
		}
		urls = append(urls, url)
	}
	return urls
}

func (b *BatchGradingService) persistResult(sub *model.Submission, pages [][]byte, scores []model.QuestionScore, urls []string) error {
	scoresJSON, err := json.Marshal(scores)
	if err != nil {
		return fmt.Errorf("serialize scores for submission %d: %w", sub.ID, err)
	}
	urlsJSON, _ := json.Marshal(urls)

	sub.PageCount = len(pages)
	sub.Status = model.SubmissionGraded
	sub.QuestionScores = scoresJSON
	sub.AnnotatedImageURLs = urlsJSON
	sub.ObtainedTotal = model.TotalObtained(scores)
	sub.GradingError = ""

	if err := b.db.Save(sub).Error; err != nil {
		return fmt.Errorf("persist submission %d: %w", sub.ID, err)
	}
	return nil
}

func (b *BatchGradingService) setStatus(sub *model.Submission, status model.SubmissionStatus, gradingErr string) {
	sub.Status = status
	sub.GradingError = gradingErr
	if err := b.db.Model(&model.Submission{}).Where("id = ?", sub.ID).
		Updates(map[string]interface{}{"status": status, "grading_error": gradingErr}).Error; err != nil {
		log.Printf("BatchGradingService: failed to update submission %d status: %v", sub.ID, err)
	}
}
