package grading

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/scriptgrade/scriptgrade/model"
	"github.com/scriptgrade/scriptgrade/services"
	"github.com/scriptgrade/scriptgrade/utils/response"
	"github.com/scriptgrade/scriptgrade/utils/validation"
)

// GradingHandler exposes submission registration and batch grading jobs
type GradingHandler struct {
	db        *gorm.DB
	batch     *services.BatchGradingService
	tracker   *services.ProgressTracker
	validator *validation.Validator
}

// NewGradingHandler creates a new grading handler
func NewGradingHandler(db *gorm.DB, batch *services.BatchGradingService, tracker *services.ProgressTracker) *GradingHandler {
	return &GradingHandler{
		db:        db,
		batch:     batch,
		tracker:   tracker,
		validator: validation.NewValidator(),
	}
}

// CreateSubmissionRequest registers one uploaded answer script
type CreateSubmissionRequest struct {
	StudentRef      string `json:"student_ref" validate:"omitempty,max=100"`
	SourceObjectKey string `json:"source_object_key" validate:"required,max=300"`
}

// CreateSubmission handles POST /api/v1/exams/:id/submissions
func (h *GradingHandler) CreateSubmission(c *fiber.Ctx) error {
	examID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid exam ID")
	}

	var exam model.Exam
	if err := h.db.First(&exam, examID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Exam not found")
		}
		return response.InternalError(c, "Failed to fetch exam")
	}

	var req CreateSubmissionRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"errors":  validation.FormatValidationErrors(err),
		})
	}

	sub := model.Submission{
		ExamID:          uint(examID),
		StudentRef:      req.StudentRef,
		SourceObjectKey: req.SourceObjectKey,
		Status:          model.SubmissionPending,
	}
	if err := h.db.Create(&sub).Error; err != nil {
		return response.InternalError(c, "Failed to create submission")
	}

	return response.Created(c, sub)
}

// GetSubmission handles GET /api/v1/submissions/:id
func (h *GradingHandler) GetSubmission(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid submission ID")
	}

	var sub model.Submission
	if err := h.db.First(&sub, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Submission not found")
		}
		return response.InternalError(c, "Failed to fetch submission")
	}

	return response.Success(c, sub)
}

// StartBatchRequest starts a grading job over the listed submissions. An
// empty list grades every pending submission of the exam.
type StartBatchRequest struct {
	SubmissionIDs []uint `json:"submission_ids"`
}

// StartBatch handles POST /api/v1/exams/:id/grade
func (h *GradingHandler) StartBatch(c *fiber.Ctx) error {
	examID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid exam ID")
	}

	var req StartBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	ids := req.SubmissionIDs
	if len(ids) == 0 {
		var pending []model.Submission
		if err := h.db.Select("id").
			Where("exam_id = ? AND status IN ?", examID,
				[]model.SubmissionStatus{model.SubmissionPending, model.SubmissionFailed}).
			Find(&pending).Error; err != nil {
			return response.InternalError(c, "Failed to list submissions")
		}
		for _, s := range pending {
			ids = append(ids, s.ID)
		}
	}
	if len(ids) == 0 {
		return response.BadRequest(c, "No submissions to grade")
	}

	job, err := h.batch.StartBatch(c.Context(), uint(examID), ids)
	if err != nil {
		if strings.Contains(err.Error(), "active grading job") {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"success": false,
				"error":   fiber.Map{"code": "JOB_CONFLICT", "message": err.Error()},
			})
		}
		return response.BadRequest(c, err.Error())
	}

	return response.Accepted(c, job)
}

// GetJob handles GET /api/v1/grading/jobs/:job_id
func (h *GradingHandler) GetJob(c *fiber.Ctx) error {
	job, err := h.tracker.GetJob(c.Context(), c.Params("job_id"))
	if err != nil {
		return response.NotFound(c, err.Error())
	}

	return response.Success(c, job)
}

// CancelJob handles DELETE /api/v1/grading/jobs/:job_id. Cancellation is
// cooperative: the in-flight submission finishes before the loop stops.
func (h *GradingHandler) CancelJob(c *fiber.Ctx) error {
	jobID := c.Params("job_id")
	if err := h.tracker.CancelJob(c.Context(), jobID); err != nil {
		return response.NotFound(c, err.Error())
	}

	return response.SuccessWithMessage(c, "Cancellation requested; takes effect at the next submission boundary", fiber.Map{
		"job_id": jobID,
	})
}

// Regrade handles POST /api/v1/submissions/:id/regrade. Bypasses the grading
// cache so the submission is actually re-scored.
func (h *GradingHandler) Regrade(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid submission ID")
	}

	if err := h.batch.RegradeSubmission(c.Context(), uint(id)); err != nil {
		if strings.Contains(err.Error(), "not found") {
			return response.NotFound(c, err.Error())
		}
		if errType, _ := services.ClassifyError(err); errType == services.ErrorTypeRateLimit {
			return response.TooManyRequests(c, "LLM rate limited; retry later")
		}
		return response.InternalError(c, err.Error())
	}

	var sub model.Submission
	if err := h.db.First(&sub, id).Error; err != nil {
		return response.InternalError(c, "Regraded but failed to reload submission")
	}

	return response.Success(c, sub)
}
