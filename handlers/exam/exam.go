package exam

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/scriptgrade/scriptgrade/model"
	"github.com/scriptgrade/scriptgrade/utils/response"
	"github.com/scriptgrade/scriptgrade/utils/validation"
)

// ExamHandler handles exam and question management
type ExamHandler struct {
	db        *gorm.DB
	validator *validation.Validator
}

// NewExamHandler creates a new exam handler
func NewExamHandler(db *gorm.DB) *ExamHandler {
	return &ExamHandler{
		db:        db,
		validator: validation.NewValidator(),
	}
}

// CreateExamRequest is the POST /exams payload
type CreateExamRequest struct {
	Title           string                  `json:"title" validate:"required,min=3,max=200"`
	ExamType        string                  `json:"exam_type" validate:"omitempty,max=50"`
	GradingMode     string                  `json:"grading_mode" validate:"omitempty,oneof=strict balanced conceptual lenient"`
	ModelAnswerText string                  `json:"model_answer_text"`
	Questions       []CreateQuestionRequest `json:"questions" validate:"required,min=1,dive"`
}

// CreateQuestionRequest is one question in the exam payload
type CreateQuestionRequest struct {
	Number          int                `json:"question_number" validate:"required,min=1"`
	Text            string             `json:"text"`
	MaxMarks        float64            `json:"max_marks" validate:"required,gt=0"`
	BoundaryPattern string             `json:"boundary_pattern"`
	SubQuestions    []CreateSubRequest `json:"sub_questions" validate:"omitempty,dive"`
}

// CreateSubRequest is one lettered part in a question payload
type CreateSubRequest struct {
	SubID    string  `json:"sub_id" validate:"required,max=10"`
	Text     string  `json:"text"`
	MaxMarks float64 `json:"max_marks" validate:"required,gt=0"`
}

// CreateExam handles POST /api/v1/exams
func (h *ExamHandler) CreateExam(c *fiber.Ctx) error {
	var req CreateExamRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"errors":  validation.FormatValidationErrors(err),
		})
	}

	mode := model.GradingMode(req.GradingMode)
	if !mode.Valid() {
		mode = model.GradingModeBalanced
	}

	exam := model.Exam{
		Title:           req.Title,
		ExamType:        req.ExamType,
		GradingMode:     mode,
		ModelAnswerText: req.ModelAnswerText,
	}

	seen := make(map[int]bool)
	for _, q := range req.Questions {
		if seen[q.Number] {
			return response.BadRequest(c, "Duplicate question number "+strconv.Itoa(q.Number))
		}
		seen[q.Number] = true

		question := model.Question{
			Number:          q.Number,
			Text:            q.Text,
			MaxMarks:        q.MaxMarks,
			BoundaryPattern: q.BoundaryPattern,
		}
		for _, sq := range q.SubQuestions {
			question.SubQuestions = append(question.SubQuestions, model.SubQuestion{
				SubID:    sq.SubID,
				Text:     sq.Text,
				MaxMarks: sq.MaxMarks,
			})
		}
		exam.Questions = append(exam.Questions, question)
		exam.TotalMarks += q.MaxMarks
	}

	if err := h.db.Create(&exam).Error; err != nil {
		return response.InternalError(c, "Failed to create exam")
	}

	return response.Created(c, exam)
}

// GetExam handles GET /api/v1/exams/:id
func (h *ExamHandler) GetExam(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid exam ID")
	}

	var exam model.Exam
	if err := h.db.Preload("Questions.SubQuestions").First(&exam, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Exam not found")
		}
		return response.InternalError(c, "Failed to fetch exam")
	}

	return response.Success(c, exam)
}

// ListExams handles GET /api/v1/exams
func (h *ExamHandler) ListExams(c *fiber.Ctx) error {
	var exams []model.Exam
	if err := h.db.Order("created_at DESC").Limit(100).Find(&exams).Error; err != nil {
		return response.InternalError(c, "Failed to list exams")
	}

	return response.Success(c, fiber.Map{"exams": exams, "total": len(exams)})
}
