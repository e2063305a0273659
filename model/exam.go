package model

import (
	"time"

	"gorm.io/gorm"
)

// GradingMode is the named partial-credit philosophy applied while scoring
type GradingMode string

const (
	GradingModeStrict     GradingMode = "strict"
	GradingModeBalanced   GradingMode = "balanced"
	GradingModeConceptual GradingMode = "conceptual"
	GradingModeLenient    GradingMode = "lenient"
)

// Valid reports whether the mode is one of the four supported modes
func (m GradingMode) Valid() bool {
	switch m {
	case GradingModeStrict, GradingModeBalanced, GradingModeConceptual, GradingModeLenient:
		return true
	}
	return false
}

// Exam represents one question paper with its model answer and grading settings
type Exam struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Title       string      `gorm:"type:varchar(200);not null" json:"title"`
	ExamType    string      `gorm:"type:varchar(50)" json:"exam_type,omitempty"` // e.g., "upsc", "board", "semester"
	GradingMode GradingMode `gorm:"type:varchar(20);default:'balanced'" json:"grading_mode"`
	TotalMarks  float64     `gorm:"default:0" json:"total_marks"`

	// ModelAnswerText is the pre-extracted model answer. When present it is
	// preferred over re-sending model answer images on every chunk.
	ModelAnswerText string `gorm:"type:text" json:"model_answer_text,omitempty"`

	Questions []Question `gorm:"foreignKey:ExamID;constraint:OnDelete:CASCADE" json:"questions,omitempty"`
}

// Question represents one question in an exam's authoritative question list
type Question struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	ExamID   uint    `gorm:"not null;index" json:"exam_id"`
	Number   int     `gorm:"not null" json:"question_number"`
	Text     string  `gorm:"type:text" json:"text,omitempty"`
	MaxMarks float64 `gorm:"not null" json:"max_marks"`

	// BoundaryPattern is an optional regex that identifies this question's
	// header line on a scanned page (e.g. `^\s*(?:Q\.?\s*)?3[.)]`). When empty,
	// a default pattern derived from Number is used.
	BoundaryPattern string `gorm:"type:varchar(200)" json:"boundary_pattern,omitempty"`

	SubQuestions []SubQuestion `gorm:"foreignKey:QuestionID;constraint:OnDelete:CASCADE" json:"sub_questions,omitempty"`
}

// SubQuestion represents a lettered part of a question (e.g. 3(a), 3(b))
type SubQuestion struct {
	ID         uint    `gorm:"primaryKey" json:"id"`
	QuestionID uint    `gorm:"not null;index" json:"question_id"`
	SubID      string  `gorm:"type:varchar(10);not null" json:"sub_id"` // "a", "b", "i", ...
	Text       string  `gorm:"type:text" json:"text,omitempty"`
	MaxMarks   float64 `gorm:"not null" json:"max_marks"`
}
