package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ScoreStatus classifies a question's graded result
type ScoreStatus string

const (
	ScoreStatusGraded       ScoreStatus = "graded"
	ScoreStatusNotAttempted ScoreStatus = "not_attempted"
	ScoreStatusNotFound     ScoreStatus = "not_found"
)

// SubmissionStatus tracks a submission through the grading pipeline
type SubmissionStatus string

const (
	SubmissionPending   SubmissionStatus = "pending"
	SubmissionGrading   SubmissionStatus = "grading"
	SubmissionGraded    SubmissionStatus = "graded"
	SubmissionFailed    SubmissionStatus = "failed"
	SubmissionCancelled SubmissionStatus = "cancelled"
)

// SubQuestionScore is one sub-part's graded result, keyed by sub id ("a", "b")
type SubQuestionScore struct {
	SubID         string  `json:"sub_id"`
	MaxMarks      float64 `json:"max_marks"`
	ObtainedMarks float64 `json:"obtained_marks"`
	AIFeedback    string  `json:"ai_feedback,omitempty"`
}

// QuestionScore is one exam question's graded result for one submission.
// When SubScores is non-empty, ObtainedMarks always equals the sum of the
// sub-score marks and is never set independently.
type QuestionScore struct {
	QuestionNumber int                `json:"question_number"`
	MaxMarks       float64            `json:"max_marks"`
	ObtainedMarks  float64            `json:"obtained_marks"`
	Status         ScoreStatus        `json:"status"`
	AIFeedback     string             `json:"ai_feedback,omitempty"`
	Confidence     float64            `json:"confidence,omitempty"`
	SubScores      []SubQuestionScore `json:"sub_scores,omitempty"`
	Annotations    []AnnotationData   `json:"annotations,omitempty"`
}

// TotalObtained sums obtained marks across a score list
func TotalObtained(scores []QuestionScore) float64 {
	var total float64
	for _, s := range scores {
		total += s.ObtainedMarks
	}
	return total
}

// TotalMax sums max marks across a score list
func TotalMax(scores []QuestionScore) float64 {
	var total float64
	for _, s := range scores {
		total += s.MaxMarks
	}
	return total
}

// Submission represents one student's uploaded answer paper
type Submission struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	ExamID     uint             `gorm:"not null;index" json:"exam_id"`
	StudentRef string           `gorm:"type:varchar(100);index" json:"student_ref,omitempty"` // roll number / external id
	PageCount  int              `gorm:"default:0" json:"page_count"`
	Status     SubmissionStatus `gorm:"type:varchar(20);default:'pending'" json:"status"`

	// SourceObjectKey points to the uploaded answer PDF in object storage.
	SourceObjectKey string `gorm:"type:varchar(300)" json:"source_object_key,omitempty"`

	// QuestionScores holds the final []QuestionScore as jsonb; recomputed in
	// full on every grading run, never patched in place.
	QuestionScores datatypes.JSON `gorm:"type:jsonb" json:"question_scores,omitempty"`

	// AnnotatedImageURLs holds the rendered page URLs as a jsonb string array.
	AnnotatedImageURLs datatypes.JSON `gorm:"type:jsonb" json:"annotated_image_urls,omitempty"`

	ObtainedTotal float64 `gorm:"default:0" json:"obtained_total"`
	GradingError  string  `gorm:"type:text" json:"grading_error,omitempty"`

	Exam Exam `gorm:"foreignKey:ExamID;constraint:OnDelete:CASCADE" json:"exam,omitempty"`
}
