package services

import (
	"fmt"
	"strings"

	"github.com/scriptgrade/scriptgrade/model"
)

// gradingOutputContract is the response-schema contract shared by every chunk
// request. The field names are load-bearing: the parser and the annotation
// normalizer both key on them, so the block is reproduced exactly.
const gradingOutputContract = `Output ONLY valid JSON in this exact shape:
{
  "scores": [
    {
      "question_number": 1,
      "obtained_marks": 7.5,
      "ai_feedback": "concise examiner feedback",
      "status": "graded",
      "confidence": 0.9,
      "annotations": [
        {
          "page_number": 0,
          "line_id_start": "Q1-L2",
          "line_id_end": "Q1-L4",
          "annotation_type": "UNDERLINE",
          "short_label": "missing unit",
          "sentiment": "negative"
        }
      ],
      "sub_scores": [
        { "sub_id": "a", "obtained_marks": 3, "ai_feedback": "..." }
      ]
    }
  ],
  "grading_notes": "optional notes"
}

Rules for the JSON payload:
- "status" is one of "graded", "not_attempted", "not_found".
- "annotation_type" is one of "TICK", "CROSS", "UNDERLINE", "COMMENT", "BOX".
- "short_label" is a 2-4 word reason. Required for every annotation.
- "page_number" is 0-based within THIS request's images.
- Reference answer locations with line ids from the LINE INDEX when available.
- Use sub_scores only for questions that have lettered parts; the parent
  obtained_marks will be recomputed from the parts.
- Consistency requirement: the same answer content must always receive the
  same score. Do not vary marks between identical runs.`

// upscCalibration and standardCalibration anchor the examiner persona. UPSC
// mains answers are long-form essays graded against a famously tough curve;
// school/semester scripts are shorter and more literal.
const upscCalibration = `You are a senior UPSC mains examiner. Calibrate to the UPSC curve: an average
answer earns 40-50% of maximum, a genuinely good answer 55-65%, and only
exceptional answers with structure, substantiation, and balanced conclusions
exceed 70%. Reward structure (intro/body/conclusion), use of examples, and
multi-dimensional analysis.`

const standardCalibration = `You are an experienced school and university examiner. Grade against the
question's mark allocation: identify the expected points for each question and
award marks per point demonstrated. Full marks are achievable for complete,
correct answers.`

// ChunkPromptInput carries everything needed to build one chunk's request
type ChunkPromptInput struct {
	ChunkIndex      int // 0-based
	TotalChunks     int
	StartPageNumber int // 1-based page number of the chunk's first image
	Questions       []model.Question
	GradingMode     model.GradingMode
	ExamType        string
	ModelAnswerText string // preferred over ModelAnswerImages when non-empty
	LineIndexBlocks []string
}

// BuildSystemPrompt assembles the system instructions for a grading chunk.
// Deterministic by construction: identical inputs produce identical text.
func BuildSystemPrompt(in ChunkPromptInput) string {
	var b strings.Builder

	if strings.EqualFold(in.ExamType, "upsc") {
		b.WriteString(upscCalibration)
	} else {
		b.WriteString(standardCalibration)
	}
	b.WriteString("\n\n")

	b.WriteString(PhilosophyFor(in.GradingMode))
	b.WriteString("\n\n")

	b.WriteString("QUESTIONS TO GRADE:\n")
	for _, q := range in.Questions {
		fmt.Fprintf(&b, "- Question %d (max %.4g marks)", q.Number, q.MaxMarks)
		if len(q.SubQuestions) > 0 {
			parts := make([]string, 0, len(q.SubQuestions))
			for _, sq := range q.SubQuestions {
				parts = append(parts, fmt.Sprintf("%s: %.4g", sq.SubID, sq.MaxMarks))
			}
			fmt.Fprintf(&b, " with parts [%s]", strings.Join(parts, ", "))
		}
		if q.Text != "" {
			fmt.Fprintf(&b, ": %s", q.Text)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(gradingOutputContract)

	if in.TotalChunks > 1 {
		fmt.Fprintf(&b, "\n\nThis is part %d of %d of the answer script, starting at page %d. "+
			"If a question is not visible in these pages, report it with obtained_marks = -1. "+
			"Use -1 only for questions you cannot see; a visible but blank answer scores 0 "+
			"with status \"not_attempted\".",
			in.ChunkIndex+1, in.TotalChunks, in.StartPageNumber)
	}

	return b.String()
}

// BuildUserText assembles the text portion of the user message: model answer
// (when pre-extracted) followed by the per-page line index context.
func BuildUserText(in ChunkPromptInput) string {
	var b strings.Builder

	if in.ModelAnswerText != "" {
		b.WriteString("MODEL ANSWER (reference for grading):\n")
		b.WriteString(in.ModelAnswerText)
		b.WriteString("\n\n")
	}

	hasIndex := false
	for _, block := range in.LineIndexBlocks {
		if block != "" {
			hasIndex = true
			break
		}
	}
	if hasIndex {
		b.WriteString("LINE INDEX (line ids usable in annotations):\n")
		for i, block := range in.LineIndexBlocks {
			fmt.Fprintf(&b, "--- page %d ---\n", in.StartPageNumber+i)
			if block == "" {
				b.WriteString("(no ocr text)\n")
			} else {
				b.WriteString(block)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("Grade the attached answer-script pages against the questions and model answer.")

	return b.String()
}
