package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scriptgrade/scriptgrade/model"
	"github.com/scriptgrade/scriptgrade/services/llm"
)

// stubOCR returns canned words for every page
type stubOCR struct {
	resp OCRWordResponse
}

func (s *stubOCR) DetectWords(ctx context.Context, imageBytes []byte, filename string) (*OCRWordResponse, error) {
	r := s.resp
	return &r, nil
}

func gradingInput() GradingInput {
	return GradingInput{
		Images:          [][]byte{[]byte("page-1"), []byte("page-2")},
		Questions:       []model.Question{{Number: 1, MaxMarks: 10}},
		GradingMode:     model.GradingModeBalanced,
		ExamID:          1,
		ModelAnswerText: "model answer",
	}
}

func TestGradeSubmissionEndToEnd(t *testing.T) {
	stub := &stubCompleter{responses: []string{
		`{"scores": [{"question_number": 1, "obtained_marks": 8, "ai_feedback": "strong answer", "status": "graded", "confidence": 0.9,
			"annotations": [{"annotation_type": "TICK", "line_id": "Q1-L1", "short_label": "good opening"}]}]}`,
	}}
	grader := NewChunkGrader(stub, nil, ChunkGraderConfig{MaxRetries: 1})
	svc := NewGradingService(grader, nil, nil)

	scores, err := svc.GradeSubmission(context.Background(), gradingInput(), GradeOptions{})
	require.NoError(t, err)
	require.Len(t, scores, 1)

	assert.Equal(t, 1, scores[0].QuestionNumber)
	assert.Equal(t, 8.0, scores[0].ObtainedMarks)
	assert.Equal(t, model.ScoreStatusGraded, scores[0].Status)
	require.Len(t, scores[0].Annotations, 1)
	assert.Equal(t, model.AnnotationTick, scores[0].Annotations[0].Type)

	// Two pages, four pages per chunk: one LLM call.
	assert.Equal(t, 1, stub.calls)
}

func TestGradeSubmissionCacheShortCircuits(t *testing.T) {
	stub := &stubCompleter{responses: []string{
		`{"scores": [{"question_number": 1, "obtained_marks": 8, "ai_feedback": "strong answer"}]}`,
	}}
	grader := NewChunkGrader(stub, nil, ChunkGraderConfig{MaxRetries: 1})
	svc := NewGradingService(grader, nil, NewGradingCache(nil, 0))

	first, err := svc.GradeSubmission(context.Background(), gradingInput(), GradeOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, stub.calls)

	// Identical input: served from cache, no additional LLM traffic.
	second, err := svc.GradeSubmission(context.Background(), gradingInput(), GradeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, stub.calls)
	assert.Equal(t, first, second)

	// SkipCache forces a fresh run and still refreshes the entry.
	_, err = svc.GradeSubmission(context.Background(), gradingInput(), GradeOptions{SkipCache: true})
	require.NoError(t, err)
	assert.Equal(t, 2, stub.calls)
}

func TestGradeSubmissionCacheKeySeparatesModes(t *testing.T) {
	stub := &stubCompleter{responses: []string{
		`{"scores": [{"question_number": 1, "obtained_marks": 8}]}`,
	}}
	grader := NewChunkGrader(stub, nil, ChunkGraderConfig{MaxRetries: 1})
	svc := NewGradingService(grader, nil, NewGradingCache(nil, 0))

	in := gradingInput()
	_, err := svc.GradeSubmission(context.Background(), in, GradeOptions{})
	require.NoError(t, err)

	in.GradingMode = model.GradingModeStrict
	scores, err := svc.GradeSubmission(context.Background(), in, GradeOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, stub.calls)
	// 0.5*10 - 1 = 4
	assert.Equal(t, 4.0, scores[0].ObtainedMarks)
}

func TestGradeSubmissionValidatesInput(t *testing.T) {
	grader := NewChunkGrader(&stubCompleter{responses: []string{"{}"}}, nil, ChunkGraderConfig{MaxRetries: 1})
	svc := NewGradingService(grader, nil, nil)

	in := gradingInput()
	in.Images = nil
	_, err := svc.GradeSubmission(context.Background(), in, GradeOptions{})
	assert.Error(t, err)

	in = gradingInput()
	in.Questions = nil
	_, err = svc.GradeSubmission(context.Background(), in, GradeOptions{})
	assert.Error(t, err)
}

func TestGradeSubmissionInvalidModeFallsBackToBalanced(t *testing.T) {
	stub := &stubCompleter{responses: []string{
		`{"scores": [{"question_number": 1, "obtained_marks": 9}]}`,
	}}
	grader := NewChunkGrader(stub, nil, ChunkGraderConfig{MaxRetries: 1})
	svc := NewGradingService(grader, nil, nil)

	in := gradingInput()
	in.GradingMode = "vibes"
	scores, err := svc.GradeSubmission(context.Background(), in, GradeOptions{})
	require.NoError(t, err)

	// Balanced semantics: no strict cap applied.
	assert.Equal(t, 9.0, scores[0].ObtainedMarks)
}

func TestGradeSubmissionChunkingSequence(t *testing.T) {
	stub := &stubCompleter{responses: []string{
		`{"scores": [{"question_number": 1, "obtained_marks": 3}]}`,
		`{"scores": [{"question_number": 1, "obtained_marks": 6}]}`,
	}}
	grader := NewChunkGrader(stub, nil, ChunkGraderConfig{MaxRetries: 1})
	svc := NewGradingService(grader, nil, nil)

	in := gradingInput()
	in.Images = [][]byte{
		[]byte("p1"), []byte("p2"), []byte("p3"), []byte("p4"),
		[]byte("p5"), []byte("p6"),
	}

	scores, err := svc.GradeSubmission(context.Background(), in, GradeOptions{})
	require.NoError(t, err)

	// Six pages split into 4+2; the chunk that saw the full answer wins.
	assert.Equal(t, 2, stub.calls)
	assert.Equal(t, 6.0, scores[0].ObtainedMarks)
}

func TestGradeSubmissionLaterChunkAnnotationPageIsGlobal(t *testing.T) {
	stub := &stubCompleter{responses: []string{
		`{"scores": [{"question_number": 1, "obtained_marks": -1}]}`,
		`{"scores": [{"question_number": 1, "obtained_marks": 7, "status": "graded",
			"annotations": [{"page_number": 0, "annotation_type": "TICK", "anchor_text": "conclusion"}]}]}`,
	}}
	grader := NewChunkGrader(stub, nil, ChunkGraderConfig{MaxRetries: 1})
	svc := NewGradingService(grader, nil, nil)

	in := gradingInput()
	in.Images = [][]byte{
		[]byte("p1"), []byte("p2"), []byte("p3"), []byte("p4"),
		[]byte("p5"), []byte("p6"),
	}

	scores, err := svc.GradeSubmission(context.Background(), in, GradeOptions{})
	require.NoError(t, err)
	require.Len(t, scores, 1)
	require.Len(t, scores[0].Annotations, 1)

	// Page 0 of the second chunk is submission page 5, index 4.
	assert.Equal(t, 4, scores[0].Annotations[0].PageIndex)
}

func TestGradeSubmissionUsesOCRLineIndex(t *testing.T) {
	stub := &stubCompleter{responses: []string{
		`{"scores": [{"question_number": 1, "obtained_marks": 5}]}`,
	}}
	grader := NewChunkGrader(stub, nil, ChunkGraderConfig{MaxRetries: 1})

	ocr := &stubOCR{resp: OCRWordResponse{
		Words: []model.OCRWord{
			{Text: "1.", X1: 40, Y1: 100, X2: 60, Y2: 118},
			{Text: "answer", X1: 70, Y1: 100, X2: 140, Y2: 118},
		},
		PageHeight: 1000,
	}}
	svc := NewGradingService(grader, ocr, nil)

	_, err := svc.GradeSubmission(context.Background(), gradingInput(), GradeOptions{})
	require.NoError(t, err)

	// The line index block reaches the user prompt text.
	parts, ok := stub.lastMessages[1].Content.([]llm.ContentPart)
	require.True(t, ok)
	require.NotEmpty(t, parts)
	assert.Contains(t, parts[0].Text, "Q1-L1")
	assert.Contains(t, parts[0].Text, "1. answer")
}

func TestCalculateChunks(t *testing.T) {
	chunks := CalculateChunks(9, ChunkConfig{PagesPerChunk: 4})
	require.Len(t, chunks, 3)
	assert.Equal(t, PageRange{Start: 1, End: 4}, chunks[0])
	assert.Equal(t, PageRange{Start: 5, End: 8}, chunks[1])
	assert.Equal(t, PageRange{Start: 9, End: 9}, chunks[2])

	assert.Nil(t, CalculateChunks(0, ChunkConfig{}))

	chunks = CalculateChunks(3, ChunkConfig{})
	require.Len(t, chunks, 1)
	assert.Equal(t, PageRange{Start: 1, End: 3}, chunks[0])
}
