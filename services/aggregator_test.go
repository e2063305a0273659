package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scriptgrade/scriptgrade/model"
)

func TestAggregateHighestNonNegativeWins(t *testing.T) {
	questions := []model.Question{{Number: 3, MaxMarks: 10}}

	// Chunk 1 saw only the tail of the answer and scored it low; chunk 2 saw
	// the whole thing.
	chunks := [][]ChunkScore{
		{{QuestionNumber: 3, Located: true, ObtainedMarks: 4, AIFeedback: "partial answer"}},
		{{QuestionNumber: 3, Located: true, ObtainedMarks: 7, AIFeedback: "well argued"}},
	}

	scores := AggregateChunks(chunks, questions, model.GradingModeBalanced)
	require.Len(t, scores, 1)
	assert.Equal(t, 7.0, scores[0].ObtainedMarks)
	assert.Equal(t, "well argued", scores[0].AIFeedback)
	assert.Equal(t, model.ScoreStatusGraded, scores[0].Status)
}

func TestAggregateNotLocatedLosesToLocated(t *testing.T) {
	questions := []model.Question{{Number: 3, MaxMarks: 10}}

	chunks := [][]ChunkScore{
		{{QuestionNumber: 3, Located: false}},
		{{QuestionNumber: 3, Located: true, ObtainedMarks: 7, AIFeedback: "good"}},
	}

	scores := AggregateChunks(chunks, questions, model.GradingModeBalanced)
	require.Len(t, scores, 1)
	assert.Equal(t, 7.0, scores[0].ObtainedMarks)
	assert.Equal(t, model.ScoreStatusGraded, scores[0].Status)
}

func TestAggregateNoChunkLocated(t *testing.T) {
	questions := []model.Question{{Number: 3, MaxMarks: 10}}

	chunks := [][]ChunkScore{
		{{QuestionNumber: 3, Located: false}},
		{{QuestionNumber: 3, Located: false}},
	}

	scores := AggregateChunks(chunks, questions, model.GradingModeBalanced)
	require.Len(t, scores, 1)
	assert.Equal(t, model.ScoreStatusNotFound, scores[0].Status)
	assert.Equal(t, 0.0, scores[0].ObtainedMarks)
	assert.Nil(t, scores[0].Annotations)
}

func TestAggregateTieKeepsFirstChunk(t *testing.T) {
	questions := []model.Question{{Number: 1, MaxMarks: 10}}

	chunks := [][]ChunkScore{
		{{QuestionNumber: 1, Located: true, ObtainedMarks: 6, AIFeedback: "first"}},
		{{QuestionNumber: 1, Located: true, ObtainedMarks: 6, AIFeedback: "second"}},
	}

	scores := AggregateChunks(chunks, questions, model.GradingModeBalanced)
	assert.Equal(t, "first", scores[0].AIFeedback)
}

func TestAggregateOrdersAndDeduplicates(t *testing.T) {
	questions := []model.Question{
		{Number: 1, MaxMarks: 5},
		{Number: 2, MaxMarks: 5},
	}

	// The model repeated question 1 inside one chunk and invented question 9.
	chunks := [][]ChunkScore{
		{
			{QuestionNumber: 2, Located: true, ObtainedMarks: 3},
			{QuestionNumber: 1, Located: true, ObtainedMarks: 2},
			{QuestionNumber: 1, Located: true, ObtainedMarks: 4},
			{QuestionNumber: 9, Located: true, ObtainedMarks: 5},
		},
	}

	scores := AggregateChunks(chunks, questions, model.GradingModeBalanced)
	require.Len(t, scores, 2)
	assert.Equal(t, 1, scores[0].QuestionNumber)
	assert.Equal(t, 4.0, scores[0].ObtainedMarks)
	assert.Equal(t, 2, scores[1].QuestionNumber)
}

func TestAggregateClampsToMaxMarks(t *testing.T) {
	questions := []model.Question{{Number: 1, MaxMarks: 10}}

	chunks := [][]ChunkScore{
		{{QuestionNumber: 1, Located: true, ObtainedMarks: 14, AIFeedback: "generous"}},
	}

	scores := AggregateChunks(chunks, questions, model.GradingModeBalanced)
	assert.Equal(t, 10.0, scores[0].ObtainedMarks)
}

func TestAggregateSubScoresSelectedIndependently(t *testing.T) {
	questions := []model.Question{{
		Number:   4,
		MaxMarks: 15,
		SubQuestions: []model.SubQuestion{
			{SubID: "a", MaxMarks: 7},
			{SubID: "b", MaxMarks: 8},
		},
	}}

	// Chunk 1 saw part (a), chunk 2 saw part (b).
	chunks := [][]ChunkScore{
		{{QuestionNumber: 4, Located: true, SubScores: []ChunkSubScore{
			{SubID: "a", Located: true, ObtainedMarks: 5, AIFeedback: "solid"},
			{SubID: "b", Located: false},
		}}},
		{{QuestionNumber: 4, Located: true, SubScores: []ChunkSubScore{
			{SubID: "a", Located: true, ObtainedMarks: 2},
			{SubID: "b", Located: true, ObtainedMarks: 6, AIFeedback: "complete"},
		}}},
	}

	scores := AggregateChunks(chunks, questions, model.GradingModeBalanced)
	require.Len(t, scores, 1)
	require.Len(t, scores[0].SubScores, 2)

	assert.Equal(t, 5.0, scores[0].SubScores[0].ObtainedMarks)
	assert.Equal(t, 6.0, scores[0].SubScores[1].ObtainedMarks)

	// Parent marks are always the sum of the chosen sub-scores.
	assert.Equal(t, 11.0, scores[0].ObtainedMarks)
	assert.Equal(t, model.ScoreStatusGraded, scores[0].Status)
}

func TestAggregateSubScoresClampedIndividually(t *testing.T) {
	questions := []model.Question{{
		Number:   1,
		MaxMarks: 10,
		SubQuestions: []model.SubQuestion{
			{SubID: "a", MaxMarks: 4},
			{SubID: "b", MaxMarks: 6},
		},
	}}

	chunks := [][]ChunkScore{
		{{QuestionNumber: 1, Located: true, SubScores: []ChunkSubScore{
			{SubID: "a", Located: true, ObtainedMarks: 9},
			{SubID: "b", Located: true, ObtainedMarks: 3},
		}}},
	}

	scores := AggregateChunks(chunks, questions, model.GradingModeBalanced)
	assert.Equal(t, 4.0, scores[0].SubScores[0].ObtainedMarks)
	assert.Equal(t, 3.0, scores[0].SubScores[1].ObtainedMarks)
	assert.Equal(t, 7.0, scores[0].ObtainedMarks)
}

func TestAggregateParentClampRescalesSubScores(t *testing.T) {
	// Sub maxes can sum past the parent's maximum. When the parent clamps,
	// the sub-scores must shrink with it in every mode.
	questions := []model.Question{{
		Number:   1,
		MaxMarks: 10,
		SubQuestions: []model.SubQuestion{
			{SubID: "a", MaxMarks: 6},
			{SubID: "b", MaxMarks: 6},
		},
	}}

	chunks := [][]ChunkScore{
		{{QuestionNumber: 1, Located: true, SubScores: []ChunkSubScore{
			{SubID: "a", Located: true, ObtainedMarks: 6},
			{SubID: "b", Located: true, ObtainedMarks: 6},
		}}},
	}

	scores := AggregateChunks(chunks, questions, model.GradingModeBalanced)
	assert.Equal(t, 10.0, scores[0].ObtainedMarks)
	assert.Equal(t, 5.0, scores[0].SubScores[0].ObtainedMarks)
	assert.Equal(t, 5.0, scores[0].SubScores[1].ObtainedMarks)

	var sum float64
	for _, s := range scores[0].SubScores {
		sum += s.ObtainedMarks
	}
	assert.Equal(t, scores[0].ObtainedMarks, sum)
}

func TestAggregateStrictCap(t *testing.T) {
	questions := []model.Question{{Number: 1, MaxMarks: 10}}

	chunks := [][]ChunkScore{
		{{QuestionNumber: 1, Located: true, ObtainedMarks: 9, AIFeedback: "excellent"}},
	}

	scores := AggregateChunks(chunks, questions, model.GradingModeStrict)
	// 0.5*10 - 1 = 4
	assert.Equal(t, 4.0, scores[0].ObtainedMarks)
	assert.Equal(t, model.ScoreStatusGraded, scores[0].Status)
}

func TestAggregateStrictCapRescalesSubScores(t *testing.T) {
	questions := []model.Question{{
		Number:   1,
		MaxMarks: 10,
		SubQuestions: []model.SubQuestion{
			{SubID: "a", MaxMarks: 5},
			{SubID: "b", MaxMarks: 5},
		},
	}}

	chunks := [][]ChunkScore{
		{{QuestionNumber: 1, Located: true, SubScores: []ChunkSubScore{
			{SubID: "a", Located: true, ObtainedMarks: 4},
			{SubID: "b", Located: true, ObtainedMarks: 4},
		}}},
	}

	scores := AggregateChunks(chunks, questions, model.GradingModeStrict)
	assert.Equal(t, 4.0, scores[0].ObtainedMarks)

	var sum float64
	for _, s := range scores[0].SubScores {
		sum += s.ObtainedMarks
	}
	assert.Equal(t, scores[0].ObtainedMarks, sum)
}

func TestApplyStrictCapFloorsAtZero(t *testing.T) {
	// A 1-mark question would cap at -0.5; the floor is zero.
	assert.Equal(t, 0.0, ApplyStrictCap(1, 1))
	assert.Equal(t, 0.0, ApplyStrictCap(0, 10))
	assert.Equal(t, 3.0, ApplyStrictCap(3, 10))
	assert.Equal(t, 4.0, ApplyStrictCap(10, 10))
}

func TestClassifyNotAttempted(t *testing.T) {
	questions := []model.Question{{Number: 1, MaxMarks: 10}}

	chunks := [][]ChunkScore{
		{{QuestionNumber: 1, Located: true, ObtainedMarks: 0, AIFeedback: "Question left blank by the student."}},
	}

	scores := AggregateChunks(chunks, questions, model.GradingModeBalanced)
	assert.Equal(t, model.ScoreStatusNotAttempted, scores[0].Status)
}

func TestClassifyZeroWithoutFeedbackIsNotAttempted(t *testing.T) {
	questions := []model.Question{{Number: 1, MaxMarks: 10}}

	chunks := [][]ChunkScore{
		{{QuestionNumber: 1, Located: true, ObtainedMarks: 0, AIFeedback: "  "}},
	}

	scores := AggregateChunks(chunks, questions, model.GradingModeBalanced)
	assert.Equal(t, model.ScoreStatusNotAttempted, scores[0].Status)
}

func TestClassifyZeroWithRealFeedbackIsGraded(t *testing.T) {
	questions := []model.Question{{Number: 1, MaxMarks: 10}}

	chunks := [][]ChunkScore{
		{{QuestionNumber: 1, Located: true, ObtainedMarks: 0, AIFeedback: "Entirely incorrect derivation."}},
	}

	scores := AggregateChunks(chunks, questions, model.GradingModeBalanced)
	assert.Equal(t, model.ScoreStatusGraded, scores[0].Status)
}
