package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONDirect(t *testing.T) {
	jsonStr, err := ExtractJSON(`{"scores": []}`)
	require.NoError(t, err)
	assert.Equal(t, `{"scores": []}`, jsonStr)
}

func TestExtractJSONCodeFence(t *testing.T) {
	response := "Sure! ```json\n{\"scores\": [{\"question_number\": 1, \"obtained_marks\": 7}]}\n```"

	var payload struct {
		Scores []struct {
			QuestionNumber int     `json:"question_number"`
			ObtainedMarks  float64 `json:"obtained_marks"`
		} `json:"scores"`
	}
	err := ExtractJSONTo(response, &payload)
	require.NoError(t, err)
	require.Len(t, payload.Scores, 1)
	assert.Equal(t, 1, payload.Scores[0].QuestionNumber)
	assert.Equal(t, 7.0, payload.Scores[0].ObtainedMarks)
}

func TestExtractJSONFenceWithoutLanguage(t *testing.T) {
	jsonStr, err := ExtractJSON("```\n{\"a\": 1}\n```")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 1}`, jsonStr)
}

func TestExtractJSONUnterminatedFence(t *testing.T) {
	jsonStr, err := ExtractJSON("```json\n{\"a\": 1}")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 1}`, jsonStr)
}

func TestExtractJSONEmbeddedInProse(t *testing.T) {
	response := `Here is my grading result: {"scores": [], "grading_notes": "ok"} Let me know if you need more.`

	jsonStr, err := ExtractJSON(response)
	require.NoError(t, err)
	assert.JSONEq(t, `{"scores": [], "grading_notes": "ok"}`, jsonStr)
}

func TestExtractJSONPrefersScoresObject(t *testing.T) {
	// A stray example object before the real payload must not win.
	response := `Example: {"foo": 1} and the result: {"scores": [{"question_number": 2, "obtained_marks": 3, "ai_feedback": "", "status": "graded", "confidence": 0.5}]}`

	jsonStr, err := ExtractJSON(response)
	require.NoError(t, err)
	assert.Contains(t, jsonStr, `"scores"`)
}

func TestExtractJSONRespectsStringsWithBraces(t *testing.T) {
	response := `{"scores": [], "grading_notes": "brace in string } here"}`

	jsonStr, err := ExtractJSON(response)
	require.NoError(t, err)
	assert.JSONEq(t, response, jsonStr)
}

func TestExtractJSONNothingFound(t *testing.T) {
	_, err := ExtractJSON("no json here at all")
	assert.ErrorIs(t, err, ErrNoJSONFound)

	_, err = ExtractJSON("   ")
	assert.ErrorIs(t, err, ErrNoJSONFound)
}
