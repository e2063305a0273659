package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scriptgrade/scriptgrade/model"
)

func word(text string, x1, y1, x2, y2 float64) model.OCRWord {
	return model.OCRWord{Text: text, X1: x1, Y1: y1, X2: x2, Y2: y2}
}

func twoQuestionPage() []model.OCRWord {
	// Two questions, three lines each, on a 1000pt page. Word order is
	// deliberately scrambled; the indexer must not depend on input order.
	return []model.OCRWord{
		word("cycle", 180, 412, 260, 430),
		word("1.", 40, 100, 60, 118),
		word("Photosynthesis", 70, 100, 220, 118),
		word("2)", 40, 400, 60, 418),
		word("water", 100, 160, 170, 178),
		word("produces", 40, 160, 95, 178),
		word("The", 70, 400, 110, 418),
		word("glucose", 40, 220, 120, 238),
		word("nitrogen", 115, 400, 175, 418),
		word("evaporation", 40, 460, 160, 478),
		word("fixation", 40, 520, 120, 538),
	}
}

func TestIndexPageAssignsPerQuestionLineIDs(t *testing.T) {
	ix := NewLineIndexer([]model.Question{{Number: 1, MaxMarks: 10}, {Number: 2, MaxMarks: 10}})
	index := ix.IndexPage(twoQuestionPage(), 1000)

	require.Equal(t, []string{"Q1-L1", "Q1-L2", "Q1-L3", "Q2-L1", "Q2-L2", "Q2-L3"}, index.Order)

	l1, ok := index.Get("Q1-L1")
	require.True(t, ok)
	assert.Equal(t, "1. Photosynthesis", l1.Text)

	// The second question's counter restarts at 1.
	l, ok := index.Get("Q2-L1")
	require.True(t, ok)
	assert.Equal(t, "2) The nitrogen cycle", l.Text)
}

func TestIndexPageIsDeterministic(t *testing.T) {
	ix := NewLineIndexer([]model.Question{{Number: 1}, {Number: 2}})

	first := ix.IndexPage(twoQuestionPage(), 1000)
	for i := 0; i < 20; i++ {
		again := ix.IndexPage(twoQuestionPage(), 1000)
		require.Equal(t, first.Order, again.Order)
		require.Equal(t, first.Lines, again.Lines)
	}
}

func TestIndexPageMergeTolerance(t *testing.T) {
	ix := NewLineIndexer([]model.Question{{Number: 1}})

	// Page height 1000 gives a 12pt tolerance band. Centers 10pt apart merge,
	// centers 30pt apart do not.
	index := ix.IndexPage([]model.OCRWord{
		word("alpha", 40, 100, 90, 120),
		word("beta", 100, 110, 150, 130),
		word("gamma", 40, 140, 100, 160),
	}, 1000)

	require.Len(t, index.Order, 2)
	assert.Equal(t, "alpha beta", index.Lines["Q1-L1"].Text)
	assert.Equal(t, "gamma", index.Lines["Q1-L2"].Text)

	// The merged line's box is the union of its word boxes.
	merged := index.Lines["Q1-L1"]
	assert.Equal(t, 40.0, merged.X1)
	assert.Equal(t, 100.0, merged.Y1)
	assert.Equal(t, 150.0, merged.X2)
	assert.Equal(t, 130.0, merged.Y2)
}

func TestIndexPageEmptyWords(t *testing.T) {
	ix := NewLineIndexer([]model.Question{{Number: 1}})

	index := ix.IndexPage(nil, 1000)
	assert.True(t, index.Empty())
	assert.Empty(t, index.Lines)
	assert.Equal(t, "", index.ContextBlock())
}

func TestIndexPageCustomBoundaryPattern(t *testing.T) {
	ix := NewLineIndexer([]model.Question{
		{Number: 1},
		{Number: 2, BoundaryPattern: `(?i)^section b`},
	})

	index := ix.IndexPage([]model.OCRWord{
		word("1.", 40, 100, 60, 118),
		word("answer", 70, 100, 140, 118),
		word("Section", 40, 200, 110, 218),
		word("B", 120, 200, 135, 218),
		word("more", 40, 260, 90, 278),
	}, 1000)

	assert.Equal(t, []string{"Q1-L1", "Q2-L1", "Q2-L2"}, index.Order)
}

func TestLinesInRange(t *testing.T) {
	ix := NewLineIndexer([]model.Question{{Number: 1}})
	index := ix.IndexPage([]model.OCRWord{
		word("one", 40, 100, 90, 118),
		word("two", 40, 160, 90, 178),
		word("three", 40, 220, 90, 238),
	}, 1000)

	lines, ok := index.LinesInRange("Q1-L1", "Q1-L3")
	require.True(t, ok)
	require.Len(t, lines, 3)

	// A reversed range walks the same lines.
	reversed, ok := index.LinesInRange("Q1-L3", "Q1-L1")
	require.True(t, ok)
	assert.Equal(t, lines, reversed)

	_, ok = index.LinesInRange("Q1-L1", "Q1-L9")
	assert.False(t, ok)
}

func TestLastLineForQuestion(t *testing.T) {
	ix := NewLineIndexer([]model.Question{{Number: 1}, {Number: 2}})
	index := ix.IndexPage(twoQuestionPage(), 1000)

	last, ok := index.LastLineForQuestion(1)
	require.True(t, ok)
	assert.Equal(t, "Q1-L3", last.LineID)

	_, ok = index.LastLineForQuestion(7)
	assert.False(t, ok)
}
