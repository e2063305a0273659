package services

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scriptgrade/scriptgrade/model"
)

func testPageJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := imaging.New(w, h, color.White)
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.JPEG))
	return buf.Bytes()
}

func fiveLineContext() PageContext {
	ix := NewLineIndexer([]model.Question{{Number: 1}})
	words := []model.OCRWord{
		word("one", 100, 100, 200, 118),
		word("two", 100, 160, 220, 178),
		word("three", 100, 220, 240, 238),
		word("four", 100, 280, 210, 298),
		word("five", 100, 340, 230, 358),
	}
	return PageContext{Index: ix.IndexPage(words, 1000), Words: words}
}

func TestRenderSubmissionDoesNotMutateInput(t *testing.T) {
	page := testPageJPEG(t, 600, 800)
	original := make([]byte, len(page))
	copy(original, page)

	r := NewAnnotationRenderer()
	out, _, err := r.RenderSubmission([][]byte{page}, []PageContext{fiveLineContext()}, []model.QuestionScore{
		{QuestionNumber: 1, MaxMarks: 10, ObtainedMarks: 7, Status: model.ScoreStatusGraded},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.Equal(t, original, page)
	assert.NotEqual(t, original, out[0])
}

func TestRenderSubmissionPageContextMismatch(t *testing.T) {
	r := NewAnnotationRenderer()
	_, _, err := r.RenderSubmission([][]byte{testPageJPEG(t, 100, 100)}, nil, nil)
	assert.Error(t, err)
}

func TestResolveLineRefRangeCollapsesToOneSpan(t *testing.T) {
	ctx := fiveLineContext()
	r := NewAnnotationRenderer()

	sp, ok := r.resolveLineRef(model.AnnotationData{
		Type:        model.AnnotationUnderline,
		LineIDStart: "Q1-L2",
		LineIDEnd:   "Q1-L5",
	}, ctx.Index)
	require.True(t, ok)

	require.Len(t, sp.lines, 4)
	assert.Equal(t, 100, sp.x1)
	assert.Equal(t, 160, sp.y1)
	assert.Equal(t, 240, sp.x2)
	assert.Equal(t, 358, sp.y2)
}

func TestDrawAnnotationRangeDrawsOnce(t *testing.T) {
	ctx := fiveLineContext()
	r := NewAnnotationRenderer()
	canvas := imaging.New(600, 800, color.White)

	var stats RenderStats
	cursorY := marginCursorStep
	r.drawAnnotation(canvas, model.AnnotationData{
		Type:        model.AnnotationTick,
		LineIDStart: "Q1-L2",
		LineIDEnd:   "Q1-L5",
		Text:        "good point",
		Color:       "green",
	}, ctx, &cursorY, &stats)

	// The whole range is one mark: one glyph, one reason label.
	assert.Equal(t, 1, stats.Drawn)
	assert.Equal(t, 0, stats.Skipped)
	assert.Equal(t, 0, stats.MarginPlaced)
}

func TestDrawAnnotationMissingLineRefSkips(t *testing.T) {
	ctx := fiveLineContext()
	r := NewAnnotationRenderer()
	canvas := imaging.New(600, 800, color.White)

	var stats RenderStats
	cursorY := marginCursorStep
	r.drawAnnotation(canvas, model.AnnotationData{
		Type:   model.AnnotationCross,
		LineID: "Q3-L9",
	}, ctx, &cursorY, &stats)

	assert.Equal(t, 0, stats.Drawn)
	assert.Equal(t, 1, stats.Skipped)
	// A dangling reference never falls through to the margin cursor.
	assert.Equal(t, marginCursorStep, cursorY)
}

func TestDrawAnnotationAnchorFallsBackToMargin(t *testing.T) {
	ctx := fiveLineContext()
	r := NewAnnotationRenderer()
	canvas := imaging.New(600, 800, color.White)

	var stats RenderStats
	cursorY := marginCursorStep

	// Matches word "three" well above the threshold.
	r.drawAnnotation(canvas, model.AnnotationData{
		Type:       model.AnnotationUnderline,
		AnchorText: "three",
	}, ctx, &cursorY, &stats)
	assert.Equal(t, 1, stats.Drawn)
	assert.Equal(t, 0, stats.MarginPlaced)

	// Matches nothing; lands on the margin and advances the cursor.
	r.drawAnnotation(canvas, model.AnnotationData{
		Type:       model.AnnotationComment,
		AnchorText: "completely unrelated phrase",
		Text:       "see remark",
	}, ctx, &cursorY, &stats)
	assert.Equal(t, 2, stats.Drawn)
	assert.Equal(t, 1, stats.MarginPlaced)
	assert.Equal(t, 2*marginCursorStep, cursorY)
}

func TestMatchAnchorWindow(t *testing.T) {
	words := []model.OCRWord{
		word("The", 100, 100, 130, 118),
		word("nitrogen", 140, 100, 220, 118),
		word("cycle", 230, 100, 280, 118),
		word("fixes", 100, 160, 150, 178),
	}

	box, score := matchAnchorWindow(words, "nitrogen cycle")
	assert.GreaterOrEqual(t, score, anchorMinSimilarity)
	assert.Equal(t, 140.0, box.X1)
	assert.Equal(t, 280.0, box.X2)

	_, score = matchAnchorWindow(words, "photosynthesis equation")
	assert.Less(t, score, anchorMinSimilarity)

	_, score = matchAnchorWindow(nil, "anything")
	assert.Equal(t, 0, score)
}

func TestRenderSubmissionFallbackPage(t *testing.T) {
	page := testPageJPEG(t, 600, 800)
	r := NewAnnotationRenderer()

	// No OCR for the page: empty index triggers fallback rendering.
	emptyIx := NewLineIndexer(nil).IndexPage(nil, 0)
	scores := []model.QuestionScore{
		{QuestionNumber: 1, MaxMarks: 10, ObtainedMarks: 6, Status: model.ScoreStatusGraded},
		{QuestionNumber: 2, MaxMarks: 5, ObtainedMarks: 3, Status: model.ScoreStatusGraded},
	}

	out, stats, err := r.RenderSubmission([][]byte{page}, []PageContext{{Index: emptyIx}}, scores)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 1, stats.FallbackPages)

	// Fallback pages still get visible marks.
	rendered, err := imaging.Decode(bytes.NewReader(out[0]))
	require.NoError(t, err)
	assert.False(t, allWhite(rendered))
}

// allWhite scans every pixel for anything darker than near-white
func allWhite(img image.Image) bool {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			if r < 0xe000 || g < 0xe000 || bl < 0xe000 {
				return false
			}
		}
	}
	return true
}

func TestFormatMarks(t *testing.T) {
	assert.Equal(t, "7/10", formatMarks(7, 10))
	assert.Equal(t, "7.5/10", formatMarks(7.5, 10))
	assert.Equal(t, "0/5", formatMarks(0, 5))
}
