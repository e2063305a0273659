package services

import (
	"bytes"
	"fmt"
	"image"
	"log"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/scriptgrade/scriptgrade/model"
	"github.com/scriptgrade/scriptgrade/utils"
)

const (
	// Left margin column where glyphs and unresolved marks land.
	marginGlyphX = 42

	// Vertical step for the sequential margin cursor.
	marginCursorStep = 80

	// Minimum fuzzy similarity (0-100) for an anchor-text window match.
	anchorMinSimilarity = 60

	glyphSize         = 22
	scoreCircleRadius = 26
)

// PageContext carries one page's OCR-derived data into rendering. Both
// fields may be empty when OCR was unavailable for the page.
type PageContext struct {
	Index *LineIndex
	Words []model.OCRWord
}

// RenderStats counts placement outcomes for diagnostics. Skipped covers
// annotations whose line reference did not resolve; MarginPlaced covers
// annotations that fell through to the sequential margin column.
type RenderStats struct {
	Drawn         int
	Skipped       int
	MarginPlaced  int
	FallbackPages int
}

// AnnotationRenderer composites grading marks onto rendered answer pages.
// Input images are never mutated; every page comes back as a fresh encode.
type AnnotationRenderer struct {
	jpegQuality int
}

// NewAnnotationRenderer creates a renderer with default output quality
func NewAnnotationRenderer() *AnnotationRenderer {
	return &AnnotationRenderer{jpegQuality: 90}
}

// span is a resolved drawing target: the covered lines plus their union box
type span struct {
	lines          []model.Line
	x1, y1, x2, y2 int
}

// RenderSubmission draws every question's annotations, per-question score
// circles and the grand total onto the submission's pages. contexts must be
// parallel to pages; a page with an empty index renders in fallback mode.
func (r *AnnotationRenderer) RenderSubmission(pages [][]byte, contexts []PageContext, scores []model.QuestionScore) ([][]byte, RenderStats, error) {
	var stats RenderStats

	if len(contexts) != len(pages) {
		return nil, stats, fmt.Errorf("page/context mismatch: %d pages, %d contexts", len(pages), len(contexts))
	}

	decoded := make([]image.Image, len(pages))
	for i, page := range pages {
		img, err := imaging.Decode(bytes.NewReader(page))
		if err != nil {
			return nil, stats, fmt.Errorf("decode page %d: %w", i+1, err)
		}
		decoded[i] = img
	}

	perPage := r.assignToPages(scores, contexts, len(pages), &stats)

	out := make([][]byte, len(pages))
	for i := range decoded {
		canvas := imaging.Clone(decoded[i])

		if contexts[i].Index.Empty() {
			r.renderFallbackPage(canvas, scores)
			stats.FallbackPages++
		} else {
			anns := CapPageAnnotations(perPage[i])
			cursorY := marginCursorStep

			for _, ann := range anns {
				r.drawAnnotation(canvas, ann, contexts[i], &cursorY, &stats)
			}

			r.drawScoreCircles(canvas, contexts[i], scores)
		}

		if i == 0 {
			r.drawTotalScore(canvas, scores)
		}

		var buf bytes.Buffer
		if err := imaging.Encode(&buf, canvas, imaging.JPEG, imaging.JPEGQuality(r.jpegQuality)); err != nil {
			return nil, stats, fmt.Errorf("encode page %d: %w", i+1, err)
		}
		out[i] = buf.Bytes()
	}

	return out, stats, nil
}

// assignToPages flattens every question's annotations into per-page lists.
// An explicit page index wins; otherwise the page owning the referenced line
// id is searched for; annotations that fit nowhere land on the first page's
// margin rather than disappearing.
func (r *AnnotationRenderer) assignToPages(scores []model.QuestionScore, contexts []PageContext, pageCount int, stats *RenderStats) [][]model.AnnotationData {
	perPage := make([][]model.AnnotationData, pageCount)
	if pageCount == 0 {
		return perPage
	}

	for _, score := range scores {
		for _, ann := range score.Annotations {
			idx := r.resolvePage(ann, contexts, pageCount)
			perPage[idx] = append(perPage[idx], ann)
		}
	}

	return perPage
}

func (r *AnnotationRenderer) resolvePage(ann model.AnnotationData, contexts []PageContext, pageCount int) int {
	if ann.PageIndex >= 0 && ann.PageIndex < pageCount {
		return ann.PageIndex
	}

	if ann.HasLineRef() {
		ref := ann.LineID
		if ref == "" {
			ref = ann.LineIDStart
		}
		for i := range contexts {
			if _, ok := contexts[i].Index.Get(ref); ok {
				return i
			}
		}
	}

	if ann.AnchorText != "" {
		bestPage, bestScore := 0, -1
		for i := range contexts {
			if _, sim := matchAnchorWindow(contexts[i].Words, ann.AnchorText); sim > bestScore {
				bestPage, bestScore = i, sim
			}
		}
		if bestScore >= anchorMinSimilarity {
			return bestPage
		}
	}

	return 0
}

// drawAnnotation resolves one annotation and paints it. Resolution order:
// line reference, then anchor text, then the sequential margin cursor. A
// line reference that does not resolve skips the annotation; it never falls
// through to a guessed position.
func (r *AnnotationRenderer) drawAnnotation(img *image.NRGBA, ann model.AnnotationData, ctx PageContext, cursorY *int, stats *RenderStats) {
	if ann.HasLineRef() {
		sp, ok := r.resolveLineRef(ann, ctx.Index)
		if !ok {
			log.Printf("AnnotationRenderer: line reference %q/%q..%q not found, skipping %s",
				ann.LineID, ann.LineIDStart, ann.LineIDEnd, ann.Type)
			stats.Skipped++
			return
		}
		r.paint(img, ann, sp)
		stats.Drawn++
		return
	}

	if ann.AnchorText != "" {
		box, sim := matchAnchorWindow(ctx.Words, ann.AnchorText)
		if sim >= anchorMinSimilarity {
			r.paint(img, ann, spanFromLine(box))
			stats.Drawn++
			return
		}
	}

	r.paintAtMargin(img, ann, *cursorY)
	*cursorY += marginCursorStep
	stats.MarginPlaced++
	stats.Drawn++
}

func (r *AnnotationRenderer) resolveLineRef(ann model.AnnotationData, index *LineIndex) (span, bool) {
	startID := ann.LineIDStart
	if startID == "" {
		startID = ann.LineID
	}
	endID := ann.LineIDEnd
	if endID == "" {
		endID = startID
	}

	var lines []model.Line
	if startID == endID {
		line, ok := index.Get(startID)
		if !ok {
			return span{}, false
		}
		lines = []model.Line{line}
	} else {
		var ok bool
		lines, ok = index.LinesInRange(startID, endID)
		if !ok {
			return span{}, false
		}
	}

	sp := span{lines: lines}
	sp.x1, sp.y1 = int(lines[0].X1), int(lines[0].Y1)
	sp.x2, sp.y2 = int(lines[0].X2), int(lines[0].Y2)
	for _, l := range lines[1:] {
		sp.x1 = minInt(sp.x1, int(l.X1))
		sp.y1 = minInt(sp.y1, int(l.Y1))
		sp.x2 = maxInt(sp.x2, int(l.X2))
		sp.y2 = maxInt(sp.y2, int(l.Y2))
	}
	return sp, true
}

func spanFromLine(l model.Line) span {
	return span{
		lines: []model.Line{l},
		x1:    int(l.X1), y1: int(l.Y1),
		x2: int(l.X2), y2: int(l.Y2),
	}
}

// paint draws one resolved annotation. Multi-line spans get exactly one
// glyph and one reason label for the whole span, never one per line.
func (r *AnnotationRenderer) paint(img *image.NRGBA, ann model.AnnotationData, sp span) {
	c := parseColor(ann.Color)

	switch {
	case ann.Type == model.AnnotationTick || ann.Type == model.AnnotationDoubleTick || ann.Type == model.AnnotationCross:
		// Glyph at the left margin aligned to the first line's center.
		first := sp.lines[0]
		cy := int(first.CenterY())

		if ann.Type == model.AnnotationCross {
			drawCross(img, marginGlyphX, cy, glyphSize, c)
		} else {
			drawTick(img, marginGlyphX, cy, glyphSize, c)
			if ann.Type == model.AnnotationDoubleTick {
				drawTick(img, marginGlyphX+glyphSize/2, cy, glyphSize, c)
			}
		}

		if len(sp.lines) > 1 {
			drawBracket(img, marginGlyphX+glyphSize, sp.y1, sp.y2, c)
		}
		if ann.Text != "" {
			drawText(img, marginGlyphX+glyphSize+14, int(first.CenterY())+5, ann.Text, c)
		}

	case ann.Type.IsUnderline():
		// One stroke per covered line, reason once for the span.
		for _, l := range sp.lines {
			strokeLine(img, int(l.X1), int(l.Y2)+4, int(l.X2), int(l.Y2)+4, 2, c)
		}
		if ann.Text != "" {
			drawText(img, sp.x2+10, int(sp.lines[0].CenterY())+5, ann.Text, c)
		}

	case ann.Type == model.AnnotationBox || ann.Type == model.AnnotationHighlightBox:
		drawRect(img, sp.x1-6, sp.y1-6, sp.x2+6, sp.y2+6, 2, c)
		if ann.Text != "" {
			drawText(img, sp.x1-6, sp.y1-12, ann.Text, c)
		}

	case ann.Type == model.AnnotationComment || ann.Type == model.AnnotationMarginNote:
		// Plain text at the span's top-right, no symbol.
		drawText(img, sp.x2+10, sp.y1+12, ann.Text, c)

	case ann.Type == model.AnnotationMarginBracket || ann.Type == model.AnnotationGroupBracket:
		drawBracket(img, marginGlyphX+glyphSize, sp.y1, sp.y2, c)
		if ann.Text != "" {
			drawText(img, marginGlyphX+glyphSize+14, (sp.y1+sp.y2)/2+5, ann.Text, c)
		}

	default:
		drawText(img, sp.x2+10, sp.y1+12, ann.Text, c)
	}
}

// paintAtMargin renders an annotation with no usable reference at the next
// margin cursor position, so nothing the model asked for silently vanishes.
func (r *AnnotationRenderer) paintAtMargin(img *image.NRGBA, ann model.AnnotationData, cursorY int) {
	c := parseColor(ann.Color)

	switch {
	case ann.Type == model.AnnotationCross:
		drawCross(img, marginGlyphX, cursorY, glyphSize, c)
	case ann.Type == model.AnnotationTick || ann.Type == model.AnnotationDoubleTick:
		drawTick(img, marginGlyphX, cursorY, glyphSize, c)
	default:
		drawCircle(img, marginGlyphX, cursorY, 6, 2, c)
	}

	if ann.Text != "" {
		drawText(img, marginGlyphX+glyphSize+8, cursorY+5, ann.Text, c)
	}
}

// drawScoreCircles places "obtained/max" after each question's last visible
// line on this page. A question continuing onto later pages collects one
// trailing marker per page it appears on.
func (r *AnnotationRenderer) drawScoreCircles(img *image.NRGBA, ctx PageContext, scores []model.QuestionScore) {
	for _, score := range scores {
		if score.Status == model.ScoreStatusNotFound {
			continue
		}

		line, ok := ctx.Index.LastLineForQuestion(score.QuestionNumber)
		if !ok {
			continue
		}

		cx := int(line.X2) + scoreCircleRadius + 16
		cy := int(line.CenterY())
		label := formatMarks(score.ObtainedMarks, score.MaxMarks)

		drawCircle(img, cx, cy, scoreCircleRadius, 2, colorRed)
		drawText(img, cx-textWidth(label)/2, cy+5, label, colorRed)
	}
}

// drawTotalScore writes the grand total box on the first page
func (r *AnnotationRenderer) drawTotalScore(img *image.NRGBA, scores []model.QuestionScore) {
	label := "TOTAL: " + formatMarks(model.TotalObtained(scores), model.TotalMax(scores))

	w := textWidth(label)
	x := img.Bounds().Dx() - w - 60
	if x < 10 {
		x = 10
	}
	y := 48

	drawRect(img, x-12, y-24, x+w+12, y+14, 3, colorRed)
	drawText(img, x, y, label, colorRed)
}

// renderFallbackPage is the degraded path for a page with no OCR: one tick
// and score circle per question, evenly spaced down the margin.
func (r *AnnotationRenderer) renderFallbackPage(img *image.NRGBA, scores []model.QuestionScore) {
	if len(scores) == 0 {
		return
	}

	height := img.Bounds().Dy()
	step := height / (len(scores) + 1)

	for i, score := range scores {
		y := (i + 1) * step
		label := formatMarks(score.ObtainedMarks, score.MaxMarks)

		drawTick(img, marginGlyphX, y, glyphSize, colorGreen)
		cx := marginGlyphX + glyphSize + scoreCircleRadius + 20
		drawCircle(img, cx, y, scoreCircleRadius, 2, colorRed)
		drawText(img, cx-textWidth(label)/2, y+5, label, colorRed)
	}
}

// matchAnchorWindow slides a token window over the page's OCR words and
// fuzzy-scores each window against the anchor text. Returns the best
// window's bounding box and its 0-100 similarity.
func matchAnchorWindow(words []model.OCRWord, anchor string) (model.Line, int) {
	target := utils.NormalizeToken(anchor)
	if target == "" || len(words) == 0 {
		return model.Line{}, 0
	}

	windowSize := len(strings.Fields(target))
	if windowSize < 1 {
		windowSize = 1
	}
	if windowSize > len(words) {
		windowSize = len(words)
	}

	var best model.Line
	bestScore := 0

	for i := 0; i+windowSize <= len(words); i++ {
		var parts []string
		for _, w := range words[i : i+windowSize] {
			parts = append(parts, utils.NormalizeToken(w.Text))
		}

		score := utils.FuzzyRatio(strings.Join(parts, " "), target)
		if score > bestScore {
			bestScore = score
			best = unionWords(words[i : i+windowSize])
		}
	}

	return best, bestScore
}

func unionWords(words []model.OCRWord) model.Line {
	box := model.Line{X1: words[0].X1, Y1: words[0].Y1, X2: words[0].X2, Y2: words[0].Y2}
	for _, w := range words[1:] {
		if w.X1 < box.X1 {
			box.X1 = w.X1
		}
		if w.Y1 < box.Y1 {
			box.Y1 = w.Y1
		}
		if w.X2 > box.X2 {
			box.X2 = w.X2
		}
		if w.Y2 > box.Y2 {
			box.Y2 = w.Y2
		}
	}
	return box
}

// formatMarks renders "7.5/10" style labels without trailing zeros
func formatMarks(obtained, max float64) string {
	return strconv.FormatFloat(obtained, 'f', -1, 64) + "/" + strconv.FormatFloat(max, 'f', -1, 64)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
