package services

import (
	"log"
	"regexp"
	"sort"
	"strings"

	"github.com/scriptgrade/scriptgrade/model"
)

const maxAnnotationsPerPage = 10

// styleToType maps the historical "style"-keyed wire shape onto canonical
// annotation types. The old shape predates the annotation_type field and
// still shows up when the model imitates older examples.
var styleToType = map[string]model.AnnotationType{
	"tick":               model.AnnotationTick,
	"check":              model.AnnotationTick,
	"checkmark":          model.AnnotationTick,
	"double_tick":        model.AnnotationDoubleTick,
	"cross":              model.AnnotationCross,
	"wrong":              model.AnnotationCross,
	"x":                  model.AnnotationCross,
	"underline":          model.AnnotationUnderline,
	"underline_error":    model.AnnotationUnderlineError,
	"error_underline":    model.AnnotationUnderlineError,
	"underline_feedback": model.AnnotationUnderlineFeedback,
	"underline_emphasis": model.AnnotationUnderlineEmphasis,
	"emphasis":           model.AnnotationUnderlineEmphasis,
	"comment":            model.AnnotationComment,
	"note":               model.AnnotationComment,
	"margin_note":        model.AnnotationMarginNote,
	"box":                model.AnnotationBox,
	"highlight":          model.AnnotationHighlightBox,
	"highlight_box":      model.AnnotationHighlightBox,
	"bracket":            model.AnnotationMarginBracket,
	"circle":             model.AnnotationScoreCircle,
}

// typeAliases normalizes annotation_type values to canonical constants
var typeAliases = map[string]model.AnnotationType{
	"TICK":               model.AnnotationTick,
	"DOUBLE_TICK":        model.AnnotationDoubleTick,
	"CROSS":              model.AnnotationCross,
	"UNDERLINE":          model.AnnotationUnderline,
	"UNDERLINE_ERROR":    model.AnnotationUnderlineError,
	"UNDERLINE_FEEDBACK": model.AnnotationUnderlineFeedback,
	"UNDERLINE_EMPHASIS": model.AnnotationUnderlineEmphasis,
	"COMMENT":            model.AnnotationComment,
	"BOX":                model.AnnotationBox,
	"HIGHLIGHT_BOX":      model.AnnotationHighlightBox,
	"MARGIN_BRACKET":     model.AnnotationMarginBracket,
	"MARGIN_NOTE":        model.AnnotationMarginNote,
	"GROUP_BRACKET":      model.AnnotationGroupBracket,
}

// severity orders annotation types for the greedy caps. Lower sorts first.
// Crosses carry the most pedagogic weight, ticks the least.
func severity(t model.AnnotationType) int {
	switch {
	case t == model.AnnotationCross:
		return 0
	case t == model.AnnotationBox || t == model.AnnotationHighlightBox ||
		t == model.AnnotationComment || t == model.AnnotationMarginNote:
		return 1
	case t.IsUnderline():
		return 2
	case t == model.AnnotationTick || t == model.AnnotationDoubleTick:
		return 3
	}
	return 4
}

// capGroup buckets types that share a sub-cap
func capGroup(t model.AnnotationType) string {
	switch {
	case t.IsUnderline():
		return "underline"
	case t == model.AnnotationBox || t == model.AnnotationHighlightBox:
		return "box"
	case t == model.AnnotationComment || t == model.AnnotationMarginNote:
		return "comment"
	case t == model.AnnotationCross:
		return "cross"
	case t == model.AnnotationTick || t == model.AnnotationDoubleTick:
		return "tick"
	}
	return "other"
}

// perQuestionCaps bound how many marks of each group a single question may
// contribute. The page-wide total is capped separately in CapPageAnnotations.
var perQuestionCaps = map[string]int{
	"underline": 4,
	"box":       2,
	"comment":   3,
	"cross":     3,
	"tick":      3,
	"other":     2,
}

// numericAnchorRe matches anchors like "3", "12." or "4)" which are question
// numbering, not answer text.
var numericAnchorRe = regexp.MustCompile(`^\d+[.)]?$`)

// NormalizeQuestionAnnotations converts one question's raw wire annotations
// into canonical AnnotationData, drops entries that cannot be placed safely,
// sorts by severity and applies the per-question type caps.
func NormalizeQuestionAnnotations(raws []RawAnnotation) []model.AnnotationData {
	canonical := make([]model.AnnotationData, 0, len(raws))
	dropped := 0

	for _, raw := range raws {
		ann, ok := mapRawAnnotation(raw)
		if !ok {
			dropped++
			continue
		}
		canonical = append(canonical, ann)
	}

	if dropped > 0 {
		log.Printf("AnnotationNormalizer: dropped %d of %d raw annotations", dropped, len(raws))
	}

	SortBySeverity(canonical)

	counts := map[string]int{}
	kept := canonical[:0]
	for _, ann := range canonical {
		group := capGroup(ann.Type)
		if counts[group] >= perQuestionCaps[group] {
			continue
		}
		counts[group]++
		kept = append(kept, ann)
	}

	// Nil when nothing survives, so a score that round-trips through JSON
	// (omitempty drops empty lists) compares equal to a freshly built one.
	if len(kept) == 0 {
		return nil
	}
	return kept
}

// mapRawAnnotation resolves the historical shapes into one canonical value.
// Returns false when the type is unrecognized or the only spatial reference
// is a noise anchor.
func mapRawAnnotation(raw RawAnnotation) (model.AnnotationData, bool) {
	var annType model.AnnotationType
	var ok bool

	if raw.AnnotationType != "" {
		annType, ok = typeAliases[strings.ToUpper(strings.TrimSpace(raw.AnnotationType))]
	} else if raw.Style != "" {
		annType, ok = styleToType[strings.ToLower(strings.TrimSpace(raw.Style))]
	}
	if !ok {
		return model.AnnotationData{}, false
	}

	ann := model.AnnotationData{
		Type:        annType,
		LineID:      strings.TrimSpace(raw.LineID),
		LineIDStart: strings.TrimSpace(raw.LineIDStart),
		LineIDEnd:   strings.TrimSpace(raw.LineIDEnd),
		AnchorText:  strings.TrimSpace(raw.AnchorText),
		Color:       raw.Color,
		Size:        raw.Size,
		PageIndex:   -1,
	}

	if raw.PageNumber != nil && *raw.PageNumber >= 0 {
		ann.PageIndex = *raw.PageNumber
	}

	// Both label spellings existed on the wire; short_label is current.
	switch {
	case raw.ShortLabel != "":
		ann.Text = raw.ShortLabel
	case raw.Label != "":
		ann.Text = raw.Label
	case raw.Text != "":
		ann.Text = raw.Text
	}

	if ann.Color == "" {
		ann.Color = colorForSentiment(raw.Sentiment, annType)
	}

	// An anchor-only annotation with a too-short or purely numeric anchor is
	// OCR noise and would mis-anchor, so it is dropped rather than guessed.
	if !ann.HasLineRef() && ann.AnchorText != "" && isNoiseAnchor(ann.AnchorText) {
		return model.AnnotationData{}, false
	}

	return ann, true
}

func isNoiseAnchor(anchor string) bool {
	return len(anchor) < 3 || numericAnchorRe.MatchString(anchor)
}

func colorForSentiment(sentiment string, t model.AnnotationType) string {
	switch strings.ToLower(sentiment) {
	case "positive":
		return "green"
	case "negative":
		return "red"
	}

	switch {
	case t == model.AnnotationCross || t == model.AnnotationUnderlineError:
		return "red"
	case t == model.AnnotationTick || t == model.AnnotationDoubleTick:
		return "green"
	}
	return "blue"
}

// SortBySeverity orders annotations so the most important marks render (and
// survive capping) first. The sort is stable so wire order breaks ties.
func SortBySeverity(anns []model.AnnotationData) {
	sort.SliceStable(anns, func(i, j int) bool {
		return severity(anns[i].Type) < severity(anns[j].Type)
	})
}

// CapPageAnnotations bounds one page's flattened annotation list to the
// page-wide total, keeping the highest-severity marks.
func CapPageAnnotations(anns []model.AnnotationData) []model.AnnotationData {
	if len(anns) <= maxAnnotationsPerPage {
		SortBySeverity(anns)
		return anns
	}

	SortBySeverity(anns)
	return anns[:maxAnnotationsPerPage]
}
