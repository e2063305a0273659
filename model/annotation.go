package model

// AnnotationType identifies the visual mark to draw on an answer page
type AnnotationType string

const (
	AnnotationTick              AnnotationType = "TICK"
	AnnotationDoubleTick        AnnotationType = "DOUBLE_TICK"
	AnnotationCross             AnnotationType = "CROSS"
	AnnotationUnderline         AnnotationType = "UNDERLINE"
	AnnotationUnderlineError    AnnotationType = "UNDERLINE_ERROR"
	AnnotationUnderlineFeedback AnnotationType = "UNDERLINE_FEEDBACK"
	AnnotationUnderlineEmphasis AnnotationType = "UNDERLINE_EMPHASIS"
	AnnotationComment           AnnotationType = "COMMENT"
	AnnotationBox               AnnotationType = "BOX"
	AnnotationHighlightBox      AnnotationType = "HIGHLIGHT_BOX"
	AnnotationMarginBracket     AnnotationType = "MARGIN_BRACKET"
	AnnotationMarginNote        AnnotationType = "MARGIN_NOTE"
	AnnotationGroupBracket      AnnotationType = "GROUP_BRACKET"
	AnnotationScoreCircle       AnnotationType = "SCORE_CIRCLE"
	AnnotationTotalScore        AnnotationType = "TOTAL_SCORE"
)

// IsUnderline reports whether the type renders as an underline stroke
func (t AnnotationType) IsUnderline() bool {
	switch t {
	case AnnotationUnderline, AnnotationUnderlineError, AnnotationUnderlineFeedback, AnnotationUnderlineEmphasis:
		return true
	}
	return false
}

// AnnotationData is the canonical internal representation of one visual mark.
// Exactly one spatial reference is used, tried in priority order:
// line reference (LineID or LineIDStart..LineIDEnd), then AnchorText fuzzy
// matching, then sequential margin placement when neither is set.
type AnnotationData struct {
	Type AnnotationType `json:"type"`

	// Line reference. LineID is used for single-line marks; a range uses
	// LineIDStart/LineIDEnd (inclusive). IDs are "Q{n}-L{k}" keys.
	LineID      string `json:"line_id,omitempty"`
	LineIDStart string `json:"line_id_start,omitempty"`
	LineIDEnd   string `json:"line_id_end,omitempty"`

	// AnchorText is fuzzy-matched against OCR words when no line reference
	// resolves.
	AnchorText string `json:"anchor_text,omitempty"`

	// Text is the short (2-4 word) reason rendered next to the mark.
	Text string `json:"text,omitempty"`

	Color string `json:"color,omitempty"`
	Size  string `json:"size,omitempty"`

	// PageIndex is 0-based; -1 means "resolve from the line reference"
	// during placement.
	PageIndex int `json:"page_index"`
}

// HasLineRef reports whether the annotation carries any line reference
func (a AnnotationData) HasLineRef() bool {
	return a.LineID != "" || a.LineIDStart != "" || a.LineIDEnd != ""
}
