package model

// OCRWord is one word detected on a page image, in source-image pixel space
type OCRWord struct {
	Text string  `json:"text"`
	X1   float64 `json:"x1"`
	Y1   float64 `json:"y1"`
	X2   float64 `json:"x2"`
	Y2   float64 `json:"y2"`
}

// CenterY returns the vertical center of the word box
func (w OCRWord) CenterY() float64 {
	return (w.Y1 + w.Y2) / 2
}

// Line is a horizontally merged run of OCR words attributed to a question.
// LineID is "Q{question}-L{sequence}"; the sequence restarts at 1 whenever a
// new question boundary is detected top to bottom on the page.
type Line struct {
	LineID string  `json:"line_id"`
	X1     float64 `json:"x1"`
	Y1     float64 `json:"y1"`
	X2     float64 `json:"x2"`
	Y2     float64 `json:"y2"`
	Text   string  `json:"text"`
}

// CenterY returns the vertical center of the line box
func (l Line) CenterY() float64 {
	return (l.Y1 + l.Y2) / 2
}
