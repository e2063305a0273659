package services

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizePDFTruncatesTrailingGarbage(t *testing.T) {
	pdf := []byte("%PDF-1.4\nsome objects\n%%EOF\n")
	garbage := append(append([]byte{}, pdf...), []byte("<html>tracking pixel markup</html>")...)

	cleaned := sanitizePDF(garbage)
	assert.Equal(t, pdf, cleaned)
}

func TestSanitizePDFLeavesCleanFilesAlone(t *testing.T) {
	pdf := []byte("%PDF-1.4\nsome objects\n%%EOF\n")
	assert.Equal(t, pdf, sanitizePDF(pdf))

	// A few trailing newlines are normal, not garbage.
	withNewlines := append(append([]byte{}, pdf...), '\n', '\r', '\n')
	assert.True(t, bytes.HasPrefix(sanitizePDF(withNewlines), []byte("%PDF-")))
}

func TestSanitizePDFIgnoresNonPDF(t *testing.T) {
	notPDF := []byte("<html>an error page</html>")
	assert.Equal(t, notPDF, sanitizePDF(notPDF))

	assert.Empty(t, sanitizePDF(nil))
}

func TestGetPageCountRejectsEmpty(t *testing.T) {
	p := NewPDFExtractor()
	_, err := p.GetPageCount(nil)
	assert.Error(t, err)

	_, err = p.ExtractText(nil)
	assert.Error(t, err)
}
