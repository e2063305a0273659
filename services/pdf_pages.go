package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
)

// PageRange represents a range of pages (1-indexed, inclusive)
type PageRange struct {
	Start int
	End   int
}

// ChunkConfig holds configuration for splitting a submission into chunks
type ChunkConfig struct {
	PagesPerChunk int // Default: 4
}

// DefaultChunkConfig returns the default chunking configuration
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		PagesPerChunk: 4,
	}
}

// CalculateChunks returns contiguous page ranges covering totalPages.
// Grading chunks never overlap: the aggregator's highest-wins rule already
// handles answers that straddle a boundary.
func CalculateChunks(totalPages int, config ChunkConfig) []PageRange {
	if totalPages <= 0 {
		return nil
	}

	if config.PagesPerChunk <= 0 {
		config.PagesPerChunk = 4
	}

	var chunks []PageRange
	for start := 1; start <= totalPages; start += config.PagesPerChunk {
		end := start + config.PagesPerChunk - 1
		if end > totalPages {
			end = totalPages
		}
		chunks = append(chunks, PageRange{Start: start, End: end})
	}

	return chunks
}

// PDFExtractor handles local PDF inspection and text extraction
type PDFExtractor struct{}

// NewPDFExtractor creates a new PDF extractor
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// sanitizePDF truncates trailing garbage after the last %%EOF marker. PDFs
// downloaded from the web often carry appended HTML or tracking bytes.
func sanitizePDF(content []byte) []byte {
	if len(content) == 0 || !bytes.HasPrefix(content, []byte("%PDF-")) {
		return content
	}

	eofMarker := []byte("%%EOF")
	lastEOF := bytes.LastIndex(content, eofMarker)
	if lastEOF == -1 {
		return content
	}

	pdfEnd := lastEOF + len(eofMarker)
	for pdfEnd < len(content) && (content[pdfEnd] == '\n' || content[pdfEnd] == '\r') {
		pdfEnd++
	}

	if extraBytes := len(content) - pdfEnd; extraBytes > 10 {
		log.Printf("PDFExtractor: Removing %d bytes of trailing garbage after %%EOF", extraBytes)
		return content[:pdfEnd]
	}

	return content
}

// GetPageCount returns the total number of pages in the PDF
func (p *PDFExtractor) GetPageCount(content []byte) (int, error) {
	if len(content) == 0 {
		return 0, fmt.Errorf("empty PDF content")
	}

	content = sanitizePDF(content)
	reader := bytes.NewReader(content)

	pdfReader, err := pdf.NewReader(reader, int64(len(content)))
	if err != nil {
		return 0, fmt.Errorf("failed to parse PDF: %w", err)
	}

	return pdfReader.NumPage(), nil
}

// ExtractText extracts text from PDF bytes. Used on model-answer PDFs: a
// text model answer is cheaper to send than re-attaching its images to every
// chunk request.
func (p *PDFExtractor) ExtractText(content []byte) (string, error) {
	if len(content) == 0 {
		return "", fmt.Errorf("empty PDF content")
	}

	content = sanitizePDF(content)
	reader := bytes.NewReader(content)

	pdfReader, err := pdf.NewReader(reader, int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("failed to parse PDF: %w", err)
	}

	numPages := pdfReader.NumPage()
	if numPages == 0 {
		return "", fmt.Errorf("PDF has no pages")
	}

	var textBuilder strings.Builder

	for i := 1; i <= numPages; i++ {
		page := pdfReader.Page(i)
		if page.V.IsNull() {
			continue
		}

		rows, err := page.GetTextByRow()
		if err != nil {
			text, plainErr := page.GetPlainText(nil)
			if plainErr != nil {
				log.Printf("PDFExtractor: Failed to extract page %d: %v", i, plainErr)
				continue
			}
			textBuilder.WriteString(text)
			textBuilder.WriteString("\n")
			continue
		}

		for _, row := range rows {
			var rowText strings.Builder
			for _, word := range row.Content {
				rowText.WriteString(word.S)
			}
			line := strings.TrimSpace(rowText.String())
			if line != "" {
				textBuilder.WriteString(line)
				textBuilder.WriteString("\n")
			}
		}
		textBuilder.WriteString("\n")
	}

	extracted := strings.TrimSpace(textBuilder.String())
	if len(extracted) < 50 {
		return "", fmt.Errorf("insufficient text extracted from PDF (only %d characters) - PDF may be scanned and requires OCR", len(extracted))
	}

	return extracted, nil
}

// PageRenderClient rasterizes PDF pages via the external render service.
// Conversions are memory-heavy, so a fixed-size gate bounds concurrency;
// callers beyond the limit block until a slot frees.
type PageRenderClient struct {
	BaseURL    string
	HTTPClient *http.Client

	gate chan struct{}
}

// renderResponse is the render service payload: one base64-free binary page
// per entry would be wasteful over JSON, so the service returns data URLs.
type renderResponse struct {
	Pages []struct {
		Index int    `json:"index"`
		Data  []byte `json:"data"` // JSON base64-decodes into raw bytes
	} `json:"pages"`
}

// NewPageRenderClient creates a render client with the given concurrency cap
func NewPageRenderClient(maxConcurrent int) *PageRenderClient {
	baseURL := os.Getenv("PDF_RENDER_URL")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8082"
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}

	return &PageRenderClient{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
		gate: make(chan struct{}, maxConcurrent),
	}
}

// RenderPages converts a PDF into ordered page images (JPEG bytes)
func (c *PageRenderClient) RenderPages(ctx context.Context, pdfBytes []byte, filename string) ([][]byte, error) {
	select {
	case c.gate <- struct{}{}:
		defer func() { <-c.gate }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(pdfBytes); err != nil {
		return nil, fmt.Errorf("failed to write file content: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/render/pages", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("render service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("render service returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var rendered renderResponse
	if err := json.NewDecoder(resp.Body).Decode(&rendered); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	pages := make([][]byte, len(rendered.Pages))
	for _, p := range rendered.Pages {
		if p.Index < 0 || p.Index >= len(pages) {
			return nil, fmt.Errorf("render service returned out-of-range page index %d", p.Index)
		}
		pages[p.Index] = p.Data
	}

	return pages, nil
}
