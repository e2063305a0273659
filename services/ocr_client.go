package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"github.com/scriptgrade/scriptgrade/model"
)

// OCRClient talks to the word-detection OCR service. OCR being down is a
// degraded mode, not a failure: callers receive an empty word list and fall
// back to margin-only annotation.
type OCRClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// OCRWordResponse is the word-detection payload returned by the OCR service
type OCRWordResponse struct {
	Words      []model.OCRWord `json:"words"`
	PageWidth  float64         `json:"page_width"`
	PageHeight float64         `json:"page_height"`
}

// NewOCRClient creates a new OCR client
func NewOCRClient() *OCRClient {
	baseURL := os.Getenv("OCR_SERVICE_URL")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8081"
	}

	return &OCRClient{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

// DetectWords runs word detection on one page image and returns word boxes in
// source-image pixel space.
func (c *OCRClient) DetectWords(ctx context.Context, imageBytes []byte, filename string) (*OCRWordResponse, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageBytes); err != nil {
		return nil, fmt.Errorf("failed to write file content: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/ocr/words", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("OCR service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("OCR service returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var ocrResp OCRWordResponse
	if err := json.NewDecoder(resp.Body).Decode(&ocrResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &ocrResp, nil
}

// HealthCheck checks if the OCR service is healthy
func (c *OCRClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.BaseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("OCR service unhealthy: status %d", resp.StatusCode)
	}

	return nil
}
