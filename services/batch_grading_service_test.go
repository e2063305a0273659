package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scriptgrade/scriptgrade/model"
)

// recordingStore captures uploads and serves canned downloads
type recordingStore struct {
	uploads  []string
	failKeys map[string]bool
}

func (r *recordingStore) UploadBytes(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if r.failKeys[key] {
		return "", errors.New("spaces unavailable")
	}
	r.uploads = append(r.uploads, key)
	return "https://bucket.example.com/" + key, nil
}

func (r *recordingStore) Download(ctx context.Context, key string) ([]byte, error) {
	return nil, errors.New("not used")
}

func newBatchForUpload(store ObjectStore) *BatchGradingService {
	grader := NewChunkGrader(&stubCompleter{responses: []string{"{}"}}, nil, ChunkGraderConfig{MaxRetries: 1})
	grading := NewGradingService(grader, nil, nil)
	return NewBatchGradingService(nil, grading, nil, nil, store)
}

func TestAnnotateAndUploadKeysAndURLs(t *testing.T) {
	store := &recordingStore{}
	b := newBatchForUpload(store)

	pages := [][]byte{testPageJPEG(t, 300, 400), testPageJPEG(t, 300, 400)}
	questions := []model.Question{{Number: 1, MaxMarks: 10}}
	scores := []model.QuestionScore{{QuestionNumber: 1, MaxMarks: 10, ObtainedMarks: 7, Status: model.ScoreStatusGraded}}

	urls := b.annotateAndUpload(context.Background(), 42, pages, questions, scores)

	require.Len(t, urls, 2)
	assert.Equal(t, []string{"annotated/42/page_001.jpg", "annotated/42/page_002.jpg"}, store.uploads)
	assert.Equal(t, "https://bucket.example.com/annotated/42/page_001.jpg", urls[0])
}

func TestAnnotateAndUploadSkipsFailedPages(t *testing.T) {
	store := &recordingStore{failKeys: map[string]bool{"annotated/42/page_001.jpg": true}}
	b := newBatchForUpload(store)

	pages := [][]byte{testPageJPEG(t, 300, 400), testPageJPEG(t, 300, 400)}
	questions := []model.Question{{Number: 1, MaxMarks: 10}}
	scores := []model.QuestionScore{{QuestionNumber: 1, MaxMarks: 10, ObtainedMarks: 7, Status: model.ScoreStatusGraded}}

	urls := b.annotateAndUpload(context.Background(), 42, pages, questions, scores)

	// A failed page upload drops that page's URL, not the whole batch.
	require.Len(t, urls, 1)
	assert.Contains(t, urls[0], "page_002.jpg")
}

func TestAnnotateAndUploadRenderFailureIsBestEffort(t *testing.T) {
	store := &recordingStore{}
	b := newBatchForUpload(store)

	// Undecodable page bytes: rendering fails, grading results survive.
	urls := b.annotateAndUpload(context.Background(), 42, [][]byte{[]byte("not an image")},
		[]model.Question{{Number: 1}}, nil)

	assert.Nil(t, urls)
	assert.Empty(t, store.uploads)
}
