package services

import (
	"context"
	"fmt"
	"log"

	"github.com/scriptgrade/scriptgrade/model"
)

// wordDetector is the OCR slice the grading pipeline needs. The real client
// talks to the external OCR service; tests inject canned words.
type wordDetector interface {
	DetectWords(ctx context.Context, imageBytes []byte, filename string) (*OCRWordResponse, error)
}

// GradingInput is everything needed to grade one submission
type GradingInput struct {
	Images      [][]byte // rendered answer pages, in order
	Questions   []model.Question
	GradingMode model.GradingMode

	ExamID   uint
	ExamType string // "upsc" switches examiner calibration

	// Model answer: text form preferred, image form sent otherwise.
	ModelAnswerText   string
	ModelAnswerImages [][]byte
}

// GradeOptions tweaks a single grading call
type GradeOptions struct {
	// SkipCache forces recomputation; used by explicit regrade actions. The
	// fresh result still replaces the cached entry.
	SkipCache bool
}

// GradingService is the single entry point for grading a submission and
// rendering its annotated pages. Chunking, caching, OCR line indexing and
// aggregation all happen behind it.
type GradingService struct {
	grader   *ChunkGrader
	ocr      wordDetector
	cache    *GradingCache
	renderer *AnnotationRenderer
	chunkCfg ChunkConfig
}

// NewGradingService wires the pipeline. ocr and gradingCache may be nil:
// grading still works, degraded to margin-only annotations and no caching.
func NewGradingService(grader *ChunkGrader, ocr wordDetector, gradingCache *GradingCache) *GradingService {
	return &GradingService{
		grader:   grader,
		ocr:      ocr,
		cache:    gradingCache,
		renderer: NewAnnotationRenderer(),
		chunkCfg: DefaultChunkConfig(),
	}
}

// GradeSubmission grades one submission's pages and returns the final
// per-question scores. Submissions grade their chunks strictly sequentially;
// the cache short-circuits identical reruns entirely.
func (s *GradingService) GradeSubmission(ctx context.Context, in GradingInput, opts GradeOptions) ([]model.QuestionScore, error) {
	if len(in.Images) == 0 {
		return nil, fmt.Errorf("no pages to grade")
	}
	if len(in.Questions) == 0 {
		return nil, fmt.Errorf("no questions to grade against")
	}
	if !in.GradingMode.Valid() {
		in.GradingMode = model.GradingModeBalanced
	}

	key := GradingCacheKey(in.Images, in.Questions, in.GradingMode, in.ModelAnswerText, in.ModelAnswerImages)

	if !opts.SkipCache && s.cache != nil {
		if scores, ok := s.cache.Get(key); ok {
			log.Printf("GradingService: cache hit %s, skipping LLM", key[:12])
			return scores, nil
		}
	}

	contexts := s.pageContexts(ctx, in.Images, in.Questions)

	chunks := CalculateChunks(len(in.Images), s.chunkCfg)
	chunkResults := make([][]ChunkScore, 0, len(chunks))

	for i, chunk := range chunks {
		blocks := make([]string, 0, chunk.End-chunk.Start+1)
		for p := chunk.Start - 1; p < chunk.End; p++ {
			blocks = append(blocks, contexts[p].Index.ContextBlock())
		}

		input := ChunkPromptInput{
			ChunkIndex:      i,
			TotalChunks:     len(chunks),
			StartPageNumber: chunk.Start,
			Questions:       in.Questions,
			GradingMode:     in.GradingMode,
			ExamType:        in.ExamType,
			ModelAnswerText: in.ModelAnswerText,
			LineIndexBlocks: blocks,
		}

		scores, err := s.grader.GradeChunk(ctx, input, in.Images[chunk.Start-1:chunk.End], in.ModelAnswerImages)
		if err != nil {
			return nil, fmt.Errorf("grading pages %d-%d: %w", chunk.Start, chunk.End, err)
		}

		chunkResults = append(chunkResults, scores)
	}

	final := AggregateChunks(chunkResults, in.Questions, in.GradingMode)

	if s.cache != nil {
		s.cache.Put(key, in.ExamID, final)
	}

	return final, nil
}

// RenderAnnotations turns a final score list into annotated page images.
// Annotation is best effort relative to scoring: OCR being down degrades the
// output to margin ticks, never to an error that would block grading.
func (s *GradingService) RenderAnnotations(ctx context.Context, images [][]byte, questions []model.Question, scores []model.QuestionScore) ([][]byte, RenderStats, error) {
	contexts := s.pageContexts(ctx, images, questions)
	return s.renderer.RenderSubmission(images, contexts, scores)
}

// pageContexts runs OCR and line indexing over every page. Pages whose OCR
// call fails get an empty context; the rest of the pipeline treats that as
// the degraded no-OCR mode.
func (s *GradingService) pageContexts(ctx context.Context, images [][]byte, questions []model.Question) []PageContext {
	contexts := make([]PageContext, len(images))
	indexer := NewLineIndexer(questions)

	for i, img := range images {
		if s.ocr == nil {
			contexts[i] = PageContext{Index: indexer.IndexPage(nil, 0)}
			continue
		}

		resp, err := s.ocr.DetectWords(ctx, img, fmt.Sprintf("page_%d.jpg", i+1))
		if err != nil {
			log.Printf("GradingService: OCR failed for page %d, continuing without line index: %v", i+1, err)
			contexts[i] = PageContext{Index: indexer.IndexPage(nil, 0)}
			continue
		}

		contexts[i] = PageContext{
			Index: indexer.IndexPage(resp.Words, resp.PageHeight),
			Words: resp.Words,
		}
	}

	return contexts
}
