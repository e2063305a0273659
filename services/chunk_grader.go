package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/scriptgrade/scriptgrade/services/llm"
	"github.com/scriptgrade/scriptgrade/utils"
)

// completer is the slice of the LLM client the grader needs; tests substitute
// a stub counting calls.
type completer interface {
	Complete(ctx context.Context, messages []llm.Message, options ...llm.Option) (string, error)
}

// RawAnnotation is the loosely-typed on-the-wire annotation. Two historical
// schemas coexist: a "style"-keyed shape and an "annotation_type"-keyed
// shape. The normalizer maps both into canonical AnnotationData.
type RawAnnotation struct {
	PageNumber *int `json:"page_number,omitempty"`

	LineID      string `json:"line_id,omitempty"`
	LineIDStart string `json:"line_id_start,omitempty"`
	LineIDEnd   string `json:"line_id_end,omitempty"`
	AnchorText  string `json:"anchor_text,omitempty"`

	AnnotationType string `json:"annotation_type,omitempty"`
	Style          string `json:"style,omitempty"` // historical key

	ShortLabel string `json:"short_label,omitempty"`
	Label      string `json:"label,omitempty"` // historical key
	Text       string `json:"text,omitempty"`  // historical key

	Sentiment string `json:"sentiment,omitempty"`
	Color     string `json:"color,omitempty"`
	Size      string `json:"size,omitempty"`
}

// rawSubScore is one sub-part entry as returned by the model
type rawSubScore struct {
	SubID         string  `json:"sub_id"`
	ObtainedMarks float64 `json:"obtained_marks"`
	AIFeedback    string  `json:"ai_feedback"`
}

// rawScore is one score entry as returned by the model. obtained_marks may be
// the -1 sentinel meaning "question not visible in this chunk".
type rawScore struct {
	QuestionNumber int             `json:"question_number"`
	ObtainedMarks  float64         `json:"obtained_marks"`
	AIFeedback     string          `json:"ai_feedback"`
	Status         string          `json:"status"`
	Confidence     float64         `json:"confidence"`
	Annotations    []RawAnnotation `json:"annotations"`
	SubScores      []rawSubScore   `json:"sub_scores"`
}

// chunkPayload is the top-level wire shape
type chunkPayload struct {
	Scores       []rawScore `json:"scores"`
	GradingNotes string     `json:"grading_notes"`
}

// ChunkSubScore is a sub-part result with the sentinel resolved into Located
type ChunkSubScore struct {
	SubID         string
	Located       bool
	ObtainedMarks float64
	AIFeedback    string
}

// ChunkScore is one question's result from one chunk. The wire sentinel -1 is
// converted into the explicit Located flag at this boundary so the magic
// value never reaches aggregation.
type ChunkScore struct {
	QuestionNumber int
	Located        bool
	ObtainedMarks  float64
	AIFeedback     string
	Status         string
	Confidence     float64
	Annotations    []RawAnnotation
	SubScores      []ChunkSubScore
}

// ChunkGrader sends one page-range of a submission to the LLM and parses a
// best-effort structured score list out of the response.
type ChunkGrader struct {
	llm     completer
	limiter *llm.RateLimiter

	maxRetries   int
	chunkTimeout time.Duration
}

// ChunkGraderConfig holds configuration for the chunk grader
type ChunkGraderConfig struct {
	MaxRetries   int
	ChunkTimeout time.Duration
}

// NewChunkGrader creates a chunk grader. limiter may be nil (tests).
func NewChunkGrader(client completer, limiter *llm.RateLimiter, config ChunkGraderConfig) *ChunkGrader {
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.ChunkTimeout <= 0 {
		config.ChunkTimeout = 240 * time.Second
	}

	return &ChunkGrader{
		llm:          client,
		limiter:      limiter,
		maxRetries:   config.MaxRetries,
		chunkTimeout: config.ChunkTimeout,
	}
}

// GradeChunk grades one chunk of student pages. chunkImages are this chunk's
// page images in order; modelAnswerImages are attached only when no
// pre-extracted model answer text exists.
//
// Failure semantics: transport errors retry with exponential backoff and are
// surfaced once exhausted; 429 backs off 60s per attempt and surfaces
// llm.ErrRateLimited once exhausted; a response that never parses contributes
// an empty score list (treated as not-found downstream) and no error.
func (g *ChunkGrader) GradeChunk(ctx context.Context, in ChunkPromptInput, chunkImages [][]byte, modelAnswerImages [][]byte) ([]ChunkScore, error) {
	messages := g.buildMessages(in, chunkImages, modelAnswerImages)

	var lastErr error
	lastWasParse := false
	for attempt := 1; attempt <= g.maxRetries; attempt++ {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		chunkCtx, cancel := context.WithTimeout(ctx, g.chunkTimeout)
		response, err := g.llm.Complete(chunkCtx, messages)
		cancel()

		if err == nil {
			var payload chunkPayload
			if parseErr := utils.ExtractJSONTo(response, &payload); parseErr != nil {
				log.Printf("ChunkGrader: Chunk %d attempt %d returned unparseable response (length=%d): %v",
					in.ChunkIndex+1, attempt, len(response), parseErr)
				lastErr = parseErr
				lastWasParse = true
			} else {
				return convertPayload(payload, in.StartPageNumber-1), nil
			}
		} else {
			lastErr = err
			lastWasParse = false

			if llm.IsRateLimit(err) {
				if g.limiter != nil {
					g.limiter.Backoff(2)
				}
				// Rate limits need real waiting, not quick retries.
				if attempt < g.maxRetries {
					wait := time.Duration(attempt) * 60 * time.Second
					log.Printf("ChunkGrader: Chunk %d rate limited, waiting %v before attempt %d",
						in.ChunkIndex+1, wait, attempt+1)
					select {
					case <-ctx.Done():
						return nil, ctx.Err()
					case <-time.After(wait):
					}
					continue
				}
				return nil, fmt.Errorf("chunk %d: %w", in.ChunkIndex+1, llm.ErrRateLimited)
			}

			if !llm.IsRetryable(err) {
				return nil, fmt.Errorf("chunk %d grading failed: %w", in.ChunkIndex+1, err)
			}
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		// Exponential backoff: 1s, 2s, 4s
		if attempt < g.maxRetries {
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			log.Printf("ChunkGrader: Chunk %d attempt %d failed, retrying in %v: %v",
				in.ChunkIndex+1, attempt, backoff, lastErr)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	if lastWasParse {
		// All attempts produced a response the parser could not use. The
		// chunk contributes nothing; aggregation classifies its questions
		// as not found.
		log.Printf("ChunkGrader: Chunk %d exhausted parse attempts, contributing empty result", in.ChunkIndex+1)
		return nil, nil
	}

	return nil, fmt.Errorf("chunk %d grading failed after %d attempts: %w", in.ChunkIndex+1, g.maxRetries, lastErr)
}

// buildMessages assembles the multimodal request. The order is fixed: system
// instructions, then user text (model answer + line index), then model-answer
// images when no text form exists, then this chunk's student pages. Identical
// inputs must produce an identical request so repeated runs are repeatable.
func (g *ChunkGrader) buildMessages(in ChunkPromptInput, chunkImages [][]byte, modelAnswerImages [][]byte) []llm.Message {
	parts := []llm.ContentPart{llm.TextPart(BuildUserText(in))}

	if in.ModelAnswerText == "" {
		for _, img := range modelAnswerImages {
			parts = append(parts, llm.ImagePart(img, "image/jpeg"))
		}
	}

	for _, img := range chunkImages {
		parts = append(parts, llm.ImagePart(img, "image/jpeg"))
	}

	return []llm.Message{
		llm.TextMessage("system", BuildSystemPrompt(in)),
		llm.PartsMessage("user", parts),
	}
}

// convertPayload resolves the -1 sentinel into explicit Located flags.
// pageOffset shifts the model's chunk-relative page_number values onto
// submission-global page indexes; the prompt numbers pages from 0 within
// the chunk's own images.
func convertPayload(payload chunkPayload, pageOffset int) []ChunkScore {
	scores := make([]ChunkScore, 0, len(payload.Scores))

	for _, raw := range payload.Scores {
		score := ChunkScore{
			QuestionNumber: raw.QuestionNumber,
			Located:        raw.ObtainedMarks >= 0,
			ObtainedMarks:  raw.ObtainedMarks,
			AIFeedback:     raw.AIFeedback,
			Status:         raw.Status,
			Confidence:     raw.Confidence,
			Annotations:    offsetAnnotationPages(raw.Annotations, pageOffset),
		}
		if !score.Located {
			score.ObtainedMarks = 0
		}

		for _, sub := range raw.SubScores {
			cs := ChunkSubScore{
				SubID:         sub.SubID,
				Located:       sub.ObtainedMarks >= 0,
				ObtainedMarks: sub.ObtainedMarks,
				AIFeedback:    sub.AIFeedback,
			}
			if !cs.Located {
				cs.ObtainedMarks = 0
			}
			score.SubScores = append(score.SubScores, cs)
		}

		scores = append(scores, score)
	}

	return scores
}

// offsetAnnotationPages rebases chunk-relative page numbers. Negative values
// pass through untouched so the renderer's fallback handling still applies.
func offsetAnnotationPages(raws []RawAnnotation, pageOffset int) []RawAnnotation {
	if pageOffset == 0 || len(raws) == 0 {
		return raws
	}

	shifted := make([]RawAnnotation, len(raws))
	for i, raw := range raws {
		if raw.PageNumber != nil && *raw.PageNumber >= 0 {
			global := *raw.PageNumber + pageOffset
			raw.PageNumber = &global
		}
		shifted[i] = raw
	}
	return shifted
}
