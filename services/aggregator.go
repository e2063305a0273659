package services

import (
	"strings"

	"github.com/scriptgrade/scriptgrade/model"
)

// blankAnswerHints are feedback phrases the model uses for an unanswered
// question. A located question with zero marks and one of these in the
// feedback is classified not_attempted instead of graded.
var blankAnswerHints = []string{
	"not attempted",
	"no answer",
	"not answered",
	"left blank",
	"blank answer",
	"blank page",
	"unanswered",
	"did not attempt",
	"nothing written",
	"empty answer",
}

// AggregateChunks merges every chunk's raw score list into one authoritative
// score per question. Conflicts resolve by "highest non-negative wins": the
// dominant failure mode of chunked grading is a question only partially
// visible in a chunk, which produces a spuriously low score, so the chunk
// that scored highest is the one most likely to have seen the whole answer.
// Ties keep the first entry found, so chunk order matters and stays stable.
func AggregateChunks(chunks [][]ChunkScore, questions []model.Question, mode model.GradingMode) []model.QuestionScore {
	results := make([]model.QuestionScore, 0, len(questions))

	// Iterating the authoritative question list both orders the output and
	// deduplicates: a question the LLM repeated across chunks still yields
	// exactly one result, and invented question numbers are ignored.
	for _, q := range questions {
		results = append(results, aggregateQuestion(chunks, q, mode))
	}

	return results
}

func aggregateQuestion(chunks [][]ChunkScore, q model.Question, mode model.GradingMode) model.QuestionScore {
	best := selectBest(chunks, q.Number)

	score := model.QuestionScore{
		QuestionNumber: q.Number,
		MaxMarks:       q.MaxMarks,
	}

	located := best != nil
	if best != nil {
		score.ObtainedMarks = best.ObtainedMarks
		score.AIFeedback = best.AIFeedback
		score.Confidence = best.Confidence
		score.Annotations = NormalizeQuestionAnnotations(best.Annotations)
	}

	// Sub-scores are selected independently per sub id so that a chunk which
	// saw only part (a) and another which saw only part (b) both contribute.
	// The parent's marks are then always the sum of the chosen sub-scores.
	if len(q.SubQuestions) > 0 {
		var sum float64
		subLocated := false

		for _, sub := range q.SubQuestions {
			chosen := selectBestSub(chunks, q.Number, sub.SubID)

			ss := model.SubQuestionScore{
				SubID:    sub.SubID,
				MaxMarks: sub.MaxMarks,
			}
			if chosen != nil {
				subLocated = true
				ss.ObtainedMarks = clamp(chosen.ObtainedMarks, 0, sub.MaxMarks)
				ss.AIFeedback = chosen.AIFeedback
			}

			sum += ss.ObtainedMarks
			score.SubScores = append(score.SubScores, ss)
		}

		score.ObtainedMarks = sum
		located = located || subLocated
	}

	score.ObtainedMarks = clamp(score.ObtainedMarks, 0, q.MaxMarks)

	if mode == model.GradingModeStrict {
		score.ObtainedMarks = ApplyStrictCap(score.ObtainedMarks, q.MaxMarks)
	}

	// Whenever a clamp or cap lowered the parent, shrink the sub-scores so
	// obtained always equals the sub-score sum.
	rescaleSubScores(&score)

	// A located zero with no feedback at all reads as an unanswered question,
	// same as the model saying so explicitly.
	score.Status = classifyStatus(located, score.ObtainedMarks, score.AIFeedback)
	if score.Status == model.ScoreStatusNotFound {
		score.ObtainedMarks = 0
		score.Annotations = nil
	}

	return score
}

// selectBest returns the highest non-negative chunk entry for a question
// number, or nil when no chunk located it.
func selectBest(chunks [][]ChunkScore, number int) *ChunkScore {
	var best *ChunkScore

	for ci := range chunks {
		for si := range chunks[ci] {
			entry := &chunks[ci][si]
			if entry.QuestionNumber != number || !entry.Located {
				continue
			}
			if best == nil || entry.ObtainedMarks > best.ObtainedMarks {
				best = entry
			}
		}
	}

	return best
}

// selectBestSub runs the same highest-wins selection for one sub id
func selectBestSub(chunks [][]ChunkScore, number int, subID string) *ChunkSubScore {
	var best *ChunkSubScore

	for ci := range chunks {
		for si := range chunks[ci] {
			entry := &chunks[ci][si]
			if entry.QuestionNumber != number {
				continue
			}
			for ssi := range entry.SubScores {
				sub := &entry.SubScores[ssi]
				if sub.SubID != subID || !sub.Located {
					continue
				}
				if best == nil || sub.ObtainedMarks > best.ObtainedMarks {
					best = sub
				}
			}
		}
	}

	return best
}

func classifyStatus(located bool, obtained float64, feedback string) model.ScoreStatus {
	if !located {
		return model.ScoreStatusNotFound
	}
	if obtained == 0 && feedbackIndicatesBlank(feedback) {
		return model.ScoreStatusNotAttempted
	}
	return model.ScoreStatusGraded
}

func feedbackIndicatesBlank(feedback string) bool {
	trimmed := strings.TrimSpace(feedback)
	if trimmed == "" {
		return true
	}

	lower := strings.ToLower(trimmed)
	for _, hint := range blankAnswerHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

// rescaleSubScores shrinks sub-scores proportionally when a cap lowered the
// parent, so the sum invariant survives.
func rescaleSubScores(score *model.QuestionScore) {
	if len(score.SubScores) == 0 {
		return
	}

	var sum float64
	for _, s := range score.SubScores {
		sum += s.ObtainedMarks
	}
	if sum == 0 || sum == score.ObtainedMarks {
		return
	}

	factor := score.ObtainedMarks / sum
	var running float64
	for i := range score.SubScores {
		score.SubScores[i].ObtainedMarks *= factor
		running += score.SubScores[i].ObtainedMarks
	}

	// Absorb float drift into the last sub-score.
	if diff := score.ObtainedMarks - running; diff != 0 {
		score.SubScores[len(score.SubScores)-1].ObtainedMarks += diff
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
