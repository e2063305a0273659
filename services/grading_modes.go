package services

import (
	"github.com/scriptgrade/scriptgrade/model"
)

// gradingPhilosophies maps each grading mode to the scoring-philosophy text
// injected verbatim into the grading request. Pure configuration.
var gradingPhilosophies = map[model.GradingMode]string{
	model.GradingModeStrict: `SCORING PHILOSOPHY (STRICT): Award marks only for fully correct, complete answers.
An answer with any factual error, missing step, or incomplete reasoning earns at most
half of the maximum marks. Do not give benefit of the doubt. Partial understanding
without correct execution earns zero for that part. Apply examiner-level rigor
throughout.`,

	model.GradingModeBalanced: `SCORING PHILOSOPHY (BALANCED): Award weighted partial credit. Break each answer into
its expected components and award marks proportionally for each component that is
correct. Minor slips (arithmetic, spelling of technical terms) lose a small fraction;
conceptual errors lose the marks tied to that concept. This is the standard
examination marking scheme.`,

	model.GradingModeConceptual: `SCORING PHILOSOPHY (CONCEPTUAL): Credit demonstrated understanding. If the student
shows they understand the underlying concept, award most of the marks even when the
procedural execution has slips. Only withhold marks where the conceptual grasp itself
is missing or wrong. Do not penalize notation or presentation.`,

	model.GradingModeLenient: `SCORING PHILOSOPHY (LENIENT): Reward genuine attempts. Any answer showing a real
attempt at the question earns floor marks (at least 20% of maximum). Award generously
for partially correct work. Reserve zero only for blank answers or content entirely
unrelated to the question.`,
}

// PhilosophyFor returns the scoring-philosophy text for a mode, defaulting to
// balanced for anything unrecognized.
func PhilosophyFor(mode model.GradingMode) string {
	if text, ok := gradingPhilosophies[mode]; ok {
		return text
	}
	return gradingPhilosophies[model.GradingModeBalanced]
}

// ApplyStrictCap clamps a strict-mode score to at most 0.5*max - 1, floored
// at zero. Applied at aggregation so a generous chunk cannot leak past it.
func ApplyStrictCap(obtained, maxMarks float64) float64 {
	cap := 0.5*maxMarks - 1
	if cap < 0 {
		cap = 0
	}
	if obtained > cap {
		return cap
	}
	return obtained
}
