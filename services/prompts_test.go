package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scriptgrade/scriptgrade/model"
)

func TestBuildSystemPromptDeterministic(t *testing.T) {
	in := promptInput()

	first := BuildSystemPrompt(in)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, BuildSystemPrompt(in))
	}

	userFirst := BuildUserText(in)
	for i := 0; i < 10; i++ {
		assert.Equal(t, userFirst, BuildUserText(in))
	}
}

func TestBuildSystemPromptVariesByMode(t *testing.T) {
	in := promptInput()

	seen := map[string]model.GradingMode{}
	for _, mode := range []model.GradingMode{
		model.GradingModeStrict,
		model.GradingModeBalanced,
		model.GradingModeConceptual,
		model.GradingModeLenient,
	} {
		in.GradingMode = mode
		prompt := BuildSystemPrompt(in)
		if prev, dup := seen[prompt]; dup {
			t.Fatalf("modes %s and %s produced identical prompts", prev, mode)
		}
		seen[prompt] = mode
	}
}

func TestBuildSystemPromptExamTypeCalibration(t *testing.T) {
	in := promptInput()

	standard := BuildSystemPrompt(in)
	in.ExamType = "upsc"
	upsc := BuildSystemPrompt(in)

	assert.NotEqual(t, standard, upsc)
}

func TestPhilosophyForUnknownModeFallsBack(t *testing.T) {
	assert.Equal(t, PhilosophyFor(model.GradingModeBalanced), PhilosophyFor("nonsense"))
}

func TestBuildUserTextSkipsEmptyLineIndex(t *testing.T) {
	in := promptInput()
	in.LineIndexBlocks = []string{"", ""}

	text := BuildUserText(in)
	assert.NotContains(t, text, "LINE INDEX")

	in.LineIndexBlocks = []string{"Q1-L1: intro paragraph\n", ""}
	text = BuildUserText(in)
	require.Contains(t, text, "LINE INDEX")
	assert.Contains(t, text, "(no ocr text)")
}
