package analysis

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pavelanni/autograder/internal/i18n"
	"github.com/pavelanni/autograder/internal/model"
)

const photosynthesisPrompt = "Explain the process of photosynthesis in plants"

func TestKeywords(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		want   []string
	}{
		{"english", photosynthesisPrompt, []string{"process", "photosynthesis", "plants"}},
		{"punctuation and case", "What is RECURSION? Give recursion examples.", []string{"recursion", "give", "examples"}},
		{"spanish", "Explique la fotosíntesis para las plantas", []string{"fotosíntesis", "plantas"}},
		{"only short words", "is it on", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Keywords(tt.prompt))
		})
	}
}

func TestHeuristic(t *testing.T) {
	ctx := context.Background()
	fifty := strings.Repeat("word ", 47) + "photosynthesis plants process"
	twenty := strings.Repeat("word ", 20)

	tests := []struct {
		name       string
		text       string
		confidence float64
		correct    bool
		anomalous  bool
	}{
		{"empty", "", 0.3, false, true},
		{"partial keywords", "Photosynthesis is how plants make food.", 0.47, false, false},
		{"twenty words no keywords", twenty, 0.45, false, false},
		{"long with all keywords", fifty, 0.85, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Heuristic(ctx, tt.text, photosynthesisPrompt)
			assert.Equal(t, tt.confidence, got.Confidence)
			assert.Equal(t, tt.correct, got.IsCorrect)
			assert.Equal(t, tt.anomalous, got.IsAnomalous)
			assert.Zero(t, got.PointsAwarded)
			assert.Equal(t, model.SourceFallback, got.Source)
			assert.Equal(t, i18n.T(ctx, "RecManualReview"), got.Recommendation)
		})
	}
}

func TestHeuristicPatterns(t *testing.T) {
	got := Heuristic(context.Background(), "Plants grow. Why? Light!", photosynthesisPrompt)
	assert.Equal(t, 4, got.Patterns["word_count"])
	assert.Equal(t, 3, got.Patterns["sentence_count"])
	assert.Equal(t, 1, got.Patterns["keywords_found"])
	assert.Equal(t, 3, got.Patterns["keywords_total"])
}

func TestHeuristicNeverAwardsPoints(t *testing.T) {
	for _, text := range []string{"", "x", strings.Repeat("photosynthesis process plants ", 100)} {
		got := Heuristic(context.Background(), text, photosynthesisPrompt)
		assert.Zero(t, got.PointsAwarded)
		assert.GreaterOrEqual(t, got.Confidence, 0.0)
		assert.LessOrEqual(t, got.Confidence, 1.0)
	}
}
