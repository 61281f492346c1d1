package analysis

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"

	"github.com/pavelanni/autograder/internal/i18n"
	"github.com/pavelanni/autograder/internal/model"
)

const (
	baseConfidence   = 0.3
	lengthBonus      = 0.15
	keywordWeight    = 0.25
	shortAnswerWords = 20
	longAnswerWords  = 50
	minKeywordRunes  = 4
)

var stopWords = map[string]bool{
	// es
	"para": true, "como": true, "cual": true, "cuál": true, "este": true, "esta": true,
	"estos": true, "estas": true, "sobre": true, "entre": true, "desde": true, "pero": true,
	"explique": true, "describa": true,
	// en
	"that": true, "this": true, "with": true, "from": true, "what": true, "which": true,
	"when": true, "where": true, "does": true, "your": true, "have": true, "there": true,
	"their": true, "about": true, "into": true, "explain": true, "describe": true,
}

// Heuristic scores an open answer locally from its length and its coverage of
// the prompt's keywords. It never awards points and always asks for manual
// review.
func Heuristic(ctx context.Context, text, prompt string) model.GradeResult {
	fold := cases.Fold()
	answer := fold.String(text)
	words := len(strings.Fields(text))

	keywords := Keywords(prompt)
	found := 0
	for _, kw := range keywords {
		if strings.Contains(answer, kw) {
			found++
		}
	}

	confidence := baseConfidence
	if words >= shortAnswerWords {
		confidence += lengthBonus
	}
	if words >= longAnswerWords {
		confidence += lengthBonus
	}
	if len(keywords) > 0 {
		confidence += float64(found) / float64(len(keywords)) * keywordWeight
	}
	confidence = model.Round2(min(1, max(0, confidence)))

	return model.GradeResult{
		IsCorrect:     confidence >= model.CorrectThreshold,
		PointsAwarded: 0,
		Confidence:    confidence,
		IsAnomalous:   confidence < model.AnomalyThreshold,
		Patterns: map[string]any{
			"answer_length":    utf8.RuneCountInString(text),
			"word_count":       words,
			"sentence_count":   strings.Count(text, ".") + strings.Count(text, "?") + strings.Count(text, "!"),
			"keywords_found":   found,
			"keywords_total":   len(keywords),
			"response_quality": confidence,
		},
		Recommendation: i18n.T(ctx, "RecManualReview"),
		Source:         model.SourceFallback,
	}
}

// Keywords returns the distinct case-folded words of prompt longer than three
// letters, without punctuation and stop words.
func Keywords(prompt string) []string {
	fold := cases.Fold()
	seen := make(map[string]bool)
	var out []string
	for _, w := range strings.Fields(fold.String(prompt)) {
		w = strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) {
				return r
			}
			return -1
		}, w)
		if utf8.RuneCountInString(w) < minKeywordRunes || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}
