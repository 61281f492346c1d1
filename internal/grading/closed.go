package grading

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/pavelanni/autograder/internal/model"
)

var (
	truthy = map[string]bool{"true": true, "yes": true, "1": true, "v": true, "t": true, "verdadero": true, "sí": true, "si": true}
	falsy  = map[string]bool{"false": true, "no": true, "0": true, "f": true, "falso": true}
)

func normalize(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// parseBool maps the true/false vocabulary to a boolean. ok is false for
// anything outside it.
func parseBool(s string) (value, ok bool) {
	n := normalize(s)
	switch {
	case truthy[n]:
		return true, true
	case falsy[n]:
		return false, true
	}
	return false, false
}

// GradeClosed scores a closed-choice or true/false answer by normalized
// equality. Answers that cannot be interpreted are incorrect.
func GradeClosed(kind model.QuestionKind, answer, correct string, maxPoints float64) model.GradeResult {
	var isCorrect bool
	switch kind {
	case model.KindTrueFalse:
		got, okGot := parseBool(answer)
		want, okWant := parseBool(correct)
		isCorrect = okGot && okWant && got == want
	case model.KindClosedChoice:
		n := normalize(answer)
		isCorrect = n != "" && n == normalize(correct)
	}

	g := model.GradeResult{
		IsCorrect:  isCorrect,
		Confidence: 1,
		Patterns:   map[string]any{},
		Source:     model.SourceClosed,
	}
	if isCorrect {
		g.PointsAwarded = maxPoints
	}
	return g
}
