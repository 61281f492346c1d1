package grading

import (
	"github.com/pavelanni/autograder/internal/model"
)

const (
	// DefaultConfidence is the attempt confidence when no response carries one.
	DefaultConfidence = 0.5
	// StrongConfidence is the confidence a correct response needs to count as a strength.
	StrongConfidence = 0.8
	maxAreas         = 3
)

// Summary holds the attempt-level figures derived from graded responses.
type Summary struct {
	TotalPoints     float64
	MaxPoints       float64
	Correct         int
	ConfidenceLevel float64
	PercentCorrect  float64
	ScorePercent    float64
	Difficulty      model.Difficulty
	WeakAreas       []string
	StrongAreas     []string
}

// Aggregate combines graded responses into attempt-level metrics. MaxPoints
// covers every question of the evaluation.
func Aggregate(responses []model.Response, questions []model.Question) Summary {
	byID := make(map[int64]model.Question, len(questions))
	s := Summary{WeakAreas: []string{}, StrongAreas: []string{}}
	for _, q := range questions {
		byID[q.ID] = q
		s.MaxPoints += q.MaxPoints
	}

	var confSum float64
	var confN int
	for _, r := range responses {
		s.TotalPoints += r.PointsAwarded
		if r.Confidence != nil {
			confSum += *r.Confidence
			confN++
		}
		if r.IsCorrect {
			s.Correct++
		}

		area := byID[r.QuestionID].Prompt
		switch {
		case !r.IsCorrect:
			s.WeakAreas = appendArea(s.WeakAreas, area)
		case r.Confidence != nil && *r.Confidence > StrongConfidence:
			s.StrongAreas = appendArea(s.StrongAreas, area)
		}
	}

	s.ConfidenceLevel = DefaultConfidence
	if confN > 0 {
		s.ConfidenceLevel = model.Round2(confSum / float64(confN))
	}

	s.Difficulty = model.DifficultyMedium
	if len(responses) > 0 {
		s.PercentCorrect = model.Round2(float64(s.Correct) / float64(len(responses)) * 100)
		s.Difficulty = difficulty(float64(s.Correct) / float64(len(responses)) * 100)
	}
	if s.MaxPoints > 0 {
		s.ScorePercent = model.Round2(s.TotalPoints / s.MaxPoints * 100)
	}
	return s
}

func difficulty(percentCorrect float64) model.Difficulty {
	switch {
	case percentCorrect >= 80:
		return model.DifficultyLow
	case percentCorrect >= 50:
		return model.DifficultyMedium
	}
	return model.DifficultyHigh
}

func appendArea(areas []string, area string) []string {
	if area == "" || len(areas) >= maxAreas {
		return areas
	}
	return append(areas, area)
}
