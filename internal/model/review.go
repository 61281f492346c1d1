package model

import (
	"fmt"
	"math"
	"time"
)

// ReviewAction names how a reviewer finalized an attempt.
type ReviewAction string

const (
	ActionConfirm ReviewAction = "confirm"
	ActionAdjust  ReviewAction = "adjust"
)

// Override replaces the automatic grade of one response.
type Override struct {
	ResponseID     int64   `json:"response_id"`
	Points         float64 `json:"points"`
	Recommendation *string `json:"recommendation,omitempty"`
}

// Finalization is the write set that moves a submitted attempt to graded.
// Responses holds only the responses a reviewer changed.
type Finalization struct {
	AttemptID          int64
	Action             ReviewAction
	Responses          []Response
	TotalPointsAwarded float64
	PercentCorrect     float64
	ScorePercent       float64
	ReviewerID         int64
	Comment            string
	GradedAt           time.Time
}

// SubmittedAttempt is an attempt proven to be awaiting review. Only values of
// this type can produce a Finalization.
type SubmittedAttempt struct {
	attempt   Attempt
	questions map[int64]Question
}

// AsSubmitted checks that a is awaiting review.
func AsSubmitted(a Attempt, questions []Question) (SubmittedAttempt, error) {
	switch a.State {
	case StateSubmitted:
	case StateGraded:
		return SubmittedAttempt{}, ErrAlreadyGraded
	default:
		return SubmittedAttempt{}, ErrNotSubmitted
	}
	qs := make(map[int64]Question, len(questions))
	for _, q := range questions {
		qs[q.ID] = q
	}
	return SubmittedAttempt{attempt: a, questions: qs}, nil
}

// Attempt returns a copy of the underlying attempt.
func (s SubmittedAttempt) Attempt() Attempt {
	return s.attempt
}

// Confirm finalizes the attempt with its automatic grades unchanged.
func (s SubmittedAttempt) Confirm(reviewerID int64, comment string, at time.Time) Finalization {
	return Finalization{
		AttemptID:          s.attempt.ID,
		Action:             ActionConfirm,
		TotalPointsAwarded: s.attempt.TotalPointsAwarded,
		PercentCorrect:     s.attempt.PercentCorrect,
		ScorePercent:       s.attempt.ScorePercent,
		ReviewerID:         reviewerID,
		Comment:            comment,
		GradedAt:           at,
	}
}

// Adjust applies reviewer overrides and recomputes the attempt totals.
// Any override outside [0, max_points] rejects the whole adjustment.
func (s SubmittedAttempt) Adjust(overrides []Override, reviewerID int64, comment string, at time.Time) (Finalization, error) {
	responses := make([]Response, len(s.attempt.Responses))
	copy(responses, s.attempt.Responses)
	index := make(map[int64]int, len(responses))
	for i, r := range responses {
		index[r.ID] = i
	}

	changed := make(map[int64]bool, len(overrides))
	for _, o := range overrides {
		i, ok := index[o.ResponseID]
		if !ok {
			return Finalization{}, fmt.Errorf("%w: response %d is not part of attempt %d", ErrInvalidPoints, o.ResponseID, s.attempt.ID)
		}
		q, ok := s.questions[responses[i].QuestionID]
		if !ok {
			return Finalization{}, fmt.Errorf("%w: response %d has no question", ErrMalformedAttempt, o.ResponseID)
		}
		if math.IsNaN(o.Points) || o.Points < 0 || o.Points > q.MaxPoints {
			return Finalization{}, fmt.Errorf("%w: %.2f outside [0, %.2f] for response %d", ErrInvalidPoints, o.Points, q.MaxPoints, o.ResponseID)
		}
		r := responses[i]
		r.PointsAwarded = o.Points
		if q.MaxPoints > 0 {
			r.IsCorrect = o.Points >= CorrectThreshold*q.MaxPoints
		}
		if o.Recommendation != nil {
			r.Recommendation = *o.Recommendation
		}
		r.Source = SourceManual
		responses[i] = r
		changed[r.ID] = true
	}

	var total, maxTotal float64
	correct := 0
	for _, r := range responses {
		total += r.PointsAwarded
		if r.IsCorrect {
			correct++
		}
	}
	for _, q := range s.questions {
		maxTotal += q.MaxPoints
	}

	fin := Finalization{
		AttemptID:          s.attempt.ID,
		Action:             ActionAdjust,
		TotalPointsAwarded: total,
		ReviewerID:         reviewerID,
		Comment:            comment,
		GradedAt:           at,
	}
	if len(responses) > 0 {
		fin.PercentCorrect = Round2(float64(correct) / float64(len(responses)) * 100)
	}
	if maxTotal > 0 {
		fin.ScorePercent = Round2(total / maxTotal * 100)
	}
	for _, r := range responses {
		if changed[r.ID] {
			fin.Responses = append(fin.Responses, r)
		}
	}
	return fin, nil
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
