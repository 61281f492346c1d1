package store

import (
	"context"
	"fmt"
	"time"

	"github.com/pavelanni/autograder/internal/model"
)

// ExportEvaluation builds export-ready results for every attempt of an evaluation.
func (s *Store) ExportEvaluation(ctx context.Context, evaluationID int64) (model.EvaluationExport, error) {
	ev, err := s.GetEvaluation(ctx, evaluationID)
	if err != nil {
		return model.EvaluationExport{}, err
	}
	questions, err := s.QuestionsForEvaluation(ctx, evaluationID)
	if err != nil {
		return model.EvaluationExport{}, fmt.Errorf("list questions: %w", err)
	}

	ids, err := s.attemptIDs(ctx, evaluationID)
	if err != nil {
		return model.EvaluationExport{}, fmt.Errorf("list attempts: %w", err)
	}

	// Track attempt count per student for attempt_number.
	studentAttemptCount := make(map[int64]int)

	results := []model.StudentResult{}
	for _, id := range ids {
		d, err := s.AttemptDetail(ctx, id)
		if err != nil {
			return model.EvaluationExport{}, fmt.Errorf("get attempt %d: %w", id, err)
		}
		studentAttemptCount[d.Student.ID]++

		var qs []model.QuestionResult
		for _, rd := range d.Responses {
			qs = append(qs, model.QuestionResult{
				Prompt:         rd.Question.Prompt,
				Kind:           rd.Question.Kind,
				Topic:          rd.Question.Topic,
				MaxPoints:      rd.Question.MaxPoints,
				Answer:         rd.Response.Text,
				PointsAwarded:  rd.Response.PointsAwarded,
				IsCorrect:      rd.Response.IsCorrect,
				Source:         rd.Response.Source,
				Recommendation: rd.Response.Recommendation,
			})
		}

		a := d.Attempt
		results = append(results, model.StudentResult{
			AttemptID:          a.ID,
			StudentName:        d.Student.Name,
			StudentEmail:       d.Student.Email,
			AttemptNumber:      studentAttemptCount[d.Student.ID],
			State:              a.State,
			Priority:           a.Priority,
			StartedAt:          a.StartedAt,
			SubmittedAt:        a.SubmittedAt,
			GradedAt:           a.GradedAt,
			TotalPointsAwarded: a.TotalPointsAwarded,
			ScorePercent:       a.ScorePercent,
			ConfidenceLevel:    a.ConfidenceLevel,
			ReviewComment:      a.ReviewComment,
			Questions:          qs,
		})
	}

	return model.EvaluationExport{
		EvaluationID: ev.ID,
		Title:        ev.Title,
		ExportedAt:   time.Now().UTC(),
		NumQuestions: len(questions),
		Results:      results,
	}, nil
}

func (s *Store) attemptIDs(ctx context.Context, evaluationID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM attempts WHERE evaluation_id = ? ORDER BY id`, evaluationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
