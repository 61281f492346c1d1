package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pavelanni/autograder/internal/model"
)

// ListPending returns the submitted attempts of an evaluation in review
// order: urgent, medium, low, then oldest submission first.
func (s *Store) ListPending(ctx context.Context, evaluationID int64, f model.PendingFilter) ([]model.AttemptSummary, error) {
	query := `SELECT a.id, st.id, st.name, st.email, a.total_points, a.percent_correct, a.score_percent,
		a.confidence_level, a.has_anomalies, a.priority, a.state, a.submitted_at
		FROM attempts a JOIN students st ON st.id = a.student_id
		WHERE a.evaluation_id = ? AND a.state = ?`
	args := []any{evaluationID, model.StateSubmitted}
	if f.Priority != "" {
		query += ` AND a.priority = ?`
		args = append(args, f.Priority)
	}
	if f.Search != "" {
		pattern := "%" + escapeLike(strings.ToLower(f.Search)) + "%"
		query += ` AND (LOWER(st.name) LIKE ? ESCAPE '\' OR LOWER(st.email) LIKE ? ESCAPE '\')`
		args = append(args, pattern, pattern)
	}
	query += ` ORDER BY CASE a.priority WHEN 'urgent' THEN 0 WHEN 'medium' THEN 1 WHEN 'low' THEN 2 ELSE 3 END,
		a.submitted_at, a.id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []model.AttemptSummary{}
	for rows.Next() {
		var a model.AttemptSummary
		if err := rows.Scan(&a.ID, &a.Student.ID, &a.Student.Name, &a.Student.Email, &a.TotalPointsAwarded,
			&a.PercentCorrect, &a.ScorePercent, &a.ConfidenceLevel, &a.HasAnomalies, &a.Priority, &a.State,
			&a.SubmittedAt); err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// AttemptDetail returns an attempt with its student, evaluation and every
// response paired with its question.
func (s *Store) AttemptDetail(ctx context.Context, attemptID int64) (model.AttemptDetail, error) {
	a, err := s.LoadAttempt(ctx, attemptID)
	if err != nil {
		return model.AttemptDetail{}, err
	}
	st, err := s.GetStudent(ctx, a.StudentID)
	if err != nil {
		return model.AttemptDetail{}, err
	}
	ev, err := s.GetEvaluation(ctx, a.EvaluationID)
	if err != nil {
		return model.AttemptDetail{}, err
	}
	questions, err := s.QuestionsForEvaluation(ctx, a.EvaluationID)
	if err != nil {
		return model.AttemptDetail{}, err
	}
	byID := make(map[int64]model.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	d := model.AttemptDetail{Attempt: a, Student: st, Evaluation: ev}
	for _, r := range a.Responses {
		d.Responses = append(d.Responses, model.ResponseDetail{Response: r, Question: byID[r.QuestionID]})
	}
	return d, nil
}

// ReviewStats summarises review progress for an evaluation. Averages cover
// attempts that have been submitted.
func (s *Store) ReviewStats(ctx context.Context, evaluationID int64) (model.ReviewStats, error) {
	st := model.ReviewStats{PendingByPriority: map[model.Priority]int{
		model.PriorityUrgent: 0,
		model.PriorityMedium: 0,
		model.PriorityLow:    0,
	}}

	var avgConf, avgScore, avgPoints sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		   COALESCE(SUM(state = 'submitted'), 0),
		   COALESCE(SUM(state = 'graded'), 0),
		   AVG(CASE WHEN state != 'in_progress' THEN confidence_level END),
		   AVG(CASE WHEN state != 'in_progress' THEN score_percent END),
		   AVG(CASE WHEN state != 'in_progress' THEN total_points END)
		 FROM attempts WHERE evaluation_id = ?`, evaluationID,
	).Scan(&st.TotalAttempts, &st.Pending, &st.Graded, &avgConf, &avgScore, &avgPoints)
	if err != nil {
		return st, fmt.Errorf("aggregate attempts: %w", err)
	}
	st.AvgConfidence = model.Round2(avgConf.Float64)
	st.AvgScorePercent = model.Round2(avgScore.Float64)
	st.AvgPoints = model.Round2(avgPoints.Float64)
	if st.TotalAttempts > 0 {
		st.PercentCompleted = model.Round2(float64(st.Graded) / float64(st.TotalAttempts) * 100)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT priority, COUNT(*) FROM attempts
		 WHERE evaluation_id = ? AND state = ? GROUP BY priority`, evaluationID, model.StateSubmitted)
	if err != nil {
		return st, fmt.Errorf("count pending by priority: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p model.Priority
		var n int
		if err := rows.Scan(&p, &n); err != nil {
			return st, err
		}
		if p.Valid() {
			st.PendingByPriority[p] = n
		}
	}
	return st, rows.Err()
}
