package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/autograder/internal/model"
)

const attemptColumns = `a.id, a.evaluation_id, a.student_id, a.state, a.total_points, a.percent_correct,
	a.score_percent, a.confidence_level, a.difficulty, a.has_anomalies, a.anomaly_count, a.priority,
	a.weak_areas, a.strong_areas, a.recommendations, a.started_at, a.submitted_at, a.graded_at,
	a.reviewed_by, a.review_comment`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (model.Attempt, error) {
	var a model.Attempt
	var weak, strong, recs string
	var reviewedBy sql.NullInt64
	err := row.Scan(&a.ID, &a.EvaluationID, &a.StudentID, &a.State, &a.TotalPointsAwarded, &a.PercentCorrect,
		&a.ScorePercent, &a.ConfidenceLevel, &a.DifficultyDetected, &a.HasAnomalies, &a.AnomalyCount, &a.Priority,
		&weak, &strong, &recs, &a.StartedAt, &a.SubmittedAt, &a.GradedAt,
		&reviewedBy, &a.ReviewComment)
	if err != nil {
		return a, err
	}
	if reviewedBy.Valid {
		a.ReviewedBy = &reviewedBy.Int64
	}
	for _, f := range []struct {
		raw string
		dst *[]string
	}{{weak, &a.WeakAreas}, {strong, &a.StrongAreas}, {recs, &a.Recommendations}} {
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return a, fmt.Errorf("decode attempt %d lists: %w", a.ID, err)
		}
	}
	return a, nil
}

func scanResponses(rows *sql.Rows) ([]model.Response, error) {
	defer rows.Close()
	var out []model.Response
	for rows.Next() {
		var r model.Response
		var conf sql.NullFloat64
		var patterns string
		if err := rows.Scan(&r.ID, &r.AttemptID, &r.QuestionID, &r.Text, &r.IsCorrect, &r.PointsAwarded,
			&conf, &r.IsAnomalous, &patterns, &r.Recommendation, &r.Source); err != nil {
			return nil, err
		}
		if conf.Valid {
			r.Confidence = &conf.Float64
		}
		if err := json.Unmarshal([]byte(patterns), &r.Patterns); err != nil {
			return nil, fmt.Errorf("decode patterns of response %d: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const responseColumns = `r.id, r.attempt_id, r.question_id, r.text, r.is_correct, r.points_awarded,
	r.confidence, r.is_anomalous, r.patterns, r.recommendation, r.source`

// CreateAttempt starts an attempt with one empty response per question.
func (s *Store) CreateAttempt(ctx context.Context, evaluationID, studentID int64) (model.Attempt, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Attempt{}, err
	}
	defer tx.Rollback()

	questions, err := queryQuestions(ctx, tx, evaluationID)
	if err != nil {
		return model.Attempt{}, fmt.Errorf("load questions: %w", err)
	}
	if len(questions) == 0 {
		return model.Attempt{}, fmt.Errorf("evaluation %d has no questions: %w", evaluationID, model.ErrNotFound)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO attempts (evaluation_id, student_id, state, started_at) VALUES (?, ?, ?, ?)`,
		evaluationID, studentID, model.StateInProgress, time.Now(),
	)
	if err != nil {
		return model.Attempt{}, fmt.Errorf("insert attempt: %w", err)
	}
	attemptID, err := res.LastInsertId()
	if err != nil {
		return model.Attempt{}, err
	}

	for _, q := range questions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO responses (attempt_id, question_id) VALUES (?, ?)`, attemptID, q.ID,
		); err != nil {
			return model.Attempt{}, fmt.Errorf("insert response for question %d: %w", q.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return model.Attempt{}, err
	}
	return s.LoadAttempt(ctx, attemptID)
}

// LoadAttempt returns an attempt with its responses in question order.
func (s *Store) LoadAttempt(ctx context.Context, attemptID int64) (model.Attempt, error) {
	a, err := scanAttempt(s.db.QueryRowContext(ctx,
		`SELECT `+attemptColumns+` FROM attempts a WHERE a.id = ?`, attemptID))
	if errors.Is(err, sql.ErrNoRows) {
		return a, fmt.Errorf("attempt %d: %w", attemptID, model.ErrNotFound)
	}
	if err != nil {
		return a, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+responseColumns+` FROM responses r
		 JOIN questions q ON q.id = r.question_id
		 WHERE r.attempt_id = ? ORDER BY q.position, q.id`, attemptID)
	if err != nil {
		return a, err
	}
	a.Responses, err = scanResponses(rows)
	return a, err
}

// SaveAnswer records the text of one answer while the attempt is in progress.
func (s *Store) SaveAnswer(ctx context.Context, attemptID, questionID int64, text string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE responses SET text = ?
		 WHERE attempt_id = ? AND question_id = ?
		   AND EXISTS (SELECT 1 FROM attempts WHERE id = ? AND state = ?)`,
		text, attemptID, questionID, attemptID, model.StateInProgress,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	a, err := s.LoadAttempt(ctx, attemptID)
	if err != nil {
		return err
	}
	if a.State != model.StateInProgress {
		return model.ErrNotInProgress
	}
	return fmt.Errorf("question %d in attempt %d: %w", questionID, attemptID, model.ErrNotFound)
}

// SaveGrading writes every response and the attempt aggregates in one
// transaction and leaves the attempt submitted. from is the state the
// attempt must still be in: in_progress for a first submission, submitted
// for a re-grade. The attempt only becomes visible to reviewers once this
// commits.
func (s *Store) SaveGrading(ctx context.Context, a model.Attempt, from model.AttemptState) error {
	weak, strong, recs, err := encodeLists(a)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE attempts SET state = ?, submitted_at = COALESCE(?, submitted_at),
		   total_points = ?, percent_correct = ?, score_percent = ?, confidence_level = ?,
		   difficulty = ?, has_anomalies = ?, anomaly_count = ?, priority = ?,
		   weak_areas = ?, strong_areas = ?, recommendations = ?
		 WHERE id = ? AND state = ?`,
		model.StateSubmitted, a.SubmittedAt,
		a.TotalPointsAwarded, a.PercentCorrect, a.ScorePercent, a.ConfidenceLevel,
		a.DifficultyDetected, a.HasAnomalies, a.AnomalyCount, a.Priority,
		weak, strong, recs, a.ID, from,
	)
	if err != nil {
		return fmt.Errorf("update attempt: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return stateError(ctx, tx, a.ID, from)
	}

	for _, r := range a.Responses {
		if err := updateResponse(ctx, tx, a.ID, r); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// stateError explains why a state-guarded update on an attempt matched no row.
func stateError(ctx context.Context, tx *sql.Tx, attemptID int64, want model.AttemptState) error {
	var state model.AttemptState
	err := tx.QueryRowContext(ctx, `SELECT state FROM attempts WHERE id = ?`, attemptID).Scan(&state)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("attempt %d: %w", attemptID, model.ErrNotFound)
	case err != nil:
		return err
	case state == model.StateGraded:
		return model.ErrAlreadyGraded
	case want == model.StateInProgress:
		return model.ErrNotInProgress
	}
	return model.ErrNotSubmitted
}

// Finalize applies a review decision and marks the attempt graded. The
// state check and all writes happen in one transaction.
func (s *Store) Finalize(ctx context.Context, f model.Finalization) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE attempts SET state = ?, total_points = ?, percent_correct = ?, score_percent = ?,
		   graded_at = ?, reviewed_by = ?, review_comment = ?
		 WHERE id = ? AND state = ?`,
		model.StateGraded, f.TotalPointsAwarded, f.PercentCorrect, f.ScorePercent,
		f.GradedAt, f.ReviewerID, f.Comment, f.AttemptID, model.StateSubmitted,
	)
	if err != nil {
		return fmt.Errorf("update attempt: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return stateError(ctx, tx, f.AttemptID, model.StateSubmitted)
	}

	for _, r := range f.Responses {
		if err := updateResponse(ctx, tx, f.AttemptID, r); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func updateResponse(ctx context.Context, tx *sql.Tx, attemptID int64, r model.Response) error {
	patterns := r.Patterns
	if patterns == nil {
		patterns = map[string]any{}
	}
	pj, err := json.Marshal(patterns)
	if err != nil {
		return fmt.Errorf("encode patterns of response %d: %w", r.ID, err)
	}
	var conf sql.NullFloat64
	if r.Confidence != nil {
		conf = sql.NullFloat64{Float64: *r.Confidence, Valid: true}
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE responses SET text = ?, is_correct = ?, points_awarded = ?, confidence = ?, is_anomalous = ?,
		   patterns = ?, recommendation = ?, source = ?
		 WHERE id = ? AND attempt_id = ?`,
		r.Text, r.IsCorrect, r.PointsAwarded, conf, r.IsAnomalous, string(pj), r.Recommendation, r.Source,
		r.ID, attemptID,
	)
	if err != nil {
		return fmt.Errorf("update response %d: %w", r.ID, err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return fmt.Errorf("response %d of attempt %d: %w", r.ID, attemptID, model.ErrMalformedAttempt)
	}
	return nil
}

func encodeLists(a model.Attempt) (weak, strong, recs string, err error) {
	enc := func(v []string) (string, error) {
		if v == nil {
			v = []string{}
		}
		b, err := json.Marshal(v)
		return string(b), err
	}
	if weak, err = enc(a.WeakAreas); err != nil {
		return
	}
	if strong, err = enc(a.StrongAreas); err != nil {
		return
	}
	recs, err = enc(a.Recommendations)
	return
}
