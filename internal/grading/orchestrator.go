// Package grading computes provisional grades for submitted attempts and
// triages them for review.
package grading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/autograder/internal/analysis"
	"github.com/pavelanni/autograder/internal/i18n"
	"github.com/pavelanni/autograder/internal/metrics"
	"github.com/pavelanni/autograder/internal/model"
)

// DefaultWorkers bounds how many responses of one attempt are graded at once.
const DefaultWorkers = 4

// Repository is the persistence the orchestrator needs.
type Repository interface {
	// LoadAttempt returns an attempt with its responses.
	LoadAttempt(ctx context.Context, attemptID int64) (model.Attempt, error)
	QuestionsForEvaluation(ctx context.Context, evaluationID int64) ([]model.Question, error)
	// SaveGrading stores every response and the attempt aggregates and marks
	// the attempt submitted, as one unit, only while the attempt is still in
	// state from.
	SaveGrading(ctx context.Context, a model.Attempt, from model.AttemptState) error
}

// OpenAnalyzer scores open answers.
type OpenAnalyzer interface {
	Analyze(ctx context.Context, req analysis.Request) model.GradeResult
}

// Orchestrator drives automatic grading of one attempt at a time.
type Orchestrator struct {
	repo     Repository
	analyzer OpenAnalyzer
	workers  int
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithWorkers sets how many responses are graded concurrently.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithMetrics records grading outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an orchestrator.
func New(repo Repository, analyzer OpenAnalyzer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		repo:     repo,
		analyzer: analyzer,
		workers:  DefaultWorkers,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit grades an in-progress attempt and submits it together with its
// grades. Until that commits the attempt stays in progress, so reviewers
// never see an attempt without a priority.
func (o *Orchestrator) Submit(ctx context.Context, attemptID int64) (model.Attempt, error) {
	a, err := o.repo.LoadAttempt(ctx, attemptID)
	if err != nil {
		return model.Attempt{}, fmt.Errorf("load attempt %d: %w", attemptID, err)
	}
	if a.State != model.StateInProgress {
		return model.Attempt{}, fmt.Errorf("submit attempt %d: %w", attemptID, model.ErrNotInProgress)
	}
	at := o.now()
	a.SubmittedAt = &at
	return o.gradeAndSave(ctx, a, model.StateInProgress)
}

// Grade recomputes the provisional grades of a submitted attempt and
// persists them.
func (o *Orchestrator) Grade(ctx context.Context, attemptID int64) (model.Attempt, error) {
	a, err := o.repo.LoadAttempt(ctx, attemptID)
	if err != nil {
		return model.Attempt{}, fmt.Errorf("load attempt %d: %w", attemptID, err)
	}
	switch a.State {
	case model.StateSubmitted:
	case model.StateGraded:
		return model.Attempt{}, model.ErrAlreadyGraded
	default:
		return model.Attempt{}, model.ErrNotSubmitted
	}
	return o.gradeAndSave(ctx, a, model.StateSubmitted)
}

func (o *Orchestrator) gradeAndSave(ctx context.Context, a model.Attempt, from model.AttemptState) (model.Attempt, error) {
	questions, err := o.repo.QuestionsForEvaluation(ctx, a.EvaluationID)
	if err != nil {
		return model.Attempt{}, fmt.Errorf("load questions for evaluation %d: %w", a.EvaluationID, err)
	}

	graded := o.GradeAttempt(ctx, a, questions)
	graded.State = model.StateSubmitted
	if err := o.repo.SaveGrading(ctx, graded, from); err != nil {
		return model.Attempt{}, fmt.Errorf("save grading for attempt %d: %w", a.ID, err)
	}

	o.metrics.AttemptTriaged(string(graded.Priority))
	slog.Info("attempt graded",
		"attempt_id", graded.ID,
		"points", graded.TotalPointsAwarded,
		"percent_correct", graded.PercentCorrect,
		"confidence", graded.ConfidenceLevel,
		"anomalies", graded.AnomalyCount,
		"priority", graded.Priority)
	return graded, nil
}

// GradeAttempt grades every response and computes the attempt aggregates
// without touching storage. State is left unchanged.
func (o *Orchestrator) GradeAttempt(ctx context.Context, a model.Attempt, questions []model.Question) model.Attempt {
	byID := make(map[int64]model.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	responses := make([]model.Response, len(a.Responses))
	copy(responses, a.Responses)

	malformed := checkWellFormed(a, byID)
	if malformed != nil {
		slog.Error("attempt cannot be graded automatically", "attempt_id", a.ID, "error", malformed)
		for i := range responses {
			responses[i].Apply(malformedResult(ctx, malformed))
			o.metrics.ResponseGraded(string(model.SourceMalformed))
		}
	} else {
		results := make([]model.GradeResult, len(responses))
		var g errgroup.Group
		g.SetLimit(o.workers)
		for i := range responses {
			g.Go(func() error {
				results[i] = o.gradeResponse(ctx, a, responses[i], byID[responses[i].QuestionID])
				return nil
			})
		}
		_ = g.Wait()
		for i := range responses {
			responses[i].Apply(results[i])
			o.metrics.ResponseGraded(string(results[i].Source))
		}
	}

	sum := Aggregate(responses, questions)
	anomalies := DetectAnomalies(responses)

	a.Responses = responses
	a.TotalPointsAwarded = sum.TotalPoints
	a.PercentCorrect = sum.PercentCorrect
	a.ScorePercent = sum.ScorePercent
	a.ConfidenceLevel = sum.ConfidenceLevel
	a.DifficultyDetected = sum.Difficulty
	a.HasAnomalies = anomalies.HasAnomalies
	a.AnomalyCount = anomalies.Count
	a.Priority = Classify(sum.ConfidenceLevel, anomalies.HasAnomalies)
	a.WeakAreas = sum.WeakAreas
	a.StrongAreas = sum.StrongAreas
	a.Recommendations = Recommendations(ctx, sum, len(responses), anomalies, malformed != nil)
	return a
}

func (o *Orchestrator) gradeResponse(ctx context.Context, a model.Attempt, r model.Response, q model.Question) model.GradeResult {
	switch q.Kind {
	case model.KindClosedChoice, model.KindTrueFalse:
		return GradeClosed(q.Kind, r.Text, q.CorrectAnswer, q.MaxPoints)
	case model.KindShortAnswer, model.KindLongAnswer:
		return o.analyzer.Analyze(ctx, analysis.Request{
			EvaluationID:  a.EvaluationID,
			StudentID:     a.StudentID,
			Text:          r.Text,
			Prompt:        q.Prompt,
			CorrectAnswer: q.CorrectAnswer,
			MaxPoints:     q.MaxPoints,
		})
	}
	return malformedResult(ctx, fmt.Errorf("%w: question %d has unknown kind %q", model.ErrMalformedAttempt, q.ID, q.Kind))
}

// checkWellFormed verifies every response belongs to the attempt and points
// at a distinct, gradable question of the attempt's evaluation.
func checkWellFormed(a model.Attempt, questions map[int64]model.Question) error {
	seen := make(map[int64]bool, len(a.Responses))
	var errs []error
	for _, r := range a.Responses {
		if r.AttemptID != 0 && r.AttemptID != a.ID {
			errs = append(errs, fmt.Errorf("response %d belongs to attempt %d", r.ID, r.AttemptID))
		}
		q, ok := questions[r.QuestionID]
		switch {
		case !ok:
			errs = append(errs, fmt.Errorf("response %d references unknown question %d", r.ID, r.QuestionID))
		case q.EvaluationID != a.EvaluationID:
			errs = append(errs, fmt.Errorf("question %d is not part of evaluation %d", q.ID, a.EvaluationID))
		case !q.Kind.Valid():
			errs = append(errs, fmt.Errorf("question %d has unknown kind %q", q.ID, q.Kind))
		}
		if seen[r.QuestionID] {
			errs = append(errs, fmt.Errorf("question %d answered twice", r.QuestionID))
		}
		seen[r.QuestionID] = true
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", model.ErrMalformedAttempt, errors.Join(errs...))
}

func malformedResult(ctx context.Context, cause error) model.GradeResult {
	return model.GradeResult{
		Confidence:     0,
		IsAnomalous:    true,
		Patterns:       map[string]any{"malformed": cause.Error()},
		Recommendation: i18n.T(ctx, "RecMalformed"),
		Source:         model.SourceMalformed,
	}
}
