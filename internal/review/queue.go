// Package review is the human side of grading: the triage queue of
// submitted attempts and the confirm/adjust decisions that finalize them.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/pavelanni/autograder/internal/metrics"
	"github.com/pavelanni/autograder/internal/model"
)

// ErrInvalidFilter rejects an unknown priority filter.
var ErrInvalidFilter = errors.New("invalid filter")

// Store is the persistence the queue needs.
type Store interface {
	ListPending(ctx context.Context, evaluationID int64, f model.PendingFilter) ([]model.AttemptSummary, error)
	AttemptDetail(ctx context.Context, attemptID int64) (model.AttemptDetail, error)
	QuestionsForEvaluation(ctx context.Context, evaluationID int64) ([]model.Question, error)
	// Finalize applies f only while the attempt is still submitted and
	// returns model.ErrAlreadyGraded otherwise.
	Finalize(ctx context.Context, f model.Finalization) error
	ReviewStats(ctx context.Context, evaluationID int64) (model.ReviewStats, error)
}

// Queue lists pending attempts and finalizes them.
type Queue struct {
	store   Store
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Queue.
type Option func(*Queue)

// WithMetrics records finalizations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(q *Queue) { q.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// NewQueue creates a review queue over store.
func NewQueue(store Store, opts ...Option) *Queue {
	q := &Queue{store: store, now: time.Now}
	for _, o := range opts {
		o(q)
	}
	return q
}

// ListPending returns submitted attempts of an evaluation, urgent first and
// oldest submission first within a tier.
func (q *Queue) ListPending(ctx context.Context, evaluationID int64, f model.PendingFilter) ([]model.AttemptSummary, error) {
	if f.Priority != "" && !f.Priority.Valid() {
		return nil, fmt.Errorf("%w: priority %q", ErrInvalidFilter, f.Priority)
	}
	f.Search = strings.TrimSpace(f.Search)

	list, err := q.store.ListPending(ctx, evaluationID, f)
	if err != nil {
		return nil, fmt.Errorf("list pending attempts: %w", err)
	}
	SortPending(list)
	return list, nil
}

// SortPending orders summaries by priority rank, then submission time, then ID.
func SortPending(list []model.AttemptSummary) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
			return ra < rb
		}
		switch {
		case a.SubmittedAt == nil && b.SubmittedAt != nil:
			return false
		case a.SubmittedAt != nil && b.SubmittedAt == nil:
			return true
		case a.SubmittedAt != nil && !a.SubmittedAt.Equal(*b.SubmittedAt):
			return a.SubmittedAt.Before(*b.SubmittedAt)
		}
		return a.ID < b.ID
	})
}

// GetDetail returns an attempt with its per-response breakdown.
func (q *Queue) GetDetail(ctx context.Context, attemptID int64) (model.AttemptDetail, error) {
	d, err := q.store.AttemptDetail(ctx, attemptID)
	if err != nil {
		return model.AttemptDetail{}, fmt.Errorf("get attempt %d: %w", attemptID, err)
	}
	return d, nil
}

// Confirm finalizes an attempt with its automatic grades.
func (q *Queue) Confirm(ctx context.Context, attemptID, reviewerID int64, comment string) error {
	sub, err := q.submitted(ctx, attemptID)
	if err != nil {
		q.record(model.ActionConfirm, err)
		return err
	}
	err = q.finalize(ctx, sub.Confirm(reviewerID, strings.TrimSpace(comment), q.now()))
	q.record(model.ActionConfirm, err)
	return err
}

// Adjust applies reviewer overrides, recomputes totals and finalizes the
// attempt. Any invalid override rejects the whole adjustment.
func (q *Queue) Adjust(ctx context.Context, attemptID, reviewerID int64, overrides []model.Override, comment string) error {
	sub, err := q.submitted(ctx, attemptID)
	if err != nil {
		q.record(model.ActionAdjust, err)
		return err
	}
	fin, err := sub.Adjust(overrides, reviewerID, strings.TrimSpace(comment), q.now())
	if err != nil {
		q.record(model.ActionAdjust, err)
		return err
	}
	err = q.finalize(ctx, fin)
	q.record(model.ActionAdjust, err)
	return err
}

// Stats summarises review progress for an evaluation.
func (q *Queue) Stats(ctx context.Context, evaluationID int64) (model.ReviewStats, error) {
	st, err := q.store.ReviewStats(ctx, evaluationID)
	if err != nil {
		return model.ReviewStats{}, fmt.Errorf("review stats: %w", err)
	}
	return st, nil
}

func (q *Queue) submitted(ctx context.Context, attemptID int64) (model.SubmittedAttempt, error) {
	d, err := q.store.AttemptDetail(ctx, attemptID)
	if err != nil {
		return model.SubmittedAttempt{}, fmt.Errorf("get attempt %d: %w", attemptID, err)
	}
	questions, err := q.store.QuestionsForEvaluation(ctx, d.Attempt.EvaluationID)
	if err != nil {
		return model.SubmittedAttempt{}, fmt.Errorf("load questions: %w", err)
	}
	return model.AsSubmitted(d.Attempt, questions)
}

func (q *Queue) finalize(ctx context.Context, f model.Finalization) error {
	if err := q.store.Finalize(ctx, f); err != nil {
		return fmt.Errorf("finalize attempt %d: %w", f.AttemptID, err)
	}
	slog.Info("attempt finalized",
		"attempt_id", f.AttemptID,
		"action", f.Action,
		"reviewer_id", f.ReviewerID,
		"points", f.TotalPointsAwarded,
		"changed_responses", len(f.Responses))
	return nil
}

func (q *Queue) record(action model.ReviewAction, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, model.ErrAlreadyGraded):
		result = "already_graded"
	case errors.Is(err, model.ErrInvalidPoints):
		result = "invalid_points"
	case errors.Is(err, model.ErrNotSubmitted):
		result = "not_submitted"
	case errors.Is(err, model.ErrNotFound):
		result = "not_found"
	default:
		result = "error"
	}
	q.metrics.Finalization(string(action), result)
}
