package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleTeacher reviews and finalizes attempts.
	UserRoleTeacher UserRole = "teacher"
	// UserRoleAdmin manages users and evaluations and may also review.
	UserRoleAdmin UserRole = "admin"
)

// User represents a reviewer or administrator account.
type User struct {
	ID           int64
	Username     string
	DisplayName  string
	PasswordHash string
	Role         UserRole
	Active       bool
	CreatedAt    time.Time
}

// AuthSession represents an API token issued at login.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// QuestionKind is the closed set of question types the pipeline can grade.
type QuestionKind string

const (
	KindClosedChoice QuestionKind = "closed_choice"
	KindTrueFalse    QuestionKind = "true_false"
	KindShortAnswer  QuestionKind = "short_answer"
	KindLongAnswer   QuestionKind = "long_answer"
)

// Valid reports whether k is one of the known kinds.
func (k QuestionKind) Valid() bool {
	switch k {
	case KindClosedChoice, KindTrueFalse, KindShortAnswer, KindLongAnswer:
		return true
	}
	return false
}

// Closed reports whether k is graded deterministically.
func (k QuestionKind) Closed() bool {
	return k == KindClosedChoice || k == KindTrueFalse
}

// AttemptState is the lifecycle state of an attempt. It only moves forward.
type AttemptState string

const (
	StateInProgress AttemptState = "in_progress"
	StateSubmitted  AttemptState = "submitted"
	StateGraded     AttemptState = "graded"
)

// Difficulty is the difficulty detected from an attempt's results.
type Difficulty string

const (
	DifficultyLow    Difficulty = "low"
	DifficultyMedium Difficulty = "medium"
	DifficultyHigh   Difficulty = "high"
)

// Priority is the review triage tier of an attempt.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank orders priorities for review: lower ranks are reviewed first.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	}
	return 3
}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p.Rank() < 3
}

// GradeSource records which path produced a response's grade.
type GradeSource string

const (
	SourceNone      GradeSource = ""
	SourceClosed    GradeSource = "closed"
	SourceAgent     GradeSource = "agent"
	SourceFallback  GradeSource = "fallback"
	SourceManual    GradeSource = "manual"
	SourceMalformed GradeSource = "malformed"
)

// CorrectThreshold is the canonical quality ratio at or above which an open
// response counts as correct, for semantic scores, fallback confidence and
// reviewer-adjusted points alike.
const CorrectThreshold = 0.7

// AnomalyThreshold is the confidence below which a response is anomalous.
const AnomalyThreshold = 0.4

// Evaluation is an assessment that students attempt.
type Evaluation struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Student is the minimal identity used for review search.
type Student struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Question is an immutable question definition.
type Question struct {
	ID            int64        `json:"id"`
	EvaluationID  int64        `json:"evaluation_id"`
	Kind          QuestionKind `json:"kind"`
	Prompt        string       `json:"prompt"`
	CorrectAnswer string       `json:"correct_answer"`
	MaxPoints     float64      `json:"max_points"`
	Topic         string       `json:"topic,omitempty"`
}

// GradeResult is the outcome of grading one response, whichever path produced it.
type GradeResult struct {
	IsCorrect      bool
	PointsAwarded  float64
	Confidence     float64
	IsAnomalous    bool
	Patterns       map[string]any
	Recommendation string
	Source         GradeSource
}

// Response is one student's answer to one question within an attempt.
type Response struct {
	ID             int64          `json:"id"`
	AttemptID      int64          `json:"attempt_id"`
	QuestionID     int64          `json:"question_id"`
	Text           string         `json:"text"`
	IsCorrect      bool           `json:"is_correct"`
	PointsAwarded  float64        `json:"points_awarded"`
	Confidence     *float64       `json:"confidence,omitempty"`
	IsAnomalous    bool           `json:"is_anomalous"`
	Patterns       map[string]any `json:"patterns,omitempty"`
	Recommendation string         `json:"recommendation,omitempty"`
	Source         GradeSource    `json:"source,omitempty"`
}

// Apply copies a grading outcome onto the response.
func (r *Response) Apply(g GradeResult) {
	c := g.Confidence
	r.IsCorrect = g.IsCorrect
	r.PointsAwarded = g.PointsAwarded
	r.Confidence = &c
	r.IsAnomalous = g.IsAnomalous
	r.Patterns = g.Patterns
	r.Recommendation = g.Recommendation
	r.Source = g.Source
}

// Attempt is one student's submission of one evaluation.
type Attempt struct {
	ID                 int64        `json:"id"`
	EvaluationID       int64        `json:"evaluation_id"`
	StudentID          int64        `json:"student_id"`
	State              AttemptState `json:"state"`
	TotalPointsAwarded float64      `json:"total_points_awarded"`
	PercentCorrect     float64      `json:"percent_correct"`
	ScorePercent       float64      `json:"score_percent"`
	ConfidenceLevel    float64      `json:"confidence_level"`
	DifficultyDetected Difficulty   `json:"difficulty_detected,omitempty"`
	HasAnomalies       bool         `json:"has_anomalies"`
	AnomalyCount       int          `json:"anomaly_count"`
	Priority           Priority     `json:"priority,omitempty"`
	WeakAreas          []string     `json:"weak_areas"`
	StrongAreas        []string     `json:"strong_areas"`
	Recommendations    []string     `json:"recommendations"`
	StartedAt          time.Time    `json:"started_at"`
	SubmittedAt        *time.Time   `json:"submitted_at,omitempty"`
	GradedAt           *time.Time   `json:"graded_at,omitempty"`
	ReviewedBy         *int64       `json:"reviewed_by,omitempty"`
	ReviewComment      string       `json:"review_comment,omitempty"`
	Responses          []Response   `json:"responses"`
}

// AttemptSummary is a review-queue row.
type AttemptSummary struct {
	ID                 int64        `json:"id"`
	Student            Student      `json:"student"`
	TotalPointsAwarded float64      `json:"total_points_awarded"`
	PercentCorrect     float64      `json:"percent_correct"`
	ScorePercent       float64      `json:"score_percent"`
	ConfidenceLevel    float64      `json:"confidence_level"`
	HasAnomalies       bool         `json:"has_anomalies"`
	Priority           Priority     `json:"priority"`
	State              AttemptState `json:"state"`
	SubmittedAt        *time.Time   `json:"submitted_at,omitempty"`
}

// ResponseDetail pairs a response with its question for reviewer inspection.
type ResponseDetail struct {
	Response Response `json:"response"`
	Question Question `json:"question"`
}

// AttemptDetail is the full breakdown a reviewer sees.
type AttemptDetail struct {
	Attempt    Attempt          `json:"attempt"`
	Student    Student          `json:"student"`
	Evaluation Evaluation       `json:"evaluation"`
	Responses  []ResponseDetail `json:"responses"`
}

// PendingFilter narrows the review queue.
type PendingFilter struct {
	Priority Priority
	Search   string
}

// ReviewStats summarises review progress for one evaluation.
type ReviewStats struct {
	TotalAttempts     int              `json:"total_attempts"`
	Pending           int              `json:"pending"`
	Graded            int              `json:"graded"`
	PendingByPriority map[Priority]int `json:"pending_by_priority"`
	AvgConfidence     float64          `json:"avg_confidence"`
	AvgScorePercent   float64          `json:"avg_score_percent"`
	AvgPoints         float64          `json:"avg_points"`
	PercentCompleted  float64          `json:"percent_completed"`
}

// EvaluationImport is used for loading an evaluation from JSON.
type EvaluationImport struct {
	Title     string           `json:"title"`
	Questions []QuestionImport `json:"questions"`
	Students  []Student        `json:"students"`
}

// QuestionImport is one question in an EvaluationImport.
type QuestionImport struct {
	Kind          QuestionKind `json:"kind"`
	Prompt        string       `json:"prompt"`
	CorrectAnswer string       `json:"correct_answer"`
	MaxPoints     float64      `json:"max_points"`
	Topic         string       `json:"topic"`
}

// Validate checks that an import describes a gradable evaluation.
func (e EvaluationImport) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return errors.New("evaluation title is required")
	}
	if len(e.Questions) == 0 {
		return errors.New("evaluation has no questions")
	}
	for i, q := range e.Questions {
		if !q.Kind.Valid() {
			return fmt.Errorf("question %d: unknown kind %q", i+1, q.Kind)
		}
		if strings.TrimSpace(q.Prompt) == "" {
			return fmt.Errorf("question %d: prompt is required", i+1)
		}
		if q.Kind.Closed() && strings.TrimSpace(q.CorrectAnswer) == "" {
			return fmt.Errorf("question %d: closed question needs a correct answer", i+1)
		}
		if q.MaxPoints <= 0 {
			return fmt.Errorf("question %d: max_points must be positive", i+1)
		}
	}
	for _, s := range e.Students {
		if strings.TrimSpace(s.Email) == "" {
			return fmt.Errorf("student %q: email is required", s.Name)
		}
	}
	return nil
}
