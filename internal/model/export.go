package model

import "time"

// EvaluationExport is the top-level JSON structure for attempt export.
type EvaluationExport struct {
	EvaluationID int64           `json:"evaluation_id"`
	Title        string          `json:"title"`
	ExportedAt   time.Time       `json:"exported_at"`
	NumQuestions int             `json:"num_questions"`
	Results      []StudentResult `json:"results"`
}

// StudentResult holds one student's attempt for export.
type StudentResult struct {
	AttemptID          int64            `json:"attempt_id"`
	StudentName        string           `json:"student_name"`
	StudentEmail       string           `json:"student_email"`
	AttemptNumber      int              `json:"attempt_number"`
	State              AttemptState     `json:"state"`
	Priority           Priority         `json:"priority,omitempty"`
	StartedAt          time.Time        `json:"started_at"`
	SubmittedAt        *time.Time       `json:"submitted_at,omitempty"`
	GradedAt           *time.Time       `json:"graded_at,omitempty"`
	TotalPointsAwarded float64          `json:"total_points_awarded"`
	ScorePercent       float64          `json:"score_percent"`
	ConfidenceLevel    float64          `json:"confidence_level"`
	ReviewComment      string           `json:"review_comment,omitempty"`
	Questions          []QuestionResult `json:"questions"`
}

// QuestionResult holds per-question data for export.
type QuestionResult struct {
	Prompt         string       `json:"prompt"`
	Kind           QuestionKind `json:"kind"`
	Topic          string       `json:"topic,omitempty"`
	MaxPoints      float64      `json:"max_points"`
	Answer         string       `json:"answer"`
	PointsAwarded  float64      `json:"points_awarded"`
	IsCorrect      bool         `json:"is_correct"`
	Source         GradeSource  `json:"source,omitempty"`
	Recommendation string       `json:"recommendation,omitempty"`
}
