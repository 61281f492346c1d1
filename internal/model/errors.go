package model

import "errors"

var (
	// ErrExternalServiceUnavailable means the semantic-analysis call failed or timed out.
	// It is always recovered by the local fallback scorer.
	ErrExternalServiceUnavailable = errors.New("semantic analysis unavailable")
	// ErrRateLimitExceeded means the analysis quota for (evaluation, student) is used up.
	// It is always recovered by the local fallback scorer.
	ErrRateLimitExceeded = errors.New("analysis rate limit exceeded")
	// ErrInvalidPoints rejects a reviewer adjustment outside [0, max_points].
	ErrInvalidPoints = errors.New("invalid points")
	// ErrAlreadyGraded rejects a second finalization of the same attempt.
	ErrAlreadyGraded = errors.New("attempt already graded")
	// ErrMalformedAttempt marks an attempt whose responses do not match its questions.
	ErrMalformedAttempt = errors.New("malformed attempt")
	// ErrNotSubmitted rejects grading or review of an attempt still in progress.
	ErrNotSubmitted = errors.New("attempt not submitted")
	// ErrNotInProgress rejects answers and submission of an attempt that already left in_progress.
	ErrNotInProgress = errors.New("attempt not in progress")
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")
)
