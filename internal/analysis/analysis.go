// Package analysis scores open answers, preferring an external semantic
// analysis and degrading to a local keyword heuristic when the external
// path is rate limited, disabled or failing.
package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/pavelanni/autograder/internal/i18n"
	"github.com/pavelanni/autograder/internal/llm/prompts"
	"github.com/pavelanni/autograder/internal/metrics"
	"github.com/pavelanni/autograder/internal/model"
)

const (
	// DefaultTimeout bounds one external analysis call.
	DefaultTimeout = 15 * time.Second
	// DefaultCacheTTL is how long an external report is reused for an identical request.
	DefaultCacheTTL = time.Hour
	// DefaultCacheSize is the number of reports kept in memory.
	DefaultCacheSize = 1024
)

// Fallback reasons, also used as metric labels.
const (
	ReasonRateLimited = "rate_limited"
	ReasonUnavailable = "unavailable"
	ReasonDisabled    = "disabled"
	ReasonLimiter     = "limiter_error"
)

// ErrMalformedReport is returned when a service answers with an unusable report.
var ErrMalformedReport = errors.New("malformed analysis report")

// Report is what a semantic-analysis service returns for one answer.
type Report struct {
	QualityScore       float64  `json:"quality_score"`
	RecognizedConcepts []string `json:"recognized_concepts"`
	DetectedErrors     []string `json:"detected_errors"`
	PedagogicalLevel   string   `json:"pedagogical_level"`
}

// Validate checks the score is a number in [0, 1].
func (r Report) Validate() error {
	if math.IsNaN(r.QualityScore) || r.QualityScore < 0 || r.QualityScore > 1 {
		return fmt.Errorf("%w: quality_score %v outside [0, 1]", ErrMalformedReport, r.QualityScore)
	}
	return nil
}

// wireReport mirrors Report with the score optional, so a payload without
// one is told apart from a genuine zero.
type wireReport struct {
	QualityScore       *float64 `json:"quality_score"`
	RecognizedConcepts []string `json:"recognized_concepts"`
	DetectedErrors     []string `json:"detected_errors"`
	PedagogicalLevel   string   `json:"pedagogical_level"`
}

// DecodeReport parses a service payload. A body that is not a JSON object
// carrying quality_score is malformed.
func DecodeReport(data []byte) (Report, error) {
	var w wireReport
	if err := json.Unmarshal(data, &w); err != nil {
		return Report{}, fmt.Errorf("%w: %w", ErrMalformedReport, err)
	}
	if w.QualityScore == nil {
		return Report{}, fmt.Errorf("%w: missing quality_score", ErrMalformedReport)
	}
	rep := Report{
		QualityScore:       *w.QualityScore,
		RecognizedConcepts: w.RecognizedConcepts,
		DetectedErrors:     w.DetectedErrors,
		PedagogicalLevel:   w.PedagogicalLevel,
	}
	if err := rep.Validate(); err != nil {
		return Report{}, err
	}
	return rep, nil
}

// ServiceRequest is the payload sent to a semantic-analysis service.
// ReferenceAnswer is only used by backends that build their own prompt.
type ServiceRequest struct {
	Text            string `json:"text"`
	PromptContext   string `json:"prompt_context"`
	Rubric          string `json:"rubric"`
	ReferenceAnswer string `json:"-"`
}

// Service is a semantic-analysis backend.
type Service interface {
	Analyze(ctx context.Context, req ServiceRequest) (Report, error)
}

// Limiter reserves and returns external analysis slots.
type Limiter interface {
	Acquire(ctx context.Context, evaluationID, studentID int64) (bool, error)
	Release(ctx context.Context, evaluationID, studentID int64) error
}

// Request describes one open answer to score.
type Request struct {
	EvaluationID  int64
	StudentID     int64
	Text          string
	Prompt        string
	CorrectAnswer string
	MaxPoints     float64
}

// Analyzer scores open answers.
type Analyzer struct {
	service Service
	limiter Limiter
	timeout time.Duration
	rubric  string
	cache   *expirable.LRU[string, Report]
	metrics *metrics.Metrics
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(a *Analyzer) { a.timeout = d }
}

// WithRubric replaces the standard rubric sent with every request.
func WithRubric(r string) Option {
	return func(a *Analyzer) { a.rubric = r }
}

// WithCache sets the report cache size and TTL. A size of 0 disables caching.
func WithCache(size int, ttl time.Duration) Option {
	return func(a *Analyzer) {
		if size <= 0 {
			a.cache = nil
			return
		}
		a.cache = expirable.NewLRU[string, Report](size, nil, ttl)
	}
}

// WithMetrics records analysis outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Analyzer) { a.metrics = m }
}

// NewAnalyzer creates an analyzer. A nil service always uses the heuristic;
// a nil limiter never limits.
func NewAnalyzer(service Service, limiter Limiter, opts ...Option) *Analyzer {
	a := &Analyzer{
		service: service,
		limiter: limiter,
		timeout: DefaultTimeout,
		cache:   expirable.NewLRU[string, Report](DefaultCacheSize, nil, DefaultCacheTTL),
	}
	if r, err := prompts.Rubric(prompts.PromptStandard); err == nil {
		a.rubric = r
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Analyze scores one open answer. It never fails: every problem on the
// external path ends in the heuristic, whose result never awards points.
func (a *Analyzer) Analyze(ctx context.Context, req Request) model.GradeResult {
	if a.service == nil {
		return a.fallback(ctx, req, ReasonDisabled)
	}

	sreq := ServiceRequest{
		Text:            req.Text,
		PromptContext:   req.Prompt,
		Rubric:          a.rubric,
		ReferenceAnswer: req.CorrectAnswer,
	}
	key := cacheKey(sreq)
	if a.cache != nil {
		if rep, ok := a.cache.Get(key); ok {
			slog.Debug("analysis cache hit", "evaluation_id", req.EvaluationID, "student_id", req.StudentID)
			return scoreReport(ctx, rep, req.MaxPoints)
		}
	}

	if a.limiter != nil {
		ok, err := a.limiter.Acquire(ctx, req.EvaluationID, req.StudentID)
		if err != nil {
			slog.Warn("rate limiter unavailable, using fallback",
				"evaluation_id", req.EvaluationID, "student_id", req.StudentID, "error", err)
			return a.fallback(ctx, req, ReasonLimiter)
		}
		if !ok {
			slog.Info("semantic analysis skipped",
				"evaluation_id", req.EvaluationID, "student_id", req.StudentID, "reason", model.ErrRateLimitExceeded)
			return a.fallback(ctx, req, ReasonRateLimited)
		}
	}

	rep, err := a.call(ctx, sreq)
	if err != nil {
		if a.limiter != nil {
			if rerr := a.limiter.Release(context.WithoutCancel(ctx), req.EvaluationID, req.StudentID); rerr != nil {
				slog.Warn("release analysis slot", "evaluation_id", req.EvaluationID, "student_id", req.StudentID, "error", rerr)
			}
		}
		slog.Warn("semantic analysis failed, using fallback",
			"evaluation_id", req.EvaluationID, "student_id", req.StudentID,
			"error", fmt.Errorf("%w: %w", model.ErrExternalServiceUnavailable, err))
		return a.fallback(ctx, req, ReasonUnavailable)
	}

	if a.cache != nil {
		a.cache.Add(key, rep)
	}
	return scoreReport(ctx, rep, req.MaxPoints)
}

func (a *Analyzer) call(ctx context.Context, sreq ServiceRequest) (Report, error) {
	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	rep, err := a.service.Analyze(cctx, sreq)
	if err == nil {
		err = rep.Validate()
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
	}
	a.metrics.AnalysisCall(outcome, time.Since(start))
	return rep, err
}

func (a *Analyzer) fallback(ctx context.Context, req Request, reason string) model.GradeResult {
	a.metrics.Fallback(reason)
	g := Heuristic(ctx, req.Text, req.Prompt)
	g.Patterns["fallback_reason"] = reason
	return g
}

// scoreReport converts a validated report into a grade.
func scoreReport(ctx context.Context, rep Report, maxPoints float64) model.GradeResult {
	score := rep.QualityScore
	points := math.Max(0, math.Min(maxPoints, model.Round2(maxPoints*score)))
	confidence := model.Round2(score)

	return model.GradeResult{
		IsCorrect:     score >= model.CorrectThreshold,
		PointsAwarded: points,
		Confidence:    confidence,
		IsAnomalous:   confidence < model.AnomalyThreshold,
		Patterns: map[string]any{
			"recognized_concepts": nonNil(rep.RecognizedConcepts),
			"detected_errors":     nonNil(rep.DetectedErrors),
			"pedagogical_level":   rep.PedagogicalLevel,
			"response_quality":    confidence,
		},
		Recommendation: recommend(ctx, rep.DetectedErrors),
		Source:         model.SourceAgent,
	}
}

func recommend(ctx context.Context, detected []string) string {
	if len(detected) == 0 {
		return i18n.T(ctx, "RecComplete")
	}
	if len(detected) > 2 {
		detected = detected[:2]
	}
	return i18n.Td(ctx, "RecReviewErrors", map[string]any{"Errors": strings.Join(detected, ", ")})
}

func cacheKey(r ServiceRequest) string {
	h := sha256.New()
	for _, s := range []string{r.Rubric, r.PromptContext, r.ReferenceAnswer, r.Text} {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
