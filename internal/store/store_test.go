package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pavelanni/autograder/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testImport() model.EvaluationImport {
	return model.EvaluationImport{
		Title: "Midterm",
		Questions: []model.QuestionImport{
			{Kind: model.KindClosedChoice, Prompt: "Capital of France?", CorrectAnswer: "Paris", MaxPoints: 10, Topic: "geography"},
			{Kind: model.KindTrueFalse, Prompt: "The earth is flat", CorrectAnswer: "false", MaxPoints: 10, Topic: "science"},
			{Kind: model.KindLongAnswer, Prompt: "Explain photosynthesis", MaxPoints: 20, Topic: "biology"},
		},
		Students: []model.Student{
			{Name: "Ana Pérez", Email: "ana@example.edu"},
			{Name: "Bruno Díaz", Email: "bruno@example.edu"},
		},
	}
}

// seed imports the test evaluation and returns its ID with the two students.
func seed(t *testing.T, s *Store) (int64, model.Student, model.Student) {
	t.Helper()
	ctx := context.Background()
	evalID, err := s.ImportEvaluation(ctx, testImport())
	if err != nil {
		t.Fatalf("ImportEvaluation: %v", err)
	}
	ana, err := s.GetStudentByEmail(ctx, "ana@example.edu")
	if err != nil {
		t.Fatalf("GetStudentByEmail: %v", err)
	}
	bruno, err := s.GetStudentByEmail(ctx, "bruno@example.edu")
	if err != nil {
		t.Fatalf("GetStudentByEmail: %v", err)
	}
	return evalID, ana, bruno
}

// gradedCopy fakes what the orchestrator produces for an attempt.
func gradedCopy(a model.Attempt, priority model.Priority, confidence float64) model.Attempt {
	c := confidence
	for i := range a.Responses {
		a.Responses[i].Confidence = &c
		a.Responses[i].PointsAwarded = 5
		a.Responses[i].Source = model.SourceClosed
		a.Responses[i].Patterns = map[string]any{"k": "v"}
	}
	a.TotalPointsAwarded = 5 * float64(len(a.Responses))
	a.ConfidenceLevel = confidence
	a.Priority = priority
	a.DifficultyDetected = model.DifficultyMedium
	a.WeakAreas = []string{"biology"}
	a.Recommendations = []string{"practice"}
	return a
}

func submitAndGrade(t *testing.T, s *Store, evalID, studentID int64, priority model.Priority, at time.Time) model.Attempt {
	t.Helper()
	ctx := context.Background()
	a, err := s.CreateAttempt(ctx, evalID, studentID)
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}
	a.SubmittedAt = &at
	if err := s.SaveGrading(ctx, gradedCopy(a, priority, 0.6), model.StateInProgress); err != nil {
		t.Fatalf("SaveGrading: %v", err)
	}
	a, _ = s.LoadAttempt(ctx, a.ID)
	return a
}

func TestImportEvaluation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	evalID, ana, _ := seed(t, s)

	ev, err := s.GetEvaluation(ctx, evalID)
	if err != nil {
		t.Fatalf("GetEvaluation: %v", err)
	}
	if ev.Title != "Midterm" {
		t.Errorf("expected title 'Midterm', got %q", ev.Title)
	}

	qs, err := s.QuestionsForEvaluation(ctx, evalID)
	if err != nil {
		t.Fatalf("QuestionsForEvaluation: %v", err)
	}
	if len(qs) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(qs))
	}
	if qs[0].Prompt != "Capital of France?" || qs[2].Kind != model.KindLongAnswer || qs[2].MaxPoints != 20 {
		t.Errorf("questions not stored in order: %+v", qs)
	}
	if ana.Name != "Ana Pérez" {
		t.Errorf("expected student name 'Ana Pérez', got %q", ana.Name)
	}

	// Re-importing the same students updates them instead of failing.
	imp := testImport()
	imp.Students[0].Name = "Ana P."
	if _, err := s.ImportEvaluation(ctx, imp); err != nil {
		t.Fatalf("second ImportEvaluation: %v", err)
	}
	ana2, _ := s.GetStudentByEmail(ctx, "ana@example.edu")
	if ana2.ID != ana.ID || ana2.Name != "Ana P." {
		t.Errorf("expected student %d renamed, got %+v", ana.ID, ana2)
	}

	evals, err := s.ListEvaluations(ctx)
	if err != nil || len(evals) != 2 {
		t.Errorf("ListEvaluations: %v, %d evaluations", err, len(evals))
	}

	if _, err := s.GetEvaluation(ctx, 9999); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAttemptLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	evalID, ana, _ := seed(t, s)

	a, err := s.CreateAttempt(ctx, evalID, ana.ID)
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}
	if a.State != model.StateInProgress {
		t.Errorf("expected in_progress, got %q", a.State)
	}
	if len(a.Responses) != 3 {
		t.Fatalf("expected one response per question, got %d", len(a.Responses))
	}

	qs, _ := s.QuestionsForEvaluation(ctx, evalID)
	if err := s.SaveAnswer(ctx, a.ID, qs[0].ID, "Paris"); err != nil {
		t.Fatalf("SaveAnswer: %v", err)
	}
	if err := s.SaveAnswer(ctx, a.ID, 9999, "x"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("SaveAnswer unknown question: expected ErrNotFound, got %v", err)
	}

	a, err = s.LoadAttempt(ctx, a.ID)
	if err != nil {
		t.Fatalf("LoadAttempt: %v", err)
	}
	if a.Responses[0].Text != "Paris" {
		t.Errorf("expected saved answer 'Paris', got %q", a.Responses[0].Text)
	}
	if a.Responses[0].Confidence != nil {
		t.Error("ungraded response should have no confidence")
	}

	at := time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC)
	a.SubmittedAt = &at
	if err := s.SaveGrading(ctx, gradedCopy(a, model.PriorityMedium, 0.6), model.StateInProgress); err != nil {
		t.Fatalf("SaveGrading: %v", err)
	}
	if err := s.SaveGrading(ctx, gradedCopy(a, model.PriorityLow, 0.9), model.StateInProgress); !errors.Is(err, model.ErrNotInProgress) {
		t.Errorf("second submit: expected ErrNotInProgress, got %v", err)
	}
	if err := s.SaveAnswer(ctx, a.ID, qs[0].ID, "Lyon"); !errors.Is(err, model.ErrNotInProgress) {
		t.Errorf("SaveAnswer after submit: expected ErrNotInProgress, got %v", err)
	}

	a, _ = s.LoadAttempt(ctx, a.ID)
	if a.State != model.StateSubmitted {
		t.Errorf("grading must submit but not finalize, got %q", a.State)
	}
	if a.SubmittedAt == nil || !a.SubmittedAt.Equal(at) {
		t.Errorf("expected submitted_at %v, got %v", at, a.SubmittedAt)
	}
	if a.Responses[0].Text != "Paris" {
		t.Errorf("expected graded answer 'Paris', got %q", a.Responses[0].Text)
	}
	if a.TotalPointsAwarded != 15 || a.Priority != model.PriorityMedium {
		t.Errorf("aggregates not saved: %+v", a)
	}
	if len(a.WeakAreas) != 1 || a.WeakAreas[0] != "biology" || len(a.StrongAreas) != 0 {
		t.Errorf("areas not saved: weak=%v strong=%v", a.WeakAreas, a.StrongAreas)
	}
	r := a.Responses[1]
	if r.Confidence == nil || *r.Confidence != 0.6 || r.Patterns["k"] != "v" || r.Source != model.SourceClosed {
		t.Errorf("response not saved: %+v", r)
	}
}

func TestRegradeRequiresSubmitted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	evalID, ana, _ := seed(t, s)

	a, _ := s.CreateAttempt(ctx, evalID, ana.ID)
	if err := s.SaveGrading(ctx, gradedCopy(a, model.PriorityLow, 0.9), model.StateSubmitted); !errors.Is(err, model.ErrNotSubmitted) {
		t.Errorf("expected regrade of in-progress attempt to be rejected, got %v", err)
	}
	a, _ = s.LoadAttempt(ctx, a.ID)
	if a.State != model.StateInProgress || a.TotalPointsAwarded != 0 || a.Responses[0].Confidence != nil {
		t.Error("rejected grading must not write anything")
	}
	if err := s.SaveGrading(ctx, gradedCopy(model.Attempt{ID: 9999}, model.PriorityLow, 0.9), model.StateSubmitted); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRegradeSubmittedAttempt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	evalID, ana, _ := seed(t, s)
	at := time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC)
	a := submitAndGrade(t, s, evalID, ana.ID, model.PriorityMedium, at)

	a.SubmittedAt = nil
	if err := s.SaveGrading(ctx, gradedCopy(a, model.PriorityUrgent, 0.3), model.StateSubmitted); err != nil {
		t.Fatalf("regrade: %v", err)
	}
	a, _ = s.LoadAttempt(ctx, a.ID)
	if a.Priority != model.PriorityUrgent || a.ConfidenceLevel != 0.3 {
		t.Errorf("regrade not saved: %+v", a)
	}
	if a.SubmittedAt == nil || !a.SubmittedAt.Equal(at) {
		t.Errorf("regrade must keep submitted_at %v, got %v", at, a.SubmittedAt)
	}
}

func TestFinalize(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	evalID, ana, _ := seed(t, s)
	a := submitAndGrade(t, s, evalID, ana.ID, model.PriorityUrgent, time.Now())

	changed := a.Responses[2]
	changed.PointsAwarded = 18
	changed.IsCorrect = true
	changed.Source = model.SourceManual
	changed.Recommendation = "well argued"
	gradedAt := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	fin := model.Finalization{
		AttemptID:          a.ID,
		Action:             model.ActionAdjust,
		Responses:          []model.Response{changed},
		TotalPointsAwarded: 28,
		PercentCorrect:     33.33,
		ScorePercent:       70,
		ReviewerID:         42,
		Comment:            "adjusted essay",
		GradedAt:           gradedAt,
	}
	if err := s.Finalize(ctx, fin); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	got, _ := s.LoadAttempt(ctx, a.ID)
	if got.State != model.StateGraded {
		t.Errorf("expected graded, got %q", got.State)
	}
	if got.TotalPointsAwarded != 28 || got.ScorePercent != 70 || got.ReviewComment != "adjusted essay" {
		t.Errorf("totals not finalized: %+v", got)
	}
	if got.ReviewedBy == nil || *got.ReviewedBy != 42 {
		t.Errorf("expected reviewer 42, got %v", got.ReviewedBy)
	}
	if got.GradedAt == nil || !got.GradedAt.Equal(gradedAt) {
		t.Errorf("expected graded_at %v, got %v", gradedAt, got.GradedAt)
	}
	if r := got.Responses[2]; r.PointsAwarded != 18 || r.Source != model.SourceManual || r.Recommendation != "well argued" {
		t.Errorf("override not stored: %+v", r)
	}
	if r := got.Responses[0]; r.PointsAwarded != 5 {
		t.Errorf("untouched response changed: %+v", r)
	}

	// A second finalization is rejected and changes nothing.
	fin.TotalPointsAwarded = 0
	fin.Comment = "again"
	if err := s.Finalize(ctx, fin); !errors.Is(err, model.ErrAlreadyGraded) {
		t.Errorf("expected ErrAlreadyGraded, got %v", err)
	}
	again, _ := s.LoadAttempt(ctx, a.ID)
	if again.TotalPointsAwarded != 28 || again.ReviewComment != "adjusted essay" {
		t.Errorf("graded attempt was modified: %+v", again)
	}

	if err := s.Finalize(ctx, model.Finalization{AttemptID: 9999}); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFinalizeNotSubmitted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	evalID, ana, _ := seed(t, s)
	a, _ := s.CreateAttempt(ctx, evalID, ana.ID)

	if err := s.Finalize(ctx, model.Finalization{AttemptID: a.ID}); !errors.Is(err, model.ErrNotSubmitted) {
		t.Errorf("expected ErrNotSubmitted, got %v", err)
	}
}

func TestFinalizeConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	evalID, ana, _ := seed(t, s)
	a := submitAndGrade(t, s, evalID, ana.ID, model.PriorityLow, time.Now())

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.Finalize(ctx, model.Finalization{AttemptID: a.ID, ReviewerID: int64(i), GradedAt: time.Now()})
		}()
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case !errors.Is(err, model.ErrAlreadyGraded):
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Errorf("expected exactly one successful finalization, got %d", ok)
	}
}

func TestListPending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	evalID, ana, bruno := seed(t, s)
	t0 := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)

	low := submitAndGrade(t, s, evalID, ana.ID, model.PriorityLow, t0)
	urgentLate := submitAndGrade(t, s, evalID, bruno.ID, model.PriorityUrgent, t0.Add(2*time.Hour))
	urgentEarly := submitAndGrade(t, s, evalID, ana.ID, model.PriorityUrgent, t0.Add(time.Hour))
	medium := submitAndGrade(t, s, evalID, bruno.ID, model.PriorityMedium, t0.Add(30*time.Minute))
	graded := submitAndGrade(t, s, evalID, ana.ID, model.PriorityUrgent, t0)
	if err := s.Finalize(ctx, model.Finalization{AttemptID: graded.ID, GradedAt: time.Now()}); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if _, err := s.CreateAttempt(ctx, evalID, bruno.ID); err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}

	list, err := s.ListPending(ctx, evalID, model.PendingFilter{})
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	want := []int64{urgentEarly.ID, urgentLate.ID, medium.ID, low.ID}
	if len(list) != len(want) {
		t.Fatalf("expected %d pending, got %d", len(want), len(list))
	}
	for i, id := range want {
		if list[i].ID != id {
			t.Errorf("position %d: expected attempt %d, got %d", i, id, list[i].ID)
		}
	}
	if list[0].Student.Email != "ana@example.edu" {
		t.Errorf("expected student email on summary, got %+v", list[0].Student)
	}

	urgent, _ := s.ListPending(ctx, evalID, model.PendingFilter{Priority: model.PriorityUrgent})
	if len(urgent) != 2 {
		t.Errorf("expected 2 urgent, got %d", len(urgent))
	}

	byName, _ := s.ListPending(ctx, evalID, model.PendingFilter{Search: "BRUNO"})
	if len(byName) != 2 {
		t.Errorf("expected 2 attempts for bruno, got %d", len(byName))
	}

	none, _ := s.ListPending(ctx, evalID, model.PendingFilter{Search: "%"})
	if len(none) != 0 {
		t.Errorf("expected LIKE wildcards to be escaped, got %d results", len(none))
	}
}

func TestAttemptDetail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	evalID, ana, _ := seed(t, s)
	a := submitAndGrade(t, s, evalID, ana.ID, model.PriorityMedium, time.Now())

	d, err := s.AttemptDetail(ctx, a.ID)
	if err != nil {
		t.Fatalf("AttemptDetail: %v", err)
	}
	if d.Student.ID != ana.ID || d.Evaluation.Title != "Midterm" {
		t.Errorf("unexpected header: %+v %+v", d.Student, d.Evaluation)
	}
	if len(d.Responses) != 3 {
		t.Fatalf("expected 3 responses, got %d", len(d.Responses))
	}
	if d.Responses[2].Question.Kind != model.KindLongAnswer {
		t.Errorf("response not paired with its question: %+v", d.Responses[2])
	}

	if _, err := s.AttemptDetail(ctx, 9999); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestReviewStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	evalID, ana, bruno := seed(t, s)

	empty, err := s.ReviewStats(ctx, evalID)
	if err != nil {
		t.Fatalf("ReviewStats: %v", err)
	}
	if empty.TotalAttempts != 0 || empty.PercentCompleted != 0 || empty.PendingByPriority[model.PriorityUrgent] != 0 {
		t.Errorf("unexpected empty stats: %+v", empty)
	}

	submitAndGrade(t, s, evalID, ana.ID, model.PriorityUrgent, time.Now())
	submitAndGrade(t, s, evalID, bruno.ID, model.PriorityUrgent, time.Now())
	g := submitAndGrade(t, s, evalID, ana.ID, model.PriorityLow, time.Now())
	if err := s.Finalize(ctx, model.Finalization{AttemptID: g.ID, TotalPointsAwarded: 15, GradedAt: time.Now()}); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if _, err := s.CreateAttempt(ctx, evalID, bruno.ID); err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}

	st, err := s.ReviewStats(ctx, evalID)
	if err != nil {
		t.Fatalf("ReviewStats: %v", err)
	}
	if st.TotalAttempts != 4 || st.Pending != 2 || st.Graded != 1 {
		t.Errorf("unexpected counts: %+v", st)
	}
	if st.PendingByPriority[model.PriorityUrgent] != 2 || st.PendingByPriority[model.PriorityLow] != 0 {
		t.Errorf("unexpected pending by priority: %v", st.PendingByPriority)
	}
	if st.PercentCompleted != 25 {
		t.Errorf("expected 25%% completed, got %v", st.PercentCompleted)
	}
	if st.AvgConfidence != 0.6 || st.AvgPoints != 15 {
		t.Errorf("unexpected averages: %+v", st)
	}
}

func TestExportEvaluation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	evalID, ana, _ := seed(t, s)
	submitAndGrade(t, s, evalID, ana.ID, model.PriorityLow, time.Now())
	submitAndGrade(t, s, evalID, ana.ID, model.PriorityLow, time.Now())

	exp, err := s.ExportEvaluation(ctx, evalID)
	if err != nil {
		t.Fatalf("ExportEvaluation: %v", err)
	}
	if exp.Title != "Midterm" || exp.NumQuestions != 3 || len(exp.Results) != 2 {
		t.Fatalf("unexpected export: %+v", exp)
	}
	if exp.Results[1].AttemptNumber != 2 || exp.Results[1].StudentEmail != "ana@example.edu" {
		t.Errorf("unexpected second result: %+v", exp.Results[1])
	}
	if len(exp.Results[0].Questions) != 3 || exp.Results[0].Questions[0].Kind != model.KindClosedChoice {
		t.Errorf("unexpected questions: %+v", exp.Results[0].Questions)
	}
}

func TestImportedFiles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.ImportedEvaluation(ctx, "abc123")
	if err != nil {
		t.Fatalf("ImportedEvaluation: %v", err)
	}
	if id != 0 {
		t.Errorf("expected 0 for unknown hash, got %d", id)
	}

	if err := s.RecordImport(ctx, "abc123", 7); err != nil {
		t.Fatalf("RecordImport: %v", err)
	}
	id, _ = s.ImportedEvaluation(ctx, "abc123")
	if id != 7 {
		t.Errorf("expected 7, got %d", id)
	}
}

func TestUsersAndTokens(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateUser(ctx, model.User{Username: "prof", DisplayName: "Prof", PasswordHash: "x", Role: model.UserRoleTeacher, Active: true})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := s.CreateUser(ctx, model.User{Username: "prof", PasswordHash: "y", Role: model.UserRoleAdmin}); err == nil {
		t.Error("expected duplicate username to fail")
	}

	u, err := s.GetUserByUsername(ctx, "prof")
	if err != nil || u == nil || u.ID != id || !u.Active || u.Role != model.UserRoleTeacher {
		t.Fatalf("GetUserByUsername: %v %+v", err, u)
	}
	if missing, err := s.GetUserByUsername(ctx, "nobody"); err != nil || missing != nil {
		t.Errorf("expected nil user, got %+v %v", missing, err)
	}

	if err := s.SetUserActive(ctx, id, false); err != nil {
		t.Fatalf("SetUserActive: %v", err)
	}
	u, _ = s.GetUserByID(ctx, id)
	if u.Active {
		t.Error("expected user to be inactive")
	}
	if err := s.SetUserActive(ctx, 9999, true); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	users, _ := s.ListUsers(ctx)
	if n, _ := s.UserCount(ctx); n != 1 || len(users) != 1 {
		t.Errorf("expected 1 user, got count=%d list=%d", n, len(users))
	}

	token, err := s.CreateAuthSession(ctx, id)
	if err != nil {
		t.Fatalf("CreateAuthSession: %v", err)
	}
	sess, err := s.GetAuthSession(ctx, token)
	if err != nil || sess == nil || sess.UserID != id {
		t.Fatalf("GetAuthSession: %v %+v", err, sess)
	}
	if err := s.DeleteAuthSession(ctx, token); err != nil {
		t.Fatalf("DeleteAuthSession: %v", err)
	}
	if sess, _ := s.GetAuthSession(ctx, token); sess != nil {
		t.Error("expected revoked token to be gone")
	}
}

func TestImportEvaluationJSON(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	data := []byte(`{"title":"Quiz","questions":[{"kind":"true_false","prompt":"Water is wet","correct_answer":"true","max_points":1}],
		"students":[{"name":"Ana","email":"ana@example.edu"}]}`)

	id, dup, err := s.ImportEvaluationJSON(ctx, data)
	if err != nil {
		t.Fatalf("ImportEvaluationJSON: %v", err)
	}
	if dup || id == 0 {
		t.Fatalf("expected a fresh import, got id=%d duplicate=%v", id, dup)
	}

	again, dup, err := s.ImportEvaluationJSON(ctx, data)
	if err != nil {
		t.Fatalf("second ImportEvaluationJSON: %v", err)
	}
	if !dup || again != id {
		t.Errorf("expected duplicate of %d, got id=%d duplicate=%v", id, again, dup)
	}

	tests := []struct {
		name string
		data string
	}{
		{"not json", `{`},
		{"no questions", `{"title":"x","questions":[]}`},
		{"unknown kind", `{"title":"x","questions":[{"kind":"essay","prompt":"p","max_points":1}]}`},
		{"closed without answer", `{"title":"x","questions":[{"kind":"closed_choice","prompt":"p","max_points":1}]}`},
		{"zero points", `{"title":"x","questions":[{"kind":"long_answer","prompt":"p","max_points":0}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := s.ImportEvaluationJSON(ctx, []byte(tt.data)); !errors.Is(err, ErrInvalidImport) {
				t.Errorf("expected ErrInvalidImport, got %v", err)
			}
		})
	}
}
