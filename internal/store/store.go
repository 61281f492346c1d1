package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pavelanni/autograder/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if strings.HasPrefix(dbPath, ":memory:") {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS evaluations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		evaluation_id INTEGER NOT NULL,
		position INTEGER NOT NULL DEFAULT 0,
		kind TEXT NOT NULL,
		prompt TEXT NOT NULL,
		correct_answer TEXT NOT NULL DEFAULT '',
		max_points REAL NOT NULL DEFAULT 10,
		topic TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (evaluation_id) REFERENCES evaluations(id)
	);

	CREATE TABLE IF NOT EXISTS students (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		evaluation_id INTEGER NOT NULL,
		student_id INTEGER NOT NULL,
		state TEXT NOT NULL DEFAULT 'in_progress',
		total_points REAL NOT NULL DEFAULT 0,
		percent_correct REAL NOT NULL DEFAULT 0,
		score_percent REAL NOT NULL DEFAULT 0,
		confidence_level REAL NOT NULL DEFAULT 0,
		difficulty TEXT NOT NULL DEFAULT '',
		has_anomalies INTEGER NOT NULL DEFAULT 0,
		anomaly_count INTEGER NOT NULL DEFAULT 0,
		priority TEXT NOT NULL DEFAULT '',
		weak_areas TEXT NOT NULL DEFAULT '[]',
		strong_areas TEXT NOT NULL DEFAULT '[]',
		recommendations TEXT NOT NULL DEFAULT '[]',
		started_at DATETIME NOT NULL,
		submitted_at DATETIME,
		graded_at DATETIME,
		reviewed_by INTEGER,
		review_comment TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (evaluation_id) REFERENCES evaluations(id),
		FOREIGN KEY (student_id) REFERENCES students(id)
	);

	CREATE INDEX IF NOT EXISTS idx_attempts_queue ON attempts(evaluation_id, state, priority, submitted_at);

	CREATE TABLE IF NOT EXISTS responses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		attempt_id INTEGER NOT NULL,
		question_id INTEGER NOT NULL,
		text TEXT NOT NULL DEFAULT '',
		is_correct INTEGER NOT NULL DEFAULT 0,
		points_awarded REAL NOT NULL DEFAULT 0,
		confidence REAL,
		is_anomalous INTEGER NOT NULL DEFAULT 0,
		patterns TEXT NOT NULL DEFAULT '{}',
		recommendation TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		UNIQUE (attempt_id, question_id),
		FOREIGN KEY (attempt_id) REFERENCES attempts(id),
		FOREIGN KEY (question_id) REFERENCES questions(id)
	);

	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS imported_files (
		hash TEXT PRIMARY KEY,
		evaluation_id INTEGER NOT NULL,
		imported_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ImportEvaluation stores an evaluation with its questions and students in
// one transaction and returns the new evaluation ID.
func (s *Store) ImportEvaluation(ctx context.Context, imp model.EvaluationImport) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO evaluations (title, created_at) VALUES (?, ?)`, imp.Title, time.Now())
	if err != nil {
		return 0, fmt.Errorf("insert evaluation: %w", err)
	}
	evalID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for i, q := range imp.Questions {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO questions (evaluation_id, position, kind, prompt, correct_answer, max_points, topic)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			evalID, i, q.Kind, q.Prompt, q.CorrectAnswer, q.MaxPoints, q.Topic,
		)
		if err != nil {
			return 0, fmt.Errorf("insert question %d: %w", i+1, err)
		}
	}

	for _, st := range imp.Students {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO students (name, email) VALUES (?, ?)
			 ON CONFLICT(email) DO UPDATE SET name = excluded.name`,
			st.Name, st.Email,
		)
		if err != nil {
			return 0, fmt.Errorf("upsert student %s: %w", st.Email, err)
		}
	}

	return evalID, tx.Commit()
}

// GetEvaluation returns an evaluation by ID.
func (s *Store) GetEvaluation(ctx context.Context, id int64) (model.Evaluation, error) {
	var e model.Evaluation
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, created_at FROM evaluations WHERE id = ?`, id,
	).Scan(&e.ID, &e.Title, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return e, fmt.Errorf("evaluation %d: %w", id, model.ErrNotFound)
	}
	return e, err
}

// ListEvaluations returns all evaluations, newest first.
func (s *Store) ListEvaluations(ctx context.Context) ([]model.Evaluation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, created_at FROM evaluations ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var evals []model.Evaluation
	for rows.Next() {
		var e model.Evaluation
		if err := rows.Scan(&e.ID, &e.Title, &e.CreatedAt); err != nil {
			return nil, err
		}
		evals = append(evals, e)
	}
	return evals, rows.Err()
}

// QuestionsForEvaluation returns the questions of an evaluation in order.
func (s *Store) QuestionsForEvaluation(ctx context.Context, evaluationID int64) ([]model.Question, error) {
	return queryQuestions(ctx, s.db, evaluationID)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryQuestions(ctx context.Context, q queryer, evaluationID int64) ([]model.Question, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, evaluation_id, kind, prompt, correct_answer, max_points, topic
		 FROM questions WHERE evaluation_id = ? ORDER BY position, id`, evaluationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		var qu model.Question
		if err := rows.Scan(&qu.ID, &qu.EvaluationID, &qu.Kind, &qu.Prompt, &qu.CorrectAnswer, &qu.MaxPoints, &qu.Topic); err != nil {
			return nil, err
		}
		questions = append(questions, qu)
	}
	return questions, rows.Err()
}

// GetStudent returns a student by ID.
func (s *Store) GetStudent(ctx context.Context, id int64) (model.Student, error) {
	var st model.Student
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email FROM students WHERE id = ?`, id,
	).Scan(&st.ID, &st.Name, &st.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return st, fmt.Errorf("student %d: %w", id, model.ErrNotFound)
	}
	return st, err
}

// GetStudentByEmail returns a student by email.
func (s *Store) GetStudentByEmail(ctx context.Context, email string) (model.Student, error) {
	var st model.Student
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email FROM students WHERE email = ?`, email,
	).Scan(&st.ID, &st.Name, &st.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return st, fmt.Errorf("student %s: %w", email, model.ErrNotFound)
	}
	return st, err
}
