package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/autograder/internal/model"
)

// ErrInvalidImport wraps every problem with an evaluation file's content.
var ErrInvalidImport = errors.New("invalid evaluation file")

// ImportedEvaluation returns the evaluation created from a file with the
// given content hash, or 0 if the file was never imported.
func (s *Store) ImportedEvaluation(ctx context.Context, hash string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT evaluation_id FROM imported_files WHERE hash = ?`, hash).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return id, err
}

// RecordImport remembers that the file with hash produced evaluationID.
func (s *Store) RecordImport(ctx context.Context, hash string, evaluationID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO imported_files (hash, evaluation_id, imported_at) VALUES (?, ?, ?)
		 ON CONFLICT(hash) DO UPDATE SET evaluation_id = excluded.evaluation_id, imported_at = excluded.imported_at`,
		hash, evaluationID, time.Now(),
	)
	return err
}

// ImportEvaluationJSON imports an evaluation file unless a file with the
// same content was imported before, in which case it returns the earlier
// evaluation with duplicate set.
func (s *Store) ImportEvaluationJSON(ctx context.Context, data []byte) (id int64, duplicate bool, err error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	id, err = s.ImportedEvaluation(ctx, hash)
	if err != nil {
		return 0, false, fmt.Errorf("check import status: %w", err)
	}
	if id != 0 {
		slog.Info("evaluation file already imported, skipping", "hash", hash[:12], "evaluation_id", id)
		return id, true, nil
	}

	var imp model.EvaluationImport
	if err := json.Unmarshal(data, &imp); err != nil {
		return 0, false, fmt.Errorf("%w: %w", ErrInvalidImport, err)
	}
	if err := imp.Validate(); err != nil {
		return 0, false, fmt.Errorf("%w: %w", ErrInvalidImport, err)
	}

	id, err = s.ImportEvaluation(ctx, imp)
	if err != nil {
		return 0, false, err
	}
	if err := s.RecordImport(ctx, hash, id); err != nil {
		slog.Error("failed to record import", "evaluation_id", id, "error", err)
	}
	slog.Info("imported evaluation", "evaluation_id", id, "title", imp.Title,
		"questions", len(imp.Questions), "students", len(imp.Students))
	return id, false, nil
}
