package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"pairspace-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// QuizRepository handles database operations for quizzes
type QuizRepository struct {
	db *pgxpool.Pool
}

// NewQuizRepository creates a new quiz repository
func NewQuizRepository(db *pgxpool.Pool) *QuizRepository {
	return &QuizRepository{db: db}
}

// Create creates a new quiz
func (r *QuizRepository) Create(ctx context.Context, q *models.Quiz) error {
	questions, err := json.Marshal(q.Questions)
	if err != nil {
		return fmt.Errorf("failed to encode questions: %w", err)
	}

	query := `
		INSERT INTO quizzes (id, couple_id, questions, attempt_count, last_attempt, locked_until,
			created_by, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = r.db.Exec(ctx, query,
		q.ID, q.CoupleID, questions, q.Attempts.Count, q.Attempts.LastAttempt, q.Attempts.LockedUntil,
		q.CreatedBy, q.Version, q.CreatedAt, q.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create quiz: %w", err)
	}
	return nil
}

// GetLatestByCoupleID retrieves the most recently created quiz of a couple
func (r *QuizRepository) GetLatestByCoupleID(ctx context.Context, coupleID string) (*models.Quiz, error) {
	query := `
		SELECT id, couple_id, questions, attempt_count, last_attempt, locked_until,
			created_by, version, created_at, updated_at
		FROM quizzes
		WHERE couple_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	var (
		q         models.Quiz
		questions []byte
	)
	err := r.db.QueryRow(ctx, query, coupleID).Scan(
		&q.ID, &q.CoupleID, &questions, &q.Attempts.Count, &q.Attempts.LastAttempt, &q.Attempts.LockedUntil,
		&q.CreatedBy, &q.Version, &q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.NotFound("quiz")
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}
	if err := json.Unmarshal(questions, &q.Questions); err != nil {
		return nil, fmt.Errorf("failed to decode questions: %w", err)
	}
	return &q, nil
}

// UpdateAttempts writes the attempt record if the stored version still
// matches q.Version, then bumps q.Version
func (r *QuizRepository) UpdateAttempts(ctx context.Context, q *models.Quiz) error {
	query := `
		UPDATE quizzes
		SET attempt_count = $1, last_attempt = $2, locked_until = $3, updated_at = $4, version = version + 1
		WHERE id = $5 AND version = $6
	`
	result, err := r.db.Exec(ctx, query,
		q.Attempts.Count, q.Attempts.LastAttempt, q.Attempts.LockedUntil, q.UpdatedAt, q.ID, q.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update quiz attempts: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrStaleVersion
	}
	q.Version++
	return nil
}
