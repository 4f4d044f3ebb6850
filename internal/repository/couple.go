package repository

import (
	"context"
	"errors"
	"fmt"

	"pairspace-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CoupleRepository handles database operations for couples
type CoupleRepository struct {
	db *pgxpool.Pool
}

// NewCoupleRepository creates a new couple repository
func NewCoupleRepository(db *pgxpool.Pool) *CoupleRepository {
	return &CoupleRepository{db: db}
}

const coupleColumns = `couple_id, password_hash, token,
	partner_one_name, partner_one_email, partner_two_name, partner_two_email, created_at`

// Create creates a new couple
func (r *CoupleRepository) Create(ctx context.Context, c *models.Couple) error {
	query := `
		INSERT INTO couples (` + coupleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		c.CoupleID, c.PasswordHash, c.Token,
		c.PartnerOne.Name, c.PartnerOne.Email, c.PartnerTwo.Name, c.PartnerTwo.Email,
		c.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("couple %s: %w", c.CoupleID, models.ErrConflict)
		}
		return fmt.Errorf("failed to create couple: %w", err)
	}
	return nil
}

// GetByCoupleID retrieves a couple by its human-chosen id
func (r *CoupleRepository) GetByCoupleID(ctx context.Context, coupleID string) (*models.Couple, error) {
	query := `SELECT ` + coupleColumns + ` FROM couples WHERE couple_id = $1`
	return r.scanOne(ctx, query, coupleID)
}

// GetByToken retrieves a couple by its bearer token
func (r *CoupleRepository) GetByToken(ctx context.Context, token string) (*models.Couple, error) {
	query := `SELECT ` + coupleColumns + ` FROM couples WHERE token = $1`
	return r.scanOne(ctx, query, token)
}

// Exists checks if a couple id is already taken
func (r *CoupleRepository) Exists(ctx context.Context, coupleID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM couples WHERE couple_id = $1)`
	var exists bool
	if err := r.db.QueryRow(ctx, query, coupleID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check couple existence: %w", err)
	}
	return exists, nil
}

func (r *CoupleRepository) scanOne(ctx context.Context, query string, arg string) (*models.Couple, error) {
	var c models.Couple
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&c.CoupleID, &c.PasswordHash, &c.Token,
		&c.PartnerOne.Name, &c.PartnerOne.Email, &c.PartnerTwo.Name, &c.PartnerTwo.Email,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.NotFound("couple")
		}
		return nil, fmt.Errorf("failed to get couple: %w", err)
	}
	return &c, nil
}
