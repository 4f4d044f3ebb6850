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

// ErrStaleVersion is returned when a conditional update loses a race
var ErrStaleVersion = errors.New("document was modified concurrently")

// SpaceRepository stores personal spaces as one document per couple
type SpaceRepository struct {
	db *pgxpool.Pool
}

// NewSpaceRepository creates a new personal space repository
func NewSpaceRepository(db *pgxpool.Pool) *SpaceRepository {
	return &SpaceRepository{db: db}
}

// Create inserts a new space. A space that already exists for the couple
// yields models.ErrConflict.
func (r *SpaceRepository) Create(ctx context.Context, s *models.PersonalSpace) error {
	gallery, songs, notes, err := encodeCollections(s)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO personal_spaces (id, couple_id, gallery, songs, notes, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.db.Exec(ctx, query, s.ID, s.CoupleID, gallery, songs, notes, s.Version, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("personal space for %s: %w", s.CoupleID, models.ErrConflict)
		}
		return fmt.Errorf("failed to create personal space: %w", err)
	}
	return nil
}

// GetByCoupleID retrieves the space of a couple
func (r *SpaceRepository) GetByCoupleID(ctx context.Context, coupleID string) (*models.PersonalSpace, error) {
	query := `
		SELECT id, couple_id, gallery, songs, notes, version, created_at, updated_at
		FROM personal_spaces
		WHERE couple_id = $1
	`
	var (
		s                     models.PersonalSpace
		gallery, songs, notes []byte
	)
	err := r.db.QueryRow(ctx, query, coupleID).Scan(
		&s.ID, &s.CoupleID, &gallery, &songs, &notes, &s.Version, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.NotFound("personal space")
		}
		return nil, fmt.Errorf("failed to get personal space: %w", err)
	}

	if err := json.Unmarshal(gallery, &s.Gallery); err != nil {
		return nil, fmt.Errorf("failed to decode gallery: %w", err)
	}
	if err := json.Unmarshal(songs, &s.Songs); err != nil {
		return nil, fmt.Errorf("failed to decode songs: %w", err)
	}
	if err := json.Unmarshal(notes, &s.Notes); err != nil {
		return nil, fmt.Errorf("failed to decode notes: %w", err)
	}
	s.Normalize()
	return &s, nil
}

// Update replaces the collections if the stored version still matches
// s.Version, then bumps s.Version
func (r *SpaceRepository) Update(ctx context.Context, s *models.PersonalSpace) error {
	gallery, songs, notes, err := encodeCollections(s)
	if err != nil {
		return err
	}

	query := `
		UPDATE personal_spaces
		SET gallery = $1, songs = $2, notes = $3, updated_at = $4, version = version + 1
		WHERE id = $5 AND version = $6
	`
	result, err := r.db.Exec(ctx, query, gallery, songs, notes, s.UpdatedAt, s.ID, s.Version)
	if err != nil {
		return fmt.Errorf("failed to update personal space: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrStaleVersion
	}
	s.Version++
	return nil
}

func encodeCollections(s *models.PersonalSpace) (gallery, songs, notes []byte, err error) {
	s.Normalize()
	if gallery, err = json.Marshal(s.Gallery); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode gallery: %w", err)
	}
	if songs, err = json.Marshal(s.Songs); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode songs: %w", err)
	}
	if notes, err = json.Marshal(s.Notes); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode notes: %w", err)
	}
	return gallery, songs, notes, nil
}
