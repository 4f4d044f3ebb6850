package repository

import (
	"context"
	"fmt"

	"pairspace-backend/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DeviceRepository handles push device registrations
type DeviceRepository struct {
	db *pgxpool.Pool
}

// NewDeviceRepository creates a new device repository
func NewDeviceRepository(db *pgxpool.Pool) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// Upsert registers a device. Device tokens are unique across couples: a known
// token moves to the new couple and partner name.
func (r *DeviceRepository) Upsert(ctx context.Context, d *models.Device) error {
	query := `
		INSERT INTO couple_devices (id, couple_id, partner_name, device_token, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (device_token) DO UPDATE
		SET couple_id = EXCLUDED.couple_id, partner_name = EXCLUDED.partner_name
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query, d.ID, d.CoupleID, d.PartnerName, d.DeviceToken, d.CreatedAt).
		Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to register device: %w", err)
	}
	return nil
}

// ListByCoupleID returns all devices of a couple
func (r *DeviceRepository) ListByCoupleID(ctx context.Context, coupleID string) ([]*models.Device, error) {
	query := `
		SELECT id, couple_id, partner_name, device_token, created_at
		FROM couple_devices
		WHERE couple_id = $1
		ORDER BY created_at
	`
	rows, err := r.db.Query(ctx, query, coupleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	var devices []*models.Device
	for rows.Next() {
		var d models.Device
		if err := rows.Scan(&d.ID, &d.CoupleID, &d.PartnerName, &d.DeviceToken, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating devices: %w", err)
	}
	return devices, nil
}

// DeleteByToken removes a device token that APNs reported as invalid
func (r *DeviceRepository) DeleteByToken(ctx context.Context, deviceToken string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM couple_devices WHERE device_token = $1`, deviceToken)
	if err != nil {
		return fmt.Errorf("failed to delete device: %w", err)
	}
	return nil
}
