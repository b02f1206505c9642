package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/loadmatch/dispatcher/internal/domain"
)

type VendorRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Vendor, error)
	// ListEligible returns available vendors matching the booking's vehicle
	// type that have not already been offered this booking.
	ListEligible(ctx context.Context, bookingID int64, vehicleType string) ([]domain.Vendor, error)
}

type PGVendorRepository struct {
	db *pgxpool.Pool
}

func NewVendorRepository(db *pgxpool.Pool) VendorRepository {
	return &PGVendorRepository{db: db}
}

const vendorColumns = `id, name, phone, vehicle_type, lat, lng, rating, available, created_at, updated_at`

func (r *PGVendorRepository) GetByID(ctx context.Context, id int64) (*domain.Vendor, error) {
	row := r.db.QueryRow(ctx, `SELECT `+vendorColumns+` FROM vendors WHERE id=$1`, id)
	var v domain.Vendor
	if err := row.Scan(&v.ID, &v.Name, &v.Phone, &v.VehicleType, &v.Lat, &v.Lng, &v.Rating, &v.Available, &v.CreatedAt, &v.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (r *PGVendorRepository) ListEligible(ctx context.Context, bookingID int64, vehicleType string) ([]domain.Vendor, error) {
	rows, err := r.db.Query(ctx, `SELECT `+vendorColumns+` FROM vendors
		WHERE available AND vehicle_type=$1
		AND NOT EXISTS (SELECT 1 FROM booking_requests WHERE booking_id=$2 AND vendor_id=vendors.id)
		ORDER BY id`, vehicleType, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Vendor
	for rows.Next() {
		var v domain.Vendor
		if err := rows.Scan(&v.ID, &v.Name, &v.Phone, &v.VehicleType, &v.Lat, &v.Lng, &v.Rating, &v.Available, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

var _ VendorRepository = (*PGVendorRepository)(nil)
