package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/loadmatch/dispatcher/internal/domain"
)

type BookingRepository interface {
	Create(ctx context.Context, booking *domain.Booking) error
	GetByID(ctx context.Context, id int64) (*domain.Booking, error)
	GetByReference(ctx context.Context, reference string) (*domain.Booking, error)
	SetMatched(ctx context.Context, id, vendorID int64) (*domain.Booking, error)
	SetStatus(ctx context.Context, id int64, from, to domain.BookingStatus) (*domain.Booking, error)
	ListByVendor(ctx context.Context, vendorID int64, statuses []domain.BookingStatus) ([]domain.Booking, error)
}

type PGBookingRepository struct {
	db *pgxpool.Pool
}

func NewBookingRepository(db *pgxpool.Pool) BookingRepository {
	return &PGBookingRepository{db: db}
}

const bookingColumns = `id, reference, pickup_address, pickup_lat, pickup_lng, dropoff_address, dropoff_lat, dropoff_lng, vehicle_type, status, matched_vendor_id, created_at, updated_at`

func (r *PGBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	booking.Status = domain.BookingStatusSearching
	return r.db.QueryRow(ctx, `INSERT INTO bookings (reference, pickup_address, pickup_lat, pickup_lng, dropoff_address, dropoff_lat, dropoff_lng, vehicle_type, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`,
		booking.Reference, booking.PickupAddress, booking.PickupLat, booking.PickupLng,
		booking.DropoffAddress, booking.DropoffLat, booking.DropoffLng, booking.VehicleType, booking.Status).
		Scan(&booking.ID, &booking.CreatedAt, &booking.UpdatedAt)
}

func (r *PGBookingRepository) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	row := r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id)
	return scanBooking(row)
}

func (r *PGBookingRepository) GetByReference(ctx context.Context, reference string) (*domain.Booking, error) {
	row := r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE reference=$1`, reference)
	return scanBooking(row)
}

// SetMatched transitions the booking to MATCHED and records the winning
// vendor. Conditional on SEARCHING so that a second accept racing in through
// a stale offer cannot overwrite an existing match.
func (r *PGBookingRepository) SetMatched(ctx context.Context, id, vendorID int64) (*domain.Booking, error) {
	row := r.db.QueryRow(ctx, `UPDATE bookings SET status=$1, matched_vendor_id=$2, updated_at=now()
		WHERE id=$3 AND status=$4
		RETURNING `+bookingColumns, domain.BookingStatusMatched, vendorID, id, domain.BookingStatusSearching)
	booking, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotPending
		}
		return nil, err
	}
	return booking, nil
}

func (r *PGBookingRepository) SetStatus(ctx context.Context, id int64, from, to domain.BookingStatus) (*domain.Booking, error) {
	row := r.db.QueryRow(ctx, `UPDATE bookings SET status=$1, updated_at=now()
		WHERE id=$2 AND status=$3
		RETURNING `+bookingColumns, to, id, from)
	return scanBooking(row)
}

func (r *PGBookingRepository) ListByVendor(ctx context.Context, vendorID int64, statuses []domain.BookingStatus) ([]domain.Booking, error) {
	vals := make([]string, 0, len(statuses))
	for _, s := range statuses {
		vals = append(vals, string(s))
	}
	rows, err := r.db.Query(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE matched_vendor_id=$1 AND status = ANY($2)
		ORDER BY updated_at DESC`, vendorID, vals)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *booking)
	}
	return out, rows.Err()
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	if err := row.Scan(&b.ID, &b.Reference, &b.PickupAddress, &b.PickupLat, &b.PickupLng, &b.DropoffAddress, &b.DropoffLat, &b.DropoffLng, &b.VehicleType, &b.Status, &b.MatchedVendorID, &b.CreatedAt, &b.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

var _ BookingRepository = (*PGBookingRepository)(nil)
