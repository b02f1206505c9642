package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/loadmatch/dispatcher/internal/domain"
)

type RequestRepository interface {
	CreatePending(ctx context.Context, req *domain.BookingRequest) error
	GetByID(ctx context.Context, id int64) (*domain.BookingRequest, error)
	MarkResponded(ctx context.Context, id, vendorID int64, status domain.RequestStatus, respondedAt time.Time) (*domain.BookingRequest, error)
	MarkExpired(ctx context.Context, id int64) (*domain.BookingRequest, error)
	ExpireOverdue(ctx context.Context, deadline time.Time) ([]domain.BookingRequest, error)
	ExpireSiblings(ctx context.Context, bookingID, keepID int64) error
	GetPendingByBooking(ctx context.Context, bookingID int64) (*domain.BookingRequest, error)
	ListPendingByVendor(ctx context.Context, vendorID int64) ([]domain.BookingRequest, error)
	ListByBooking(ctx context.Context, bookingID int64) ([]domain.BookingRequest, error)
}

type PGRequestRepository struct {
	db *pgxpool.Pool
}

func NewRequestRepository(db *pgxpool.Pool) RequestRepository {
	return &PGRequestRepository{db: db}
}

const requestColumns = `id, booking_id, vendor_id, status, sequence_number, sent_at, expires_at, responded_at, created_at, updated_at`

// CreatePending issues a new offer row. The booking row is locked for the
// duration of the transaction so that the status check, the
// pending-existence check, the sequence number assignment and the insert
// cannot interleave with a concurrent issue, cancel or match for the same
// booking. The partial unique index on (booking_id) WHERE status='PENDING'
// backstops the single-flight invariant.
func (r *PGRequestRepository) CreatePending(ctx context.Context, req *domain.BookingRequest) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var bookingStatus string
	if err := tx.QueryRow(ctx, `SELECT status FROM bookings WHERE id=$1 FOR UPDATE`, req.BookingID).Scan(&bookingStatus); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return err
	}
	if bookingStatus != string(domain.BookingStatusSearching) {
		// The booking left SEARCHING between the caller's check and this
		// transaction; no new offer may be issued for it.
		return domain.ErrConflict
	}

	var hasPending bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM booking_requests WHERE booking_id=$1 AND status=$2)`, req.BookingID, domain.RequestStatusPending).Scan(&hasPending); err != nil {
		return err
	}
	if hasPending {
		return domain.ErrConflict
	}

	if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(sequence_number), 0) + 1 FROM booking_requests WHERE booking_id=$1`, req.BookingID).Scan(&req.SequenceNumber); err != nil {
		return err
	}

	req.Status = domain.RequestStatusPending
	if err := tx.QueryRow(ctx, `INSERT INTO booking_requests (booking_id, vendor_id, status, sequence_number, sent_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`, req.BookingID, req.VendorID, req.Status, req.SequenceNumber, req.SentAt, req.ExpiresAt).
		Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *PGRequestRepository) GetByID(ctx context.Context, id int64) (*domain.BookingRequest, error) {
	row := r.db.QueryRow(ctx, `SELECT `+requestColumns+` FROM booking_requests WHERE id=$1`, id)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return req, nil
}

// MarkResponded resolves a pending offer by vendor action. The status and
// vendor guards in the WHERE clause make this first-committer-wins: a
// concurrent sweep or a stale retry updates zero rows and the follow-up
// lookup classifies the failure.
func (r *PGRequestRepository) MarkResponded(ctx context.Context, id, vendorID int64, status domain.RequestStatus, respondedAt time.Time) (*domain.BookingRequest, error) {
	row := r.db.QueryRow(ctx, `UPDATE booking_requests SET status=$1, responded_at=$2, updated_at=now()
		WHERE id=$3 AND vendor_id=$4 AND status=$5
		RETURNING `+requestColumns, status, respondedAt, id, vendorID, domain.RequestStatusPending)
	req, err := scanRequest(row)
	if err == nil {
		return req, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	current, getErr := r.GetByID(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if current.VendorID != vendorID {
		return nil, domain.ErrInvalidVendor
	}
	return nil, domain.ErrNotPending
}

func (r *PGRequestRepository) MarkExpired(ctx context.Context, id int64) (*domain.BookingRequest, error) {
	row := r.db.QueryRow(ctx, `UPDATE booking_requests SET status=$1, updated_at=now()
		WHERE id=$2 AND status=$3
		RETURNING `+requestColumns, domain.RequestStatusExpired, id, domain.RequestStatusPending)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotPending
		}
		return nil, err
	}
	return req, nil
}

func (r *PGRequestRepository) ExpireOverdue(ctx context.Context, deadline time.Time) ([]domain.BookingRequest, error) {
	rows, err := r.db.Query(ctx, `UPDATE booking_requests SET status=$1, updated_at=now()
		WHERE status=$2 AND expires_at <= $3
		RETURNING `+requestColumns, domain.RequestStatusExpired, domain.RequestStatusPending, deadline)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRequests(rows)
}

// ExpireSiblings force-expires any pending offer on the booking other than
// keepID. With the single-flight invariant intact this updates nothing; it
// exists to clean up should two offers ever end up pending concurrently.
func (r *PGRequestRepository) ExpireSiblings(ctx context.Context, bookingID, keepID int64) error {
	_, err := r.db.Exec(ctx, `UPDATE booking_requests SET status=$1, updated_at=now()
		WHERE booking_id=$2 AND id <> $3 AND status=$4`,
		domain.RequestStatusExpired, bookingID, keepID, domain.RequestStatusPending)
	return err
}

func (r *PGRequestRepository) GetPendingByBooking(ctx context.Context, bookingID int64) (*domain.BookingRequest, error) {
	row := r.db.QueryRow(ctx, `SELECT `+requestColumns+` FROM booking_requests WHERE booking_id=$1 AND status=$2`, bookingID, domain.RequestStatusPending)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return req, nil
}

func (r *PGRequestRepository) ListPendingByVendor(ctx context.Context, vendorID int64) ([]domain.BookingRequest, error) {
	rows, err := r.db.Query(ctx, `SELECT `+requestColumns+` FROM booking_requests WHERE vendor_id=$1 AND status=$2 ORDER BY sent_at`, vendorID, domain.RequestStatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRequests(rows)
}

func (r *PGRequestRepository) ListByBooking(ctx context.Context, bookingID int64) ([]domain.BookingRequest, error) {
	rows, err := r.db.Query(ctx, `SELECT `+requestColumns+` FROM booking_requests WHERE booking_id=$1 ORDER BY sequence_number`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRequests(rows)
}

func scanRequest(row pgx.Row) (*domain.BookingRequest, error) {
	var req domain.BookingRequest
	if err := row.Scan(&req.ID, &req.BookingID, &req.VendorID, &req.Status, &req.SequenceNumber, &req.SentAt, &req.ExpiresAt, &req.RespondedAt, &req.CreatedAt, &req.UpdatedAt); err != nil {
		return nil, err
	}
	return &req, nil
}

func scanRequests(rows pgx.Rows) ([]domain.BookingRequest, error) {
	var out []domain.BookingRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *req)
	}
	return out, rows.Err()
}

var _ RequestRepository = (*PGRequestRepository)(nil)
