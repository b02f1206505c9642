package domain

import "time"

type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "PENDING"
	RequestStatusAccepted RequestStatus = "ACCEPTED"
	RequestStatusRejected RequestStatus = "REJECTED"
	RequestStatusExpired  RequestStatus = "EXPIRED"
)

// BookingRequest is one vendor-directed offer for a booking. Rows are
// append-only: once the status leaves PENDING it is terminal and a new row
// with the next sequence number is created for the next candidate.
type BookingRequest struct {
	ID             int64
	BookingID      int64
	VendorID       int64
	Status         RequestStatus
	SequenceNumber int
	SentAt         time.Time
	ExpiresAt      time.Time
	RespondedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (r *BookingRequest) IsPending() bool {
	return r.Status == RequestStatusPending
}

func (r *BookingRequest) IsOverdue(now time.Time) bool {
	return r.Status == RequestStatusPending && !r.ExpiresAt.After(now)
}
