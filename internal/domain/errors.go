package domain

import "errors"

var (
	// ErrConflict: the booking already has a live (pending) offer.
	ErrConflict = errors.New("booking already has a pending request")
	// ErrNotPending: the request already left PENDING; the attempted
	// mutation lost the race and must be treated as a no-op.
	ErrNotPending    = errors.New("request is not pending")
	ErrInvalidVendor = errors.New("vendor is not eligible")
	ErrNotFound      = errors.New("not found")
	// ErrExhausted: the ranked candidate sequence ran out without a match.
	ErrExhausted = errors.New("no remaining candidates")
)
