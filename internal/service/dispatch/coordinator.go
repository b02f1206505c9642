package dispatch

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/loadmatch/dispatcher/internal/domain"
	"github.com/loadmatch/dispatcher/internal/kafka"
	"github.com/loadmatch/dispatcher/internal/repository"
	"github.com/loadmatch/dispatcher/internal/service/ranker"
	"go.uber.org/zap"
)

type HistoryFilter string

const (
	HistoryAll       HistoryFilter = "all"
	HistoryActive    HistoryFilter = "active"
	HistoryCompleted HistoryFilter = "completed"
)

type DispatchUseCase interface {
	CreateBooking(ctx context.Context, input CreateBookingInput) (*domain.Booking, error)
	Dispatch(ctx context.Context, bookingID int64) error
	AcceptRequest(ctx context.Context, requestID, vendorID int64) (*domain.Booking, error)
	RejectRequest(ctx context.Context, requestID, vendorID int64) (*domain.BookingRequest, error)
	CancelBooking(ctx context.Context, reference string) (*domain.Booking, error)
	CompleteBooking(ctx context.Context, reference string, vendorID int64) (*domain.Booking, error)
	PendingForVendor(ctx context.Context, vendorID int64) ([]domain.BookingRequest, error)
	History(ctx context.Context, vendorID int64, filter HistoryFilter) ([]domain.Booking, error)
	Track(ctx context.Context, reference string) (*TrackInfo, error)
	SweepExpired(ctx context.Context) (int, error)
}

// CandidateQueue stashes the ranked remainder of a booking's wave so that
// advancement resumes where it left off instead of re-ranking, including
// across the API server / worker process boundary.
type CandidateQueue interface {
	GetQueue(ctx context.Context, bookingID int64) ([]int64, error)
	SetQueue(ctx context.Context, bookingID int64, vendorIDs []int64) error
	DropQueue(ctx context.Context, bookingID int64) error
}

type CreateBookingInput struct {
	PickupAddress  string  `json:"pickup_address"`
	PickupLat      float64 `json:"pickup_lat"`
	PickupLng      float64 `json:"pickup_lng"`
	DropoffAddress string  `json:"dropoff_address"`
	DropoffLat     float64 `json:"dropoff_lat"`
	DropoffLng     float64 `json:"dropoff_lng"`
	VehicleType    string  `json:"vehicle_type"`
}

type TrackInfo struct {
	Reference        string
	Status           domain.BookingStatus
	OffersIssued     int
	CurrentVendorID  *int64
	CurrentSequence  int
	OfferSentAt      *time.Time
	OfferExpiresAt   *time.Time
	ElapsedSeconds   int
	RemainingSeconds int
}

type Coordinator struct {
	sequencer     OfferSequencer
	bookings      repository.BookingRepository
	requests      repository.RequestRepository
	vendors       repository.VendorRepository
	queue         CandidateQueue
	strategy      ranker.Strategy
	producer      Producer
	dispatchTopic string
	retryAttempts int
	retryBackoff  time.Duration
	log           *zap.Logger
}

type CoordinatorOption func(*Coordinator)

func WithRetry(attempts int, backoff time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.retryAttempts = attempts
		c.retryBackoff = backoff
	}
}

func WithStrategy(strategy ranker.Strategy) CoordinatorOption {
	return func(c *Coordinator) {
		c.strategy = strategy
	}
}

func NewCoordinator(
	sequencer OfferSequencer,
	bookings repository.BookingRepository,
	requests repository.RequestRepository,
	vendors repository.VendorRepository,
	queue CandidateQueue,
	producer Producer,
	dispatchTopic string,
	log *zap.Logger,
	opts ...CoordinatorOption,
) *Coordinator {
	c := &Coordinator{
		sequencer:     sequencer,
		bookings:      bookings,
		requests:      requests,
		vendors:       vendors,
		queue:         queue,
		strategy:      ranker.DefaultStrategy(),
		producer:      producer,
		dispatchTopic: dispatchTopic,
		retryAttempts: 3,
		retryBackoff:  200 * time.Millisecond,
		log:           log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) CreateBooking(ctx context.Context, input CreateBookingInput) (*domain.Booking, error) {
	if input.PickupAddress == "" || input.DropoffAddress == "" {
		return nil, errors.New("pickup and dropoff addresses are required")
	}
	if input.VehicleType == "" {
		return nil, errors.New("vehicle type is required")
	}

	booking := &domain.Booking{
		Reference:      uuid.NewString(),
		PickupAddress:  input.PickupAddress,
		PickupLat:      input.PickupLat,
		PickupLng:      input.PickupLng,
		DropoffAddress: input.DropoffAddress,
		DropoffLat:     input.DropoffLat,
		DropoffLng:     input.DropoffLng,
		VehicleType:    input.VehicleType,
	}
	if err := c.bookings.Create(ctx, booking); err != nil {
		return nil, err
	}

	if err := c.Dispatch(ctx, booking.ID); err != nil && !errors.Is(err, domain.ErrExhausted) {
		return nil, err
	}

	// Re-read so the caller sees UNMATCHED immediately when the pool was
	// empty.
	return c.bookings.GetByID(ctx, booking.ID)
}

// Dispatch starts (or restarts) the matching wave for a SEARCHING booking:
// rank the eligible pool, stash the remainder, offer to the head.
func (c *Coordinator) Dispatch(ctx context.Context, bookingID int64) error {
	booking, err := c.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return err
	}
	if booking.Status != domain.BookingStatusSearching {
		return nil
	}

	seq, err := c.rank(ctx, booking)
	if err != nil {
		return err
	}
	return c.advance(ctx, booking, seq)
}

func (c *Coordinator) rank(ctx context.Context, booking *domain.Booking) (*ranker.Sequence, error) {
	pool, err := c.vendors.ListEligible(ctx, booking.ID, booking.VehicleType)
	if err != nil {
		return nil, err
	}
	return ranker.Rank(booking, pool, c.strategy), nil
}

// advance pulls candidates until one offer sticks. Ineligible vendors are
// skipped, a live offer elsewhere (ErrConflict) makes this call a no-op, and
// an exhausted sequence settles the booking as UNMATCHED.
func (c *Coordinator) advance(ctx context.Context, booking *domain.Booking, seq *ranker.Sequence) error {
	for {
		vendorID, ok := seq.Next()
		if !ok {
			return c.markUnmatched(ctx, booking)
		}

		var issueErr error
		retryErr := c.withRetry(ctx, func() error {
			_, issueErr = c.sequencer.Issue(ctx, booking, vendorID)
			return issueErr
		})

		switch {
		case retryErr == nil:
			if err := c.queue.SetQueue(ctx, booking.ID, seq.Remaining()); err != nil {
				c.log.Warn("failed to stash candidate queue", zap.Int64("booking_id", booking.ID), zap.Error(err))
			}
			return nil
		case errors.Is(retryErr, domain.ErrInvalidVendor):
			continue
		case errors.Is(retryErr, domain.ErrConflict):
			return nil
		default:
			return retryErr
		}
	}
}

// advanceBooking resumes the stashed wave after a rejection or expiry. A
// missing queue (redis restart, TTL) falls back to re-ranking the current
// pool; already-offered vendors are excluded by the eligibility query.
func (c *Coordinator) advanceBooking(ctx context.Context, bookingID int64) error {
	booking, err := c.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return err
	}
	if booking.Status != domain.BookingStatusSearching {
		return nil
	}

	remainder, err := c.queue.GetQueue(ctx, bookingID)
	if err != nil {
		c.log.Warn("failed to load candidate queue", zap.Int64("booking_id", bookingID), zap.Error(err))
		remainder = nil
	}

	var seq *ranker.Sequence
	if len(remainder) > 0 {
		seq = ranker.Resume(remainder)
	} else {
		seq, err = c.rank(ctx, booking)
		if err != nil {
			return err
		}
	}
	return c.advance(ctx, booking, seq)
}

func (c *Coordinator) markUnmatched(ctx context.Context, booking *domain.Booking) error {
	updated, err := c.bookings.SetStatus(ctx, booking.ID, domain.BookingStatusSearching, domain.BookingStatusUnmatched)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Raced with an accept or cancel; the booking settled already.
			return nil
		}
		return err
	}
	if err := c.queue.DropQueue(ctx, booking.ID); err != nil {
		c.log.Warn("failed to drop candidate queue", zap.Int64("booking_id", booking.ID), zap.Error(err))
	}

	c.publishBookingEvent(ctx, kafka.EventBookingUnmatched, updated)
	c.log.Info("booking unmatched", zap.Int64("booking_id", booking.ID), zap.String("reference", booking.Reference))
	return domain.ErrExhausted
}

func (c *Coordinator) AcceptRequest(ctx context.Context, requestID, vendorID int64) (*domain.Booking, error) {
	booking, err := c.sequencer.Accept(ctx, requestID, vendorID)
	if err != nil {
		return nil, err
	}
	if err := c.queue.DropQueue(ctx, booking.ID); err != nil {
		c.log.Warn("failed to drop candidate queue", zap.Int64("booking_id", booking.ID), zap.Error(err))
	}
	return booking, nil
}

func (c *Coordinator) RejectRequest(ctx context.Context, requestID, vendorID int64) (*domain.BookingRequest, error) {
	req, err := c.sequencer.Reject(ctx, requestID, vendorID)
	if err != nil {
		return nil, err
	}

	if err := c.advanceBooking(ctx, req.BookingID); err != nil && !errors.Is(err, domain.ErrExhausted) {
		c.log.Error("failed to advance after rejection", zap.Int64("booking_id", req.BookingID), zap.Error(err))
	}
	return req, nil
}

func (c *Coordinator) CancelBooking(ctx context.Context, reference string) (*domain.Booking, error) {
	booking, err := c.bookings.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if booking.Status == domain.BookingStatusCancelled {
		return booking, nil
	}

	updated, err := c.bookings.SetStatus(ctx, booking.ID, domain.BookingStatusSearching, domain.BookingStatusCancelled)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrConflict
		}
		return nil, err
	}

	if pending, err := c.requests.GetPendingByBooking(ctx, booking.ID); err == nil {
		if _, err := c.sequencer.Expire(ctx, pending.ID); err != nil && !errors.Is(err, domain.ErrNotPending) {
			c.log.Warn("failed to expire live offer on cancel", zap.Int64("booking_id", booking.ID), zap.Error(err))
		}
	}
	if err := c.queue.DropQueue(ctx, booking.ID); err != nil {
		c.log.Warn("failed to drop candidate queue", zap.Int64("booking_id", booking.ID), zap.Error(err))
	}

	c.publishBookingEvent(ctx, kafka.EventBookingCancelled, updated)
	return updated, nil
}

func (c *Coordinator) CompleteBooking(ctx context.Context, reference string, vendorID int64) (*domain.Booking, error) {
	booking, err := c.bookings.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if booking.MatchedVendorID == nil || *booking.MatchedVendorID != vendorID {
		return nil, domain.ErrInvalidVendor
	}

	updated, err := c.bookings.SetStatus(ctx, booking.ID, domain.BookingStatusMatched, domain.BookingStatusCompleted)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrConflict
		}
		return nil, err
	}

	c.publishBookingEvent(ctx, kafka.EventBookingCompleted, updated)
	return updated, nil
}

func (c *Coordinator) PendingForVendor(ctx context.Context, vendorID int64) ([]domain.BookingRequest, error) {
	return c.requests.ListPendingByVendor(ctx, vendorID)
}

func (c *Coordinator) History(ctx context.Context, vendorID int64, filter HistoryFilter) ([]domain.Booking, error) {
	// History is scoped to the matched vendor; cancelled bookings never
	// acquire one, so only MATCHED and COMPLETED can appear.
	var statuses []domain.BookingStatus
	switch filter {
	case HistoryActive:
		statuses = []domain.BookingStatus{domain.BookingStatusMatched}
	case HistoryCompleted:
		statuses = []domain.BookingStatus{domain.BookingStatusCompleted}
	default:
		statuses = []domain.BookingStatus{domain.BookingStatusMatched, domain.BookingStatusCompleted}
	}
	return c.bookings.ListByVendor(ctx, vendorID, statuses)
}

func (c *Coordinator) Track(ctx context.Context, reference string) (*TrackInfo, error) {
	booking, err := c.bookings.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}

	requests, err := c.requests.ListByBooking(ctx, booking.ID)
	if err != nil {
		return nil, err
	}

	info := &TrackInfo{
		Reference:    booking.Reference,
		Status:       booking.Status,
		OffersIssued: len(requests),
	}
	now := time.Now()
	for i := range requests {
		req := &requests[i]
		if !req.IsPending() {
			continue
		}
		vendorID := req.VendorID
		sentAt := req.SentAt
		expiresAt := req.ExpiresAt
		info.CurrentVendorID = &vendorID
		info.CurrentSequence = req.SequenceNumber
		info.OfferSentAt = &sentAt
		info.OfferExpiresAt = &expiresAt
		info.ElapsedSeconds = int(now.Sub(sentAt).Seconds())
		if remaining := expiresAt.Sub(now); remaining > 0 {
			info.RemainingSeconds = int(remaining.Seconds())
		}
		break
	}
	return info, nil
}

// SweepExpired batch-expires overdue offers and advances every affected
// booking. Safe to call more often than necessary and tolerant of missed
// ticks: a late sweep still claims every overdue row.
func (c *Coordinator) SweepExpired(ctx context.Context) (int, error) {
	expired, err := c.sequencer.ExpireOverdue(ctx, time.Now())
	if err != nil {
		return 0, err
	}

	for i := range expired {
		req := &expired[i]
		if err := c.advanceBooking(ctx, req.BookingID); err != nil && !errors.Is(err, domain.ErrExhausted) {
			c.log.Error("failed to advance after expiry", zap.Int64("booking_id", req.BookingID), zap.Error(err))
		}
	}
	return len(expired), nil
}

// withRetry retries infrastructure failures with linear backoff. Domain
// preconditions are surfaced immediately: retrying those cannot help.
func (c *Coordinator) withRetry(ctx context.Context, op func() error) error {
	var err error
	for i := 0; i < c.retryAttempts; i++ {
		if err = op(); err == nil {
			return nil
		}
		if errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrInvalidVendor) ||
			errors.Is(err, domain.ErrNotPending) || errors.Is(err, domain.ErrNotFound) {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(time.Duration(i+1) * c.retryBackoff):
		}
	}
	return err
}

func (c *Coordinator) publishBookingEvent(ctx context.Context, eventType string, booking *domain.Booking) {
	if c.producer == nil || c.dispatchTopic == "" {
		return
	}
	event := kafka.DispatchEvent{
		Type:             eventType,
		BookingID:        booking.ID,
		BookingReference: booking.Reference,
		Status:           string(booking.Status),
	}
	if booking.MatchedVendorID != nil {
		event.VendorID = *booking.MatchedVendorID
	}
	key := booking.Reference
	if key == "" {
		key = "booking-" + strconv.FormatInt(booking.ID, 10)
	}
	if err := c.producer.Publish(ctx, c.dispatchTopic, key, event); err != nil {
		c.log.Warn("failed to publish booking event", zap.String("type", eventType), zap.Error(err))
	}
}

var _ DispatchUseCase = (*Coordinator)(nil)
