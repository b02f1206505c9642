package dispatch

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/loadmatch/dispatcher/internal/domain"
	"github.com/loadmatch/dispatcher/internal/kafka"
	"github.com/loadmatch/dispatcher/internal/repository"
	"go.uber.org/zap"
)

// OfferSequencer owns the per-request state machine: PENDING is the only
// live state and every exit from it is terminal.
type OfferSequencer interface {
	Issue(ctx context.Context, booking *domain.Booking, vendorID int64) (*domain.BookingRequest, error)
	Accept(ctx context.Context, requestID, vendorID int64) (*domain.Booking, error)
	Reject(ctx context.Context, requestID, vendorID int64) (*domain.BookingRequest, error)
	Expire(ctx context.Context, requestID int64) (*domain.BookingRequest, error)
	ExpireOverdue(ctx context.Context, now time.Time) ([]domain.BookingRequest, error)
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
	PublishWithRetry(ctx context.Context, topic, key string, value interface{}, maxRetries int) error
}

type Sequencer struct {
	requests           repository.RequestRepository
	bookings           repository.BookingRepository
	vendors            repository.VendorRepository
	producer           Producer
	dispatchTopic      string
	notificationsTopic string
	offerTTL           time.Duration
	log                *zap.Logger
}

type SequencerOption func(*Sequencer)

func WithNotificationsTopic(topic string) SequencerOption {
	return func(s *Sequencer) {
		s.notificationsTopic = topic
	}
}

func NewSequencer(
	requests repository.RequestRepository,
	bookings repository.BookingRepository,
	vendors repository.VendorRepository,
	producer Producer,
	dispatchTopic string,
	offerTTL time.Duration,
	log *zap.Logger,
	opts ...SequencerOption,
) *Sequencer {
	s := &Sequencer{
		requests:      requests,
		bookings:      bookings,
		vendors:       vendors,
		producer:      producer,
		dispatchTopic: dispatchTopic,
		offerTTL:      offerTTL,
		log:           log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue creates the next offer for the booking. The repository enforces the
// single-flight invariant and assigns max(sequence_number)+1 in the same
// transaction; a live offer surfaces as ErrConflict.
func (s *Sequencer) Issue(ctx context.Context, booking *domain.Booking, vendorID int64) (*domain.BookingRequest, error) {
	vendor, err := s.vendors.GetByID(ctx, vendorID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrInvalidVendor
		}
		return nil, err
	}
	if !vendor.Available || vendor.VehicleType != booking.VehicleType {
		return nil, domain.ErrInvalidVendor
	}

	now := time.Now()
	req := &domain.BookingRequest{
		BookingID: booking.ID,
		VendorID:  vendorID,
		Status:    domain.RequestStatusPending,
		SentAt:    now,
		ExpiresAt: now.Add(s.offerTTL),
	}
	if err := s.requests.CreatePending(ctx, req); err != nil {
		return nil, err
	}

	s.publish(ctx, kafka.EventOfferIssued, booking.Reference, req, true)
	s.log.Info("offer issued",
		zap.Int64("booking_id", booking.ID),
		zap.Int64("vendor_id", vendorID),
		zap.Int("sequence", req.SequenceNumber),
		zap.Time("expires_at", req.ExpiresAt),
	)
	return req, nil
}

// Accept resolves the offer in the vendor's favour and matches the booking.
// A late accept on a request that already expired or was superseded fails
// with ErrNotPending and changes nothing.
func (s *Sequencer) Accept(ctx context.Context, requestID, vendorID int64) (*domain.Booking, error) {
	req, err := s.requests.MarkResponded(ctx, requestID, vendorID, domain.RequestStatusAccepted, time.Now())
	if err != nil {
		return nil, err
	}

	booking, err := s.bookings.SetMatched(ctx, req.BookingID, vendorID)
	if err != nil {
		// The request committed but the booking already left SEARCHING;
		// only possible when the single-flight invariant was violated
		// upstream.
		s.log.Error("accepted request on non-searching booking",
			zap.Int64("request_id", requestID),
			zap.Int64("booking_id", req.BookingID),
			zap.Error(err),
		)
		return nil, err
	}

	if err := s.requests.ExpireSiblings(ctx, req.BookingID, req.ID); err != nil {
		s.log.Warn("failed to expire sibling offers", zap.Int64("booking_id", req.BookingID), zap.Error(err))
	}

	s.publish(ctx, kafka.EventOfferAccepted, booking.Reference, req, false)
	s.publish(ctx, kafka.EventBookingMatched, booking.Reference, req, false)
	return booking, nil
}

// Reject resolves the offer against the vendor; the coordinator advances to
// the next candidate.
func (s *Sequencer) Reject(ctx context.Context, requestID, vendorID int64) (*domain.BookingRequest, error) {
	req, err := s.requests.MarkResponded(ctx, requestID, vendorID, domain.RequestStatusRejected, time.Now())
	if err != nil {
		return nil, err
	}

	s.publish(ctx, kafka.EventOfferRejected, "", req, false)
	return req, nil
}

// Expire is the sweeper's single-row path. Racing against a vendor response
// is resolved by the conditional update: the loser gets ErrNotPending.
func (s *Sequencer) Expire(ctx context.Context, requestID int64) (*domain.BookingRequest, error) {
	req, err := s.requests.MarkExpired(ctx, requestID)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, kafka.EventOfferExpired, "", req, false)
	return req, nil
}

func (s *Sequencer) ExpireOverdue(ctx context.Context, now time.Time) ([]domain.BookingRequest, error) {
	expired, err := s.requests.ExpireOverdue(ctx, now)
	if err != nil {
		return nil, err
	}
	for i := range expired {
		s.publish(ctx, kafka.EventOfferExpired, "", &expired[i], false)
	}
	return expired, nil
}

// An unreached vendor silently burns the whole offer TTL, so notification
// publishes retry before giving up.
const notifyRetries = 3

// publish emits the dispatch event; notify additionally fans it out to the
// vendor notification topic. Event delivery is best-effort and never fails
// the mutation that produced it.
func (s *Sequencer) publish(ctx context.Context, eventType, reference string, req *domain.BookingRequest, notify bool) {
	if s.producer == nil || s.dispatchTopic == "" {
		return
	}
	event := kafka.DispatchEvent{
		Type:             eventType,
		BookingID:        req.BookingID,
		BookingReference: reference,
		RequestID:        req.ID,
		VendorID:         req.VendorID,
		SequenceNumber:   req.SequenceNumber,
		Status:           string(req.Status),
		ExpiresAt:        req.ExpiresAt,
	}
	key := reference
	if key == "" {
		key = "booking-" + strconv.FormatInt(req.BookingID, 10)
	}
	if err := s.producer.Publish(ctx, s.dispatchTopic, key, event); err != nil {
		s.log.Warn("failed to publish dispatch event", zap.String("type", eventType), zap.Error(err))
	}
	if notify && s.notificationsTopic != "" {
		if err := s.producer.PublishWithRetry(ctx, s.notificationsTopic, key, event, notifyRetries); err != nil {
			s.log.Warn("failed to publish vendor notification", zap.String("type", eventType), zap.Error(err))
		}
	}
}

var _ OfferSequencer = (*Sequencer)(nil)
