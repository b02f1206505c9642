package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loadmatch/dispatcher/internal/domain"
	"github.com/loadmatch/dispatcher/internal/service/dispatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockDispatchUseCase is a mock implementation of dispatch.DispatchUseCase
type MockDispatchUseCase struct {
	mock.Mock
}

func (m *MockDispatchUseCase) CreateBooking(ctx context.Context, input dispatch.CreateBookingInput) (*domain.Booking, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockDispatchUseCase) Dispatch(ctx context.Context, bookingID int64) error {
	args := m.Called(ctx, bookingID)
	return args.Error(0)
}

func (m *MockDispatchUseCase) AcceptRequest(ctx context.Context, requestID, vendorID int64) (*domain.Booking, error) {
	args := m.Called(ctx, requestID, vendorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockDispatchUseCase) RejectRequest(ctx context.Context, requestID, vendorID int64) (*domain.BookingRequest, error) {
	args := m.Called(ctx, requestID, vendorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BookingRequest), args.Error(1)
}

func (m *MockDispatchUseCase) CancelBooking(ctx context.Context, reference string) (*domain.Booking, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockDispatchUseCase) CompleteBooking(ctx context.Context, reference string, vendorID int64) (*domain.Booking, error) {
	args := m.Called(ctx, reference, vendorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockDispatchUseCase) PendingForVendor(ctx context.Context, vendorID int64) ([]domain.BookingRequest, error) {
	args := m.Called(ctx, vendorID)
	return args.Get(0).([]domain.BookingRequest), args.Error(1)
}

func (m *MockDispatchUseCase) History(ctx context.Context, vendorID int64, filter dispatch.HistoryFilter) ([]domain.Booking, error) {
	args := m.Called(ctx, vendorID, filter)
	return args.Get(0).([]domain.Booking), args.Error(1)
}

func (m *MockDispatchUseCase) Track(ctx context.Context, reference string) (*dispatch.TrackInfo, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dispatch.TrackInfo), args.Error(1)
}

func (m *MockDispatchUseCase) SweepExpired(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func TestDispatchHandler_createBooking(t *testing.T) {
	mockService := &MockDispatchUseCase{}
	handler := NewDispatchHandler(mockService)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	input := dispatch.CreateBookingInput{
		PickupAddress:  "Dock 4",
		DropoffAddress: "Warehouse 9",
		VehicleType:    "flatbed",
	}
	body, _ := json.Marshal(input)
	c.Request = httptest.NewRequest("POST", "/api/bookings", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	booking := &domain.Booking{
		ID:             1,
		Reference:      "ref-123",
		PickupAddress:  "Dock 4",
		DropoffAddress: "Warehouse 9",
		VehicleType:    "flatbed",
		Status:         domain.BookingStatusSearching,
	}
	mockService.On("CreateBooking", c.Request.Context(), input).Return(booking, nil)

	handler.createBooking(c)

	assert.Equal(t, http.StatusCreated, w.Code)

	var response bookingResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, "ref-123", response.Reference)
	assert.Equal(t, string(domain.BookingStatusSearching), response.Status)

	mockService.AssertExpectations(t)
}

func TestDispatchHandler_createBooking_MissingFields(t *testing.T) {
	mockService := &MockDispatchUseCase{}
	handler := NewDispatchHandler(mockService)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	c.Request = httptest.NewRequest("POST", "/api/bookings", bytes.NewReader([]byte(`{"pickup_address":"Dock 4"}`)))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.createBooking(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockService.AssertNotCalled(t, "CreateBooking", mock.Anything, mock.Anything)
}

func TestDispatchHandler_acceptRequest(t *testing.T) {
	mockService := &MockDispatchUseCase{}
	handler := NewDispatchHandler(mockService)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	c.Params = gin.Params{{Key: "id", Value: "100"}}
	c.Request = httptest.NewRequest("POST", "/api/booking-requests/100/accept", nil)
	c.Set(vendorIDKey, int64(7))

	vendor7 := int64(7)
	booking := &domain.Booking{
		ID:              1,
		Reference:       "ref-123",
		Status:          domain.BookingStatusMatched,
		MatchedVendorID: &vendor7,
	}
	mockService.On("AcceptRequest", c.Request.Context(), int64(100), int64(7)).Return(booking, nil)

	handler.acceptRequest(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var response bookingResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, string(domain.BookingStatusMatched), response.Status)

	mockService.AssertExpectations(t)
}

func TestDispatchHandler_acceptRequest_NotPending(t *testing.T) {
	mockService := &MockDispatchUseCase{}
	handler := NewDispatchHandler(mockService)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	c.Params = gin.Params{{Key: "id", Value: "100"}}
	c.Request = httptest.NewRequest("POST", "/api/booking-requests/100/accept", nil)
	c.Set(vendorIDKey, int64(7))

	mockService.On("AcceptRequest", c.Request.Context(), int64(100), int64(7)).Return(nil, domain.ErrNotPending)

	handler.acceptRequest(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "offer no longer available")
}

func TestDispatchHandler_rejectRequest(t *testing.T) {
	mockService := &MockDispatchUseCase{}
	handler := NewDispatchHandler(mockService)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	c.Params = gin.Params{{Key: "id", Value: "100"}}
	c.Request = httptest.NewRequest("POST", "/api/booking-requests/100/reject", nil)
	c.Set(vendorIDKey, int64(7))

	now := time.Now()
	req := &domain.BookingRequest{
		ID:             100,
		BookingID:      1,
		VendorID:       7,
		Status:         domain.RequestStatusRejected,
		SequenceNumber: 2,
		SentAt:         now.Add(-time.Minute),
		ExpiresAt:      now.Add(time.Minute),
		RespondedAt:    &now,
	}
	mockService.On("RejectRequest", c.Request.Context(), int64(100), int64(7)).Return(req, nil)

	handler.rejectRequest(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var response requestResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, string(domain.RequestStatusRejected), response.Status)
	assert.Equal(t, 2, response.SequenceNumber)
}

func TestDispatchHandler_rejectRequest_BadID(t *testing.T) {
	mockService := &MockDispatchUseCase{}
	handler := NewDispatchHandler(mockService)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	c.Params = gin.Params{{Key: "id", Value: "not-a-number"}}
	c.Request = httptest.NewRequest("POST", "/api/booking-requests/not-a-number/reject", nil)

	handler.rejectRequest(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockService.AssertNotCalled(t, "RejectRequest", mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatchHandler_pendingRequests(t *testing.T) {
	mockService := &MockDispatchUseCase{}
	handler := NewDispatchHandler(mockService)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	c.Request = httptest.NewRequest("GET", "/api/vendor/pending-requests", nil)
	c.Set(vendorIDKey, int64(7))

	now := time.Now()
	pending := []domain.BookingRequest{
		{ID: 100, BookingID: 1, VendorID: 7, Status: domain.RequestStatusPending, SequenceNumber: 1, SentAt: now, ExpiresAt: now.Add(90 * time.Second)},
	}
	mockService.On("PendingForVendor", c.Request.Context(), int64(7)).Return(pending, nil)

	handler.pendingRequests(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var response []requestResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Len(t, response, 1)
	assert.Equal(t, int64(100), response[0].ID)
}

func TestDispatchHandler_track(t *testing.T) {
	mockService := &MockDispatchUseCase{}
	handler := NewDispatchHandler(mockService)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	c.Params = gin.Params{{Key: "reference", Value: "ref-123"}}
	c.Request = httptest.NewRequest("GET", "/api/booking-track/ref-123", nil)

	vendor7 := int64(7)
	mockService.On("Track", c.Request.Context(), "ref-123").Return(&dispatch.TrackInfo{
		Reference:        "ref-123",
		Status:           domain.BookingStatusSearching,
		OffersIssued:     2,
		CurrentVendorID:  &vendor7,
		CurrentSequence:  2,
		ElapsedSeconds:   30,
		RemainingSeconds: 60,
	}, nil)

	handler.track(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var response trackResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, 2, response.OffersIssued)
	assert.Equal(t, 60, response.RemainingSeconds)
}

func TestDispatchHandler_track_NotFound(t *testing.T) {
	mockService := &MockDispatchUseCase{}
	handler := NewDispatchHandler(mockService)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	c.Params = gin.Params{{Key: "reference", Value: "missing"}}
	c.Request = httptest.NewRequest("GET", "/api/booking-track/missing", nil)

	mockService.On("Track", c.Request.Context(), "missing").Return(nil, domain.ErrNotFound)

	handler.track(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
