package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loadmatch/dispatcher/internal/domain"
	"github.com/loadmatch/dispatcher/internal/service/dispatch"
)

type DispatchHandler struct {
	service dispatch.DispatchUseCase
}

func NewDispatchHandler(service dispatch.DispatchUseCase) *DispatchHandler {
	return &DispatchHandler{service: service}
}

type createBookingRequest struct {
	PickupAddress  string  `json:"pickup_address" binding:"required"`
	PickupLat      float64 `json:"pickup_lat"`
	PickupLng      float64 `json:"pickup_lng"`
	DropoffAddress string  `json:"dropoff_address" binding:"required"`
	DropoffLat     float64 `json:"dropoff_lat"`
	DropoffLng     float64 `json:"dropoff_lng"`
	VehicleType    string  `json:"vehicle_type" binding:"required"`
}

type bookingResponse struct {
	Reference       string `json:"reference"`
	Status          string `json:"status"`
	PickupAddress   string `json:"pickup_address"`
	DropoffAddress  string `json:"dropoff_address"`
	VehicleType     string `json:"vehicle_type"`
	MatchedVendorID *int64 `json:"matched_vendor_id,omitempty"`
	CreatedAt       string `json:"created_at"`
}

type requestResponse struct {
	ID             int64  `json:"id"`
	BookingID      int64  `json:"booking_id"`
	Status         string `json:"status"`
	SequenceNumber int    `json:"sequence_number"`
	SentAt         string `json:"sent_at"`
	ExpiresAt      string `json:"expires_at"`
}

type trackResponse struct {
	Reference        string `json:"reference"`
	Status           string `json:"status"`
	OffersIssued     int    `json:"offers_issued"`
	CurrentVendorID  *int64 `json:"current_vendor_id,omitempty"`
	CurrentSequence  int    `json:"current_sequence,omitempty"`
	OfferSentAt      string `json:"offer_sent_at,omitempty"`
	OfferExpiresAt   string `json:"offer_expires_at,omitempty"`
	ElapsedSeconds   int    `json:"elapsed_seconds"`
	RemainingSeconds int    `json:"remaining_seconds"`
}

func (h *DispatchHandler) Register(router *gin.RouterGroup, vendorAuth gin.HandlerFunc) {
	router.POST("/bookings", h.createBooking)
	router.POST("/bookings/:reference/cancel", h.cancelBooking)
	router.GET("/booking-track/:reference", h.track)

	vendor := router.Group("/")
	vendor.Use(vendorAuth)
	vendor.GET("/vendor/pending-requests", h.pendingRequests)
	vendor.POST("/booking-requests/:id/accept", h.acceptRequest)
	vendor.POST("/booking-requests/:id/reject", h.rejectRequest)
	vendor.GET("/vendor/booking-history", h.history(dispatch.HistoryAll))
	vendor.GET("/vendor/booking-history/active", h.history(dispatch.HistoryActive))
	vendor.GET("/vendor/booking-history/completed", h.history(dispatch.HistoryCompleted))
	vendor.POST("/bookings/:reference/complete", h.completeBooking)
}

func (h *DispatchHandler) createBooking(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	booking, err := h.service.CreateBooking(c.Request.Context(), dispatch.CreateBookingInput{
		PickupAddress:  req.PickupAddress,
		PickupLat:      req.PickupLat,
		PickupLng:      req.PickupLng,
		DropoffAddress: req.DropoffAddress,
		DropoffLat:     req.DropoffLat,
		DropoffLng:     req.DropoffLng,
		VehicleType:    req.VehicleType,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toBookingResponse(booking))
}

func (h *DispatchHandler) cancelBooking(c *gin.Context) {
	booking, err := h.service.CancelBooking(c.Request.Context(), c.Param("reference"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(booking))
}

func (h *DispatchHandler) track(c *gin.Context) {
	info, err := h.service.Track(c.Request.Context(), c.Param("reference"))
	if err != nil {
		respondError(c, err)
		return
	}

	resp := trackResponse{
		Reference:        info.Reference,
		Status:           string(info.Status),
		OffersIssued:     info.OffersIssued,
		CurrentVendorID:  info.CurrentVendorID,
		CurrentSequence:  info.CurrentSequence,
		ElapsedSeconds:   info.ElapsedSeconds,
		RemainingSeconds: info.RemainingSeconds,
	}
	if info.OfferSentAt != nil {
		resp.OfferSentAt = info.OfferSentAt.Format(time.RFC3339)
	}
	if info.OfferExpiresAt != nil {
		resp.OfferExpiresAt = info.OfferExpiresAt.Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *DispatchHandler) pendingRequests(c *gin.Context) {
	requests, err := h.service.PendingForVendor(c.Request.Context(), vendorID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]requestResponse, 0, len(requests))
	for i := range requests {
		out = append(out, toRequestResponse(&requests[i]))
	}
	c.JSON(http.StatusOK, out)
}

func (h *DispatchHandler) acceptRequest(c *gin.Context) {
	requestID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}

	booking, err := h.service.AcceptRequest(c.Request.Context(), requestID, vendorID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(booking))
}

func (h *DispatchHandler) rejectRequest(c *gin.Context) {
	requestID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}

	req, err := h.service.RejectRequest(c.Request.Context(), requestID, vendorID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRequestResponse(req))
}

func (h *DispatchHandler) history(filter dispatch.HistoryFilter) gin.HandlerFunc {
	return func(c *gin.Context) {
		bookings, err := h.service.History(c.Request.Context(), vendorID(c), filter)
		if err != nil {
			respondError(c, err)
			return
		}

		out := make([]bookingResponse, 0, len(bookings))
		for i := range bookings {
			out = append(out, toBookingResponse(&bookings[i]))
		}
		c.JSON(http.StatusOK, out)
	}
}

func (h *DispatchHandler) completeBooking(c *gin.Context) {
	booking, err := h.service.CompleteBooking(c.Request.Context(), c.Param("reference"), vendorID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(booking))
}

func toBookingResponse(b *domain.Booking) bookingResponse {
	return bookingResponse{
		Reference:       b.Reference,
		Status:          string(b.Status),
		PickupAddress:   b.PickupAddress,
		DropoffAddress:  b.DropoffAddress,
		VehicleType:     b.VehicleType,
		MatchedVendorID: b.MatchedVendorID,
		CreatedAt:       b.CreatedAt.Format(time.RFC3339),
	}
}

func toRequestResponse(r *domain.BookingRequest) requestResponse {
	return requestResponse{
		ID:             r.ID,
		BookingID:      r.BookingID,
		Status:         string(r.Status),
		SequenceNumber: r.SequenceNumber,
		SentAt:         r.SentAt.Format(time.RFC3339),
		ExpiresAt:      r.ExpiresAt.Format(time.RFC3339),
	}
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, domain.ErrNotPending):
		c.JSON(http.StatusConflict, gin.H{"error": "offer no longer available"})
	case errors.Is(err, domain.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidVendor):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
