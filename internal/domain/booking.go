package domain

import "time"

type BookingStatus string

const (
	BookingStatusSearching BookingStatus = "SEARCHING"
	BookingStatusMatched   BookingStatus = "MATCHED"
	BookingStatusUnmatched BookingStatus = "UNMATCHED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
	BookingStatusCompleted BookingStatus = "COMPLETED"
)

type Booking struct {
	ID              int64
	Reference       string
	PickupAddress   string
	PickupLat       float64
	PickupLng       float64
	DropoffAddress  string
	DropoffLat      float64
	DropoffLng      float64
	VehicleType     string
	Status          BookingStatus
	MatchedVendorID *int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
