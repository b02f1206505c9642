package domain

import "time"

type Vendor struct {
	ID          int64
	Name        string
	Phone       string
	VehicleType string
	Lat         float64
	Lng         float64
	Rating      float64
	Available   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
