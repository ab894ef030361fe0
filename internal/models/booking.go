package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Customer struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"required"`
}

type Booking struct {
	ID             int64               `json:"id"`
	Customer       Customer            `json:"customer"`
	Worker         string              `json:"worker,omitempty"`
	ServiceType    string              `json:"serviceType"`
	ServiceDate    Date                `json:"serviceDate"`
	ServiceTime    TimeSlot            `json:"serviceTime"`
	ServiceAddress string              `json:"serviceAddress"`
	Status         Status              `json:"status"`
	Price          decimal.NullDecimal `json:"price"`
	CreatedAt      time.Time           `json:"createdAt"`
	UpdatedAt      time.Time           `json:"updatedAt"`
	Version        int64               `json:"version"`
}

// EffectivePrice returns the explicit price or the catalog price for the service type.
func (b *Booking) EffectivePrice() decimal.Decimal {
	if b.Price.Valid {
		return b.Price.Decimal
	}
	return PriceFor(b.ServiceType)
}

// HasWorker reports whether a worker has been assigned.
func (b *Booking) HasWorker() bool {
	return b.Worker != ""
}

// IsNewerThan reports whether b reflects a later server state than other.
// Version wins when both carry one; otherwise UpdatedAt decides.
func (b *Booking) IsNewerThan(other *Booking) bool {
	if b.Version > 0 && other.Version > 0 && b.Version != other.Version {
		return b.Version > other.Version
	}
	return b.UpdatedAt.After(other.UpdatedAt)
}

// BookingRequest is the payload of a new booking.
type BookingRequest struct {
	Customer       Customer            `json:"customer" validate:"required"`
	ServiceType    string              `json:"serviceType" validate:"required"`
	ServiceDate    Date                `json:"serviceDate" validate:"required,datetime=2006-01-02"`
	ServiceTime    TimeSlot            `json:"serviceTime" validate:"required"`
	ServiceAddress string              `json:"serviceAddress" validate:"required"`
	Price          decimal.NullDecimal `json:"price"`
}
