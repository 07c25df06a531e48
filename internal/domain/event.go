package domain

import (
	"time"
)

// Seller is the organization that sells tickets for an event
type Seller struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	BranchCode string `json:"branchCode"`
}

// Place is where an event happens
type Place struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	BranchCode string `json:"branchCode"`
}

// Event is a screening; the core only reads snapshots of it
type Event struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	DoorTime  time.Time `json:"doorTime"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	Location  Place     `json:"location"`
	Seller    Seller    `json:"seller"`
	Capacity  int       `json:"maximumAttendeeCapacity,omitempty"`
}

// TicketType identifies the kind of ticket sold through an offer
type TicketType struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PriceComponent is one part of an offer's total price
type PriceComponent struct {
	Name  string `json:"name"`
	Price int    `json:"price"`
}

// TicketOffer is a priced offer for an event
type TicketOffer struct {
	ID              string           `json:"id"`
	EventID         string           `json:"eventId"`
	TicketType      TicketType       `json:"ticketType"`
	PriceCurrency   string           `json:"priceCurrency"`
	PriceComponents []PriceComponent `json:"priceComponents"`
	ValidFrom       *time.Time       `json:"validFrom,omitempty"`
	ValidThrough    *time.Time       `json:"validThrough,omitempty"`
}

// Price is the sum of all price components
func (o *TicketOffer) Price() int {
	total := 0
	for _, c := range o.PriceComponents {
		total += c.Price
	}
	return total
}

// AvailableAt reports whether the offer's eligibility window contains t
func (o *TicketOffer) AvailableAt(t time.Time) bool {
	if o.ValidFrom != nil && t.Before(*o.ValidFrom) {
		return false
	}
	if o.ValidThrough != nil && !t.Before(*o.ValidThrough) {
		return false
	}
	return true
}
