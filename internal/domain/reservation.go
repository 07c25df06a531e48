package domain

import (
	"fmt"
	"time"
)

// ReservationStatus represents the status of a reservation
type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "Pending"
	ReservationStatusConfirmed ReservationStatus = "Confirmed"
	ReservationStatusCancelled ReservationStatus = "Cancelled"
)

// String returns the string representation of ReservationStatus
func (s ReservationStatus) String() string {
	return string(s)
}

// Seat identifies one seat within an event's seating
type Seat struct {
	SeatSection string `json:"seatSection"`
	SeatNumber  string `json:"seatNumber"`
}

// String renders the seat as section-number
func (s Seat) String() string {
	return fmt.Sprintf("%s-%s", s.SeatSection, s.SeatNumber)
}

// Ticket is the seat assignment and price of one reservation
type Ticket struct {
	TicketedSeat  Seat       `json:"ticketedSeat"`
	TicketType    TicketType `json:"ticketType"`
	TicketOfferID string     `json:"ticketOfferId"`
	TotalPrice    int        `json:"totalPrice"`
	PriceCurrency string     `json:"priceCurrency"`
	DateIssued    time.Time  `json:"dateIssued"`
}

// Reservation is one reserved seat
type Reservation struct {
	ID                string            `json:"id"`
	ReservationNumber string            `json:"reservationNumber"`
	ReservationFor    Event             `json:"reservationFor"`
	ReservedTicket    Ticket            `json:"reservedTicket"`
	UnderName         Agent             `json:"underName"`
	Price             int               `json:"price"`
	PriceCurrency     string            `json:"priceCurrency"`
	ReservationStatus ReservationStatus `json:"reservationStatus"`
	CheckedIn         bool              `json:"checkedIn"`
	Attended          bool              `json:"attended"`
	BookingTime       time.Time         `json:"bookingTime"`
	ModifiedTime      time.Time         `json:"modifiedTime"`
}

// ReservationID derives the id of the index-th reservation under a reservation number
func ReservationID(reservationNumber string, index int) string {
	return fmt.Sprintf("%s-%d", reservationNumber, index)
}

// Ref returns a lightweight reference used in action logs
func (r *Reservation) Ref() ReservationRef {
	return ReservationRef{
		ID:                r.ID,
		ReservationNumber: r.ReservationNumber,
		EventID:           r.ReservationFor.ID,
		TicketedSeat:      r.ReservedTicket.TicketedSeat,
	}
}

// ReservationRef points at a reservation and the seat it holds
type ReservationRef struct {
	ID                string `json:"id"`
	ReservationNumber string `json:"reservationNumber"`
	EventID           string `json:"eventId"`
	TicketedSeat      Seat   `json:"ticketedSeat"`
}
