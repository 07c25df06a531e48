package dto

import (
	"github.com/prohmpiriya/booking-rush-reservation/internal/domain"
)

// AcceptedOffer is one seat requested under a ticket offer
type AcceptedOffer struct {
	TicketOfferID string `json:"ticket_offer_id" binding:"required"`
	SeatSection   string `json:"seat_section" binding:"required"`
	SeatNumber    string `json:"seat_number" binding:"required"`
}

// Seat returns the requested seat
func (o AcceptedOffer) Seat() domain.Seat {
	return domain.Seat{SeatSection: o.SeatSection, SeatNumber: o.SeatNumber}
}

// AgentRequest identifies the actor driving a transaction.
// An empty ID is filled from the X-User-ID header.
type AgentRequest struct {
	TypeOf string `json:"type_of"`
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
}

// ToDomain converts the request agent to a domain Agent
func (a AgentRequest) ToDomain() domain.Agent {
	typeOf := a.TypeOf
	if typeOf == "" {
		typeOf = "Person"
	}
	return domain.Agent{TypeOf: typeOf, ID: a.ID, Name: a.Name, Email: a.Email}
}

// StartReserveRequest starts a Reserve transaction.
// TransactionID is optional; a UUID is generated when empty.
type StartReserveRequest struct {
	TransactionID    string          `json:"transaction_id,omitempty"`
	Agent            AgentRequest    `json:"agent"`
	EventID          string          `json:"event_id" binding:"required"`
	AcceptedOffers   []AcceptedOffer `json:"accepted_offers" binding:"required,min=1,dive"`
	Notes            string          `json:"notes,omitempty"`
	ExpiresInSeconds int             `json:"expires_in_seconds,omitempty" binding:"omitempty,min=1"`
}

// StartCancelReservationRequest starts a CancelReservation transaction for a confirmed Reserve transaction
type StartCancelReservationRequest struct {
	TransactionID        string       `json:"transaction_id,omitempty"`
	Agent                AgentRequest `json:"agent"`
	ReserveTransactionID string       `json:"reserve_transaction_id" binding:"required"`
	ExpiresInSeconds     int          `json:"expires_in_seconds,omitempty" binding:"omitempty,min=1"`
}

// ExportTasksResponse reports the tasks materialized for a transaction
type ExportTasksResponse struct {
	TransactionID string   `json:"transaction_id"`
	TaskIDs       []string `json:"task_ids"`
}
