package domain

import "time"

// ActionType identifies the side effect an action performs
type ActionType string

const (
	ActionTypeReserve ActionType = "ReserveAction"
	ActionTypeCancel  ActionType = "CancelAction"
)

// ActionStatus represents the status of an action
type ActionStatus string

const (
	ActionStatusActive    ActionStatus = "ActiveActionStatus"
	ActionStatusCompleted ActionStatus = "CompletedActionStatus"
	ActionStatusFailed    ActionStatus = "FailedActionStatus"
)

// ReserveActionAttributes describes confirming one reservation
type ReserveActionAttributes struct {
	TypeOf  ActionType     `json:"typeOf"`
	Agent   Agent          `json:"agent"`
	Object  ReservationRef `json:"object"`
	Purpose TransactionRef `json:"purpose"`
}

// CancelActionAttributes describes cancelling one reservation and releasing its seat.
// SeatHolder is the Reserve transaction id that owns the seat lock.
type CancelActionAttributes struct {
	TypeOf     ActionType     `json:"typeOf"`
	Agent      Agent          `json:"agent"`
	Object     ReservationRef `json:"object"`
	Purpose    TransactionRef `json:"purpose"`
	SeatHolder string         `json:"seatHolder"`
}

// Action is the audit record of one executed side effect
type Action struct {
	ID           string         `json:"id"`
	TypeOf       ActionType     `json:"typeOf"`
	ActionStatus ActionStatus   `json:"actionStatus"`
	Agent        Agent          `json:"agent"`
	Object       ReservationRef `json:"object"`
	Purpose      TransactionRef `json:"purpose"`
	Error        string         `json:"error,omitempty"`
	StartDate    time.Time      `json:"startDate"`
	EndDate      *time.Time     `json:"endDate,omitempty"`
}
