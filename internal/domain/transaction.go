package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// TransactionType tags the variant of a transaction
type TransactionType string

const (
	TransactionTypeReserve           TransactionType = "Reserve"
	TransactionTypeCancelReservation TransactionType = "CancelReservation"
)

// String returns the string representation of TransactionType
func (t TransactionType) String() string {
	return string(t)
}

// ParseTransactionType validates a transaction type tag
func ParseTransactionType(s string) (TransactionType, error) {
	switch t := TransactionType(s); t {
	case TransactionTypeReserve, TransactionTypeCancelReservation:
		return t, nil
	default:
		return "", NewArgumentError("typeOf", fmt.Sprintf("unknown transaction type %q", s))
	}
}

// TransactionStatus represents the status of a transaction
type TransactionStatus string

const (
	TransactionStatusInProgress TransactionStatus = "InProgress"
	TransactionStatusConfirmed  TransactionStatus = "Confirmed"
	TransactionStatusCanceled   TransactionStatus = "Canceled"
	TransactionStatusExpired    TransactionStatus = "Expired"
)

// String returns the string representation of TransactionStatus
func (s TransactionStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition is possible
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusConfirmed || s == TransactionStatusCanceled || s == TransactionStatusExpired
}

// TasksExportationStatus tracks task materialization for a terminal transaction
type TasksExportationStatus string

const (
	TasksExportationStatusUnexported TasksExportationStatus = "Unexported"
	TasksExportationStatusExporting  TasksExportationStatus = "Exporting"
	TasksExportationStatusExported   TasksExportationStatus = "Exported"
)

// Agent is the actor driving a transaction
type Agent struct {
	TypeOf string `json:"typeOf"`
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
}

// TransactionRef points at another transaction
type TransactionRef struct {
	TypeOf TransactionType `json:"typeOf"`
	ID     string          `json:"id"`
}

// Transaction is a unit of work moving from InProgress to a terminal status
type Transaction struct {
	ID                     string                 `json:"id"`
	TypeOf                 TransactionType        `json:"typeOf"`
	Status                 TransactionStatus      `json:"status"`
	Agent                  Agent                  `json:"agent"`
	Object                 TransactionObject      `json:"object"`
	Result                 TransactionResult      `json:"result,omitempty"`
	PotentialActions       PotentialActions       `json:"potentialActions,omitempty"`
	Expires                time.Time              `json:"expires"`
	StartDate              time.Time              `json:"startDate"`
	EndDate                *time.Time             `json:"endDate,omitempty"`
	TasksExportationStatus TasksExportationStatus `json:"tasksExportationStatus"`
	TasksExportedAt        *time.Time             `json:"tasksExportedAt,omitempty"`
	UpdatedAt              time.Time              `json:"updatedAt"`
}

// Ref returns a reference to the transaction
func (t *Transaction) Ref() TransactionRef {
	return TransactionRef{TypeOf: t.TypeOf, ID: t.ID}
}

// TransactionObject is the variant payload describing what a transaction acts on.
// Implemented only by *ReserveObject and *CancelReservationObject.
type TransactionObject interface {
	objectOf() TransactionType
}

// TransactionResult is the variant payload set at confirmation
type TransactionResult interface {
	resultOf() TransactionType
}

// PotentialActions is the variant payload of side effects stored at confirm or cancel
type PotentialActions interface {
	actionsOf() TransactionType
}

// ReserveObject is the object of a Reserve transaction
type ReserveObject struct {
	Event             Event         `json:"event"`
	ReservationNumber string        `json:"reservationNumber"`
	Reservations      []Reservation `json:"reservations"`
	Notes             string        `json:"notes,omitempty"`
}

// CancelReservationObject is the object of a CancelReservation transaction
type CancelReservationObject struct {
	Transaction  TransactionRef `json:"transaction"`
	Reservations []Reservation  `json:"reservations"`
}

// ReserveResult is the result of a confirmed Reserve transaction
type ReserveResult struct {
	ReservationNumber string `json:"reservationNumber"`
	Price             int    `json:"price"`
	PriceCurrency     string `json:"priceCurrency"`
}

// CancelReservationResult is the result of a confirmed CancelReservation transaction
type CancelReservationResult struct {
	CanceledReservationIDs []string `json:"canceledReservationIds"`
}

// ReservePotentialActions lists the reservations to confirm
type ReservePotentialActions struct {
	Reserve []ReserveActionAttributes `json:"reserve"`
}

// CancelReservationPotentialActions lists the reservations to cancel
type CancelReservationPotentialActions struct {
	CancelReservation []CancelActionAttributes `json:"cancelReservation"`
}

func (*ReserveObject) objectOf() TransactionType           { return TransactionTypeReserve }
func (*CancelReservationObject) objectOf() TransactionType { return TransactionTypeCancelReservation }

func (*ReserveResult) resultOf() TransactionType           { return TransactionTypeReserve }
func (*CancelReservationResult) resultOf() TransactionType { return TransactionTypeCancelReservation }

func (*ReservePotentialActions) actionsOf() TransactionType { return TransactionTypeReserve }
func (*CancelReservationPotentialActions) actionsOf() TransactionType {
	return TransactionTypeCancelReservation
}

// DecodeObject decodes a stored object payload for the given transaction type
func DecodeObject(typeOf TransactionType, raw []byte) (TransactionObject, error) {
	var obj TransactionObject
	switch typeOf {
	case TransactionTypeReserve:
		obj = &ReserveObject{}
	case TransactionTypeCancelReservation:
		obj = &CancelReservationObject{}
	default:
		return nil, NewNotImplementedError(fmt.Sprintf("transaction type %q not implemented", typeOf))
	}
	if err := json.Unmarshal(raw, obj); err != nil {
		return nil, fmt.Errorf("failed to decode %s object: %w", typeOf, err)
	}
	return obj, nil
}

// DecodeResult decodes a stored result payload; nil when raw is empty
func DecodeResult(typeOf TransactionType, raw []byte) (TransactionResult, error) {
	if isNullJSON(raw) {
		return nil, nil
	}
	var res TransactionResult
	switch typeOf {
	case TransactionTypeReserve:
		res = &ReserveResult{}
	case TransactionTypeCancelReservation:
		res = &CancelReservationResult{}
	default:
		return nil, NewNotImplementedError(fmt.Sprintf("transaction type %q not implemented", typeOf))
	}
	if err := json.Unmarshal(raw, res); err != nil {
		return nil, fmt.Errorf("failed to decode %s result: %w", typeOf, err)
	}
	return res, nil
}

// DecodePotentialActions decodes stored potential actions; nil when raw is empty
func DecodePotentialActions(typeOf TransactionType, raw []byte) (PotentialActions, error) {
	if isNullJSON(raw) {
		return nil, nil
	}
	var actions PotentialActions
	switch typeOf {
	case TransactionTypeReserve:
		actions = &ReservePotentialActions{}
	case TransactionTypeCancelReservation:
		actions = &CancelReservationPotentialActions{}
	default:
		return nil, NewNotImplementedError(fmt.Sprintf("transaction type %q not implemented", typeOf))
	}
	if err := json.Unmarshal(raw, actions); err != nil {
		return nil, fmt.Errorf("failed to decode %s potential actions: %w", typeOf, err)
	}
	return actions, nil
}

func isNullJSON(raw []byte) bool {
	return len(raw) == 0 || string(raw) == "null"
}
